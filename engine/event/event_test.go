package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synthframe/engine/engine/core"
)

func TestNew(t *testing.T) {
	t.Run("Should reject an unknown event type", func(t *testing.T) {
		_, err := New(Type("NOT_A_REAL_EVENT"), nil)
		require.Error(t, err)
	})

	t.Run("Should accept a DATA_ARRIVED payload with all required fields", func(t *testing.T) {
		e, err := New(DataArrived, core.NewInput(map[string]any{
			"source":      "slack",
			"content":     "hello",
			"pondEntryId": "p1",
			"timestamp":   "2026-07-30T00:00:00Z",
		}))
		require.NoError(t, err)
		assert.Equal(t, DataArrived, e.Type)
	})

	t.Run("Should reject a DATA_ARRIVED payload missing a required field", func(t *testing.T) {
		_, err := New(DataArrived, core.NewInput(map[string]any{
			"source": "slack",
		}))
		require.Error(t, err)
	})

	t.Run("Should accept an event type with no registered payload schema as-is", func(t *testing.T) {
		e, err := New(IdleTimeDetected, core.NewInput(map[string]any{"anything": true}))
		require.NoError(t, err)
		assert.Equal(t, IdleTimeDetected, e.Type)
	})
}

func TestQueue_BandOrdering(t *testing.T) {
	t.Run("Should pop high before normal before low, FIFO within a band", func(t *testing.T) {
		q := NewQueue()
		low, _ := New(IdleTimeDetected, nil)
		normal, _ := New(IssueStalled, core.NewInput(map[string]any{
			"issueId": "i1", "stalledDays": 1, "lastUpdate": "x",
		}))
		high1, _ := New(SystemMaintenanceDue, nil)
		high2, _ := New(PondCapacityWarning, nil)

		q.Push(BandLow, low)
		q.Push(BandNormal, normal)
		q.Push(BandHigh, high1)
		q.Push(BandHigh, high2)

		first, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, SystemMaintenanceDue, first.Type)

		second, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, PondCapacityWarning, second.Type)

		third, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, IssueStalled, third.Type)

		fourth, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, IdleTimeDetected, fourth.Type)

		_, ok = q.Pop()
		assert.False(t, ok)
	})

	t.Run("Should not busy-loop on an empty queue", func(t *testing.T) {
		q := NewQueue()
		_, ok := q.Pop()
		assert.False(t, ok)
		assert.Equal(t, 0, q.Len())
	})
}
