package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synthframe/engine/engine/event"
	"github.com/synthframe/engine/engine/workflow"
)

func def(name string) workflow.Definition {
	return workflow.Definition{Name: name}
}

func TestQueue_EnqueueDequeue(t *testing.T) {
	t.Run("Should dequeue the highest priority item first", func(t *testing.T) {
		q := New()
		q.Enqueue(def("Low"), event.SystemEvent{}, 1)
		q.Enqueue(def("High"), event.SystemEvent{}, 9)
		q.Enqueue(def("Mid"), event.SystemEvent{}, 5)

		first, ok := q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, "High", first.Definition.Name)

		second, ok := q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, "Mid", second.Definition.Name)

		third, ok := q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, "Low", third.Definition.Name)
	})

	t.Run("Should preserve FIFO order within equal priority", func(t *testing.T) {
		q := New()
		q.Enqueue(def("First"), event.SystemEvent{}, 5)
		q.Enqueue(def("Second"), event.SystemEvent{}, 5)
		q.Enqueue(def("Third"), event.SystemEvent{}, 5)

		for _, want := range []string{"First", "Second", "Third"} {
			item, ok := q.Dequeue()
			require.True(t, ok)
			assert.Equal(t, want, item.Definition.Name)
		}
	})

	t.Run("Should assign status=pending and retryCount=0 on enqueue", func(t *testing.T) {
		q := New()
		q.Enqueue(def("A"), event.SystemEvent{}, 1)
		pending := q.GetPending()
		require.Len(t, pending, 1)
		assert.Equal(t, StatusPending, pending[0].Status)
		assert.Zero(t, pending[0].RetryCount)
		assert.NotEmpty(t, pending[0].ID)
	})

	t.Run("Should report ok=false when empty", func(t *testing.T) {
		q := New()
		_, ok := q.Dequeue()
		assert.False(t, ok)
	})

	t.Run("Should move a dequeued item into the running set", func(t *testing.T) {
		q := New()
		q.Enqueue(def("A"), event.SystemEvent{}, 1)
		item, ok := q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, StatusRunning, item.Status)
		assert.Equal(t, 1, q.RunningSize())
		assert.Equal(t, 0, q.Size())
	})
}

func TestQueue_MarkCompleted(t *testing.T) {
	t.Run("Should record a completed terminal status", func(t *testing.T) {
		q := New()
		q.Enqueue(def("A"), event.SystemEvent{}, 1)
		item, _ := q.Dequeue()
		q.MarkCompleted(item.ID, true)

		stats := q.GetStats()
		assert.Equal(t, 0, stats.Running)
		assert.Equal(t, 1, stats.Completed)
		assert.Equal(t, 0, stats.Failed)
	})

	t.Run("Should record a failed terminal status", func(t *testing.T) {
		q := New()
		q.Enqueue(def("A"), event.SystemEvent{}, 1)
		item, _ := q.Dequeue()
		q.MarkCompleted(item.ID, false)

		stats := q.GetStats()
		assert.Equal(t, 1, stats.Failed)
	})

	t.Run("Should no-op for an unknown id", func(t *testing.T) {
		q := New()
		assert.NotPanics(t, func() { q.MarkCompleted("missing", true) })
	})
}

func TestQueue_Retry(t *testing.T) {
	t.Run("Should decrement priority and reinsert on retry", func(t *testing.T) {
		q := New()
		q.Enqueue(def("A"), event.SystemEvent{}, 5)
		item, _ := q.Dequeue()

		ok := q.Retry(item.ID)
		assert.True(t, ok)

		pending := q.GetPending()
		require.Len(t, pending, 1)
		assert.Equal(t, 4, pending[0].Priority)
		assert.Equal(t, 1, pending[0].RetryCount)
		assert.Equal(t, StatusPending, pending[0].Status)
	})

	t.Run("Should never decrement priority below zero", func(t *testing.T) {
		q := New()
		q.Enqueue(def("A"), event.SystemEvent{}, 0)
		item, _ := q.Dequeue()
		q.Retry(item.ID)

		pending := q.GetPending()
		require.Len(t, pending, 1)
		assert.Equal(t, 0, pending[0].Priority)
	})

	t.Run("Should mark failed and return false once maxRetries is exhausted", func(t *testing.T) {
		q := New()
		q.Enqueue(def("A"), event.SystemEvent{}, 5)

		var id string
		for i := 0; i < maxRetries; i++ {
			item, ok := q.Dequeue()
			require.True(t, ok)
			id = item.ID
			require.True(t, q.Retry(item.ID))
		}

		item, ok := q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, id, item.ID)
		assert.False(t, q.Retry(item.ID))
		assert.Equal(t, 1, q.GetStats().Failed)
	})

	t.Run("Should return false for an id not in the running set", func(t *testing.T) {
		q := New()
		assert.False(t, q.Retry("missing"))
	})

	t.Run("Should place a retried item behind fresh items of its new priority", func(t *testing.T) {
		q := New()
		q.Enqueue(def("Retried"), event.SystemEvent{}, 5)
		item, _ := q.Dequeue()
		q.Retry(item.ID) // now priority 4

		q.Enqueue(def("Fresh"), event.SystemEvent{}, 4)

		first, _ := q.Dequeue()
		assert.Equal(t, "Retried", first.Definition.Name)
		second, _ := q.Dequeue()
		assert.Equal(t, "Fresh", second.Definition.Name)
	})
}

func TestQueue_ClearAndSnapshots(t *testing.T) {
	t.Run("Should clear pending, running, and terminal counters", func(t *testing.T) {
		q := New()
		q.Enqueue(def("A"), event.SystemEvent{}, 1)
		q.Enqueue(def("B"), event.SystemEvent{}, 2)
		item, _ := q.Dequeue()
		q.MarkCompleted(item.ID, true)

		q.Clear()
		assert.Zero(t, q.Size())
		assert.Zero(t, q.RunningSize())
		assert.Equal(t, Stats{}, q.GetStats())
	})

	t.Run("Should return pending items highest priority first without mutating the queue", func(t *testing.T) {
		q := New()
		q.Enqueue(def("Low"), event.SystemEvent{}, 1)
		q.Enqueue(def("High"), event.SystemEvent{}, 9)

		snap := q.GetPending()
		require.Len(t, snap, 2)
		assert.Equal(t, "High", snap[0].Definition.Name)
		assert.Equal(t, 2, q.Size())
	})

	t.Run("Should return running items", func(t *testing.T) {
		q := New()
		q.Enqueue(def("A"), event.SystemEvent{}, 1)
		q.Dequeue()
		running := q.GetRunning()
		require.Len(t, running, 1)
		assert.Equal(t, "A", running[0].Definition.Name)
	})
}
