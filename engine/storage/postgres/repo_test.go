package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synthframe/engine/engine/core"
)

func TestDecodeFields(t *testing.T) {
	t.Run("Should return an empty Output for nil JSONB", func(t *testing.T) {
		out, err := decodeFields(nil)
		require.NoError(t, err)
		assert.Equal(t, core.Output{}, out)
	})

	t.Run("Should decode a JSONB object into an Output map", func(t *testing.T) {
		out, err := decodeFields([]byte(`{"title":"login broken","priority":2}`))
		require.NoError(t, err)
		assert.Equal(t, "login broken", out["title"])
		assert.InEpsilon(t, float64(2), out["priority"], 0)
	})

	t.Run("Should error on malformed JSONB", func(t *testing.T) {
		_, err := decodeFields([]byte(`not json`))
		require.Error(t, err)
	})
}

func TestNullableHelpers(t *testing.T) {
	t.Run("Should treat empty string as nullable", func(t *testing.T) {
		assert.Nil(t, nullableString(""))
		assert.Equal(t, "daily-report", nullableString("daily-report"))
	})

	t.Run("Should parse RFC3339 timestamps and pass through empty as nil", func(t *testing.T) {
		assert.Nil(t, nullableTime(""))
		parsed := nullableTime("2026-07-30T09:00:00Z")
		ts, ok := parsed.(time.Time)
		require.True(t, ok)
		assert.Equal(t, 2026, ts.Year())
	})

	t.Run("Should treat zero as nullable for occurrence caps", func(t *testing.T) {
		assert.Nil(t, nullableIntZero(0))
		assert.Equal(t, 5, nullableIntZero(5))
	})

	t.Run("Should default an empty status to the fallback", func(t *testing.T) {
		assert.Equal(t, "active", statusOr("", "active"))
		assert.Equal(t, "completed", statusOr("completed", "active"))
	})
}

func TestFormatTimePtr(t *testing.T) {
	t.Run("Should format a non-nil time and return empty for nil", func(t *testing.T) {
		assert.Empty(t, formatTimePtr(nil))
		ts := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
		assert.Equal(t, "2026-07-30T09:00:00Z", formatTimePtr(&ts))
	})
}

func TestStringOrEmpty(t *testing.T) {
	t.Run("Should dereference a non-nil pointer and default nil to empty", func(t *testing.T) {
		assert.Empty(t, stringOrEmpty(nil))
		s := "daily-report"
		assert.Equal(t, "daily-report", stringOrEmpty(&s))
	})
}
