package condition

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventData(typ string, payload map[string]any) map[string]any {
	return map[string]any{
		"event": map[string]any{
			"type":    typ,
			"payload": payload,
		},
	}
}

func TestCELEvaluator_Evaluate(t *testing.T) {
	t.Run("Should match a simple boolean expression", func(t *testing.T) {
		e, err := NewCELEvaluator()
		require.NoError(t, err)

		ok, err := e.Evaluate(t.Context(), `event.type == "IssueCreated"`,
			eventData("IssueCreated", map[string]any{"issueId": "iss_1"}))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Should evaluate a compound expression against payload fields", func(t *testing.T) {
		e, err := NewCELEvaluator()
		require.NoError(t, err)

		expr := `event.type == "HighPriorityIssue" && event.payload.priority >= 4`
		ok, err := e.Evaluate(t.Context(), expr,
			eventData("HighPriorityIssue", map[string]any{"priority": int64(5)}))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Should return false for a non-matching expression", func(t *testing.T) {
		e, err := NewCELEvaluator()
		require.NoError(t, err)

		ok, err := e.Evaluate(t.Context(), `event.type == "IssueCreated"`,
			eventData("IssueUpdated", map[string]any{}))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Should error on access to a missing field", func(t *testing.T) {
		e, err := NewCELEvaluator()
		require.NoError(t, err)

		_, err = e.Evaluate(t.Context(), `event.payload.nope == "x"`,
			eventData("IssueCreated", map[string]any{"issueId": "iss_1"}))
		assert.Error(t, err)
	})

	t.Run("Should support has() for optional fields", func(t *testing.T) {
		e, err := NewCELEvaluator()
		require.NoError(t, err)

		ok, err := e.Evaluate(t.Context(), `has(event.payload.reason) && event.payload.reason == "stale"`,
			eventData("IssueStatusChanged", map[string]any{"reason": "stale"}))
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = e.Evaluate(t.Context(), `has(event.payload.reason)`,
			eventData("IssueStatusChanged", map[string]any{}))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Should error on a compilation failure", func(t *testing.T) {
		e, err := NewCELEvaluator()
		require.NoError(t, err)

		_, err = e.Evaluate(t.Context(), `event.type ==`, eventData("IssueCreated", nil))
		assert.Error(t, err)
	})

	t.Run("Should reject an expression that does not evaluate to a boolean", func(t *testing.T) {
		e, err := NewCELEvaluator()
		require.NoError(t, err)

		_, err = e.Evaluate(t.Context(), `event.type`, eventData("IssueCreated", nil))
		assert.Error(t, err)
	})

	t.Run("Should error on a type mismatch at runtime", func(t *testing.T) {
		e, err := NewCELEvaluator()
		require.NoError(t, err)

		_, err = e.Evaluate(t.Context(), `event.payload.priority == "high"`,
			eventData("HighPriorityIssue", map[string]any{"priority": int64(3)}))
		assert.Error(t, err)
	})

	t.Run("Should enforce the configured cost limit", func(t *testing.T) {
		e, err := NewCELEvaluator(WithCostLimit(1))
		require.NoError(t, err)

		expr := `event.payload.text.contains("a") && event.payload.text.contains("b") && event.payload.text.contains("c")`
		_, err = e.Evaluate(t.Context(), expr,
			eventData("DataArrived", map[string]any{"text": "abcabcabcabc"}))
		assert.Error(t, err)
	})

	t.Run("Should return an error when the context is already canceled", func(t *testing.T) {
		e, err := NewCELEvaluator()
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		_, err = e.Evaluate(ctx, `event.type == "IssueCreated"`, eventData("IssueCreated", nil))
		assert.Error(t, err)
	})

	t.Run("Should reuse the cached compiled program across calls", func(t *testing.T) {
		e, err := NewCELEvaluator()
		require.NoError(t, err)

		expr := `event.type == "IssueCreated"`
		_, err = e.Evaluate(t.Context(), expr, eventData("IssueCreated", nil))
		require.NoError(t, err)

		_, cached := e.programCache.Get(expr)
		assert.True(t, cached)

		ok, err := e.Evaluate(t.Context(), expr, eventData("IssueCreated", nil))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Should tolerate a tiny cache that evicts compiled programs", func(t *testing.T) {
		e, err := NewCELEvaluator(WithCacheSize(1))
		require.NoError(t, err)

		for i := 0; i < 20; i++ {
			ok, err := e.Evaluate(t.Context(), `event.type == "IssueCreated"`, eventData("IssueCreated", nil))
			require.NoError(t, err)
			assert.True(t, ok)
		}
	})
}

func TestCELEvaluator_ValidateExpression(t *testing.T) {
	e, err := NewCELEvaluator()
	require.NoError(t, err)

	t.Run("Should accept a well-formed boolean expression", func(t *testing.T) {
		assert.NoError(t, e.ValidateExpression(`event.type == "IssueCreated"`))
	})

	t.Run("Should reject a malformed expression", func(t *testing.T) {
		assert.Error(t, e.ValidateExpression(`event.type ===`))
	})

	t.Run("Should reject a well-formed but non-boolean expression", func(t *testing.T) {
		assert.Error(t, e.ValidateExpression(`event.type`))
	})
}

func TestCELEvaluator_Timeout(t *testing.T) {
	t.Run("Should surface a deadline exceeded before evaluation runs", func(t *testing.T) {
		e, err := NewCELEvaluator()
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(t.Context(), time.Nanosecond)
		defer cancel()
		time.Sleep(time.Microsecond)

		_, err = e.Evaluate(ctx, `event.type == "IssueCreated"`, eventData("IssueCreated", nil))
		assert.Error(t, err)
	})
}
