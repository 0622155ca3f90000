package condition

import (
	"context"

	"github.com/synthframe/engine/engine/event"
)

// Predicate compiles expr once and returns a workflow.Triggers.Condition
// closure that evaluates it against an event on every call, mapping any
// evaluation error (missing field, cost limit, non-boolean result) to a
// non-match (§4.2 treats an erroring predicate as "does not match").
// A compilation error is returned immediately so misconfigured workflows
// fail at registration rather than silently never matching.
func Predicate(e *Evaluator, expr string) (func(event.SystemEvent) bool, error) {
	if err := e.ValidateExpression(expr); err != nil {
		return nil, err
	}
	return func(ev event.SystemEvent) bool {
		data := map[string]any{
			"event": map[string]any{
				"type":    string(ev.Type),
				"payload": map[string]any(ev.Payload),
			},
		}
		ok, err := e.Evaluate(context.Background(), expr, data)
		if err != nil {
			return false
		}
		return ok
	}, nil
}
