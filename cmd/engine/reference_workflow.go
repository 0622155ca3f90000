package main

import (
	"context"
	"fmt"

	"github.com/synthframe/engine/engine/condition"
	"github.com/synthframe/engine/engine/core"
	"github.com/synthframe/engine/engine/event"
	"github.com/synthframe/engine/engine/recorder"
	"github.com/synthframe/engine/engine/registry"
	"github.com/synthframe/engine/engine/workflow"
)

// registerReferenceWorkflow registers a single conformance-fixture
// workflow (§3.2's WorkflowDefinition contract applies to any conforming
// workflow, not just concrete business logic, which is out of scope here)
// so the one runnable process actually exercises the registry → resolver
// → condition → dispatcher path end to end, rather than leaving it
// reachable only from unit tests. Its CEL condition only matches
// high-priority issues, demonstrating the resolver's §4.2 step 2 filter.
func registerReferenceWorkflow(reg *registry.Registry, evaluator *condition.Evaluator) error {
	cond, err := condition.Predicate(evaluator, "event.payload.priority <= 2")
	if err != nil {
		return fmt.Errorf("compiling reference workflow condition: %w", err)
	}
	return reg.Register(workflow.Definition{
		Name:        "LogHighPriorityIssue",
		Description: "Conformance fixture: records high-priority issues without mutating state.",
		Triggers: workflow.Triggers{
			EventTypes: []event.Type{event.HighPriorityIssue},
			Condition:  cond,
			Priority:   5,
		},
		Executor: func(_ context.Context, ev event.SystemEvent, wctx *workflow.Context, _ workflow.Emitter) (workflow.Result, error) {
			wctx.Recorder.Record(recorder.Output, ev.Payload)
			return workflow.Result{
				Success: true,
				Output:  core.Output{"acknowledged": true},
			}, nil
		},
	})
}
