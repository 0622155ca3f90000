// Package workflow defines the vocabulary shared by the registry, resolver,
// queue, and dispatcher: a WorkflowDefinition (§3.2), the per-execution
// Context and Result (§3.3-§3.4), and the Emitter a running workflow uses to
// publish further events.
package workflow

import (
	"context"

	"github.com/synthframe/engine/engine/core"
	"github.com/synthframe/engine/engine/driver"
	"github.com/synthframe/engine/engine/event"
	"github.com/synthframe/engine/engine/recorder"
	"github.com/synthframe/engine/engine/storage"
)

// Triggers describes when a Definition fires and at what priority (§3.2).
// Condition, when set, must be side-effect-free and fast; a panicking
// Condition is treated as a non-match by the resolver.
type Triggers struct {
	EventTypes []event.Type
	Condition  func(event.SystemEvent) bool
	Priority   int
}

// Matches reports whether t's event types include typ.
func (t Triggers) Matches(typ event.Type) bool {
	for _, et := range t.EventTypes {
		if et == typ {
			return true
		}
	}
	return false
}

// Emitter is the narrow interface a running workflow uses to publish
// further events back into the engine (§2, "Event emitter").
type Emitter interface {
	Emit(e event.SystemEvent)
}

// Context is the per-execution bundle handed to an Executor (§3.3). It is
// logically read-only: an executor returns a new State in its Result rather
// than mutating Context in place.
type Context struct {
	State        string
	Storage      storage.Storage
	CreateDriver func(criteria driver.Criteria) (driver.Driver, error)
	Recorder     *recorder.Recorder
}

// Result is what an Executor returns (§3.4). StateChanged distinguishes "no
// change" from "set State to the empty string" — a bare zero-value State
// field couldn't carry that distinction. The dispatcher only commits State
// when both Success and StateChanged are true.
type Result struct {
	Success      bool
	State        string
	StateChanged bool
	Output       core.Output
}

// Executor is a workflow body: given the triggering event, a Context, and an
// Emitter, it produces a Result or an error. Executors suspend only at
// storage, driver, and emitter calls (§5).
type Executor func(ctx context.Context, ev event.SystemEvent, wctx *Context, emitter Emitter) (Result, error)

// Definition is a registered workflow descriptor (§3.2). Name must be
// process-wide unique; Triggers.EventTypes must be non-empty.
type Definition struct {
	Name        string
	Description string
	Triggers    Triggers
	Executor    Executor
}

// Validate checks the invariants §4.1's WorkflowRegistry.validate() asserts:
// non-empty name, non-empty EventTypes, and a non-nil Executor.
func (d Definition) Validate() error {
	if d.Name == "" {
		return core.NewError(nil, "INVALID_WORKFLOW_DEFINITION", map[string]any{
			"reason": "name is required",
		})
	}
	if len(d.Triggers.EventTypes) == 0 {
		return core.NewError(nil, "INVALID_WORKFLOW_DEFINITION", map[string]any{
			"name":   d.Name,
			"reason": "triggers.eventTypes must be non-empty",
		})
	}
	if d.Executor == nil {
		return core.NewError(nil, "INVALID_WORKFLOW_DEFINITION", map[string]any{
			"name":   d.Name,
			"reason": "executor is required",
		})
	}
	return nil
}
