// Package registry implements the WorkflowRegistry (§4.1): a process-wide,
// concurrency-safe table of workflow.Definition values, indexed both by
// name and by the event types they trigger on.
package registry

import (
	"fmt"
	"sync"

	"github.com/synthframe/engine/engine/event"
	"github.com/synthframe/engine/engine/workflow"
	"github.com/synthframe/engine/pkg/logger"
)

// Registry is the WorkflowRegistry (§4.1). The zero value is not usable;
// construct with New.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]workflow.Definition
	byEvent map[event.Type][]string // event type -> names, in registration order
	log     logger.Logger
}

// New returns an empty Registry. log may be nil, in which case a
// process-default logger is used for duplicate-registration warnings.
func New(log logger.Logger) *Registry {
	if log == nil {
		log = logger.NewLogger(nil)
	}
	return &Registry{
		byName:  make(map[string]workflow.Definition),
		byEvent: make(map[event.Type][]string),
		log:     log,
	}
}

// Register inserts def by name. Registering an already-used name is not an
// error: it logs a warning, removes the prior definition's entries from
// every event type's index, and rebuilds the index from def's own
// Triggers.EventTypes, so a re-registered workflow triggers on exactly the
// event types it now declares (§4.1, Invariant 1).
func (r *Registry) Register(def workflow.Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, exists := r.byName[def.Name]; exists {
		r.log.Warn("overwriting existing workflow definition", "name", def.Name)
		r.removeFromEventIndex(def.Name, prev.Triggers.EventTypes)
	}
	r.byName[def.Name] = def
	for _, t := range def.Triggers.EventTypes {
		r.byEvent[t] = append(r.byEvent[t], def.Name)
	}
	return nil
}

// removeFromEventIndex drops name from each event type bucket it was
// previously indexed under.
func (r *Registry) removeFromEventIndex(name string, eventTypes []event.Type) {
	for _, t := range eventTypes {
		names := r.byEvent[t]
		for i, n := range names {
			if n == name {
				r.byEvent[t] = append(names[:i], names[i+1:]...)
				break
			}
		}
	}
}

// GetByName returns the definition registered under name, if any.
func (r *Registry) GetByName(name string) (workflow.Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.byName[name]
	return def, ok
}

// FindByEventType returns every definition whose Triggers.EventTypes
// contains typ. The order is registration order but callers must not rely
// on it: the resolver re-sorts by priority (§4.2).
func (r *Registry) FindByEventType(typ event.Type) []workflow.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := r.byEvent[typ]
	out := make([]workflow.Definition, 0, len(names))
	for _, name := range names {
		if def, ok := r.byName[name]; ok {
			out = append(out, def)
		}
	}
	return out
}

// All returns every registered definition, in no particular order.
func (r *Registry) All() []workflow.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]workflow.Definition, 0, len(r.byName))
	for _, def := range r.byName {
		out = append(out, def)
	}
	return out
}

// Validate asserts the registry-wide invariants (§4.1): every definition's
// name is non-empty and unique (guaranteed by the map key itself), every
// definition has at least one event type, and, where a condition is set,
// it is a non-nil callable. Register already enforces these per-definition,
// so Validate mainly guards against a Registry built by other means (e.g.
// tests constructing byName directly) or used after manual mutation.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{}, len(r.byName))
	for name, def := range r.byName {
		if name == "" {
			return fmt.Errorf("registry: empty workflow name")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("registry: duplicate workflow name %q", name)
		}
		seen[name] = struct{}{}
		if err := def.Validate(); err != nil {
			return err
		}
	}
	return nil
}
