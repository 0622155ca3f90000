// Package resolver implements the WorkflowResolver (§4.2): given one event,
// it asks the registry for candidate definitions, filters them by their
// condition predicate, and returns the survivors ordered by priority.
package resolver

import (
	"sort"
	"time"

	"github.com/synthframe/engine/engine/event"
	"github.com/synthframe/engine/engine/workflow"
	"github.com/synthframe/engine/pkg/logger"
)

// Registry is the narrow slice of registry.Registry the resolver depends
// on, so it can be faked in tests without importing the registry package.
type Registry interface {
	FindByEventType(typ event.Type) []workflow.Definition
}

// Counters reports how many candidates survived each resolution stage,
// for observability (§4.2's "debug counters").
type Counters struct {
	Candidates int // |C0|: definitions matching the event type
	Matched    int // survivors after the condition filter
}

// Result is what Resolve returns (§4.2).
type Result struct {
	Workflows      []workflow.Definition
	ResolutionTime time.Duration
	Counters       Counters
}

// Resolver is the WorkflowResolver. The zero value is usable if log is nil;
// NewResolver is provided for symmetry with the rest of the engine's
// constructors.
type Resolver struct {
	registry Registry
	log      logger.Logger
}

// New returns a Resolver backed by reg. log may be nil.
func New(reg Registry, log logger.Logger) *Resolver {
	if log == nil {
		log = logger.NewLogger(nil)
	}
	return &Resolver{registry: reg, log: log}
}

// entry pairs a surviving definition with its original registration-order
// index, so the final sort can break priority ties stably without relying
// on sort.SliceStable's implementation details across repeated sorts.
type entry struct {
	def workflow.Definition
	idx int
}

// Resolve runs the §4.2 algorithm for one event: gather candidates by
// event type, drop those whose condition doesn't match (a panicking or
// erroring condition counts as "doesn't match" and is logged, never
// propagated), then sort survivors by Triggers.Priority descending with
// ties broken by registration order.
func (r *Resolver) Resolve(ev event.SystemEvent) Result {
	start := time.Now()
	candidates := r.registry.FindByEventType(ev.Type)

	survivors := make([]entry, 0, len(candidates))
	for i, def := range candidates {
		if r.matches(def, ev) {
			survivors = append(survivors, entry{def: def, idx: i})
		}
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		pi, pj := survivors[i].def.Triggers.Priority, survivors[j].def.Triggers.Priority
		if pi != pj {
			return pi > pj
		}
		return survivors[i].idx < survivors[j].idx
	})

	workflows := make([]workflow.Definition, len(survivors))
	for i, s := range survivors {
		workflows[i] = s.def
	}

	return Result{
		Workflows:      workflows,
		ResolutionTime: time.Since(start),
		Counters: Counters{
			Candidates: len(candidates),
			Matched:    len(survivors),
		},
	}
}

// matches evaluates def's condition against ev, recovering from a panic
// and treating it (like an absent condition's implicit true, or a
// condition that returns false) uniformly: only a panic or an explicit
// false drops the definition, and a panic is logged first.
func (r *Resolver) matches(def workflow.Definition, ev event.SystemEvent) (matched bool) {
	if def.Triggers.Condition == nil {
		return true
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Warn("workflow condition panicked, treating as non-match",
				"workflow", def.Name, "panic", rec)
			matched = false
		}
	}()
	return def.Triggers.Condition(ev)
}
