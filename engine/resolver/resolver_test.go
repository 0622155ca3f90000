package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synthframe/engine/engine/event"
	"github.com/synthframe/engine/engine/workflow"
)

type fakeRegistry struct {
	byType map[event.Type][]workflow.Definition
}

func (f *fakeRegistry) FindByEventType(typ event.Type) []workflow.Definition {
	return f.byType[typ]
}

func TestResolver_Resolve(t *testing.T) {
	t.Run("Should sort survivors by priority descending", func(t *testing.T) {
		reg := &fakeRegistry{byType: map[event.Type][]workflow.Definition{
			event.IssueCreated: {
				{Name: "Low", Triggers: workflow.Triggers{Priority: 1}},
				{Name: "High", Triggers: workflow.Triggers{Priority: 9}},
				{Name: "Mid", Triggers: workflow.Triggers{Priority: 5}},
			},
		}}
		res := New(reg, nil).Resolve(event.SystemEvent{Type: event.IssueCreated})

		require.Len(t, res.Workflows, 3)
		assert.Equal(t, []string{"High", "Mid", "Low"}, names(res.Workflows))
		assert.Equal(t, 3, res.Counters.Candidates)
		assert.Equal(t, 3, res.Counters.Matched)
	})

	t.Run("Should keep registration order for equal priority", func(t *testing.T) {
		reg := &fakeRegistry{byType: map[event.Type][]workflow.Definition{
			event.IssueCreated: {
				{Name: "First", Triggers: workflow.Triggers{Priority: 5}},
				{Name: "Second", Triggers: workflow.Triggers{Priority: 5}},
				{Name: "Third", Triggers: workflow.Triggers{Priority: 5}},
			},
		}}
		res := New(reg, nil).Resolve(event.SystemEvent{Type: event.IssueCreated})
		assert.Equal(t, []string{"First", "Second", "Third"}, names(res.Workflows))
	})

	t.Run("Should drop definitions whose condition returns false", func(t *testing.T) {
		reg := &fakeRegistry{byType: map[event.Type][]workflow.Definition{
			event.IssueCreated: {
				{Name: "Yes", Triggers: workflow.Triggers{Condition: func(event.SystemEvent) bool { return true }}},
				{Name: "No", Triggers: workflow.Triggers{Condition: func(event.SystemEvent) bool { return false }}},
			},
		}}
		res := New(reg, nil).Resolve(event.SystemEvent{Type: event.IssueCreated})
		assert.Equal(t, []string{"Yes"}, names(res.Workflows))
		assert.Equal(t, 2, res.Counters.Candidates)
		assert.Equal(t, 1, res.Counters.Matched)
	})

	t.Run("Should treat a panicking condition as a non-match without propagating", func(t *testing.T) {
		reg := &fakeRegistry{byType: map[event.Type][]workflow.Definition{
			event.IssueCreated: {
				{Name: "Panics", Triggers: workflow.Triggers{Condition: func(event.SystemEvent) bool {
					panic("boom")
				}}},
				{Name: "Fine", Triggers: workflow.Triggers{Condition: func(event.SystemEvent) bool { return true }}},
			},
		}}
		var res Result
		assert.NotPanics(t, func() {
			res = New(reg, nil).Resolve(event.SystemEvent{Type: event.IssueCreated})
		})
		assert.Equal(t, []string{"Fine"}, names(res.Workflows))
	})

	t.Run("Should treat a nil condition as an implicit match", func(t *testing.T) {
		reg := &fakeRegistry{byType: map[event.Type][]workflow.Definition{
			event.IssueCreated: {{Name: "Always"}},
		}}
		res := New(reg, nil).Resolve(event.SystemEvent{Type: event.IssueCreated})
		assert.Equal(t, []string{"Always"}, names(res.Workflows))
	})

	t.Run("Should return an empty result for an event type with no candidates", func(t *testing.T) {
		reg := &fakeRegistry{byType: map[event.Type][]workflow.Definition{}}
		res := New(reg, nil).Resolve(event.SystemEvent{Type: event.IssueCreated})
		assert.Empty(t, res.Workflows)
		assert.Equal(t, 0, res.Counters.Candidates)
	})
}

func names(defs []workflow.Definition) []string {
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.Name
	}
	return out
}
