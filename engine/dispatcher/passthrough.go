package dispatcher

import (
	"context"

	"github.com/synthframe/engine/engine/core"
	"github.com/synthframe/engine/engine/event"
	"github.com/synthframe/engine/engine/storage"
)

// CreateInput records a raw external input in the pond and emits a
// DATA_ARRIVED event referencing it (§4.4, §6.1).
func (e *Engine) CreateInput(ctx context.Context, source, content, format string) (*storage.PondEntry, error) {
	entry, err := e.AddToPond(ctx, core.NewInput(map[string]any{
		"source":  source,
		"content": content,
		"format":  format,
	}))
	if err != nil {
		return nil, err
	}
	ev, err := event.New(event.DataArrived, core.NewInput(map[string]any{
		"source":      source,
		"content":     content,
		"format":      format,
		"pondEntryId": entry.ID.String(),
		"timestamp":   entry.Timestamp,
	}))
	if err != nil {
		return nil, err
	}
	e.EmitEvent(ev)
	return entry, nil
}

// AddToPond is a thin pass-through to storage.AddPondEntry.
func (e *Engine) AddToPond(ctx context.Context, partial core.Input) (*storage.PondEntry, error) {
	return e.storage.AddPondEntry(ctx, partial)
}

// CreateIssue persists a new issue and emits ISSUE_CREATED (§6.1).
func (e *Engine) CreateIssue(ctx context.Context, partial core.Input, createdBy string) (*storage.Issue, error) {
	issue, err := e.storage.CreateIssue(ctx, partial)
	if err != nil {
		return nil, err
	}
	ev, err := event.New(event.IssueCreated, core.NewInput(map[string]any{
		"issueId":   issue.ID.String(),
		"issue":     map[string]any(issue.Fields),
		"createdBy": createdBy,
	}))
	if err != nil {
		return nil, err
	}
	e.EmitEvent(ev)
	return issue, nil
}

// UpdateIssue applies partial to an existing issue, emitting ISSUE_UPDATED
// with the before/after snapshot, and ISSUE_STATUS_CHANGED in addition
// when the update changes the "status" field (§6.1).
func (e *Engine) UpdateIssue(ctx context.Context, id core.ID, partial core.Input, updatedBy string) (*storage.Issue, error) {
	before, err := e.storage.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	after, err := e.storage.UpdateIssue(ctx, id, partial)
	if err != nil {
		return nil, err
	}

	changedFields := make([]string, 0, len(partial))
	for field := range partial {
		changedFields = append(changedFields, field)
	}
	updatedEvent, err := event.New(event.IssueUpdated, core.NewInput(map[string]any{
		"issueId": id.String(),
		"updates": map[string]any{
			"before":        beforeFields(before),
			"after":         map[string]any(after.Fields),
			"changedFields": changedFields,
		},
		"updatedBy": updatedBy,
	}))
	if err != nil {
		return nil, err
	}
	e.EmitEvent(updatedEvent)

	if statusChanged(before, after) {
		statusEvent, err := event.New(event.IssueStatusChanged, core.NewInput(map[string]any{
			"issueId": id.String(),
			"from":    fieldString(before, "status"),
			"to":      fieldString(after, "status"),
			"issue":   map[string]any(after.Fields),
		}))
		if err == nil {
			e.EmitEvent(statusEvent)
		}
	}
	return after, nil
}

func beforeFields(issue *storage.Issue) map[string]any {
	if issue == nil {
		return map[string]any{}
	}
	return map[string]any(issue.Fields)
}

func statusChanged(before, after *storage.Issue) bool {
	if before == nil || after == nil {
		return false
	}
	return fieldString(before, "status") != fieldString(after, "status")
}

func fieldString(issue *storage.Issue, key string) string {
	if issue == nil {
		return ""
	}
	s, _ := issue.Fields[key].(string)
	return s
}

// CreateKnowledge persists a new knowledge entry and emits
// KNOWLEDGE_CREATED (§6.1).
func (e *Engine) CreateKnowledge(
	ctx context.Context,
	partial core.Input,
	sourceWorkflow string,
	extractedFromType, extractedFromID string,
) (*storage.KnowledgeEntry, error) {
	entry, err := e.storage.CreateKnowledge(ctx, partial)
	if err != nil {
		return nil, err
	}
	ev, err := event.New(event.KnowledgeCreated, core.NewInput(map[string]any{
		"knowledgeId":    entry.ID.String(),
		"knowledge":      map[string]any(entry.Fields),
		"sourceWorkflow": sourceWorkflow,
		"extractedFrom": map[string]any{
			"type": extractedFromType,
			"id":   extractedFromID,
		},
	}))
	if err != nil {
		return nil, err
	}
	e.EmitEvent(ev)
	return entry, nil
}

// UpdateKnowledge is a thin pass-through to storage.UpdateKnowledge; the
// catalog defines no event for a knowledge update (§6.1).
func (e *Engine) UpdateKnowledge(ctx context.Context, id core.ID, partial core.Input) (*storage.KnowledgeEntry, error) {
	return e.storage.UpdateKnowledge(ctx, id, partial)
}

// SearchPond is a thin pass-through to storage.SearchPond.
func (e *Engine) SearchPond(ctx context.Context, q storage.Query) ([]storage.PondEntry, error) {
	return e.storage.SearchPond(ctx, q)
}

// SearchIssues is a thin pass-through to storage.SearchIssues.
func (e *Engine) SearchIssues(ctx context.Context, q storage.Query) ([]storage.Issue, error) {
	return e.storage.SearchIssues(ctx, q)
}

// SearchKnowledge is a thin pass-through to storage.SearchKnowledge.
func (e *Engine) SearchKnowledge(ctx context.Context, q storage.Query) ([]storage.KnowledgeEntry, error) {
	return e.storage.SearchKnowledge(ctx, q)
}

// UpdateState replaces the shared state document wholesale and persists
// it, outside of any workflow's own Result.State commit (§4.4).
func (e *Engine) UpdateState(ctx context.Context, text string) {
	e.commitState(ctx, text)
}

// AppendToState appends a line to the current state document and persists
// the result.
func (e *Engine) AppendToState(ctx context.Context, line string) {
	current := e.GetState()
	if current != "" {
		current += "\n"
	}
	e.commitState(ctx, current+line)
}
