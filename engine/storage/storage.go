// Package storage defines the typed CRUD+search surface the engine
// consumes (§6.2). Concrete backends live in subpackages (memory,
// postgres); the engine itself depends only on this interface.
package storage

import (
	"context"

	"github.com/synthframe/engine/engine/core"
)

// Query is a free-text search query; backends may interpret it however
// they choose (full-text, vector similarity, …) — the engine is agnostic
// (§6.2).
type Query struct {
	Text  string
	Limit int
}

// Issue is an opaque domain entity persisted by storage; the engine never
// interprets its fields.
type Issue struct {
	ID     core.ID
	Fields core.Output
}

// Flow is an opaque domain entity persisted by storage.
type Flow struct {
	ID     core.ID
	Fields core.Output
}

// KnowledgeEntry is an opaque domain entity persisted by storage.
type KnowledgeEntry struct {
	ID     core.ID
	Fields core.Output
}

// PondEntry is a raw ingested entry; the engine treats it as opaque.
type PondEntry struct {
	ID        core.ID
	Fields    core.Output
	Timestamp string
}

// ScheduleRecord is the persisted form of a Schedule (§3.6), used only by
// the scheduler.
type ScheduleRecord struct {
	ID              core.ID
	OriginalRequest string
	Payload         core.Input
	NextRun         string
	LastRun         string
	Pattern         string
	Occurrences     int
	MaxOccurrences  int
	DedupeKey       string
	CorrelationID   string
	Status          string
	CreatedAt       string
	UpdatedAt       string
}

// ScheduleFilter narrows Schedules.Search.
type ScheduleFilter struct {
	Status    string
	DedupeKey string
}

// Storage is the engine's view of the vector/document store (§6.2). All
// operations may fail with a recoverable error; the engine assumes no
// read-your-writes consistency and re-reads when it needs a fresh value.
type Storage interface {
	GetIssue(ctx context.Context, id core.ID) (*Issue, error)
	SearchIssues(ctx context.Context, q Query) ([]Issue, error)
	CreateIssue(ctx context.Context, partial core.Input) (*Issue, error)
	UpdateIssue(ctx context.Context, id core.ID, partial core.Input) (*Issue, error)

	GetFlow(ctx context.Context, id core.ID) (*Flow, error)
	SearchFlows(ctx context.Context, q Query) ([]Flow, error)
	CreateFlow(ctx context.Context, partial core.Input) (*Flow, error)
	UpdateFlow(ctx context.Context, id core.ID, partial core.Input) (*Flow, error)

	SearchPond(ctx context.Context, q Query) ([]PondEntry, error)
	AddPondEntry(ctx context.Context, partial core.Input) (*PondEntry, error)

	GetKnowledge(ctx context.Context, id core.ID) (*KnowledgeEntry, error)
	SearchKnowledge(ctx context.Context, q Query) ([]KnowledgeEntry, error)
	CreateKnowledge(ctx context.Context, partial core.Input) (*KnowledgeEntry, error)
	UpdateKnowledge(ctx context.Context, id core.ID, partial core.Input) (*KnowledgeEntry, error)

	GetStateDocument(ctx context.Context) (string, bool, error)
	UpdateStateDocument(ctx context.Context, text string) error

	InsertSchedule(ctx context.Context, s ScheduleRecord) (*ScheduleRecord, error)
	UpdateSchedule(ctx context.Context, id core.ID, s ScheduleRecord) (*ScheduleRecord, error)
	SearchSchedules(ctx context.Context, f ScheduleFilter) ([]ScheduleRecord, error)
}
