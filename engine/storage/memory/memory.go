// Package memory provides an in-process Storage fixture, modeled on the
// teacher's resources.NewMemoryResourceStore() register/lookup idiom: a
// mutex-guarded map per collection, no persistence across process
// restarts. Used in tests and for local/demo runs (§6.2).
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/synthframe/engine/engine/core"
	"github.com/synthframe/engine/engine/storage"
)

// Store is an in-memory implementation of storage.Storage.
type Store struct {
	mu sync.RWMutex

	issues    map[core.ID]storage.Issue
	flows     map[core.ID]storage.Flow
	knowledge map[core.ID]storage.KnowledgeEntry
	pond      map[core.ID]storage.PondEntry
	schedules map[core.ID]storage.ScheduleRecord

	state   string
	hasText bool
}

// New returns an empty in-memory Store.
func New() *Store {
	return &Store{
		issues:    make(map[core.ID]storage.Issue),
		flows:     make(map[core.ID]storage.Flow),
		knowledge: make(map[core.ID]storage.KnowledgeEntry),
		pond:      make(map[core.ID]storage.PondEntry),
		schedules: make(map[core.ID]storage.ScheduleRecord),
	}
}

func newID() (core.ID, error) {
	return core.NewID()
}

func (s *Store) GetIssue(_ context.Context, id core.ID) (*storage.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.issues[id]
	if !ok {
		return nil, fmt.Errorf("memory: issue %s not found", id)
	}
	return &v, nil
}

func (s *Store) SearchIssues(_ context.Context, q storage.Query) ([]storage.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return matchOutputs(s.issues, func(i storage.Issue) core.Output { return i.Fields }, q), nil
}

func (s *Store) CreateIssue(_ context.Context, partial core.Input) (*storage.Issue, error) {
	id, err := newID()
	if err != nil {
		return nil, fmt.Errorf("memory: create issue: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v := storage.Issue{ID: id, Fields: core.Output(partial.AsMap())}
	s.issues[id] = v
	return &v, nil
}

func (s *Store) UpdateIssue(_ context.Context, id core.ID, partial core.Input) (*storage.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.issues[id]
	if !ok {
		return nil, fmt.Errorf("memory: issue %s not found", id)
	}
	merged, err := core.Merge(map[string]any(existing.Fields), partial.AsMap(), "issue")
	if err != nil {
		return nil, err
	}
	existing.Fields = core.Output(merged)
	s.issues[id] = existing
	return &existing, nil
}

func (s *Store) GetFlow(_ context.Context, id core.ID) (*storage.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.flows[id]
	if !ok {
		return nil, fmt.Errorf("memory: flow %s not found", id)
	}
	return &v, nil
}

func (s *Store) SearchFlows(_ context.Context, q storage.Query) ([]storage.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return matchOutputs(s.flows, func(f storage.Flow) core.Output { return f.Fields }, q), nil
}

func (s *Store) CreateFlow(_ context.Context, partial core.Input) (*storage.Flow, error) {
	id, err := newID()
	if err != nil {
		return nil, fmt.Errorf("memory: create flow: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v := storage.Flow{ID: id, Fields: core.Output(partial.AsMap())}
	s.flows[id] = v
	return &v, nil
}

func (s *Store) UpdateFlow(_ context.Context, id core.ID, partial core.Input) (*storage.Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.flows[id]
	if !ok {
		return nil, fmt.Errorf("memory: flow %s not found", id)
	}
	merged, err := core.Merge(map[string]any(existing.Fields), partial.AsMap(), "flow")
	if err != nil {
		return nil, err
	}
	existing.Fields = core.Output(merged)
	s.flows[id] = existing
	return &existing, nil
}

func (s *Store) SearchPond(_ context.Context, q storage.Query) ([]storage.PondEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []storage.PondEntry
	for _, e := range s.pond {
		if matchesText(e.Fields, q.Text) {
			out = append(out, e)
		}
	}
	return applyLimit(out, q.Limit), nil
}

func (s *Store) AddPondEntry(_ context.Context, partial core.Input) (*storage.PondEntry, error) {
	id, err := newID()
	if err != nil {
		return nil, fmt.Errorf("memory: add pond entry: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := storage.PondEntry{
		ID:        id,
		Fields:    core.Output(partial.AsMap()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	s.pond[id] = e
	return &e, nil
}

func (s *Store) GetKnowledge(_ context.Context, id core.ID) (*storage.KnowledgeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.knowledge[id]
	if !ok {
		return nil, fmt.Errorf("memory: knowledge %s not found", id)
	}
	return &v, nil
}

func (s *Store) SearchKnowledge(_ context.Context, q storage.Query) ([]storage.KnowledgeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return matchOutputs(s.knowledge, func(k storage.KnowledgeEntry) core.Output { return k.Fields }, q), nil
}

func (s *Store) CreateKnowledge(_ context.Context, partial core.Input) (*storage.KnowledgeEntry, error) {
	id, err := newID()
	if err != nil {
		return nil, fmt.Errorf("memory: create knowledge: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v := storage.KnowledgeEntry{ID: id, Fields: core.Output(partial.AsMap())}
	s.knowledge[id] = v
	return &v, nil
}

func (s *Store) UpdateKnowledge(
	_ context.Context,
	id core.ID,
	partial core.Input,
) (*storage.KnowledgeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.knowledge[id]
	if !ok {
		return nil, fmt.Errorf("memory: knowledge %s not found", id)
	}
	merged, err := core.Merge(map[string]any(existing.Fields), partial.AsMap(), "knowledge")
	if err != nil {
		return nil, err
	}
	existing.Fields = core.Output(merged)
	s.knowledge[id] = existing
	return &existing, nil
}

func (s *Store) GetStateDocument(_ context.Context) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.hasText, nil
}

func (s *Store) UpdateStateDocument(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = text
	s.hasText = true
	return nil
}

func (s *Store) InsertSchedule(_ context.Context, rec storage.ScheduleRecord) (*storage.ScheduleRecord, error) {
	if rec.ID == "" {
		id, err := newID()
		if err != nil {
			return nil, fmt.Errorf("memory: insert schedule: %w", err)
		}
		rec.ID = id
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[rec.ID] = rec
	return &rec, nil
}

func (s *Store) UpdateSchedule(
	_ context.Context,
	id core.ID,
	rec storage.ScheduleRecord,
) (*storage.ScheduleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[id]; !ok {
		return nil, fmt.Errorf("memory: schedule %s not found", id)
	}
	rec.ID = id
	s.schedules[id] = rec
	return &rec, nil
}

func (s *Store) SearchSchedules(_ context.Context, f storage.ScheduleFilter) ([]storage.ScheduleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []storage.ScheduleRecord
	for _, rec := range s.schedules {
		if f.Status != "" && rec.Status != f.Status {
			continue
		}
		if f.DedupeKey != "" && rec.DedupeKey != f.DedupeKey {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func matchesText(fields core.Output, text string) bool {
	if text == "" {
		return true
	}
	needle := strings.ToLower(text)
	for _, v := range fields {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

func applyLimit[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func matchOutputs[T any](
	m map[core.ID]T,
	fields func(T) core.Output,
	q storage.Query,
) []T {
	var out []T
	for _, v := range m {
		if matchesText(fields(v), q.Text) {
			out = append(out, v)
		}
	}
	return applyLimit(out, q.Limit)
}
