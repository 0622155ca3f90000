package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/synthframe/engine/engine/core"
	"github.com/synthframe/engine/engine/storage"
)

// Repo implements storage.Storage against the tables created by
// migrations/00001_init.sql.
type Repo struct {
	pool *pgxpool.Pool
	qb   sq.StatementBuilderType
}

// NewRepo returns a storage.Storage backed by pool.
func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool, qb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

type entityRow struct {
	ID     string `db:"id"`
	Fields []byte `db:"fields"`
}

func (r *Repo) getEntity(ctx context.Context, table string, id core.ID) (*entityRow, error) {
	sqlStr, args, err := r.qb.Select("id", "fields").From(table).Where(sq.Eq{"id": string(id)}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres: build select %s: %w", table, err)
	}
	var row entityRow
	if err := scanOne(ctx, r.pool, &row, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("postgres: get %s %s: %w", table, id, err)
	}
	return &row, nil
}

func (r *Repo) searchEntities(ctx context.Context, table string, q storage.Query) ([]entityRow, error) {
	builder := r.qb.Select("id", "fields").From(table)
	if q.Text != "" {
		builder = builder.Where("fields::text ILIKE ?", "%"+q.Text+"%")
	}
	if q.Limit > 0 {
		builder = builder.Limit(uint64(q.Limit))
	}
	sqlStr, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres: build search %s: %w", table, err)
	}
	var rows []entityRow
	if err := scanAll(ctx, r.pool, &rows, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("postgres: search %s: %w", table, err)
	}
	return rows, nil
}

func (r *Repo) createEntity(ctx context.Context, table string, partial core.Input) (*entityRow, error) {
	id, err := core.NewID()
	if err != nil {
		return nil, fmt.Errorf("postgres: new id: %w", err)
	}
	fields, err := ToJSONB(partial.AsMap())
	if err != nil {
		return nil, err
	}
	sqlStr, args, err := r.qb.Insert(table).
		Columns("id", "fields").
		Values(string(id), fields).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres: build insert %s: %w", table, err)
	}
	if _, err := r.pool.Exec(ctx, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("postgres: insert %s: %w", table, err)
	}
	return &entityRow{ID: string(id), Fields: fields}, nil
}

func (r *Repo) updateEntity(ctx context.Context, table string, id core.ID, partial core.Input) (*entityRow, error) {
	existing, err := r.getEntity(ctx, table, id)
	if err != nil {
		return nil, err
	}
	current, err := decodeFields(existing.Fields)
	if err != nil {
		return nil, err
	}
	merged, err := current.Merge(core.Output(partial.AsMap()))
	if err != nil {
		return nil, err
	}
	fields, err := ToJSONB(merged.AsMap())
	if err != nil {
		return nil, err
	}
	sqlStr, args, err := r.qb.Update(table).
		Set("fields", fields).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": string(id)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres: build update %s: %w", table, err)
	}
	if _, err := r.pool.Exec(ctx, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("postgres: update %s: %w", table, err)
	}
	return &entityRow{ID: string(id), Fields: fields}, nil
}

func decodeFields(data []byte) (core.Output, error) {
	if data == nil {
		return core.Output{}, nil
	}
	var out core.Output
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("postgres: decode fields: %w", err)
	}
	if out == nil {
		out = core.Output{}
	}
	return out, nil
}

func rowToOutput(row *entityRow) (core.Output, error) {
	return decodeFields(row.Fields)
}

func (r *Repo) GetIssue(ctx context.Context, id core.ID) (*storage.Issue, error) {
	row, err := r.getEntity(ctx, "issues", id)
	if err != nil {
		return nil, err
	}
	fields, err := rowToOutput(row)
	if err != nil {
		return nil, err
	}
	return &storage.Issue{ID: core.ID(row.ID), Fields: fields}, nil
}

func (r *Repo) SearchIssues(ctx context.Context, q storage.Query) ([]storage.Issue, error) {
	rows, err := r.searchEntities(ctx, "issues", q)
	if err != nil {
		return nil, err
	}
	out := make([]storage.Issue, 0, len(rows))
	for i := range rows {
		fields, err := rowToOutput(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, storage.Issue{ID: core.ID(rows[i].ID), Fields: fields})
	}
	return out, nil
}

func (r *Repo) CreateIssue(ctx context.Context, partial core.Input) (*storage.Issue, error) {
	row, err := r.createEntity(ctx, "issues", partial)
	if err != nil {
		return nil, err
	}
	fields, err := rowToOutput(row)
	if err != nil {
		return nil, err
	}
	return &storage.Issue{ID: core.ID(row.ID), Fields: fields}, nil
}

func (r *Repo) UpdateIssue(ctx context.Context, id core.ID, partial core.Input) (*storage.Issue, error) {
	row, err := r.updateEntity(ctx, "issues", id, partial)
	if err != nil {
		return nil, err
	}
	fields, err := rowToOutput(row)
	if err != nil {
		return nil, err
	}
	return &storage.Issue{ID: id, Fields: fields}, nil
}

func (r *Repo) GetFlow(ctx context.Context, id core.ID) (*storage.Flow, error) {
	row, err := r.getEntity(ctx, "flows", id)
	if err != nil {
		return nil, err
	}
	fields, err := rowToOutput(row)
	if err != nil {
		return nil, err
	}
	return &storage.Flow{ID: core.ID(row.ID), Fields: fields}, nil
}

func (r *Repo) SearchFlows(ctx context.Context, q storage.Query) ([]storage.Flow, error) {
	rows, err := r.searchEntities(ctx, "flows", q)
	if err != nil {
		return nil, err
	}
	out := make([]storage.Flow, 0, len(rows))
	for i := range rows {
		fields, err := rowToOutput(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, storage.Flow{ID: core.ID(rows[i].ID), Fields: fields})
	}
	return out, nil
}

func (r *Repo) CreateFlow(ctx context.Context, partial core.Input) (*storage.Flow, error) {
	row, err := r.createEntity(ctx, "flows", partial)
	if err != nil {
		return nil, err
	}
	fields, err := rowToOutput(row)
	if err != nil {
		return nil, err
	}
	return &storage.Flow{ID: core.ID(row.ID), Fields: fields}, nil
}

func (r *Repo) UpdateFlow(ctx context.Context, id core.ID, partial core.Input) (*storage.Flow, error) {
	row, err := r.updateEntity(ctx, "flows", id, partial)
	if err != nil {
		return nil, err
	}
	fields, err := rowToOutput(row)
	if err != nil {
		return nil, err
	}
	return &storage.Flow{ID: id, Fields: fields}, nil
}

func (r *Repo) SearchPond(ctx context.Context, q storage.Query) ([]storage.PondEntry, error) {
	rows, err := r.searchEntities(ctx, "pond_entries", q)
	if err != nil {
		return nil, err
	}
	out := make([]storage.PondEntry, 0, len(rows))
	for i := range rows {
		fields, err := rowToOutput(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, storage.PondEntry{ID: core.ID(rows[i].ID), Fields: fields})
	}
	return out, nil
}

func (r *Repo) AddPondEntry(ctx context.Context, partial core.Input) (*storage.PondEntry, error) {
	row, err := r.createEntity(ctx, "pond_entries", partial)
	if err != nil {
		return nil, err
	}
	fields, err := rowToOutput(row)
	if err != nil {
		return nil, err
	}
	return &storage.PondEntry{ID: core.ID(row.ID), Fields: fields, Timestamp: time.Now().UTC().Format(time.RFC3339)}, nil
}

func (r *Repo) GetKnowledge(ctx context.Context, id core.ID) (*storage.KnowledgeEntry, error) {
	row, err := r.getEntity(ctx, "knowledge_entries", id)
	if err != nil {
		return nil, err
	}
	fields, err := rowToOutput(row)
	if err != nil {
		return nil, err
	}
	return &storage.KnowledgeEntry{ID: core.ID(row.ID), Fields: fields}, nil
}

func (r *Repo) SearchKnowledge(ctx context.Context, q storage.Query) ([]storage.KnowledgeEntry, error) {
	rows, err := r.searchEntities(ctx, "knowledge_entries", q)
	if err != nil {
		return nil, err
	}
	out := make([]storage.KnowledgeEntry, 0, len(rows))
	for i := range rows {
		fields, err := rowToOutput(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, storage.KnowledgeEntry{ID: core.ID(rows[i].ID), Fields: fields})
	}
	return out, nil
}

func (r *Repo) CreateKnowledge(ctx context.Context, partial core.Input) (*storage.KnowledgeEntry, error) {
	row, err := r.createEntity(ctx, "knowledge_entries", partial)
	if err != nil {
		return nil, err
	}
	fields, err := rowToOutput(row)
	if err != nil {
		return nil, err
	}
	return &storage.KnowledgeEntry{ID: core.ID(row.ID), Fields: fields}, nil
}

func (r *Repo) UpdateKnowledge(ctx context.Context, id core.ID, partial core.Input) (*storage.KnowledgeEntry, error) {
	row, err := r.updateEntity(ctx, "knowledge_entries", id, partial)
	if err != nil {
		return nil, err
	}
	fields, err := rowToOutput(row)
	if err != nil {
		return nil, err
	}
	return &storage.KnowledgeEntry{ID: id, Fields: fields}, nil
}

func (r *Repo) GetStateDocument(ctx context.Context) (string, bool, error) {
	sqlStr, args, err := r.qb.Select("text").From("state_document").Where(sq.Eq{"id": 1}).ToSql()
	if err != nil {
		return "", false, fmt.Errorf("postgres: build get state: %w", err)
	}
	var row struct {
		Text string `db:"text"`
	}
	if err := scanOne(ctx, r.pool, &row, sqlStr, args...); err != nil {
		return "", false, nil //nolint:nilerr // absent row means "no state yet" (§3.3), not an error
	}
	return row.Text, true, nil
}

func (r *Repo) UpdateStateDocument(ctx context.Context, text string) error {
	sqlStr, args, err := r.qb.Insert("state_document").
		Columns("id", "text", "updated_at").
		Values(1, text, time.Now().UTC()).
		Suffix("ON CONFLICT (id) DO UPDATE SET text = EXCLUDED.text, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("postgres: build update state: %w", err)
	}
	if _, err := r.pool.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("postgres: update state: %w", err)
	}
	return nil
}

type scheduleRow struct {
	ID              string     `db:"id"`
	OriginalRequest string     `db:"original_request"`
	Payload         []byte     `db:"payload"`
	NextRun         *time.Time `db:"next_run"`
	LastRun         *time.Time `db:"last_run"`
	Pattern         *string    `db:"pattern"`
	Occurrences     int        `db:"occurrences"`
	MaxOccurrences  *int       `db:"max_occurrences"`
	DedupeKey       *string    `db:"dedupe_key"`
	CorrelationID   *string    `db:"correlation_id"`
	Status          string     `db:"status"`
}

func (r *Repo) InsertSchedule(ctx context.Context, rec storage.ScheduleRecord) (*storage.ScheduleRecord, error) {
	if rec.ID == "" {
		id, err := core.NewID()
		if err != nil {
			return nil, fmt.Errorf("postgres: new schedule id: %w", err)
		}
		rec.ID = id
	}
	payload, err := ToJSONB(rec.Payload.AsMap())
	if err != nil {
		return nil, err
	}
	sqlStr, args, err := r.qb.Insert("schedules").
		Columns(
			"id", "original_request", "payload", "next_run", "pattern",
			"max_occurrences", "dedupe_key", "correlation_id", "status",
		).
		Values(
			string(rec.ID), rec.OriginalRequest, payload, nullableTime(rec.NextRun), nullableString(rec.Pattern),
			nullableIntZero(rec.MaxOccurrences), nullableString(rec.DedupeKey), nullableString(rec.CorrelationID),
			statusOr(rec.Status, "active"),
		).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres: build insert schedule: %w", err)
	}
	if _, err := r.pool.Exec(ctx, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("postgres: insert schedule: %w", err)
	}
	return &rec, nil
}

func (r *Repo) UpdateSchedule(
	ctx context.Context,
	id core.ID,
	rec storage.ScheduleRecord,
) (*storage.ScheduleRecord, error) {
	payload, err := ToJSONB(rec.Payload.AsMap())
	if err != nil {
		return nil, err
	}
	sqlStr, args, err := r.qb.Update("schedules").
		Set("payload", payload).
		Set("next_run", nullableTime(rec.NextRun)).
		Set("last_run", nullableTime(rec.LastRun)).
		Set("pattern", nullableString(rec.Pattern)).
		Set("occurrences", rec.Occurrences).
		Set("status", statusOr(rec.Status, "active")).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": string(id)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres: build update schedule: %w", err)
	}
	if _, err := r.pool.Exec(ctx, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("postgres: update schedule: %w", err)
	}
	rec.ID = id
	return &rec, nil
}

func (r *Repo) SearchSchedules(ctx context.Context, f storage.ScheduleFilter) ([]storage.ScheduleRecord, error) {
	builder := r.qb.Select(
		"id", "original_request", "payload", "next_run", "last_run", "pattern",
		"occurrences", "max_occurrences", "dedupe_key", "correlation_id", "status",
	).From("schedules")
	if f.Status != "" {
		builder = builder.Where(sq.Eq{"status": f.Status})
	}
	if f.DedupeKey != "" {
		builder = builder.Where(sq.Eq{"dedupe_key": f.DedupeKey})
	}
	sqlStr, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres: build search schedules: %w", err)
	}
	var rows []scheduleRow
	if err := scanAll(ctx, r.pool, &rows, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("postgres: search schedules: %w", err)
	}
	out := make([]storage.ScheduleRecord, 0, len(rows))
	for _, row := range rows {
		fields, err := decodeFields(row.Payload)
		if err != nil {
			return nil, err
		}
		payload := core.Input(fields)
		out = append(out, storage.ScheduleRecord{
			ID:              core.ID(row.ID),
			OriginalRequest: row.OriginalRequest,
			Payload:         payload,
			NextRun:         formatTimePtr(row.NextRun),
			LastRun:         formatTimePtr(row.LastRun),
			Pattern:         stringOrEmpty(row.Pattern),
			Occurrences:     row.Occurrences,
			DedupeKey:       stringOrEmpty(row.DedupeKey),
			CorrelationID:   stringOrEmpty(row.CorrelationID),
			Status:          row.Status,
		})
	}
	return out, nil
}

func nullableTime(s string) any {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return t
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableIntZero(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

func statusOr(status, fallback string) string {
	if status == "" {
		return fallback
	}
	return status
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
