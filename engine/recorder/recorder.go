// Package recorder implements the per-execution structured trace buffer
// (§3.7, §4.5): an append-only sequence of RecorderEntry values the engine
// attaches to each workflow execution and is free to sink elsewhere
// (console, persistent log) outside the workflow's view.
package recorder

import (
	"sync"
	"time"

	"github.com/synthframe/engine/engine/core"
	"github.com/synthframe/engine/pkg/logger"
)

// EntryType is the closed set of trace entry kinds (§3.7).
type EntryType string

const (
	Input   EntryType = "input"
	Output  EntryType = "output"
	ErrorT  EntryType = "error"
	DBQuery EntryType = "db_query"
	AICall  EntryType = "ai_call"
	Info    EntryType = "info"
	Debug   EntryType = "debug"
	Warn    EntryType = "warn"
)

// Entry is one append-only trace record (§3.7).
type Entry struct {
	ExecutionID  string
	WorkflowName string
	Type         EntryType
	Timestamp    time.Time
	Data         any
}

// Sink receives entries as they are recorded, in addition to the in-memory
// buffer; used to fan traces out to a console or persistent log.
type Sink func(Entry)

// Recorder is an opaque per-execution handle (§4.5). The zero value is not
// usable; construct with New.
type Recorder struct {
	mu           sync.Mutex
	executionID  string
	workflowName string
	buffer       []Entry
	sinks        []Sink
	closed       bool
}

// New returns a Recorder scoped to executionID/workflowName, captured once
// at construction and stamped on every entry.
func New(executionID, workflowName string, sinks ...Sink) *Recorder {
	return &Recorder{
		executionID:  executionID,
		workflowName: workflowName,
		sinks:        sinks,
	}
}

// Record appends a new Entry with an auto-assigned timestamp. Data that may
// contain secrets (errors, raw driver responses) should be pre-redacted by
// the caller via core.RedactString/core.RedactError; Record does not redact
// on the caller's behalf since it does not know the shape of data.
func (r *Recorder) Record(typ EntryType, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	entry := Entry{
		ExecutionID:  r.executionID,
		WorkflowName: r.workflowName,
		Type:         typ,
		Timestamp:    time.Now().UTC(),
		Data:         data,
	}
	r.buffer = append(r.buffer, entry)
	for _, sink := range r.sinks {
		sink(entry)
	}
}

// RecordError is a convenience wrapper that redacts err before recording it.
func (r *Recorder) RecordError(err error) {
	r.Record(ErrorT, core.RedactError(err))
}

// GetBuffer returns a copy of the entries recorded so far.
func (r *Recorder) GetBuffer() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.buffer))
	copy(out, r.buffer)
	return out
}

// ClearBuffer drains the in-memory buffer without affecting sinks already
// notified.
func (r *Recorder) ClearBuffer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffer = nil
}

// Close releases the recorder; further Record calls are no-ops.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

// LoggerSink adapts a logger.Logger into a Sink, emitting one structured
// line per entry at a level derived from its EntryType.
func LoggerSink(log logger.Logger) Sink {
	return func(e Entry) {
		fields := []any{
			"execution_id", e.ExecutionID,
			"workflow", e.WorkflowName,
			"entry_type", string(e.Type),
			"data", e.Data,
		}
		switch e.Type {
		case ErrorT:
			log.Error("workflow trace", fields...)
		case Warn:
			log.Warn("workflow trace", fields...)
		case Debug:
			log.Debug("workflow trace", fields...)
		default:
			log.Info("workflow trace", fields...)
		}
	}
}
