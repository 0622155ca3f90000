// Package scheduler implements the Scheduler (§4.6): it turns a
// natural-language recurrence/time request into concrete absolute instants
// via the LLM driver, and emits a SCHEDULE_TRIGGERED event at each one.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"github.com/synthframe/engine/engine/core"
	"github.com/synthframe/engine/engine/driver"
	"github.com/synthframe/engine/engine/event"
	"github.com/synthframe/engine/engine/infra/cache"
	"github.com/synthframe/engine/engine/metrics"
	"github.com/synthframe/engine/engine/storage"
	"github.com/synthframe/engine/pkg/logger"
)

// dedupeLockTTL bounds how long a dedupe-key lock is held while the
// scheduler cancels the prior schedule and persists the new one; it only
// needs to outlive one InsertSchedule/UpdateSchedule round trip.
const dedupeLockTTL = 10 * time.Second

// Schedule statuses (§3.6).
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// defaultSweepInterval is the global sweep period (§4.6: "a global sweep
// runs every 60s").
const defaultSweepInterval = 60 * time.Second

// defaultMaxTimerDelay is T_max: the longest delay we arm a one-shot timer
// for directly. Schedules further out than this rely on the sweep instead.
const defaultMaxTimerDelay = 30 * 24 * time.Hour

// Emitter publishes a SCHEDULE_TRIGGERED event back into the engine. It is
// a plain function type rather than an interface so a dispatcher.Engine can
// be adapted with a one-line closure (EmitEvent takes an optional band).
type Emitter func(event.SystemEvent)

// Options configures a single Schedule call (§4.6).
type Options struct {
	Timezone       *time.Location
	MaxOccurrences int
	DedupeKey      string
	CorrelationID  string
}

// Result is what Schedule returns to its caller.
type Result struct {
	ScheduleID     core.ID
	Interpretation string
	NextRun        time.Time
	Pattern        string
}

var validate = validator.New()

// cronParser accepts standard 5-field cron expressions plus the "@every"
// and friends descriptors robfig/cron supports.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler owns the active-schedule cache, its timers, and the sweep
// loop. The zero value is not usable; construct with New.
type Scheduler struct {
	storage      storage.Storage
	createDriver driver.Factory
	emit         Emitter
	log          logger.Logger
	now          func() time.Time
	timezone     *time.Location
	maxTimerWait time.Duration
	sweepEvery   time.Duration
	dedupeLock   cache.LockManager
	metrics      *metrics.Metrics

	mu      sync.Mutex
	records map[core.ID]storage.ScheduleRecord
	timers  map[core.ID]*time.Timer

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Option configures a Scheduler at construction.
type Option func(*Scheduler)

// WithClock overrides time.Now, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithTimezone sets the default timezone used when Options.Timezone is nil.
func WithTimezone(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.timezone = loc
		}
	}
}

// WithMaxTimerDelay overrides T_max, the longest delay armed as a one-shot
// timer before a schedule is left to the sweep instead.
func WithMaxTimerDelay(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.maxTimerWait = d
		}
	}
}

// WithSweepInterval overrides the global sweep period.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.sweepEvery = d
		}
	}
}

// WithLogger overrides the scheduler's logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

// WithDedupeLock attaches a distributed lock manager guarding the
// cancel-then-create sequence a dedupeKey triggers, so two engine
// processes sharing the same storage backend never both win the race and
// leave two active schedules under one dedupeKey. Without one, dedupe is
// only safe within a single process.
func WithDedupeLock(lock cache.LockManager) Option {
	return func(s *Scheduler) { s.dedupeLock = lock }
}

// WithMetrics attaches a metrics.Metrics instrumentation bundle. Without
// one, the scheduler runs uninstrumented.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// New builds a Scheduler. st and emit must be non-nil; createDriver may be
// nil only if Schedule is never called.
func New(st storage.Storage, createDriver driver.Factory, emit Emitter, opts ...Option) *Scheduler {
	s := &Scheduler{
		storage:      st,
		createDriver: createDriver,
		emit:         emit,
		log:          logger.NewLogger(nil),
		now:          time.Now,
		timezone:     time.UTC,
		maxTimerWait: defaultMaxTimerDelay,
		sweepEvery:   defaultSweepInterval,
		records:      make(map[core.ID]storage.ScheduleRecord),
		timers:       make(map[core.ID]*time.Timer),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start loads persisted active schedules, re-arms their timers (or leaves
// them to the sweep), and starts the sweep loop (§4.6: "on startup, the
// scheduler loads active schedules and re-arms timers/adds to the sweep
// set").
func (s *Scheduler) Start(ctx context.Context) error {
	active, err := s.storage.SearchSchedules(ctx, storage.ScheduleFilter{Status: StatusActive})
	if err != nil {
		return core.NewError(err, "SCHEDULER_START_FAILED", map[string]any{"reason": "could not load active schedules"})
	}

	s.mu.Lock()
	for _, rec := range active {
		s.records[rec.ID] = rec
	}
	s.mu.Unlock()

	for _, rec := range active {
		s.arm(rec.ID)
	}
	s.reportActiveCount()

	s.wg.Add(1)
	go s.sweepLoop(ctx)
	return nil
}

// Stop halts the sweep loop and every armed timer. In-flight fires are not
// interrupted.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *Scheduler) sweepLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep fires any active schedule whose nextRun has passed and which has
// no live timer (§4.6: "a global sweep runs every 60s and fires any
// schedule whose nextRun has passed and which has no live timer").
func (s *Scheduler) sweep(ctx context.Context) {
	now := s.now()
	var due []core.ID

	s.mu.Lock()
	for id, rec := range s.records {
		if rec.Status != StatusActive {
			continue
		}
		if _, hasTimer := s.timers[id]; hasTimer {
			continue
		}
		next, err := time.Parse(time.RFC3339, rec.NextRun)
		if err != nil {
			continue
		}
		if !next.After(now) {
			due = append(due, id)
		}
	}
	s.mu.Unlock()

	for _, id := range due {
		s.fire(ctx, id)
	}
}

// Schedule interprets request via the LLM driver and arms a schedule for
// the resulting nextRun (§4.6).
func (s *Scheduler) Schedule(
	ctx context.Context,
	request string,
	payloadTemplate core.Input,
	opts Options,
) (Result, error) {
	tz := opts.Timezone
	if tz == nil {
		tz = s.timezone
	}

	if opts.DedupeKey != "" {
		unlock, err := s.acquireDedupeLock(ctx, opts.DedupeKey)
		if err != nil {
			return Result{}, core.NewError(err, "SCHEDULE_DEDUPE_LOCK_FAILED", map[string]any{"dedupeKey": opts.DedupeKey})
		}
		defer unlock()
		s.cancelByDedupeKey(ctx, opts.DedupeKey)
	}

	now := s.now()
	interp, err := s.interpret(ctx, request, now, tz)
	if err != nil {
		return Result{}, core.NewError(err, "SCHEDULE_INTERPRETATION_FAILED", map[string]any{"request": request})
	}

	rec := storage.ScheduleRecord{
		OriginalRequest: request,
		Payload:         payloadTemplate,
		NextRun:         interp.Next.Format(time.RFC3339),
		Pattern:         interp.Pattern,
		Occurrences:     0,
		MaxOccurrences:  opts.MaxOccurrences,
		DedupeKey:       opts.DedupeKey,
		CorrelationID:   opts.CorrelationID,
		Status:          StatusActive,
		CreatedAt:       now.Format(time.RFC3339),
		UpdatedAt:       now.Format(time.RFC3339),
	}
	saved, err := s.storage.InsertSchedule(ctx, rec)
	if err != nil {
		return Result{}, core.NewError(err, "SCHEDULE_PERSIST_FAILED", map[string]any{"request": request})
	}

	s.mu.Lock()
	s.records[saved.ID] = *saved
	s.mu.Unlock()
	s.reportActiveCount()

	if !interp.Next.After(now) {
		// Degenerate case: the first interpretation already yielded a past
		// instant. Fire immediately, then let the normal path continue
		// (§4.6).
		s.log.Warn("schedule interpretation yielded a past instant, firing immediately",
			"scheduleId", saved.ID, "request", request, "next", interp.Next)
		s.fire(ctx, saved.ID)
	} else {
		s.arm(saved.ID)
	}

	return Result{
		ScheduleID:     saved.ID,
		Interpretation: interp.Interpretation,
		NextRun:        interp.Next,
		Pattern:        interp.Pattern,
	}, nil
}

// Cancel marks scheduleId cancelled and stops its timer, returning false
// if it is not a known active schedule.
func (s *Scheduler) Cancel(ctx context.Context, scheduleID core.ID) bool {
	s.mu.Lock()
	rec, ok := s.records[scheduleID]
	if !ok || rec.Status != StatusActive {
		s.mu.Unlock()
		return false
	}
	if t, exists := s.timers[scheduleID]; exists {
		t.Stop()
		delete(s.timers, scheduleID)
	}
	rec.Status = StatusCancelled
	rec.UpdatedAt = s.now().Format(time.RFC3339)
	s.records[scheduleID] = rec
	s.mu.Unlock()
	s.reportActiveCount()

	if _, err := s.storage.UpdateSchedule(ctx, scheduleID, rec); err != nil {
		s.log.Error("failed to persist schedule cancellation", "scheduleId", scheduleID, "error", err)
	}
	return true
}

// acquireDedupeLock takes the distributed lock guarding dedupeKey, if one
// is configured, returning a release func. With no lock manager attached,
// it is a no-op: dedupe is then only safe within this one process.
func (s *Scheduler) acquireDedupeLock(ctx context.Context, dedupeKey string) (func(), error) {
	if s.dedupeLock == nil {
		return func() {}, nil
	}
	lock, err := s.dedupeLock.Acquire(ctx, "schedule:dedupe:"+dedupeKey, dedupeLockTTL)
	if err != nil {
		return nil, fmt.Errorf("scheduler: acquiring dedupe lock: %w", err)
	}
	return func() {
		if err := lock.Release(context.Background()); err != nil {
			s.log.Warn("failed to release dedupe lock", "dedupeKey", dedupeKey, "error", err)
		}
	}, nil
}

func (s *Scheduler) cancelByDedupeKey(ctx context.Context, dedupeKey string) {
	s.mu.Lock()
	var ids []core.ID
	for id, rec := range s.records {
		if rec.Status == StatusActive && rec.DedupeKey == dedupeKey {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.Cancel(ctx, id)
	}
}

// List is a thin pass-through to storage.SearchSchedules (§4.6).
func (s *Scheduler) List(ctx context.Context, filter storage.ScheduleFilter) ([]storage.ScheduleRecord, error) {
	return s.storage.SearchSchedules(ctx, filter)
}

// arm schedules a one-shot timer for id's current nextRun, provided it
// falls within T_max; schedules further out are left to the sweep (§4.6).
func (s *Scheduler) arm(id core.ID) {
	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok || rec.Status != StatusActive {
		s.mu.Unlock()
		return
	}
	if t, exists := s.timers[id]; exists {
		t.Stop()
		delete(s.timers, id)
	}
	next, err := time.Parse(time.RFC3339, rec.NextRun)
	if err != nil {
		s.mu.Unlock()
		s.log.Error("schedule has unparsable nextRun, relying on sweep", "scheduleId", id, "nextRun", rec.NextRun)
		return
	}
	delay := next.Sub(s.now())
	if delay > s.maxTimerWait {
		s.mu.Unlock()
		return
	}
	if delay < 0 {
		delay = 0
	}
	s.timers[id] = time.AfterFunc(delay, func() { s.fire(context.Background(), id) })
	s.mu.Unlock()
}

// fire emits SCHEDULE_TRIGGERED for id, advances or completes the
// schedule, and persists the result (§4.6). Execution failures are logged
// and swallowed; the schedule continues to advance regardless.
func (s *Scheduler) fire(ctx context.Context, id core.ID) {
	s.mu.Lock()
	rec, ok := s.records[id]
	if t, exists := s.timers[id]; exists {
		delete(s.timers, id)
		t.Stop()
	}
	s.mu.Unlock()
	if !ok || rec.Status != StatusActive {
		return
	}

	now := s.now()
	payload := core.NewInput(rec.Payload.AsMap())
	payload.Set("scheduleId", id.String())
	payload.Set("originalRequest", rec.OriginalRequest)
	ev, err := event.New(event.ScheduleTriggered, payload)
	if err != nil {
		s.log.Error("schedule fired but event construction failed, skipping emission",
			"scheduleId", id, "error", err)
	} else {
		s.emit(ev)
		if s.metrics != nil {
			s.metrics.RecordScheduleFire()
		}
	}

	rec.Occurrences++
	rec.LastRun = now.Format(time.RFC3339)
	rec.UpdatedAt = now.Format(time.RFC3339)

	if rec.Pattern != "" && (rec.MaxOccurrences <= 0 || rec.Occurrences < rec.MaxOccurrences) {
		next, err := nextFromPattern(rec.Pattern, now)
		if err != nil {
			s.log.Error("failed to advance schedule pattern, marking completed",
				"scheduleId", id, "pattern", rec.Pattern, "error", err)
			rec.Status = StatusCompleted
		} else {
			rec.NextRun = next.Format(time.RFC3339)
		}
	} else {
		rec.Status = StatusCompleted
	}

	s.mu.Lock()
	s.records[id] = rec
	s.mu.Unlock()
	s.reportActiveCount()

	if _, err := s.storage.UpdateSchedule(ctx, id, rec); err != nil {
		s.log.Error("failed to persist schedule after firing", "scheduleId", id, "error", err)
	}

	if rec.Status == StatusActive {
		s.arm(id)
	}
}

func (s *Scheduler) reportActiveCount() {
	if s.metrics == nil {
		return
	}
	s.mu.Lock()
	n := 0
	for _, rec := range s.records {
		if rec.Status == StatusActive {
			n++
		}
	}
	s.mu.Unlock()
	s.metrics.SetActiveSchedules(n)
}

func nextFromPattern(pattern string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(pattern)
	if err != nil {
		return time.Time{}, fmt.Errorf("scheduler: parsing pattern %q: %w", pattern, err)
	}
	return sched.Next(after), nil
}

type interpretationPayload struct {
	Next           string `json:"next" validate:"required"`
	Pattern        string `json:"pattern,omitempty"`
	Interpretation string `json:"interpretation" validate:"required"`
}

type interpretation struct {
	Next           time.Time
	Pattern        string
	Interpretation string
}

// interpret invokes the LLM driver with a structured-output prompt asking
// for the next absolute instant, an optional recurrence pattern expressed
// as standard cron syntax, and a human-readable interpretation (§4.6).
func (s *Scheduler) interpret(
	ctx context.Context,
	request string,
	now time.Time,
	tz *time.Location,
) (interpretation, error) {
	if s.createDriver == nil {
		return interpretation{}, fmt.Errorf("scheduler: no driver factory configured")
	}
	d, err := s.createDriver(driver.Criteria{RequiredCapabilities: []string{"structured-output"}})
	if err != nil {
		return interpretation{}, fmt.Errorf("scheduler: acquiring driver: %w", err)
	}

	prompt := fmt.Sprintf(
		"current time is %s, timezone is %s, request is %q; "+
			"produce {next: ISO-8601 instant, pattern?: standard 5-field cron "+
			"expression if recurring, interpretation: one-sentence explanation}",
		now.In(tz).Format(time.RFC3339), tz.String(), request,
	)
	res, err := d.Query(ctx, prompt, driver.QueryOptions{})
	if err != nil {
		return interpretation{}, fmt.Errorf("scheduler: driver query: %w", err)
	}
	if res.StructuredOutput == nil {
		return interpretation{}, fmt.Errorf("scheduler: driver returned no structured output")
	}

	raw, err := json.Marshal(res.StructuredOutput)
	if err != nil {
		return interpretation{}, fmt.Errorf("scheduler: marshaling structured output: %w", err)
	}
	var payload interpretationPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return interpretation{}, fmt.Errorf("scheduler: decoding structured output: %w", err)
	}
	if err := validate.Struct(&payload); err != nil {
		return interpretation{}, fmt.Errorf("scheduler: invalid structured output: %w", err)
	}

	next, err := time.Parse(time.RFC3339, payload.Next)
	if err != nil {
		return interpretation{}, fmt.Errorf("scheduler: parsing next %q: %w", payload.Next, err)
	}

	return interpretation{Next: next, Pattern: payload.Pattern, Interpretation: payload.Interpretation}, nil
}
