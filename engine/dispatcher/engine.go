// Package dispatcher implements the Engine (§4.4): the single-threaded
// cooperative event loop that pops events off a band-ordered queue,
// resolves them against a workflow registry, drains a priority workflow
// queue up to a bounded concurrency limit, and serializes all writes to
// the shared state document.
package dispatcher

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/synthframe/engine/engine/core"
	"github.com/synthframe/engine/engine/driver"
	"github.com/synthframe/engine/engine/event"
	"github.com/synthframe/engine/engine/metrics"
	"github.com/synthframe/engine/engine/queue"
	"github.com/synthframe/engine/engine/recorder"
	"github.com/synthframe/engine/engine/resolver"
	"github.com/synthframe/engine/engine/storage"
	"github.com/synthframe/engine/engine/workflow"
	"github.com/synthframe/engine/pkg/logger"
)

// defaultIdlePoll bounds how long the loop sleeps between wake signals
// when both queues are empty, so it never busy-loops (§8 boundary
// behavior: "Empty event queue: engine idles without busy-looping").
const defaultIdlePoll = 25 * time.Millisecond

// Resolver is the narrow surface dispatcher depends on from
// engine/resolver, so tests can substitute a fake.
type Resolver interface {
	Resolve(ev event.SystemEvent) resolver.Result
}

// Engine is the Engine/Dispatcher (§4.4). The zero value is not usable;
// construct with New.
type Engine struct {
	eventQueue    *event.Queue
	workflowQueue *queue.Queue
	resolver      Resolver
	storage       storage.Storage
	createDriver  driver.Factory
	log           logger.Logger
	sinks         []recorder.Sink
	metrics       *metrics.Metrics

	concurrency int
	sem         chan struct{}
	wake        chan struct{}
	execCounter uint64

	stateMu  sync.Mutex
	state    string
	hasState bool

	execWG   sync.WaitGroup // in-flight executor goroutines only
	stopCh   chan struct{}
	loopDone chan struct{}
	running  atomic.Bool
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithConcurrency sets N_concurrent (§5), the maximum number of workflows
// the engine runs in flight at once. The default is 1.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithLogger overrides the engine's logger.
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithRecorderSink attaches a sink every per-execution Recorder fans its
// entries out to, in addition to its in-memory buffer.
func WithRecorderSink(sink recorder.Sink) Option {
	return func(e *Engine) { e.sinks = append(e.sinks, sink) }
}

// WithMetrics attaches a metrics.Metrics instrumentation bundle. Without
// one, the engine runs uninstrumented.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New builds an Engine. res and st must be non-nil; createDriver may be
// nil if no registered workflow ever calls context.CreateDriver.
func New(res Resolver, st storage.Storage, createDriver driver.Factory, opts ...Option) *Engine {
	e := &Engine{
		eventQueue:    event.NewQueue(),
		workflowQueue: queue.New(),
		resolver:      res,
		storage:       st,
		createDriver:  createDriver,
		log:           logger.NewLogger(nil),
		concurrency:   1,
		wake:          make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
		loopDone:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.sem = make(chan struct{}, e.concurrency)
	return e
}

// EmitEvent pushes ev onto the event queue on band (default BandNormal if
// no band is given) and wakes the loop if it is idling.
func (e *Engine) EmitEvent(ev event.SystemEvent, band ...event.Band) {
	b := event.BandNormal
	if len(band) > 0 {
		b = band[0]
	}
	e.eventQueue.Push(b, ev)
	e.signalWake()
}

func (e *Engine) signalWake() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Start loads the persisted state document (if any) and begins the event
// loop in a background goroutine, running until ctx is canceled or Stop
// is called.
func (e *Engine) Start(ctx context.Context) error {
	text, ok, err := e.storage.GetStateDocument(ctx)
	if err != nil {
		return core.NewError(err, "ENGINE_START_FAILED", map[string]any{"reason": "could not load state document"})
	}
	e.stateMu.Lock()
	e.state = text
	e.hasState = ok
	e.stateMu.Unlock()

	e.running.Store(true)
	go func() {
		e.loop(ctx)
		close(e.loopDone)
	}()
	return nil
}

// Stop signals the loop to drain the workflow queue of pending items,
// wait for running items to finish, and exit (§5: "Stopping the engine
// drains the workflow queue of pending items, waits for running items to
// finish, then releases resources").
func (e *Engine) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}
	close(e.stopCh)
	<-e.loopDone
}

func (e *Engine) loop(ctx context.Context) {
	for {
		select {
		case <-e.stopCh:
			e.drainAndWait()
			return
		case <-ctx.Done():
			e.drainAndWait()
			return
		default:
		}

		ev, hasEvent := e.eventQueue.Pop()
		if hasEvent {
			res := e.resolver.Resolve(ev)
			for _, def := range res.Workflows {
				e.workflowQueue.Enqueue(def, ev, def.Triggers.Priority)
			}
		}

		e.drainWorkflowQueue(ctx)
		e.reportQueueDepths()

		if !hasEvent && e.eventQueue.Len() == 0 && e.workflowQueue.Size() == 0 {
			select {
			case <-e.wake:
			case <-time.After(defaultIdlePoll):
			case <-e.stopCh:
				e.drainAndWait()
				return
			case <-ctx.Done():
				e.drainAndWait()
				return
			}
		}
	}
}

func (e *Engine) reportQueueDepths() {
	if e.metrics == nil {
		return
	}
	high, normal, low := e.eventQueue.Lens()
	stats := e.workflowQueue.GetStats()
	e.metrics.ObserveQueues(high, normal, low, stats.Pending, stats.Running)
}

// drainAndWait waits for every in-flight executor to finish, without
// starting any new pending item (pending items are simply left pending;
// Stop's caller is expected to discard the engine afterward).
func (e *Engine) drainAndWait() {
	e.execWG.Wait()
}

// drainWorkflowQueue starts as many pending items as there is concurrency
// budget for, without blocking: when the semaphore is full it stops and
// leaves the rest pending for a later drain pass (§4.4 step 4, §5's
// N_concurrent limit).
func (e *Engine) drainWorkflowQueue(ctx context.Context) {
	for {
		select {
		case e.sem <- struct{}{}:
		default:
			return
		}
		item, ok := e.workflowQueue.Dequeue()
		if !ok {
			<-e.sem
			return
		}
		e.execWG.Add(1)
		go func(it *queue.Item) {
			defer e.execWG.Done()
			defer func() {
				<-e.sem
				e.signalWake()
			}()
			e.execute(ctx, it)
		}(item)
	}
}

// execute runs one dequeued item's executor with a fresh Context and
// Recorder, commits state on success, and decides retry vs. fail on
// failure (§4.4 step 4, §7).
func (e *Engine) execute(ctx context.Context, item *queue.Item) {
	started := time.Now()
	n := atomic.AddUint64(&e.execCounter, 1)
	executionID := item.Definition.Name + "-" + strconv.FormatUint(n, 10)
	rec := recorder.New(executionID, item.Definition.Name, e.sinks...)
	defer rec.Close()

	rec.Record(recorder.Input, map[string]any{
		"eventType": string(item.Event.Type),
		"payload":   item.Event.Payload,
	})

	wctx := &workflow.Context{
		State:        e.GetState(),
		Storage:      e.storage,
		CreateDriver: e.createDriver,
		Recorder:     rec,
	}
	em := &emitter{engine: e}

	result, err := item.Definition.Executor(ctx, item.Event, wctx, em)
	if err != nil {
		rec.RecordError(err)
		e.retryOrFail(item, err, started)
		return
	}
	if !result.Success {
		rec.RecordError(errors.New("workflow reported failure"))
		e.retryOrFail(item, errors.New("execution failed"), started)
		return
	}

	if e.metrics != nil {
		e.metrics.RecordExecution(metrics.OutcomeSuccess, time.Since(started))
	}
	if result.StateChanged {
		e.commitState(ctx, result.State)
	}
	e.workflowQueue.MarkCompleted(item.ID, true)
	rec.Record(recorder.Output, result.Output)
}

func (e *Engine) retryOrFail(item *queue.Item, err error, started time.Time) {
	if e.workflowQueue.Retry(item.ID) {
		if e.metrics != nil {
			e.metrics.RecordExecution(metrics.OutcomeRetry, time.Since(started))
		}
		e.log.Warn("workflow execution failed, retrying",
			"workflow", item.Definition.Name, "id", item.ID, "retryCount", item.RetryCount+1, "error", err)
		e.signalWake()
		return
	}
	if e.metrics != nil {
		e.metrics.RecordExecution(metrics.OutcomeFailed, time.Since(started))
	}
	e.log.Error("workflow execution failed permanently",
		"workflow", item.Definition.Name, "id", item.ID, "error", err)
}

// GetState returns the engine's current shared state document snapshot.
func (e *Engine) GetState() string {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state
}

func (e *Engine) commitState(ctx context.Context, text string) {
	e.stateMu.Lock()
	e.state = text
	e.hasState = true
	e.stateMu.Unlock()
	if err := e.storage.UpdateStateDocument(ctx, text); err != nil {
		e.log.Error("failed to persist state document", "error", err)
	}
}

// emitter forwards Emit calls from a running workflow to the engine's
// event queue, scoped so a workflow body never sees the Engine directly.
type emitter struct {
	engine *Engine
}

func (em *emitter) Emit(e event.SystemEvent) {
	em.engine.EmitEvent(e)
}
