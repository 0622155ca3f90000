// Package queue implements the WorkflowQueue (§4.3, §5): a priority queue
// of work items awaiting execution, ordered by priority descending with
// FIFO ordering preserved within equal priority, including across retries.
package queue

import (
	"container/heap"
	"strconv"
	"sync"

	"github.com/synthframe/engine/engine/event"
	"github.com/synthframe/engine/engine/workflow"
)

const maxRetries = 3

// Status is an Item's lifecycle state. An item is in exactly one of
// pending, running, or a terminal status at any time (§4.3 invariant).
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Item is one unit of queued work: a workflow definition matched to the
// event that triggered it, carrying its own priority (independent of the
// definition's registered priority, since retries decrement it) and retry
// bookkeeping.
type Item struct {
	ID         string
	Definition workflow.Definition
	Event      event.SystemEvent
	Priority   int
	Status     Status
	RetryCount int

	seq uint64 // FIFO tie-breaker, assigned at (re)insertion
}

// Stats summarizes queue occupancy (§4.3's getStats()).
type Stats struct {
	Pending   int
	Running   int
	Completed int
	Failed    int
}

// Queue is the WorkflowQueue. The zero value is not usable; construct with
// New.
type Queue struct {
	mu        sync.Mutex
	pending   itemHeap
	running   map[string]*Item
	completed int
	failed    int
	nextID    uint64
	nextSeq   uint64
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{running: make(map[string]*Item)}
}

// Enqueue inserts a new item built from def/ev/priority, assigning it an
// id, status=pending, and retryCount=0 (§4.3). It returns the assigned id.
func (q *Queue) Enqueue(def workflow.Definition, ev event.SystemEvent, priority int) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	id := strconv.FormatUint(q.nextID, 10)
	item := &Item{
		ID:         id,
		Definition: def,
		Event:      ev,
		Priority:   priority,
		Status:     StatusPending,
	}
	q.insertLocked(item)
	return id
}

// insertLocked pushes item onto the pending heap, stamping it with the
// next sequence number so equal-priority items stay FIFO-ordered even
// across a retry's reinsertion. Callers must hold q.mu.
func (q *Queue) insertLocked(item *Item) {
	q.nextSeq++
	item.seq = q.nextSeq
	heap.Push(&q.pending, item)
}

// Dequeue removes and returns the highest-priority pending item (oldest
// arrival first within equal priority), marking it running. ok is false
// when no item is pending.
func (q *Queue) Dequeue() (*Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending.Len() == 0 {
		return nil, false
	}
	item, _ := heap.Pop(&q.pending).(*Item)
	item.Status = StatusRunning
	q.running[item.ID] = item
	return item, true
}

// MarkCompleted removes id from the running set and records a terminal
// status. Calling it for an unknown id is a no-op.
func (q *Queue) MarkCompleted(id string, success bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.running[id]
	if !ok {
		return
	}
	delete(q.running, id)
	if success {
		item.Status = StatusCompleted
		q.completed++
	} else {
		item.Status = StatusFailed
		q.failed++
	}
}

// Retry reinserts id for another attempt if it has not exhausted
// maxRetries (3): priority decreases by one (never below zero),
// retryCount increments, status returns to pending. It returns false,
// marking the item permanently failed, once maxRetries is exhausted
// (§4.3's "otherwise mark failed").
func (q *Queue) Retry(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.running[id]
	if !ok {
		return false
	}
	delete(q.running, id)
	if item.RetryCount >= maxRetries {
		item.Status = StatusFailed
		q.failed++
		return false
	}
	item.RetryCount++
	if item.Priority > 0 {
		item.Priority--
	}
	item.Status = StatusPending
	q.insertLocked(item)
	return true
}

// Clear discards every pending and running item, resetting terminal
// counters to zero.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = nil
	q.running = make(map[string]*Item)
	q.completed = 0
	q.failed = 0
}

// Size returns the number of pending items.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Len()
}

// RunningSize returns the number of items currently running.
func (q *Queue) RunningSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.running)
}

// GetPending returns a snapshot of pending items, highest priority first.
func (q *Queue) GetPending() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	cp := make(itemHeap, len(q.pending))
	copy(cp, q.pending)
	out := make([]Item, 0, len(cp))
	for cp.Len() > 0 {
		item, _ := heap.Pop(&cp).(*Item)
		out = append(out, *item)
	}
	return out
}

// GetRunning returns a snapshot of the currently running items, in no
// particular order.
func (q *Queue) GetRunning() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, 0, len(q.running))
	for _, item := range q.running {
		out = append(out, *item)
	}
	return out
}

// GetStats reports current occupancy across all lifecycle states.
func (q *Queue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Pending:   q.pending.Len(),
		Running:   len(q.running),
		Completed: q.completed,
		Failed:    q.failed,
	}
}

// itemHeap is a container/heap.Interface over *Item, ordered by priority
// descending and then by seq ascending (FIFO within equal priority).
type itemHeap []*Item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) {
	*h = append(*h, x.(*Item))
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
