package transport

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rattab/slick/pkg/slick"
)

// Waker is the cross-thread wakeup primitive a DeferQueue uses to pull
// the poll goroutine out of its blocking wait once work has been
// enqueued. On Linux it is backed by a real eventfd registered in the
// epoll set; elsewhere it is a buffered channel the fallback poller
// selects on.
type Waker interface {
	// Wake signals the poll goroutine at least once; repeated calls
	// before the goroutine drains it may coalesce into a single wakeup.
	Wake() error
	// Close releases any OS resources the waker holds.
	Close() error
}

// opKind distinguishes the two defer queues' back-pressure policy.
// Control operations (connect, disconnect) are small and rare enough to
// warrant a bounded spin-retry before giving up; payload operations
// (publish, fetch replies) are dropped outright once the queue is full,
// matching the transport's general drop-don't-block stance.
type opKind int

const (
	opControl opKind = iota
	opPayload
)

// DeferQueue is a bounded multi-producer, single-consumer queue used to
// funnel calls from arbitrary application goroutines into the single
// poll goroutine. Producers call Push; only the poll goroutine calls
// Drain.
type DeferQueue[T any] struct {
	kind  opKind
	waker Waker

	mu    sync.Mutex
	items []T
	cap   int

	limiter *rate.Limiter // only used for opControl retries
}

// NewControlQueue creates a DeferQueue for connect/disconnect-style
// operations, retrying briefly under a rate limiter before dropping.
func NewControlQueue[T any](capacity int, waker Waker) *DeferQueue[T] {
	return &DeferQueue[T]{
		kind:    opControl,
		waker:   waker,
		cap:     capacity,
		limiter: rate.NewLimiter(rate.Every(time.Millisecond), 1),
	}
}

// NewPayloadQueue creates a DeferQueue for payload-bearing operations,
// which drop immediately on overflow rather than retrying.
func NewPayloadQueue[T any](capacity int, waker Waker) *DeferQueue[T] {
	return &DeferQueue[T]{
		kind:  opPayload,
		waker: waker,
		cap:   capacity,
	}
}

// Push enqueues item and wakes the poll goroutine. Control queues spin a
// handful of times under a rate limiter before returning
// ErrQueueOverflow; payload queues fail fast on the first full queue.
func (q *DeferQueue[T]) Push(item T) error {
	if q.kind == opPayload {
		if !q.tryPush(item) {
			return slick.ErrQueueOverflow
		}
		return q.waker.Wake()
	}

	const maxAttempts = 8
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if q.tryPush(item) {
			return q.waker.Wake()
		}
		q.limiter.Wait(context.Background())
	}
	return slick.ErrQueueOverflow
}

func (q *DeferQueue[T]) tryPush(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.cap {
		return false
	}
	q.items = append(q.items, item)
	return true
}

// Drain returns and clears every queued item. Called only from the poll
// goroutine after a wakeup.
func (q *DeferQueue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

// Len reports the current queue depth, mostly for metrics and tests.
func (q *DeferQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
