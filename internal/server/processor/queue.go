package processor

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"chessmatch/internal/server/core"
	"chessmatch/internal/server/obslog"
)

const (
	DefaultEventWorkers   = 4
	DefaultEventQueueSize = 256
	deliveryTimeout       = 2 * time.Second
)

var (
	ErrQueueFull   = errors.New("event queue is full")
	ErrQueueClosed = errors.New("event queue is shutting down")
)

// Subscriber receives session events. Events of one session arrive in the
// order they were published.
type Subscriber interface {
	Deliver(ctx context.Context, ev core.Event) error
}

// SubscriberFunc adapts a function to Subscriber
type SubscriberFunc func(ctx context.Context, ev core.Event) error

func (f SubscriberFunc) Deliver(ctx context.Context, ev core.Event) error {
	return f(ctx, ev)
}

// EventQueue fans events out to subscribers on a fixed worker pool. Each
// session hashes onto one shard, so its events stay ordered while different
// sessions are delivered in parallel.
type EventQueue struct {
	shards []chan core.Event
	subs   []Subscriber
	subsMu sync.RWMutex

	closeMu sync.RWMutex
	closed  bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewEventQueue starts workers goroutines, each with a buffer of size events
func NewEventQueue(workers, size int) *EventQueue {
	if workers < 1 {
		workers = DefaultEventWorkers
	}
	if size < 1 {
		size = DefaultEventQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &EventQueue{
		shards: make([]chan core.Event, workers),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := range q.shards {
		q.shards[i] = make(chan core.Event, size)
		q.wg.Add(1)
		go q.worker(q.shards[i])
	}
	return q
}

// Subscribe adds s to every future delivery
func (q *EventQueue) Subscribe(s Subscriber) {
	q.subsMu.Lock()
	defer q.subsMu.Unlock()
	q.subs = append(q.subs, s)
}

// Publish queues ev without blocking
func (q *EventQueue) Publish(ev core.Event) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.shards[q.shardFor(ev.SessionID)] <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *EventQueue) shardFor(sessionID string) int {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return int(h.Sum32() % uint32(len(q.shards)))
}

func (q *EventQueue) worker(events <-chan core.Event) {
	defer q.wg.Done()
	for ev := range events {
		q.deliver(ev)
	}
}

func (q *EventQueue) deliver(ev core.Event) {
	q.subsMu.RLock()
	subs := q.subs
	q.subsMu.RUnlock()

	for _, s := range subs {
		ctx, cancel := context.WithTimeout(q.ctx, deliveryTimeout)
		err := s.Deliver(ctx, ev)
		cancel()
		if err != nil {
			obslog.L().Warn("event_delivery_failed",
				zap.String("session", ev.SessionID),
				zap.String("event", ev.Type),
				zap.Error(err))
		}
	}
}

// Shutdown stops accepting events and waits for queued ones to drain
func (q *EventQueue) Shutdown(timeout time.Duration) error {
	q.closeMu.Lock()
	if q.closed {
		q.closeMu.Unlock()
		return nil
	}
	q.closed = true
	for _, ch := range q.shards {
		close(ch)
	}
	q.closeMu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-time.After(timeout):
		q.cancel()
		return fmt.Errorf("event queue shutdown timeout exceeded")
	}
}
