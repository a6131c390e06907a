// Package relay ingests conversion events asynchronously. Recording an
// event is fire-and-forget: the caller gets a task id back immediately and
// the insert happens on a worker, with bounded retries. The relay offers
// no idempotency or ordering guarantee, only eventual insertion.
package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/emiliopalmerini/splitlab/internal/domain"
	"github.com/emiliopalmerini/splitlab/internal/ports"
)

const (
	insertRetries = 3
	retryDelay    = 100 * time.Millisecond
	insertTimeout = 5 * time.Second
)

// ErrQueueFull is returned when the relay buffer is saturated or the
// relay is shutting down; the event is dropped rather than blocking the
// request path.
var ErrQueueFull = errors.New("event relay queue full")

// Queue is the in-process EventRelay: a buffered channel drained by a
// single worker goroutine.
type Queue struct {
	events  ports.EventRepository
	ch      chan *domain.Event
	metrics ports.AssignmentMetrics
	log     zerolog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewQueue(events ports.EventRepository, size int, metrics ports.AssignmentMetrics, log zerolog.Logger) *Queue {
	if size <= 0 {
		size = 1024
	}
	q := &Queue{
		events:  events,
		ch:      make(chan *domain.Event, size),
		metrics: metrics,
		log:     log,
	}
	q.wg.Add(1)
	go q.work()
	return q
}

// Record enqueues the event and returns a task id for log correlation.
func (q *Queue) Record(ctx context.Context, event *domain.Event) (string, error) {
	taskID := uuid.NewString()
	if !q.enqueue(event) {
		q.log.Warn().Str("type", event.Type).Str("user_id", event.UserID).
			Msg("event dropped, relay queue full or closing")
		return "", ErrQueueFull
	}
	q.metrics.EventEnqueued(ctx, event.Type)
	q.log.Debug().Str("task_id", taskID).Str("type", event.Type).
		Str("user_id", event.UserID).Msg("event enqueued")
	return taskID, nil
}

// enqueue synchronizes against Close so a late Record during shutdown is
// rejected instead of sending on a closed channel.
func (q *Queue) enqueue(event *domain.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	select {
	case q.ch <- event:
		return true
	default:
		return false
	}
}

// Close stops accepting events and waits for the worker to drain the queue.
// Safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *Queue) work() {
	defer q.wg.Done()
	for event := range q.ch {
		q.insert(event)
	}
}

func (q *Queue) insert(event *domain.Event) {
	var err error
	for attempt := 1; attempt <= insertRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
		err = q.events.Insert(ctx, event)
		cancel()
		if err == nil {
			return
		}
		if attempt < insertRetries {
			time.Sleep(retryDelay)
		}
	}
	q.log.Error().Err(err).Str("type", event.Type).Str("user_id", event.UserID).
		Msg("failed to insert event after retries")
}
