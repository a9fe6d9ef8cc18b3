// Package memory provides an in-process IntentQueue for tests and
// throwaway runs. Intents do not survive the process.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/celalgokce/gdrive-sync-clean/internal/core/domain"
	"github.com/celalgokce/gdrive-sync-clean/internal/core/ports/driven"
)

// Ensure Queue implements the interface.
var _ driven.IntentQueue = (*Queue)(nil)

// Queue is an in-memory implementation of driven.IntentQueue.
// Pending intents are deduplicated by DedupeToken: publishing a token
// that is already waiting is a silent no-op.
type Queue struct {
	mu            sync.Mutex
	pending       []domain.ChangeIntent
	pendingTokens map[string]bool
	deadLetters   []domain.DeadLetter
	closed        bool

	// notify wakes the dispatcher; capacity one, a pending signal is
	// never lost between unlock and wait.
	notify chan struct{}
}

// NewQueue creates a new in-memory intent queue.
func NewQueue() *Queue {
	return &Queue{
		pendingTokens: make(map[string]bool),
		notify:        make(chan struct{}, 1),
	}
}

// Publish appends an intent unless an equal dedupe token is already
// pending.
func (q *Queue) Publish(ctx context.Context, intent domain.ChangeIntent) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return domain.ErrQueueClosed
	}
	if intent.DedupeToken != "" && q.pendingTokens[intent.DedupeToken] {
		return nil
	}
	q.pending = append(q.pending, intent)
	if intent.DedupeToken != "" {
		q.pendingTokens[intent.DedupeToken] = true
	}
	q.wake()
	return nil
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Consume returns the delivery stream. The channel closes when ctx is
// cancelled or the queue is closed and drained.
func (q *Queue) Consume(ctx context.Context) (<-chan driven.Delivery, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, domain.ErrQueueClosed
	}
	q.mu.Unlock()

	out := make(chan driven.Delivery)
	go q.dispatch(ctx, out)
	return out, nil
}

func (q *Queue) dispatch(ctx context.Context, out chan<- driven.Delivery) {
	defer close(out)
	for {
		intent, ok := q.pop(ctx)
		if !ok {
			return
		}
		select {
		case out <- &delivery{queue: q, intent: intent}:
		case <-ctx.Done():
			q.pushFront(intent)
			return
		}
	}
}

// pop blocks until an intent is available, the context ends, or the
// queue is closed and empty.
func (q *Queue) pop(ctx context.Context) (domain.ChangeIntent, bool) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			intent := q.pending[0]
			q.pending = q.pending[1:]
			delete(q.pendingTokens, intent.DedupeToken)
			q.mu.Unlock()
			return intent, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return domain.ChangeIntent{}, false
		}
		select {
		case <-ctx.Done():
			return domain.ChangeIntent{}, false
		case <-q.notify:
		}
	}
}

func (q *Queue) pushFront(intent domain.ChangeIntent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append([]domain.ChangeIntent{intent}, q.pending...)
	if intent.DedupeToken != "" {
		q.pendingTokens[intent.DedupeToken] = true
	}
}

// DeadLetter parks an intent for operator inspection.
func (q *Queue) DeadLetter(ctx context.Context, intent domain.ChangeIntent, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return domain.ErrQueueClosed
	}
	q.deadLetters = append(q.deadLetters, domain.DeadLetter{
		Intent: intent,
		Reason: reason,
		At:     time.Now(),
	})
	return nil
}

// DeadLetters lists the currently held dead letters.
func (q *Queue) DeadLetters(ctx context.Context) ([]domain.DeadLetter, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.DeadLetter, len(q.deadLetters))
	copy(out, q.deadLetters)
	return out, nil
}

// Len reports the number of pending intents. Test helper.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Pending returns a copy of the waiting intents. Test helper.
func (q *Queue) Pending() []domain.ChangeIntent {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.ChangeIntent, len(q.pending))
	copy(out, q.pending)
	return out
}

// Ping verifies the queue is usable.
func (q *Queue) Ping(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("intent queue: %w", domain.ErrQueueClosed)
	}
	return nil
}

// Close stops the queue. Consumers drain what is already pending.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.wake()
	return nil
}

// delivery is one in-flight intent.
type delivery struct {
	queue   *Queue
	intent  domain.ChangeIntent
	settled sync.Once
}

// Intent returns the delivered change intent.
func (d *delivery) Intent() domain.ChangeIntent {
	return d.intent
}

// Ack discards the message.
func (d *delivery) Ack() error {
	d.settled.Do(func() {})
	return nil
}

// Nack optionally requeues the message.
func (d *delivery) Nack(requeue bool) error {
	d.settled.Do(func() {
		if requeue {
			d.queue.pushFront(d.intent)
			d.queue.wake()
		}
	})
	return nil
}
