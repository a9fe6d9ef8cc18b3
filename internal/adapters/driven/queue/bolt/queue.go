// Package bolt provides a durable IntentQueue backed by a single bbolt
// file. Intents survive restarts; deliveries that were in flight when
// the process died are returned to the pending bucket on open.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/celalgokce/gdrive-sync-clean/internal/core/domain"
	"github.com/celalgokce/gdrive-sync-clean/internal/core/ports/driven"
)

// Ensure Queue implements the interface.
var _ driven.IntentQueue = (*Queue)(nil)

// Bucket names.
var (
	bucketPending    = []byte("pending")
	bucketInflight   = []byte("inflight")
	bucketDeadLetter = []byte("deadletter")
	bucketTokens     = []byte("tokens")
)

const defaultPollInterval = 100 * time.Millisecond

// storedIntent is the persisted form of a change intent.
type storedIntent struct {
	ID          string    `json:"id"`
	FileID      string    `json:"file_id"`
	ChangeType  string    `json:"change_type"`
	Source      string    `json:"source"`
	DedupeToken string    `json:"dedupe_token"`
	ObservedAt  time.Time `json:"observed_at"`
	Attempt     int       `json:"attempt"`
}

func toStored(intent domain.ChangeIntent) storedIntent {
	return storedIntent{
		ID:          intent.ID,
		FileID:      intent.FileID,
		ChangeType:  string(intent.ChangeType),
		Source:      string(intent.Source),
		DedupeToken: intent.DedupeToken,
		ObservedAt:  intent.ObservedAt,
		Attempt:     intent.Attempt,
	}
}

func (s storedIntent) toDomain() domain.ChangeIntent {
	return domain.ChangeIntent{
		ID:          s.ID,
		FileID:      s.FileID,
		ChangeType:  domain.ChangeType(s.ChangeType),
		Source:      domain.IntentSource(s.Source),
		DedupeToken: s.DedupeToken,
		ObservedAt:  s.ObservedAt,
		Attempt:     s.Attempt,
	}
}

// storedDeadLetter is the persisted form of a dead letter.
type storedDeadLetter struct {
	Intent storedIntent `json:"intent"`
	Reason string       `json:"reason"`
	At     time.Time    `json:"at"`
}

// Queue is a bbolt-backed implementation of driven.IntentQueue.
//
// Layout: "pending" holds deliverable intents keyed by a monotonic
// sequence (big-endian, so ForEach is FIFO), "inflight" holds intents
// handed to a consumer but not yet settled, "deadletter" holds parked
// intents, and "tokens" maps pending dedupe tokens to their keys.
type Queue struct {
	db *bbolt.DB

	mu     sync.Mutex
	closed bool

	// notify wakes the dispatcher ahead of its poll tick.
	notify chan struct{}

	pollInterval time.Duration
}

// Open opens or creates the queue file. Intents left in flight by a
// previous process are requeued.
func Open(path string) (*Queue, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open queue %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketPending, bucketInflight, bucketDeadLetter, bucketTokens} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return recoverInflight(tx)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize queue: %w", err)
	}

	return &Queue{
		db:           db,
		notify:       make(chan struct{}, 1),
		pollInterval: defaultPollInterval,
	}, nil
}

// recoverInflight moves crashed deliveries back into pending so they
// are redelivered. At-least-once, not at-most-once.
func recoverInflight(tx *bbolt.Tx) error {
	inflight := tx.Bucket(bucketInflight)
	pending := tx.Bucket(bucketPending)

	type kv struct{ k, v []byte }
	var stranded []kv
	if err := inflight.ForEach(func(k, v []byte) error {
		stranded = append(stranded, kv{k: append([]byte(nil), k...), v: append([]byte(nil), v...)})
		return nil
	}); err != nil {
		return err
	}

	for _, item := range stranded {
		seq, err := pending.NextSequence()
		if err != nil {
			return err
		}
		if err := pending.Put(itob(seq), item.v); err != nil {
			return err
		}
		if err := inflight.Delete(item.k); err != nil {
			return err
		}
	}
	return nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// Publish appends an intent unless an equal dedupe token is already
// pending. The write is committed before Publish returns.
func (q *Queue) Publish(ctx context.Context, intent domain.ChangeIntent) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return domain.ErrQueueClosed
	}

	data, err := json.Marshal(toStored(intent))
	if err != nil {
		return fmt.Errorf("encode intent: %w", err)
	}

	err = q.db.Update(func(tx *bbolt.Tx) error {
		tokens := tx.Bucket(bucketTokens)
		if intent.DedupeToken != "" && tokens.Get([]byte(intent.DedupeToken)) != nil {
			return nil
		}
		pending := tx.Bucket(bucketPending)
		seq, err := pending.NextSequence()
		if err != nil {
			return err
		}
		key := itob(seq)
		if err := pending.Put(key, data); err != nil {
			return err
		}
		if intent.DedupeToken != "" {
			return tokens.Put([]byte(intent.DedupeToken), key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish intent: %w", domainStorageErr(err))
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

// Consume returns the delivery stream. A dispatcher goroutine polls
// the pending bucket and moves each intent to inflight before handing
// it out.
func (q *Queue) Consume(ctx context.Context) (<-chan driven.Delivery, error) {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return nil, domain.ErrQueueClosed
	}

	out := make(chan driven.Delivery)
	go q.dispatch(ctx, out)
	return out, nil
}

func (q *Queue) dispatch(ctx context.Context, out chan<- driven.Delivery) {
	defer close(out)
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		d, err := q.take()
		if err != nil {
			if err == domain.ErrQueueClosed {
				return
			}
			// Transient storage trouble; back off to the next tick.
			d = nil
		}
		if d != nil {
			select {
			case out <- d:
				continue
			case <-ctx.Done():
				// Undelivered take: hand it straight back.
				d.Nack(true)
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-q.notify:
		case <-ticker.C:
		}
	}
}

// take moves the oldest pending intent to inflight. Returns nil when
// the queue is empty.
func (q *Queue) take() (*delivery, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, domain.ErrQueueClosed
	}
	q.mu.Unlock()

	var d *delivery
	err := q.db.Update(func(tx *bbolt.Tx) error {
		pending := tx.Bucket(bucketPending)
		key, value := pending.Cursor().First()
		if key == nil {
			return nil
		}

		var stored storedIntent
		if err := json.Unmarshal(value, &stored); err != nil {
			// Unreadable entry: park it raw rather than wedging the queue.
			if perr := pending.Delete(key); perr != nil {
				return perr
			}
			return tx.Bucket(bucketDeadLetter).Put(key, value)
		}

		if err := tx.Bucket(bucketInflight).Put(key, value); err != nil {
			return err
		}
		if err := pending.Delete(key); err != nil {
			return err
		}
		if stored.DedupeToken != "" {
			if err := tx.Bucket(bucketTokens).Delete([]byte(stored.DedupeToken)); err != nil {
				return err
			}
		}

		d = &delivery{
			queue:  q,
			key:    append([]byte(nil), key...),
			intent: stored.toDomain(),
		}
		return nil
	})
	if err != nil {
		return nil, domainStorageErr(err)
	}
	return d, nil
}

// settle removes an inflight entry, optionally requeueing it.
func (q *Queue) settle(key []byte, intent domain.ChangeIntent, requeue bool) error {
	err := q.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketInflight).Delete(key); err != nil {
			return err
		}
		if !requeue {
			return nil
		}

		data, err := json.Marshal(toStored(intent))
		if err != nil {
			return err
		}
		pending := tx.Bucket(bucketPending)
		seq, err := pending.NextSequence()
		if err != nil {
			return err
		}
		newKey := itob(seq)
		if err := pending.Put(newKey, data); err != nil {
			return err
		}
		if intent.DedupeToken != "" {
			return tx.Bucket(bucketTokens).Put([]byte(intent.DedupeToken), newKey)
		}
		return nil
	})
	if err != nil {
		return domainStorageErr(err)
	}
	if requeue {
		q.wake()
	}
	return nil
}

// DeadLetter parks an intent for operator inspection.
func (q *Queue) DeadLetter(ctx context.Context, intent domain.ChangeIntent, reason string) error {
	data, err := json.Marshal(storedDeadLetter{
		Intent: toStored(intent),
		Reason: reason,
		At:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode dead letter: %w", err)
	}

	err = q.db.Update(func(tx *bbolt.Tx) error {
		letters := tx.Bucket(bucketDeadLetter)
		seq, err := letters.NextSequence()
		if err != nil {
			return err
		}
		return letters.Put(itob(seq), data)
	})
	if err != nil {
		return fmt.Errorf("store dead letter: %w", domainStorageErr(err))
	}
	return nil
}

// DeadLetters lists the currently held dead letters, oldest first.
func (q *Queue) DeadLetters(ctx context.Context) ([]domain.DeadLetter, error) {
	var out []domain.DeadLetter
	err := q.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDeadLetter).ForEach(func(_, v []byte) error {
			var stored storedDeadLetter
			if err := json.Unmarshal(v, &stored); err != nil {
				// Raw entry parked by take; surface what we can.
				out = append(out, domain.DeadLetter{Reason: "unreadable queue entry"})
				return nil
			}
			out = append(out, domain.DeadLetter{
				Intent: stored.Intent.toDomain(),
				Reason: stored.Reason,
				At:     stored.At,
			})
			return nil
		})
	})
	if err != nil {
		return nil, domainStorageErr(err)
	}
	return out, nil
}

// PendingCount reports the number of deliverable intents.
func (q *Queue) PendingCount() (int, error) {
	count := 0
	err := q.db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket(bucketPending).Stats().KeyN
		return nil
	})
	return count, domainStorageErr(err)
}

// Ping verifies the queue file is usable.
func (q *Queue) Ping(ctx context.Context) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return domain.ErrQueueClosed
	}
	return q.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketPending) == nil {
			return fmt.Errorf("pending bucket missing: %w", domain.ErrTransientStorage)
		}
		return nil
	})
}

// Close flushes and closes the queue file. Pending and inflight
// intents survive and are redelivered on the next open.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()
	q.wake()
	return q.db.Close()
}

func domainStorageErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%v: %w", err, domain.ErrTransientStorage)
}

// delivery is one in-flight intent.
type delivery struct {
	queue   *Queue
	key     []byte
	intent  domain.ChangeIntent
	settled sync.Once
}

// Intent returns the delivered change intent.
func (d *delivery) Intent() domain.ChangeIntent {
	return d.intent
}

// Ack confirms processing and discards the message.
func (d *delivery) Ack() error {
	var err error
	d.settled.Do(func() {
		err = d.queue.settle(d.key, d.intent, false)
	})
	return err
}

// Nack abandons processing, optionally requeueing.
func (d *delivery) Nack(requeue bool) error {
	var err error
	d.settled.Do(func() {
		err = d.queue.settle(d.key, d.intent, requeue)
	})
	return err
}
