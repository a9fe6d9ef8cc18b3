package driven

import (
	"context"

	"github.com/celalgokce/gdrive-sync-clean/internal/core/domain"
)

// Delivery is one received intent awaiting acknowledgement.
// Exactly one of Ack or Nack must be called per delivery.
type Delivery interface {
	// Intent returns the delivered change intent.
	Intent() domain.ChangeIntent

	// Ack confirms processing finished (successfully or terminally)
	// and discards the message.
	Ack() error

	// Nack abandons processing. With requeue the message becomes
	// deliverable again; without it the message is discarded.
	Nack(requeue bool) error
}

// IntentQueue is the durable change-intent transport between the two
// producers (notifier, reconciler) and the coordinator's worker pool.
// Delivery is at-least-once and unordered; consumers rely on per-file
// idempotence, not queue ordering.
type IntentQueue interface {
	// Publish appends an intent.
	Publish(ctx context.Context, intent domain.ChangeIntent) error

	// Consume returns the delivery stream. The channel closes when ctx
	// is cancelled or the queue is closed.
	Consume(ctx context.Context) (<-chan Delivery, error)

	// DeadLetter moves an intent to the dead-letter destination for
	// operator inspection. Dead-lettered intents are never redelivered.
	DeadLetter(ctx context.Context, intent domain.ChangeIntent, reason string) error

	// DeadLetters lists the currently held dead letters.
	DeadLetters(ctx context.Context) ([]domain.DeadLetter, error)

	// Ping verifies the queue is usable.
	Ping(ctx context.Context) error

	// Close releases resources. Pending deliveries survive for durable
	// implementations.
	Close() error
}
