package driving

import (
	"context"

	"github.com/celalgokce/gdrive-sync-clean/internal/core/domain"
)

// CoordinatorStatus is a snapshot of the worker pool's counters.
type CoordinatorStatus struct {
	// Processed counts intents taken off the queue.
	Processed int64

	// Uploaded counts confirmed uploads.
	Uploaded int64

	// Duplicates counts intents discarded because the stored
	// fingerprint already matched.
	Duplicates int64

	// Retried counts re-published attempts after transient failures.
	Retried int64

	// DeadLettered counts intents that exhausted the retry budget.
	DeadLettered int64
}

// Coordinator consumes change intents and moves content to the bucket
// exactly-once-effectively.
type Coordinator interface {
	// Run starts the worker pool and blocks until ctx is cancelled and
	// in-flight intents have drained.
	Run(ctx context.Context) error

	// ProcessIntent executes one intent to completion. Exposed for the
	// pool's workers and for tests; callers outside the pool must not
	// assume ordering.
	ProcessIntent(ctx context.Context, intent domain.ChangeIntent) error

	// Status returns a snapshot of the pool's counters.
	Status() CoordinatorStatus
}
