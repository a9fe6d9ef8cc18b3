package driving

import (
	"context"
	"time"
)

// PassResult summarises one completed reconciliation pass.
type PassResult struct {
	// FilesListed is the size of the full listing consumed.
	FilesListed int

	// Additions, Modifications and Deletions count the intents enqueued.
	Additions     int
	Modifications int
	Deletions     int

	// Unchanged is true when the listing hash matched the cursor and
	// the diff was skipped entirely.
	Unchanged bool

	// FinishedAt is when the cursor was advanced.
	FinishedAt time.Time
}

// Reconciler is the polling safety net: it guarantees convergence
// within one polling interval even under total notification loss.
type Reconciler interface {
	// RunPass performs one full listing-based reconciliation of the
	// folder. Returns domain.ErrPassInProgress when a pass is already
	// running for the folder; the caller skips, it never queues.
	RunPass(ctx context.Context, folderID string) (*PassResult, error)

	// Run drives timer-based passes until ctx is cancelled. Failed
	// passes stretch the delay before the next tick with bounded
	// exponential backoff.
	Run(ctx context.Context) error
}
