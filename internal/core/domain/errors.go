package domain

import (
	"context"
	"errors"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAuthentication indicates a webhook carried a bad verification
	// token. Rejected outright, never retried.
	ErrAuthentication = errors.New("authentication failed")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTransientProvider indicates a retryable failure talking to the
	// storage provider (network, rate limit, 5xx).
	ErrTransientProvider = errors.New("transient provider failure")

	// ErrTransientStorage indicates a retryable failure talking to the
	// object store or state store.
	ErrTransientStorage = errors.New("transient storage failure")

	// ErrPermanent indicates a processing failure that will not succeed
	// on retry (file permanently inaccessible, malformed metadata).
	// The intent is dead-lettered and the record marked failed.
	ErrPermanent = errors.New("permanent processing failure")

	// ErrStateConflict indicates a conditional write lost a race.
	// Always safe to retry the whole intent from a fresh read, since
	// the conflict means another writer already advanced the record.
	ErrStateConflict = errors.New("state conflict")

	// ErrPassInProgress indicates a reconciliation pass is already
	// running for the folder. The colliding tick is skipped, not queued.
	ErrPassInProgress = errors.New("reconciliation pass in progress")

	// ErrQueueClosed indicates the intent queue has been closed.
	ErrQueueClosed = errors.New("queue closed")
)

// IsTransient reports whether an error should be retried with backoff.
// An exceeded per-operation deadline counts: a stalled dependency is a
// transient failure, not a permanent one.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientProvider) ||
		errors.Is(err, ErrTransientStorage) ||
		errors.Is(err, context.DeadlineExceeded)
}
