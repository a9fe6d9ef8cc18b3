package domain

import (
	"fmt"
	"time"
)

// ChangeType classifies what a ChangeIntent asks to be done.
type ChangeType string

// Change types.
const (
	// ChangeCreated means the file appeared at the provider.
	ChangeCreated ChangeType = "created"

	// ChangeModified means the file's content fingerprint moved.
	ChangeModified ChangeType = "modified"

	// ChangeDeleted means the provider reports the file removed.
	ChangeDeleted ChangeType = "deleted"

	// ChangeSweep is a folder-scope intent. Push notifications carry no
	// file-level detail, so the notifier publishes one sweep per distinct
	// folder revision and the coordinator expands it into per-file
	// intents via a lightweight listing fetch.
	ChangeSweep ChangeType = "sweep"
)

// IntentSource identifies which producer emitted an intent.
// Consumers must not branch on it beyond metrics and logging.
type IntentSource string

// Intent sources.
const (
	SourceWebhook    IntentSource = "webhook"
	SourceReconciler IntentSource = "reconciler"
)

// ChangeIntent is a queued instruction meaning "re-evaluate this file
// for sync". Intents are ephemeral: created by the notifier or the
// reconciler, consumed and discarded by the coordinator.
type ChangeIntent struct {
	// ID uniquely identifies this intent instance.
	ID string

	// FileID is the provider file identifier, or the monitored folder's
	// resource identifier for sweep intents.
	FileID string

	// ChangeType says what was observed.
	ChangeType ChangeType

	// Source tags the producer, for metrics only.
	Source IntentSource

	// DedupeToken collapses duplicate notifications for the same
	// file revision. Derived identically by both producers.
	DedupeToken string

	// ObservedAt is when the producer saw the change.
	ObservedAt time.Time

	// Attempt counts processing attempts, starting at zero.
	Attempt int
}

// DedupeToken derives the duplicate-collapsing token for a file revision.
// Both producers must derive tokens the same way so an intent already
// queued by the notifier is recognisable when the reconciler sees the
// same revision.
func DedupeToken(fileID, revision string) string {
	return fmt.Sprintf("%s@%s", fileID, revision)
}

// DeadLetter is an intent that exhausted its retry budget, held for
// operator inspection.
type DeadLetter struct {
	Intent ChangeIntent

	// Reason is the final error message.
	Reason string

	// At is when the intent was dead-lettered.
	At time.Time
}
