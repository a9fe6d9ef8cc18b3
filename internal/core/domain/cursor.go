package domain

import "time"

// SyncCursor records where reconciliation left off for one monitored
// folder. There is exactly one active cursor per folder. It is updated
// only by the reconciler, and only at the end of a completed pass; a
// partial listing must never overwrite it.
type SyncCursor struct {
	// FolderID is the monitored folder's provider identifier.
	FolderID string

	// LastCheckedAt is when the last completed pass finished.
	LastCheckedAt time.Time

	// LastFullListHash is a digest of the last complete listing
	// (sorted fileID:fingerprint pairs). When the current listing
	// hashes to the same value, the diff can be skipped.
	LastFullListHash string
}

// WebhookChannel is an active subscription to provider push
// notifications. An expired channel silently stops delivering, which is
// why the reconciler exists as a safety net; channels must be renewed
// before ExpiresAt.
type WebhookChannel struct {
	// ChannelID is the subscription identifier we generated.
	ChannelID string

	// ResourceID is the provider's opaque identifier for the watched
	// resource, required to stop the channel.
	ResourceID string

	// FolderID is the monitored folder the channel watches.
	FolderID string

	// ExpiresAt is when the provider stops delivering notifications.
	ExpiresAt time.Time
}

// ExpiresWithin reports whether the channel expires before now+margin.
// A zero channel (no subscription yet) always reports true.
func (c WebhookChannel) ExpiresWithin(now time.Time, margin time.Duration) bool {
	if c.ChannelID == "" {
		return true
	}
	return !c.ExpiresAt.After(now.Add(margin))
}
