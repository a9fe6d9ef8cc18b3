package driving

import "context"

// Notification is one inbound push notification, already extracted from
// the transport's headers by the ingress adapter.
type Notification struct {
	// ChannelID identifies the subscription that delivered this.
	ChannelID string

	// ResourceID is the provider's identifier for the watched resource.
	ResourceID string

	// ResourceState is the provider's change hint
	// (sync, update, exists, not_exists, trash, untrash).
	ResourceState string

	// Token is the verification token echoed by the provider.
	Token string

	// MessageNumber increases per channel with every delivery and is
	// the revision marker used for duplicate collapsing.
	MessageNumber int64
}

// NotificationResult reports how a notification was handled.
type NotificationResult struct {
	// Accepted is true when a change intent was enqueued.
	Accepted bool

	// Duplicate is true when the notification repeated an already-seen
	// revision and was acknowledged as a no-op.
	Duplicate bool
}

// Notifier is the push-notification side of the pipeline.
type Notifier interface {
	// HandleNotification validates, deduplicates and enqueues.
	// Returns domain.ErrAuthentication on a bad verification token.
	HandleNotification(ctx context.Context, n Notification) (*NotificationResult, error)

	// RenewChannel replaces the folder's webhook channel before it
	// expires. Safe to call with a live channel.
	RenewChannel(ctx context.Context) error

	// Run drives scheduled channel renewal until ctx is cancelled.
	// Renewal failures are logged, never fatal; the reconciler
	// compensates for missed notifications.
	Run(ctx context.Context) error
}
