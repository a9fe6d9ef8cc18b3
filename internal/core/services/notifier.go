package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/celalgokce/gdrive-sync-clean/internal/core/domain"
	"github.com/celalgokce/gdrive-sync-clean/internal/core/ports/driven"
	"github.com/celalgokce/gdrive-sync-clean/internal/core/ports/driving"
	"github.com/celalgokce/gdrive-sync-clean/internal/logger"
)

// Ensure ChangeNotifier implements the interface.
var _ driving.Notifier = (*ChangeNotifier)(nil)

// resourceStates are the change hints the provider is allowed to send.
var resourceStates = map[string]bool{
	"sync":       true,
	"update":     true,
	"exists":     true,
	"not_exists": true,
	"trash":      true,
	"untrash":    true,
}

// NotifierConfig configures the change notifier.
type NotifierConfig struct {
	// FolderID is the monitored folder.
	FolderID string

	// Secret is the webhook verification token.
	Secret string

	// CallbackURL is the public address push notifications are
	// delivered to, handed to the provider when opening a channel.
	CallbackURL string

	// ChannelTTL is the lifetime requested for new channels.
	ChannelTTL time.Duration

	// RenewMargin is how long before expiry a channel is renewed.
	RenewMargin time.Duration

	// CheckInterval is how often the renewal loop inspects the channel.
	CheckInterval time.Duration
}

func (c *NotifierConfig) applyDefaults() {
	if c.ChannelTTL <= 0 {
		c.ChannelTTL = 24 * time.Hour
	}
	if c.RenewMargin <= 0 {
		c.RenewMargin = time.Hour
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 5 * time.Minute
	}
}

// ChangeNotifier is the push-notification ingress. It validates and
// deduplicates provider notifications and publishes one folder-scope
// sweep intent per distinct revision. It writes no file records; the
// only state it owns is the webhook channel it renews.
type ChangeNotifier struct {
	queue    driven.IntentQueue
	provider driven.DriveProvider
	store    driven.StateStore
	cfg      NotifierConfig

	// Dedup window: highest message number seen per channel. Provider
	// notifications are "something changed", not a diff; duplicates are
	// common and must be idempotent.
	mu          sync.Mutex
	lastMessage map[string]int64

	now func() time.Time
}

// NewChangeNotifier creates a change notifier.
func NewChangeNotifier(
	queue driven.IntentQueue,
	provider driven.DriveProvider,
	store driven.StateStore,
	cfg NotifierConfig,
) *ChangeNotifier {
	cfg.applyDefaults()
	return &ChangeNotifier{
		queue:       queue,
		provider:    provider,
		store:       store,
		cfg:         cfg,
		lastMessage: make(map[string]int64),
		now:         time.Now,
	}
}

// HandleNotification validates a push notification and, for a genuinely
// new revision, publishes a sweep intent. Duplicate revisions are
// acknowledged as no-ops.
func (n *ChangeNotifier) HandleNotification(ctx context.Context, note driving.Notification) (*driving.NotificationResult, error) {
	if note.Token != n.cfg.Secret {
		return nil, fmt.Errorf("%w: verification token mismatch", domain.ErrAuthentication)
	}
	if note.ChannelID == "" {
		return nil, fmt.Errorf("%w: missing channel id", domain.ErrInvalidInput)
	}
	if !resourceStates[note.ResourceState] {
		return nil, fmt.Errorf("%w: unknown resource state %q", domain.ErrInvalidInput, note.ResourceState)
	}

	// The provider sends a "sync" message when the channel is opened.
	// It carries no change; acknowledge and move on.
	if note.ResourceState == "sync" {
		logger.Debug("channel %s handshake acknowledged", note.ChannelID)
		return &driving.NotificationResult{}, nil
	}

	if n.isDuplicate(note.ChannelID, note.MessageNumber) {
		logger.Debug("duplicate notification %s#%d discarded", note.ChannelID, note.MessageNumber)
		return &driving.NotificationResult{Duplicate: true}, nil
	}

	intent := domain.ChangeIntent{
		ID:          uuid.NewString(),
		FileID:      n.cfg.FolderID,
		ChangeType:  domain.ChangeSweep,
		Source:      domain.SourceWebhook,
		DedupeToken: domain.DedupeToken(n.cfg.FolderID, fmt.Sprintf("%s:%d", note.ChannelID, note.MessageNumber)),
		ObservedAt:  n.now(),
	}
	if err := n.queue.Publish(ctx, intent); err != nil {
		// Roll the window back so the provider's retry is not treated
		// as a duplicate of a revision we failed to enqueue.
		n.forget(note.ChannelID, note.MessageNumber)
		return nil, fmt.Errorf("publish intent: %w", err)
	}

	logger.Info("notification %s#%d accepted (%s)", note.ChannelID, note.MessageNumber, note.ResourceState)
	return &driving.NotificationResult{Accepted: true}, nil
}

// isDuplicate records the message number and reports whether it was
// already seen. Message numbers increase per channel.
func (n *ChangeNotifier) isDuplicate(channelID string, msg int64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if msg != 0 && msg <= n.lastMessage[channelID] {
		return true
	}
	n.lastMessage[channelID] = msg
	return false
}

// forget rolls the dedup window back below msg after a failed publish.
func (n *ChangeNotifier) forget(channelID string, msg int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.lastMessage[channelID] == msg {
		n.lastMessage[channelID] = msg - 1
	}
}

// RenewChannel opens a fresh push channel and replaces the stored
// channel record. The previous channel is stopped best-effort.
func (n *ChangeNotifier) RenewChannel(ctx context.Context) error {
	previous, err := n.store.GetChannel(ctx, n.cfg.FolderID)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("load channel: %w", err)
	}

	channel, err := n.provider.Watch(ctx, n.cfg.FolderID, n.cfg.CallbackURL, n.cfg.Secret, n.cfg.ChannelTTL)
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	if err := n.store.SaveChannel(ctx, *channel); err != nil {
		return fmt.Errorf("save channel: %w", err)
	}

	if previous != nil && previous.ChannelID != "" {
		if err := n.provider.StopChannel(ctx, *previous); err != nil {
			logger.Warn("stop previous channel %s: %v", previous.ChannelID, err)
		}
	}

	logger.Info("webhook channel %s active until %s", channel.ChannelID, channel.ExpiresAt.Format(time.RFC3339))
	return nil
}

// Run keeps the webhook channel alive until ctx is cancelled. A failed
// renewal is logged and retried on the next check; an expired channel
// only costs notification latency because the reconciler compensates.
func (n *ChangeNotifier) Run(ctx context.Context) error {
	n.renewIfNeeded(ctx)

	ticker := time.NewTicker(n.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n.renewIfNeeded(ctx)
		}
	}
}

// renewTimeout bounds one renewal attempt (channel load, watch, stop).
const renewTimeout = time.Minute

func (n *ChangeNotifier) renewIfNeeded(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, renewTimeout)
	defer cancel()

	channel, err := n.store.GetChannel(ctx, n.cfg.FolderID)
	if err != nil && !isNotFound(err) {
		logger.Warn("load channel: %v", err)
		return
	}

	var current domain.WebhookChannel
	if channel != nil {
		current = *channel
	}
	if !current.ExpiresWithin(n.now(), n.cfg.RenewMargin) {
		return
	}

	if err := n.RenewChannel(ctx); err != nil {
		logger.Warn("channel renewal failed, reconciler compensates: %v", err)
	}
}
