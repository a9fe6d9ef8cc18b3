package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/celalgokce/gdrive-sync-clean/internal/core/domain"
	"github.com/celalgokce/gdrive-sync-clean/internal/core/ports/driven"
	"github.com/celalgokce/gdrive-sync-clean/internal/core/ports/driving"
	"github.com/celalgokce/gdrive-sync-clean/internal/logger"
)

// Ensure UploadCoordinator implements the interface.
var _ driving.Coordinator = (*UploadCoordinator)(nil)

// CoordinatorConfig configures the upload worker pool.
type CoordinatorConfig struct {
	// FolderID is the monitored folder, used to expand sweep intents.
	FolderID string

	// KeyPrefix prefixes every destination object key.
	KeyPrefix string

	// Workers is the fixed pool size.
	Workers int

	// Retry bounds transient-failure retries per intent.
	Retry domain.RetryPolicy

	// OpTimeout is the deadline for processing one intent, covering
	// every provider, object-store and state-store call it makes. A
	// stalled dependency becomes a transient failure instead of a hung
	// worker.
	OpTimeout time.Duration
}

func (c *CoordinatorConfig) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry = domain.DefaultRetryPolicy()
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = 5 * time.Minute
	}
}

// UploadCoordinator consumes change intents and moves content from the
// provider to the destination bucket. Workers are independent; per-file
// correctness comes from the state store's conditional writes, not from
// queue ordering.
type UploadCoordinator struct {
	provider driven.DriveProvider
	store    driven.StateStore
	objects  driven.ObjectStore
	queue    driven.IntentQueue
	cfg      CoordinatorConfig

	processed    atomic.Int64
	uploaded     atomic.Int64
	duplicates   atomic.Int64
	retried      atomic.Int64
	deadLettered atomic.Int64

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewUploadCoordinator creates the coordinator worker pool.
func NewUploadCoordinator(
	provider driven.DriveProvider,
	store driven.StateStore,
	objects driven.ObjectStore,
	queue driven.IntentQueue,
	cfg CoordinatorConfig,
) *UploadCoordinator {
	cfg.applyDefaults()
	return &UploadCoordinator{
		provider: provider,
		store:    store,
		objects:  objects,
		queue:    queue,
		cfg:      cfg,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Run starts the worker pool and blocks until the delivery stream
// closes. An intent taken off the queue before shutdown is finished,
// not abandoned mid-upload.
func (c *UploadCoordinator) Run(ctx context.Context) error {
	deliveries, err := c.queue.Consume(ctx)
	if err != nil {
		return fmt.Errorf("consume queue: %w", err)
	}

	// Workers keep a cancellation-free context so in-flight intents
	// drain cleanly; the delivery channel closing is the stop signal.
	workCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	for i := 0; i < c.cfg.Workers; i++ {
		g.Go(func() error {
			for d := range deliveries {
				c.handleDelivery(workCtx, d)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// handleDelivery runs one intent and settles its acknowledgement.
// Every path acks or nacks exactly once; an intent is never lost.
func (c *UploadCoordinator) handleDelivery(ctx context.Context, d driven.Delivery) {
	intent := d.Intent()
	c.processed.Add(1)

	opCtx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	err := c.ProcessIntent(opCtx, intent)
	cancel()
	if err == nil {
		if ackErr := d.Ack(); ackErr != nil {
			logger.Warn("ack intent %s: %v", intent.ID, ackErr)
		}
		return
	}

	if domain.IsTransient(err) && !c.cfg.Retry.Exhausted(intent.Attempt+1) {
		c.requeue(ctx, d, intent, err)
		return
	}

	// Retry budget exhausted, or the failure is permanent.
	c.deadLetter(ctx, d, intent, err)
}

// requeue re-publishes the intent with a bumped attempt counter after
// the policy delay, then discards the original delivery.
func (c *UploadCoordinator) requeue(ctx context.Context, d driven.Delivery, intent domain.ChangeIntent, cause error) {
	next := intent
	next.Attempt++

	if err := c.sleep(ctx, c.cfg.Retry.Delay(next.Attempt)); err != nil {
		// Shutting down; hand the intent back untouched.
		if nackErr := d.Nack(true); nackErr != nil {
			logger.Warn("nack intent %s: %v", intent.ID, nackErr)
		}
		return
	}
	if err := c.queue.Publish(ctx, next); err != nil {
		logger.Error("republish intent %s: %v", intent.ID, err)
		if nackErr := d.Nack(true); nackErr != nil {
			logger.Warn("nack intent %s: %v", intent.ID, nackErr)
		}
		return
	}
	if err := d.Ack(); err != nil {
		logger.Warn("ack intent %s: %v", intent.ID, err)
	}
	c.retried.Add(1)
	logger.Debug("intent %s requeued, attempt %d: %v", intent.ID, next.Attempt, cause)
}

// deadLetter parks the intent for operator inspection and marks the
// file record failed so the state reflects the stuck transfer.
func (c *UploadCoordinator) deadLetter(ctx context.Context, d driven.Delivery, intent domain.ChangeIntent, cause error) {
	if err := c.queue.DeadLetter(ctx, intent, cause.Error()); err != nil {
		logger.Error("dead-letter intent %s: %v", intent.ID, err)
		if nackErr := d.Nack(true); nackErr != nil {
			logger.Warn("nack intent %s: %v", intent.ID, nackErr)
		}
		return
	}
	if intent.ChangeType != domain.ChangeSweep {
		c.markFailed(ctx, intent.FileID, cause)
	}
	if err := d.Ack(); err != nil {
		logger.Warn("ack intent %s: %v", intent.ID, err)
	}
	c.deadLettered.Add(1)
	logger.Error("intent %s dead-lettered after %d attempts: %v", intent.ID, intent.Attempt+1, cause)
}

// markFailed is best-effort: a conflict means another worker moved the
// record forward, which supersedes the failure.
func (c *UploadCoordinator) markFailed(ctx context.Context, fileID string, cause error) {
	rec, err := c.store.GetRecord(ctx, fileID)
	if err != nil {
		if !isNotFound(err) {
			logger.Warn("load record %s: %v", fileID, err)
			return
		}
		rec = &domain.FileRecord{FileID: fileID}
	}
	expected := rec.ContentFingerprint
	rec.Status = domain.StatusFailed
	rec.LastError = cause.Error()
	rec.UpdatedAt = c.now()
	if err := c.store.SaveRecord(ctx, *rec, expected); err != nil && !errors.Is(err, domain.ErrStateConflict) {
		logger.Warn("mark record %s failed: %v", fileID, err)
	}
}

// ProcessIntent executes one intent to completion.
func (c *UploadCoordinator) ProcessIntent(ctx context.Context, intent domain.ChangeIntent) error {
	switch intent.ChangeType {
	case domain.ChangeSweep:
		return c.expandSweep(ctx, intent)
	case domain.ChangeDeleted:
		return c.processDeletion(ctx, intent.FileID)
	case domain.ChangeCreated, domain.ChangeModified:
		return c.processUpload(ctx, intent.FileID)
	default:
		return fmt.Errorf("%w: unknown change type %q", domain.ErrInvalidInput, intent.ChangeType)
	}
}

// expandSweep turns a folder-scope intent into per-file intents using a
// changed-since listing anchored on the reconciliation cursor.
func (c *UploadCoordinator) expandSweep(ctx context.Context, intent domain.ChangeIntent) error {
	var since time.Time
	cursor, err := c.store.GetCursor(ctx, intent.FileID)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("load cursor: %w", err)
	}
	if cursor != nil {
		since = cursor.LastCheckedAt
	}

	changed, err := c.provider.ListChangedSince(ctx, intent.FileID, since)
	if err != nil {
		return fmt.Errorf("list changed files: %w", err)
	}

	for _, f := range changed {
		if f.MimeType == domain.MimeTypeFolder {
			continue
		}
		change := domain.ChangeModified
		revision := f.Fingerprint()
		if f.Trashed {
			change = domain.ChangeDeleted
			revision = "deleted"
		}
		child := domain.ChangeIntent{
			ID:          uuid.NewString(),
			FileID:      f.ID,
			ChangeType:  change,
			Source:      intent.Source,
			DedupeToken: domain.DedupeToken(f.ID, revision),
			ObservedAt:  intent.ObservedAt,
		}
		if err := c.queue.Publish(ctx, child); err != nil {
			return fmt.Errorf("publish expanded intent: %w", err)
		}
	}
	logger.Debug("sweep %s expanded into %d intents", intent.ID, len(changed))
	return nil
}

// processUpload brings one file's object and record up to the current
// provider revision. The record claim is the concurrency gate: the
// conditional write admits at most one worker per fingerprint
// transition, so concurrent intents for the same file cannot clobber
// each other's uploads.
func (c *UploadCoordinator) processUpload(ctx context.Context, fileID string) error {
	file, err := c.provider.GetFile(ctx, fileID)
	if err != nil {
		if isNotFound(err) {
			// Vanished between observation and processing.
			return c.processDeletion(ctx, fileID)
		}
		return fmt.Errorf("fetch metadata: %w", err)
	}
	if file.Trashed {
		return c.processDeletion(ctx, fileID)
	}

	fingerprint := file.Fingerprint()
	rec, err := c.store.GetRecord(ctx, fileID)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("load record: %w", err)
	}

	var expected string
	if rec != nil {
		if rec.Status == domain.StatusSynced && rec.ContentFingerprint == fingerprint {
			c.duplicates.Add(1)
			return nil
		}
		expected = rec.ContentFingerprint
	}

	key := domain.DestinationKey(c.cfg.KeyPrefix, *file)
	claim := domain.FileRecord{
		FileID:             fileID,
		Path:               file.Name,
		ContentFingerprint: fingerprint,
		DestinationKey:     key,
		Status:             domain.StatusPending,
		UpdatedAt:          c.now(),
	}
	won, err := c.claim(ctx, claim, expected, fingerprint)
	if err != nil {
		return err
	}
	if !won {
		c.duplicates.Add(1)
		return nil
	}

	if err := c.transfer(ctx, *file, key); err != nil {
		return err
	}

	confirmed := claim
	confirmed.Status = domain.StatusSynced
	confirmed.LastSyncedAt = c.now()
	confirmed.LastError = ""
	confirmed.UpdatedAt = confirmed.LastSyncedAt
	if err := c.store.SaveRecord(ctx, confirmed, fingerprint); err != nil {
		if errors.Is(err, domain.ErrStateConflict) {
			// A newer revision overtook this upload; its worker owns
			// the record now.
			c.duplicates.Add(1)
			return nil
		}
		return fmt.Errorf("confirm record: %w", err)
	}

	c.uploaded.Add(1)
	logger.Info("uploaded %s -> %s", fileID, key)
	return nil
}

// claim writes the pending record conditionally. On conflict it retries
// once from a fresh read; losing the retry too means another worker is
// actively moving the same file and this intent stands down.
func (c *UploadCoordinator) claim(ctx context.Context, claim domain.FileRecord, expected, fingerprint string) (bool, error) {
	err := c.store.SaveRecord(ctx, claim, expected)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, domain.ErrStateConflict) {
		return false, fmt.Errorf("claim record: %w", err)
	}

	fresh, err := c.store.GetRecord(ctx, claim.FileID)
	if err != nil && !isNotFound(err) {
		return false, fmt.Errorf("reload record: %w", err)
	}
	if fresh != nil && fresh.Status == domain.StatusSynced && fresh.ContentFingerprint == fingerprint {
		return false, nil
	}
	freshExpected := ""
	if fresh != nil {
		freshExpected = fresh.ContentFingerprint
	}
	if err := c.store.SaveRecord(ctx, claim, freshExpected); err != nil {
		if errors.Is(err, domain.ErrStateConflict) {
			return false, nil
		}
		return false, fmt.Errorf("claim record: %w", err)
	}
	return true, nil
}

// transfer streams the file from the provider into the bucket.
func (c *UploadCoordinator) transfer(ctx context.Context, file domain.RemoteFile, key string) error {
	content, contentType, err := c.provider.Download(ctx, file)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer content.Close()

	size := file.Size
	if domain.IsWorkspaceFile(file.MimeType) {
		// Export size is unknown until the stream ends.
		size = -1
	}
	req := driven.PutRequest{
		Key:         key,
		ContentType: contentType,
		Size:        size,
		Metadata: map[string]string{
			"source-file-id":      file.ID,
			"source-name":         domain.SanitizeObjectName(file.Name),
			"content-fingerprint": file.Fingerprint(),
			"source-modified-at":  file.ModifiedTime.UTC().Format(time.RFC3339),
		},
	}
	if err := c.objects.Put(ctx, req, content); err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	return nil
}

// processDeletion removes the object and tombstones the record.
// Deleting an untracked or already deleted file is a no-op.
func (c *UploadCoordinator) processDeletion(ctx context.Context, fileID string) error {
	rec, err := c.store.GetRecord(ctx, fileID)
	if err != nil {
		if isNotFound(err) {
			c.duplicates.Add(1)
			return nil
		}
		return fmt.Errorf("load record: %w", err)
	}
	if rec.Status == domain.StatusDeleted {
		c.duplicates.Add(1)
		return nil
	}

	if rec.DestinationKey != "" {
		if err := c.objects.Remove(ctx, rec.DestinationKey); err != nil {
			return fmt.Errorf("remove object: %w", err)
		}
	}

	tombstone := *rec
	tombstone.Status = domain.StatusDeleted
	tombstone.LastError = ""
	tombstone.UpdatedAt = c.now()
	if err := c.store.SaveRecord(ctx, tombstone, rec.ContentFingerprint); err != nil {
		if errors.Is(err, domain.ErrStateConflict) {
			// Re-created or re-uploaded concurrently; the newer write wins.
			c.duplicates.Add(1)
			return nil
		}
		return fmt.Errorf("tombstone record: %w", err)
	}
	logger.Info("removed %s (%s)", fileID, rec.DestinationKey)
	return nil
}

// Status returns a snapshot of the pool's counters.
func (c *UploadCoordinator) Status() driving.CoordinatorStatus {
	return driving.CoordinatorStatus{
		Processed:    c.processed.Load(),
		Uploaded:     c.uploaded.Load(),
		Duplicates:   c.duplicates.Load(),
		Retried:      c.retried.Load(),
		DeadLettered: c.deadLettered.Load(),
	}
}
