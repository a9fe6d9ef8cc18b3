package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/celalgokce/gdrive-sync-clean/internal/core/domain"
	"github.com/celalgokce/gdrive-sync-clean/internal/core/ports/driven"
	"github.com/celalgokce/gdrive-sync-clean/internal/core/ports/driving"
	"github.com/celalgokce/gdrive-sync-clean/internal/logger"
)

// Ensure FolderReconciler implements the interface.
var _ driving.Reconciler = (*FolderReconciler)(nil)

// ReconcilerConfig configures the reconciliation loop.
type ReconcilerConfig struct {
	// FolderID is the monitored folder.
	FolderID string

	// Interval is the base delay between passes.
	Interval time.Duration

	// Backoff stretches the next-tick delay after failed passes.
	// It never blocks or retries the current tick.
	Backoff domain.RetryPolicy

	// PassTimeout is the deadline for one full pass, listing included.
	// A pass that overruns it aborts with the cursor untouched and is
	// retried on the next tick.
	PassTimeout time.Duration
}

func (c *ReconcilerConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 2 * time.Minute
	}
	if c.Backoff.MaxAttempts == 0 {
		c.Backoff = domain.DefaultRetryPolicy()
	}
	if c.PassTimeout <= 0 {
		c.PassTimeout = 10 * time.Minute
	}
}

// FolderReconciler is the polling safety net. On every tick it consumes
// the folder's full listing, diffs it against stored records and
// enqueues an intent for every delta the notifier may have missed.
// Webhook delivery is best-effort and channels expire; reconciliation
// is what guarantees eventual convergence.
type FolderReconciler struct {
	provider driven.DriveProvider
	store    driven.StateStore
	queue    driven.IntentQueue
	cfg      ReconcilerConfig

	// mu enforces one active pass per folder. A tick that fires while
	// a pass is running is skipped, not queued.
	mu       sync.Mutex
	failures int

	now func() time.Time
}

// NewFolderReconciler creates a reconciler for one monitored folder.
func NewFolderReconciler(
	provider driven.DriveProvider,
	store driven.StateStore,
	queue driven.IntentQueue,
	cfg ReconcilerConfig,
) *FolderReconciler {
	cfg.applyDefaults()
	return &FolderReconciler{
		provider: provider,
		store:    store,
		queue:    queue,
		cfg:      cfg,
		now:      time.Now,
	}
}

// RunPass performs one full reconciliation pass. The cursor is advanced
// only after the complete listing has been consumed and every delta
// enqueued; any failure aborts the pass with the cursor untouched.
func (r *FolderReconciler) RunPass(ctx context.Context, folderID string) (*driving.PassResult, error) {
	if !r.mu.TryLock() {
		return nil, domain.ErrPassInProgress
	}
	defer r.mu.Unlock()

	listing, err := r.listAll(ctx, folderID)
	if err != nil {
		return nil, fmt.Errorf("list folder: %w", err)
	}
	hash := listingHash(listing)

	cursor, err := r.store.GetCursor(ctx, folderID)
	if err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("load cursor: %w", err)
	}

	result := &driving.PassResult{FilesListed: len(listing)}

	if cursor != nil && cursor.LastFullListHash == hash {
		// Nothing moved since the last pass; skip the diff.
		result.Unchanged = true
	} else if err := r.diffAndEnqueue(ctx, listing, result); err != nil {
		return nil, err
	}

	finished := r.now()
	if err := r.store.SaveCursor(ctx, domain.SyncCursor{
		FolderID:         folderID,
		LastCheckedAt:    finished,
		LastFullListHash: hash,
	}); err != nil {
		return nil, fmt.Errorf("save cursor: %w", err)
	}
	result.FinishedAt = finished

	logger.Info("reconciliation pass: %d listed, +%d ~%d -%d",
		result.FilesListed, result.Additions, result.Modifications, result.Deletions)
	return result, nil
}

// listAll consumes every page of the folder listing. A partial listing
// is never returned: the first page error aborts the whole pass.
func (r *FolderReconciler) listAll(ctx context.Context, folderID string) ([]domain.RemoteFile, error) {
	var files []domain.RemoteFile
	pageToken := ""
	for {
		page, err := r.provider.ListFolder(ctx, folderID, pageToken)
		if err != nil {
			return nil, err
		}
		for _, f := range page.Files {
			if f.Trashed || f.MimeType == domain.MimeTypeFolder {
				continue
			}
			files = append(files, f)
		}
		if page.NextPageToken == "" {
			return files, nil
		}
		pageToken = page.NextPageToken
	}
}

// diffAndEnqueue compares the listing against stored records and
// publishes an intent per delta.
func (r *FolderReconciler) diffAndEnqueue(ctx context.Context, listing []domain.RemoteFile, result *driving.PassResult) error {
	records, err := r.store.ListRecords(ctx)
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}
	byID := make(map[string]domain.FileRecord, len(records))
	for _, rec := range records {
		byID[rec.FileID] = rec
	}

	listed := make(map[string]bool, len(listing))
	for _, f := range listing {
		listed[f.ID] = true

		rec, known := byID[f.ID]
		switch {
		case !known || rec.Status == domain.StatusDeleted:
			if err := r.publishDelta(ctx, f, domain.ChangeCreated); err != nil {
				return err
			}
			result.Additions++
		case rec.ContentFingerprint != f.Fingerprint():
			if err := r.publishDelta(ctx, f, domain.ChangeModified); err != nil {
				return err
			}
			result.Modifications++
		}
	}

	for _, rec := range records {
		if listed[rec.FileID] {
			continue
		}
		if rec.Status != domain.StatusSynced && rec.Status != domain.StatusPending {
			continue
		}
		intent := domain.ChangeIntent{
			ID:          uuid.NewString(),
			FileID:      rec.FileID,
			ChangeType:  domain.ChangeDeleted,
			Source:      domain.SourceReconciler,
			DedupeToken: domain.DedupeToken(rec.FileID, "deleted"),
			ObservedAt:  r.now(),
		}
		if err := r.queue.Publish(ctx, intent); err != nil {
			return fmt.Errorf("publish deletion intent: %w", err)
		}
		result.Deletions++
	}

	return nil
}

func (r *FolderReconciler) publishDelta(ctx context.Context, f domain.RemoteFile, change domain.ChangeType) error {
	intent := domain.ChangeIntent{
		ID:          uuid.NewString(),
		FileID:      f.ID,
		ChangeType:  change,
		Source:      domain.SourceReconciler,
		DedupeToken: domain.DedupeToken(f.ID, f.Fingerprint()),
		ObservedAt:  r.now(),
	}
	if err := r.queue.Publish(ctx, intent); err != nil {
		return fmt.Errorf("publish %s intent: %w", change, err)
	}
	return nil
}

// Run drives passes on a timer until ctx is cancelled. Consecutive
// failures stretch the delay before the next tick; a successful pass
// resets it to the configured interval.
func (r *FolderReconciler) Run(ctx context.Context) error {
	for {
		delay := r.cfg.Interval + r.cfg.Backoff.Delay(r.failures)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		passCtx, cancel := context.WithTimeout(ctx, r.cfg.PassTimeout)
		_, err := r.RunPass(passCtx, r.cfg.FolderID)
		cancel()
		if err != nil {
			if err == domain.ErrPassInProgress {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.failures++
			logger.Warn("reconciliation pass failed (attempt %d): %v", r.failures, err)
			continue
		}
		r.failures = 0
	}
}

// listingHash digests the listing as sorted fileID:fingerprint pairs.
// Equal hashes mean an identical folder state.
func listingHash(files []domain.RemoteFile) string {
	pairs := make([]string, 0, len(files))
	for _, f := range files {
		pairs = append(pairs, f.ID+":"+f.Fingerprint())
	}
	sort.Strings(pairs)

	sum := sha256.Sum256([]byte(strings.Join(pairs, "\n")))
	return hex.EncodeToString(sum[:])
}
