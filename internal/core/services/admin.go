package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/celalgokce/gdrive-sync-clean/internal/core/domain"
	"github.com/celalgokce/gdrive-sync-clean/internal/core/ports/driven"
	"github.com/celalgokce/gdrive-sync-clean/internal/logger"
)

// HealthReport holds per-dependency outcomes of a deep health check.
// A nil error means the dependency answered.
type HealthReport struct {
	Provider error
	Queue    error
	State    error
	Objects  error
}

// Healthy reports whether every dependency answered.
func (r HealthReport) Healthy() bool {
	return r.Provider == nil && r.Queue == nil && r.State == nil && r.Objects == nil
}

// MigrationSummary counts what a state migration carried over.
type MigrationSummary struct {
	Records  int
	Cursors  int
	Channels int
	Skipped  int
}

// Admin bundles the operational commands: deep health checks, state
// backend migration and destructive resets. It is driven by the CLI,
// never by the sync pipeline.
type Admin struct {
	provider driven.DriveProvider
	queue    driven.IntentQueue
	store    driven.StateStore
	objects  driven.ObjectStore
	folderID string
}

// NewAdmin creates the admin service.
func NewAdmin(
	provider driven.DriveProvider,
	queue driven.IntentQueue,
	store driven.StateStore,
	objects driven.ObjectStore,
	folderID string,
) *Admin {
	return &Admin{
		provider: provider,
		queue:    queue,
		store:    store,
		objects:  objects,
		folderID: folderID,
	}
}

// HealthCheck pings every dependency and reports each outcome
// individually, so an operator sees exactly which leg is down.
func (a *Admin) HealthCheck(ctx context.Context) HealthReport {
	return HealthReport{
		Provider: a.provider.Ping(ctx),
		Queue:    a.queue.Ping(ctx),
		State:    a.store.Ping(ctx),
		Objects:  a.objects.Ping(ctx),
	}
}

// MigrateState copies all sync state from one backend to another. Safe
// to re-run: records already present in the destination with the same
// fingerprint are skipped, not rewritten.
func MigrateState(ctx context.Context, from, to driven.StateStore, folderID string) (*MigrationSummary, error) {
	summary := &MigrationSummary{}

	records, err := from.ListRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("list source records: %w", err)
	}
	for _, rec := range records {
		existing, err := to.GetRecord(ctx, rec.FileID)
		if err != nil && !isNotFound(err) {
			return nil, fmt.Errorf("read destination record %s: %w", rec.FileID, err)
		}
		expected := ""
		if existing != nil {
			if existing.ContentFingerprint == rec.ContentFingerprint && existing.Status == rec.Status {
				summary.Skipped++
				continue
			}
			expected = existing.ContentFingerprint
		}
		if err := to.SaveRecord(ctx, rec, expected); err != nil {
			if errors.Is(err, domain.ErrStateConflict) {
				summary.Skipped++
				continue
			}
			return nil, fmt.Errorf("write record %s: %w", rec.FileID, err)
		}
		summary.Records++
	}

	cursor, err := from.GetCursor(ctx, folderID)
	if err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("read source cursor: %w", err)
	}
	if cursor != nil {
		if err := to.SaveCursor(ctx, *cursor); err != nil {
			return nil, fmt.Errorf("write cursor: %w", err)
		}
		summary.Cursors++
	}

	channel, err := from.GetChannel(ctx, folderID)
	if err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("read source channel: %w", err)
	}
	if channel != nil {
		if err := to.SaveChannel(ctx, *channel); err != nil {
			return nil, fmt.Errorf("write channel: %w", err)
		}
		summary.Channels++
	}

	logger.Info("state migration: %d records, %d cursors, %d channels, %d skipped",
		summary.Records, summary.Cursors, summary.Channels, summary.Skipped)
	return summary, nil
}

// ResetState wipes all sync state. The next reconciliation pass will
// re-sync the folder from scratch; objects in the bucket are untouched.
func (a *Admin) ResetState(ctx context.Context) error {
	if err := a.store.Reset(ctx); err != nil {
		return fmt.Errorf("reset state: %w", err)
	}
	logger.Warn("sync state wiped, next pass performs a full re-sync")
	return nil
}
