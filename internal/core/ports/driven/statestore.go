package driven

import (
	"context"

	"github.com/celalgokce/gdrive-sync-clean/internal/core/domain"
)

// StateStore owns all persisted sync state: FileRecords keyed by file
// id, SyncCursors and WebhookChannels keyed by folder id.
//
// SaveRecord is the concurrency primitive the whole pipeline leans on:
// a compare-and-swap on the record's content fingerprint. Multiple
// coordinator workers may process intents for the same file; the
// conditional write guarantees at most one effective writer per
// transition, so no worker ever overwrites a fingerprint with stale
// data. Implementations must make the read-compare-write atomic.
type StateStore interface {
	// GetRecord retrieves the record for a file.
	// Returns domain.ErrNotFound when none exists.
	GetRecord(ctx context.Context, fileID string) (*domain.FileRecord, error)

	// ListRecords returns all records, tombstones included.
	ListRecords(ctx context.Context) ([]domain.FileRecord, error)

	// SaveRecord writes the record if the stored fingerprint still
	// equals expectedFingerprint. An empty expectedFingerprint means
	// "no confirmed upload yet": it matches a missing record or one
	// whose fingerprint is empty. On mismatch the write is discarded
	// and domain.ErrStateConflict returned; the caller retries from a
	// fresh read.
	SaveRecord(ctx context.Context, record domain.FileRecord, expectedFingerprint string) error

	// GetCursor retrieves the reconciliation cursor for a folder.
	// Returns domain.ErrNotFound when no pass has completed yet.
	GetCursor(ctx context.Context, folderID string) (*domain.SyncCursor, error)

	// SaveCursor atomically replaces the folder's cursor.
	SaveCursor(ctx context.Context, cursor domain.SyncCursor) error

	// GetChannel retrieves the active webhook channel for a folder.
	// Returns domain.ErrNotFound when none has been opened.
	GetChannel(ctx context.Context, folderID string) (*domain.WebhookChannel, error)

	// SaveChannel replaces the folder's webhook channel record.
	SaveChannel(ctx context.Context, channel domain.WebhookChannel) error

	// Reset clears all records, cursors and channels, forcing the next
	// reconciliation pass to re-sync everything. Destructive.
	Reset(ctx context.Context) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
