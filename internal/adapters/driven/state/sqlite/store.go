// Package sqlite provides the SQLite-backed StateStore, the default
// durable state backend.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	sqlite3 "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	"github.com/celalgokce/gdrive-sync-clean/internal/adapters/driven/state/sqlite/migrations"
	"github.com/celalgokce/gdrive-sync-clean/internal/core/domain"
	"github.com/celalgokce/gdrive-sync-clean/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.StateStore = (*Store)(nil)

// Store is a SQLite-backed implementation of driven.StateStore.
// SaveRecord's read-compare-write runs inside an immediate transaction,
// which serializes conditional writers on the database lock.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens or creates the database at the given file path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty database path", domain.ErrInvalidInput)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// WAL mode for concurrent readers; busy_timeout makes writers wait
	// for the lock instead of failing immediately. Immediate transactions
	// take the write lock at BEGIN, so SaveRecord's read-compare-write
	// never has to upgrade a read lock mid-transaction.
	db, err := sql.Open("sqlite",
		path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

// GetRecord retrieves the record for a file.
func (s *Store) GetRecord(ctx context.Context, fileID string) (*domain.FileRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT file_id, path, content_fingerprint, destination_key, status, last_synced_at, last_error, updated_at
		FROM file_records
		WHERE file_id = ?
	`, fileID)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("record %s: %w", fileID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting record: %w", err)
	}
	return rec, nil
}

// ListRecords returns all records, tombstones included.
func (s *Store) ListRecords(ctx context.Context) ([]domain.FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_id, path, content_fingerprint, destination_key, status, last_synced_at, last_error, updated_at
		FROM file_records
		ORDER BY file_id
	`)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var records []domain.FileRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// isBusy reports whether the driver gave up waiting for the database
// lock (SQLITE_BUSY, after the busy_timeout elapsed). Extended busy
// codes carry the base code in the low byte.
func isBusy(err error) bool {
	var se *sqlite3.Error
	return errors.As(err, &se) && se.Code()&0xff == sqlitelib.SQLITE_BUSY
}

// writeErr wraps a write-path error, surfacing lock contention as a
// retryable storage failure instead of a raw driver error.
func writeErr(op string, err error) error {
	if isBusy(err) {
		return fmt.Errorf("%s: %v: %w", op, err, domain.ErrTransientStorage)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func scanRecord(row rowScanner) (*domain.FileRecord, error) {
	var rec domain.FileRecord
	var status string
	var lastSynced sql.NullTime
	if err := row.Scan(
		&rec.FileID, &rec.Path, &rec.ContentFingerprint, &rec.DestinationKey,
		&status, &lastSynced, &rec.LastError, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rec.Status = domain.SyncStatus(status)
	if lastSynced.Valid {
		rec.LastSyncedAt = lastSynced.Time
	}
	return &rec, nil
}

// SaveRecord writes the record if the stored fingerprint still equals
// expectedFingerprint.
func (s *Store) SaveRecord(ctx context.Context, record domain.FileRecord, expectedFingerprint string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return writeErr("beginning transaction", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx,
		"SELECT content_fingerprint FROM file_records WHERE file_id = ?",
		record.FileID,
	).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return writeErr("reading current fingerprint", err)
	}
	if current != expectedFingerprint {
		return fmt.Errorf("record %s: fingerprint moved: %w", record.FileID, domain.ErrStateConflict)
	}

	var lastSynced any
	if !record.LastSyncedAt.IsZero() {
		lastSynced = record.LastSyncedAt.UTC()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO file_records (file_id, path, content_fingerprint, destination_key, status, last_synced_at, last_error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_id) DO UPDATE SET
			path = excluded.path,
			content_fingerprint = excluded.content_fingerprint,
			destination_key = excluded.destination_key,
			status = excluded.status,
			last_synced_at = excluded.last_synced_at,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`, record.FileID, record.Path, record.ContentFingerprint, record.DestinationKey,
		string(record.Status), lastSynced, record.LastError, record.UpdatedAt.UTC())
	if err != nil {
		return writeErr("saving record", err)
	}

	if err := tx.Commit(); err != nil {
		return writeErr("committing record", err)
	}
	return nil
}

// GetCursor retrieves the reconciliation cursor for a folder.
func (s *Store) GetCursor(ctx context.Context, folderID string) (*domain.SyncCursor, error) {
	var cursor domain.SyncCursor
	err := s.db.QueryRowContext(ctx, `
		SELECT folder_id, last_checked_at, last_full_list_hash
		FROM sync_cursors
		WHERE folder_id = ?
	`, folderID).Scan(&cursor.FolderID, &cursor.LastCheckedAt, &cursor.LastFullListHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("cursor %s: %w", folderID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting cursor: %w", err)
	}
	return &cursor, nil
}

// SaveCursor atomically replaces the folder's cursor.
func (s *Store) SaveCursor(ctx context.Context, cursor domain.SyncCursor) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_cursors (folder_id, last_checked_at, last_full_list_hash)
		VALUES (?, ?, ?)
		ON CONFLICT(folder_id) DO UPDATE SET
			last_checked_at = excluded.last_checked_at,
			last_full_list_hash = excluded.last_full_list_hash
	`, cursor.FolderID, cursor.LastCheckedAt.UTC(), cursor.LastFullListHash)
	if err != nil {
		return writeErr("saving cursor", err)
	}
	return nil
}

// GetChannel retrieves the active webhook channel for a folder.
func (s *Store) GetChannel(ctx context.Context, folderID string) (*domain.WebhookChannel, error) {
	var channel domain.WebhookChannel
	err := s.db.QueryRowContext(ctx, `
		SELECT folder_id, channel_id, resource_id, expires_at
		FROM webhook_channels
		WHERE folder_id = ?
	`, folderID).Scan(&channel.FolderID, &channel.ChannelID, &channel.ResourceID, &channel.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("channel %s: %w", folderID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting channel: %w", err)
	}
	return &channel, nil
}

// SaveChannel replaces the folder's webhook channel record.
func (s *Store) SaveChannel(ctx context.Context, channel domain.WebhookChannel) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_channels (folder_id, channel_id, resource_id, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(folder_id) DO UPDATE SET
			channel_id = excluded.channel_id,
			resource_id = excluded.resource_id,
			expires_at = excluded.expires_at
	`, channel.FolderID, channel.ChannelID, channel.ResourceID, channel.ExpiresAt.UTC())
	if err != nil {
		return writeErr("saving channel", err)
	}
	return nil
}

// Reset clears all records, cursors and channels.
func (s *Store) Reset(ctx context.Context) error {
	for _, table := range []string{"file_records", "sync_cursors", "webhook_channels"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrTransientStorage)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
