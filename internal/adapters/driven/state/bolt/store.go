// Package bolt provides a bbolt-backed StateStore, a single-file
// alternative to the SQLite backend for hosts without a writable temp
// directory for WAL side files.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/celalgokce/gdrive-sync-clean/internal/core/domain"
	"github.com/celalgokce/gdrive-sync-clean/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.StateStore = (*Store)(nil)

// Bucket names.
var (
	bucketRecords  = []byte("records")
	bucketCursors  = []byte("cursors")
	bucketChannels = []byte("channels")
)

// storedRecord is the persisted form of a file record.
type storedRecord struct {
	FileID             string    `json:"file_id"`
	Path               string    `json:"path"`
	ContentFingerprint string    `json:"content_fingerprint"`
	DestinationKey     string    `json:"destination_key"`
	Status             string    `json:"status"`
	LastSyncedAt       time.Time `json:"last_synced_at,omitempty"`
	LastError          string    `json:"last_error,omitempty"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func toStoredRecord(rec domain.FileRecord) storedRecord {
	return storedRecord{
		FileID:             rec.FileID,
		Path:               rec.Path,
		ContentFingerprint: rec.ContentFingerprint,
		DestinationKey:     rec.DestinationKey,
		Status:             string(rec.Status),
		LastSyncedAt:       rec.LastSyncedAt,
		LastError:          rec.LastError,
		UpdatedAt:          rec.UpdatedAt,
	}
}

func (s storedRecord) toDomain() domain.FileRecord {
	return domain.FileRecord{
		FileID:             s.FileID,
		Path:               s.Path,
		ContentFingerprint: s.ContentFingerprint,
		DestinationKey:     s.DestinationKey,
		Status:             domain.SyncStatus(s.Status),
		LastSyncedAt:       s.LastSyncedAt,
		LastError:          s.LastError,
		UpdatedAt:          s.UpdatedAt,
	}
}

// storedCursor is the persisted form of a sync cursor.
type storedCursor struct {
	FolderID         string    `json:"folder_id"`
	LastCheckedAt    time.Time `json:"last_checked_at"`
	LastFullListHash string    `json:"last_full_list_hash,omitempty"`
}

// storedChannel is the persisted form of a webhook channel.
type storedChannel struct {
	ChannelID  string    `json:"channel_id"`
	ResourceID string    `json:"resource_id"`
	FolderID   string    `json:"folder_id"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Store is a bbolt-backed implementation of driven.StateStore.
// SaveRecord's read-compare-write runs inside one update transaction;
// bbolt allows a single writer, so conditional writers serialize.
type Store struct {
	db *bbolt.DB
}

// NewStore opens or creates the database at the given file path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty database path", domain.ErrInvalidInput)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open state %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketRecords, bucketCursors, bucketChannels} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize state: %w", err)
	}

	return &Store{db: db}, nil
}

// GetRecord retrieves the record for a file.
func (s *Store) GetRecord(ctx context.Context, fileID string) (*domain.FileRecord, error) {
	var rec *domain.FileRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(bucketRecords).Get([]byte(fileID))
		if value == nil {
			return fmt.Errorf("record %s: %w", fileID, domain.ErrNotFound)
		}
		var stored storedRecord
		if err := json.Unmarshal(value, &stored); err != nil {
			return fmt.Errorf("decode record %s: %w", fileID, err)
		}
		out := stored.toDomain()
		rec = &out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListRecords returns all records, tombstones included.
func (s *Store) ListRecords(ctx context.Context) ([]domain.FileRecord, error) {
	var records []domain.FileRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRecords).ForEach(func(k, v []byte) error {
			var stored storedRecord
			if err := json.Unmarshal(v, &stored); err != nil {
				return fmt.Errorf("decode record %s: %w", string(k), err)
			}
			records = append(records, stored.toDomain())
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// SaveRecord writes the record if the stored fingerprint still equals
// expectedFingerprint.
func (s *Store) SaveRecord(ctx context.Context, record domain.FileRecord, expectedFingerprint string) error {
	data, err := json.Marshal(toStoredRecord(record))
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketRecords)

		current := ""
		if value := bucket.Get([]byte(record.FileID)); value != nil {
			var stored storedRecord
			if err := json.Unmarshal(value, &stored); err != nil {
				return fmt.Errorf("decode record %s: %w", record.FileID, err)
			}
			current = stored.ContentFingerprint
		}
		if current != expectedFingerprint {
			return fmt.Errorf("record %s: fingerprint moved: %w", record.FileID, domain.ErrStateConflict)
		}
		return bucket.Put([]byte(record.FileID), data)
	})
}

// GetCursor retrieves the reconciliation cursor for a folder.
func (s *Store) GetCursor(ctx context.Context, folderID string) (*domain.SyncCursor, error) {
	var cursor *domain.SyncCursor
	err := s.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(bucketCursors).Get([]byte(folderID))
		if value == nil {
			return fmt.Errorf("cursor %s: %w", folderID, domain.ErrNotFound)
		}
		var stored storedCursor
		if err := json.Unmarshal(value, &stored); err != nil {
			return fmt.Errorf("decode cursor %s: %w", folderID, err)
		}
		cursor = &domain.SyncCursor{
			FolderID:         stored.FolderID,
			LastCheckedAt:    stored.LastCheckedAt,
			LastFullListHash: stored.LastFullListHash,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cursor, nil
}

// SaveCursor atomically replaces the folder's cursor.
func (s *Store) SaveCursor(ctx context.Context, cursor domain.SyncCursor) error {
	data, err := json.Marshal(storedCursor{
		FolderID:         cursor.FolderID,
		LastCheckedAt:    cursor.LastCheckedAt,
		LastFullListHash: cursor.LastFullListHash,
	})
	if err != nil {
		return fmt.Errorf("encode cursor: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCursors).Put([]byte(cursor.FolderID), data)
	})
}

// GetChannel retrieves the active webhook channel for a folder.
func (s *Store) GetChannel(ctx context.Context, folderID string) (*domain.WebhookChannel, error) {
	var channel *domain.WebhookChannel
	err := s.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(bucketChannels).Get([]byte(folderID))
		if value == nil {
			return fmt.Errorf("channel %s: %w", folderID, domain.ErrNotFound)
		}
		var stored storedChannel
		if err := json.Unmarshal(value, &stored); err != nil {
			return fmt.Errorf("decode channel %s: %w", folderID, err)
		}
		channel = &domain.WebhookChannel{
			ChannelID:  stored.ChannelID,
			ResourceID: stored.ResourceID,
			FolderID:   stored.FolderID,
			ExpiresAt:  stored.ExpiresAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return channel, nil
}

// SaveChannel replaces the folder's webhook channel record.
func (s *Store) SaveChannel(ctx context.Context, channel domain.WebhookChannel) error {
	data, err := json.Marshal(storedChannel{
		ChannelID:  channel.ChannelID,
		ResourceID: channel.ResourceID,
		FolderID:   channel.FolderID,
		ExpiresAt:  channel.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("encode channel: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketChannels).Put([]byte(channel.FolderID), data)
	})
}

// Reset clears all records, cursors and channels.
func (s *Store) Reset(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketRecords, bucketCursors, bucketChannels} {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}

// Ping verifies the database is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketRecords) == nil {
			return fmt.Errorf("records bucket missing: %w", domain.ErrTransientStorage)
		}
		return nil
	})
}

// Close closes the database file.
func (s *Store) Close() error {
	return s.db.Close()
}
