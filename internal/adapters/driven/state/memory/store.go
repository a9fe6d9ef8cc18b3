// Package memory provides an in-memory StateStore for tests and
// throwaway runs. State does not survive the process.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/celalgokce/gdrive-sync-clean/internal/core/domain"
	"github.com/celalgokce/gdrive-sync-clean/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.StateStore = (*Store)(nil)

// Store is an in-memory implementation of driven.StateStore.
type Store struct {
	mu       sync.RWMutex
	records  map[string]domain.FileRecord
	cursors  map[string]domain.SyncCursor
	channels map[string]domain.WebhookChannel
	closed   bool
}

// NewStore creates a new in-memory state store.
func NewStore() *Store {
	return &Store{
		records:  make(map[string]domain.FileRecord),
		cursors:  make(map[string]domain.SyncCursor),
		channels: make(map[string]domain.WebhookChannel),
	}
}

// GetRecord retrieves the record for a file.
func (s *Store) GetRecord(ctx context.Context, fileID string) (*domain.FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[fileID]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", fileID, domain.ErrNotFound)
	}
	out := rec
	return &out, nil
}

// ListRecords returns all records, tombstones included.
func (s *Store) ListRecords(ctx context.Context) ([]domain.FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.FileRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out, nil
}

// SaveRecord writes the record if the stored fingerprint still equals
// expectedFingerprint. The whole read-compare-write happens under the
// write lock, so concurrent savers serialize.
func (s *Store) SaveRecord(ctx context.Context, record domain.FileRecord, expectedFingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := ""
	if existing, ok := s.records[record.FileID]; ok {
		current = existing.ContentFingerprint
	}
	if current != expectedFingerprint {
		return fmt.Errorf("record %s: fingerprint moved: %w", record.FileID, domain.ErrStateConflict)
	}
	s.records[record.FileID] = record
	return nil
}

// GetCursor retrieves the reconciliation cursor for a folder.
func (s *Store) GetCursor(ctx context.Context, folderID string) (*domain.SyncCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cursor, ok := s.cursors[folderID]
	if !ok {
		return nil, fmt.Errorf("cursor %s: %w", folderID, domain.ErrNotFound)
	}
	out := cursor
	return &out, nil
}

// SaveCursor replaces the folder's cursor.
func (s *Store) SaveCursor(ctx context.Context, cursor domain.SyncCursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[cursor.FolderID] = cursor
	return nil
}

// GetChannel retrieves the active webhook channel for a folder.
func (s *Store) GetChannel(ctx context.Context, folderID string) (*domain.WebhookChannel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	channel, ok := s.channels[folderID]
	if !ok {
		return nil, fmt.Errorf("channel %s: %w", folderID, domain.ErrNotFound)
	}
	out := channel
	return &out, nil
}

// SaveChannel replaces the folder's webhook channel record.
func (s *Store) SaveChannel(ctx context.Context, channel domain.WebhookChannel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[channel.FolderID] = channel
	return nil
}

// Reset clears all records, cursors and channels.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]domain.FileRecord)
	s.cursors = make(map[string]domain.SyncCursor)
	s.channels = make(map[string]domain.WebhookChannel)
	return nil
}

// Ping verifies the store is usable.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("state store closed: %w", domain.ErrTransientStorage)
	}
	return nil
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
