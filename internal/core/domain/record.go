package domain

import (
	"fmt"
	"time"
)

// SyncStatus describes where a tracked file is in its sync lifecycle.
type SyncStatus string

// File record statuses.
const (
	// StatusPending means a change has been observed but not yet uploaded.
	StatusPending SyncStatus = "pending"

	// StatusSynced means the recorded fingerprint matches a confirmed upload.
	StatusSynced SyncStatus = "synced"

	// StatusFailed means processing exhausted its retry budget.
	StatusFailed SyncStatus = "failed"

	// StatusDeleted means the provider reported the file removed.
	// Records are tombstoned, never physically purged.
	StatusDeleted SyncStatus = "deleted"
)

// FileRecord is the durable sync state for one tracked file.
// There is at most one record per FileID. ContentFingerprint advances
// only after a confirmed successful upload.
type FileRecord struct {
	// FileID is the provider-assigned stable identifier.
	FileID string

	// Path is the folder-relative file name.
	Path string

	// ContentFingerprint identifies the last-synced content version.
	ContentFingerprint string

	// DestinationKey is the object-storage key the content lives under.
	DestinationKey string

	// Status is the current lifecycle state.
	Status SyncStatus

	// LastSyncedAt is when the last successful upload was committed.
	LastSyncedAt time.Time

	// LastError holds the final error message when Status is failed.
	LastError string

	// UpdatedAt is when the record was last written.
	UpdatedAt time.Time
}

// RemoteFile is file metadata as reported by the storage provider.
type RemoteFile struct {
	// ID is the provider-assigned stable identifier.
	ID string

	// Name is the file name within the monitored folder.
	Name string

	// MimeType is the provider-reported content type.
	MimeType string

	// Size is the content size in bytes. Zero for provider-native
	// documents that have no fixed binary representation.
	Size int64

	// MD5Checksum is the provider-computed content hash.
	// Empty for provider-native documents (Docs, Sheets, Slides).
	MD5Checksum string

	// Version is a monotonically increasing revision counter.
	Version int64

	// ModifiedTime is the last content modification time.
	ModifiedTime time.Time

	// Trashed reports whether the file has been moved to the trash.
	Trashed bool
}

// Fingerprint returns the stable content-version marker for the file.
// Binary files use the provider's MD5 checksum; provider-native documents
// fall back to the revision counter plus modification time, which the
// provider guarantees to advance on every content change. Two fingerprints
// are equal exactly when the strings are equal.
func (f RemoteFile) Fingerprint() string {
	if f.MD5Checksum != "" {
		return "md5:" + f.MD5Checksum
	}
	return fmt.Sprintf("rev:%d:%d", f.Version, f.ModifiedTime.UTC().UnixNano())
}
