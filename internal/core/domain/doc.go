// Package domain defines the core business entities for the Drive-to-bucket
// sync pipeline.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - FileRecord: The durable per-file sync state
//   - ChangeIntent: A queued instruction to re-evaluate one file
//   - SyncCursor: Where the last reconciliation pass left off
//   - WebhookChannel: An active push-notification subscription
//   - RemoteFile: File metadata as reported by the storage provider
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
