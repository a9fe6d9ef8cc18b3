// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the pipeline to function:
//
//   - DriveProvider: Lists, fetches and watches the monitored folder
//   - ObjectStore: Destination bucket uploads and removals
//   - IntentQueue: Durable at-least-once change-intent transport
//   - StateStore: Persisted FileRecord / SyncCursor / WebhookChannel state
//
// The StateStore is the single source of truth for "last synced
// fingerprint per file". All mutation goes through its conditional-write
// contract; no component shares mutable memory with another.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
