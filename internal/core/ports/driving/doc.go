// Package driving defines the interfaces through which the outside
// world drives the core.
//
// These are the "driving" or "primary" ports in hexagonal architecture.
// The webhook HTTP adapter and the CLI depend on these interfaces; the
// core services implement them.
//
//   - Notifier: Push-notification ingress and channel renewal
//   - Reconciler: Scheduled listing-based reconciliation
//   - Coordinator: Queue-consuming upload worker pool
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or service package
package driving
