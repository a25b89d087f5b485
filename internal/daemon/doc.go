// Package daemon runs the long-lived uniloader process.
//
// It wires configuration, the retention ledger, the artifact manager, the
// retrieval orchestrator, and the request service into a single lifecycle and
// exposes them over HTTP. The storage root lock taken by the artifact manager
// keeps a second daemon from sharing the same artifacts. Background sweeps
// reclaim orphaned files and prune old ledger rows.
//
// Keep request semantics in internal/api and the lifecycle rules in
// internal/artifacts; this package focuses on startup, shutdown, routing, and
// middleware.
package daemon
