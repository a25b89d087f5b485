// Package preflight runs dependency and environment checks before the daemon
// starts serving, and backs both `uniloader status` and GET /api/health.
//
// Checks never fail hard: each returns a Result with a human-readable detail so
// callers decide whether a failure is fatal.
package preflight
