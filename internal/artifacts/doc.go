// Package artifacts owns the storage root where retrieved files live.
//
// The Manager is the only component that creates paths for, registers, serves,
// or deletes artifacts. Each registered artifact gets exactly one expiry timer;
// serving never extends or shortens its life. When a ledger is attached the
// schedule is persisted so Restore can reclaim overdue files and re-arm the
// remaining timers after a restart. Sweep removes stray files that no record
// accounts for once they are older than the retention window.
//
// An advisory flock on the root keeps two processes from managing the same
// directory.
package artifacts
