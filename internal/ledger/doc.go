// Package ledger persists the artifact expiry schedule in SQLite.
//
// Each successful retrieval records one row keyed by job id with its deadline.
// Rows stay pending until the artifact manager reclaims the file and marks them
// expired, so a restarted daemon can delete overdue artifacts and re-arm timers
// for the rest. Expired rows are kept for a few days for `uniloader artifacts
// list` and then pruned.
package ledger
