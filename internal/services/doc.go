// Package services defines shared utilities consumed by the request handlers
// and the external tool integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, operation names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that translate failures
//     into the caller-facing taxonomy (validation, extraction, conversion,
//     not found).
//
// Subpackages wrap individual external tools (see services/ytdlp) so argument
// handling and exit-status interpretation stay in one place.
package services
