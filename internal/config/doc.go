// Package config loads, normalizes, and validates uniloader configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// UNILOADER_API_BIND and PORT. The Config type centralizes every knob the
// daemon and CLI need: the artifact storage root, the yt-dlp binary and its
// time limits, the retention window, and HTTP boundary settings.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors. The
// storage root is injected from here into the artifact manager; nothing reads
// it from a process-wide global.
package config
