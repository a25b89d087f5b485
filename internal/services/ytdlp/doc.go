// Package ytdlp wraps the yt-dlp command line tool.
//
// The client runs yt-dlp in two modes: metadata-only (--dump-json, one record
// per URL, playlist expansion disabled) and retrieval (format selection or audio
// extraction written to an explicit output template). Every invocation is an
// argument vector handed to the executor; no shell is involved and the source
// URL is always placed after "--".
//
// Tests substitute the Executor to avoid spawning real processes.
package ytdlp
