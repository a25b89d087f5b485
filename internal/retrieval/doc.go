// Package retrieval runs yt-dlp retrieval jobs and hands finished files to the
// artifact manager.
//
// A Job moves running -> succeeded -> expired, or running -> failed. The
// Orchestrator supervises each external process on its own goroutine so a long
// transcode never holds up other requests; callers either wait on the channel
// returned by Start or use Retrieve. The process is bound to the caller's
// context: cancelling it kills yt-dlp, fails the job, and discards partial
// output.
package retrieval
