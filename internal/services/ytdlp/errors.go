package ytdlp

import (
	"fmt"
	"strings"
)

// ToolError describes a failed yt-dlp invocation. Stderr holds only the tail of
// the diagnostic stream.
type ToolError struct {
	Op       string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("yt-dlp %s failed", e.Op)
	if e.ExitCode > 0 {
		msg += fmt.Sprintf(" (exit %d)", e.ExitCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

// FormatUnavailable reports whether yt-dlp rejected the format selector.
func (e *ToolError) FormatUnavailable() bool {
	return strings.Contains(strings.ToLower(e.Stderr), "requested format is not available")
}
