package preflight

import (
	"context"
	"path/filepath"
	"strings"

	"uniloader/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes every check that applies to cfg.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckBinary(ctx, "yt-dlp", cfg.Tools.YtDlpBinary, "--version"),
		CheckBinary(ctx, "FFmpeg", ffmpegCommand(cfg.Tools.FFmpegLocation), "-version"),
		CheckDirectoryAccess("Storage directory", cfg.Paths.StorageDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}
	if cfg.Server.MinFreeMiB > 0 {
		results = append(results, CheckFreeSpace("Storage free space", cfg.Paths.StorageDir, cfg.Server.MinFreeMiB))
	}
	return results
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// ffmpegCommand resolves the ffmpeg_location setting, which yt-dlp accepts as
// either the binary itself or its directory.
func ffmpegCommand(location string) string {
	location = strings.TrimSpace(location)
	if location == "" {
		return "ffmpeg"
	}
	if filepath.Base(location) == "ffmpeg" {
		return location
	}
	return filepath.Join(location, "ffmpeg")
}
