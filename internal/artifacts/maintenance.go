package artifacts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"uniloader/internal/logging"
)

// RestoreSummary reports what Restore did with the persisted schedule.
type RestoreSummary struct {
	Rescheduled int
	Expired     int
	Missing     int
}

// Restore re-arms timers for pending ledger rows. Overdue artifacts are
// deleted immediately and rows whose file vanished are marked reclaimed.
func (m *Manager) Restore(ctx context.Context) (RestoreSummary, error) {
	var summary RestoreSummary
	if m.ledger == nil {
		return summary, nil
	}
	pending, err := m.ledger.Pending(ctx)
	if err != nil {
		return summary, fmt.Errorf("artifacts: load pending schedule: %w", err)
	}

	now := m.now()
	for _, rec := range pending {
		art := Artifact{
			JobID:     rec.JobID,
			Filename:  rec.Filename,
			Path:      rec.Path,
			Kind:      rec.Kind,
			SizeBytes: rec.SizeBytes,
			CreatedAt: rec.CreatedAt,
			ExpiresAt: rec.ExpiresAt,
		}
		if filepath.Dir(art.Path) != m.root {
			art.Path = filepath.Join(m.root, art.Filename)
		}

		if !now.Before(art.ExpiresAt) {
			if err := m.reclaim(ctx, art, "overdue"); err != nil {
				return summary, err
			}
			summary.Expired++
			continue
		}
		if _, err := os.Stat(art.Path); errors.Is(err, os.ErrNotExist) {
			if err := m.ledger.MarkExpired(ctx, art.JobID, now); err != nil {
				return summary, fmt.Errorf("artifacts: mark missing artifact: %w", err)
			}
			summary.Missing++
			continue
		}

		m.mu.Lock()
		if _, tracked := m.entries[art.JobID]; !tracked {
			m.scheduleLocked(art)
			summary.Rescheduled++
		}
		m.mu.Unlock()
	}

	m.logger.Info("artifact schedule restored",
		logging.Int("rescheduled", summary.Rescheduled),
		logging.Int("expired", summary.Expired),
		logging.Int("missing", summary.Missing),
	)
	return summary, nil
}

// Sweep removes files in the root that neither a tracked artifact nor an
// in-flight job accounts for, once they are older than the retention window.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	dirEntries, err := os.ReadDir(m.root)
	if err != nil {
		return 0, fmt.Errorf("artifacts: read storage root: %w", err)
	}
	cutoff := m.now().Add(-m.retention)
	removed := 0
	for _, de := range dirEntries {
		name := de.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		jobID, _, _ := strings.Cut(name, ".")
		m.mu.Lock()
		_, tracked := m.entries[jobID]
		_, busy := m.inflight[jobID]
		m.mu.Unlock()
		if tracked || busy {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(m.root, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("artifacts: remove orphan %s: %w", name, err)
		}
		removed++
		logging.WithContext(ctx, m.logger).Info("removed orphaned file",
			logging.String("filename", name),
			logging.String(logging.FieldEventType, "orphan_swept"),
		)
	}
	return removed, nil
}

// Stats describes current storage usage.
type Stats struct {
	Artifacts    int    `json:"artifacts"`
	InFlight     int    `json:"inFlight"`
	TotalBytes   int64  `json:"totalBytes"`
	FreeBytes    uint64 `json:"freeBytes"`
	TotalFSBytes uint64 `json:"totalFsBytes"`
}

// Stats returns tracked artifact totals and filesystem capacity for the root.
func (m *Manager) Stats(context.Context) (Stats, error) {
	var s Stats
	m.mu.Lock()
	s.Artifacts = len(m.entries)
	s.InFlight = len(m.inflight)
	for _, e := range m.entries {
		s.TotalBytes += e.artifact.SizeBytes
	}
	m.mu.Unlock()

	total, free, err := m.statfs(m.root)
	if err != nil {
		return s, fmt.Errorf("artifacts: statfs: %w", err)
	}
	s.TotalFSBytes = total
	s.FreeBytes = free
	return s, nil
}

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (total uint64, free uint64, err error)

func realStatfs(path string) (uint64, uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	bsize := uint64(stat.Bsize) //nolint:gosec // block size is positive
	return stat.Blocks * bsize, stat.Bavail * bsize, nil
}
