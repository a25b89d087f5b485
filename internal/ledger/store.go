package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"uniloader/internal/config"
	"uniloader/internal/media"
)

// ErrNotFound is returned when no row exists for a job id.
var ErrNotFound = errors.New("ledger record not found")

// Record is one artifact row.
type Record struct {
	JobID     string
	Filename  string
	Path      string
	Kind      media.Kind
	SourceURL string
	VariantID string
	SizeBytes int64
	CreatedAt time.Time
	ExpiresAt time.Time
	ExpiredAt *time.Time
}

// Pending reports whether the artifact has not been reclaimed yet.
func (r Record) Pending() bool { return r.ExpiredAt == nil }

// Store manages ledger persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the ledger database under the configured state directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.LedgerPath())
}

// OpenPath opens the ledger database at dbPath, creating the schema when absent.
func OpenPath(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts a pending row for a freshly registered artifact.
func (s *Store) Record(ctx context.Context, rec Record) error {
	if strings.TrimSpace(rec.JobID) == "" {
		return errors.New("record artifact: job id required")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO artifacts (
            job_id, filename, path, media_kind, source_url, variant_id,
            size_bytes, created_at, expires_at, expired_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		rec.JobID,
		rec.Filename,
		rec.Path,
		string(rec.Kind),
		rec.SourceURL,
		rec.VariantID,
		rec.SizeBytes,
		formatTime(rec.CreatedAt),
		formatTime(rec.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("insert artifact %s: %w", rec.JobID, err)
	}
	return nil
}

// Get returns the row for jobID.
func (s *Store) Get(ctx context.Context, jobID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE job_id = ?", jobID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Pending returns every row not yet reclaimed, earliest deadline first.
func (s *Store) Pending(ctx context.Context) ([]Record, error) {
	return s.query(ctx, selectColumns+" WHERE expired_at IS NULL ORDER BY expires_at ASC")
}

// List returns the most recent rows, newest first. A limit <= 0 returns all rows.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	query := selectColumns + " ORDER BY created_at DESC"
	if limit > 0 {
		return s.query(ctx, query+" LIMIT ?", limit)
	}
	return s.query(ctx, query)
}

// MarkExpired records the reclamation time. Marking an already expired or
// unknown row is not an error.
func (s *Store) MarkExpired(ctx context.Context, jobID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE artifacts SET expired_at = ? WHERE job_id = ? AND expired_at IS NULL",
		formatTime(at), jobID,
	)
	if err != nil {
		return fmt.Errorf("mark artifact %s expired: %w", jobID, err)
	}
	return nil
}

// Prune deletes expired rows reclaimed before cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM artifacts WHERE expired_at IS NOT NULL AND expired_at < ?",
		formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("prune ledger: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune ledger rows affected: %w", err)
	}
	return n, nil
}

const selectColumns = `SELECT job_id, filename, path, media_kind, source_url, variant_id,
    size_bytes, created_at, expires_at, expired_at FROM artifacts`

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec       Record
		kind      string
		createdAt string
		expiresAt string
		expiredAt sql.NullString
	)
	if err := row.Scan(
		&rec.JobID, &rec.Filename, &rec.Path, &kind, &rec.SourceURL, &rec.VariantID,
		&rec.SizeBytes, &createdAt, &expiresAt, &expiredAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan artifact row: %w", err)
	}
	rec.Kind = media.Kind(kind)

	var err error
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if rec.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, err
	}
	if expiredAt.Valid && expiredAt.String != "" {
		at, err := parseTime(expiredAt.String)
		if err != nil {
			return nil, err
		}
		rec.ExpiredAt = &at
	}
	return &rec, nil
}

// timeLayout sorts lexically, which the expires_at and expired_at comparisons rely on.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse ledger timestamp %q: %w", value, err)
	}
	return t, nil
}
