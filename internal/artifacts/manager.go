package artifacts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"uniloader/internal/ledger"
	"uniloader/internal/logging"
	"uniloader/internal/media"
	"uniloader/internal/services"
)

const lockFileName = ".uniloader.lock"

var (
	// ErrLocked reports that another process already manages the storage root.
	ErrLocked = errors.New("storage root is locked by another process")
	// ErrAlreadyRegistered reports a second Register call for the same job.
	ErrAlreadyRegistered = errors.New("artifact already registered")
)

// Ledger persists the expiry schedule. *ledger.Store satisfies it.
type Ledger interface {
	Record(ctx context.Context, rec ledger.Record) error
	Pending(ctx context.Context) ([]ledger.Record, error)
	MarkExpired(ctx context.Context, jobID string, at time.Time) error
}

// Artifact describes one registered file.
type Artifact struct {
	JobID     string     `json:"jobId"`
	Filename  string     `json:"filename"`
	Path      string     `json:"path"`
	Kind      media.Kind `json:"mediaKind"`
	SizeBytes int64      `json:"sizeBytes"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

// Handle is the opaque public reference passed to Serve.
func (a Artifact) Handle() string { return a.Filename }

// RegisterRequest identifies a finished retrieval.
type RegisterRequest struct {
	JobID     string
	Kind      media.Kind
	SourceURL string
	VariantID string
}

// Options configures a Manager.
type Options struct {
	Root      string
	Retention time.Duration
	Ledger    Ledger
	Logger    *slog.Logger
	// OnExpire runs after an artifact is reclaimed.
	OnExpire func(Artifact)
	// Clock overrides time.Now in tests.
	Clock func() time.Time
}

type entry struct {
	artifact Artifact
	timer    *time.Timer
}

// Manager handles registering, serving, and reclaiming artifacts.
type Manager struct {
	root      string
	retention time.Duration
	ledger    Ledger
	logger    *slog.Logger
	onExpire  func(Artifact)
	now       func() time.Time
	statfs    statfsFunc
	lock      *flock.Flock

	mu          sync.Mutex
	entries     map[string]*entry
	inflight    map[string]struct{}
	registering map[string]struct{}
	closed      bool
}

// Open prepares the storage root and takes its ownership lock.
func Open(opts Options) (*Manager, error) {
	root := strings.TrimSpace(opts.Root)
	if root == "" {
		return nil, errors.New("artifacts: storage root required")
	}
	if opts.Retention <= 0 {
		return nil, errors.New("artifacts: retention window must be positive")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("artifacts: create storage root: %w", err)
	}

	lock := flock.New(filepath.Join(root, lockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("artifacts: acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, root)
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Manager{
		root:        root,
		retention:   opts.Retention,
		ledger:      opts.Ledger,
		logger:      logging.NewComponentLogger(opts.Logger, "artifacts"),
		onExpire:    opts.OnExpire,
		now:         clock,
		statfs:      realStatfs,
		lock:        lock,
		entries:     make(map[string]*entry),
		inflight:    make(map[string]struct{}),
		registering: make(map[string]struct{}),
	}, nil
}

// Root returns the storage directory.
func (m *Manager) Root() string { return m.root }

// Retention returns the configured retention window.
func (m *Manager) Retention() time.Duration { return m.retention }

// OutputPath returns the final location for a job's artifact.
func (m *Manager) OutputPath(jobID string, kind media.Kind) string {
	return filepath.Join(m.root, jobID+"."+kind.Extension())
}

// Reserve marks jobID as in flight so Sweep leaves its partial files alone.
func (m *Manager) Reserve(jobID string) error {
	if err := validateJobID(jobID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("artifacts: manager closed")
	}
	if _, ok := m.entries[jobID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, jobID)
	}
	m.inflight[jobID] = struct{}{}
	return nil
}

// Register records a finished artifact and schedules its single expiry.
func (m *Manager) Register(ctx context.Context, req RegisterRequest) (Artifact, error) {
	if err := validateJobID(req.JobID); err != nil {
		return Artifact{}, err
	}
	if !req.Kind.Valid() {
		return Artifact{}, fmt.Errorf("artifacts: invalid media kind %q", req.Kind)
	}
	path := m.OutputPath(req.JobID, req.Kind)
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("artifacts: inspect output: %w", err)
	}
	if info.IsDir() || info.Size() == 0 {
		return Artifact{}, fmt.Errorf("artifacts: output %s is empty", filepath.Base(path))
	}

	now := m.now()
	art := Artifact{
		JobID:     req.JobID,
		Filename:  filepath.Base(path),
		Path:      path,
		Kind:      req.Kind,
		SizeBytes: info.Size(),
		CreatedAt: now,
		ExpiresAt: now.Add(m.retention),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Artifact{}, errors.New("artifacts: manager closed")
	}
	_, registered := m.entries[req.JobID]
	_, pending := m.registering[req.JobID]
	if registered || pending {
		m.mu.Unlock()
		return Artifact{}, fmt.Errorf("%w: %s", ErrAlreadyRegistered, req.JobID)
	}
	m.registering[req.JobID] = struct{}{}
	m.mu.Unlock()

	// Ledger writes happen outside m.mu. The registering marker keeps the id
	// exclusive until the entry is inserted.
	if m.ledger != nil {
		rec := ledger.Record{
			JobID:     art.JobID,
			Filename:  art.Filename,
			Path:      art.Path,
			Kind:      art.Kind,
			SourceURL: req.SourceURL,
			VariantID: req.VariantID,
			SizeBytes: art.SizeBytes,
			CreatedAt: art.CreatedAt,
			ExpiresAt: art.ExpiresAt,
		}
		if err := m.ledger.Record(ctx, rec); err != nil {
			m.mu.Lock()
			delete(m.registering, req.JobID)
			m.mu.Unlock()
			return Artifact{}, fmt.Errorf("artifacts: persist schedule: %w", err)
		}
	}

	m.mu.Lock()
	delete(m.registering, req.JobID)
	if m.closed {
		m.mu.Unlock()
		return Artifact{}, errors.New("artifacts: manager closed")
	}
	delete(m.inflight, req.JobID)
	m.scheduleLocked(art)
	m.mu.Unlock()

	logging.WithContext(ctx, m.logger).Info("registered artifact",
		logging.String(logging.FieldJobID, art.JobID),
		logging.String(logging.FieldMediaKind, string(art.Kind)),
		logging.Int64("size_bytes", art.SizeBytes),
		logging.Time("expires_at", art.ExpiresAt),
	)
	return art, nil
}

// scheduleLocked arms the one expiry timer for art. Callers hold m.mu.
func (m *Manager) scheduleLocked(art Artifact) {
	e := &entry{artifact: art}
	delay := art.ExpiresAt.Sub(m.now())
	if delay < 0 {
		delay = 0
	}
	jobID := art.JobID
	e.timer = time.AfterFunc(delay, func() {
		if err := m.Expire(context.Background(), jobID); err != nil {
			m.logger.Warn("scheduled reclamation failed",
				logging.String(logging.FieldJobID, jobID),
				logging.Error(err),
				logging.String(logging.FieldEventType, "reclaim_failed"),
				logging.String(logging.FieldErrorHint, "check storage directory permissions"),
			)
		}
	})
	m.entries[jobID] = e
}

// Serve opens the artifact behind handle. Unknown, forged, and expired handles
// all yield services.ErrNotFound. The caller closes the file.
func (m *Manager) Serve(ctx context.Context, handle string) (*os.File, Artifact, error) {
	jobID, kind, ok := parseHandle(handle)
	if !ok {
		return nil, Artifact{}, notFound(handle)
	}

	m.mu.Lock()
	e, tracked := m.entries[jobID]
	m.mu.Unlock()
	if !tracked || e.artifact.Kind != kind {
		return nil, Artifact{}, notFound(handle)
	}
	if !m.now().Before(e.artifact.ExpiresAt) {
		return nil, Artifact{}, notFound(handle)
	}

	file, err := os.Open(e.artifact.Path)
	if err != nil {
		logging.WithContext(ctx, m.logger).Debug("artifact unreadable", logging.String("handle", handle), logging.Error(err))
		return nil, Artifact{}, notFound(handle)
	}
	return file, e.artifact, nil
}

// Lookup returns the tracked artifact for jobID.
func (m *Manager) Lookup(jobID string) (Artifact, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[jobID]
	if !ok {
		return Artifact{}, false
	}
	return e.artifact, true
}

// List returns tracked artifacts, soonest expiry first.
func (m *Manager) List() []Artifact {
	m.mu.Lock()
	out := make([]Artifact, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.artifact)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out
}

// Expire deletes the artifact for jobID and marks it reclaimed. Expiring an
// unknown or already deleted artifact is a no-op.
func (m *Manager) Expire(ctx context.Context, jobID string) error {
	m.mu.Lock()
	e, ok := m.entries[jobID]
	if ok {
		delete(m.entries, jobID)
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return m.reclaim(ctx, e.artifact, "expired")
}

func (m *Manager) reclaim(ctx context.Context, art Artifact, reason string) error {
	if err := os.Remove(art.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("artifacts: remove %s: %w", art.Filename, err)
	}
	if m.ledger != nil {
		if err := m.ledger.MarkExpired(ctx, art.JobID, m.now()); err != nil {
			m.logger.Warn("ledger update failed",
				logging.String(logging.FieldJobID, art.JobID),
				logging.Error(err),
				logging.String(logging.FieldEventType, "ledger_update_failed"),
				logging.String(logging.FieldErrorHint, "the row is retried on next restore"),
			)
		}
	}
	m.logger.Info("reclaimed artifact",
		logging.String(logging.FieldJobID, art.JobID),
		logging.String("filename", art.Filename),
		logging.String("reason", reason),
		logging.String(logging.FieldEventType, "artifact_reclaimed"),
	)
	if m.onExpire != nil {
		m.onExpire(art)
	}
	return nil
}

// Discard removes every file belonging to a job that did not produce a
// registrable artifact, including partial downloads.
func (m *Manager) Discard(ctx context.Context, jobID string) error {
	if err := validateJobID(jobID); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.inflight, jobID)
	_, registered := m.entries[jobID]
	m.mu.Unlock()
	if registered {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, jobID)
	}

	matches, err := filepath.Glob(filepath.Join(m.root, jobID+"*"))
	if err != nil {
		return fmt.Errorf("artifacts: match partial files: %w", err)
	}
	var errs []error
	for _, path := range matches {
		if err := os.RemoveAll(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if len(matches) > 0 {
		logging.WithContext(ctx, m.logger).Info("discarded partial output",
			logging.String(logging.FieldJobID, jobID),
			logging.Int("files", len(matches)),
			logging.String(logging.FieldEventType, "partial_discarded"),
		)
	}
	return errors.Join(errs...)
}

// Close stops all timers and releases the root lock. Pending deletions either
// survive in the ledger or are picked up by the next Sweep.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	pending := len(m.entries)
	for _, e := range m.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	m.entries = make(map[string]*entry)
	m.mu.Unlock()

	if pending > 0 {
		m.logger.Info("artifact timers stopped", logging.Int("pending", pending), logging.Bool("persisted", m.ledger != nil))
	}
	return m.lock.Unlock()
}

func parseHandle(handle string) (string, media.Kind, bool) {
	if handle == "" || strings.ContainsAny(handle, `/\`) {
		return "", "", false
	}
	ext := filepath.Ext(handle)
	kind, ok := media.KindForExtension(ext)
	if !ok {
		return "", "", false
	}
	jobID := strings.TrimSuffix(handle, ext)
	if validateJobID(jobID) != nil {
		return "", "", false
	}
	return jobID, kind, true
}

func validateJobID(jobID string) error {
	parsed, err := uuid.Parse(jobID)
	if err != nil || parsed.String() != jobID {
		return services.Wrap(services.ErrValidation, "artifacts", "job id", fmt.Sprintf("malformed job id %q", jobID), nil)
	}
	return nil
}

func notFound(handle string) error {
	return services.Wrap(services.ErrNotFound, "artifacts", "serve", fmt.Sprintf("no artifact for %q", handle), nil)
}
