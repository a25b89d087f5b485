package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"uniloader/internal/api"
	"uniloader/internal/artifacts"
	"uniloader/internal/config"
	"uniloader/internal/ledger"
	"uniloader/internal/logging"
	"uniloader/internal/metadata"
	"uniloader/internal/preflight"
	"uniloader/internal/retrieval"
	"uniloader/internal/services/ytdlp"
)

// Option customizes daemon construction.
type Option func(*Daemon)

// WithExecutor swaps the process runner used for yt-dlp (primarily for tests).
func WithExecutor(exec ytdlp.Executor) Option {
	return func(d *Daemon) { d.executor = exec }
}

// Daemon owns the artifact storage and serves the HTTP API.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	executor ytdlp.Executor

	ledger       *ledger.Store
	artifacts    *artifacts.Manager
	orchestrator *retrieval.Orchestrator
	service      *api.Service
	api          *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running    bool
	Address    string
	StorageDir string
	LedgerPath string
	ActiveJobs int
}

// New constructs a daemon. Nothing touches the filesystem until Start.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("daemon requires config and logger")
	}
	d := &Daemon{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start acquires the storage root, restores the expiry schedule, and begins
// serving requests.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	client, err := ytdlp.New(d.cfg.Tools.YtDlpBinary,
		ytdlp.WithExecutor(d.executor),
		ytdlp.WithMetadataTimeout(d.cfg.MetadataTimeout()),
		ytdlp.WithRetrievalTimeout(d.cfg.RetrievalTimeout()),
		ytdlp.WithMaxOutputBytes(d.cfg.Tools.MaxMetadataBytes),
		ytdlp.WithFFmpegLocation(d.cfg.Tools.FFmpegLocation),
	)
	if err != nil {
		return fmt.Errorf("configure yt-dlp: %w", err)
	}

	opts := artifacts.Options{
		Root:      d.cfg.Paths.StorageDir,
		Retention: d.cfg.RetentionWindow(),
		Logger:    d.logger,
	}
	if d.cfg.Retention.PersistSchedule {
		store, err := ledger.Open(d.cfg)
		if err != nil {
			return fmt.Errorf("open ledger: %w", err)
		}
		d.ledger = store
		opts.Ledger = store
	}

	// The orchestrator needs the manager and the manager's expiry hook needs
	// the orchestrator, so the hook resolves it lazily.
	opts.OnExpire = func(art artifacts.Artifact) {
		if d.orchestrator != nil {
			d.orchestrator.MarkExpired(art)
		}
	}
	mgr, err := artifacts.Open(opts)
	if err != nil {
		d.closeLedger()
		if errors.Is(err, artifacts.ErrLocked) {
			return fmt.Errorf("another uniloader daemon owns %s: %w", d.cfg.Paths.StorageDir, err)
		}
		return fmt.Errorf("open artifact storage: %w", err)
	}
	d.artifacts = mgr
	d.orchestrator = retrieval.NewOrchestrator(client, mgr, d.logger)
	d.service = api.NewService(metadata.NewNormalizer(client, d.logger), d.orchestrator, mgr, d.cfg.Server.FilenamePrefix)

	d.ctx, d.cancel = context.WithCancel(ctx)

	if _, err := mgr.Restore(d.ctx); err != nil {
		d.abortStart()
		return fmt.Errorf("restore expiry schedule: %w", err)
	}
	d.sweep(d.ctx)

	srv, err := newAPIServer(d.cfg, d, d.logger)
	if err != nil {
		d.abortStart()
		return err
	}
	if err := srv.start(d.ctx); err != nil {
		d.abortStart()
		return err
	}
	d.api = srv

	d.wg.Add(1)
	go d.sweepLoop(d.ctx)

	d.running.Store(true)
	d.logger.Info("uniloader daemon started",
		logging.String("address", d.Addr()),
		logging.String("storage_dir", d.cfg.Paths.StorageDir),
		logging.Bool("persist_schedule", d.ledger != nil),
	)
	return nil
}

func (d *Daemon) abortStart() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.ctx = nil
	if d.artifacts != nil {
		_ = d.artifacts.Close()
		d.artifacts = nil
	}
	d.closeLedger()
}

func (d *Daemon) closeLedger() {
	if d.ledger == nil {
		return
	}
	if err := d.ledger.Close(); err != nil {
		d.logger.Warn("failed to close ledger", logging.Error(err))
	}
	d.ledger = nil
}

// Stop shuts the API down, stops background sweeps, and releases the storage root.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	d.api = nil
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if err := d.artifacts.Close(); err != nil {
		d.logger.Warn("failed to release storage root", logging.Error(err))
	}
	d.closeLedger()
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("uniloader daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Addr returns the address the API listens on, or "" when not running.
func (d *Daemon) Addr() string {
	if d.api == nil {
		return ""
	}
	return d.api.addr()
}

// Status reports runtime information.
func (d *Daemon) Status() Status {
	status := Status{
		Running:    d.running.Load(),
		Address:    d.Addr(),
		StorageDir: d.cfg.Paths.StorageDir,
	}
	if d.ledger != nil {
		status.LedgerPath = d.ledger.Path()
	}
	if d.orchestrator != nil {
		status.ActiveJobs = d.orchestrator.Active()
	}
	return status
}

// Health runs the dependency checks and gathers storage usage.
func (d *Daemon) Health(ctx context.Context) api.HealthResponse {
	checks := preflight.RunAll(ctx, d.cfg)
	resp := api.HealthResponse{Status: "ok", Checks: checks}
	if !preflight.AllPassed(checks) {
		resp.Status = "degraded"
	}
	if d.artifacts != nil {
		stats, err := d.artifacts.Stats(ctx)
		if err != nil {
			d.logger.Warn("storage stats unavailable", logging.Error(err))
			resp.Status = "degraded"
		}
		resp.Storage = stats
	}
	if d.orchestrator != nil {
		resp.ActiveJobs = d.orchestrator.Active()
	}
	return resp
}

func (d *Daemon) sweepLoop(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.cfg.SweepInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sweep(ctx)
		}
	}
}

func (d *Daemon) sweep(ctx context.Context) {
	removed, err := d.artifacts.Sweep(ctx)
	if err != nil {
		logging.WarnWithContext(ctx, d.logger, "orphan sweep failed", "sweep_failed", logging.Error(err))
	} else if removed > 0 {
		d.logger.Info("orphan sweep removed files",
			logging.Int("removed", removed),
			logging.String(logging.FieldEventType, "orphans_swept"),
		)
	}

	if d.ledger == nil || d.cfg.Retention.LedgerKeepDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -d.cfg.Retention.LedgerKeepDays)
	pruned, err := d.ledger.Prune(ctx, cutoff)
	if err != nil {
		logging.WarnWithContext(ctx, d.logger, "ledger prune failed", "ledger_prune_failed", logging.Error(err))
		return
	}
	if pruned > 0 {
		d.logger.Debug("ledger rows pruned", logging.Int64("pruned", pruned))
	}
}
