package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"uniloader/internal/artifacts"
	"uniloader/internal/logging"
	"uniloader/internal/media"
	"uniloader/internal/services"
	"uniloader/internal/services/ytdlp"
)

var variantPattern = regexp.MustCompile(`^[A-Za-z0-9_.][A-Za-z0-9_.-]*$`)

// Tool runs the external retrieval process.
type Tool interface {
	Retrieve(ctx context.Context, opts ytdlp.RetrieveOptions) (string, error)
}

// Storage is the slice of the artifact manager the orchestrator needs.
type Storage interface {
	Root() string
	OutputPath(jobID string, kind media.Kind) string
	Reserve(jobID string) error
	Register(ctx context.Context, req artifacts.RegisterRequest) (artifacts.Artifact, error)
	Discard(ctx context.Context, jobID string) error
}

// Outcome is delivered once per started job.
type Outcome struct {
	Job      Snapshot
	Artifact artifacts.Artifact
	Err      error
}

// Orchestrator starts and supervises retrieval jobs.
type Orchestrator struct {
	tool    Tool
	storage Storage
	logger  *slog.Logger
	now     func() time.Time

	mu   sync.Mutex
	jobs map[string]*Job
}

// NewOrchestrator wires the retrieval tool to the artifact storage.
func NewOrchestrator(tool Tool, storage Storage, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		tool:    tool,
		storage: storage,
		logger:  logging.NewComponentLogger(logger, "retrieval"),
		now:     time.Now,
		jobs:    make(map[string]*Job),
	}
}

// NewJob validates the inputs and allocates a job with a fresh identifier.
func (o *Orchestrator) NewJob(sourceURL, variantID string, kind media.Kind) (*Job, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	variantID = strings.TrimSpace(variantID)
	if err := ValidateSourceURL(sourceURL); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, services.Wrap(services.ErrValidation, "retrieval", "new job", fmt.Sprintf("unsupported media kind %q", kind), nil)
	}
	if variantID != "" && !variantPattern.MatchString(variantID) {
		return nil, services.Wrap(services.ErrValidation, "retrieval", "new job", fmt.Sprintf("malformed variant id %q", variantID), nil)
	}
	id := uuid.NewString()
	return &Job{
		ID:         id,
		SourceURL:  sourceURL,
		VariantID:  variantID,
		Kind:       kind,
		OutputPath: o.storage.OutputPath(id, kind),
		CreatedAt:  o.now(),
		state:      StateRunning,
	}, nil
}

// ValidateSourceURL accepts absolute http and https URLs only.
func ValidateSourceURL(raw string) error {
	if raw == "" {
		return services.Wrap(services.ErrValidation, "retrieval", "url", "url required", nil)
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return services.Wrap(services.ErrValidation, "retrieval", "url", fmt.Sprintf("unsupported url %q", raw), nil)
	}
	return nil
}

// Start launches the job on its own goroutine. The channel yields exactly one
// Outcome and is then closed.
func (o *Orchestrator) Start(ctx context.Context, job *Job) <-chan Outcome {
	out := make(chan Outcome, 1)
	if err := o.storage.Reserve(job.ID); err != nil {
		_ = job.fail(o.now(), 0, err)
		out <- Outcome{Job: job.Snapshot(), Err: err}
		close(out)
		return out
	}
	o.mu.Lock()
	o.jobs[job.ID] = job
	o.mu.Unlock()

	go func() {
		defer close(out)
		out <- o.run(ctx, job)
	}()
	return out
}

// Retrieve starts job and waits for it. If ctx ends first the process is
// killed and the cancellation outcome is returned.
func (o *Orchestrator) Retrieve(ctx context.Context, job *Job) Outcome {
	return <-o.Start(ctx, job)
}

func (o *Orchestrator) run(ctx context.Context, job *Job) Outcome {
	ctx = services.WithJobID(ctx, job.ID)
	logger := logging.WithContext(ctx, o.logger)
	started := o.now()
	logger.Info("retrieval started",
		logging.String(logging.FieldMediaKind, string(job.Kind)),
		logging.String("variant_id", job.VariantID),
		logging.String("url", job.SourceURL),
	)

	_, err := o.tool.Retrieve(ctx, ytdlp.RetrieveOptions{
		URL:       job.SourceURL,
		VariantID: job.VariantID,
		Kind:      job.Kind,
		OutputDir: o.storage.Root(),
		Stem:      job.ID,
	})
	if err != nil {
		return o.failJob(ctx, job, err)
	}

	art, err := o.storage.Register(context.WithoutCancel(ctx), artifacts.RegisterRequest{
		JobID:     job.ID,
		Kind:      job.Kind,
		SourceURL: job.SourceURL,
		VariantID: job.VariantID,
	})
	if err != nil {
		return o.failJob(ctx, job, err)
	}
	expired, err := job.succeed(o.now(), art.ExpiresAt)
	if err != nil {
		logger.Warn("job state update failed", logging.Error(err))
	}
	if expired {
		o.forget(job.ID)
	}
	logger.Info("retrieval succeeded",
		logging.String("filename", art.Filename),
		logging.Int64("size_bytes", art.SizeBytes),
		logging.Duration("elapsed", o.now().Sub(started)),
	)
	return Outcome{Job: job.Snapshot(), Artifact: art}
}

func (o *Orchestrator) failJob(ctx context.Context, job *Job, cause error) Outcome {
	exitCode := 0
	stderr := ""
	var toolErr *ytdlp.ToolError
	if errors.As(cause, &toolErr) {
		exitCode = toolErr.ExitCode
		stderr = toolErr.Stderr
	}
	err := classify(ctx, cause, toolErr)

	cleanupCtx := context.WithoutCancel(ctx)
	if discardErr := o.storage.Discard(cleanupCtx, job.ID); discardErr != nil {
		logging.WarnWithContext(cleanupCtx, o.logger, "partial output cleanup failed", "partial_cleanup_failed",
			logging.Error(discardErr),
			logging.String(logging.FieldErrorHint, "stray files are removed by the next sweep"),
		)
	}
	if stateErr := job.fail(o.now(), exitCode, err); stateErr != nil {
		o.logger.Warn("job state update failed", logging.Error(stateErr))
	}
	o.forget(job.ID)

	logging.WarnWithContext(cleanupCtx, o.logger, "retrieval failed", "retrieval_failed",
		logging.Int("exit_code", exitCode),
		logging.String("stderr", stderr),
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, "run yt-dlp manually with the same URL and format"),
	)
	return Outcome{Job: job.Snapshot(), Err: err}
}

func classify(ctx context.Context, cause error, toolErr *ytdlp.ToolError) error {
	switch {
	case errors.Is(cause, services.ErrValidation):
		return cause
	case toolErr != nil && toolErr.FormatUnavailable():
		return services.Wrap(services.ErrVariantUnavailable, "retrieval", "retrieve", "", cause)
	case ctx.Err() != nil:
		return services.Wrap(services.ErrConversion, "retrieval", "retrieve", "retrieval interrupted", cause)
	default:
		return services.Wrap(services.ErrConversion, "retrieval", "retrieve", "", cause)
	}
}

// Job returns a snapshot of a running or succeeded job.
func (o *Orchestrator) Job(id string) (Snapshot, bool) {
	o.mu.Lock()
	job, ok := o.jobs[id]
	o.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	return job.Snapshot(), true
}

// Active returns the number of jobs still running.
func (o *Orchestrator) Active() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, job := range o.jobs {
		if job.State() == StateRunning {
			n++
		}
	}
	return n
}

// MarkExpired moves a succeeded job to expired and forgets it. It is the
// artifact manager's OnExpire hook; unknown ids are ignored. A job whose
// artifact expires before its run finishes is expired when the run succeeds.
func (o *Orchestrator) MarkExpired(art artifacts.Artifact) {
	o.mu.Lock()
	job, ok := o.jobs[art.JobID]
	o.mu.Unlock()
	if !ok {
		return
	}
	deferred, err := job.requestExpiry(o.now())
	if err != nil {
		o.logger.Debug("expire ignored", logging.String(logging.FieldJobID, art.JobID), logging.Error(err))
	}
	if !deferred {
		o.forget(art.JobID)
	}
}

func (o *Orchestrator) forget(jobID string) {
	o.mu.Lock()
	delete(o.jobs, jobID)
	o.mu.Unlock()
}
