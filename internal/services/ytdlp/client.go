package ytdlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"uniloader/internal/media"
)

const (
	defaultMaxOutputBytes = 10 * 1024 * 1024
	stderrTailBytes       = 4096

	// OutputTemplateExt is the yt-dlp placeholder for the final extension.
	OutputTemplateExt = "%(ext)s"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, stdout, stderr io.Writer) error
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithMetadataTimeout bounds each --dump-json invocation.
func WithMetadataTimeout(d time.Duration) Option {
	return func(c *Client) { c.metadataTimeout = d }
}

// WithRetrievalTimeout bounds each retrieval invocation.
func WithRetrievalTimeout(d time.Duration) Option {
	return func(c *Client) { c.retrievalTimeout = d }
}

// WithMaxOutputBytes caps the metadata JSON accepted from the tool.
func WithMaxOutputBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxOutput = n
		}
	}
}

// WithFFmpegLocation passes --ffmpeg-location to retrieval runs.
func WithFFmpegLocation(path string) Option {
	return func(c *Client) { c.ffmpegLocation = strings.TrimSpace(path) }
}

// Client wraps yt-dlp CLI interactions.
type Client struct {
	binary           string
	exec             Executor
	metadataTimeout  time.Duration
	retrievalTimeout time.Duration
	maxOutput        int64
	ffmpegLocation   string
}

// New constructs a yt-dlp client.
func New(binary string, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("yt-dlp binary required")
	}
	client := &Client{
		binary:    binary,
		exec:      commandExecutor{},
		maxOutput: defaultMaxOutputBytes,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Binary returns the configured executable name.
func (c *Client) Binary() string { return c.binary }

// DumpInfo runs yt-dlp in metadata-only mode and decodes its single JSON record.
func (c *Client) DumpInfo(ctx context.Context, url string) (*Info, error) {
	runCtx, cancel := withOptionalTimeout(ctx, c.metadataTimeout)
	defer cancel()

	args := []string{"--dump-json", "--no-playlist", "--no-warnings", "--", url}
	stdout := &cappedBuffer{limit: c.maxOutput}
	stderr := &tailBuffer{limit: stderrTailBytes}

	if err := c.exec.Run(runCtx, c.binary, args, stdout, stderr); err != nil {
		return nil, toolError(runCtx, "metadata", stderr, err)
	}
	if stdout.overflow {
		return nil, &ToolError{Op: "metadata", Err: fmt.Errorf("output exceeds %d bytes", c.maxOutput)}
	}

	var info Info
	if err := json.Unmarshal(stdout.buf.Bytes(), &info); err != nil {
		return nil, fmt.Errorf("decode yt-dlp metadata: %w", err)
	}
	return &info, nil
}

// RetrieveOptions describes one retrieval run.
type RetrieveOptions struct {
	URL       string
	VariantID string
	Kind      media.Kind
	// OutputDir and Stem form the output template <dir>/<stem>.%(ext)s.
	OutputDir      string
	Stem           string
	FFmpegLocation string
}

// OutputTemplate returns the -o value passed to yt-dlp.
func (o RetrieveOptions) OutputTemplate() string {
	return filepath.Join(o.OutputDir, o.Stem+"."+OutputTemplateExt)
}

// Args builds the argument vector for the retrieval run.
func (o RetrieveOptions) Args() []string {
	args := make([]string, 0, 16)
	switch o.Kind {
	case media.KindAudio:
		args = append(args, "-x", "--audio-format", "mp3", "--audio-quality", "0")
	default:
		selector := "bestvideo+bestaudio/best"
		if v := strings.TrimSpace(o.VariantID); v != "" {
			selector = v + "+bestaudio/best"
		}
		args = append(args, "-f", selector, "--merge-output-format", "mp4", "--remux-video", "mp4")
	}
	args = append(args, "--no-playlist", "--no-progress", "--no-warnings")
	if o.FFmpegLocation != "" {
		args = append(args, "--ffmpeg-location", o.FFmpegLocation)
	}
	args = append(args, "-o", o.OutputTemplate(), "--", o.URL)
	return args
}

// Retrieve runs yt-dlp in retrieval mode and returns the expected output path.
// The caller verifies the file exists.
func (c *Client) Retrieve(ctx context.Context, opts RetrieveOptions) (string, error) {
	if opts.URL == "" {
		return "", errors.New("retrieve: url required")
	}
	if opts.OutputDir == "" || opts.Stem == "" {
		return "", errors.New("retrieve: output location required")
	}
	if opts.FFmpegLocation == "" {
		opts.FFmpegLocation = c.ffmpegLocation
	}

	runCtx, cancel := withOptionalTimeout(ctx, c.retrievalTimeout)
	defer cancel()

	stderr := &tailBuffer{limit: stderrTailBytes}
	if err := c.exec.Run(runCtx, c.binary, opts.Args(), io.Discard, stderr); err != nil {
		return "", toolError(runCtx, "retrieve", stderr, err)
	}
	return filepath.Join(opts.OutputDir, opts.Stem+"."+opts.Kind.Extension()), nil
}

func toolError(ctx context.Context, op string, stderr *tailBuffer, err error) *ToolError {
	te := &ToolError{Op: op, Stderr: stderr.String(), Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		te.ExitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		te.Err = fmt.Errorf("%w (%w)", ctxErr, err)
	}
	return te
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, stdout, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec // argument vector, no shell
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = 5 * time.Second
	return cmd.Run()
}
