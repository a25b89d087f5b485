package metadata

import (
	"context"
	"errors"
	"log/slog"

	"uniloader/internal/logging"
	"uniloader/internal/media"
	"uniloader/internal/services"
	"uniloader/internal/services/ytdlp"
)

const (
	// MessageUnsupported is returned to callers when the tool rejects the URL.
	MessageUnsupported = "URL not supported or content not found."
	// MessageUnparseable is returned when the tool output cannot be decoded.
	MessageUnparseable = "Failed to process data from the media server."
)

// InfoSource is the metadata half of the yt-dlp client.
type InfoSource interface {
	DumpInfo(ctx context.Context, url string) (*ytdlp.Info, error)
}

// Normalizer fetches and normalizes media metadata.
type Normalizer struct {
	source InfoSource
	logger *slog.Logger
}

// NewNormalizer constructs a Normalizer backed by source.
func NewNormalizer(source InfoSource, logger *slog.Logger) *Normalizer {
	return &Normalizer{source: source, logger: logging.NewComponentLogger(logger, "metadata")}
}

// Describe returns the descriptor for url. Failures are wrapped with
// services.ErrExtraction and carry a caller-safe message; tool diagnostics are
// logged only.
func (n *Normalizer) Describe(ctx context.Context, url string) (media.Descriptor, error) {
	info, err := n.source.DumpInfo(ctx, url)
	if err != nil {
		attrs := []logging.Attr{logging.String("url", url), logging.Error(err)}
		var toolErr *ytdlp.ToolError
		message := MessageUnparseable
		if errors.As(err, &toolErr) {
			message = MessageUnsupported
			attrs = append(attrs, logging.Int("exit_code", toolErr.ExitCode), logging.String("stderr", toolErr.Stderr))
		}
		logging.WarnWithContext(ctx, n.logger, "metadata extraction failed", "extraction_failed",
			append(attrs, logging.String(logging.FieldErrorHint, "verify the URL is supported by yt-dlp"))...)
		return media.Descriptor{}, &ExtractionError{Message: message, Err: err}
	}
	desc := Normalize(info, url)
	logging.WithContext(ctx, n.logger).Debug("metadata normalized",
		logging.String("platform", desc.Platform),
		logging.Int("video_variants", len(desc.VideoVariants)),
		logging.Int("audio_variants", len(desc.AudioVariants)),
	)
	return desc, nil
}

// ExtractionError carries the caller-facing message for a failed describe.
type ExtractionError struct {
	Message string
	Err     error
}

func (e *ExtractionError) Error() string {
	return services.Wrap(services.ErrExtraction, "metadata", "describe", e.Message, e.Err).Error()
}

// Unwrap exposes both the extraction marker and the underlying cause.
func (e *ExtractionError) Unwrap() []error {
	return []error{services.ErrExtraction, e.Err}
}

// UserMessage returns the short message safe to show callers.
func (e *ExtractionError) UserMessage() string { return e.Message }
