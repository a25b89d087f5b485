package api

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"uniloader/internal/artifacts"
	"uniloader/internal/media"
	"uniloader/internal/retrieval"
	"uniloader/internal/services"
)

// Describer produces descriptors for a URL.
type Describer interface {
	Describe(ctx context.Context, url string) (media.Descriptor, error)
}

// Retriever creates and runs retrieval jobs.
type Retriever interface {
	NewJob(sourceURL, variantID string, kind media.Kind) (*retrieval.Job, error)
	Retrieve(ctx context.Context, job *retrieval.Job) retrieval.Outcome
}

// ArtifactStore serves registered artifacts.
type ArtifactStore interface {
	Serve(ctx context.Context, handle string) (*os.File, artifacts.Artifact, error)
}

// Service composes the metadata normalizer, retrieval orchestrator, and
// artifact manager behind the three request operations.
type Service struct {
	describer      Describer
	retriever      Retriever
	store          ArtifactStore
	filenamePrefix string
}

// NewService constructs a Service. filenamePrefix shapes suggested download names.
func NewService(describer Describer, retriever Retriever, store ArtifactStore, filenamePrefix string) *Service {
	return &Service{
		describer:      describer,
		retriever:      retriever,
		store:          store,
		filenamePrefix: strings.TrimSpace(filenamePrefix),
	}
}

// Fetch validates the request and describes the media behind its URL.
func (s *Service) Fetch(ctx context.Context, req FetchRequest) (media.Descriptor, error) {
	url := strings.TrimSpace(req.URL)
	if url == "" {
		return media.Descriptor{}, invalid(MessageURLRequired)
	}
	if err := retrieval.ValidateSourceURL(url); err != nil {
		return media.Descriptor{}, invalid("URL must be an absolute http or https address")
	}
	return s.describer.Describe(ctx, url)
}

// Download runs a retrieval job to completion and returns the handle to its artifact.
func (s *Service) Download(ctx context.Context, req DownloadRequest) (DownloadResponse, error) {
	req = req.Normalized()
	if req.URL == "" {
		return DownloadResponse{}, invalid(MessageURLRequired)
	}
	if req.MediaKind == "" {
		return DownloadResponse{}, invalid(MessageKindRequired)
	}
	kind, err := media.ParseKind(req.MediaKind)
	if err != nil {
		return DownloadResponse{}, invalid(MessageKindInvalid)
	}

	job, err := s.retriever.NewJob(req.URL, req.VariantID, kind)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			return DownloadResponse{}, invalid(validationMessage(err))
		}
		return DownloadResponse{}, err
	}
	ctx = services.WithJobID(ctx, job.ID)

	outcome := s.retriever.Retrieve(ctx, job)
	if outcome.Err != nil {
		return DownloadResponse{}, outcome.Err
	}
	art := outcome.Artifact
	return DownloadResponse{
		Success:     true,
		DownloadURL: FileURL(art.Handle()),
		Filename:    s.SuggestedFilename(art),
		JobID:       art.JobID,
		MediaKind:   string(art.Kind),
		SizeBytes:   art.SizeBytes,
		ExpiresAt:   art.ExpiresAt,
	}, nil
}

// Open resolves handle to a readable artifact. The caller closes the file.
func (s *Service) Open(ctx context.Context, handle string) (*os.File, artifacts.Artifact, error) {
	return s.store.Serve(ctx, strings.TrimSpace(handle))
}

// SuggestedFilename returns the attachment name offered to the caller.
func (s *Service) SuggestedFilename(art artifacts.Artifact) string {
	ext := art.Kind.Extension()
	if ext == "" {
		ext = strings.TrimPrefix(filepath.Ext(art.Filename), ".")
	}
	if s.filenamePrefix == "" {
		return fmt.Sprintf("%s.%s", art.JobID, ext)
	}
	return fmt.Sprintf("%s_%s.%s", s.filenamePrefix, art.JobID, ext)
}

// FileURL is the public path serving handle.
func FileURL(handle string) string {
	return "/api/files/" + handle
}

func validationMessage(err error) string {
	msg := err.Error()
	if idx := strings.LastIndex(msg, ": "); idx >= 0 {
		msg = msg[idx+2:]
	}
	if msg == "" {
		return MessageInvalidInput
	}
	return msg
}
