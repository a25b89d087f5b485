package api_test

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"uniloader/internal/api"
	"uniloader/internal/artifacts"
	"uniloader/internal/logging"
	"uniloader/internal/media"
	"uniloader/internal/metadata"
	"uniloader/internal/retrieval"
	"uniloader/internal/services"
	"uniloader/internal/services/ytdlp"
)

type stubDescriber struct {
	desc  media.Descriptor
	err   error
	calls int
}

func (s *stubDescriber) Describe(_ context.Context, url string) (media.Descriptor, error) {
	s.calls++
	if s.err != nil {
		return media.Descriptor{}, s.err
	}
	desc := s.desc
	desc.SourceURL = url
	return desc, nil
}

type writingTool struct {
	err error
}

func (w writingTool) Retrieve(_ context.Context, opts ytdlp.RetrieveOptions) (string, error) {
	if w.err != nil {
		return "", w.err
	}
	path := filepath.Join(opts.OutputDir, opts.Stem+"."+opts.Kind.Extension())
	return path, os.WriteFile(path, []byte("media"), 0o644)
}

func newService(t *testing.T, describer api.Describer, tool retrieval.Tool) (*api.Service, *artifacts.Manager) {
	t.Helper()
	mgr, err := artifacts.Open(artifacts.Options{Root: t.TempDir(), Retention: time.Hour, Logger: logging.NewNop()})
	if err != nil {
		t.Fatalf("artifacts.Open returned error: %v", err)
	}
	t.Cleanup(func() { _ = mgr.Close() })
	orch := retrieval.NewOrchestrator(tool, mgr, logging.NewNop())
	return api.NewService(describer, orch, mgr, "UniLoader"), mgr
}

func TestFetchRequiresURL(t *testing.T) {
	describer := &stubDescriber{}
	svc, _ := newService(t, describer, writingTool{})

	_, err := svc.Fetch(context.Background(), api.FetchRequest{URL: "  "})
	if api.StatusCode(err) != http.StatusBadRequest || api.UserMessage(err) != api.MessageURLRequired {
		t.Fatalf("unexpected error: %v (%q)", err, api.UserMessage(err))
	}
	if describer.calls != 0 {
		t.Fatal("no extraction may run for invalid input")
	}
}

func TestFetchRejectsNonHTTPURL(t *testing.T) {
	svc, _ := newService(t, &stubDescriber{}, writingTool{})
	_, err := svc.Fetch(context.Background(), api.FetchRequest{URL: "ftp://example.com/a"})
	if api.StatusCode(err) != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%v)", api.StatusCode(err), err)
	}
}

func TestFetchSurfacesExtractionError(t *testing.T) {
	extractErr := &metadata.ExtractionError{Message: metadata.MessageUnsupported, Err: errors.New("exit status 1: secret stderr")}
	svc, _ := newService(t, &stubDescriber{err: extractErr}, writingTool{})

	_, err := svc.Fetch(context.Background(), api.FetchRequest{URL: "https://example.com/v"})
	if api.StatusCode(err) != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", api.StatusCode(err))
	}
	payload := api.ErrorPayload(err)
	if payload.Error != metadata.MessageUnsupported || payload.Code != "extraction" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestFetchReturnsDescriptor(t *testing.T) {
	describer := &stubDescriber{desc: media.Descriptor{ID: "abc", Platform: "youtube"}}
	svc, _ := newService(t, describer, writingTool{})

	desc, err := svc.Fetch(context.Background(), api.FetchRequest{URL: " https://example.com/v "})
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if desc.ID != "abc" || desc.SourceURL != "https://example.com/v" {
		t.Fatalf("unexpected descriptor: %+v", desc)
	}
}

func TestDownloadValidation(t *testing.T) {
	svc, mgr := newService(t, &stubDescriber{}, writingTool{})
	cases := []struct {
		name string
		req  api.DownloadRequest
		msg  string
	}{
		{name: "missing url", req: api.DownloadRequest{MediaKind: "video"}, msg: api.MessageURLRequired},
		{name: "missing kind", req: api.DownloadRequest{URL: "https://example.com/v"}, msg: api.MessageKindRequired},
		{name: "bad kind", req: api.DownloadRequest{URL: "https://example.com/v", MediaKind: "gif"}, msg: api.MessageKindInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Download(context.Background(), tc.req)
			if api.StatusCode(err) != http.StatusBadRequest || api.UserMessage(err) != tc.msg {
				t.Fatalf("unexpected error %v (%q)", err, api.UserMessage(err))
			}
		})
	}

	_, err := svc.Download(context.Background(), api.DownloadRequest{URL: "https://example.com/v", MediaKind: "video", VariantID: "1;rm"})
	if api.StatusCode(err) != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed variant, got %v", err)
	}
	if len(mgr.List()) != 0 {
		t.Fatal("validation failures must not create artifacts")
	}
}

func TestDownloadAudioAndVideoExtensions(t *testing.T) {
	svc, _ := newService(t, &stubDescriber{}, writingTool{})

	audio, err := svc.Download(context.Background(), api.DownloadRequest{URL: "https://example.com/v", MediaKind: "audio"})
	if err != nil {
		t.Fatalf("audio download: %v", err)
	}
	if filepath.Ext(audio.DownloadURL) != ".mp3" || audio.Filename != "UniLoader_"+audio.JobID+".mp3" {
		t.Fatalf("unexpected audio response: %+v", audio)
	}

	video, err := svc.Download(context.Background(), api.DownloadRequest{URL: "https://example.com/v", Type: "video", QualityID: "137"})
	if err != nil {
		t.Fatalf("video download: %v", err)
	}
	if !video.Success || video.DownloadURL != "/api/files/"+video.JobID+".mp4" {
		t.Fatalf("unexpected video response: %+v", video)
	}
	if video.JobID == audio.JobID {
		t.Fatal("jobs must have distinct ids")
	}
}

func TestDownloadConversionFailure(t *testing.T) {
	svc, mgr := newService(t, &stubDescriber{}, writingTool{err: &ytdlp.ToolError{Op: "retrieve", ExitCode: 1}})

	_, err := svc.Download(context.Background(), api.DownloadRequest{URL: "https://example.com/v", MediaKind: "video"})
	if api.StatusCode(err) != http.StatusInternalServerError || api.UserMessage(err) != api.MessageConversionFailed {
		t.Fatalf("unexpected error %v (%q)", err, api.UserMessage(err))
	}
	if len(mgr.List()) != 0 {
		t.Fatal("failed jobs must not register artifacts")
	}
}

func TestOpenServesRegisteredArtifact(t *testing.T) {
	svc, _ := newService(t, &stubDescriber{}, writingTool{})
	resp, err := svc.Download(context.Background(), api.DownloadRequest{URL: "https://example.com/v", MediaKind: "audio"})
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}

	file, art, err := svc.Open(context.Background(), filepath.Base(resp.DownloadURL))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	_ = file.Close()
	if art.JobID != resp.JobID || svc.SuggestedFilename(art) != resp.Filename {
		t.Fatalf("unexpected artifact %+v", art)
	}

	_, _, err = svc.Open(context.Background(), "0b8e37c2-4c41-4d76-9a63-6a4f3de0b7a1.mp4")
	if api.StatusCode(err) != http.StatusNotFound || api.UserMessage(err) != api.MessageNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestStatusCodeAndMessageMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		msg    string
		code   string
	}{
		{err: services.Wrap(services.ErrValidation, "x", "", "", nil), status: http.StatusBadRequest, msg: api.MessageInvalidInput, code: "validation"},
		{err: services.Wrap(services.ErrNotFound, "x", "", "", nil), status: http.StatusNotFound, msg: api.MessageNotFound, code: "not_found"},
		{err: services.Wrap(services.ErrVariantUnavailable, "x", "", "", nil), status: http.StatusInternalServerError, msg: api.MessageVariantUnavailable, code: "variant_unavailable"},
		{err: services.Wrap(services.ErrConversion, "x", "", "", nil), status: http.StatusInternalServerError, msg: api.MessageConversionFailed, code: "conversion"},
		{err: errors.New("boom"), status: http.StatusInternalServerError, msg: api.MessageInternal, code: "internal"},
	}
	for _, tc := range cases {
		if got := api.StatusCode(tc.err); got != tc.status {
			t.Fatalf("StatusCode(%v) = %d, want %d", tc.err, got, tc.status)
		}
		payload := api.ErrorPayload(tc.err)
		if payload.Error != tc.msg || payload.Code != tc.code {
			t.Fatalf("ErrorPayload(%v) = %+v", tc.err, payload)
		}
	}
}
