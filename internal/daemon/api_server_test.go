package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"uniloader/internal/api"
	"uniloader/internal/artifacts"
	"uniloader/internal/config"
	"uniloader/internal/logging"
	"uniloader/internal/media"
	"uniloader/internal/services"
)

type serviceStub struct {
	desc     media.Descriptor
	download api.DownloadResponse
	err      error
	file     string
	art      artifacts.Artifact
	lastURL  string
}

func (s *serviceStub) Fetch(_ context.Context, req api.FetchRequest) (media.Descriptor, error) {
	s.lastURL = req.URL
	return s.desc, s.err
}

func (s *serviceStub) Download(_ context.Context, req api.DownloadRequest) (api.DownloadResponse, error) {
	s.lastURL = req.URL
	return s.download, s.err
}

func (s *serviceStub) Open(_ context.Context, handle string) (*os.File, artifacts.Artifact, error) {
	if s.err != nil {
		return nil, artifacts.Artifact{}, s.err
	}
	if handle != s.art.Filename {
		return nil, artifacts.Artifact{}, services.Wrap(services.ErrNotFound, "artifacts", "serve", "no such artifact", nil)
	}
	f, err := os.Open(s.file)
	return f, s.art, err
}

func (s *serviceStub) SuggestedFilename(art artifacts.Artifact) string {
	return "UniLoader_" + art.JobID + "." + art.Kind.Extension()
}

func newTestServer(svc requestService) *apiServer {
	return &apiServer{logger: logging.NewNop(), svc: svc}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) api.ErrorResponse {
	t.Helper()
	var resp api.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestHandleFetchReturnsDescriptor(t *testing.T) {
	stub := &serviceStub{desc: media.Descriptor{ID: "abc", Title: "Example", AvailableKinds: []media.Kind{media.KindAudio}}}
	srv := newTestServer(stub)

	req := httptest.NewRequest(http.MethodPost, "/api/fetch", strings.NewReader(`{"url":"https://example.com/v"}`))
	w := httptest.NewRecorder()
	srv.handleFetch(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if stub.lastURL != "https://example.com/v" {
		t.Fatalf("service saw url %q", stub.lastURL)
	}
	var desc media.Descriptor
	if err := json.Unmarshal(w.Body.Bytes(), &desc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if desc.Title != "Example" || desc.ID != "abc" {
		t.Fatalf("unexpected descriptor: %+v", desc)
	}
}

func TestHandleFetchMapsErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", services.Wrap(services.ErrValidation, "api", "fetch", "URL required", nil), http.StatusBadRequest, "validation"},
		{"extraction", services.Wrap(services.ErrExtraction, "metadata", "describe", "yt-dlp exited 1", nil), http.StatusInternalServerError, "extraction"},
		{"conversion", services.Wrap(services.ErrConversion, "retrieval", "run", "ffmpeg died", nil), http.StatusInternalServerError, "conversion"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(&serviceStub{err: tc.err})
			req := httptest.NewRequest(http.MethodPost, "/api/fetch", strings.NewReader(`{"url":"x"}`))
			w := httptest.NewRecorder()
			srv.handleFetch(w, req)
			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, w.Code)
			}
			resp := decodeError(t, w)
			if resp.Code != tc.code {
				t.Fatalf("expected code %q, got %q", tc.code, resp.Code)
			}
			if strings.Contains(resp.Error, "exited") || strings.Contains(resp.Error, "ffmpeg") {
				t.Fatalf("tool detail leaked to caller: %q", resp.Error)
			}
		})
	}
}

func TestHandleFetchRejectsMalformedBody(t *testing.T) {
	srv := newTestServer(&serviceStub{})
	req := httptest.NewRequest(http.MethodPost, "/api/fetch", strings.NewReader(`{"url":`))
	w := httptest.NewRecorder()
	srv.handleFetch(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestEmptyBodyReportsMissingURL(t *testing.T) {
	srv := newTestServer(api.NewService(nil, nil, nil, "UniLoader"))
	handlers := []struct {
		path    string
		handler http.HandlerFunc
	}{
		{"/api/fetch", srv.handleFetch},
		{"/api/download", srv.handleDownload},
	}
	for _, h := range handlers {
		t.Run(h.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.handler(w, httptest.NewRequest(http.MethodPost, h.path, http.NoBody))
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			if resp := decodeError(t, w); resp.Error != api.MessageURLRequired || resp.Code != "validation" {
				t.Fatalf("unexpected error body: %+v", resp)
			}
		})
	}
}

func TestHandlersRejectWrongMethod(t *testing.T) {
	srv := newTestServer(&serviceStub{})
	handlers := []struct {
		method string
		path   string
		fn     http.HandlerFunc
	}{
		{http.MethodGet, "/api/fetch", srv.handleFetch},
		{http.MethodGet, "/api/download", srv.handleDownload},
		{http.MethodPost, "/api/files/x.mp3", srv.handleFile},
		{http.MethodDelete, "/api/health", srv.handleHealth},
	}
	for _, h := range handlers {
		w := httptest.NewRecorder()
		h.fn(w, httptest.NewRequest(h.method, h.path, nil))
		if w.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s %s: expected 405, got %d", h.method, h.path, w.Code)
		}
	}
}

func TestHandleDownloadReturnsHandle(t *testing.T) {
	expires := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stub := &serviceStub{download: api.DownloadResponse{
		Success:     true,
		DownloadURL: "/api/files/job.mp3",
		Filename:    "UniLoader_job.mp3",
		JobID:       "job",
		ExpiresAt:   expires,
	}}
	srv := newTestServer(stub)

	body := `{"url":"https://example.com/v","qualityId":"140","type":"audio"}`
	w := httptest.NewRecorder()
	srv.handleDownload(w, httptest.NewRequest(http.MethodPost, "/api/download", strings.NewReader(body)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.DownloadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.DownloadURL != "/api/files/job.mp3" || !resp.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestHandleFileServesAttachment(t *testing.T) {
	dir := t.TempDir()
	jobID := "8a8f6a3e-1f1e-4f59-9d8c-58f0e5b3a001"
	path := filepath.Join(dir, jobID+".mp3")
	if err := os.WriteFile(path, []byte("audio-bytes"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	stub := &serviceStub{
		file: path,
		art:  artifacts.Artifact{JobID: jobID, Filename: jobID + ".mp3", Kind: media.KindAudio, CreatedAt: time.Now()},
	}
	srv := newTestServer(stub)

	w := httptest.NewRecorder()
	srv.handleFile(w, httptest.NewRequest(http.MethodGet, "/api/files/"+jobID+".mp3", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Body.String(); got != "audio-bytes" {
		t.Fatalf("unexpected body %q", got)
	}
	if ct := w.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Fatalf("unexpected content type %q", ct)
	}
	cd := w.Header().Get("Content-Disposition")
	if !strings.HasPrefix(cd, "attachment") || !strings.Contains(cd, "UniLoader_"+jobID+".mp3") {
		t.Fatalf("unexpected content disposition %q", cd)
	}
}

func TestHandleFileUnknownIs404(t *testing.T) {
	srv := newTestServer(&serviceStub{art: artifacts.Artifact{Filename: "known.mp4"}})
	w := httptest.NewRecorder()
	srv.handleFile(w, httptest.NewRequest(http.MethodGet, "/api/files/unknown.mp4", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Error != api.MessageNotFound {
		t.Fatalf("unexpected message %q", resp.Error)
	}
}

func TestHandleHealthReportsDegraded(t *testing.T) {
	srv := newTestServer(&serviceStub{})
	srv.health = func(context.Context) api.HealthResponse {
		return api.HealthResponse{Status: "degraded"}
	}
	w := httptest.NewRecorder()
	srv.handleHealth(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestHandlerAppliesCORSAndRequestID(t *testing.T) {
	cfg := config.Default()
	cfg.Server.RateLimit = 0
	srv := newTestServer(&serviceStub{})
	h := srv.handler(&cfg)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/download", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("unexpected allow origin %q", got)
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected request id header")
	}

	incoming := "5f0c7d1e-2b3a-4c5d-8e9f-0a1b2c3d4e5f"
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(requestIDHeader, incoming)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got != incoming {
		t.Fatalf("expected incoming request id to be kept, got %q", got)
	}
}

func TestRateLimitRejectsOverflow(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	h := rateLimit(0.001, 2, ok)

	codes := make([]int, 0, 3)
	for range 3 {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	for range 50 {
		w := httptest.NewRecorder()
		rateLimit(0, 0, ok).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("limiter should be disabled, got %d", w.Code)
		}
	}
}

func TestRecoverPanicsAnswers500(t *testing.T) {
	boom := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })
	w := httptest.NewRecorder()
	recoverPanics(logging.NewNop(), boom).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/fetch", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Error != api.MessageInternal {
		t.Fatalf("unexpected message %q", resp.Error)
	}
}
