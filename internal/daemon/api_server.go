package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"uniloader/internal/api"
	"uniloader/internal/artifacts"
	"uniloader/internal/config"
	"uniloader/internal/logging"
	"uniloader/internal/media"
	"uniloader/internal/services"
)

const maxRequestBodyBytes = 1 << 20

// requestService is the slice of api.Service the handlers depend on.
type requestService interface {
	Fetch(ctx context.Context, req api.FetchRequest) (media.Descriptor, error)
	Download(ctx context.Context, req api.DownloadRequest) (api.DownloadResponse, error)
	Open(ctx context.Context, handle string) (*os.File, artifacts.Artifact, error)
	SuggestedFilename(art artifacts.Artifact) string
}

type apiServer struct {
	bind   string
	logger *slog.Logger
	svc    requestService
	health func(context.Context) api.HealthResponse

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, errors.New("api server requires config and daemon")
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, errors.New("api_bind must be set")
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		svc:    d.service,
		health: d.Health,
	}
	// Download responses are written only after the conversion finishes.
	srv.server = &http.Server{
		Handler:           srv.handler(cfg),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RetrievalTimeout() + time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

// handler builds the routed, middleware-wrapped HTTP handler.
func (s *apiServer) handler(cfg *config.Config) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/fetch", s.handleFetch)
	mux.HandleFunc("/api/download", s.handleDownload)
	mux.HandleFunc("/api/files/", s.handleFile)
	mux.HandleFunc("/api/health", s.handleHealth)

	var h http.Handler = mux
	h = rateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst, h)
	h = cors(cfg.Server.CORSOrigin, h)
	h = withRequestID(h)
	h = recoverPanics(s.log(), h)
	return h
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleFetch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeStatus(w, http.StatusMethodNotAllowed, "method not allowed", "method_not_allowed")
		return
	}
	var req api.FetchRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	desc, err := s.svc.Fetch(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, desc)
}

func (s *apiServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeStatus(w, http.StatusMethodNotAllowed, "method not allowed", "method_not_allowed")
		return
	}
	var req api.DownloadRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	resp, err := s.svc.Download(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.writeStatus(w, http.StatusMethodNotAllowed, "method not allowed", "method_not_allowed")
		return
	}
	handle := strings.TrimPrefix(r.URL.Path, "/api/files/")
	file, art, err := s.svc.Open(r.Context(), handle)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer file.Close()

	name := s.svc.SuggestedFilename(art)
	w.Header().Set("Content-Type", contentType(art.Kind))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, name, art.CreatedAt, file)
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeStatus(w, http.StatusMethodNotAllowed, "method not allowed", "method_not_allowed")
		return
	}
	if s.health == nil {
		s.writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok"})
		return
	}
	resp := s.health(r.Context())
	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}

// decodeBody reads the JSON request into dst. An empty body leaves dst zero so
// field validation reports what is missing.
func (s *apiServer) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		s.writeStatus(w, http.StatusBadRequest, api.MessageInvalidInput, "validation")
		return false
	}
	return true
}

func contentType(kind media.Kind) string {
	switch kind {
	case media.KindAudio:
		return "audio/mpeg"
	case media.KindVideo:
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Warn("failed to encode api response", logging.Error(err))
	}
}

// writeError maps err onto its status and short message. Server-side
// failures keep the full error chain in the log only.
func (s *apiServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := api.StatusCode(err)
	ctx := r.Context()
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(ctx, s.log(), "request failed", "request_failed",
			logging.String("path", r.URL.Path),
			logging.String("error_kind", services.Kind(err)),
			logging.Error(err),
		)
	} else {
		logging.WithContext(ctx, s.log()).Debug("request rejected",
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.Error(err),
		)
	}
	s.writeJSON(w, status, api.ErrorPayload(err))
}

func (s *apiServer) writeStatus(w http.ResponseWriter, status int, message, code string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message, Code: code})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return logging.NewComponentLogger(s.logger, "api-server")
}
