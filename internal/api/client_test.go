package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"uniloader/internal/api"
	"uniloader/internal/media"
)

func TestClientFetchAndDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/fetch":
			var req api.FetchRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			_ = json.NewEncoder(w).Encode(media.Descriptor{ID: "abc", SourceURL: req.URL})
		case "/api/download":
			var req api.DownloadRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.MediaKind != "audio" {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: api.MessageKindInvalid, Code: "validation"})
				return
			}
			_ = json.NewEncoder(w).Encode(api.DownloadResponse{Success: true, DownloadURL: "/api/files/x.mp3", Filename: "UniLoader_x.mp3"})
		case "/api/files/x.mp3":
			w.Header().Set("Content-Disposition", `attachment; filename="UniLoader_x.mp3"`)
			_, _ = w.Write([]byte("audio-bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client, err := api.NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	ctx := context.Background()

	desc, err := client.Fetch(ctx, "https://example.com/v")
	if err != nil || desc.SourceURL != "https://example.com/v" {
		t.Fatalf("Fetch = %+v, %v", desc, err)
	}

	resp, err := client.Download(ctx, api.DownloadRequest{URL: "https://example.com/v", MediaKind: "audio"})
	if err != nil || !resp.Success {
		t.Fatalf("Download = %+v, %v", resp, err)
	}

	var buf bytes.Buffer
	name, err := client.FetchFile(ctx, resp.DownloadURL, &buf)
	if err != nil {
		t.Fatalf("FetchFile returned error: %v", err)
	}
	if name != "UniLoader_x.mp3" || buf.String() != "audio-bytes" {
		t.Fatalf("FetchFile = %q, %q", name, buf.String())
	}

	_, err = client.Download(ctx, api.DownloadRequest{URL: "https://example.com/v", MediaKind: "gif"})
	var clientErr *api.ClientError
	if !errors.As(err, &clientErr) || clientErr.Status != http.StatusBadRequest || clientErr.Code != "validation" {
		t.Fatalf("expected decoded client error, got %v", err)
	}

	_, err = client.FetchFile(ctx, "/api/files/missing.mp4", &buf)
	if !errors.As(err, &clientErr) || clientErr.Status != http.StatusNotFound {
		t.Fatalf("expected 404 client error, got %v", err)
	}
}

func TestNewClientRejectsEmptyAddress(t *testing.T) {
	if _, err := api.NewClient("  ", nil); err == nil {
		t.Fatal("expected error for empty address")
	}
	if _, err := api.NewClient(":3001", nil); err != nil {
		t.Fatalf("NewClient returned error for port-only bind: %v", err)
	}
}
