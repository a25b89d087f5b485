package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"uniloader/internal/media"
)

// Client talks to a running daemon over its HTTP API.
type Client struct {
	base string
	http *http.Client
}

// ClientError is a non-2xx response decoded from the daemon.
type ClientError struct {
	Status  int
	Message string
	Code    string
}

func (e *ClientError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("daemon returned %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("daemon returned %d: %s", e.Status, e.Message)
}

// NewClient builds a client for bind, which may be host:port or a full URL.
func NewClient(bind string, httpClient *http.Client) (*Client, error) {
	base := strings.TrimSpace(bind)
	if base == "" {
		return nil, errors.New("api client: address required")
	}
	if !strings.Contains(base, "://") {
		if strings.HasPrefix(base, ":") {
			base = "127.0.0.1" + base
		}
		base = "http://" + base
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("api client: parse address: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Hour}
	}
	return &Client{base: strings.TrimRight(base, "/"), http: httpClient}, nil
}

// Fetch requests the descriptor for url.
func (c *Client) Fetch(ctx context.Context, sourceURL string) (media.Descriptor, error) {
	var desc media.Descriptor
	err := c.postJSON(ctx, "/api/fetch", FetchRequest{URL: sourceURL}, &desc)
	return desc, err
}

// Download asks the daemon to retrieve a variant and waits for the artifact.
func (c *Client) Download(ctx context.Context, req DownloadRequest) (DownloadResponse, error) {
	var resp DownloadResponse
	err := c.postJSON(ctx, "/api/download", req, &resp)
	return resp, err
}

// Health returns the daemon's readiness report.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var resp HealthResponse
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/health", nil)
	if err != nil {
		return resp, err
	}
	err = c.do(httpReq, &resp)
	return resp, err
}

// FetchFile streams the artifact at downloadURL into w and returns the
// attachment filename the daemon suggested.
func (c *Client) FetchFile(ctx context.Context, downloadURL string, w io.Writer) (string, error) {
	target := downloadURL
	if strings.HasPrefix(target, "/") {
		target = c.base + target
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", decodeClientError(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("copy file body: %w", err)
	}
	name := ""
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		name = params["filename"]
	}
	return name, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(httpReq, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeClientError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

func decodeClientError(resp *http.Response) error {
	var payload ErrorResponse
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err := json.Unmarshal(body, &payload); err != nil || payload.Error == "" {
		payload.Error = strings.TrimSpace(string(body))
		if payload.Error == "" {
			payload.Error = http.StatusText(resp.StatusCode)
		}
	}
	return &ClientError{Status: resp.StatusCode, Message: payload.Error, Code: payload.Code}
}
