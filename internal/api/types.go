package api

import (
	"strings"
	"time"

	"uniloader/internal/artifacts"
	"uniloader/internal/preflight"
)

// FetchRequest is the POST /api/fetch body.
type FetchRequest struct {
	URL string `json:"url"`
}

// DownloadRequest is the POST /api/download body. QualityID and Type are the
// legacy front-end names for VariantID and MediaKind.
type DownloadRequest struct {
	URL       string `json:"url"`
	VariantID string `json:"variantId,omitempty"`
	MediaKind string `json:"mediaKind,omitempty"`
	QualityID string `json:"qualityId,omitempty"`
	Type      string `json:"type,omitempty"`
}

// Normalized folds the legacy aliases into the canonical fields.
func (r DownloadRequest) Normalized() DownloadRequest {
	out := DownloadRequest{
		URL:       strings.TrimSpace(r.URL),
		VariantID: strings.TrimSpace(r.VariantID),
		MediaKind: strings.TrimSpace(r.MediaKind),
	}
	if out.VariantID == "" {
		out.VariantID = strings.TrimSpace(r.QualityID)
	}
	if out.MediaKind == "" {
		out.MediaKind = strings.TrimSpace(r.Type)
	}
	return out
}

// DownloadResponse is returned once the artifact is ready.
type DownloadResponse struct {
	Success     bool      `json:"success"`
	DownloadURL string    `json:"downloadUrl"`
	Filename    string    `json:"filename"`
	JobID       string    `json:"jobId"`
	MediaKind   string    `json:"mediaKind"`
	SizeBytes   int64     `json:"sizeBytes"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// HealthResponse is the GET /api/health body.
type HealthResponse struct {
	Status     string             `json:"status"`
	Checks     []preflight.Result `json:"checks"`
	Storage    artifacts.Stats    `json:"storage"`
	ActiveJobs int                `json:"activeJobs"`
}
