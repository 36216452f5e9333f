// Package server provides the HTTP surface of the clipping API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/clipforge/clipforge-api/internal/blob"
	"github.com/clipforge/clipforge-api/internal/overlay"
	"github.com/clipforge/clipforge-api/internal/planner"
)

// InitiateUploadRequest is the body for both upload initiation endpoints.
type InitiateUploadRequest struct {
	// Filename is the client-side filename; it is sanitized before use.
	Filename string `json:"filename" validate:"required"`
	// ContentType is the declared MIME type of the upload.
	ContentType string `json:"content_type" validate:"required"`
	// FileSize is the declared size in bytes.
	FileSize int64 `json:"file_size" validate:"required,min=1"`
	// Mobile selects the smaller chunk plan for constrained uplinks.
	Mobile bool `json:"mobile"`
}

// InitiateUploadResponse is returned for single-shot uploads.
type InitiateUploadResponse struct {
	PresignedURL string `json:"presigned_url"`
	Key          string `json:"s3_key"`
	JobID        string `json:"job_id"`
}

// InitiateMultipartResponse is returned for multipart uploads.
type InitiateMultipartResponse struct {
	UploadID      string `json:"upload_id"`
	Key           string `json:"s3_key"`
	JobID         string `json:"job_id"`
	ChunkSize     int64  `json:"chunk_size"`
	MaxConcurrent int    `json:"max_concurrent_uploads"`
}

// PresignPartRequest is the body for requesting one part URL.
type PresignPartRequest struct {
	UploadID    string `json:"upload_id" validate:"required"`
	Key         string `json:"s3_key" validate:"required"`
	PartNumber  int    `json:"part_number" validate:"required,min=1,max=10000"`
	ContentType string `json:"content_type"`
}

// PresignPartResponse carries the signed URL for one part.
type PresignPartResponse struct {
	PresignedURL string `json:"presigned_url"`
	PartNumber   int    `json:"part_number"`
}

// FinalizeMultipartRequest is the body for completing a multipart upload.
type FinalizeMultipartRequest struct {
	UploadID string      `json:"upload_id" validate:"required"`
	Key      string      `json:"s3_key" validate:"required"`
	Parts    []blob.Part `json:"parts" validate:"required,min=1"`
}

// FinalizeMultipartResponse carries the location of the assembled blob.
type FinalizeMultipartResponse struct {
	URL string `json:"s3_url"`
}

// AbortMultipartRequest is the body for cancelling a multipart upload.
type AbortMultipartRequest struct {
	UploadID string `json:"upload_id" validate:"required"`
	Key      string `json:"s3_key" validate:"required"`
}

// MessageResponse is a bare confirmation payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// CuttingOptions is the wire form for segment cutting policies.
type CuttingOptions struct {
	Type            string `json:"type" validate:"required,oneof=fixed random"`
	DurationSeconds int    `json:"duration_seconds"`
	MinDuration     int    `json:"min_duration"`
	MaxDuration     int    `json:"max_duration"`
}

// toPolicy converts the wire form to the planner's policy type.
func (o *CuttingOptions) toPolicy() planner.Policy {
	return planner.Policy{
		Type:            planner.PolicyType(o.Type),
		DurationSeconds: o.DurationSeconds,
		MinDuration:     o.MinDuration,
		MaxDuration:     o.MaxDuration,
	}
}

// TextInput is the wire form for overlay text selection.
type TextInput struct {
	Strategy    string   `json:"strategy" validate:"omitempty,oneof=one_for_all base_vary unique_for_all"`
	BaseText    string   `json:"base_text"`
	Context     string   `json:"context"`
	UniqueTexts []string `json:"unique_texts"`
}

// toPolicy converts the wire form to the overlay policy, honoring a
// top-level strategy override.
func (t *TextInput) toPolicy(strategyOverride string) overlay.Policy {
	p := overlay.Policy{}
	if t != nil {
		p.Strategy = overlay.Strategy(t.Strategy)
		p.BaseText = t.BaseText
		p.Context = t.Context
		p.UniqueTexts = t.UniqueTexts
	}
	if strategyOverride != "" {
		p.Strategy = overlay.Strategy(strategyOverride)
	}
	return p
}

// CompleteUploadRequest is the body for both completion endpoints. The
// multipart variant extends finalize with job metadata; the single-shot
// variant omits upload_id and parts.
type CompleteUploadRequest struct {
	UploadID string      `json:"upload_id"`
	Key      string      `json:"s3_key" validate:"required"`
	JobID    string      `json:"job_id"`
	Parts    []blob.Part `json:"parts"`

	UserID       string          `json:"user_id"`
	Title        string          `json:"title"`
	Filename     string          `json:"filename"`
	ContentType  string          `json:"content_type"`
	FileSize     int64           `json:"file_size"`
	Cutting      *CuttingOptions `json:"cutting_options"`
	TextStrategy string          `json:"text_strategy" validate:"omitempty,oneof=one_for_all base_vary unique_for_all"`
	Text         *TextInput      `json:"text_input"`
	RemoteRender bool            `json:"remote_render"`
}

// CompleteUploadResponse acknowledges a queued job.
type CompleteUploadResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// JobStatusResponse is the reconciliation view of one job record.
// OutputURLs are short-lived signed read URLs regenerated per request.
type JobStatusResponse struct {
	JobID         string    `json:"job_id"`
	Status        string    `json:"status"`
	Stage         string    `json:"stage,omitempty"`
	Progress      int       `json:"progress"`
	OutputURLs    []string  `json:"output_urls,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	VideoDuration float64   `json:"video_duration,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// JobSummary is one row of the jobs listing.
type JobSummary struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	Stage     string    `json:"stage,omitempty"`
	Progress  int       `json:"progress"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// JobListResponse is the jobs listing payload.
type JobListResponse struct {
	Jobs []JobSummary `json:"jobs"`
}

// AnalyzeDurationRequest is the body for the dry-run planning endpoint.
type AnalyzeDurationRequest struct {
	Key     string          `json:"s3_key" validate:"required"`
	Cutting *CuttingOptions `json:"cutting_options"`
}

// AnalyzeDurationResponse is the dry-run planning result.
type AnalyzeDurationResponse struct {
	TotalDuration    float64   `json:"total_duration"`
	NumSegments      int       `json:"num_segments"`
	SegmentDurations []float64 `json:"segment_durations"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}
