package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/clipforge/clipforge-api/internal/blob"
	"github.com/clipforge/clipforge-api/internal/job"
	"github.com/clipforge/clipforge-api/internal/media"
	"github.com/clipforge/clipforge-api/internal/overlay"
	"github.com/clipforge/clipforge-api/internal/planner"
	"github.com/clipforge/clipforge-api/internal/progress"
	"github.com/clipforge/clipforge-api/internal/upload"
)

// serviceName identifies the API in the health payload.
const serviceName = "clipforge-api"

// version is overridden at build time via -ldflags.
var version = "dev"

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	coordinator    *upload.Coordinator
	jobs           job.Repository
	store          blob.Store
	bus            progress.Bus
	prober         media.Prober
	validator      *validator.Validate
	presignTTL     time.Duration
	segmentSeconds int
	logger         *slog.Logger
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithPresignTTL sets the lifetime of signed output URLs.
func WithPresignTTL(ttl time.Duration) HandlerOption {
	return func(h *Handlers) {
		h.presignTTL = ttl
	}
}

// WithDefaultSegmentSeconds sets the fixed segment length applied when a
// request carries no cutting options.
func WithDefaultSegmentSeconds(seconds int) HandlerOption {
	return func(h *Handlers) {
		h.segmentSeconds = seconds
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	coordinator *upload.Coordinator,
	jobs job.Repository,
	store blob.Store,
	bus progress.Bus,
	prober media.Prober,
	logger *slog.Logger,
	opts ...HandlerOption,
) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		coordinator:    coordinator,
		jobs:           jobs,
		store:          store,
		bus:            bus,
		prober:         prober,
		validator:      validator.New(),
		presignTTL:     time.Hour,
		segmentSeconds: 30,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: serviceName,
		Version: version,
	})
}

// InitiateUpload handles POST /upload/initiate requests.
func (h *Handlers) InitiateUpload(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[InitiateUploadRequest](h, w, r)
	if !ok {
		return
	}

	res, err := h.coordinator.Initiate(r.Context(), upload.InitiateInput{
		Filename:    req.Filename,
		ContentType: req.ContentType,
		Size:        req.FileSize,
		Mobile:      req.Mobile,
	})
	if err != nil {
		h.writeDomainError(w, err, "initiate upload")
		return
	}

	h.logger.Info("upload initiated",
		slog.String("job_id", res.JobID),
		slog.String("key", res.Key),
		slog.Int64("size", req.FileSize),
	)

	writeJSON(w, http.StatusOK, InitiateUploadResponse{
		PresignedURL: res.PresignedURL,
		Key:          res.Key,
		JobID:        res.JobID,
	})
}

// InitiateMultipartUpload handles POST /upload/initiate-multipart requests.
func (h *Handlers) InitiateMultipartUpload(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[InitiateUploadRequest](h, w, r)
	if !ok {
		return
	}

	res, err := h.coordinator.InitiateMultipart(r.Context(), upload.InitiateInput{
		Filename:    req.Filename,
		ContentType: req.ContentType,
		Size:        req.FileSize,
		Mobile:      req.Mobile,
	})
	if err != nil {
		h.writeDomainError(w, err, "initiate multipart upload")
		return
	}

	h.logger.Info("multipart upload initiated",
		slog.String("job_id", res.JobID),
		slog.String("upload_id", res.UploadID),
		slog.Int64("chunk_size", res.ChunkSize),
	)

	writeJSON(w, http.StatusOK, InitiateMultipartResponse{
		UploadID:      res.UploadID,
		Key:           res.Key,
		JobID:         res.JobID,
		ChunkSize:     res.ChunkSize,
		MaxConcurrent: res.MaxConcurrent,
	})
}

// PresignPart handles POST /upload/part requests.
func (h *Handlers) PresignPart(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[PresignPartRequest](h, w, r)
	if !ok {
		return
	}

	url, err := h.coordinator.PresignPart(r.Context(), req.UploadID, req.Key, req.PartNumber)
	if err != nil {
		h.writeDomainError(w, err, "presign part")
		return
	}

	writeJSON(w, http.StatusOK, PresignPartResponse{
		PresignedURL: url,
		PartNumber:   req.PartNumber,
	})
}

// FinalizeMultipartUpload handles POST /upload/finalize-multipart requests.
func (h *Handlers) FinalizeMultipartUpload(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[FinalizeMultipartRequest](h, w, r)
	if !ok {
		return
	}

	location, err := h.coordinator.Finalize(r.Context(), req.UploadID, req.Key, req.Parts)
	if err != nil {
		h.writeDomainError(w, err, "finalize multipart upload")
		return
	}

	h.logger.Info("multipart upload finalized",
		slog.String("upload_id", req.UploadID),
		slog.String("key", req.Key),
		slog.Int("parts", len(req.Parts)),
	)

	writeJSON(w, http.StatusOK, FinalizeMultipartResponse{URL: location})
}

// AbortMultipartUpload handles POST /upload/abort-multipart requests.
func (h *Handlers) AbortMultipartUpload(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[AbortMultipartRequest](h, w, r)
	if !ok {
		return
	}

	if err := h.coordinator.Abort(r.Context(), req.UploadID, req.Key); err != nil {
		h.writeDomainError(w, err, "abort multipart upload")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "multipart upload aborted"})
}

// CompleteUpload handles POST /upload/complete and
// POST /upload/complete-multipart requests. The multipart variant carries
// upload_id and parts; the single-shot variant omits them.
func (h *Handlers) CompleteUpload(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[CompleteUploadRequest](h, w, r)
	if !ok {
		return
	}

	in := upload.CompleteInput{
		UploadID:     req.UploadID,
		Key:          req.Key,
		JobID:        req.JobID,
		Parts:        req.Parts,
		UserID:       req.UserID,
		Title:        req.Title,
		Filename:     req.Filename,
		ContentType:  req.ContentType,
		Size:         req.FileSize,
		Text:         req.Text.toPolicy(req.TextStrategy),
		RemoteRender: req.RemoteRender,
	}
	if req.Cutting != nil {
		in.Cutting = req.Cutting.toPolicy()
	}

	created, err := h.coordinator.Complete(r.Context(), in)
	if err != nil {
		h.writeDomainError(w, err, "complete upload")
		return
	}

	h.logger.Info("job queued",
		slog.String("job_id", created.ID),
		slog.String("key", created.SourceKey),
	)

	writeJSON(w, http.StatusAccepted, CompleteUploadResponse{
		JobID:   created.ID,
		Status:  string(created.Status),
		Message: "upload complete, processing queued",
	})
}

// GetJobStatus handles GET /jobs/{job_id}/status requests. Output URLs
// are signed fresh on every call so stored keys never leak.
func (h *Handlers) GetJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")

	found, err := h.jobs.FindByID(r.Context(), jobID)
	if err != nil {
		h.writeDomainError(w, err, "get job status")
		return
	}

	resp := JobStatusResponse{
		JobID:         found.ID,
		Status:        string(found.Status),
		Stage:         string(found.Stage),
		Progress:      found.Progress,
		ErrorMessage:  found.Error,
		VideoDuration: found.VideoDuration,
		CreatedAt:     found.CreatedAt,
		UpdatedAt:     found.UpdatedAt,
	}

	for _, key := range found.Outputs() {
		url, err := h.store.PresignGet(r.Context(), key, h.presignTTL)
		if err != nil {
			h.logger.Warn("output presign failed",
				slog.String("job_id", jobID),
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			continue
		}
		resp.OutputURLs = append(resp.OutputURLs, url)
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListJobs handles GET /jobs requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobs.List(r.Context())
	if err != nil {
		h.writeDomainError(w, err, "list jobs")
		return
	}

	resp := JobListResponse{Jobs: make([]JobSummary, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, JobSummary{
			JobID:     j.ID,
			Status:    string(j.Status),
			Stage:     string(j.Stage),
			Progress:  j.Progress,
			Title:     j.Title,
			CreatedAt: j.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// AnalyzeDuration handles POST /video/analyze-duration requests: probe the
// stored blob and report the windows the policy would produce, without
// creating a job.
func (h *Handlers) AnalyzeDuration(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[AnalyzeDurationRequest](h, w, r)
	if !ok {
		return
	}

	exists, err := h.store.Exists(r.Context(), req.Key)
	if err != nil {
		h.writeDomainError(w, err, "analyze duration")
		return
	}
	if !exists {
		h.writeDomainError(w, blob.ErrNotFound, "analyze duration")
		return
	}

	url, err := h.store.PresignGet(r.Context(), req.Key, h.presignTTL)
	if err != nil {
		h.writeDomainError(w, err, "analyze duration")
		return
	}

	md, err := h.prober.Probe(r.Context(), url)
	if err != nil {
		h.writeDomainError(w, err, "analyze duration")
		return
	}

	policy := planner.Default(h.segmentSeconds)
	if req.Cutting != nil {
		policy = req.Cutting.toPolicy()
	}

	windows, err := planner.Windows(md.Duration, policy, nil)
	if err != nil {
		h.writeDomainError(w, err, "analyze duration")
		return
	}

	writeJSON(w, http.StatusOK, AnalyzeDurationResponse{
		TotalDuration:    md.Duration,
		NumSegments:      len(windows),
		SegmentDurations: planner.Durations(windows),
	})
}

// decodeRequest decodes and validates a JSON request body, writing the
// error response itself when either step fails.
func decodeRequest[T any](h *Handlers, w http.ResponseWriter, r *http.Request) (T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return req, false
	}
	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return req, false
	}
	return req, true
}

// writeDomainError maps domain errors to HTTP statuses and stable codes.
func (h *Handlers) writeDomainError(w http.ResponseWriter, err error, op string) {
	var status int
	var code string

	switch {
	case errors.Is(err, job.ErrJobNotFound):
		status, code = http.StatusNotFound, "JOB_NOT_FOUND"
	case errors.Is(err, media.ErrSourceMissing), errors.Is(err, blob.ErrNotFound):
		status, code = http.StatusNotFound, "SOURCE_MISSING"
	case errors.Is(err, media.ErrInvalidVideo):
		status, code = http.StatusBadRequest, "INVALID_VIDEO"
	case errors.Is(err, planner.ErrVideoTooShort):
		status, code = http.StatusBadRequest, "VIDEO_TOO_SHORT"
	case errors.Is(err, planner.ErrBadPolicy), errors.Is(err, overlay.ErrBadPolicy):
		status, code = http.StatusBadRequest, "BAD_POLICY"
	case errors.Is(err, upload.ErrSessionInvalid), errors.Is(err, blob.ErrUploadNotFound), errors.Is(err, blob.ErrNoParts):
		status, code = http.StatusBadRequest, "UPLOAD_SESSION_INVALID"
	default:
		status, code = http.StatusInternalServerError, "INTERNAL_ERROR"
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", slog.String("error", err.Error()))
		writeError(w, status, "internal server error", code)
		return
	}

	h.logger.Warn(op+" rejected", slog.String("error", err.Error()))
	writeError(w, status, err.Error(), code)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
