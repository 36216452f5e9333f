package server

import (
	"log/slog"
	"net/http"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("POST /upload/initiate", h.InitiateUpload)
	mux.HandleFunc("POST /upload/initiate-multipart", h.InitiateMultipartUpload)
	mux.HandleFunc("POST /upload/part", h.PresignPart)
	mux.HandleFunc("POST /upload/finalize-multipart", h.FinalizeMultipartUpload)
	mux.HandleFunc("POST /upload/abort-multipart", h.AbortMultipartUpload)
	mux.HandleFunc("POST /upload/complete", h.CompleteUpload)
	mux.HandleFunc("POST /upload/complete-multipart", h.CompleteUpload)

	mux.HandleFunc("GET /jobs", h.ListJobs)
	mux.HandleFunc("GET /jobs/{job_id}/status", h.GetJobStatus)
	mux.HandleFunc("GET /job-progress/{job_id}/stream", h.StreamProgress)

	mux.HandleFunc("POST /video/analyze-duration", h.AnalyzeDuration)

	// Apply middleware chain
	chain := ChainMiddleware(
		RequestIDMiddleware(),
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
