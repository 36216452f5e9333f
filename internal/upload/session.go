// Package upload orchestrates client uploads: presigned single-shot
// PUTs, chunked multipart sessions with adaptive chunk sizing, and the
// post-finalize hand-off that creates and enqueues the processing job.
package upload

import (
	"context"
	"errors"
	"time"
)

// Static errors for upload session handling.
var (
	// ErrSessionInvalid is returned when a session does not exist or does
	// not match the request (wrong key, missing parts).
	ErrSessionInvalid = errors.New("upload: invalid upload session")
)

// SessionTTL bounds how long an unfinished multipart session is kept.
const SessionTTL = 24 * time.Hour

// Session is the server-side handle for one chunked upload in progress.
// UploadID is the object store's multipart upload identifier and doubles
// as the session key.
type Session struct {
	UploadID      string    `json:"upload_id"`
	Key           string    `json:"key"`
	JobID         string    `json:"job_id"`
	Filename      string    `json:"filename"`
	ContentType   string    `json:"content_type"`
	Size          int64     `json:"size"`
	ChunkSize     int64     `json:"chunk_size"`
	MaxConcurrent int       `json:"max_concurrent"`
	Mobile        bool      `json:"mobile"`
	CreatedAt     time.Time `json:"created_at"`
}

// SessionStore persists upload sessions between the initiate and
// finalize/abort requests, which may land on different API replicas.
type SessionStore interface {
	// Put stores a session under its upload ID with the store's TTL.
	Put(ctx context.Context, s Session) error

	// Get retrieves a session. Returns ErrSessionInvalid if absent.
	Get(ctx context.Context, uploadID string) (Session, error)

	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, uploadID string) error
}
