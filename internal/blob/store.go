// Package blob provides the object-store gateway for source videos and
// rendered segments. It defines the Store interface (port) and
// implementations for S3 and in-memory storage.
package blob

import (
	"context"
	"errors"
	"io"
	"time"
)

// Static errors for blob operations.
var (
	// ErrNotFound is returned when the requested key does not exist.
	ErrNotFound = errors.New("blob: object not found")
	// ErrUploadNotFound is returned for operations on an unknown multipart upload.
	ErrUploadNotFound = errors.New("blob: multipart upload not found")
	// ErrNoParts is returned when completing a multipart upload with no parts.
	ErrNoParts = errors.New("blob: no parts to complete")
)

// Part identifies one completed chunk of a multipart upload.
// ETag is the opaque tag the object store returned for the part PUT.
type Part struct {
	Number int    `json:"PartNumber"`
	ETag   string `json:"ETag"`
}

// Store defines the object-store operations the pipeline needs: direct
// reads and writes for the worker, presigned URLs for direct client
// transfer and probing, and multipart sessions for chunked uploads.
type Store interface {
	// Upload writes body to the given key.
	Upload(ctx context.Context, key string, body io.Reader) error

	// Download opens the object at key for reading.
	// The caller is responsible for closing the returned ReadCloser.
	// Returns ErrNotFound if the key does not exist.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists reports whether an object is stored at key.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the object at key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// PresignGet returns a short-lived URL granting read access to key.
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)

	// PresignPut returns a short-lived URL granting a single PUT to key.
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)

	// CreateMultipart starts a multipart upload session for key and
	// returns the object store's upload ID.
	CreateMultipart(ctx context.Context, key, contentType string) (string, error)

	// PresignUploadPart returns a short-lived URL for uploading one part
	// of an open multipart session.
	PresignUploadPart(ctx context.Context, key, uploadID string, partNumber int, ttl time.Duration) (string, error)

	// CompleteMultipart assembles the uploaded parts into a durable object
	// and returns its location URL. Parts must be sorted ascending by
	// number before calling.
	CompleteMultipart(ctx context.Context, key, uploadID string, parts []Part) (string, error)

	// AbortMultipart cancels an open multipart session; uploaded parts
	// are discarded by the object store.
	AbortMultipart(ctx context.Context, key, uploadID string) error
}
