package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
)

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory implementation of Store.
// Presigned URLs are synthetic memory:// URLs that carry the key and
// expiry; nothing serves them, but handlers and tests can assert their
// shape. Suitable for development and testing only.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	uploads map[string]*memoryUpload
}

type memoryUpload struct {
	key   string
	parts map[int][]byte
}

// NewMemoryStore creates a new in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		uploads: make(map[string]*memoryUpload),
	}
}

// Upload writes body to the given key.
func (s *MemoryStore) Upload(_ context.Context, key string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

// Download opens the object at key for reading.
func (s *MemoryStore) Download(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Exists reports whether an object is stored at key.
func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok, nil
}

// Delete removes the object at key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

// PresignGet returns a synthetic read URL for key.
func (s *MemoryStore) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	return signedURL("get", key, ttl), nil
}

// PresignPut returns a synthetic write URL for key.
func (s *MemoryStore) PresignPut(_ context.Context, key, _ string, ttl time.Duration) (string, error) {
	return signedURL("put", key, ttl), nil
}

// CreateMultipart starts an in-memory multipart session for key.
func (s *MemoryStore) CreateMultipart(_ context.Context, key, _ string) (string, error) {
	uploadID := "upload_" + ksuid.New().String()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads[uploadID] = &memoryUpload{
		key:   key,
		parts: make(map[int][]byte),
	}
	return uploadID, nil
}

// PresignUploadPart returns a synthetic part-upload URL.
func (s *MemoryStore) PresignUploadPart(_ context.Context, key, uploadID string, partNumber int, ttl time.Duration) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.uploads[uploadID]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUploadNotFound, uploadID)
	}
	return signedURL(fmt.Sprintf("part/%s/%d", uploadID, partNumber), key, ttl), nil
}

// PutPart records part data for an open multipart session. Real clients
// PUT chunks against the presigned URL; tests call this directly.
func (s *MemoryStore) PutPart(uploadID string, partNumber int, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	up, ok := s.uploads[uploadID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUploadNotFound, uploadID)
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	up.parts[partNumber] = buf
	return fmt.Sprintf("etag-%s-%d", uploadID, partNumber), nil
}

// CompleteMultipart concatenates the recorded parts into a durable object.
func (s *MemoryStore) CompleteMultipart(_ context.Context, key, uploadID string, parts []Part) (string, error) {
	if len(parts) == 0 {
		return "", ErrNoParts
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	up, ok := s.uploads[uploadID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUploadNotFound, uploadID)
	}

	sorted := make([]Part, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, k int) bool { return sorted[i].Number < sorted[k].Number })

	var buf bytes.Buffer
	for _, p := range sorted {
		buf.Write(up.parts[p.Number])
	}
	s.objects[key] = buf.Bytes()
	delete(s.uploads, uploadID)

	return "memory://" + key, nil
}

// AbortMultipart discards an open multipart session.
func (s *MemoryStore) AbortMultipart(_ context.Context, _, uploadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.uploads[uploadID]; !ok {
		return fmt.Errorf("%w: %s", ErrUploadNotFound, uploadID)
	}
	delete(s.uploads, uploadID)
	return nil
}

// signedURL builds a synthetic presigned URL carrying the operation, key
// and expiry timestamp.
func signedURL(op, key string, ttl time.Duration) string {
	expires := time.Now().Add(ttl).Unix()
	return fmt.Sprintf("memory://%s/%s?expires=%d", op, key, expires)
}
