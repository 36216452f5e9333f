package upload

import (
	"context"
	"fmt"
	"sync"
)

// Compile-time check that MemorySessionStore implements SessionStore.
var _ SessionStore = (*MemorySessionStore)(nil)

// MemorySessionStore is an in-memory implementation of SessionStore for
// tests and single-process deployments. It does not expire sessions.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemorySessionStore creates an in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]Session)}
}

// Put stores a session under its upload ID.
func (s *MemorySessionStore) Put(_ context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.UploadID] = sess
	return nil
}

// Get retrieves a session.
func (s *MemorySessionStore) Get(_ context.Context, uploadID string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[uploadID]
	if !ok {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionInvalid, uploadID)
	}
	return sess, nil
}

// Delete removes a session.
func (s *MemorySessionStore) Delete(_ context.Context, uploadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, uploadID)
	return nil
}
