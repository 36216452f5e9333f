package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Compile-time check that RedisSessionStore implements SessionStore.
var _ SessionStore = (*RedisSessionStore)(nil)

// sessionKeyPrefix namespaces session keys in Redis.
const sessionKeyPrefix = "clipforge:upload_session:"

// RedisSessionStore persists upload sessions in Redis with a TTL, so
// any API replica can serve the part, finalize and abort requests of a
// session another replica initiated.
type RedisSessionStore struct {
	client *redis.Client
}

// NewRedisSessionStore creates a session store on an existing Redis
// client. The caller owns the client and its lifecycle.
func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

// Put stores a session under its upload ID with the session TTL.
func (s *RedisSessionStore) Put(ctx context.Context, sess Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("upload: encode session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKeyPrefix+sess.UploadID, data, SessionTTL).Err(); err != nil {
		return fmt.Errorf("upload: store session: %w", err)
	}
	return nil
}

// Get retrieves a session.
func (s *RedisSessionStore) Get(ctx context.Context, uploadID string) (Session, error) {
	data, err := s.client.Get(ctx, sessionKeyPrefix+uploadID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, fmt.Errorf("%w: %s", ErrSessionInvalid, uploadID)
		}
		return Session{}, fmt.Errorf("upload: load session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, fmt.Errorf("upload: decode session: %w", err)
	}
	return sess, nil
}

// Delete removes a session.
func (s *RedisSessionStore) Delete(ctx context.Context, uploadID string) error {
	if err := s.client.Del(ctx, sessionKeyPrefix+uploadID).Err(); err != nil {
		return fmt.Errorf("upload: delete session: %w", err)
	}
	return nil
}
