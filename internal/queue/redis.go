package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Compile-time check that RedisQueue implements Queue.
var _ Queue = (*RedisQueue)(nil)

// defaultKey is the Redis list the worker feed lives on.
const defaultKey = "clipforge:job_queue"

// RedisQueue implements Queue on a Redis list: LPUSH to enqueue, BRPOP
// to dequeue, so jobs come out oldest first and a job is delivered to
// exactly one of any number of competing workers.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue creates a queue on an existing Redis client. An empty
// key selects the default list name. The caller owns the client.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = defaultKey
	}
	return &RedisQueue{client: client, key: key}
}

// Enqueue appends a job ID to the queue.
func (q *RedisQueue) Enqueue(ctx context.Context, jobID string) error {
	if err := q.client.LPush(ctx, q.key, jobID).Err(); err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", jobID, err)
	}
	return nil
}

// Dequeue removes and returns the oldest queued job ID, blocking up to
// wait for one to arrive.
func (q *RedisQueue) Dequeue(ctx context.Context, wait time.Duration) (string, error) {
	res, err := q.client.BRPop(ctx, wait, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrEmpty
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("queue: dequeue: %w", err)
	}

	// BRPOP returns [key, value].
	if len(res) != 2 {
		return "", ErrEmpty
	}
	return res[1], nil
}
