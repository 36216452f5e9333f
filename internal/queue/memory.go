package queue

import (
	"context"
	"time"
)

// Compile-time check that MemoryQueue implements Queue.
var _ Queue = (*MemoryQueue)(nil)

// MemoryQueue is a channel-backed in-process queue for tests and
// single-process deployments.
type MemoryQueue struct {
	ch chan string
}

// NewMemoryQueue creates an in-process queue holding up to capacity
// pending jobs. A non-positive capacity defaults to 1024.
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryQueue{ch: make(chan string, capacity)}
}

// Enqueue appends a job ID to the queue.
func (q *MemoryQueue) Enqueue(ctx context.Context, jobID string) error {
	select {
	case q.ch <- jobID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue removes and returns the oldest queued job ID.
func (q *MemoryQueue) Dequeue(ctx context.Context, wait time.Duration) (string, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case jobID := <-q.ch:
		return jobID, nil
	case <-timer.C:
		return "", ErrEmpty
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
