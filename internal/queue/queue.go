// Package queue hands queued job IDs from the upload coordinator to
// worker processes. The queue carries only identifiers; job state lives
// in the job store.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrEmpty is returned by Dequeue when no job arrived within the wait
// window. Workers treat it as a normal poll miss and loop.
var ErrEmpty = errors.New("queue: no job available")

// Queue is the worker-feed port.
type Queue interface {
	// Enqueue appends a job ID to the queue.
	Enqueue(ctx context.Context, jobID string) error

	// Dequeue removes and returns the oldest queued job ID, waiting up
	// to wait for one to arrive. Returns ErrEmpty on a miss.
	Dequeue(ctx context.Context, wait time.Duration) (string, error)
}
