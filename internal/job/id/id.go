// Package id provides unique identifier generation for jobs.
package id

import "github.com/segmentio/ksuid"

// New creates a new unique job ID.
// Format: job_<ksuid>. KSUIDs are K-sortable, so listings keyed by ID keep
// rough creation order even across processes.
// Example: job_2bYpJcNrsS3x4WyoGIrG9QdStkW
func New() string {
	return "job_" + ksuid.New().String()
}
