package job

import (
	"context"
	"errors"
)

// ErrJobNotFound is returned when a job cannot be found by ID.
var ErrJobNotFound = errors.New("job not found")

// ErrJobExists is returned when creating a job whose ID is already taken.
var ErrJobExists = errors.New("job already exists")

// ErrNotClaimable is returned by Claim when the job is not in QUEUED state,
// typically because another worker claimed it first.
var ErrNotClaimable = errors.New("job not claimable")

// Repository defines the interface for job persistence.
// It acts as a port in the hexagonal architecture pattern.
type Repository interface {
	// Create persists a new job. Returns ErrJobExists if the ID is taken.
	Create(ctx context.Context, job *Job) error

	// Update persists the current state of an existing job.
	// Returns ErrJobNotFound if the job does not exist.
	Update(ctx context.Context, job *Job) error

	// FindByID retrieves a job by its unique identifier.
	// Returns ErrJobNotFound if the job does not exist.
	FindByID(ctx context.Context, id string) (*Job, error)

	// Claim atomically transitions a QUEUED job to PROCESSING and returns
	// the claimed job. The write is conditional on the stored status so a
	// second worker racing for the same job gets ErrNotClaimable instead
	// of a duplicate claim. Returns ErrJobNotFound if the job does not
	// exist.
	Claim(ctx context.Context, id string) (*Job, error)

	// List returns all jobs, most recently created first.
	List(ctx context.Context) ([]*Job, error)

	// Delete removes a job from storage.
	// Returns ErrJobNotFound if the job does not exist.
	Delete(ctx context.Context, id string) error
}
