// Package job provides the Job aggregate for the video clipping pipeline.
// It includes the Job entity with its state machine and stage tracking,
// as well as repository interfaces for persistence.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/clipforge/clipforge-api/internal/overlay"
	"github.com/clipforge/clipforge-api/internal/planner"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusQueued indicates the job is waiting for an available worker.
	StatusQueued Status = "QUEUED"
	// StatusProcessing indicates the job is being processed by a worker.
	StatusProcessing Status = "PROCESSING"
	// StatusCompleted indicates the job finished successfully.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the job encountered an error during execution.
	StatusFailed Status = "FAILED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusQueued:     {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {},
	StatusFailed:     {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// nowUTC returns the current time in UTC at millisecond resolution,
// the precision job timestamps are stored and reported with.
func nowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Params carries the request metadata attached to a job at creation.
type Params struct {
	// UserID identifies the owning user. Opaque to the pipeline.
	UserID string
	// Title is the user-supplied display title, if any.
	Title string
	// SourceKey is the object-store key of the uploaded source video.
	SourceKey string
	// OriginalFilename is the filename declared at upload initiation.
	OriginalFilename string
	// ContentType is the declared MIME type of the source.
	ContentType string
	// SizeBytes is the declared size of the source in bytes.
	SizeBytes int64
	// SegmentPolicy controls how the video is cut into windows.
	SegmentPolicy planner.Policy
	// TextPolicy controls how overlay texts are chosen.
	TextPolicy overlay.Policy
	// RemoteRender selects the remote processor variant for rendering.
	RemoteRender bool
	// VideoDuration is the duration in seconds probed at upload time.
	// Zero means unknown; the worker re-probes in either case.
	VideoDuration float64
}

// Job represents a video clipping job aggregate.
// It contains all state related to cutting one uploaded video into
// overlaid segments.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// UserID identifies the owning user.
	UserID string
	// Title is the user-supplied display title.
	Title string
	// Status is the current job state.
	Status Status
	// Stage is the current pipeline stage.
	Stage Stage
	// Progress is the percentage of completion (0-100).
	Progress int
	// SourceKey is the object-store key of the source video.
	SourceKey string
	// OriginalFilename is the filename declared at upload.
	OriginalFilename string
	// ContentType is the declared MIME type of the source.
	ContentType string
	// SizeBytes is the declared source size in bytes.
	SizeBytes int64
	// SegmentPolicy controls how the video is cut.
	SegmentPolicy planner.Policy
	// TextPolicy controls how overlay texts are chosen.
	TextPolicy overlay.Policy
	// RemoteRender selects the remote processor variant.
	RemoteRender bool
	// VideoDuration is the source duration in seconds, 0 if unknown.
	VideoDuration float64
	// OutputKeys holds object-store keys of rendered segments, in order.
	OutputKeys []string
	// Error contains any error message if the job failed.
	Error string
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when processing started.
	StartedAt time.Time
	// CompletedAt is when processing finished.
	CompletedAt time.Time
}

// New creates a Job in QUEUED state with the given ID and request metadata.
// The ID is generated by the upload coordinator at initiation time so that
// clients can open a progress stream before the first event fires.
// Zero-valued policies default to fixed 30-second segments with a single
// overlay text.
func New(jobID string, p Params) *Job {
	if p.SegmentPolicy.Type == "" {
		p.SegmentPolicy = planner.Default(30)
	}
	if p.TextPolicy.Strategy == "" {
		p.TextPolicy = overlay.Default()
	}

	now := nowUTC()
	return &Job{
		ID:               jobID,
		UserID:           p.UserID,
		Title:            p.Title,
		Status:           StatusQueued,
		Stage:            StageQueued,
		SourceKey:        p.SourceKey,
		OriginalFilename: p.OriginalFilename,
		ContentType:      p.ContentType,
		SizeBytes:        p.SizeBytes,
		SegmentPolicy:    p.SegmentPolicy,
		TextPolicy:       p.TextPolicy,
		RemoteRender:     p.RemoteRender,
		VideoDuration:    p.VideoDuration,
		OutputKeys:       make([]string, 0),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = nowUTC()

	switch status {
	case StatusProcessing:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Start transitions the job from QUEUED to PROCESSING.
// Returns ErrInvalidTransition if the job is not in QUEUED state.
func (j *Job) Start() error {
	return j.TransitionTo(StatusProcessing)
}

// Complete transitions the job to COMPLETED, setting the completed stage
// and 100% progress. Returns ErrInvalidTransition if not allowed.
func (j *Job) Complete() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	j.Stage = StageCompleted
	j.Progress = 100
	return nil
}

// Fail transitions the job to FAILED with an error message and the failed
// stage. Progress is left where it was so callers can see how far the job
// got. Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.transitionLocked(StatusFailed); err != nil {
		return err
	}
	j.Stage = StageFailed
	j.Error = errMsg
	return nil
}

// Advance records a new pipeline stage and progress percentage.
// Progress is clamped to [0,100] and never moves backwards.
func (j *Job) Advance(stage Stage, progress int) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	if progress > j.Progress {
		j.Progress = progress
	}
	j.Stage = stage
	j.UpdatedAt = nowUTC()
}

// SetVideoDuration records the probed source duration in seconds.
func (j *Job) SetVideoDuration(seconds float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.VideoDuration = seconds
	j.UpdatedAt = nowUTC()
}

// AppendOutput appends an object-store key to the job's output list.
func (j *Job) AppendOutput(key string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.OutputKeys = append(j.OutputKeys, key)
	j.UpdatedAt = nowUTC()
}

// Outputs returns a copy of the output key list (thread-safe).
func (j *Job) Outputs() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	keys := make([]string, len(j.OutputKeys))
	copy(keys, j.OutputKeys)
	return keys
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// GetProgress returns the current progress percentage (thread-safe).
func (j *Job) GetProgress() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Progress
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	keys := make([]string, len(j.OutputKeys))
	copy(keys, j.OutputKeys)

	return &Job{
		ID:               j.ID,
		UserID:           j.UserID,
		Title:            j.Title,
		Status:           j.Status,
		Stage:            j.Stage,
		Progress:         j.Progress,
		SourceKey:        j.SourceKey,
		OriginalFilename: j.OriginalFilename,
		ContentType:      j.ContentType,
		SizeBytes:        j.SizeBytes,
		SegmentPolicy:    j.SegmentPolicy,
		TextPolicy:       j.TextPolicy,
		RemoteRender:     j.RemoteRender,
		VideoDuration:    j.VideoDuration,
		OutputKeys:       keys,
		Error:            j.Error,
		CreatedAt:        j.CreatedAt,
		UpdatedAt:        j.UpdatedAt,
		StartedAt:        j.StartedAt,
		CompletedAt:      j.CompletedAt,
	}
}
