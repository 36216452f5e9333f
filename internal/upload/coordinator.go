package upload

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/clipforge/clipforge-api/internal/blob"
	"github.com/clipforge/clipforge-api/internal/job"
	"github.com/clipforge/clipforge-api/internal/job/id"
	"github.com/clipforge/clipforge-api/internal/media"
	"github.com/clipforge/clipforge-api/internal/overlay"
	"github.com/clipforge/clipforge-api/internal/planner"
	"github.com/clipforge/clipforge-api/internal/progress"
	"github.com/clipforge/clipforge-api/internal/queue"
)

// probeBudget bounds the best-effort duration probe at completion time.
// The worker re-probes the downloaded file anyway, so a slow probe here
// must not hold up the response.
const probeBudget = 30 * time.Second

// Coordinator orchestrates upload sessions and the hand-off into the
// processing pipeline.
type Coordinator struct {
	store      blob.Store
	sessions   SessionStore
	jobs       job.Repository
	jobQueue   queue.Queue
	bus        progress.Bus
	prober     media.Prober
	presignTTL time.Duration
	logger     *slog.Logger
}

// NewCoordinator creates a Coordinator. prober may be nil, in which case
// completion skips the advisory duration probe.
func NewCoordinator(
	store blob.Store,
	sessions SessionStore,
	jobs job.Repository,
	jobQueue queue.Queue,
	bus progress.Bus,
	prober media.Prober,
	presignTTL time.Duration,
	logger *slog.Logger,
) *Coordinator {
	if presignTTL <= 0 {
		presignTTL = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:      store,
		sessions:   sessions,
		jobs:       jobs,
		jobQueue:   jobQueue,
		bus:        bus,
		prober:     prober,
		presignTTL: presignTTL,
		logger:     logger,
	}
}

// InitiateInput is the client's upload declaration.
type InitiateInput struct {
	Filename    string
	ContentType string
	Size        int64
	Mobile      bool
}

// InitiateResult describes a single-shot upload: one presigned PUT.
type InitiateResult struct {
	JobID        string
	Key          string
	PresignedURL string
}

// Initiate prepares a single-shot upload: a fresh job ID, a source key
// and a presigned PUT URL the client uploads the whole file to.
func (c *Coordinator) Initiate(ctx context.Context, in InitiateInput) (InitiateResult, error) {
	jobID := id.New()
	key := SourceKey(jobID, in.Filename, time.Now())

	url, err := c.store.PresignPut(ctx, key, in.ContentType, c.presignTTL)
	if err != nil {
		return InitiateResult{}, fmt.Errorf("presign upload: %w", err)
	}

	c.logger.Info("upload initiated",
		slog.String("job_id", jobID),
		slog.String("key", key),
		slog.Int64("size", in.Size),
	)

	return InitiateResult{JobID: jobID, Key: key, PresignedURL: url}, nil
}

// MultipartResult describes an open multipart upload session.
type MultipartResult struct {
	UploadID      string
	JobID         string
	Key           string
	ChunkSize     int64
	MaxConcurrent int
}

// InitiateMultipart opens a multipart upload session with a chunk plan
// adapted to the declared size and the mobile hint.
func (c *Coordinator) InitiateMultipart(ctx context.Context, in InitiateInput) (MultipartResult, error) {
	jobID := id.New()
	key := SourceKey(jobID, in.Filename, time.Now())
	plan := PlanChunks(in.Size, in.Mobile)

	uploadID, err := c.store.CreateMultipart(ctx, key, in.ContentType)
	if err != nil {
		return MultipartResult{}, fmt.Errorf("create multipart upload: %w", err)
	}

	sess := Session{
		UploadID:      uploadID,
		Key:           key,
		JobID:         jobID,
		Filename:      in.Filename,
		ContentType:   in.ContentType,
		Size:          in.Size,
		ChunkSize:     plan.ChunkSize,
		MaxConcurrent: plan.MaxConcurrent,
		Mobile:        in.Mobile,
		CreatedAt:     time.Now().UTC(),
	}
	if err := c.sessions.Put(ctx, sess); err != nil {
		// Best effort: don't leak the object-store session.
		_ = c.store.AbortMultipart(ctx, key, uploadID)
		return MultipartResult{}, err
	}

	c.logger.Info("multipart upload initiated",
		slog.String("job_id", jobID),
		slog.String("upload_id", uploadID),
		slog.Int64("size", in.Size),
		slog.Int64("chunk_size", plan.ChunkSize),
		slog.Int("max_concurrent", plan.MaxConcurrent),
		slog.Bool("mobile", in.Mobile),
	)

	return MultipartResult{
		UploadID:      uploadID,
		JobID:         jobID,
		Key:           key,
		ChunkSize:     plan.ChunkSize,
		MaxConcurrent: plan.MaxConcurrent,
	}, nil
}

// PresignPart returns a presigned URL for uploading one part of an open
// session. The session must exist and match the declared key.
func (c *Coordinator) PresignPart(ctx context.Context, uploadID, key string, partNumber int) (string, error) {
	sess, err := c.sessions.Get(ctx, uploadID)
	if err != nil {
		return "", err
	}
	if sess.Key != key {
		return "", fmt.Errorf("%w: key mismatch", ErrSessionInvalid)
	}
	if partNumber < 1 {
		return "", fmt.Errorf("%w: part number %d", ErrSessionInvalid, partNumber)
	}

	url, err := c.store.PresignUploadPart(ctx, key, uploadID, partNumber, c.presignTTL)
	if err != nil {
		return "", fmt.Errorf("presign part %d: %w", partNumber, err)
	}
	return url, nil
}

// Finalize completes an open multipart session, making the blob durable
// at the session key, and deletes the session. Returns the object
// location URL.
func (c *Coordinator) Finalize(ctx context.Context, uploadID, key string, parts []blob.Part) (string, error) {
	sess, err := c.sessions.Get(ctx, uploadID)
	if err != nil {
		return "", err
	}
	if sess.Key != key {
		return "", fmt.Errorf("%w: key mismatch", ErrSessionInvalid)
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: no parts", ErrSessionInvalid)
	}

	location, err := c.store.CompleteMultipart(ctx, key, uploadID, parts)
	if err != nil {
		return "", fmt.Errorf("complete multipart: %w", err)
	}

	if err := c.sessions.Delete(ctx, uploadID); err != nil {
		c.logger.Warn("failed to delete finalized session",
			slog.String("upload_id", uploadID),
			slog.String("error", err.Error()),
		)
	}

	c.logger.Info("multipart upload finalized",
		slog.String("job_id", sess.JobID),
		slog.String("upload_id", uploadID),
		slog.Int("parts", len(parts)),
	)
	return location, nil
}

// Abort cancels an open multipart session and discards its parts.
func (c *Coordinator) Abort(ctx context.Context, uploadID, key string) error {
	sess, err := c.sessions.Get(ctx, uploadID)
	if err != nil {
		return err
	}
	if sess.Key != key {
		return fmt.Errorf("%w: key mismatch", ErrSessionInvalid)
	}

	if err := c.store.AbortMultipart(ctx, key, uploadID); err != nil {
		return fmt.Errorf("abort multipart: %w", err)
	}
	if err := c.sessions.Delete(ctx, uploadID); err != nil {
		return err
	}

	c.logger.Info("multipart upload aborted",
		slog.String("job_id", sess.JobID),
		slog.String("upload_id", uploadID),
	)
	return nil
}

// CompleteInput carries the processing metadata submitted with upload
// completion.
type CompleteInput struct {
	// UploadID is set for the multipart path; empty for single-shot.
	UploadID string
	Key      string
	JobID    string
	Parts    []blob.Part

	UserID       string
	Title        string
	Filename     string
	ContentType  string
	Size         int64
	Cutting      planner.Policy
	Text         overlay.Policy
	RemoteRender bool
}

// Complete finalizes the upload if needed, creates the job record in
// QUEUED, enqueues it for the worker and publishes the queued event.
// The advisory duration probe is best-effort; the worker reprobes the
// downloaded file before planning.
func (c *Coordinator) Complete(ctx context.Context, in CompleteInput) (*job.Job, error) {
	if in.UploadID != "" {
		if in.JobID == "" {
			sess, err := c.sessions.Get(ctx, in.UploadID)
			if err != nil {
				return nil, err
			}
			in.JobID = sess.JobID
		}
		if _, err := c.Finalize(ctx, in.UploadID, in.Key, in.Parts); err != nil {
			return nil, err
		}
	} else {
		ok, err := c.store.Exists(ctx, in.Key)
		if err != nil {
			return nil, fmt.Errorf("check source blob: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", blob.ErrNotFound, in.Key)
		}
	}

	if in.JobID == "" {
		in.JobID = id.New()
	}

	duration := c.probeDuration(ctx, in.Key)

	j := job.New(in.JobID, job.Params{
		UserID:           in.UserID,
		Title:            in.Title,
		SourceKey:        in.Key,
		OriginalFilename: in.Filename,
		ContentType:      in.ContentType,
		SizeBytes:        in.Size,
		SegmentPolicy:    in.Cutting,
		TextPolicy:       in.Text,
		RemoteRender:     in.RemoteRender,
		VideoDuration:    duration,
	})

	if err := c.jobs.Create(ctx, j); err != nil {
		return nil, fmt.Errorf("create job record: %w", err)
	}

	if err := c.jobQueue.Enqueue(ctx, j.ID); err != nil {
		// Leave the record in QUEUED; a requeue sweep or manual retry
		// can pick it up, and the client sees the job as accepted.
		c.logger.Error("failed to enqueue job",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	event := progress.NewEvent(j.ID, job.StageQueued, "job queued for processing")
	if err := c.bus.Publish(ctx, event); err != nil {
		c.logger.Warn("failed to publish queued event",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
	}

	c.logger.Info("job enqueued",
		slog.String("job_id", j.ID),
		slog.String("key", in.Key),
		slog.Float64("video_duration", duration),
	)
	return j, nil
}

// probeDuration probes the uploaded source over a presigned URL.
// Failures are non-fatal and return 0.
func (c *Coordinator) probeDuration(ctx context.Context, key string) float64 {
	if c.prober == nil {
		return 0
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeBudget)
	defer cancel()

	url, err := c.store.PresignGet(probeCtx, key, c.presignTTL)
	if err != nil {
		c.logger.Warn("presign for probe failed", slog.String("error", err.Error()))
		return 0
	}

	md, err := c.prober.Probe(probeCtx, url)
	if err != nil {
		c.logger.Warn("advisory duration probe failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return 0
	}
	return md.Duration
}
