// Package worker executes clipping jobs end to end: claim, fetch, probe,
// plan, resolve overlay text, render each segment, upload artifacts and
// record terminal state, publishing progress at every stage.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/clipforge/clipforge-api/internal/blob"
	"github.com/clipforge/clipforge-api/internal/job"
	"github.com/clipforge/clipforge-api/internal/media"
	"github.com/clipforge/clipforge-api/internal/overlay"
	"github.com/clipforge/clipforge-api/internal/planner"
	"github.com/clipforge/clipforge-api/internal/progress"
	"github.com/clipforge/clipforge-api/internal/queue"
	"github.com/clipforge/clipforge-api/internal/upload"
)

// Config holds the worker tunables.
type Config struct {
	// ScratchRoot is the directory per-job scratch dirs are created under.
	ScratchRoot string
	// SegmentTimeout bounds one segment render.
	SegmentTimeout time.Duration
	// MaxAttempts bounds retries of transient steps (fetch, render, upload).
	MaxAttempts int
	// RetryBaseDelay is the first retry delay; it doubles per attempt.
	RetryBaseDelay time.Duration
	// PollInterval is the dequeue wait per poll.
	PollInterval time.Duration
	// Concurrency is the number of parallel job loops.
	Concurrency int
	// Style holds the overlay layout tunables.
	Style overlay.Style
}

// withDefaults fills unset config fields with production defaults.
func (c Config) withDefaults() Config {
	if c.ScratchRoot == "" {
		c.ScratchRoot = os.TempDir()
	}
	if c.SegmentTimeout <= 0 {
		c.SegmentTimeout = 5 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 60 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.Style.FontDivisor == 0 {
		c.Style = overlay.DefaultStyle()
	}
	return c
}

// Worker runs clipping jobs claimed from the queue.
type Worker struct {
	jobs     job.Repository
	store    blob.Store
	jobQueue queue.Queue
	bus      progress.Bus
	prober   media.Prober
	local    media.Processor
	remote   media.Processor
	resolver *overlay.Resolver
	cfg      Config
	logger   *slog.Logger
}

// New creates a Worker. remote may be nil when no render farm is
// configured; jobs flagged for remote rendering then fall back to the
// local processor.
func New(
	jobs job.Repository,
	store blob.Store,
	jobQueue queue.Queue,
	bus progress.Bus,
	prober media.Prober,
	local media.Processor,
	remote media.Processor,
	resolver *overlay.Resolver,
	cfg Config,
	logger *slog.Logger,
) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		jobs:     jobs,
		store:    store,
		jobQueue: jobQueue,
		bus:      bus,
		prober:   prober,
		local:    local,
		remote:   remote,
		resolver: resolver,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// Run spawns the configured number of dequeue loops and blocks until ctx
// is cancelled and all in-flight jobs have finished.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.loop(ctx, slot)
		}(i)
	}
	wg.Wait()
}

// loop polls the queue until ctx is cancelled.
func (w *Worker) loop(ctx context.Context, slot int) {
	logger := w.logger.With(slog.Int("slot", slot))
	logger.Info("worker loop started")

	for {
		if ctx.Err() != nil {
			logger.Info("worker loop stopped")
			return
		}

		jobID, err := w.jobQueue.Dequeue(ctx, w.cfg.PollInterval)
		if err != nil {
			if errors.Is(err, queue.ErrEmpty) {
				continue
			}
			if ctx.Err() != nil {
				logger.Info("worker loop stopped")
				return
			}
			logger.Error("dequeue failed", slog.String("error", err.Error()))
			continue
		}

		w.Process(ctx, jobID)
	}
}

// Process claims and runs one job to a terminal state. A job another
// worker already claimed is skipped silently.
func (w *Worker) Process(ctx context.Context, jobID string) {
	logger := w.logger.With(slog.String("job_id", jobID))

	j, err := w.jobs.Claim(ctx, jobID)
	if err != nil {
		switch {
		case errors.Is(err, job.ErrNotClaimable):
			logger.Debug("job already claimed, skipping")
		case errors.Is(err, job.ErrJobNotFound):
			logger.Warn("dequeued unknown job, skipping")
		default:
			logger.Error("claim failed", slog.String("error", err.Error()))
		}
		return
	}

	logger.Info("job claimed")

	if err := w.run(ctx, j, logger); err != nil {
		w.fail(ctx, j, err, logger)
		return
	}

	logger.Info("job completed", slog.Int("segments", len(j.Outputs())))
}

// run executes the pipeline for a claimed job. Any returned error fails
// the job.
func (w *Worker) run(ctx context.Context, j *job.Job, logger *slog.Logger) error {
	scratch, err := os.MkdirTemp(w.cfg.ScratchRoot, j.ID+"_")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			logger.Warn("scratch cleanup failed", slog.String("error", err.Error()))
		}
	}()

	// Fetch.
	w.advance(ctx, j, job.StageDownloading, job.StageDownloading.Anchor(), "fetching source video", logger)
	sourcePath := filepath.Join(scratch, "source"+filepath.Ext(j.OriginalFilename))
	if err := w.retry(ctx, "fetch source", logger, func() error {
		return w.fetchSource(ctx, j.SourceKey, sourcePath)
	}); err != nil {
		return err
	}

	// Probe. The probed value is authoritative over any duration cached
	// at upload time.
	w.advance(ctx, j, job.StageProbing, job.StageProbing.Anchor(), "reading video metadata", logger)
	md, err := w.prober.Probe(ctx, sourcePath)
	if err != nil {
		return err
	}
	j.SetVideoDuration(md.Duration)

	// Plan.
	windows, err := planner.Windows(md.Duration, j.SegmentPolicy, planner.NewPicker(planner.Seed(j.ID)))
	if err != nil {
		return err
	}
	n := len(windows)
	logger.Info("segments planned",
		slog.Int("segments", n),
		slog.Float64("duration", md.Duration),
	)

	// Resolve overlay text.
	w.advance(ctx, j, job.StageGeneratingText, job.StageGeneratingText.Anchor(), "resolving overlay text", logger)
	texts, err := w.resolver.Resolve(ctx, j.TextPolicy, n)
	if err != nil {
		return err
	}

	// Render and upload each segment.
	for i, window := range windows {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := w.processSegment(ctx, j, scratch, sourcePath, md, window, texts[i], i+1, n, logger); err != nil {
			return fmt.Errorf("segment %d/%d: %w", i+1, n, err)
		}
	}

	// Finish.
	w.advance(ctx, j, job.StageUploadingResults, job.StageUploadingResults.Anchor(), "finishing up", logger)

	if err := j.Complete(); err != nil {
		return err
	}
	if err := w.jobs.Update(ctx, j); err != nil {
		return fmt.Errorf("record completion: %w", err)
	}

	event := progress.NewEvent(j.ID, job.StageCompleted, "all segments rendered")
	event.TotalSegments = n
	event.CurrentSegment = n
	event.OutputKeys = j.Outputs()
	w.publish(ctx, event, logger)

	return nil
}

// processSegment renders one segment with its overlay, uploads the
// artifact and publishes the per-segment progress event.
func (w *Worker) processSegment(
	ctx context.Context,
	j *job.Job,
	scratch, sourcePath string,
	md media.Metadata,
	window planner.Window,
	text string,
	index, total int,
	logger *slog.Logger,
) error {
	outputPath := filepath.Join(scratch, fmt.Sprintf("segment_%03d.mp4", index))
	req := media.RenderRequest{
		JobID:      j.ID,
		Index:      index,
		SourcePath: sourcePath,
		SourceKey:  j.SourceKey,
		OutputPath: outputPath,
		Start:      window.Start,
		End:        window.End,
		Overlay:    w.cfg.Style.Compute(md.Width, md.Height, text),
	}

	processor := w.local
	if j.RemoteRender && w.remote != nil {
		processor = w.remote
	}

	if err := w.retry(ctx, "render segment", logger, func() error {
		renderCtx, cancel := context.WithTimeout(ctx, w.cfg.SegmentTimeout)
		defer cancel()
		return processor.RenderSegment(renderCtx, req)
	}); err != nil {
		return err
	}

	key := upload.SegmentKey(j.ID, index)
	if err := w.retry(ctx, "upload segment", logger, func() error {
		f, err := os.Open(outputPath) // #nosec G304 - path is under the job's scratch dir
		if err != nil {
			return fmt.Errorf("open rendered segment: %w", err)
		}
		defer func() { _ = f.Close() }()
		return w.store.Upload(ctx, key, f)
	}); err != nil {
		return err
	}

	j.AppendOutput(key)
	pct := job.SegmentProgress(index, total)
	j.Advance(job.StageProcessingSegment, pct)
	if err := w.jobs.Update(ctx, j); err != nil {
		return fmt.Errorf("record segment: %w", err)
	}

	event := progress.NewEvent(j.ID, job.StageProcessingSegment,
		fmt.Sprintf("processed segment %d of %d", index, total))
	event.CurrentSegment = index
	event.TotalSegments = total
	event.Progress = pct
	event.OutputKeys = j.Outputs()
	w.publish(ctx, event, logger)

	logger.Info("segment rendered",
		slog.Int("segment", index),
		slog.Int("total", total),
		slog.String("key", key),
	)
	return nil
}

// fetchSource downloads the source blob to a scratch path.
func (w *Worker) fetchSource(ctx context.Context, key, destPath string) error {
	rc, err := w.store.Download(ctx, key)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	f, err := os.Create(destPath) // #nosec G304 - path is under the job's scratch dir
	if err != nil {
		return fmt.Errorf("create scratch file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := io.Copy(f, rc); err != nil {
		return fmt.Errorf("write scratch file: %w", err)
	}
	return nil
}

// advance records a stage on the job and publishes the matching event.
// The record is written before the event so a client reconciling from
// the status endpoint never sees it lag the stream.
func (w *Worker) advance(ctx context.Context, j *job.Job, stage job.Stage, pct int, message string, logger *slog.Logger) {
	j.Advance(stage, pct)
	if err := w.jobs.Update(ctx, j); err != nil {
		logger.Warn("job update failed",
			slog.String("stage", string(stage)),
			slog.String("error", err.Error()),
		)
	}

	event := progress.NewEvent(j.ID, stage, message)
	event.Progress = pct
	w.publish(ctx, event, logger)
}

// publish sends an event to the bus. Publish failures are logged, not
// fatal: the job record remains the source of truth.
func (w *Worker) publish(ctx context.Context, event progress.Event, logger *slog.Logger) {
	if err := w.bus.Publish(ctx, event); err != nil {
		logger.Warn("progress publish failed",
			slog.String("stage", string(event.Stage)),
			slog.String("error", err.Error()),
		)
	}
}

// fail marks the job FAILED, records the error and publishes the failed
// event.
func (w *Worker) fail(ctx context.Context, j *job.Job, cause error, logger *slog.Logger) {
	logger.Error("job failed", slog.String("error", cause.Error()))

	if err := j.Fail(cause.Error()); err != nil {
		logger.Error("could not mark job failed", slog.String("error", err.Error()))
	}
	if err := w.jobs.Update(ctx, j); err != nil {
		logger.Error("could not record job failure", slog.String("error", err.Error()))
	}

	event := progress.NewEvent(j.ID, job.StageFailed, "job failed")
	event.ErrorMessage = cause.Error()
	event.OutputKeys = j.Outputs()
	w.publish(ctx, event, logger)
}

// retry runs fn up to MaxAttempts times with doubling backoff, stopping
// early on permanent errors and context cancellation.
func (w *Worker) retry(ctx context.Context, op string, logger *slog.Logger, fn func() error) error {
	var lastErr error
	delay := w.cfg.RetryBaseDelay

	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if isPermanent(err) || ctx.Err() != nil {
			return err
		}

		lastErr = err
		logger.Warn("transient step failed",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", w.cfg.MaxAttempts),
			slog.String("error", err.Error()),
		)

		if attempt < w.cfg.MaxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay *= 2
			}
		}
	}

	return fmt.Errorf("%s: retries exhausted: %w", op, lastErr)
}

// isPermanent reports whether retrying cannot help: the source is bad,
// the policy is bad, or the blob does not exist.
func isPermanent(err error) bool {
	return errors.Is(err, media.ErrSourceMissing) ||
		errors.Is(err, media.ErrInvalidVideo) ||
		errors.Is(err, planner.ErrVideoTooShort) ||
		errors.Is(err, planner.ErrBadPolicy) ||
		errors.Is(err, overlay.ErrBadPolicy) ||
		errors.Is(err, blob.ErrNotFound) ||
		errors.Is(err, context.Canceled)
}
