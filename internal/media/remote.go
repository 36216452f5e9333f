package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/clipforge/clipforge-api/internal/renderfarm"
)

// Compile-time check that RemoteProcessor implements Processor.
var _ Processor = (*RemoteProcessor)(nil)

// RemoteProcessor renders segments through the render farm. It submits
// a task carrying the source blob key and the overlay, polls until the
// task reaches a terminal state and downloads the output to the scratch
// path, so the worker sees the same synchronous contract as the local
// ffmpeg processor.
type RemoteProcessor struct {
	client       renderfarm.Client
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewRemoteProcessor creates a RemoteProcessor polling at the given
// interval. A non-positive interval defaults to 5 seconds.
func NewRemoteProcessor(client renderfarm.Client, pollInterval time.Duration, logger *slog.Logger) *RemoteProcessor {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteProcessor{
		client:       client,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// RenderSegment submits the segment to the render farm and blocks until
// the rendered file is on disk at req.OutputPath.
func (p *RemoteProcessor) RenderSegment(ctx context.Context, req RenderRequest) error {
	taskID, err := p.client.Submit(ctx, renderfarm.SubmitOptions{
		SourceKey:    req.SourceKey,
		Start:        req.Start,
		End:          req.End,
		OverlayLines: req.Overlay.Lines,
		FontSize:     req.Overlay.FontSize,
		LineHeight:   req.Overlay.LineHeight,
		MarginX:      req.Overlay.MarginX,
		MarginY:      req.Overlay.MarginY,
	})
	if err != nil {
		return fmt.Errorf("submit segment %d: %w", req.Index, err)
	}

	p.logger.Debug("render task submitted",
		slog.String("job_id", req.JobID),
		slog.Int("segment", req.Index),
		slog.String("task_id", taskID),
	)

	result, err := p.waitForTask(ctx, taskID)
	if err != nil {
		return err
	}

	if err := p.client.DownloadOutput(ctx, result.OutputURL, req.OutputPath); err != nil {
		return fmt.Errorf("download segment %d: %w", req.Index, err)
	}

	info, err := os.Stat(req.OutputPath)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyOutput, req.OutputPath)
	}
	return nil
}

// waitForTask polls the task until it reaches a terminal state.
func (p *RemoteProcessor) waitForTask(ctx context.Context, taskID string) (renderfarm.PollResult, error) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		result, err := p.client.Poll(ctx, taskID)
		if err != nil {
			return renderfarm.PollResult{}, fmt.Errorf("poll task %s: %w", taskID, err)
		}

		switch result.Status {
		case renderfarm.StatusCompleted:
			if result.OutputURL == "" {
				return renderfarm.PollResult{}, renderfarm.ErrNoOutputURL
			}
			return result, nil
		case renderfarm.StatusFailed, renderfarm.StatusCancelled:
			return renderfarm.PollResult{}, fmt.Errorf("render task %s %s: %s", taskID, result.Status, result.Error)
		}

		select {
		case <-ctx.Done():
			return renderfarm.PollResult{}, fmt.Errorf("wait for task %s: %w", taskID, ctx.Err())
		case <-ticker.C:
		}
	}
}
