package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge-api/internal/blob"
	"github.com/clipforge/clipforge-api/internal/job"
	"github.com/clipforge/clipforge-api/internal/media"
	"github.com/clipforge/clipforge-api/internal/overlay"
	"github.com/clipforge/clipforge-api/internal/planner"
	"github.com/clipforge/clipforge-api/internal/progress"
	"github.com/clipforge/clipforge-api/internal/queue"
)

// fixedProber returns a canned probe result.
type fixedProber struct {
	md  media.Metadata
	err error
}

func (p fixedProber) Probe(_ context.Context, _ string) (media.Metadata, error) {
	return p.md, p.err
}

// fakeProcessor records render requests and writes a placeholder output
// file. The first failures calls return err instead.
type fakeProcessor struct {
	mu       sync.Mutex
	calls    []media.RenderRequest
	failures int
	err      error
}

func (p *fakeProcessor) RenderSegment(_ context.Context, req media.RenderRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	if p.failures > 0 {
		p.failures--
		return p.err
	}
	return os.WriteFile(req.OutputPath, []byte(fmt.Sprintf("segment %d", req.Index)), 0o644)
}

func (p *fakeProcessor) requests() []media.RenderRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]media.RenderRequest(nil), p.calls...)
}

type workerFixture struct {
	worker *Worker
	jobs   *job.MemoryRepository
	store  *blob.MemoryStore
	queue  *queue.MemoryQueue
	bus    *progress.MemoryBus
	local  *fakeProcessor
	remote *fakeProcessor
}

func newFixture(t *testing.T, prober media.Prober, local, remote *fakeProcessor) *workerFixture {
	t.Helper()
	f := &workerFixture{
		jobs:   job.NewMemoryRepository(),
		store:  blob.NewMemoryStore(),
		queue:  queue.NewMemoryQueue(16),
		bus:    progress.NewMemoryBus(),
		local:  local,
		remote: remote,
	}

	var remoteProc media.Processor
	if remote != nil {
		remoteProc = remote
	}

	f.worker = New(
		f.jobs, f.store, f.queue, f.bus, prober, local, remoteProc,
		overlay.NewResolver(nil, nil),
		Config{
			ScratchRoot:    t.TempDir(),
			SegmentTimeout: time.Minute,
			MaxAttempts:    3,
			RetryBaseDelay: time.Millisecond,
			PollInterval:   10 * time.Millisecond,
			Concurrency:    1,
		},
		nil,
	)
	return f
}

// seedJob creates a queued job with its source blob uploaded.
func (f *workerFixture) seedJob(t *testing.T, jobID string, p job.Params) *job.Job {
	t.Helper()
	ctx := context.Background()

	if p.SourceKey == "" {
		p.SourceKey = "uploads/" + jobID + "/20260825_120000_clip.mp4"
	}
	if p.OriginalFilename == "" {
		p.OriginalFilename = "clip.mp4"
	}
	require.NoError(t, f.store.Upload(ctx, p.SourceKey, strings.NewReader("source video bytes")))

	j := job.New(jobID, p)
	require.NoError(t, f.jobs.Create(ctx, j))
	return j
}

func fixedPolicy(seconds int) planner.Policy {
	return planner.Policy{Type: planner.PolicyFixed, DurationSeconds: seconds}
}

func TestProcess_FixedCut(t *testing.T) {
	local := &fakeProcessor{}
	f := newFixture(t, fixedProber{md: media.Metadata{Duration: 95, Width: 1080, Height: 1920}}, local, nil)
	ctx := context.Background()

	f.seedJob(t, "job_fixed", job.Params{
		SegmentPolicy: fixedPolicy(30),
		TextPolicy:    overlay.Policy{Strategy: overlay.StrategyOneForAll, BaseText: "Hello"},
	})

	sub, err := f.bus.Subscribe(ctx, "job_fixed")
	require.NoError(t, err)
	defer sub.Close()

	f.worker.Process(ctx, "job_fixed")

	// 95s at 30s per segment is four windows, the last one short.
	reqs := local.requests()
	require.Len(t, reqs, 4)
	assert.InDelta(t, 0.0, reqs[0].Start, 1e-9)
	assert.InDelta(t, 30.0, reqs[0].End, 1e-9)
	assert.InDelta(t, 90.0, reqs[3].Start, 1e-9)
	assert.InDelta(t, 95.0, reqs[3].End, 1e-9)
	assert.Equal(t, []string{"Hello"}, reqs[0].Overlay.Lines)

	stored, err := f.jobs.FindByID(ctx, "job_fixed")
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, stored.Status)
	assert.Equal(t, job.StageCompleted, stored.Stage)
	assert.Equal(t, 100, stored.Progress)
	assert.InDelta(t, 95.0, stored.VideoDuration, 1e-9)
	require.Equal(t, []string{
		"processed/job_fixed/segment_001.mp4",
		"processed/job_fixed/segment_002.mp4",
		"processed/job_fixed/segment_003.mp4",
		"processed/job_fixed/segment_004.mp4",
	}, stored.Outputs())

	// Every artifact is durable.
	for _, key := range stored.Outputs() {
		ok, err := f.store.Exists(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok, key)
	}

	// The stream walked the stages in order and never went backwards.
	var stages []job.Stage
	lastProgress := -1
	for {
		select {
		case event := <-sub.Events():
			stages = append(stages, event.Stage)
			assert.GreaterOrEqual(t, event.Progress, lastProgress)
			lastProgress = event.Progress
			if event.Stage.Terminal() {
				goto done
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for events")
		}
	}
done:
	assert.Equal(t, []job.Stage{
		job.StageDownloading,
		job.StageProbing,
		job.StageGeneratingText,
		job.StageProcessingSegment,
		job.StageProcessingSegment,
		job.StageProcessingSegment,
		job.StageProcessingSegment,
		job.StageUploadingResults,
		job.StageCompleted,
	}, stages)
}

func TestProcess_AlreadyClaimed(t *testing.T) {
	local := &fakeProcessor{}
	f := newFixture(t, fixedProber{md: media.Metadata{Duration: 60}}, local, nil)
	ctx := context.Background()

	j := f.seedJob(t, "job_claimed", job.Params{SegmentPolicy: fixedPolicy(30)})
	require.NoError(t, j.Start())
	require.NoError(t, f.jobs.Update(ctx, j))

	f.worker.Process(ctx, "job_claimed")

	assert.Empty(t, local.requests())
}

func TestProcess_UnknownJob(t *testing.T) {
	local := &fakeProcessor{}
	f := newFixture(t, fixedProber{}, local, nil)

	f.worker.Process(context.Background(), "job_missing")

	assert.Empty(t, local.requests())
}

func TestProcess_VideoTooShort(t *testing.T) {
	local := &fakeProcessor{}
	f := newFixture(t, fixedProber{md: media.Metadata{Duration: 5, Width: 1280, Height: 720}}, local, nil)
	ctx := context.Background()

	f.seedJob(t, "job_short", job.Params{SegmentPolicy: fixedPolicy(30)})

	f.worker.Process(ctx, "job_short")

	stored, err := f.jobs.FindByID(ctx, "job_short")
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, stored.Status)
	assert.Equal(t, job.StageFailed, stored.Stage)
	assert.Contains(t, stored.Error, "30s segments")
	assert.Empty(t, local.requests())
}

func TestProcess_InvalidVideoFailsWithoutRetry(t *testing.T) {
	local := &fakeProcessor{}
	f := newFixture(t, fixedProber{err: fmt.Errorf("probe: %w", media.ErrInvalidVideo)}, local, nil)
	ctx := context.Background()

	f.seedJob(t, "job_bad", job.Params{SegmentPolicy: fixedPolicy(30)})

	sub, err := f.bus.Subscribe(ctx, "job_bad")
	require.NoError(t, err)
	defer sub.Close()

	f.worker.Process(ctx, "job_bad")

	stored, err := f.jobs.FindByID(ctx, "job_bad")
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, stored.Status)
	assert.Empty(t, local.requests())

	// The failed event carries the error and resets progress.
	for {
		select {
		case event := <-sub.Events():
			if !event.Stage.Terminal() {
				continue
			}
			assert.Equal(t, job.StageFailed, event.Stage)
			assert.Equal(t, 0, event.Progress)
			assert.NotEmpty(t, event.ErrorMessage)
			return
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for failed event")
		}
	}
}

func TestProcess_TransientRenderRetries(t *testing.T) {
	local := &fakeProcessor{failures: 2, err: errors.New("encoder crashed")}
	f := newFixture(t, fixedProber{md: media.Metadata{Duration: 20, Width: 1280, Height: 720}}, local, nil)
	ctx := context.Background()

	f.seedJob(t, "job_retry", job.Params{SegmentPolicy: fixedPolicy(20)})

	f.worker.Process(ctx, "job_retry")

	stored, err := f.jobs.FindByID(ctx, "job_retry")
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, stored.Status)
	// Two failed attempts plus the success.
	assert.Len(t, local.requests(), 3)
}

func TestProcess_TransientRetriesExhausted(t *testing.T) {
	local := &fakeProcessor{failures: 3, err: errors.New("encoder crashed")}
	f := newFixture(t, fixedProber{md: media.Metadata{Duration: 20, Width: 1280, Height: 720}}, local, nil)
	ctx := context.Background()

	f.seedJob(t, "job_dead", job.Params{SegmentPolicy: fixedPolicy(20)})

	f.worker.Process(ctx, "job_dead")

	stored, err := f.jobs.FindByID(ctx, "job_dead")
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, stored.Status)
	assert.Contains(t, stored.Error, "encoder crashed")
	assert.Len(t, local.requests(), 3)
}

func TestProcess_RemoteRender(t *testing.T) {
	local := &fakeProcessor{}
	remote := &fakeProcessor{}
	f := newFixture(t, fixedProber{md: media.Metadata{Duration: 30, Width: 1280, Height: 720}}, local, remote)
	ctx := context.Background()

	f.seedJob(t, "job_remote", job.Params{
		SegmentPolicy: fixedPolicy(30),
		RemoteRender:  true,
	})

	f.worker.Process(ctx, "job_remote")

	stored, err := f.jobs.FindByID(ctx, "job_remote")
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, stored.Status)
	assert.Empty(t, local.requests())
	require.Len(t, remote.requests(), 1)
	assert.Equal(t, "uploads/job_remote/20260825_120000_clip.mp4", remote.requests()[0].SourceKey)
}

func TestProcess_RemoteFallsBackWithoutFarm(t *testing.T) {
	local := &fakeProcessor{}
	f := newFixture(t, fixedProber{md: media.Metadata{Duration: 30, Width: 1280, Height: 720}}, local, nil)
	ctx := context.Background()

	f.seedJob(t, "job_fallback", job.Params{
		SegmentPolicy: fixedPolicy(30),
		RemoteRender:  true,
	})

	f.worker.Process(ctx, "job_fallback")

	stored, err := f.jobs.FindByID(ctx, "job_fallback")
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, stored.Status)
	assert.Len(t, local.requests(), 1)
}

func TestProcess_RandomCutIsDeterministicPerJob(t *testing.T) {
	runOnce := func(t *testing.T) []media.RenderRequest {
		local := &fakeProcessor{}
		f := newFixture(t, fixedProber{md: media.Metadata{Duration: 120, Width: 1280, Height: 720}}, local, nil)
		f.seedJob(t, "job_random", job.Params{
			SegmentPolicy: planner.Policy{Type: planner.PolicyRandom, MinDuration: 10, MaxDuration: 30},
		})
		f.worker.Process(context.Background(), "job_random")
		return local.requests()
	}

	first := runOnce(t)
	second := runOnce(t)
	require.NotEmpty(t, first)
	require.Len(t, second, len(first))
	for i := range first {
		assert.InDelta(t, first[i].Start, second[i].Start, 1e-9)
		assert.InDelta(t, first[i].End, second[i].End, 1e-9)
	}
}

func TestProcess_ScratchCleanedUp(t *testing.T) {
	local := &fakeProcessor{}
	f := newFixture(t, fixedProber{md: media.Metadata{Duration: 30, Width: 1280, Height: 720}}, local, nil)

	f.seedJob(t, "job_scratch", job.Params{SegmentPolicy: fixedPolicy(30)})
	f.worker.Process(context.Background(), "job_scratch")

	entries, err := os.ReadDir(f.worker.cfg.ScratchRoot)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_DequeuesAndProcesses(t *testing.T) {
	local := &fakeProcessor{}
	f := newFixture(t, fixedProber{md: media.Metadata{Duration: 30, Width: 1280, Height: 720}}, local, nil)

	f.seedJob(t, "job_run", job.Params{SegmentPolicy: fixedPolicy(30)})
	require.NoError(t, f.queue.Enqueue(context.Background(), "job_run"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.worker.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		stored, err := f.jobs.FindByID(context.Background(), "job_run")
		return err == nil && stored.Status == job.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not drain after cancel")
	}
}
