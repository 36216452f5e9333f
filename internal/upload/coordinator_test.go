package upload

import (
	"context"
	"strings"
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

type coordinatorFixture struct {
	coord *Coordinator
	store *blob.MemoryStore
	jobs  *job.MemoryRepository
	queue *queue.MemoryQueue
	bus   *progress.MemoryBus
}

func newFixture(t *testing.T, prober media.Prober) *coordinatorFixture {
	t.Helper()
	f := &coordinatorFixture{
		store: blob.NewMemoryStore(),
		jobs:  job.NewMemoryRepository(),
		queue: queue.NewMemoryQueue(16),
		bus:   progress.NewMemoryBus(),
	}
	f.coord = NewCoordinator(
		f.store, NewMemorySessionStore(), f.jobs, f.queue, f.bus, prober,
		time.Hour, nil,
	)
	return f
}

func TestInitiate(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.coord.Initiate(context.Background(), InitiateInput{
		Filename:    "clip.mp4",
		ContentType: "video/mp4",
		Size:        10 * MiB,
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(res.JobID, "job_"))
	assert.True(t, strings.HasPrefix(res.Key, "uploads/"+res.JobID+"/"))
	assert.True(t, strings.HasSuffix(res.Key, "_clip.mp4"))
	assert.NotEmpty(t, res.PresignedURL)
}

func TestInitiateMultipart(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.coord.InitiateMultipart(context.Background(), InitiateInput{
		Filename:    "big.mp4",
		ContentType: "video/mp4",
		Size:        250 * MiB,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.UploadID)
	assert.Equal(t, int64(15*MiB), res.ChunkSize)
	assert.Equal(t, 6, res.MaxConcurrent)

	// The session is retrievable for subsequent part requests.
	url, err := f.coord.PresignPart(context.Background(), res.UploadID, res.Key, 1)
	require.NoError(t, err)
	assert.NotEmpty(t, url)
}

func TestPresignPart_Validation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.coord.InitiateMultipart(ctx, InitiateInput{Filename: "a.mp4", Size: MiB})
	require.NoError(t, err)

	_, err = f.coord.PresignPart(ctx, "unknown-upload", res.Key, 1)
	assert.ErrorIs(t, err, ErrSessionInvalid)

	_, err = f.coord.PresignPart(ctx, res.UploadID, "wrong/key", 1)
	assert.ErrorIs(t, err, ErrSessionInvalid)

	_, err = f.coord.PresignPart(ctx, res.UploadID, res.Key, 0)
	assert.ErrorIs(t, err, ErrSessionInvalid)
}

func TestFinalize(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.coord.InitiateMultipart(ctx, InitiateInput{Filename: "a.mp4", Size: MiB})
	require.NoError(t, err)

	tag1, err := f.store.PutPart(res.UploadID, 1, []byte("part one "))
	require.NoError(t, err)
	tag2, err := f.store.PutPart(res.UploadID, 2, []byte("part two"))
	require.NoError(t, err)

	loc, err := f.coord.Finalize(ctx, res.UploadID, res.Key, []blob.Part{
		{Number: 1, ETag: tag1},
		{Number: 2, ETag: tag2},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, loc)

	// The blob is durable and the session is gone.
	ok, err := f.store.Exists(ctx, res.Key)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.coord.Finalize(ctx, res.UploadID, res.Key, []blob.Part{{Number: 1, ETag: tag1}})
	assert.ErrorIs(t, err, ErrSessionInvalid)
}

func TestFinalize_NoParts(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.coord.InitiateMultipart(ctx, InitiateInput{Filename: "a.mp4", Size: MiB})
	require.NoError(t, err)

	_, err = f.coord.Finalize(ctx, res.UploadID, res.Key, nil)
	assert.ErrorIs(t, err, ErrSessionInvalid)
}

func TestAbort(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.coord.InitiateMultipart(ctx, InitiateInput{Filename: "a.mp4", Size: MiB})
	require.NoError(t, err)

	require.NoError(t, f.coord.Abort(ctx, res.UploadID, res.Key))

	// Aborting twice fails; the session no longer exists.
	assert.ErrorIs(t, f.coord.Abort(ctx, res.UploadID, res.Key), ErrSessionInvalid)

	// A fresh session after abort is disjoint.
	fresh, err := f.coord.InitiateMultipart(ctx, InitiateInput{Filename: "a.mp4", Size: MiB})
	require.NoError(t, err)
	assert.NotEqual(t, res.UploadID, fresh.UploadID)
	assert.NotEqual(t, res.JobID, fresh.JobID)
}

func TestComplete_SingleShot(t *testing.T) {
	f := newFixture(t, fixedProber{md: media.Metadata{Duration: 95, Width: 1080, Height: 1920}})
	ctx := context.Background()

	res, err := f.coord.Initiate(ctx, InitiateInput{Filename: "clip.mp4", ContentType: "video/mp4", Size: MiB})
	require.NoError(t, err)
	require.NoError(t, f.store.Upload(ctx, res.Key, strings.NewReader("video bytes")))

	// Subscribe before completing to observe the queued event.
	sub, err := f.bus.Subscribe(ctx, res.JobID)
	require.NoError(t, err)
	defer sub.Close()

	j, err := f.coord.Complete(ctx, CompleteInput{
		Key:         res.Key,
		JobID:       res.JobID,
		UserID:      "user_9",
		Title:       "My clip",
		Filename:    "clip.mp4",
		ContentType: "video/mp4",
		Size:        MiB,
		Cutting:     planner.Policy{Type: planner.PolicyFixed, DurationSeconds: 30},
		Text:        overlay.Policy{Strategy: overlay.StrategyOneForAll, BaseText: "Hello"},
	})
	require.NoError(t, err)

	assert.Equal(t, job.StatusQueued, j.Status)
	assert.InDelta(t, 95.0, j.VideoDuration, 1e-9)

	// Job record persisted.
	stored, err := f.jobs.FindByID(ctx, res.JobID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusQueued, stored.Status)
	assert.Equal(t, "user_9", stored.UserID)

	// Job enqueued for the worker.
	dequeued, err := f.queue.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, res.JobID, dequeued)

	// The queued event was published.
	event := <-sub.Events()
	assert.Equal(t, job.StageQueued, event.Stage)
	assert.Equal(t, 0, event.Progress)
}

func TestComplete_SingleShot_MissingBlob(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.coord.Complete(context.Background(), CompleteInput{
		Key:   "uploads/job_x/missing.mp4",
		JobID: "job_x",
	})
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

func TestComplete_Multipart(t *testing.T) {
	f := newFixture(t, fixedProber{err: media.ErrProbeFailed})
	ctx := context.Background()

	res, err := f.coord.InitiateMultipart(ctx, InitiateInput{Filename: "big.mp4", Size: 250 * MiB})
	require.NoError(t, err)

	tag, err := f.store.PutPart(res.UploadID, 1, []byte("all the bytes"))
	require.NoError(t, err)

	j, err := f.coord.Complete(ctx, CompleteInput{
		UploadID: res.UploadID,
		Key:      res.Key,
		JobID:    res.JobID,
		Parts:    []blob.Part{{Number: 1, ETag: tag}},
	})
	require.NoError(t, err)

	assert.Equal(t, res.JobID, j.ID)
	assert.Equal(t, job.StatusQueued, j.Status)
	// Probe failure is non-fatal; duration stays unknown.
	assert.Zero(t, j.VideoDuration)

	// Default policies applied when the request omits them.
	assert.Equal(t, planner.PolicyFixed, j.SegmentPolicy.Type)
	assert.Equal(t, overlay.StrategyOneForAll, j.TextPolicy.Strategy)
}
