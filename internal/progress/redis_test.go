package progress

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge-api/internal/job"
)

func newRedisBus(t *testing.T) *RedisBus {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisBus(client, nil)
}

func receiveEvent(t *testing.T, sub Subscription) Event {
	t.Helper()
	select {
	case e := <-sub.Events():
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestRedisBus_PublishSubscribe(t *testing.T) {
	bus := newRedisBus(t)
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, "job_1")
	require.NoError(t, err)
	defer sub.Close()

	want := NewEvent("job_1", job.StageProcessingSegment, "segment 1 of 3")
	want.CurrentSegment = 1
	want.TotalSegments = 3
	want.Progress = 36
	require.NoError(t, bus.Publish(ctx, want))

	got := receiveEvent(t, sub)
	assert.Equal(t, want.JobID, got.JobID)
	assert.Equal(t, want.Stage, got.Stage)
	assert.Equal(t, 1, got.CurrentSegment)
	assert.Equal(t, 3, got.TotalSegments)
	assert.Equal(t, 36, got.Progress)
}

func TestRedisBus_Ordering(t *testing.T) {
	bus := newRedisBus(t)
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, "job_1")
	require.NoError(t, err)
	defer sub.Close()

	stages := []job.Stage{
		job.StageQueued, job.StageDownloading, job.StageProbing,
		job.StageGeneratingText, job.StageUploadingResults, job.StageCompleted,
	}
	for _, s := range stages {
		require.NoError(t, bus.Publish(ctx, NewEvent("job_1", s, "")))
	}

	for _, want := range stages {
		assert.Equal(t, want, receiveEvent(t, sub).Stage)
	}
}

func TestRedisBus_FanOut(t *testing.T) {
	bus := newRedisBus(t)
	ctx := context.Background()

	sub1, err := bus.Subscribe(ctx, "job_1")
	require.NoError(t, err)
	defer sub1.Close()

	sub2, err := bus.Subscribe(ctx, "job_1")
	require.NoError(t, err)
	defer sub2.Close()

	require.NoError(t, bus.Publish(ctx, NewEvent("job_1", job.StageCompleted, "done")))

	assert.Equal(t, job.StageCompleted, receiveEvent(t, sub1).Stage)
	assert.Equal(t, job.StageCompleted, receiveEvent(t, sub2).Stage)
}

func TestRedisBus_SubscriptionClose(t *testing.T) {
	bus := newRedisBus(t)

	sub, err := bus.Subscribe(context.Background(), "job_1")
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close()) // idempotent

	select {
	case _, open := <-sub.Events():
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed after Close")
	}
}
