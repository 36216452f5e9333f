package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge-api/internal/job"
	"github.com/clipforge/clipforge-api/internal/progress"
)

func TestStreamProgress_UnknownJob(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/job-progress/job_missing/stream", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "JOB_NOT_FOUND", resp.Code)
}

func TestStreamProgress_TerminalJobReplaysRecord(t *testing.T) {
	f := newAPIFixture(t, nil)
	ctx := context.Background()

	j := job.New("job_done", job.Params{})
	require.NoError(t, j.Start())
	j.AppendOutput("processed/job_done/segment_001.mp4")
	require.NoError(t, j.Complete())
	require.NoError(t, f.jobs.Create(ctx, j))

	rec := f.do(t, http.MethodGet, "/job-progress/job_done/stream", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: connected\n")
	assert.Contains(t, body, `"job_id":"job_done"`)
	assert.Contains(t, body, "event: progress\n")
	assert.Contains(t, body, `"stage":"completed"`)
	assert.Contains(t, body, "processed/job_done/segment_001.mp4")
}

func TestStreamProgress_RelaysUntilTerminal(t *testing.T) {
	f := newAPIFixture(t, nil)
	ctx := context.Background()

	j := job.New("job_live", job.Params{})
	require.NoError(t, f.jobs.Create(ctx, j))

	req := httptest.NewRequest(http.MethodGet, "/job-progress/job_live/stream", nil)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.router.ServeHTTP(rec, req)
	}()

	// The handler subscribes after it starts; publish the terminal event
	// until the stream closes so it cannot be missed.
	event := progress.NewEvent("job_live", job.StageCompleted, "all segments rendered")
	event.OutputKeys = []string{"processed/job_live/segment_001.mp4"}
	for {
		select {
		case <-done:
			goto closed
		case <-time.After(5 * time.Millisecond):
			require.NoError(t, f.bus.Publish(ctx, event))
		}
	}
closed:

	body := rec.Body.String()
	assert.Contains(t, body, "event: connected\n")
	assert.Contains(t, body, "event: progress\n")
	assert.Contains(t, body, `"stage":"completed"`)
}

func TestStreamProgress_ClientDisconnect(t *testing.T) {
	f := newAPIFixture(t, nil)
	ctx := context.Background()

	j := job.New("job_gone", job.Params{})
	require.NoError(t, f.jobs.Create(ctx, j))

	reqCtx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/job-progress/job_gone/stream", nil).WithContext(reqCtx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.router.ServeHTTP(rec, req)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return after disconnect")
	}

	// Only the connected marker was sent.
	body := rec.Body.String()
	assert.Contains(t, body, "event: connected\n")
	assert.False(t, strings.Contains(body, "event: progress\n"))
}
