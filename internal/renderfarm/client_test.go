package renderfarm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*HTTPClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL,
		WithAPIKey("test-key"),
		WithMaxRetries(1),
		WithBaseBackoff(time.Millisecond),
	)
	require.NoError(t, err)
	return client, srv
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient("", WithAPIKey("k"))
	assert.ErrorIs(t, err, ErrEndpointRequired)

	t.Setenv("RENDERFARM_API_KEY", "")
	_, err = NewClient("https://render.example.com")
	assert.ErrorIs(t, err, ErrAPIKeyRequired)

	t.Setenv("RENDERFARM_API_KEY", "env-key")
	c, err := NewClient("https://render.example.com")
	require.NoError(t, err)
	assert.Equal(t, "env-key", c.apiKey)
}

func TestSubmit(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/render", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req submitRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "uploads/job_1/src.mp4", req.Input.SourceKey)
		assert.InDelta(t, 30.0, req.Input.StartSeconds, 1e-9)
		assert.InDelta(t, 60.0, req.Input.EndSeconds, 1e-9)
		assert.Equal(t, []string{"Buy now"}, req.Input.OverlayLines)

		_ = json.NewEncoder(w).Encode(submitResponse{ID: "task-123"})
	}))

	taskID, err := client.Submit(context.Background(), SubmitOptions{
		SourceKey:    "uploads/job_1/src.mp4",
		Start:        30,
		End:          60,
		OverlayLines: []string{"Buy now"},
		FontSize:     48,
	})
	require.NoError(t, err)
	assert.Equal(t, "task-123", taskID)
}

func TestSubmit_NoTaskID(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(submitResponse{})
	}))

	_, err := client.Submit(context.Background(), SubmitOptions{SourceKey: "k"})
	assert.ErrorIs(t, err, ErrNoTaskIDReturned)
}

func TestSubmit_ErrorMessage(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(submitResponse{Error: "bad input"})
	}))

	_, err := client.Submit(context.Background(), SubmitOptions{SourceKey: "k"})
	assert.ErrorIs(t, err, ErrSubmitFailed)
	assert.Contains(t, err.Error(), "bad input")
}

func TestSubmit_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(submitResponse{ID: "task-retry"})
	}))

	taskID, err := client.Submit(context.Background(), SubmitOptions{SourceKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "task-retry", taskID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSubmit_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))

	_, err := client.Submit(context.Background(), SubmitOptions{SourceKey: "k"})
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPoll(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/render/task-123", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "task-123",
			"status": "COMPLETED",
			"output": map[string]string{"url": "https://cdn.example.com/out.mp4"},
		})
	}))

	result, err := client.Poll(context.Background(), "task-123")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, "https://cdn.example.com/out.mp4", result.OutputURL)
}

func TestPoll_Failed(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "task-123",
			"status": "FAILED",
			"error":  "render crashed",
		})
	}))

	result, err := client.Poll(context.Background(), "task-123")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, "render crashed", result.Error)
}

func TestPoll_EmptyTaskID(t *testing.T) {
	client, _ := newTestClient(t, http.NotFoundHandler())

	_, err := client.Poll(context.Background(), "")
	assert.ErrorIs(t, err, ErrTaskIDRequired)
}

func TestDownloadOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("rendered segment bytes"))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, WithAPIKey("test-key"))
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "segment_001.mp4")
	require.NoError(t, client.DownloadOutput(context.Background(), srv.URL+"/out.mp4", dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "rendered segment bytes", string(data))
}

func TestDownloadOutput_EmptyURL(t *testing.T) {
	client, err := NewClient("https://render.example.com", WithAPIKey("k"))
	require.NoError(t, err)

	err = client.DownloadOutput(context.Background(), "", "/tmp/out.mp4")
	assert.ErrorIs(t, err, ErrNoOutputURL)
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusQueued.Terminal())
	assert.False(t, StatusRunning.Terminal())
}
