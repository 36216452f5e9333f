package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/clipforge/clipforge-api/internal/job"
	"github.com/clipforge/clipforge-api/internal/progress"
)

// heartbeatInterval is how often an SSE comment is written to keep
// intermediaries from reaping an idle stream.
const heartbeatInterval = 15 * time.Second

// StreamProgress handles GET /job-progress/{job_id}/stream requests. It
// relays bus events for one job as server-sent events until the client
// disconnects or the job reaches a terminal stage. No history is
// replayed; a client reconnecting mid-run reconciles from the status
// endpoint first.
func (h *Handlers) StreamProgress(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	logger := h.logger.With(slog.String("job_id", jobID))

	found, err := h.jobs.FindByID(r.Context(), jobID)
	if err != nil {
		h.writeDomainError(w, err, "stream progress")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported", "STREAMING_UNSUPPORTED")
		return
	}

	sub, err := h.bus.Subscribe(r.Context(), jobID)
	if err != nil {
		h.writeDomainError(w, err, "stream progress")
		return
	}
	defer func() { _ = sub.Close() }()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	writeSSE(w, "connected", fmt.Sprintf(`{"job_id":%q}`, jobID))
	flusher.Flush()

	logger.Info("progress stream opened")

	// A job that finished before the stream opened will never publish
	// again; synthesize its terminal event from the record and close.
	if found.IsTerminal() {
		h.relayRecord(w, found)
		flusher.Flush()
		logger.Info("progress stream closed", slog.String("reason", "job already terminal"))
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.Info("progress stream closed", slog.String("reason", "client disconnected"))
			return

		case <-heartbeat.C:
			fmt.Fprint(w, ":heartbeat\n\n")
			flusher.Flush()

		case event, open := <-sub.Events():
			if !open {
				writeSSE(w, "error", `{"error":"progress stream interrupted"}`)
				flusher.Flush()
				logger.Warn("progress stream closed", slog.String("reason", "subscription dropped"))
				return
			}

			data, err := event.Marshal()
			if err != nil {
				logger.Error("progress event marshal failed", slog.String("error", err.Error()))
				continue
			}

			writeSSE(w, "progress", string(data))
			flusher.Flush()

			if event.Stage.Terminal() {
				logger.Info("progress stream closed",
					slog.String("reason", "job reached terminal stage"),
					slog.String("stage", string(event.Stage)),
				)
				return
			}
		}
	}
}

// relayRecord emits one progress event synthesized from the stored job
// record.
func (h *Handlers) relayRecord(w http.ResponseWriter, j *job.Job) {
	event := progress.NewEvent(j.ID, j.Stage, "job already finished")
	event.Progress = j.Progress
	event.ErrorMessage = j.Error
	event.OutputKeys = j.Outputs()

	data, err := event.Marshal()
	if err != nil {
		h.logger.Error("progress event marshal failed", slog.String("error", err.Error()))
		return
	}
	writeSSE(w, "progress", string(data))
}

// writeSSE writes one server-sent event frame.
func writeSSE(w http.ResponseWriter, eventName, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventName, data)
}
