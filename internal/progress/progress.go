// Package progress distributes per-job progress events from the worker
// to any number of live subscribers. Topics are per-job; delivery is in
// publication order; no history is kept, so a subscriber joining mid-run
// sees only events published after subscription.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clipforge/clipforge-api/internal/job"
)

// Event is one progress update for a job. It is JSON-serialized as the
// bus message and as the SSE data payload.
type Event struct {
	JobID          string    `json:"job_id"`
	Stage          job.Stage `json:"stage"`
	Message        string    `json:"message"`
	CurrentSegment int       `json:"current_segment,omitempty"`
	TotalSegments  int       `json:"total_segments,omitempty"`
	Progress       int       `json:"progress"`
	Timestamp      time.Time `json:"timestamp"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	OutputKeys     []string  `json:"output_keys,omitempty"`
}

// NewEvent builds an event for a stage at its canonical progress anchor.
func NewEvent(jobID string, stage job.Stage, message string) Event {
	return Event{
		JobID:     jobID,
		Stage:     stage,
		Message:   message,
		Progress:  stage.Anchor(),
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
	}
}

// Marshal encodes the event as its wire form.
func (e Event) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("progress: encode event: %w", err)
	}
	return data, nil
}

// UnmarshalEvent decodes an event from its wire form.
func UnmarshalEvent(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("progress: decode event: %w", err)
	}
	return e, nil
}

// Topic returns the bus topic name for a job.
func Topic(jobID string) string {
	return "job_progress_" + jobID
}

// Subscription is one live subscriber attachment to a job topic.
type Subscription interface {
	// Events returns the channel events are delivered on. The channel is
	// closed when the subscription is closed.
	Events() <-chan Event

	// Close releases the subscription. Safe to call more than once.
	Close() error
}

// Bus is the progress fan-out port. One publisher per job, any number
// of subscribers per topic.
type Bus interface {
	// Publish sends an event to the topic for its job.
	Publish(ctx context.Context, event Event) error

	// Subscribe attaches to the topic for jobID. Events published after
	// this call are delivered in publication order.
	Subscribe(ctx context.Context, jobID string) (Subscription, error)
}
