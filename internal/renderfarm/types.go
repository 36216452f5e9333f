package renderfarm

// Status represents the state of a remote render task.
type Status string

const (
	// StatusQueued means the task is waiting for a render slot.
	StatusQueued Status = "QUEUED"
	// StatusRunning means the task is rendering.
	StatusRunning Status = "RUNNING"
	// StatusCompleted means the task finished and output is available.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed means the task failed.
	StatusFailed Status = "FAILED"
	// StatusCancelled means the task was cancelled.
	StatusCancelled Status = "CANCELLED"
)

// Terminal returns true if the status is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// SubmitOptions carries the render parameters for one segment task.
type SubmitOptions struct {
	// SourceKey is the object-store key of the source video. The render
	// service reads it with its own credentials.
	SourceKey string
	// Start and End delimit the segment window in seconds.
	Start float64
	End   float64
	// OverlayLines are the pre-wrapped text lines to burn in.
	OverlayLines []string
	// FontSize, LineHeight, MarginX and MarginY position the overlay.
	FontSize   int
	LineHeight int
	MarginX    int
	MarginY    int
}

// PollResult is the outcome of polling a task.
type PollResult struct {
	// Status is the current task status.
	Status Status
	// OutputURL is a download URL for the rendered segment, set when
	// Status is COMPLETED.
	OutputURL string
	// Error is the failure message, set when Status is FAILED.
	Error string
}

// submitRequest is the JSON body for task submission.
type submitRequest struct {
	Input submitInput `json:"input"`
}

type submitInput struct {
	SourceKey    string   `json:"source_key"`
	StartSeconds float64  `json:"start_seconds"`
	EndSeconds   float64  `json:"end_seconds"`
	OverlayLines []string `json:"overlay_lines"`
	FontSize     int      `json:"font_size"`
	LineHeight   int      `json:"line_height"`
	MarginX      int      `json:"margin_x"`
	MarginY      int      `json:"margin_y"`
}

// submitResponse is the JSON response from task submission.
type submitResponse struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

// statusResponse is the JSON response from polling a task.
type statusResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Output struct {
		URL string `json:"url"`
	} `json:"output"`
	Error string `json:"error,omitempty"`
}
