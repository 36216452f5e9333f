// Package media provides video probing and segment rendering.
// Two Processor variants exist: a local ffmpeg renderer operating on
// scratch files and a remote renderer that ships blob keys to a render
// service. The worker drives either through the same interface.
package media

import (
	"context"
	"errors"

	"github.com/clipforge/clipforge-api/internal/overlay"
)

// Static errors for media operations.
var (
	// ErrSourceMissing is returned when the source video does not exist.
	ErrSourceMissing = errors.New("media: source video not found")
	// ErrInvalidVideo is returned when the probe cannot parse the source
	// or it has zero duration.
	ErrInvalidVideo = errors.New("media: source is not a readable video")
	// ErrEmptyOutput is returned when a render produced no usable file.
	ErrEmptyOutput = errors.New("media: render produced empty output")
	// ErrProbeFailed is returned when the ffprobe command fails to run.
	ErrProbeFailed = errors.New("media: probe execution failed")
)

// Metadata describes a probed video.
type Metadata struct {
	// Duration is the container duration in seconds.
	Duration float64
	// Width and Height are the frame dimensions of the first video
	// stream, 0 when the container has no video stream.
	Width  int
	Height int
}

// RenderRequest describes one segment render: cut [Start, End) out of
// the source and burn the overlay into it. The local processor reads
// SourcePath and writes OutputPath; the remote processor ships SourceKey
// and downloads the result to OutputPath.
type RenderRequest struct {
	JobID      string
	Index      int // 1-based segment number
	SourcePath string
	SourceKey  string
	OutputPath string
	Start      float64
	End        float64
	Overlay    overlay.Layout
}

// Duration returns the segment length in seconds.
func (r RenderRequest) Duration() float64 {
	return r.End - r.Start
}

// Processor renders one segment with its overlay burned in.
type Processor interface {
	RenderSegment(ctx context.Context, req RenderRequest) error
}

// Prober reads container metadata from a local path or a URL.
type Prober interface {
	Probe(ctx context.Context, input string) (Metadata, error)
}
