package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Compile-time check that FFprobe implements Prober.
var _ Prober = (*FFprobe)(nil)

// FFprobe reads container metadata using the ffprobe CLI. The input may
// be a local path or any URL ffprobe's protocols support, which lets the
// coordinator probe a presigned object-store URL without downloading the
// video.
type FFprobe struct {
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
}

// NewFFprobe creates a new FFprobe.
// If ffprobePath is empty, it defaults to "ffprobe" (found via PATH).
func NewFFprobe(ffprobePath string) *FFprobe {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFprobe{ffprobePath: ffprobePath}
}

// probeOutput mirrors the ffprobe JSON fields the prober reads.
type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// Probe returns the duration and frame dimensions of the input.
// A missing local file maps to ErrSourceMissing; unparseable metadata
// and zero duration map to ErrInvalidVideo.
func (p *FFprobe) Probe(ctx context.Context, input string) (Metadata, error) {
	if !strings.Contains(input, "://") {
		if _, err := os.Stat(input); err != nil {
			return Metadata{}, fmt.Errorf("%w: %s", ErrSourceMissing, input)
		}
	}

	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		input,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Metadata{}, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return Metadata{}, fmt.Errorf("%w: %v, stderr: %s", ErrProbeFailed, err, stderr.String())
	}

	return ParseProbeOutput(stdout.Bytes())
}

// ParseProbeOutput decodes ffprobe JSON into Metadata, rejecting
// containers without a positive duration.
func ParseProbeOutput(data []byte) (Metadata, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Metadata{}, fmt.Errorf("%w: decode metadata: %v", ErrInvalidVideo, err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(out.Format.Duration), 64)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: no parseable duration", ErrInvalidVideo)
	}
	if duration <= 0 {
		return Metadata{}, fmt.Errorf("%w: zero duration", ErrInvalidVideo)
	}

	md := Metadata{Duration: duration}
	for _, s := range out.Streams {
		if s.CodecType == "video" {
			md.Width = s.Width
			md.Height = s.Height
			break
		}
	}
	return md, nil
}
