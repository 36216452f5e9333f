package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/clipforge/clipforge-api/internal/overlay"
)

// Compile-time check that FFmpegProcessor implements Processor.
var _ Processor = (*FFmpegProcessor)(nil)

// FFmpegProcessor implements Processor using the ffmpeg CLI. It seeks to
// the segment start, cuts to the segment length, burns one drawtext
// directive per overlay line and re-encodes with libx264/aac.
type FFmpegProcessor struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
}

// NewFFmpegProcessor creates a new FFmpegProcessor.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewFFmpegProcessor(ffmpegPath string) *FFmpegProcessor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegProcessor{ffmpegPath: ffmpegPath}
}

// RenderSegment cuts [req.Start, req.End) out of req.SourcePath with the
// overlay burned in and writes the result to req.OutputPath.
func (p *FFmpegProcessor) RenderSegment(ctx context.Context, req RenderRequest) error {
	if req.Duration() <= 0 {
		return fmt.Errorf("%w: segment %d has non-positive duration", ErrInvalidVideo, req.Index)
	}
	if _, err := os.Stat(req.SourcePath); err != nil {
		return fmt.Errorf("%w: %s", ErrSourceMissing, req.SourcePath)
	}

	args := []string{
		"-y",
		"-ss", fmt.Sprintf("%.3f", req.Start),
		"-i", req.SourcePath,
		"-t", fmt.Sprintf("%.3f", req.Duration()),
	}
	if filter := DrawTextFilter(req.Overlay); filter != "" {
		args = append(args, "-vf", filter)
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		req.OutputPath,
	)

	if err := p.runFFmpeg(ctx, args); err != nil {
		return err
	}

	info, err := os.Stat(req.OutputPath)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyOutput, req.OutputPath)
	}
	return nil
}

// DrawTextFilter builds the ffmpeg -vf expression for a computed overlay:
// one drawtext directive per line, stacked vertically in the top-left
// safe zone over a semi-transparent box.
func DrawTextFilter(l overlay.Layout) string {
	directives := make([]string, 0, len(l.Lines))
	for i, line := range l.Lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		directives = append(directives, fmt.Sprintf(
			"drawtext=text='%s':fontsize=%d:fontcolor=white:x=%d:y=%d:box=1:boxcolor=black@0.5:boxborderw=8",
			EscapeDrawText(line), l.FontSize, l.MarginX, l.MarginY+i*l.LineHeight,
		))
	}
	return strings.Join(directives, ",")
}

// EscapeDrawText escapes the characters ffmpeg's drawtext filter treats
// specially inside a single-quoted text value: backslash, single quote,
// colon and percent. Backslash goes first so later escapes are not
// doubled.
func EscapeDrawText(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
		`%`, `\%`,
	)
	return r.Replace(s)
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (p *FFmpegProcessor) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		// Check if context was cancelled
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}
