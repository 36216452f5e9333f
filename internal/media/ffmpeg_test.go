package media

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clipforge/clipforge-api/internal/overlay"
)

func TestEscapeDrawText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Hello World", "Hello World"},
		{"single quote", "it's fine", `it\'s fine`},
		{"colon and percent", "Sale: 50% off", `Sale\: 50\% off`},
		{"backslash", `a\b`, `a\\b`},
		{"all specials", `\':%`, `\\\'\:\%`},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EscapeDrawText(tt.input))
		})
	}
}

func TestDrawTextFilter(t *testing.T) {
	layout := overlay.Layout{
		Lines:      []string{"first line", "second line"},
		FontSize:   48,
		LineHeight: 57,
		MarginX:    54,
		MarginY:    96,
	}

	filter := DrawTextFilter(layout)

	directives := strings.Split(filter, ",")
	assert.Len(t, directives, 2)

	assert.Contains(t, directives[0], "drawtext=text='first line'")
	assert.Contains(t, directives[0], "fontsize=48")
	assert.Contains(t, directives[0], "x=54")
	assert.Contains(t, directives[0], "y=96")
	assert.Contains(t, directives[0], "boxcolor=black@0.5")

	// Second line stacks one line height below the first.
	assert.Contains(t, directives[1], "drawtext=text='second line'")
	assert.Contains(t, directives[1], "y=153")
}

func TestDrawTextFilter_EscapesText(t *testing.T) {
	layout := overlay.Layout{
		Lines:      []string{"it's 50% off: now"},
		FontSize:   32,
		LineHeight: 38,
	}

	filter := DrawTextFilter(layout)
	assert.Contains(t, filter, `text='it\'s 50\% off\: now'`)
}

func TestDrawTextFilter_SkipsBlankLines(t *testing.T) {
	layout := overlay.Layout{
		Lines:      []string{"keep", "   ", "also keep"},
		FontSize:   32,
		LineHeight: 38,
	}

	filter := DrawTextFilter(layout)
	assert.Equal(t, 2, strings.Count(filter, "drawtext="))
}

func TestDrawTextFilter_Empty(t *testing.T) {
	assert.Equal(t, "", DrawTextFilter(overlay.Layout{}))
}

func TestNewFFmpegProcessor_DefaultPath(t *testing.T) {
	p := NewFFmpegProcessor("")
	assert.Equal(t, "ffmpeg", p.ffmpegPath)

	p = NewFFmpegProcessor("/usr/local/bin/ffmpeg")
	assert.Equal(t, "/usr/local/bin/ffmpeg", p.ffmpegPath)
}

func TestRenderSegment_RejectsBadWindow(t *testing.T) {
	p := NewFFmpegProcessor("")

	err := p.RenderSegment(context.Background(), RenderRequest{Start: 30, End: 30})
	assert.ErrorIs(t, err, ErrInvalidVideo)
}

func TestRenderSegment_MissingSource(t *testing.T) {
	p := NewFFmpegProcessor("")

	err := p.RenderSegment(context.Background(), RenderRequest{
		SourcePath: "/nonexistent/video.mp4",
		OutputPath: "/tmp/out.mp4",
		Start:      0,
		End:        10,
	})
	assert.ErrorIs(t, err, ErrSourceMissing)
}

func TestRenderRequest_Duration(t *testing.T) {
	req := RenderRequest{Start: 30, End: 95.5}
	assert.InDelta(t, 65.5, req.Duration(), 1e-9)
}
