package media

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProbeOutput(t *testing.T) {
	data := []byte(`{
		"format": {"duration": "95.040000"},
		"streams": [
			{"codec_type": "audio"},
			{"codec_type": "video", "width": 1080, "height": 1920}
		]
	}`)

	md, err := ParseProbeOutput(data)
	require.NoError(t, err)
	assert.InDelta(t, 95.04, md.Duration, 1e-9)
	assert.Equal(t, 1080, md.Width)
	assert.Equal(t, 1920, md.Height)
}

func TestParseProbeOutput_NoVideoStream(t *testing.T) {
	data := []byte(`{"format": {"duration": "12.5"}, "streams": [{"codec_type": "audio"}]}`)

	md, err := ParseProbeOutput(data)
	require.NoError(t, err)
	assert.InDelta(t, 12.5, md.Duration, 1e-9)
	assert.Equal(t, 0, md.Width)
	assert.Equal(t, 0, md.Height)
}

func TestParseProbeOutput_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "not json at all"},
		{"missing duration", `{"format": {}, "streams": []}`},
		{"unparseable duration", `{"format": {"duration": "N/A"}, "streams": []}`},
		{"zero duration", `{"format": {"duration": "0.000000"}, "streams": []}`},
		{"negative duration", `{"format": {"duration": "-3"}, "streams": []}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProbeOutput([]byte(tt.data))
			assert.ErrorIs(t, err, ErrInvalidVideo)
		})
	}
}

func TestFFprobe_MissingLocalFile(t *testing.T) {
	p := NewFFprobe("")

	_, err := p.Probe(context.Background(), "/nonexistent/video.mp4")
	assert.ErrorIs(t, err, ErrSourceMissing)
}

func TestNewFFprobe_DefaultPath(t *testing.T) {
	p := NewFFprobe("")
	assert.Equal(t, "ffprobe", p.ffprobePath)
}
