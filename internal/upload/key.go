package upload

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// SourceKey builds the object-store key for an uploaded source video:
// uploads/{job_id}/{YYYYMMDD_HHMMSS}_{sanitized_filename}.
func SourceKey(jobID, filename string, now time.Time) string {
	return fmt.Sprintf("uploads/%s/%s_%s",
		jobID,
		now.UTC().Format("20060102_150405"),
		SanitizeFilename(filename),
	)
}

// SegmentKey builds the object-store key for a rendered segment:
// processed/{job_id}/segment_{NNN}.mp4 with a 1-based, 3-digit index.
func SegmentKey(jobID string, index int) string {
	return fmt.Sprintf("processed/%s/segment_%03d.mp4", jobID, index)
}

// SanitizeFilename reduces an arbitrary client filename to a safe key
// component: the base name with anything outside [A-Za-z0-9._-] replaced
// by underscores.
func SanitizeFilename(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return "upload"
	}

	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "upload"
	}
	return out
}
