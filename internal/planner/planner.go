// Package planner computes the segment time windows for a video under a
// cutting policy. Windowing is pure: the source duration is probed by the
// caller and randomness comes in through an injected Picker, so plans are
// reproducible per job.
package planner

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"time"
)

// PolicyType discriminates the cutting policy variants.
type PolicyType string

const (
	// PolicyFixed cuts equal-length segments of DurationSeconds each.
	PolicyFixed PolicyType = "fixed"
	// PolicyRandom cuts segments with random lengths in [MinDuration, MaxDuration].
	PolicyRandom PolicyType = "random"
)

// Static errors for planning operations.
var (
	// ErrBadPolicy is returned for malformed cutting policies.
	ErrBadPolicy = errors.New("planner: invalid cutting policy")
	// ErrVideoTooShort is returned when the policy requires segments longer
	// than the whole video.
	ErrVideoTooShort = errors.New("planner: video shorter than requested segment length")
)

// Policy is the tagged cutting policy variant. Type selects which of the
// remaining fields are meaningful. The JSON form matches the wire format of
// the upload endpoints.
type Policy struct {
	Type            PolicyType `json:"type"`
	DurationSeconds int        `json:"duration_seconds,omitempty"`
	MinDuration     int        `json:"min_duration,omitempty"`
	MaxDuration     int        `json:"max_duration,omitempty"`
}

// Default returns the policy applied when a request does not carry one.
func Default(segmentSeconds int) Policy {
	return Policy{Type: PolicyFixed, DurationSeconds: segmentSeconds}
}

// Validate checks that the policy is well formed.
func (p Policy) Validate() error {
	switch p.Type {
	case PolicyFixed:
		if p.DurationSeconds <= 0 {
			return fmt.Errorf("%w: fixed duration must be positive, got %d", ErrBadPolicy, p.DurationSeconds)
		}
	case PolicyRandom:
		if p.MinDuration <= 0 || p.MaxDuration <= 0 {
			return fmt.Errorf("%w: random bounds must be positive, got [%d, %d]", ErrBadPolicy, p.MinDuration, p.MaxDuration)
		}
		if p.MinDuration > p.MaxDuration {
			return fmt.Errorf("%w: random min %d exceeds max %d", ErrBadPolicy, p.MinDuration, p.MaxDuration)
		}
	default:
		return fmt.Errorf("%w: unknown policy type %q", ErrBadPolicy, p.Type)
	}
	return nil
}

// Window is one segment time range, in seconds from the start of the video.
type Window struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns the window length in seconds.
func (w Window) Duration() float64 {
	return w.End - w.Start
}

// Durations returns the length of each window in seconds.
func Durations(windows []Window) []float64 {
	out := make([]float64, len(windows))
	for i, w := range windows {
		out[i] = w.Duration()
	}
	return out
}

// Picker returns a uniformly distributed integer in [lo, hi], both inclusive.
// Injecting the draw keeps random windowing deterministic under test.
type Picker func(lo, hi int) int

// NewPicker returns a Picker backed by a PRNG seeded with seed.
func NewPicker(seed int64) Picker {
	// #nosec G404 - windows need reproducibility, not secrecy
	r := rand.New(rand.NewSource(seed))
	return func(lo, hi int) int {
		if hi <= lo {
			return lo
		}
		return lo + r.Intn(hi-lo+1)
	}
}

// Seed derives a deterministic PRNG seed from a job identifier, so
// replanning the same job yields identical windows.
func Seed(jobID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(jobID))
	return int64(h.Sum64())
}

// Windows computes the segment windows covering [0, total] under the policy.
// The result is sorted ascending, contiguous and non-overlapping, starting at
// 0 and ending exactly at total. pick is only consulted for random policies;
// a nil pick falls back to a time-seeded draw.
func Windows(total float64, p Policy, pick Picker) ([]Window, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: total duration %.2fs", ErrVideoTooShort, total)
	}

	switch p.Type {
	case PolicyFixed:
		return fixedWindows(total, p.DurationSeconds)
	case PolicyRandom:
		if pick == nil {
			pick = NewPicker(time.Now().UnixNano())
		}
		return randomWindows(total, p.MinDuration, p.MaxDuration, pick)
	default:
		return nil, fmt.Errorf("%w: unknown policy type %q", ErrBadPolicy, p.Type)
	}
}

// fixedWindows slices [0, total] into ceil(total/d) windows of length d, with
// a shorter final window when total is not a multiple of d.
func fixedWindows(total float64, seconds int) ([]Window, error) {
	d := float64(seconds)
	if d > total {
		return nil, fmt.Errorf("%w: %ds segments from a %.2fs video", ErrVideoTooShort, seconds, total)
	}

	n := int(math.Ceil(total / d))
	windows := make([]Window, 0, n)
	for i := 0; i < n; i++ {
		start := float64(i) * d
		end := math.Min(start+d, total)
		windows = append(windows, Window{Start: start, End: end})
	}
	return windows, nil
}

// randomWindows walks forward drawing integer segment lengths in
// [minSec, maxSec], clamped to the remaining duration. A tail shorter than
// minSec is absorbed into a final short window rather than dropped.
func randomWindows(total float64, minSec, maxSec int, pick Picker) ([]Window, error) {
	if float64(minSec) > total {
		return nil, fmt.Errorf("%w: minimum segment %ds from a %.2fs video", ErrVideoTooShort, minSec, total)
	}

	var windows []Window
	t := 0.0
	for t < total {
		remaining := total - t
		if remaining < float64(minSec) {
			windows = append(windows, Window{Start: t, End: total})
			break
		}

		lo := minSec
		hi := maxSec
		if float64(hi) > remaining {
			hi = int(remaining)
		}
		if hi < lo {
			windows = append(windows, Window{Start: t, End: total})
			break
		}

		end := t + float64(pick(lo, hi))
		if end > total {
			end = total
		}
		windows = append(windows, Window{Start: t, End: end})
		t = end
	}
	return windows, nil
}
