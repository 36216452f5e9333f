// Package overlay resolves per-segment overlay text and computes the
// drawable layout (font size, wrapped lines, safe-zone geometry) consumed by
// the media processor.
package overlay

import (
	"errors"
	"fmt"
)

// Strategy discriminates the text policy variants.
type Strategy string

const (
	// StrategyOneForAll burns the same text into every segment.
	StrategyOneForAll Strategy = "one_for_all"
	// StrategyBaseVary asks the language model for one variation of a base
	// text per segment.
	StrategyBaseVary Strategy = "base_vary"
	// StrategyUniqueForAll takes one caller-supplied text per segment.
	StrategyUniqueForAll Strategy = "unique_for_all"
)

// FallbackText is burned in whenever no usable overlay text is available.
const FallbackText = "AI Generated Video"

// ErrBadPolicy is returned for malformed text policies.
var ErrBadPolicy = errors.New("overlay: invalid text policy")

// Policy is the tagged text policy variant. Strategy selects which of the
// remaining fields are meaningful. The JSON form matches the wire format of
// the upload endpoints.
type Policy struct {
	Strategy    Strategy `json:"strategy"`
	BaseText    string   `json:"base_text,omitempty"`
	Context     string   `json:"context,omitempty"`
	UniqueTexts []string `json:"unique_texts,omitempty"`
}

// Default returns the policy applied when a request does not carry one:
// every segment gets the fallback literal.
func Default() Policy {
	return Policy{Strategy: StrategyOneForAll}
}

// Validate checks that the policy names a known strategy.
func (p Policy) Validate() error {
	switch p.Strategy {
	case StrategyOneForAll, StrategyBaseVary, StrategyUniqueForAll:
		return nil
	default:
		return fmt.Errorf("%w: unknown strategy %q", ErrBadPolicy, p.Strategy)
	}
}
