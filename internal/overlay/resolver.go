package overlay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Generator produces n overlay variations of a base text. Implementations
// must return exactly n strings with the base text as the first element,
// byte for byte. promptContext, when non-empty, steers the variation style
// and is passed through verbatim.
type Generator interface {
	GenerateVariations(ctx context.Context, baseText string, n int, promptContext string) ([]string, error)
}

// Resolver maps a text policy and a segment count to exactly one overlay
// string per segment. Language-model failures never propagate: after the
// attempt budget is spent the base text is replicated instead.
type Resolver struct {
	gen         Generator
	maxAttempts int
	logger      *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithMaxAttempts overrides how many times the generator is asked before
// the resolver falls back to replicating the base text. Defaults to 3
// (one call plus two retries).
func WithMaxAttempts(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// NewResolver creates a Resolver. gen may be nil, in which case base_vary
// degrades to one_for_all semantics immediately.
func NewResolver(gen Generator, logger *slog.Logger, opts ...ResolverOption) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		gen:         gen,
		maxAttempts: 3,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns exactly n non-empty overlay strings for the policy, in
// segment order. It fails only on a malformed policy or a non-positive n.
func (r *Resolver) Resolve(ctx context.Context, p Policy, n int) ([]string, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: segment count must be positive, got %d", ErrBadPolicy, n)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	switch p.Strategy {
	case StrategyOneForAll:
		return replicate(orFallback(p.BaseText), n), nil
	case StrategyUniqueForAll:
		return padTexts(p.UniqueTexts, n), nil
	case StrategyBaseVary:
		return r.resolveVariations(ctx, p, n), nil
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrBadPolicy, p.Strategy)
	}
}

// resolveVariations asks the generator for n variations and verifies the
// contract on each attempt. Any failure after the budget replicates the base
// text so a flaky language model can never fail a job.
func (r *Resolver) resolveVariations(ctx context.Context, p Policy, n int) []string {
	base := orFallback(p.BaseText)
	if r.gen == nil {
		r.logger.Warn("no variation generator configured, replicating base text")
		return replicate(base, n)
	}

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		texts, err := r.gen.GenerateVariations(ctx, base, n, p.Context)
		if err == nil {
			err = checkVariations(texts, base, n)
			if err == nil {
				return texts
			}
		}

		r.logger.Warn("variation generation failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", r.maxAttempts),
			slog.String("error", err.Error()),
		)
		if ctx.Err() != nil {
			break
		}
	}

	r.logger.Warn("falling back to replicated base text", slog.Int("segments", n))
	return replicate(base, n)
}

// checkVariations enforces the generator contract: exactly n strings, the
// base echoed first, nothing blank.
func checkVariations(texts []string, base string, n int) error {
	if len(texts) != n {
		return fmt.Errorf("got %d variations, want %d", len(texts), n)
	}
	if texts[0] != base {
		return fmt.Errorf("first variation %q does not echo the base text", texts[0])
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("variation %d is empty", i)
		}
	}
	return nil
}

// replicate returns n copies of text.
func replicate(text string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = text
	}
	return out
}

// padTexts fits the caller-supplied list to exactly n entries: extra entries
// are dropped, missing entries repeat the last one, and blank entries become
// the fallback literal.
func padTexts(texts []string, n int) []string {
	out := make([]string, 0, n)
	for _, t := range texts {
		if len(out) == n {
			break
		}
		out = append(out, orFallback(t))
	}

	last := FallbackText
	if len(out) > 0 {
		last = out[len(out)-1]
	}
	for len(out) < n {
		out = append(out, last)
	}
	return out
}

// orFallback substitutes the fallback literal for blank text.
func orFallback(s string) string {
	if strings.TrimSpace(s) == "" {
		return FallbackText
	}
	return s
}
