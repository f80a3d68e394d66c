package llm

import (
	"context"

	"github.com/ppiankov/factrag/internal/worker"
)

// RateLimited throttles a Generator through a shared per-provider limiter
type RateLimited struct {
	Generator
	limiter *worker.Limiter
}

// NewRateLimited wraps g. A nil limiter disables throttling.
func NewRateLimited(g Generator, limiter *worker.Limiter) *RateLimited {
	return &RateLimited{Generator: g, limiter: limiter}
}

// Generate waits for the provider's bucket, then delegates
func (r *RateLimited) Generate(ctx context.Context, prompt string) (string, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx, r.Name()); err != nil {
			return "", generationError(r.Name(), err)
		}
	}
	return r.Generator.Generate(ctx, prompt)
}
