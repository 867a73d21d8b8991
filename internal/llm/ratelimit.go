package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedEmbedder throttles calls to an underlying embedder so bulk
// log ingestion cannot saturate the embedding backend. Waiting respects
// the caller's context, so a deadline hit while queued surfaces as an
// error and the caller degrades as usual.
type RateLimitedEmbedder struct {
	inner   Embedder
	limiter *rate.Limiter
}

// NewRateLimitedEmbedder wraps inner with a sustained reqPerSec rate and
// the given burst size.
func NewRateLimitedEmbedder(inner Embedder, reqPerSec float64, burst int) *RateLimitedEmbedder {
	if reqPerSec <= 0 {
		reqPerSec = 10
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedEmbedder{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(reqPerSec), burst),
	}
}

// Embed waits for a rate token, then delegates to the wrapped embedder.
func (e *RateLimitedEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedding rate limit wait: %w", err)
	}
	return e.inner.Embed(ctx, text)
}

// Model returns the wrapped embedder's model name.
func (e *RateLimitedEmbedder) Model() string { return e.inner.Model() }

var _ Embedder = (*RateLimitedEmbedder)(nil)
