// Package llm provides the external capability boundaries of the engine:
// embedding generation and token counting. Both are injected dependencies
// and both may be unavailable; every consumer has a documented degraded
// mode for that case.
package llm

import "context"

// Embedder generates a fixed-length vector embedding for text.
// Implementations must honor ctx cancellation and deadlines; a slow or
// down backend must not stall unrelated requests.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Model() string
}

// TokenCounter counts tokens in text for budget enforcement. Like Embed,
// an implementation backed by an external tokenizer must honor ctx
// cancellation and deadlines. Consumers degrade to the local estimate on
// failure, see CountTokens.
type TokenCounter interface {
	Count(ctx context.Context, text string) (int, error)
}

// TokenCounterFunc adapts a plain function to the TokenCounter interface.
type TokenCounterFunc func(ctx context.Context, text string) (int, error)

// Count implements TokenCounter.
func (f TokenCounterFunc) Count(ctx context.Context, text string) (int, error) {
	return f(ctx, text)
}
