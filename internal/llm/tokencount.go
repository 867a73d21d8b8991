package llm

import "context"

// NewHeuristicTokenCounter returns a counter that approximates tokens as
// one per four characters, matching what common embedding tokenizers
// average on English text. Counting is local and never fails.
func NewHeuristicTokenCounter() TokenCounter {
	return TokenCounterFunc(func(_ context.Context, text string) (int, error) {
		return estimateTokens(text), nil
	})
}

// estimateTokens is the len/4 approximation. Empty text counts as zero;
// any non-empty text counts as at least one token so budget math never
// divides by zero.
func estimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// CountTokens counts with counter, degrading to the len/4 estimate when
// the counter is nil, fails, or its deadline expires. Budget enforcement
// keeps working on approximate counts while the tokenizer is down.
func CountTokens(ctx context.Context, counter TokenCounter, text string) int {
	if counter == nil {
		return estimateTokens(text)
	}
	n, err := counter.Count(ctx, text)
	if err != nil || n < 0 {
		return estimateTokens(text)
	}
	return n
}
