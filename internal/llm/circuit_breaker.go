package llm

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when the circuit breaker is open and rejects
// requests to stop hammering an embedding backend that is already down.
var ErrCircuitOpen = errors.New("embedding circuit breaker is open")

// BreakerConfig holds circuit breaker tuning for the embedding path.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that trips the
	// circuit. Default: 3.
	MaxFailures uint32

	// Timeout is how long the circuit stays open before allowing probe
	// requests. Default: 30 seconds.
	Timeout time.Duration

	// HalfOpenMaxSuccesses is the number of consecutive probe successes
	// required to close the circuit again. Default: 2.
	HalfOpenMaxSuccesses uint32
}

// Breaker wraps gobreaker around embedding calls. While the circuit is
// open, Execute fails fast with ErrCircuitOpen and callers fall into
// their degraded modes immediately instead of waiting on timeouts.
type Breaker struct {
	breaker *gobreaker.CircuitBreaker
}

// NewBreaker creates a circuit breaker with default settings.
func NewBreaker() *Breaker {
	return NewBreakerWithConfig(BreakerConfig{})
}

// NewBreakerWithConfig creates a circuit breaker with custom settings;
// zero fields get defaults.
func NewBreakerWithConfig(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxSuccesses == 0 {
		cfg.HalfOpenMaxSuccesses = 2
	}

	settings := gobreaker.Settings{
		Name:        "EmbeddingBreaker",
		MaxRequests: cfg.HalfOpenMaxSuccesses,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
	}

	return &Breaker{breaker: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn through the circuit breaker, checking ctx before the
// call. An open circuit yields ErrCircuitOpen.
func (b *Breaker) Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	result, err := b.breaker.Execute(func() (interface{}, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}
	return result, nil
}

// State returns "closed", "open", or "half-open".
func (b *Breaker) State() string {
	switch b.breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}
