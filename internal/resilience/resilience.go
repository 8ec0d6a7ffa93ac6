// Package resilience provides the platform's fault-tolerance primitives:
// bounded retry with exponential backoff for idempotent reads against
// flaky dependencies, and a circuit breaker that sheds load from a
// dependency that keeps failing. Retries never apply to writes; the
// repository and store layers call Retry only on read paths.
package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// RetryConfig bounds a retry loop.
type RetryConfig struct {
	MaxAttempts     uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig matches the platform's read-retry policy: three
// attempts, starting at 100ms and growing by the backoff library's default
// factor of 1.5 (with jitter), capped at 2s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialInterval: 100 * time.Millisecond, MaxInterval: 2 * time.Second}
}

// Retry runs op with exponential backoff until it succeeds, the attempt
// budget is spent, or ctx is done. The last error is returned.
func Retry(ctx context.Context, cfg RetryConfig, op func() error) error {
	if cfg.MaxAttempts == 0 {
		cfg = DefaultRetryConfig()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.MaxInterval = cfg.MaxInterval

	return backoff.Retry(op,
		backoff.WithContext(backoff.WithMaxRetries(b, cfg.MaxAttempts-1), ctx))
}

// Permanent marks err as non-retryable; Retry returns it immediately.
func Permanent(err error) error { return backoff.Permanent(err) }

// BreakerConfig tunes a circuit breaker.
type BreakerConfig struct {
	Name        string
	MaxFailures uint32        // consecutive failures before the circuit opens
	OpenFor     time.Duration // time spent open before probing half-open
}

// Breaker wraps gobreaker with the platform's defaults.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker constructs a Breaker. Zero-valued fields take defaults of five
// failures and a 30s open window.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 30 * time.Second
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
	})}
}

// Do runs op through the breaker.
func (b *Breaker) Do(op func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, op()
	})
	return err
}

// Open reports whether the circuit is currently rejecting calls.
func (b *Breaker) Open() bool { return b.cb.State() == gobreaker.StateOpen }
