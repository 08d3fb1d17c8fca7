// Package retry implements the backoff schedule Edison applies to
// provider calls and queue jobs: exponential delay with symmetric
// jitter, capped at a maximum, retrying only failures the error
// taxonomy marks transient. The default predicate is
// edisonerr.Retryable (RateLimit, ProviderTransient, Timeout); every
// other kind propagates immediately and unchanged.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/edison-llm/edison/pkg/edisonerr"
)

// Config is one backoff schedule.
type Config struct {
	// MaxAttempts counts the initial call plus retries. Zero means a
	// single attempt.
	MaxAttempts int

	// InitialDelay is the wait before the first retry; each further
	// retry multiplies it by BackoffMultiplier, capped at MaxDelay.
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64

	// JitterFraction spreads each delay symmetrically: 0.25 means the
	// scheduled delay varies by ±25%.
	JitterFraction float64

	// Retryable overrides the retry predicate. Nil means
	// edisonerr.Retryable, so only transient provider failures are
	// retried.
	Retryable func(error) bool
}

// DefaultConfig is the schedule the provider adapters and the job
// queue share: 3 attempts, 500ms doubling to a 30s cap, ±25% jitter.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.25,
	}
}

// ShouldRetry reports whether err warrants another attempt under this
// schedule's predicate.
func (c Config) ShouldRetry(err error) bool {
	if c.Retryable != nil {
		return c.Retryable(err)
	}
	return edisonerr.Retryable(err)
}

// Delay returns the jittered, capped delay scheduled after the given
// attempt number (1-based).
func (c Config) Delay(attempt int) time.Duration {
	delay := c.InitialDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * c.BackoffMultiplier)
	}
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	if c.JitterFraction > 0 {
		spread := 1.0 + (rand.Float64()*2.0-1.0)*c.JitterFraction
		delay = time.Duration(float64(delay) * spread)
	}
	return delay
}

// Do runs fn until it succeeds, a non-retryable error surfaces, the
// attempts are exhausted, or ctx ends. After exhaustion the last error
// is propagated unchanged, so callers still see its edisonerr.Kind.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !cfg.ShouldRetry(err) || attempt >= maxAttempts {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Delay(attempt)):
		}
	}
	return lastErr
}
