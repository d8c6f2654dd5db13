// Package retry wraps a fallible operation with bounded exponential
// backoff. It carries no state of its own: the policy is a plain config
// applied per call, and only errors the configured predicate accepts are
// retried.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Config describes one retry policy.
type Config struct {
	// MaxAttempts is the total invocation ceiling, including the first call.
	MaxAttempts int
	// InitialDelay is the wait before the second attempt.
	InitialDelay time.Duration
	// MaxDelay caps the grown delay; zero means uncapped.
	MaxDelay time.Duration
	// Multiplier grows the delay after every failed attempt.
	Multiplier float64
	// Retryable decides whether an error consumes a retry. A nil predicate
	// retries nothing, so every error propagates after one attempt.
	Retryable func(error) bool
}

// DefaultConfig returns the policy used when callers pass a zero config.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Do invokes op until it succeeds, returns a non-retryable error, or the
// attempt ceiling is reached, sleeping the current delay between attempts.
// The last error propagates unchanged. Context cancellation during a wait
// aborts with the context error.
func Do[T any](ctx context.Context, cfg Config, op func(context.Context) (T, error)) (T, error) {
	var zero T

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = DefaultConfig().Multiplier
	}

	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				log.Info().Int("attempt", attempt).Msg("Operation succeeded after retry")
			}
			return v, nil
		}
		lastErr = err

		if cfg.Retryable == nil || !cfg.Retryable(err) {
			log.Debug().Err(err).Msg("Error is not retryable, aborting")
			return zero, err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", cfg.MaxAttempts).
			Dur("backoff", delay).
			Msg("Operation failed, retrying with backoff")

		if delay > 0 {
			select {
			case <-ctx.Done():
				return zero, fmt.Errorf("retry aborted: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return zero, lastErr
}
