// Package retry provides exponential backoff retry for transient failures.
//
// Retryability follows the runtime's error classification: invalid and
// fatal errors stop immediately, transient errors (and unclassified
// ones) are retried until attempts run out.
package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/c360/runtimekit/errors"
)

// Config tunes the backoff schedule.
type Config struct {
	MaxAttempts  int           // total attempts including the first
	InitialDelay time.Duration // delay before the second attempt
	MaxDelay     time.Duration // backoff ceiling
	Multiplier   float64       // growth factor, typically 2.0
	Jitter       bool          // randomize delays against thundering herds
}

// DefaultConfig returns the schedule used across the runtime: three
// attempts, 100ms initial delay doubling to a 5s ceiling, with jitter.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Do runs op until it succeeds, exhausts attempts, hits a
// non-retryable error, or ctx is cancelled. The last error is
// returned, wrapped with the attempt count when retries were used.
func Do(ctx context.Context, cfg Config, op func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = 2.0
	}

	delay := cfg.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if errors.IsInvalid(lastErr) || errors.IsFatal(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		wait := delay
		if cfg.Jitter && wait > 0 {
			// up to +-25%
			wait += time.Duration((rand.Float64() - 0.5) * 0.5 * float64(wait))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return fmt.Errorf("after %d attempts: %w", cfg.MaxAttempts, lastErr)
}
