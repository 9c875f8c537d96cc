package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig configures exponential backoff with full jitter
type RetryConfig struct {
	Attempts  int           // total attempts, at least 1
	BaseDelay time.Duration // delay cap for the first retry
	MaxDelay  time.Duration // upper bound for any delay
}

// DefaultRetryConfig returns the warm-up retry policy
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:  3,
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  10 * time.Second,
	}
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Retry runs fn until it succeeds, returns a permanent error, the attempts are
// used up or ctx ends. The last error is returned wrapped.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("retry interrupted after %d attempts: %w", attempt, lastErr)
			}
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		var perm permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
		if attempt == attempts-1 {
			break
		}

		timer := time.NewTimer(Backoff(attempt, cfg.BaseDelay, cfg.MaxDelay))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry interrupted after %d attempts: %w", attempt+1, lastErr)
		case <-timer.C:
		}
	}

	return fmt.Errorf("gave up after %d attempts: %w", attempts, lastErr)
}

// Backoff returns rand(0, min(max, base*2^attempt)), at least 1ms
func Backoff(attempt int, base, max time.Duration) time.Duration {
	ceiling := float64(base) * math.Pow(2, float64(attempt))
	if max > 0 && ceiling > float64(max) {
		ceiling = float64(max)
	}

	d := time.Duration(rand.Float64() * ceiling)
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}
