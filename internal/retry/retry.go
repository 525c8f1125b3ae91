package retry

import (
	"context"
	"time"
)

// Policy bounds a retryable operation: total attempt count, exponential
// backoff schedule, and an optional predicate for errors that must never
// be retried.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Terminal reports errors that make further attempts pointless
	// (for example a provider quota that will not reset within the run).
	Terminal func(error) bool
}

// Do runs fn until it succeeds, a terminal error occurs, the context is
// done, or the attempt budget is exhausted. The delay before attempt n+1
// is BaseDelay * 2^n.
func Do(ctx context.Context, policy Policy, fn func() error) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, Backoff(policy.BaseDelay, attempt-1)); err != nil {
				return err
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if policy.Terminal != nil && policy.Terminal(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// Backoff returns the exponential delay for a zero-based attempt index.
func Backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 16 {
		attempt = 16
	}
	return base << uint(attempt)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
