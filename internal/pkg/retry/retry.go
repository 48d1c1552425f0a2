package retry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"
)

// Operation represents a function that can be retried.
type Operation func() error

// Backoff computes the delay before a given attempt (1-indexed; attempt 1
// never sleeps).
type Backoff func(attempt int) time.Duration

// Exponential backs off as base * 2^(attempt-2).
func Exponential(base time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return time.Duration(math.Pow(2, float64(attempt-2))) * base
	}
}

// Linear backs off as base * attempt, used for the downloader's per-chunk
// retry budget.
func Linear(base time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return base * time.Duration(attempt)
	}
}

// WithRetry executes the given operation with the provided backoff.
func WithRetry(ctx context.Context, name string, op Operation, maxRetries int, backoff Backoff) error {
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt > 1 {
			delay := backoff(attempt)
			log.Printf("[!] Retry %d/%d for %s after %v...", attempt, maxRetries, name, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		log.Printf("[!] Error during %s (attempt %d/%d): %v", name, attempt, maxRetries, err)

		// Don't retry if context is cancelled or deadline exceeded
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, maxRetries, lastErr)
}

// WithExponentialRetry is a convenience wrapper for call sites that don't
// need to construct a Backoff themselves.
func WithExponentialRetry(ctx context.Context, name string, op Operation, maxRetries int, baseDelay time.Duration) error {
	return WithRetry(ctx, name, op, maxRetries, Exponential(baseDelay))
}
