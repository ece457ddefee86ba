package sync

import (
	"context"
	"fmt"
	"time"
)

// retry executes fn up to maxAttempts times. After a failed attempt k it
// waits base × 2^k before the next one, calling onRetry with the attempt
// number and the wait so the caller can log it. No jitter is applied.
//
// Returns nil on the first successful call, or a wrapped error containing
// the last failure once all attempts are exhausted.
func retry(ctx context.Context, maxAttempts int, base time.Duration, onRetry func(attempt int, wait time.Duration), fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if attempt < maxAttempts {
			wait := base << attempt
			if onRetry != nil {
				onRetry(attempt, wait)
			}
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-time.After(wait):
			}
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", maxAttempts, lastErr)
}
