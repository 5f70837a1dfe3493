package adapter

import (
	"context"
	"fmt"
	"time"
)

// BaseBackoff is the delay before the first retry; it doubles per retry.
const BaseBackoff = 500 * time.Millisecond

// Backoff returns the delay before retry n (1-based).
func Backoff(n int) time.Duration {
	return time.Duration(1<<uint(n-1)) * BaseBackoff
}

// Retry runs op once plus up to retries more times with exponential
// backoff. It stops early when ctx is done or permanent reports the error
// as non-retriable. It returns the attempts made and the last error.
func Retry(ctx context.Context, retries int, op func(context.Context) error, permanent func(error) bool) (int, error) {
	attempts := 1 + retries
	var lastErr error
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return i, fmt.Errorf("context canceled: %w", err)
		}
		if i > 0 {
			select {
			case <-ctx.Done():
				return i, fmt.Errorf("context canceled during backoff: %w", ctx.Err())
			case <-time.After(Backoff(i)):
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return i + 1, nil
		}
		if permanent != nil && permanent(lastErr) {
			return i + 1, lastErr
		}
	}
	return attempts, lastErr
}
