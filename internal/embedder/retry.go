package embedder

import (
	"context"
	"fmt"
	"time"
)

// Retry configuration
const (
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// retryWithBackoff executes fn with exponential backoff on failure.
// Respects context cancellation between attempts.
func retryWithBackoff[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	backoff := time.Duration(InitialBackoffMs) * time.Millisecond
	maxBackoff := time.Duration(MaxBackoffMs) * time.Millisecond

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
			}

			backoff = time.Duration(float64(backoff) * BackoffMultiplier)
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
	}

	return zero, fmt.Errorf("all %d attempts failed: %w", MaxRetries+1, lastErr)
}
