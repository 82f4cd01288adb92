package dap

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig configures DialRetry.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts.
	MaxAttempts int

	// InitialDelay is the delay after the first failure.
	InitialDelay time.Duration

	// MaxDelay caps the delay between attempts.
	MaxDelay time.Duration

	// BackoffMultiplier multiplies the delay after each attempt.
	BackoffMultiplier float64
}

// DefaultRetryConfig waits up to about five seconds for an adapter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       10,
		InitialDelay:      50 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2.0,
	}
}

// DialRetry dials address until an adapter accepts the connection.
// Adapters started alongside the client often listen only after a delay.
func DialRetry(ctx context.Context, address string, cfg RetryConfig) (Transport, error) {
	return retry(ctx, cfg, func() (Transport, error) {
		return Dial(ctx, address)
	})
}

// retry calls fn until it succeeds, backing off between attempts.
// If MaxAttempts is <= 0, fn is called once.
func retry[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	maxAttempts := max(cfg.MaxAttempts, 1)

	var zero T
	var lastErr error
	delay := cfg.InitialDelay
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * cfg.BackoffMultiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return zero, fmt.Errorf("all %d attempts failed: %w", maxAttempts, lastErr)
}
