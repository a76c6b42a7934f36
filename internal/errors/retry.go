package errors

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig configures bounded exponential backoff for provider calls.
// Per the error handling policy, only transient network errors are retried,
// and only at the provider boundary.
type RetryConfig struct {
	MaxRetries   int           // attempts after the initial one
	InitialDelay time.Duration // delay before the first retry
	MaxDelay     time.Duration // cap on the backoff delay
	Multiplier   float64       // exponential growth factor
}

// DefaultRetryConfig returns the retry policy for outbound service calls:
// at most 2 retries inside a 1-5s backoff window.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   2,
		InitialDelay: 1 * time.Second,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// Retry executes fn with exponential backoff. Non-retryable errors abort
// immediately; context cancellation propagates as the context error.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		// Structured errors tell us whether retrying can help.
		if e, ok := err.(*Error); ok && !e.Retryable {
			return err
		}

		if attempt >= cfg.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
}
