package db

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

const (
	defaultMaxAttempts  = 4
	defaultBaseDelay    = 10 * time.Millisecond
	defaultJitterFactor = 0.3
)

var (
	// ErrInvalidMaxAttempts is returned when max attempts are not positive.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

	// ErrNegativeBaseDelay is returned when the base delay is negative.
	ErrNegativeBaseDelay = errors.New("base delay must not be negative")

	// ErrInvalidJitterFactor is returned when the jitter factor is not between 0.0 and 1.0.
	ErrInvalidJitterFactor = errors.New("jitter factor must be between 0.0 and 1.0")
)

type retryConfig struct {
	maxAttempts  int
	baseDelay    time.Duration
	jitterFactor float64
	retryable    func(error) bool
}

// RetryOption configures RetryWithExponentialBackoff.
type RetryOption func(*retryConfig) error

func WithMaxAttempts(n int) RetryOption {
	return func(c *retryConfig) error {
		if n <= 0 {
			return ErrInvalidMaxAttempts
		}
		c.maxAttempts = n
		return nil
	}
}

func WithBaseDelay(d time.Duration) RetryOption {
	return func(c *retryConfig) error {
		if d < 0 {
			return ErrNegativeBaseDelay
		}
		c.baseDelay = d
		return nil
	}
}

func WithJitterFactor(f float64) RetryOption {
	return func(c *retryConfig) error {
		if f < 0 || f > 1 {
			return ErrInvalidJitterFactor
		}
		c.jitterFactor = f
		return nil
	}
}

// WithRetryable replaces the default classifier (serialization failures,
// deadlocks, lock timeouts) with fn.
func WithRetryable(fn func(error) bool) RetryOption {
	return func(c *retryConfig) error {
		c.retryable = fn
		return nil
	}
}

// RetryWithExponentialBackoff runs fn until it succeeds, fails with a
// non-retryable error, or maxAttempts is reached.
//
// Default schedule: 0 ms, 10 ms, 20 ms, 40 ms (plus up to 30% jitter). Only
// serialization failures, deadlocks and lock timeouts are retried.
func RetryWithExponentialBackoff(ctx context.Context, fn func(ctx context.Context) error, options ...RetryOption) error {
	config := &retryConfig{
		maxAttempts:  defaultMaxAttempts,
		baseDelay:    defaultBaseDelay,
		jitterFactor: defaultJitterFactor,
		retryable:    isRetryableError,
	}
	for _, option := range options {
		if err := option(config); err != nil {
			return err
		}
	}

	var lastErr error
	for attempt := 0; attempt < config.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := config.baseDelay * time.Duration(1<<(attempt-1))
			jitter := rand.Float64() * float64(delay) * config.jitterFactor //nolint:gosec // jitter only
			select {
			case <-time.After(delay + time.Duration(jitter)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !config.retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
