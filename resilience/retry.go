package resilience

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/itsneelabh/storefront/core"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterEnabled bool

	// RetryIf reports whether a failed attempt may be retried.
	// Defaults to core.IsRetryable.
	RetryIf func(error) bool

	// OnRetry runs after a failed attempt and before the backoff wait.
	// retry is the 1-based number of the attempt that just failed.
	OnRetry func(retry int, err error, delay time.Duration)

	// Rand returns a value in [0, 1) and is only consulted when jitter is on.
	Rand func() float64
}

// DefaultRetryConfig provides sensible defaults
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
	}
}

// Backoff returns the wait after the failed attempt with 0-based index i:
// InitialDelay * BackoffFactor^i, capped at MaxDelay. With jitter enabled the
// result is scaled by a random factor in [0.5, 1.0].
func (c *RetryConfig) Backoff(i int) time.Duration {
	factor := c.BackoffFactor
	if factor <= 0 {
		factor = 2.0
	}
	delay := float64(c.InitialDelay) * math.Pow(factor, float64(i))
	if c.MaxDelay > 0 && delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}

	if c.JitterEnabled {
		r := c.Rand
		if r == nil {
			r = rand.Float64
		}
		delay *= 0.5 + 0.5*r()
	}
	return time.Duration(delay)
}

// Retry executes a function with retry logic.
//
// Errors rejected by RetryIf are returned unchanged after the attempt that
// produced them. When every attempt fails the last error is returned wrapped
// with core.ErrMaxRetriesExceeded.
func Retry(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	retryIf := config.RetryIf
	if retryIf == nil {
		retryIf = core.IsRetryable
	}
	maxAttempts := config.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		// Check context
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

		if !retryIf(err) {
			return err
		}

		// Don't sleep after the last attempt
		if attempt == maxAttempts {
			break
		}

		delay := config.Backoff(attempt - 1)
		if config.OnRetry != nil {
			config.OnRetry(attempt, err, delay)
		}

		// Sleep with context cancellation
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded: %w: %w", maxAttempts, lastErr, core.ErrMaxRetriesExceeded)
}
