// Package retry provides a parametrized retry policy with exponential
// backoff, shared by pooled and direct connection acquisition.
package retry

import (
	"context"
	"math"
	"time"
)

// Policy defines retry behavior.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// InitialDelay is the delay before the second attempt. Zero means
	// failed attempts are retried immediately.
	InitialDelay time.Duration

	// MaxDelay caps the computed delay.
	MaxDelay time.Duration

	// BackoffFactor multiplies the delay after each failed attempt.
	BackoffFactor float64
}

// Delay returns the backoff delay applied after the given failed attempt
// (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 || p.InitialDelay <= 0 {
		return 0
	}
	factor := p.BackoffFactor
	if factor <= 0 {
		factor = 1
	}
	delay := float64(p.InitialDelay) * math.Pow(factor, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

// Observer is invoked after each failed attempt that will be retried,
// with the attempt number, the delay before the next attempt, and the
// error that triggered the retry.
type Observer func(attempt int, delay time.Duration, err error)

// Do runs fn until it succeeds, the policy's attempts are exhausted, or
// the context is cancelled. The last error is returned on exhaustion.
func Do(ctx context.Context, p Policy, observe Observer, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		delay := p.Delay(attempt)
		if observe != nil {
			observe(attempt, delay, lastErr)
		}

		if delay == 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return lastErr
}

// DoValue is Do for functions that return a value.
func DoValue[T any](ctx context.Context, p Policy, observe Observer, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Do(ctx, p, observe, func(ctx context.Context) error {
		var fnErr error
		result, fnErr = fn(ctx)
		return fnErr
	})
	return result, err
}
