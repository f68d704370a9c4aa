package fetchlib

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"net"
	"time"
)

// Default retry configuration values
const (
	DEF_MAX_ATTEMPTS   = 3
	DEF_INITIAL_DELAY  = 2 * time.Second
	DEF_MAX_DELAY      = 30 * time.Second
	DEF_BACKOFF_FACTOR = 2.0
)

// RetryConfig holds configuration for retry behavior
type RetryConfig struct {
	MaxAttempts   int           // Total number of invocations, including the first one
	InitialDelay  time.Duration // Delay before the second attempt
	MaxDelay      time.Duration // Maximum delay between attempts (0 = uncapped)
	BackoffFactor float64       // Multiplier applied to the delay after each retry
	JitterFactor  float64       // Random jitter factor (0-1), 0 disables jitter

	// Retryable reports whether err is worth another attempt.
	// A nil Retryable retries every error.
	Retryable func(err error) bool
	// OnRetry is called before sleeping ahead of the next attempt.
	OnRetry func(state RetryState, delay time.Duration)
}

// DefaultRetryConfig returns the policy used around connection establishment.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   DEF_MAX_ATTEMPTS,
		InitialDelay:  DEF_INITIAL_DELAY,
		MaxDelay:      DEF_MAX_DELAY,
		BackoffFactor: DEF_BACKOFF_FACTOR,
	}
}

// RetryState tracks the state of retry attempts
type RetryState struct {
	Attempts     int           // Number of attempts made
	LastError    error         // Most recent error encountered
	LastAttempt  time.Time     // Time of last attempt
	TotalDelayed time.Duration // Cumulative time spent waiting between retries
}

// retrySleep waits for d or until ctx is done. Tests replace it.
var retrySleep = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// CalculateBackoff computes the delay before the attempt following the
// given (1-based) failed attempt.
func (c *RetryConfig) CalculateBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := c.BackoffFactor
	if factor <= 0 {
		factor = 1
	}

	// Exponential backoff: initialDelay * (factor ^ (attempt-1))
	delay := float64(c.InitialDelay) * math.Pow(factor, float64(attempt-1))

	if c.JitterFactor > 0 {
		jitter := c.JitterFactor * (2*rand.Float64() - 1) // random in [-1, 1]
		delay *= (1 + jitter)
	}

	if c.MaxDelay > 0 && delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	if delay < 0 {
		delay = float64(c.InitialDelay)
	}
	return time.Duration(delay)
}

// WithRetry invokes op until it succeeds, the attempts are exhausted, the
// error is not retryable, or ctx is done. The error of the final attempt is
// returned unmodified so callers can keep matching on its type.
func WithRetry[T any](ctx context.Context, cfg RetryConfig, op func(ctx context.Context) (T, error)) (T, error) {
	var (
		zero  T
		state RetryState
	)
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	for {
		state.Attempts++
		state.LastAttempt = time.Now()
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		state.LastError = err
		if state.Attempts >= maxAttempts {
			return zero, err
		}
		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return zero, err
		}
		delay := cfg.CalculateBackoff(state.Attempts)
		if cfg.OnRetry != nil {
			cfg.OnRetry(state, delay)
		}
		if serr := retrySleep(ctx, delay); serr != nil {
			// the caller asked to stop; the operation's own error is the useful one
			return zero, err
		}
		state.TotalDelayed += delay
	}
}

// IsTransient reports whether err looks like a temporary failure: a
// ProtocolError marked transient, a network timeout or a dropped stream.
// Permanent protocol replies (5xx) and context cancellation are not transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var pErr *ProtocolError
	if errors.As(err, &pErr) {
		return pErr.IsTransient()
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var srErr *ShortReadError
	return errors.As(err, &srErr)
}
