package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	goerrors "github.com/kbukum/dagflow/errors"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	MaxAttempts int
	// InitialBackoff is the delay before the second attempt. Zero retries immediately.
	InitialBackoff time.Duration
	// MaxBackoff caps the delay between attempts. Zero means no cap.
	MaxBackoff time.Duration
	// BackoffFactor is the multiplier for exponential backoff.
	BackoffFactor float64
	// Jitter adds randomness to backoff (0.0 to 1.0).
	Jitter float64
	// AttemptTimeout bounds each attempt with its own deadline. Zero means none.
	AttemptTimeout time.Duration
	// RetryIf determines if an error should be retried.
	RetryIf func(error) bool
	// OnRetry is called before each retry.
	OnRetry func(attempt int, err error, backoff time.Duration)
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
		RetryIf:        DefaultRetryIf,
	}
}

// SingleAttempt returns a config that runs fn exactly once.
func SingleAttempt() RetryConfig {
	return RetryConfig{MaxAttempts: 1}
}

// DefaultRetryIf retries errors classified as retryable, never context cancellation.
func DefaultRetryIf(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return goerrors.IsRetryable(err)
}

// Retry executes fn until it succeeds, returns a non-retryable error, or the
// attempt budget is spent. fn receives the 1-based attempt number and a
// context bounded by AttemptTimeout when set.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	var lastErr error

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = 2.0
	}
	if cfg.RetryIf == nil {
		cfg.RetryIf = DefaultRetryIf
	}

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := runAttempt(ctx, cfg.AttemptTimeout, attempt, fn)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !cfg.RetryIf(err) {
			return zero, err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		backoff := calculateBackoff(attempt, cfg)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, backoff)
		}
		if backoff <= 0 {
			continue
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, lastErr
}

// RetryFunc executes a function that returns only an error.
func RetryFunc(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context, attempt int) error) error {
	_, err := Retry(ctx, cfg, func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, fn(ctx, attempt)
	})
	return err
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, attempt int, fn func(context.Context, int) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx, attempt)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx, attempt)
}

// Backoff returns the delay that follows the given failed attempt.
func Backoff(attempt int, cfg RetryConfig) time.Duration {
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = 2.0
	}
	return calculateBackoff(attempt, cfg)
}

// calculateBackoff computes initial * factor^(attempt-1), jittered and capped.
func calculateBackoff(attempt int, cfg RetryConfig) time.Duration {
	if cfg.InitialBackoff <= 0 {
		return 0
	}
	backoffFloat := float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffFactor, float64(attempt-1))

	if cfg.Jitter > 0 {
		jitterRange := backoffFloat * cfg.Jitter
		backoffFloat += (rand.Float64()*2 - 1) * jitterRange
	}

	if cfg.MaxBackoff > 0 && backoffFloat > float64(cfg.MaxBackoff) {
		backoffFloat = float64(cfg.MaxBackoff)
	}
	if backoffFloat < 0 {
		backoffFloat = float64(cfg.InitialBackoff)
	}

	return time.Duration(backoffFloat)
}
