package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

// Retry invokes op until it succeeds, fails with a non-retryable error, or
// the attempt budget is exhausted. Attempts are 1-indexed and op runs at most
// MaxAttempts times; the delay before attempt n+1 is
// min(InitialDelay * Multiplier^(n-1), MaxDelay) under the default
// exponential strategy. When attempts run out the last observed error is
// returned unchanged.
//
// Backoff sleeps run against the configured Clock and abort early when ctx is
// done, so the whole loop is deterministic under a virtual clock.
//
// Example:
//
//	user, err := resilience.Retry(ctx, fetchUser,
//	    resilience.WithMaxAttempts(5),
//	    resilience.WithExponentialBackoff(time.Second, 30*time.Second),
//	)
func Retry[T any](ctx context.Context, op Operation[T], opts ...RetryOption) (T, error) {
	config := DefaultRetryConfig()
	for _, opt := range opts {
		opt(config)
	}
	return doRetry(ctx, op, config)
}

// doRetry runs the retry loop for an already-built config. The config is
// copied so concurrent callers sharing one config never observe each other's
// normalization.
func doRetry[T any](ctx context.Context, op Operation[T], cfg *RetryConfig) (T, error) {
	var zero T

	config := *cfg

	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Clock == nil {
		config.Clock = SystemClock{}
	}
	if config.ErrorClassifier == nil {
		config.ErrorClassifier = DefaultErrorClassifier()
	}
	if config.MaxAttempts <= 0 {
		return zero, errors.New("max attempts must be positive")
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}

	// Check the parent context before the first attempt.
	select {
	case <-ctx.Done():
		config.Logger.Warn("context already done before request (expected condition)",
			"error", ctx.Err())
		return zero, ctx.Err()
	default:
	}

	backoff := config.backoff()

	var lastErr error
	for attempt := 1; ; attempt++ {
		v, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				config.Logger.Info("operation succeeded after retry",
					"attempts", attempt)
			}
			return v, nil
		}
		lastErr = err

		if !config.ErrorClassifier.IsRetryable(err) {
			config.Logger.Debug("non-retryable error, giving up",
				"error", err,
				"attempts", attempt)
			return zero, err
		}

		if attempt >= config.MaxAttempts {
			break
		}

		delay, stop := backoff.Next()
		if stop {
			break
		}

		if config.OnRetry != nil {
			config.OnRetry(err, attempt)
		}

		config.Logger.Debug("retrying operation after delay",
			"attempt", attempt,
			"delay", delay,
			"error", err)

		if err := sleep(ctx, config.Clock, delay); err != nil {
			return zero, err
		}
	}

	config.Logger.Warn("operation failed after retries",
		"attempts", config.MaxAttempts,
		"error", lastErr)
	return zero, lastErr
}

// sleep suspends the caller until d elapses on clock, or until ctx is done.
// The pending timer is stopped on early return so no callback leaks.
func sleep(ctx context.Context, clock Clock, d time.Duration) error {
	fired := make(chan struct{})
	timer := clock.After(d, func() {
		close(fired)
	})

	select {
	case <-fired:
		return nil
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	}
}

// backoff returns the delay sequence for the configured strategy. The loop in
// Retry owns attempt counting, so none of these are wrapped in
// retry.WithMaxRetries.
func (c *RetryConfig) backoff() retry.Backoff {
	switch c.Strategy {
	case RetryStrategyConstant:
		delay := c.InitialDelay
		return retry.BackoffFunc(func() (time.Duration, bool) {
			return delay, false
		})

	case RetryStrategyFibonacci:
		return retry.WithCappedDuration(c.MaxDelay, retry.NewFibonacci(c.InitialDelay))

	default:
		return retry.WithCappedDuration(c.MaxDelay, c.exponential())
	}
}

// exponential creates the exponential backoff for the configured multiplier.
// For the standard doubling multiplier the library implementation is used;
// other growth rates are computed directly. The delay for the Nth retry is
// InitialDelay * Multiplier^(N-1).
func (c *RetryConfig) exponential() retry.Backoff {
	multiplier := c.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	if multiplier == 2.0 {
		return retry.NewExponential(c.InitialDelay)
	}

	next := float64(c.InitialDelay)
	return retry.BackoffFunc(func() (time.Duration, bool) {
		delay := next
		next *= multiplier
		if delay > float64(1<<62) {
			return time.Duration(1 << 62), false
		}
		return time.Duration(delay), false
	})
}
