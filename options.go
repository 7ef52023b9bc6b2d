package resilience

import (
	"log/slog"
	"time"
)

// RetryStrategy defines the backoff strategy for retry operations.
type RetryStrategy string

const (
	// RetryStrategyExponential multiplies the delay by Multiplier after
	// each attempt, capped at MaxDelay.
	RetryStrategyExponential RetryStrategy = "exponential"

	// RetryStrategyConstant uses the same delay between every retry.
	RetryStrategyConstant RetryStrategy = "constant"

	// RetryStrategyFibonacci grows delays along the fibonacci sequence,
	// capped at MaxDelay.
	RetryStrategyFibonacci RetryStrategy = "fibonacci"
)

// RetryConfig holds retry configuration options.
type RetryConfig struct {
	// ErrorClassifier determines which errors should trigger retries.
	// Default: all errors except context cancellation are retryable.
	ErrorClassifier ErrorClassifier

	// OnRetry is invoked with the failure and the 1-indexed number of
	// attempts consumed so far, before each backoff sleep. Optional.
	OnRetry func(err error, attempt int)

	// Logger for retry operations.
	// Default: slog.Default()
	Logger *slog.Logger

	// Clock drives the backoff sleeps.
	// Default: SystemClock
	Clock Clock

	// Strategy defines the backoff strategy.
	// Default: RetryStrategyExponential
	Strategy RetryStrategy

	// InitialDelay is the delay before the first retry.
	// Default: 1 second
	InitialDelay time.Duration

	// MaxDelay is the cap on the delay between retries.
	// Default: 30 seconds
	MaxDelay time.Duration

	// Multiplier is the backoff multiplier for the exponential strategy.
	// The delay before attempt n+1 is InitialDelay * Multiplier^(n-1),
	// capped at MaxDelay.
	// Default: 2.0 (doubling)
	Multiplier float64

	// MaxAttempts is the maximum number of attempts (including the
	// initial one). 1 means a single attempt with no retry.
	// Default: 3
	MaxAttempts int
}

// RetryOption is a functional option for configuring retry behavior.
type RetryOption func(*RetryConfig)

// WithMaxAttempts sets the maximum number of attempts, including the initial
// one.
//
// Example:
//
//	resilience.WithMaxAttempts(5) // Try up to 5 times total
func WithMaxAttempts(attempts int) RetryOption {
	return func(c *RetryConfig) {
		c.MaxAttempts = attempts
	}
}

// WithExponentialBackoff configures exponential backoff.
// Each retry delay is multiplied by the configured multiplier (default 2.0)
// up to maxDelay.
//
// Example:
//
//	resilience.WithExponentialBackoff(time.Second, 30*time.Second)
//	// With default multiplier 2.0: 1s, 2s, 4s, 8s, 16s, 30s (capped)
func WithExponentialBackoff(initialDelay, maxDelay time.Duration) RetryOption {
	return func(c *RetryConfig) {
		c.Strategy = RetryStrategyExponential
		c.InitialDelay = initialDelay
		c.MaxDelay = maxDelay
	}
}

// WithMultiplier sets the backoff multiplier for the exponential strategy.
//
// Example:
//
//	resilience.WithMultiplier(1.5) // 50% growth per retry
func WithMultiplier(multiplier float64) RetryOption {
	return func(c *RetryConfig) {
		c.Multiplier = multiplier
	}
}

// WithConstantBackoff configures a constant delay between retries.
//
// Example:
//
//	resilience.WithConstantBackoff(2 * time.Second)
func WithConstantBackoff(delay time.Duration) RetryOption {
	return func(c *RetryConfig) {
		c.Strategy = RetryStrategyConstant
		c.InitialDelay = delay
		c.MaxDelay = delay
	}
}

// WithFibonacciBackoff configures fibonacci backoff up to maxDelay.
//
// Example:
//
//	resilience.WithFibonacciBackoff(time.Second, 30*time.Second)
//	// Delays: 1s, 1s, 2s, 3s, 5s, 8s, 13s, 21s, 30s (capped)
func WithFibonacciBackoff(initialDelay, maxDelay time.Duration) RetryOption {
	return func(c *RetryConfig) {
		c.Strategy = RetryStrategyFibonacci
		c.InitialDelay = initialDelay
		c.MaxDelay = maxDelay
	}
}

// WithOnRetry registers an observer invoked before each backoff sleep with
// the causing error and the number of attempts consumed so far (1-indexed).
//
// Example:
//
//	resilience.WithOnRetry(func(err error, attempt int) {
//	    log.Printf("attempt %d failed: %v", attempt, err)
//	})
func WithOnRetry(fn func(err error, attempt int)) RetryOption {
	return func(c *RetryConfig) {
		c.OnRetry = fn
	}
}

// WithErrorClassifier sets a custom error classifier for retry decisions.
//
// Example:
//
//	classifier := &MyCustomClassifier{}
//	resilience.WithErrorClassifier(classifier)
func WithErrorClassifier(classifier ErrorClassifier) RetryOption {
	return func(c *RetryConfig) {
		c.ErrorClassifier = classifier
	}
}

// WithRetryClock sets the clock used for backoff sleeps. Tests substitute a
// virtual clock here to advance time deterministically.
func WithRetryClock(clock Clock) RetryOption {
	return func(c *RetryConfig) {
		c.Clock = clock
	}
}

// WithRetryLogger sets a custom logger for retry operations.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
//	resilience.WithRetryLogger(logger)
func WithRetryLogger(logger *slog.Logger) RetryOption {
	return func(c *RetryConfig) {
		c.Logger = logger
	}
}

// DefaultRetryConfig returns retry configuration with sensible defaults.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:     3,
		Strategy:        RetryStrategyExponential,
		InitialDelay:    time.Second,
		MaxDelay:        30 * time.Second,
		Multiplier:      2.0,
		ErrorClassifier: DefaultErrorClassifier(),
		Clock:           SystemClock{},
		Logger:          slog.Default(),
	}
}

// TimeoutConfig holds timeout wrapper configuration options.
type TimeoutConfig struct {
	// Message is the error message used when the deadline fires.
	// Default: "Operation timed out"
	Message string

	// Clock drives the deadline timer.
	// Default: SystemClock
	Clock Clock
}

// TimeoutOption is a functional option for configuring the timeout wrapper.
type TimeoutOption func(*TimeoutConfig)

// WithTimeoutMessage overrides the timeout error message.
//
// Example:
//
//	resilience.WithTimeoutMessage("profile fetch timed out")
func WithTimeoutMessage(message string) TimeoutOption {
	return func(c *TimeoutConfig) {
		c.Message = message
	}
}

// WithTimeoutClock sets the clock used for the deadline timer.
func WithTimeoutClock(clock Clock) TimeoutOption {
	return func(c *TimeoutConfig) {
		c.Clock = clock
	}
}

// DefaultTimeoutConfig returns timeout configuration with sensible defaults.
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		Message: "Operation timed out",
		Clock:   SystemClock{},
	}
}

// CircuitBreakerConfig holds circuit breaker configuration options.
type CircuitBreakerConfig struct {
	// OnStateChange is called whenever the circuit breaker changes state.
	OnStateChange func(name string, from, to CircuitBreakerState)

	// Logger for circuit breaker operations.
	// Default: slog.Default()
	Logger *slog.Logger

	// Clock supplies the current time for the open-state reset check and
	// the per-call timeout guard.
	// Default: SystemClock
	Clock Clock

	// Threshold is the number of consecutive failures that opens the
	// circuit.
	// Default: 5
	Threshold int

	// Timeout is the per-call deadline for each guarded operation. A call
	// exceeding it counts as a failure.
	// Default: 30 seconds
	Timeout time.Duration

	// ResetTimeout is how long the circuit stays open before the next
	// call is allowed through as a probe.
	// Default: 60 seconds
	ResetTimeout time.Duration
}

// CircuitBreakerOption is a functional option for configuring circuit breaker behavior.
type CircuitBreakerOption func(*CircuitBreakerConfig)

// CircuitBreakerState represents the state of the circuit breaker.
type CircuitBreakerState int

const (
	// StateClosed means the circuit is closed and calls flow normally.
	StateClosed CircuitBreakerState = iota

	// StateHalfOpen means the circuit is testing if the operation has recovered.
	StateHalfOpen

	// StateOpen means the circuit is open and calls are rejected immediately.
	StateOpen
)

// String returns the string representation of the circuit breaker state.
func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// CircuitBreakerSnapshot is a read-only view of a breaker's state, taken
// atomically by GetState.
type CircuitBreakerSnapshot struct {
	// State is the breaker state at the time of the snapshot.
	State CircuitBreakerState

	// FailureCount is the current consecutive-failure count.
	FailureCount int

	// LastFailureTime is the time of the most recent failure, or the zero
	// time if there has been none since the last reset.
	LastFailureTime time.Time
}

// WithThreshold sets the consecutive-failure count that opens the circuit.
//
// Example:
//
//	resilience.WithThreshold(3)
func WithThreshold(threshold int) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.Threshold = threshold
	}
}

// WithTimeout sets the per-call deadline for guarded operations.
//
// Example:
//
//	resilience.WithTimeout(10 * time.Second)
func WithTimeout(timeout time.Duration) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.Timeout = timeout
	}
}

// WithResetTimeout sets how long the circuit stays open before probing.
//
// Example:
//
//	resilience.WithResetTimeout(time.Minute)
func WithResetTimeout(resetTimeout time.Duration) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.ResetTimeout = resetTimeout
	}
}

// WithStateChangeHandler sets a callback for circuit breaker state changes.
//
// Example:
//
//	resilience.WithStateChangeHandler(func(name string, from, to resilience.CircuitBreakerState) {
//	    log.Printf("Circuit %s changed from %s to %s", name, from, to)
//	})
func WithStateChangeHandler(fn func(name string, from, to CircuitBreakerState)) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.OnStateChange = fn
	}
}

// WithCircuitBreakerClock sets the clock used for reset-deadline checks and
// the per-call timeout guard.
func WithCircuitBreakerClock(clock Clock) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.Clock = clock
	}
}

// WithCircuitBreakerLogger sets a custom logger for circuit breaker operations.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
//	resilience.WithCircuitBreakerLogger(logger)
func WithCircuitBreakerLogger(logger *slog.Logger) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.Logger = logger
	}
}

// DefaultCircuitBreakerConfig returns circuit breaker configuration with sensible defaults.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Threshold:    5,
		Timeout:      30 * time.Second,
		ResetTimeout: 60 * time.Second,
		Clock:        SystemClock{},
		Logger:       slog.Default(),
	}
}

// LimiterConfig holds configuration shared by the debounce and throttle
// combinators.
type LimiterConfig struct {
	// Clock drives scheduling and window arithmetic.
	// Default: SystemClock
	Clock Clock

	// Logger for limiter operations.
	// Default: slog.Default()
	Logger *slog.Logger
}

// LimiterOption is a functional option for debounce and throttle combinators.
type LimiterOption func(*LimiterConfig)

// WithLimiterClock sets the clock used by a debouncer or throttler.
func WithLimiterClock(clock Clock) LimiterOption {
	return func(c *LimiterConfig) {
		c.Clock = clock
	}
}

// WithLimiterLogger sets a custom logger for a debouncer or throttler.
func WithLimiterLogger(logger *slog.Logger) LimiterOption {
	return func(c *LimiterConfig) {
		c.Logger = logger
	}
}

// DefaultLimiterConfig returns limiter configuration with sensible defaults.
func DefaultLimiterConfig() *LimiterConfig {
	return &LimiterConfig{
		Clock:  SystemClock{},
		Logger: slog.Default(),
	}
}
