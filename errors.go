package resilience

import (
	"context"
	"errors"

	pkgerrors "github.com/JohnPlummer/jp-go-errors"
)

// ErrorClassifier determines whether an error should trigger a retry.
// Implement this interface to customize retry behavior for your specific
// error types.
type ErrorClassifier interface {
	// IsRetryable returns true if the error represents a transient failure
	// that should be retried.
	IsRetryable(err error) bool
}

// CircuitBreakerErrorClassifier determines whether an error should count
// against a circuit breaker wrapped around a client. The core CircuitBreaker
// counts every failure; this hook lets the client wrapper exempt errors that
// should not feed the counter.
type CircuitBreakerErrorClassifier interface {
	// ShouldTripCircuit returns true if the error represents a failure
	// serious enough to count toward opening the circuit.
	ShouldTripCircuit(err error) bool
}

// ErrProbeInFlight is the cause carried by half-open rejections: the circuit
// is testing recovery and the single probe slot is already taken.
var ErrProbeInFlight = errors.New("circuit breaker probe in flight")

// IsTimeout reports whether err is a deadline failure produced by the timeout
// wrapper (or any jp-go-errors timeout).
func IsTimeout(err error) bool {
	return pkgerrors.IsTimeout(err)
}

// IsCircuitOpen reports whether err is a rejection the circuit breaker issued
// without attempting the call, as opposed to a failure of the call itself.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, pkgerrors.ErrCircuitOpen) ||
		errors.Is(err, ErrProbeInFlight)
}

// TransientErrorClassifier treats every failure as retryable except context
// cancellation, which cannot succeed on a retry with the same context.
type TransientErrorClassifier struct{}

// IsRetryable implements ErrorClassifier.
func (TransientErrorClassifier) IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// ShouldTripCircuit implements CircuitBreakerErrorClassifier; every failure
// counts, matching the breaker's single-counter semantics.
func (TransientErrorClassifier) ShouldTripCircuit(err error) bool {
	return err != nil
}

// HTTPError represents an error with an associated HTTP status code.
// Many HTTP client libraries provide errors that implement this interface.
type HTTPError interface {
	error
	StatusCode() int
}

// HTTPStatusClassifier classifies errors by HTTP status code, treating some
// codes as retryable and some as circuit-trip conditions. It is an opt-in
// classifier for clients that talk HTTP; the package default retries every
// transient failure regardless of cause.
type HTTPStatusClassifier struct {
	// RetryableStatuses lists HTTP status codes that should trigger retries.
	// Defaults to 429, 500, 502, 503, 504 if nil.
	RetryableStatuses []int

	// CircuitTripStatuses lists HTTP status codes that should count toward
	// opening the circuit. Defaults to 401, 403, 500, 502, 503, 504 if nil.
	CircuitTripStatuses []int
}

// NewHTTPStatusClassifier creates an HTTPStatusClassifier with default status
// code mappings.
// Retryable: 429 (rate limit), 500, 502, 503, 504 (server errors)
// Circuit trip: 401, 403 (auth errors), 500, 502, 503, 504 (server errors)
func NewHTTPStatusClassifier() *HTTPStatusClassifier {
	return &HTTPStatusClassifier{
		RetryableStatuses:   []int{429, 500, 502, 503, 504},
		CircuitTripStatuses: []int{401, 403, 500, 502, 503, 504},
	}
}

// IsRetryable implements ErrorClassifier for HTTP status codes.
func (c *HTTPStatusClassifier) IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are NOT retryable - retrying with the same context
	// fails immediately. Check these before the timeout check, since
	// context.DeadlineExceeded also reads as a timeout.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, pkgerrors.ErrRateLimited) {
		return true
	}
	if pkgerrors.IsTimeout(err) {
		return true
	}

	statusCode := extractStatusCode(err)
	if statusCode == 0 {
		// Unknown errors might be retryable (network issues, etc.)
		return true
	}

	return containsStatus(c.getRetryableStatuses(), statusCode)
}

// ShouldTripCircuit implements CircuitBreakerErrorClassifier for HTTP status
// codes.
func (c *HTTPStatusClassifier) ShouldTripCircuit(err error) bool {
	if err == nil {
		return false
	}

	// Rate limits and context cancellations are transient; don't trip.
	if errors.Is(err, pkgerrors.ErrRateLimited) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	statusCode := extractStatusCode(err)
	if statusCode == 0 {
		// Unknown errors should trip the circuit to be safe
		return true
	}

	return containsStatus(c.getCircuitTripStatuses(), statusCode)
}

func (c *HTTPStatusClassifier) getRetryableStatuses() []int {
	if c.RetryableStatuses != nil {
		return c.RetryableStatuses
	}
	return []int{429, 500, 502, 503, 504}
}

func (c *HTTPStatusClassifier) getCircuitTripStatuses() []int {
	if c.CircuitTripStatuses != nil {
		return c.CircuitTripStatuses
	}
	return []int{401, 403, 500, 502, 503, 504}
}

// extractStatusCode attempts to extract an HTTP status code from an error.
func extractStatusCode(err error) int {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode()
	}
	return 0
}

// containsStatus checks if a status code is in the list.
func containsStatus(statuses []int, status int) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// DefaultErrorClassifier returns the package default retry classifier: every
// failure is retryable except context cancellation.
func DefaultErrorClassifier() ErrorClassifier {
	return TransientErrorClassifier{}
}

// DefaultCircuitBreakerErrorClassifier returns the package default trip
// classifier: every failure counts.
func DefaultCircuitBreakerErrorClassifier() CircuitBreakerErrorClassifier {
	return TransientErrorClassifier{}
}

// StatusCodeError wraps an error with an HTTP status code.
// Use this when you need to add status code information to an existing error.
type StatusCodeError struct {
	Err  error
	Code int
}

// Error implements the error interface.
func (e *StatusCodeError) Error() string {
	return e.Err.Error()
}

// Unwrap implements error unwrapping for errors.Is and errors.As.
func (e *StatusCodeError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status code.
// This implements the HTTPError interface.
func (e *StatusCodeError) StatusCode() int {
	return e.Code
}

// NewStatusCodeError creates a new StatusCodeError.
// This is useful when wrapping errors from systems that don't provide status
// codes.
//
// Example:
//
//	err := doRequest()
//	if err != nil {
//	    return resilience.NewStatusCodeError(http.StatusServiceUnavailable, err)
//	}
func NewStatusCodeError(statusCode int, err error) error {
	return &StatusCodeError{
		Code: statusCode,
		Err:  err,
	}
}
