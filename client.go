// Package resilience provides in-process resilience combinators for wrapping
// arbitrary asynchronous operations: timeout racing, retry with exponential
// backoff, a per-name circuit breaker state machine, and debounce/throttle
// rate combinators. All timing flows through an injectable Clock so behavior
// is deterministic under a virtual clock, and errors integrate with
// jp-go-errors for standardized classification.
package resilience

import (
	"context"
)

// Operation is a zero-argument asynchronous callable producing a value or an
// error. It is the unit every combinator in this package wraps; the context
// carries cancellation from the caller through the wrapper.
type Operation[T any] func(ctx context.Context) (T, error)

// ResilientClient defines a generic interface for executing requests with
// retry and circuit breaker support. Type parameters Req and Resp can be any
// types, making this suitable for HTTP clients, gRPC clients, database
// clients, or any other operation that needs resilience patterns.
//
// Example:
//
//	type HTTPClient struct {
//	    client *http.Client
//	}
//
//	func (c *HTTPClient) Execute(ctx context.Context, req *http.Request) (*http.Response, error) {
//	    return c.client.Do(req.WithContext(ctx))
//	}
//
//	// Wrap with retry
//	resilientClient := resilience.NewRetryWrapper(
//	    httpClient,
//	    resilience.WithMaxAttempts(3),
//	    resilience.WithExponentialBackoff(time.Second, 30*time.Second),
//	)
type ResilientClient[Req, Resp any] interface {
	// Execute performs a request and returns a response or error.
	// The context should be used to control timeouts and cancellation.
	Execute(ctx context.Context, req Req) (Resp, error)
}
