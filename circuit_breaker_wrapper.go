package resilience

import (
	"context"
	"log/slog"
)

// CircuitBreakerWrapper wraps a ResilientClient with circuit breaker
// functionality. It tracks consecutive failures and opens the circuit once
// the threshold is crossed, preventing requests from reaching a failing
// downstream service. An optional error classifier exempts transient errors
// from the failure counter.
type CircuitBreakerWrapper[Req, Resp any] struct {
	client     ResilientClient[Req, Resp]
	cb         *CircuitBreaker[Resp]
	logger     *slog.Logger
	classifier CircuitBreakerErrorClassifier
}

// NewCircuitBreakerWrapper creates a new circuit breaker wrapper around a
// ResilientClient. The name identifies the breaker in rejection errors and
// logs.
//
// Example:
//
//	wrapper := resilience.NewCircuitBreakerWrapper(
//	    "payments", client,
//	    resilience.WithThreshold(5),
//	    resilience.WithResetTimeout(60*time.Second),
//	)
func NewCircuitBreakerWrapper[Req, Resp any](
	name string,
	client ResilientClient[Req, Resp],
	opts ...CircuitBreakerOption,
) *CircuitBreakerWrapper[Req, Resp] {
	cb := NewCircuitBreaker[Resp](name, opts...)

	return &CircuitBreakerWrapper[Req, Resp]{
		client:     client,
		cb:         cb,
		logger:     cb.logger,
		classifier: DefaultCircuitBreakerErrorClassifier(),
	}
}

// WithClassifier sets the classifier that decides which errors count toward
// the failure threshold, and returns the wrapper for chaining. Errors the
// classifier exempts are returned to the caller but reported to the breaker
// as successes so they do not open the circuit.
func (w *CircuitBreakerWrapper[Req, Resp]) WithClassifier(
	classifier CircuitBreakerErrorClassifier,
) *CircuitBreakerWrapper[Req, Resp] {
	w.classifier = classifier
	return w
}

// Execute executes the request through the circuit breaker. If the circuit is
// open, requests are rejected immediately without calling the underlying
// client; use IsCircuitOpen to distinguish "never attempted" from "attempted
// and failed".
func (w *CircuitBreakerWrapper[Req, Resp]) Execute(ctx context.Context, req Req) (Resp, error) {
	var passthrough error

	resp, err := w.cb.Execute(ctx, func(ctx context.Context) (Resp, error) {
		resp, err := w.client.Execute(ctx, req)
		if err != nil && !w.classifier.ShouldTripCircuit(err) {
			// Exempt errors are carried around the breaker so they
			// reach the caller without feeding the counter.
			passthrough = err
			return resp, nil
		}
		return resp, err
	})
	if err != nil {
		if IsCircuitOpen(err) {
			w.logger.Warn("circuit breaker rejected request",
				"name", w.cb.Name(),
				"error", err)
		} else {
			w.logger.Debug("request failed through circuit breaker",
				"name", w.cb.Name(),
				"error", err)
		}
		return resp, err
	}
	if passthrough != nil {
		return resp, passthrough
	}

	return resp, nil
}

// State returns the current state of the circuit breaker.
func (w *CircuitBreakerWrapper[Req, Resp]) State() CircuitBreakerState {
	return w.cb.GetState().State
}

// Snapshot returns a read-only view of the breaker's state and counters.
func (w *CircuitBreakerWrapper[Req, Resp]) Snapshot() CircuitBreakerSnapshot {
	return w.cb.GetState()
}

// Reset forces the underlying breaker closed, clearing its counters.
func (w *CircuitBreakerWrapper[Req, Resp]) Reset() {
	w.cb.Reset()
}

// GetHealth returns the health status of the circuit breaker.
func (w *CircuitBreakerWrapper[Req, Resp]) GetHealth() HealthStatus {
	snapshot := w.cb.GetState()

	var healthy bool
	switch snapshot.State {
	case StateClosed:
		healthy = true
	case StateHalfOpen:
		healthy = true // Degraded but operational
	case StateOpen:
		healthy = false
	}

	return HealthStatus{
		Healthy:         healthy,
		Status:          snapshot.State.String(),
		Name:            w.cb.Name(),
		FailureCount:    snapshot.FailureCount,
		LastFailureTime: snapshot.LastFailureTime,
	}
}

// CombineRetryAndCircuitBreaker creates a wrapper with both retry and circuit
// breaker functionality. The circuit breaker is applied first (inner layer)
// to protect the underlying service, then retry logic is applied (outer
// layer) to handle transient failures. This layering keeps breaker state
// accurate while still smoothing over transient errors.
func CombineRetryAndCircuitBreaker[Req, Resp any](
	name string,
	client ResilientClient[Req, Resp],
	retryOpts []RetryOption,
	cbOpts []CircuitBreakerOption,
	logger *slog.Logger,
) ResilientClient[Req, Resp] {
	if logger != nil {
		retryOpts = append(retryOpts, WithRetryLogger(logger))
		cbOpts = append(cbOpts, WithCircuitBreakerLogger(logger))
	}

	// First wrap with circuit breaker (inner layer)
	withCB := NewCircuitBreakerWrapper(name, client, cbOpts...)

	// Then wrap with retry (outer layer)
	return NewRetryWrapper[Req, Resp](withCB, retryOpts...)
}
