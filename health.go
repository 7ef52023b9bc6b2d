package resilience

import "time"

// HealthStatus represents the health status of a circuit breaker.
// It provides a strongly-typed alternative to map[string]interface{} for health checks.
type HealthStatus struct {
	// Healthy indicates whether the circuit breaker is in a healthy state.
	// True for closed and half-open states, false for open state.
	Healthy bool `json:"healthy"`

	// Status is the string representation of the breaker state
	// ("closed", "half-open", "open").
	Status string `json:"status"`

	// Name is the breaker's name.
	Name string `json:"name"`

	// FailureCount is the current consecutive-failure count.
	FailureCount int `json:"failure_count"`

	// LastFailureTime is the time of the most recent failure, or the zero
	// time if none has been recorded since the last reset.
	LastFailureTime time.Time `json:"last_failure_time"`
}
