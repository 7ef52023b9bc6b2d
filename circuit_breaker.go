package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	jperrors "github.com/JohnPlummer/jp-go-errors"
)

// CircuitBreaker is a named per-operation failure guard. It runs operations
// under a per-call timeout, counts consecutive failures, and once Threshold
// failures accumulate it opens and rejects calls without invoking the
// operation. After ResetTimeout it lets exactly one probe call through; the
// probe's outcome decides whether the circuit closes again or reopens.
//
// The half-open transition is evaluated lazily at call time as a time
// comparison, not by a background timer, so an idle open breaker holds no
// timer resource.
type CircuitBreaker[T any] struct {
	name   string
	config *CircuitBreakerConfig
	logger *slog.Logger
	clock  Clock

	mu              sync.Mutex
	state           CircuitBreakerState
	failureCount    int
	lastFailureTime time.Time
	probing         bool
}

// NewCircuitBreaker creates a circuit breaker with the given name. The name
// identifies the breaker in open-rejection errors and state-change logs.
//
// Example:
//
//	cb := resilience.NewCircuitBreaker[*Profile]("profile-service",
//	    resilience.WithThreshold(3),
//	    resilience.WithTimeout(5*time.Second),
//	    resilience.WithResetTimeout(30*time.Second),
//	)
func NewCircuitBreaker[T any](name string, opts ...CircuitBreakerOption) *CircuitBreaker[T] {
	config := DefaultCircuitBreakerConfig()
	for _, opt := range opts {
		opt(config)
	}

	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Clock == nil {
		config.Clock = SystemClock{}
	}
	if config.Threshold <= 0 {
		config.Threshold = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 60 * time.Second
	}

	return &CircuitBreaker[T]{
		name:   name,
		config: config,
		logger: config.Logger,
		clock:  config.Clock,
		state:  StateClosed,
	}
}

// Name returns the breaker's name.
func (b *CircuitBreaker[T]) Name() string {
	return b.name
}

// Execute runs op under the breaker. When the circuit is open and the reset
// deadline has not passed, it rejects immediately with a circuit-open error
// (detectable with IsCircuitOpen) and op is not invoked. Otherwise op runs
// under the configured per-call timeout; a timeout counts as a failure like
// any other.
func (b *CircuitBreaker[T]) Execute(ctx context.Context, op Operation[T]) (T, error) {
	var zero T

	probe, err := b.acquire()
	if err != nil {
		return zero, err
	}

	v, err := b.run(ctx, op)
	b.settle(err == nil, probe)
	if err != nil {
		return zero, err
	}
	return v, nil
}

// run invokes op, guarded by the per-call timeout when one is configured.
func (b *CircuitBreaker[T]) run(ctx context.Context, op Operation[T]) (T, error) {
	if b.config.Timeout <= 0 {
		return op(ctx)
	}
	return Timeout(ctx, op, b.config.Timeout,
		WithTimeoutClock(b.clock),
		WithTimeoutMessage(fmt.Sprintf("Circuit breaker %s call timed out", b.name)),
	)
}

// acquire decides whether the call may proceed. It returns probe=true when
// this call is the half-open probe, or a rejection error when the circuit is
// open or a probe is already in flight.
func (b *CircuitBreaker[T]) acquire() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return false, nil

	case StateOpen:
		if b.clock.Now().Sub(b.lastFailureTime) >= b.config.ResetTimeout {
			b.transition(StateHalfOpen)
			b.probing = true
			return true, nil
		}
		b.logger.Warn("circuit breaker is open, call rejected",
			"name", b.name,
			"failure_count", b.failureCount)
		return false, jperrors.NewCircuitBreakerError(
			fmt.Sprintf("Circuit breaker %s is open", b.name),
			b.name,
			"open",
			jperrors.WithCause(jperrors.ErrCircuitOpen),
		)

	default: // StateHalfOpen: a probe is already in flight.
		b.logger.Debug("circuit breaker half-open, probe in flight",
			"name", b.name)
		return false, jperrors.NewCircuitBreakerError(
			fmt.Sprintf("Circuit breaker %s is half-open, probe in flight", b.name),
			b.name,
			"half-open",
			jperrors.WithCause(ErrProbeInFlight),
		)
	}
}

// settle applies the state transition for a completed call. Each call fully
// determines and applies its transition under the lock, so concurrent callers
// always observe a consistent snapshot.
func (b *CircuitBreaker[T]) settle(success bool, probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe {
		b.probing = false
	}

	if success {
		b.failureCount = 0
		if b.state != StateClosed {
			b.transition(StateClosed)
		}
		return
	}

	b.failureCount++
	b.lastFailureTime = b.clock.Now()

	switch {
	case probe:
		b.transition(StateOpen)
	case b.state == StateClosed && b.failureCount >= b.config.Threshold:
		b.transition(StateOpen)
	}
}

// transition moves the breaker to a new state. Callers must hold b.mu.
func (b *CircuitBreaker[T]) transition(to CircuitBreakerState) {
	from := b.state
	b.state = to

	b.logger.Warn("circuit breaker state changed",
		"name", b.name,
		"from", from.String(),
		"to", to.String())

	if b.config.OnStateChange != nil {
		b.config.OnStateChange(b.name, from, to)
	}
}

// GetState returns a read-only snapshot of the breaker. It has no side
// effects; in particular it does not perform the lazy half-open check.
func (b *CircuitBreaker[T]) GetState() CircuitBreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return CircuitBreakerSnapshot{
		State:           b.state,
		FailureCount:    b.failureCount,
		LastFailureTime: b.lastFailureTime,
	}
}

// Reset unconditionally forces the breaker closed with a zero failure count
// and no recorded failure time, regardless of current state. It is an escape
// hatch for operators and tests.
func (b *CircuitBreaker[T]) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateClosed {
		b.transition(StateClosed)
	}
	b.failureCount = 0
	b.lastFailureTime = time.Time{}
	b.probing = false
}

// CircuitBreakerRegistry owns named breakers for the life of the process.
// The first Execute-path access to a name creates its breaker; later accesses
// reuse it. The registry is an explicit owned map rather than package-level
// state, so tests construct isolated registries without cross-test leakage.
type CircuitBreakerRegistry[T any] struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker[T]
	defaults []CircuitBreakerOption
}

// NewCircuitBreakerRegistry creates an empty registry. The given options are
// applied to every breaker the registry creates, before any per-name options.
func NewCircuitBreakerRegistry[T any](defaults ...CircuitBreakerOption) *CircuitBreakerRegistry[T] {
	return &CircuitBreakerRegistry[T]{
		breakers: make(map[string]*CircuitBreaker[T]),
		defaults: defaults,
	}
}

// Get returns the breaker for name, creating it on first use. Options are
// only applied at creation; an existing breaker is returned as-is.
func (r *CircuitBreakerRegistry[T]) Get(name string, opts ...CircuitBreakerOption) *CircuitBreaker[T] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}

	combined := make([]CircuitBreakerOption, 0, len(r.defaults)+len(opts))
	combined = append(combined, r.defaults...)
	combined = append(combined, opts...)

	b := NewCircuitBreaker[T](name, combined...)
	r.breakers[name] = b
	return b
}

// Names returns the names of all breakers the registry has created.
func (r *CircuitBreakerRegistry[T]) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	return names
}

// ResetAll resets every breaker in the registry.
func (r *CircuitBreakerRegistry[T]) ResetAll() {
	r.mu.Lock()
	breakers := make([]*CircuitBreaker[T], 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	for _, b := range breakers {
		b.Reset()
	}
}
