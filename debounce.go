package resilience

import (
	"sync"
	"time"
)

// Debouncer collapses bursts of calls into one trailing invocation. Each Call
// cancels any pending scheduled invocation and reschedules it wait from now;
// the wrapped function only fires after a full wait-length idle window, with
// the argument of the last call. Invocations are fire-and-forget: nothing is
// returned to callers.
type Debouncer[T any] struct {
	fn    func(T)
	wait  time.Duration
	clock Clock

	mu      sync.Mutex
	timer   Timer
	gen     uint64
	lastArg T
}

// NewDebouncer creates a debouncer around fn with the given idle window.
func NewDebouncer[T any](fn func(T), wait time.Duration, opts ...LimiterOption) *Debouncer[T] {
	config := DefaultLimiterConfig()
	for _, opt := range opts {
		opt(config)
	}
	if config.Clock == nil {
		config.Clock = SystemClock{}
	}

	return &Debouncer[T]{
		fn:    fn,
		wait:  wait,
		clock: config.Clock,
	}
}

// Call records arg as the pending argument and restarts the idle window.
// Bumping the generation invalidates a timer that already expired but whose
// callback has not run yet, so Stop returning false cannot double-fire.
func (d *Debouncer[T]) Call(arg T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.lastArg = arg
	d.gen++
	gen := d.gen
	d.timer = d.clock.After(d.wait, func() { d.fire(gen) })
}

// Stop cancels any pending invocation. It reports whether one was pending.
func (d *Debouncer[T]) Stop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer == nil {
		return false
	}
	d.timer.Stop()
	d.timer = nil
	d.gen++
	return true
}

func (d *Debouncer[T]) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		// A Call or Stop superseded this timer after it expired.
		d.mu.Unlock()
		return
	}
	arg := d.lastArg
	d.timer = nil
	d.mu.Unlock()

	// The wrapped function runs outside the lock so it may call back into
	// the debouncer.
	d.fn(arg)
}

// Debounce wraps fn so that only the last invocation within any wait-length
// idle window actually fires, with that call's argument.
//
// Example:
//
//	save := resilience.Debounce(writeDraft, 500*time.Millisecond)
//	save(draft1)
//	save(draft2) // only draft2 is written, 500ms after this call
func Debounce[T any](fn func(T), wait time.Duration, opts ...LimiterOption) func(T) {
	return NewDebouncer(fn, wait, opts...).Call
}
