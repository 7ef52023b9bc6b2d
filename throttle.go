package resilience

import (
	"sync"
	"time"
)

// Throttler caps the invocation rate of a function to at most one call per
// wait-length window, firing on the leading edge. The first Call in a window
// invokes the wrapped function synchronously; later calls in the same window
// are dropped. Once the window has elapsed the next Call fires immediately
// and opens a new window.
type Throttler[T any] struct {
	fn    func(T)
	wait  time.Duration
	clock Clock

	mu        sync.Mutex
	lastFired time.Time
	fired     bool
}

// NewThrottler creates a throttler around fn with the given window.
func NewThrottler[T any](fn func(T), wait time.Duration, opts ...LimiterOption) *Throttler[T] {
	config := DefaultLimiterConfig()
	for _, opt := range opts {
		opt(config)
	}
	if config.Clock == nil {
		config.Clock = SystemClock{}
	}

	return &Throttler[T]{
		fn:    fn,
		wait:  wait,
		clock: config.Clock,
	}
}

// Call invokes the wrapped function if the current window allows it, and
// drops the call otherwise.
func (t *Throttler[T]) Call(arg T) {
	t.mu.Lock()
	now := t.clock.Now()
	if t.fired && now.Sub(t.lastFired) < t.wait {
		t.mu.Unlock()
		return
	}
	t.lastFired = now
	t.fired = true
	t.mu.Unlock()

	t.fn(arg)
}

// Throttle wraps fn so that at most one invocation fires per wait-length
// window, on the leading edge.
//
// Example:
//
//	report := resilience.Throttle(sendProgress, time.Second)
//	for chunk := range chunks {
//	    report(chunk.N) // at most one progress update per second
//	}
func Throttle[T any](fn func(T), wait time.Duration, opts ...LimiterOption) func(T) {
	return NewThrottler(fn, wait, opts...).Call
}
