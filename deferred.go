package resilience

import (
	"context"
	"sync"
)

// Deferred is an externally settleable result handle. It is created fresh per
// call, settles exactly once, and is garbage after settlement. The timeout
// wrapper uses one to race an operation against its deadline; callers can use
// it directly to adapt callback-style APIs into Operations.
type Deferred[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

// NewDeferred creates an unsettled Deferred.
func NewDeferred[T any]() *Deferred[T] {
	return &Deferred[T]{done: make(chan struct{})}
}

// Resolve settles the Deferred with a value. It reports whether this call won
// the settlement; later Resolve and Reject calls are no-ops.
func (d *Deferred[T]) Resolve(v T) bool {
	won := false
	d.once.Do(func() {
		d.val = v
		won = true
		close(d.done)
	})
	return won
}

// Reject settles the Deferred with an error. It reports whether this call won
// the settlement.
func (d *Deferred[T]) Reject(err error) bool {
	won := false
	d.once.Do(func() {
		d.err = err
		won = true
		close(d.done)
	})
	return won
}

// Done returns a channel that is closed once the Deferred settles.
func (d *Deferred[T]) Done() <-chan struct{} {
	return d.done
}

// Wait blocks until the Deferred settles or ctx is done, whichever happens
// first. A ctx expiry does not settle the Deferred.
func (d *Deferred[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-d.done:
		return d.val, d.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
