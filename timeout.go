package resilience

import (
	"context"
	"time"

	jperrors "github.com/JohnPlummer/jp-go-errors"
)

// Timeout races op against a deadline. It returns the operation's result if
// the operation settles strictly before d elapses, and a timeout error
// (jp-go-errors, detectable with IsTimeout) once the deadline fires. The
// operation is not cancelled when the deadline wins; its eventual completion
// is discarded. Exactly one timer is started per call, and it is stopped when
// the operation wins the race.
//
// Example:
//
//	user, err := resilience.Timeout(ctx, fetchUser, 2*time.Second)
//	if resilience.IsTimeout(err) {
//	    // deadline elapsed before fetchUser settled
//	}
func Timeout[T any](ctx context.Context, op Operation[T], d time.Duration, opts ...TimeoutOption) (T, error) {
	config := DefaultTimeoutConfig()
	for _, opt := range opts {
		opt(config)
	}

	if config.Clock == nil {
		config.Clock = SystemClock{}
	}

	deferred := NewDeferred[T]()

	timer := config.Clock.After(d, func() {
		deferred.Reject(jperrors.NewTimeoutError(config.Message, "timeout", d))
	})

	go func() {
		v, err := op(ctx)
		var won bool
		if err != nil {
			won = deferred.Reject(err)
		} else {
			won = deferred.Resolve(v)
		}
		if won {
			timer.Stop()
		}
	}()

	v, err := deferred.Wait(ctx)
	if err != nil && err == ctx.Err() {
		// Caller cancelled while the race was pending; drop the deadline
		// timer rather than leaving it to fire into a dead Deferred.
		timer.Stop()
	}
	return v, err
}
