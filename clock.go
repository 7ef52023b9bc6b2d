package resilience

import "time"

// Clock abstracts time so that delays and deadlines can be driven by a
// virtual clock in tests. Every timer the library starts goes through a
// Clock; production code uses SystemClock.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After schedules fn to run once d has elapsed and returns a Timer
	// that can cancel the callback before it fires.
	After(d time.Duration, fn func()) Timer
}

// Timer is a cancellable pending callback created by Clock.After.
type Timer interface {
	// Stop cancels the timer. It returns true if the callback was
	// prevented from running, false if it already fired or was stopped.
	Stop() bool
}

// SystemClock is the Clock implementation backed by the system time.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// After schedules fn with time.AfterFunc.
func (SystemClock) After(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
