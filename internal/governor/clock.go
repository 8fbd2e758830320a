package governor

import "time"

// Timer is a cancellable scheduled callback. Stop is idempotent: stopping a
// timer that already fired or was already stopped is a no-op, not an error.
type Timer interface {
	// Stop cancels the timer. Reports whether the call prevented the callback
	// from running.
	Stop() bool
}

// Clock abstracts time so the state machine has no platform dependency.
// Production uses the real clock; tests use FakeClock.
type Clock interface {
	Now() time.Time
	// AfterFunc schedules f to run after d and returns a handle to cancel it.
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }
