// Package activity accepts local user-interaction signals, throttles them,
// and republishes a single last-activity notification to the session
// governor. It has no durable side effects of its own.
package activity

import (
	"sync"
	"time"
)

// DefaultThrottle is the minimum gap between accepted signals. Signals
// arriving faster only refresh nothing; one notification per interval is
// enough to keep the idle clock honest.
const DefaultThrottle = 5 * time.Second

// Kind classifies an interaction signal. The set is fixed; anything else is
// not a qualifying signal.
type Kind string

const (
	PointerMove  Kind = "pointer_move"
	PointerPress Kind = "pointer_press"
	KeyPress     Kind = "key_press"
	Touch        Kind = "touch"
	Scroll       Kind = "scroll"
)

// Valid reports whether k is a qualifying signal class.
func (k Kind) Valid() bool {
	switch k {
	case PointerMove, PointerPress, KeyPress, Touch, Scroll:
		return true
	}
	return false
}

// Sink receives accepted activity. Implemented by the governor.
type Sink interface {
	Activity()
}

// Tracker throttles interaction signals. While suppressed (warning showing),
// every signal is rejected: passive mouse movement must not silently dismiss
// a warning the user has been shown.
type Tracker struct {
	throttle   time.Duration
	now        func() time.Time
	suppressed func() bool
	sink       Sink

	mu           sync.Mutex
	lastAccepted time.Time
}

// NewTracker returns a tracker feeding sink. suppressed is consulted per
// signal and may be nil (never suppressed). throttle <= 0 uses the default;
// now may be nil for the wall clock.
func NewTracker(sink Sink, suppressed func() bool, throttle time.Duration, now func() time.Time) *Tracker {
	if throttle <= 0 {
		throttle = DefaultThrottle
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Tracker{
		throttle:   throttle,
		now:        now,
		suppressed: suppressed,
		sink:       sink,
	}
}

// Observe handles one interaction signal and reports whether it was accepted.
// Accepted signals notify the sink exactly once.
func (t *Tracker) Observe(k Kind) bool {
	if !k.Valid() {
		return false
	}
	if t.suppressed != nil && t.suppressed() {
		return false
	}
	now := t.now()

	t.mu.Lock()
	if !t.lastAccepted.IsZero() && now.Sub(t.lastAccepted) < t.throttle {
		t.mu.Unlock()
		return false
	}
	t.lastAccepted = now
	t.mu.Unlock()

	t.sink.Activity()
	return true
}

// LastAccepted returns the time of the most recently accepted signal, zero
// when none has been accepted yet.
func (t *Tracker) LastAccepted() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastAccepted
}
