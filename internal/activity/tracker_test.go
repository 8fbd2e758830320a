package activity

import (
	"testing"
	"time"
)

type countingSink struct{ n int }

func (s *countingSink) Activity() { s.n++ }

func newTestTracker(suppressed func() bool) (*Tracker, *countingSink, *time.Time) {
	now := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	sink := &countingSink{}
	tr := NewTracker(sink, suppressed, 5*time.Second, func() time.Time { return now })
	return tr, sink, &now
}

func TestTracker_ThrottlesWithinInterval(t *testing.T) {
	tr, sink, now := newTestTracker(nil)

	if !tr.Observe(KeyPress) {
		t.Fatal("first signal should be accepted")
	}
	*now = now.Add(2 * time.Second)
	if tr.Observe(PointerMove) {
		t.Error("signal inside throttle interval should be rejected")
	}
	*now = now.Add(3 * time.Second)
	if !tr.Observe(Scroll) {
		t.Error("signal at the throttle boundary should be accepted")
	}
	if sink.n != 2 {
		t.Errorf("sink notified %d times, want 2", sink.n)
	}
}

func TestTracker_SuppressedDuringWarning(t *testing.T) {
	warning := false
	tr, sink, now := newTestTracker(func() bool { return warning })

	if !tr.Observe(PointerPress) {
		t.Fatal("signal before warning should be accepted")
	}

	warning = true
	*now = now.Add(time.Minute)
	for _, k := range []Kind{PointerMove, PointerPress, KeyPress, Touch, Scroll} {
		if tr.Observe(k) {
			t.Errorf("%s accepted while warning is showing", k)
		}
	}
	if sink.n != 1 {
		t.Errorf("sink notified %d times, want 1", sink.n)
	}

	// Warning dismissed by an explicit extend elsewhere; signals flow again.
	warning = false
	*now = now.Add(time.Minute)
	if !tr.Observe(KeyPress) {
		t.Error("signal after warning cleared should be accepted")
	}
}

func TestTracker_RejectsUnknownSignalClass(t *testing.T) {
	tr, sink, _ := newTestTracker(nil)
	if tr.Observe(Kind("window_focus")) {
		t.Error("unknown signal class should be rejected")
	}
	if sink.n != 0 {
		t.Errorf("sink notified %d times, want 0", sink.n)
	}
}

func TestTracker_LastAccepted(t *testing.T) {
	tr, _, now := newTestTracker(nil)
	if !tr.LastAccepted().IsZero() {
		t.Error("LastAccepted should start zero")
	}
	want := *now
	tr.Observe(Touch)
	if got := tr.LastAccepted(); !got.Equal(want) {
		t.Errorf("LastAccepted = %v, want %v", got, want)
	}
}
