package governor

import (
	"testing"
	"time"

	"rights-console-portal/agent/internal/sessionpolicy"
)

var testPolicy = sessionpolicy.Policy{
	IdleTimeout:      10 * time.Minute,
	WarningThreshold: 2 * time.Minute,
	AbsoluteLifetime: time.Hour,
	Label:            "standard",
}

func activeState(startedAt time.Time) State {
	return State{
		Phase:            PhaseActive,
		Policy:           testPolicy,
		SessionStartedAt: startedAt,
		LastActivityAt:   startedAt,
	}
}

func hasEffect[T Effect](effects []Effect) (T, bool) {
	for _, e := range effects {
		if v, ok := e.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func TestReduce_StartedArmsBothTimers(t *testing.T) {
	start := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	s := State{Policy: testPolicy, SessionStartedAt: start}

	next, effects := Reduce(s, Started{Now: start})

	if next.Phase != PhaseActive {
		t.Fatalf("phase = %v, want active", next.Phase)
	}
	w, ok := hasEffect[ArmWarning](effects)
	if !ok {
		t.Fatal("missing ArmWarning effect")
	}
	if want := 8 * time.Minute; w.After != want {
		t.Errorf("warning armed after %v, want idle-warning gap %v", w.After, want)
	}
	a, ok := hasEffect[ArmAbsolute](effects)
	if !ok {
		t.Fatal("missing ArmAbsolute effect")
	}
	if a.After != time.Hour {
		t.Errorf("absolute armed after %v, want %v", a.After, time.Hour)
	}
}

func TestReduce_StartedPastCeilingExpiresImmediately(t *testing.T) {
	start := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	s := State{Policy: testPolicy, SessionStartedAt: start}

	// Restored two hours later, past the one-hour ceiling.
	next, effects := Reduce(s, Started{Now: start.Add(2 * time.Hour)})

	if next.Phase != PhaseExpired || next.Reason != ReasonAbsolute {
		t.Fatalf("state = %v/%v, want expired/absolute", next.Phase, next.Reason)
	}
	if _, ok := hasEffect[ArmWarning](effects); ok {
		t.Error("no timer may be armed when restoring past the ceiling")
	}
	lo, ok := hasEffect[RunLogout](effects)
	if !ok {
		t.Fatal("missing RunLogout effect")
	}
	if lo.Reason != ReasonAbsolute || !lo.Rebroadcast {
		t.Errorf("logout = %+v, want absolute with rebroadcast", lo)
	}
}

func TestReduce_IdleExpiryTiming(t *testing.T) {
	// With idle timeout T and warning threshold W, the warning fires at T-W
	// and idle expiry at exactly T, via W/1s countdown ticks.
	start := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	s := activeState(start)

	warnAt := start.Add(testPolicy.IdleTimeout - testPolicy.WarningThreshold)
	s, effects := Reduce(s, WarningElapsed{Now: warnAt})
	if s.Phase != PhaseWarning {
		t.Fatalf("phase = %v, want warning", s.Phase)
	}
	if want := 120; s.SecondsRemaining != want {
		t.Fatalf("SecondsRemaining = %d, want %d", s.SecondsRemaining, want)
	}
	if _, ok := hasEffect[StartCountdown](effects); !ok {
		t.Fatal("entering warning must start the countdown")
	}
	audit, ok := hasEffect[RecordAudit](effects)
	if !ok || audit.Action != ActionWarningShown {
		t.Errorf("entering warning must audit %q, got %+v ok=%v", ActionWarningShown, audit, ok)
	}

	// Tick the full threshold down.
	now := warnAt
	for i := 0; i < 119; i++ {
		now = now.Add(time.Second)
		var fx []Effect
		s, fx = Reduce(s, CountdownTick{Now: now})
		if s.Phase != PhaseWarning {
			t.Fatalf("tick %d: phase = %v, want warning", i, s.Phase)
		}
		if _, ok := hasEffect[StartCountdown](fx); !ok {
			t.Fatalf("tick %d: countdown must re-arm", i)
		}
	}
	now = now.Add(time.Second)
	s, effects = Reduce(s, CountdownTick{Now: now})
	if s.Phase != PhaseExpired || s.Reason != ReasonIdle {
		t.Fatalf("state = %v/%v, want expired/idle", s.Phase, s.Reason)
	}
	if got := now.Sub(start); got != testPolicy.IdleTimeout {
		t.Errorf("expired after %v of inactivity, want exactly %v", got, testPolicy.IdleTimeout)
	}
	if lo, ok := hasEffect[RunLogout](effects); !ok || lo.Reason != ReasonIdle {
		t.Errorf("logout effect = %+v ok=%v, want idle", lo, ok)
	}
}

func TestReduce_AbsoluteCeilingDominates(t *testing.T) {
	// Continuous activity must not outlive the absolute ceiling.
	start := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	s := activeState(start)

	now := start
	for i := 0; i < 10; i++ {
		now = now.Add(5 * time.Minute)
		s, _ = Reduce(s, ActivityObserved{Now: now})
		if s.Phase == PhaseExpired {
			t.Fatalf("expired prematurely at %v", now)
		}
	}

	s, effects := Reduce(s, AbsoluteElapsed{Now: start.Add(time.Hour)})
	if s.Phase != PhaseExpired || s.Reason != ReasonAbsolute {
		t.Fatalf("state = %v/%v, want expired/absolute", s.Phase, s.Reason)
	}
	if _, ok := hasEffect[StopAllTimers](effects); !ok {
		t.Error("absolute expiry must stop all timers")
	}
}

func TestReduce_AbsoluteFiresDuringWarning(t *testing.T) {
	start := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	s := activeState(start)
	s, _ = Reduce(s, WarningElapsed{Now: start.Add(8 * time.Minute)})

	s, _ = Reduce(s, AbsoluteElapsed{Now: start.Add(time.Hour)})
	if s.Phase != PhaseExpired || s.Reason != ReasonAbsolute {
		t.Fatalf("state = %v/%v, want expired/absolute", s.Phase, s.Reason)
	}
}

func TestReduce_ExtendResetsIdleClockOnly(t *testing.T) {
	start := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	s := activeState(start)
	s, _ = Reduce(s, WarningElapsed{Now: start.Add(8 * time.Minute)})

	extendAt := start.Add(9 * time.Minute)
	s, effects := Reduce(s, ExtendRequested{Now: extendAt})

	if s.Phase != PhaseActive {
		t.Fatalf("phase = %v, want active", s.Phase)
	}
	if !s.SessionStartedAt.Equal(start) {
		t.Errorf("SessionStartedAt moved to %v; extend must not touch the absolute ceiling", s.SessionStartedAt)
	}
	if _, ok := hasEffect[StopCountdown](effects); !ok {
		t.Error("extend from warning must stop the countdown")
	}
	w, ok := hasEffect[ArmWarning](effects)
	if !ok {
		t.Fatal("extend must re-arm the warning timer")
	}
	if want := testPolicy.IdleTimeout - testPolicy.WarningThreshold; w.After != want {
		t.Errorf("warning re-armed after %v, want %v from the extend instant", w.After, want)
	}
	if _, ok := hasEffect[PublishExtend](effects); !ok {
		t.Error("local extend must broadcast to siblings")
	}
	if _, ok := hasEffect[ArmAbsolute](effects); ok {
		t.Error("extend must not re-arm the absolute timer")
	}
}

func TestReduce_RemoteExtendDoesNotRebroadcast(t *testing.T) {
	start := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	s := activeState(start)
	s, _ = Reduce(s, WarningElapsed{Now: start.Add(8 * time.Minute)})

	s, effects := Reduce(s, ExtendRequested{Now: start.Add(9 * time.Minute), Remote: true})
	if s.Phase != PhaseActive {
		t.Fatalf("phase = %v, want active", s.Phase)
	}
	if _, ok := hasEffect[PublishExtend](effects); ok {
		t.Error("a sibling's extend must not be echoed back")
	}
}

func TestReduce_RemoteActivityDuringWarningReturnsToActive(t *testing.T) {
	// A sibling where the user is actively working keeps publishing activity.
	// This instance's warning must clear and its idle clock re-arm, so the
	// instances never expire staggered while one of them is in use.
	start := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	s := activeState(start)
	s, _ = Reduce(s, WarningElapsed{Now: start.Add(8 * time.Minute)})

	at := start.Add(8*time.Minute + 30*time.Second)
	next, effects := Reduce(s, ActivityObserved{Now: at, Remote: true})

	if next.Phase != PhaseActive {
		t.Fatalf("phase = %v, want active", next.Phase)
	}
	if next.SecondsRemaining != 0 {
		t.Errorf("SecondsRemaining = %d, want 0", next.SecondsRemaining)
	}
	if !next.LastActivityAt.Equal(at) {
		t.Errorf("LastActivityAt = %v, want %v", next.LastActivityAt, at)
	}
	if _, ok := hasEffect[StopCountdown](effects); !ok {
		t.Error("dismissing the warning must stop the countdown")
	}
	w, ok := hasEffect[ArmWarning](effects)
	if !ok {
		t.Fatal("dismissing the warning must re-arm the warning timer")
	}
	if want := testPolicy.IdleTimeout - testPolicy.WarningThreshold; w.After != want {
		t.Errorf("warning re-armed after %v, want %v", w.After, want)
	}
	if _, ok := hasEffect[PublishActivity](effects); ok {
		t.Error("sibling activity must not be echoed back")
	}
}

func TestReduce_LocalActivityDuringWarningBroadcasts(t *testing.T) {
	start := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	s := activeState(start)
	s, _ = Reduce(s, WarningElapsed{Now: start.Add(8 * time.Minute)})

	at := start.Add(8*time.Minute + 30*time.Second)
	next, effects := Reduce(s, ActivityObserved{Now: at})

	if next.Phase != PhaseActive {
		t.Fatalf("phase = %v, want active", next.Phase)
	}
	if p, ok := hasEffect[PublishActivity](effects); !ok || !p.At.Equal(at) {
		t.Errorf("publish = %+v ok=%v, want activity at %v", p, ok, at)
	}
}

func TestReduce_LocalActivityBroadcastsAndRearms(t *testing.T) {
	start := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	s := activeState(start)

	at := start.Add(time.Minute)
	next, effects := Reduce(s, ActivityObserved{Now: at})

	if next.Phase != PhaseActive {
		t.Fatalf("phase = %v, want active", next.Phase)
	}
	if _, ok := hasEffect[ArmWarning](effects); !ok {
		t.Error("activity must re-arm the warning timer")
	}
	if p, ok := hasEffect[PublishActivity](effects); !ok || !p.At.Equal(at) {
		t.Errorf("publish = %+v ok=%v, want activity at %v", p, ok, at)
	}
	if _, ok := hasEffect[RecordAudit](effects); ok {
		t.Error("routine activity must not flood the audit trail")
	}
}

func TestReduce_RemoteActivityRearmsWithoutEcho(t *testing.T) {
	start := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	s := activeState(start)

	_, effects := Reduce(s, ActivityObserved{Now: start.Add(time.Minute), Remote: true})
	if _, ok := hasEffect[ArmWarning](effects); !ok {
		t.Error("sibling activity must re-arm the local warning timer")
	}
	if _, ok := hasEffect[PublishActivity](effects); ok {
		t.Error("sibling activity must not be echoed back")
	}
}

func TestReduce_RemoteLogoutSuppressesRebroadcast(t *testing.T) {
	start := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	s := activeState(start)

	next, effects := Reduce(s, RemoteLogout{Now: start.Add(time.Minute), Reason: ReasonManual})
	if next.Phase != PhaseExpired || next.Reason != ReasonManual {
		t.Fatalf("state = %v/%v, want expired/manual", next.Phase, next.Reason)
	}
	lo, ok := hasEffect[RunLogout](effects)
	if !ok {
		t.Fatal("missing RunLogout effect")
	}
	if lo.Rebroadcast {
		t.Error("remote logout must not be re-broadcast")
	}
}

func TestReduce_ExpiredIsTerminal(t *testing.T) {
	start := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	s := activeState(start)
	s, _ = Reduce(s, SignOutRequested{Now: start.Add(time.Minute)})
	if s.Phase != PhaseExpired || s.Reason != ReasonManual {
		t.Fatalf("state = %v/%v, want expired/manual", s.Phase, s.Reason)
	}

	events := []Event{
		ActivityObserved{Now: start.Add(2 * time.Minute)},
		ExtendRequested{Now: start.Add(2 * time.Minute)},
		WarningElapsed{Now: start.Add(2 * time.Minute)},
		CountdownTick{Now: start.Add(2 * time.Minute)},
		AbsoluteElapsed{Now: start.Add(2 * time.Minute)},
		Started{Now: start.Add(2 * time.Minute)},
		RemoteLogout{Now: start.Add(2 * time.Minute), Reason: ReasonIdle},
	}
	for _, ev := range events {
		next, effects := Reduce(s, ev)
		if next != s {
			t.Errorf("%T changed terminal state: %+v", ev, next)
		}
		if len(effects) != 0 {
			t.Errorf("%T produced effects in terminal state: %+v", ev, effects)
		}
	}
}

func TestReduce_PolicyChangeKeepsAbsoluteClock(t *testing.T) {
	start := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	s := activeState(start)

	elevated := sessionpolicy.Policy{
		IdleTimeout:      5 * time.Minute,
		WarningThreshold: time.Minute,
		AbsoluteLifetime: 30 * time.Minute,
		Label:            "elevated",
	}
	now := start.Add(10 * time.Minute)
	next, effects := Reduce(s, PolicyChanged{Now: now, Policy: elevated})

	if next.Policy.Label != "elevated" {
		t.Fatalf("policy = %q, want elevated", next.Policy.Label)
	}
	if !next.SessionStartedAt.Equal(start) {
		t.Error("policy change must not reset the accumulated absolute clock")
	}
	a, ok := hasEffect[ArmAbsolute](effects)
	if !ok {
		t.Fatal("policy change must re-arm the absolute timer")
	}
	if want := 20 * time.Minute; a.After != want {
		t.Errorf("absolute re-armed after %v, want remaining %v of the new lifetime", a.After, want)
	}
	w, ok := hasEffect[ArmWarning](effects)
	if !ok || w.After != 4*time.Minute {
		t.Errorf("warning re-armed after %v ok=%v, want new warmup 4m", w.After, ok)
	}
}

func TestReduce_PolicyChangePastNewCeilingExpires(t *testing.T) {
	start := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	s := activeState(start)

	short := sessionpolicy.Policy{
		IdleTimeout:      5 * time.Minute,
		WarningThreshold: time.Minute,
		AbsoluteLifetime: 5 * time.Minute,
		Label:            "elevated",
	}
	next, effects := Reduce(s, PolicyChanged{Now: start.Add(10 * time.Minute), Policy: short})
	if next.Phase != PhaseExpired || next.Reason != ReasonAbsolute {
		t.Fatalf("state = %v/%v, want expired/absolute", next.Phase, next.Reason)
	}
	if _, ok := hasEffect[RunLogout](effects); !ok {
		t.Error("missing RunLogout effect")
	}
}
