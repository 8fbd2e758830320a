package governor

import (
	"context"
	"sync"
	"testing"
	"time"

	"rights-console-portal/agent/internal/bus"
	"rights-console-portal/agent/internal/sessionpolicy"
	"rights-console-portal/agent/internal/statestore"
)

// countingTransport wraps a Transport and counts publishes, so tests can
// assert echo suppression.
type countingTransport struct {
	bus.Transport
	mu           sync.Mutex
	publications []bus.Message
}

func (c *countingTransport) Publish(ctx context.Context, m bus.Message) error {
	c.mu.Lock()
	c.publications = append(c.publications, m)
	c.mu.Unlock()
	return c.Transport.Publish(ctx, m)
}

func (c *countingTransport) publishCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.publications)
}

// fakeLogout records executions and, like the real executor, broadcasts the
// logout to siblings when rebroadcast is requested.
type fakeLogout struct {
	transport bus.Transport
	mu        sync.Mutex
	calls     []Reason
}

func (f *fakeLogout) Execute(ctx context.Context, reason Reason, rebroadcast bool) {
	f.mu.Lock()
	f.calls = append(f.calls, reason)
	f.mu.Unlock()
	if rebroadcast && f.transport != nil {
		_ = f.transport.Publish(ctx, bus.Message{Kind: bus.KindLogout, Reason: string(reason)})
	}
}

func (f *fakeLogout) reasons() []Reason {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Reason(nil), f.calls...)
}

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (r *recordingAudit) RecordSessionEvent(_ context.Context, action, _ string) {
	r.mu.Lock()
	r.actions = append(r.actions, action)
	r.mu.Unlock()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func shortPolicy() sessionpolicy.Policy {
	return sessionpolicy.Policy{
		IdleTimeout:      10 * time.Second,
		WarningThreshold: 3 * time.Second,
		AbsoluteLifetime: time.Hour,
		Label:            "standard",
	}
}

func startGovernor(t *testing.T, opts Options) (*Governor, context.CancelFunc) {
	t.Helper()
	g, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = g.Run(ctx) }()
	waitFor(t, "governor start", func() bool { return !g.Snapshot().LastActivityAt.IsZero() || g.Snapshot().Phase == PhaseExpired })
	return g, cancel
}

func TestGovernor_IdleExpiryThroughTimers(t *testing.T) {
	clock := NewFakeClock(time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC))
	logout := &fakeLogout{}
	audit := &recordingAudit{}

	g, cancel := startGovernor(t, Options{
		Clock:  clock,
		Store:  statestore.NewMemoryStore(),
		Logout: logout,
		Audit:  audit,
		Policy: shortPolicy(),
	})
	defer cancel()

	// Warning fires after idle - warning threshold of inactivity.
	clock.Advance(7 * time.Second)
	waitFor(t, "warning phase", func() bool { return g.Snapshot().Phase == PhaseWarning })
	if got := g.Snapshot().SecondsRemaining; got != 3 {
		t.Errorf("SecondsRemaining = %d, want 3", got)
	}

	// Countdown runs at 1 Hz to zero, then idle logout.
	for i := 0; i < 3; i++ {
		before := g.Snapshot().SecondsRemaining
		clock.Advance(time.Second)
		waitFor(t, "countdown progress", func() bool {
			s := g.Snapshot()
			return s.Phase == PhaseExpired || s.SecondsRemaining < before
		})
	}
	waitFor(t, "idle expiry", func() bool { return g.Snapshot().Phase == PhaseExpired })
	if got := g.Snapshot().Reason; got != ReasonIdle {
		t.Errorf("reason = %q, want idle", got)
	}
	waitFor(t, "logout execution", func() bool { return len(logout.reasons()) == 1 })
	if rs := logout.reasons(); rs[0] != ReasonIdle {
		t.Errorf("logout reason = %q, want idle", rs[0])
	}
}

func TestGovernor_ActivityDefersWarning(t *testing.T) {
	clock := NewFakeClock(time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC))
	g, cancel := startGovernor(t, Options{
		Clock:  clock,
		Store:  statestore.NewMemoryStore(),
		Logout: &fakeLogout{},
		Policy: shortPolicy(),
	})
	defer cancel()

	clock.Advance(5 * time.Second)
	g.Activity()
	waitFor(t, "activity processed", func() bool {
		return g.Snapshot().LastActivityAt.Equal(clock.Now())
	})

	// The original warning instant passes without a warning.
	clock.Advance(4 * time.Second)
	if got := g.Snapshot().Phase; got != PhaseActive {
		t.Fatalf("phase = %v after deferred activity, want active", got)
	}

	// The re-armed timer fires 7s after the activity.
	clock.Advance(3 * time.Second)
	waitFor(t, "warning phase", func() bool { return g.Snapshot().Phase == PhaseWarning })
}

func TestGovernor_ExtendClearsWarning(t *testing.T) {
	clock := NewFakeClock(time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC))
	g, cancel := startGovernor(t, Options{
		Clock:  clock,
		Store:  statestore.NewMemoryStore(),
		Logout: &fakeLogout{},
		Policy: shortPolicy(),
	})
	defer cancel()

	start := g.Snapshot().SessionStartedAt
	clock.Advance(7 * time.Second)
	waitFor(t, "warning phase", func() bool { return g.Snapshot().Phase == PhaseWarning })
	if !g.InWarning() {
		t.Error("InWarning() = false in warning phase")
	}

	g.Extend()
	waitFor(t, "back to active", func() bool { return g.Snapshot().Phase == PhaseActive })
	if got := g.Snapshot().SessionStartedAt; !got.Equal(start) {
		t.Errorf("SessionStartedAt = %v, want unchanged %v", got, start)
	}
}

func TestGovernor_CrossInstanceLogoutPropagation(t *testing.T) {
	hub := bus.NewHub()
	store := statestore.NewMemoryStore()

	transportA := &countingTransport{Transport: hub.Endpoint()}
	transportB := &countingTransport{Transport: hub.Endpoint()}
	logoutA := &fakeLogout{transport: transportA}
	logoutB := &fakeLogout{transport: transportB}

	policy := sessionpolicy.Policy{
		IdleTimeout:      time.Hour,
		WarningThreshold: time.Minute,
		AbsoluteLifetime: 24 * time.Hour,
		Label:            "standard",
	}

	a, cancelA := startGovernor(t, Options{Transport: transportA, Store: store, Logout: logoutA, Policy: policy})
	defer cancelA()
	b, cancelB := startGovernor(t, Options{Transport: transportB, Store: store, Logout: logoutB, Policy: policy})
	defer cancelB()

	a.SignOut()

	waitFor(t, "instance B expiry", func() bool { return b.Snapshot().Phase == PhaseExpired })
	if got := b.Snapshot().Reason; got != ReasonManual {
		t.Errorf("B reason = %q, want manual", got)
	}
	waitFor(t, "B local cleanup", func() bool { return len(logoutB.reasons()) == 1 })

	// B must not echo the logout: its broadcast count stays zero.
	if got := transportB.publishCount(); got != 0 {
		t.Errorf("B publish count = %d, want 0 (no re-broadcast)", got)
	}
	if got := transportA.publishCount(); got == 0 {
		t.Error("A should have broadcast its logout")
	}
}

func TestGovernor_GraceWindowArmsNothing(t *testing.T) {
	clock := NewFakeClock(time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC))
	store := statestore.NewMemoryStore()
	ctx := context.Background()
	if err := store.Put(ctx, statestore.KeyPostAuthGrace, clock.Now().Format(time.RFC3339Nano)); err != nil {
		t.Fatalf("Put grace marker: %v", err)
	}

	logout := &fakeLogout{}
	g, err := New(Options{
		Clock:       clock,
		Store:       store,
		Logout:      logout,
		Policy:      shortPolicy(),
		GraceWindow: 30 * time.Second,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = g.Run(runCtx) }()
	time.Sleep(20 * time.Millisecond) // let Run register the grace timer

	// Well past the whole idle timeout, still inside grace: nothing fires.
	clock.Advance(15 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if got := g.Snapshot().Phase; got == PhaseWarning || got == PhaseExpired {
		t.Fatalf("phase = %v during grace, want no monitoring", got)
	}
	if len(logout.reasons()) != 0 {
		t.Fatal("logout must not run during grace")
	}

	// Grace elapses: monitoring begins and the marker is consumed.
	clock.Advance(15 * time.Second)
	waitFor(t, "monitoring start", func() bool { return !g.Snapshot().LastActivityAt.IsZero() })
	waitFor(t, "grace marker cleared", func() bool {
		_, ok, _ := store.Get(ctx, statestore.KeyPostAuthGrace)
		return !ok
	})
}

func TestGovernor_RestoredPastCeilingExpiresWithoutActive(t *testing.T) {
	clock := NewFakeClock(time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC))
	store := statestore.NewMemoryStore()
	ctx := context.Background()
	// Session began two hours before this instance came up; ceiling is 1h.
	startedAt := clock.Now().Add(-2 * time.Hour)
	if err := store.Put(ctx, statestore.KeySessionStartedAt, startedAt.Format(time.RFC3339Nano)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	policy := shortPolicy() // AbsoluteLifetime: 1h
	logout := &fakeLogout{}
	g, err := New(Options{Clock: clock, Store: store, Logout: logout, Policy: policy})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = g.Run(runCtx) }()

	waitFor(t, "immediate absolute expiry", func() bool { return g.Snapshot().Phase == PhaseExpired })
	if got := g.Snapshot().Reason; got != ReasonAbsolute {
		t.Errorf("reason = %q, want absolute", got)
	}
	waitFor(t, "logout execution", func() bool { return len(logout.reasons()) == 1 })
}

func TestGovernor_WarningAuditEmitted(t *testing.T) {
	clock := NewFakeClock(time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC))
	audit := &recordingAudit{}
	g, cancel := startGovernor(t, Options{
		Clock:  clock,
		Store:  statestore.NewMemoryStore(),
		Logout: &fakeLogout{},
		Audit:  audit,
		Policy: shortPolicy(),
	})
	defer cancel()

	clock.Advance(7 * time.Second)
	waitFor(t, "warning phase", func() bool { return g.Snapshot().Phase == PhaseWarning })
	waitFor(t, "warning audit", func() bool {
		audit.mu.Lock()
		defer audit.mu.Unlock()
		for _, a := range audit.actions {
			if a == ActionWarningShown {
				return true
			}
		}
		return false
	})
}

// blockingAudit parks every write until released or its context expires,
// standing in for an unreachable audit store.
type blockingAudit struct {
	release chan struct{}
}

func (b *blockingAudit) RecordSessionEvent(ctx context.Context, _, _ string) {
	select {
	case <-b.release:
	case <-ctx.Done():
	}
}

func TestGovernor_HungAuditStoreDoesNotStallLoop(t *testing.T) {
	clock := NewFakeClock(time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC))
	audit := &blockingAudit{release: make(chan struct{})}
	defer close(audit.release)
	logout := &fakeLogout{}

	// Started immediately audits the applied policy; with the store hung,
	// the loop must still process every subsequent event.
	g, cancel := startGovernor(t, Options{
		Clock:  clock,
		Store:  statestore.NewMemoryStore(),
		Logout: logout,
		Audit:  audit,
		Policy: shortPolicy(),
	})
	defer cancel()

	g.SignOut()
	waitFor(t, "manual sign-out despite hung audit", func() bool { return g.Snapshot().Phase == PhaseExpired })
	if got := g.Snapshot().Reason; got != ReasonManual {
		t.Errorf("reason = %q, want manual", got)
	}
	waitFor(t, "logout execution", func() bool { return len(logout.reasons()) == 1 })
}

func TestGovernor_SiblingActivityDismissesWarning(t *testing.T) {
	hub := bus.NewHub()
	store := statestore.NewMemoryStore()
	clock := NewFakeClock(time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC))

	g, cancel := startGovernor(t, Options{
		Clock:     clock,
		Transport: hub.Endpoint(),
		Store:     store,
		Logout:    &fakeLogout{},
		Policy:    shortPolicy(),
	})
	defer cancel()

	clock.Advance(7 * time.Second)
	waitFor(t, "warning phase", func() bool { return g.Snapshot().Phase == PhaseWarning })

	// A sibling's activity arrives mid-countdown: the warning clears and the
	// idle clock re-arms instead of running down to a staggered expiry.
	sibling := hub.Endpoint()
	defer sibling.Close()
	ctx, cancelPub := context.WithCancel(context.Background())
	defer cancelPub()
	if err := sibling.Publish(ctx, bus.Message{Kind: bus.KindActivity, At: clock.Now()}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	waitFor(t, "warning dismissed", func() bool { return g.Snapshot().Phase == PhaseActive })

	// The re-armed timer runs the full warmup again from the sibling signal.
	clock.Advance(6 * time.Second)
	if got := g.Snapshot().Phase; got != PhaseActive {
		t.Fatalf("phase = %v before the re-armed warmup elapses, want active", got)
	}
	clock.Advance(time.Second)
	waitFor(t, "warning after full warmup", func() bool { return g.Snapshot().Phase == PhaseWarning })
}
