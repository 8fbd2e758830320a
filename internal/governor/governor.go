package governor

import (
	"context"
	"log"
	"sync"
	"time"

	"rights-console-portal/agent/internal/bus"
	"rights-console-portal/agent/internal/sessionpolicy"
	"rights-console-portal/agent/internal/statestore"
)

// publishTimeout bounds each best-effort bus publish and audit write so a
// slow collaborator never stalls the event loop.
const publishTimeout = 5 * time.Second

// LogoutRunner performs the terminal logout sequence. Implemented by the
// logout executor; the governor never blocks on its completion.
type LogoutRunner interface {
	Execute(ctx context.Context, reason Reason, rebroadcast bool)
}

// AuditRecorder records one session audit event. Best-effort: implementations
// never return an error to the caller.
type AuditRecorder interface {
	RecordSessionEvent(ctx context.Context, action, detail string)
}

// Options configures a Governor.
type Options struct {
	// Clock defaults to the real clock when nil.
	Clock Clock
	// Transport synchronizes lifecycle events with sibling instances.
	Transport bus.Transport
	// Store persists the session-start and grace markers.
	Store statestore.Store
	// Logout runs the terminal sequence on expiry.
	Logout LogoutRunner
	// Audit records warning/policy events. Optional.
	Audit AuditRecorder
	// Policy is the resolved session policy.
	Policy sessionpolicy.Policy
	// GraceWindow suspends monitoring for this long after authentication,
	// so redirect chains do not trip a false idle logout. During grace no
	// timers are armed at all.
	GraceWindow time.Duration
}

// Governor owns the session timers for one agent instance and serializes
// every state transition through a single event loop, per the cooperative
// single-threaded model: no transition ever observes another mid-flight.
type Governor struct {
	clock     Clock
	transport bus.Transport
	store     statestore.Store
	logout    LogoutRunner
	audit     AuditRecorder
	grace     time.Duration

	events chan Event
	done   chan struct{}

	mu      sync.Mutex
	state   State
	started bool

	warningTimer   Timer
	absoluteTimer  Timer
	countdownTimer Timer
}

// New validates opts and returns a Governor. Run must be called to begin
// monitoring.
func New(opts Options) (*Governor, error) {
	if err := opts.Policy.Validate(); err != nil {
		return nil, err
	}
	clock := opts.Clock
	if clock == nil {
		clock = RealClock()
	}
	return &Governor{
		clock:     clock,
		transport: opts.Transport,
		store:     opts.Store,
		logout:    opts.Logout,
		audit:     opts.Audit,
		grace:     opts.GraceWindow,
		events:    make(chan Event, 32),
		done:      make(chan struct{}),
		state:     State{Policy: opts.Policy},
	}, nil
}

// Run bootstraps the session clock and processes events until ctx is done.
// It subscribes to the sibling transport, honors any post-authentication
// grace window, and then dispatches Started. Blocks until ctx is cancelled.
func (g *Governor) Run(ctx context.Context) error {
	startedAt := g.loadSessionStart(ctx)
	g.mu.Lock()
	g.state.SessionStartedAt = startedAt
	g.mu.Unlock()

	if g.transport != nil {
		messages, err := g.transport.Subscribe(ctx)
		if err != nil {
			log.Printf("governor: sibling subscribe failed, running standalone: %v", err)
		} else {
			go g.forward(messages)
		}
	}

	if wait := g.graceRemaining(ctx); wait > 0 {
		g.clock.AfterFunc(wait, func() {
			g.consumeGrace()
			g.post(Started{Now: g.clock.Now()})
		})
	} else {
		g.post(Started{Now: g.clock.Now()})
	}

	for {
		select {
		case <-ctx.Done():
			close(g.done)
			g.stopTimers()
			return ctx.Err()
		case ev := <-g.events:
			g.step(ev)
		}
	}
}

// Activity reports an accepted local activity signal.
func (g *Governor) Activity() {
	g.post(ActivityObserved{Now: g.clock.Now()})
}

// Extend is the explicit "stay signed in" action.
func (g *Governor) Extend() {
	g.post(ExtendRequested{Now: g.clock.Now()})
}

// SignOut requests an immediate manual sign-out.
func (g *Governor) SignOut() {
	g.post(SignOutRequested{Now: g.clock.Now()})
}

// SetPolicy applies a newly resolved policy (role or scope change). Invalid
// policies are rejected and the current one kept.
func (g *Governor) SetPolicy(p sessionpolicy.Policy) {
	if err := p.Validate(); err != nil {
		log.Printf("governor: rejecting invalid policy: %v", err)
		return
	}
	g.post(PolicyChanged{Now: g.clock.Now(), Policy: p})
}

// Snapshot returns the current state for display.
func (g *Governor) Snapshot() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// InWarning reports whether the warning is showing; the activity tracker
// suppresses passive signals while it is.
func (g *Governor) InWarning() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.Phase == PhaseWarning
}

func (g *Governor) post(ev Event) {
	select {
	case g.events <- ev:
	case <-g.done:
	}
}

// forward translates sibling bus messages into events. Activity timestamps
// from siblings refresh the display and re-arm the local warning timer so
// instances expire together rather than staggered.
func (g *Governor) forward(messages <-chan bus.Message) {
	for m := range messages {
		switch m.Kind {
		case bus.KindActivity:
			at := m.At
			if at.IsZero() {
				at = g.clock.Now()
			}
			g.post(ActivityObserved{Now: at, Remote: true})
		case bus.KindExtend:
			g.post(ExtendRequested{Now: g.clock.Now(), Remote: true})
		case bus.KindLogout:
			g.post(RemoteLogout{Now: g.clock.Now(), Reason: Reason(m.Reason)})
		}
	}
}

func (g *Governor) step(ev Event) {
	g.mu.Lock()
	state := g.state
	started := g.started
	g.mu.Unlock()

	if !started {
		switch ev.(type) {
		case Started:
			started = true
		case RemoteLogout:
			// A sibling logout during grace still terminates this instance.
		default:
			// Monitoring has not begun (grace window); nothing is armed yet.
			return
		}
	}

	next, effects := Reduce(state, ev)

	// Apply effects before publishing the new state, so a snapshot observer
	// never sees a transition whose timers are not yet re-armed.
	g.apply(effects)

	g.mu.Lock()
	g.state = next
	g.started = started
	g.mu.Unlock()
}

func (g *Governor) apply(effects []Effect) {
	for _, eff := range effects {
		switch e := eff.(type) {
		case ArmWarning:
			stopTimer(g.warningTimer)
			g.warningTimer = g.clock.AfterFunc(e.After, func() {
				g.post(WarningElapsed{Now: g.clock.Now()})
			})
		case ArmAbsolute:
			stopTimer(g.absoluteTimer)
			g.absoluteTimer = g.clock.AfterFunc(e.After, func() {
				g.post(AbsoluteElapsed{Now: g.clock.Now()})
			})
		case StartCountdown:
			stopTimer(g.countdownTimer)
			g.countdownTimer = g.clock.AfterFunc(time.Second, func() {
				g.post(CountdownTick{Now: g.clock.Now()})
			})
		case StopCountdown:
			stopTimer(g.countdownTimer)
		case StopAllTimers:
			g.stopTimers()
		case PublishActivity:
			g.publish(bus.Message{Kind: bus.KindActivity, At: e.At})
		case PublishExtend:
			g.publish(bus.Message{Kind: bus.KindExtend})
		case RecordAudit:
			g.recordAudit(e.Action, e.Detail)
		case RunLogout:
			// Fire-and-forget: navigation and remote sign-out must not block
			// the event loop, and the loop must stay responsive to siblings.
			go g.logout.Execute(context.Background(), e.Reason, e.Rebroadcast)
		}
	}
}

// recordAudit writes one audit event off the loop. An unreachable audit
// store must never stall event processing, so the write runs in its own
// goroutine under a bounded context, like bus publishes and logout steps.
func (g *Governor) recordAudit(action, detail string) {
	if g.audit == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		g.audit.RecordSessionEvent(ctx, action, detail)
	}()
}

func (g *Governor) publish(m bus.Message) {
	if g.transport == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := g.transport.Publish(ctx, m); err != nil {
			log.Printf("governor: publish %s: %v", m.Kind, err)
		}
	}()
}

func (g *Governor) stopTimers() {
	stopTimer(g.warningTimer)
	stopTimer(g.absoluteTimer)
	stopTimer(g.countdownTimer)
}

func stopTimer(t Timer) {
	if t != nil {
		t.Stop()
	}
}

// loadSessionStart returns the persisted session-start timestamp, persisting
// the current instant when none exists. Store failures fall back to now so a
// broken store degrades to a fresh absolute clock rather than a crash.
func (g *Governor) loadSessionStart(ctx context.Context) time.Time {
	now := g.clock.Now()
	if g.store == nil {
		return now
	}
	raw, ok, err := g.store.Get(ctx, statestore.KeySessionStartedAt)
	if err != nil {
		log.Printf("governor: read session start: %v", err)
		return now
	}
	if ok {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			return t
		}
		log.Printf("governor: malformed session start marker %q, resetting", raw)
	}
	if err := g.store.Put(ctx, statestore.KeySessionStartedAt, now.Format(time.RFC3339Nano)); err != nil {
		log.Printf("governor: persist session start: %v", err)
	}
	return now
}

// graceRemaining returns how much of the post-authentication grace window is
// left, or zero when none applies. An elapsed or malformed marker is cleared.
func (g *Governor) graceRemaining(ctx context.Context) time.Duration {
	if g.store == nil || g.grace <= 0 {
		return 0
	}
	raw, ok, err := g.store.Get(ctx, statestore.KeyPostAuthGrace)
	if err != nil || !ok {
		return 0
	}
	begin, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		g.consumeGrace()
		return 0
	}
	remaining := begin.Add(g.grace).Sub(g.clock.Now())
	if remaining <= 0 {
		g.consumeGrace()
		return 0
	}
	return remaining
}

func (g *Governor) consumeGrace() {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := g.store.Delete(ctx, statestore.KeyPostAuthGrace); err != nil {
		log.Printf("governor: clear grace marker: %v", err)
	}
}
