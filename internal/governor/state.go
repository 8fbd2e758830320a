// Package governor implements the session timeout state machine: the
// idle-warning and absolute-lifetime timers, the Active/Warning/Expired
// transitions, and the effects they produce. Transitions are expressed as a
// pure reducer over (state, event); the Governor runtime owns the timer
// handles and serializes every event through a single loop, so no transition
// ever races another.
package governor

import (
	"time"

	"rights-console-portal/agent/internal/sessionpolicy"
)

// Phase is the lifecycle phase of the session on this instance.
type Phase int

const (
	// PhaseActive is the normal working state; the warning and absolute
	// timers are armed.
	PhaseActive Phase = iota
	// PhaseWarning means the idle warning is showing and the 1 Hz countdown
	// to logout is running.
	PhaseWarning
	// PhaseExpired is terminal for the instance: all timers are cancelled and
	// no further transitions occur.
	PhaseExpired
)

func (p Phase) String() string {
	switch p {
	case PhaseActive:
		return "active"
	case PhaseWarning:
		return "warning"
	case PhaseExpired:
		return "expired"
	}
	return "unknown"
}

// Reason explains why a session expired. Carried to the sign-in surface as a
// query parameter and into the audit trail.
type Reason string

const (
	ReasonIdle     Reason = "idle"
	ReasonAbsolute Reason = "absolute"
	ReasonManual   Reason = "manual"
)

// State is the session clock for one agent instance. LastActivityAt is for
// display only; expiry is computed from this instance's own timers, with
// sibling messages re-arming them rather than rewriting history.
type State struct {
	Phase Phase
	// SecondsRemaining counts down while Phase is PhaseWarning.
	SecondsRemaining int
	// Reason is set once Phase is PhaseExpired.
	Reason Reason
	Policy sessionpolicy.Policy
	// SessionStartedAt anchors the absolute lifetime ceiling. Persisted so a
	// restart does not reset it; never moved by activity or extend.
	SessionStartedAt time.Time
	LastActivityAt   time.Time
}

// Event is an input to the reducer.
type Event interface{ isEvent() }

// Started begins monitoring once authentication (and any grace window) is
// complete. The reducer arms both timers, or expires immediately when the
// absolute ceiling has already passed.
type Started struct{ Now time.Time }

// ActivityObserved is an accepted activity signal, local or from a sibling.
type ActivityObserved struct {
	Now    time.Time
	Remote bool
}

// WarningElapsed fires when the warning timer elapses.
type WarningElapsed struct{ Now time.Time }

// CountdownTick fires once per second while in PhaseWarning.
type CountdownTick struct{ Now time.Time }

// ExtendRequested is the explicit "stay signed in" action, local or from a
// sibling.
type ExtendRequested struct {
	Now    time.Time
	Remote bool
}

// AbsoluteElapsed fires when the absolute lifetime timer elapses.
type AbsoluteElapsed struct{ Now time.Time }

// SignOutRequested is an immediate user-requested sign-out.
type SignOutRequested struct{ Now time.Time }

// RemoteLogout is a logout observed from a sibling instance.
type RemoteLogout struct {
	Now    time.Time
	Reason Reason
}

// PolicyChanged carries a newly resolved policy after a role or scope change.
// The idle timers are re-armed with the new durations; the absolute clock
// keeps its accumulated time.
type PolicyChanged struct {
	Now    time.Time
	Policy sessionpolicy.Policy
}

func (Started) isEvent()          {}
func (ActivityObserved) isEvent() {}
func (WarningElapsed) isEvent()   {}
func (CountdownTick) isEvent()    {}
func (ExtendRequested) isEvent()  {}
func (AbsoluteElapsed) isEvent()  {}
func (SignOutRequested) isEvent() {}
func (RemoteLogout) isEvent()     {}
func (PolicyChanged) isEvent()    {}

// Effect is an output of the reducer, applied by the runtime.
type Effect interface{ isEffect() }

// ArmWarning (re)arms the warning timer to fire after After.
type ArmWarning struct{ After time.Duration }

// ArmAbsolute (re)arms the absolute lifetime timer to fire after After.
type ArmAbsolute struct{ After time.Duration }

// StartCountdown schedules the next 1 Hz countdown tick.
type StartCountdown struct{}

// StopCountdown cancels any pending countdown tick.
type StopCountdown struct{}

// StopAllTimers cancels the warning, absolute, and countdown timers.
type StopAllTimers struct{}

// PublishActivity broadcasts an activity message to sibling instances.
type PublishActivity struct{ At time.Time }

// PublishExtend broadcasts an extend message to sibling instances.
type PublishExtend struct{}

// RecordAudit emits one audit event (warning shown, policy applied).
type RecordAudit struct {
	Action string
	Detail string
}

// RunLogout invokes the logout executor. Rebroadcast is false for logouts
// observed from a sibling, so the message is never echoed back.
type RunLogout struct {
	Reason      Reason
	Rebroadcast bool
}

func (ArmWarning) isEffect()      {}
func (ArmAbsolute) isEffect()     {}
func (StartCountdown) isEffect()  {}
func (StopCountdown) isEffect()   {}
func (StopAllTimers) isEffect()   {}
func (PublishActivity) isEffect() {}
func (PublishExtend) isEffect()   {}
func (RecordAudit) isEffect()     {}
func (RunLogout) isEffect()       {}

// Audit actions emitted by the state machine. Activity ticks are not
// audit-worthy; only policy, warning, and logout events are.
const (
	ActionWarningShown  = "session_warning_shown"
	ActionPolicyApplied = "session_policy_applied"
)
