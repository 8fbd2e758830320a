// Package telemetry emits session-lifecycle events to the deployment's
// observability backend. Emission is best-effort everywhere; callers log and
// ignore errors.
package telemetry

import "time"

// Event types emitted by the session subsystem.
const (
	EventSessionStarted    = "session_started"
	EventWarningShown      = "session_warning_shown"
	EventSessionExtended   = "session_extended"
	EventSessionTerminated = "session_terminated"
	EventNavigationBlocked = "navigation_blocked"
)

// Event is a session telemetry event (org-scoped, optional user/session).
type Event struct {
	OrgID       string
	UserID      string
	SessionID   string
	Workstation string
	EventType   string
	Source      string
	Metadata    []byte // JSON payload
	CreatedAt   time.Time
}
