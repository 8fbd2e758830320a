package domain

import "time"

// AuditLog is one entry in the portal audit trail. Session lifecycle events
// (policy applied, warning shown, logout) are recorded with Resource
// "session" and a metadata payload carrying the policy label and the
// session-start correlation token.
type AuditLog struct {
	ID       string
	OrgID    string
	UserID   string
	Action   string
	Resource string
	// Workstation identifies the agent instance that produced the event.
	Workstation string
	// Metadata is a JSON payload with event-specific detail.
	Metadata  string
	CreatedAt time.Time
}
