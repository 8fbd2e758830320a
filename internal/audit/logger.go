package audit

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"rights-console-portal/agent/internal/audit/domain"
	auditrepo "rights-console-portal/agent/internal/audit/repository"
)

// SentinelOrgID is the org_id used for audit events with no resolved org
// (e.g. a logout raced against a profile load).
const SentinelOrgID = "_system"

// ResourceSession is the resource recorded for session lifecycle events.
const ResourceSession = "session"

// AuditLogger writes a single audit event with explicit action/resource.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, orgID, userID, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository and a fixed
// workstation identifier.
type Logger struct {
	repo        auditrepo.Repository
	workstation string
}

// NewLogger returns an AuditLogger that persists to repo. workstation
// identifies this agent instance; empty is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, workstation string) *Logger {
	if workstation == "" {
		workstation = "unknown"
	}
	return &Logger{repo: repo, workstation: workstation}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and
// not returned, so an unreachable audit store never blocks a logout.
func (l *Logger) LogEvent(ctx context.Context, orgID, userID, action, resource, metadata string) {
	if l.repo == nil {
		return
	}
	if orgID == "" {
		orgID = SentinelOrgID
	}
	entry := &domain.AuditLog{
		ID:          uuid.New().String(),
		OrgID:       orgID,
		UserID:      userID,
		Action:      action,
		Resource:    resource,
		Workstation: l.workstation,
		Metadata:    metadata,
		CreatedAt:   time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: failed to log event %s/%s: %v", action, resource, err)
	}
}

// SessionRecorder adapts an AuditLogger to session lifecycle events: every
// record carries the resolved scope label and the session-start correlation
// token in its metadata payload.
type SessionRecorder struct {
	logger      AuditLogger
	orgID       string
	userID      string
	scopeLabel  string
	correlation string
}

// NewSessionRecorder returns a recorder for the given identity and session.
// correlation is the session-start token tying all events of one session
// together across instances.
func NewSessionRecorder(logger AuditLogger, orgID, userID, scopeLabel, correlation string) *SessionRecorder {
	return &SessionRecorder{
		logger:      logger,
		orgID:       orgID,
		userID:      userID,
		scopeLabel:  scopeLabel,
		correlation: correlation,
	}
}

// RecordSessionEvent records one session event. detail is event-specific
// (policy label, logout reason). Best-effort, never returns an error.
func (r *SessionRecorder) RecordSessionEvent(ctx context.Context, action, detail string) {
	if r == nil || r.logger == nil {
		return
	}
	metadata, err := json.Marshal(map[string]string{
		"detail":        detail,
		"scope":         r.scopeLabel,
		"session_start": r.correlation,
	})
	if err != nil {
		metadata = []byte("{}")
	}
	r.logger.LogEvent(ctx, r.orgID, r.userID, action, ResourceSession, string(metadata))
}
