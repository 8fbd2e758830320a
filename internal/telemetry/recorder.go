package telemetry

import (
	"context"
	"encoding/json"
	"time"
)

// SessionAuditor is the audit-trail sink lifecycle events are forwarded to.
type SessionAuditor interface {
	RecordSessionEvent(ctx context.Context, action, detail string)
}

// LifecycleRecorder forwards session audit events to an inner auditor and
// mirrors the mapped actions onto the telemetry pipeline, so one wiring point
// feeds both the audit trail and the observability backend.
type LifecycleRecorder struct {
	auditor SessionAuditor
	emitter EventEmitter
	base    Event
	types   map[string]string
}

// NewLifecycleRecorder returns a recorder stamping base's identity fields
// (org, user, session, workstation, source) on every emitted event. types
// maps audit actions to telemetry event types; actions missing from the map
// are audited but not emitted.
func NewLifecycleRecorder(auditor SessionAuditor, emitter EventEmitter, base Event, types map[string]string) *LifecycleRecorder {
	return &LifecycleRecorder{auditor: auditor, emitter: emitter, base: base, types: types}
}

// RecordSessionEvent writes the audit entry and, for mapped actions, emits
// the corresponding telemetry event. Best-effort on both paths.
func (r *LifecycleRecorder) RecordSessionEvent(ctx context.Context, action, detail string) {
	if r.auditor != nil {
		r.auditor.RecordSessionEvent(ctx, action, detail)
	}
	if eventType, ok := r.types[action]; ok {
		r.Emit(ctx, eventType, detail)
	}
}

// Emit sends one event of the given type outside the audit flow (an explicit
// extend, a blocked navigation). Fire-and-forget via EmitAsync.
func (r *LifecycleRecorder) Emit(ctx context.Context, eventType, detail string) {
	ev := r.base
	ev.EventType = eventType
	ev.CreatedAt = time.Now().UTC()
	if detail != "" {
		if metadata, err := json.Marshal(map[string]string{"detail": detail}); err == nil {
			ev.Metadata = metadata
		}
	}
	EmitAsync(r.emitter, ctx, &ev)
}
