package repository

import (
	"context"

	"rights-console-portal/agent/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.AuditLog, error)
	ListByOrg(ctx context.Context, orgID string, limit, offset int32) ([]*domain.AuditLog, error)
	// ListByOrgFiltered narrows ListByOrg by optional user, action, and
	// resource; nil filters match everything.
	ListByOrgFiltered(ctx context.Context, orgID string, limit, offset int32, userID, action, resource *string) ([]*domain.AuditLog, error)
	Create(ctx context.Context, a *domain.AuditLog) error
}
