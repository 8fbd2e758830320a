package repository

import (
	"context"
	"sync"

	"rights-console-portal/agent/internal/audit/domain"
)

// MemoryRepository is an in-memory Repository, used in tests and when the
// agent runs without a database.
type MemoryRepository struct {
	mu      sync.Mutex
	entries []*domain.AuditLog
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// Create appends the entry.
func (r *MemoryRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	copied := *a
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, &copied)
	return nil
}

// GetByID returns the entry for id, or nil when absent.
func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.entries {
		if a.ID == id {
			copied := *a
			return &copied, nil
		}
	}
	return nil, nil
}

// ListByOrg returns entries for the org, newest last (insertion order).
func (r *MemoryRepository) ListByOrg(ctx context.Context, orgID string, limit, offset int32) ([]*domain.AuditLog, error) {
	return r.ListByOrgFiltered(ctx, orgID, limit, offset, nil, nil, nil)
}

// ListByOrgFiltered returns entries matching the optional filters.
func (r *MemoryRepository) ListByOrgFiltered(ctx context.Context, orgID string, limit, offset int32, userID, action, resource *string) ([]*domain.AuditLog, error) {
	match := func(filter *string, value string) bool {
		return filter == nil || *filter == "" || *filter == value
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var filtered []*domain.AuditLog
	for _, a := range r.entries {
		if a.OrgID == orgID && match(userID, a.UserID) && match(action, a.Action) && match(resource, a.Resource) {
			copied := *a
			filtered = append(filtered, &copied)
		}
	}
	if offset >= int32(len(filtered)) {
		return nil, nil
	}
	filtered = filtered[offset:]
	if limit > 0 && limit < int32(len(filtered)) {
		filtered = filtered[:limit]
	}
	return filtered, nil
}
