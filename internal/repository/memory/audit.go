package memory

import (
	"context"
	"time"

	"github.com/jwalitptl/carebook/internal/model"
)

type auditRepository struct {
	s *Store
}

func (r *auditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.addAudit(log)
	return nil
}

func (r *auditRepository) List(ctx context.Context, filters *model.AuditFilters) ([]*model.AuditLog, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if filters == nil {
		filters = &model.AuditFilters{}
	}

	logs := sorted(r.s.audits, func(l *model.AuditLog) time.Time { return l.CreatedAt }, true, func(l *model.AuditLog) bool {
		if filters.ActorID != nil && l.ActorID != *filters.ActorID {
			return false
		}
		if filters.EntityType != "" && l.EntityType != filters.EntityType {
			return false
		}
		if filters.Action != "" && l.Action != filters.Action {
			return false
		}
		return true
	})
	return page(logs, filters.Pagination), len(logs), nil
}
