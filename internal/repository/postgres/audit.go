package postgres

import (
	"context"
	"fmt"

	"github.com/jwalitptl/carebook/internal/model"
	"github.com/jwalitptl/carebook/internal/repository"
)

const auditColumns = `
	id, actor_id, action, entity_type, entity_id, reason,
	COALESCE(metadata, 'null'::jsonb) AS metadata, ip_address, created_at`

type auditRepository struct {
	BaseRepository
}

func NewAuditRepository(base BaseRepository) repository.AuditRepository {
	return &auditRepository{base}
}

func (r *auditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	return insertAudit(ctx, r.db, log)
}

func (r *auditRepository) List(ctx context.Context, filters *model.AuditFilters) ([]*model.AuditLog, int, error) {
	if filters == nil {
		filters = &model.AuditFilters{}
	}
	filters.Pagination.Normalize()

	where := " WHERE 1=1"
	var args []interface{}

	if filters.ActorID != nil {
		args = append(args, *filters.ActorID)
		where += fmt.Sprintf(" AND actor_id = $%d", len(args))
	}

	if filters.EntityType != "" {
		args = append(args, filters.EntityType)
		where += fmt.Sprintf(" AND entity_type = $%d", len(args))
	}

	if filters.Action != "" {
		args = append(args, filters.Action)
		where += fmt.Sprintf(" AND action = $%d", len(args))
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM audit_logs"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to get total count: %w", mapError(err, "audit log"))
	}

	args = append(args, filters.PageSize, filters.Offset())
	query := "SELECT " + auditColumns + " FROM audit_logs" + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	logs := []*model.AuditLog{}
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", mapError(err, "audit log"))
	}
	return logs, total, nil
}
