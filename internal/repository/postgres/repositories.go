package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/carebook/internal/repository"
)

// NewRepositories builds every repository on one connection pool.
func NewRepositories(db *sqlx.DB) *repository.Repositories {
	base := NewBaseRepository(db)
	return &repository.Repositories{
		Users:         NewUserRepository(base),
		Appointments:  NewAppointmentRepository(base),
		Comments:      NewCommentRepository(base),
		Notifications: NewNotificationRepository(base),
		Documents:     NewDocumentRepository(base),
		Audit:         NewAuditRepository(base),
		Outbox:        NewOutboxRepository(base),
	}
}
