package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/carebook/internal/model"
)

// TransitionFunc receives the locked current row and mutates it in place. A
// returned event is written to the outbox in the same transaction.
type TransitionFunc func(apt *model.Appointment) (*model.OutboxEvent, error)

// All repository interfaces in one file
type (
	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		Update(ctx context.Context, user *model.User) error
		// UpdateRole changes the role only if it still equals from.
		UpdateRole(ctx context.Context, id uuid.UUID, from, to model.Role) error
		List(ctx context.Context, filters *model.UserFilters) ([]*model.User, int, error)
		// Ban removes the user and everything they own in one transaction and
		// returns the storage keys of the documents removed with them.
		Ban(ctx context.Context, id uuid.UUID, audit *model.AuditLog) ([]string, error)
	}

	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error)
		// Transition serializes state changes on one appointment with a row lock.
		Transition(ctx context.Context, id uuid.UUID, fn TransitionFunc) (*model.Appointment, error)
		// DeleteIf deletes the row only if check passes against the locked row.
		DeleteIf(ctx context.Context, id uuid.UUID, check func(apt *model.Appointment) error) error
		ListDue(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error)
		HasConfirmedBetween(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error)
		CountAssigned(ctx context.Context, doctorID uuid.UUID) (int, error)
	}

	CommentRepository interface {
		Create(ctx context.Context, comment *model.Comment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Comment, error)
		List(ctx context.Context, viewerID uuid.UUID, page model.Pagination) ([]*model.CommentView, error)
		// Delete removes the comment with its replies and likes.
		Delete(ctx context.Context, id uuid.UUID, audit *model.AuditLog) error
		CreateReply(ctx context.Context, reply *model.Reply) error
		GetReply(ctx context.Context, commentID, replyID uuid.UUID) (*model.Reply, error)
		ListReplies(ctx context.Context, commentIDs []uuid.UUID) ([]*model.ReplyView, error)
		DeleteReply(ctx context.Context, commentID, replyID uuid.UUID, audit *model.AuditLog) error
		// ToggleLike flips userID's membership in the liker set and returns the
		// resulting membership and like count.
		ToggleLike(ctx context.Context, commentID, userID uuid.UUID) (bool, int, error)
	}

	NotificationRepository interface {
		Create(ctx context.Context, notification *model.Notification, event *model.OutboxEvent) error
		List(ctx context.Context, userID uuid.UUID, unreadOnly bool, page model.Pagination) ([]*model.Notification, error)
		CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
		MarkRead(ctx context.Context, userID, id uuid.UUID) error
		MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
		DeleteAll(ctx context.Context, userID uuid.UUID) (int64, error)
	}

	DocumentRepository interface {
		Create(ctx context.Context, doc *model.Document) error
		Get(ctx context.Context, id uuid.UUID) (*model.Document, error)
		ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.Document, error)
		Delete(ctx context.Context, id uuid.UUID) error
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		List(ctx context.Context, filters *model.AuditFilters) ([]*model.AuditLog, int, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		// ClaimPending locks a batch with SKIP LOCKED and leases it to the caller.
		ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]*model.OutboxEvent, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errMsg *string, retryAt *time.Time) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)

// Repositories bundles one implementation of every repository.
type Repositories struct {
	Users         UserRepository
	Appointments  AppointmentRepository
	Comments      CommentRepository
	Notifications NotificationRepository
	Documents     DocumentRepository
	Audit         AuditRepository
	Outbox        OutboxRepository
}
