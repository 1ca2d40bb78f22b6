package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/carebook/internal/model"
	"github.com/jwalitptl/carebook/pkg/errors"
)

type notificationRepository struct {
	s *Store
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification, event *model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[n.UserID]; !ok {
		return errors.NotFound("recipient", nil)
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = r.s.now()
	}
	r.s.notifications[n.ID] = entry[model.Notification]{v: clone(n), seq: r.s.next()}
	r.s.addOutbox(event)
	return nil
}

func (r *notificationRepository) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, p model.Pagination) ([]*model.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	items := sorted(r.s.notifications, func(n *model.Notification) time.Time { return n.CreatedAt }, true, func(n *model.Notification) bool {
		return n.UserID == userID && (!unreadOnly || !n.IsRead)
	})
	return page(items, p), nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	count := 0
	for _, e := range r.s.notifications {
		if e.v.UserID == userID && !e.v.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, ok := r.s.notifications[id]
	if !ok || e.v.UserID != userID {
		return errors.NotFound("notification", nil)
	}
	e.v.IsRead = true
	return nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var changed int64
	for _, e := range r.s.notifications {
		if e.v.UserID == userID && !e.v.IsRead {
			e.v.IsRead = true
			changed++
		}
	}
	return changed, nil
}

func (r *notificationRepository) DeleteAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var removed int64
	for id, e := range r.s.notifications {
		if e.v.UserID == userID {
			delete(r.s.notifications, id)
			removed++
		}
	}
	return removed, nil
}
