package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/carebook/internal/model"
)

type outboxRepository struct {
	s *Store
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.addOutbox(event)
	return nil
}

func (r *outboxRepository) ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]*model.OutboxEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	due := sorted(r.s.outbox, func(e *model.OutboxEvent) time.Time { return e.CreatedAt }, false, func(e *model.OutboxEvent) bool {
		if e.Status != model.OutboxStatusPending && e.Status != model.OutboxStatusRetry {
			return false
		}
		return e.RetryAt == nil || !e.RetryAt.After(now)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	leaseUntil := now.Add(lease)
	for _, evt := range due {
		stored := r.s.outbox[evt.ID].v
		stored.RetryAt = &leaseUntil
		stored.UpdatedAt = now
		evt.RetryAt = &leaseUntil
	}
	return due, nil
}

func (r *outboxRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errMsg *string, retryAt *time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, ok := r.s.outbox[id]
	if !ok {
		return nil
	}

	now := r.s.now()
	e.v.Status = status
	e.v.ErrorMessage = errMsg
	e.v.RetryAt = retryAt
	e.v.UpdatedAt = now
	switch status {
	case model.OutboxStatusRetry, model.OutboxStatusFailed:
		e.v.RetryCount++
	case model.OutboxStatusProcessed:
		e.v.ProcessedAt = &now
	}
	return nil
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var removed int64
	for id, e := range r.s.outbox {
		if e.v.Status == model.OutboxStatusProcessed && e.v.ProcessedAt != nil && e.v.ProcessedAt.Before(before) {
			delete(r.s.outbox, id)
			removed++
		}
	}
	return removed, nil
}
