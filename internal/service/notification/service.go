package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/carebook/internal/email"
	"github.com/jwalitptl/carebook/internal/model"
	"github.com/jwalitptl/carebook/internal/repository"
	"github.com/jwalitptl/carebook/pkg/errors"
	"github.com/jwalitptl/carebook/pkg/metrics"
)

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = 200 * time.Millisecond
)

type Config struct {
	MaxAttempts int           `mapstructure:"max_attempts" split_words:"true"`
	RetryDelay  time.Duration `mapstructure:"retry_delay" split_words:"true"`
}

type Service interface {
	// Emit stores a notification for recipient. It never fails the caller: a
	// write that still fails after the configured attempts is logged and dropped.
	Emit(ctx context.Context, recipient uuid.UUID, typ model.NotificationType, message string, opts ...EmitOption)
	List(ctx context.Context, actor model.Actor, unreadOnly bool, page model.Pagination) ([]*model.Notification, error)
	UnreadCount(ctx context.Context, actor model.Actor) (int, error)
	MarkRead(ctx context.Context, actor model.Actor, id uuid.UUID) error
	MarkAllRead(ctx context.Context, actor model.Actor) (int64, error)
	ClearAll(ctx context.Context, actor model.Actor) (int64, error)
}

type emitOptions struct {
	actorID      *uuid.UUID
	link         *string
	emailSubject string
}

type EmitOption func(*emitOptions)

// WithActor records who caused the notification.
func WithActor(id uuid.UUID) EmitOption {
	return func(o *emitOptions) { o.actorID = &id }
}

func WithLink(link string) EmitOption {
	return func(o *emitOptions) { o.link = &link }
}

// WithEmail mirrors the notification to the recipient's address.
func WithEmail(subject string) EmitOption {
	return func(o *emitOptions) { o.emailSubject = subject }
}

type service struct {
	repo    repository.NotificationRepository
	users   repository.UserRepository
	mailer  email.Service
	metrics *metrics.Metrics
	cfg     Config
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewService(repo repository.NotificationRepository, users repository.UserRepository, mailer email.Service, m *metrics.Metrics, cfg Config) Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	return &service{
		repo:    repo,
		users:   users,
		mailer:  mailer,
		metrics: m,
		cfg:     cfg,
		sleep:   sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *service) Emit(ctx context.Context, recipient uuid.UUID, typ model.NotificationType, message string, opts ...EmitOption) {
	o := &emitOptions{}
	for _, opt := range opts {
		opt(o)
	}

	// The triggering transition has already committed; a client disconnect
	// must not cut the notification short.
	ctx = context.WithoutCancel(ctx)

	n := &model.Notification{
		ID:        uuid.New(),
		UserID:    recipient,
		ActorID:   o.actorID,
		Type:      typ,
		Message:   message,
		Link:      o.link,
		CreatedAt: time.Now(),
	}

	if err := s.store(ctx, n); err != nil {
		s.record(typ, "dropped")
		log.Error().Err(err).
			Str("recipient_id", recipient.String()).
			Str("type", string(typ)).
			Int("attempts", s.cfg.MaxAttempts).
			Msg("Dropping notification after failed attempts")
		return
	}
	s.record(typ, "delivered")

	if o.emailSubject != "" {
		s.mirror(ctx, n, o.emailSubject)
	}
}

func (s *service) store(ctx context.Context, n *model.Notification) error {
	var err error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		var event *model.OutboxEvent
		event, err = model.NewOutboxEvent(model.EventNotificationCreated, model.NotificationEvent{
			NotificationID: n.ID,
			UserID:         n.UserID,
			Type:           n.Type,
			Message:        n.Message,
			CreatedAt:      n.CreatedAt,
		})
		if err != nil {
			return fmt.Errorf("failed to build notification event: %w", err)
		}

		if err = s.repo.Create(ctx, n, event); err == nil {
			return nil
		}

		// A missing recipient will not appear on retry.
		if errors.IsNotFound(err) {
			return err
		}

		if attempt < s.cfg.MaxAttempts {
			s.record(n.Type, "retried")
			log.Warn().Err(err).
				Str("recipient_id", n.UserID.String()).
				Int("attempt", attempt).
				Msg("Notification write failed, retrying")
			if sleepErr := s.sleep(ctx, s.cfg.RetryDelay*time.Duration(attempt)); sleepErr != nil {
				return sleepErr
			}
		}
	}
	return err
}

func (s *service) mirror(ctx context.Context, n *model.Notification, subject string) {
	if s.mailer == nil || s.users == nil {
		return
	}
	user, err := s.users.Get(ctx, n.UserID)
	if err != nil {
		log.Warn().Err(err).Str("recipient_id", n.UserID.String()).Msg("Skipping email mirror")
		return
	}
	if err := s.mailer.Send(ctx, user.Email, subject, n.Message); err != nil {
		log.Warn().Err(err).Str("recipient_id", n.UserID.String()).Msg("Failed to send notification email")
	}
}

func (s *service) record(typ model.NotificationType, result string) {
	if s.metrics != nil {
		s.metrics.NotificationDispatch.WithLabelValues(string(typ), result).Inc()
	}
}

func (s *service) List(ctx context.Context, actor model.Actor, unreadOnly bool, page model.Pagination) ([]*model.Notification, error) {
	notifications, err := s.repo.List(ctx, actor.UserID, unreadOnly, page)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}

func (s *service) UnreadCount(ctx context.Context, actor model.Actor) (int, error) {
	count, err := s.repo.CountUnread(ctx, actor.UserID)
	if err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return count, nil
}

// MarkRead is idempotent. Another user's notification reads as not found.
func (s *service) MarkRead(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	if err := s.repo.MarkRead(ctx, actor.UserID, id); err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, actor model.Actor) (int64, error) {
	changed, err := s.repo.MarkAllRead(ctx, actor.UserID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return changed, nil
}

func (s *service) ClearAll(ctx context.Context, actor model.Actor) (int64, error) {
	removed, err := s.repo.DeleteAll(ctx, actor.UserID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear notifications: %w", err)
	}
	return removed, nil
}
