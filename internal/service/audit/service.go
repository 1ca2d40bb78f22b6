package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/carebook/internal/model"
	"github.com/jwalitptl/carebook/internal/policy"
	"github.com/jwalitptl/carebook/internal/repository"
)

type clientIPKey struct{}

// WithClientIP attaches the caller's address so entries built from ctx carry it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

func clientIP(ctx context.Context) string {
	if gc, ok := ctx.(*gin.Context); ok {
		return gc.ClientIP()
	}
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

type Service struct {
	repo repository.AuditRepository
}

func NewService(repo repository.AuditRepository) *Service {
	return &Service{repo: repo}
}

type LogOptions struct {
	Reason    string
	Metadata  interface{}
	IPAddress string
}

// Entry builds an audit record without storing it, for repositories that
// write it inside their own transaction.
func (s *Service) Entry(ctx context.Context, actor model.Actor, action, entityType string, entityID uuid.UUID, opts *LogOptions) (*model.AuditLog, error) {
	if opts == nil {
		opts = &LogOptions{}
	}

	entry := &model.AuditLog{
		ID:         uuid.New(),
		ActorID:    actor.UserID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		CreatedAt:  time.Now(),
	}

	if reason := strings.TrimSpace(opts.Reason); reason != "" {
		entry.Reason = &reason
	}

	if opts.Metadata != nil {
		metadata, err := json.Marshal(opts.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
		entry.Metadata = metadata
	}

	ip := opts.IPAddress
	if ip == "" {
		ip = clientIP(ctx)
	}
	if ip != "" {
		entry.IPAddress = &ip
	}

	return entry, nil
}

// Log creates an audit log entry
func (s *Service) Log(ctx context.Context, actor model.Actor, action, entityType string, entityID uuid.UUID, opts *LogOptions) error {
	entry, err := s.Entry(ctx, actor, action, entityType, entityID, opts)
	if err != nil {
		return err
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// Record is Log for callers whose own operation has already committed; a
// failure is logged and dropped.
func (s *Service) Record(ctx context.Context, actor model.Actor, action, entityType string, entityID uuid.UUID, opts *LogOptions) {
	if err := s.Log(ctx, actor, action, entityType, entityID, opts); err != nil {
		log.Error().Err(err).
			Str("action", action).
			Str("entity_type", entityType).
			Str("entity_id", entityID.String()).
			Msg("Failed to record audit entry")
	}
}

func (s *Service) List(ctx context.Context, actor model.Actor, filters *model.AuditFilters) ([]*model.AuditLog, int, error) {
	if err := policy.CanListUsers(actor); err != nil {
		return nil, 0, err
	}
	logs, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return logs, total, nil
}
