package appointment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/carebook/internal/model"
	"github.com/jwalitptl/carebook/internal/policy"
	"github.com/jwalitptl/carebook/internal/repository"
	"github.com/jwalitptl/carebook/internal/service/audit"
	"github.com/jwalitptl/carebook/internal/service/notification"
	"github.com/jwalitptl/carebook/pkg/errors"
	"github.com/jwalitptl/carebook/pkg/metrics"
)

// Business rules
const (
	DefaultOpenHour  = 8
	DefaultCloseHour = 17
)

// Transition events
const (
	EventCreate   = "create"
	EventUpdate   = "update"
	EventConfirm  = "confirm"
	EventReject   = "reject"
	EventComplete = "complete"
	EventReassign = "reassign"
	EventDelete   = "delete"
)

type Config struct {
	Timezone  string `mapstructure:"timezone" split_words:"true"`
	OpenHour  int    `mapstructure:"open_hour" split_words:"true"`
	CloseHour int    `mapstructure:"close_hour" split_words:"true"`
}

type Service struct {
	repo     repository.AppointmentRepository
	users    repository.UserRepository
	notifier notification.Service
	auditor  *audit.Service
	metrics  *metrics.Metrics

	loc       *time.Location
	openHour  int
	closeHour int
	now       func() time.Time
}

func NewService(
	repo repository.AppointmentRepository,
	users repository.UserRepository,
	notifier notification.Service,
	auditor *audit.Service,
	m *metrics.Metrics,
	cfg Config,
) (*Service, error) {
	loc := time.Local
	if cfg.Timezone != "" {
		var err error
		if loc, err = time.LoadLocation(cfg.Timezone); err != nil {
			return nil, fmt.Errorf("invalid scheduling timezone %q: %w", cfg.Timezone, err)
		}
	}
	if cfg.OpenHour == 0 && cfg.CloseHour == 0 {
		cfg.OpenHour, cfg.CloseHour = DefaultOpenHour, DefaultCloseHour
	}
	if cfg.OpenHour < 0 || cfg.CloseHour > 24 || cfg.OpenHour >= cfg.CloseHour {
		return nil, fmt.Errorf("invalid business hours %d-%d", cfg.OpenHour, cfg.CloseHour)
	}

	return &Service{
		repo:      repo,
		users:     users,
		notifier:  notifier,
		auditor:   auditor,
		metrics:   m,
		loc:       loc,
		openHour:  cfg.OpenHour,
		closeHour: cfg.CloseHour,
		now:       time.Now,
	}, nil
}

// validateSchedule requires a future time whose local hour lies in
// [openHour, closeHour).
func (s *Service) validateSchedule(at time.Time) error {
	if !at.After(s.now()) {
		return errors.Validation("appointment date must be in the future", nil)
	}
	hour := at.In(s.loc).Hour()
	if hour < s.openHour || hour >= s.closeHour {
		return errors.Validation(fmt.Sprintf("appointments must be scheduled between %02d:00 and %02d:00", s.openHour, s.closeHour), nil)
	}
	return nil
}

func (s *Service) Create(ctx context.Context, actor model.Actor, req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, errors.Validation("reason must not be blank", nil)
	}
	if err := s.validateSchedule(req.AppointmentDate); err != nil {
		s.observe(EventCreate, err)
		return nil, err
	}

	priority := req.Priority
	if priority == "" {
		priority = model.PriorityNormal
	}

	apt := &model.Appointment{
		ID:              uuid.New(),
		UserID:          actor.UserID,
		AppointmentDate: req.AppointmentDate,
		Status:          model.AppointmentStatusPending,
		Reason:          reason,
		Priority:        priority,
		Symptoms:        req.Symptoms,
		Notes:           req.Notes,
	}

	if err := s.repo.Create(ctx, apt); err != nil {
		s.observe(EventCreate, err)
		return nil, fmt.Errorf("failed to create appointment: %w", err)
	}
	s.observe(EventCreate, nil)
	return apt, nil
}

// Get hides appointments the actor may not see behind NotFound.
func (s *Service) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	if err := policy.CanReadAppointment(actor, apt); err != nil {
		return nil, errors.NotFound("appointment", nil)
	}
	return apt, nil
}

func (s *Service) ListMine(ctx context.Context, actor model.Actor) ([]*model.Appointment, error) {
	appointments, err := s.repo.List(ctx, &model.AppointmentFilters{UserID: &actor.UserID})
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

func (s *Service) ListAll(ctx context.Context, actor model.Actor, status string) ([]*model.Appointment, error) {
	if err := policy.CanDecideAppointment(actor); err != nil {
		return nil, err
	}

	filters := &model.AppointmentFilters{}
	if status != "" {
		st := model.AppointmentStatus(status)
		if !st.Valid() {
			return nil, errors.Validation(fmt.Sprintf("unknown status %q", status), nil)
		}
		filters.Statuses = []model.AppointmentStatus{st}
	}

	appointments, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

// Calendar lists the appointments assigned to the calling doctor. Pending
// appointments have no doctor yet and never appear here.
func (s *Service) Calendar(ctx context.Context, actor model.Actor, from, to *time.Time) ([]*model.Appointment, error) {
	if !actor.IsDoctor() {
		return nil, errors.Forbidden("only doctors have a calendar")
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, errors.Validation("end_date must not be before start_date", nil)
	}

	appointments, err := s.repo.List(ctx, &model.AppointmentFilters{
		DoctorID: &actor.UserID,
		Statuses: []model.AppointmentStatus{model.AppointmentStatusConfirmed, model.AppointmentStatusCompleted},
		From:     from,
		To:       to,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load calendar: %w", err)
	}
	return appointments, nil
}

func (s *Service) Update(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.UpdateAppointmentRequest) (*model.Appointment, error) {
	apt, err := s.repo.Transition(ctx, id, func(apt *model.Appointment) (*model.OutboxEvent, error) {
		if err := policy.CanModifyAppointment(actor, apt); err != nil {
			return nil, err
		}
		if apt.Status.Terminal() {
			return nil, errors.InvalidTransition(string(apt.Status), EventUpdate)
		}

		if req.AppointmentDate != nil && !req.AppointmentDate.Equal(apt.AppointmentDate) {
			if err := s.validateSchedule(*req.AppointmentDate); err != nil {
				return nil, err
			}
			apt.AppointmentDate = *req.AppointmentDate
		}
		if req.Reason != nil {
			reason := strings.TrimSpace(*req.Reason)
			if reason == "" {
				return nil, errors.Validation("reason must not be blank", nil)
			}
			apt.Reason = reason
		}
		if req.Priority != nil {
			apt.Priority = *req.Priority
		}
		if req.Symptoms != nil {
			apt.Symptoms = req.Symptoms
		}
		if req.Notes != nil {
			apt.Notes = req.Notes
		}
		return nil, nil
	})
	s.observe(EventUpdate, err)
	if err != nil {
		return nil, fmt.Errorf("failed to update appointment: %w", err)
	}
	return apt, nil
}

func (s *Service) Confirm(ctx context.Context, actor model.Actor, id, doctorID uuid.UUID) (*model.Appointment, error) {
	if err := policy.CanDecideAppointment(actor); err != nil {
		return nil, err
	}

	doctor, err := s.users.Get(ctx, doctorID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.Validation("doctor_id does not reference a doctor", err)
		}
		return nil, fmt.Errorf("failed to load doctor: %w", err)
	}
	if doctor.Role != model.RoleDoctor {
		return nil, errors.Validation("doctor_id does not reference a doctor", nil)
	}

	apt, err := s.repo.Transition(ctx, id, func(apt *model.Appointment) (*model.OutboxEvent, error) {
		if apt.Status != model.AppointmentStatusPending {
			return nil, errors.InvalidTransition(string(apt.Status), EventConfirm)
		}
		apt.Status = model.AppointmentStatusConfirmed
		apt.DoctorID = &doctor.ID
		return model.NewOutboxEvent(model.EventAppointmentConfirmed, apt.Event(&actor.UserID))
	})
	s.observe(EventConfirm, err)
	if err != nil {
		return nil, fmt.Errorf("failed to confirm appointment: %w", err)
	}

	s.auditor.Record(ctx, actor, model.AuditActionConfirm, model.AuditEntityAppointment, apt.ID, &audit.LogOptions{
		Metadata: map[string]interface{}{"doctor_id": doctor.ID},
	})

	message := fmt.Sprintf("Your appointment scheduled for %s has been confirmed.", apt.DisplayDate(s.loc))
	s.notifier.Emit(ctx, apt.UserID, model.NotificationAppointmentConfirmed, message,
		notification.WithActor(actor.UserID),
		notification.WithLink(appointmentLink(apt.ID)),
		notification.WithEmail("Appointment confirmed"),
	)
	return apt, nil
}

func (s *Service) Reject(ctx context.Context, actor model.Actor, id uuid.UUID, reason string) (*model.Appointment, error) {
	if err := policy.CanDecideAppointment(actor); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errors.Validation("rejection reason must not be blank", nil)
	}

	apt, err := s.repo.Transition(ctx, id, func(apt *model.Appointment) (*model.OutboxEvent, error) {
		if apt.Status != model.AppointmentStatusPending {
			return nil, errors.InvalidTransition(string(apt.Status), EventReject)
		}
		apt.Status = model.AppointmentStatusRejected
		apt.RejectionReason = &reason
		return model.NewOutboxEvent(model.EventAppointmentRejected, apt.Event(&actor.UserID))
	})
	s.observe(EventReject, err)
	if err != nil {
		return nil, fmt.Errorf("failed to reject appointment: %w", err)
	}

	s.auditor.Record(ctx, actor, model.AuditActionReject, model.AuditEntityAppointment, apt.ID, &audit.LogOptions{
		Reason: reason,
	})

	message := fmt.Sprintf("Your appointment scheduled for %s has been rejected. Reason: %s", apt.DisplayDate(s.loc), reason)
	s.notifier.Emit(ctx, apt.UserID, model.NotificationAppointmentRejected, message,
		notification.WithActor(actor.UserID),
		notification.WithLink(appointmentLink(apt.ID)),
		notification.WithEmail("Appointment rejected"),
	)
	return apt, nil
}

// Complete is the explicit admin path; it does not wait for the scheduled time.
func (s *Service) Complete(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Appointment, error) {
	if err := policy.CanDecideAppointment(actor); err != nil {
		return nil, err
	}

	apt, err := s.complete(ctx, id, &actor.UserID, nil)
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, actor, model.AuditActionComplete, model.AuditEntityAppointment, apt.ID, nil)
	s.notifyCompleted(ctx, apt, &actor.UserID)
	return apt, nil
}

// Reassign moves a confirmed or completed appointment to another doctor. It
// is how an admin frees a doctor's history before a demotion or ban.
func (s *Service) Reassign(ctx context.Context, actor model.Actor, id, doctorID uuid.UUID) (*model.Appointment, error) {
	if err := policy.CanDecideAppointment(actor); err != nil {
		return nil, err
	}

	var previous uuid.UUID
	apt, err := s.repo.Transition(ctx, id, func(apt *model.Appointment) (*model.OutboxEvent, error) {
		if apt.Status != model.AppointmentStatusConfirmed && apt.Status != model.AppointmentStatusCompleted {
			return nil, errors.InvalidTransition(string(apt.Status), EventReassign)
		}
		if *apt.DoctorID == doctorID {
			return nil, errors.Validation("appointment is already assigned to this doctor", nil)
		}
		previous = *apt.DoctorID
		apt.DoctorID = &doctorID
		return model.NewOutboxEvent(model.EventAppointmentReassigned, apt.Event(&actor.UserID))
	})
	s.observe(EventReassign, err)
	if err != nil {
		return nil, fmt.Errorf("failed to reassign appointment: %w", err)
	}

	s.auditor.Record(ctx, actor, model.AuditActionReassign, model.AuditEntityAppointment, apt.ID, &audit.LogOptions{
		Metadata: map[string]interface{}{"from": previous, "to": doctorID},
	})
	return apt, nil
}

// CompleteDue moves confirmed appointments scheduled before cutoff to
// completed and returns how many it moved. Rows that changed state since
// they were listed are skipped.
func (s *Service) CompleteDue(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	ids, err := s.repo.ListDue(ctx, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list due appointments: %w", err)
	}

	completed := 0
	for _, id := range ids {
		apt, err := s.complete(ctx, id, nil, &cutoff)
		if err != nil {
			if errors.IsNotFound(err) || errors.Is(err, errors.ErrInvalidTransition) {
				continue
			}
			return completed, err
		}
		completed++
		if s.metrics != nil {
			s.metrics.AppointmentsCompleted.Inc()
		}
		s.notifyCompleted(ctx, apt, nil)
	}
	return completed, nil
}

func (s *Service) complete(ctx context.Context, id uuid.UUID, actorID *uuid.UUID, cutoff *time.Time) (*model.Appointment, error) {
	apt, err := s.repo.Transition(ctx, id, func(apt *model.Appointment) (*model.OutboxEvent, error) {
		if apt.Status != model.AppointmentStatusConfirmed {
			return nil, errors.InvalidTransition(string(apt.Status), EventComplete)
		}
		if cutoff != nil && !apt.AppointmentDate.Before(*cutoff) {
			return nil, errors.InvalidTransition(string(apt.Status), EventComplete)
		}
		apt.Status = model.AppointmentStatusCompleted
		return model.NewOutboxEvent(model.EventAppointmentCompleted, apt.Event(actorID))
	})
	s.observe(EventComplete, err)
	if err != nil {
		return nil, fmt.Errorf("failed to complete appointment: %w", err)
	}
	return apt, nil
}

func (s *Service) notifyCompleted(ctx context.Context, apt *model.Appointment, actorID *uuid.UUID) {
	opts := []notification.EmitOption{notification.WithLink(appointmentLink(apt.ID))}
	if actorID != nil {
		opts = append(opts, notification.WithActor(*actorID))
	}
	message := fmt.Sprintf("Your appointment scheduled for %s has been marked as completed.", apt.DisplayDate(s.loc))
	s.notifier.Emit(ctx, apt.UserID, model.NotificationAppointmentCompleted, message, opts...)
}

func (s *Service) Delete(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	var owner uuid.UUID
	err := s.repo.DeleteIf(ctx, id, func(apt *model.Appointment) error {
		if err := policy.CanModifyAppointment(actor, apt); err != nil {
			return err
		}
		if apt.Status.Terminal() {
			return errors.InvalidTransition(string(apt.Status), EventDelete)
		}
		owner = apt.UserID
		return nil
	})
	s.observe(EventDelete, err)
	if err != nil {
		return fmt.Errorf("failed to delete appointment: %w", err)
	}

	if actor.IsAdmin() && owner != actor.UserID {
		s.auditor.Record(ctx, actor, model.AuditActionDelete, model.AuditEntityAppointment, id, nil)
	}
	return nil
}

func (s *Service) observe(event string, err error) {
	if s.metrics == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, errors.ErrInvalidTransition):
		result = "invalid_transition"
	case errors.IsValidation(err):
		result = "invalid"
	case errors.IsForbidden(err):
		result = "forbidden"
	case errors.IsNotFound(err):
		result = "not_found"
	default:
		result = "error"
		log.Error().Err(err).Str("event", event).Msg("Appointment transition failed")
	}
	s.metrics.AppointmentTransitions.WithLabelValues(event, result).Inc()
}

func appointmentLink(id uuid.UUID) string {
	return "/appointments/" + id.String()
}
