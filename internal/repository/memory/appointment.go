package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/carebook/internal/model"
	"github.com/jwalitptl/carebook/internal/repository"
	"github.com/jwalitptl/carebook/pkg/errors"
)

type appointmentRepository struct {
	s *Store
}

func (r *appointmentRepository) Create(ctx context.Context, apt *model.Appointment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[apt.UserID]; !ok {
		return errors.NotFound("user", nil)
	}
	if err := apt.CheckInvariants(); err != nil {
		return errors.Internal(err)
	}

	if apt.ID == uuid.Nil {
		apt.ID = uuid.New()
	}
	apt.CreatedAt = r.s.now()
	apt.UpdatedAt = apt.CreatedAt
	r.s.appointments[apt.ID] = entry[model.Appointment]{v: clone(apt), seq: r.s.next()}
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, ok := r.s.appointments[id]
	if !ok {
		return nil, errors.NotFound("appointment", nil)
	}
	return clone(e.v), nil
}

func (r *appointmentRepository) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if filters == nil {
		filters = &model.AppointmentFilters{}
	}

	keep := func(a *model.Appointment) bool {
		if filters.UserID != nil && a.UserID != *filters.UserID {
			return false
		}
		if filters.DoctorID != nil && (a.DoctorID == nil || *a.DoctorID != *filters.DoctorID) {
			return false
		}
		if len(filters.Statuses) > 0 {
			match := false
			for _, s := range filters.Statuses {
				if a.Status == s {
					match = true
					break
				}
			}
			if !match {
				return false
			}
		}
		if filters.From != nil && a.AppointmentDate.Before(*filters.From) {
			return false
		}
		if filters.To != nil && a.AppointmentDate.After(*filters.To) {
			return false
		}
		return true
	}

	byDate := func(a *model.Appointment) time.Time { return a.AppointmentDate }
	return sorted(r.s.appointments, byDate, filters.DoctorID == nil, keep), nil
}

func (r *appointmentRepository) Transition(ctx context.Context, id uuid.UUID, fn repository.TransitionFunc) (*model.Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, ok := r.s.appointments[id]
	if !ok {
		return nil, errors.NotFound("appointment", nil)
	}

	working := clone(e.v)
	event, err := fn(working)
	if err != nil {
		return nil, err
	}
	if d := working.DoctorID; d != nil && (e.v.DoctorID == nil || *e.v.DoctorID != *d) {
		if u, ok := r.s.users[*d]; !ok || u.v.Role != model.RoleDoctor {
			return nil, errors.Validation("doctor_id does not reference a doctor", nil)
		}
	}
	if err := working.CheckInvariants(); err != nil {
		return nil, errors.Internal(err)
	}

	working.ID = e.v.ID
	working.UserID = e.v.UserID
	working.CreatedAt = e.v.CreatedAt
	working.UpdatedAt = r.s.now()
	r.s.appointments[id] = entry[model.Appointment]{v: working, seq: e.seq}
	r.s.addOutbox(event)
	return clone(working), nil
}

func (r *appointmentRepository) DeleteIf(ctx context.Context, id uuid.UUID, check func(apt *model.Appointment) error) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, ok := r.s.appointments[id]
	if !ok {
		return errors.NotFound("appointment", nil)
	}
	if err := check(clone(e.v)); err != nil {
		return err
	}
	delete(r.s.appointments, id)
	return nil
}

func (r *appointmentRepository) ListDue(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	due := sorted(r.s.appointments, func(a *model.Appointment) time.Time { return a.AppointmentDate }, false,
		func(a *model.Appointment) bool {
			return a.Status == model.AppointmentStatusConfirmed && a.AppointmentDate.Before(before)
		})

	ids := make([]uuid.UUID, 0, len(due))
	for _, a := range due {
		if limit > 0 && len(ids) == limit {
			break
		}
		ids = append(ids, a.ID)
	}
	return ids, nil
}

func (r *appointmentRepository) HasConfirmedBetween(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, e := range r.s.appointments {
		a := e.v
		if a.UserID == patientID && a.DoctorID != nil && *a.DoctorID == doctorID {
			return true, nil
		}
	}
	return false, nil
}

func (r *appointmentRepository) CountAssigned(ctx context.Context, doctorID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return r.s.countAssigned(doctorID), nil
}
