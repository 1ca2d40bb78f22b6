package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/carebook/internal/model"
	"github.com/jwalitptl/carebook/internal/repository"
	"github.com/jwalitptl/carebook/pkg/errors"
)

const appointmentColumns = `
	id, user_id, doctor_id, appointment_date, status, reason, rejection_reason,
	priority, symptoms, notes, created_at, updated_at`

type appointmentRepository struct {
	BaseRepository
}

func NewAppointmentRepository(base BaseRepository) repository.AppointmentRepository {
	return &appointmentRepository{base}
}

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	query := `
		INSERT INTO appointments (
			id, user_id, doctor_id, appointment_date, status, reason,
			rejection_reason, priority, symptoms, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	if appointment.ID == uuid.Nil {
		appointment.ID = uuid.New()
	}
	appointment.CreatedAt = time.Now()
	appointment.UpdatedAt = appointment.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		appointment.ID,
		appointment.UserID,
		appointment.DoctorID,
		appointment.AppointmentDate,
		appointment.Status,
		appointment.Reason,
		appointment.RejectionReason,
		appointment.Priority,
		appointment.Symptoms,
		appointment.Notes,
		appointment.CreatedAt,
		appointment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", mapError(err, "appointment"))
	}
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`

	var appointment model.Appointment
	if err := r.db.GetContext(ctx, &appointment, query, id); err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", mapError(err, "appointment"))
	}
	return &appointment, nil
}

func (r *appointmentRepository) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	if filters == nil {
		filters = &model.AppointmentFilters{}
	}

	conds := []string{"1=1"}
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filters.UserID != nil {
		conds = append(conds, "user_id = "+arg(*filters.UserID))
	}
	if filters.DoctorID != nil {
		conds = append(conds, "doctor_id = "+arg(*filters.DoctorID))
	}
	if len(filters.Statuses) > 0 {
		statuses := make([]string, len(filters.Statuses))
		for i, s := range filters.Statuses {
			statuses[i] = string(s)
		}
		conds = append(conds, "status = ANY("+arg(pq.Array(statuses))+")")
	}
	if filters.From != nil {
		conds = append(conds, "appointment_date >= "+arg(*filters.From))
	}
	if filters.To != nil {
		conds = append(conds, "appointment_date <= "+arg(*filters.To))
	}

	order := " ORDER BY appointment_date DESC"
	if filters.DoctorID != nil {
		order = " ORDER BY appointment_date ASC"
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE ` + strings.Join(conds, " AND ") + order

	appointments := []*model.Appointment{}
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", mapError(err, "appointment"))
	}
	return appointments, nil
}

func (r *appointmentRepository) Transition(ctx context.Context, id uuid.UUID, fn repository.TransitionFunc) (*model.Appointment, error) {
	var appointment model.Appointment

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1 FOR UPDATE`
		if err := tx.GetContext(ctx, &appointment, query, id); err != nil {
			return mapError(err, "appointment")
		}

		assigned := appointment.DoctorID
		event, err := fn(&appointment)
		if err != nil {
			return err
		}
		if appointment.DoctorID != nil && (assigned == nil || *assigned != *appointment.DoctorID) {
			if err := lockDoctor(ctx, tx, *appointment.DoctorID); err != nil {
				return err
			}
		}

		appointment.UpdatedAt = time.Now()
		update := `
			UPDATE appointments SET
				doctor_id = $1,
				appointment_date = $2,
				status = $3,
				reason = $4,
				rejection_reason = $5,
				priority = $6,
				symptoms = $7,
				notes = $8,
				updated_at = $9
			WHERE id = $10
		`
		if _, err := tx.ExecContext(ctx, update,
			appointment.DoctorID,
			appointment.AppointmentDate,
			appointment.Status,
			appointment.Reason,
			appointment.RejectionReason,
			appointment.Priority,
			appointment.Symptoms,
			appointment.Notes,
			appointment.UpdatedAt,
			appointment.ID,
		); err != nil {
			return fmt.Errorf("failed to update appointment: %w", mapError(err, "appointment"))
		}

		return insertOutbox(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}
	return &appointment, nil
}

// lockDoctor holds a share lock on the doctor's row until commit, so a
// concurrent demotion or ban waits for the assignment and then sees it.
func lockDoctor(ctx context.Context, tx *sqlx.Tx, doctorID uuid.UUID) error {
	var role model.Role
	err := tx.GetContext(ctx, &role, `SELECT role FROM users WHERE id = $1 FOR SHARE`, doctorID)
	if err != nil {
		if err = mapError(err, "user"); errors.IsNotFound(err) {
			return errors.Validation("doctor_id does not reference a doctor", err)
		}
		return fmt.Errorf("failed to lock doctor: %w", err)
	}
	if role != model.RoleDoctor {
		return errors.Validation("doctor_id does not reference a doctor", nil)
	}
	return nil
}

func (r *appointmentRepository) DeleteIf(ctx context.Context, id uuid.UUID, check func(apt *model.Appointment) error) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var appointment model.Appointment
		query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1 FOR UPDATE`
		if err := tx.GetContext(ctx, &appointment, query, id); err != nil {
			return mapError(err, "appointment")
		}

		if err := check(&appointment); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM appointments WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete appointment: %w", mapError(err, "appointment"))
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return errors.NotFound("appointment", nil)
		}
		return nil
	})
}

func (r *appointmentRepository) ListDue(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM appointments
		WHERE status = 'confirmed' AND appointment_date < $1
		ORDER BY appointment_date ASC
		LIMIT $2
	`
	ids := []uuid.UUID{}
	if err := r.db.SelectContext(ctx, &ids, query, before, limit); err != nil {
		return nil, fmt.Errorf("failed to list due appointments: %w", mapError(err, "appointment"))
	}
	return ids, nil
}

func (r *appointmentRepository) HasConfirmedBetween(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1 AND user_id = $2
			AND status IN ('confirmed', 'completed')
		)
	`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, doctorID, patientID); err != nil {
		return false, fmt.Errorf("failed to check doctor-patient relation: %w", mapError(err, "appointment"))
	}
	return exists, nil
}

func (r *appointmentRepository) CountAssigned(ctx context.Context, doctorID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM appointments WHERE doctor_id = $1 AND status IN ('confirmed', 'completed')`
	if err := r.db.GetContext(ctx, &count, query, doctorID); err != nil {
		return 0, fmt.Errorf("failed to count assigned appointments: %w", mapError(err, "appointment"))
	}
	return count, nil
}
