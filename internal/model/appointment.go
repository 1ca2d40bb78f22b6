package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "pending"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusRejected  AppointmentStatus = "rejected"
	AppointmentStatusCompleted AppointmentStatus = "completed"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentStatusPending, AppointmentStatusConfirmed, AppointmentStatusRejected, AppointmentStatusCompleted:
		return true
	}
	return false
}

// Terminal statuses accept no further events, including deletion.
func (s AppointmentStatus) Terminal() bool {
	return s == AppointmentStatusCompleted
}

type AppointmentPriority string

const (
	PriorityLow    AppointmentPriority = "low"
	PriorityNormal AppointmentPriority = "normal"
	PriorityHigh   AppointmentPriority = "high"
	PriorityUrgent AppointmentPriority = "urgent"
)

type Appointment struct {
	ID              uuid.UUID           `json:"id" db:"id"`
	UserID          uuid.UUID           `json:"user_id" db:"user_id"`
	DoctorID        *uuid.UUID          `json:"doctor_id,omitempty" db:"doctor_id"`
	AppointmentDate time.Time           `json:"appointment_date" db:"appointment_date"`
	Status          AppointmentStatus   `json:"status" db:"status"`
	Reason          string              `json:"reason" db:"reason"`
	RejectionReason *string             `json:"rejection_reason,omitempty" db:"rejection_reason"`
	Priority        AppointmentPriority `json:"priority" db:"priority"`
	Symptoms        *string             `json:"symptoms,omitempty" db:"symptoms"`
	Notes           *string             `json:"notes,omitempty" db:"notes"`
	CreatedAt       time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at" db:"updated_at"`
}

// CheckInvariants verifies that rejection_reason is present exactly when the
// appointment is rejected and doctor_id exactly when it is confirmed or completed.
func (a *Appointment) CheckInvariants() error {
	rejected := a.Status == AppointmentStatusRejected
	if rejected != (a.RejectionReason != nil) {
		return fmt.Errorf("rejection reason inconsistent with status %s", a.Status)
	}
	assigned := a.Status == AppointmentStatusConfirmed || a.Status == AppointmentStatusCompleted
	if assigned != (a.DoctorID != nil) {
		return fmt.Errorf("doctor assignment inconsistent with status %s", a.Status)
	}
	return nil
}

// DisplayDate renders the scheduled time the way notifications quote it.
func (a *Appointment) DisplayDate(loc *time.Location) string {
	t := a.AppointmentDate
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("January 02, 2006 at 03:04 PM")
}

type AppointmentFilters struct {
	UserID   *uuid.UUID
	DoctorID *uuid.UUID
	Statuses []AppointmentStatus
	From     *time.Time
	To       *time.Time
}

type CreateAppointmentRequest struct {
	AppointmentDate time.Time           `json:"appointment_date" binding:"required"`
	Reason          string              `json:"reason" binding:"required,notblank,max=500"`
	Priority        AppointmentPriority `json:"priority" binding:"omitempty,oneof=low normal high urgent"`
	Symptoms        *string             `json:"symptoms" binding:"omitempty,max=1000"`
	Notes           *string             `json:"notes" binding:"omitempty,max=1000"`
}

type UpdateAppointmentRequest struct {
	AppointmentDate *time.Time           `json:"appointment_date"`
	Reason          *string              `json:"reason" binding:"omitempty,notblank,max=500"`
	Priority        *AppointmentPriority `json:"priority" binding:"omitempty,oneof=low normal high urgent"`
	Symptoms        *string              `json:"symptoms" binding:"omitempty,max=1000"`
	Notes           *string              `json:"notes" binding:"omitempty,max=1000"`
}

type ConfirmAppointmentRequest struct {
	DoctorID uuid.UUID `json:"doctor_id" binding:"required"`
}

type RejectAppointmentRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// AppointmentEvent is the outbox payload for appointment transitions.
type AppointmentEvent struct {
	AppointmentID uuid.UUID         `json:"appointment_id"`
	UserID        uuid.UUID         `json:"user_id"`
	DoctorID      *uuid.UUID        `json:"doctor_id,omitempty"`
	Status        AppointmentStatus `json:"status"`
	ActorID       *uuid.UUID        `json:"actor_id,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

func (a *Appointment) Event(actorID *uuid.UUID) AppointmentEvent {
	return AppointmentEvent{
		AppointmentID: a.ID,
		UserID:        a.UserID,
		DoctorID:      a.DoctorID,
		Status:        a.Status,
		ActorID:       actorID,
		OccurredAt:    time.Now(),
	}
}
