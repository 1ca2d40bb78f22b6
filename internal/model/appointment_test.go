package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAppointmentCheckInvariants(t *testing.T) {
	doctor := uuid.New()
	reason := "no availability"

	tests := []struct {
		name    string
		apt     Appointment
		wantErr bool
	}{
		{"pending clean", Appointment{Status: AppointmentStatusPending}, false},
		{"pending with doctor", Appointment{Status: AppointmentStatusPending, DoctorID: &doctor}, true},
		{"confirmed with doctor", Appointment{Status: AppointmentStatusConfirmed, DoctorID: &doctor}, false},
		{"confirmed without doctor", Appointment{Status: AppointmentStatusConfirmed}, true},
		{"completed with doctor", Appointment{Status: AppointmentStatusCompleted, DoctorID: &doctor}, false},
		{"rejected with reason", Appointment{Status: AppointmentStatusRejected, RejectionReason: &reason}, false},
		{"rejected without reason", Appointment{Status: AppointmentStatusRejected}, true},
		{"pending with reason", Appointment{Status: AppointmentStatusPending, RejectionReason: &reason}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.apt.CheckInvariants()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAppointmentDisplayDate(t *testing.T) {
	apt := Appointment{AppointmentDate: time.Date(2030, time.March, 5, 14, 30, 0, 0, time.UTC)}
	assert.Equal(t, "March 05, 2030 at 02:30 PM", apt.DisplayDate(time.UTC))
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, AppointmentStatusCompleted.Terminal())
	assert.False(t, AppointmentStatusRejected.Terminal())
	assert.False(t, AppointmentStatus("cancelled").Valid())
}
