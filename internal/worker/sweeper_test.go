package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/carebook/internal/model"
	"github.com/jwalitptl/carebook/internal/repository/memory"
	"github.com/jwalitptl/carebook/internal/service/appointment"
	"github.com/jwalitptl/carebook/internal/service/audit"
	"github.com/jwalitptl/carebook/internal/service/notification"
	"github.com/jwalitptl/carebook/pkg/metrics"
)

type stubCompleter struct {
	results []int
	cutoffs []time.Time
	err     error
}

func (s *stubCompleter) CompleteDue(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	s.cutoffs = append(s.cutoffs, cutoff)
	if len(s.results) == 0 {
		return 0, s.err
	}
	n := s.results[0]
	s.results = s.results[1:]
	return n, nil
}

func TestSweepDrainsFullBatches(t *testing.T) {
	stub := &stubCompleter{results: []int{2, 2, 1}}
	w := NewCompletionSweeper(stub, time.Minute, time.Hour, 2)
	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	total, err := w.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, stub.cutoffs, 3)
	assert.Equal(t, now.Add(-time.Hour), stub.cutoffs[0])
}

func TestSweepReportsError(t *testing.T) {
	stub := &stubCompleter{err: assert.AnError}
	w := NewCompletionSweeper(stub, time.Minute, 0, 10)

	_, err := w.Sweep(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
}

func TestSweepCompletesPastConfirmedAppointments(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	m := metrics.NewForTest()

	patient := &model.User{CIN: "p", Email: "p@example.com", FirstName: "P", LastName: "P", Role: model.RoleUser}
	doctor := &model.User{CIN: "d", Email: "d@example.com", FirstName: "D", LastName: "D", Role: model.RoleDoctor}
	require.NoError(t, store.Users().Create(ctx, patient))
	require.NoError(t, store.Users().Create(ctx, doctor))

	notifier := notification.NewService(store.Notifications(), store.Users(), nil, m, notification.Config{MaxAttempts: 1})
	svc, err := appointment.NewService(store.Appointments(), store.Users(), notifier, audit.NewService(store.Audit()), m, appointment.Config{Timezone: "UTC"})
	require.NoError(t, err)

	mk := func(at time.Time, status model.AppointmentStatus) *model.Appointment {
		apt := &model.Appointment{UserID: patient.ID, AppointmentDate: at, Status: status, Reason: "checkup", Priority: model.PriorityNormal}
		if status == model.AppointmentStatusConfirmed {
			apt.DoctorID = &doctor.ID
		}
		require.NoError(t, store.Appointments().Create(ctx, apt))
		return apt
	}
	past := mk(time.Now().Add(-3*time.Hour), model.AppointmentStatusConfirmed)
	recent := mk(time.Now().Add(-10*time.Minute), model.AppointmentStatusConfirmed)
	pending := mk(time.Now().Add(-3*time.Hour), model.AppointmentStatusPending)

	w := NewCompletionSweeper(svc, time.Minute, time.Hour, 10)
	total, err := w.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	for apt, want := range map[*model.Appointment]model.AppointmentStatus{
		past:    model.AppointmentStatusCompleted,
		recent:  model.AppointmentStatusConfirmed,
		pending: model.AppointmentStatusPending,
	} {
		got, err := store.Appointments().Get(ctx, apt.ID)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status)
	}
}
