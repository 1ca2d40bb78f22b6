package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/carebook/internal/model"
	"github.com/jwalitptl/carebook/pkg/errors"
)

func seedUser(t *testing.T, s *Store, role model.Role) *model.User {
	t.Helper()
	u := &model.User{
		CIN:       uuid.NewString()[:12],
		Email:     uuid.NewString() + "@example.com",
		FirstName: "Test",
		LastName:  string(role),
		Role:      role,
	}
	require.NoError(t, s.Users().Create(context.Background(), u))
	return u
}

func TestUserUniqueness(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	u := &model.User{CIN: "AB123", Email: "Jane@Example.com", Role: model.RoleUser}
	require.NoError(t, s.Users().Create(ctx, u))
	assert.Equal(t, "jane@example.com", u.Email)

	err := s.Users().Create(ctx, &model.User{CIN: "OTHER", Email: "jane@example.com"})
	assert.True(t, errors.Is(err, errors.ErrConflict))

	err = s.Users().Create(ctx, &model.User{CIN: "AB123", Email: "other@example.com"})
	assert.True(t, errors.Is(err, errors.ErrConflict))

	got, err := s.Users().GetByEmail(ctx, "JANE@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestUpdateRoleRequiresExpectedRole(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	u := seedUser(t, s, model.RoleUser)

	require.NoError(t, s.Users().UpdateRole(ctx, u.ID, model.RoleUser, model.RoleDoctor))
	err := s.Users().UpdateRole(ctx, u.ID, model.RoleUser, model.RoleDoctor)
	assert.True(t, errors.IsNotFound(err))
}

func TestToggleLikeCounterMatchesLikers(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	repo := s.Comments()

	author := seedUser(t, s, model.RoleUser)
	a := seedUser(t, s, model.RoleUser)
	b := seedUser(t, s, model.RoleUser)

	c := &model.Comment{UserID: author.ID, Content: "hello"}
	require.NoError(t, repo.Create(ctx, c))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		for _, u := range []*model.User{a, b} {
			wg.Add(1)
			go func(id uuid.UUID) {
				defer wg.Done()
				_, _, err := repo.ToggleLike(ctx, c.ID, id)
				assert.NoError(t, err)
			}(u.ID)
		}
	}
	wg.Wait()

	got, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, len(s.likes[c.ID]), got.Likes)
	assert.Equal(t, 0, got.Likes)
}

func TestDeleteCommentCascadesReplies(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	repo := s.Comments()

	author := seedUser(t, s, model.RoleUser)
	c := &model.Comment{UserID: author.ID, Content: "parent"}
	require.NoError(t, repo.Create(ctx, c))
	r := &model.Reply{CommentID: c.ID, UserID: author.ID, Content: "child"}
	require.NoError(t, repo.CreateReply(ctx, r))

	require.NoError(t, repo.Delete(ctx, c.ID, nil))

	replies, err := repo.ListReplies(ctx, []uuid.UUID{c.ID})
	require.NoError(t, err)
	assert.Empty(t, replies)

	err = repo.DeleteReply(ctx, c.ID, r.ID, nil)
	assert.True(t, errors.IsNotFound(err))
}

func TestBanCascades(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	patient := seedUser(t, s, model.RoleUser)
	doctor := seedUser(t, s, model.RoleDoctor)
	colleague := seedUser(t, s, model.RoleDoctor)
	admin := seedUser(t, s, model.RoleAdmin)

	future := time.Now().Add(48 * time.Hour)
	confirmed := &model.Appointment{
		UserID: patient.ID, DoctorID: &doctor.ID, AppointmentDate: future,
		Status: model.AppointmentStatusConfirmed, Reason: "checkup", Priority: model.PriorityNormal,
	}
	completed := &model.Appointment{
		UserID: patient.ID, DoctorID: &doctor.ID, AppointmentDate: future,
		Status: model.AppointmentStatusCompleted, Reason: "followup", Priority: model.PriorityNormal,
	}
	own := &model.Appointment{
		UserID: doctor.ID, AppointmentDate: future,
		Status: model.AppointmentStatusPending, Reason: "own", Priority: model.PriorityNormal,
	}
	for _, a := range []*model.Appointment{confirmed, completed, own} {
		require.NoError(t, s.Appointments().Create(ctx, a))
	}

	c := &model.Comment{UserID: patient.ID, Content: "thanks doc"}
	require.NoError(t, s.Comments().Create(ctx, c))
	_, likes, err := s.Comments().ToggleLike(ctx, c.ID, doctor.ID)
	require.NoError(t, err)
	require.Equal(t, 1, likes)

	report := &model.Document{UserID: patient.ID, UploadedBy: doctor.ID, Name: "lab.pdf", StorageKey: "documents/lab.pdf"}
	notes := &model.Document{UserID: doctor.ID, UploadedBy: doctor.ID, Name: "own.pdf", StorageKey: "documents/own.pdf"}
	require.NoError(t, s.Documents().Create(ctx, report))
	require.NoError(t, s.Documents().Create(ctx, notes))

	ban := func() ([]string, error) {
		return s.Users().Ban(ctx, doctor.ID, &model.AuditLog{
			ActorID: admin.ID, Action: model.AuditActionBan, EntityType: model.AuditEntityUser, EntityID: doctor.ID,
		})
	}

	// The completed appointment is patient history and blocks the ban.
	_, err = ban()
	assert.True(t, errors.Is(err, errors.ErrConflict), "got %v", err)
	untouched, err := s.Appointments().Get(ctx, confirmed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusConfirmed, untouched.Status)

	_, err = s.Appointments().Transition(ctx, completed.ID, func(apt *model.Appointment) (*model.OutboxEvent, error) {
		apt.DoctorID = &colleague.ID
		return nil, nil
	})
	require.NoError(t, err)

	keys, err := ban()
	require.NoError(t, err)
	assert.Equal(t, []string{"documents/own.pdf"}, keys)

	_, err = s.Users().Get(ctx, doctor.ID)
	assert.True(t, errors.IsNotFound(err))

	reverted, err := s.Appointments().Get(ctx, confirmed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusPending, reverted.Status)
	assert.Nil(t, reverted.DoctorID)
	assert.NoError(t, reverted.CheckInvariants())

	history, err := s.Appointments().Get(ctx, completed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCompleted, history.Status)
	assert.Equal(t, colleague.ID, *history.DoctorID)

	_, err = s.Appointments().Get(ctx, own.ID)
	assert.True(t, errors.IsNotFound(err))

	kept, err := s.Documents().Get(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, patient.ID, kept.UploadedBy)

	liked, err := s.Comments().Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, liked.Likes)

	logs, total, err := s.Audit().List(ctx, &model.AuditFilters{Action: model.AuditActionBan})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, doctor.ID, logs[0].EntityID)
}

func TestDemotionBlockedByAssignments(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	patient := seedUser(t, s, model.RoleUser)
	doctor := seedUser(t, s, model.RoleDoctor)
	apt := &model.Appointment{
		UserID: patient.ID, DoctorID: &doctor.ID, AppointmentDate: time.Now().Add(-time.Hour),
		Status: model.AppointmentStatusCompleted, Reason: "checkup", Priority: model.PriorityNormal,
	}
	require.NoError(t, s.Appointments().Create(ctx, apt))

	n, err := s.Appointments().CountAssigned(ctx, doctor.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	err = s.Users().UpdateRole(ctx, doctor.ID, model.RoleDoctor, model.RoleUser)
	assert.True(t, errors.Is(err, errors.ErrConflict), "got %v", err)

	got, err := s.Users().Get(ctx, doctor.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleDoctor, got.Role)
}

func TestTransitionRequiresExistingDoctor(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	patient := seedUser(t, s, model.RoleUser)
	plain := seedUser(t, s, model.RoleUser)
	apt := &model.Appointment{
		UserID: patient.ID, AppointmentDate: time.Now().Add(24 * time.Hour),
		Status: model.AppointmentStatusPending, Reason: "checkup", Priority: model.PriorityNormal,
	}
	require.NoError(t, s.Appointments().Create(ctx, apt))

	for _, doctorID := range []uuid.UUID{uuid.New(), plain.ID} {
		id := doctorID
		_, err := s.Appointments().Transition(ctx, apt.ID, func(a *model.Appointment) (*model.OutboxEvent, error) {
			a.Status = model.AppointmentStatusConfirmed
			a.DoctorID = &id
			return nil, nil
		})
		assert.True(t, errors.IsValidation(err), "got %v", err)
	}

	got, err := s.Appointments().Get(ctx, apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusPending, got.Status)
	assert.Nil(t, got.DoctorID)
}

func TestOutboxLease(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	repo := s.Outbox()

	evt, err := model.NewOutboxEvent(model.EventNotificationCreated, map[string]string{"k": "v"})
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, evt))

	claimed, err := repo.ClaimPending(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	again, err := repo.ClaimPending(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, repo.UpdateStatus(ctx, evt.ID, model.OutboxStatusProcessed, nil, nil))
	removed, err := repo.DeleteProcessedBefore(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}
