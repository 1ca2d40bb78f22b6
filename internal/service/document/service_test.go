package document

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/carebook/internal/model"
	"github.com/jwalitptl/carebook/internal/repository/memory"
	"github.com/jwalitptl/carebook/internal/service/audit"
	"github.com/jwalitptl/carebook/internal/service/notification"
	"github.com/jwalitptl/carebook/internal/storage"
	"github.com/jwalitptl/carebook/pkg/errors"
	"github.com/jwalitptl/carebook/pkg/metrics"
)

type fixture struct {
	svc      *Service
	store    *memory.Store
	blobs    *storage.MemoryStore
	notifier notification.Service
	patient  *model.User
	stranger *model.User
	doctor   *model.User
	admin    *model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	blobs := storage.NewMemoryStore()

	mk := func(cin, first, last string, role model.Role) *model.User {
		u := &model.User{CIN: cin, Email: cin + "@example.com", FirstName: first, LastName: last, Role: role}
		require.NoError(t, store.Users().Create(context.Background(), u))
		return u
	}

	m := metrics.NewForTest()
	notifier := notification.NewService(store.Notifications(), store.Users(), nil, m, notification.Config{MaxAttempts: 1})
	svc := NewService(store.Documents(), store.Users(), store.Appointments(), blobs, notifier, audit.NewService(store.Audit()), m)

	return &fixture{
		svc:      svc,
		store:    store,
		blobs:    blobs,
		notifier: notifier,
		patient:  mk("p1", "Nora", "Patient", model.RoleUser),
		stranger: mk("p2", "Sam", "Stranger", model.RoleUser),
		doctor:   mk("d1", "Karim", "Benali", model.RoleDoctor),
		admin:    mk("a1", "Ada", "Admin", model.RoleAdmin),
	}
}

func (f *fixture) confirmAppointment(t *testing.T) {
	t.Helper()
	apt := &model.Appointment{
		UserID:          f.patient.ID,
		DoctorID:        &f.doctor.ID,
		AppointmentDate: time.Now().Add(24 * time.Hour),
		Status:          model.AppointmentStatusConfirmed,
		Reason:          "checkup",
		Priority:        model.PriorityNormal,
	}
	require.NoError(t, f.store.Appointments().Create(context.Background(), apt))
}

func pdf(name string) *model.FileUpload {
	const body = "%PDF-1.4"
	return &model.FileUpload{Name: name, ContentType: "application/pdf", Size: int64(len(body)), Body: strings.NewReader(body)}
}

func TestPatientUploadsOwnDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc, err := f.svc.Upload(ctx, f.patient.Actor(), f.patient.ID, pdf("blood-test.pdf"))
	require.NoError(t, err)
	assert.Equal(t, f.patient.ID, doc.UserID)
	assert.Equal(t, f.patient.ID, doc.UploadedBy)
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.True(t, strings.HasPrefix(doc.StorageKey, "documents/"+f.patient.ID.String()+"/"))
	assert.Equal(t, 1, f.blobs.Len())

	docs, err := f.svc.ListMine(ctx, f.patient.Actor())
	require.NoError(t, err)
	require.Len(t, docs, 1)

	got, body, err := f.svc.Open(ctx, f.patient.Actor(), doc.ID)
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))
	assert.Equal(t, doc.ID, got.ID)
}

func TestUploadRejectsDisallowedType(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Upload(context.Background(), f.patient.Actor(), f.patient.ID, &model.FileUpload{
		Name: "script.sh", Size: 4, Body: strings.NewReader("echo"),
	})
	assert.True(t, errors.IsValidation(err))
	assert.Equal(t, 0, f.blobs.Len())
}

func TestUploadToOtherPatientForbidden(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Upload(context.Background(), f.stranger.Actor(), f.patient.ID, pdf("x.pdf"))
	assert.True(t, errors.IsForbidden(err))
}

func TestDoctorUploadRequiresConfirmedAppointment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Upload(ctx, f.doctor.Actor(), f.patient.ID, pdf("results.pdf"))
	require.True(t, errors.IsForbidden(err))
	assert.Contains(t, err.Error(), "confirmed appointment")

	f.confirmAppointment(t)
	doc, err := f.svc.Upload(ctx, f.doctor.Actor(), f.patient.ID, pdf("results.pdf"))
	require.NoError(t, err)
	assert.Equal(t, f.doctor.ID, doc.UploadedBy)

	inbox, err := f.notifier.List(ctx, f.patient.Actor(), false, model.Pagination{})
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, model.NotificationDocumentUploaded, inbox[0].Type)
	assert.Equal(t, "Dr. Karim Benali has uploaded a document: results.pdf", inbox[0].Message)
}

func TestDoctorUploadUnknownPatient(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Upload(context.Background(), f.doctor.Actor(), uuid.New(), pdf("x.pdf"))
	assert.True(t, errors.IsNotFound(err))
}

func TestGetHidesForeignDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc, err := f.svc.Upload(ctx, f.patient.Actor(), f.patient.ID, pdf("x.pdf"))
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, f.stranger.Actor(), doc.ID)
	assert.True(t, errors.IsNotFound(err))

	_, err = f.svc.Get(ctx, f.doctor.Actor(), doc.ID)
	assert.True(t, errors.IsNotFound(err))

	f.confirmAppointment(t)
	_, err = f.svc.Get(ctx, f.doctor.Actor(), doc.ID)
	assert.NoError(t, err)

	_, err = f.svc.Get(ctx, f.admin.Actor(), doc.ID)
	assert.NoError(t, err)
}

func TestListForPatient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Upload(ctx, f.patient.Actor(), f.patient.ID, pdf("x.pdf"))
	require.NoError(t, err)

	_, err = f.svc.ListForPatient(ctx, f.doctor.Actor(), f.patient.ID)
	assert.True(t, errors.IsForbidden(err))
	_, err = f.svc.ListForPatient(ctx, f.stranger.Actor(), f.patient.ID)
	assert.True(t, errors.IsForbidden(err))

	f.confirmAppointment(t)
	docs, err := f.svc.ListForPatient(ctx, f.doctor.Actor(), f.patient.ID)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestDeleteRemovesBlob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc, err := f.svc.Upload(ctx, f.patient.Actor(), f.patient.ID, pdf("x.pdf"))
	require.NoError(t, err)

	err = f.svc.Delete(ctx, f.stranger.Actor(), doc.ID)
	assert.True(t, errors.IsNotFound(err))

	require.NoError(t, f.svc.Delete(ctx, f.admin.Actor(), doc.ID))
	assert.Equal(t, 0, f.blobs.Len())

	_, err = f.store.Documents().Get(ctx, doc.ID)
	assert.True(t, errors.IsNotFound(err))

	_, total, err := f.store.Audit().List(ctx, &model.AuditFilters{EntityType: model.AuditEntityDocument})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestDoctorCannotDeletePatientUpload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.confirmAppointment(t)
	doc, err := f.svc.Upload(ctx, f.patient.Actor(), f.patient.ID, pdf("x.pdf"))
	require.NoError(t, err)

	err = f.svc.Delete(ctx, f.doctor.Actor(), doc.ID)
	assert.True(t, errors.IsForbidden(err))
}
