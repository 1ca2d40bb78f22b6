package document

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/carebook/internal/model"
	"github.com/jwalitptl/carebook/internal/policy"
	"github.com/jwalitptl/carebook/internal/repository"
	"github.com/jwalitptl/carebook/internal/service/audit"
	"github.com/jwalitptl/carebook/internal/service/notification"
	"github.com/jwalitptl/carebook/internal/storage"
	"github.com/jwalitptl/carebook/pkg/errors"
	"github.com/jwalitptl/carebook/pkg/metrics"
)

const keyPrefix = "documents"

type Service struct {
	repo         repository.DocumentRepository
	users        repository.UserRepository
	appointments repository.AppointmentRepository
	blobs        storage.BlobStore
	notifier     notification.Service
	auditor      *audit.Service
	metrics      *metrics.Metrics
}

func NewService(
	repo repository.DocumentRepository,
	users repository.UserRepository,
	appointments repository.AppointmentRepository,
	blobs storage.BlobStore,
	notifier notification.Service,
	auditor *audit.Service,
	m *metrics.Metrics,
) *Service {
	return &Service{
		repo:         repo,
		users:        users,
		appointments: appointments,
		blobs:        blobs,
		notifier:     notifier,
		auditor:      auditor,
		metrics:      m,
	}
}

// errNoCareRelationship is returned to doctors without a confirmed
// appointment with the patient.
var errNoCareRelationship = errors.Forbidden("Access denied. You don't have a confirmed appointment with this patient.")

func (s *Service) requireCareRelationship(ctx context.Context, doctorID, patientID uuid.UUID) error {
	ok, err := s.appointments.HasConfirmedBetween(ctx, doctorID, patientID)
	if err != nil {
		return fmt.Errorf("failed to check appointments: %w", err)
	}
	if !ok {
		return errNoCareRelationship
	}
	return nil
}

// Upload stores a file in patientID's record. The blob is written before the
// row; if the row cannot be written the blob is removed again.
func (s *Service) Upload(ctx context.Context, actor model.Actor, patientID uuid.UUID, file *model.FileUpload) (*model.Document, error) {
	if err := policy.CanUploadDocument(actor, patientID); err != nil {
		return nil, err
	}
	byDoctor := actor.UserID != patientID
	if byDoctor {
		if _, err := s.users.Get(ctx, patientID); err != nil {
			return nil, fmt.Errorf("failed to get patient: %w", err)
		}
		if err := s.requireCareRelationship(ctx, actor.UserID, patientID); err != nil {
			return nil, err
		}
	}

	ext, contentType, err := storage.DocumentPolicy.Check(file)
	if err != nil {
		return nil, err
	}

	key := storage.Key(keyPrefix, patientID, ext)
	obj, err := s.blobs.Put(ctx, key, contentType, file.Size, file.Body)
	s.observe("put", err)
	if err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	doc := &model.Document{
		ID:          uuid.New(),
		UserID:      patientID,
		UploadedBy:  actor.UserID,
		Name:        filepath.Base(file.Name),
		StorageKey:  obj.Key,
		ContentType: contentType,
		SizeBytes:   obj.Size,
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		s.removeBlob(ctx, obj.Key)
		return nil, fmt.Errorf("failed to save document: %w", err)
	}

	if byDoctor {
		s.notifier.Emit(ctx, patientID, model.NotificationDocumentUploaded,
			fmt.Sprintf("%s has uploaded a document: %s", s.doctorName(ctx, actor.UserID), doc.Name),
			notification.WithActor(actor.UserID),
			notification.WithLink("/documents/"+doc.ID.String()),
		)
	}
	return doc, nil
}

func (s *Service) ListMine(ctx context.Context, actor model.Actor) ([]*model.Document, error) {
	docs, err := s.repo.ListByUser(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// ListForPatient is the doctor and admin view of a patient's record.
func (s *Service) ListForPatient(ctx context.Context, actor model.Actor, patientID uuid.UUID) ([]*model.Document, error) {
	switch {
	case actor.UserID == patientID, actor.IsAdmin():
	case actor.IsDoctor():
		if err := s.requireCareRelationship(ctx, actor.UserID, patientID); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Forbidden("not allowed to view this record")
	}

	docs, err := s.repo.ListByUser(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// Get hides documents the actor may not see behind NotFound.
func (s *Service) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Document, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	related := false
	if actor.IsDoctor() && actor.UserID != doc.UserID {
		if related, err = s.appointments.HasConfirmedBetween(ctx, actor.UserID, doc.UserID); err != nil {
			return nil, fmt.Errorf("failed to check appointments: %w", err)
		}
	}
	if err := policy.CanReadDocument(actor, doc, related); err != nil {
		return nil, errors.NotFound("document", nil)
	}
	return doc, nil
}

// Open returns the document and its content. The caller closes the reader.
func (s *Service) Open(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Document, io.ReadCloser, error) {
	doc, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}
	body, _, err := s.blobs.Get(ctx, doc.StorageKey)
	s.observe("get", err)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read document: %w", err)
	}
	return doc, body, nil
}

func (s *Service) Delete(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	doc, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := policy.CanDeleteDocument(actor, doc); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, doc.ID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	s.removeBlob(ctx, doc.StorageKey)

	if actor.UserID != doc.UserID && actor.UserID != doc.UploadedBy {
		s.auditor.Record(ctx, actor, model.AuditActionDelete, model.AuditEntityDocument, doc.ID, &audit.LogOptions{
			Metadata: map[string]interface{}{"owner_id": doc.UserID, "name": doc.Name},
		})
	}
	return nil
}

func (s *Service) removeBlob(ctx context.Context, key string) {
	err := s.blobs.Delete(ctx, key)
	s.observe("delete", err)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to remove stored file")
	}
}

func (s *Service) doctorName(ctx context.Context, id uuid.UUID) string {
	user, err := s.users.Get(ctx, id)
	if err != nil {
		return "Your doctor"
	}
	return fmt.Sprintf("Dr. %s %s", user.FirstName, user.LastName)
}

func (s *Service) observe(op string, err error) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.BlobOperations.WithLabelValues(op, status).Inc()
}
