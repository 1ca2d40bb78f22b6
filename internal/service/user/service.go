package user

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/carebook/internal/model"
	"github.com/jwalitptl/carebook/internal/policy"
	"github.com/jwalitptl/carebook/internal/repository"
	"github.com/jwalitptl/carebook/internal/service/audit"
	"github.com/jwalitptl/carebook/internal/storage"
	"github.com/jwalitptl/carebook/pkg/errors"
)

const pictureKeyPrefix = "profile-pictures"

type Service struct {
	repo         repository.UserRepository
	appointments repository.AppointmentRepository
	blobs        storage.BlobStore
	auditor      *audit.Service
}

func NewService(repo repository.UserRepository, appointments repository.AppointmentRepository, blobs storage.BlobStore, auditor *audit.Service) *Service {
	return &Service{
		repo:         repo,
		appointments: appointments,
		blobs:        blobs,
		auditor:      auditor,
	}
}

func (s *Service) GetProfile(ctx context.Context, actor model.Actor) (*model.User, error) {
	user, err := s.repo.Get(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (s *Service) UpdateProfile(ctx context.Context, actor model.Actor, req *model.UpdateProfileRequest) (*model.User, error) {
	user, err := s.repo.Get(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if req.FirstName != nil {
		user.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		user.LastName = strings.TrimSpace(*req.LastName)
	}
	if user.FirstName == "" || user.LastName == "" {
		return nil, errors.Validation("first and last name must not be blank", nil)
	}
	if req.Gender != nil {
		user.Gender = req.Gender
	}
	if req.Phone != nil {
		user.Phone = req.Phone
	}
	if req.Address != nil {
		user.Address = req.Address
	}
	if req.DateOfBirth != nil {
		user.DateOfBirth = req.DateOfBirth
	}
	if req.InsuranceProvider != nil {
		user.InsuranceProvider = req.InsuranceProvider
	}
	if req.InsuranceID != nil {
		user.InsuranceID = req.InsuranceID
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

func (s *Service) UpdateSettings(ctx context.Context, actor model.Actor, req *model.UpdateSettingsRequest) (*model.User, error) {
	user, err := s.repo.Get(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if req.Language != nil {
		user.Language = *req.Language
	}
	if req.Theme != nil {
		user.Theme = *req.Theme
	}
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}
	return user, nil
}

// UploadPicture replaces the profile picture. The previous file is removed
// once the new reference is saved.
func (s *Service) UploadPicture(ctx context.Context, actor model.Actor, file *model.FileUpload) (*model.User, error) {
	ext, contentType, err := storage.PicturePolicy.Check(file)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.Get(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	obj, err := s.blobs.Put(ctx, storage.Key(pictureKeyPrefix, user.ID, ext), contentType, file.Size, file.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to store picture: %w", err)
	}

	previous := user.ProfilePicture
	user.ProfilePicture = &obj.Key
	if err := s.repo.Update(ctx, user); err != nil {
		s.removeBlobs(ctx, []string{obj.Key})
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	if previous != nil && *previous != "" {
		s.removeBlobs(ctx, []string{*previous})
	}
	return user, nil
}

func (s *Service) Capabilities(actor model.Actor) model.Capabilities {
	return policy.Capabilities(actor)
}

func (s *Service) ListUsers(ctx context.Context, actor model.Actor, filters *model.UserFilters) ([]*model.User, int, error) {
	if err := policy.CanListUsers(actor); err != nil {
		return nil, 0, err
	}
	if filters == nil {
		filters = &model.UserFilters{}
	}
	if filters.Role != "" && !filters.Role.Valid() {
		return nil, 0, errors.Validation(fmt.Sprintf("unknown role %q", filters.Role), nil)
	}

	users, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	return users, total, nil
}

// ListDoctors is the directory admins pick from when confirming appointments.
func (s *Service) ListDoctors(ctx context.Context, actor model.Actor, page model.Pagination) ([]*model.User, int, error) {
	return s.ListUsers(ctx, actor, &model.UserFilters{Role: model.RoleDoctor, Pagination: page})
}

// ToggleRole switches a non-admin account between user and doctor. A doctor
// with confirmed or completed appointments keeps the role until they are
// reassigned. The repository repeats the check under the user row lock.
func (s *Service) ToggleRole(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.User, error) {
	target, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if err := policy.CanManageUser(actor, target); err != nil {
		return nil, err
	}

	from, to := target.Role, model.RoleDoctor
	if from == model.RoleDoctor {
		to = model.RoleUser
		assigned, err := s.appointments.CountAssigned(ctx, target.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count assigned appointments: %w", err)
		}
		if assigned > 0 {
			return nil, errors.Conflict(fmt.Sprintf("doctor has %d assigned appointments", assigned), nil)
		}
	}

	if err := s.repo.UpdateRole(ctx, target.ID, from, to); err != nil {
		// A concurrent toggle won; the role is no longer what we read.
		if errors.IsNotFound(err) {
			return nil, errors.Conflict("user role changed concurrently", err)
		}
		return nil, fmt.Errorf("failed to update role: %w", err)
	}
	target.Role = to

	s.auditor.Record(ctx, actor, model.AuditActionRoleChange, model.AuditEntityUser, target.ID, &audit.LogOptions{
		Metadata: map[string]interface{}{"from": from, "to": to},
	})
	return target, nil
}

// Ban deletes a non-admin account with everything it owns. Confirmed
// appointments assigned to a banned doctor go back to pending; completed ones
// must be reassigned first.
func (s *Service) Ban(ctx context.Context, actor model.Actor, id uuid.UUID, reason string) error {
	target, err := s.repo.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if err := policy.CanManageUser(actor, target); err != nil {
		return err
	}

	entry, err := s.auditor.Entry(ctx, actor, model.AuditActionBan, model.AuditEntityUser, target.ID, &audit.LogOptions{
		Reason:   reason,
		Metadata: map[string]interface{}{"email": target.Email, "role": target.Role},
	})
	if err != nil {
		return err
	}

	keys, err := s.repo.Ban(ctx, target.ID, entry)
	if err != nil {
		return fmt.Errorf("failed to ban user: %w", err)
	}

	if target.ProfilePicture != nil && *target.ProfilePicture != "" {
		keys = append(keys, *target.ProfilePicture)
	}
	s.removeBlobs(ctx, keys)

	log.Info().
		Str("user_id", target.ID.String()).
		Str("actor_id", actor.UserID.String()).
		Int("files_removed", len(keys)).
		Msg("User banned")
	return nil
}

func (s *Service) removeBlobs(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.blobs.Delete(ctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to remove stored file")
		}
	}
}
