package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/carebook/internal/model"
	"github.com/jwalitptl/carebook/pkg/errors"
)

type userRepository struct {
	s *Store
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	user.Email = strings.ToLower(user.Email)
	for _, e := range r.s.users {
		if e.v.Email == user.Email || e.v.CIN == user.CIN {
			return errors.Conflict("user with this email or CIN already exists", nil)
		}
	}

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt = r.s.now()
	user.UpdatedAt = user.CreatedAt
	r.s.users[user.ID] = entry[model.User]{v: clone(user), seq: r.s.next()}
	return nil
}

func (r *userRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, ok := r.s.users[id]
	if !ok {
		return nil, errors.NotFound("user", nil)
	}
	return clone(e.v), nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	email = strings.ToLower(email)
	for _, e := range r.s.users {
		if e.v.Email == email {
			return clone(e.v), nil
		}
	}
	return nil, errors.NotFound("user", nil)
}

func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, ok := r.s.users[user.ID]
	if !ok {
		return errors.NotFound("user", nil)
	}

	// Identity columns are not updatable through this path.
	updated := clone(user)
	updated.Email = e.v.Email
	updated.CIN = e.v.CIN
	updated.PasswordHash = e.v.PasswordHash
	updated.Role = e.v.Role
	updated.CreatedAt = e.v.CreatedAt
	updated.UpdatedAt = r.s.now()
	user.UpdatedAt = updated.UpdatedAt

	r.s.users[user.ID] = entry[model.User]{v: updated, seq: e.seq}
	return nil
}

func (r *userRepository) UpdateRole(ctx context.Context, id uuid.UUID, from, to model.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, ok := r.s.users[id]
	if !ok || e.v.Role != from {
		return errors.NotFound("user", nil)
	}
	if from == model.RoleDoctor {
		if n := r.s.countAssigned(id); n > 0 {
			return errors.Conflict(fmt.Sprintf("doctor has %d assigned appointments", n), nil)
		}
	}
	e.v.Role = to
	e.v.UpdatedAt = r.s.now()
	return nil
}

func (r *userRepository) List(ctx context.Context, filters *model.UserFilters) ([]*model.User, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if filters == nil {
		filters = &model.UserFilters{}
	}

	users := sorted(r.s.users, func(u *model.User) time.Time { return u.CreatedAt }, true, func(u *model.User) bool {
		if filters.Role != "" && u.Role != filters.Role {
			return false
		}
		if filters.Search != "" && !containsFold(u.FullName(), filters.Search) && !containsFold(u.Email, filters.Search) {
			return false
		}
		return true
	})
	return page(users, filters.Pagination), len(users), nil
}

func (r *userRepository) Ban(ctx context.Context, id uuid.UUID, audit *model.AuditLog) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[id]; !ok {
		return nil, errors.NotFound("user", nil)
	}

	completed := 0
	for _, a := range r.s.appointments {
		if a.v.Status == model.AppointmentStatusCompleted && a.v.DoctorID != nil && *a.v.DoctorID == id {
			completed++
		}
	}
	if completed > 0 {
		return nil, errors.Conflict(fmt.Sprintf("doctor has %d completed appointments", completed), nil)
	}

	for aid, a := range r.s.appointments {
		switch {
		case a.v.UserID == id:
			delete(r.s.appointments, aid)
		case a.v.DoctorID != nil && *a.v.DoctorID == id:
			a.v.DoctorID = nil
			a.v.Status = model.AppointmentStatusPending
			a.v.UpdatedAt = r.s.now()
		}
	}

	for cid, c := range r.s.comments {
		if c.v.UserID == id {
			r.s.deleteComment(cid)
		}
	}
	for rid, rep := range r.s.replies {
		if rep.v.UserID == id {
			delete(r.s.replies, rid)
		}
	}
	for cid, likers := range r.s.likes {
		if _, ok := likers[id]; ok {
			delete(likers, id)
			r.s.recountLikes(cid)
		}
	}

	for nid, n := range r.s.notifications {
		if n.v.UserID == id {
			delete(r.s.notifications, nid)
			continue
		}
		if n.v.ActorID != nil && *n.v.ActorID == id {
			n.v.ActorID = nil
		}
	}

	var keys []string
	for did, d := range r.s.documents {
		switch {
		case d.v.UserID == id:
			keys = append(keys, d.v.StorageKey)
			delete(r.s.documents, did)
		case d.v.UploadedBy == id:
			d.v.UploadedBy = d.v.UserID
		}
	}

	delete(r.s.users, id)
	r.s.addAudit(audit)
	return keys, nil
}
