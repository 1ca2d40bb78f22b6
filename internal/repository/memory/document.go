package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/carebook/internal/model"
	"github.com/jwalitptl/carebook/pkg/errors"
)

type documentRepository struct {
	s *Store
}

func (r *documentRepository) Create(ctx context.Context, doc *model.Document) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[doc.UserID]; !ok {
		return errors.NotFound("user", nil)
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	doc.CreatedAt = r.s.now()
	r.s.documents[doc.ID] = entry[model.Document]{v: clone(doc), seq: r.s.next()}
	return nil
}

func (r *documentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, ok := r.s.documents[id]
	if !ok {
		return nil, errors.NotFound("document", nil)
	}
	return clone(e.v), nil
}

func (r *documentRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.Document, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return sorted(r.s.documents, func(d *model.Document) time.Time { return d.CreatedAt }, true, func(d *model.Document) bool {
		return d.UserID == userID
	}), nil
}

func (r *documentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.documents[id]; !ok {
		return errors.NotFound("document", nil)
	}
	delete(r.s.documents, id)
	return nil
}
