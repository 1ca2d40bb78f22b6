// Package memory is an in-process implementation of the repository
// interfaces. One mutex guards the whole store, which gives every method the
// serialization the postgres implementation gets from row locks. It backs
// local development (database.driver: memory) and the service tests.
package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/carebook/internal/model"
	"github.com/jwalitptl/carebook/internal/repository"
)

type entry[T any] struct {
	v   *T
	seq int64
}

type Store struct {
	mu  sync.Mutex
	seq int64

	users         map[uuid.UUID]entry[model.User]
	appointments  map[uuid.UUID]entry[model.Appointment]
	comments      map[uuid.UUID]entry[model.Comment]
	replies       map[uuid.UUID]entry[model.Reply]
	likes         map[uuid.UUID]map[uuid.UUID]struct{}
	notifications map[uuid.UUID]entry[model.Notification]
	documents     map[uuid.UUID]entry[model.Document]
	audits        map[uuid.UUID]entry[model.AuditLog]
	outbox        map[uuid.UUID]entry[model.OutboxEvent]

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		users:         make(map[uuid.UUID]entry[model.User]),
		appointments:  make(map[uuid.UUID]entry[model.Appointment]),
		comments:      make(map[uuid.UUID]entry[model.Comment]),
		replies:       make(map[uuid.UUID]entry[model.Reply]),
		likes:         make(map[uuid.UUID]map[uuid.UUID]struct{}),
		notifications: make(map[uuid.UUID]entry[model.Notification]),
		documents:     make(map[uuid.UUID]entry[model.Document]),
		audits:        make(map[uuid.UUID]entry[model.AuditLog]),
		outbox:        make(map[uuid.UUID]entry[model.OutboxEvent]),
		now:           time.Now,
	}
}

func (s *Store) Users() repository.UserRepository                 { return &userRepository{s} }
func (s *Store) Appointments() repository.AppointmentRepository   { return &appointmentRepository{s} }
func (s *Store) Comments() repository.CommentRepository           { return &commentRepository{s} }
func (s *Store) Notifications() repository.NotificationRepository { return &notificationRepository{s} }
func (s *Store) Documents() repository.DocumentRepository         { return &documentRepository{s} }
func (s *Store) Audit() repository.AuditRepository                { return &auditRepository{s} }
func (s *Store) Outbox() repository.OutboxRepository              { return &outboxRepository{s} }

func (s *Store) Repositories() *repository.Repositories {
	return &repository.Repositories{
		Users:         s.Users(),
		Appointments:  s.Appointments(),
		Comments:      s.Comments(),
		Notifications: s.Notifications(),
		Documents:     s.Documents(),
		Audit:         s.Audit(),
		Outbox:        s.Outbox(),
	}
}

func (s *Store) next() int64 {
	s.seq++
	return s.seq
}

func clone[T any](v *T) *T {
	c := *v
	return &c
}

// sorted returns the values of m ordered by key(created_at) and insertion.
func sorted[T any](m map[uuid.UUID]entry[T], created func(*T) time.Time, desc bool, keep func(*T) bool) []*T {
	items := make([]entry[T], 0, len(m))
	for _, e := range m {
		if keep == nil || keep(e.v) {
			items = append(items, e)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		ti, tj := created(items[i].v), created(items[j].v)
		if !ti.Equal(tj) {
			if desc {
				return ti.After(tj)
			}
			return ti.Before(tj)
		}
		if desc {
			return items[i].seq > items[j].seq
		}
		return items[i].seq < items[j].seq
	})

	out := make([]*T, len(items))
	for i, e := range items {
		out[i] = clone(e.v)
	}
	return out
}

func page[T any](items []*T, p model.Pagination) []*T {
	p.Normalize()
	start := p.Offset()
	if start >= len(items) {
		return []*T{}
	}
	end := start + p.PageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func (s *Store) summary(id uuid.UUID) model.UserSummary {
	e, ok := s.users[id]
	if !ok {
		return model.UserSummary{ID: id}
	}
	u := e.v
	return model.UserSummary{
		ID:             u.ID,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		Role:           u.Role,
		ProfilePicture: u.ProfilePicture,
	}
}

func (s *Store) addAudit(log *model.AuditLog) {
	if log == nil {
		return
	}
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = s.now()
	}
	s.audits[log.ID] = entry[model.AuditLog]{v: clone(log), seq: s.next()}
}

func (s *Store) addOutbox(event *model.OutboxEvent) {
	if event == nil {
		return
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	now := s.now()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	if event.Status == "" {
		event.Status = model.OutboxStatusPending
	}
	s.outbox[event.ID] = entry[model.OutboxEvent]{v: clone(event), seq: s.next()}
}

// recountLikes keeps the counter equal to the liker set.
func (s *Store) recountLikes(commentID uuid.UUID) int {
	e, ok := s.comments[commentID]
	if !ok {
		return 0
	}
	e.v.Likes = len(s.likes[commentID])
	return e.v.Likes
}

func (s *Store) deleteComment(id uuid.UUID) {
	delete(s.comments, id)
	delete(s.likes, id)
	for rid, r := range s.replies {
		if r.v.CommentID == id {
			delete(s.replies, rid)
		}
	}
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// countAssigned counts appointments carrying doctorID, which only confirmed
// and completed ones do.
func (s *Store) countAssigned(doctorID uuid.UUID) int {
	count := 0
	for _, e := range s.appointments {
		if e.v.DoctorID != nil && *e.v.DoctorID == doctorID {
			count++
		}
	}
	return count
}
