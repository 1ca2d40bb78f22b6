package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/carebook/internal/model"
	"github.com/jwalitptl/carebook/pkg/errors"
)

type commentRepository struct {
	s *Store
}

func (r *commentRepository) Create(ctx context.Context, comment *model.Comment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[comment.UserID]; !ok {
		return errors.NotFound("user", nil)
	}
	if comment.ID == uuid.Nil {
		comment.ID = uuid.New()
	}
	comment.Likes = 0
	comment.CreatedAt = r.s.now()
	comment.UpdatedAt = comment.CreatedAt
	r.s.comments[comment.ID] = entry[model.Comment]{v: clone(comment), seq: r.s.next()}
	return nil
}

func (r *commentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Comment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, ok := r.s.comments[id]
	if !ok {
		return nil, errors.NotFound("comment", nil)
	}
	return clone(e.v), nil
}

func (r *commentRepository) List(ctx context.Context, viewerID uuid.UUID, p model.Pagination) ([]*model.CommentView, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	comments := page(sorted(r.s.comments, func(c *model.Comment) time.Time { return c.CreatedAt }, true, nil), p)

	views := make([]*model.CommentView, len(comments))
	for i, c := range comments {
		_, liked := r.s.likes[c.ID][viewerID]
		views[i] = &model.CommentView{
			Comment: *c,
			Author:  r.s.summary(c.UserID),
			IsLiked: liked,
		}
	}
	return views, nil
}

func (r *commentRepository) Delete(ctx context.Context, id uuid.UUID, audit *model.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.comments[id]; !ok {
		return errors.NotFound("comment", nil)
	}
	r.s.deleteComment(id)
	r.s.addAudit(audit)
	return nil
}

func (r *commentRepository) CreateReply(ctx context.Context, reply *model.Reply) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.comments[reply.CommentID]; !ok {
		return errors.NotFound("comment", nil)
	}
	if reply.ID == uuid.Nil {
		reply.ID = uuid.New()
	}
	reply.CreatedAt = r.s.now()
	reply.UpdatedAt = reply.CreatedAt
	r.s.replies[reply.ID] = entry[model.Reply]{v: clone(reply), seq: r.s.next()}
	return nil
}

func (r *commentRepository) GetReply(ctx context.Context, commentID, replyID uuid.UUID) (*model.Reply, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, ok := r.s.replies[replyID]
	if !ok || e.v.CommentID != commentID {
		return nil, errors.NotFound("reply", nil)
	}
	return clone(e.v), nil
}

func (r *commentRepository) ListReplies(ctx context.Context, commentIDs []uuid.UUID) ([]*model.ReplyView, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	wanted := make(map[uuid.UUID]struct{}, len(commentIDs))
	for _, id := range commentIDs {
		wanted[id] = struct{}{}
	}

	replies := sorted(r.s.replies, func(rep *model.Reply) time.Time { return rep.CreatedAt }, false, func(rep *model.Reply) bool {
		_, ok := wanted[rep.CommentID]
		return ok
	})

	views := make([]*model.ReplyView, len(replies))
	for i, rep := range replies {
		views[i] = &model.ReplyView{Reply: *rep, Author: r.s.summary(rep.UserID)}
	}
	return views, nil
}

func (r *commentRepository) DeleteReply(ctx context.Context, commentID, replyID uuid.UUID, audit *model.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, ok := r.s.replies[replyID]
	if !ok || e.v.CommentID != commentID {
		return errors.NotFound("reply", nil)
	}
	delete(r.s.replies, replyID)
	r.s.addAudit(audit)
	return nil
}

func (r *commentRepository) ToggleLike(ctx context.Context, commentID, userID uuid.UUID) (bool, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.comments[commentID]; !ok {
		return false, 0, errors.NotFound("comment", nil)
	}

	likers := r.s.likes[commentID]
	if likers == nil {
		likers = make(map[uuid.UUID]struct{})
		r.s.likes[commentID] = likers
	}

	_, liked := likers[userID]
	if liked {
		delete(likers, userID)
	} else {
		likers[userID] = struct{}{}
	}
	return !liked, r.s.recountLikes(commentID), nil
}
