package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/carebook/internal/model"
	"github.com/jwalitptl/carebook/internal/repository"
	"github.com/jwalitptl/carebook/pkg/errors"
)

const authorColumns = `
	u.id AS "author.id",
	u.first_name AS "author.first_name",
	u.last_name AS "author.last_name",
	u.role AS "author.role",
	u.profile_picture AS "author.profile_picture"`

type commentRepository struct {
	BaseRepository
}

func NewCommentRepository(base BaseRepository) repository.CommentRepository {
	return &commentRepository{base}
}

func (r *commentRepository) Create(ctx context.Context, comment *model.Comment) error {
	query := `
		INSERT INTO comments (id, user_id, content, likes, created_at, updated_at)
		VALUES ($1, $2, $3, 0, $4, $5)
	`
	if comment.ID == uuid.Nil {
		comment.ID = uuid.New()
	}
	comment.Likes = 0
	comment.CreatedAt = time.Now()
	comment.UpdatedAt = comment.CreatedAt

	if _, err := r.db.ExecContext(ctx, query,
		comment.ID, comment.UserID, comment.Content, comment.CreatedAt, comment.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to create comment: %w", mapError(err, "comment"))
	}
	return nil
}

func (r *commentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Comment, error) {
	query := `
		SELECT id, user_id, content, likes, created_at, updated_at
		FROM comments WHERE id = $1
	`
	var comment model.Comment
	if err := r.db.GetContext(ctx, &comment, query, id); err != nil {
		return nil, fmt.Errorf("failed to get comment: %w", mapError(err, "comment"))
	}
	return &comment, nil
}

func (r *commentRepository) List(ctx context.Context, viewerID uuid.UUID, page model.Pagination) ([]*model.CommentView, error) {
	page.Normalize()
	query := `
		SELECT c.id, c.user_id, c.content, c.likes, c.created_at, c.updated_at,
			` + authorColumns + `,
			EXISTS (
				SELECT 1 FROM comment_likes l
				WHERE l.comment_id = c.id AND l.user_id = $1
			) AS is_liked
		FROM comments c
		JOIN users u ON u.id = c.user_id
		ORDER BY c.created_at DESC
		LIMIT $2 OFFSET $3
	`
	comments := []*model.CommentView{}
	if err := r.db.SelectContext(ctx, &comments, query, viewerID, page.PageSize, page.Offset()); err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", mapError(err, "comment"))
	}
	return comments, nil
}

func (r *commentRepository) Delete(ctx context.Context, id uuid.UUID, audit *model.AuditLog) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete comment: %w", mapError(err, "comment"))
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return errors.NotFound("comment", nil)
		}
		return insertAudit(ctx, tx, audit)
	})
}

func (r *commentRepository) CreateReply(ctx context.Context, reply *model.Reply) error {
	query := `
		INSERT INTO replies (id, comment_id, user_id, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if reply.ID == uuid.Nil {
		reply.ID = uuid.New()
	}
	reply.CreatedAt = time.Now()
	reply.UpdatedAt = reply.CreatedAt

	if _, err := r.db.ExecContext(ctx, query,
		reply.ID, reply.CommentID, reply.UserID, reply.Content, reply.CreatedAt, reply.UpdatedAt,
	); err != nil {
		// A foreign key violation here means the parent comment is gone.
		return fmt.Errorf("failed to create reply: %w", mapError(err, "comment"))
	}
	return nil
}

func (r *commentRepository) GetReply(ctx context.Context, commentID, replyID uuid.UUID) (*model.Reply, error) {
	query := `
		SELECT id, comment_id, user_id, content, created_at, updated_at
		FROM replies WHERE id = $1 AND comment_id = $2
	`
	var reply model.Reply
	if err := r.db.GetContext(ctx, &reply, query, replyID, commentID); err != nil {
		return nil, fmt.Errorf("failed to get reply: %w", mapError(err, "reply"))
	}
	return &reply, nil
}

func (r *commentRepository) ListReplies(ctx context.Context, commentIDs []uuid.UUID) ([]*model.ReplyView, error) {
	replies := []*model.ReplyView{}
	if len(commentIDs) == 0 {
		return replies, nil
	}

	ids := make([]string, len(commentIDs))
	for i, id := range commentIDs {
		ids[i] = id.String()
	}

	query := `
		SELECT r.id, r.comment_id, r.user_id, r.content, r.created_at, r.updated_at,
			` + authorColumns + `
		FROM replies r
		JOIN users u ON u.id = r.user_id
		WHERE r.comment_id = ANY($1::uuid[])
		ORDER BY r.created_at ASC
	`
	if err := r.db.SelectContext(ctx, &replies, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to list replies: %w", mapError(err, "reply"))
	}
	return replies, nil
}

func (r *commentRepository) DeleteReply(ctx context.Context, commentID, replyID uuid.UUID, audit *model.AuditLog) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx,
			`DELETE FROM replies WHERE id = $1 AND comment_id = $2`, replyID, commentID)
		if err != nil {
			return fmt.Errorf("failed to delete reply: %w", mapError(err, "reply"))
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return errors.NotFound("reply", nil)
		}
		return insertAudit(ctx, tx, audit)
	})
}

// ToggleLike holds the comment row lock for the whole toggle so concurrent
// toggles on one comment serialize, and recomputes the counter from the
// liker set rather than incrementing it.
func (r *commentRepository) ToggleLike(ctx context.Context, commentID, userID uuid.UUID) (bool, int, error) {
	var (
		liked bool
		likes int
	)

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var id uuid.UUID
		if err := tx.GetContext(ctx, &id, `SELECT id FROM comments WHERE id = $1 FOR UPDATE`, commentID); err != nil {
			return mapError(err, "comment")
		}

		result, err := tx.ExecContext(ctx,
			`DELETE FROM comment_likes WHERE comment_id = $1 AND user_id = $2`, commentID, userID)
		if err != nil {
			return fmt.Errorf("failed to remove like: %w", mapError(err, "like"))
		}
		removed, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}

		if removed == 0 {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO comment_likes (comment_id, user_id, created_at) VALUES ($1, $2, NOW())`,
				commentID, userID); err != nil {
				return fmt.Errorf("failed to add like: %w", mapError(err, "like"))
			}
			liked = true
		}

		update := `
			UPDATE comments
			SET likes = (SELECT COUNT(*) FROM comment_likes WHERE comment_id = $1)
			WHERE id = $1
			RETURNING likes
		`
		if err := tx.GetContext(ctx, &likes, update, commentID); err != nil {
			return fmt.Errorf("failed to update like count: %w", mapError(err, "comment"))
		}
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	return liked, likes, nil
}
