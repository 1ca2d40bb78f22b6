package model

import (
	"time"

	"github.com/google/uuid"
)

const MaxContentLength = 2000

type Comment struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Content   string    `json:"content" db:"content"`
	Likes     int       `json:"likes" db:"likes"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Reply struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CommentID uuid.UUID `json:"comment_id" db:"comment_id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CommentView is a comment as seen by one viewer.
type CommentView struct {
	Comment
	Author  UserSummary  `json:"author" db:"author"`
	IsLiked bool         `json:"is_liked" db:"is_liked"`
	Replies []*ReplyView `json:"replies" db:"-"`
}

type ReplyView struct {
	Reply
	Author UserSummary `json:"author" db:"author"`
}

// LikeResult reports the state of a comment after a toggle.
type LikeResult struct {
	Message string `json:"message"`
	Likes   int    `json:"likes"`
	IsLiked bool   `json:"is_liked"`
}

type CreateContentRequest struct {
	Content string `json:"content" binding:"required,max=2000"`
}

type DeleteContentRequest struct {
	Reason string `json:"reason" form:"reason"`
}
