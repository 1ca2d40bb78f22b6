package community

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/carebook/internal/model"
	"github.com/jwalitptl/carebook/internal/policy"
	"github.com/jwalitptl/carebook/internal/repository"
	"github.com/jwalitptl/carebook/internal/service/audit"
	"github.com/jwalitptl/carebook/internal/service/notification"
	"github.com/jwalitptl/carebook/pkg/errors"
	"github.com/jwalitptl/carebook/pkg/metrics"
)

const excerptLength = 50

type Service struct {
	repo     repository.CommentRepository
	users    repository.UserRepository
	notifier notification.Service
	auditor  *audit.Service
	metrics  *metrics.Metrics
}

func NewService(
	repo repository.CommentRepository,
	users repository.UserRepository,
	notifier notification.Service,
	auditor *audit.Service,
	m *metrics.Metrics,
) *Service {
	return &Service{
		repo:     repo,
		users:    users,
		notifier: notifier,
		auditor:  auditor,
		metrics:  m,
	}
}

func validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", errors.Validation("content must not be empty", nil)
	}
	if utf8.RuneCountInString(content) > model.MaxContentLength {
		return "", errors.Validation(fmt.Sprintf("content must be at most %d characters", model.MaxContentLength), nil)
	}
	return content, nil
}

// ListComments returns comments newest first, each with its replies oldest
// first and the viewer's like state.
func (s *Service) ListComments(ctx context.Context, actor model.Actor, page model.Pagination) ([]*model.CommentView, error) {
	comments, err := s.repo.List(ctx, actor.UserID, page)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	if len(comments) == 0 {
		return comments, nil
	}

	ids := make([]uuid.UUID, len(comments))
	byID := make(map[uuid.UUID]*model.CommentView, len(comments))
	for i, c := range comments {
		ids[i] = c.ID
		c.Replies = []*model.ReplyView{}
		byID[c.ID] = c
	}

	replies, err := s.repo.ListReplies(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list replies: %w", err)
	}
	for _, r := range replies {
		if parent, ok := byID[r.CommentID]; ok {
			parent.Replies = append(parent.Replies, r)
		}
	}
	return comments, nil
}

func (s *Service) CreateComment(ctx context.Context, actor model.Actor, content string) (*model.Comment, error) {
	content, err := validateContent(content)
	if err != nil {
		return nil, err
	}

	comment := &model.Comment{
		ID:      uuid.New(),
		UserID:  actor.UserID,
		Content: content,
	}
	if err := s.repo.Create(ctx, comment); err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}
	return comment, nil
}

func (s *Service) CreateReply(ctx context.Context, actor model.Actor, commentID uuid.UUID, content string) (*model.Reply, error) {
	content, err := validateContent(content)
	if err != nil {
		return nil, err
	}

	parent, err := s.repo.Get(ctx, commentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get comment: %w", err)
	}

	reply := &model.Reply{
		ID:        uuid.New(),
		CommentID: commentID,
		UserID:    actor.UserID,
		Content:   content,
	}
	// The parent may disappear between the read and the insert; the
	// repository reports that as NotFound as well.
	if err := s.repo.CreateReply(ctx, reply); err != nil {
		return nil, fmt.Errorf("failed to create reply: %w", err)
	}

	if parent.UserID != actor.UserID {
		s.notifier.Emit(ctx, parent.UserID, model.NotificationReply,
			fmt.Sprintf("%s replied to your comment: %s", s.displayName(ctx, actor.UserID), excerpt(parent.Content)),
			notification.WithActor(actor.UserID),
			notification.WithLink(commentLink(parent.ID)),
		)
	}
	return reply, nil
}

// ToggleLike flips the actor's like on a comment. Calling it twice in a row
// leaves the comment as it was.
func (s *Service) ToggleLike(ctx context.Context, actor model.Actor, commentID uuid.UUID) (*model.LikeResult, error) {
	liked, likes, err := s.repo.ToggleLike(ctx, commentID, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to toggle like: %w", err)
	}

	result := &model.LikeResult{Likes: likes, IsLiked: liked}
	action := "unlike"
	if liked {
		action = "like"
		result.Message = "Comment liked successfully"
	} else {
		result.Message = "Comment unliked successfully"
	}
	if s.metrics != nil {
		s.metrics.LikeToggles.WithLabelValues(action).Inc()
	}

	if liked {
		comment, err := s.repo.Get(ctx, commentID)
		if err != nil {
			log.Warn().Err(err).Str("comment_id", commentID.String()).Msg("Skipping like notification")
			return result, nil
		}
		if comment.UserID != actor.UserID {
			s.notifier.Emit(ctx, comment.UserID, model.NotificationLike,
				fmt.Sprintf("%s liked your comment: %s", s.displayName(ctx, actor.UserID), excerpt(comment.Content)),
				notification.WithActor(actor.UserID),
				notification.WithLink(commentLink(comment.ID)),
			)
		}
	}
	return result, nil
}

// DeleteComment removes a comment together with its replies and likes.
func (s *Service) DeleteComment(ctx context.Context, actor model.Actor, commentID uuid.UUID, reason string) error {
	comment, err := s.repo.Get(ctx, commentID)
	if err != nil {
		return fmt.Errorf("failed to get comment: %w", err)
	}
	if err := policy.CanDeleteContent(actor, comment.UserID, reason); err != nil {
		return err
	}

	moderated := comment.UserID != actor.UserID
	var entry *model.AuditLog
	if moderated {
		entry, err = s.auditor.Entry(ctx, actor, model.AuditActionDelete, model.AuditEntityComment, comment.ID, &audit.LogOptions{
			Reason:   reason,
			Metadata: map[string]interface{}{"author_id": comment.UserID, "content": excerpt(comment.Content)},
		})
		if err != nil {
			return err
		}
	}

	if err := s.repo.Delete(ctx, comment.ID, entry); err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}

	if moderated {
		s.notifier.Emit(ctx, comment.UserID, model.NotificationCommentDeletion,
			fmt.Sprintf("Your comment \"%s\" was removed by an administrator. Reason: %s", excerpt(comment.Content), strings.TrimSpace(reason)),
			notification.WithActor(actor.UserID),
		)
	}
	return nil
}

// DeleteReply removes one reply. A reply is addressed through its parent, so
// a missing parent reads as not found.
func (s *Service) DeleteReply(ctx context.Context, actor model.Actor, commentID, replyID uuid.UUID, reason string) error {
	if _, err := s.repo.Get(ctx, commentID); err != nil {
		return fmt.Errorf("failed to get comment: %w", err)
	}
	reply, err := s.repo.GetReply(ctx, commentID, replyID)
	if err != nil {
		return fmt.Errorf("failed to get reply: %w", err)
	}
	if err := policy.CanDeleteContent(actor, reply.UserID, reason); err != nil {
		return err
	}

	var entry *model.AuditLog
	if reply.UserID != actor.UserID {
		entry, err = s.auditor.Entry(ctx, actor, model.AuditActionDelete, model.AuditEntityReply, reply.ID, &audit.LogOptions{
			Reason:   reason,
			Metadata: map[string]interface{}{"author_id": reply.UserID, "comment_id": commentID},
		})
		if err != nil {
			return err
		}
	}

	if err := s.repo.DeleteReply(ctx, commentID, replyID, entry); err != nil {
		return fmt.Errorf("failed to delete reply: %w", err)
	}
	return nil
}

func (s *Service) displayName(ctx context.Context, id uuid.UUID) string {
	user, err := s.users.Get(ctx, id)
	if err != nil {
		return "Someone"
	}
	if user.Role == model.RoleDoctor {
		return "Dr. " + user.FullName()
	}
	return user.FullName()
}

func excerpt(content string) string {
	runes := []rune(content)
	if len(runes) <= excerptLength {
		return content
	}
	return string(runes[:excerptLength]) + "..."
}

func commentLink(id uuid.UUID) string {
	return "/community#comment-" + id.String()
}
