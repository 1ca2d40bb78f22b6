package community

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/carebook/internal/model"
	"github.com/jwalitptl/carebook/internal/repository/memory"
	"github.com/jwalitptl/carebook/internal/service/audit"
	"github.com/jwalitptl/carebook/internal/service/notification"
	"github.com/jwalitptl/carebook/pkg/errors"
	"github.com/jwalitptl/carebook/pkg/metrics"
)

type fixture struct {
	svc      *Service
	store    *memory.Store
	notifier notification.Service
	alice    *model.User
	bob      *model.User
	admin    *model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()

	mk := func(name string, role model.Role) *model.User {
		u := &model.User{CIN: name, Email: name + "@example.com", FirstName: strings.ToUpper(name[:1]) + name[1:], LastName: "Test", Role: role}
		require.NoError(t, store.Users().Create(context.Background(), u))
		return u
	}

	m := metrics.NewForTest()
	notifier := notification.NewService(store.Notifications(), store.Users(), nil, m, notification.Config{MaxAttempts: 1})
	return &fixture{
		svc:      NewService(store.Comments(), store.Users(), notifier, audit.NewService(store.Audit()), m),
		store:    store,
		notifier: notifier,
		alice:    mk("alice", model.RoleUser),
		bob:      mk("bob", model.RoleUser),
		admin:    mk("admin", model.RoleAdmin),
	}
}

func (f *fixture) inbox(t *testing.T, u *model.User) []*model.Notification {
	t.Helper()
	list, err := f.notifier.List(context.Background(), u.Actor(), false, model.Pagination{})
	require.NoError(t, err)
	return list
}

func TestCreateCommentValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateComment(ctx, f.alice.Actor(), "   ")
	assert.True(t, errors.IsValidation(err))

	_, err = f.svc.CreateComment(ctx, f.alice.Actor(), strings.Repeat("x", model.MaxContentLength+1))
	assert.True(t, errors.IsValidation(err))

	c, err := f.svc.CreateComment(ctx, f.alice.Actor(), "  hello world  ")
	require.NoError(t, err)
	assert.Equal(t, "hello world", c.Content)
	assert.Equal(t, 0, c.Likes)
}

func TestCreateReplyRequiresParent(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateReply(context.Background(), f.bob.Actor(), uuid.New(), "hi")
	assert.True(t, errors.IsNotFound(err))
}

func TestReplyNotifiesAuthor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.svc.CreateComment(ctx, f.alice.Actor(), "Any tips for sleeping better?")
	require.NoError(t, err)

	_, err = f.svc.CreateReply(ctx, f.alice.Actor(), c.ID, "bump")
	require.NoError(t, err)
	assert.Empty(t, f.inbox(t, f.alice))

	_, err = f.svc.CreateReply(ctx, f.bob.Actor(), c.ID, "No screens before bed")
	require.NoError(t, err)

	inbox := f.inbox(t, f.alice)
	require.Len(t, inbox, 1)
	assert.Equal(t, model.NotificationReply, inbox[0].Type)
	assert.Equal(t, "Bob Test replied to your comment: Any tips for sleeping better?", inbox[0].Message)
}

func TestListCommentsWithReplies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateComment(ctx, f.alice.Actor(), "first")
	require.NoError(t, err)
	second, err := f.svc.CreateComment(ctx, f.bob.Actor(), "second")
	require.NoError(t, err)
	_, err = f.svc.CreateReply(ctx, f.bob.Actor(), first.ID, "reply one")
	require.NoError(t, err)
	_, err = f.svc.CreateReply(ctx, f.alice.Actor(), first.ID, "reply two")
	require.NoError(t, err)
	_, err = f.svc.ToggleLike(ctx, f.bob.Actor(), first.ID)
	require.NoError(t, err)

	list, err := f.svc.ListComments(ctx, f.bob.Actor(), model.Pagination{})
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, second.ID, list[0].ID)
	assert.Empty(t, list[0].Replies)
	assert.False(t, list[0].IsLiked)

	assert.Equal(t, first.ID, list[1].ID)
	assert.True(t, list[1].IsLiked)
	assert.Equal(t, "Alice", list[1].Author.FirstName)
	require.Len(t, list[1].Replies, 2)
	assert.Equal(t, "reply one", list[1].Replies[0].Content)
	assert.Equal(t, "reply two", list[1].Replies[1].Content)
}

func TestToggleLikeTwiceRestoresState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.svc.CreateComment(ctx, f.alice.Actor(), "like me")
	require.NoError(t, err)

	liked, err := f.svc.ToggleLike(ctx, f.bob.Actor(), c.ID)
	require.NoError(t, err)
	assert.True(t, liked.IsLiked)
	assert.Equal(t, 1, liked.Likes)
	assert.Equal(t, "Comment liked successfully", liked.Message)

	unliked, err := f.svc.ToggleLike(ctx, f.bob.Actor(), c.ID)
	require.NoError(t, err)
	assert.False(t, unliked.IsLiked)
	assert.Equal(t, 0, unliked.Likes)

	got, err := f.store.Comments().Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Likes)

	inbox := f.inbox(t, f.alice)
	require.Len(t, inbox, 1)
	assert.Equal(t, model.NotificationLike, inbox[0].Type)
}

func TestToggleLikeOwnCommentDoesNotNotify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.svc.CreateComment(ctx, f.alice.Actor(), "mine")
	require.NoError(t, err)
	_, err = f.svc.ToggleLike(ctx, f.alice.Actor(), c.ID)
	require.NoError(t, err)
	assert.Empty(t, f.inbox(t, f.alice))
}

func TestToggleLikeConcurrentUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.svc.CreateComment(ctx, f.admin.Actor(), "popular")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, u := range []*model.User{f.alice, f.bob} {
		for i := 0; i < 21; i++ {
			wg.Add(1)
			go func(actor model.Actor) {
				defer wg.Done()
				_, err := f.svc.ToggleLike(ctx, actor, c.ID)
				assert.NoError(t, err)
			}(u.Actor())
		}
	}
	wg.Wait()

	got, err := f.store.Comments().Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Likes)
}

func TestToggleLikeMissingComment(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ToggleLike(context.Background(), f.bob.Actor(), uuid.New())
	assert.True(t, errors.IsNotFound(err))
}

func TestAdminDeleteRequiresReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.svc.CreateComment(ctx, f.alice.Actor(), "questionable")
	require.NoError(t, err)

	err = f.svc.DeleteComment(ctx, f.admin.Actor(), c.ID, "  ")
	assert.True(t, errors.IsValidation(err))
	_, err = f.store.Comments().Get(ctx, c.ID)
	assert.NoError(t, err)

	require.NoError(t, f.svc.DeleteComment(ctx, f.admin.Actor(), c.ID, "spam"))
	_, err = f.store.Comments().Get(ctx, c.ID)
	assert.True(t, errors.IsNotFound(err))

	logs, total, err := f.store.Audit().List(ctx, &model.AuditFilters{EntityType: model.AuditEntityComment})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.NotNil(t, logs[0].Reason)
	assert.Equal(t, "spam", *logs[0].Reason)

	inbox := f.inbox(t, f.alice)
	require.Len(t, inbox, 1)
	assert.Equal(t, model.NotificationCommentDeletion, inbox[0].Type)
	assert.Contains(t, inbox[0].Message, "Reason: spam")
}

func TestDeleteCommentAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.svc.CreateComment(ctx, f.alice.Actor(), "keep out")
	require.NoError(t, err)

	err = f.svc.DeleteComment(ctx, f.bob.Actor(), c.ID, "no reason")
	assert.True(t, errors.IsForbidden(err))

	require.NoError(t, f.svc.DeleteComment(ctx, f.alice.Actor(), c.ID, ""))
	_, total, err := f.store.Audit().List(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestDeleteCommentCascadesReplies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.svc.CreateComment(ctx, f.alice.Actor(), "parent")
	require.NoError(t, err)
	r, err := f.svc.CreateReply(ctx, f.bob.Actor(), c.ID, "child")
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteComment(ctx, f.alice.Actor(), c.ID, ""))

	err = f.svc.DeleteReply(ctx, f.bob.Actor(), c.ID, r.ID, "")
	assert.True(t, errors.IsNotFound(err))
}

func TestDeleteReply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.svc.CreateComment(ctx, f.alice.Actor(), "parent")
	require.NoError(t, err)
	other, err := f.svc.CreateComment(ctx, f.alice.Actor(), "other parent")
	require.NoError(t, err)
	r, err := f.svc.CreateReply(ctx, f.bob.Actor(), c.ID, "child")
	require.NoError(t, err)

	err = f.svc.DeleteReply(ctx, f.bob.Actor(), other.ID, r.ID, "")
	assert.True(t, errors.IsNotFound(err))

	err = f.svc.DeleteReply(ctx, f.alice.Actor(), c.ID, r.ID, "")
	assert.True(t, errors.IsForbidden(err))

	err = f.svc.DeleteReply(ctx, f.admin.Actor(), c.ID, r.ID, "")
	assert.True(t, errors.IsValidation(err))

	require.NoError(t, f.svc.DeleteReply(ctx, f.admin.Actor(), c.ID, r.ID, "off topic"))
	_, total, err := f.store.Audit().List(ctx, &model.AuditFilters{EntityType: model.AuditEntityReply})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short", excerpt("short"))
	long := strings.Repeat("é", 60)
	assert.Equal(t, strings.Repeat("é", 50)+"...", excerpt(long))
}
