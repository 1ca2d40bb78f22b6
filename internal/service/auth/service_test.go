package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/carebook/internal/model"
	"github.com/jwalitptl/carebook/internal/repository/memory"
	"github.com/jwalitptl/carebook/pkg/auth"
	"github.com/jwalitptl/carebook/pkg/errors"
	"github.com/jwalitptl/carebook/pkg/security"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	jwtSvc, err := auth.NewJWTService(auth.Config{Secret: "test-secret", RefreshSecret: "test-refresh"})
	require.NoError(t, err)
	return NewService(store.Users(), jwtSvc, security.NewBcryptHasher(bcrypt.MinCost)), store
}

func registerRequest() *model.RegisterRequest {
	return &model.RegisterRequest{
		CIN:       "AB12345",
		Email:     "Sara@Example.com",
		Password:  "password123",
		FirstName: "Sara",
		LastName:  "Idrissi",
	}
}

func TestRegisterCreatesPatient(t *testing.T) {
	svc, _ := newTestService(t)

	user, err := svc.Register(context.Background(), registerRequest())
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, user.Role)
	assert.Equal(t, "sara@example.com", user.Email)
	assert.NotEqual(t, "password123", user.PasswordHash)
	assert.Equal(t, "en", user.Language)
}

func TestRegisterConflicts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, registerRequest())
	require.NoError(t, err)

	dupEmail := registerRequest()
	dupEmail.CIN = "ZZ99999"
	_, err = svc.Register(ctx, dupEmail)
	require.True(t, errors.Is(err, errors.ErrConflict))
	assert.Contains(t, err.Error(), "Email already registered")

	dupCIN := registerRequest()
	dupCIN.Email = "another@example.com"
	_, err = svc.Register(ctx, dupCIN)
	require.True(t, errors.Is(err, errors.ErrConflict))
	assert.Contains(t, err.Error(), "CIN already registered")
}

func TestRegisterWeakPassword(t *testing.T) {
	svc, _ := newTestService(t)
	req := registerRequest()
	req.Password = "onlyletters"

	_, err := svc.Register(context.Background(), req)
	assert.True(t, errors.IsValidation(err))
}

func TestLoginAndAuthenticate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user, err := svc.Register(ctx, registerRequest())
	require.NoError(t, err)

	_, err = svc.Login(ctx, "sara@example.com", "wrong-password1")
	assert.True(t, errors.Is(err, errors.ErrUnauthenticated))

	_, err = svc.Login(ctx, "nobody@example.com", "password123")
	assert.True(t, errors.Is(err, errors.ErrUnauthenticated))

	tokens, err := svc.Login(ctx, "SARA@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", tokens.TokenType)
	assert.Equal(t, int64(24*60*60), tokens.ExpiresIn)

	actor, err := svc.Authenticate(ctx, tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, actor.UserID)
	assert.Equal(t, model.RoleUser, actor.Role)

	_, err = svc.Authenticate(ctx, tokens.RefreshToken)
	assert.True(t, errors.Is(err, errors.ErrUnauthenticated))
}

func TestAuthenticateReadsCurrentRole(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	user, err := svc.Register(ctx, registerRequest())
	require.NoError(t, err)
	tokens, err := svc.Login(ctx, "sara@example.com", "password123")
	require.NoError(t, err)

	require.NoError(t, store.Users().UpdateRole(ctx, user.ID, model.RoleUser, model.RoleDoctor))

	actor, err := svc.Authenticate(ctx, tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, model.RoleDoctor, actor.Role)
}

func TestRefreshToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, registerRequest())
	require.NoError(t, err)
	tokens, err := svc.Login(ctx, "sara@example.com", "password123")
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)

	_, err = svc.RefreshToken(ctx, tokens.AccessToken)
	assert.True(t, errors.Is(err, errors.ErrUnauthenticated))
}
