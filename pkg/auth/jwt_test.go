package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/carebook/internal/model"
)

func testUser() *model.User {
	return &model.User{
		Base:  model.Base{ID: uuid.New()},
		Email: "patient@example.com",
		Role:  model.RoleUser,
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	svc, err := NewJWTService(Config{Secret: "s3cret", RefreshSecret: "r3fresh"})
	require.NoError(t, err)

	user := testUser()
	token, err := svc.GenerateAccessToken(user)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, model.RoleUser, claims.Role)
	assert.Equal(t, 24*time.Hour, svc.AccessTTL())
}

func TestTokenTypesAreNotInterchangeable(t *testing.T) {
	svc, err := NewJWTService(Config{Secret: "same", RefreshSecret: "same"})
	require.NoError(t, err)

	refresh, err := svc.GenerateRefreshToken(testUser())
	require.NoError(t, err)

	_, err = svc.ValidateToken(refresh)
	assert.ErrorIs(t, err, ErrWrongTokenType)

	_, err = svc.ValidateRefreshToken(refresh)
	assert.NoError(t, err)
}

func TestExpiredToken(t *testing.T) {
	svc, err := NewJWTService(Config{Secret: "s3cret", ExpiryHours: 1})
	require.NoError(t, err)

	impl := svc.(*jwtService)
	impl.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := svc.GenerateAccessToken(testUser())
	require.NoError(t, err)

	impl.now = time.Now
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRejectsForeignSignature(t *testing.T) {
	a, _ := NewJWTService(Config{Secret: "a"})
	b, _ := NewJWTService(Config{Secret: "b"})

	token, err := a.GenerateAccessToken(testUser())
	require.NoError(t, err)

	_, err = b.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMissingSecret(t *testing.T) {
	_, err := NewJWTService(Config{})
	assert.Error(t, err)
}
