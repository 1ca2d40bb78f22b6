package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hashed, err := h.Hash("secret123")
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", hashed)

	assert.NoError(t, h.Compare(hashed, "secret123"))
	assert.ErrorIs(t, h.Compare(hashed, "secret124"), ErrPasswordMismatch)
}

func TestCheckStrength(t *testing.T) {
	assert.ErrorIs(t, CheckStrength("a1"), ErrPasswordTooShort)
	assert.ErrorIs(t, CheckStrength("onlyletters"), ErrPasswordTooWeak)
	assert.ErrorIs(t, CheckStrength("12345678"), ErrPasswordTooWeak)
	assert.NoError(t, CheckStrength("letters42"))
}
