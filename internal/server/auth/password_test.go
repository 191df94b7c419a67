package auth

import (
	"strings"
	"testing"

	"github.com/dmitrijs2005/authsync/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasher_HashAndVerify(t *testing.T) {
	t.Parallel()

	h := NewPasswordHasher(bcrypt.MinCost)

	for _, p := range []string{"Secret1!", "a", "пароль", strings.Repeat("x", 72)} {
		hash, err := h.Hash(p)
		require.NoError(t, err)
		assert.NotEqual(t, p, hash)
		assert.True(t, h.Verify(p, hash), "password %q must verify", p)
	}
}

func TestPasswordHasher_SaltsDiffer(t *testing.T) {
	t.Parallel()

	h := NewPasswordHasher(bcrypt.MinCost)

	a, err := h.Hash("Secret1!")
	require.NoError(t, err)
	b, err := h.Hash("Secret1!")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.True(t, h.Verify("Secret1!", a))
	assert.True(t, h.Verify("Secret1!", b))
}

func TestPasswordHasher_WrongPassword(t *testing.T) {
	t.Parallel()

	h := NewPasswordHasher(bcrypt.MinCost)
	hash, err := h.Hash("Secret1!")
	require.NoError(t, err)

	assert.False(t, h.Verify("Secret2!", hash))
	assert.False(t, h.Verify("secret1!", hash))
}

func TestPasswordHasher_FailsClosed(t *testing.T) {
	t.Parallel()

	h := NewPasswordHasher(bcrypt.MinCost)
	hash, err := h.Hash("Secret1!")
	require.NoError(t, err)

	assert.False(t, h.Verify("", hash), "empty plaintext")
	assert.False(t, h.Verify("Secret1!", ""), "empty hash")
	assert.False(t, h.Verify("Secret1!", "not-a-bcrypt-hash"), "malformed hash")
	assert.False(t, h.Verify("Secret1!", hash[:len(hash)-5]), "truncated hash")
}

func TestPasswordHasher_RejectsBadInput(t *testing.T) {
	t.Parallel()

	h := NewPasswordHasher(bcrypt.MinCost)

	_, err := h.Hash("")
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = h.Hash(strings.Repeat("x", 73))
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestNewPasswordHasher_CostFallback(t *testing.T) {
	t.Parallel()

	assert.Equal(t, bcrypt.DefaultCost, NewPasswordHasher(0).cost)
	assert.Equal(t, bcrypt.DefaultCost, NewPasswordHasher(99).cost)
	assert.Equal(t, 12, NewPasswordHasher(12).cost)

	hash, err := NewPasswordHasher(bcrypt.MinCost).Hash("p")
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)
}
