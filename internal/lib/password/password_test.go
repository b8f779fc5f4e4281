package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHasher_HashAndVerify(t *testing.T) {
	h, err := NewHasher(bcrypt.MinCost)
	require.NoError(t, err)

	hash, err := h.Hash("Password_0123")
	require.NoError(t, err)
	assert.NotEqual(t, "Password_0123", hash)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)

	assert.True(t, h.Verify("Password_0123", hash))
	assert.False(t, h.Verify("password_0123", hash))
	assert.False(t, h.Verify("", hash))
}

func TestHasher_Salted(t *testing.T) {
	h, err := NewHasher(bcrypt.MinCost)
	require.NoError(t, err)

	first, err := h.Hash("same")
	require.NoError(t, err)
	second, err := h.Hash("same")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestHasher_MalformedHash(t *testing.T) {
	h, err := NewHasher(bcrypt.MinCost)
	require.NoError(t, err)

	for _, hash := range []string{"", "not-a-hash", "$2a$10$short"} {
		assert.False(t, h.Verify("whatever", hash), hash)
	}
}

func TestHasher_TooLong(t *testing.T) {
	h, err := NewHasher(bcrypt.MinCost)
	require.NoError(t, err)

	_, err = h.Hash(strings.Repeat("a", 73))
	assert.ErrorIs(t, err, ErrHashing)
}

func TestNewHasher_CostRange(t *testing.T) {
	_, err := NewHasher(bcrypt.MinCost - 1)
	assert.Error(t, err)

	_, err = NewHasher(bcrypt.MaxCost + 1)
	assert.Error(t, err)

	_, err = NewHasher(bcrypt.DefaultCost)
	assert.NoError(t, err)
}
