package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashVerifyRoundTrip(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	for _, s := range []string{"p@ss1234", "a", strings.Repeat("x", MaxLength), "ünïcødé secret"} {
		hash, err := h.Hash(s)
		require.NoError(t, err)
		assert.NotEqual(t, s, hash)
		assert.NotEmpty(t, hash)
		assert.True(t, h.Verify(s, hash), "secret %q", s)
	}
}

func TestVerifyRejectsOtherSecret(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	hash, err := h.Hash("p@ss1234")
	require.NoError(t, err)

	assert.False(t, h.Verify("p@ss1235", hash))
	assert.False(t, h.Verify("", hash))
	assert.ErrorIs(t, h.Check("P@SS1234", hash), ErrMismatch)

	long := strings.Repeat("x", MaxLength)
	longHash, err := h.Hash(long)
	require.NoError(t, err)
	assert.True(t, h.Verify(long, longHash))
	assert.False(t, h.Verify(long+"y", longHash))
	assert.ErrorIs(t, h.Check(long+"-anything-else", longHash), ErrMismatch)
}

func TestHashIsSaltedPerCall(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	a, err := h.Hash("same-secret")
	require.NoError(t, err)
	b, err := h.Hash("same-secret")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.True(t, h.Verify("same-secret", a))
	assert.True(t, h.Verify("same-secret", b))
}

func TestMalformedHashIsFalseNotPanic(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	for _, bad := range []string{"", "plain", "$2a$", "$2a$04$tooshort", "p@ss1234"} {
		assert.NotPanics(t, func() {
			assert.False(t, h.Verify("p@ss1234", bad))
		})
		assert.ErrorIs(t, h.Check("p@ss1234", bad), ErrCorruptHash, "hash %q", bad)
	}
}

func TestHashRejectsUnhashableSecrets(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	_, err := h.Hash("")
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = h.Hash(strings.Repeat("x", MaxLength+1))
	assert.ErrorIs(t, err, ErrTooLong)
}

func TestNewHasherClampsCost(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewHasher(0).cost)
	assert.Equal(t, bcrypt.DefaultCost, NewHasher(bcrypt.MaxCost+1).cost)
	assert.Equal(t, 5, NewHasher(5).cost)
}
