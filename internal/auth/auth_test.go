package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$"))

	require.NoError(t, VerifyPassword("correct horse battery staple", hash))
	assert.ErrorIs(t, VerifyPassword("wrong password", hash), ErrPasswordMismatch)
}

func TestHashPassword_SaltsDiffer(t *testing.T) {
	h1, err := HashPassword("same password")
	require.NoError(t, err)
	h2, err := HashPassword("same password")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
	require.NoError(t, VerifyPassword("same password", h1))
	require.NoError(t, VerifyPassword("same password", h2))
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	assert.Error(t, VerifyPassword("anything", "not-a-phc-string"))
	assert.Error(t, VerifyPassword("anything", "$bcrypt$whatever$x$y$z"))
}

func TestGenerateAPIKey_Format(t *testing.T) {
	raw, hash, prefix, err := GenerateAPIKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(raw, "sk_"))
	assert.Len(t, raw, 3+64)
	assert.Len(t, prefix, 8)
	assert.Equal(t, raw[:8], prefix)
	assert.Equal(t, HashAPIKey(raw), hash)
	assert.NotContains(t, hash, raw[3:])
}

func TestGenerateAPIKey_Unique(t *testing.T) {
	a, _, _, err := GenerateAPIKey()
	require.NoError(t, err)
	b, _, _, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
