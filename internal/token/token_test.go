package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() *Manager {
	return NewManager("initial-secret", 15*time.Minute, 7*24*time.Hour, 2*time.Minute)
}

func TestIssueAndValidateAccessToken(t *testing.T) {
	m := newTestManager()

	tok, err := m.IssueAccessToken("user-1", "alice@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	claims, err := m.ValidateAccessToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.NotEmpty(t, claims.ID)
}

func TestIssueRefreshToken_HashIsStableAndDistinctFromRaw(t *testing.T) {
	m := newTestManager()

	raw, hash, exp, err := m.IssueRefreshToken("user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, raw, hash)
	assert.True(t, exp.After(time.Now()))

	assert.Equal(t, hash, HashRefreshToken(raw))
}

func TestValidateAccessToken_RejectsUnknownSecret(t *testing.T) {
	issuer := newTestManager()
	tok, err := issuer.IssueAccessToken("user-1", "alice@example.com")
	require.NoError(t, err)

	other := newTestManager()
	other.RotateSecret("a-different-secret")

	_, err = other.ValidateAccessToken(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRotateSecret_InvalidatesPreviouslyIssuedTokens(t *testing.T) {
	m := newTestManager()
	tok, err := m.IssueAccessToken("user-1", "alice@example.com")
	require.NoError(t, err)

	_, err = m.ValidateAccessToken(tok)
	require.NoError(t, err)

	m.RotateSecret("rotated-secret")

	_, err = m.ValidateAccessToken(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateAccessToken_ExpiredTokenReturnsErrExpired(t *testing.T) {
	m := NewManager("initial-secret", -1*time.Second, 7*24*time.Hour, 2*time.Minute)
	tok, err := m.IssueAccessToken("user-1", "alice@example.com")
	require.NoError(t, err)

	_, err = m.ValidateAccessToken(tok)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestShouldAutoRefresh_Boundary(t *testing.T) {
	m := newTestManager()

	threshold := time.Duration(m.autoRefreshThreshold.Load())
	justUnder := time.Now().Add(threshold - time.Second)
	justOver := time.Now().Add(threshold + time.Second)

	assert.True(t, m.ShouldAutoRefresh(justUnder))
	assert.False(t, m.ShouldAutoRefresh(justOver))
}

func TestValidateRefreshToken_RoundTrip(t *testing.T) {
	m := newTestManager()
	raw, _, _, err := m.IssueRefreshToken("user-1")
	require.NoError(t, err)

	claims, err := m.ValidateRefreshToken(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
}
