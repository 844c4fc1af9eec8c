package srp

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clientSide is a minimal reimplementation of the client half of SRP-6a,
// used only to exercise the server package end-to-end in tests.
func clientSide(t *testing.T, identity, password, saltHex string) (aPriv *big.Int, aPubHex string) {
	t.Helper()
	aBytes := make([]byte, 32)
	_, err := rand.Read(aBytes)
	require.NoError(t, err)
	aPriv = new(big.Int).SetBytes(aBytes)
	aPriv.Mod(aPriv, n)

	aPub := new(big.Int).Exp(g, aPriv, n)
	return aPriv, hex.EncodeToString(aPub.Bytes())
}

func clientProofAndSessionKey(t *testing.T, identity, password, saltHex string, aPriv *big.Int, aPubHex, bPubHex string) (m1Hex string) {
	t.Helper()
	salt, err := hex.DecodeString(saltHex)
	require.NoError(t, err)

	bPub, ok := new(big.Int).SetString(bPubHex, 16)
	require.True(t, ok)
	aPub, ok := new(big.Int).SetString(aPubHex, 16)
	require.True(t, ok)

	u := hashInts(leftPadToN(aPub), leftPadToN(bPub))
	x := hashInts(salt, []byte(identity+":"+password))

	// S = (B - k*g^x) ^ (a + u*x) mod N
	gx := new(big.Int).Exp(g, x, n)
	kgx := new(big.Int).Mul(k, gx)
	base := new(big.Int).Sub(bPub, kgx)
	base.Mod(base, n)
	exp := new(big.Int).Add(aPriv, new(big.Int).Mul(u, x))
	s := new(big.Int).Exp(base, exp, n)

	sessionKey := hashInts(s.Bytes())
	m1 := clientProof(identity, salt, aPub, bPub, sessionKey)
	return hex.EncodeToString(m1.Bytes())
}

func TestRoundTrip_CorrectProofSucceeds(t *testing.T) {
	identity := "alice@example.com"
	password := "hunter2hunter2"

	salt, err := GenerateSalt()
	require.NoError(t, err)

	verifierHex, err := ComputeVerifier(salt, identity, password)
	require.NoError(t, err)

	serverEph, err := GenerateServerEphemeral(verifierHex)
	require.NoError(t, err)

	aPriv, aPubHex := clientSide(t, identity, password, salt)
	m1Hex := clientProofAndSessionKey(t, identity, password, salt, aPriv, aPubHex, serverEph.Public)

	m2Hex, err := VerifyClientProof(identity, salt, verifierHex, serverEph.Private, aPubHex, m1Hex)
	require.NoError(t, err)
	assert.NotEmpty(t, m2Hex)
}

func TestVerifyClientProof_WrongPasswordFails(t *testing.T) {
	identity := "alice@example.com"

	salt, err := GenerateSalt()
	require.NoError(t, err)

	verifierHex, err := ComputeVerifier(salt, identity, "correct-password")
	require.NoError(t, err)

	serverEph, err := GenerateServerEphemeral(verifierHex)
	require.NoError(t, err)

	aPriv, aPubHex := clientSide(t, identity, "wrong-password", salt)
	m1Hex := clientProofAndSessionKey(t, identity, "wrong-password", salt, aPriv, aPubHex, serverEph.Public)

	_, err = VerifyClientProof(identity, salt, verifierHex, serverEph.Private, aPubHex, m1Hex)
	assert.ErrorIs(t, err, ErrBadProof)
}

func TestVerifyClientProof_StaleSessionWithOtherClientEphemeralFails(t *testing.T) {
	identity := "alice@example.com"
	password := "hunter2hunter2"

	salt, err := GenerateSalt()
	require.NoError(t, err)
	verifierHex, err := ComputeVerifier(salt, identity, password)
	require.NoError(t, err)
	serverEph, err := GenerateServerEphemeral(verifierHex)
	require.NoError(t, err)

	aPriv, aPubHex := clientSide(t, identity, password, salt)
	m1Hex := clientProofAndSessionKey(t, identity, password, salt, aPriv, aPubHex, serverEph.Public)

	_, err = VerifyClientProof(identity, salt, verifierHex, serverEph.Private, aPubHex, m1Hex)
	require.NoError(t, err)

	// The session (serverEph.Private) would have been deleted by the
	// caller atomically on first consumption; a second verify attempt with
	// the same session state must be unreachable in the real flow. Here we
	// only assert that mutating the public input (a different client
	// ephemeral) against stale session state does not succeed by accident.
	_, otherAPubHex := clientSide(t, identity, password, salt)
	_, err = VerifyClientProof(identity, salt, verifierHex, serverEph.Private, otherAPubHex, m1Hex)
	assert.Error(t, err)
}

func TestDeterministicSalt_StableForSameEmail(t *testing.T) {
	a := DeterministicSalt("nobody@example.com")
	b := DeterministicSalt("nobody@example.com")
	assert.Equal(t, a, b)

	c := DeterministicSalt("someone-else@example.com")
	assert.NotEqual(t, a, c)
}
