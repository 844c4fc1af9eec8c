// Package srp implements the server side of SRP-6a (Secure Remote
// Password, revision 6a) with a pinned group, hash, and encoding. The
// server never sees the client's password; it stores only (salt,
// verifier) and participates in the init/verify handshake by exchanging
// ephemeral public values and proofs.
//
// Pinned parameters:
//   - Group: RFC 5054 2048-bit group (N, g)
//   - Hash: SHA-256
//   - Encoding: hexadecimal for every value that crosses the wire or is
//     persisted (salt, verifier, ephemeral publics, proofs)
//
// A mismatch on either side of a client/server pair yields a silent
// INVALID_CREDENTIALS rather than a diagnosable error. This is inherent
// to the protocol and is why the parameters are fixed constants, never
// configurable.
package srp

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/big"
)

// ErrBadProof is returned when a client's proof does not match the
// server's derivation of the shared secret.
var ErrBadProof = errors.New("srp: proof mismatch")

// N and G are the RFC 5054 2048-bit group parameters, hex-encoded in the
// RFC text and parsed once at package init.
var (
	n = mustHex(
		"AC6BDB41324A9A9BF166DE5E1389582FAF72B6651987EE07FC3192943DB56050A37329CBB4A099ED8193E0757767A13DD52312AB4B03310DCD7F48A9DA04FD50E8083969EDB767B0CF6095179A163AB3661A05FBD5FAAAE82918A9962F0B93B855F97993EC975EEAA80D740ADBF4FF747359D041D5C33EA71D281E446B14773BCA97B43A23FB801676BD207A436C6481F1D2B9078717461A5B9D32E688F87748544523B524B0D57D5EA77A2775D2ECFA032CFBDBF52FB3786160279004E57AE6AF874E7303CE53299CCC041C7BC308D82A5698F3A8D0C38271AE35F8E9DBFBB694B5C803D89F7AE435DE236D525F54759B65E372FCD68EF20FA7111F9E4AFF73",
	)
	g = big.NewInt(2)
	k = computeK()
)

func mustHex(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("srp: invalid pinned group constant")
	}
	return v
}

// computeK derives the SRP-6a multiplier k = H(N, g), padding g to N's
// byte length per RFC 5054.
func computeK() *big.Int {
	nBytes := n.Bytes()
	gBytes := padLeft(g.Bytes(), len(nBytes))
	h := sha256.New()
	h.Write(nBytes)
	h.Write(gBytes)
	return new(big.Int).SetBytes(h.Sum(nil))
}

func padLeft(b []byte, size int) []byte {
	if len(b) >= size {
		return b
	}
	out := make([]byte, size)
	copy(out[size-len(b):], b)
	return out
}

func hashInts(parts ...[]byte) *big.Int {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return new(big.Int).SetBytes(h.Sum(nil))
}

// GenerateSalt returns a fresh 16-byte hex-encoded salt for a new user or
// a password reset.
func GenerateSalt() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ComputeVerifier is provided for completeness and for tests that need a
// matching client-side verifier; production clients compute this
// themselves and the server never sees the password that produced it.
func ComputeVerifier(saltHex, identity, password string) (string, error) {
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", err
	}
	x := hashInts(salt, []byte(identity+":"+password))
	v := new(big.Int).Exp(g, x, n)
	return hex.EncodeToString(v.Bytes()), nil
}

// ServerEphemeral holds the server's private/public ephemeral pair for a
// single login attempt.
type ServerEphemeral struct {
	Private *big.Int // b
	Public  string   // B, hex-encoded
}

// GenerateServerEphemeral derives the server's ephemeral (b, B) for a
// user's stored verifier. B = k*v + g^b mod N.
func GenerateServerEphemeral(verifierHex string) (*ServerEphemeral, error) {
	v, ok := new(big.Int).SetString(verifierHex, 16)
	if !ok {
		return nil, errors.New("srp: invalid verifier encoding")
	}

	bBytes := make([]byte, 32)
	if _, err := rand.Read(bBytes); err != nil {
		return nil, err
	}
	b := new(big.Int).SetBytes(bBytes)
	b.Mod(b, n)

	term1 := new(big.Int).Mul(k, v)
	term2 := new(big.Int).Exp(g, b, n)
	bPub := new(big.Int).Add(term1, term2)
	bPub.Mod(bPub, n)

	return &ServerEphemeral{Private: b, Public: hex.EncodeToString(bPub.Bytes())}, nil
}

// VerifyClientProof re-derives the shared secret from the stored session
// state and the client's submitted proof, returning the server's own
// proof M2 on success. It never returns a partial result: either the
// client's proof matches and a server proof is produced, or ErrBadProof
// (or a parameter error) is returned.
//
//   - identity, saltHex, verifierHex: the user's stored SRP identity
//   - serverPrivateB: the server's ephemeral private value stored in the session
//   - clientPublicAHex: the client's ephemeral public value stored in the session
//   - clientProofHex: M1, submitted at verify time
func VerifyClientProof(identity, saltHex, verifierHex string, serverPrivateB *big.Int, clientPublicAHex, clientProofHex string) (serverProofHex string, err error) {
	v, ok := new(big.Int).SetString(verifierHex, 16)
	if !ok {
		return "", errors.New("srp: invalid verifier encoding")
	}
	a, ok := new(big.Int).SetString(clientPublicAHex, 16)
	if !ok {
		return "", errors.New("srp: invalid client public encoding")
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", errors.New("srp: invalid salt encoding")
	}

	// Public-value sanity check: A mod N must not be zero.
	aModN := new(big.Int).Mod(a, n)
	if aModN.Sign() == 0 {
		return "", ErrBadProof
	}

	bPub := recomputeServerPublic(v, serverPrivateB)

	u := hashInts(leftPadToN(a), leftPadToN(bPub))
	if u.Sign() == 0 {
		return "", ErrBadProof
	}

	// S = (A * v^u) ^ b mod N
	vu := new(big.Int).Exp(v, u, n)
	base := new(big.Int).Mul(a, vu)
	base.Mod(base, n)
	s := new(big.Int).Exp(base, serverPrivateB, n)

	sessionKey := hashInts(s.Bytes())

	expectedM1 := clientProof(identity, salt, a, bPub, sessionKey)
	clientProof, ok := new(big.Int).SetString(clientProofHex, 16)
	if !ok {
		return "", errors.New("srp: invalid client proof encoding")
	}
	if expectedM1.Cmp(clientProof) != 0 {
		return "", ErrBadProof
	}

	m2 := serverProof(a, expectedM1, sessionKey)
	return hex.EncodeToString(m2.Bytes()), nil
}

func recomputeServerPublic(v, b *big.Int) *big.Int {
	term1 := new(big.Int).Mul(k, v)
	term2 := new(big.Int).Exp(g, b, n)
	bPub := new(big.Int).Add(term1, term2)
	bPub.Mod(bPub, n)
	return bPub
}

func leftPadToN(x *big.Int) []byte {
	return padLeft(x.Bytes(), len(n.Bytes()))
}

// clientProof computes M1 = H(H(N) xor H(g), H(I), salt, A, B, K).
// This is the standard SRP-6a proof construction.
func clientProof(identity string, salt []byte, a, bPub, sessionKey *big.Int) *big.Int {
	hn := sha256.Sum256(n.Bytes())
	hg := sha256.Sum256(padLeft(g.Bytes(), len(n.Bytes())))
	xored := make([]byte, len(hn))
	for i := range hn {
		xored[i] = hn[i] ^ hg[i]
	}
	hi := sha256.Sum256([]byte(identity))

	h := sha256.New()
	h.Write(xored)
	h.Write(hi[:])
	h.Write(salt)
	h.Write(leftPadToN(a))
	h.Write(leftPadToN(bPub))
	h.Write(sessionKey.Bytes())
	return new(big.Int).SetBytes(h.Sum(nil))
}

// serverProof computes M2 = H(A, M1, K).
func serverProof(a, m1, sessionKey *big.Int) *big.Int {
	h := sha256.New()
	h.Write(leftPadToN(a))
	h.Write(m1.Bytes())
	h.Write(sessionKey.Bytes())
	return new(big.Int).SetBytes(h.Sum(nil))
}

// DeterministicSalt derives a stable, useless salt for an unknown email so
// that login/init's response shape never discloses account existence by
// timing or structure.
func DeterministicSalt(email string) string {
	sum := sha256.Sum256([]byte("srp-enumeration-guard:" + email))
	return hex.EncodeToString(sum[:16])
}
