// Package auth holds credential-handling helpers shared between the admin
// API and the edge proxy that don't belong to any single HTTP surface.
//
// API Key Format:
//   - prefix "sk_" followed by 64 hexadecimal characters (32 bytes of
//     randomness), generated with crypto/rand
//   - the first 8 characters of the raw key are persisted as the
//     display prefix so an admin listing can identify a key without
//     ever re-deriving the full value
//
// API Key Storage:
//   - the raw key is returned to the admin exactly once, at creation
//   - only its SHA-256 hash is persisted (internal/db.ApiKeyRepo), never
//     the raw value
//
// Unlike a password, an API key is looked up by exact value
// (ApiKeyRepo.GetByHash does "WHERE key_hash = $1" on every proxied
// request), so its hash must be deterministic. Bcrypt embeds a random
// salt per call and cannot support that lookup, the same tradeoff that
// already rules out bcrypt for refresh tokens (internal/token).
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const (
	// apiKeyRandomBytes is the amount of randomness backing a raw key.
	apiKeyRandomBytes = 32

	// apiKeyPrefixLen is how many raw characters are kept as the
	// display prefix stored alongside the hash.
	apiKeyPrefixLen = 8
)

// GenerateAPIKey produces a new raw API key of the form "sk_<64 hex
// chars>" and its SHA-256 hash, the only form ever persisted.
func GenerateAPIKey() (raw, hash, prefix string, err error) {
	buf := make([]byte, apiKeyRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", "", fmt.Errorf("generating API key: %w", err)
	}
	raw = "sk_" + hex.EncodeToString(buf)
	hash = HashAPIKey(raw)
	prefix = raw[:apiKeyPrefixLen]
	return raw, hash, prefix, nil
}

// HashAPIKey returns the hex-encoded SHA-256 hash of a raw API key, as
// stored in api_keys.key_hash.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
