// Package cryptox covers the credential primitives the service needs:
// opaque token generation, deterministic token fingerprints for storage, and
// argon2id hashing for client secrets.
package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Token size constants (bytes of entropy before encoding).
const (
	// TokenSize128 suits short-lived values.
	TokenSize128 = 16
	// TokenSize256 is the recommended size for access and refresh tokens.
	TokenSize256 = 32
)

// GenerateToken returns a cryptographically random opaque token encoded as
// base64url without padding.
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// FingerprintToken returns the deterministic SHA-256 fingerprint of a token,
// base64url encoded. Stores hold fingerprints so a database leak does not
// leak usable credentials.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
