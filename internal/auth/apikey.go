// Package auth is the boundary to the authentication collaborator: it
// resolves an API key to an opaque issuer principal id. Login and session
// management live outside this system.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

const (
	keyLength = 32 // 32 bytes = 256 bits
)

// GenerateAPIKey generates a random issuer API key
func GenerateAPIKey() (string, error) {
	bytes := make([]byte, keyLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}

	// Encode to base64 for easier transmission
	key := base64.RawURLEncoding.EncodeToString(bytes)
	return key, nil
}

// HashKey hashes an API key for storage
func HashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return base64.RawStdEncoding.EncodeToString(hash[:])
}

// VerifyKey verifies an API key against its hash using constant-time comparison
func VerifyKey(key, storedHash string) bool {
	actualHash := HashKey(key)
	return subtle.ConstantTimeCompare([]byte(actualHash), []byte(storedHash)) == 1
}
