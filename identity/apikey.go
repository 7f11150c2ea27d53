// Package identity resolves an incoming bearer token to an Agent and
// its full hierarchy path in one round trip, and issues new API keys.
package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const keyPrefix = "cpk_"

// GenerateAPIKey returns a new opaque token and its SHA-256 hex hash.
// Only the hash is ever persisted; the token itself is shown to the
// caller exactly once, at creation time.
func GenerateAPIKey() (token string, hash string, suffix string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("generating key material: %w", err)
	}
	token = keyPrefix + base64.RawURLEncoding.EncodeToString(raw)
	hash = HashAPIKey(token)
	suffix = token[len(token)-8:]
	return token, hash, suffix, nil
}

// HashAPIKey returns the hex-encoded SHA-256 digest of a presented token.
func HashAPIKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ExtractBearerToken pulls the token out of an Authorization header
// value, accepting both "Bearer <token>" and a bare token that starts
// with "cpk_".
func ExtractBearerToken(headerValue string) (string, bool) {
	headerValue = strings.TrimSpace(headerValue)
	if headerValue == "" {
		return "", false
	}
	if strings.HasPrefix(headerValue, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(headerValue, "Bearer ")), true
	}
	if strings.HasPrefix(headerValue, keyPrefix) {
		return headerValue, true
	}
	return "", false
}
