// Package auth guards the HTTP API with a single bearer token and per-client
// rate limits.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const (
	// TokenPrefix marks evalview API tokens
	TokenPrefix = "ev_sk_" // #nosec G101 -- prefix, not a credential

	// TokenLength is the number of random bytes, hex encoded after the prefix
	TokenLength = 32

	bcryptCost = 12
)

// GenerateToken returns a new ev_sk_<64 hex> token
func GenerateToken() (string, error) {
	b := make([]byte, TokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return TokenPrefix + hex.EncodeToString(b), nil
}

// HashToken returns the bcrypt hash stored in server.authTokenHash
func HashToken(token string) (string, error) {
	return hashWithCost(token, bcryptCost)
}

func hashWithCost(token string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(strings.TrimPrefix(token, TokenPrefix)), cost)
	if err != nil {
		return "", fmt.Errorf("hash token: %w", err)
	}
	return string(hash), nil
}

// IsValidTokenFormat reports whether token looks like GenerateToken output
func IsValidTokenFormat(token string) bool {
	secret, ok := strings.CutPrefix(token, TokenPrefix)
	if !ok || len(secret) != TokenLength*2 {
		return false
	}
	_, err := hex.DecodeString(secret)
	return err == nil
}

// Verifier checks tokens against one bcrypt hash. The token that matched is
// remembered by digest, so only the first request pays for bcrypt.
type Verifier struct {
	hash []byte

	mu       sync.RWMutex
	accepted []byte
}

// NewVerifier creates a Verifier for hash
func NewVerifier(hash string) *Verifier {
	return &Verifier{hash: []byte(hash)}
}

// Verify reports whether token matches the hash
func (v *Verifier) Verify(token string) bool {
	if len(v.hash) == 0 || !IsValidTokenFormat(token) {
		return false
	}
	sum := sha256.Sum256([]byte(token))

	v.mu.RLock()
	known := v.accepted != nil && subtle.ConstantTimeCompare(v.accepted, sum[:]) == 1
	v.mu.RUnlock()
	if known {
		return true
	}

	secret := strings.TrimPrefix(token, TokenPrefix)
	if bcrypt.CompareHashAndPassword(v.hash, []byte(secret)) != nil {
		return false
	}
	v.mu.Lock()
	v.accepted = sum[:]
	v.mu.Unlock()
	return true
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
