package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// DefaultResetTTL is how long a password reset secret stays valid.
const DefaultResetTTL = 10 * time.Minute

const resetTokenBytes = 32

// ResetToken is a freshly generated one-time password reset secret. Plain is
// sent to the user and never stored; Hash is what the credential store keeps.
type ResetToken struct {
	Plain     string
	Hash      string
	ExpiresAt time.Time
}

// NewResetToken generates a random reset secret valid for ttl from now.
func NewResetToken(now time.Time, ttl time.Duration) (*ResetToken, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate reset token: %w", err)
	}
	plain := hex.EncodeToString(buf)
	return &ResetToken{
		Plain:     plain,
		Hash:      HashResetToken(plain),
		ExpiresAt: now.Add(ttl),
	}, nil
}

// HashResetToken returns the hex sha256 of a plaintext reset secret. Lookups
// always compare hashes.
func HashResetToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}
