package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Session is a Session Registry entry. It records a refresh token by hash;
// the raw token is never stored.
type Session struct {
	ID        string     `json:"id"` // refresh token jti
	UserID    string     `json:"userId"`
	TokenHash string     `json:"-"`
	ExpiresAt time.Time  `json:"expiresAt"`
	CreatedAt time.Time  `json:"createdAt"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
}

// Active reports whether the session is unrevoked and unexpired at now.
func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// HashToken returns the SHA-256 hex digest registries key sessions by.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
