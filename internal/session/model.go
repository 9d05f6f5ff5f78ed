package session

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("session not found")

// Session is one authenticated client. ID is the raw refresh value handed to
// the client; stores only ever persist its hash.
type Session struct {
	ID        string
	UserID    uuid.UUID
	ExpiresAt time.Time
	IsValid   bool
	UserAgent string
	CreatedAt time.Time
}

// Usable reports whether the session may mint access tokens at now.
func (s *Session) Usable(now time.Time) bool {
	return s.IsValid && now.Before(s.ExpiresAt)
}

// HashID returns the storage key for a raw session id.
func HashID(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}
