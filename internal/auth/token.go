package auth

import (
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/authflow/internal/otp"
)

const (
	claimPurpose = "purpose"
	claimBinding = "bnd"
)

// TokenClaims is what a verified access or purpose token asserts.
type TokenClaims struct {
	UserID    uuid.UUID
	Purpose   otp.Purpose // empty for access tokens
	Binding   string      // purpose tokens only, see Service.resetBinding
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IsAccess reports whether the token is a plain access token.
func (c *TokenClaims) IsAccess() bool {
	return c.Purpose == ""
}
