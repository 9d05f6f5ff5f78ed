package otp

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no active code matches, or when a code was
// consumed by someone else first.
var ErrNotFound = errors.New("otp not found")

// Purpose is the flow a code was issued for.
type Purpose string

const (
	PurposeSignup         Purpose = "SIGNUP"
	PurposeLogin          Purpose = "LOGIN"
	PurposeForgotPassword Purpose = "FORGOT_PASSWORD"
)

// ParsePurpose accepts the purpose names case-insensitively.
func ParsePurpose(s string) (Purpose, error) {
	switch p := Purpose(strings.ToUpper(strings.TrimSpace(s))); p {
	case PurposeSignup, PurposeLogin, PurposeForgotPassword:
		return p, nil
	default:
		return "", fmt.Errorf("unknown otp purpose %q", s)
	}
}

func (p Purpose) String() string {
	return string(p)
}

// Otp is a single-use verification code bound to a user and a purpose.
type Otp struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Code       string
	Purpose    Purpose
	ExpiresAt  time.Time
	MailID     string
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

// Active reports whether the code can still be verified at now.
func (o *Otp) Active(now time.Time) bool {
	return o.ConsumedAt == nil && now.Before(o.ExpiresAt)
}
