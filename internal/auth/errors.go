package auth

import "errors"

// Outcomes a caller is expected to handle. None of them is logged as an
// internal failure.
var (
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrEmailNotVerified    = errors.New("email not verified")
	ErrConflict            = errors.New("an account with this email already exists")
	ErrTokenExpired        = errors.New("token has expired")
	ErrTokenInvalid        = errors.New("invalid token")
	ErrOtpNotFound         = errors.New("invalid or expired code")
	ErrOtpPurposeMismatch  = errors.New("code was issued for a different purpose")
	ErrSessionInvalid      = errors.New("session is invalid or expired")
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")
)

// Input validation
var (
	ErrNameRequired       = errors.New("name is required")
	ErrEmailRequired      = errors.New("email is required")
	ErrInvalidEmailFormat = errors.New("invalid email format")
	ErrPasswordRequired   = errors.New("password is required")
	ErrPasswordTooShort   = errors.New("password must be at least 8 characters")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrInvalidPurpose     = errors.New("invalid purpose")
	ErrCodeRequired       = errors.New("code is required")
)
