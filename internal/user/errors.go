package user

import "errors"

var (
	ErrNotFound          = errors.New("user not found")
	ErrDuplicateEmail    = errors.New("email already exists")
	ErrDuplicateUsername = errors.New("username already exists")
	ErrDuplicateOAuthID  = errors.New("oauth identity already linked")
	// ErrMissingAuthMethod means a write would leave the user with neither a
	// password nor an OAuth identity.
	ErrMissingAuthMethod = errors.New("user must have a password or an oauth identity")
)
