package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	nanoid "github.com/jaevor/go-nanoid"

	"github.com/redmonkez12/authflow/internal/user"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 30
	usernameAttempts  = 4
)

// OAuthProfile is what an identity provider asserts about the user.
type OAuthProfile struct {
	ProviderID    string // provider subject, stored as oauth_id
	Email         string
	EmailVerified bool
	FirstName     string
	LastName      string
	Picture       string
}

func (p *OAuthProfile) profile() user.Profile {
	return user.Profile{FirstName: p.FirstName, LastName: p.LastName, Picture: p.Picture}
}

// IdentityResolver maps credentials and provider profiles to User records
type IdentityResolver struct {
	users  UserRepository
	hasher PasswordHasher
	suffix func() string

	dummyOnce   sync.Once
	dummyDigest string
}

func NewIdentityResolver(users UserRepository, hasher PasswordHasher) *IdentityResolver {
	if users == nil || hasher == nil {
		panic("auth: NewIdentityResolver requires a user repository and a hasher")
	}
	suffix, err := nanoid.CustomASCII("abcdefghijklmnopqrstuvwxyz0123456789", 6)
	if err != nil {
		panic(fmt.Sprintf("auth: username generator: %v", err))
	}
	return &IdentityResolver{users: users, hasher: hasher, suffix: suffix}
}

// ResolveFromPassword returns the user owning email if password matches.
// A missing user, an OAuth-only user and a wrong password all yield the same
// ErrInvalidCredentials. A correct password on an unverified account returns
// the user together with ErrEmailNotVerified.
func (r *IdentityResolver) ResolveFromPassword(ctx context.Context, email, password string) (*user.User, error) {
	u, err := r.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			return nil, fmt.Errorf("failed to get user: %w", err)
		}
		u = nil
	}

	if u == nil || !u.HasPassword() {
		// keep the response time close to a real verification
		r.hasher.Verify(password, r.dummy())
		return nil, ErrInvalidCredentials
	}

	if !r.hasher.Verify(password, *u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if !u.EmailVerified {
		return u, ErrEmailNotVerified
	}
	return u, nil
}

func (r *IdentityResolver) dummy() string {
	r.dummyOnce.Do(func() {
		r.dummyDigest, _ = r.hasher.Hash("dummy-password-for-timing")
	})
	return r.dummyDigest
}

// ResolveFromOAuth finds the user by provider id, then by email, and creates
// one only when neither exists. Linking by email requires the provider to
// attest the email; otherwise ErrConflict is returned so an unverified
// provider address can never take over a password account.
func (r *IdentityResolver) ResolveFromOAuth(ctx context.Context, p OAuthProfile) (*user.User, error) {
	if p.ProviderID == "" || p.Email == "" {
		return nil, ErrTokenInvalid
	}

	u, err := r.users.GetByOAuthID(ctx, p.ProviderID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, user.ErrNotFound) {
		return nil, fmt.Errorf("failed to get user by oauth id: %w", err)
	}

	existing, err := r.users.GetByEmail(ctx, p.Email)
	switch {
	case err == nil:
		return r.link(ctx, existing, p)
	case !errors.Is(err, user.ErrNotFound):
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	oauthID := p.ProviderID
	created, err := r.create(ctx, &user.User{
		Email:         p.Email,
		OAuthID:       &oauthID,
		EmailVerified: p.EmailVerified,
		FirstName:     p.FirstName,
		LastName:      p.LastName,
		Picture:       p.Picture,
	})
	if err == nil {
		return created, nil
	}

	// A concurrent request created the account between lookup and insert.
	if errors.Is(err, ErrConflict) || errors.Is(err, user.ErrDuplicateOAuthID) {
		if u, getErr := r.users.GetByOAuthID(ctx, p.ProviderID); getErr == nil {
			return u, nil
		}
		return nil, ErrConflict
	}
	return nil, err
}

// link attaches the provider identity to an account found by email. When
// that account never verified its email the stored password was chosen by
// whoever signed up first, so the store drops it as part of the link.
func (r *IdentityResolver) link(ctx context.Context, existing *user.User, p OAuthProfile) (*user.User, error) {
	if !p.EmailVerified {
		return nil, ErrConflict
	}

	linked, err := r.users.LinkOAuth(ctx, existing.ID, p.ProviderID, p.profile(), p.EmailVerified)
	if err != nil {
		if errors.Is(err, user.ErrDuplicateOAuthID) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("failed to link oauth identity: %w", err)
	}
	return linked, nil
}

// ResolveByEmail looks a user up for flows that start from an email address
func (r *IdentityResolver) ResolveByEmail(ctx context.Context, email string) (*user.User, error) {
	u, err := r.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// CreatePasswordUser registers an unverified password account
func (r *IdentityResolver) CreatePasswordUser(ctx context.Context, name, email, password string) (*user.User, error) {
	digest, err := r.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	first, last := splitName(name)
	return r.create(ctx, &user.User{
		Email:        email,
		PasswordHash: &digest,
		FirstName:    first,
		LastName:     last,
	})
}

// create inserts u, deriving a username from the email and falling back to
// random suffixes on collision. A duplicate email is ErrConflict.
func (r *IdentityResolver) create(ctx context.Context, u *user.User) (*user.User, error) {
	base := UsernameFromEmail(u.Email)

	for attempt := 0; attempt < usernameAttempts; attempt++ {
		u.Username = base
		if attempt > 0 {
			u.Username = truncate(base, maxUsernameLength-7) + "_" + r.suffix()
		}

		created, err := r.users.Create(ctx, u)
		switch {
		case err == nil:
			return created, nil
		case errors.Is(err, user.ErrDuplicateUsername):
			continue
		case errors.Is(err, user.ErrDuplicateEmail):
			return nil, ErrConflict
		case errors.Is(err, user.ErrDuplicateOAuthID):
			return nil, err
		default:
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
	}
	return nil, fmt.Errorf("failed to create user: no free username for %q", base)
}

// UsernameFromEmail derives a username from the local part of email:
// lower-cased, restricted to [a-z0-9._-], padded to the minimum length.
func UsernameFromEmail(email string) string {
	local := user.NormalizeEmail(email)
	if at := strings.IndexByte(local, '@'); at >= 0 {
		local = local[:at]
	}

	var b strings.Builder
	for _, c := range local {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '.' || c == '_' || c == '-' {
			b.WriteRune(c)
		}
	}

	name := truncate(b.String(), maxUsernameLength)
	for len(name) < minUsernameLength {
		name += "0"
	}
	return name
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func splitName(name string) (first, last string) {
	name = strings.TrimSpace(name)
	first, last, _ = strings.Cut(name, " ")
	return first, strings.TrimSpace(last)
}
