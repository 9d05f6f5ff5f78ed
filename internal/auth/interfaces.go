package auth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/authflow/internal/otp"
	"github.com/redmonkez12/authflow/internal/session"
	"github.com/redmonkez12/authflow/internal/user"
)

// UserRepository is the credential store. Implemented by user.Repository
// and memory.UserStore.
type UserRepository interface {
	Create(ctx context.Context, u *user.User) (*user.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	GetByOAuthID(ctx context.Context, oauthID string) (*user.User, error)
	LinkOAuth(ctx context.Context, id uuid.UUID, oauthID string, profile user.Profile, emailVerified bool) (*user.User, error)
	MarkEmailAsVerified(ctx context.Context, id uuid.UUID) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// SessionRepository is implemented by session.Repository,
// session.RedisRepository and memory.SessionStore.
type SessionRepository interface {
	Create(ctx context.Context, s *session.Session) error
	GetValid(ctx context.Context, id string) (*session.Session, error)
	Invalidate(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
}

// OtpRepository is implemented by otp.Repository, otp.RedisRepository and
// memory.OtpStore.
type OtpRepository interface {
	Create(ctx context.Context, o *otp.Otp) error
	FindActive(ctx context.Context, userID uuid.UUID, code string, now time.Time) ([]*otp.Otp, error)
	Consume(ctx context.Context, id uuid.UUID, now time.Time) error
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
}

// TokenService defines the interface for token creation and validation.
// Implementations include PasetoService (PASETO v4.local) and JWTService (HS256).
type TokenService interface {
	IssueAccessToken(userID uuid.UUID, ttl time.Duration) (string, error)
	IssuePurposeToken(userID uuid.UUID, purpose otp.Purpose, binding string, ttl time.Duration) (string, error)
	VerifyToken(tokenStr string) (*TokenClaims, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, digest string) bool
}

// Mailer delivers one-time codes and returns the provider's message id.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, name, email, code string, purpose otp.Purpose) (string, error)
}

// OAuthProvider exchanges a provider access token for the user's profile.
type OAuthProvider interface {
	FetchProfile(ctx context.Context, accessToken string) (*OAuthProfile, error)
}

// RateLimiter is implemented by ratelimit.Limiter.
type RateLimiter interface {
	CheckIPRateLimitWithPurpose(ctx context.Context, ip, purpose string) (bool, error)
	RecordIPRequestWithPurpose(ctx context.Context, ip, purpose string) error
	CheckEmailCooldown(ctx context.Context, email string) (bool, error)
	SetEmailCooldown(ctx context.Context, email string) error
	CheckVerifyAttempts(ctx context.Context, email, purpose string) (bool, error)
	RecordFailedVerify(ctx context.Context, email, purpose string) error
	ResetVerifyAttempts(ctx context.Context, email, purpose string) error
}
