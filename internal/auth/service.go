package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/authflow/internal/logging"
	"github.com/redmonkez12/authflow/internal/otp"
	"github.com/redmonkez12/authflow/internal/user"
)

const (
	minPasswordLength = 8
	maxEmailLength    = 254
)

// AuthTokens is handed to the client after a successful authentication.
// RefreshToken is the session id.
type AuthTokens struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	SessionExpiresAt time.Time `json:"session_expires_at"`
}

type SignupInput struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
}

// SignupResult carries the context token that OTP verification expects.
type SignupResult struct {
	User    *user.User
	Context string
}

// LoginResult is either a session or a request to verify the email first.
type LoginResult struct {
	Tokens               *AuthTokens
	User                 *user.User
	VerificationRequired bool
	Context              string
}

type VerifyInput struct {
	Email     string
	Code      string
	Purpose   otp.Purpose
	Context   string // optional purpose token from signup, login or forgot-password
	UserAgent string
}

// VerifyResult holds a session for SIGNUP and LOGIN, or a reset token for
// FORGOT_PASSWORD.
type VerifyResult struct {
	Tokens     *AuthTokens
	User       *user.User
	ResetToken string
}

// Service handles authentication business logic
type Service struct {
	users    UserRepository
	otps     OtpRepository
	identity *IdentityResolver
	otp      *OTPService
	sessions *SessionManager
	tokens   TokenService
	hasher   PasswordHasher
	oauth    OAuthProvider
	logger   *logging.Logger

	accessTokenDuration  time.Duration
	purposeTokenDuration time.Duration
}

func NewService(
	users UserRepository,
	otps OtpRepository,
	identity *IdentityResolver,
	otpService *OTPService,
	sessions *SessionManager,
	tokens TokenService,
	hasher PasswordHasher,
	oauth OAuthProvider,
	logger *logging.Logger,
	accessTokenDuration time.Duration,
	purposeTokenDuration time.Duration,
) *Service {
	return &Service{
		users:                users,
		otps:                 otps,
		identity:             identity,
		otp:                  otpService,
		sessions:             sessions,
		tokens:               tokens,
		hasher:               hasher,
		oauth:                oauth,
		logger:               logger,
		accessTokenDuration:  accessTokenDuration,
		purposeTokenDuration: purposeTokenDuration,
	}
}

// Signup creates an unverified account and mails a SIGNUP code. The account
// is removed again if the code cannot be delivered.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*SignupResult, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, ErrNameRequired
	}
	if err := validateEmail(in.Email); err != nil {
		return nil, err
	}
	if err := validateNewPassword(in.Password, in.ConfirmPassword); err != nil {
		return nil, err
	}

	newUser, err := s.identity.CreatePasswordUser(ctx, in.Name, in.Email, in.Password)
	if err != nil {
		return nil, err
	}

	if err := s.otp.GenerateAndSend(ctx, newUser.ID, newUser.Email, newUser.DisplayName(), otp.PurposeSignup); err != nil {
		if delErr := s.users.Delete(ctx, newUser.ID); delErr != nil {
			s.logger.Error("failed to roll back user after mail failure", "user_id", newUser.ID, "error", delErr)
		}
		return nil, err
	}

	contextToken, err := s.tokens.IssuePurposeToken(newUser.ID, otp.PurposeSignup, "", s.purposeTokenDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to issue signup context: %w", err)
	}

	return &SignupResult{User: newUser, Context: contextToken}, nil
}

// Login authenticates with email and password. An unverified account gets a
// LOGIN code instead of a session.
func (s *Service) Login(ctx context.Context, email, password, userAgent string) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	u, err := s.identity.ResolveFromPassword(ctx, email, password)
	if errors.Is(err, ErrEmailNotVerified) {
		if err := s.otp.GenerateAndSend(ctx, u.ID, u.Email, u.DisplayName(), otp.PurposeLogin); err != nil {
			return nil, err
		}
		contextToken, err := s.tokens.IssuePurposeToken(u.ID, otp.PurposeLogin, "", s.purposeTokenDuration)
		if err != nil {
			return nil, fmt.Errorf("failed to issue login context: %w", err)
		}
		return &LoginResult{VerificationRequired: true, Context: contextToken}, nil
	}
	if err != nil {
		return nil, err
	}

	tokens, err := s.startSession(ctx, u, userAgent)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Tokens: tokens, User: u}, nil
}

// GoogleLogin signs in with a Google access token, linking or creating the
// account as needed.
func (s *Service) GoogleLogin(ctx context.Context, accessToken, userAgent string) (*AuthTokens, *user.User, error) {
	if s.oauth == nil {
		return nil, nil, fmt.Errorf("%w: oauth provider not configured", ErrUpstreamUnavailable)
	}

	profile, err := s.oauth.FetchProfile(ctx, accessToken)
	if err != nil {
		if errors.Is(err, ErrTokenInvalid) || errors.Is(err, ErrUpstreamUnavailable) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	u, err := s.identity.ResolveFromOAuth(ctx, *profile)
	if err != nil {
		return nil, nil, err
	}

	tokens, err := s.startSession(ctx, u, userAgent)
	if err != nil {
		return nil, nil, err
	}
	return tokens, u, nil
}

// SendOtp mails a new code for purpose and returns the context token. For
// unknown emails, and for SIGNUP or LOGIN on a verified account, nothing is
// sent and a context bound to no user is returned so the response does not
// reveal whether the account exists.
func (s *Service) SendOtp(ctx context.Context, email string, purpose otp.Purpose) (string, error) {
	if _, err := otp.ParsePurpose(string(purpose)); err != nil {
		return "", ErrInvalidPurpose
	}
	if err := validateEmail(email); err != nil {
		return "", err
	}

	u, err := s.identity.ResolveByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return s.decoyContext(purpose)
		}
		return "", err
	}
	if purpose != otp.PurposeForgotPassword && u.EmailVerified {
		return s.decoyContext(purpose)
	}

	if err := s.otp.GenerateAndSend(ctx, u.ID, u.Email, u.DisplayName(), purpose); err != nil {
		return "", err
	}

	contextToken, err := s.tokens.IssuePurposeToken(u.ID, purpose, "", s.purposeTokenDuration)
	if err != nil {
		return "", fmt.Errorf("failed to issue otp context: %w", err)
	}
	return contextToken, nil
}

// ForgotPassword starts the reset flow with a FORGOT_PASSWORD code
func (s *Service) ForgotPassword(ctx context.Context, email string) (string, error) {
	return s.SendOtp(ctx, email, otp.PurposeForgotPassword)
}

func (s *Service) decoyContext(purpose otp.Purpose) (string, error) {
	contextToken, err := s.tokens.IssuePurposeToken(uuid.New(), purpose, "", s.purposeTokenDuration)
	if err != nil {
		return "", fmt.Errorf("failed to issue otp context: %w", err)
	}
	return contextToken, nil
}

// VerifyOtp checks a code. SIGNUP and LOGIN verify the email and open a
// session; FORGOT_PASSWORD returns a reset token and opens no session.
func (s *Service) VerifyOtp(ctx context.Context, in VerifyInput) (*VerifyResult, error) {
	if _, err := otp.ParsePurpose(string(in.Purpose)); err != nil {
		return nil, ErrInvalidPurpose
	}
	if strings.TrimSpace(in.Code) == "" {
		return nil, ErrCodeRequired
	}

	u, err := s.identity.ResolveByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrOtpNotFound
		}
		return nil, err
	}

	if in.Context != "" {
		claims, err := s.tokens.VerifyToken(in.Context)
		if err != nil {
			return nil, err
		}
		if claims.Purpose != in.Purpose {
			return nil, ErrOtpPurposeMismatch
		}
		if claims.UserID != u.ID {
			return nil, ErrTokenInvalid
		}
	}

	if err := s.otp.Verify(ctx, in.Code, u.ID, in.Purpose); err != nil {
		return nil, err
	}

	if in.Purpose == otp.PurposeForgotPassword {
		resetToken, err := s.tokens.IssuePurposeToken(u.ID, otp.PurposeForgotPassword, resetBinding(u), s.purposeTokenDuration)
		if err != nil {
			return nil, fmt.Errorf("failed to issue reset token: %w", err)
		}
		return &VerifyResult{User: u, ResetToken: resetToken}, nil
	}

	if !u.EmailVerified {
		if err := s.users.MarkEmailAsVerified(ctx, u.ID); err != nil {
			return nil, fmt.Errorf("failed to mark email as verified: %w", err)
		}
		u.EmailVerified = true
	}

	tokens, err := s.startSession(ctx, u, in.UserAgent)
	if err != nil {
		return nil, err
	}
	return &VerifyResult{Tokens: tokens, User: u}, nil
}

// ResetPassword sets a new password using the reset token from VerifyOtp.
// The token is bound to the password it replaces, so it works only once.
// Existing sessions are left alone.
func (s *Service) ResetPassword(ctx context.Context, token, password, confirmPassword string) error {
	if err := validateNewPassword(password, confirmPassword); err != nil {
		return err
	}

	claims, err := s.tokens.VerifyToken(token)
	if err != nil {
		return err
	}
	if claims.Purpose != otp.PurposeForgotPassword || claims.Binding == "" {
		return ErrTokenInvalid
	}

	u, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrTokenInvalid
		}
		return fmt.Errorf("failed to get user: %w", err)
	}
	if claims.Binding != resetBinding(u) {
		return ErrTokenInvalid
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, u.ID, digest); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// Refresh mints a new access token from a session id
func (s *Service) Refresh(ctx context.Context, sessionID string) (*AuthTokens, error) {
	accessToken, session, err := s.sessions.RefreshAccessToken(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return &AuthTokens{
		AccessToken:      accessToken,
		RefreshToken:     sessionID,
		TokenType:        "Bearer",
		ExpiresIn:        int64(s.accessTokenDuration.Seconds()),
		SessionExpiresAt: session.ExpiresAt,
	}, nil
}

// Logout revokes the session
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.Revoke(ctx, sessionID)
}

// Me returns the authenticated user
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*user.User, error) {
	return s.users.GetByID(ctx, userID)
}

// DeleteAccount removes the user together with every session and code
func (s *Service) DeleteAccount(ctx context.Context, userID uuid.UUID) error {
	if err := s.sessions.RevokeAllForUser(ctx, userID); err != nil {
		return err
	}
	if err := s.otps.DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user otps: %w", err)
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

func (s *Service) startSession(ctx context.Context, u *user.User, userAgent string) (*AuthTokens, error) {
	sess, err := s.sessions.Create(ctx, u.ID, userAgent)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.tokens.IssueAccessToken(u.ID, s.accessTokenDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}

	return &AuthTokens{
		AccessToken:      accessToken,
		RefreshToken:     sess.ID,
		TokenType:        "Bearer",
		ExpiresIn:        int64(s.accessTokenDuration.Seconds()),
		SessionExpiresAt: sess.ExpiresAt,
	}, nil
}

// resetBinding fingerprints the current password digest. It changes as soon
// as the password does.
func resetBinding(u *user.User) string {
	var digest string
	if u.PasswordHash != nil {
		digest = *u.PasswordHash
	}
	sum := sha256.Sum256([]byte(u.ID.String() + ":" + digest))
	return hex.EncodeToString(sum[:16])
}

func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrEmailRequired
	}
	if len(email) > maxEmailLength {
		return ErrInvalidEmailFormat
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmailFormat
	}
	return nil
}

func validateNewPassword(password, confirm string) error {
	if password == "" {
		return ErrPasswordRequired
	}
	if len(password) < minPasswordLength {
		return ErrPasswordTooShort
	}
	if password != confirm {
		return ErrPasswordMismatch
	}
	return nil
}
