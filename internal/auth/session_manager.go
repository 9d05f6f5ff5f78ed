package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/authflow/internal/session"
)

// SessionManager owns the long-lived, revocable credential. Refresh never
// writes the session: expiry is fixed at creation and the id is not rotated.
type SessionManager struct {
	repo       SessionRepository
	tokens     TokenService
	sessionTTL time.Duration
	accessTTL  time.Duration
	now        func() time.Time
}

func NewSessionManager(repo SessionRepository, tokens TokenService, sessionTTL, accessTTL time.Duration) *SessionManager {
	if repo == nil || tokens == nil {
		panic("auth: NewSessionManager requires a repository and a token service")
	}
	return &SessionManager{
		repo:       repo,
		tokens:     tokens,
		sessionTTL: sessionTTL,
		accessTTL:  accessTTL,
		now:        time.Now,
	}
}

// Create opens a new session for userID
func (m *SessionManager) Create(ctx context.Context, userID uuid.UUID, userAgent string) (*session.Session, error) {
	id, err := generateRandomToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	now := m.now()
	s := &session.Session{
		ID:        id,
		UserID:    userID,
		ExpiresAt: now.Add(m.sessionTTL),
		IsValid:   true,
		UserAgent: userAgent,
		CreatedAt: now,
	}
	if err := m.repo.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return s, nil
}

// Validate returns the session if it is still valid and unexpired
func (m *SessionManager) Validate(ctx context.Context, id string) (*session.Session, error) {
	if id == "" {
		return nil, ErrSessionInvalid
	}

	s, err := m.repo.GetValid(ctx, id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if !s.Usable(m.now()) {
		return nil, ErrSessionInvalid
	}
	return s, nil
}

// Revoke invalidates the session for good. Revoking twice is a no-op.
func (m *SessionManager) Revoke(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := m.repo.Invalidate(ctx, id); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// RefreshAccessToken mints a new access token for the session's owner
func (m *SessionManager) RefreshAccessToken(ctx context.Context, id string) (string, *session.Session, error) {
	s, err := m.Validate(ctx, id)
	if err != nil {
		return "", nil, err
	}

	token, err := m.tokens.IssueAccessToken(s.UserID, m.accessTTL)
	if err != nil {
		return "", nil, fmt.Errorf("failed to issue access token: %w", err)
	}
	return token, s, nil
}

// RevokeAllForUser drops every session of userID
func (m *SessionManager) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	if err := m.repo.DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to revoke user sessions: %w", err)
	}
	return nil
}
