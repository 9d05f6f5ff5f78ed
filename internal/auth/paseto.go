package auth

import (
	"fmt"
	"time"

	"aidanwoods.dev/go-paseto"
	"github.com/google/uuid"

	"github.com/redmonkez12/authflow/internal/otp"
)

// PasetoService handles PASETO token creation and validation
// Uses v4.local (symmetric encryption with XChaCha20-Poly1305)
type PasetoService struct {
	symmetricKey paseto.V4SymmetricKey
	now          func() time.Time
}

func NewPasetoService(symmetricKey []byte) (*PasetoService, error) {
	if len(symmetricKey) != 32 {
		return nil, fmt.Errorf("symmetric key must be exactly 32 bytes, got %d", len(symmetricKey))
	}

	key, err := paseto.V4SymmetricKeyFromBytes(symmetricKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create symmetric key: %w", err)
	}

	return &PasetoService{
		symmetricKey: key,
		now:          time.Now,
	}, nil
}

func (s *PasetoService) IssueAccessToken(userID uuid.UUID, ttl time.Duration) (string, error) {
	return s.issue(userID, "", "", ttl)
}

func (s *PasetoService) IssuePurposeToken(userID uuid.UUID, purpose otp.Purpose, binding string, ttl time.Duration) (string, error) {
	if purpose == "" {
		return "", fmt.Errorf("purpose token requires a purpose")
	}
	return s.issue(userID, purpose, binding, ttl)
}

func (s *PasetoService) issue(userID uuid.UUID, purpose otp.Purpose, binding string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	now := s.now()

	token := paseto.NewToken()
	token.SetSubject(userID.String())
	// Times are written with sub-second precision; SetIssuedAt and
	// SetExpiration truncate to whole seconds.
	token.SetString("iat", now.UTC().Format(time.RFC3339Nano))
	token.SetString("exp", now.Add(ttl).UTC().Format(time.RFC3339Nano))
	if purpose != "" {
		token.SetString(claimPurpose, string(purpose))
	}
	if binding != "" {
		token.SetString(claimBinding, binding)
	}

	return token.V4Encrypt(s.symmetricKey, nil), nil
}

// VerifyToken validates a PASETO v4.local token and returns the claims.
// Expiry is checked here against s.now rather than by parser rules.
func (s *PasetoService) VerifyToken(tokenStr string) (*TokenClaims, error) {
	parser := paseto.MakeParser(nil)

	token, err := parser.ParseV4Local(s.symmetricKey, tokenStr, nil)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	subject, err := token.GetSubject()
	if err != nil {
		return nil, ErrTokenInvalid
	}
	userID, err := uuid.Parse(subject)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	issuedAt, err := token.GetIssuedAt()
	if err != nil {
		return nil, ErrTokenInvalid
	}

	expiresAt, err := token.GetExpiration()
	if err != nil {
		return nil, ErrTokenInvalid
	}

	if !s.now().Before(expiresAt) {
		return nil, ErrTokenExpired
	}

	claims := &TokenClaims{
		UserID:    userID,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}
	if purpose, err := token.GetString(claimPurpose); err == nil {
		claims.Purpose = otp.Purpose(purpose)
	}
	if binding, err := token.GetString(claimBinding); err == nil {
		claims.Binding = binding
	}

	return claims, nil
}
