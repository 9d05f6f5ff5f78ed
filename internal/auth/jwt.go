package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/redmonkez12/authflow/internal/otp"
)

func init() {
	// exp and iat are encoded with millisecond precision
	jwt.TimePrecision = time.Millisecond
}

// JWTClaims are the HS256 token claims
type JWTClaims struct {
	Purpose string `json:"purpose,omitempty"`
	Binding string `json:"bnd,omitempty"`
	jwt.RegisteredClaims
}

// JWTService is the HS256 alternative to PasetoService
type JWTService struct {
	secret []byte
	now    func() time.Time
}

func NewJWTService(secret []byte) (*JWTService, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 bytes, got %d", len(secret))
	}
	return &JWTService{secret: secret, now: time.Now}, nil
}

func (s *JWTService) IssueAccessToken(userID uuid.UUID, ttl time.Duration) (string, error) {
	return s.issue(userID, "", "", ttl)
}

func (s *JWTService) IssuePurposeToken(userID uuid.UUID, purpose otp.Purpose, binding string, ttl time.Duration) (string, error) {
	if purpose == "" {
		return "", fmt.Errorf("purpose token requires a purpose")
	}
	return s.issue(userID, purpose, binding, ttl)
}

func (s *JWTService) issue(userID uuid.UUID, purpose otp.Purpose, binding string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	now := s.now()

	claims := JWTClaims{
		Purpose: string(purpose),
		Binding: binding,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates signature and expiry; a token is valid while now < exp.
func (s *JWTService) VerifyToken(tokenStr string) (*TokenClaims, error) {
	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	out := &TokenClaims{
		UserID:    userID,
		Purpose:   otp.Purpose(claims.Purpose),
		Binding:   claims.Binding,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}
