package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/authflow/internal/otp"
)

const OtpCodeLength = 6

var otpDigits = big.NewInt(10)

// OTPService issues and checks one-time codes
type OTPService struct {
	repo        OtpRepository
	mailer      Mailer
	ttl         time.Duration
	mailTimeout time.Duration
	now         func() time.Time
}

func NewOTPService(repo OtpRepository, mailer Mailer, ttl, mailTimeout time.Duration) *OTPService {
	if repo == nil || mailer == nil {
		panic("auth: NewOTPService requires a repository and a mailer")
	}
	return &OTPService{
		repo:        repo,
		mailer:      mailer,
		ttl:         ttl,
		mailTimeout: mailTimeout,
		now:         time.Now,
	}
}

// GenerateAndSend mails a fresh code and stores it only once the mail
// collaborator accepted it. Mail failures and timeouts both surface as
// ErrUpstreamUnavailable.
func (s *OTPService) GenerateAndSend(ctx context.Context, userID uuid.UUID, email, name string, purpose otp.Purpose) error {
	code, err := generateOtpCode()
	if err != nil {
		return fmt.Errorf("failed to generate otp: %w", err)
	}
	expiresAt := s.now().Add(s.ttl)

	mailID, err := s.send(ctx, name, email, code, purpose)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	if err := s.repo.Create(ctx, &otp.Otp{
		UserID:    userID,
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: expiresAt,
		MailID:    mailID,
	}); err != nil {
		return fmt.Errorf("failed to store otp: %w", err)
	}
	return nil
}

type mailResult struct {
	id  string
	err error
}

// send bounds the mailer by mailTimeout even if it ignores ctx.
func (s *OTPService) send(ctx context.Context, name, email, code string, purpose otp.Purpose) (string, error) {
	mailCtx, cancel := context.WithTimeout(ctx, s.mailTimeout)
	defer cancel()

	done := make(chan mailResult, 1)
	go func() {
		id, err := s.mailer.SendVerificationEmail(mailCtx, name, email, code, purpose)
		done <- mailResult{id: id, err: err}
	}()

	select {
	case res := <-done:
		return res.id, res.err
	case <-mailCtx.Done():
		return "", fmt.Errorf("mail delivery: %w", mailCtx.Err())
	}
}

// Verify consumes the code issued to userID for purpose. A wrong or expired
// code is ErrOtpNotFound; a live code issued for another purpose is
// ErrOtpPurposeMismatch and stays usable.
func (s *OTPService) Verify(ctx context.Context, code string, userID uuid.UUID, purpose otp.Purpose) error {
	now := s.now()

	matches, err := s.repo.FindActive(ctx, userID, strings.TrimSpace(code), now)
	if err != nil {
		return fmt.Errorf("failed to look up otp: %w", err)
	}
	if len(matches) == 0 {
		return ErrOtpNotFound
	}

	for _, m := range matches {
		if m.Purpose != purpose {
			continue
		}
		if err := s.repo.Consume(ctx, m.ID, now); err != nil {
			if errors.Is(err, otp.ErrNotFound) {
				return ErrOtpNotFound
			}
			return fmt.Errorf("failed to consume otp: %w", err)
		}
		return nil
	}
	return ErrOtpPurposeMismatch
}

func generateOtpCode() (string, error) {
	var b strings.Builder
	b.Grow(OtpCodeLength)
	for i := 0; i < OtpCodeLength; i++ {
		d, err := rand.Int(rand.Reader, otpDigits)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}
