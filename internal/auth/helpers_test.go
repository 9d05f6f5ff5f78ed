package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/authflow/internal/logging"
	"github.com/redmonkez12/authflow/internal/otp"
	"github.com/redmonkez12/authflow/internal/storage/memory"
)

const (
	testAccessTTL  = 120 * time.Minute
	testSessionTTL = 30 * 24 * time.Hour
	testOtpTTL     = 10 * time.Minute
	testPurposeTTL = 10 * time.Minute
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentMail struct {
	name    string
	email   string
	code    string
	purpose otp.Purpose
}

// fakeMailer records every code it is asked to deliver.
type fakeMailer struct {
	mu    sync.Mutex
	sent  []sentMail
	err   error
	block chan struct{} // when set, sends wait here and ignore ctx
}

func (m *fakeMailer) SendVerificationEmail(_ context.Context, name, email, code string, purpose otp.Purpose) (string, error) {
	if m.block != nil {
		<-m.block
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, sentMail{name: name, email: email, code: code, purpose: purpose})
	return "<" + uuid.NewString() + "@test>", nil
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *fakeMailer) last(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no mail was sent")
	return m.sent[len(m.sent)-1]
}

type fakeOAuth struct {
	profile *OAuthProfile
	err     error
}

func (f *fakeOAuth) FetchProfile(_ context.Context, accessToken string) (*OAuthProfile, error) {
	if f.err != nil {
		return nil, f.err
	}
	if accessToken != "google-token" || f.profile == nil {
		return nil, ErrTokenInvalid
	}
	p := *f.profile
	return &p, nil
}

type testEnv struct {
	svc      *Service
	users    *memory.UserStore
	sessions *memory.SessionStore
	otps     *memory.OtpStore
	mailer   *fakeMailer
	oauth    *fakeOAuth
	tokens   *PasetoService
	manager  *SessionManager
	otp      *OTPService
	identity *IdentityResolver
	clock    *testClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := newTestClock()
	env := &testEnv{
		users:    memory.NewUserStore(),
		sessions: memory.NewSessionStore(),
		otps:     memory.NewOtpStore(),
		mailer:   &fakeMailer{},
		oauth:    &fakeOAuth{},
		clock:    clock,
	}

	tokens, err := NewPasetoService(testKey)
	require.NoError(t, err)
	tokens.now = clock.Now
	env.tokens = tokens

	hasher := NewArgon2HasherWithParams(1, 1024, 1)
	env.identity = NewIdentityResolver(env.users, hasher)

	env.otp = NewOTPService(env.otps, env.mailer, testOtpTTL, time.Second)
	env.otp.now = clock.Now

	env.manager = NewSessionManager(env.sessions, tokens, testSessionTTL, testAccessTTL)
	env.manager.now = clock.Now

	env.svc = NewService(
		env.users,
		env.otps,
		env.identity,
		env.otp,
		env.manager,
		tokens,
		hasher,
		env.oauth,
		logging.Discard(),
		testAccessTTL,
		testPurposeTTL,
	)
	return env
}

// signupVerified creates ada@x.com and completes the SIGNUP verification.
func (e *testEnv) signupVerified(t *testing.T) *VerifyResult {
	t.Helper()
	ctx := context.Background()

	res, err := e.svc.Signup(ctx, SignupInput{
		Name: "Ada Lovelace", Email: "ada@x.com", Password: "Str0ng!Pass", ConfirmPassword: "Str0ng!Pass",
	})
	require.NoError(t, err)

	verified, err := e.svc.VerifyOtp(ctx, VerifyInput{
		Email: "ada@x.com", Code: e.mailer.last(t).code, Purpose: otp.PurposeSignup, Context: res.Context,
	})
	require.NoError(t, err)
	return verified
}

var errMailDown = errors.New("smtp: connection refused")
