package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/authflow/internal/auth"
	"github.com/redmonkez12/authflow/internal/config"
	"github.com/redmonkez12/authflow/internal/logging"
	"github.com/redmonkez12/authflow/internal/otp"
	"github.com/redmonkez12/authflow/internal/storage/memory"
)

type nopMailer struct{}

func (nopMailer) SendVerificationEmail(context.Context, string, string, string, otp.Purpose) (string, error) {
	return "<nop@test>", nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	cfg := &config.Config{Server: config.ServerConfig{
		TrustedOrigins: []string{"http://localhost:3000"},
		LoginPath:      "/login",
	}}

	users := memory.NewUserStore()
	sessions := memory.NewSessionStore()
	otps := memory.NewOtpStore()

	tokens, err := auth.NewPasetoService([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	hasher := auth.NewArgon2HasherWithParams(1, 1024, 1)
	manager := auth.NewSessionManager(sessions, tokens, time.Hour, time.Minute)
	otpService := auth.NewOTPService(otps, nopMailer{}, time.Minute, time.Second)

	svc := auth.NewService(users, otps, auth.NewIdentityResolver(users, hasher), otpService, manager,
		tokens, hasher, nil, logging.Discard(), time.Minute, time.Minute)

	cookies := auth.CookieSettings{AccessDuration: time.Minute, RefreshDuration: time.Hour, ContextDuration: time.Minute}
	return NewRouter(cfg,
		auth.NewHandler(svc, nil, cookies),
		auth.NewMiddleware(tokens, manager, cookies, cfg.Server.LoginPath),
		logging.Discard(),
	)
}

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestRouter_ProtectedRoutes(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Accept", "text/html")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?next=%2Fauth%2Fme", rec.Header().Get("Location"))
}

func TestRouter_CORSPreflight(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRouter_GoogleWithoutProviderIs503(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/google", strings.NewReader(`{"access_token":"x"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
