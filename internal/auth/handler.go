package auth

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/authflow/internal/httputil"
	"github.com/redmonkez12/authflow/internal/logging"
	"github.com/redmonkez12/authflow/internal/otp"
	"github.com/redmonkez12/authflow/internal/user"
)

const maxBodyBytes = 1 << 20

// Handler contains HTTP handlers for authentication endpoints
type Handler struct {
	service     *Service
	rateLimiter RateLimiter // optional
	cookies     CookieSettings
}

func NewHandler(service *Service, rateLimiter RateLimiter, cookies CookieSettings) *Handler {
	return &Handler{
		service:     service,
		rateLimiter: rateLimiter,
		cookies:     cookies,
	}
}

// SignupRequest represents the signup request body
type SignupRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// GoogleRequest carries the access token obtained from Google
type GoogleRequest struct {
	AccessToken string `json:"access_token"`
}

// SendOtpRequest asks for a new code
type SendOtpRequest struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
}

// VerifyOtpRequest represents the OTP verification request body
type VerifyOtpRequest struct {
	Email   string `json:"email"`
	Code    string `json:"code"`
	Purpose string `json:"purpose"`
	Context string `json:"context,omitempty"`
}

// ForgotPasswordRequest represents the password reset request
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest represents the password reset confirmation
type ResetPasswordRequest struct {
	Token           string `json:"token,omitempty"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// RefreshRequest represents the token refresh request body
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// UserResponse represents a user in API responses
type UserResponse struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	Username      string    `json:"username"`
	EmailVerified bool      `json:"email_verified"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Picture       string    `json:"picture,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func toUserResponse(u *user.User) *UserResponse {
	if u == nil {
		return nil
	}
	return &UserResponse{
		ID:            u.ID,
		Email:         u.Email,
		Username:      u.Username,
		EmailVerified: u.EmailVerified,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Picture:       u.Picture,
		CreatedAt:     u.CreatedAt,
	}
}

// AuthResponse is returned whenever a session is opened. Tokens is omitted
// for browser clients, which receive cookies instead.
type AuthResponse struct {
	Message string        `json:"message"`
	User    *UserResponse `json:"user,omitempty"`
	Tokens  *AuthTokens   `json:"tokens,omitempty"`
}

// PendingResponse is returned when the next step is an OTP verification or
// a password reset. Context is omitted for browser clients.
type PendingResponse struct {
	Message              string        `json:"message"`
	User                 *UserResponse `json:"user,omitempty"`
	VerificationRequired bool          `json:"verification_required,omitempty"`
	Context              string        `json:"context,omitempty"`
	ResetToken           string        `json:"reset_token,omitempty"`
}

// Signup handles user registration
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if !h.allow(w, r, logger, "signup") {
		return
	}

	var req SignupRequest
	if !decodeJSON(w, r, logger, &req) {
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	result, err := h.service.Signup(r.Context(), SignupInput{
		Name:            req.Name,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		h.respondServiceError(w, logger, "signup", err)
		return
	}

	logger.Info("user signed up", "user_id", result.User.ID)

	resp := PendingResponse{
		Message:              "Signup successful. Enter the code we sent to your email.",
		User:                 toUserResponse(result.User),
		VerificationRequired: true,
	}
	h.deliverContext(w, r, &resp, result.Context)
	respondJSON(w, resp, http.StatusCreated)
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if !h.allow(w, r, logger, "login") {
		return
	}

	var req LoginRequest
	if !decodeJSON(w, r, logger, &req) {
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	result, err := h.service.Login(r.Context(), req.Email, req.Password, r.UserAgent())
	if err != nil {
		h.respondServiceError(w, logger, "login", err)
		return
	}

	if result.VerificationRequired {
		logger.Info("login requires email verification")
		resp := PendingResponse{
			Message:              "Email not verified. Enter the code we sent to your email.",
			VerificationRequired: true,
		}
		h.deliverContext(w, r, &resp, result.Context)
		respondJSON(w, resp, http.StatusAccepted)
		return
	}

	logger.Info("user logged in successfully", "user_id", result.User.ID)
	h.respondSession(w, r, "logged in successfully", result.User, result.Tokens, http.StatusOK)
}

// Google handles sign in with a Google access token
func (h *Handler) Google(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if !h.allow(w, r, logger, "google") {
		return
	}

	var req GoogleRequest
	if !decodeJSON(w, r, logger, &req) {
		return
	}

	tokens, u, err := h.service.GoogleLogin(r.Context(), strings.TrimSpace(req.AccessToken), r.UserAgent())
	if err != nil {
		h.respondServiceError(w, logger, "google login", err)
		return
	}

	logger.Info("user logged in with google", "user_id", u.ID)
	h.respondSession(w, r, "logged in successfully", u, tokens, http.StatusOK)
}

// SendOtp handles (re)sending a code. The response is the same whether or
// not the account exists.
func (h *Handler) SendOtp(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req SendOtpRequest
	if !decodeJSON(w, r, logger, &req) {
		return
	}

	purpose, err := otp.ParsePurpose(req.Purpose)
	if err != nil {
		h.respondServiceError(w, logger, "send otp", ErrInvalidPurpose)
		return
	}

	if !h.allow(w, r, logger, "otp") || !h.cooldown(w, r, logger, req.Email) {
		return
	}

	contextToken, err := h.service.SendOtp(r.Context(), req.Email, purpose)
	if err != nil {
		h.respondServiceError(w, logger, "send otp", err)
		return
	}

	resp := PendingResponse{
		Message: "If the account exists, a code has been sent.",
	}
	h.deliverContext(w, r, &resp, contextToken)
	respondJSON(w, resp, http.StatusOK)
}

// VerifyOtp handles code verification for every purpose
func (h *Handler) VerifyOtp(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if !h.allow(w, r, logger, "verify") {
		return
	}

	var req VerifyOtpRequest
	if !decodeJSON(w, r, logger, &req) {
		return
	}

	purpose, err := otp.ParsePurpose(req.Purpose)
	if err != nil {
		h.respondServiceError(w, logger, "verify otp", ErrInvalidPurpose)
		return
	}

	contextToken := strings.TrimSpace(req.Context)
	if contextToken == "" {
		contextToken, _ = GetContextFromCookie(r)
	}

	logger = logger.WithFields(map[string]any{"email": req.Email, "purpose": purpose})

	if !h.verifyAttemptsLeft(w, r, logger, req.Email, purpose) {
		return
	}

	result, err := h.service.VerifyOtp(r.Context(), VerifyInput{
		Email:     req.Email,
		Code:      req.Code,
		Purpose:   purpose,
		Context:   contextToken,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		if errors.Is(err, ErrOtpNotFound) || errors.Is(err, ErrOtpPurposeMismatch) {
			h.recordFailedVerify(r, logger, req.Email, purpose)
		}
		h.respondServiceError(w, logger, "verify otp", err)
		return
	}
	h.resetVerifyAttempts(r, logger, req.Email, purpose)

	if result.ResetToken != "" {
		logger.Info("password reset code verified", "user_id", result.User.ID)
		resp := PendingResponse{Message: "Code verified. You can now choose a new password."}
		if ShouldUseCookies(r) {
			h.cookies.SetContextCookie(w, result.ResetToken)
		} else {
			resp.ResetToken = result.ResetToken
		}
		respondJSON(w, resp, http.StatusOK)
		return
	}

	logger.Info("email verified", "user_id", result.User.ID)
	if ShouldUseCookies(r) {
		h.cookies.ClearContextCookie(w)
	}
	h.respondSession(w, r, "email verified successfully", result.User, result.Tokens, http.StatusOK)
}

// ForgotPassword handles password reset requests. Always returns success to
// prevent email enumeration.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req ForgotPasswordRequest
	if !decodeJSON(w, r, logger, &req) {
		return
	}

	if !h.allow(w, r, logger, "forgot") || !h.cooldown(w, r, logger, req.Email) {
		return
	}

	contextToken, err := h.service.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		h.respondServiceError(w, logger, "forgot password", err)
		return
	}

	resp := PendingResponse{
		Message: "If an account exists with that email, a password reset code has been sent.",
	}
	h.deliverContext(w, r, &resp, contextToken)
	respondJSON(w, resp, http.StatusOK)
}

// ResetPassword handles password reset with the token from VerifyOtp
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req ResetPasswordRequest
	if !decodeJSON(w, r, logger, &req) {
		return
	}

	token := strings.TrimSpace(req.Token)
	if token == "" {
		token, _ = GetContextFromCookie(r)
	}

	if err := h.service.ResetPassword(r.Context(), token, req.Password, req.ConfirmPassword); err != nil {
		h.respondServiceError(w, logger, "reset password", err)
		return
	}

	logger.Info("password reset successfully")
	if ShouldUseCookies(r) {
		h.cookies.ClearContextCookie(w)
	}

	respondJSON(w, map[string]string{
		"message": "Password reset successfully. You can now login with your new password.",
	}, http.StatusOK)
}

// Refresh handles access token refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	refreshToken := refreshTokenFromRequest(r)
	if refreshToken == "" {
		logger.Warn("refresh token missing from both body and cookie")
		respondError(w, "refresh token required", httputil.CodeRefreshTokenRequired, http.StatusBadRequest)
		return
	}

	tokens, err := h.service.Refresh(r.Context(), refreshToken)
	if err != nil {
		h.respondServiceError(w, logger, "token refresh", err)
		return
	}

	logger.Info("access token refreshed successfully")

	if ShouldUseCookies(r) {
		h.cookies.SetAccessCookie(w, tokens.AccessToken)
		respondJSON(w, map[string]string{
			"message": "token refreshed successfully",
		}, http.StatusOK)
		return
	}
	respondJSON(w, tokens, http.StatusOK)
}

// Logout revokes the current session and clears cookies
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if refreshToken := refreshTokenFromRequest(r); refreshToken != "" {
		if err := h.service.Logout(r.Context(), refreshToken); err != nil {
			logger.Warn("failed to revoke session", "error", err)
			// Continue - still clear cookies
		}
	}

	h.cookies.ClearAuthCookies(w)

	logger.Info("user logged out successfully")

	respondJSON(w, map[string]string{"message": "logged out"}, http.StatusOK)
}

// Me returns the authenticated user
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		respondError(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	u, err := h.service.Me(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, logger, "me", err)
		return
	}

	respondJSON(w, toUserResponse(u), http.StatusOK)
}

// DeleteAccount removes the authenticated user with all sessions and codes
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		respondError(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	if err := h.service.DeleteAccount(r.Context(), userID); err != nil {
		h.respondServiceError(w, logger, "delete account", err)
		return
	}

	h.cookies.ClearAuthCookies(w)
	logger.Info("account deleted", "user_id", userID)

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondSession(w http.ResponseWriter, r *http.Request, message string, u *user.User, tokens *AuthTokens, status int) {
	resp := AuthResponse{Message: message, User: toUserResponse(u)}

	// Set cookies if request is from browser
	if ShouldUseCookies(r) {
		h.cookies.SetAuthCookies(w, tokens.AccessToken, tokens.RefreshToken)
	} else {
		resp.Tokens = tokens
	}
	respondJSON(w, resp, status)
}

// deliverContext puts the purpose token in a cookie for browsers and in the
// body for everyone else.
func (h *Handler) deliverContext(w http.ResponseWriter, r *http.Request, resp *PendingResponse, contextToken string) {
	if ShouldUseCookies(r) {
		h.cookies.SetContextCookie(w, contextToken)
		return
	}
	resp.Context = contextToken
}

// allow applies the per-IP budget for purpose. Limiter failures are logged
// and do not block the request.
func (h *Handler) allow(w http.ResponseWriter, r *http.Request, logger *logging.Logger, purpose string) bool {
	if h.rateLimiter == nil {
		return true
	}

	ip := getClientIP(r)
	exceeded, err := h.rateLimiter.CheckIPRateLimitWithPurpose(r.Context(), ip, purpose)
	if err != nil {
		logger.Error("failed to check IP rate limit", "error", err.Error())
	} else if exceeded {
		logger.Warn("IP rate limit exceeded", "ip", ip, "purpose", purpose)
		respondError(w, "too many requests, please try again later", httputil.CodeTooManyRequests, http.StatusTooManyRequests)
		return false
	}

	if err := h.rateLimiter.RecordIPRequestWithPurpose(r.Context(), ip, purpose); err != nil {
		logger.Error("failed to record IP request", "error", err.Error())
	}
	return true
}

// cooldown enforces the delay between two mails to the same address
func (h *Handler) cooldown(w http.ResponseWriter, r *http.Request, logger *logging.Logger, email string) bool {
	if h.rateLimiter == nil || strings.TrimSpace(email) == "" {
		return true
	}

	onCooldown, err := h.rateLimiter.CheckEmailCooldown(r.Context(), email)
	if err != nil {
		logger.Error("failed to check email cooldown", "error", err.Error())
	} else if onCooldown {
		logger.Warn("email on cooldown")
		respondError(w, "please wait before requesting another code", httputil.CodeCooldownActive, http.StatusTooManyRequests)
		return false
	}

	if err := h.rateLimiter.SetEmailCooldown(r.Context(), email); err != nil {
		logger.Error("failed to set email cooldown", "error", err.Error())
	}
	return true
}

// verifyAttemptsLeft stops code guessing once email has used up its failed
// verifications for purpose. Unknown addresses are counted like known ones.
func (h *Handler) verifyAttemptsLeft(w http.ResponseWriter, r *http.Request, logger *logging.Logger, email string, purpose otp.Purpose) bool {
	if h.rateLimiter == nil {
		return true
	}

	locked, err := h.rateLimiter.CheckVerifyAttempts(r.Context(), email, purpose.String())
	if err != nil {
		logger.Error("failed to check verify attempts", "error", err.Error())
		return true
	}
	if locked {
		logger.Warn("too many failed verifications")
		respondError(w, "too many failed attempts, request a new code later", httputil.CodeTooManyAttempts, http.StatusTooManyRequests)
		return false
	}
	return true
}

func (h *Handler) recordFailedVerify(r *http.Request, logger *logging.Logger, email string, purpose otp.Purpose) {
	if h.rateLimiter == nil {
		return
	}
	if err := h.rateLimiter.RecordFailedVerify(r.Context(), email, purpose.String()); err != nil {
		logger.Error("failed to record failed verification", "error", err.Error())
	}
}

func (h *Handler) resetVerifyAttempts(r *http.Request, logger *logging.Logger, email string, purpose otp.Purpose) {
	if h.rateLimiter == nil {
		return
	}
	if err := h.rateLimiter.ResetVerifyAttempts(r.Context(), email, purpose.String()); err != nil {
		logger.Error("failed to reset verify attempts", "error", err.Error())
	}
}

type errorMapping struct {
	err     error
	status  int
	code    string
	message string
}

// errorMappings is checked in order with errors.Is
var errorMappings = []errorMapping{
	{ErrInvalidCredentials, http.StatusUnauthorized, httputil.CodeInvalidCredentials, "invalid email or password"},
	{ErrEmailNotVerified, http.StatusForbidden, httputil.CodeEmailNotVerified, "email not verified"},
	{ErrConflict, http.StatusConflict, httputil.CodeConflict, "an account with this email already exists"},
	{ErrTokenExpired, http.StatusUnauthorized, httputil.CodeTokenExpired, "token has expired"},
	{ErrTokenInvalid, http.StatusUnauthorized, httputil.CodeTokenInvalid, "invalid token"},
	{ErrOtpNotFound, http.StatusBadRequest, httputil.CodeOtpNotFound, "invalid or expired code"},
	{ErrOtpPurposeMismatch, http.StatusBadRequest, httputil.CodeOtpPurposeMismatch, "code was issued for a different purpose"},
	{ErrSessionInvalid, http.StatusUnauthorized, httputil.CodeSessionInvalid, "session is invalid or expired"},
	{ErrUpstreamUnavailable, http.StatusServiceUnavailable, httputil.CodeUpstreamUnavailable, "service temporarily unavailable, please try again"},
	{ErrNameRequired, http.StatusBadRequest, httputil.CodeNameRequired, ErrNameRequired.Error()},
	{ErrEmailRequired, http.StatusBadRequest, httputil.CodeEmailRequired, ErrEmailRequired.Error()},
	{ErrInvalidEmailFormat, http.StatusBadRequest, httputil.CodeInvalidEmailFormat, ErrInvalidEmailFormat.Error()},
	{ErrPasswordRequired, http.StatusBadRequest, httputil.CodePasswordRequired, ErrPasswordRequired.Error()},
	{ErrPasswordTooShort, http.StatusBadRequest, httputil.CodePasswordTooShort, ErrPasswordTooShort.Error()},
	{ErrPasswordMismatch, http.StatusBadRequest, httputil.CodePasswordMismatch, ErrPasswordMismatch.Error()},
	{ErrInvalidPurpose, http.StatusBadRequest, httputil.CodeInvalidPurpose, ErrInvalidPurpose.Error()},
	{ErrCodeRequired, http.StatusBadRequest, httputil.CodeCodeRequired, ErrCodeRequired.Error()},
	{user.ErrNotFound, http.StatusNotFound, httputil.CodeUserNotFound, "user not found"},
}

// respondServiceError maps expected outcomes to their stable code. Anything
// else is an internal error: logged in full, answered generically.
func (h *Handler) respondServiceError(w http.ResponseWriter, logger *logging.Logger, op string, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			if m.status == http.StatusServiceUnavailable {
				logger.Error(op+" failed: upstream unavailable", "error", err.Error())
			} else {
				logger.Warn(op+" failed", "code", m.code)
			}
			respondError(w, m.message, m.code, m.status)
			return
		}
	}

	logger.Error(op+" failed: internal error", "error", err.Error())
	respondError(w, "internal server error", httputil.CodeInternalError, http.StatusInternalServerError)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, logger *logging.Logger, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		logger.Warn("invalid request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return false
	}
	return true
}

// refreshTokenFromRequest reads the session id from the JSON body, falling
// back to the refreshToken cookie.
func refreshTokenFromRequest(r *http.Request) string {
	var req RefreshRequest
	if r.Body != nil {
		if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes)).Decode(&req); err == nil {
			if token := strings.TrimSpace(req.RefreshToken); token != "" {
				return token
			}
		}
	}

	cookieToken, _ := GetRefreshTokenFromCookie(r)
	return cookieToken
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, data any, statusCode int) {
	httputil.RespondJSON(w, data, statusCode)
}

// respondError sends an error response with a machine-readable code
func respondError(w http.ResponseWriter, message string, code string, statusCode int) {
	httputil.RespondErrorWithCode(w, message, code, statusCode)
}

// getClientIP returns the peer address of the request. Forwarding headers
// are resolved earlier by the router, and only for trusted proxies, so they
// are never read here.
func getClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
