package auth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/redmonkez12/authflow/internal/httputil"
	"github.com/redmonkez12/authflow/internal/logging"
)

// ContextKey is a type for context keys to avoid collisions
type ContextKey string

const UserIDContextKey ContextKey = "user_id"

// Middleware handles authentication for protected routes
type Middleware struct {
	tokenService TokenService
	sessions     *SessionManager
	cookies      CookieSettings
	loginPath    string
}

func NewMiddleware(tokenService TokenService, sessions *SessionManager, cookies CookieSettings, loginPath string) *Middleware {
	return &Middleware{
		tokenService: tokenService,
		sessions:     sessions,
		cookies:      cookies,
		loginPath:    loginPath,
	}
}

// RequireAuth accepts a valid access token from the Authorization header or
// the accessToken cookie. Without one it falls back to the refreshToken
// cookie and silently mints a new access token. Otherwise the request is
// rejected with the originally requested path so the client can come back
// after logging in.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := logging.GetLoggerFromContext(r.Context())

		var token string
		message, code := "missing authentication", httputil.CodeMissingAuth

		// Priority 1: Authorization header. A malformed one counts as absent.
		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" && parts[1] != "" {
				token = parts[1]
			} else {
				message, code = "invalid authorization header format", httputil.CodeInvalidAuthHeader
			}
		}

		// Priority 2: Cookie (fallback)
		if token == "" {
			token, _ = GetAccessTokenFromCookie(r)
		}

		if token != "" {
			claims, err := m.tokenService.VerifyToken(token)
			switch {
			case err == nil && claims.IsAccess():
				next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), claims.UserID)))
				return
			case errors.Is(err, ErrTokenExpired):
				message, code = "token has expired", httputil.CodeTokenExpired
			default:
				// purpose tokens never authorize regular requests
				message, code = "invalid token", httputil.CodeTokenInvalid
			}
		}

		// Silent refresh from the session cookie
		if sessionID, err := GetRefreshTokenFromCookie(r); err == nil {
			accessToken, sess, err := m.sessions.RefreshAccessToken(r.Context(), sessionID)
			if err == nil {
				m.cookies.SetAccessCookie(w, accessToken)
				logger.Info("access token refreshed from session cookie", "user_id", sess.UserID)
				next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), sess.UserID)))
				return
			}
			if !errors.Is(err, ErrSessionInvalid) {
				logger.Error("silent refresh failed", "error", err)
				httputil.RespondErrorWithCode(w, "failed to authenticate", httputil.CodeInternalError, http.StatusInternalServerError)
				return
			}
			message, code = "session is invalid or expired", httputil.CodeSessionInvalid
		}

		logger.Warn("unauthenticated request", "code", code)
		m.reject(w, r, message, code)
	})
}

func (m *Middleware) reject(w http.ResponseWriter, r *http.Request, message, code string) {
	next := r.URL.RequestURI()
	if wantsHTML(r) {
		http.Redirect(w, r, m.loginPath+"?next="+url.QueryEscape(next), http.StatusFound)
		return
	}
	httputil.RespondUnauthenticated(w, message, code, next)
}

// wantsHTML reports whether the request is a browser page navigation.
func wantsHTML(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	return r.Header.Get("Sec-Fetch-Mode") == "navigate" || strings.Contains(r.Header.Get("Accept"), "text/html")
}

// WithUserID stores the authenticated user id on ctx
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, UserIDContextKey, userID)
}

// GetUserIDFromContext extracts the user ID from the request context
func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDContextKey).(uuid.UUID)
	return userID, ok
}
