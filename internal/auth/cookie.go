package auth

import (
	"net/http"
	"time"
)

const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
	ContextCookie      = "authContext"
)

// CookieSettings controls the attributes of every auth cookie.
type CookieSettings struct {
	Secure          bool // set outside development
	AccessDuration  time.Duration
	RefreshDuration time.Duration
	ContextDuration time.Duration
}

// ShouldUseCookies reports whether the request comes from a browser.
// Browsers get httpOnly cookies; other clients get tokens in the body.
func ShouldUseCookies(r *http.Request) bool {
	return r.Header.Get("Origin") != "" || r.Header.Get("Sec-Fetch-Mode") != ""
}

func (c CookieSettings) cookie(name, value string, maxAge time.Duration, sameSite http.SameSite) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Expires:  time.Now().Add(maxAge),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: sameSite,
	}
}

// SetAuthCookies writes the access token and session cookies
func (c CookieSettings) SetAuthCookies(w http.ResponseWriter, accessToken, refreshToken string) {
	c.SetAccessCookie(w, accessToken)
	http.SetCookie(w, c.cookie(RefreshTokenCookie, refreshToken, c.RefreshDuration, http.SameSiteLaxMode))
}

// SetAccessCookie writes only the access token cookie, used by silent refresh
func (c CookieSettings) SetAccessCookie(w http.ResponseWriter, accessToken string) {
	http.SetCookie(w, c.cookie(AccessTokenCookie, accessToken, c.AccessDuration, http.SameSiteLaxMode))
}

// SetContextCookie stores the purpose token bridging to the next step
func (c CookieSettings) SetContextCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, c.cookie(ContextCookie, token, c.ContextDuration, http.SameSiteLaxMode))
}

func (c CookieSettings) ClearContextCookie(w http.ResponseWriter) {
	c.clear(w, ContextCookie)
}

// ClearAuthCookies expires every auth cookie
func (c CookieSettings) ClearAuthCookies(w http.ResponseWriter) {
	c.clear(w, AccessTokenCookie)
	c.clear(w, RefreshTokenCookie)
	c.clear(w, ContextCookie)
}

func (c CookieSettings) clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func GetAccessTokenFromCookie(r *http.Request) (string, error) {
	return cookieValue(r, AccessTokenCookie)
}

func GetRefreshTokenFromCookie(r *http.Request) (string, error) {
	return cookieValue(r, RefreshTokenCookie)
}

func GetContextFromCookie(r *http.Request) (string, error) {
	return cookieValue(r, ContextCookie)
}

func cookieValue(r *http.Request, name string) (string, error) {
	c, err := r.Cookie(name)
	if err != nil {
		return "", err
	}
	if c.Value == "" {
		return "", http.ErrNoCookie
	}
	return c.Value, nil
}
