package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// GoogleProvider resolves a Google OAuth access token to the user's profile
// through the OpenID Connect userinfo endpoint.
type GoogleProvider struct {
	userInfoURL string
	httpClient  *http.Client
}

func NewGoogleProvider(userInfoURL string, timeout time.Duration) *GoogleProvider {
	return &GoogleProvider{
		userInfoURL: userInfoURL,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

// FetchProfile returns ErrTokenInvalid when Google rejects the token and
// ErrUpstreamUnavailable for any other failure.
func (g *GoogleProvider) FetchProfile(ctx context.Context, accessToken string) (*OAuthProfile, error) {
	if accessToken == "" {
		return nil, ErrTokenInvalid
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: userinfo request: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrTokenInvalid
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: userinfo returned %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var info googleUserInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: decode userinfo: %v", ErrUpstreamUnavailable, err)
	}
	if info.Sub == "" || info.Email == "" {
		return nil, ErrTokenInvalid
	}

	return &OAuthProfile{
		ProviderID:    info.Sub,
		Email:         info.Email,
		EmailVerified: info.EmailVerified,
		FirstName:     info.GivenName,
		LastName:      info.FamilyName,
		Picture:       info.Picture,
	}, nil
}
