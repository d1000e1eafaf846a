package authapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/alexjbarnes/backoffice/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// maxUserInfoBytes caps the userinfo response read.
const maxUserInfoBytes = 1 << 20

// profile is the subset of the OpenID userinfo document we keep.
type profile struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// NewOAuthConfig builds the Google client configuration. The redirect
// URL is the relay page of the client. GOOGLE_AUTH_URL and
// GOOGLE_TOKEN_URL override the Google endpoints.
func NewOAuthConfig(cfg *config.Config) *oauth2.Config {
	endpoint := endpoints.Google
	if cfg.GoogleAuthURL != "" {
		endpoint.AuthURL = cfg.GoogleAuthURL
	}

	if cfg.GoogleTokenURL != "" {
		endpoint.TokenURL = cfg.GoogleTokenURL
	}

	return &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.OAuthRedirectURL,
		Scopes:       []string{"openid", "profile", "email"},
		Endpoint:     endpoint,
	}
}

// exchange trades the code for provider tokens and fetches the profile.
func (s *Server) exchange(ctx context.Context, code string) (*profile, error) {
	if s.cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.cfg.HTTPClient)
	}

	tok, err := s.cfg.OAuth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging code: %w", err)
	}

	resp, err := s.cfg.OAuth.Client(ctx, tok).Get(s.cfg.UserInfoURL)
	if err != nil {
		return nil, fmt.Errorf("fetching userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var p profile
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUserInfoBytes)).Decode(&p); err != nil {
		return nil, fmt.Errorf("decoding userinfo: %w", err)
	}

	if p.Subject == "" || p.Email == "" {
		return nil, fmt.Errorf("userinfo has no sub or email")
	}

	return &p, nil
}
