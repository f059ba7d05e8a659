package oauth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/actingweb/actingweb-go/internal/aw"
	"github.com/actingweb/actingweb-go/internal/config"
)

// maxUserInfoBytes caps the identity response read from an upstream IdP.
const maxUserInfoBytes = 1 << 20

// providerConfig resolves an upstream IdP by name. An empty name picks
// the sole configured provider.
func (s *Server) providerConfig(
	name string,
) (string, config.ProviderConfig, *oauth2.Config, error) {

	if name == "" && len(s.cfg.Providers) == 1 {
		for n := range s.cfg.Providers {
			name = n
		}
	}
	p, ok := s.cfg.Providers[name]
	if !ok {
		return "", config.ProviderConfig{}, nil, aw.Errorf(
			aw.KindInvalidRequest, "unknown identity provider %q", name,
		)
	}

	conf := &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  s.baseURL() + "/oauth/callback",
		Scopes:       p.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.AuthURL,
			TokenURL: p.TokenURL,
		},
	}
	return name, p, conf, nil
}

// verifiedEmail extracts the authenticated user's verified email from
// the upstream identity endpoint. An account without one cannot be
// bound to an actor.
func (s *Server) verifiedEmail(
	ctx context.Context, conf *oauth2.Config, p config.ProviderConfig,
	provider string, tok *oauth2.Token,
) (string, error) {

	body, err := s.fetchUserInfo(ctx, conf, p.UserInfoURL, tok)
	if err != nil {
		return "", err
	}

	if provider == "github" {
		return githubEmail(body)
	}

	var info struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Verified      bool   `json:"verified"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return "", aw.Wrap(
			aw.KindPeerUnavailable, err, "identity response decode failed",
		)
	}
	if info.Email == "" {
		return "", aw.Errorf(
			aw.KindUnauthenticated, "identity provider returned no email",
		)
	}
	if !info.EmailVerified && !info.Verified {
		return "", aw.Errorf(
			aw.KindUnauthenticated,
			"email %s is not verified with the identity provider",
			info.Email,
		)
	}
	return strings.ToLower(info.Email), nil
}

// githubEmail applies GitHub's email list semantics: the primary
// verified address wins, any other verified address is the fallback.
func githubEmail(body []byte) (string, error) {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := json.Unmarshal(body, &emails); err != nil {
		return "", aw.Wrap(
			aw.KindPeerUnavailable, err, "identity response decode failed",
		)
	}

	fallback := ""
	for _, e := range emails {
		if !e.Verified || e.Email == "" {
			continue
		}
		if e.Primary {
			return strings.ToLower(e.Email), nil
		}
		if fallback == "" {
			fallback = strings.ToLower(e.Email)
		}
	}
	if fallback != "" {
		return fallback, nil
	}
	return "", aw.Errorf(
		aw.KindUnauthenticated, "no verified email on the GitHub account",
	)
}

func (s *Server) fetchUserInfo(
	ctx context.Context, conf *oauth2.Config, url string,
	tok *oauth2.Token,
) ([]byte, error) {

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, aw.Wrap(aw.KindFatal, err, "identity request failed")
	}

	resp, err := conf.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, aw.Wrap(
			aw.KindPeerUnavailable, err, "identity provider unreachable",
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, aw.Errorf(aw.KindPeerUnavailable,
			"identity provider returned %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxUserInfoBytes))
}
