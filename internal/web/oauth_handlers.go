package web

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"html"
	"net/http"
	"sort"

	"github.com/actingweb/actingweb-go/internal/aw"
	"github.com/actingweb/actingweb-go/internal/hooks"
	"github.com/actingweb/actingweb-go/internal/oauth"
)

// oauthError writes the RFC 6749 error envelope.
func (s *Server) oauthError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status int
		code   string
	)
	switch aw.KindOf(err) {
	case aw.KindInvalidRequest:
		status, code = http.StatusBadRequest, "invalid_request"
	case aw.KindUnauthenticated, aw.KindNotFound:
		status, code = http.StatusBadRequest, "invalid_grant"
	case aw.KindForbidden:
		status, code = http.StatusForbidden, "access_denied"
	default:
		status, code = http.StatusInternalServerError, "server_error"
		s.log.ErrorContext(r.Context(), "OAuth request failed",
			"path", r.URL.Path, "error", err)
	}

	desc := ""
	var awErr *aw.Error
	if errors.As(err, &awErr) && status < http.StatusInternalServerError {
		desc = awErr.Msg
	}
	writeJSON(w, status, map[string]string{
		"error":             code,
		"error_description": desc,
	})
}

// registrationResponse is the RFC 7591 response body.
type registrationResponse struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	ClientName   string   `json:"client_name"`
	RedirectURIs []string `json:"redirect_uris,omitempty"`
	TrustType    string   `json:"trust_type,omitempty"`
}

func (s *Server) handleOAuthRegister(w http.ResponseWriter, r *http.Request) {
	var params oauth.RegisterParams
	if err := readJSON(r, &params); err != nil {
		s.oauthError(w, r, err)
		return
	}

	client, err := s.oauth.RegisterClient(r.Context(), params)
	if err != nil {
		s.oauthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, registrationResponse{
		ClientID:     client.ID,
		ClientSecret: client.Secret,
		ClientName:   client.Name,
		RedirectURIs: client.RedirectURIs,
		TrustType:    client.TrustType,
	})
}

// handleOAuthAuthorize starts the login: browsers without a chosen
// provider get the selection form, everyone else is redirected to the
// upstream IdP.
func (s *Server) handleOAuthAuthorize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.oauthError(w, r, aw.Errorf(aw.KindInvalidRequest,
			"malformed request"))
		return
	}

	req := oauth.AuthorizeRequest{
		ClientID:        r.Form.Get("client_id"),
		RedirectURI:     r.Form.Get("redirect_uri"),
		State:           r.Form.Get("state"),
		CodeChallenge:   r.Form.Get("code_challenge"),
		ChallengeMethod: r.Form.Get("code_challenge_method"),
		Provider:        r.Form.Get("provider"),
		Email:           r.Form.Get("email"),
		TrustType:       r.Form.Get("trust_type"),
	}

	providers := s.providerNames()
	if req.Provider == "" && len(providers) > 1 {
		if wantsHTML(r) {
			s.renderProviderForm(w, r, providers)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"providers": providers,
		})
		return
	}

	location, err := s.oauth.BeginAuthorize(r.Context(), req)
	if err != nil {
		s.oauthError(w, r, err)
		return
	}
	http.Redirect(w, r, location, http.StatusFound)
}

func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		s.oauthError(w, r, aw.Errorf(aw.KindUnauthenticated,
			"identity provider returned %s", errCode))
		return
	}

	location, err := s.oauth.HandleCallback(
		r.Context(), q.Get("state"), q.Get("code"),
	)
	if err != nil {
		s.oauthError(w, r, err)
		return
	}
	http.Redirect(w, r, location, http.StatusFound)
}

func (s *Server) handleOAuthToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.oauthError(w, r, aw.Errorf(aw.KindInvalidRequest,
			"malformed form body"))
		return
	}

	resp, err := s.oauth.Token(r.Context(), oauth.TokenRequest{
		GrantType:    r.PostForm.Get("grant_type"),
		Code:         r.PostForm.Get("code"),
		RedirectURI:  r.PostForm.Get("redirect_uri"),
		ClientID:     r.PostForm.Get("client_id"),
		ClientSecret: r.PostForm.Get("client_secret"),
		CodeVerifier: r.PostForm.Get("code_verifier"),
		RefreshToken: r.PostForm.Get("refresh_token"),
		Username:     r.PostForm.Get("username"),
		Password:     r.PostForm.Get("password"),
	})
	if err != nil {
		s.oauthError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOAuthRevoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.oauthError(w, r, aw.Errorf(aw.KindInvalidRequest,
			"malformed form body"))
		return
	}

	token := r.PostForm.Get("token")
	if token == "" {
		s.oauthError(w, r, aw.Errorf(aw.KindInvalidRequest,
			"token is required"))
		return
	}
	if err := s.oauth.Revoke(r.Context(), token); err != nil {
		s.oauthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{})
}

func (s *Server) handleOAuthLogout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		_ = r.ParseForm()
		token = r.PostForm.Get("token")
	}
	if token == "" {
		s.oauthError(w, r, aw.Errorf(aw.KindInvalidRequest,
			"token is required"))
		return
	}

	if err := s.oauth.Logout(r.Context(), token); err != nil {
		s.oauthError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOAuthMetadata(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.oauth.Metadata())
}

func (s *Server) providerNames() []string {
	names := make([]string, 0, len(s.cfg.Providers))
	for name := range s.cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) renderProviderForm(
	w http.ResponseWriter, r *http.Request, providers []string,
) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, providerFormHead)
	for _, name := range []string{
		"client_id", "redirect_uri", "state",
		"code_challenge", "code_challenge_method", "trust_type",
	} {
		fmt.Fprintf(w,
			"<input type=\"hidden\" name=%q value=%q>\n",
			name, r.Form.Get(name))
	}
	for _, p := range providers {
		fmt.Fprintf(w,
			"<button type=\"submit\" name=\"provider\" value=%q>"+
				"Sign in with %s</button>\n",
			p, html.EscapeString(p))
	}
	fmt.Fprint(w, providerFormFoot)
}

// handleBot serves the app-level bot callback, authenticated by the
// configured static token.
func (s *Server) handleBot(w http.ResponseWriter, r *http.Request) {
	if s.cfg.BotToken == "" {
		s.writeError(w, r, aw.Errorf(aw.KindNotFound, "not found"))
		return
	}

	token := bearerToken(r)
	if subtle.ConstantTimeCompare(
		[]byte(token), []byte(s.cfg.BotToken),
	) != 1 {
		s.challenge(w, r)
		s.writeError(w, r, aw.Errorf(aw.KindUnauthenticated,
			"bot token mismatch"))
		return
	}

	body, err := readBodyOrEmpty(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out, ok, err := s.hooks.InvokeAppCallback(
		r.Context(), hooks.AppCallbackBot, body,
	)
	if !ok {
		s.writeError(w, r, aw.Errorf(aw.KindNotFound,
			"no bot handler registered"))
		return
	}
	if err != nil {
		s.writeError(w, r, aw.Wrap(aw.KindForbidden, err, "bot refused"))
		return
	}
	if len(out) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(out)
}

const providerFormHead = `<!DOCTYPE html>
<html><head><title>Sign in</title></head><body>
<h1>Sign in</h1>
<form method="post" action="/oauth/authorize">
<label>Email <input name="email" type="email"></label>
`

const providerFormFoot = `</form>
</body></html>
`
