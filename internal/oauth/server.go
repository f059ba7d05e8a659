// Package oauth implements the OAuth2 authorization server: dynamic
// client registration, the authorization-code flow with PKCE against
// upstream identity providers, token issuance with rotating refresh
// tokens, and revocation. Tokens are opaque; possession is resolved
// through the reserved system actor's indexes.
package oauth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/actingweb/actingweb-go/internal/actor"
	"github.com/actingweb/actingweb-go/internal/aw"
	"github.com/actingweb/actingweb-go/internal/config"
	"github.com/actingweb/actingweb-go/internal/hooks"
	"github.com/actingweb/actingweb-go/internal/permissions"
	"github.com/actingweb/actingweb-go/internal/store"
	"github.com/actingweb/actingweb-go/internal/trust"
)

// Refresh reuse windows. A used refresh token seen again within the
// replay window gets the same successor pair; within the reissue window
// a fresh access token only; later reuse burns the whole family.
const (
	replayWindow  = 10 * time.Second
	reissueWindow = 60 * time.Second
)

// Server is the OAuth2 authorization server. It implements
// trust.TokenRevoker so trust deletion tears down the client's tokens.
type Server struct {
	tokens *storage
	store  store.Store
	cfg    *config.Config
	actors *actor.Service
	hooks  *hooks.Registry
	state  *stateCodec

	now func() time.Time
	log *slog.Logger
}

// NewServer creates the authorization server. Without a configured
// state secret a random per-process one is generated, which invalidates
// in-flight logins across restarts.
func NewServer(
	st store.Store, cfg *config.Config, actors *actor.Service,
	hr *hooks.Registry, log *slog.Logger,
) (*Server, error) {

	secret := cfg.StateSecret
	if secret == "" {
		secret = aw.RandomID()
		log.Warn("No state secret configured, using an ephemeral one")
	}
	codec, err := newStateCodec(secret)
	if err != nil {
		return nil, err
	}

	return &Server{
		tokens: &storage{store: st},
		store:  st,
		cfg:    cfg,
		actors: actors,
		hooks:  hr,
		state:  codec,
		now:    time.Now,
		log:    log.With("subsystem", "oauth"),
	}, nil
}

var _ trust.TokenRevoker = (*Server)(nil)

func (s *Server) baseURL() string {
	return s.cfg.Proto + s.cfg.FQDN
}

// RegisterParams carries an RFC 7591 registration request.
type RegisterParams struct {
	ClientName     string   `json:"client_name"`
	ClientVersion  string   `json:"client_version,omitempty"`
	ClientPlatform string   `json:"client_platform,omitempty"`
	RedirectURIs   []string `json:"redirect_uris,omitempty"`
	TrustType      string   `json:"trust_type,omitempty"`
}

// RegisterClient mints and persists a client registration.
func (s *Server) RegisterClient(
	ctx context.Context, params RegisterParams,
) (Client, error) {

	if params.ClientName == "" {
		return Client{}, aw.Errorf(
			aw.KindInvalidRequest, "client_name is required",
		)
	}
	for _, uri := range params.RedirectURIs {
		u, err := url.Parse(uri)
		if err != nil || !u.IsAbs() {
			return Client{}, aw.Errorf(aw.KindInvalidRequest,
				"redirect_uri %q is not an absolute URL", uri)
		}
	}

	client := Client{
		ID:           aw.RandomID(),
		Secret:       aw.RandomID(),
		Name:         params.ClientName,
		Version:      params.ClientVersion,
		Platform:     params.ClientPlatform,
		RedirectURIs: params.RedirectURIs,
		TrustType:    params.TrustType,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.tokens.putClient(ctx, client); err != nil {
		return Client{}, err
	}

	s.log.InfoContext(ctx, "OAuth2 client registered",
		"client_id", client.ID, "client_name", client.Name)
	return client, nil
}

// AuthorizeRequest carries the parameters of GET|POST /oauth/authorize.
type AuthorizeRequest struct {
	ClientID        string
	RedirectURI     string
	State           string
	CodeChallenge   string
	ChallengeMethod string
	Provider        string
	Email           string
	TrustType       string
}

// BeginAuthorize validates the client request and returns the upstream
// identity provider URL to redirect the user to.
func (s *Server) BeginAuthorize(
	ctx context.Context, req AuthorizeRequest,
) (string, error) {

	client, err := s.tokens.getClient(ctx, req.ClientID)
	if errors.Is(err, store.ErrNotFound) {
		return "", aw.Errorf(
			aw.KindUnauthenticated, "unknown client %s", req.ClientID,
		)
	}
	if err != nil {
		return "", err
	}

	if req.RedirectURI == "" {
		return "", aw.Errorf(aw.KindInvalidRequest,
			"redirect_uri is required")
	}
	if len(client.RedirectURIs) > 0 &&
		!contains(client.RedirectURIs, req.RedirectURI) {

		return "", aw.Errorf(aw.KindInvalidRequest,
			"redirect_uri is not registered for client %s", client.ID)
	}
	if req.ChallengeMethod != "" && req.ChallengeMethod != "S256" {
		return "", aw.Errorf(aw.KindInvalidRequest,
			"code_challenge_method %q is not supported",
			req.ChallengeMethod)
	}

	provider, _, conf, err := s.providerConfig(req.Provider)
	if err != nil {
		return "", err
	}

	trustType := req.TrustType
	if trustType == "" {
		trustType = client.TrustType
	}

	sealed, err := s.state.seal(stateBlob{
		ClientID:        client.ID,
		MCPState:        req.State,
		RedirectURI:     req.RedirectURI,
		EmailHint:       req.Email,
		Provider:        provider,
		TrustType:       trustType,
		CodeChallenge:   req.CodeChallenge,
		ChallengeMethod: req.ChallengeMethod,
		IssuedAt:        s.now().UTC(),
	})
	if err != nil {
		return "", err
	}
	return conf.AuthCodeURL(sealed), nil
}

// HandleCallback finishes the upstream login: validate state, exchange
// the upstream code, bind the verified email to an actor, create the
// client trust for MCP flows, and send the user back to the client with
// a fresh authorization code.
func (s *Server) HandleCallback(
	ctx context.Context, state, code string,
) (string, error) {

	blob, err := s.state.open(state)
	if err != nil {
		return "", err
	}
	if s.now().Sub(blob.IssuedAt) > codeTTL {
		return "", aw.Errorf(aw.KindUnauthenticated, "login flow expired")
	}

	_, p, conf, err := s.providerConfig(blob.Provider)
	if err != nil {
		return "", err
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return "", aw.Wrap(
			aw.KindUnauthenticated, err, "upstream code exchange failed",
		)
	}

	email, err := s.verifiedEmail(ctx, conf, p, blob.Provider, tok)
	if err != nil {
		if aw.KindOf(err) == aw.KindUnauthenticated {
			s.emit(ctx, hooks.EventEmailVerificationRequired, "",
				map[string]any{"email_hint": blob.EmailHint})
		}
		return "", err
	}

	act, err := s.bindActor(ctx, email)
	if err != nil {
		return "", err
	}

	s.emit(ctx, hooks.EventEmailVerified, act.ID,
		map[string]any{"email": email})
	s.emit(ctx, hooks.EventOAuthSuccess, act.ID,
		map[string]any{"email": email, "client_id": blob.ClientID})

	if blob.ClientID != "" {
		err := s.ensureClientTrust(ctx, act.ID, email, blob)
		if err != nil {
			return "", err
		}
	}

	grant := authCode{
		Code:            aw.RandomID(),
		ClientID:        blob.ClientID,
		ActorID:         act.ID,
		RedirectURI:     blob.RedirectURI,
		CodeChallenge:   blob.CodeChallenge,
		ChallengeMethod: blob.ChallengeMethod,
		TrustType:       blob.TrustType,
		IssuedAt:        s.now().UTC(),
	}
	if err := s.tokens.putCode(ctx, grant); err != nil {
		return "", err
	}

	redirect, err := url.Parse(blob.RedirectURI)
	if err != nil {
		return "", aw.Errorf(aw.KindInvalidRequest, "bad redirect_uri")
	}
	q := redirect.Query()
	q.Set("code", grant.Code)
	if blob.MCPState != "" {
		q.Set("state", blob.MCPState)
	}
	redirect.RawQuery = q.Encode()
	return redirect.String(), nil
}

// bindActor resolves the email to an actor, creating one on first
// login.
func (s *Server) bindActor(
	ctx context.Context, email string,
) (store.Actor, error) {

	act, err := s.actors.GetFromProperty(ctx, "email", email)
	if err == nil {
		return act, nil
	}
	if aw.KindOf(err) != aw.KindNotFound {
		return store.Actor{}, err
	}

	act, _, err = s.actors.Create(ctx, actor.CreateParams{Creator: email})
	if err != nil {
		return store.Actor{}, err
	}
	err = s.actors.SetProperty(
		ctx, act.ID, "email",
		[]byte(strconv.Quote(email)),
	)
	if err != nil {
		return store.Actor{}, err
	}
	return act, nil
}

// ensureClientTrust binds the OAuth2 client to the actor through a
// trust row so the permission system governs what the client may do.
func (s *Server) ensureClientTrust(
	ctx context.Context, actorID, email string, blob stateBlob,
) error {

	existing, err := s.store.GetTrustByClientID(ctx, blob.ClientID)
	if err == nil {
		if existing.ActorID != actorID {
			return aw.Errorf(aw.KindForbidden,
				"client %s is bound to another actor", blob.ClientID)
		}
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return aw.Wrap(aw.KindFatal, err, "client trust lookup failed")
	}

	relationship := blob.TrustType
	if relationship == "" {
		relationship = permissions.TypeMCPClient
	}
	client, err := s.tokens.getClient(ctx, blob.ClientID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	_, err = s.store.CreateTrust(ctx, store.CreateTrustParams{
		ActorID:        actorID,
		PeerID:         "oauth2:" + blob.ClientID,
		Relationship:   relationship,
		Secret:         aw.RandomID(),
		Approved:       true,
		PeerApproved:   true,
		Verified:       true,
		EstablishedVia: "oauth2_client",
		PeerIdentifier: email,
		OAuthClientID:  blob.ClientID,
		ClientName:     client.Name,
		ClientVersion:  client.Version,
		ClientPlatform: client.Platform,
	})
	if err != nil {
		return aw.Wrap(aw.KindFatal, err, "client trust create failed")
	}

	s.log.InfoContext(ctx, "Client trust established",
		"actor_id", actorID,
		"client_id", blob.ClientID,
		"relationship", relationship,
	)
	return nil
}

// TokenRequest carries the form parameters of POST /oauth/token.
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	ClientID     string
	ClientSecret string
	CodeVerifier string
	RefreshToken string
	Username     string
	Password     string
}

// TokenResponse is the RFC 6749 token endpoint response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Token dispatches one grant request.
func (s *Server) Token(
	ctx context.Context, req TokenRequest,
) (TokenResponse, error) {

	switch req.GrantType {
	case "authorization_code":
		return s.codeGrant(ctx, req)
	case "refresh_token":
		return s.refreshGrant(ctx, req)
	case "client_credentials":
		return s.clientCredentialsGrant(ctx, req)
	case "passphrase":
		if !s.cfg.DevTest {
			break
		}
		return s.passphraseGrant(ctx, req)
	}
	return TokenResponse{}, aw.Errorf(aw.KindInvalidRequest,
		"grant_type %q is not supported", req.GrantType)
}

func (s *Server) codeGrant(
	ctx context.Context, req TokenRequest,
) (TokenResponse, error) {

	client, err := s.authenticateClient(ctx, req, true)
	if err != nil {
		return TokenResponse{}, err
	}

	grant, err := s.tokens.takeCode(ctx, req.Code)
	if errors.Is(err, store.ErrNotFound) {
		return TokenResponse{}, aw.Errorf(
			aw.KindUnauthenticated, "authorization code is invalid",
		)
	}
	if err != nil {
		return TokenResponse{}, err
	}

	if grant.ClientID != client.ID {
		return TokenResponse{}, aw.Errorf(
			aw.KindUnauthenticated,
			"authorization code was issued to another client",
		)
	}
	if grant.RedirectURI != "" && req.RedirectURI != grant.RedirectURI {
		return TokenResponse{}, aw.Errorf(
			aw.KindUnauthenticated, "redirect_uri mismatch",
		)
	}
	if grant.CodeChallenge != "" {
		if !verifyPKCE(grant.CodeChallenge, req.CodeVerifier) {
			return TokenResponse{}, aw.Errorf(
				aw.KindUnauthenticated, "PKCE verification failed",
			)
		}
	}

	return s.mintPair(ctx, client.ID, grant.ActorID, aw.RandomID())
}

func (s *Server) refreshGrant(
	ctx context.Context, req TokenRequest,
) (TokenResponse, error) {

	rt, version, err := s.tokens.getRefresh(ctx, req.RefreshToken)
	if errors.Is(err, store.ErrNotFound) {
		return TokenResponse{}, aw.Errorf(
			aw.KindUnauthenticated, "refresh token is invalid",
		)
	}
	if err != nil {
		return TokenResponse{}, err
	}

	if req.ClientID != "" && req.ClientID != rt.ClientID {
		return TokenResponse{}, aw.Errorf(
			aw.KindUnauthenticated,
			"refresh token was issued to another client",
		)
	}

	if !rt.Used {
		resp, ok, err := s.rotate(ctx, rt, version)
		if err != nil {
			return TokenResponse{}, err
		}
		if ok {
			return resp, nil
		}
		// Lost the rotation race; reload and fall through to the
		// reuse handling below.
		rt, _, err = s.tokens.getRefresh(ctx, req.RefreshToken)
		if err != nil {
			return TokenResponse{}, aw.Errorf(
				aw.KindUnauthenticated, "refresh token is invalid",
			)
		}
	}

	elapsed := s.now().Sub(rt.RotatedAt)
	switch {
	case elapsed <= replayWindow:
		// Benign double submit: hand out the pair the winner got.
		resp := TokenResponse{
			AccessToken:  rt.NextAccess,
			TokenType:    "Bearer",
			ExpiresIn:    int64(accessTTL.Seconds()),
			RefreshToken: rt.NextRefresh,
		}
		if at, err := s.tokens.getAccess(ctx, rt.NextAccess); err == nil {
			resp.ExpiresIn = int64(s.until(at.Expires).Seconds())
		}
		return resp, nil

	case elapsed <= reissueWindow:
		access, err := s.mintAccess(ctx, rt.ClientID, rt.ActorID, rt.FamilyID)
		if err != nil {
			return TokenResponse{}, err
		}
		return TokenResponse{
			AccessToken: access,
			TokenType:   "Bearer",
			ExpiresIn:   int64(accessTTL.Seconds()),
		}, nil

	default:
		// Reuse long after rotation means the token leaked. Burn the
		// family.
		s.log.WarnContext(ctx, "Refresh token reuse, revoking family",
			"client_id", rt.ClientID, "actor_id", rt.ActorID)
		if err := s.tokens.revokeFamily(ctx, rt.FamilyID); err != nil {
			s.log.WarnContext(ctx, "Family revocation failed",
				"error", err)
		}
		return TokenResponse{}, aw.Errorf(
			aw.KindUnauthenticated, "refresh token has been revoked",
		)
	}
}

// rotate performs the atomic refresh rotation. Returns ok=false when a
// concurrent request won the compare-and-swap.
func (s *Server) rotate(
	ctx context.Context, rt refreshToken, version int64,
) (TokenResponse, bool, error) {

	newAccess := aw.RandomID()
	newRefresh := aw.RandomID()
	now := s.now().UTC()

	rt.Used = true
	rt.RotatedAt = now
	rt.NextAccess = newAccess
	rt.NextRefresh = newRefresh

	ok, err := s.tokens.casRefresh(ctx, rt, version)
	if err != nil || !ok {
		return TokenResponse{}, false, err
	}

	err = s.tokens.putAccess(ctx, accessToken{
		Token:    newAccess,
		ClientID: rt.ClientID,
		ActorID:  rt.ActorID,
		FamilyID: rt.FamilyID,
		IssuedAt: now,
		Expires:  now.Add(accessTTL),
	})
	if err != nil {
		return TokenResponse{}, false, err
	}
	err = s.tokens.putRefresh(ctx, refreshToken{
		Token:    newRefresh,
		ClientID: rt.ClientID,
		ActorID:  rt.ActorID,
		FamilyID: rt.FamilyID,
		IssuedAt: now,
	})
	if err != nil {
		return TokenResponse{}, false, err
	}

	return TokenResponse{
		AccessToken:  newAccess,
		TokenType:    "Bearer",
		ExpiresIn:    int64(accessTTL.Seconds()),
		RefreshToken: newRefresh,
	}, true, nil
}

func (s *Server) clientCredentialsGrant(
	ctx context.Context, req TokenRequest,
) (TokenResponse, error) {

	client, err := s.authenticateClient(ctx, req, false)
	if err != nil {
		return TokenResponse{}, err
	}

	t, err := s.store.GetTrustByClientID(ctx, client.ID)
	if errors.Is(err, store.ErrNotFound) {
		return TokenResponse{}, aw.Errorf(aw.KindUnauthenticated,
			"client %s is not bound to an actor", client.ID)
	}
	if err != nil {
		return TokenResponse{}, aw.Wrap(
			aw.KindFatal, err, "client trust lookup failed",
		)
	}

	access, err := s.mintAccess(ctx, client.ID, t.ActorID, aw.RandomID())
	if err != nil {
		return TokenResponse{}, err
	}
	return TokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(accessTTL.Seconds()),
	}, nil
}

// passphraseGrant trades creator credentials for a token pair. Enabled
// only with devtest.
func (s *Server) passphraseGrant(
	ctx context.Context, req TokenRequest,
) (TokenResponse, error) {

	act, err := s.actors.GetByID(ctx, req.Username)
	if aw.KindOf(err) == aw.KindNotFound {
		act, err = s.actors.GetByCreator(ctx, req.Username)
	}
	if err != nil {
		return TokenResponse{}, aw.Errorf(
			aw.KindUnauthenticated, "unknown actor or creator",
		)
	}
	if !s.actors.VerifyPassphrase(act, req.Password) {
		return TokenResponse{}, aw.Errorf(
			aw.KindUnauthenticated, "passphrase rejected",
		)
	}
	return s.mintPair(ctx, req.ClientID, act.ID, aw.RandomID())
}

// authenticateClient validates client_id/client_secret. With PKCE a
// public client may omit the secret when allowPublic is set.
func (s *Server) authenticateClient(
	ctx context.Context, req TokenRequest, allowPublic bool,
) (Client, error) {

	client, err := s.tokens.getClient(ctx, req.ClientID)
	if errors.Is(err, store.ErrNotFound) {
		return Client{}, aw.Errorf(
			aw.KindUnauthenticated, "unknown client %s", req.ClientID,
		)
	}
	if err != nil {
		return Client{}, err
	}

	if req.ClientSecret == "" {
		if allowPublic && req.CodeVerifier != "" {
			return client, nil
		}
		return Client{}, aw.Errorf(
			aw.KindUnauthenticated, "client authentication required",
		)
	}
	if subtle.ConstantTimeCompare(
		[]byte(req.ClientSecret), []byte(client.Secret),
	) != 1 {
		return Client{}, aw.Errorf(
			aw.KindUnauthenticated, "client secret rejected",
		)
	}
	return client, nil
}

func (s *Server) mintPair(
	ctx context.Context, clientID, actorID, familyID string,
) (TokenResponse, error) {

	access, err := s.mintAccess(ctx, clientID, actorID, familyID)
	if err != nil {
		return TokenResponse{}, err
	}

	refresh := aw.RandomID()
	err = s.tokens.putRefresh(ctx, refreshToken{
		Token:    refresh,
		ClientID: clientID,
		ActorID:  actorID,
		FamilyID: familyID,
		IssuedAt: s.now().UTC(),
	})
	if err != nil {
		return TokenResponse{}, err
	}

	return TokenResponse{
		AccessToken:  access,
		TokenType:    "Bearer",
		ExpiresIn:    int64(accessTTL.Seconds()),
		RefreshToken: refresh,
	}, nil
}

func (s *Server) mintAccess(
	ctx context.Context, clientID, actorID, familyID string,
) (string, error) {

	now := s.now().UTC()
	token := aw.RandomID()
	err := s.tokens.putAccess(ctx, accessToken{
		Token:    token,
		ClientID: clientID,
		ActorID:  actorID,
		FamilyID: familyID,
		IssuedAt: now,
		Expires:  now.Add(accessTTL),
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// Identity is the resolved principal behind an access token.
type Identity struct {
	ActorID      string
	ClientID     string
	PeerID       string
	Relationship string

	// Owner marks tokens minted from creator credentials; they carry
	// owner-mode access instead of a trust evaluation.
	Owner bool
}

// Authenticate resolves a bearer access token. Expired rows age out of
// the index and come back not found.
func (s *Server) Authenticate(
	ctx context.Context, token string,
) (Identity, error) {

	at, err := s.tokens.getAccess(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return Identity{}, aw.Errorf(
			aw.KindUnauthenticated, "access token is invalid",
		)
	}
	if err != nil {
		return Identity{}, err
	}
	if !at.Expires.After(s.now()) {
		return Identity{}, aw.Errorf(
			aw.KindUnauthenticated, "access token has expired",
		)
	}

	if at.ClientID == "" {
		return Identity{ActorID: at.ActorID, Owner: true}, nil
	}

	t, err := s.store.GetTrustByClientID(ctx, at.ClientID)
	if errors.Is(err, store.ErrNotFound) {
		// The trust was deleted out from under the token; the token
		// dies with it.
		return Identity{}, aw.Errorf(
			aw.KindUnauthenticated, "access token has been revoked",
		)
	}
	if err != nil {
		return Identity{}, aw.Wrap(
			aw.KindFatal, err, "client trust lookup failed",
		)
	}

	return Identity{
		ActorID:      at.ActorID,
		ClientID:     at.ClientID,
		PeerID:       t.PeerID,
		Relationship: t.Relationship,
	}, nil
}

// Revoke invalidates a single token of either kind. Unknown tokens are
// not an error (RFC 7009).
func (s *Server) Revoke(ctx context.Context, token string) error {
	if err := s.tokens.delete(ctx, accessBucket, token); err != nil {
		return err
	}
	return s.tokens.delete(ctx, refreshBucket, token)
}

// Logout invalidates the whole token family the presented token belongs
// to.
func (s *Server) Logout(ctx context.Context, token string) error {
	if at, err := s.tokens.getAccess(ctx, token); err == nil {
		return s.tokens.revokeFamily(ctx, at.FamilyID)
	}
	if rt, _, err := s.tokens.getRefresh(ctx, token); err == nil {
		return s.tokens.revokeFamily(ctx, rt.FamilyID)
	}
	return nil
}

// RevokeClientTokens drops every token of a client and its registration.
// Called from trust teardown.
func (s *Server) RevokeClientTokens(ctx context.Context, clientID string) error {
	if err := s.tokens.revokeClient(ctx, clientID); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "Client tokens revoked", "client_id", clientID)
	return s.tokens.delete(ctx, clientBucket, clientID)
}

// Metadata is the RFC 8414 authorization server metadata document.
type Metadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RegistrationEndpoint              string   `json:"registration_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
}

// Metadata renders the discovery document.
func (s *Server) Metadata() Metadata {
	base := s.baseURL()
	return Metadata{
		Issuer:                base,
		AuthorizationEndpoint: base + "/oauth/authorize",
		TokenEndpoint:         base + "/oauth/token",
		RegistrationEndpoint:  base + "/oauth/register",
		RevocationEndpoint:    base + "/oauth/revoke",
		ResponseTypesSupported: []string{
			"code",
		},
		GrantTypesSupported: []string{
			"authorization_code", "refresh_token", "client_credentials",
		},
		CodeChallengeMethodsSupported: []string{"S256"},
		TokenEndpointAuthMethodsSupported: []string{
			"client_secret_post", "none",
		},
	}
}

func (s *Server) emit(
	ctx context.Context, ev hooks.LifecycleEvent, actorID string,
	payload map[string]any,
) {
	if err := s.hooks.EmitLifecycle(ctx, ev, actorID, payload); err != nil {
		s.log.WarnContext(ctx, "Lifecycle hook failed",
			"event", string(ev), "error", err)
	}
}

func (s *Server) until(t time.Time) time.Duration {
	d := t.Sub(s.now())
	if d < 0 {
		return 0
	}
	return d
}

// verifyPKCE checks an S256 code verifier against the stored challenge.
func verifyPKCE(challenge, verifier string) bool {
	if verifier == "" {
		return false
	}
	sum := sha256.Sum256([]byte(verifier))
	derived := base64.RawURLEncoding.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare(
		[]byte(derived), []byte(challenge),
	) == 1
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
