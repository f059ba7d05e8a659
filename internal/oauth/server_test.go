package oauth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/actingweb/actingweb-go/internal/actor"
	"github.com/actingweb/actingweb-go/internal/aw"
	"github.com/actingweb/actingweb-go/internal/config"
	"github.com/actingweb/actingweb-go/internal/hooks"
	"github.com/actingweb/actingweb-go/internal/peer"
	"github.com/actingweb/actingweb-go/internal/permissions"
	"github.com/actingweb/actingweb-go/internal/store"
	"github.com/actingweb/actingweb-go/internal/trust"
)

type testEnv struct {
	srv    *Server
	store  store.Store
	actors *actor.Service
	hooks  *hooks.Registry
	cfg    *config.Config
	idp    *httptest.Server

	userinfo string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		userinfo: `{"email":"user@example.com","email_verified":true}`,
	}

	env.idp = httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/token":
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(
					`{"access_token":"up-tok","token_type":"Bearer"}`,
				))
			case "/userinfo", "/emails":
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(env.userinfo))
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		},
	))
	t.Cleanup(env.idp.Close)

	log := slog.New(slog.DiscardHandler)
	cfg := config.Default()
	cfg.FQDN = "aw.test"
	cfg.StateSecret = "unit-test-state-secret"
	cfg.Providers["google"] = config.ProviderConfig{
		ClientID:     "upstream-id",
		ClientSecret: "upstream-secret",
		AuthURL:      env.idp.URL + "/auth",
		TokenURL:     env.idp.URL + "/token",
		UserInfoURL:  env.idp.URL + "/userinfo",
		Scopes:       []string{"email"},
	}

	st := store.NewMemoryStore()
	hr := hooks.NewRegistry(log)
	actors := actor.NewService(st, cfg, hr, nil, log)

	srv, err := NewServer(st, cfg, actors, hr, log)
	require.NoError(t, err)

	env.srv = srv
	env.store = st
	env.actors = actors
	env.hooks = hr
	env.cfg = cfg
	return env
}

func pkcePair() (verifier, challenge string) {
	verifier = "correct-horse-battery-staple-with-enough-entropy"
	sum := sha256.Sum256([]byte(verifier))
	return verifier, base64.RawURLEncoding.EncodeToString(sum[:])
}

// login walks register, authorize, and the upstream callback, returning
// the client and the authorization code delivered to its redirect URI.
func (e *testEnv) login(t *testing.T) (Client, string) {
	t.Helper()
	ctx := context.Background()

	client, err := e.srv.RegisterClient(ctx, RegisterParams{
		ClientName:   "Test MCP Client",
		RedirectURIs: []string{"https://client.test/cb"},
	})
	require.NoError(t, err)

	_, challenge := pkcePair()
	authURL, err := e.srv.BeginAuthorize(ctx, AuthorizeRequest{
		ClientID:        client.ID,
		RedirectURI:     "https://client.test/cb",
		State:           "client-state",
		CodeChallenge:   challenge,
		ChallengeMethod: "S256",
	})
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	state := parsed.Query().Get("state")
	require.NotEmpty(t, state)

	redirect, err := e.srv.HandleCallback(ctx, state, "upstream-code")
	require.NoError(t, err)

	back, err := url.Parse(redirect)
	require.NoError(t, err)
	require.Equal(t, "client.test", back.Host)
	require.Equal(t, "client-state", back.Query().Get("state"))

	code := back.Query().Get("code")
	require.NotEmpty(t, code)
	return client, code
}

func TestRegisterClientValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.srv.RegisterClient(ctx, RegisterParams{})
	require.Equal(t, aw.KindInvalidRequest, aw.KindOf(err))

	_, err = env.srv.RegisterClient(ctx, RegisterParams{
		ClientName:   "bad",
		RedirectURIs: []string{"not a url"},
	})
	require.Equal(t, aw.KindInvalidRequest, aw.KindOf(err))

	client, err := env.srv.RegisterClient(ctx, RegisterParams{
		ClientName: "Test MCP Client",
	})
	require.NoError(t, err)
	require.NotEmpty(t, client.ID)
	require.NotEmpty(t, client.Secret)
}

func TestAuthorizationCodeFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	client, code := env.login(t)
	verifier, _ := pkcePair()

	resp, err := env.srv.Token(ctx, TokenRequest{
		GrantType:    "authorization_code",
		Code:         code,
		RedirectURI:  "https://client.test/cb",
		ClientID:     client.ID,
		ClientSecret: client.Secret,
		CodeVerifier: verifier,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	require.Equal(t, "Bearer", resp.TokenType)

	id, err := env.srv.Authenticate(ctx, resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, client.ID, id.ClientID)
	require.Equal(t, permissions.TypeMCPClient, id.Relationship)
	require.False(t, id.Owner)

	// The login bound the verified email to a fresh actor with an
	// mcp_client trust on it.
	act, err := env.actors.GetFromProperty(ctx, "email", "user@example.com")
	require.NoError(t, err)
	require.Equal(t, act.ID, id.ActorID)

	trustRow, err := env.store.GetTrustByClientID(ctx, client.ID)
	require.NoError(t, err)
	require.Equal(t, act.ID, trustRow.ActorID)
	require.Equal(t, "oauth2_client", trustRow.EstablishedVia)
}

func TestAuthorizationCodeIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	client, code := env.login(t)
	verifier, _ := pkcePair()
	req := TokenRequest{
		GrantType:    "authorization_code",
		Code:         code,
		RedirectURI:  "https://client.test/cb",
		ClientID:     client.ID,
		ClientSecret: client.Secret,
		CodeVerifier: verifier,
	}

	_, err := env.srv.Token(ctx, req)
	require.NoError(t, err)

	_, err = env.srv.Token(ctx, req)
	require.Equal(t, aw.KindUnauthenticated, aw.KindOf(err))
}

func TestPKCEMismatchRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	client, code := env.login(t)
	_, err := env.srv.Token(ctx, TokenRequest{
		GrantType:    "authorization_code",
		Code:         code,
		RedirectURI:  "https://client.test/cb",
		ClientID:     client.ID,
		ClientSecret: client.Secret,
		CodeVerifier: "wrong-verifier-entirely",
	})
	require.Equal(t, aw.KindUnauthenticated, aw.KindOf(err))
}

func TestRefreshRotationWindows(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	client, code := env.login(t)
	verifier, _ := pkcePair()
	first, err := env.srv.Token(ctx, TokenRequest{
		GrantType:    "authorization_code",
		Code:         code,
		RedirectURI:  "https://client.test/cb",
		ClientID:     client.ID,
		ClientSecret: client.Secret,
		CodeVerifier: verifier,
	})
	require.NoError(t, err)

	refreshReq := TokenRequest{
		GrantType:    "refresh_token",
		RefreshToken: first.RefreshToken,
		ClientID:     client.ID,
		ClientSecret: client.Secret,
	}

	second, err := env.srv.Token(ctx, refreshReq)
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)
	require.NotEqual(t, first.AccessToken, second.AccessToken)

	// Immediate reuse of the rotated token is a benign double submit
	// and receives the exact same pair.
	replay, err := env.srv.Token(ctx, refreshReq)
	require.NoError(t, err)
	require.Equal(t, second.AccessToken, replay.AccessToken)
	require.Equal(t, second.RefreshToken, replay.RefreshToken)

	// Half a minute later the reuse still passes but only yields a
	// fresh access token, never a refresh.
	base := time.Now()
	env.srv.now = func() time.Time { return base.Add(30 * time.Second) }
	reissued, err := env.srv.Token(ctx, refreshReq)
	require.NoError(t, err)
	require.Empty(t, reissued.RefreshToken)
	require.NotEqual(t, second.AccessToken, reissued.AccessToken)

	// Minutes later the reuse is treated as theft: the whole family
	// dies, including the successor tokens.
	env.srv.now = func() time.Time { return base.Add(5 * time.Minute) }
	_, err = env.srv.Token(ctx, refreshReq)
	require.Equal(t, aw.KindUnauthenticated, aw.KindOf(err))

	env.srv.now = time.Now
	_, err = env.srv.Authenticate(ctx, second.AccessToken)
	require.Equal(t, aw.KindUnauthenticated, aw.KindOf(err))
	_, err = env.srv.Token(ctx, TokenRequest{
		GrantType:    "refresh_token",
		RefreshToken: second.RefreshToken,
		ClientID:     client.ID,
		ClientSecret: client.Secret,
	})
	require.Equal(t, aw.KindUnauthenticated, aw.KindOf(err))
}

func TestClientCredentialsGrant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	client, _ := env.login(t)

	resp, err := env.srv.Token(ctx, TokenRequest{
		GrantType:    "client_credentials",
		ClientID:     client.ID,
		ClientSecret: client.Secret,
	})
	require.NoError(t, err)
	require.Empty(t, resp.RefreshToken)

	id, err := env.srv.Authenticate(ctx, resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, client.ID, id.ClientID)

	_, err = env.srv.Token(ctx, TokenRequest{
		GrantType:    "client_credentials",
		ClientID:     client.ID,
		ClientSecret: "wrong",
	})
	require.Equal(t, aw.KindUnauthenticated, aw.KindOf(err))
}

func TestPassphraseGrantRequiresDevTest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	act, passphrase, err := env.actors.Create(ctx, actor.CreateParams{
		Creator: "owner@example.com",
	})
	require.NoError(t, err)

	req := TokenRequest{
		GrantType: "passphrase",
		Username:  act.ID,
		Password:  passphrase,
	}
	_, err = env.srv.Token(ctx, req)
	require.Equal(t, aw.KindInvalidRequest, aw.KindOf(err))

	env.cfg.DevTest = true
	resp, err := env.srv.Token(ctx, req)
	require.NoError(t, err)

	id, err := env.srv.Authenticate(ctx, resp.AccessToken)
	require.NoError(t, err)
	require.True(t, id.Owner)
	require.Equal(t, act.ID, id.ActorID)

	_, err = env.srv.Token(ctx, TokenRequest{
		GrantType: "passphrase",
		Username:  act.ID,
		Password:  "nope",
	})
	require.Equal(t, aw.KindUnauthenticated, aw.KindOf(err))
}

func TestTrustDeletionRevokesTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	log := slog.New(slog.DiscardHandler)

	registry := permissions.NewRegistry(env.store, log)
	require.NoError(t, registry.Init(ctx))
	eval := permissions.NewEvaluator(env.store, registry, log)
	trusts := trust.NewManager(
		env.store, env.cfg, env.hooks, eval, registry,
		peer.NewClient(env.cfg, log), log,
	)
	trusts.SetTokenRevoker(env.srv)

	client, code := env.login(t)
	verifier, _ := pkcePair()
	resp, err := env.srv.Token(ctx, TokenRequest{
		GrantType:    "authorization_code",
		Code:         code,
		RedirectURI:  "https://client.test/cb",
		ClientID:     client.ID,
		ClientSecret: client.Secret,
		CodeVerifier: verifier,
	})
	require.NoError(t, err)

	trustRow, err := env.store.GetTrustByClientID(ctx, client.ID)
	require.NoError(t, err)
	require.NoError(t, trusts.Delete(
		ctx, trustRow.ActorID, trustRow.PeerID, false,
	))

	_, err = env.srv.Authenticate(ctx, resp.AccessToken)
	require.Equal(t, aw.KindUnauthenticated, aw.KindOf(err))

	// The registration died with the trust.
	_, err = env.srv.BeginAuthorize(ctx, AuthorizeRequest{
		ClientID:    client.ID,
		RedirectURI: "https://client.test/cb",
	})
	require.Equal(t, aw.KindUnauthenticated, aw.KindOf(err))
}

func TestUnverifiedEmailRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.userinfo = `{"email":"user@example.com","email_verified":false}`

	var required int
	env.hooks.OnLifecycle(hooks.EventEmailVerificationRequired, func(
		_ context.Context, _ string, _ map[string]any,
	) error {
		required++
		return nil
	})

	client, err := env.srv.RegisterClient(ctx, RegisterParams{
		ClientName:   "Test",
		RedirectURIs: []string{"https://client.test/cb"},
	})
	require.NoError(t, err)

	authURL, err := env.srv.BeginAuthorize(ctx, AuthorizeRequest{
		ClientID:    client.ID,
		RedirectURI: "https://client.test/cb",
	})
	require.NoError(t, err)
	parsed, _ := url.Parse(authURL)

	_, err = env.srv.HandleCallback(
		ctx, parsed.Query().Get("state"), "upstream-code",
	)
	require.Equal(t, aw.KindUnauthenticated, aw.KindOf(err))
	require.Equal(t, 1, required)
}

func TestGitHubEmailSelection(t *testing.T) {
	email, err := githubEmail([]byte(`[
		{"email":"alt@example.com","primary":false,"verified":true},
		{"email":"Main@Example.com","primary":true,"verified":true}
	]`))
	require.NoError(t, err)
	require.Equal(t, "main@example.com", email)

	email, err = githubEmail([]byte(`[
		{"email":"main@example.com","primary":true,"verified":false},
		{"email":"alt@example.com","primary":false,"verified":true}
	]`))
	require.NoError(t, err)
	require.Equal(t, "alt@example.com", email)

	_, err = githubEmail([]byte(`[
		{"email":"main@example.com","primary":true,"verified":false}
	]`))
	require.Equal(t, aw.KindUnauthenticated, aw.KindOf(err))
}

func TestTamperedStateRejected(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.srv.HandleCallback(
		context.Background(), "bm90LXJlYWwtc3RhdGU", "code",
	)
	require.Equal(t, aw.KindUnauthenticated, aw.KindOf(err))
}

func TestRevokeAndLogout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	client, code := env.login(t)
	verifier, _ := pkcePair()
	resp, err := env.srv.Token(ctx, TokenRequest{
		GrantType:    "authorization_code",
		Code:         code,
		RedirectURI:  "https://client.test/cb",
		ClientID:     client.ID,
		ClientSecret: client.Secret,
		CodeVerifier: verifier,
	})
	require.NoError(t, err)

	require.NoError(t, env.srv.Revoke(ctx, resp.AccessToken))
	_, err = env.srv.Authenticate(ctx, resp.AccessToken)
	require.Equal(t, aw.KindUnauthenticated, aw.KindOf(err))

	// Logout with the surviving refresh token kills the family.
	require.NoError(t, env.srv.Logout(ctx, resp.RefreshToken))
	_, err = env.srv.Token(ctx, TokenRequest{
		GrantType:    "refresh_token",
		RefreshToken: resp.RefreshToken,
		ClientID:     client.ID,
		ClientSecret: client.Secret,
	})
	require.Equal(t, aw.KindUnauthenticated, aw.KindOf(err))
}

func TestMetadataDocument(t *testing.T) {
	env := newTestEnv(t)

	md := env.srv.Metadata()
	require.Equal(t, "https://aw.test", md.Issuer)
	require.Equal(t, "https://aw.test/oauth/token", md.TokenEndpoint)
	require.Contains(t, md.GrantTypesSupported, "refresh_token")
	require.Contains(t, md.CodeChallengeMethodsSupported, "S256")

	raw, err := json.Marshal(md)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"authorization_endpoint"`)
}
