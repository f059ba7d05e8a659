package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/actingweb/actingweb-go/internal/actor"
	"github.com/actingweb/actingweb-go/internal/aw"
	"github.com/actingweb/actingweb-go/internal/callback"
	"github.com/actingweb/actingweb-go/internal/config"
	"github.com/actingweb/actingweb-go/internal/hooks"
	"github.com/actingweb/actingweb-go/internal/oauth"
	"github.com/actingweb/actingweb-go/internal/peer"
	"github.com/actingweb/actingweb-go/internal/permissions"
	"github.com/actingweb/actingweb-go/internal/store"
	"github.com/actingweb/actingweb-go/internal/subscription"
	"github.com/actingweb/actingweb-go/internal/trust"
)

type env struct {
	t   *testing.T
	ts  *httptest.Server
	st  store.Store
	cfg *config.Config
	hr  *hooks.Registry
}

func newEnv(t *testing.T, tweaks ...func(*config.Config)) *env {
	t.Helper()
	ctx := context.Background()
	log := slog.New(slog.DiscardHandler)

	cfg := config.Default()
	cfg.Proto = "http://"
	cfg.FQDN = "aw.test"
	cfg.StateSecret = "unit-test-state-secret"
	for _, tweak := range tweaks {
		tweak(cfg)
	}

	st := store.NewMemoryStore()
	registry := permissions.NewRegistry(st, log)
	require.NoError(t, registry.Init(ctx))
	eval := permissions.NewEvaluator(st, registry, log)
	hr := hooks.NewRegistry(log)
	peers := peer.NewClient(cfg, log)

	engine := subscription.NewEngine(st, cfg, eval, hr, log)
	actors := actor.NewService(st, cfg, hr, engine, log)
	trusts := trust.NewManager(st, cfg, hr, eval, registry, peers, log)
	subs := subscription.NewManager(st, cfg, eval, hr, peers, engine, log)
	proc := callback.NewProcessor(st, cfg, subs, peers, log)
	oauthSrv, err := oauth.NewServer(st, cfg, actors, hr, log)
	require.NoError(t, err)
	trusts.SetTokenRevoker(oauthSrv)
	trusts.SetSubscriptionCanceler(subs)

	srv := NewServer(Deps{
		Store:     st,
		Config:    cfg,
		Actors:    actors,
		Trusts:    trusts,
		Subs:      subs,
		Callbacks: proc,
		OAuth:     oauthSrv,
		Hooks:     hr,
		Evaluator: eval,
		Registry:  registry,
	}, log)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &env{t: t, ts: ts, st: st, cfg: cfg, hr: hr}
}

func basicAuth(user, pass string) func(*http.Request) {
	return func(r *http.Request) { r.SetBasicAuth(user, pass) }
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

func jsonBody(r *http.Request) {
	r.Header.Set("Content-Type", "application/json")
}

func (e *env) do(
	method, path, body string, mods ...func(*http.Request),
) *http.Response {
	e.t.Helper()

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rd)
	require.NoError(e.t, err)
	for _, mod := range mods {
		mod(req)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(e.t, err)
	e.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func bodyString(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

// createActor mints an actor through the factory and returns its id,
// creator, and passphrase.
func (e *env) createActor(creator string) (string, string, string) {
	e.t.Helper()

	resp := e.do(http.MethodPost, "/",
		`{"creator":"`+creator+`"}`, jsonBody)
	require.Equal(e.t, http.StatusCreated, resp.StatusCode)

	var out factoryResponse
	decode(e.t, resp, &out)
	require.NotEmpty(e.t, out.ID)
	require.NotEmpty(e.t, out.Passphrase)
	return out.ID, out.Creator, out.Passphrase
}

// addPeerTrust seeds an approved trust row directly in the store.
func (e *env) addPeerTrust(
	actorID, peerID, relationship, secret string, approved bool,
) {
	e.t.Helper()
	_, err := e.st.CreateTrust(context.Background(), store.CreateTrustParams{
		ActorID:      actorID,
		PeerID:       peerID,
		BaseURI:      "http://peer.test/" + peerID,
		Relationship: relationship,
		Secret:       secret,
		Approved:     approved,
		PeerApproved: true,
		Verified:     true,
	})
	require.NoError(e.t, err)
}

func TestFactoryCreatesActor(t *testing.T) {
	e := newEnv(t)

	resp := e.do(http.MethodPost, "/",
		`{"creator":"alice@example.com"}`, jsonBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out factoryResponse
	decode(t, resp, &out)
	require.Equal(t, "alice@example.com", out.Creator)
	require.Equal(t, "http://aw.test/"+out.ID, out.URL)
	require.Equal(t, out.URL, resp.Header.Get("Location"))

	meta := e.do(http.MethodGet, "/"+out.ID+"/meta", "")
	require.Equal(t, http.StatusOK, meta.StatusCode)
	var doc map[string]any
	decode(t, meta, &doc)
	require.Equal(t, out.ID, doc["id"])
	require.Equal(t, aw.ProtocolVersion,
		doc["actingweb"].(map[string]any)["version"])
}

func TestFactoryRequiresCreator(t *testing.T) {
	e := newEnv(t)
	resp := e.do(http.MethodPost, "/", `{}`, jsonBody)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFactoryServesHTMLForm(t *testing.T) {
	e := newEnv(t)
	resp := e.do(http.MethodGet, "/", "", func(r *http.Request) {
		r.Header.Set("Accept", "text/html")
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, bodyString(t, resp), "<form")
}

func TestMetaScalarPaths(t *testing.T) {
	e := newEnv(t)
	id, _, _ := e.createActor("alice@example.com")

	resp := e.do(http.MethodGet, "/"+id+"/meta/actingweb/version", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, aw.ProtocolVersion, bodyString(t, resp))

	supported := e.do(http.MethodGet, "/"+id+"/meta/actingweb/supported", "")
	require.Contains(t, bodyString(t, supported), "subscriptions")

	missing := e.do(http.MethodGet, "/"+id+"/meta/nope", "")
	require.Equal(t, http.StatusNotFound, missing.StatusCode)

	types := e.do(http.MethodGet, "/"+id+"/meta/trusttypes", "")
	require.Equal(t, http.StatusOK, types.StatusCode)
	var tts []permissions.TrustType
	decode(t, types, &tts)
	require.Len(t, tts, 6)
}

func TestUnknownActorIs404(t *testing.T) {
	e := newEnv(t)
	resp := e.do(http.MethodGet, "/doesnotexist/meta", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuthenticationRequired(t *testing.T) {
	e := newEnv(t)
	id, creator, pass := e.createActor("alice@example.com")

	resp := e.do(http.MethodGet, "/"+id+"/properties", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Contains(t, resp.Header.Get("WWW-Authenticate"), "Basic")

	wrong := e.do(http.MethodGet, "/"+id+"/properties", "",
		basicAuth(creator, "wrong"))
	require.Equal(t, http.StatusUnauthorized, wrong.StatusCode)

	badBearer := e.do(http.MethodGet, "/"+id+"/properties", "",
		bearer("no-such-token"))
	require.Equal(t, http.StatusUnauthorized, badBearer.StatusCode)
	require.Contains(t, badBearer.Header.Get("WWW-Authenticate"),
		`error="invalid_token"`)

	ok := e.do(http.MethodGet, "/"+id+"/properties", "",
		basicAuth(creator, pass))
	require.Equal(t, http.StatusOK, ok.StatusCode)
	require.JSONEq(t, `{}`, bodyString(t, ok))
}

func TestTrusteeUsernameGrantsOwner(t *testing.T) {
	e := newEnv(t)
	id, _, pass := e.createActor("alice@example.com")

	resp := e.do(http.MethodGet, "/"+id+"/properties", "",
		basicAuth("trustee", pass))
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestOwnerPropertyCRUD(t *testing.T) {
	e := newEnv(t)
	id, creator, pass := e.createActor("alice@example.com")
	owner := basicAuth(creator, pass)

	put := e.do(http.MethodPut, "/"+id+"/properties/profile",
		`{"name":"Alice","city":"Oslo"}`, owner)
	require.Equal(t, http.StatusNoContent, put.StatusCode)

	get := e.do(http.MethodGet, "/"+id+"/properties/profile", "", owner)
	require.Equal(t, http.StatusOK, get.StatusCode)
	require.JSONEq(t, `{"name":"Alice","city":"Oslo"}`, bodyString(t, get))

	deep := e.do(http.MethodGet, "/"+id+"/properties/profile/name", "", owner)
	require.JSONEq(t, `"Alice"`, bodyString(t, deep))

	deepPut := e.do(http.MethodPut, "/"+id+"/properties/profile/lang",
		`"no"`, owner)
	require.Equal(t, http.StatusNoContent, deepPut.StatusCode)

	after := e.do(http.MethodGet, "/"+id+"/properties/profile", "", owner)
	require.JSONEq(t,
		`{"name":"Alice","city":"Oslo","lang":"no"}`, bodyString(t, after))

	deepDel := e.do(http.MethodDelete,
		"/"+id+"/properties/profile/city", "", owner)
	require.Equal(t, http.StatusNoContent, deepDel.StatusCode)

	del := e.do(http.MethodDelete, "/"+id+"/properties/profile", "", owner)
	require.Equal(t, http.StatusNoContent, del.StatusCode)

	gone := e.do(http.MethodGet, "/"+id+"/properties/profile", "", owner)
	require.Equal(t, http.StatusNotFound, gone.StatusCode)

	empty := e.do(http.MethodGet, "/"+id+"/properties", "", owner)
	require.JSONEq(t, `{}`, bodyString(t, empty))
}

func TestBulkPropertyPost(t *testing.T) {
	e := newEnv(t)
	id, creator, pass := e.createActor("alice@example.com")
	owner := basicAuth(creator, pass)

	resp := e.do(http.MethodPost, "/"+id+"/properties",
		`{"a":1,"b":"two"}`, owner, jsonBody)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	get := e.do(http.MethodGet, "/"+id+"/properties", "", owner)
	require.JSONEq(t, `{"a":1,"b":"two"}`, bodyString(t, get))
}

func TestListPropertyItems(t *testing.T) {
	e := newEnv(t)
	id, creator, pass := e.createActor("alice@example.com")
	owner := basicAuth(creator, pass)

	add := e.do(http.MethodPost, "/"+id+"/properties/trips/items",
		`{"dest":"Oslo"}`, owner)
	require.Equal(t, http.StatusNoContent, add.StatusCode)
	add2 := e.do(http.MethodPost, "/"+id+"/properties/trips/items",
		`{"dest":"Paris"}`, owner)
	require.Equal(t, http.StatusNoContent, add2.StatusCode)

	get := e.do(http.MethodGet, "/"+id+"/properties/trips", "", owner)
	require.Equal(t, http.StatusOK, get.StatusCode)
	require.JSONEq(t,
		`[{"dest":"Oslo"},{"dest":"Paris"}]`, bodyString(t, get))

	update := e.do(http.MethodPost,
		"/"+id+"/properties/trips/items?index=0",
		`{"dest":"Bergen"}`, owner)
	require.Equal(t, http.StatusNoContent, update.StatusCode)

	item := e.do(http.MethodGet,
		"/"+id+"/properties/trips/items?index=0", "", owner)
	require.JSONEq(t, `{"dest":"Bergen"}`, bodyString(t, item))

	metaPut := e.do(http.MethodPut, "/"+id+"/properties/trips/metadata",
		`{"description":"travel log"}`, owner)
	require.Equal(t, http.StatusNoContent, metaPut.StatusCode)

	meta := e.do(http.MethodGet,
		"/"+id+"/properties/trips/metadata", "", owner)
	var mv listMetaView
	decode(t, meta, &mv)
	require.Equal(t, "travel log", mv.Description)
	require.Equal(t, int64(2), mv.Length)

	delItem := e.do(http.MethodDelete,
		"/"+id+"/properties/trips/items?index=1", "", owner)
	require.Equal(t, http.StatusNoContent, delItem.StatusCode)

	delList := e.do(http.MethodDelete,
		"/"+id+"/properties/trips", "", owner)
	require.Equal(t, http.StatusNoContent, delList.StatusCode)
}

func TestMapPropertyItemsKeyDescends(t *testing.T) {
	e := newEnv(t)
	id, creator, pass := e.createActor("alice@example.com")
	owner := basicAuth(creator, pass)

	put := e.do(http.MethodPut, "/"+id+"/properties/report",
		`{"items":[1,2],"metadata":{"rev":3}}`, owner)
	require.Equal(t, http.StatusNoContent, put.StatusCode)

	items := e.do(http.MethodGet,
		"/"+id+"/properties/report/items", "", owner)
	require.Equal(t, http.StatusOK, items.StatusCode)
	require.JSONEq(t, `[1,2]`, bodyString(t, items))

	meta := e.do(http.MethodGet,
		"/"+id+"/properties/report/metadata", "", owner)
	require.Equal(t, http.StatusOK, meta.StatusCode)
	require.JSONEq(t, `{"rev":3}`, bodyString(t, meta))

	deepPut := e.do(http.MethodPut,
		"/"+id+"/properties/report/metadata", `{"rev":4}`, owner)
	require.Equal(t, http.StatusNoContent, deepPut.StatusCode)

	after := e.do(http.MethodGet, "/"+id+"/properties/report", "", owner)
	require.JSONEq(t,
		`{"items":[1,2],"metadata":{"rev":4}}`, bodyString(t, after))
}

func TestPeerPropertyAccessIsFiltered(t *testing.T) {
	e := newEnv(t)
	id, creator, pass := e.createActor("alice@example.com")
	owner := basicAuth(creator, pass)
	e.addPeerTrust(id, "peer-1", "friend", "peer-secret", true)

	e.do(http.MethodPut, "/"+id+"/properties/profile", `"shared"`, owner)
	e.do(http.MethodPost, "/"+id+"/properties",
		`{"private/keys":"hidden"}`, owner, jsonBody)

	asPeer := bearer("peer-secret")

	list := e.do(http.MethodGet, "/"+id+"/properties", "", asPeer)
	require.Equal(t, http.StatusOK, list.StatusCode)
	var props map[string]json.RawMessage
	decode(t, list, &props)
	require.Contains(t, props, "profile")
	require.NotContains(t, props, "private/keys")

	denied := e.do(http.MethodGet,
		"/"+id+"/properties/private/keys", "", asPeer)
	require.Equal(t, http.StatusForbidden, denied.StatusCode)

	write := e.do(http.MethodPut, "/"+id+"/properties/notes",
		`"from peer"`, asPeer)
	require.Equal(t, http.StatusNoContent, write.StatusCode)
}

func TestUnapprovedPeerReachesOnlyTrust(t *testing.T) {
	e := newEnv(t)
	id, _, _ := e.createActor("alice@example.com")
	e.addPeerTrust(id, "peer-1", "friend", "peer-secret", false)

	props := e.do(http.MethodGet, "/"+id+"/properties", "",
		bearer("peer-secret"))
	require.Equal(t, http.StatusForbidden, props.StatusCode)

	own := e.do(http.MethodGet, "/"+id+"/trust/friend/peer-1", "",
		bearer("peer-secret"))
	require.Equal(t, http.StatusOK, own.StatusCode)
}

func TestRequestIDEchoed(t *testing.T) {
	e := newEnv(t)

	resp := e.do(http.MethodGet, "/", "", func(r *http.Request) {
		r.Header.Set(aw.HeaderRequestID, "req-42")
	})
	require.Equal(t, "req-42", resp.Header.Get(aw.HeaderRequestID))

	minted := e.do(http.MethodGet, "/", "")
	require.NotEmpty(t, minted.Header.Get(aw.HeaderRequestID))
}
