package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/actingweb/actingweb-go/internal/callback"
	"github.com/actingweb/actingweb-go/internal/config"
	"github.com/actingweb/actingweb-go/internal/hooks"
	"github.com/actingweb/actingweb-go/internal/store"
	"github.com/actingweb/actingweb-go/internal/trust"
)

// peerStub stands in for a remote actor, recording the notifications
// it receives.
type peerStub struct {
	mu   sync.Mutex
	seen []string

	ts *httptest.Server
}

func newPeerStub(t *testing.T) *peerStub {
	t.Helper()
	p := &peerStub{}
	p.ts = httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			p.mu.Lock()
			p.seen = append(p.seen, r.Method+" "+r.URL.Path)
			p.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		}))
	t.Cleanup(p.ts.Close)
	return p
}

func (p *peerStub) requests() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.seen...)
}

func TestInboundTrustLifecycle(t *testing.T) {
	e := newEnv(t)
	id, creator, pass := e.createActor("alice@example.com")
	owner := basicAuth(creator, pass)
	remote := newPeerStub(t)

	// A prospective peer posts its half of the handshake with no
	// credential; the proposed secret becomes its credential.
	resp := e.do(http.MethodPost, "/"+id+"/trust/friend", `{
		"id": "peer-9",
		"baseuri": "`+remote.ts.URL+`",
		"type": "`+trust.PeerType+`",
		"secret": "s3cret-9",
		"desc": "test peer"
	}`, jsonBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created trustView
	decode(t, resp, &created)
	require.Equal(t, "peer-9", created.ID)
	require.False(t, created.Approved)
	require.True(t, created.PeerApproved)
	require.Empty(t, created.Secret)
	require.Equal(t, "http://aw.test/"+id+"/trust/friend/peer-9",
		resp.Header.Get("Location"))

	// The owner sees the pending trust including the secret.
	list := e.do(http.MethodGet, "/"+id+"/trust", "", owner)
	var views []trustView
	decode(t, list, &views)
	require.Len(t, views, 1)
	require.Equal(t, "s3cret-9", views[0].Secret)

	// The pending secret only unlocks the trust surface.
	blocked := e.do(http.MethodGet, "/"+id+"/properties", "",
		bearer("s3cret-9"))
	require.Equal(t, http.StatusForbidden, blocked.StatusCode)

	// Withdrawal by PUT is rejected; approval flips the owner side and
	// pings the peer.
	bad := e.do(http.MethodPut, "/"+id+"/trust/friend/peer-9",
		`{"approved":false}`, owner)
	require.Equal(t, http.StatusBadRequest, bad.StatusCode)

	approve := e.do(http.MethodPut, "/"+id+"/trust/friend/peer-9",
		`{"approved":true}`, owner)
	require.Equal(t, http.StatusNoContent, approve.StatusCode)

	own := e.do(http.MethodGet, "/"+id+"/trust/friend/peer-9", "",
		bearer("s3cret-9"))
	require.Equal(t, http.StatusOK, own.StatusCode)
	var mine trustView
	decode(t, own, &mine)
	require.True(t, mine.Approved)
	require.Empty(t, mine.Secret)

	// Another peer's row stays hidden.
	e.addPeerTrust(id, "peer-other", "friend", "other-secret", true)
	foreign := e.do(http.MethodGet, "/"+id+"/trust/friend/peer-other", "",
		bearer("s3cret-9"))
	require.Equal(t, http.StatusForbidden, foreign.StatusCode)

	del := e.do(http.MethodDelete, "/"+id+"/trust/friend/peer-9", "", owner)
	require.Equal(t, http.StatusNoContent, del.StatusCode)

	gone := e.do(http.MethodGet, "/"+id+"/trust/friend/peer-9", "", owner)
	require.Equal(t, http.StatusNotFound, gone.StatusCode)

	notified := false
	for _, req := range remote.requests() {
		if strings.Contains(req, "/trust/friend/"+id) {
			notified = true
		}
	}
	require.True(t, notified, "peer was never notified")
}

func TestPermissionOverride(t *testing.T) {
	e := newEnv(t)
	id, creator, pass := e.createActor("alice@example.com")
	owner := basicAuth(creator, pass)
	e.addPeerTrust(id, "peer-1", "friend", "peer-secret", true)

	missing := e.do(http.MethodGet,
		"/"+id+"/trust/friend/peer-1/permissions", "", owner)
	require.Equal(t, http.StatusNotFound, missing.StatusCode)

	put := e.do(http.MethodPut,
		"/"+id+"/trust/friend/peer-1/permissions", `{
			"properties": {
				"excluded_patterns": ["notes"]
			}
		}`, owner)
	require.Equal(t, http.StatusNoContent, put.StatusCode)

	// Override exclusions are added on top of the friend defaults.
	denied := e.do(http.MethodPut, "/"+id+"/properties/notes",
		`"x"`, bearer("peer-secret"))
	require.Equal(t, http.StatusForbidden, denied.StatusCode)

	write := e.do(http.MethodPut, "/"+id+"/properties/journal",
		`"still fine"`, bearer("peer-secret"))
	require.Equal(t, http.StatusNoContent, write.StatusCode)

	// A peer may inspect its own effective permissions; the owner too.
	eff := e.do(http.MethodGet, "/"+id+"/permissions/peer-1", "",
		bearer("peer-secret"))
	require.Equal(t, http.StatusOK, eff.StatusCode)
	var set map[string]any
	decode(t, eff, &set)
	require.Contains(t, set, "properties")

	noTrust := e.do(http.MethodGet, "/"+id+"/permissions/peer-x", "", owner)
	require.Equal(t, http.StatusNotFound, noTrust.StatusCode)

	del := e.do(http.MethodDelete,
		"/"+id+"/trust/friend/peer-1/permissions", "", owner)
	require.Equal(t, http.StatusNoContent, del.StatusCode)

	again := e.do(http.MethodGet,
		"/"+id+"/trust/friend/peer-1/permissions", "", owner)
	require.Equal(t, http.StatusNotFound, again.StatusCode)
}

func TestSubscriptionLifecycle(t *testing.T) {
	e := newEnv(t)
	id, creator, pass := e.createActor("alice@example.com")
	owner := basicAuth(creator, pass)
	e.addPeerTrust(id, "peer-1", "friend", "peer-secret", true)
	asPeer := bearer("peer-secret")

	created := e.do(http.MethodPost, "/"+id+"/subscriptions/peer-1",
		`{"target":"properties"}`, asPeer)
	require.Equal(t, http.StatusCreated, created.StatusCode)
	var out map[string]string
	decode(t, created, &out)
	subID := out["subscriptionid"]
	require.NotEmpty(t, subID)
	require.Equal(t,
		"http://aw.test/"+id+"/subscriptions/peer-1/"+subID,
		created.Header.Get("Location"))

	// A peer cannot register subscriptions under someone else's id.
	foreign := e.do(http.MethodPost, "/"+id+"/subscriptions/peer-2",
		`{"target":"properties"}`, asPeer)
	require.Equal(t, http.StatusForbidden, foreign.StatusCode)

	// An owner-side property write lands as a retained diff.
	write := e.do(http.MethodPut, "/"+id+"/properties/profile",
		`{"name":"Alice"}`, owner)
	require.Equal(t, http.StatusNoContent, write.StatusCode)

	get := e.do(http.MethodGet,
		"/"+id+"/subscriptions/peer-1/"+subID, "", asPeer)
	require.Equal(t, http.StatusOK, get.StatusCode)
	var sub struct {
		Sequence int64 `json:"sequence"`
		Data     []struct {
			Sequence int64           `json:"sequence"`
			Data     json.RawMessage `json:"data"`
		} `json:"data"`
	}
	decode(t, get, &sub)
	require.Equal(t, int64(1), sub.Sequence)
	require.Len(t, sub.Data, 1)
	require.Equal(t, int64(1), sub.Data[0].Sequence)

	// Fetching a diff acknowledges everything through it.
	diff := e.do(http.MethodGet,
		"/"+id+"/subscriptions/peer-1/"+subID+"/1", "", asPeer)
	require.Equal(t, http.StatusOK, diff.StatusCode)

	after := e.do(http.MethodGet,
		"/"+id+"/subscriptions/peer-1/"+subID, "", asPeer)
	decode(t, after, &sub)
	require.Empty(t, sub.Data)

	refetch := e.do(http.MethodGet,
		"/"+id+"/subscriptions/peer-1/"+subID+"/1", "", asPeer)
	require.Equal(t, http.StatusNotFound, refetch.StatusCode)

	list := e.do(http.MethodGet, "/"+id+"/subscriptions", "", owner)
	var listing struct {
		ID   string    `json:"id"`
		Data []subView `json:"data"`
	}
	decode(t, list, &listing)
	require.Equal(t, id, listing.ID)
	require.Len(t, listing.Data, 1)

	del := e.do(http.MethodDelete,
		"/"+id+"/subscriptions/peer-1/"+subID, "", asPeer)
	require.Equal(t, http.StatusNoContent, del.StatusCode)

	gone := e.do(http.MethodGet,
		"/"+id+"/subscriptions/peer-1/"+subID, "", asPeer)
	require.Equal(t, http.StatusNotFound, gone.StatusCode)
}

func TestSubscriptionCallbackInbound(t *testing.T) {
	e := newEnv(t)
	id, _, _ := e.createActor("alice@example.com")
	e.addPeerTrust(id, "peer-1", "friend", "peer-secret", true)

	// Mirror of a subscription this actor holds on the peer.
	_, err := e.st.CreateSubscription(context.Background(),
		store.CreateSubscriptionParams{
			ActorID:     id,
			PeerID:      "peer-1",
			SubID:       "sub-mirror",
			Target:      "properties",
			Granularity: "high",
			Callback:    true,
		})
	require.NoError(t, err)

	env := callback.Envelope{
		ID:             "peer-1",
		Target:         "properties",
		SubscriptionID: "sub-mirror",
		Sequence:       1,
		Granularity:    "high",
		Type:           callback.TypeDiff,
		Data:           json.RawMessage(`{"profile":{"name":"Bob"}}`),
	}
	body, err := json.Marshal(env)
	require.NoError(t, err)

	resp := e.do(http.MethodPost,
		"/"+id+"/callbacks/subscriptions/peer-1/sub-mirror",
		string(body), bearer("peer-secret"), jsonBody)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Delivery against a subscription we never created is refused.
	unknown := e.do(http.MethodPost,
		"/"+id+"/callbacks/subscriptions/peer-1/sub-nope",
		string(body), bearer("peer-secret"), jsonBody)
	require.Equal(t, http.StatusNotFound, unknown.StatusCode)

	// The peer revoking our subscription drops the mirror.
	del := e.do(http.MethodDelete,
		"/"+id+"/callbacks/subscriptions/peer-1/sub-mirror", "",
		bearer("peer-secret"))
	require.Equal(t, http.StatusNoContent, del.StatusCode)
}

func TestActorCallbackHook(t *testing.T) {
	e := newEnv(t)
	id, creator, pass := e.createActor("alice@example.com")
	owner := basicAuth(creator, pass)

	e.hr.OnCallback("ping", func(
		_ context.Context, _, _ string, body json.RawMessage,
	) (json.RawMessage, error) {
		return json.RawMessage(`{"pinged":true}`), nil
	})

	resp := e.do(http.MethodPost, "/"+id+"/callbacks/ping", "", owner)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"pinged":true}`, bodyString(t, resp))

	missing := e.do(http.MethodPost, "/"+id+"/callbacks/nope", "", owner)
	require.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestMethodInvocation(t *testing.T) {
	e := newEnv(t)
	id, creator, pass := e.createActor("alice@example.com")
	owner := basicAuth(creator, pass)

	e.hr.RegisterMethod(hooks.Handler{
		Descriptor: hooks.Descriptor{
			Name:        "echo",
			Description: "returns its input",
		},
		Fn: func(
			_ context.Context, _ string, input json.RawMessage,
		) (json.RawMessage, error) {
			return input, nil
		},
	})

	list := e.do(http.MethodGet, "/"+id+"/methods", "", owner)
	require.Equal(t, http.StatusOK, list.StatusCode)
	var methods map[string][]hooks.Descriptor
	decode(t, list, &methods)
	require.Len(t, methods["methods"], 1)
	require.Equal(t, "echo", methods["methods"][0].Name)

	resp := e.do(http.MethodPost, "/"+id+"/methods/echo",
		`{"x":1}`, owner)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"x":1}`, bodyString(t, resp))

	missing := e.do(http.MethodPost, "/"+id+"/methods/nope", `{}`, owner)
	require.Equal(t, http.StatusNotFound, missing.StatusCode)

	// Viewers hold no method grant at all.
	e.addPeerTrust(id, "peer-v", "viewer", "viewer-secret", true)
	denied := e.do(http.MethodPost, "/"+id+"/methods/echo",
		`{"x":1}`, bearer("viewer-secret"))
	require.Equal(t, http.StatusForbidden, denied.StatusCode)

	hidden := e.do(http.MethodGet, "/"+id+"/methods", "",
		bearer("viewer-secret"))
	require.Equal(t, http.StatusOK, hidden.StatusCode)
	decode(t, hidden, &methods)
	require.Empty(t, methods["methods"])
}

func TestAsyncActionAccepted(t *testing.T) {
	e := newEnv(t)
	id, creator, pass := e.createActor("alice@example.com")
	owner := basicAuth(creator, pass)

	done := make(chan struct{})
	e.hr.RegisterAction(hooks.Handler{
		Descriptor: hooks.Descriptor{Name: "reindex"},
		Async:      true,
		Fn: func(
			_ context.Context, _ string, _ json.RawMessage,
		) (json.RawMessage, error) {
			close(done)
			return nil, nil
		},
	})

	resp := e.do(http.MethodPost, "/"+id+"/actions/reindex", `{}`, owner)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	<-done
}

func TestResourceDispatch(t *testing.T) {
	e := newEnv(t)
	id, creator, pass := e.createActor("alice@example.com")
	owner := basicAuth(creator, pass)

	e.hr.RegisterResource(hooks.Handler{
		Descriptor: hooks.Descriptor{Name: "files/*"},
		Fn: func(
			_ context.Context, _ string, input json.RawMessage,
		) (json.RawMessage, error) {
			return input, nil
		},
	})

	resp := e.do(http.MethodGet, "/"+id+"/resources/files/report", "", owner)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var in resourceInput
	decode(t, resp, &in)
	require.Equal(t, "files/report", in.Path)
	require.Equal(t, http.MethodGet, in.Method)

	missing := e.do(http.MethodGet, "/"+id+"/resources/other/x", "", owner)
	require.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestOAuthEndpoints(t *testing.T) {
	e := newEnv(t)

	meta := e.do(http.MethodGet, "/.well-known/oauth-authorization-server", "")
	require.Equal(t, http.StatusOK, meta.StatusCode)
	var md struct {
		Issuer        string `json:"issuer"`
		TokenEndpoint string `json:"token_endpoint"`
	}
	decode(t, meta, &md)
	require.Equal(t, "http://aw.test", md.Issuer)
	require.Equal(t, "http://aw.test/oauth/token", md.TokenEndpoint)

	reg := e.do(http.MethodPost, "/oauth/register", `{
		"client_name": "Test Client",
		"redirect_uris": ["https://client.test/cb"]
	}`, jsonBody)
	require.Equal(t, http.StatusCreated, reg.StatusCode)
	var client registrationResponse
	decode(t, reg, &client)
	require.NotEmpty(t, client.ClientID)
	require.NotEmpty(t, client.ClientSecret)

	noName := e.do(http.MethodPost, "/oauth/register", `{}`, jsonBody)
	require.Equal(t, http.StatusBadRequest, noName.StatusCode)

	form := url.Values{"grant_type": {"implicit"}}
	badGrant := e.do(http.MethodPost, "/oauth/token", form.Encode(),
		func(r *http.Request) {
			r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		})
	require.Equal(t, http.StatusBadRequest, badGrant.StatusCode)
	var oe map[string]string
	decode(t, badGrant, &oe)
	require.Equal(t, "invalid_request", oe["error"])

	noToken := e.do(http.MethodPost, "/oauth/revoke", "",
		func(r *http.Request) {
			r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		})
	require.Equal(t, http.StatusBadRequest, noToken.StatusCode)
}

func TestBotEndpoint(t *testing.T) {
	e := newEnv(t, func(cfg *config.Config) {
		cfg.BotToken = "bot-token"
	})

	wrong := e.do(http.MethodPost, "/bot", `{}`, bearer("nope"), jsonBody)
	require.Equal(t, http.StatusUnauthorized, wrong.StatusCode)

	// Authenticated but nothing registered yet.
	unhandled := e.do(http.MethodPost, "/bot", `{}`,
		bearer("bot-token"), jsonBody)
	require.Equal(t, http.StatusNotFound, unhandled.StatusCode)

	e.hr.OnAppCallback(hooks.AppCallbackBot, func(
		_ context.Context, body json.RawMessage,
	) (json.RawMessage, error) {
		return nil, nil
	})

	ok := e.do(http.MethodPost, "/bot", `{"text":"hi"}`,
		bearer("bot-token"), jsonBody)
	require.Equal(t, http.StatusNoContent, ok.StatusCode)
}

func TestBotDisabledWithoutToken(t *testing.T) {
	e := newEnv(t)
	resp := e.do(http.MethodPost, "/bot", `{}`, jsonBody)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDevTestGating(t *testing.T) {
	e := newEnv(t)
	id, creator, pass := e.createActor("alice@example.com")

	resp := e.do(http.MethodGet, "/"+id+"/devtest/ping", "",
		basicAuth(creator, pass))
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDevTestEnabled(t *testing.T) {
	e := newEnv(t, func(cfg *config.Config) { cfg.DevTest = true })
	id, creator, pass := e.createActor("alice@example.com")
	owner := basicAuth(creator, pass)

	ping := e.do(http.MethodGet, "/"+id+"/devtest/ping", "", owner)
	require.Equal(t, http.StatusOK, ping.StatusCode)
	require.JSONEq(t, `{"pong":"`+id+`"}`, bodyString(t, ping))

	put := e.do(http.MethodPut, "/"+id+"/devtest/attributes/testdata/seed",
		`{"n":1}`, owner)
	require.Equal(t, http.StatusNoContent, put.StatusCode)

	get := e.do(http.MethodGet, "/"+id+"/devtest/attributes/testdata/seed",
		"", owner)
	require.Equal(t, http.StatusOK, get.StatusCode)
	require.JSONEq(t, `{"n":1}`, bodyString(t, get))

	del := e.do(http.MethodDelete,
		"/"+id+"/devtest/attributes/testdata/seed", "", owner)
	require.Equal(t, http.StatusNoContent, del.StatusCode)

	dump := e.do(http.MethodGet, "/"+id+"/devtest/dump", "", owner)
	require.Equal(t, http.StatusOK, dump.StatusCode)
	var state map[string]json.RawMessage
	decode(t, dump, &state)
	require.Contains(t, state, "properties")
	require.Contains(t, state, "trusts")
	require.Contains(t, state, "subscriptions")
}

func TestActorDelete(t *testing.T) {
	e := newEnv(t)
	id, creator, pass := e.createActor("alice@example.com")

	resp := e.do(http.MethodDelete, "/"+id, "", basicAuth(creator, pass))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	gone := e.do(http.MethodGet, "/"+id+"/meta", "")
	require.Equal(t, http.StatusNotFound, gone.StatusCode)
}
