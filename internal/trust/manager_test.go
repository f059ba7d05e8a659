package trust

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/actingweb/actingweb-go/internal/aw"
	"github.com/actingweb/actingweb-go/internal/config"
	"github.com/actingweb/actingweb-go/internal/hooks"
	"github.com/actingweb/actingweb-go/internal/peer"
	"github.com/actingweb/actingweb-go/internal/permissions"
	"github.com/actingweb/actingweb-go/internal/store"
)

type testEnv struct {
	mgr   *Manager
	store store.Store
	hooks *hooks.Registry
	eval  *permissions.Evaluator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log := slog.New(slog.DiscardHandler)
	cfg := config.Default()
	cfg.FQDN = "local.test"

	st := store.NewMemoryStore()
	registry := permissions.NewRegistry(st, log)
	require.NoError(t, registry.Init(context.Background()))
	eval := permissions.NewEvaluator(st, registry, log)
	hr := hooks.NewRegistry(log)

	mgr := NewManager(
		st, cfg, hr, eval, registry, peer.NewClient(cfg, log), log,
	)
	return &testEnv{mgr: mgr, store: st, hooks: hr, eval: eval}
}

func TestStateMachine(t *testing.T) {
	tr := store.Trust{ActorID: "a", PeerID: "p", Verified: true}
	require.Equal(t, StateUnverified, StateOf(tr))

	tr.PeerApproved = true
	require.Equal(t, StateRequested, StateOf(tr))

	next, err := Apply(tr, EventLocalApprove)
	require.NoError(t, err)
	require.Equal(t, StateActive, StateOf(next))

	next, err = Apply(next, EventPeerRevoke)
	require.NoError(t, err)
	require.Equal(t, StatePendingPeer, StateOf(next))

	_, err = Apply(next, EventPeerRevoke)
	require.Equal(t, aw.KindStateMachineViolation, aw.KindOf(err))

	_, err = Apply(store.Trust{}, EventLocalApprove)
	require.Equal(t, aw.KindStateMachineViolation, aw.KindOf(err))
}

func TestCreateReciprocalTrust(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var gotReq PeerRequest
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/trust/friend", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(View{
				ID:   "peer-actor",
				Type: PeerType,
			})
		},
	))
	defer srv.Close()

	tr, err := env.mgr.CreateReciprocalTrust(
		ctx, "actor-1", srv.URL, "friend", "test link",
	)
	require.NoError(t, err)
	require.Equal(t, "peer-actor", tr.PeerID)
	require.True(t, tr.Approved)
	require.False(t, tr.PeerApproved)
	require.True(t, tr.Verified)
	require.Equal(t, StatePendingPeer, StateOf(tr))

	require.Equal(t, "actor-1", gotReq.ID)
	require.NotEmpty(t, gotReq.Secret)
	require.Equal(t, gotReq.Secret, tr.Secret)

	// The secret authenticates the peer from now on.
	bySecret, err := env.store.GetTrustBySecret(ctx, tr.Secret)
	require.NoError(t, err)
	require.Equal(t, "peer-actor", bySecret.PeerID)
}

func TestCreateReciprocalTrustRejectionIsNotRetried(t *testing.T) {
	env := newTestEnv(t)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusForbidden)
		},
	))
	defer srv.Close()

	_, err := env.mgr.CreateReciprocalTrust(
		context.Background(), "actor-1", srv.URL, "friend", "",
	)
	require.Error(t, err)
	require.EqualValues(t, 1, calls.Load())
}

func TestCreateReciprocalTrustUnknownType(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.mgr.CreateReciprocalTrust(
		context.Background(), "actor-1", "http://unused.test", "bogus", "",
	)
	require.Equal(t, aw.KindInvalidRequest, aw.KindOf(err))
}

func TestCreateVerifiedTrustAndVeto(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	veto := errors.New("blocked")
	env.hooks.OnLifecycle(hooks.EventTrustRequestReceived, func(
		_ context.Context, _ string, payload map[string]any,
	) error {
		if payload["peerid"] == "evil" {
			return veto
		}
		return nil
	})

	tr, err := env.mgr.CreateVerifiedTrust(ctx, CreateVerifiedParams{
		ActorID:      "actor-1",
		PeerID:       "peer-1",
		BaseURI:      "http://peer.test/peer-1",
		Relationship: "friend",
		Secret:       "s3cret",
	})
	require.NoError(t, err)
	require.Equal(t, StateRequested, StateOf(tr))
	require.Equal(t, "actingweb", tr.EstablishedVia)

	_, err = env.mgr.CreateVerifiedTrust(ctx, CreateVerifiedParams{
		ActorID:      "actor-1",
		PeerID:       "evil",
		Relationship: "friend",
		Secret:       "x",
	})
	require.Equal(t, aw.KindForbidden, aw.KindOf(err))

	// The vetoed trust was never persisted.
	_, err = env.store.GetTrust(ctx, "actor-1", "evil")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestApproveNotifiesPeerAndFiresHooks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var gotPut atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPut {
				require.Equal(t,
					"/trust/friend/actor-1", r.URL.Path)
				require.Equal(t,
					"Bearer s3cret", r.Header.Get("Authorization"))
				gotPut.Store(true)
			}
			w.WriteHeader(http.StatusNoContent)
		},
	))
	defer srv.Close()

	var fullyApproved atomic.Bool
	env.hooks.OnLifecycle(hooks.EventTrustFullyApprovedLocal, func(
		_ context.Context, _ string, _ map[string]any,
	) error {
		fullyApproved.Store(true)
		return nil
	})

	_, err := env.mgr.CreateVerifiedTrust(ctx, CreateVerifiedParams{
		ActorID:      "actor-1",
		PeerID:       "peer-1",
		BaseURI:      srv.URL,
		Relationship: "friend",
		Secret:       "s3cret",
	})
	require.NoError(t, err)

	require.NoError(t, env.mgr.Approve(ctx, "actor-1", "peer-1"))
	require.True(t, gotPut.Load())
	require.True(t, fullyApproved.Load())

	tr, err := env.mgr.Get(ctx, "actor-1", "peer-1")
	require.NoError(t, err)
	require.Equal(t, StateActive, StateOf(tr))

	// Approving again is a no-op.
	require.NoError(t, env.mgr.Approve(ctx, "actor-1", "peer-1"))
}

func TestHandlePeerApproval(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				json.NewEncoder(w).Encode(View{ID: "peer-1"})
				return
			}
			w.WriteHeader(http.StatusNoContent)
		},
	))
	defer srv.Close()

	var remote atomic.Bool
	env.hooks.OnLifecycle(hooks.EventTrustFullyApprovedRemote, func(
		_ context.Context, _ string, _ map[string]any,
	) error {
		remote.Store(true)
		return nil
	})

	_, err := env.mgr.CreateReciprocalTrust(
		ctx, "actor-1", srv.URL, "friend", "",
	)
	require.NoError(t, err)

	require.NoError(t, env.mgr.HandlePeerApproval(
		ctx, "actor-1", "peer-1", true,
	))
	require.True(t, remote.Load())

	tr, err := env.mgr.Get(ctx, "actor-1", "peer-1")
	require.NoError(t, err)
	require.Equal(t, StateActive, StateOf(tr))
}

// fakeRevoker and fakeCanceler record teardown calls.
type fakeRevoker struct{ clientID string }

func (f *fakeRevoker) RevokeClientTokens(_ context.Context, clientID string) error {
	f.clientID = clientID
	return nil
}

type fakeCanceler struct{ actorID, peerID string }

func (f *fakeCanceler) CancelPeer(_ context.Context, actorID, peerID string) error {
	f.actorID, f.peerID = actorID, peerID
	return nil
}

func TestDeleteTearsEverythingDown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var gotDelete atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodDelete {
				gotDelete.Store(true)
			}
			w.WriteHeader(http.StatusNoContent)
		},
	))
	defer srv.Close()

	revoker := &fakeRevoker{}
	canceler := &fakeCanceler{}
	env.mgr.SetTokenRevoker(revoker)
	env.mgr.SetSubscriptionCanceler(canceler)

	var deleted atomic.Bool
	env.hooks.OnLifecycle(hooks.EventTrustDeleted, func(
		_ context.Context, _ string, _ map[string]any,
	) error {
		deleted.Store(true)
		return nil
	})

	_, err := env.store.CreateTrust(ctx, store.CreateTrustParams{
		ActorID:       "actor-1",
		PeerID:        "peer-1",
		BaseURI:       srv.URL,
		Relationship:  permissions.TypeMCPClient,
		Secret:        "s3cret",
		Approved:      true,
		PeerApproved:  true,
		Verified:      true,
		OAuthClientID: "client-77",
	})
	require.NoError(t, err)

	require.NoError(t, env.eval.SetOverride(
		ctx, "actor-1", "peer-1", permissions.PermissionSet{
			Properties: permissions.CategoryRule{
				Patterns: []string{"extra_*"},
			},
		},
	))

	require.NoError(t, env.mgr.Delete(ctx, "actor-1", "peer-1", true))

	require.True(t, gotDelete.Load())
	require.True(t, deleted.Load())
	require.Equal(t, "client-77", revoker.clientID)
	require.Equal(t, "actor-1", canceler.actorID)
	require.Equal(t, "peer-1", canceler.peerID)

	_, err = env.mgr.Get(ctx, "actor-1", "peer-1")
	require.Equal(t, aw.KindNotFound, aw.KindOf(err))

	_, err = env.eval.GetOverride(ctx, "actor-1", "peer-1")
	require.ErrorIs(t, err, permissions.ErrNoOverride)
}

func TestFetchCapabilitiesCaches(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			switch r.URL.Path {
			case "/meta/actingweb/supported":
				w.Write([]byte("trust,subscriptions"))
			case "/meta/actingweb/version":
				w.Write([]byte("1.4"))
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		},
	))
	defer srv.Close()

	_, err := env.store.CreateTrust(ctx, store.CreateTrustParams{
		ActorID:      "actor-1",
		PeerID:       "peer-1",
		BaseURI:      srv.URL,
		Relationship: "friend",
		Secret:       "s",
		Verified:     true,
	})
	require.NoError(t, err)

	caps, err := env.mgr.FetchCapabilities(ctx, "actor-1", "peer-1")
	require.NoError(t, err)
	require.Equal(t, "trust,subscriptions", caps.Supported)
	require.Equal(t, "1.4", caps.Version)

	_, err = env.mgr.FetchCapabilities(ctx, "actor-1", "peer-1")
	require.NoError(t, err)
	require.EqualValues(t, 2, calls.Load())

	tr, err := env.mgr.Get(ctx, "actor-1", "peer-1")
	require.NoError(t, err)
	require.Equal(t, "trust,subscriptions", tr.AwSupported)
}

func TestVerifyPeerAlive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		},
	))
	defer srv.Close()

	_, err := env.store.CreateTrust(ctx, store.CreateTrustParams{
		ActorID:      "actor-1",
		PeerID:       "peer-1",
		BaseURI:      srv.URL,
		Relationship: "friend",
		Secret:       "s",
		Verified:     true,
	})
	require.NoError(t, err)

	err = env.mgr.VerifyPeerAlive(ctx, "actor-1", "peer-1")
	require.Equal(t, aw.KindPeerGone, aw.KindOf(err))
}
