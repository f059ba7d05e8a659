package callback

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/actingweb/actingweb-go/internal/aw"
	"github.com/actingweb/actingweb-go/internal/config"
	"github.com/actingweb/actingweb-go/internal/hooks"
	"github.com/actingweb/actingweb-go/internal/peer"
	"github.com/actingweb/actingweb-go/internal/permissions"
	"github.com/actingweb/actingweb-go/internal/store"
	"github.com/actingweb/actingweb-go/internal/subscription"
)

type testEnv struct {
	proc    *Processor
	subs    *subscription.Manager
	store   store.Store
	cfg     *config.Config
	applied []int64
	sub     store.Subscription
}

func newTestEnv(t *testing.T, peerURL string) *testEnv {
	t.Helper()
	ctx := context.Background()

	log := slog.New(slog.DiscardHandler)
	cfg := config.Default()
	cfg.FQDN = "local.test"

	st := store.NewMemoryStore()
	registry := permissions.NewRegistry(st, log)
	require.NoError(t, registry.Init(ctx))
	eval := permissions.NewEvaluator(st, registry, log)
	hr := hooks.NewRegistry(log)
	peers := peer.NewClient(cfg, log)

	engine := subscription.NewEngine(st, cfg, eval, hr, log)
	subs := subscription.NewManager(st, cfg, eval, hr, peers, engine, log)

	env := &testEnv{
		proc:  NewProcessor(st, cfg, subs, peers, log),
		subs:  subs,
		store: st,
		cfg:   cfg,
	}
	env.proc.SetHandler(func(
		_ context.Context, _ store.Subscription, seqnr int64,
		_ json.RawMessage,
	) error {
		env.applied = append(env.applied, seqnr)
		return nil
	})

	_, err := st.CreateTrust(ctx, store.CreateTrustParams{
		ActorID:      "actor-1",
		PeerID:       "peer-1",
		BaseURI:      peerURL,
		Relationship: permissions.TypeFriend,
		Secret:       "s3cret",
		Approved:     true,
		PeerApproved: true,
		Verified:     true,
	})
	require.NoError(t, err)

	env.sub, err = st.CreateSubscription(ctx, store.CreateSubscriptionParams{
		ActorID:     "actor-1",
		PeerID:      "peer-1",
		SubID:       "sub-1",
		Target:      "properties",
		Subtarget:   "trips",
		Granularity: subscription.GranularityHigh,
		Callback:    true,
	})
	require.NoError(t, err)

	return env
}

func (e *testEnv) deliver(t *testing.T, seq int64) error {
	t.Helper()
	return e.proc.Process(
		context.Background(), "actor-1", "peer-1", "sub-1",
		Envelope{
			Target:         "properties",
			SubscriptionID: "sub-1",
			Sequence:       seq,
			Granularity:    subscription.GranularityHigh,
			Data:           json.RawMessage(`{"seq":true}`),
		},
	)
}

func TestInOrderProcessing(t *testing.T) {
	env := newTestEnv(t, "http://unused.test")

	for seq := int64(1); seq <= 3; seq++ {
		require.NoError(t, env.deliver(t, seq))
	}
	require.Equal(t, []int64{1, 2, 3}, env.applied)
}

func TestDuplicateIsAcknowledgedOnce(t *testing.T) {
	env := newTestEnv(t, "http://unused.test")

	require.NoError(t, env.deliver(t, 1))
	require.NoError(t, env.deliver(t, 2))
	require.NoError(t, env.deliver(t, 2))
	require.NoError(t, env.deliver(t, 1))

	require.Equal(t, []int64{1, 2}, env.applied)
}

func TestGapBuffersAndDrains(t *testing.T) {
	env := newTestEnv(t, "http://unused.test")

	require.NoError(t, env.deliver(t, 1))
	require.NoError(t, env.deliver(t, 3))
	require.NoError(t, env.deliver(t, 4))
	require.Equal(t, []int64{1}, env.applied)

	// The missing piece arrives; everything buffered drains in order.
	require.NoError(t, env.deliver(t, 2))
	require.Equal(t, []int64{1, 2, 3, 4}, env.applied)
}

func TestPendingQueueFullRateLimits(t *testing.T) {
	env := newTestEnv(t, "http://unused.test")
	env.cfg.MaxPendingCallbacks = 2

	require.NoError(t, env.deliver(t, 3))
	require.NoError(t, env.deliver(t, 5))

	err := env.deliver(t, 7)
	require.Equal(t, aw.KindRateLimited, aw.KindOf(err))
}

func TestGapTimeoutTriggersResync(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/properties/trips", r.URL.Path)
			w.Write([]byte(`["full","state"]`))
		},
	))
	defer srv.Close()

	env := newTestEnv(t, srv.URL)
	env.cfg.GapTimeout = 10 * time.Millisecond

	require.NoError(t, env.deliver(t, 1))
	require.NoError(t, env.deliver(t, 3))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, env.deliver(t, 5))

	// Resync replaced the cached scope and fast-forwarded the counter.
	state, err := env.subs.PeerState(context.Background(), env.sub)
	require.NoError(t, err)
	require.JSONEq(t, `["full","state"]`, string(state))

	// Stale sequence numbers are now duplicates; the next fresh one
	// applies.
	require.NoError(t, env.deliver(t, 4))
	require.NoError(t, env.deliver(t, 6))
	require.Equal(t, []int64{1, 6}, env.applied)
}

func TestResyncEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"replaced":true}`))
		},
	))
	defer srv.Close()

	env := newTestEnv(t, srv.URL)

	err := env.proc.Process(
		context.Background(), "actor-1", "peer-1", "sub-1",
		Envelope{
			SubscriptionID: "sub-1",
			Sequence:       9,
			Type:           TypeResync,
			URL:            srv.URL + "/properties/trips",
		},
	)
	require.NoError(t, err)

	state, err := env.subs.PeerState(context.Background(), env.sub)
	require.NoError(t, err)
	require.JSONEq(t, `{"replaced":true}`, string(state))

	// The counter jumped to the resync sequence.
	require.NoError(t, env.deliver(t, 9))
	require.Empty(t, env.applied)
	require.NoError(t, env.deliver(t, 10))
	require.Equal(t, []int64{10}, env.applied)
}

func TestLowGranularityFetchesURL(t *testing.T) {
	var fetched bool
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			fetched = true
			require.Equal(t, "Bearer s3cret",
				r.Header.Get("Authorization"))
			w.Write([]byte(`{"lazy":1}`))
		},
	))
	defer srv.Close()

	env := newTestEnv(t, srv.URL)

	var gotData json.RawMessage
	env.proc.SetHandler(func(
		_ context.Context, _ store.Subscription, _ int64,
		data json.RawMessage,
	) error {
		gotData = data
		return nil
	})

	err := env.proc.Process(
		context.Background(), "actor-1", "peer-1", "sub-1",
		Envelope{
			SubscriptionID: "sub-1",
			Sequence:       1,
			Granularity:    subscription.GranularityLow,
			URL:            srv.URL + "/diff/1",
		},
	)
	require.NoError(t, err)
	require.True(t, fetched)
	require.JSONEq(t, `{"lazy":1}`, string(gotData))
}

func TestUnknownSubscriptionIsNotFound(t *testing.T) {
	env := newTestEnv(t, "http://unused.test")

	err := env.proc.Process(
		context.Background(), "actor-1", "peer-1", "nope",
		Envelope{Sequence: 1},
	)
	require.Equal(t, aw.KindNotFound, aw.KindOf(err))
}
