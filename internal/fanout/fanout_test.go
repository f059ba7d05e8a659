package fanout

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/actingweb/actingweb-go/internal/aw"
	"github.com/actingweb/actingweb-go/internal/callback"
	"github.com/actingweb/actingweb-go/internal/config"
	"github.com/actingweb/actingweb-go/internal/hooks"
	"github.com/actingweb/actingweb-go/internal/peer"
	"github.com/actingweb/actingweb-go/internal/permissions"
	"github.com/actingweb/actingweb-go/internal/store"
	"github.com/actingweb/actingweb-go/internal/subscription"
	"github.com/actingweb/actingweb-go/internal/trust"
)

type testEnv struct {
	fan    *Manager
	trusts *trust.Manager
	store  store.Store
	cfg    *config.Config
}

func newTestEnv(t *testing.T, peerURL, awSupported string) *testEnv {
	t.Helper()
	ctx := context.Background()

	log := slog.New(slog.DiscardHandler)
	cfg := config.Default()
	cfg.FQDN = "local.test"
	// Inline delivery keeps the tests deterministic.
	cfg.SynchronousFanOut = true

	st := store.NewMemoryStore()
	registry := permissions.NewRegistry(st, log)
	require.NoError(t, registry.Init(ctx))
	eval := permissions.NewEvaluator(st, registry, log)
	hr := hooks.NewRegistry(log)
	peers := peer.NewClient(cfg, log)

	trusts := trust.NewManager(st, cfg, hr, eval, registry, peers, log)

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

	if awSupported != "" {
		require.NoError(t, st.UpdateTrustCapabilities(
			ctx, "actor-1", "peer-1", awSupported, "1.0", time.Now(),
		))
	}

	return &testEnv{
		fan:    NewManager(st, cfg, peers, trusts, log),
		trusts: trusts,
		store:  st,
		cfg:    cfg,
	}
}

// job stores a diff and returns the matching delivery job.
func (e *testEnv) job(
	t *testing.T, granularity string, seq int64, blob json.RawMessage,
) subscription.Outbound {
	t.Helper()
	ctx := context.Background()

	sub, err := e.store.GetSubscription(ctx, "actor-1", "peer-1", "sub-1")
	if err != nil {
		sub, err = e.store.CreateSubscription(
			ctx, store.CreateSubscriptionParams{
				ActorID:     "actor-1",
				PeerID:      "peer-1",
				SubID:       "sub-1",
				Target:      "properties",
				Subtarget:   "trips",
				Granularity: granularity,
			},
		)
		require.NoError(t, err)
	}
	sub.Granularity = granularity

	require.NoError(t, e.store.CreateDiff(ctx, store.CreateDiffParams{
		ActorID: "actor-1",
		SubID:   "sub-1",
		Seqnr:   seq,
		PeerID:  "peer-1",
		Blob:    blob,
	}))
	diff, err := e.store.GetDiff(ctx, "actor-1", "sub-1", seq)
	require.NoError(t, err)

	return subscription.Outbound{Sub: sub, Diff: diff}
}

func (e *testEnv) diffCount(t *testing.T) int64 {
	t.Helper()
	n, err := e.store.CountDiffs(context.Background(), "actor-1", "sub-1")
	require.NoError(t, err)
	return n
}

func TestDeliverHighGranularity(t *testing.T) {
	var got callback.Envelope
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path
			auth = r.Header.Get("Authorization")
			require.NoError(t,
				json.NewDecoder(r.Body).Decode(&got))
		},
	))
	defer srv.Close()

	env := newTestEnv(t, srv.URL, "")
	job := env.job(t, subscription.GranularityHigh, 1,
		json.RawMessage(`{"name":"trips","value":["Oslo"]}`))

	env.fan.Deliver(context.Background(), job)

	require.Equal(t, "/callbacks/subscriptions/actor-1/sub-1", path)
	require.Equal(t, "Bearer s3cret", auth)
	require.Equal(t, callback.TypeDiff, got.Type)
	require.Equal(t, "properties", got.Target)
	require.Equal(t, "sub-1", got.SubscriptionID)
	require.EqualValues(t, 1, got.Sequence)
	require.JSONEq(t,
		`{"name":"trips","value":["Oslo"]}`, string(got.Data))
	require.NotEmpty(t, got.ID)
	require.False(t, got.Timestamp.IsZero())

	// Acknowledged diffs are cleared.
	require.EqualValues(t, 0, env.diffCount(t))
}

func TestLowGranularitySendsURLOnly(t *testing.T) {
	var got callback.Envelope
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t,
				json.NewDecoder(r.Body).Decode(&got))
		},
	))
	defer srv.Close()

	env := newTestEnv(t, srv.URL, "")
	job := env.job(t, subscription.GranularityLow, 7,
		json.RawMessage(`{"big":"payload"}`))

	env.fan.Deliver(context.Background(), job)

	require.Empty(t, got.Data)
	require.Equal(t,
		env.cfg.ActorRoot("actor-1")+"/subscriptions/peer-1/sub-1/7",
		got.URL)
}

func TestFailureRetainsDiff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
	))
	defer srv.Close()

	env := newTestEnv(t, srv.URL, "")
	job := env.job(t, subscription.GranularityHigh, 1,
		json.RawMessage(`1`))

	env.fan.Deliver(context.Background(), job)
	require.EqualValues(t, 1, env.diffCount(t))
}

func TestGranularityNoneNeverCalls(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(
		func(http.ResponseWriter, *http.Request) { calls++ },
	))
	defer srv.Close()

	env := newTestEnv(t, srv.URL, "")
	job := env.job(t, subscription.GranularityNone, 1,
		json.RawMessage(`1`))

	env.fan.Deliver(context.Background(), job)
	require.Zero(t, calls)
	require.EqualValues(t, 1, env.diffCount(t))
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			calls++
			w.WriteHeader(http.StatusBadGateway)
		},
	))
	defer srv.Close()

	env := newTestEnv(t, srv.URL, "")
	for seq := int64(1); seq <= 8; seq++ {
		job := env.job(t, subscription.GranularityHigh, seq,
			json.RawMessage(`1`))
		env.fan.Deliver(context.Background(), job)
	}

	// Five consecutive failures open the breaker; the rest are skipped.
	require.Equal(t, breakerThreshold, calls)

	// After the cooldown a single probe goes through and a success
	// closes the breaker again.
	env.fan.breakers.now = func() time.Time {
		return time.Now().Add(breakerCooldown + time.Second)
	}
	srv.Config.Handler = http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) { calls++ },
	)

	job := env.job(t, subscription.GranularityHigh, 9,
		json.RawMessage(`1`))
	env.fan.Deliver(context.Background(), job)
	require.Equal(t, breakerThreshold+1, calls)
	require.EqualValues(t, 8, env.diffCount(t))
}

func TestRetryAfterBacksOffWithoutTripping(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			calls++
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
		},
	))
	defer srv.Close()

	env := newTestEnv(t, srv.URL, "")
	ctx := context.Background()

	env.fan.Deliver(ctx, env.job(t, subscription.GranularityHigh, 1,
		json.RawMessage(`1`)))
	env.fan.Deliver(ctx, env.job(t, subscription.GranularityHigh, 2,
		json.RawMessage(`2`)))
	require.Equal(t, 1, calls)

	// Once the backoff elapses delivery resumes immediately; a rate
	// limit is not a breaker failure.
	env.fan.breakers.now = func() time.Time {
		return time.Now().Add(2 * time.Minute)
	}
	srv.Config.Handler = http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) { calls++ },
	)
	env.fan.Deliver(ctx, env.job(t, subscription.GranularityHigh, 3,
		json.RawMessage(`3`)))
	require.Equal(t, 2, calls)
}

func TestOversizedPayloadDowngrades(t *testing.T) {
	var got callback.Envelope
	var downgraded string
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			downgraded = r.Header.Get(aw.HeaderGranularityDowngraded)
			require.NoError(t,
				json.NewDecoder(r.Body).Decode(&got))
		},
	))
	defer srv.Close()

	env := newTestEnv(t, srv.URL, "")
	env.cfg.MaxHighGranularityBytes = 8

	job := env.job(t, subscription.GranularityHigh, 1,
		json.RawMessage(`{"way":"too large for the wire"}`))
	env.fan.Deliver(context.Background(), job)

	require.Equal(t, "true", downgraded)
	require.Empty(t, got.Data)
	require.NotEmpty(t, got.URL)
}

func TestCompressionWhenAdvertised(t *testing.T) {
	var encoding string
	var got callback.Envelope
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			encoding = r.Header.Get("Content-Encoding")
			zr, err := gzip.NewReader(r.Body)
			require.NoError(t, err)
			raw, err := io.ReadAll(zr)
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(raw, &got))
		},
	))
	defer srv.Close()

	env := newTestEnv(t, srv.URL, "www,oauth,callbackcompression")
	env.cfg.CompressionThresholdBytes = 16

	job := env.job(t, subscription.GranularityHigh, 1,
		json.RawMessage(`{"enough":"bytes to cross the threshold"}`))
	env.fan.Deliver(context.Background(), job)

	require.Equal(t, "gzip", encoding)
	require.EqualValues(t, 1, got.Sequence)
}

func TestResyncCallback(t *testing.T) {
	var got callback.Envelope
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t,
				json.NewDecoder(r.Body).Decode(&got))
		},
	))
	defer srv.Close()

	env := newTestEnv(t, srv.URL, "")
	job := env.job(t, subscription.GranularityHigh, 4,
		subscription.ResyncBlob)
	env.fan.Deliver(context.Background(), job)

	require.Equal(t, callback.TypeResync, got.Type)
	require.Empty(t, got.Data)
	require.EqualValues(t, 4, got.Sequence)
	require.Equal(t,
		"https://local.test/actor-1/properties/trips", got.URL)
}

func TestGonePeerRemovesTrust(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		},
	))
	defer srv.Close()

	env := newTestEnv(t, srv.URL, "")
	job := env.job(t, subscription.GranularityHigh, 1,
		json.RawMessage(`1`))
	env.fan.Deliver(context.Background(), job)

	_, err := env.store.GetTrust(context.Background(), "actor-1", "peer-1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRevokedPeerKeepsTrust(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/meta" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.WriteHeader(http.StatusNotFound)
		},
	))
	defer srv.Close()

	env := newTestEnv(t, srv.URL, "")
	job := env.job(t, subscription.GranularityHigh, 1,
		json.RawMessage(`1`))
	env.fan.Deliver(context.Background(), job)

	_, err := env.store.GetTrust(context.Background(), "actor-1", "peer-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, env.diffCount(t))
}
