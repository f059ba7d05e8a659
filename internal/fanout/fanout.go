// Package fanout pushes registered diffs to subscribing peers. Delivery
// is best effort: a diff stays in the store until the peer acknowledges
// it with a 2xx or polls it away, so a crashed delivery loses nothing.
package fanout

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"golang.org/x/sync/semaphore"

	"github.com/actingweb/actingweb-go/internal/aw"
	"github.com/actingweb/actingweb-go/internal/callback"
	"github.com/actingweb/actingweb-go/internal/config"
	"github.com/actingweb/actingweb-go/internal/peer"
	"github.com/actingweb/actingweb-go/internal/store"
	"github.com/actingweb/actingweb-go/internal/subscription"
	"github.com/actingweb/actingweb-go/internal/trust"
)

const (
	// breakerThreshold consecutive failures open the breaker toward a
	// peer; breakerCooldown later a single probe is let through.
	breakerThreshold = 5
	breakerCooldown  = 60 * time.Second

	// compressionTag is the option tag a peer advertises when it accepts
	// gzip-compressed callback bodies.
	compressionTag = "callbackcompression"
)

// Manager delivers diffs to peers over their callback endpoints. It
// implements subscription.Deliverer.
type Manager struct {
	store  store.Store
	cfg    *config.Config
	peers  *peer.Client
	trusts *trust.Manager

	breakers *breakerSet
	sem      *semaphore.Weighted
	wg       sync.WaitGroup

	log *slog.Logger
}

// NewManager creates the fan-out manager.
func NewManager(
	st store.Store, cfg *config.Config, peers *peer.Client,
	trusts *trust.Manager, log *slog.Logger,
) *Manager {
	return &Manager{
		store:    st,
		cfg:      cfg,
		peers:    peers,
		trusts:   trusts,
		breakers: newBreakerSet(breakerThreshold, breakerCooldown),
		sem:      semaphore.NewWeighted(int64(cfg.FanOutWorkers)),
		log:      log.With("subsystem", "fanout"),
	}
}

// Deliver pushes one diff to its subscriber. In the default mode the
// work runs on a bounded background pool detached from the request
// context; with synchronous fan-out it runs inline.
func (m *Manager) Deliver(ctx context.Context, job subscription.Outbound) {
	if m.cfg.SynchronousFanOut {
		m.deliver(ctx, job)
		return
	}

	bg := context.WithoutCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.sem.Acquire(bg, 1); err != nil {
			return
		}
		defer m.sem.Release(1)
		m.deliver(bg, job)
	}()
}

// Wait blocks until all queued deliveries have finished.
func (m *Manager) Wait() { m.wg.Wait() }

func (m *Manager) deliver(ctx context.Context, job subscription.Outbound) {
	// A granularity of none means the subscriber polls; the stored diff
	// is all there is to do.
	if job.Sub.Granularity == subscription.GranularityNone {
		return
	}

	key := peerKey(job.Sub.ActorID, job.Sub.PeerID)
	if !m.breakers.allow(key) {
		m.log.DebugContext(ctx, "Delivery skipped, breaker open",
			"actor_id", job.Sub.ActorID,
			"peer_id", job.Sub.PeerID,
			"seqnr", job.Diff.Seqnr,
		)
		return
	}

	t, err := m.trusts.Get(ctx, job.Sub.ActorID, job.Sub.PeerID)
	if err != nil {
		m.log.WarnContext(ctx, "Delivery dropped, no trust",
			"actor_id", job.Sub.ActorID,
			"peer_id", job.Sub.PeerID,
			"error", err,
		)
		return
	}

	resp, err := m.attempt(ctx, t, job).Unpack()
	if err != nil {
		m.breakers.failure(key)
		m.log.WarnContext(ctx, "Delivery failed",
			"actor_id", job.Sub.ActorID,
			"peer_id", job.Sub.PeerID,
			"seqnr", job.Diff.Seqnr,
			"error", err,
		)
		return
	}

	switch {
	case resp.OK():
		m.breakers.success(key)
		m.trusts.RecordConnection(
			ctx, job.Sub.ActorID, job.Sub.PeerID, "callback",
		)
		err := m.store.DeleteDiff(
			ctx, job.Sub.ActorID, job.Sub.SubID, job.Diff.Seqnr,
		)
		if err != nil {
			m.log.WarnContext(ctx, "Diff cleanup failed",
				"actor_id", job.Sub.ActorID,
				"sub_id", job.Sub.SubID,
				"seqnr", job.Diff.Seqnr,
				"error", err,
			)
		}

	case resp.Status == http.StatusTooManyRequests,
		resp.Status == http.StatusServiceUnavailable:
		if d := retryAfter(resp.Header); d > 0 {
			m.breakers.backoff(key, d)
		} else {
			m.breakers.failure(key)
		}

	case resp.Status == http.StatusNotFound:
		m.breakers.failure(key)
		m.handleNotFound(ctx, job)

	default:
		m.breakers.failure(key)
		m.log.WarnContext(ctx, "Delivery rejected",
			"actor_id", job.Sub.ActorID,
			"peer_id", job.Sub.PeerID,
			"seqnr", job.Diff.Seqnr,
			"status", resp.Status,
		)
	}
}

// attempt encodes and posts the callback to the peer's endpoint.
func (m *Manager) attempt(
	ctx context.Context, t store.Trust, job subscription.Outbound,
) fn.Result[peer.Response] {

	body, header, err := m.encode(t, job)
	if err != nil {
		return fn.Err[peer.Response](err)
	}

	url := t.BaseURI + "/callbacks/subscriptions/" +
		job.Sub.ActorID + "/" + job.Sub.SubID

	resp, err := m.peers.Do(ctx, peer.Request{
		Method:      http.MethodPost,
		URL:         url,
		Secret:      t.Secret,
		Body:        body,
		ContentType: "application/json",
		Header:      header,
	})
	if err != nil {
		return fn.Err[peer.Response](err)
	}
	return fn.Ok(resp)
}

// encode builds the callback envelope and compresses it when the peer
// advertises support and the body is large enough to be worth it.
func (m *Manager) encode(
	t store.Trust, job subscription.Outbound,
) ([]byte, http.Header, error) {

	header := make(http.Header)
	env := callback.Envelope{
		ID:             aw.RandomID(),
		Target:         job.Sub.Target,
		SubscriptionID: job.Sub.SubID,
		Sequence:       job.Diff.Seqnr,
		Timestamp:      job.Diff.Timestamp.UTC(),
		Granularity:    job.Sub.Granularity,
	}

	switch {
	case subscription.IsResync(job.Diff.Blob):
		// The peer refetches the full scope from the URL; no payload.
		env.Type = callback.TypeResync
		env.URL = m.scopeURL(job)

	case job.Sub.Granularity == subscription.GranularityHigh:
		if len(job.Diff.Blob) > m.cfg.MaxHighGranularityBytes {
			env.URL = m.diffURL(job)
			header.Set(aw.HeaderGranularityDowngraded, "true")
		} else {
			env.Type = callback.TypeDiff
			env.Data = job.Diff.Blob
		}

	default:
		env.URL = m.diffURL(job)
	}

	body, err := json.Marshal(env)
	if err != nil {
		return nil, nil, aw.Wrap(aw.KindFatal, err, "envelope encode failed")
	}

	if len(body) > m.cfg.CompressionThresholdBytes &&
		supportsCompression(t) {

		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(body); err != nil {
			return nil, nil, aw.Wrap(aw.KindFatal, err, "gzip failed")
		}
		if err := zw.Close(); err != nil {
			return nil, nil, aw.Wrap(aw.KindFatal, err, "gzip failed")
		}
		body = buf.Bytes()
		header.Set("Content-Encoding", "gzip")
	}
	return body, header, nil
}

// diffURL is where the peer can fetch the diff payload itself.
func (m *Manager) diffURL(job subscription.Outbound) string {
	return m.cfg.ActorRoot(job.Sub.ActorID) +
		"/subscriptions/" + job.Sub.PeerID + "/" + job.Sub.SubID +
		"/" + strconv.FormatInt(job.Diff.Seqnr, 10)
}

// scopeURL is the subscribed scope on this actor, which the peer
// refetches in full after a resync.
func (m *Manager) scopeURL(job subscription.Outbound) string {
	url := m.cfg.ActorRoot(job.Sub.ActorID) + "/" + job.Sub.Target
	if job.Sub.Subtarget != "" {
		url += "/" + job.Sub.Subtarget
	}
	if job.Sub.Resource != "" {
		url += "/" + job.Sub.Resource
	}
	return url
}

// handleNotFound distinguishes a gone peer from a revoked trust. A gone
// peer takes its trust, subscriptions, and permission state with it.
func (m *Manager) handleNotFound(
	ctx context.Context, job subscription.Outbound,
) {
	err := m.trusts.VerifyPeerAlive(ctx, job.Sub.ActorID, job.Sub.PeerID)
	if err == nil || aw.KindOf(err) != aw.KindPeerGone {
		return
	}

	m.log.InfoContext(ctx, "Peer gone, removing trust",
		"actor_id", job.Sub.ActorID, "peer_id", job.Sub.PeerID)

	err = m.trusts.Delete(ctx, job.Sub.ActorID, job.Sub.PeerID, false)
	if err != nil {
		m.log.WarnContext(ctx, "Gone peer cleanup failed",
			"actor_id", job.Sub.ActorID,
			"peer_id", job.Sub.PeerID,
			"error", err,
		)
	}
}

// retryAfter parses a Retry-After header, either delta-seconds or an
// HTTP date. Zero means absent or unparseable.
func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func supportsCompression(t store.Trust) bool {
	for _, tag := range strings.Split(t.AwSupported, ",") {
		if strings.TrimSpace(tag) == compressionTag {
			return true
		}
	}
	return false
}

func peerKey(actorID, peerID string) string {
	return actorID + "\x00" + peerID
}
