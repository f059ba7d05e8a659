package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/actingweb/actingweb-go/internal/aw"
	"github.com/actingweb/actingweb-go/internal/config"
	"github.com/actingweb/actingweb-go/internal/hooks"
	"github.com/actingweb/actingweb-go/internal/peer"
	"github.com/actingweb/actingweb-go/internal/permissions"
	"github.com/actingweb/actingweb-go/internal/store"
)

// PeerCacheBucket holds the locally cached state of resources we
// subscribe to on peers. Written on baseline fetch and resync, read by
// the application.
const PeerCacheBucket = "_peer_cache"

// Manager handles the subscription lifecycle: inbound registrations,
// outbound subscriptions toward peers, suspension, and teardown.
type Manager struct {
	store  store.Store
	cfg    *config.Config
	eval   *permissions.Evaluator
	hooks  *hooks.Registry
	peers  *peer.Client
	engine *Engine
	log    *slog.Logger
}

// NewManager creates the subscription manager over the engine.
func NewManager(
	st store.Store, cfg *config.Config, eval *permissions.Evaluator,
	hr *hooks.Registry, peers *peer.Client, engine *Engine,
	log *slog.Logger,
) *Manager {
	return &Manager{
		store:  st,
		cfg:    cfg,
		eval:   eval,
		hooks:  hr,
		peers:  peers,
		engine: engine,
		log:    log.With("subsystem", "subscription"),
	}
}

// CreateParams describes a requested subscription scope.
type CreateParams struct {
	Target      string
	Subtarget   string
	Resource    string
	Granularity string
}

func (p *CreateParams) normalize() error {
	if p.Target == "" {
		return aw.Errorf(aw.KindInvalidRequest, "subscription target required")
	}
	switch p.Granularity {
	case "":
		p.Granularity = GranularityHigh
	case GranularityHigh, GranularityLow, GranularityNone:
	default:
		return aw.Errorf(aw.KindInvalidRequest,
			"unknown granularity %s", p.Granularity)
	}
	return nil
}

// CreateInbound registers a peer's subscription on this actor after
// checking the trust grants subscribe on the scope.
func (m *Manager) CreateInbound(
	ctx context.Context, actorID, peerID string, params CreateParams,
) (store.Subscription, error) {

	if err := params.normalize(); err != nil {
		return store.Subscription{}, err
	}

	if params.Target == "properties" {
		scope := params.Subtarget
		if scope == "" {
			scope = "*"
		}
		d, err := m.eval.Evaluate(
			ctx, actorID, peerID,
			permissions.CategoryProperties, scope,
			permissions.OpSubscribe,
		)
		if err != nil {
			return store.Subscription{}, err
		}
		if d != permissions.DecisionAllowed {
			return store.Subscription{}, aw.Errorf(aw.KindForbidden,
				"trust does not grant subscribe on %s/%s",
				params.Target, params.Subtarget)
		}
	}

	sub, err := m.store.CreateSubscription(ctx, store.CreateSubscriptionParams{
		ActorID:     actorID,
		PeerID:      peerID,
		SubID:       aw.RandomID(),
		Target:      params.Target,
		Subtarget:   params.Subtarget,
		Resource:    params.Resource,
		Granularity: params.Granularity,
		Callback:    false,
	})
	if err != nil {
		return store.Subscription{}, aw.Wrap(
			aw.KindFatal, err, "subscription create failed",
		)
	}

	m.log.InfoContext(ctx, "Subscription registered",
		"actor_id", actorID,
		"peer_id", peerID,
		"sub_id", sub.SubID,
		"target", sub.Target,
		"subtarget", sub.Subtarget,
	)
	return sub, nil
}

// subscribeBody is the wire form of an outbound subscription POST.
type subscribeBody struct {
	Target      string `json:"target"`
	Subtarget   string `json:"subtarget,omitempty"`
	Resource    string `json:"resource,omitempty"`
	Granularity string `json:"granularity"`
}

// subscribeReply is the peer's response to a subscription POST.
type subscribeReply struct {
	SubscriptionID string `json:"subscriptionid"`
}

// SubscribeToPeer creates a subscription on a remote peer, mirrors it
// locally, and fetches the subscribed resource once to establish the
// initial cached state. Peers may hold data from long before the
// subscription existed; without the baseline the local cache would only
// ever see future diffs.
func (m *Manager) SubscribeToPeer(
	ctx context.Context, actorID, peerID string, params CreateParams,
) (store.Subscription, error) {

	if err := params.normalize(); err != nil {
		return store.Subscription{}, err
	}

	t, err := m.store.GetTrust(ctx, actorID, peerID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Subscription{}, aw.Errorf(aw.KindNotFound,
			"no trust with peer %s", peerID)
	}
	if err != nil {
		return store.Subscription{}, aw.Wrap(aw.KindFatal, err,
			"trust load failed")
	}

	body, _ := json.Marshal(subscribeBody{
		Target:      params.Target,
		Subtarget:   params.Subtarget,
		Resource:    params.Resource,
		Granularity: params.Granularity,
	})
	resp, err := m.peers.Do(ctx, peer.Request{
		Method: http.MethodPost,
		URL:    t.BaseURI + "/subscriptions/" + actorID,
		Secret: t.Secret,
		Body:   body,
	})
	if err != nil {
		return store.Subscription{}, err
	}
	if !resp.OK() {
		return store.Subscription{}, aw.Errorf(aw.KindPeerUnavailable,
			"peer rejected subscription with %d", resp.Status)
	}

	subID := parseSubID(resp)
	if subID == "" {
		return store.Subscription{}, aw.Errorf(aw.KindInvalidRequest,
			"peer response carries no subscription id")
	}

	sub, err := m.store.CreateSubscription(ctx, store.CreateSubscriptionParams{
		ActorID:     actorID,
		PeerID:      peerID,
		SubID:       subID,
		Target:      params.Target,
		Subtarget:   params.Subtarget,
		Resource:    params.Resource,
		Granularity: params.Granularity,
		Callback:    true,
	})
	if err != nil {
		return store.Subscription{}, aw.Wrap(aw.KindFatal, err,
			"subscription mirror failed")
	}

	if err := m.fetchBaseline(ctx, t, sub); err != nil {
		m.log.WarnContext(ctx, "Baseline fetch failed",
			"actor_id", actorID,
			"peer_id", peerID,
			"sub_id", subID,
			"error", err,
		)
	}

	return sub, nil
}

// parseSubID extracts the subscription id from the body or the Location
// header.
func parseSubID(resp peer.Response) string {
	var reply subscribeReply
	if err := json.Unmarshal(resp.Body, &reply); err == nil &&
		reply.SubscriptionID != "" {

		return reply.SubscriptionID
	}

	loc := resp.Header.Get("Location")
	if loc == "" {
		return ""
	}
	parts := strings.Split(strings.TrimRight(loc, "/"), "/")
	return parts[len(parts)-1]
}

// fetchBaseline GETs the subscribed resource and caches it.
func (m *Manager) fetchBaseline(
	ctx context.Context, t store.Trust, sub store.Subscription,
) error {

	resp, err := m.peers.Get(ctx, scopeURL(t.BaseURI, sub), t.Secret)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return aw.Errorf(aw.KindPeerUnavailable,
			"baseline fetch returned %d", resp.Status)
	}

	return m.CachePeerState(ctx, sub, json.RawMessage(resp.Body))
}

// CachePeerState replaces the cached remote state for a subscription's
// scope. Also called by the callback processor on resync.
func (m *Manager) CachePeerState(
	ctx context.Context, sub store.Subscription, state json.RawMessage,
) error {

	_, err := m.store.SetAttribute(ctx, store.SetAttributeParams{
		ActorID: sub.ActorID,
		Bucket:  PeerCacheBucket,
		Name:    cacheKey(sub.PeerID, sub.Target, sub.Subtarget),
		Value:   state,
	})
	if err != nil {
		return aw.Wrap(aw.KindFatal, err, "peer cache write failed")
	}
	return nil
}

// PeerState reads the cached remote state for a subscription's scope.
func (m *Manager) PeerState(
	ctx context.Context, sub store.Subscription,
) (json.RawMessage, error) {

	attr, err := m.store.GetAttribute(
		ctx, sub.ActorID, PeerCacheBucket,
		cacheKey(sub.PeerID, sub.Target, sub.Subtarget),
	)
	if errors.Is(err, store.ErrNotFound) {
		return nil, aw.Errorf(aw.KindNotFound, "no cached peer state")
	}
	if err != nil {
		return nil, aw.Wrap(aw.KindFatal, err, "peer cache read failed")
	}
	return attr.Value, nil
}

// Delete removes a subscription. For outbound mirrors the peer is told
// best effort, and the peer cache is dropped with the last mirror.
func (m *Manager) Delete(
	ctx context.Context, actorID, peerID, subID string, notifyPeer bool,
) error {

	sub, err := m.store.GetSubscription(ctx, actorID, peerID, subID)
	if errors.Is(err, store.ErrNotFound) {
		return aw.Errorf(aw.KindNotFound, "no subscription %s", subID)
	}
	if err != nil {
		return aw.Wrap(aw.KindFatal, err, "subscription load failed")
	}

	if sub.Callback && notifyPeer {
		t, err := m.store.GetTrust(ctx, actorID, peerID)
		if err == nil {
			url := t.BaseURI + "/subscriptions/" + actorID + "/" + subID
			if _, err := m.peers.Delete(ctx, url, t.Secret); err != nil {
				m.log.WarnContext(ctx, "Peer unsubscribe failed",
					"actor_id", actorID,
					"peer_id", peerID,
					"sub_id", subID,
					"error", err,
				)
			}
		}
	}

	if err := m.store.DeleteSubscription(ctx, actorID, peerID, subID); err != nil {
		return aw.Wrap(aw.KindFatal, err, "subscription delete failed")
	}

	if sub.Callback {
		m.cleanPeerCache(ctx, actorID, peerID)
	}

	m.emitDeleted(ctx, sub)
	return nil
}

// CancelPeer removes every subscription between an actor and a peer in
// both directions and drops the cached peer state. Implements the trust
// manager's teardown hook.
func (m *Manager) CancelPeer(ctx context.Context, actorID, peerID string) error {
	subs, err := m.store.ListSubscriptionsByPeer(ctx, actorID, peerID)
	if err != nil {
		return aw.Wrap(aw.KindFatal, err, "subscription list failed")
	}

	for _, sub := range subs {
		err := m.store.DeleteSubscription(
			ctx, actorID, peerID, sub.SubID,
		)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return aw.Wrap(aw.KindFatal, err, "subscription delete failed")
		}
		m.emitDeleted(ctx, sub)
	}

	m.dropPeerCache(ctx, actorID, peerID)
	return nil
}

// cleanPeerCache drops cached peer state once no outbound subscription
// to the peer remains.
func (m *Manager) cleanPeerCache(ctx context.Context, actorID, peerID string) {
	subs, err := m.store.ListSubscriptionsByPeer(ctx, actorID, peerID)
	if err != nil {
		return
	}
	for _, s := range subs {
		if s.Callback {
			return
		}
	}
	m.dropPeerCache(ctx, actorID, peerID)
}

func (m *Manager) dropPeerCache(ctx context.Context, actorID, peerID string) {
	attrs, err := m.store.ListBucket(ctx, actorID, PeerCacheBucket)
	if err != nil {
		return
	}
	for _, attr := range attrs {
		if !strings.HasPrefix(attr.Name, peerID+":") {
			continue
		}
		err := m.store.DeleteAttribute(
			ctx, actorID, PeerCacheBucket, attr.Name,
		)
		if err != nil {
			m.log.WarnContext(ctx, "Peer cache cleanup failed",
				"actor_id", actorID, "peer_id", peerID, "error", err)
		}
	}
}

// Suspend pauses diff registration for a scope.
func (m *Manager) Suspend(
	ctx context.Context, actorID, target, subtarget string,
) error {

	if err := m.store.SuspendScope(ctx, actorID, target, subtarget); err != nil {
		return aw.Wrap(aw.KindFatal, err, "suspend failed")
	}
	return nil
}

// Resume lifts a suspension and emits one resync diff per affected
// subscription so subscribers know to refetch the scope.
func (m *Manager) Resume(
	ctx context.Context, actorID, target, subtarget string,
) error {

	if err := m.store.ResumeScope(ctx, actorID, target, subtarget); err != nil {
		return aw.Wrap(aw.KindFatal, err, "resume failed")
	}

	subs, err := m.store.ListSubscriptions(ctx, actorID)
	if err != nil {
		return aw.Wrap(aw.KindFatal, err, "subscription list failed")
	}

	for _, sub := range subs {
		if sub.Callback || !matches(sub, target, subtarget, "") {
			continue
		}
		if err := m.engine.registerFor(ctx, sub, ResyncBlob); err != nil {
			m.log.WarnContext(ctx, "Resync diff failed",
				"actor_id", actorID,
				"sub_id", sub.SubID,
				"error", err,
			)
		}
	}
	return nil
}

func (m *Manager) emitDeleted(ctx context.Context, sub store.Subscription) {
	err := m.hooks.EmitLifecycle(
		ctx, hooks.EventSubscriptionDeleted, sub.ActorID,
		map[string]any{
			"peerid":         sub.PeerID,
			"subscriptionid": sub.SubID,
			"target":         sub.Target,
		},
	)
	if err != nil {
		m.log.WarnContext(ctx, "subscription_deleted hook failed",
			"actor_id", sub.ActorID, "error", err)
	}
}

// scopeURL builds the peer URL of a subscribed scope.
func scopeURL(baseURI string, sub store.Subscription) string {
	url := baseURI + "/" + sub.Target
	if sub.Subtarget != "" {
		url += "/" + sub.Subtarget
	}
	if sub.Resource != "" {
		url += "/" + sub.Resource
	}
	return url
}

func cacheKey(peerID, target, subtarget string) string {
	key := peerID + ":" + target
	if subtarget != "" {
		key += ":" + subtarget
	}
	return key
}
