// Package trust implements the bilateral trust protocol: the approval
// state machine, the verification handshake with remote peers, and the
// teardown that keeps tokens, overrides, and subscriptions consistent
// with the trust graph.
package trust

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	cache "github.com/patrickmn/go-cache"

	"github.com/actingweb/actingweb-go/internal/aw"
	"github.com/actingweb/actingweb-go/internal/config"
	"github.com/actingweb/actingweb-go/internal/hooks"
	"github.com/actingweb/actingweb-go/internal/peer"
	"github.com/actingweb/actingweb-go/internal/permissions"
	"github.com/actingweb/actingweb-go/internal/store"
)

// Outbound trust creation retry schedule.
const (
	createMaxTries      = 3
	createFirstInterval = 500 * time.Millisecond
)

// TokenRevoker invalidates OAuth2 tokens bound to a client. The OAuth2
// server implements it; trust deletion calls it so a revoked trust
// cannot keep authenticating.
type TokenRevoker interface {
	RevokeClientTokens(ctx context.Context, clientID string) error
}

// SubscriptionCanceler tears down every subscription between an actor
// and a peer, in both directions. The subscription manager implements
// it.
type SubscriptionCanceler interface {
	CancelPeer(ctx context.Context, actorID, peerID string) error
}

// Manager drives the trust lifecycle. The revoker and canceler are
// wired by the composition root after the dependent subsystems exist;
// both are optional and skipped when nil.
type Manager struct {
	store     store.Store
	cfg       *config.Config
	hooks     *hooks.Registry
	evaluator *permissions.Evaluator
	registry  *permissions.Registry
	peers     *peer.Client

	revoker  TokenRevoker
	canceler SubscriptionCanceler

	caps *cache.Cache
	log  *slog.Logger
}

// NewManager creates the trust manager.
func NewManager(
	st store.Store, cfg *config.Config, hr *hooks.Registry,
	evaluator *permissions.Evaluator, registry *permissions.Registry,
	peers *peer.Client, log *slog.Logger,
) *Manager {

	return &Manager{
		store:     st,
		cfg:       cfg,
		hooks:     hr,
		evaluator: evaluator,
		registry:  registry,
		peers:     peers,
		caps:      cache.New(cfg.CapabilityTTL, 10*time.Minute),
		log:       log.With("subsystem", "trust"),
	}
}

// SetTokenRevoker wires the OAuth2 token revoker.
func (m *Manager) SetTokenRevoker(r TokenRevoker) { m.revoker = r }

// SetSubscriptionCanceler wires the subscription teardown hook.
func (m *Manager) SetSubscriptionCanceler(c SubscriptionCanceler) {
	m.canceler = c
}

// Get loads a trust row.
func (m *Manager) Get(
	ctx context.Context, actorID, peerID string,
) (store.Trust, error) {

	t, err := m.store.GetTrust(ctx, actorID, peerID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Trust{}, aw.Errorf(aw.KindNotFound,
			"no trust with peer %s", peerID)
	}
	if err != nil {
		return store.Trust{}, aw.Wrap(aw.KindFatal, err, "trust load failed")
	}
	return t, nil
}

// List loads all trusts of an actor, optionally filtered by
// relationship name.
func (m *Manager) List(
	ctx context.Context, actorID, relationship string,
) ([]store.Trust, error) {

	var (
		trusts []store.Trust
		err    error
	)
	if relationship == "" {
		trusts, err = m.store.ListTrusts(ctx, actorID)
	} else {
		trusts, err = m.store.ListTrustsByRelationship(
			ctx, actorID, relationship,
		)
	}
	if err != nil {
		return nil, aw.Wrap(aw.KindFatal, err, "trust list failed")
	}
	return trusts, nil
}

// CreateReciprocalTrust initiates a trust toward a remote actor: POST
// the request to the peer, and on acceptance persist the local side as
// approved and verified, pending the peer's approval. Transient network
// failures are retried with exponential backoff; a definitive rejection
// is not.
func (m *Manager) CreateReciprocalTrust(
	ctx context.Context, actorID, peerURI, relationship, desc string,
) (store.Trust, error) {

	if _, err := m.registry.Get(ctx, relationship); err != nil {
		if errors.Is(err, permissions.ErrUnknownTrustType) {
			return store.Trust{}, aw.Errorf(aw.KindInvalidRequest,
				"unknown trust type %s", relationship)
		}
		return store.Trust{}, err
	}

	secret := aw.RandomID()
	body, err := json.Marshal(PeerRequest{
		BaseURI:           m.cfg.ActorRoot(actorID),
		ID:                actorID,
		Type:              PeerType,
		Relationship:      relationship,
		Secret:            secret,
		Desc:              desc,
		VerificationToken: aw.RandomID(),
	})
	if err != nil {
		return store.Trust{}, fmt.Errorf("encode trust request: %w", err)
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = createFirstInterval

	resp, err := backoff.Retry(ctx, func() (peer.Response, error) {
		resp, err := m.peers.Do(ctx, peer.Request{
			Method: http.MethodPost,
			URL:    peerURI + "/trust/" + relationship,
			Body:   body,
		})
		if err != nil {
			// Transport failure, worth another try.
			return peer.Response{}, err
		}
		if !resp.OK() {
			return peer.Response{}, backoff.Permanent(aw.Errorf(
				aw.KindPeerUnavailable,
				"peer rejected trust request with %d", resp.Status,
			))
		}
		return resp, nil
	},
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(createMaxTries),
	)
	if err != nil {
		return store.Trust{}, fmt.Errorf(
			"trust request to %s failed: %w", peerURI, err,
		)
	}

	var info View
	if err := json.Unmarshal(resp.Body, &info); err != nil || info.ID == "" {
		return store.Trust{}, aw.Errorf(aw.KindInvalidRequest,
			"peer returned an unusable trust response")
	}

	t, err := m.store.CreateTrust(ctx, store.CreateTrustParams{
		ActorID:        actorID,
		PeerID:         info.ID,
		BaseURI:        peerURI,
		PeerType:       info.Type,
		Relationship:   relationship,
		Secret:         secret,
		Description:    desc,
		Approved:       true,
		PeerApproved:   false,
		Verified:       true,
		EstablishedVia: "actingweb",
	})
	if errors.Is(err, store.ErrDuplicate) {
		return store.Trust{}, aw.Errorf(aw.KindInvalidRequest,
			"trust with peer %s already exists", info.ID)
	}
	if err != nil {
		return store.Trust{}, aw.Wrap(aw.KindFatal, err, "trust create failed")
	}

	m.log.InfoContext(ctx, "Trust initiated",
		"actor_id", actorID,
		"peer_id", t.PeerID,
		"relationship", relationship,
	)
	m.emit(ctx, hooks.EventTrustInitiated, t)

	return t, nil
}

// CreateVerifiedParams holds the inbound trust request fields.
type CreateVerifiedParams struct {
	ActorID           string
	PeerID            string
	BaseURI           string
	PeerType          string
	Relationship      string
	Secret            string
	Desc              string
	VerificationToken string
	PeerIdentifier    string
	EstablishedVia    string
}

// CreateVerifiedTrust records an inbound trust request: verified by the
// handshake, approved by the peer through the act of asking, awaiting
// local approval. The trust_request_received hook may veto, in which
// case nothing is persisted.
func (m *Manager) CreateVerifiedTrust(
	ctx context.Context, params CreateVerifiedParams,
) (store.Trust, error) {

	if _, err := m.registry.Get(ctx, params.Relationship); err != nil {
		if errors.Is(err, permissions.ErrUnknownTrustType) {
			return store.Trust{}, aw.Errorf(aw.KindInvalidRequest,
				"unknown trust type %s", params.Relationship)
		}
		return store.Trust{}, err
	}

	err := m.hooks.EmitLifecycle(
		ctx, hooks.EventTrustRequestReceived, params.ActorID,
		map[string]any{
			"peerid":       params.PeerID,
			"relationship": params.Relationship,
			"baseuri":      params.BaseURI,
		},
	)
	if err != nil {
		return store.Trust{}, aw.Wrap(aw.KindForbidden, err,
			"trust request refused")
	}

	via := params.EstablishedVia
	if via == "" {
		via = "actingweb"
	}

	t, err := m.store.CreateTrust(ctx, store.CreateTrustParams{
		ActorID:           params.ActorID,
		PeerID:            params.PeerID,
		BaseURI:           params.BaseURI,
		PeerType:          params.PeerType,
		Relationship:      params.Relationship,
		Secret:            params.Secret,
		Description:       params.Desc,
		Approved:          false,
		PeerApproved:      true,
		Verified:          true,
		VerificationToken: params.VerificationToken,
		EstablishedVia:    via,
		PeerIdentifier:    params.PeerIdentifier,
	})
	if errors.Is(err, store.ErrDuplicate) {
		return store.Trust{}, aw.Errorf(aw.KindInvalidRequest,
			"trust with peer %s already exists", params.PeerID)
	}
	if err != nil {
		return store.Trust{}, aw.Wrap(aw.KindFatal, err, "trust create failed")
	}

	m.log.InfoContext(ctx, "Trust requested",
		"actor_id", params.ActorID,
		"peer_id", params.PeerID,
		"relationship", params.Relationship,
	)
	return t, nil
}

// Approve records the owner's approval and notifies the peer. The
// notification is best effort; sync repairs a missed one later.
func (m *Manager) Approve(ctx context.Context, actorID, peerID string) error {
	t, err := m.Get(ctx, actorID, peerID)
	if err != nil {
		return err
	}
	if t.Approved {
		return nil
	}

	next, err := Apply(t, EventLocalApprove)
	if err != nil {
		return err
	}

	err = m.store.UpdateTrustApproval(
		ctx, actorID, peerID,
		next.Approved, next.PeerApproved, next.Verified,
	)
	if err != nil {
		return aw.Wrap(aw.KindFatal, err, "trust approval update failed")
	}

	if t.BaseURI != "" {
		body, _ := json.Marshal(PeerApproval{Approved: true})
		_, err := m.peers.Do(ctx, peer.Request{
			Method: http.MethodPut,
			URL:    t.BaseURI + "/trust/" + t.Relationship + "/" + actorID,
			Secret: t.Secret,
			Body:   body,
		})
		if err != nil {
			m.log.WarnContext(ctx, "Peer approval notification failed",
				"actor_id", actorID, "peer_id", peerID, "error", err)
		}
	}

	m.emit(ctx, hooks.EventTrustApproved, next)
	if next.PeerApproved {
		m.emit(ctx, hooks.EventTrustFullyApprovedLocal, next)
	}
	return nil
}

// HandlePeerApproval records an inbound PUT from the peer reporting its
// approval state.
func (m *Manager) HandlePeerApproval(
	ctx context.Context, actorID, peerID string, approved bool,
) error {

	t, err := m.Get(ctx, actorID, peerID)
	if err != nil {
		return err
	}

	ev := EventPeerApprove
	if !approved {
		ev = EventPeerRevoke
	}
	next, err := Apply(t, ev)
	if err != nil {
		return err
	}
	if next == t {
		return nil
	}

	err = m.store.UpdateTrustApproval(
		ctx, actorID, peerID,
		next.Approved, next.PeerApproved, next.Verified,
	)
	if err != nil {
		return aw.Wrap(aw.KindFatal, err, "trust approval update failed")
	}

	if approved && next.Approved {
		m.emit(ctx, hooks.EventTrustFullyApprovedRemote, next)
	}
	return nil
}

// Delete tears a trust down: best-effort peer notification, OAuth2
// token revocation, override and capability cache cleanup, subscription
// cancellation in both directions, then the row itself.
func (m *Manager) Delete(
	ctx context.Context, actorID, peerID string, notifyPeer bool,
) error {

	t, err := m.Get(ctx, actorID, peerID)
	if err != nil {
		return err
	}

	if notifyPeer && t.BaseURI != "" {
		url := t.BaseURI + "/trust/" + t.Relationship + "/" + actorID
		if _, err := m.peers.Delete(ctx, url, t.Secret); err != nil {
			m.log.WarnContext(ctx, "Peer trust delete failed",
				"actor_id", actorID, "peer_id", peerID, "error", err)
		}
	}

	if t.OAuthClientID != "" && m.revoker != nil {
		err := m.revoker.RevokeClientTokens(ctx, t.OAuthClientID)
		if err != nil {
			m.log.WarnContext(ctx, "Token revocation failed",
				"actor_id", actorID,
				"client_id", t.OAuthClientID,
				"error", err,
			)
		}
	}

	if err := m.evaluator.DeleteOverride(ctx, actorID, peerID); err != nil {
		m.log.WarnContext(ctx, "Override cleanup failed",
			"actor_id", actorID, "peer_id", peerID, "error", err)
	}

	if m.canceler != nil {
		if err := m.canceler.CancelPeer(ctx, actorID, peerID); err != nil {
			m.log.WarnContext(ctx, "Subscription cleanup failed",
				"actor_id", actorID, "peer_id", peerID, "error", err)
		}
	}

	m.caps.Delete(capKey(actorID, peerID))

	if err := m.store.DeleteTrust(ctx, actorID, peerID); err != nil {
		return aw.Wrap(aw.KindFatal, err, "trust delete failed")
	}

	m.log.InfoContext(ctx, "Trust deleted",
		"actor_id", actorID, "peer_id", peerID)
	m.emit(ctx, hooks.EventTrustDeleted, t)
	return nil
}

// Capabilities is the cached peer capability snapshot.
type Capabilities struct {
	Supported string
	Version   string
}

// FetchCapabilities returns the peer's advertised option tags and
// protocol version, served from cache within the TTL. A 404 from the
// peer's /meta marks the peer gone and invalidates the cache; the
// caller decides whether to tear the trust down.
func (m *Manager) FetchCapabilities(
	ctx context.Context, actorID, peerID string,
) (Capabilities, error) {

	key := capKey(actorID, peerID)
	if cached, ok := m.caps.Get(key); ok {
		return cached.(Capabilities), nil
	}

	t, err := m.Get(ctx, actorID, peerID)
	if err != nil {
		return Capabilities{}, err
	}
	if t.BaseURI == "" {
		return Capabilities{}, aw.Errorf(aw.KindInvalidRequest,
			"peer %s has no base URI", peerID)
	}

	supported, err := m.fetchMeta(ctx, t.BaseURI+"/meta/actingweb/supported")
	if err != nil {
		return Capabilities{}, err
	}
	version, err := m.fetchMeta(ctx, t.BaseURI+"/meta/actingweb/version")
	if err != nil {
		return Capabilities{}, err
	}

	caps := Capabilities{Supported: supported, Version: version}
	m.caps.SetDefault(key, caps)

	err = m.store.UpdateTrustCapabilities(
		ctx, actorID, peerID, caps.Supported, caps.Version, time.Now(),
	)
	if err != nil {
		m.log.WarnContext(ctx, "Capability snapshot write failed",
			"actor_id", actorID, "peer_id", peerID, "error", err)
	}

	return caps, nil
}

// VerifyPeerAlive probes the peer's /meta root. Used when a peer's
// subscriptions start returning 404 to distinguish a gone peer from a
// revoked trust.
func (m *Manager) VerifyPeerAlive(
	ctx context.Context, actorID, peerID string,
) error {

	t, err := m.Get(ctx, actorID, peerID)
	if err != nil {
		return err
	}

	resp, err := m.peers.Get(ctx, t.BaseURI+"/meta", "")
	if err != nil {
		return err
	}
	switch {
	case resp.Status == http.StatusNotFound:
		m.caps.Delete(capKey(actorID, peerID))
		return aw.Errorf(aw.KindPeerGone, "peer %s is gone", peerID)
	case resp.Status == http.StatusForbidden:
		return aw.Errorf(aw.KindForbidden, "peer %s revoked access", peerID)
	case !resp.OK():
		return aw.Errorf(aw.KindPeerUnavailable,
			"peer %s /meta returned %d", peerID, resp.Status)
	}
	return nil
}

// RecordConnection stamps the trust with a successful peer contact.
func (m *Manager) RecordConnection(
	ctx context.Context, actorID, peerID, via string,
) {
	err := m.store.UpdateTrustConnection(
		ctx, actorID, peerID, time.Now(), via,
	)
	if err != nil {
		m.log.WarnContext(ctx, "Connection stamp failed",
			"actor_id", actorID, "peer_id", peerID, "error", err)
	}
}

func (m *Manager) fetchMeta(ctx context.Context, url string) (string, error) {
	resp, err := m.peers.Get(ctx, url, "")
	if err != nil {
		return "", err
	}
	if resp.Status == http.StatusNotFound {
		return "", aw.Errorf(aw.KindPeerGone, "peer meta %s is gone", url)
	}
	if !resp.OK() {
		return "", aw.Errorf(aw.KindPeerUnavailable,
			"peer meta %s returned %d", url, resp.Status)
	}
	return string(resp.Body), nil
}

func (m *Manager) emit(ctx context.Context, ev hooks.LifecycleEvent, t store.Trust) {
	err := m.hooks.EmitLifecycle(ctx, ev, t.ActorID, map[string]any{
		"peerid":       t.PeerID,
		"relationship": t.Relationship,
	})
	if err != nil {
		m.log.WarnContext(ctx, "Trust hook failed",
			"event", ev, "actor_id", t.ActorID, "error", err)
	}
}

func capKey(actorID, peerID string) string {
	return actorID + "\x00" + peerID
}
