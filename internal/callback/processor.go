// Package callback implements the inbound delivery side of the
// subscription pipeline: sequencing, dedup, gap buffering, and resync
// for callbacks arriving from peers we subscribe to.
package callback

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/actingweb/actingweb-go/internal/aw"
	"github.com/actingweb/actingweb-go/internal/config"
	"github.com/actingweb/actingweb-go/internal/peer"
	"github.com/actingweb/actingweb-go/internal/store"
	"github.com/actingweb/actingweb-go/internal/subscription"
)

// stateBucket holds the per-subscription processing state, keyed
// {peer_id}:{sub_id}. The attribute version drives the CAS updates.
const stateBucket = "_callback_state"

// casRetries bounds optimistic-concurrency retries on the state row.
const casRetries = 3

// TypeDiff and TypeResync are the callback envelope types.
const (
	TypeDiff   = "diff"
	TypeResync = "resync"
)

// Envelope is the wire form of an inbound subscription callback.
type Envelope struct {
	ID             string          `json:"id"`
	Target         string          `json:"target"`
	SubscriptionID string          `json:"subscriptionid"`
	Sequence       int64           `json:"sequence"`
	Timestamp      time.Time       `json:"timestamp"`
	Granularity    string          `json:"granularity"`
	Type           string          `json:"type,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
	URL            string          `json:"url,omitempty"`
}

// Handler is the application's diff consumer. It must be idempotent;
// the sequence number supports app-level dedup.
type Handler func(
	ctx context.Context, sub store.Subscription, seqnr int64,
	data json.RawMessage,
) error

// pendingEntry buffers an out-of-order callback.
type pendingEntry struct {
	Sequence   int64           `json:"sequence"`
	Data       json.RawMessage `json:"data"`
	ReceivedAt time.Time       `json:"received_at"`
}

// subState is the persisted per-subscription processing state.
type subState struct {
	LastProcessedSeq int64          `json:"last_processed_seq"`
	Pending          []pendingEntry `json:"pending,omitempty"`
}

// Processor sequences inbound callbacks per subscription.
type Processor struct {
	store   store.Store
	cfg     *config.Config
	subs    *subscription.Manager
	peers   *peer.Client
	handler Handler
	log     *slog.Logger
}

// NewProcessor creates the callback processor.
func NewProcessor(
	st store.Store, cfg *config.Config, subs *subscription.Manager,
	peers *peer.Client, log *slog.Logger,
) *Processor {
	return &Processor{
		store: st,
		cfg:   cfg,
		subs:  subs,
		peers: peers,
		log:   log.With("subsystem", "callback"),
	}
}

// SetHandler wires the application diff consumer. Without one, diffs
// are sequenced and acknowledged but not applied anywhere beyond the
// resync cache.
func (p *Processor) SetHandler(h Handler) { p.handler = h }

// Process handles one inbound callback. A nil return acknowledges the
// callback (2xx), which durably clears the diff on the sender; errors
// classified rate_limited translate to 429 with Retry-After.
func (p *Processor) Process(
	ctx context.Context, actorID, peerID, subID string, env Envelope,
) error {

	sub, err := p.store.GetSubscription(ctx, actorID, peerID, subID)
	if errors.Is(err, store.ErrNotFound) {
		return aw.Errorf(aw.KindNotFound, "no subscription %s", subID)
	}
	if err != nil {
		return aw.Wrap(aw.KindFatal, err, "subscription load failed")
	}

	if env.Type == TypeResync || subscription.IsResync(env.Data) {
		return p.resync(ctx, sub, env.Sequence, env.URL)
	}

	for attempt := 0; attempt < casRetries; attempt++ {
		state, version, err := p.loadState(ctx, sub)
		if err != nil {
			return err
		}

		done, err := p.step(ctx, sub, env, &state)
		if err != nil || done {
			return err
		}

		ok, err := p.storeState(ctx, sub, state, version)
		if err != nil {
			return err
		}
		if ok {
			return p.checkGapTimeout(ctx, sub, state)
		}
	}

	return aw.Errorf(aw.KindConflict,
		"callback state contention on %s/%s", peerID, subID)
}

// step applies one callback against the in-memory state. It returns
// done=true when the callback is fully handled without a state write
// (duplicates).
func (p *Processor) step(
	ctx context.Context, sub store.Subscription, env Envelope,
	state *subState,
) (bool, error) {

	switch {
	case env.Sequence <= state.LastProcessedSeq:
		// Duplicate delivery, acknowledge without reprocessing.
		p.log.DebugContext(ctx, "Duplicate callback",
			"sub_id", sub.SubID, "seqnr", env.Sequence)
		return true, nil

	case env.Sequence == state.LastProcessedSeq+1:
		data, err := p.resolveData(ctx, sub, env)
		if err != nil {
			return false, err
		}
		if err := p.apply(ctx, sub, env.Sequence, data); err != nil {
			return false, err
		}
		state.LastProcessedSeq = env.Sequence
		p.drainPending(ctx, sub, state)
		return false, nil

	default:
		if len(state.Pending) >= p.cfg.MaxPendingCallbacks {
			return false, aw.Errorf(aw.KindRateLimited,
				"pending queue full for %s", sub.SubID)
		}
		data, err := p.resolveData(ctx, sub, env)
		if err != nil {
			return false, err
		}
		state.Pending = append(state.Pending, pendingEntry{
			Sequence:   env.Sequence,
			Data:       data,
			ReceivedAt: time.Now(),
		})
		return false, nil
	}
}

// drainPending applies buffered callbacks that became contiguous.
func (p *Processor) drainPending(
	ctx context.Context, sub store.Subscription, state *subState,
) {
	for {
		advanced := false
		for i, e := range state.Pending {
			if e.Sequence != state.LastProcessedSeq+1 {
				continue
			}
			if err := p.apply(ctx, sub, e.Sequence, e.Data); err != nil {
				p.log.WarnContext(ctx, "Pending apply failed",
					"sub_id", sub.SubID,
					"seqnr", e.Sequence,
					"error", err,
				)
				return
			}
			state.LastProcessedSeq = e.Sequence
			state.Pending = append(
				state.Pending[:i], state.Pending[i+1:]...,
			)
			advanced = true
			break
		}
		if !advanced {
			return
		}
	}
}

// resolveData returns the diff payload, fetching the low-granularity
// URL when the body carries none.
func (p *Processor) resolveData(
	ctx context.Context, sub store.Subscription, env Envelope,
) (json.RawMessage, error) {

	if len(env.Data) > 0 || env.URL == "" {
		return env.Data, nil
	}

	secret, err := p.peerSecret(ctx, sub)
	if err != nil {
		return nil, err
	}
	resp, err := p.peers.Get(ctx, env.URL, secret)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, aw.Errorf(aw.KindPeerUnavailable,
			"diff fetch returned %d", resp.Status)
	}
	return json.RawMessage(resp.Body), nil
}

// apply hands a sequenced diff to the application handler.
func (p *Processor) apply(
	ctx context.Context, sub store.Subscription, seqnr int64,
	data json.RawMessage,
) error {
	if p.handler == nil {
		return nil
	}
	return p.handler(ctx, sub, seqnr, data)
}

// checkGapTimeout triggers a resync when the oldest buffered callback
// has waited longer than the gap timeout, meaning the missing sequence
// numbers are probably never coming.
func (p *Processor) checkGapTimeout(
	ctx context.Context, sub store.Subscription, state subState,
) error {

	if len(state.Pending) == 0 {
		return nil
	}

	oldest := state.Pending[0].ReceivedAt
	for _, e := range state.Pending[1:] {
		if e.ReceivedAt.Before(oldest) {
			oldest = e.ReceivedAt
		}
	}
	if time.Since(oldest) < p.cfg.GapTimeout {
		return nil
	}

	maxSeq := state.LastProcessedSeq
	for _, e := range state.Pending {
		if e.Sequence > maxSeq {
			maxSeq = e.Sequence
		}
	}

	p.log.InfoContext(ctx, "Gap timeout, resyncing",
		"sub_id", sub.SubID,
		"last_processed", state.LastProcessedSeq,
		"pending", len(state.Pending),
	)
	return p.resync(ctx, sub, maxSeq, "")
}

// resync refetches the full subscribed scope, replaces the cached peer
// state, and fast-forwards the sequence counter past the gap.
func (p *Processor) resync(
	ctx context.Context, sub store.Subscription, seqnr int64, url string,
) error {

	t, err := p.store.GetTrust(ctx, sub.ActorID, sub.PeerID)
	if errors.Is(err, store.ErrNotFound) {
		return aw.Errorf(aw.KindNotFound, "no trust with %s", sub.PeerID)
	}
	if err != nil {
		return aw.Wrap(aw.KindFatal, err, "trust load failed")
	}

	if url == "" {
		url = t.BaseURI + "/" + sub.Target
		if sub.Subtarget != "" {
			url += "/" + sub.Subtarget
		}
		if sub.Resource != "" {
			url += "/" + sub.Resource
		}
	}

	resp, err := p.peers.Get(ctx, url, t.Secret)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return aw.Errorf(aw.KindPeerUnavailable,
			"resync fetch returned %d", resp.Status)
	}

	err = p.subs.CachePeerState(ctx, sub, json.RawMessage(resp.Body))
	if err != nil {
		return err
	}

	state := subState{LastProcessedSeq: seqnr}
	for attempt := 0; attempt < casRetries; attempt++ {
		_, version, err := p.loadState(ctx, sub)
		if err != nil {
			return err
		}
		ok, err := p.storeState(ctx, sub, state, version)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return aw.Errorf(aw.KindConflict,
		"callback state contention on %s", sub.SubID)
}

// loadState reads the per-subscription state and its CAS version. A
// missing row reads as the zero state with version zero.
func (p *Processor) loadState(
	ctx context.Context, sub store.Subscription,
) (subState, int64, error) {

	attr, err := p.store.GetAttribute(
		ctx, sub.ActorID, stateBucket, stateKey(sub),
	)
	if errors.Is(err, store.ErrNotFound) {
		return subState{}, 0, nil
	}
	if err != nil {
		return subState{}, 0, aw.Wrap(
			aw.KindFatal, err, "callback state read failed",
		)
	}

	var state subState
	if err := json.Unmarshal(attr.Value, &state); err != nil {
		return subState{}, 0, aw.Wrap(
			aw.KindFatal, err, "callback state decode failed",
		)
	}
	return state, attr.Version, nil
}

// storeState writes the state conditionally on the version it was read
// at. A zero version means the row did not exist yet.
func (p *Processor) storeState(
	ctx context.Context, sub store.Subscription, state subState,
	version int64,
) (bool, error) {

	blob, err := json.Marshal(state)
	if err != nil {
		return false, err
	}

	if version == 0 {
		_, err := p.store.SetAttribute(ctx, store.SetAttributeParams{
			ActorID: sub.ActorID,
			Bucket:  stateBucket,
			Name:    stateKey(sub),
			Value:   blob,
		})
		if err != nil {
			return false, aw.Wrap(
				aw.KindFatal, err, "callback state write failed",
			)
		}
		return true, nil
	}

	ok, err := p.store.CompareAndSwapAttribute(
		ctx, store.CompareAndSwapAttributeParams{
			ActorID:         sub.ActorID,
			Bucket:          stateBucket,
			Name:            stateKey(sub),
			Value:           blob,
			ExpectedVersion: version,
		},
	)
	if err != nil {
		return false, aw.Wrap(
			aw.KindFatal, err, "callback state write failed",
		)
	}
	return ok, nil
}

// peerSecret resolves the bearer secret for fetches from the peer.
func (p *Processor) peerSecret(
	ctx context.Context, sub store.Subscription,
) (string, error) {

	t, err := p.store.GetTrust(ctx, sub.ActorID, sub.PeerID)
	if err != nil {
		return "", aw.Wrap(aw.KindFatal, err, "trust load failed")
	}
	return t.Secret, nil
}

func stateKey(sub store.Subscription) string {
	return sub.PeerID + ":" + sub.SubID
}
