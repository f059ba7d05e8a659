// Package subscription implements the change propagation core: diff
// registration against matching subscriptions, outbound subscription
// management toward peers, and scope suspension.
package subscription

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/actingweb/actingweb-go/internal/aw"
	"github.com/actingweb/actingweb-go/internal/config"
	"github.com/actingweb/actingweb-go/internal/hooks"
	"github.com/actingweb/actingweb-go/internal/permissions"
	"github.com/actingweb/actingweb-go/internal/store"
)

// Granularity values a subscription may request.
const (
	GranularityHigh = "high"
	GranularityLow  = "low"
	GranularityNone = "none"
)

// ResyncBlob is the stored diff payload marking a resync request. The
// fan-out manager and the polling endpoint translate it to a
// type="resync" callback.
var ResyncBlob = json.RawMessage(`{"resync":true}`)

// IsResync reports whether a stored diff payload is the resync marker.
func IsResync(blob json.RawMessage) bool {
	var m struct {
		Resync bool `json:"resync"`
	}
	return json.Unmarshal(blob, &m) == nil && m.Resync
}

// Outbound is one queued delivery: a diff bound for one subscriber.
type Outbound struct {
	Sub  store.Subscription
	Diff store.Diff
}

// Deliverer receives registered diffs for delivery. The fan-out manager
// implements it; a nil deliverer leaves diffs for polling only.
type Deliverer interface {
	Deliver(ctx context.Context, job Outbound)
}

// Engine matches writes against subscriptions and registers diffs. It
// is the DiffSink the actor core publishes into.
type Engine struct {
	store store.Store
	cfg   *config.Config
	eval  *permissions.Evaluator
	hooks *hooks.Registry

	deliverer Deliverer
	log       *slog.Logger
}

// NewEngine creates the subscription engine.
func NewEngine(
	st store.Store, cfg *config.Config, eval *permissions.Evaluator,
	hr *hooks.Registry, log *slog.Logger,
) *Engine {
	return &Engine{
		store: st,
		cfg:   cfg,
		eval:  eval,
		hooks: hr,
		log:   log.With("subsystem", "subscription"),
	}
}

// SetDeliverer wires the fan-out manager. Wired late by the composition
// root since fan-out sits above the engine.
func (e *Engine) SetDeliverer(d Deliverer) { e.deliverer = d }

// RegisterDiff records a change for every matching subscription:
// allocate the next sequence number, store the diff, and hand it to the
// deliverer. Suspended scopes register nothing. Implements the actor
// core's DiffSink.
func (e *Engine) RegisterDiff(
	ctx context.Context, actorID, target, subtarget, resource string,
	blob json.RawMessage,
) error {

	suspended, err := e.isSuspended(ctx, actorID, target, subtarget)
	if err != nil {
		return err
	}
	if suspended {
		return nil
	}

	subs, err := e.store.ListSubscriptions(ctx, actorID)
	if err != nil {
		return aw.Wrap(aw.KindFatal, err, "subscription list failed")
	}

	for _, sub := range subs {
		// callback=true rows mirror subscriptions we hold on peers;
		// only inbound registrations receive local diffs.
		if sub.Callback {
			continue
		}
		if !matches(sub, target, subtarget, resource) {
			continue
		}
		if !e.peerMayRead(ctx, actorID, sub.PeerID, target, subtarget) {
			continue
		}

		if err := e.registerFor(ctx, sub, blob); err != nil {
			e.log.WarnContext(ctx, "Diff registration failed",
				"actor_id", actorID,
				"peer_id", sub.PeerID,
				"sub_id", sub.SubID,
				"error", err,
			)
		}
	}
	return nil
}

// registerFor allocates the sequence number, persists the diff, and
// enqueues delivery.
func (e *Engine) registerFor(
	ctx context.Context, sub store.Subscription, blob json.RawMessage,
) error {

	// Allocating the seqnr and inserting the diff share one transaction
	// so a failed insert never leaves a hole in the sequence.
	var seq int64
	err := e.store.WithTx(ctx, func(ctx context.Context, st store.Store) error {
		var err error
		seq, err = st.NextSeqnr(ctx, sub.ActorID, sub.PeerID, sub.SubID)
		if err != nil {
			return err
		}
		return st.CreateDiff(ctx, store.CreateDiffParams{
			ActorID: sub.ActorID,
			SubID:   sub.SubID,
			Seqnr:   seq,
			PeerID:  sub.PeerID,
			Blob:    blob,
		})
	})
	if err != nil {
		return err
	}

	e.log.DebugContext(ctx, "Diff registered",
		"actor_id", sub.ActorID,
		"sub_id", sub.SubID,
		"seqnr", seq,
		"bytes", len(blob),
	)

	if e.deliverer != nil {
		diff, err := e.store.GetDiff(ctx, sub.ActorID, sub.SubID, seq)
		if err != nil {
			return err
		}
		e.deliverer.Deliver(ctx, Outbound{Sub: sub, Diff: diff})
	}
	return nil
}

// matches applies the exact/broader/more-specific matching rule.
func matches(sub store.Subscription, target, subtarget, resource string) bool {
	if sub.Target != target {
		return false
	}
	if sub.Subtarget != "" && subtarget != "" && sub.Subtarget != subtarget {
		return false
	}
	if sub.Resource != "" && resource != "" && sub.Resource != resource {
		return false
	}
	return true
}

// peerMayRead checks the subscriber's read grant on the written scope.
// Only the properties target is permission scoped; other targets are
// visible to any approved trust.
func (e *Engine) peerMayRead(
	ctx context.Context, actorID, peerID, target, subtarget string,
) bool {

	if target != "properties" || subtarget == "" {
		return true
	}

	d, err := e.eval.Evaluate(
		ctx, actorID, peerID,
		permissions.CategoryProperties, subtarget, permissions.OpRead,
	)
	if err != nil {
		e.log.WarnContext(ctx, "Subscriber permission check failed",
			"actor_id", actorID, "peer_id", peerID, "error", err)
		return false
	}
	return d == permissions.DecisionAllowed
}

// isSuspended reports whether a suspension row covers the scope.
func (e *Engine) isSuspended(
	ctx context.Context, actorID, target, subtarget string,
) (bool, error) {

	suspensions, err := e.store.ListSuspensions(ctx, actorID)
	if err != nil {
		return false, aw.Wrap(aw.KindFatal, err, "suspension list failed")
	}

	for _, s := range suspensions {
		if s.Target != target {
			continue
		}
		if s.Subtarget == "" || s.Subtarget == subtarget {
			return true, nil
		}
	}
	return false, nil
}
