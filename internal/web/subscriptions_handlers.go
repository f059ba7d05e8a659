package web

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/actingweb/actingweb-go/internal/aw"
	"github.com/actingweb/actingweb-go/internal/callback"
	"github.com/actingweb/actingweb-go/internal/store"
	"github.com/actingweb/actingweb-go/internal/subscription"
)

// subView is a subscription row on the wire.
type subView struct {
	SubscriptionID string `json:"subscriptionid"`
	PeerID         string `json:"peerid"`
	Target         string `json:"target"`
	Subtarget      string `json:"subtarget,omitempty"`
	Resource       string `json:"resource,omitempty"`
	Granularity    string `json:"granularity"`
	Sequence       int64  `json:"sequence"`
	Callback       bool   `json:"callback"`
}

func subViewOf(sub store.Subscription) subView {
	return subView{
		SubscriptionID: sub.SubID,
		PeerID:         sub.PeerID,
		Target:         sub.Target,
		Subtarget:      sub.Subtarget,
		Resource:       sub.Resource,
		Granularity:    sub.Granularity,
		Sequence:       sub.Seqnr,
		Callback:       sub.Callback,
	}
}

// diffView is one retained diff on the wire.
type diffView struct {
	Sequence  int64           `json:"sequence"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

func (s *Server) handleSubscriptionsList(w http.ResponseWriter, r *http.Request) {
	a := actorFrom(r)
	rc := aw.FromContext(r.Context())

	subs, err := s.store.ListSubscriptions(r.Context(), a.ID)
	if err != nil {
		s.writeError(w, r, aw.Wrap(aw.KindFatal, err,
			"subscription list failed"))
		return
	}

	views := make([]subView, 0, len(subs))
	for _, sub := range subs {
		if !rc.IsOwner() && sub.PeerID != rc.PeerID {
			continue
		}
		views = append(views, subViewOf(sub))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":   a.ID,
		"data": views,
	})
}

func (s *Server) handleSubscriptionsByPeer(w http.ResponseWriter, r *http.Request) {
	a := actorFrom(r)
	peerID := peerParam(r)
	if err := s.requirePeerOrOwner(r, peerID); err != nil {
		s.writeError(w, r, err)
		return
	}

	subs, err := s.store.ListSubscriptionsByPeer(r.Context(), a.ID, peerID)
	if err != nil {
		s.writeError(w, r, aw.Wrap(aw.KindFatal, err,
			"subscription list failed"))
		return
	}

	views := make([]subView, 0, len(subs))
	for _, sub := range subs {
		views = append(views, subViewOf(sub))
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": views})
}

// handleSubscriptionCreate serves POST /subscriptions/{peerID}. A peer
// posting under its own id registers an inbound subscription on this
// actor; the owner posting under a peer's id subscribes outward to
// that peer.
func (s *Server) handleSubscriptionCreate(w http.ResponseWriter, r *http.Request) {
	a := actorFrom(r)
	rc := aw.FromContext(r.Context())
	peerID := peerParam(r)

	var body struct {
		Target      string `json:"target"`
		Subtarget   string `json:"subtarget,omitempty"`
		Resource    string `json:"resource,omitempty"`
		Granularity string `json:"granularity,omitempty"`
	}
	if err := readJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	params := subscription.CreateParams{
		Target:      body.Target,
		Subtarget:   body.Subtarget,
		Resource:    body.Resource,
		Granularity: body.Granularity,
	}

	var (
		sub store.Subscription
		err error
	)
	switch {
	case rc.IsOwner():
		sub, err = s.subs.SubscribeToPeer(r.Context(), a.ID, peerID, params)
	case rc.PeerID == peerID:
		sub, err = s.subs.CreateInbound(r.Context(), a.ID, peerID, params)
	default:
		err = aw.Errorf(aw.KindForbidden,
			"subscriptions of %s belong to another peer", peerID)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Location", s.cfg.ActorRoot(a.ID)+
		"/subscriptions/"+sub.PeerID+"/"+sub.SubID)
	writeJSON(w, http.StatusCreated, map[string]string{
		"subscriptionid": sub.SubID,
	})
}

// handleSubscriptionGet returns the subscription with its retained
// diffs and delivery stats.
func (s *Server) handleSubscriptionGet(w http.ResponseWriter, r *http.Request) {
	a := actorFrom(r)
	peerID := peerParam(r)
	subID := chi.URLParam(r, "subID")
	if err := s.requirePeerOrOwner(r, peerID); err != nil {
		s.writeError(w, r, err)
		return
	}

	sub, err := s.store.GetSubscription(r.Context(), a.ID, peerID, subID)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, r, aw.Errorf(aw.KindNotFound,
			"no subscription %s", subID))
		return
	}
	if err != nil {
		s.writeError(w, r, aw.Wrap(aw.KindFatal, err,
			"subscription load failed"))
		return
	}

	diffs, err := s.store.ListDiffs(r.Context(), a.ID, subID)
	if err != nil {
		s.writeError(w, r, aw.Wrap(aw.KindFatal, err, "diff list failed"))
		return
	}

	data := make([]diffView, 0, len(diffs))
	var lastAt time.Time
	for _, d := range diffs {
		data = append(data, diffView{
			Sequence:  d.Seqnr,
			Timestamp: d.Timestamp,
			Data:      d.Blob,
		})
		lastAt = d.Timestamp
	}

	resp := map[string]any{
		"subscriptionid": sub.SubID,
		"peerid":         sub.PeerID,
		"target":         sub.Target,
		"subtarget":      sub.Subtarget,
		"resource":       sub.Resource,
		"granularity":    sub.Granularity,
		"sequence":       sub.Seqnr,
		"data":           data,
		"stats": map[string]any{
			"stored_diffs": len(data),
		},
	}
	if !lastAt.IsZero() {
		resp["stats"].(map[string]any)["last_diff_at"] = lastAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDiffGet returns one retained diff and acknowledges everything
// up to and including it.
func (s *Server) handleDiffGet(w http.ResponseWriter, r *http.Request) {
	a := actorFrom(r)
	peerID := peerParam(r)
	subID := chi.URLParam(r, "subID")
	if err := s.requirePeerOrOwner(r, peerID); err != nil {
		s.writeError(w, r, err)
		return
	}

	seqnr, err := strconv.ParseInt(chi.URLParam(r, "seqnr"), 10, 64)
	if err != nil || seqnr < 1 {
		s.writeError(w, r, aw.Errorf(aw.KindInvalidRequest,
			"bad sequence number"))
		return
	}

	d, err := s.store.GetDiff(r.Context(), a.ID, subID, seqnr)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, r, aw.Errorf(aw.KindNotFound,
			"no diff %d on subscription %s", seqnr, subID))
		return
	}
	if err != nil {
		s.writeError(w, r, aw.Wrap(aw.KindFatal, err, "diff load failed"))
		return
	}

	err = s.store.DeleteDiffsThrough(r.Context(), a.ID, subID, seqnr)
	if err != nil {
		s.log.WarnContext(r.Context(), "Diff acknowledge failed",
			"actor_id", a.ID, "sub_id", subID, "error", err)
	}

	writeJSON(w, http.StatusOK, diffView{
		Sequence:  d.Seqnr,
		Timestamp: d.Timestamp,
		Data:      d.Blob,
	})
}

func (s *Server) handleSubscriptionDelete(w http.ResponseWriter, r *http.Request) {
	a := actorFrom(r)
	peerID := peerParam(r)
	subID := chi.URLParam(r, "subID")
	rc := aw.FromContext(r.Context())
	if err := s.requirePeerOrOwner(r, peerID); err != nil {
		s.writeError(w, r, err)
		return
	}

	err := s.subs.Delete(r.Context(), a.ID, peerID, subID, rc.IsOwner())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCallback dispatches an actor-level application callback.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	a := actorFrom(r)
	name := chi.URLParam(r, "name")

	body, err := readBodyOrEmpty(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out, ok, err := s.hooks.InvokeCallback(r.Context(), a.ID, name, body)
	if !ok {
		s.writeError(w, r, aw.Errorf(aw.KindNotFound,
			"no callback %s", name))
		return
	}
	if err != nil {
		s.writeError(w, r, aw.Wrap(aw.KindForbidden, err,
			"callback refused"))
		return
	}
	if len(out) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(out)
}

// handleSubscriptionCallback receives a diff from a peer we subscribed
// to. A 2xx here durably clears the diff on the sender.
func (s *Server) handleSubscriptionCallback(w http.ResponseWriter, r *http.Request) {
	a := actorFrom(r)
	peerID := peerParam(r)
	subID := chi.URLParam(r, "subID")
	rc := aw.FromContext(r.Context())
	if rc.PeerID != peerID {
		s.writeError(w, r, aw.Errorf(aw.KindForbidden,
			"callbacks of %s belong to another peer", peerID))
		return
	}

	var body io.Reader = http.MaxBytesReader(nil, r.Body, 4<<20)
	if r.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(body)
		if err != nil {
			s.writeError(w, r, aw.Errorf(aw.KindInvalidRequest,
				"bad gzip body"))
			return
		}
		defer gz.Close()
		body = gz
	}

	var env callback.Envelope
	if err := json.NewDecoder(body).Decode(&env); err != nil {
		s.writeError(w, r, aw.Errorf(aw.KindInvalidRequest,
			"malformed callback envelope"))
		return
	}

	err := s.callbacks.Process(r.Context(), a.ID, peerID, subID, env)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSubscriptionCallbackDelete is the peer telling us the
// subscription we held on it is gone; drop the local mirror.
func (s *Server) handleSubscriptionCallbackDelete(
	w http.ResponseWriter, r *http.Request,
) {
	a := actorFrom(r)
	peerID := peerParam(r)
	subID := chi.URLParam(r, "subID")
	rc := aw.FromContext(r.Context())
	if rc.PeerID != peerID {
		s.writeError(w, r, aw.Errorf(aw.KindForbidden,
			"callbacks of %s belong to another peer", peerID))
		return
	}

	err := s.subs.Delete(r.Context(), a.ID, peerID, subID, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requirePeerOrOwner admits the owner and the peer the path addresses.
func (s *Server) requirePeerOrOwner(r *http.Request, peerID string) error {
	rc := aw.FromContext(r.Context())
	if rc.IsOwner() || rc.PeerID == peerID {
		return nil
	}
	return aw.Errorf(aw.KindForbidden,
		"resource belongs to another peer")
}
