package web

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/actingweb/actingweb-go/internal/aw"
	"github.com/actingweb/actingweb-go/internal/permissions"
	"github.com/actingweb/actingweb-go/internal/store"
	"github.com/actingweb/actingweb-go/internal/trust"
)

// trustView is a trust row on the wire, optionally with the stored
// permission override embedded.
type trustView struct {
	trust.View
	Permissions *permissions.PermissionSet `json:"permissions,omitempty"`
}

func (s *Server) trustView(
	r *http.Request, t store.Trust, withSecret bool,
) trustView {

	v := trustView{View: trust.ViewOf(t, withSecret)}
	if r.URL.Query().Get("permissions") == "true" {
		set, err := s.eval.GetOverride(r.Context(), t.ActorID, t.PeerID)
		if err == nil {
			v.Permissions = &set
		}
	}
	return v
}

// handleTrustList returns the trusts the accessor may see: all of them
// for the owner, just its own row for a peer or client.
func (s *Server) handleTrustList(w http.ResponseWriter, r *http.Request) {
	a := actorFrom(r)
	rc := aw.FromContext(r.Context())

	trusts, err := s.trusts.List(
		r.Context(), a.ID, r.URL.Query().Get("relationship"),
	)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	views := make([]trustView, 0, len(trusts))
	for _, t := range trusts {
		if !rc.IsOwner() && t.PeerID != rc.PeerID {
			continue
		}
		views = append(views, s.trustView(r, t, rc.IsOwner()))
	}
	writeJSON(w, http.StatusOK, views)
}

type initiateTrustRequest struct {
	URL          string `json:"url"`
	Relationship string `json:"relationship"`
	Desc         string `json:"desc,omitempty"`
}

// handleTrustInitiate starts an outbound trust handshake toward a
// remote actor.
func (s *Server) handleTrustInitiate(w http.ResponseWriter, r *http.Request) {
	a := actorFrom(r)
	rc := aw.FromContext(r.Context())
	if !rc.IsOwner() {
		s.writeError(w, r, aw.Errorf(aw.KindForbidden,
			"only the owner may initiate trusts"))
		return
	}

	var req initiateTrustRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.URL == "" || req.Relationship == "" {
		s.writeError(w, r, aw.Errorf(aw.KindInvalidRequest,
			"url and relationship are required"))
		return
	}

	t, err := s.trusts.CreateReciprocalTrust(
		r.Context(), a.ID, req.URL, req.Relationship, req.Desc,
	)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Location", s.trustURL(a.ID, t))
	writeJSON(w, http.StatusCreated, s.trustView(r, t, true))
}

// handleTrustInbound records a trust request from a remote actor. This
// is the one unauthenticated write of the protocol: the requester has
// no credential yet, its proposed secret becomes the credential.
func (s *Server) handleTrustInbound(w http.ResponseWriter, r *http.Request) {
	a := actorFrom(r)
	relationship := chi.URLParam(r, "relationship")

	var req trust.PeerRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.ID == "" || req.BaseURI == "" || req.Secret == "" {
		s.writeError(w, r, aw.Errorf(aw.KindInvalidRequest,
			"id, baseuri, and secret are required"))
		return
	}

	t, err := s.trusts.CreateVerifiedTrust(
		r.Context(), trust.CreateVerifiedParams{
			ActorID:           a.ID,
			PeerID:            req.ID,
			BaseURI:           req.BaseURI,
			PeerType:          req.Type,
			Relationship:      relationship,
			Secret:            req.Secret,
			Desc:              req.Desc,
			VerificationToken: req.VerificationToken,
		},
	)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Location", s.trustURL(a.ID, t))
	writeJSON(w, http.StatusCreated, s.trustView(r, t, false))
}

// loadTrust resolves the {relationship}/{peerID} pair, enforcing that
// the accessor is the owner or the addressed peer itself.
func (s *Server) loadTrust(r *http.Request) (store.Trust, error) {
	a := actorFrom(r)
	rc := aw.FromContext(r.Context())
	peerID := peerParam(r)

	if !rc.IsOwner() && rc.PeerID != peerID {
		return store.Trust{}, aw.Errorf(aw.KindForbidden,
			"trust %s belongs to another peer", peerID)
	}

	t, err := s.trusts.Get(r.Context(), a.ID, peerID)
	if err != nil {
		return store.Trust{}, err
	}
	if t.Relationship != chi.URLParam(r, "relationship") {
		return store.Trust{}, aw.Errorf(aw.KindNotFound,
			"no %s trust with peer %s",
			chi.URLParam(r, "relationship"), peerID)
	}
	return t, nil
}

func (s *Server) handleTrustGet(w http.ResponseWriter, r *http.Request) {
	t, err := s.loadTrust(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rc := aw.FromContext(r.Context())
	writeJSON(w, http.StatusOK, s.trustView(r, t, rc.IsOwner()))
}

// handleTrustPut records an approval: the owner's own, or the peer
// reporting its side.
func (s *Server) handleTrustPut(w http.ResponseWriter, r *http.Request) {
	t, err := s.loadTrust(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var body trust.PeerApproval
	if err := readJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	rc := aw.FromContext(r.Context())
	if rc.IsOwner() {
		if !body.Approved {
			s.writeError(w, r, aw.Errorf(aw.KindInvalidRequest,
				"approval withdrawal is a DELETE"))
			return
		}
		err = s.trusts.Approve(r.Context(), t.ActorID, t.PeerID)
	} else {
		err = s.trusts.HandlePeerApproval(
			r.Context(), t.ActorID, t.PeerID, body.Approved,
		)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTrustDelete(w http.ResponseWriter, r *http.Request) {
	t, err := s.loadTrust(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// The owner notifies the peer; a peer deleting its own side already
	// knows.
	rc := aw.FromContext(r.Context())
	err = s.trusts.Delete(r.Context(), t.ActorID, t.PeerID, rc.IsOwner())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) requireOwner(r *http.Request) error {
	if !aw.FromContext(r.Context()).IsOwner() {
		return aw.Errorf(aw.KindForbidden, "owner credentials required")
	}
	return nil
}

func (s *Server) handleOverrideGet(w http.ResponseWriter, r *http.Request) {
	if err := s.requireOwner(r); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.loadTrust(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	set, err := s.eval.GetOverride(r.Context(), t.ActorID, t.PeerID)
	if errors.Is(err, permissions.ErrNoOverride) {
		s.writeError(w, r, aw.Errorf(aw.KindNotFound,
			"no override for peer %s", t.PeerID))
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (s *Server) handleOverridePut(w http.ResponseWriter, r *http.Request) {
	if err := s.requireOwner(r); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.loadTrust(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var set permissions.PermissionSet
	if err := readJSON(r, &set); err != nil {
		s.writeError(w, r, err)
		return
	}

	err = s.eval.SetOverride(r.Context(), t.ActorID, t.PeerID, set)
	if err != nil {
		s.writeError(w, r, aw.Wrap(
			aw.KindInvalidRequest, err, "override rejected"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOverrideDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.requireOwner(r); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.loadTrust(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.eval.DeleteOverride(r.Context(), t.ActorID, t.PeerID); err != nil {
		s.writeError(w, r, aw.Wrap(aw.KindFatal, err, "override delete failed"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSharedProperties lists the properties the addressed trust can
// currently read.
func (s *Server) handleSharedProperties(w http.ResponseWriter, r *http.Request) {
	t, err := s.loadTrust(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	props, err := s.actors.ListProperties(r.Context(), t.ActorID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	for name := range props {
		d, err := s.eval.Evaluate(
			r.Context(), t.ActorID, t.PeerID,
			permissions.CategoryProperties, name, permissions.OpRead,
		)
		if err != nil || d != permissions.DecisionAllowed {
			delete(props, name)
		}
	}
	writeJSON(w, http.StatusOK, props)
}

// handleEffectivePermissions returns the merged permission set a peer
// currently holds: trust type base plus any override.
func (s *Server) handleEffectivePermissions(
	w http.ResponseWriter, r *http.Request,
) {
	a := actorFrom(r)
	rc := aw.FromContext(r.Context())
	peerID := peerParam(r)

	if !rc.IsOwner() && rc.PeerID != peerID {
		s.writeError(w, r, aw.Errorf(aw.KindForbidden,
			"permissions of %s are not visible", peerID))
		return
	}

	set, err := s.eval.Effective(r.Context(), a.ID, peerID)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, r, aw.Errorf(aw.KindNotFound,
			"no trust with peer %s", peerID))
		return
	}
	if err != nil {
		s.writeError(w, r, aw.Wrap(aw.KindFatal, err,
			"permission resolution failed"))
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (s *Server) trustURL(actorID string, t store.Trust) string {
	return s.cfg.ActorRoot(actorID) + "/trust/" + t.Relationship +
		"/" + t.PeerID
}
