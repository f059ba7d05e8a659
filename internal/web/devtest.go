package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/actingweb/actingweb-go/internal/aw"
)

// The /devtest tree exists for integration test harnesses only; the
// devTestOnly middleware hides it entirely in production.

func (s *Server) handleDevTestPing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"pong": actorFrom(r).ID})
}

// handleDevTestDump returns the actor's full state in one document.
func (s *Server) handleDevTestDump(w http.ResponseWriter, r *http.Request) {
	a := actorFrom(r)
	if err := s.requireOwner(r); err != nil {
		s.writeError(w, r, err)
		return
	}

	props, err := s.actors.ListProperties(r.Context(), a.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	trusts, err := s.trusts.List(r.Context(), a.ID, "")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	trustViews := make([]trustView, 0, len(trusts))
	for _, t := range trusts {
		trustViews = append(trustViews, s.trustView(r, t, true))
	}

	subs, err := s.store.ListSubscriptions(r.Context(), a.ID)
	if err != nil {
		s.writeError(w, r, aw.Wrap(aw.KindFatal, err,
			"subscription list failed"))
		return
	}
	subViews := make([]subView, 0, len(subs))
	for _, sub := range subs {
		subViews = append(subViews, subViewOf(sub))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":            a.ID,
		"creator":       a.Creator,
		"created_at":    a.CreatedAt,
		"properties":    props,
		"trusts":        trustViews,
		"subscriptions": subViews,
	})
}

// handleDevTestAttribute exposes raw application attribute storage so
// tests can seed and inspect state.
func (s *Server) handleDevTestAttribute(w http.ResponseWriter, r *http.Request) {
	a := actorFrom(r)
	bucket := chi.URLParam(r, "bucket")
	name := chi.URLParam(r, "name")

	if err := s.requireOwner(r); err != nil {
		s.writeError(w, r, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		attr, err := s.actors.GetAttribute(r.Context(), a.ID, bucket, name)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(attr.Value)

	case http.MethodPut, http.MethodPost:
		value, err := readRawJSON(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		err = s.actors.SetAttribute(r.Context(), a.ID, bucket, name, value, 0)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case http.MethodDelete:
		err := s.actors.DeleteAttribute(r.Context(), a.ID, bucket, name)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.Header().Set("Allow", "GET, PUT, POST, DELETE")
		s.writeError(w, r, aw.Errorf(aw.KindInvalidRequest,
			"method not supported"))
	}
}
