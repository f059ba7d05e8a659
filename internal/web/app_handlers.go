package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/actingweb/actingweb-go/internal/aw"
	"github.com/actingweb/actingweb-go/internal/hooks"
	"github.com/actingweb/actingweb-go/internal/permissions"
)

func (s *Server) handleMethodsList(w http.ResponseWriter, r *http.Request) {
	s.listHandlers(w, r, permissions.CategoryMethods, s.hooks.Methods())
}

func (s *Server) handleActionsList(w http.ResponseWriter, r *http.Request) {
	s.listHandlers(w, r, permissions.CategoryActions, s.hooks.Actions())
}

func (s *Server) handleResourcesList(w http.ResponseWriter, r *http.Request) {
	s.listHandlers(w, r, permissions.CategoryResources, s.hooks.Resources())
}

// listHandlers renders the descriptors of one surface, filtered to what
// the accessor may see.
func (s *Server) listHandlers(
	w http.ResponseWriter, r *http.Request,
	category permissions.Category, handlers []hooks.Handler,
) {
	out := make([]hooks.Descriptor, 0, len(handlers))
	for _, h := range handlers {
		err := s.authorize(r, category, h.Name, permissions.OpRead)
		if err != nil {
			continue
		}
		out = append(out, h.Descriptor)
	}
	writeJSON(w, http.StatusOK, map[string]any{string(category): out})
}

func (s *Server) handleMethodInvoke(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	h, ok := s.hooks.Method(name)
	if !ok {
		s.writeError(w, r, aw.Errorf(aw.KindNotFound, "no method %s", name))
		return
	}
	s.invoke(w, r, permissions.CategoryMethods, h)
}

func (s *Server) handleActionInvoke(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	h, ok := s.hooks.Action(name)
	if !ok {
		s.writeError(w, r, aw.Errorf(aw.KindNotFound, "no action %s", name))
		return
	}
	s.invoke(w, r, permissions.CategoryActions, h)
}

// invoke runs one method or action handler under the accessor's
// permissions. Async handlers are acknowledged with 202 and run off
// the request path.
func (s *Server) invoke(
	w http.ResponseWriter, r *http.Request,
	category permissions.Category, h hooks.Handler,
) {
	a := actorFrom(r)

	err := s.authorize(r, category, h.Name, permissions.OpWrite)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	input, err := readBodyOrEmpty(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if h.Async {
		ctx := context.WithoutCancel(r.Context())
		go func() {
			if _, err := h.Fn(ctx, a.ID, input); err != nil {
				s.log.WarnContext(ctx, "Async handler failed",
					"name", h.Name, "actor_id", a.ID, "error", err)
			}
		}()
		w.WriteHeader(http.StatusAccepted)
		return
	}

	out, err := h.Fn(r.Context(), a.ID, input)
	if errors.Is(err, hooks.ErrRejected) {
		s.writeError(w, r, aw.Wrap(aw.KindForbidden, err,
			h.Name+" refused"))
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(out) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(out)
}

// resourceInput is what a resource handler receives for a wire request.
type resourceInput struct {
	Path   string          `json:"path"`
	Method string          `json:"method"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// handleResource dispatches /resources/{path} to the registered
// resource handler whose name pattern matches the path.
func (s *Server) handleResource(w http.ResponseWriter, r *http.Request) {
	a := actorFrom(r)
	target := pathWildcard(r)
	if target == "" {
		s.writeError(w, r, aw.Errorf(aw.KindNotFound, "no resource named"))
		return
	}

	h, ok := s.hooks.Resource(target)
	if !ok {
		s.writeError(w, r, aw.Errorf(aw.KindNotFound,
			"no resource %s", target))
		return
	}

	err := s.authorize(r, permissions.CategoryResources,
		target, opForMethod(r.Method))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var body json.RawMessage
	if r.Method != http.MethodGet {
		body, err = readBodyOrEmpty(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	input, err := json.Marshal(resourceInput{
		Path:   target,
		Method: r.Method,
		Body:   body,
	})
	if err != nil {
		s.writeError(w, r, aw.Wrap(aw.KindFatal, err, "encode failed"))
		return
	}

	out, err := h.Fn(r.Context(), a.ID, input)
	if errors.Is(err, hooks.ErrRejected) {
		s.writeError(w, r, aw.Wrap(aw.KindForbidden, err,
			"resource refused"))
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(out) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(out)
}

// readBodyOrEmpty reads a JSON body, treating an absent one as the
// empty object.
func readBodyOrEmpty(r *http.Request) (json.RawMessage, error) {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err != nil {
		return nil, aw.Errorf(aw.KindInvalidRequest, "body read failed")
	}
	if len(body) == 0 {
		return json.RawMessage(`{}`), nil
	}
	if !json.Valid(body) {
		return nil, aw.Errorf(aw.KindInvalidRequest, "malformed JSON body")
	}
	return body, nil
}
