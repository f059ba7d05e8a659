package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/actingweb/actingweb-go/internal/aw"
	"github.com/actingweb/actingweb-go/internal/store"
)

type actorKey struct{}

// requestID preserves an inbound X-Request-ID or mints one, and echoes
// it on the response for correlation.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(aw.HeaderRequestID)
		if id == "" {
			id = aw.RandomID()
		}
		w.Header().Set(aw.HeaderRequestID, id)

		r.Header.Set(aw.HeaderRequestID, id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.log.InfoContext(r.Context(), "Request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", r.Header.Get(aw.HeaderRequestID),
		)
	})
}

// resolveActor loads the addressed actor and stashes it on the context.
// Reserved system actors never serve the wire protocol.
func (s *Server) resolveActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "actorID")
		if strings.HasPrefix(id, aw.ReservedBucketPrefix) {
			s.writeError(w, r, aw.Errorf(aw.KindNotFound,
				"no actor %s", id))
			return
		}

		a, err := s.actors.GetByID(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), actorKey{}, a)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFrom(r *http.Request) store.Actor {
	a, _ := r.Context().Value(actorKey{}).(store.Actor)
	return a
}

// authenticate resolves one of the three credential classes into the
// request-scoped accessor context. Order matters: a bearer value is
// first matched against trust secrets, then against OAuth2 tokens.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a := actorFrom(r)
		rc, err := s.resolveAccessor(r, a)
		if err != nil {
			s.challenge(w, r)
			s.writeError(w, r, err)
			return
		}

		ctx := aw.WithRequestContext(r.Context(), rc)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) resolveAccessor(
	r *http.Request, a store.Actor,
) (*aw.RequestContext, error) {

	rc := &aw.RequestContext{
		ActorID:   a.ID,
		RequestID: r.Header.Get(aw.HeaderRequestID),
	}

	if user, pass, ok := r.BasicAuth(); ok {
		if user != a.Creator && user != "trustee" {
			return nil, aw.Errorf(aw.KindUnauthenticated,
				"unknown user %s", user)
		}
		if !s.actors.VerifyPassphrase(a, pass) {
			return nil, aw.Errorf(aw.KindUnauthenticated,
				"passphrase mismatch")
		}
		rc.Kind = aw.AccessorOwner
		return rc, nil
	}

	token := bearerToken(r)
	if token == "" {
		return nil, aw.Errorf(aw.KindUnauthenticated,
			"no credential presented")
	}

	t, err := s.store.GetTrustBySecret(r.Context(), token)
	if err == nil && t.ActorID == a.ID {
		// An unverified or unapproved trust only reaches the trust
		// resource itself, to poll and withdraw the request.
		if (!t.Approved || !t.Verified) &&
			!strings.Contains(r.URL.Path, "/trust/") {

			return nil, aw.Errorf(aw.KindForbidden,
				"trust with %s is not approved", t.PeerID)
		}
		rc.Kind = aw.AccessorPeer
		rc.PeerID = t.PeerID
		rc.Relationship = t.Relationship
		return rc, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, aw.Wrap(aw.KindFatal, err, "trust lookup failed")
	}

	id, err := s.oauth.Authenticate(r.Context(), token)
	if err != nil {
		return nil, err
	}
	if id.ActorID != a.ID {
		return nil, aw.Errorf(aw.KindUnauthenticated,
			"token is bound to another actor")
	}
	if id.Owner {
		rc.Kind = aw.AccessorOwner
		return rc, nil
	}
	rc.Kind = aw.AccessorClient
	rc.PeerID = id.PeerID
	rc.Relationship = id.Relationship
	rc.ClientID = id.ClientID
	return rc, nil
}

// bearerOnly authenticates an OAuth2 bearer token without an actor in
// the path; the token itself names the actor. Used for the MCP mount.
func (s *Server) bearerOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			s.challenge(w, r)
			s.writeError(w, r, aw.Errorf(aw.KindUnauthenticated,
				"bearer token required"))
			return
		}

		id, err := s.oauth.Authenticate(r.Context(), token)
		if err != nil {
			s.challenge(w, r)
			s.writeError(w, r, err)
			return
		}

		rc := &aw.RequestContext{
			ActorID:      id.ActorID,
			PeerID:       id.PeerID,
			Relationship: id.Relationship,
			ClientID:     id.ClientID,
			RequestID:    r.Header.Get(aw.HeaderRequestID),
		}
		if id.Owner {
			rc.Kind = aw.AccessorOwner
		} else {
			rc.Kind = aw.AccessorClient
		}

		ctx := aw.WithRequestContext(r.Context(), rc)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) devTestOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.DevTest {
			s.writeError(w, r, aw.Errorf(aw.KindNotFound,
				"not found"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "Bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return ""
}

// challenge sets the WWW-Authenticate header ahead of a 401. Bearer
// requests get the RFC 6750 error form MCP clients key on.
func (s *Server) challenge(w http.ResponseWriter, r *http.Request) {
	if bearerToken(r) != "" {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		return
	}
	w.Header().Set("WWW-Authenticate", `Basic realm="actingweb"`)
}

// errorBody is the JSON error envelope.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func statusOf(kind aw.Kind) int {
	switch kind {
	case aw.KindNotFound:
		return http.StatusNotFound
	case aw.KindUnauthenticated:
		return http.StatusUnauthorized
	case aw.KindForbidden:
		return http.StatusForbidden
	case aw.KindInvalidRequest:
		return http.StatusBadRequest
	case aw.KindConflict, aw.KindStateMachineViolation:
		return http.StatusConflict
	case aw.KindRateLimited:
		return http.StatusTooManyRequests
	case aw.KindPeerUnavailable, aw.KindPeerGone:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := aw.KindOf(err)
	status := statusOf(kind)

	msg := "internal error"
	var awErr *aw.Error
	if errors.As(err, &awErr) && kind != aw.KindFatal {
		msg = awErr.Msg
	}
	if status >= http.StatusInternalServerError {
		s.log.ErrorContext(r.Context(), "Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	if kind == aw.KindRateLimited && w.Header().Get("Retry-After") == "" {
		w.Header().Set("Retry-After", "1")
	}

	writeJSON(w, status, errorBody{Error: kind.String(), Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// readJSON decodes a request body, bounding its size.
func readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return aw.Errorf(aw.KindInvalidRequest, "malformed JSON body")
	}
	return nil
}
