package web

import (
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/actingweb/actingweb-go/internal/actor"
	"github.com/actingweb/actingweb-go/internal/aw"
	"github.com/actingweb/actingweb-go/internal/trust"
)

// wantsHTML reports whether the client negotiated an HTML response.
func wantsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html")
}

// handleFactoryGet serves the factory root: a creation form for
// browsers, a small discovery document for everyone else.
func (s *Server) handleFactoryGet(w http.ResponseWriter, r *http.Request) {
	if wantsHTML(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, factoryPage, html.EscapeString(s.cfg.FQDN))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"type":    trust.PeerType,
		"version": aw.ProtocolVersion,
	})
}

type factoryRequest struct {
	Creator    string `json:"creator"`
	Passphrase string `json:"passphrase,omitempty"`
	ID         string `json:"id,omitempty"`
}

type factoryResponse struct {
	ID         string `json:"id"`
	Creator    string `json:"creator"`
	Passphrase string `json:"passphrase"`
	URL        string `json:"url"`
}

// handleFactoryPost mints an actor. The cleartext passphrase appears in
// this response and nowhere else.
func (s *Server) handleFactoryPost(w http.ResponseWriter, r *http.Request) {
	var req factoryRequest
	ct := r.Header.Get("Content-Type")
	if strings.Contains(ct, "application/json") {
		if err := readJSON(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			s.writeError(w, r, aw.Errorf(aw.KindInvalidRequest,
				"malformed form body"))
			return
		}
		req.Creator = r.PostFormValue("creator")
		req.Passphrase = r.PostFormValue("passphrase")
	}

	if req.Creator == "" {
		s.writeError(w, r, aw.Errorf(aw.KindInvalidRequest,
			"creator is required"))
		return
	}

	a, passphrase, err := s.actors.Create(r.Context(), actor.CreateParams{
		ID:         req.ID,
		Creator:    req.Creator,
		Passphrase: req.Passphrase,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	url := s.cfg.ActorRoot(a.ID)
	w.Header().Set("Location", url)

	if wantsHTML(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, createdPage,
			html.EscapeString(url),
			html.EscapeString(a.Creator),
			html.EscapeString(passphrase),
		)
		return
	}

	writeJSON(w, http.StatusCreated, factoryResponse{
		ID:         a.ID,
		Creator:    a.Creator,
		Passphrase: passphrase,
		URL:        url,
	})
}

// handleActorDelete tears the actor down, notifying peers first so they
// can drop their side of each trust.
func (s *Server) handleActorDelete(w http.ResponseWriter, r *http.Request) {
	rc := aw.FromContext(r.Context())
	if !rc.IsOwner() {
		s.writeError(w, r, aw.Errorf(aw.KindForbidden,
			"only the owner may delete the actor"))
		return
	}

	a := actorFrom(r)
	trusts, err := s.trusts.List(r.Context(), a.ID, "")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	for _, t := range trusts {
		err := s.trusts.Delete(r.Context(), a.ID, t.PeerID, true)
		if err != nil {
			s.log.WarnContext(r.Context(), "Trust teardown failed",
				"actor_id", a.ID, "peer_id", t.PeerID, "error", err)
		}
	}

	if err := s.actors.Delete(r.Context(), a.ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleWWW serves the minimal owner page advertised by the www option
// tag.
func (s *Server) handleWWW(w http.ResponseWriter, r *http.Request) {
	rc := aw.FromContext(r.Context())
	if !rc.IsOwner() {
		s.writeError(w, r, aw.Errorf(aw.KindForbidden,
			"owner credentials required"))
		return
	}

	a := actorFrom(r)
	props, err := s.actors.ListProperties(r.Context(), a.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, wwwPageHead,
		html.EscapeString(a.ID), html.EscapeString(a.Creator))
	for _, name := range sortedNames(props) {
		fmt.Fprintf(w, "<tr><td>%s</td><td><code>%s</code></td></tr>\n",
			html.EscapeString(name),
			html.EscapeString(string(props[name])),
		)
	}
	fmt.Fprint(w, wwwPageFoot)
}

// peerParam reads the peerID path parameter.
func peerParam(r *http.Request) string {
	return chi.URLParam(r, "peerID")
}

const factoryPage = `<!DOCTYPE html>
<html><head><title>ActingWeb</title></head><body>
<h1>Create an actor on %s</h1>
<form method="post">
<label>Creator <input name="creator"></label>
<label>Passphrase <input name="passphrase" type="password"></label>
<button type="submit">Create</button>
</form>
</body></html>
`

const createdPage = `<!DOCTYPE html>
<html><head><title>Actor created</title></head><body>
<h1>Actor created</h1>
<p>URL: <a href="%s">%[1]s</a></p>
<p>Creator: %s</p>
<p>Passphrase (shown once): <code>%s</code></p>
</body></html>
`

const wwwPageHead = `<!DOCTYPE html>
<html><head><title>Actor %s</title></head><body>
<h1>Actor %[1]s</h1>
<p>Creator: %s</p>
<table><tr><th>Property</th><th>Value</th></tr>
`

const wwwPageFoot = `</table>
</body></html>
`
