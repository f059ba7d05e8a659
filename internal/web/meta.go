package web

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/actingweb/actingweb-go/internal/aw"
	"github.com/actingweb/actingweb-go/internal/trust"
)

// metaDoc is the full discovery document served at /meta.
type metaDoc struct {
	ID        string       `json:"id"`
	Type      string       `json:"type"`
	Version   string       `json:"version"`
	Desc      string       `json:"desc"`
	ActingWeb metaProtocol `json:"actingweb"`
}

type metaProtocol struct {
	Version   string `json:"version"`
	Supported string `json:"supported"`
	Formats   string `json:"formats"`
}

func (s *Server) metaFor(actorID string) metaDoc {
	return metaDoc{
		ID:      actorID,
		Type:    trust.PeerType,
		Version: aw.ProtocolVersion,
		Desc:    "ActingWeb actor at " + s.cfg.ActorRoot(actorID),
		ActingWeb: metaProtocol{
			Version:   aw.ProtocolVersion,
			Supported: aw.SupportedTags(),
			Formats:   aw.SupportedFormats,
		},
	}
}

func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metaFor(actorFrom(r).ID))
}

// handleMetaPath serves the scalar sub-paths the protocol defines, as
// text/plain, so peers can probe single values.
func (s *Server) handleMetaPath(w http.ResponseWriter, r *http.Request) {
	doc := s.metaFor(actorFrom(r).ID)
	path := strings.Trim(chi.URLParam(r, "*"), "/")

	if path == "trusttypes" {
		types, err := s.registry.List(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, types)
		return
	}

	var value string
	switch path {
	case "id":
		value = doc.ID
	case "type":
		value = doc.Type
	case "version":
		value = doc.Version
	case "desc":
		value = doc.Desc
	case "actingweb/version":
		value = doc.ActingWeb.Version
	case "actingweb/supported":
		value = doc.ActingWeb.Supported
	case "actingweb/formats":
		value = doc.ActingWeb.Formats
	default:
		s.writeError(w, r, aw.Errorf(aw.KindNotFound,
			"no meta value %s", path))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, value)
}
