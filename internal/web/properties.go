package web

import (
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/actingweb/actingweb-go/internal/aw"
	"github.com/actingweb/actingweb-go/internal/permissions"
)

// opForMethod maps the HTTP verb onto the permission operation.
func opForMethod(method string) permissions.Operation {
	switch method {
	case http.MethodGet:
		return permissions.OpRead
	case http.MethodDelete:
		return permissions.OpDelete
	default:
		return permissions.OpWrite
	}
}

// authorize gates one target for the current accessor. Owners bypass
// the evaluator.
func (s *Server) authorize(
	r *http.Request, category permissions.Category, target string,
	op permissions.Operation,
) error {

	rc := aw.FromContext(r.Context())
	if rc.IsOwner() {
		return nil
	}

	d, err := s.eval.Evaluate(
		r.Context(), rc.ActorID, rc.PeerID, category, target, op,
	)
	if err != nil {
		return err
	}
	if d != permissions.DecisionAllowed {
		return aw.Errorf(aw.KindForbidden,
			"%s on %s/%s is not permitted", op, category, target)
	}
	return nil
}

// handlePropertiesList returns every property the accessor may read,
// scalar properties and lists alike. An empty collection is 200 {}.
func (s *Server) handlePropertiesList(w http.ResponseWriter, r *http.Request) {
	a := actorFrom(r)
	rc := aw.FromContext(r.Context())

	props, err := s.actors.ListProperties(r.Context(), a.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	metas, err := s.actors.ListLists(r.Context(), a.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	for _, meta := range metas {
		items, err := s.actors.GetListItems(r.Context(), a.ID, meta.ListName)
		if err != nil {
			continue
		}
		blob, err := json.Marshal(items)
		if err != nil {
			continue
		}
		props[meta.ListName] = blob
	}

	if !rc.IsOwner() {
		for name := range props {
			err := s.authorize(r, permissions.CategoryProperties,
				name, permissions.OpRead)
			if err != nil {
				delete(props, name)
			}
		}
	}

	if props == nil {
		props = map[string]json.RawMessage{}
	}
	writeJSON(w, http.StatusOK, props)
}

// handlePropertiesBulk sets several properties from one JSON object.
func (s *Server) handlePropertiesBulk(w http.ResponseWriter, r *http.Request) {
	a := actorFrom(r)

	var body map[string]json.RawMessage
	if err := readJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(body) == 0 {
		s.writeError(w, r, aw.Errorf(aw.KindInvalidRequest,
			"empty property object"))
		return
	}

	for _, name := range sortedNames(body) {
		err := s.authorize(r, permissions.CategoryProperties,
			name, permissions.OpWrite)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	for _, name := range sortedNames(body) {
		err := s.actors.SetProperty(r.Context(), a.ID, name, body[name])
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePropertiesDeleteAll(
	w http.ResponseWriter, r *http.Request,
) {
	a := actorFrom(r)

	err := s.authorize(r, permissions.CategoryProperties,
		"*", permissions.OpDelete)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.actors.DeleteAllProperties(r.Context(), a.ID); err != nil {
		s.writeError(w, r, err)
		return
	}

	metas, err := s.actors.ListLists(r.Context(), a.ID)
	if err == nil {
		for _, meta := range metas {
			_ = s.actors.DeleteList(r.Context(), a.ID, meta.ListName)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleProperty serves /properties/{name} and everything below it:
// deep JSON paths, list items, and list metadata.
func (s *Server) handleProperty(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(pathWildcard(r), "/")
	if rest == "" {
		s.writeError(w, r, aw.Errorf(aw.KindNotFound, "no property named"))
		return
	}
	segs := strings.Split(rest, "/")
	name := segs[0]

	if len(segs) == 2 && (segs[1] == "items" || segs[1] == "metadata") {
		// A scalar property may itself hold an items or metadata key;
		// the list subresources only claim the path when no scalar
		// property shadows the name.
		_, err := s.actors.GetProperty(r.Context(), actorFrom(r).ID, name)
		if aw.IsNotFound(err) {
			if segs[1] == "items" {
				s.handleListItems(w, r, name)
			} else {
				s.handleListMetadata(w, r, name)
			}
			return
		}
	}

	err := s.authorize(r, permissions.CategoryProperties,
		rest, opForMethod(r.Method))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.propertyGet(w, r, name, segs[1:])
	case http.MethodPut, http.MethodPost:
		s.propertySet(w, r, name, segs[1:])
	case http.MethodDelete:
		s.propertyDelete(w, r, name, segs[1:])
	default:
		w.Header().Set("Allow", "GET, PUT, POST, DELETE")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) propertyGet(
	w http.ResponseWriter, r *http.Request, name string, path []string,
) {
	a := actorFrom(r)

	value, err := s.actors.GetProperty(r.Context(), a.ID, name)
	if aw.IsNotFound(err) && len(path) == 0 {
		// A list property answers GET with its items.
		items, lerr := s.actors.GetListItems(r.Context(), a.ID, name)
		if lerr == nil {
			writeJSON(w, http.StatusOK, items)
			return
		}
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	value, err = descend(value, path)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(value)
}

func (s *Server) propertySet(
	w http.ResponseWriter, r *http.Request, name string, path []string,
) {
	a := actorFrom(r)

	value, err := readRawJSON(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if len(path) > 0 {
		root, err := s.actors.GetProperty(r.Context(), a.ID, name)
		if aw.IsNotFound(err) {
			root = json.RawMessage(`{}`)
		} else if err != nil {
			s.writeError(w, r, err)
			return
		}
		value, err = graft(root, path, value)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	if err := s.actors.SetProperty(r.Context(), a.ID, name, value); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) propertyDelete(
	w http.ResponseWriter, r *http.Request, name string, path []string,
) {
	a := actorFrom(r)

	if len(path) > 0 {
		root, err := s.actors.GetProperty(r.Context(), a.ID, name)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		root, err = prune(root, path)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		err = s.actors.SetProperty(r.Context(), a.ID, name, root)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	err := s.actors.DeleteProperty(r.Context(), a.ID, name)
	if aw.IsNotFound(err) {
		// The name may address a list instead.
		err = s.actors.DeleteList(r.Context(), a.ID, name)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListItems serves POST and DELETE on /properties/{name}/items,
// addressing single items by the index query parameter.
func (s *Server) handleListItems(
	w http.ResponseWriter, r *http.Request, name string,
) {
	a := actorFrom(r)

	err := s.authorize(r, permissions.CategoryProperties,
		name, opForMethod(r.Method))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	idxParam := r.URL.Query().Get("index")

	switch r.Method {
	case http.MethodGet:
		if idxParam == "" {
			items, err := s.actors.GetListItems(r.Context(), a.ID, name)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, items)
			return
		}
		idx, err := parseIndex(idxParam)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		item, err := s.actors.GetListItem(r.Context(), a.ID, name, idx)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(item)

	case http.MethodPost:
		item, err := readRawJSON(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if idxParam == "" {
			err = s.actors.ListAppend(r.Context(), a.ID, name, item)
		} else {
			var idx int
			idx, err = parseIndex(idxParam)
			if err == nil {
				err = s.actors.ListUpdateAt(
					r.Context(), a.ID, name, idx, item,
				)
			}
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case http.MethodDelete:
		var err error
		if idxParam == "" {
			err = s.actors.ClearList(r.Context(), a.ID, name)
		} else {
			var idx int
			idx, err = parseIndex(idxParam)
			if err == nil {
				err = s.actors.ListDeleteAt(r.Context(), a.ID, name, idx)
			}
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// listMetaView is the wire form of list metadata.
type listMetaView struct {
	List        string `json:"list"`
	Description string `json:"description,omitempty"`
	Explanation string `json:"explanation,omitempty"`
	Length      int64  `json:"length"`
}

func (s *Server) handleListMetadata(
	w http.ResponseWriter, r *http.Request, name string,
) {
	a := actorFrom(r)

	err := s.authorize(r, permissions.CategoryProperties,
		name, opForMethod(r.Method))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		meta, err := s.actors.GetListMeta(r.Context(), a.ID, name)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, listMetaView{
			List:        meta.ListName,
			Description: meta.Description,
			Explanation: meta.Explanation,
			Length:      meta.Length,
		})

	case http.MethodPut:
		var body listMetaView
		if err := readJSON(r, &body); err != nil {
			s.writeError(w, r, err)
			return
		}
		err := s.actors.UpdateListMeta(
			r.Context(), a.ID, name, body.Description, body.Explanation,
		)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.Header().Set("Allow", "GET, PUT")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// descend walks a JSON value along object keys and array indexes.
func descend(value json.RawMessage, path []string) (json.RawMessage, error) {
	for _, seg := range path {
		var node any
		if err := json.Unmarshal(value, &node); err != nil {
			return nil, aw.Errorf(aw.KindNotFound,
				"no value under %s", seg)
		}

		switch v := node.(type) {
		case map[string]any:
			child, ok := v[seg]
			if !ok {
				return nil, aw.Errorf(aw.KindNotFound,
					"no value under %s", seg)
			}
			blob, err := json.Marshal(child)
			if err != nil {
				return nil, aw.Wrap(aw.KindFatal, err, "encode failed")
			}
			value = blob
		case []any:
			idx, err := parseIndex(seg)
			if err != nil || idx >= len(v) {
				return nil, aw.Errorf(aw.KindNotFound,
					"no value under %s", seg)
			}
			blob, err := json.Marshal(v[idx])
			if err != nil {
				return nil, aw.Wrap(aw.KindFatal, err, "encode failed")
			}
			value = blob
		default:
			return nil, aw.Errorf(aw.KindNotFound,
				"no value under %s", seg)
		}
	}
	return value, nil
}

// graft writes a value into a JSON object tree, creating intermediate
// objects along the path.
func graft(
	root json.RawMessage, path []string, value json.RawMessage,
) (json.RawMessage, error) {

	var node map[string]json.RawMessage
	if err := json.Unmarshal(root, &node); err != nil {
		return nil, aw.Errorf(aw.KindInvalidRequest,
			"property is not an object")
	}
	if node == nil {
		node = map[string]json.RawMessage{}
	}

	if len(path) == 1 {
		node[path[0]] = value
	} else {
		child, ok := node[path[0]]
		if !ok {
			child = json.RawMessage(`{}`)
		}
		grafted, err := graft(child, path[1:], value)
		if err != nil {
			return nil, err
		}
		node[path[0]] = grafted
	}
	return json.Marshal(node)
}

// prune removes the value at the path from a JSON object tree.
func prune(root json.RawMessage, path []string) (json.RawMessage, error) {
	var node map[string]json.RawMessage
	if err := json.Unmarshal(root, &node); err != nil {
		return nil, aw.Errorf(aw.KindInvalidRequest,
			"property is not an object")
	}

	child, ok := node[path[0]]
	if !ok {
		return nil, aw.Errorf(aw.KindNotFound, "no value under %s", path[0])
	}
	if len(path) == 1 {
		delete(node, path[0])
	} else {
		pruned, err := prune(child, path[1:])
		if err != nil {
			return nil, err
		}
		node[path[0]] = pruned
	}
	return json.Marshal(node)
}

func parseIndex(s string) (int, error) {
	idx, err := strconv.Atoi(s)
	if err != nil || idx < 0 {
		return 0, aw.Errorf(aw.KindInvalidRequest, "bad index %q", s)
	}
	return idx, nil
}

// readRawJSON reads and validates the request body as one JSON value.
func readRawJSON(r *http.Request) (json.RawMessage, error) {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err != nil {
		return nil, aw.Errorf(aw.KindInvalidRequest, "body read failed")
	}
	if !json.Valid(body) {
		return nil, aw.Errorf(aw.KindInvalidRequest, "malformed JSON body")
	}
	return body, nil
}

func sortedNames(m map[string]json.RawMessage) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// pathWildcard returns the chi "*" parameter.
func pathWildcard(r *http.Request) string {
	return chi.URLParam(r, "*")
}
