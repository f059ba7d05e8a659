package actor

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/actingweb/actingweb-go/internal/aw"
	"github.com/actingweb/actingweb-go/internal/store"
)

// List diff operations as they appear on the wire.
const (
	ListOpAppend    = "append"
	ListOpInsert    = "insert"
	ListOpUpdate    = "update"
	ListOpExtend    = "extend"
	ListOpDelete    = "delete"
	ListOpClear     = "clear"
	ListOpDeleteAll = "delete_all"
	ListOpMetadata  = "metadata"
)

// ListDiff is the change envelope published for list operations. Length
// is always the post-operation list length.
type ListDiff struct {
	List      string            `json:"list"`
	Operation string            `json:"operation"`
	Item      json.RawMessage   `json:"item,omitempty"`
	Items     []json.RawMessage `json:"items,omitempty"`
	Index     *int              `json:"index,omitempty"`
	Length    int64             `json:"length"`
}

// CreateList creates an empty list. The name must not collide with a
// scalar property.
func (s *Service) CreateList(
	ctx context.Context, actorID, name, description, explanation string,
) (store.ListMeta, error) {

	if err := s.checkNoProperty(ctx, actorID, name); err != nil {
		return store.ListMeta{}, err
	}

	meta, err := s.store.CreateList(ctx, store.CreateListParams{
		ActorID:     actorID,
		ListName:    name,
		Description: description,
		Explanation: explanation,
	})
	if err != nil {
		return store.ListMeta{}, mapStoreErr(err, "list create failed")
	}

	s.publishListDiff(ctx, actorID, ListDiff{
		List:      name,
		Operation: ListOpMetadata,
		Length:    0,
	})
	return meta, nil
}

// GetListMeta reads the metadata of a list.
func (s *Service) GetListMeta(
	ctx context.Context, actorID, name string,
) (store.ListMeta, error) {

	meta, err := s.store.GetListMeta(ctx, actorID, name)
	if err != nil {
		return store.ListMeta{}, mapStoreErr(err, "list meta read failed")
	}
	return meta, nil
}

// ListLists reads the metadata of every list of the actor.
func (s *Service) ListLists(
	ctx context.Context, actorID string,
) ([]store.ListMeta, error) {

	metas, err := s.store.ListLists(ctx, actorID)
	if err != nil {
		return nil, mapStoreErr(err, "list enumeration failed")
	}
	return metas, nil
}

// UpdateListMeta rewrites the description and explanation of a list and
// publishes a metadata diff.
func (s *Service) UpdateListMeta(
	ctx context.Context, actorID, name, description, explanation string,
) error {

	err := s.store.UpdateListMeta(ctx, actorID, name, description, explanation)
	if err != nil {
		return mapStoreErr(err, "list meta update failed")
	}

	meta, err := s.store.GetListMeta(ctx, actorID, name)
	if err != nil {
		return mapStoreErr(err, "list meta read failed")
	}

	s.publishListDiff(ctx, actorID, ListDiff{
		List:      name,
		Operation: ListOpMetadata,
		Length:    meta.Length,
	})
	return nil
}

// GetListItems reads the whole list in order.
func (s *Service) GetListItems(
	ctx context.Context, actorID, name string,
) ([]json.RawMessage, error) {

	items, err := s.store.GetListItems(ctx, actorID, name)
	if err != nil {
		return nil, mapStoreErr(err, "list read failed")
	}
	return items, nil
}

// GetListItem reads the item at an index.
func (s *Service) GetListItem(
	ctx context.Context, actorID, name string, idx int,
) (json.RawMessage, error) {

	item, err := s.store.GetListItem(ctx, actorID, name, idx)
	if err != nil {
		return nil, mapStoreErr(err, "list item read failed")
	}
	return item, nil
}

// ListAppend appends one item, creating the list on first use.
func (s *Service) ListAppend(
	ctx context.Context, actorID, name string, item json.RawMessage,
) error {

	if err := s.ensureList(ctx, actorID, name); err != nil {
		return err
	}

	err := s.store.AppendListItems(ctx, actorID, name, []json.RawMessage{item})
	if err != nil {
		return mapStoreErr(err, "list append failed")
	}

	meta, err := s.store.GetListMeta(ctx, actorID, name)
	if err != nil {
		return mapStoreErr(err, "list meta read failed")
	}

	idx := int(meta.Length - 1)
	s.publishListDiff(ctx, actorID, ListDiff{
		List:      name,
		Operation: ListOpAppend,
		Item:      item,
		Index:     &idx,
		Length:    meta.Length,
	})
	return nil
}

// ListExtend appends multiple items, creating the list on first use.
func (s *Service) ListExtend(
	ctx context.Context, actorID, name string, items []json.RawMessage,
) error {

	if len(items) == 0 {
		return nil
	}
	if err := s.ensureList(ctx, actorID, name); err != nil {
		return err
	}

	if err := s.store.AppendListItems(ctx, actorID, name, items); err != nil {
		return mapStoreErr(err, "list extend failed")
	}

	meta, err := s.store.GetListMeta(ctx, actorID, name)
	if err != nil {
		return mapStoreErr(err, "list meta read failed")
	}

	s.publishListDiff(ctx, actorID, ListDiff{
		List:      name,
		Operation: ListOpExtend,
		Items:     items,
		Length:    meta.Length,
	})
	return nil
}

// ListInsert inserts an item at an index, shifting the tail up.
func (s *Service) ListInsert(
	ctx context.Context, actorID, name string, idx int,
	item json.RawMessage,
) error {

	err := s.store.InsertListItem(ctx, actorID, name, idx, item)
	if err != nil {
		return mapStoreErr(err, "list insert failed")
	}

	meta, err := s.store.GetListMeta(ctx, actorID, name)
	if err != nil {
		return mapStoreErr(err, "list meta read failed")
	}

	s.publishListDiff(ctx, actorID, ListDiff{
		List:      name,
		Operation: ListOpInsert,
		Item:      item,
		Index:     &idx,
		Length:    meta.Length,
	})
	return nil
}

// ListUpdateAt replaces the item at an index.
func (s *Service) ListUpdateAt(
	ctx context.Context, actorID, name string, idx int,
	item json.RawMessage,
) error {

	err := s.store.UpdateListItem(ctx, actorID, name, idx, item)
	if err != nil {
		return mapStoreErr(err, "list update failed")
	}

	meta, err := s.store.GetListMeta(ctx, actorID, name)
	if err != nil {
		return mapStoreErr(err, "list meta read failed")
	}

	s.publishListDiff(ctx, actorID, ListDiff{
		List:      name,
		Operation: ListOpUpdate,
		Item:      item,
		Index:     &idx,
		Length:    meta.Length,
	})
	return nil
}

// ListDeleteAt deletes the item at an index, shifting the tail down.
func (s *Service) ListDeleteAt(
	ctx context.Context, actorID, name string, idx int,
) error {

	if err := s.store.DeleteListItem(ctx, actorID, name, idx); err != nil {
		return mapStoreErr(err, "list delete failed")
	}

	meta, err := s.store.GetListMeta(ctx, actorID, name)
	if err != nil {
		return mapStoreErr(err, "list meta read failed")
	}

	s.publishListDiff(ctx, actorID, ListDiff{
		List:      name,
		Operation: ListOpDelete,
		Index:     &idx,
		Length:    meta.Length,
	})
	return nil
}

// ClearList removes every item but keeps the list.
func (s *Service) ClearList(ctx context.Context, actorID, name string) error {
	if err := s.store.ClearList(ctx, actorID, name); err != nil {
		return mapStoreErr(err, "list clear failed")
	}

	s.publishListDiff(ctx, actorID, ListDiff{
		List:      name,
		Operation: ListOpClear,
		Length:    0,
	})
	return nil
}

// DeleteList removes the list, its items, and its metadata.
func (s *Service) DeleteList(ctx context.Context, actorID, name string) error {
	if err := s.store.DeleteList(ctx, actorID, name); err != nil {
		return mapStoreErr(err, "list delete failed")
	}

	s.publishListDiff(ctx, actorID, ListDiff{
		List:      name,
		Operation: ListOpDeleteAll,
		Length:    0,
	})
	return nil
}

// ensureList creates the metadata row on first write to a list name,
// enforcing the disjoint namespace on the way.
func (s *Service) ensureList(ctx context.Context, actorID, name string) error {
	_, err := s.store.GetListMeta(ctx, actorID, name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return aw.Wrap(aw.KindFatal, err, "list lookup failed")
	}

	if err := s.checkNoProperty(ctx, actorID, name); err != nil {
		return err
	}

	_, err = s.store.CreateList(ctx, store.CreateListParams{
		ActorID:  actorID,
		ListName: name,
	})
	if err != nil && !errors.Is(err, store.ErrDuplicate) {
		return mapStoreErr(err, "list create failed")
	}
	return nil
}

// checkNoProperty enforces the disjoint property/list namespace.
func (s *Service) checkNoProperty(
	ctx context.Context, actorID, name string,
) error {

	_, err := s.store.GetProperty(ctx, actorID, name)
	if err == nil {
		return aw.Errorf(aw.KindInvalidRequest,
			"a property named %s already exists", name)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return aw.Wrap(aw.KindFatal, err, "property lookup failed")
	}
	return nil
}

// publishListDiff registers the change envelope under the list's public
// name on the properties target.
func (s *Service) publishListDiff(
	ctx context.Context, actorID string, diff ListDiff,
) {
	blob, err := json.Marshal(diff)
	if err != nil {
		s.log.WarnContext(ctx, "List diff encode failed",
			"actor_id", actorID, "list", diff.List, "error", err)
		return
	}
	s.registerDiff(ctx, actorID, TargetProperties, diff.List, "", blob)
}
