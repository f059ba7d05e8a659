package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/actingweb/actingweb-go/internal/db/sqlc"
)

// ListStore implementation.

// CreateList creates list metadata for a new, empty list.
func (s *SqlcStore) CreateList(
	ctx context.Context, params CreateListParams,
) (ListMeta, error) {

	now := time.Now().Unix()
	m, err := s.queries.CreateListMeta(ctx, sqlc.CreateListMetaParams{
		ActorID:     params.ActorID,
		ListName:    params.ListName,
		Description: params.Description,
		Explanation: params.Explanation,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return ListMeta{}, fmt.Errorf(
			"failed to create list: %w", mapStoreErr(err),
		)
	}
	return ListMetaFromSqlc(m), nil
}

// GetListMeta retrieves the metadata of a list.
func (s *SqlcStore) GetListMeta(
	ctx context.Context, actorID, listName string,
) (ListMeta, error) {

	m, err := s.queries.GetListMeta(ctx, sqlc.GetListMetaParams{
		ActorID:  actorID,
		ListName: listName,
	})
	if err != nil {
		return ListMeta{}, fmt.Errorf(
			"failed to get list meta: %w", mapStoreErr(err),
		)
	}
	return ListMetaFromSqlc(m), nil
}

// ListLists retrieves the metadata of all lists of an actor.
func (s *SqlcStore) ListLists(
	ctx context.Context, actorID string,
) ([]ListMeta, error) {

	rows, err := s.queries.ListListMetas(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to list lists: %w", mapStoreErr(err),
		)
	}

	metas := make([]ListMeta, len(rows))
	for i, r := range rows {
		metas[i] = ListMetaFromSqlc(r)
	}
	return metas, nil
}

// UpdateListMeta updates the description and explanation of a list.
func (s *SqlcStore) UpdateListMeta(
	ctx context.Context, actorID, listName, description,
	explanation string,
) error {

	err := s.queries.UpdateListMeta(ctx, sqlc.UpdateListMetaParams{
		Description: description,
		Explanation: explanation,
		UpdatedAt:   time.Now().Unix(),
		ActorID:     actorID,
		ListName:    listName,
	})
	if err != nil {
		return fmt.Errorf(
			"failed to update list meta: %w", mapStoreErr(err),
		)
	}
	return nil
}

// DeleteList deletes a list along with its items and metadata.
func (s *SqlcStore) DeleteList(
	ctx context.Context, actorID, listName string,
) error {

	return s.WithTx(ctx, func(ctx context.Context, st Store) error {
		tx := st.(*SqlcStore)

		err := tx.queries.DeleteListItems(ctx, sqlc.DeleteListItemsParams{
			ActorID:  actorID,
			ListName: listName,
		})
		if err != nil {
			return fmt.Errorf(
				"failed to delete list items: %w",
				mapStoreErr(err),
			)
		}

		err = tx.queries.DeleteListMeta(ctx, sqlc.DeleteListMetaParams{
			ActorID:  actorID,
			ListName: listName,
		})
		if err != nil {
			return fmt.Errorf(
				"failed to delete list meta: %w",
				mapStoreErr(err),
			)
		}
		return nil
	})
}

// AppendListItems appends items to the end of a list.
func (s *SqlcStore) AppendListItems(
	ctx context.Context, actorID, listName string,
	items []json.RawMessage,
) error {

	if len(items) == 0 {
		return nil
	}

	return s.WithTx(ctx, func(ctx context.Context, st Store) error {
		tx := st.(*SqlcStore)

		meta, err := tx.queries.GetListMeta(ctx, sqlc.GetListMetaParams{
			ActorID:  actorID,
			ListName: listName,
		})
		if err != nil {
			return fmt.Errorf(
				"failed to get list meta: %w", mapStoreErr(err),
			)
		}

		for i, item := range items {
			err := tx.queries.InsertListItem(
				ctx, sqlc.InsertListItemParams{
					ActorID:  actorID,
					ListName: listName,
					Idx:      meta.Length + int64(i),
					Item:     []byte(item),
				},
			)
			if err != nil {
				return fmt.Errorf(
					"failed to insert list item: %w",
					mapStoreErr(err),
				)
			}
		}

		return tx.setListLength(
			ctx, actorID, listName, meta.Length+int64(len(items)),
		)
	})
}

// InsertListItem inserts an item at the given index, shifting subsequent
// items up by one.
func (s *SqlcStore) InsertListItem(
	ctx context.Context, actorID, listName string, idx int,
	item json.RawMessage,
) error {

	return s.WithTx(ctx, func(ctx context.Context, st Store) error {
		tx := st.(*SqlcStore)

		meta, err := tx.queries.GetListMeta(ctx, sqlc.GetListMetaParams{
			ActorID:  actorID,
			ListName: listName,
		})
		if err != nil {
			return fmt.Errorf(
				"failed to get list meta: %w", mapStoreErr(err),
			)
		}

		if idx < 0 || int64(idx) > meta.Length {
			return fmt.Errorf(
				"%w: list index %d out of range [0, %d]",
				ErrNotFound, idx, meta.Length,
			)
		}

		// Shift trailing items up by one, highest index first, to
		// avoid primary key collisions.
		for i := meta.Length - 1; i >= int64(idx); i-- {
			err := tx.queries.UpdateListItemIdx(
				ctx, sqlc.UpdateListItemIdxParams{
					NewIdx:   i + 1,
					ActorID:  actorID,
					ListName: listName,
					Idx:      i,
				},
			)
			if err != nil {
				return fmt.Errorf(
					"failed to shift list item: %w",
					mapStoreErr(err),
				)
			}
		}

		err = tx.queries.InsertListItem(ctx, sqlc.InsertListItemParams{
			ActorID:  actorID,
			ListName: listName,
			Idx:      int64(idx),
			Item:     []byte(item),
		})
		if err != nil {
			return fmt.Errorf(
				"failed to insert list item: %w",
				mapStoreErr(err),
			)
		}

		return tx.setListLength(ctx, actorID, listName, meta.Length+1)
	})
}

// GetListItem retrieves the item at the given index.
func (s *SqlcStore) GetListItem(
	ctx context.Context, actorID, listName string, idx int,
) (json.RawMessage, error) {

	item, err := s.queries.GetListItem(ctx, sqlc.GetListItemParams{
		ActorID:  actorID,
		ListName: listName,
		Idx:      int64(idx),
	})
	if err != nil {
		return nil, fmt.Errorf(
			"failed to get list item: %w", mapStoreErr(err),
		)
	}
	return json.RawMessage(item.Item), nil
}

// GetListItems retrieves all items of a list in order.
func (s *SqlcStore) GetListItems(
	ctx context.Context, actorID, listName string,
) ([]json.RawMessage, error) {

	rows, err := s.queries.GetListItems(ctx, sqlc.GetListItemsParams{
		ActorID:  actorID,
		ListName: listName,
	})
	if err != nil {
		return nil, fmt.Errorf(
			"failed to get list items: %w", mapStoreErr(err),
		)
	}

	items := make([]json.RawMessage, len(rows))
	for i, r := range rows {
		items[i] = json.RawMessage(r.Item)
	}
	return items, nil
}

// UpdateListItem replaces the item at the given index.
func (s *SqlcStore) UpdateListItem(
	ctx context.Context, actorID, listName string, idx int,
	item json.RawMessage,
) error {

	return s.WithTx(ctx, func(ctx context.Context, st Store) error {
		tx := st.(*SqlcStore)

		// Probe existence first so out-of-range updates surface as
		// not found rather than silent no-ops.
		_, err := tx.queries.GetListItem(ctx, sqlc.GetListItemParams{
			ActorID:  actorID,
			ListName: listName,
			Idx:      int64(idx),
		})
		if err != nil {
			return fmt.Errorf(
				"failed to get list item: %w", mapStoreErr(err),
			)
		}

		err = tx.queries.UpdateListItem(ctx, sqlc.UpdateListItemParams{
			Item:     []byte(item),
			ActorID:  actorID,
			ListName: listName,
			Idx:      int64(idx),
		})
		if err != nil {
			return fmt.Errorf(
				"failed to update list item: %w",
				mapStoreErr(err),
			)
		}
		return nil
	})
}

// DeleteListItem deletes the item at the given index, shifting subsequent
// items down by one.
func (s *SqlcStore) DeleteListItem(
	ctx context.Context, actorID, listName string, idx int,
) error {

	return s.WithTx(ctx, func(ctx context.Context, st Store) error {
		tx := st.(*SqlcStore)

		meta, err := tx.queries.GetListMeta(ctx, sqlc.GetListMetaParams{
			ActorID:  actorID,
			ListName: listName,
		})
		if err != nil {
			return fmt.Errorf(
				"failed to get list meta: %w", mapStoreErr(err),
			)
		}

		if idx < 0 || int64(idx) >= meta.Length {
			return fmt.Errorf(
				"%w: list index %d out of range [0, %d)",
				ErrNotFound, idx, meta.Length,
			)
		}

		err = tx.queries.DeleteListItem(ctx, sqlc.DeleteListItemParams{
			ActorID:  actorID,
			ListName: listName,
			Idx:      int64(idx),
		})
		if err != nil {
			return fmt.Errorf(
				"failed to delete list item: %w",
				mapStoreErr(err),
			)
		}

		// Shift trailing items down by one, lowest index first.
		for i := int64(idx) + 1; i < meta.Length; i++ {
			err := tx.queries.UpdateListItemIdx(
				ctx, sqlc.UpdateListItemIdxParams{
					NewIdx:   i - 1,
					ActorID:  actorID,
					ListName: listName,
					Idx:      i,
				},
			)
			if err != nil {
				return fmt.Errorf(
					"failed to shift list item: %w",
					mapStoreErr(err),
				)
			}
		}

		return tx.setListLength(ctx, actorID, listName, meta.Length-1)
	})
}

// ClearList deletes all items of a list but keeps its metadata.
func (s *SqlcStore) ClearList(
	ctx context.Context, actorID, listName string,
) error {

	return s.WithTx(ctx, func(ctx context.Context, st Store) error {
		tx := st.(*SqlcStore)

		// The meta lookup doubles as an existence check.
		_, err := tx.queries.GetListMeta(ctx, sqlc.GetListMetaParams{
			ActorID:  actorID,
			ListName: listName,
		})
		if err != nil {
			return fmt.Errorf(
				"failed to get list meta: %w", mapStoreErr(err),
			)
		}

		err = tx.queries.DeleteListItems(ctx, sqlc.DeleteListItemsParams{
			ActorID:  actorID,
			ListName: listName,
		})
		if err != nil {
			return fmt.Errorf(
				"failed to delete list items: %w",
				mapStoreErr(err),
			)
		}

		return tx.setListLength(ctx, actorID, listName, 0)
	})
}

// setListLength persists a new list length, bumping the version.
func (s *SqlcStore) setListLength(
	ctx context.Context, actorID, listName string, length int64,
) error {

	err := s.queries.UpdateListLength(ctx, sqlc.UpdateListLengthParams{
		Length:    length,
		UpdatedAt: time.Now().Unix(),
		ActorID:   actorID,
		ListName:  listName,
	})
	if err != nil {
		return fmt.Errorf(
			"failed to update list length: %w", mapStoreErr(err),
		)
	}
	return nil
}
