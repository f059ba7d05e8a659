package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/actingweb/actingweb-go/internal/db"
	"github.com/actingweb/actingweb-go/internal/db/sqlc"
)

// SqlcStore implements the Store interface using sqlc-generated queries over
// SQLite.
type SqlcStore struct {
	db      *sql.DB
	queries *sqlc.Queries

	// inTx is set on store instances bound to an open transaction, in
	// which case WithTx runs the callback directly instead of opening a
	// nested transaction.
	inTx bool
}

// NewSqlcStore creates a new SqlcStore wrapping the given database
// connection.
func NewSqlcStore(sqlDB *sql.DB) *SqlcStore {
	return &SqlcStore{
		db:      sqlDB,
		queries: sqlc.New(sqlDB),
	}
}

// Close closes the underlying database connection.
func (s *SqlcStore) Close() error {
	return s.db.Close()
}

// WithTx executes the given function within a database transaction.
func (s *SqlcStore) WithTx(
	ctx context.Context,
	fn func(ctx context.Context, st Store) error,
) error {

	if s.inTx {
		return fn(ctx, s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txStore := &SqlcStore{
		db:      s.db,
		queries: sqlc.New(tx),
		inTx:    true,
	}

	if err := fn(ctx, txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf(
				"tx error: %w, rollback error: %v", err, rbErr,
			)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// mapStoreErr translates backend errors to the store sentinel errors.
func mapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	dbErr := db.MapSQLError(err)
	if db.IsUniqueConstraintError(dbErr) {
		return ErrDuplicate
	}

	return dbErr
}

// ActorStore implementation.

// CreateActor creates a new actor record.
func (s *SqlcStore) CreateActor(
	ctx context.Context, params CreateActorParams,
) (Actor, error) {

	a, err := s.queries.CreateActor(ctx, sqlc.CreateActorParams{
		ID:             params.ID,
		Creator:        params.Creator,
		PassphraseHash: params.PassphraseHash,
		CreatedAt:      time.Now().Unix(),
	})
	if err != nil {
		return Actor{}, fmt.Errorf(
			"failed to create actor: %w", mapStoreErr(err),
		)
	}

	return ActorFromSqlc(a), nil
}

// GetActor retrieves an actor by its ID.
func (s *SqlcStore) GetActor(ctx context.Context, id string) (Actor, error) {
	a, err := s.queries.GetActor(ctx, id)
	if err != nil {
		return Actor{}, fmt.Errorf(
			"failed to get actor: %w", mapStoreErr(err),
		)
	}
	return ActorFromSqlc(a), nil
}

// GetActorByCreator retrieves an actor by its creator identity.
func (s *SqlcStore) GetActorByCreator(
	ctx context.Context, creator string,
) (Actor, error) {

	a, err := s.queries.GetActorByCreator(ctx, creator)
	if err != nil {
		return Actor{}, fmt.Errorf(
			"failed to get actor by creator: %w", mapStoreErr(err),
		)
	}
	return ActorFromSqlc(a), nil
}

// UpdateActorCreator rebinds the creator identity of an actor.
func (s *SqlcStore) UpdateActorCreator(
	ctx context.Context, id, creator string,
) error {

	err := s.queries.UpdateActorCreator(ctx, sqlc.UpdateActorCreatorParams{
		Creator: creator,
		ID:      id,
	})
	if err != nil {
		return fmt.Errorf(
			"failed to update actor creator: %w", mapStoreErr(err),
		)
	}
	return nil
}

// DeleteActor deletes an actor. All scoped records are removed through
// foreign key cascades.
func (s *SqlcStore) DeleteActor(ctx context.Context, id string) error {
	if err := s.queries.DeleteActor(ctx, id); err != nil {
		return fmt.Errorf(
			"failed to delete actor: %w", mapStoreErr(err),
		)
	}
	return nil
}

// PropertyStore implementation.

// SetProperty creates or replaces a property.
func (s *SqlcStore) SetProperty(
	ctx context.Context, actorID, name string, value json.RawMessage,
) error {

	err := s.queries.UpsertProperty(ctx, sqlc.UpsertPropertyParams{
		ActorID:   actorID,
		Name:      name,
		Value:     []byte(value),
		UpdatedAt: time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf(
			"failed to set property: %w", mapStoreErr(err),
		)
	}
	return nil
}

// GetProperty retrieves a single property value.
func (s *SqlcStore) GetProperty(
	ctx context.Context, actorID, name string,
) (json.RawMessage, error) {

	p, err := s.queries.GetProperty(ctx, sqlc.GetPropertyParams{
		ActorID: actorID,
		Name:    name,
	})
	if err != nil {
		return nil, fmt.Errorf(
			"failed to get property: %w", mapStoreErr(err),
		)
	}
	return json.RawMessage(p.Value), nil
}

// ListProperties retrieves all properties of an actor.
func (s *SqlcStore) ListProperties(
	ctx context.Context, actorID string,
) (map[string]json.RawMessage, error) {

	rows, err := s.queries.ListProperties(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to list properties: %w", mapStoreErr(err),
		)
	}

	props := make(map[string]json.RawMessage, len(rows))
	for _, r := range rows {
		props[r.Name] = json.RawMessage(r.Value)
	}
	return props, nil
}

// DeleteProperty deletes a single property.
func (s *SqlcStore) DeleteProperty(
	ctx context.Context, actorID, name string,
) error {

	err := s.queries.DeleteProperty(ctx, sqlc.DeletePropertyParams{
		ActorID: actorID,
		Name:    name,
	})
	if err != nil {
		return fmt.Errorf(
			"failed to delete property: %w", mapStoreErr(err),
		)
	}
	return nil
}

// DeleteAllProperties deletes every property of an actor.
func (s *SqlcStore) DeleteAllProperties(
	ctx context.Context, actorID string,
) error {

	if err := s.queries.DeleteAllProperties(ctx, actorID); err != nil {
		return fmt.Errorf(
			"failed to delete properties: %w", mapStoreErr(err),
		)
	}
	return nil
}

// IndexProperty records a reverse lookup entry for a property value.
func (s *SqlcStore) IndexProperty(
	ctx context.Context, actorID, name, value string,
) error {

	err := s.queries.UpsertPropertyIndex(ctx, sqlc.UpsertPropertyIndexParams{
		ActorID: actorID,
		Name:    name,
		Value:   value,
	})
	if err != nil {
		return fmt.Errorf(
			"failed to index property: %w", mapStoreErr(err),
		)
	}
	return nil
}

// UnindexProperty removes the reverse lookup entry for a property.
func (s *SqlcStore) UnindexProperty(
	ctx context.Context, actorID, name string,
) error {

	err := s.queries.DeletePropertyIndex(ctx, sqlc.DeletePropertyIndexParams{
		ActorID: actorID,
		Name:    name,
	})
	if err != nil {
		return fmt.Errorf(
			"failed to unindex property: %w", mapStoreErr(err),
		)
	}
	return nil
}

// LookupActorByProperty returns the ID of the actor holding the given
// indexed property value.
func (s *SqlcStore) LookupActorByProperty(
	ctx context.Context, name, value string,
) (string, error) {

	idx, err := s.queries.LookupActorByProperty(
		ctx, sqlc.LookupActorByPropertyParams{
			Name:  name,
			Value: value,
		},
	)
	if err != nil {
		return "", fmt.Errorf(
			"failed to look up actor by property: %w",
			mapStoreErr(err),
		)
	}
	return idx.ActorID, nil
}
