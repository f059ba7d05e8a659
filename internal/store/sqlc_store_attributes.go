package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/actingweb/actingweb-go/internal/db/sqlc"
)

// AttributeStore implementation.

func ttlToEpoch(ttl time.Duration) sql.NullInt64 {
	if ttl <= 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{
		Int64: time.Now().Add(ttl).Unix(),
		Valid: true,
	}
}

// SetAttribute creates or replaces an attribute, bumping its version.
func (s *SqlcStore) SetAttribute(
	ctx context.Context, params SetAttributeParams,
) (Attribute, error) {

	a, err := s.queries.UpsertAttribute(ctx, sqlc.UpsertAttributeParams{
		ActorID:  params.ActorID,
		Bucket:   params.Bucket,
		Name:     params.Name,
		Value:    []byte(params.Value),
		TtlEpoch: ttlToEpoch(params.TTL),
	})
	if err != nil {
		return Attribute{}, fmt.Errorf(
			"failed to set attribute: %w", mapStoreErr(err),
		)
	}
	return AttributeFromSqlc(a), nil
}

// GetAttribute retrieves an attribute. Expired attributes are treated as not
// found, deletion is left to the pruner.
func (s *SqlcStore) GetAttribute(
	ctx context.Context, actorID, bucket, name string,
) (Attribute, error) {

	a, err := s.queries.GetAttribute(ctx, sqlc.GetAttributeParams{
		ActorID: actorID,
		Bucket:  bucket,
		Name:    name,
	})
	if err != nil {
		return Attribute{}, fmt.Errorf(
			"failed to get attribute: %w", mapStoreErr(err),
		)
	}

	attr := AttributeFromSqlc(a)
	if !attr.ExpiresAt.IsZero() && attr.ExpiresAt.Before(time.Now()) {
		return Attribute{}, fmt.Errorf(
			"attribute expired: %w", ErrNotFound,
		)
	}
	return attr, nil
}

// ListBucket retrieves all live attributes in a bucket.
func (s *SqlcStore) ListBucket(
	ctx context.Context, actorID, bucket string,
) ([]Attribute, error) {

	rows, err := s.queries.ListBucket(ctx, sqlc.ListBucketParams{
		ActorID: actorID,
		Bucket:  bucket,
	})
	if err != nil {
		return nil, fmt.Errorf(
			"failed to list bucket: %w", mapStoreErr(err),
		)
	}

	now := time.Now()
	attrs := make([]Attribute, 0, len(rows))
	for _, r := range rows {
		attr := AttributeFromSqlc(r)
		if !attr.ExpiresAt.IsZero() && attr.ExpiresAt.Before(now) {
			continue
		}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}

// CompareAndSwapAttribute updates an attribute only if its current version
// matches the expected one. Returns false without error when the version
// check fails.
func (s *SqlcStore) CompareAndSwapAttribute(
	ctx context.Context, params CompareAndSwapAttributeParams,
) (bool, error) {

	n, err := s.queries.ConditionalUpdateAttribute(
		ctx, sqlc.ConditionalUpdateAttributeParams{
			Value:    []byte(params.Value),
			TtlEpoch: ttlToEpoch(params.TTL),
			ActorID:  params.ActorID,
			Bucket:   params.Bucket,
			Name:     params.Name,
			Version:  params.ExpectedVersion,
		},
	)
	if err != nil {
		return false, fmt.Errorf(
			"failed to cas attribute: %w", mapStoreErr(err),
		)
	}
	return n > 0, nil
}

// DeleteAttribute deletes a single attribute.
func (s *SqlcStore) DeleteAttribute(
	ctx context.Context, actorID, bucket, name string,
) error {

	err := s.queries.DeleteAttribute(ctx, sqlc.DeleteAttributeParams{
		ActorID: actorID,
		Bucket:  bucket,
		Name:    name,
	})
	if err != nil {
		return fmt.Errorf(
			"failed to delete attribute: %w", mapStoreErr(err),
		)
	}
	return nil
}

// DeleteBucket deletes all attributes in a bucket.
func (s *SqlcStore) DeleteBucket(
	ctx context.Context, actorID, bucket string,
) error {

	err := s.queries.DeleteBucket(ctx, sqlc.DeleteBucketParams{
		ActorID: actorID,
		Bucket:  bucket,
	})
	if err != nil {
		return fmt.Errorf(
			"failed to delete bucket: %w", mapStoreErr(err),
		)
	}
	return nil
}

// DeleteAllAttributes deletes every attribute of an actor.
func (s *SqlcStore) DeleteAllAttributes(
	ctx context.Context, actorID string,
) error {

	if err := s.queries.DeleteAllAttributes(ctx, actorID); err != nil {
		return fmt.Errorf(
			"failed to delete attributes: %w", mapStoreErr(err),
		)
	}
	return nil
}

// PruneExpiredAttributes deletes all attributes whose TTL has passed.
func (s *SqlcStore) PruneExpiredAttributes(
	ctx context.Context, now time.Time,
) error {

	err := s.queries.DeleteExpiredAttributes(ctx, sql.NullInt64{
		Int64: now.Unix(),
		Valid: true,
	})
	if err != nil {
		return fmt.Errorf(
			"failed to prune attributes: %w", mapStoreErr(err),
		)
	}
	return nil
}
