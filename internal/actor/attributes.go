package actor

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/actingweb/actingweb-go/internal/aw"
	"github.com/actingweb/actingweb-go/internal/store"
)

// Attribute buckets are internal storage, never exposed on /properties.
// Application code reaches them through these accessors, which fence
// off the reserved library buckets. Library subsystems go straight to
// the store.

// SetAttribute writes an attribute into an application bucket. A zero
// TTL means no expiry.
func (s *Service) SetAttribute(
	ctx context.Context, actorID, bucket, name string,
	value json.RawMessage, ttl time.Duration,
) error {

	if err := checkBucket(bucket); err != nil {
		return err
	}

	_, err := s.store.SetAttribute(ctx, store.SetAttributeParams{
		ActorID: actorID,
		Bucket:  bucket,
		Name:    name,
		Value:   value,
		TTL:     ttl,
	})
	if err != nil {
		return mapStoreErr(err, "attribute write failed")
	}
	return nil
}

// GetAttribute reads an attribute from an application bucket.
func (s *Service) GetAttribute(
	ctx context.Context, actorID, bucket, name string,
) (store.Attribute, error) {

	if err := checkBucket(bucket); err != nil {
		return store.Attribute{}, err
	}

	attr, err := s.store.GetAttribute(ctx, actorID, bucket, name)
	if err != nil {
		return store.Attribute{}, mapStoreErr(err, "attribute read failed")
	}
	return attr, nil
}

// ListBucket reads every live attribute in an application bucket.
func (s *Service) ListBucket(
	ctx context.Context, actorID, bucket string,
) ([]store.Attribute, error) {

	if err := checkBucket(bucket); err != nil {
		return nil, err
	}

	attrs, err := s.store.ListBucket(ctx, actorID, bucket)
	if err != nil {
		return nil, mapStoreErr(err, "attribute list failed")
	}
	return attrs, nil
}

// DeleteAttribute removes one attribute from an application bucket.
func (s *Service) DeleteAttribute(
	ctx context.Context, actorID, bucket, name string,
) error {

	if err := checkBucket(bucket); err != nil {
		return err
	}

	if err := s.store.DeleteAttribute(ctx, actorID, bucket, name); err != nil {
		return mapStoreErr(err, "attribute delete failed")
	}
	return nil
}

// DeleteBucket removes an entire application bucket.
func (s *Service) DeleteBucket(
	ctx context.Context, actorID, bucket string,
) error {

	if err := checkBucket(bucket); err != nil {
		return err
	}

	if err := s.store.DeleteBucket(ctx, actorID, bucket); err != nil {
		return mapStoreErr(err, "bucket delete failed")
	}
	return nil
}

// checkBucket rejects the reserved library bucket namespace.
func checkBucket(bucket string) error {
	if bucket == "" {
		return aw.Errorf(aw.KindInvalidRequest, "bucket name must not be empty")
	}
	if strings.HasPrefix(bucket, aw.ReservedBucketPrefix) {
		return aw.Errorf(aw.KindForbidden,
			"bucket %s is reserved", bucket)
	}
	return nil
}
