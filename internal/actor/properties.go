package actor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/actingweb/actingweb-go/internal/aw"
	"github.com/actingweb/actingweb-go/internal/hooks"
	"github.com/actingweb/actingweb-go/internal/store"
)

// TargetProperties is the subscription target name property writes
// publish under.
const TargetProperties = "properties"

// deletedValue is the diff payload for a removed property.
var deletedValue = json.RawMessage(`""`)

// GetProperty reads a property, running the get hook chain so the
// application can redact or reshape values in flight.
func (s *Service) GetProperty(
	ctx context.Context, actorID, name string,
) (json.RawMessage, error) {

	value, err := s.store.GetProperty(ctx, actorID, name)
	if err != nil {
		return nil, mapStoreErr(err, "property read failed")
	}

	value, err = s.hooks.TransformProperty(
		ctx, hooks.PropGet, actorID, name, value,
	)
	if err != nil {
		return nil, hookErr(err)
	}
	return value, nil
}

// ListProperties reads every property of the actor, running the get
// hook chain per property.
func (s *Service) ListProperties(
	ctx context.Context, actorID string,
) (map[string]json.RawMessage, error) {

	props, err := s.store.ListProperties(ctx, actorID)
	if err != nil {
		return nil, mapStoreErr(err, "property list failed")
	}

	for name, value := range props {
		out, err := s.hooks.TransformProperty(
			ctx, hooks.PropGet, actorID, name, value,
		)
		if errors.Is(err, hooks.ErrRejected) {
			// A rejected get hides the property rather than
			// failing the collection.
			delete(props, name)
			continue
		}
		if err != nil {
			return nil, hookErr(err)
		}
		props[name] = out
	}
	return props, nil
}

// SetProperty creates or replaces a property. The write runs the put
// hook chain, maintains the reverse lookup index, may rebind the actor
// creator to the email value, and registers a subscription diff.
func (s *Service) SetProperty(
	ctx context.Context, actorID, name string, value json.RawMessage,
) error {

	if err := s.checkNoList(ctx, actorID, name); err != nil {
		return err
	}

	value, err := s.hooks.TransformProperty(
		ctx, hooks.PropPut, actorID, name, value,
	)
	if err != nil {
		return hookErr(err)
	}

	if err := s.store.SetProperty(ctx, actorID, name, value); err != nil {
		return mapStoreErr(err, "property write failed")
	}

	if s.indexed(name) {
		err := s.store.IndexProperty(ctx, actorID, name, indexValue(value))
		if err != nil {
			return mapStoreErr(err, "property index update failed")
		}
	}

	if s.cfg.ForceEmailAsCreator && name == "email" {
		email := lowercaseEmail(value)
		if email != "" {
			err := s.store.UpdateActorCreator(ctx, actorID, email)
			if err != nil {
				return mapStoreErr(err, "creator rebind failed")
			}
		}
	}

	s.registerDiff(ctx, actorID, TargetProperties, name, "", value)
	return nil
}

// DeleteProperty removes a property, its index entry, and publishes a
// deletion diff.
func (s *Service) DeleteProperty(
	ctx context.Context, actorID, name string,
) error {

	_, err := s.hooks.TransformProperty(
		ctx, hooks.PropDelete, actorID, name, nil,
	)
	if err != nil {
		return hookErr(err)
	}

	if err := s.store.DeleteProperty(ctx, actorID, name); err != nil {
		return mapStoreErr(err, "property delete failed")
	}

	if s.indexed(name) {
		if err := s.store.UnindexProperty(ctx, actorID, name); err != nil {
			return mapStoreErr(err, "property index delete failed")
		}
	}

	s.registerDiff(ctx, actorID, TargetProperties, name, "", deletedValue)
	return nil
}

// DeleteAllProperties removes every property of the actor and publishes
// a single deletion diff on the properties target.
func (s *Service) DeleteAllProperties(ctx context.Context, actorID string) error {
	if err := s.store.DeleteAllProperties(ctx, actorID); err != nil {
		return mapStoreErr(err, "property wipe failed")
	}

	for _, name := range s.cfg.IndexedProperties {
		if err := s.store.UnindexProperty(ctx, actorID, name); err != nil &&
			!errors.Is(err, store.ErrNotFound) {

			return mapStoreErr(err, "property index delete failed")
		}
	}

	s.registerDiff(ctx, actorID, TargetProperties, "", "", deletedValue)
	return nil
}

// checkNoList enforces the disjoint property/list namespace.
func (s *Service) checkNoList(ctx context.Context, actorID, name string) error {
	_, err := s.store.GetListMeta(ctx, actorID, name)
	if err == nil {
		return aw.Errorf(aw.KindInvalidRequest,
			"a list named %s already exists", name)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return aw.Wrap(aw.KindFatal, err, "list lookup failed")
	}
	return nil
}

// hookErr classifies a hook chain failure: rejections are forbidden,
// anything else is the application's fault surfaced as-is.
func hookErr(err error) error {
	if errors.Is(err, hooks.ErrRejected) {
		return aw.Wrap(aw.KindForbidden, err, "rejected by hook")
	}
	return fmt.Errorf("property hook failed: %w", err)
}
