// Package actor implements the actor core: the factory that mints and
// looks up actors, and the property, list, and attribute operations on
// a loaded actor. Every write runs the hook chain, maintains the
// reverse lookup index, and registers a subscription diff.
package actor

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/actingweb/actingweb-go/internal/aw"
	"github.com/actingweb/actingweb-go/internal/config"
	"github.com/actingweb/actingweb-go/internal/hooks"
	"github.com/actingweb/actingweb-go/internal/store"
)

// DiffSink receives change notifications from actor writes. The
// subscription engine implements it; the indirection keeps the actor
// core below the engine in the dependency order.
type DiffSink interface {
	// RegisterDiff records a change on (target, subtarget, resource)
	// for every matching subscription.
	RegisterDiff(
		ctx context.Context, actorID, target, subtarget,
		resource string, blob json.RawMessage,
	) error
}

// NopSink discards diffs. Used in tests and before the subscription
// engine is wired.
type NopSink struct{}

// RegisterDiff implements DiffSink.
func (NopSink) RegisterDiff(
	context.Context, string, string, string, string, json.RawMessage,
) error {
	return nil
}

// Service is the actor core. It owns no state of its own; everything
// lives in the store.
type Service struct {
	store store.Store
	cfg   *config.Config
	hooks *hooks.Registry
	diffs DiffSink
	log   *slog.Logger
}

// NewService creates the actor core over a store. A nil sink disables
// diff registration.
func NewService(
	st store.Store, cfg *config.Config, hr *hooks.Registry,
	diffs DiffSink, log *slog.Logger,
) *Service {

	if diffs == nil {
		diffs = NopSink{}
	}
	return &Service{
		store: st,
		cfg:   cfg,
		hooks: hr,
		diffs: diffs,
		log:   log.With("subsystem", "actor"),
	}
}

// CreateParams holds the factory inputs. ID and Passphrase are minted
// when empty.
type CreateParams struct {
	ID         string
	Creator    string
	Passphrase string
}

// Create mints a new actor. The returned passphrase is the cleartext
// credential, reported exactly once; only its hash is stored.
func (s *Service) Create(
	ctx context.Context, params CreateParams,
) (store.Actor, string, error) {

	if s.cfg.UniqueCreator && params.Creator != "" {
		_, err := s.store.GetActorByCreator(ctx, params.Creator)
		if err == nil {
			return store.Actor{}, "", aw.Errorf(aw.KindForbidden,
				"creator %s already owns an actor", params.Creator)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return store.Actor{}, "", aw.Wrap(
				aw.KindFatal, err, "creator lookup failed",
			)
		}
	}

	id := params.ID
	if id == "" {
		id = aw.RandomID()
	}
	passphrase := params.Passphrase
	if passphrase == "" {
		passphrase = aw.RandomID()
	}

	actor, err := s.store.CreateActor(ctx, store.CreateActorParams{
		ID:             id,
		Creator:        params.Creator,
		PassphraseHash: aw.HashPassphrase(passphrase),
	})
	if errors.Is(err, store.ErrDuplicate) {
		return store.Actor{}, "", aw.Errorf(aw.KindInvalidRequest,
			"actor %s already exists", id)
	}
	if err != nil {
		return store.Actor{}, "", aw.Wrap(
			aw.KindFatal, err, "actor create failed",
		)
	}

	s.log.InfoContext(ctx, "Actor created",
		"actor_id", actor.ID, "creator", actor.Creator)

	if err := s.hooks.EmitLifecycle(
		ctx, hooks.EventActorCreated, actor.ID,
		map[string]any{"creator": actor.Creator},
	); err != nil {
		s.log.WarnContext(ctx, "actor_created hook failed",
			"actor_id", actor.ID, "error", err)
	}

	return actor, passphrase, nil
}

// GetByID loads an actor by id.
func (s *Service) GetByID(ctx context.Context, id string) (store.Actor, error) {
	actor, err := s.store.GetActor(ctx, id)
	if err != nil {
		return store.Actor{}, mapStoreErr(err, "actor lookup failed")
	}
	return actor, nil
}

// GetByCreator loads an actor by its creator identity.
func (s *Service) GetByCreator(
	ctx context.Context, creator string,
) (store.Actor, error) {

	actor, err := s.store.GetActorByCreator(ctx, creator)
	if err != nil {
		return store.Actor{}, mapStoreErr(err, "creator lookup failed")
	}
	return actor, nil
}

// GetFromProperty resolves an actor through the reverse lookup index.
// Only properties listed in IndexedProperties are resolvable this way.
func (s *Service) GetFromProperty(
	ctx context.Context, name, value string,
) (store.Actor, error) {

	id, err := s.store.LookupActorByProperty(ctx, name, value)
	if err != nil {
		return store.Actor{}, mapStoreErr(err, "property lookup failed")
	}
	return s.GetByID(ctx, id)
}

// Delete removes the actor and everything scoped to it. Trust and
// subscription teardown with peers happens above this layer.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteActor(ctx, id); err != nil {
		return mapStoreErr(err, "actor delete failed")
	}
	s.log.InfoContext(ctx, "Actor deleted", "actor_id", id)
	return nil
}

// VerifyPassphrase checks a cleartext passphrase against the stored
// hash in constant time.
func (s *Service) VerifyPassphrase(actor store.Actor, passphrase string) bool {
	hashed := aw.HashPassphrase(passphrase)
	return subtle.ConstantTimeCompare(
		[]byte(hashed), []byte(actor.PassphraseHash),
	) == 1
}

// indexed reports whether a property participates in reverse lookup.
func (s *Service) indexed(name string) bool {
	for _, n := range s.cfg.IndexedProperties {
		if n == name {
			return true
		}
	}
	return false
}

// indexValue derives the lookup key from a property value. JSON strings
// index by their unquoted content, everything else by raw bytes.
func indexValue(value json.RawMessage) string {
	var str string
	if err := json.Unmarshal(value, &str); err == nil {
		return str
	}
	return string(value)
}

// registerDiff forwards a change to the subscription engine. The write
// has already landed, so a sink failure is logged rather than surfaced.
func (s *Service) registerDiff(
	ctx context.Context, actorID, target, subtarget, resource string,
	blob json.RawMessage,
) {
	err := s.diffs.RegisterDiff(ctx, actorID, target, subtarget, resource, blob)
	if err != nil {
		s.log.WarnContext(ctx, "Diff registration failed",
			"actor_id", actorID,
			"target", target,
			"subtarget", subtarget,
			"error", err,
		)
	}
}

// mapStoreErr translates store sentinels into classified errors.
func mapStoreErr(err error, msg string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return aw.Wrap(aw.KindNotFound, err, msg)
	case errors.Is(err, store.ErrDuplicate):
		return aw.Wrap(aw.KindInvalidRequest, err, msg)
	default:
		return aw.Wrap(aw.KindFatal, err, msg)
	}
}

// lowercaseEmail normalizes an email value for creator rebinding.
func lowercaseEmail(value json.RawMessage) string {
	return strings.ToLower(indexValue(value))
}
