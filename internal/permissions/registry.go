package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/actingweb/actingweb-go/internal/aw"
	"github.com/actingweb/actingweb-go/internal/store"
)

const (
	// trustTypesBucket is the attribute bucket on the reserved system
	// actor that holds the trust-type registry.
	trustTypesBucket = "_trust_types"

	// registryCacheTTL bounds how long a trust type is served from cache
	// after a write on another node.
	registryCacheTTL = 5 * time.Minute
)

// ErrUnknownTrustType is returned when a relationship references a trust
// type that is not registered.
var ErrUnknownTrustType = errors.New("unknown trust type")

// Registry is the store-backed trust-type registry. It is initialized
// eagerly at startup; lazy loading during an OAuth2 callback has caused
// multi-minute stalls in earlier renditions of this protocol, so Init is a
// hard requirement of the composition root.
type Registry struct {
	store store.Store
	cache *cache.Cache
	log   *slog.Logger
}

// NewRegistry creates a trust-type registry over the given store.
func NewRegistry(st store.Store, log *slog.Logger) *Registry {
	return &Registry{
		store: st,
		cache: cache.New(registryCacheTTL, 10*time.Minute),
		log:   log.With("subsystem", "permissions"),
	}
}

// Init ensures the reserved system actor exists, seeds the built-in trust
// types that are missing, and warms the cache.
func (r *Registry) Init(ctx context.Context) error {
	_, err := r.store.GetActor(ctx, aw.SystemActorID)
	if errors.Is(err, store.ErrNotFound) {
		_, err = r.store.CreateActor(ctx, store.CreateActorParams{
			ID:      aw.SystemActorID,
			Creator: aw.SystemActorID,
		})
		if errors.Is(err, store.ErrDuplicate) {
			err = nil
		}
	}
	if err != nil {
		return fmt.Errorf("failed to ensure system actor: %w", err)
	}

	for _, tt := range DefaultTrustTypes() {
		_, err := r.Get(ctx, tt.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrUnknownTrustType) {
			return err
		}

		if err := r.Register(ctx, tt); err != nil {
			return err
		}
		r.log.InfoContext(ctx, "Seeded built-in trust type",
			"name", tt.Name)
	}

	// Warm the cache so the first authenticated request doesn't pay the
	// load.
	if _, err := r.List(ctx); err != nil {
		return err
	}

	return nil
}

// Get retrieves a trust type by name.
func (r *Registry) Get(ctx context.Context, name string) (TrustType, error) {
	if cached, ok := r.cache.Get(name); ok {
		return cached.(TrustType), nil
	}

	attr, err := r.store.GetAttribute(
		ctx, aw.SystemActorID, trustTypesBucket, name,
	)
	if errors.Is(err, store.ErrNotFound) {
		return TrustType{}, fmt.Errorf(
			"%w: %s", ErrUnknownTrustType, name,
		)
	}
	if err != nil {
		return TrustType{}, fmt.Errorf(
			"failed to load trust type: %w", err,
		)
	}

	var tt TrustType
	if err := json.Unmarshal(attr.Value, &tt); err != nil {
		return TrustType{}, fmt.Errorf(
			"failed to decode trust type %s: %w", name, err,
		)
	}

	r.cache.SetDefault(name, tt)
	return tt, nil
}

// List retrieves all registered trust types.
func (r *Registry) List(ctx context.Context) ([]TrustType, error) {
	attrs, err := r.store.ListBucket(
		ctx, aw.SystemActorID, trustTypesBucket,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list trust types: %w", err)
	}

	types := make([]TrustType, 0, len(attrs))
	for _, attr := range attrs {
		var tt TrustType
		if err := json.Unmarshal(attr.Value, &tt); err != nil {
			return nil, fmt.Errorf(
				"failed to decode trust type %s: %w",
				attr.Name, err,
			)
		}
		types = append(types, tt)
		r.cache.SetDefault(tt.Name, tt)
	}
	return types, nil
}

// Register creates or replaces a trust type. Writes always store the
// canonical dict permission form, whatever form the caller supplied.
func (r *Registry) Register(ctx context.Context, tt TrustType) error {
	if tt.Name == "" {
		return errors.New("trust type name must not be empty")
	}

	blob, err := json.Marshal(tt)
	if err != nil {
		return fmt.Errorf("failed to encode trust type: %w", err)
	}

	_, err = r.store.SetAttribute(ctx, store.SetAttributeParams{
		ActorID: aw.SystemActorID,
		Bucket:  trustTypesBucket,
		Name:    tt.Name,
		Value:   blob,
	})
	if err != nil {
		return fmt.Errorf("failed to store trust type: %w", err)
	}

	r.cache.SetDefault(tt.Name, tt)
	return nil
}

// Delete removes a trust type from the registry.
func (r *Registry) Delete(ctx context.Context, name string) error {
	err := r.store.DeleteAttribute(
		ctx, aw.SystemActorID, trustTypesBucket, name,
	)
	if err != nil {
		return fmt.Errorf("failed to delete trust type: %w", err)
	}

	r.cache.Delete(name)
	return nil
}
