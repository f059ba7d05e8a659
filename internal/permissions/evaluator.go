package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/actingweb/actingweb-go/internal/store"
)

const (
	// overridesBucket is the per-actor attribute bucket holding
	// relationship permission overrides.
	overridesBucket = "_trust_permissions"

	// memoTTL bounds decision memoization. Short enough that an override
	// change is visible on the next request, long enough to absorb the
	// repeated checks a single request makes.
	memoTTL = 2 * time.Second
)

// ErrNoOverride is returned when a relationship has no stored override.
var ErrNoOverride = errors.New("no permission override")

// Evaluator resolves effective permissions for a relationship and answers
// (category, target, operation) checks against them.
type Evaluator struct {
	store    store.Store
	registry *Registry
	memo     *cache.Cache
	log      *slog.Logger
}

// NewEvaluator creates an evaluator over the given store and trust-type
// registry.
func NewEvaluator(
	st store.Store, registry *Registry, log *slog.Logger,
) *Evaluator {
	return &Evaluator{
		store:    st,
		registry: registry,
		memo:     cache.New(memoTTL, time.Minute),
		log:      log.With("subsystem", "permissions"),
	}
}

// overrideKey is the attribute name of a stored override.
func overrideKey(actorID, peerID string) string {
	return actorID + ":" + peerID
}

// Effective resolves the merged permission set a peer currently holds on an
// actor: the trust type base overlaid with any stored override.
func (e *Evaluator) Effective(
	ctx context.Context, actorID, peerID string,
) (PermissionSet, error) {

	trust, err := e.store.GetTrust(ctx, actorID, peerID)
	if err != nil {
		return PermissionSet{}, fmt.Errorf(
			"failed to resolve trust: %w", err,
		)
	}

	tt, err := e.registry.Get(ctx, trust.Relationship)
	if err != nil {
		return PermissionSet{}, err
	}

	base := tt.BasePermissions
	if !tt.AllowUserOverride {
		return base, nil
	}

	override, err := e.GetOverride(ctx, actorID, peerID)
	if errors.Is(err, ErrNoOverride) {
		return base, nil
	}
	if err != nil {
		return PermissionSet{}, err
	}

	return Merge(base, override), nil
}

// Evaluate answers whether a peer may perform an operation on a target in a
// category. Deny patterns win; explicit allow patterns with no match deny;
// a category with no rule at all returns DecisionNotFound for the caller to
// decide.
func (e *Evaluator) Evaluate(
	ctx context.Context, actorID, peerID string, category Category,
	target string, op Operation,
) (Decision, error) {

	key := strings.Join(
		[]string{actorID, peerID, string(category), target, string(op)},
		"\x00",
	)
	if cached, ok := e.memo.Get(key); ok {
		return cached.(Decision), nil
	}

	effective, err := e.Effective(ctx, actorID, peerID)
	if err != nil {
		return DecisionNotFound, err
	}

	decision := evaluateRule(effective.Rule(category), target, op)
	e.memo.SetDefault(key, decision)

	if decision == DecisionDenied {
		// Which pattern failed stays in the audit log, the wire only
		// sees the status.
		e.log.InfoContext(ctx, "Permission denied",
			"actor_id", actorID,
			"peer_id", peerID,
			"category", category,
			"target", target,
			"operation", op,
		)
	}

	return decision, nil
}

// evaluateRule applies the deny-first match order to a single rule.
func evaluateRule(rule CategoryRule, target string, op Operation) Decision {
	if matchAny(rule.ExcludedPatterns, target) {
		return DecisionDenied
	}

	// Exclusion-only rules leave non-matching targets undecided.
	if len(rule.Patterns) == 0 {
		return DecisionNotFound
	}

	if matchAny(rule.Patterns, target) && opAllowed(rule.Operations, op) {
		return DecisionAllowed
	}

	// Explicit patterns exist and nothing matched.
	return DecisionDenied
}

// opAllowed reports whether the operation list permits op. An empty list
// permits every operation, for categories where operations don't apply.
func opAllowed(ops []string, op Operation) bool {
	if len(ops) == 0 {
		return true
	}
	for _, o := range ops {
		if Operation(o) == op {
			return true
		}
	}
	return false
}

// GetOverride retrieves the stored override for a relationship.
func (e *Evaluator) GetOverride(
	ctx context.Context, actorID, peerID string,
) (PermissionSet, error) {

	attr, err := e.store.GetAttribute(
		ctx, actorID, overridesBucket, overrideKey(actorID, peerID),
	)
	if errors.Is(err, store.ErrNotFound) {
		return PermissionSet{}, ErrNoOverride
	}
	if err != nil {
		return PermissionSet{}, fmt.Errorf(
			"failed to load override: %w", err,
		)
	}

	var set PermissionSet
	if err := json.Unmarshal(attr.Value, &set); err != nil {
		return PermissionSet{}, fmt.Errorf(
			"failed to decode override: %w", err,
		)
	}
	return set, nil
}

// SetOverride stores an override for a relationship, normalized to the
// canonical dict form.
func (e *Evaluator) SetOverride(
	ctx context.Context, actorID, peerID string, set PermissionSet,
) error {

	trust, err := e.store.GetTrust(ctx, actorID, peerID)
	if err != nil {
		return fmt.Errorf("failed to resolve trust: %w", err)
	}

	tt, err := e.registry.Get(ctx, trust.Relationship)
	if err != nil {
		return err
	}
	if !tt.AllowUserOverride {
		return fmt.Errorf(
			"trust type %s does not allow overrides", tt.Name,
		)
	}

	blob, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("failed to encode override: %w", err)
	}

	_, err = e.store.SetAttribute(ctx, store.SetAttributeParams{
		ActorID: actorID,
		Bucket:  overridesBucket,
		Name:    overrideKey(actorID, peerID),
		Value:   blob,
	})
	if err != nil {
		return fmt.Errorf("failed to store override: %w", err)
	}

	e.memo.Flush()
	return nil
}

// DeleteOverride removes the override for a relationship.
func (e *Evaluator) DeleteOverride(
	ctx context.Context, actorID, peerID string,
) error {

	err := e.store.DeleteAttribute(
		ctx, actorID, overridesBucket, overrideKey(actorID, peerID),
	)
	if err != nil {
		return fmt.Errorf("failed to delete override: %w", err)
	}

	e.memo.Flush()
	return nil
}
