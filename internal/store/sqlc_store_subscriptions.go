package store

import (
	"context"
	"fmt"
	"time"

	"github.com/actingweb/actingweb-go/internal/db/sqlc"
)

// SubscriptionStore implementation.

// CreateSubscription creates a new subscription with seqnr zero.
func (s *SqlcStore) CreateSubscription(
	ctx context.Context, params CreateSubscriptionParams,
) (Subscription, error) {

	sub, err := s.queries.CreateSubscription(
		ctx, sqlc.CreateSubscriptionParams{
			ActorID:     params.ActorID,
			PeerID:      params.PeerID,
			SubID:       params.SubID,
			Target:      params.Target,
			Subtarget:   params.Subtarget,
			Resource:    params.Resource,
			Granularity: params.Granularity,
			Seqnr:       0,
			Callback:    boolToInt64(params.Callback),
			CreatedAt:   time.Now().Unix(),
		},
	)
	if err != nil {
		return Subscription{}, fmt.Errorf(
			"failed to create subscription: %w", mapStoreErr(err),
		)
	}
	return SubscriptionFromSqlc(sub), nil
}

// GetSubscription retrieves a subscription.
func (s *SqlcStore) GetSubscription(
	ctx context.Context, actorID, peerID, subID string,
) (Subscription, error) {

	sub, err := s.queries.GetSubscription(ctx, sqlc.GetSubscriptionParams{
		ActorID: actorID,
		PeerID:  peerID,
		SubID:   subID,
	})
	if err != nil {
		return Subscription{}, fmt.Errorf(
			"failed to get subscription: %w", mapStoreErr(err),
		)
	}
	return SubscriptionFromSqlc(sub), nil
}

// ListSubscriptions retrieves all subscriptions of an actor.
func (s *SqlcStore) ListSubscriptions(
	ctx context.Context, actorID string,
) ([]Subscription, error) {

	rows, err := s.queries.ListSubscriptions(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to list subscriptions: %w", mapStoreErr(err),
		)
	}

	subs := make([]Subscription, len(rows))
	for i, r := range rows {
		subs[i] = SubscriptionFromSqlc(r)
	}
	return subs, nil
}

// ListSubscriptionsByPeer retrieves all subscriptions a given peer holds on
// an actor.
func (s *SqlcStore) ListSubscriptionsByPeer(
	ctx context.Context, actorID, peerID string,
) ([]Subscription, error) {

	rows, err := s.queries.ListSubscriptionsByPeer(
		ctx, sqlc.ListSubscriptionsByPeerParams{
			ActorID: actorID,
			PeerID:  peerID,
		},
	)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to list peer subscriptions: %w", mapStoreErr(err),
		)
	}

	subs := make([]Subscription, len(rows))
	for i, r := range rows {
		subs[i] = SubscriptionFromSqlc(r)
	}
	return subs, nil
}

// NextSeqnr atomically allocates the next sequence number of a subscription.
func (s *SqlcStore) NextSeqnr(
	ctx context.Context, actorID, peerID, subID string,
) (int64, error) {

	seqnr, err := s.queries.IncrementSubscriptionSeq(
		ctx, sqlc.IncrementSubscriptionSeqParams{
			ActorID: actorID,
			PeerID:  peerID,
			SubID:   subID,
		},
	)
	if err != nil {
		return 0, fmt.Errorf(
			"failed to allocate seqnr: %w", mapStoreErr(err),
		)
	}
	return seqnr, nil
}

// DeleteSubscription deletes a subscription and its stored diffs.
func (s *SqlcStore) DeleteSubscription(
	ctx context.Context, actorID, peerID, subID string,
) error {

	return s.WithTx(ctx, func(ctx context.Context, st Store) error {
		tx := st.(*SqlcStore)

		err := tx.queries.DeleteDiffsBySub(
			ctx, sqlc.DeleteDiffsBySubParams{
				ActorID: actorID,
				SubID:   subID,
			},
		)
		if err != nil {
			return fmt.Errorf(
				"failed to delete diffs: %w", mapStoreErr(err),
			)
		}

		err = tx.queries.DeleteSubscription(
			ctx, sqlc.DeleteSubscriptionParams{
				ActorID: actorID,
				PeerID:  peerID,
				SubID:   subID,
			},
		)
		if err != nil {
			return fmt.Errorf(
				"failed to delete subscription: %w",
				mapStoreErr(err),
			)
		}
		return nil
	})
}

// CreateDiff stores a diff for later polling or redelivery.
func (s *SqlcStore) CreateDiff(
	ctx context.Context, params CreateDiffParams,
) error {

	err := s.queries.CreateDiff(ctx, sqlc.CreateDiffParams{
		ActorID: params.ActorID,
		SubID:   params.SubID,
		Seqnr:   params.Seqnr,
		PeerID:  params.PeerID,
		Ts:      time.Now().Unix(),
		Blob:    []byte(params.Blob),
	})
	if err != nil {
		return fmt.Errorf(
			"failed to create diff: %w", mapStoreErr(err),
		)
	}
	return nil
}

// GetDiff retrieves a single stored diff.
func (s *SqlcStore) GetDiff(
	ctx context.Context, actorID, subID string, seqnr int64,
) (Diff, error) {

	d, err := s.queries.GetDiff(ctx, sqlc.GetDiffParams{
		ActorID: actorID,
		SubID:   subID,
		Seqnr:   seqnr,
	})
	if err != nil {
		return Diff{}, fmt.Errorf(
			"failed to get diff: %w", mapStoreErr(err),
		)
	}
	return DiffFromSqlc(d), nil
}

// ListDiffs retrieves all stored diffs of a subscription in sequence order.
func (s *SqlcStore) ListDiffs(
	ctx context.Context, actorID, subID string,
) ([]Diff, error) {

	rows, err := s.queries.ListDiffs(ctx, sqlc.ListDiffsParams{
		ActorID: actorID,
		SubID:   subID,
	})
	if err != nil {
		return nil, fmt.Errorf(
			"failed to list diffs: %w", mapStoreErr(err),
		)
	}

	diffs := make([]Diff, len(rows))
	for i, r := range rows {
		diffs[i] = DiffFromSqlc(r)
	}
	return diffs, nil
}

// CountDiffs counts the stored diffs of a subscription.
func (s *SqlcStore) CountDiffs(
	ctx context.Context, actorID, subID string,
) (int64, error) {

	n, err := s.queries.CountDiffs(ctx, sqlc.CountDiffsParams{
		ActorID: actorID,
		SubID:   subID,
	})
	if err != nil {
		return 0, fmt.Errorf(
			"failed to count diffs: %w", mapStoreErr(err),
		)
	}
	return n, nil
}

// DeleteDiff deletes a single stored diff.
func (s *SqlcStore) DeleteDiff(
	ctx context.Context, actorID, subID string, seqnr int64,
) error {

	err := s.queries.DeleteDiff(ctx, sqlc.DeleteDiffParams{
		ActorID: actorID,
		SubID:   subID,
		Seqnr:   seqnr,
	})
	if err != nil {
		return fmt.Errorf(
			"failed to delete diff: %w", mapStoreErr(err),
		)
	}
	return nil
}

// DeleteDiffsThrough deletes all diffs of a subscription with a sequence
// number at or below the given one.
func (s *SqlcStore) DeleteDiffsThrough(
	ctx context.Context, actorID, subID string, seqnr int64,
) error {

	err := s.queries.DeleteDiffsThrough(ctx, sqlc.DeleteDiffsThroughParams{
		ActorID: actorID,
		SubID:   subID,
		Seqnr:   seqnr,
	})
	if err != nil {
		return fmt.Errorf(
			"failed to delete diffs: %w", mapStoreErr(err),
		)
	}
	return nil
}

// SuspendScope suspends diff registration for a target/subtarget scope.
func (s *SqlcStore) SuspendScope(
	ctx context.Context, actorID, target, subtarget string,
) error {

	err := s.queries.CreateSuspension(ctx, sqlc.CreateSuspensionParams{
		ActorID:   actorID,
		Target:    target,
		Subtarget: subtarget,
		CreatedAt: time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf(
			"failed to suspend scope: %w", mapStoreErr(err),
		)
	}
	return nil
}

// ResumeScope lifts a suspension.
func (s *SqlcStore) ResumeScope(
	ctx context.Context, actorID, target, subtarget string,
) error {

	err := s.queries.DeleteSuspension(ctx, sqlc.DeleteSuspensionParams{
		ActorID:   actorID,
		Target:    target,
		Subtarget: subtarget,
	})
	if err != nil {
		return fmt.Errorf(
			"failed to resume scope: %w", mapStoreErr(err),
		)
	}
	return nil
}

// ListSuspensions retrieves all active suspensions of an actor.
func (s *SqlcStore) ListSuspensions(
	ctx context.Context, actorID string,
) ([]Suspension, error) {

	rows, err := s.queries.ListSuspensions(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to list suspensions: %w", mapStoreErr(err),
		)
	}

	suspensions := make([]Suspension, len(rows))
	for i, r := range rows {
		suspensions[i] = SuspensionFromSqlc(r)
	}
	return suspensions, nil
}
