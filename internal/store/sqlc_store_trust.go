package store

import (
	"context"
	"fmt"
	"time"

	"github.com/actingweb/actingweb-go/internal/db/sqlc"
)

// TrustStore implementation.

// CreateTrust creates a new trust relationship.
func (s *SqlcStore) CreateTrust(
	ctx context.Context, params CreateTrustParams,
) (Trust, error) {

	t, err := s.queries.CreateTrust(ctx, sqlc.CreateTrustParams{
		ActorID:           params.ActorID,
		PeerID:            params.PeerID,
		Baseuri:           params.BaseURI,
		PeerType:          params.PeerType,
		Relationship:      params.Relationship,
		Secret:            params.Secret,
		Description:       params.Description,
		Approved:          boolToInt64(params.Approved),
		PeerApproved:      boolToInt64(params.PeerApproved),
		Verified:          boolToInt64(params.Verified),
		VerificationToken: params.VerificationToken,
		EstablishedVia:    params.EstablishedVia,
		PeerIdentifier:    params.PeerIdentifier,
		OauthClientID:     params.OAuthClientID,
		ClientName:        params.ClientName,
		ClientVersion:     params.ClientVersion,
		ClientPlatform:    params.ClientPlatform,
		CreatedAt:         time.Now().Unix(),
	})
	if err != nil {
		return Trust{}, fmt.Errorf(
			"failed to create trust: %w", mapStoreErr(err),
		)
	}
	return TrustFromSqlc(t), nil
}

// GetTrust retrieves a trust relationship by actor and peer ID.
func (s *SqlcStore) GetTrust(
	ctx context.Context, actorID, peerID string,
) (Trust, error) {

	t, err := s.queries.GetTrust(ctx, sqlc.GetTrustParams{
		ActorID: actorID,
		PeerID:  peerID,
	})
	if err != nil {
		return Trust{}, fmt.Errorf(
			"failed to get trust: %w", mapStoreErr(err),
		)
	}
	return TrustFromSqlc(t), nil
}

// GetTrustBySecret retrieves a trust relationship by its bearer secret.
func (s *SqlcStore) GetTrustBySecret(
	ctx context.Context, secret string,
) (Trust, error) {

	t, err := s.queries.GetTrustBySecret(ctx, secret)
	if err != nil {
		return Trust{}, fmt.Errorf(
			"failed to get trust by secret: %w", mapStoreErr(err),
		)
	}
	return TrustFromSqlc(t), nil
}

// GetTrustByClientID retrieves a trust relationship by its OAuth2 client ID.
func (s *SqlcStore) GetTrustByClientID(
	ctx context.Context, clientID string,
) (Trust, error) {

	t, err := s.queries.GetTrustByClientID(ctx, clientID)
	if err != nil {
		return Trust{}, fmt.Errorf(
			"failed to get trust by client id: %w", mapStoreErr(err),
		)
	}
	return TrustFromSqlc(t), nil
}

// ListTrusts retrieves all trust relationships of an actor.
func (s *SqlcStore) ListTrusts(
	ctx context.Context, actorID string,
) ([]Trust, error) {

	rows, err := s.queries.ListTrusts(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to list trusts: %w", mapStoreErr(err),
		)
	}

	trusts := make([]Trust, len(rows))
	for i, r := range rows {
		trusts[i] = TrustFromSqlc(r)
	}
	return trusts, nil
}

// ListTrustsByRelationship retrieves all trust relationships of an actor
// with the given relationship name.
func (s *SqlcStore) ListTrustsByRelationship(
	ctx context.Context, actorID, relationship string,
) ([]Trust, error) {

	rows, err := s.queries.ListTrustsByRelationship(
		ctx, sqlc.ListTrustsByRelationshipParams{
			ActorID:      actorID,
			Relationship: relationship,
		},
	)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to list trusts by relationship: %w",
			mapStoreErr(err),
		)
	}

	trusts := make([]Trust, len(rows))
	for i, r := range rows {
		trusts[i] = TrustFromSqlc(r)
	}
	return trusts, nil
}

// UpdateTrustApproval updates the three approval flags of a trust.
func (s *SqlcStore) UpdateTrustApproval(
	ctx context.Context, actorID, peerID string,
	approved, peerApproved, verified bool,
) error {

	err := s.queries.UpdateTrustApproval(ctx, sqlc.UpdateTrustApprovalParams{
		Approved:     boolToInt64(approved),
		PeerApproved: boolToInt64(peerApproved),
		Verified:     boolToInt64(verified),
		ActorID:      actorID,
		PeerID:       peerID,
	})
	if err != nil {
		return fmt.Errorf(
			"failed to update trust approval: %w", mapStoreErr(err),
		)
	}
	return nil
}

// UpdateTrustCapabilities records the peer capability snapshot.
func (s *SqlcStore) UpdateTrustCapabilities(
	ctx context.Context, actorID, peerID, awSupported, awVersion string,
	fetchedAt time.Time,
) error {

	err := s.queries.UpdateTrustCapabilities(
		ctx, sqlc.UpdateTrustCapabilitiesParams{
			AwSupported:           awSupported,
			AwVersion:             awVersion,
			CapabilitiesFetchedAt: ToSqlcNullEpoch(fetchedAt),
			ActorID:               actorID,
			PeerID:                peerID,
		},
	)
	if err != nil {
		return fmt.Errorf(
			"failed to update trust capabilities: %w",
			mapStoreErr(err),
		)
	}
	return nil
}

// UpdateTrustConnection records the last successful peer contact.
func (s *SqlcStore) UpdateTrustConnection(
	ctx context.Context, actorID, peerID string, at time.Time, via string,
) error {

	err := s.queries.UpdateTrustConnection(
		ctx, sqlc.UpdateTrustConnectionParams{
			LastConnectedAt:  ToSqlcNullEpoch(at),
			LastConnectedVia: via,
			ActorID:          actorID,
			PeerID:           peerID,
		},
	)
	if err != nil {
		return fmt.Errorf(
			"failed to update trust connection: %w",
			mapStoreErr(err),
		)
	}
	return nil
}

// DeleteTrust deletes a trust relationship.
func (s *SqlcStore) DeleteTrust(
	ctx context.Context, actorID, peerID string,
) error {

	err := s.queries.DeleteTrust(ctx, sqlc.DeleteTrustParams{
		ActorID: actorID,
		PeerID:  peerID,
	})
	if err != nil {
		return fmt.Errorf(
			"failed to delete trust: %w", mapStoreErr(err),
		)
	}
	return nil
}
