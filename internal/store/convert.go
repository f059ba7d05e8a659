package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/actingweb/actingweb-go/internal/db/sqlc"
)

// ToSqlcNullEpoch converts a time to a nullable unix epoch. The zero time
// maps to NULL.
func ToSqlcNullEpoch(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

// FromSqlcNullEpoch converts a nullable unix epoch back to a time. NULL maps
// to the zero time.
func FromSqlcNullEpoch(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.Unix(v.Int64, 0).UTC()
}

func boolToInt64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// ActorFromSqlc converts a sqlc actor row to the domain model.
func ActorFromSqlc(a sqlc.Actor) Actor {
	return Actor{
		ID:             a.ID,
		Creator:        a.Creator,
		PassphraseHash: a.PassphraseHash,
		CreatedAt:      time.Unix(a.CreatedAt, 0).UTC(),
	}
}

// ListMetaFromSqlc converts a sqlc list_meta row to the domain model.
func ListMetaFromSqlc(m sqlc.ListMeta) ListMeta {
	return ListMeta{
		ActorID:     m.ActorID,
		ListName:    m.ListName,
		Description: m.Description,
		Explanation: m.Explanation,
		CreatedAt:   time.Unix(m.CreatedAt, 0).UTC(),
		UpdatedAt:   time.Unix(m.UpdatedAt, 0).UTC(),
		Version:     m.Version,
		Length:      m.Length,
	}
}

// AttributeFromSqlc converts a sqlc attribute row to the domain model.
func AttributeFromSqlc(a sqlc.Attribute) Attribute {
	return Attribute{
		ActorID:   a.ActorID,
		Bucket:    a.Bucket,
		Name:      a.Name,
		Value:     json.RawMessage(a.Value),
		ExpiresAt: FromSqlcNullEpoch(a.TtlEpoch),
		Version:   a.Version,
	}
}

// TrustFromSqlc converts a sqlc trust row to the domain model.
func TrustFromSqlc(t sqlc.Trust) Trust {
	return Trust{
		ActorID:               t.ActorID,
		PeerID:                t.PeerID,
		BaseURI:               t.Baseuri,
		PeerType:              t.PeerType,
		Relationship:          t.Relationship,
		Secret:                t.Secret,
		Description:           t.Description,
		Approved:              t.Approved != 0,
		PeerApproved:          t.PeerApproved != 0,
		Verified:              t.Verified != 0,
		VerificationToken:     t.VerificationToken,
		EstablishedVia:        t.EstablishedVia,
		PeerIdentifier:        t.PeerIdentifier,
		AwSupported:           t.AwSupported,
		AwVersion:             t.AwVersion,
		CapabilitiesFetchedAt: FromSqlcNullEpoch(t.CapabilitiesFetchedAt),
		LastConnectedAt:       FromSqlcNullEpoch(t.LastConnectedAt),
		LastConnectedVia:      t.LastConnectedVia,
		OAuthClientID:         t.OauthClientID,
		ClientName:            t.ClientName,
		ClientVersion:         t.ClientVersion,
		ClientPlatform:        t.ClientPlatform,
		CreatedAt:             time.Unix(t.CreatedAt, 0).UTC(),
	}
}

// SubscriptionFromSqlc converts a sqlc subscription row to the domain model.
func SubscriptionFromSqlc(s sqlc.Subscription) Subscription {
	return Subscription{
		ActorID:     s.ActorID,
		PeerID:      s.PeerID,
		SubID:       s.SubID,
		Target:      s.Target,
		Subtarget:   s.Subtarget,
		Resource:    s.Resource,
		Granularity: s.Granularity,
		Seqnr:       s.Seqnr,
		Callback:    s.Callback != 0,
		CreatedAt:   time.Unix(s.CreatedAt, 0).UTC(),
	}
}

// DiffFromSqlc converts a sqlc subscription_diffs row to the domain model.
func DiffFromSqlc(d sqlc.SubscriptionDiff) Diff {
	return Diff{
		ActorID:   d.ActorID,
		SubID:     d.SubID,
		Seqnr:     d.Seqnr,
		PeerID:    d.PeerID,
		Timestamp: time.Unix(d.Ts, 0).UTC(),
		Blob:      json.RawMessage(d.Blob),
	}
}

// SuspensionFromSqlc converts a sqlc suspension row to the domain model.
func SuspensionFromSqlc(s sqlc.SubscriptionSuspension) Suspension {
	return Suspension{
		ActorID:   s.ActorID,
		Target:    s.Target,
		Subtarget: s.Subtarget,
		CreatedAt: time.Unix(s.CreatedAt, 0).UTC(),
	}
}
