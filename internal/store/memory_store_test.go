package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	return NewMemoryStore()
}

func TestActorLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, err := s.CreateActor(ctx, CreateActorParams{
		ID:             "actor-1",
		Creator:        "alice@example.com",
		PassphraseHash: "deadbeef",
	})
	require.NoError(t, err)
	require.Equal(t, "actor-1", a.ID)
	require.False(t, a.CreatedAt.IsZero())

	_, err = s.CreateActor(ctx, CreateActorParams{
		ID:      "actor-1",
		Creator: "bob@example.com",
	})
	require.ErrorIs(t, err, ErrDuplicate)

	got, err := s.GetActorByCreator(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, a.ID, got.ID)

	require.NoError(t, s.UpdateActorCreator(ctx, "actor-1", "carol@x.io"))
	got, err = s.GetActor(ctx, "actor-1")
	require.NoError(t, err)
	require.Equal(t, "carol@x.io", got.Creator)

	require.NoError(t, s.DeleteActor(ctx, "actor-1"))
	_, err = s.GetActor(ctx, "actor-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteActorCascades(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreateActor(ctx, CreateActorParams{
		ID: "actor-1", Creator: "a@x.io",
	})
	require.NoError(t, err)

	require.NoError(t, s.SetProperty(
		ctx, "actor-1", "email", json.RawMessage(`"a@x.io"`),
	))
	require.NoError(t, s.IndexProperty(ctx, "actor-1", "email", "a@x.io"))

	_, err = s.CreateTrust(ctx, CreateTrustParams{
		ActorID: "actor-1", PeerID: "peer-1", Secret: "s3cret",
		Relationship: "friend",
	})
	require.NoError(t, err)

	_, err = s.CreateSubscription(ctx, CreateSubscriptionParams{
		ActorID: "actor-1", PeerID: "peer-1", SubID: "sub-1",
		Target: "properties",
	})
	require.NoError(t, err)

	require.NoError(t, s.DeleteActor(ctx, "actor-1"))

	_, err = s.GetProperty(ctx, "actor-1", "email")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.LookupActorByProperty(ctx, "email", "a@x.io")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetTrust(ctx, "actor-1", "peer-1")
	require.ErrorIs(t, err, ErrNotFound)

	subs, err := s.ListSubscriptions(ctx, "actor-1")
	require.NoError(t, err)
	require.Empty(t, subs)
}

func TestPropertyIndexReplacesOldValue(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.IndexProperty(ctx, "actor-1", "email", "a@x.io"))
	require.NoError(t, s.IndexProperty(ctx, "actor-1", "email", "b@x.io"))

	_, err := s.LookupActorByProperty(ctx, "email", "a@x.io")
	require.ErrorIs(t, err, ErrNotFound)

	actorID, err := s.LookupActorByProperty(ctx, "email", "b@x.io")
	require.NoError(t, err)
	require.Equal(t, "actor-1", actorID)
}

func TestListOperations(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	meta, err := s.CreateList(ctx, CreateListParams{
		ActorID:  "actor-1",
		ListName: "notes",
	})
	require.NoError(t, err)
	require.EqualValues(t, 0, meta.Length)
	require.EqualValues(t, 1, meta.Version)

	require.NoError(t, s.AppendListItems(
		ctx, "actor-1", "notes", []json.RawMessage{
			json.RawMessage(`"a"`),
			json.RawMessage(`"c"`),
		},
	))

	// Insert in the middle shifts the tail up.
	require.NoError(t, s.InsertListItem(
		ctx, "actor-1", "notes", 1, json.RawMessage(`"b"`),
	))

	items, err := s.GetListItems(ctx, "actor-1", "notes")
	require.NoError(t, err)
	require.Equal(t, []json.RawMessage{
		json.RawMessage(`"a"`),
		json.RawMessage(`"b"`),
		json.RawMessage(`"c"`),
	}, items)

	meta, err = s.GetListMeta(ctx, "actor-1", "notes")
	require.NoError(t, err)
	require.EqualValues(t, 3, meta.Length)

	// Delete in the middle shifts the tail down.
	require.NoError(t, s.DeleteListItem(ctx, "actor-1", "notes", 1))
	items, err = s.GetListItems(ctx, "actor-1", "notes")
	require.NoError(t, err)
	require.Equal(t, []json.RawMessage{
		json.RawMessage(`"a"`),
		json.RawMessage(`"c"`),
	}, items)

	// Out of range operations report not found.
	err = s.UpdateListItem(
		ctx, "actor-1", "notes", 5, json.RawMessage(`"x"`),
	)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.DeleteListItem(ctx, "actor-1", "notes", -1), ErrNotFound)

	require.NoError(t, s.ClearList(ctx, "actor-1", "notes"))
	items, err = s.GetListItems(ctx, "actor-1", "notes")
	require.NoError(t, err)
	require.Empty(t, items)

	meta, err = s.GetListMeta(ctx, "actor-1", "notes")
	require.NoError(t, err)
	require.EqualValues(t, 0, meta.Length)

	require.NoError(t, s.DeleteList(ctx, "actor-1", "notes"))
	_, err = s.GetListMeta(ctx, "actor-1", "notes")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAttributeVersioningAndCAS(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	attr, err := s.SetAttribute(ctx, SetAttributeParams{
		ActorID: "actor-1",
		Bucket:  "oauth",
		Name:    "token-1",
		Value:   json.RawMessage(`{"state":"active"}`),
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, attr.Version)

	attr, err = s.SetAttribute(ctx, SetAttributeParams{
		ActorID: "actor-1",
		Bucket:  "oauth",
		Name:    "token-1",
		Value:   json.RawMessage(`{"state":"active","n":2}`),
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, attr.Version)

	// Stale version loses the CAS.
	ok, err := s.CompareAndSwapAttribute(ctx, CompareAndSwapAttributeParams{
		ActorID:         "actor-1",
		Bucket:          "oauth",
		Name:            "token-1",
		Value:           json.RawMessage(`{"state":"rotated"}`),
		ExpectedVersion: 1,
	})
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.CompareAndSwapAttribute(ctx, CompareAndSwapAttributeParams{
		ActorID:         "actor-1",
		Bucket:          "oauth",
		Name:            "token-1",
		Value:           json.RawMessage(`{"state":"rotated"}`),
		ExpectedVersion: 2,
	})
	require.NoError(t, err)
	require.True(t, ok)

	attr, err = s.GetAttribute(ctx, "actor-1", "oauth", "token-1")
	require.NoError(t, err)
	require.EqualValues(t, 3, attr.Version)
	require.JSONEq(t, `{"state":"rotated"}`, string(attr.Value))
}

func TestAttributeTTL(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.SetAttribute(ctx, SetAttributeParams{
		ActorID: "actor-1",
		Bucket:  "cache",
		Name:    "stale",
		Value:   json.RawMessage(`1`),
		TTL:     time.Nanosecond,
	})
	require.NoError(t, err)

	_, err = s.SetAttribute(ctx, SetAttributeParams{
		ActorID: "actor-1",
		Bucket:  "cache",
		Name:    "fresh",
		Value:   json.RawMessage(`2`),
		TTL:     time.Hour,
	})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = s.GetAttribute(ctx, "actor-1", "cache", "stale")
	require.ErrorIs(t, err, ErrNotFound)

	attrs, err := s.ListBucket(ctx, "actor-1", "cache")
	require.NoError(t, err)
	require.Len(t, attrs, 1)
	require.Equal(t, "fresh", attrs[0].Name)

	require.NoError(t, s.PruneExpiredAttributes(ctx, time.Now()))
	attrs, err = s.ListBucket(ctx, "actor-1", "cache")
	require.NoError(t, err)
	require.Len(t, attrs, 1)
}

func TestTrustLookupsBySecretAndClientID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreateTrust(ctx, CreateTrustParams{
		ActorID:      "actor-1",
		PeerID:       "peer-1",
		Relationship: "friend",
		Secret:       "peer-secret",
	})
	require.NoError(t, err)

	_, err = s.CreateTrust(ctx, CreateTrustParams{
		ActorID:       "actor-1",
		PeerID:        "client-1",
		Relationship:  "mcp_client",
		Secret:        "client-secret",
		OAuthClientID: "mcp_abc123",
	})
	require.NoError(t, err)

	got, err := s.GetTrustBySecret(ctx, "peer-secret")
	require.NoError(t, err)
	require.Equal(t, "peer-1", got.PeerID)

	got, err = s.GetTrustByClientID(ctx, "mcp_abc123")
	require.NoError(t, err)
	require.Equal(t, "client-1", got.PeerID)

	_, err = s.GetTrustBySecret(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)

	byRel, err := s.ListTrustsByRelationship(ctx, "actor-1", "friend")
	require.NoError(t, err)
	require.Len(t, byRel, 1)
	require.Equal(t, "peer-1", byRel[0].PeerID)
}

func TestSubscriptionSeqnrMonotonic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sub, err := s.CreateSubscription(ctx, CreateSubscriptionParams{
		ActorID: "actor-1",
		PeerID:  "peer-1",
		SubID:   "sub-1",
		Target:  "properties",
	})
	require.NoError(t, err)
	require.EqualValues(t, 0, sub.Seqnr)

	for want := int64(1); want <= 5; want++ {
		seqnr, err := s.NextSeqnr(ctx, "actor-1", "peer-1", "sub-1")
		require.NoError(t, err)
		require.Equal(t, want, seqnr)
	}

	sub, err = s.GetSubscription(ctx, "actor-1", "peer-1", "sub-1")
	require.NoError(t, err)
	require.EqualValues(t, 5, sub.Seqnr)
}

func TestDiffAckClearsThroughSeqnr(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreateSubscription(ctx, CreateSubscriptionParams{
		ActorID: "actor-1",
		PeerID:  "peer-1",
		SubID:   "sub-1",
		Target:  "properties",
	})
	require.NoError(t, err)

	for i := int64(1); i <= 4; i++ {
		require.NoError(t, s.CreateDiff(ctx, CreateDiffParams{
			ActorID: "actor-1",
			SubID:   "sub-1",
			Seqnr:   i,
			PeerID:  "peer-1",
			Blob:    json.RawMessage(`{}`),
		}))
	}

	require.NoError(t, s.DeleteDiffsThrough(ctx, "actor-1", "sub-1", 2))

	diffs, err := s.ListDiffs(ctx, "actor-1", "sub-1")
	require.NoError(t, err)
	require.Len(t, diffs, 2)
	require.EqualValues(t, 3, diffs[0].Seqnr)
	require.EqualValues(t, 4, diffs[1].Seqnr)

	n, err := s.CountDiffs(ctx, "actor-1", "sub-1")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	require.NoError(t, s.DeleteSubscription(ctx, "actor-1", "peer-1", "sub-1"))
	diffs, err = s.ListDiffs(ctx, "actor-1", "sub-1")
	require.NoError(t, err)
	require.Empty(t, diffs)
}

func TestSuspensionsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SuspendScope(ctx, "actor-1", "properties", ""))
	require.NoError(t, s.SuspendScope(ctx, "actor-1", "properties", ""))

	suspensions, err := s.ListSuspensions(ctx, "actor-1")
	require.NoError(t, err)
	require.Len(t, suspensions, 1)

	require.NoError(t, s.ResumeScope(ctx, "actor-1", "properties", ""))
	suspensions, err = s.ListSuspensions(ctx, "actor-1")
	require.NoError(t, err)
	require.Empty(t, suspensions)
}
