package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist. Backends
// translate their native not-found errors to this so callers can use
// errors.Is without knowing the backend.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when a create collides with an existing record.
var ErrDuplicate = errors.New("record already exists")

// ActorStore handles actor root record persistence.
type ActorStore interface {
	// CreateActor creates a new actor record.
	CreateActor(ctx context.Context, params CreateActorParams) (Actor, error)

	// GetActor retrieves an actor by its ID.
	GetActor(ctx context.Context, id string) (Actor, error)

	// GetActorByCreator retrieves an actor by its creator identity.
	GetActorByCreator(ctx context.Context, creator string) (Actor, error)

	// UpdateActorCreator rebinds the creator identity of an actor.
	UpdateActorCreator(ctx context.Context, id, creator string) error

	// DeleteActor deletes an actor and everything scoped to it.
	DeleteActor(ctx context.Context, id string) error
}

// PropertyStore handles per-actor key/value property persistence.
type PropertyStore interface {
	// SetProperty creates or replaces a property.
	SetProperty(
		ctx context.Context, actorID, name string,
		value json.RawMessage,
	) error

	// GetProperty retrieves a single property value.
	GetProperty(
		ctx context.Context, actorID, name string,
	) (json.RawMessage, error)

	// ListProperties retrieves all properties of an actor.
	ListProperties(
		ctx context.Context, actorID string,
	) (map[string]json.RawMessage, error)

	// DeleteProperty deletes a single property.
	DeleteProperty(ctx context.Context, actorID, name string) error

	// DeleteAllProperties deletes every property of an actor.
	DeleteAllProperties(ctx context.Context, actorID string) error

	// IndexProperty records a reverse lookup entry for a property value.
	IndexProperty(ctx context.Context, actorID, name, value string) error

	// UnindexProperty removes the reverse lookup entry for a property.
	UnindexProperty(ctx context.Context, actorID, name string) error

	// LookupActorByProperty returns the ID of the actor holding the given
	// indexed property value.
	LookupActorByProperty(
		ctx context.Context, name, value string,
	) (string, error)
}

// ListStore handles ordered list persistence.
type ListStore interface {
	// CreateList creates list metadata for a new, empty list.
	CreateList(ctx context.Context, params CreateListParams) (ListMeta, error)

	// GetListMeta retrieves the metadata of a list.
	GetListMeta(ctx context.Context, actorID, listName string) (ListMeta, error)

	// ListLists retrieves the metadata of all lists of an actor.
	ListLists(ctx context.Context, actorID string) ([]ListMeta, error)

	// UpdateListMeta updates the description and explanation of a list.
	UpdateListMeta(
		ctx context.Context, actorID, listName,
		description, explanation string,
	) error

	// DeleteList deletes a list along with its items and metadata.
	DeleteList(ctx context.Context, actorID, listName string) error

	// AppendListItems appends items to the end of a list.
	AppendListItems(
		ctx context.Context, actorID, listName string,
		items []json.RawMessage,
	) error

	// InsertListItem inserts an item at the given index, shifting
	// subsequent items up by one.
	InsertListItem(
		ctx context.Context, actorID, listName string, idx int,
		item json.RawMessage,
	) error

	// GetListItem retrieves the item at the given index.
	GetListItem(
		ctx context.Context, actorID, listName string, idx int,
	) (json.RawMessage, error)

	// GetListItems retrieves all items of a list in order.
	GetListItems(
		ctx context.Context, actorID, listName string,
	) ([]json.RawMessage, error)

	// UpdateListItem replaces the item at the given index.
	UpdateListItem(
		ctx context.Context, actorID, listName string, idx int,
		item json.RawMessage,
	) error

	// DeleteListItem deletes the item at the given index, shifting
	// subsequent items down by one.
	DeleteListItem(
		ctx context.Context, actorID, listName string, idx int,
	) error

	// ClearList deletes all items of a list but keeps its metadata.
	ClearList(ctx context.Context, actorID, listName string) error
}

// AttributeStore handles internal bucketed attribute persistence. Attributes
// carry a version counter so callers can perform compare-and-swap updates.
type AttributeStore interface {
	// SetAttribute creates or replaces an attribute, bumping its version.
	SetAttribute(ctx context.Context, params SetAttributeParams) (Attribute, error)

	// GetAttribute retrieves an attribute. Expired attributes are treated
	// as not found.
	GetAttribute(
		ctx context.Context, actorID, bucket, name string,
	) (Attribute, error)

	// ListBucket retrieves all live attributes in a bucket.
	ListBucket(ctx context.Context, actorID, bucket string) ([]Attribute, error)

	// CompareAndSwapAttribute updates an attribute only if its current
	// version matches the expected one. Returns false without error when
	// the version check fails.
	CompareAndSwapAttribute(
		ctx context.Context, params CompareAndSwapAttributeParams,
	) (bool, error)

	// DeleteAttribute deletes a single attribute.
	DeleteAttribute(ctx context.Context, actorID, bucket, name string) error

	// DeleteBucket deletes all attributes in a bucket.
	DeleteBucket(ctx context.Context, actorID, bucket string) error

	// DeleteAllAttributes deletes every attribute of an actor.
	DeleteAllAttributes(ctx context.Context, actorID string) error

	// PruneExpiredAttributes deletes all attributes whose TTL has passed.
	PruneExpiredAttributes(ctx context.Context, now time.Time) error
}

// TrustStore handles trust relationship persistence.
type TrustStore interface {
	// CreateTrust creates a new trust relationship.
	CreateTrust(ctx context.Context, params CreateTrustParams) (Trust, error)

	// GetTrust retrieves a trust relationship by actor and peer ID.
	GetTrust(ctx context.Context, actorID, peerID string) (Trust, error)

	// GetTrustBySecret retrieves a trust relationship by its bearer
	// secret.
	GetTrustBySecret(ctx context.Context, secret string) (Trust, error)

	// GetTrustByClientID retrieves a trust relationship by its OAuth2
	// client ID.
	GetTrustByClientID(ctx context.Context, clientID string) (Trust, error)

	// ListTrusts retrieves all trust relationships of an actor.
	ListTrusts(ctx context.Context, actorID string) ([]Trust, error)

	// ListTrustsByRelationship retrieves all trust relationships of an
	// actor with the given relationship name.
	ListTrustsByRelationship(
		ctx context.Context, actorID, relationship string,
	) ([]Trust, error)

	// UpdateTrustApproval updates the three approval flags of a trust.
	UpdateTrustApproval(
		ctx context.Context, actorID, peerID string,
		approved, peerApproved, verified bool,
	) error

	// UpdateTrustCapabilities records the peer capability snapshot.
	UpdateTrustCapabilities(
		ctx context.Context, actorID, peerID,
		awSupported, awVersion string, fetchedAt time.Time,
	) error

	// UpdateTrustConnection records the last successful peer contact.
	UpdateTrustConnection(
		ctx context.Context, actorID, peerID string,
		at time.Time, via string,
	) error

	// DeleteTrust deletes a trust relationship.
	DeleteTrust(ctx context.Context, actorID, peerID string) error
}

// SubscriptionStore handles subscription, diff, and suspension persistence.
type SubscriptionStore interface {
	// CreateSubscription creates a new subscription.
	CreateSubscription(
		ctx context.Context, params CreateSubscriptionParams,
	) (Subscription, error)

	// GetSubscription retrieves a subscription.
	GetSubscription(
		ctx context.Context, actorID, peerID, subID string,
	) (Subscription, error)

	// ListSubscriptions retrieves all subscriptions of an actor.
	ListSubscriptions(ctx context.Context, actorID string) ([]Subscription, error)

	// ListSubscriptionsByPeer retrieves all subscriptions a given peer
	// holds on an actor.
	ListSubscriptionsByPeer(
		ctx context.Context, actorID, peerID string,
	) ([]Subscription, error)

	// NextSeqnr atomically allocates the next sequence number of a
	// subscription.
	NextSeqnr(ctx context.Context, actorID, peerID, subID string) (int64, error)

	// DeleteSubscription deletes a subscription and its stored diffs.
	DeleteSubscription(ctx context.Context, actorID, peerID, subID string) error

	// CreateDiff stores a diff for later polling or redelivery.
	CreateDiff(ctx context.Context, params CreateDiffParams) error

	// GetDiff retrieves a single stored diff.
	GetDiff(
		ctx context.Context, actorID, subID string, seqnr int64,
	) (Diff, error)

	// ListDiffs retrieves all stored diffs of a subscription in sequence
	// order.
	ListDiffs(ctx context.Context, actorID, subID string) ([]Diff, error)

	// CountDiffs counts the stored diffs of a subscription.
	CountDiffs(ctx context.Context, actorID, subID string) (int64, error)

	// DeleteDiff deletes a single stored diff. Deleting a missing diff
	// is a no-op.
	DeleteDiff(ctx context.Context, actorID, subID string, seqnr int64) error

	// DeleteDiffsThrough deletes all diffs of a subscription with a
	// sequence number at or below the given one.
	DeleteDiffsThrough(
		ctx context.Context, actorID, subID string, seqnr int64,
	) error

	// SuspendScope suspends diff registration for a target/subtarget
	// scope. Suspending an already suspended scope is a no-op.
	SuspendScope(ctx context.Context, actorID, target, subtarget string) error

	// ResumeScope lifts a suspension.
	ResumeScope(ctx context.Context, actorID, target, subtarget string) error

	// ListSuspensions retrieves all active suspensions of an actor.
	ListSuspensions(ctx context.Context, actorID string) ([]Suspension, error)
}

// Store is the combined persistence interface the rest of the system builds
// on. Two backends exist, one on SQLite and an in-memory one for tests and
// ephemeral deployments.
type Store interface {
	ActorStore
	PropertyStore
	ListStore
	AttributeStore
	TrustStore
	SubscriptionStore

	// WithTx executes the given function within a single transaction.
	// The store passed to the callback is bound to that transaction.
	WithTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error

	// Close releases the underlying resources.
	Close() error
}

// Actor is the root record all other state hangs off.
type Actor struct {
	ID             string
	Creator        string
	PassphraseHash string
	CreatedAt      time.Time
}

// ListMeta describes an ordered list without its items.
type ListMeta struct {
	ActorID     string
	ListName    string
	Description string
	Explanation string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Version     int64
	Length      int64
}

// Attribute is a single internal value inside a bucket. ExpiresAt is zero
// when the attribute has no TTL.
type Attribute struct {
	ActorID   string
	Bucket    string
	Name      string
	Value     json.RawMessage
	ExpiresAt time.Time
	Version   int64
}

// Trust is a relationship between an actor and one remote peer or OAuth2
// client.
type Trust struct {
	ActorID           string
	PeerID            string
	BaseURI           string
	PeerType          string
	Relationship      string
	Secret            string
	Description       string
	Approved          bool
	PeerApproved      bool
	Verified          bool
	VerificationToken string
	EstablishedVia    string
	PeerIdentifier    string

	// AwSupported and AwVersion are the cached capability snapshot of the
	// peer, refreshed from its /meta endpoints.
	AwSupported           string
	AwVersion             string
	CapabilitiesFetchedAt time.Time

	LastConnectedAt  time.Time
	LastConnectedVia string

	// OAuthClientID and the client fields are only set for trusts created
	// through dynamic client registration.
	OAuthClientID  string
	ClientName     string
	ClientVersion  string
	ClientPlatform string

	CreatedAt time.Time
}

// Subscription is one peer's registration for change notifications on a
// scope of an actor's data. Seqnr is the last allocated sequence number,
// starting at zero before any diff has been registered.
type Subscription struct {
	ActorID     string
	PeerID      string
	SubID       string
	Target      string
	Subtarget   string
	Resource    string
	Granularity string
	Seqnr       int64
	Callback    bool
	CreatedAt   time.Time
}

// Diff is one stored change record of a subscription.
type Diff struct {
	ActorID   string
	SubID     string
	Seqnr     int64
	PeerID    string
	Timestamp time.Time
	Blob      json.RawMessage
}

// Suspension marks a target/subtarget scope as excluded from diff
// registration.
type Suspension struct {
	ActorID   string
	Target    string
	Subtarget string
	CreatedAt time.Time
}

// CreateActorParams holds the inputs for ActorStore.CreateActor.
type CreateActorParams struct {
	ID             string
	Creator        string
	PassphraseHash string
}

// CreateListParams holds the inputs for ListStore.CreateList.
type CreateListParams struct {
	ActorID     string
	ListName    string
	Description string
	Explanation string
}

// SetAttributeParams holds the inputs for AttributeStore.SetAttribute. A
// zero TTL means the attribute never expires.
type SetAttributeParams struct {
	ActorID string
	Bucket  string
	Name    string
	Value   json.RawMessage
	TTL     time.Duration
}

// CompareAndSwapAttributeParams holds the inputs for
// AttributeStore.CompareAndSwapAttribute.
type CompareAndSwapAttributeParams struct {
	ActorID         string
	Bucket          string
	Name            string
	Value           json.RawMessage
	TTL             time.Duration
	ExpectedVersion int64
}

// CreateTrustParams holds the inputs for TrustStore.CreateTrust.
type CreateTrustParams struct {
	ActorID           string
	PeerID            string
	BaseURI           string
	PeerType          string
	Relationship      string
	Secret            string
	Description       string
	Approved          bool
	PeerApproved      bool
	Verified          bool
	VerificationToken string
	EstablishedVia    string
	PeerIdentifier    string
	OAuthClientID     string
	ClientName        string
	ClientVersion     string
	ClientPlatform    string
}

// CreateSubscriptionParams holds the inputs for
// SubscriptionStore.CreateSubscription.
type CreateSubscriptionParams struct {
	ActorID     string
	PeerID      string
	SubID       string
	Target      string
	Subtarget   string
	Resource    string
	Granularity string
	Callback    bool
}

// CreateDiffParams holds the inputs for SubscriptionStore.CreateDiff.
type CreateDiffParams struct {
	ActorID string
	SubID   string
	Seqnr   int64
	PeerID  string
	Blob    json.RawMessage
}
