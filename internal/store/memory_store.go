package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store backend used for tests and ephemeral
// deployments. All state is lost on restart.
type MemoryStore struct {
	mu sync.RWMutex

	actors    map[string]Actor
	props     map[string]map[string]json.RawMessage
	propIndex map[string]string

	listMeta  map[string]map[string]ListMeta
	listItems map[string]map[string][]json.RawMessage

	attrs map[string]map[string]Attribute

	trusts map[string]map[string]Trust

	subs        map[string]map[string]Subscription
	diffs       map[string]map[string][]Diff
	suspensions map[string]map[string]Suspension
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		actors:      make(map[string]Actor),
		props:       make(map[string]map[string]json.RawMessage),
		propIndex:   make(map[string]string),
		listMeta:    make(map[string]map[string]ListMeta),
		listItems:   make(map[string]map[string][]json.RawMessage),
		attrs:       make(map[string]map[string]Attribute),
		trusts:      make(map[string]map[string]Trust),
		subs:        make(map[string]map[string]Subscription),
		diffs:       make(map[string]map[string][]Diff),
		suspensions: make(map[string]map[string]Suspension),
	}
}

// Close implements the Store interface. There is nothing to release.
func (m *MemoryStore) Close() error {
	return nil
}

// WithTx executes the given function against the same store. The in-memory
// backend applies mutations immediately, so a failing callback is not rolled
// back. Acceptable for the test and single-node deployments this backend
// targets.
func (m *MemoryStore) WithTx(
	ctx context.Context, fn func(ctx context.Context, s Store) error,
) error {
	return fn(ctx, m)
}

// compositeKey joins key parts with a separator that cannot occur in IDs.
func compositeKey(parts ...string) string {
	return strings.Join(parts, "\x00")
}

// ActorStore implementation.

func (m *MemoryStore) CreateActor(
	_ context.Context, params CreateActorParams,
) (Actor, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.actors[params.ID]; ok {
		return Actor{}, fmt.Errorf(
			"actor %s: %w", params.ID, ErrDuplicate,
		)
	}

	a := Actor{
		ID:             params.ID,
		Creator:        params.Creator,
		PassphraseHash: params.PassphraseHash,
		CreatedAt:      time.Now().UTC(),
	}
	m.actors[params.ID] = a
	return a, nil
}

func (m *MemoryStore) GetActor(_ context.Context, id string) (Actor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.actors[id]
	if !ok {
		return Actor{}, fmt.Errorf("actor %s: %w", id, ErrNotFound)
	}
	return a, nil
}

func (m *MemoryStore) GetActorByCreator(
	_ context.Context, creator string,
) (Actor, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.actors {
		if a.Creator == creator {
			return a, nil
		}
	}
	return Actor{}, fmt.Errorf("creator %s: %w", creator, ErrNotFound)
}

func (m *MemoryStore) UpdateActorCreator(
	_ context.Context, id, creator string,
) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.actors[id]
	if !ok {
		return fmt.Errorf("actor %s: %w", id, ErrNotFound)
	}
	a.Creator = creator
	m.actors[id] = a
	return nil
}

func (m *MemoryStore) DeleteActor(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.actors, id)
	delete(m.props, id)
	delete(m.listMeta, id)
	delete(m.listItems, id)
	delete(m.attrs, id)
	delete(m.trusts, id)
	delete(m.subs, id)
	delete(m.diffs, id)
	delete(m.suspensions, id)

	for k, actorID := range m.propIndex {
		if actorID == id {
			delete(m.propIndex, k)
		}
	}
	return nil
}

// PropertyStore implementation.

func (m *MemoryStore) SetProperty(
	_ context.Context, actorID, name string, value json.RawMessage,
) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	props, ok := m.props[actorID]
	if !ok {
		props = make(map[string]json.RawMessage)
		m.props[actorID] = props
	}
	props[name] = append(json.RawMessage(nil), value...)
	return nil
}

func (m *MemoryStore) GetProperty(
	_ context.Context, actorID, name string,
) (json.RawMessage, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.props[actorID][name]
	if !ok {
		return nil, fmt.Errorf("property %s: %w", name, ErrNotFound)
	}
	return append(json.RawMessage(nil), v...), nil
}

func (m *MemoryStore) ListProperties(
	_ context.Context, actorID string,
) (map[string]json.RawMessage, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	props := make(map[string]json.RawMessage, len(m.props[actorID]))
	for name, v := range m.props[actorID] {
		props[name] = append(json.RawMessage(nil), v...)
	}
	return props, nil
}

func (m *MemoryStore) DeleteProperty(
	_ context.Context, actorID, name string,
) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.props[actorID], name)
	return nil
}

func (m *MemoryStore) DeleteAllProperties(
	_ context.Context, actorID string,
) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.props, actorID)
	return nil
}

func (m *MemoryStore) IndexProperty(
	_ context.Context, actorID, name, value string,
) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	// Drop any previous entry for this actor/name pair before adding the
	// new value.
	for k, id := range m.propIndex {
		if id == actorID && strings.HasPrefix(k, name+"\x00") {
			delete(m.propIndex, k)
		}
	}
	m.propIndex[compositeKey(name, value)] = actorID
	return nil
}

func (m *MemoryStore) UnindexProperty(
	_ context.Context, actorID, name string,
) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	for k, id := range m.propIndex {
		if id == actorID && strings.HasPrefix(k, name+"\x00") {
			delete(m.propIndex, k)
		}
	}
	return nil
}

func (m *MemoryStore) LookupActorByProperty(
	_ context.Context, name, value string,
) (string, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	actorID, ok := m.propIndex[compositeKey(name, value)]
	if !ok {
		return "", fmt.Errorf(
			"indexed property %s: %w", name, ErrNotFound,
		)
	}
	return actorID, nil
}

// ListStore implementation.

func (m *MemoryStore) CreateList(
	_ context.Context, params CreateListParams,
) (ListMeta, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	metas, ok := m.listMeta[params.ActorID]
	if !ok {
		metas = make(map[string]ListMeta)
		m.listMeta[params.ActorID] = metas
	}
	if _, ok := metas[params.ListName]; ok {
		return ListMeta{}, fmt.Errorf(
			"list %s: %w", params.ListName, ErrDuplicate,
		)
	}

	now := time.Now().UTC()
	meta := ListMeta{
		ActorID:     params.ActorID,
		ListName:    params.ListName,
		Description: params.Description,
		Explanation: params.Explanation,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
		Length:      0,
	}
	metas[params.ListName] = meta
	return meta, nil
}

func (m *MemoryStore) GetListMeta(
	_ context.Context, actorID, listName string,
) (ListMeta, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	meta, ok := m.listMeta[actorID][listName]
	if !ok {
		return ListMeta{}, fmt.Errorf(
			"list %s: %w", listName, ErrNotFound,
		)
	}
	return meta, nil
}

func (m *MemoryStore) ListLists(
	_ context.Context, actorID string,
) ([]ListMeta, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	metas := make([]ListMeta, 0, len(m.listMeta[actorID]))
	for _, meta := range m.listMeta[actorID] {
		metas = append(metas, meta)
	}
	sort.Slice(metas, func(i, j int) bool {
		return metas[i].ListName < metas[j].ListName
	})
	return metas, nil
}

func (m *MemoryStore) UpdateListMeta(
	_ context.Context, actorID, listName, description, explanation string,
) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	meta, ok := m.listMeta[actorID][listName]
	if !ok {
		return fmt.Errorf("list %s: %w", listName, ErrNotFound)
	}
	meta.Description = description
	meta.Explanation = explanation
	meta.UpdatedAt = time.Now().UTC()
	meta.Version++
	m.listMeta[actorID][listName] = meta
	return nil
}

func (m *MemoryStore) DeleteList(
	_ context.Context, actorID, listName string,
) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.listMeta[actorID], listName)
	delete(m.listItems[actorID], listName)
	return nil
}

func (m *MemoryStore) AppendListItems(
	_ context.Context, actorID, listName string, items []json.RawMessage,
) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	meta, ok := m.listMeta[actorID][listName]
	if !ok {
		return fmt.Errorf("list %s: %w", listName, ErrNotFound)
	}

	lists, ok := m.listItems[actorID]
	if !ok {
		lists = make(map[string][]json.RawMessage)
		m.listItems[actorID] = lists
	}
	for _, item := range items {
		lists[listName] = append(
			lists[listName], append(json.RawMessage(nil), item...),
		)
	}

	m.bumpListLocked(actorID, listName, meta, int64(len(lists[listName])))
	return nil
}

func (m *MemoryStore) InsertListItem(
	_ context.Context, actorID, listName string, idx int,
	item json.RawMessage,
) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	meta, ok := m.listMeta[actorID][listName]
	if !ok {
		return fmt.Errorf("list %s: %w", listName, ErrNotFound)
	}
	items := m.listItems[actorID][listName]
	if idx < 0 || idx > len(items) {
		return fmt.Errorf(
			"%w: list index %d out of range [0, %d]",
			ErrNotFound, idx, len(items),
		)
	}

	items = append(items, nil)
	copy(items[idx+1:], items[idx:])
	items[idx] = append(json.RawMessage(nil), item...)

	if m.listItems[actorID] == nil {
		m.listItems[actorID] = make(map[string][]json.RawMessage)
	}
	m.listItems[actorID][listName] = items

	m.bumpListLocked(actorID, listName, meta, int64(len(items)))
	return nil
}

func (m *MemoryStore) GetListItem(
	_ context.Context, actorID, listName string, idx int,
) (json.RawMessage, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	items := m.listItems[actorID][listName]
	if idx < 0 || idx >= len(items) {
		return nil, fmt.Errorf(
			"%w: list index %d out of range [0, %d)",
			ErrNotFound, idx, len(items),
		)
	}
	return append(json.RawMessage(nil), items[idx]...), nil
}

func (m *MemoryStore) GetListItems(
	_ context.Context, actorID, listName string,
) ([]json.RawMessage, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.listMeta[actorID][listName]; !ok {
		return nil, fmt.Errorf("list %s: %w", listName, ErrNotFound)
	}

	items := m.listItems[actorID][listName]
	out := make([]json.RawMessage, len(items))
	for i, item := range items {
		out[i] = append(json.RawMessage(nil), item...)
	}
	return out, nil
}

func (m *MemoryStore) UpdateListItem(
	_ context.Context, actorID, listName string, idx int,
	item json.RawMessage,
) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	items := m.listItems[actorID][listName]
	if idx < 0 || idx >= len(items) {
		return fmt.Errorf(
			"%w: list index %d out of range [0, %d)",
			ErrNotFound, idx, len(items),
		)
	}
	items[idx] = append(json.RawMessage(nil), item...)
	return nil
}

func (m *MemoryStore) DeleteListItem(
	_ context.Context, actorID, listName string, idx int,
) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	meta, ok := m.listMeta[actorID][listName]
	if !ok {
		return fmt.Errorf("list %s: %w", listName, ErrNotFound)
	}
	items := m.listItems[actorID][listName]
	if idx < 0 || idx >= len(items) {
		return fmt.Errorf(
			"%w: list index %d out of range [0, %d)",
			ErrNotFound, idx, len(items),
		)
	}

	items = append(items[:idx], items[idx+1:]...)
	m.listItems[actorID][listName] = items

	m.bumpListLocked(actorID, listName, meta, int64(len(items)))
	return nil
}

func (m *MemoryStore) ClearList(
	_ context.Context, actorID, listName string,
) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	meta, ok := m.listMeta[actorID][listName]
	if !ok {
		return fmt.Errorf("list %s: %w", listName, ErrNotFound)
	}
	delete(m.listItems[actorID], listName)

	m.bumpListLocked(actorID, listName, meta, 0)
	return nil
}

// bumpListLocked persists a new length and version. The caller holds the
// write lock.
func (m *MemoryStore) bumpListLocked(
	actorID, listName string, meta ListMeta, length int64,
) {
	meta.Length = length
	meta.UpdatedAt = time.Now().UTC()
	meta.Version++
	m.listMeta[actorID][listName] = meta
}

// AttributeStore implementation.

func (m *MemoryStore) SetAttribute(
	_ context.Context, params SetAttributeParams,
) (Attribute, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	attrs, ok := m.attrs[params.ActorID]
	if !ok {
		attrs = make(map[string]Attribute)
		m.attrs[params.ActorID] = attrs
	}

	key := compositeKey(params.Bucket, params.Name)
	version := int64(1)
	if prev, ok := attrs[key]; ok {
		version = prev.Version + 1
	}

	var expiresAt time.Time
	if params.TTL > 0 {
		expiresAt = time.Now().Add(params.TTL).UTC()
	}

	attr := Attribute{
		ActorID:   params.ActorID,
		Bucket:    params.Bucket,
		Name:      params.Name,
		Value:     append(json.RawMessage(nil), params.Value...),
		ExpiresAt: expiresAt,
		Version:   version,
	}
	attrs[key] = attr
	return attr, nil
}

func (m *MemoryStore) GetAttribute(
	_ context.Context, actorID, bucket, name string,
) (Attribute, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	attr, ok := m.attrs[actorID][compositeKey(bucket, name)]
	if !ok {
		return Attribute{}, fmt.Errorf(
			"attribute %s/%s: %w", bucket, name, ErrNotFound,
		)
	}
	if !attr.ExpiresAt.IsZero() && attr.ExpiresAt.Before(time.Now()) {
		return Attribute{}, fmt.Errorf(
			"attribute %s/%s expired: %w", bucket, name, ErrNotFound,
		)
	}
	return attr, nil
}

func (m *MemoryStore) ListBucket(
	_ context.Context, actorID, bucket string,
) ([]Attribute, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	var attrs []Attribute
	for _, attr := range m.attrs[actorID] {
		if attr.Bucket != bucket {
			continue
		}
		if !attr.ExpiresAt.IsZero() && attr.ExpiresAt.Before(now) {
			continue
		}
		attrs = append(attrs, attr)
	}
	sort.Slice(attrs, func(i, j int) bool {
		return attrs[i].Name < attrs[j].Name
	})
	return attrs, nil
}

func (m *MemoryStore) CompareAndSwapAttribute(
	_ context.Context, params CompareAndSwapAttributeParams,
) (bool, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	key := compositeKey(params.Bucket, params.Name)
	attr, ok := m.attrs[params.ActorID][key]
	if !ok || attr.Version != params.ExpectedVersion {
		return false, nil
	}

	var expiresAt time.Time
	if params.TTL > 0 {
		expiresAt = time.Now().Add(params.TTL).UTC()
	}

	attr.Value = append(json.RawMessage(nil), params.Value...)
	attr.ExpiresAt = expiresAt
	attr.Version++
	m.attrs[params.ActorID][key] = attr
	return true, nil
}

func (m *MemoryStore) DeleteAttribute(
	_ context.Context, actorID, bucket, name string,
) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.attrs[actorID], compositeKey(bucket, name))
	return nil
}

func (m *MemoryStore) DeleteBucket(
	_ context.Context, actorID, bucket string,
) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, attr := range m.attrs[actorID] {
		if attr.Bucket == bucket {
			delete(m.attrs[actorID], key)
		}
	}
	return nil
}

func (m *MemoryStore) DeleteAllAttributes(
	_ context.Context, actorID string,
) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.attrs, actorID)
	return nil
}

func (m *MemoryStore) PruneExpiredAttributes(
	_ context.Context, now time.Time,
) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, attrs := range m.attrs {
		for key, attr := range attrs {
			if !attr.ExpiresAt.IsZero() &&
				attr.ExpiresAt.Before(now) {

				delete(attrs, key)
			}
		}
	}
	return nil
}

// TrustStore implementation.

func (m *MemoryStore) CreateTrust(
	_ context.Context, params CreateTrustParams,
) (Trust, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	trusts, ok := m.trusts[params.ActorID]
	if !ok {
		trusts = make(map[string]Trust)
		m.trusts[params.ActorID] = trusts
	}
	if _, ok := trusts[params.PeerID]; ok {
		return Trust{}, fmt.Errorf(
			"trust %s: %w", params.PeerID, ErrDuplicate,
		)
	}

	t := Trust{
		ActorID:           params.ActorID,
		PeerID:            params.PeerID,
		BaseURI:           params.BaseURI,
		PeerType:          params.PeerType,
		Relationship:      params.Relationship,
		Secret:            params.Secret,
		Description:       params.Description,
		Approved:          params.Approved,
		PeerApproved:      params.PeerApproved,
		Verified:          params.Verified,
		VerificationToken: params.VerificationToken,
		EstablishedVia:    params.EstablishedVia,
		PeerIdentifier:    params.PeerIdentifier,
		OAuthClientID:     params.OAuthClientID,
		ClientName:        params.ClientName,
		ClientVersion:     params.ClientVersion,
		ClientPlatform:    params.ClientPlatform,
		CreatedAt:         time.Now().UTC(),
	}
	trusts[params.PeerID] = t
	return t, nil
}

func (m *MemoryStore) GetTrust(
	_ context.Context, actorID, peerID string,
) (Trust, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.trusts[actorID][peerID]
	if !ok {
		return Trust{}, fmt.Errorf("trust %s: %w", peerID, ErrNotFound)
	}
	return t, nil
}

func (m *MemoryStore) GetTrustBySecret(
	_ context.Context, secret string,
) (Trust, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, trusts := range m.trusts {
		for _, t := range trusts {
			if t.Secret == secret {
				return t, nil
			}
		}
	}
	return Trust{}, fmt.Errorf("trust secret: %w", ErrNotFound)
}

func (m *MemoryStore) GetTrustByClientID(
	_ context.Context, clientID string,
) (Trust, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, trusts := range m.trusts {
		for _, t := range trusts {
			if t.OAuthClientID == clientID {
				return t, nil
			}
		}
	}
	return Trust{}, fmt.Errorf("client %s: %w", clientID, ErrNotFound)
}

func (m *MemoryStore) ListTrusts(
	_ context.Context, actorID string,
) ([]Trust, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	trusts := make([]Trust, 0, len(m.trusts[actorID]))
	for _, t := range m.trusts[actorID] {
		trusts = append(trusts, t)
	}
	sort.Slice(trusts, func(i, j int) bool {
		return trusts[i].CreatedAt.Before(trusts[j].CreatedAt)
	})
	return trusts, nil
}

func (m *MemoryStore) ListTrustsByRelationship(
	ctx context.Context, actorID, relationship string,
) ([]Trust, error) {

	all, err := m.ListTrusts(ctx, actorID)
	if err != nil {
		return nil, err
	}

	var trusts []Trust
	for _, t := range all {
		if t.Relationship == relationship {
			trusts = append(trusts, t)
		}
	}
	return trusts, nil
}

func (m *MemoryStore) UpdateTrustApproval(
	_ context.Context, actorID, peerID string,
	approved, peerApproved, verified bool,
) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.trusts[actorID][peerID]
	if !ok {
		return fmt.Errorf("trust %s: %w", peerID, ErrNotFound)
	}
	t.Approved = approved
	t.PeerApproved = peerApproved
	t.Verified = verified
	m.trusts[actorID][peerID] = t
	return nil
}

func (m *MemoryStore) UpdateTrustCapabilities(
	_ context.Context, actorID, peerID, awSupported, awVersion string,
	fetchedAt time.Time,
) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.trusts[actorID][peerID]
	if !ok {
		return fmt.Errorf("trust %s: %w", peerID, ErrNotFound)
	}
	t.AwSupported = awSupported
	t.AwVersion = awVersion
	t.CapabilitiesFetchedAt = fetchedAt
	m.trusts[actorID][peerID] = t
	return nil
}

func (m *MemoryStore) UpdateTrustConnection(
	_ context.Context, actorID, peerID string, at time.Time, via string,
) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.trusts[actorID][peerID]
	if !ok {
		return fmt.Errorf("trust %s: %w", peerID, ErrNotFound)
	}
	t.LastConnectedAt = at
	t.LastConnectedVia = via
	m.trusts[actorID][peerID] = t
	return nil
}

func (m *MemoryStore) DeleteTrust(
	_ context.Context, actorID, peerID string,
) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.trusts[actorID], peerID)
	return nil
}

// SubscriptionStore implementation.

func (m *MemoryStore) CreateSubscription(
	_ context.Context, params CreateSubscriptionParams,
) (Subscription, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	subs, ok := m.subs[params.ActorID]
	if !ok {
		subs = make(map[string]Subscription)
		m.subs[params.ActorID] = subs
	}

	key := compositeKey(params.PeerID, params.SubID)
	if _, ok := subs[key]; ok {
		return Subscription{}, fmt.Errorf(
			"subscription %s: %w", params.SubID, ErrDuplicate,
		)
	}

	sub := Subscription{
		ActorID:     params.ActorID,
		PeerID:      params.PeerID,
		SubID:       params.SubID,
		Target:      params.Target,
		Subtarget:   params.Subtarget,
		Resource:    params.Resource,
		Granularity: params.Granularity,
		Seqnr:       0,
		Callback:    params.Callback,
		CreatedAt:   time.Now().UTC(),
	}
	subs[key] = sub
	return sub, nil
}

func (m *MemoryStore) GetSubscription(
	_ context.Context, actorID, peerID, subID string,
) (Subscription, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, ok := m.subs[actorID][compositeKey(peerID, subID)]
	if !ok {
		return Subscription{}, fmt.Errorf(
			"subscription %s: %w", subID, ErrNotFound,
		)
	}
	return sub, nil
}

func (m *MemoryStore) ListSubscriptions(
	_ context.Context, actorID string,
) ([]Subscription, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	subs := make([]Subscription, 0, len(m.subs[actorID]))
	for _, sub := range m.subs[actorID] {
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].CreatedAt.Before(subs[j].CreatedAt)
	})
	return subs, nil
}

func (m *MemoryStore) ListSubscriptionsByPeer(
	ctx context.Context, actorID, peerID string,
) ([]Subscription, error) {

	all, err := m.ListSubscriptions(ctx, actorID)
	if err != nil {
		return nil, err
	}

	var subs []Subscription
	for _, sub := range all {
		if sub.PeerID == peerID {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

func (m *MemoryStore) NextSeqnr(
	_ context.Context, actorID, peerID, subID string,
) (int64, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	key := compositeKey(peerID, subID)
	sub, ok := m.subs[actorID][key]
	if !ok {
		return 0, fmt.Errorf("subscription %s: %w", subID, ErrNotFound)
	}
	sub.Seqnr++
	m.subs[actorID][key] = sub
	return sub.Seqnr, nil
}

func (m *MemoryStore) DeleteSubscription(
	_ context.Context, actorID, peerID, subID string,
) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.subs[actorID], compositeKey(peerID, subID))
	delete(m.diffs[actorID], subID)
	return nil
}

func (m *MemoryStore) CreateDiff(
	_ context.Context, params CreateDiffParams,
) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	diffs, ok := m.diffs[params.ActorID]
	if !ok {
		diffs = make(map[string][]Diff)
		m.diffs[params.ActorID] = diffs
	}
	diffs[params.SubID] = append(diffs[params.SubID], Diff{
		ActorID:   params.ActorID,
		SubID:     params.SubID,
		Seqnr:     params.Seqnr,
		PeerID:    params.PeerID,
		Timestamp: time.Now().UTC(),
		Blob:      append(json.RawMessage(nil), params.Blob...),
	})
	return nil
}

func (m *MemoryStore) GetDiff(
	_ context.Context, actorID, subID string, seqnr int64,
) (Diff, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, d := range m.diffs[actorID][subID] {
		if d.Seqnr == seqnr {
			return d, nil
		}
	}
	return Diff{}, fmt.Errorf("diff %d: %w", seqnr, ErrNotFound)
}

func (m *MemoryStore) ListDiffs(
	_ context.Context, actorID, subID string,
) ([]Diff, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	diffs := append([]Diff(nil), m.diffs[actorID][subID]...)
	sort.Slice(diffs, func(i, j int) bool {
		return diffs[i].Seqnr < diffs[j].Seqnr
	})
	return diffs, nil
}

func (m *MemoryStore) CountDiffs(
	_ context.Context, actorID, subID string,
) (int64, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	return int64(len(m.diffs[actorID][subID])), nil
}

func (m *MemoryStore) DeleteDiff(
	_ context.Context, actorID, subID string, seqnr int64,
) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	var kept []Diff
	for _, d := range m.diffs[actorID][subID] {
		if d.Seqnr != seqnr {
			kept = append(kept, d)
		}
	}
	if m.diffs[actorID] != nil {
		m.diffs[actorID][subID] = kept
	}
	return nil
}

func (m *MemoryStore) DeleteDiffsThrough(
	_ context.Context, actorID, subID string, seqnr int64,
) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	var kept []Diff
	for _, d := range m.diffs[actorID][subID] {
		if d.Seqnr > seqnr {
			kept = append(kept, d)
		}
	}
	if m.diffs[actorID] != nil {
		m.diffs[actorID][subID] = kept
	}
	return nil
}

func (m *MemoryStore) SuspendScope(
	_ context.Context, actorID, target, subtarget string,
) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	suspensions, ok := m.suspensions[actorID]
	if !ok {
		suspensions = make(map[string]Suspension)
		m.suspensions[actorID] = suspensions
	}

	key := compositeKey(target, subtarget)
	if _, ok := suspensions[key]; ok {
		return nil
	}
	suspensions[key] = Suspension{
		ActorID:   actorID,
		Target:    target,
		Subtarget: subtarget,
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

func (m *MemoryStore) ResumeScope(
	_ context.Context, actorID, target, subtarget string,
) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.suspensions[actorID], compositeKey(target, subtarget))
	return nil
}

func (m *MemoryStore) ListSuspensions(
	_ context.Context, actorID string,
) ([]Suspension, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	suspensions := make([]Suspension, 0, len(m.suspensions[actorID]))
	for _, s := range m.suspensions[actorID] {
		suspensions = append(suspensions, s)
	}
	sort.Slice(suspensions, func(i, j int) bool {
		if suspensions[i].Target != suspensions[j].Target {
			return suspensions[i].Target < suspensions[j].Target
		}
		return suspensions[i].Subtarget < suspensions[j].Subtarget
	})
	return suspensions, nil
}

var _ Store = (*MemoryStore)(nil)
var _ Store = (*SqlcStore)(nil)
