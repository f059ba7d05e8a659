package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/actingweb/actingweb-go/internal/aw"
	"github.com/actingweb/actingweb-go/internal/store"
)

// All OAuth2 state lives in attribute buckets of the reserved
// _actingweb_oauth2 actor, keyed by the credential itself so inbound
// auth is a single lookup. Row lifetimes ride on the attribute TTL.
const (
	clientBucket  = "_client_index"
	codeBucket    = "_auth_code_index"
	accessBucket  = "_access_token_index"
	refreshBucket = "_refresh_token_index"
)

const (
	codeTTL    = 10 * time.Minute
	accessTTL  = time.Hour
	refreshTTL = 30 * 24 * time.Hour
)

// Client is a dynamically registered OAuth2 client (RFC 7591).
type Client struct {
	ID           string    `json:"client_id"`
	Secret       string    `json:"client_secret"`
	Name         string    `json:"client_name"`
	Version      string    `json:"client_version,omitempty"`
	Platform     string    `json:"client_platform,omitempty"`
	RedirectURIs []string  `json:"redirect_uris"`
	TrustType    string    `json:"trust_type,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// authCode is a single-use authorization code.
type authCode struct {
	Code            string    `json:"code"`
	ClientID        string    `json:"client_id"`
	ActorID         string    `json:"actor_id"`
	RedirectURI     string    `json:"redirect_uri"`
	CodeChallenge   string    `json:"code_challenge,omitempty"`
	ChallengeMethod string    `json:"challenge_method,omitempty"`
	TrustType       string    `json:"trust_type,omitempty"`
	IssuedAt        time.Time `json:"issued_at"`
}

// accessToken is an opaque bearer access token.
type accessToken struct {
	Token    string    `json:"token"`
	ClientID string    `json:"client_id"`
	ActorID  string    `json:"actor_id"`
	FamilyID string    `json:"family_id"`
	IssuedAt time.Time `json:"issued_at"`
	Expires  time.Time `json:"expires"`
}

// refreshToken carries the rotation bookkeeping. Used tokens stay
// stored for the grace windows; the successor fields let a benign
// concurrent retry receive the same new pair.
type refreshToken struct {
	Token       string    `json:"token"`
	ClientID    string    `json:"client_id"`
	ActorID     string    `json:"actor_id"`
	FamilyID    string    `json:"family_id"`
	Used        bool      `json:"used"`
	RotatedAt   time.Time `json:"rotated_at,omitzero"`
	NextAccess  string    `json:"next_access,omitempty"`
	NextRefresh string    `json:"next_refresh,omitempty"`
	IssuedAt    time.Time `json:"issued_at"`
}

// storage persists OAuth2 rows in the reserved system actor.
type storage struct {
	store store.Store
}

func (s *storage) put(
	ctx context.Context, bucket, key string, v any, ttl time.Duration,
) error {

	raw, err := json.Marshal(v)
	if err != nil {
		return aw.Wrap(aw.KindFatal, err, "oauth row encode failed")
	}
	_, err = s.store.SetAttribute(ctx, store.SetAttributeParams{
		ActorID: aw.OAuth2ActorID,
		Bucket:  bucket,
		Name:    key,
		Value:   raw,
		TTL:     ttl,
	})
	if err != nil {
		return aw.Wrap(aw.KindFatal, err, "oauth row write failed")
	}
	return nil
}

// get loads a row; the returned version feeds compare-and-swap updates.
func (s *storage) get(
	ctx context.Context, bucket, key string, v any,
) (int64, error) {

	attr, err := s.store.GetAttribute(ctx, aw.OAuth2ActorID, bucket, key)
	if errors.Is(err, store.ErrNotFound) {
		return 0, err
	}
	if err != nil {
		return 0, aw.Wrap(aw.KindFatal, err, "oauth row read failed")
	}
	if err := json.Unmarshal(attr.Value, v); err != nil {
		return 0, aw.Wrap(aw.KindFatal, err, "oauth row decode failed")
	}
	return attr.Version, nil
}

func (s *storage) delete(ctx context.Context, bucket, key string) error {
	err := s.store.DeleteAttribute(ctx, aw.OAuth2ActorID, bucket, key)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return aw.Wrap(aw.KindFatal, err, "oauth row delete failed")
	}
	return nil
}

func (s *storage) putClient(ctx context.Context, c Client) error {
	return s.put(ctx, clientBucket, c.ID, c, 0)
}

func (s *storage) getClient(ctx context.Context, id string) (Client, error) {
	var c Client
	if _, err := s.get(ctx, clientBucket, id, &c); err != nil {
		return Client{}, err
	}
	return c, nil
}

func (s *storage) putCode(ctx context.Context, c authCode) error {
	return s.put(ctx, codeBucket, c.Code, c, codeTTL)
}

// takeCode consumes an authorization code. Codes are single use; the
// row is deleted before the caller sees it.
func (s *storage) takeCode(ctx context.Context, code string) (authCode, error) {
	var c authCode
	if _, err := s.get(ctx, codeBucket, code, &c); err != nil {
		return authCode{}, err
	}
	if err := s.delete(ctx, codeBucket, code); err != nil {
		return authCode{}, err
	}
	return c, nil
}

func (s *storage) putAccess(ctx context.Context, t accessToken) error {
	return s.put(ctx, accessBucket, t.Token, t, accessTTL)
}

func (s *storage) getAccess(
	ctx context.Context, token string,
) (accessToken, error) {
	var t accessToken
	if _, err := s.get(ctx, accessBucket, token, &t); err != nil {
		return accessToken{}, err
	}
	return t, nil
}

func (s *storage) putRefresh(ctx context.Context, t refreshToken) error {
	return s.put(ctx, refreshBucket, t.Token, t, refreshTTL)
}

func (s *storage) getRefresh(
	ctx context.Context, token string,
) (refreshToken, int64, error) {
	var t refreshToken
	version, err := s.get(ctx, refreshBucket, token, &t)
	if err != nil {
		return refreshToken{}, 0, err
	}
	return t, version, nil
}

// casRefresh writes the row only if nobody else rotated it first.
func (s *storage) casRefresh(
	ctx context.Context, t refreshToken, version int64,
) (bool, error) {

	raw, err := json.Marshal(t)
	if err != nil {
		return false, aw.Wrap(aw.KindFatal, err, "oauth row encode failed")
	}
	ok, err := s.store.CompareAndSwapAttribute(
		ctx, store.CompareAndSwapAttributeParams{
			ActorID:         aw.OAuth2ActorID,
			Bucket:          refreshBucket,
			Name:            t.Token,
			Value:           raw,
			TTL:             refreshTTL,
			ExpectedVersion: version,
		},
	)
	if err != nil {
		return false, aw.Wrap(aw.KindFatal, err, "oauth rotation failed")
	}
	return ok, nil
}

// revokeFamily deletes every token sharing a rotation family.
func (s *storage) revokeFamily(ctx context.Context, familyID string) error {
	return s.revokeWhere(ctx, func(clientID, family string) bool {
		return family == familyID
	})
}

// revokeClient deletes every token issued to a client.
func (s *storage) revokeClient(ctx context.Context, clientID string) error {
	return s.revokeWhere(ctx, func(client, _ string) bool {
		return client == clientID
	})
}

func (s *storage) revokeWhere(
	ctx context.Context, match func(clientID, familyID string) bool,
) error {

	for _, bucket := range []string{accessBucket, refreshBucket} {
		attrs, err := s.store.ListBucket(ctx, aw.OAuth2ActorID, bucket)
		if err != nil {
			return aw.Wrap(aw.KindFatal, err, "token scan failed")
		}
		for _, attr := range attrs {
			var row struct {
				ClientID string `json:"client_id"`
				FamilyID string `json:"family_id"`
			}
			if json.Unmarshal(attr.Value, &row) != nil {
				continue
			}
			if !match(row.ClientID, row.FamilyID) {
				continue
			}
			if err := s.delete(ctx, bucket, attr.Name); err != nil {
				return err
			}
		}
	}
	return nil
}
