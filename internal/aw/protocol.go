package aw

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// ProtocolVersion is the ActingWeb specification version advertised under
// /meta/actingweb/version.
const ProtocolVersion = "1.4"

// SupportedFormats is advertised under /meta/actingweb/formats.
const SupportedFormats = "json"

// Reserved system actor ids. These actors never serve the wire protocol;
// they hold global state in attribute buckets.
const (
	// SystemActorID holds the trust-type registry.
	SystemActorID = "_actingweb_system"

	// OAuth2ActorID holds OAuth2 clients, codes, tokens, and their
	// reverse indexes.
	OAuth2ActorID = "_actingweb_oauth2"
)

// ReservedBucketPrefix marks library-internal attribute buckets.
const ReservedBucketPrefix = "_"

// Outbound/inbound correlation headers.
const (
	HeaderRequestID       = "X-Request-ID"
	HeaderParentRequestID = "X-Parent-Request-ID"

	// HeaderGranularityDowngraded is set on callbacks whose payload
	// exceeded the high-granularity threshold and were downgraded to a
	// URL-only body.
	HeaderGranularityDowngraded = "X-ActingWeb-Granularity-Downgraded"
)

// OptionTags are the option tags advertised in /meta/actingweb/supported.
// Only features this runtime truly implements are listed.
var OptionTags = []string{
	"www",
	"oauth",
	"callbacks",
	"trust",
	"onewaytrust",
	"subscriptions",
	"actions",
	"resources",
	"methods",
	"nestedproperties",
	"listproperties",
	"trustpermissions",
	"subscriptionresync",
	"callbackcompression",
	"subscriptionstats",
	"permissionquery",
}

// SupportedTags returns the option tags as the csv form used on the wire.
func SupportedTags() string {
	return strings.Join(OptionTags, ",")
}

// awNamespace seeds the UUIDv5 derivation for actor ids.
var awNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("actingweb"))

// NewActorID derives the reference actor id format: 32 lowercase hex chars
// from a UUIDv5 over the actor's URL. Any unique string is a valid actor id;
// this is the id the factory mints.
func NewActorID(actorURL string) string {
	id := uuid.NewSHA1(awNamespace, []byte(actorURL))
	return strings.ReplaceAll(id.String(), "-", "")
}

// RandomID returns a fresh random 32-char lowercase hex id, used when no
// actor URL is known yet at creation time.
func RandomID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// HashPassphrase produces the stored form of an actor passphrase. The
// passphrase doubles as a bearer-style credential for creator basic auth, so
// only the digest is persisted.
func HashPassphrase(passphrase string) string {
	sum := sha256.Sum256([]byte(passphrase))
	return hex.EncodeToString(sum[:])
}

// MaskToken truncates a credential for logging. Tokens are only ever logged
// in this form.
func MaskToken(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + "..."
}
