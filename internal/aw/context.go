package aw

import (
	"context"
)

// AccessorKind identifies which credential class authenticated the current
// request.
type AccessorKind int

const (
	// AccessorNone means the request carried no valid credential.
	AccessorNone AccessorKind = iota

	// AccessorOwner is creator basic auth (or the trustee). Owner mode
	// bypasses the permission evaluator.
	AccessorOwner

	// AccessorPeer is a peer bearer secret matched against a trust row.
	AccessorPeer

	// AccessorClient is an OAuth2 bearer token issued by the embedded
	// authorization server.
	AccessorClient
)

// String returns the accessor kind name used in logs.
func (k AccessorKind) String() string {
	switch k {
	case AccessorOwner:
		return "owner"
	case AccessorPeer:
		return "peer"
	case AccessorClient:
		return "client"
	default:
		return "none"
	}
}

// RequestContext is the request-scoped accessor context set by the
// authentication middleware and consulted by the permission evaluator and
// hooks. It is a tagged union over {owner, peer, client}: PeerID and
// Relationship are set for peers, ClientID for OAuth2 clients.
type RequestContext struct {
	// ActorID is the actor addressed by the request path.
	ActorID string

	// Kind tags which credential class authenticated the request.
	Kind AccessorKind

	// PeerID is the authenticated peer's actor id (peer and client
	// accessors; for clients it is the trust's peer id).
	PeerID string

	// Relationship is the trust-type name of the authenticated trust.
	Relationship string

	// ClientID is the OAuth2 client id (client accessors only).
	ClientID string

	// RequestID correlates log lines across subsystems. Populated from
	// an inbound X-Request-ID header or generated.
	RequestID string
}

// IsOwner returns true when the accessor holds owner-mode access.
func (rc *RequestContext) IsOwner() bool {
	return rc.Kind == AccessorOwner
}

type ctxKey struct{}

// WithRequestContext attaches the accessor context to a context.Context.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, rc)
}

// FromContext extracts the accessor context, or nil if none is attached.
func FromContext(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(ctxKey{}).(*RequestContext)
	return rc
}
