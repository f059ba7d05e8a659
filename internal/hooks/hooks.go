// Package hooks is the application extension surface: a typed dispatch
// table the embedding application fills at startup and the transport
// layers consult at request time. Hooks always run inside the
// access-controlled view; the accessor context travels in the
// context.Context and can be read with aw.FromContext.
package hooks

import (
	"context"
	"encoding/json"
	"errors"
)

// LifecycleEvent names a point in an actor's or trust's life where the
// application may observe or veto.
type LifecycleEvent string

const (
	EventActorCreated              LifecycleEvent = "actor_created"
	EventTrustInitiated            LifecycleEvent = "trust_initiated"
	EventTrustRequestReceived      LifecycleEvent = "trust_request_received"
	EventTrustApproved             LifecycleEvent = "trust_approved"
	EventTrustFullyApprovedLocal   LifecycleEvent = "trust_fully_approved_local"
	EventTrustFullyApprovedRemote  LifecycleEvent = "trust_fully_approved_remote"
	EventTrustDeleted              LifecycleEvent = "trust_deleted"
	EventOAuthSuccess              LifecycleEvent = "oauth_success"
	EventEmailVerificationRequired LifecycleEvent = "email_verification_required"
	EventEmailVerified             LifecycleEvent = "email_verified"
	EventSubscriptionDeleted       LifecycleEvent = "subscription_deleted"
)

// PropertyOp is the wire operation a property hook intercepts.
type PropertyOp string

const (
	PropGet    PropertyOp = "get"
	PropPut    PropertyOp = "put"
	PropPost   PropertyOp = "post"
	PropDelete PropertyOp = "delete"
)

// ErrRejected is returned (possibly wrapped) by a property hook to veto
// the operation. The transport maps it to a 403 on the wire.
var ErrRejected = errors.New("rejected by hook")

// App-level callback names. Actor-level callbacks are addressed by the
// {name} path segment instead.
const (
	AppCallbackBot   = "bot"
	AppCallbackOAuth = "oauth"
)

// LifecycleFunc observes a lifecycle event. Payload keys are
// event-specific (peer id, relationship, email, subscription id).
// A non-nil error from a veto-capable event (trust_request_received)
// blocks the operation; for the rest it is logged and ignored.
type LifecycleFunc func(
	ctx context.Context, actorID string, payload map[string]any,
) error

// PropertyFunc transforms or rejects a property value in flight. The
// returned value replaces the input for the next hook in the chain; a
// nil return leaves the value untouched. Returning ErrRejected aborts
// the operation.
type PropertyFunc func(
	ctx context.Context, actorID, name string, value json.RawMessage,
) (json.RawMessage, error)

// CallbackFunc serves POST /callbacks/{name} on an actor.
type CallbackFunc func(
	ctx context.Context, actorID, name string, body json.RawMessage,
) (json.RawMessage, error)

// AppCallbackFunc serves the app-level /bot and /oauth callbacks, which
// have no actor in the path.
type AppCallbackFunc func(
	ctx context.Context, body json.RawMessage,
) (json.RawMessage, error)

// HandlerFunc executes a named method, action, tool, prompt, or
// resource under the accessor's evaluated permissions.
type HandlerFunc func(
	ctx context.Context, actorID string, input json.RawMessage,
) (json.RawMessage, error)

// Descriptor carries the metadata the MCP surface and /meta listings
// need for a registered handler.
type Descriptor struct {
	// Name is the selector the handler is dispatched on.
	Name string `json:"name"`

	// Description is shown to MCP clients and in listings.
	Description string `json:"description,omitempty"`

	// InputSchema is the JSON Schema of the handler input, if the
	// application provides one.
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// Handler binds a descriptor to its implementation. Async handlers are
// acknowledged with 202 and executed off the request path.
type Handler struct {
	Descriptor

	Fn    HandlerFunc
	Async bool
}
