// Package aw holds the protocol-level types shared by every subsystem:
// error kinds, the request-scoped accessor context, and ActingWeb wire
// constants.
package aw

import (
	"errors"
	"fmt"
)

// Kind classifies an error independently of the transport. HTTP adapters map
// kinds to status codes; internal callers branch on the kind to decide
// whether an operation is retryable.
type Kind int

const (
	// KindUnknown is the zero value for unclassified errors.
	KindUnknown Kind = iota

	// KindNotFound indicates an absent actor, property, trust,
	// subscription, diff, token, or client.
	KindNotFound

	// KindUnauthenticated indicates that no valid credential accompanied
	// the request.
	KindUnauthenticated

	// KindForbidden indicates an authenticated accessor that the
	// permission evaluator denied.
	KindForbidden

	// KindInvalidRequest indicates malformed input: bad JSON, an unknown
	// trust type, a property/list name collision, or missing fields.
	KindInvalidRequest

	// KindConflict indicates that a compare-and-swap retry budget was
	// exhausted.
	KindConflict

	// KindRateLimited indicates a full pending queue or per-peer
	// throttle. Responses carry Retry-After.
	KindRateLimited

	// KindPeerUnavailable indicates a network timeout, DNS failure, or
	// persistent 5xx from a peer. Retryable.
	KindPeerUnavailable

	// KindPeerGone indicates the peer returned 404 on /meta. Drives
	// trust cleanup.
	KindPeerGone

	// KindStateMachineViolation indicates a trust transition attempted
	// from an illegal state.
	KindStateMachineViolation

	// KindFatal indicates an unreachable storage backend or a schema
	// mismatch.
	KindFatal
)

// String returns the wire-stable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindInvalidRequest:
		return "invalid_request"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	case KindPeerUnavailable:
		return "peer_unavailable"
	case KindPeerGone:
		return "peer_gone"
	case KindStateMachineViolation:
		return "state_machine_violation"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a classified error. It wraps an optional cause so errors.Is and
// errors.As continue to see through it.
type Error struct {
	// ErrKind is the classification of this error.
	ErrKind Kind

	// Msg is a human-readable description safe to return to callers.
	Msg string

	// Err is the wrapped cause, if any.
	Err error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.ErrKind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.ErrKind, e.Msg)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf creates a new classified error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{
		ErrKind: kind,
		Msg:     fmt.Sprintf(format, args...),
	}
}

// Wrap classifies an existing error, preserving it as the cause.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{
		ErrKind: kind,
		Msg:     msg,
		Err:     err,
	}
}

// KindOf extracts the kind of an error, or KindUnknown if the error carries
// no classification anywhere in its chain.
func KindOf(err error) Kind {
	var awErr *Error
	if errors.As(err, &awErr) {
		return awErr.ErrKind
	}
	return KindUnknown
}

// IsNotFound returns true if the error is classified KindNotFound.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsRetryable returns true for error kinds that a caller may retry with
// backoff.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindPeerUnavailable, KindRateLimited, KindConflict:
		return true
	default:
		return false
	}
}
