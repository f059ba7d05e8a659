package trust

import (
	"github.com/actingweb/actingweb-go/internal/aw"
	"github.com/actingweb/actingweb-go/internal/store"
)

// State is the trust lifecycle position derived from the
// (approved, peer_approved, verified) tuple.
type State int

const (
	// StateUnverified is a trust whose verification handshake never
	// completed. Not usable.
	StateUnverified State = iota

	// StateRequested is an inbound trust awaiting local approval.
	StateRequested

	// StatePendingPeer is an outbound trust awaiting the peer's
	// approval.
	StatePendingPeer

	// StateActive is a fully approved, usable trust.
	StateActive
)

// String returns the state name used in logs and on the wire.
func (s State) String() string {
	switch s {
	case StateRequested:
		return "requested"
	case StatePendingPeer:
		return "pending_peer"
	case StateActive:
		return "active"
	default:
		return "unverified"
	}
}

// StateOf derives the lifecycle state of a trust row.
func StateOf(t store.Trust) State {
	switch {
	case t.Approved && t.PeerApproved:
		return StateActive
	case t.Approved:
		return StatePendingPeer
	case t.PeerApproved:
		return StateRequested
	default:
		return StateUnverified
	}
}

// Event is a transition input on a trust.
type Event int

const (
	// EventLocalApprove is the owner approving the trust.
	EventLocalApprove Event = iota

	// EventPeerApprove is the peer reporting its approval.
	EventPeerApprove

	// EventPeerRevoke is the peer withdrawing its approval without
	// deleting the trust.
	EventPeerRevoke
)

// String returns the event name used in errors and logs.
func (e Event) String() string {
	switch e {
	case EventLocalApprove:
		return "local_approve"
	case EventPeerApprove:
		return "peer_approve"
	default:
		return "peer_revoke"
	}
}

// Apply validates an event against the current tuple and returns the
// updated row. Transitions that make no sense from the current state
// come back as state machine violations; re-applying an already
// recorded approval is legal and a no-op.
func Apply(t store.Trust, ev Event) (store.Trust, error) {
	if !t.Verified {
		return t, aw.Errorf(aw.KindStateMachineViolation,
			"%s on unverified trust %s/%s", ev, t.ActorID, t.PeerID)
	}

	switch ev {
	case EventLocalApprove:
		t.Approved = true
	case EventPeerApprove:
		t.PeerApproved = true
	case EventPeerRevoke:
		if !t.PeerApproved {
			return t, aw.Errorf(aw.KindStateMachineViolation,
				"peer_revoke on trust %s/%s the peer never approved",
				t.ActorID, t.PeerID)
		}
		t.PeerApproved = false
	default:
		return t, aw.Errorf(aw.KindStateMachineViolation,
			"unknown trust event %d", ev)
	}
	return t, nil
}
