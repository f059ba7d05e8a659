package trust

import (
	"time"

	"github.com/actingweb/actingweb-go/internal/store"
)

// PeerType is the URN this runtime reports as its actor type.
const PeerType = "urn:actingweb:actingweb.org:actingweb"

// PeerRequest is the body of a trust POST between actors: what we send
// when initiating and what an inbound request carries.
type PeerRequest struct {
	BaseURI           string `json:"baseuri"`
	ID                string `json:"id"`
	Type              string `json:"type"`
	Relationship      string `json:"relationship,omitempty"`
	Secret            string `json:"secret"`
	Desc              string `json:"desc,omitempty"`
	VerificationToken string `json:"verify,omitempty"`
}

// PeerApproval is the body of a trust PUT between actors.
type PeerApproval struct {
	Approved bool `json:"approved"`
}

// View is the wire representation of a trust row. The secret is only
// included for the actor's owner.
type View struct {
	ID                string    `json:"id"`
	BaseURI           string    `json:"baseuri"`
	Type              string    `json:"type"`
	Relationship      string    `json:"relationship"`
	Secret            string    `json:"secret,omitempty"`
	Desc              string    `json:"desc,omitempty"`
	Approved          bool      `json:"approved"`
	PeerApproved      bool      `json:"peer_approved"`
	Verified          bool      `json:"verified"`
	State             string    `json:"state"`
	EstablishedVia    string    `json:"established_via,omitempty"`
	PeerIdentifier    string    `json:"peer_identifier,omitempty"`
	ClientName        string    `json:"client_name,omitempty"`
	LastConnectedAt   time.Time `json:"last_connected_at,omitzero"`
	CreatedAt         time.Time `json:"created_at,omitzero"`
}

// ViewOf renders a trust row for the wire. withSecret controls whether
// the bearer secret is exposed; only owner-mode responses set it.
func ViewOf(t store.Trust, withSecret bool) View {
	v := View{
		ID:              t.PeerID,
		BaseURI:         t.BaseURI,
		Type:            t.PeerType,
		Relationship:    t.Relationship,
		Desc:            t.Description,
		Approved:        t.Approved,
		PeerApproved:    t.PeerApproved,
		Verified:        t.Verified,
		State:           StateOf(t).String(),
		EstablishedVia:  t.EstablishedVia,
		PeerIdentifier:  t.PeerIdentifier,
		ClientName:      t.ClientName,
		LastConnectedAt: t.LastConnectedAt,
		CreatedAt:       t.CreatedAt,
	}
	if withSecret {
		v.Secret = t.Secret
	}
	return v
}
