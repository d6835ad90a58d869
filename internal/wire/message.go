// Package wire defines the five protocol messages and their binary
// encoding: little-endian, 8-byte lengths for variable-length
// containers, tag-as-u32 for the message kind. Letters carry the
// sender's PeerId in-band because a TCP stream doesn't reliably reveal
// it.
package wire

import "github.com/migmoog/distsys-prj3/internal/types"

// Kind tags which variant a decoded Message holds, encoded on the wire
// as a u32.
type Kind uint32

const (
	KindJoin Kind = iota
	KindReq
	KindOk
	KindNewView
	KindHeartbeat
)

func (k Kind) String() string {
	switch k {
	case KindJoin:
		return "JOIN"
	case KindReq:
		return "REQ"
	case KindOk:
		return "OK"
	case KindNewView:
		return "NEWVIEW"
	case KindHeartbeat:
		return "HEARTBEAT"
	default:
		return "UNKNOWN"
	}
}

// Message is the tagged union carried by a Letter. Concrete variants
// below are disjoint structs rather than a shared base with virtual
// dispatch, the same role-polymorphism shape applied to messages.
type Message interface {
	Kind() Kind
}

// Join carries no payload: a follower asking the leader to admit it.
type Join struct{}

func (Join) Kind() Kind { return KindJoin }

// Req carries the leader's Instruction for a single membership change.
type Req struct {
	Instruction types.Instruction
}

func (Req) Kind() Kind { return KindReq }

// Ok is a follower's confirmation of a REQ. The leader's own self-ack
// is never sent as an Ok; it is recorded directly in its ledger.
type Ok struct {
	RequestId types.RequestId
	ViewId    types.ViewId
}

func (Ok) Kind() Kind { return KindOk }

// NewView announces the committed membership for ViewId.
type NewView struct {
	ViewId  types.ViewId
	Members types.PeerSet
}

func (NewView) Kind() Kind { return KindNewView }

// Heartbeat carries no payload: liveness only, over UDP.
type Heartbeat struct{}

func (Heartbeat) Kind() Kind { return KindHeartbeat }

// Letter is a tuple (sender, message), the unit of transport on both
// the TCP control plane and the UDP heartbeat plane.
type Letter struct {
	Sender          types.PeerId
	ProtocolVersion string
	Body            Message
}
