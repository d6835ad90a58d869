// Package role holds the two disjoint role variants: Leading (the
// leader's request ledger and quorum tracking) and Following (the
// follower's acknowledgement queue). They share no base type or virtual
// dispatch; dispatch is a plain switch on which variant is active.
package role

import (
	"github.com/migmoog/distsys-prj3/internal/types"
)

// pendingRequest is one entry in the leader's ledger: the membership
// change requested and the set of peers that have OK'd it so far.
type pendingRequest struct {
	PeerId        types.PeerId
	ViewId        types.ViewId
	Op            types.Operation
	Confirmations types.PeerSet
}

// Leading is the leader-only ledger: requests_count, pending requests
// keyed by RequestId, and the single in-flight request id.
type Leading struct {
	requestsCount types.RequestId
	waitingFor    *types.RequestId
	pending       map[types.RequestId]*pendingRequest
}

// NewLeading builds an empty leader ledger.
func NewLeading() *Leading {
	return &Leading{pending: make(map[types.RequestId]*pendingRequest)}
}

// LatestRequest returns the most recently issued RequestId.
func (l *Leading) LatestRequest() types.RequestId {
	return l.requestsCount
}

// PushRequest bumps requests_count and records a new pending entry with
// an empty confirmation set - including for the leader's own self-ack,
// which callers insert separately via AcknowledgeOk right after this
// call.
func (l *Leading) PushRequest(peerID types.PeerId, viewID types.ViewId, op types.Operation) types.RequestId {
	l.requestsCount++
	id := l.requestsCount
	l.pending[id] = &pendingRequest{
		PeerId:        peerID,
		ViewId:        viewID,
		Op:            op,
		Confirmations: types.NewPeerSet(),
	}
	return id
}

// AcknowledgeOk inserts peerID into the confirmation set for requestID,
// if that request is still pending. OKs for unknown or already-complete
// request ids are silently ignored - late or duplicate.
func (l *Leading) AcknowledgeOk(requestID types.RequestId, peerID types.PeerId) {
	req, ok := l.pending[requestID]
	if !ok {
		return
	}
	req.Confirmations.Add(peerID)
}

// CanProceed reports whether the leader is free to start a new request:
// not already waiting on one, and at least one request is pending. Used
// to enforce that only one request is in flight at a time.
func (l *Leading) CanProceed() bool {
	return l.waitingFor == nil && len(l.pending) > 0
}

// StartReq selects the pending request with the lowest RequestId, marks
// it as the in-flight request, and returns the Instruction to broadcast
// as REQ. Panics if called when CanProceed is false - callers must
// check first.
func (l *Leading) StartReq() types.Instruction {
	if !l.CanProceed() {
		panic("role: StartReq called while not able to proceed")
	}
	id := l.lowestPendingId()
	l.waitingFor = &id
	req := l.pending[id]
	return types.Instruction{
		RequestId: id,
		PeerId:    req.PeerId,
		ViewId:    req.ViewId,
		Op:        req.Op,
	}
}

// CheckComplete reports whether the in-flight request's confirmation
// set now equals memberships[request.ViewId] - every member of the view
// the request was initiated in, including the leader itself. On
// completion it clears waiting_for, removes the ledger entry, and
// returns the completed Instruction.
//
// A Delete request is the one exception: its subject is, by
// definition, a member of memberships[request.ViewId] that will never
// send an OK, since it is the peer being removed. Requiring its
// confirmation would make eviction impossible, so the required set for
// a Delete is every OTHER member of that view.
func (l *Leading) CheckComplete(memberships map[types.ViewId]types.PeerSet) (types.Instruction, bool) {
	if l.waitingFor == nil {
		return types.Instruction{}, false
	}
	id := *l.waitingFor
	req, ok := l.pending[id]
	if !ok {
		// Shouldn't happen: waitingFor always names a pending entry.
		l.waitingFor = nil
		return types.Instruction{}, false
	}

	members, ok := memberships[req.ViewId]
	if !ok {
		return types.Instruction{}, false
	}
	required := members
	if req.Op == types.Delete {
		required = members.Clone()
		required.Delete(req.PeerId)
	}
	if !req.Confirmations.Equal(required) {
		return types.Instruction{}, false
	}

	l.waitingFor = nil
	delete(l.pending, id)
	return types.Instruction{
		RequestId: id,
		PeerId:    req.PeerId,
		ViewId:    req.ViewId,
		Op:        req.Op,
	}, true
}

// Confirmations exposes the current confirmation set for requestID, for
// tests asserting on self-ack and duplicate-OK behavior, and nothing
// else.
func (l *Leading) Confirmations(requestID types.RequestId) (types.PeerSet, bool) {
	req, ok := l.pending[requestID]
	if !ok {
		return nil, false
	}
	return req.Confirmations, true
}

// WaitingFor exposes the in-flight request id, if any.
func (l *Leading) WaitingFor() (types.RequestId, bool) {
	if l.waitingFor == nil {
		return 0, false
	}
	return *l.waitingFor, true
}

func (l *Leading) lowestPendingId() types.RequestId {
	first := true
	var lowest types.RequestId
	for id := range l.pending {
		if first || id < lowest {
			lowest = id
			first = false
		}
	}
	return lowest
}
