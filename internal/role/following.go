package role

import "github.com/migmoog/distsys-prj3/internal/types"

// Following is the follower-only ledger: the fixed leader id and the
// queue of REQ instructions awaiting an OK.
type Following struct {
	leaderID types.PeerId
	ackQueue map[types.RequestId]types.Instruction
}

// NewFollowing builds an empty follower ledger. The leader id is always
// types.LeaderId - there is no leader election.
func NewFollowing() *Following {
	return &Following{
		leaderID: types.LeaderId,
		ackQueue: make(map[types.RequestId]types.Instruction),
	}
}

// LeaderId returns the fixed leader id.
func (f *Following) LeaderId() types.PeerId {
	return f.leaderID
}

// PushInstruction enqueues instr keyed by its RequestId. A duplicate
// REQ for the same request id replaces the prior entry.
func (f *Following) PushInstruction(instr types.Instruction) {
	f.ackQueue[instr.RequestId] = instr
}

// PopLowest removes and returns the queued instruction with the lowest
// RequestId, enforcing that OKs are sent to the leader in the order it
// issued the corresponding REQs even if the ackQueue receives them out
// of order.
func (f *Following) PopLowest() (types.Instruction, bool) {
	first := true
	var lowest types.RequestId
	for id := range f.ackQueue {
		if first || id < lowest {
			lowest = id
			first = false
		}
	}
	if first {
		return types.Instruction{}, false
	}
	instr := f.ackQueue[lowest]
	delete(f.ackQueue, lowest)
	return instr, true
}

// QueueLen reports how many instructions are waiting to be OK'd, for
// tests only.
func (f *Following) QueueLen() int {
	return len(f.ackQueue)
}
