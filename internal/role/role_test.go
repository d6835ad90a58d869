package role

import (
	"testing"

	"github.com/migmoog/distsys-prj3/internal/types"
)

func TestLeading_SelfAck(t *testing.T) {
	// Inject a JOIN, self-ack, assert pending[1].confirmations == {1}.
	l := NewLeading()
	id := l.PushRequest(2, 1, types.Add)
	l.AcknowledgeOk(id, types.LeaderId)

	confirmations, ok := l.Confirmations(id)
	if !ok {
		t.Fatalf("expected pending request %d", id)
	}
	want := types.NewPeerSet(types.LeaderId)
	if !confirmations.Equal(want) {
		t.Fatalf("expected %v, got %v", want, confirmations)
	}
}

func TestLeading_DuplicateOkIsIdempotent(t *testing.T) {
	// Inject two OKs with the same (request_id, peer_id); the
	// confirmation set must not double count.
	l := NewLeading()
	id := l.PushRequest(2, 1, types.Add)
	l.AcknowledgeOk(id, types.LeaderId)
	l.AcknowledgeOk(id, 2)
	l.AcknowledgeOk(id, 2)

	confirmations, _ := l.Confirmations(id)
	if len(confirmations) != 2 {
		t.Fatalf("expected 2 unique confirmations, got %d: %v", len(confirmations), confirmations)
	}
}

func TestLeading_IgnoresOkForUnknownRequest(t *testing.T) {
	l := NewLeading()
	l.AcknowledgeOk(999, 2) // must not panic, must not create an entry.
	if _, ok := l.Confirmations(999); ok {
		t.Fatalf("unknown request should not be created by an OK")
	}
}

func TestLeading_SingleFlight(t *testing.T) {
	l := NewLeading()
	l.PushRequest(2, 1, types.Add)
	l.PushRequest(3, 1, types.Add)

	if !l.CanProceed() {
		t.Fatalf("expected CanProceed with no in-flight request")
	}
	instr := l.StartReq()
	if instr.PeerId != 2 {
		t.Fatalf("expected lowest request id (peer 2) first, got %+v", instr)
	}
	if l.CanProceed() {
		t.Fatalf("leader must not proceed while a request is in flight")
	}
}

func TestLeading_CheckCompleteRequiresFullQuorum(t *testing.T) {
	// Peer 3 joins while view 1 = {1, 2}: the leader's self-ack alone is
	// not enough, peer 2 (an existing member) must OK too. The joining
	// peer itself is not a member of view 1 and is never waited on.
	l := NewLeading()
	id := l.PushRequest(3, 1, types.Add)
	l.AcknowledgeOk(id, types.LeaderId)
	_ = l.StartReq()

	memberships := map[types.ViewId]types.PeerSet{1: types.NewPeerSet(types.LeaderId, 2)}
	if _, complete := l.CheckComplete(memberships); complete {
		t.Fatalf("must not complete: peer 2 has not acked yet")
	}

	l.AcknowledgeOk(id, 2)
	instr, complete := l.CheckComplete(memberships)
	if !complete {
		t.Fatalf("expected completion once confirmations equal view membership")
	}
	if instr.PeerId != 3 || instr.Op != types.Add {
		t.Fatalf("unexpected completed instruction: %+v", instr)
	}
	if l.CanProceed() {
		t.Fatalf("pending ledger should be empty after completion")
	}
}

func TestFollowing_PopLowestOrdersByRequestId(t *testing.T) {
	f := NewFollowing()
	f.PushInstruction(types.Instruction{RequestId: 3, PeerId: 4, ViewId: 1, Op: types.Add})
	f.PushInstruction(types.Instruction{RequestId: 1, PeerId: 2, ViewId: 1, Op: types.Add})
	f.PushInstruction(types.Instruction{RequestId: 2, PeerId: 3, ViewId: 1, Op: types.Add})

	first, ok := f.PopLowest()
	if !ok || first.RequestId != 1 {
		t.Fatalf("expected request 1 first, got %+v (ok=%v)", first, ok)
	}
	second, _ := f.PopLowest()
	if second.RequestId != 2 {
		t.Fatalf("expected request 2 second, got %+v", second)
	}
}

func TestFollowing_DuplicateRequestReplaces(t *testing.T) {
	f := NewFollowing()
	f.PushInstruction(types.Instruction{RequestId: 1, PeerId: 2, ViewId: 1, Op: types.Add})
	f.PushInstruction(types.Instruction{RequestId: 1, PeerId: 2, ViewId: 1, Op: types.Delete})

	if f.QueueLen() != 1 {
		t.Fatalf("duplicate request id should replace, not append, got len %d", f.QueueLen())
	}
	instr, _ := f.PopLowest()
	if instr.Op != types.Delete {
		t.Fatalf("expected the replacement instruction, got %+v", instr)
	}
}

func TestRole_IsLeaderReflectsVariant(t *testing.T) {
	if !New(true).IsLeader() {
		t.Fatalf("leader role should report IsLeader")
	}
	if New(false).IsLeader() {
		t.Fatalf("follower role should not report IsLeader")
	}
}
