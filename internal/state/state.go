// Package state wires together role, transport, heart, hostlist and wire
// into the single entry point for inbound messages and outbound
// intentions: recv_message, proceed_reqs, flush_instructions and
// validate_peers, plus the Born -> Living lifecycle transition and the
// ask_to_join bootstrap.
package state

import (
	"fmt"
	"time"

	"github.com/migmoog/distsys-prj3/internal/errs"
	"github.com/migmoog/distsys-prj3/internal/heart"
	"github.com/migmoog/distsys-prj3/internal/hostlist"
	"github.com/migmoog/distsys-prj3/internal/logging"
	"github.com/migmoog/distsys-prj3/internal/protover"
	"github.com/migmoog/distsys-prj3/internal/role"
	"github.com/migmoog/distsys-prj3/internal/transport"
	"github.com/migmoog/distsys-prj3/internal/types"
	"github.com/migmoog/distsys-prj3/internal/wire"
)

// livingSettleDelay is how long a freshly-Living process waits before
// arming its own heartbeat broadcast, giving every other member time to
// reach the same view and bind its own heartbeat sockets first.
const livingSettleDelay = 1500 * time.Millisecond

// newHeartFunc builds the Heart a process uses once Living. Overridable
// so tests can avoid binding real UDP sockets.
type newHeartFunc func(self types.PeerId, hl *hostlist.HostList, log logging.Logger) (*heart.Heart, error)

func defaultNewHeart(self types.PeerId, hl *hostlist.HostList, log logging.Logger) (*heart.Heart, error) {
	sockets, err := transport.NewUDPSockets(hl)
	if err != nil {
		return nil, err
	}
	return heart.New(self, sockets, log), nil
}

// Config assembles everything State needs at construction. CrashDelay,
// if non-zero, spawns a goroutine that stops the heartbeat broadcast
// after that duration once Living, simulating a crashed process that
// keeps running but stops announcing itself.
type Config struct {
	HostList   *hostlist.HostList
	Transport  transport.Transport
	Log        logging.Logger
	CrashDelay time.Duration

	newHeart newHeartFunc
}

// State is the per-process aggregate: the current role ledger, the
// recorded view history, and the lifecycle (Born or Living).
type State struct {
	self      types.PeerId
	hostList  *hostlist.HostList
	transport transport.Transport
	log       logging.Logger

	role          role.Role
	currentViewID types.ViewId
	memberships   map[types.ViewId]types.PeerSet

	life lifecycle

	crashDelay time.Duration
	newHeart   newHeartFunc
}

// New builds a State at view 1, whose only member is the leader - every
// other host reaches the view by sending JOIN and being added one at a
// time.
func New(cfg Config) *State {
	newHeart := cfg.newHeart
	if newHeart == nil {
		newHeart = defaultNewHeart
	}
	s := &State{
		self:          cfg.HostList.Self(),
		hostList:      cfg.HostList,
		transport:     cfg.Transport,
		log:           cfg.Log,
		role:          role.New(cfg.HostList.IsLeader()),
		currentViewID: 1,
		memberships:   map[types.ViewId]types.PeerSet{1: types.NewPeerSet(types.LeaderId)},
		life:          newLifecycle(),
		crashDelay:    cfg.CrashDelay,
		newHeart:      newHeart,
	}
	return s
}

// CurrentViewId returns the most recently committed view.
func (s *State) CurrentViewId() types.ViewId { return s.currentViewID }

// Members returns the membership recorded for viewID, if any.
func (s *State) Members(viewID types.ViewId) (types.PeerSet, bool) {
	m, ok := s.memberships[viewID]
	return m, ok
}

// IsLiving reports whether this process has completed the Born -> Living
// transition.
func (s *State) IsLiving() bool { return s.life.kind == Living }

// AskToJoin sends JOIN to the leader after an optional delay, letting a
// follower started before the leader wait for it to come up instead of
// exhausting its dial retries immediately. The leader never joins
// itself.
func (s *State) AskToJoin(delay time.Duration) error {
	if delay > 0 {
		time.Sleep(delay)
	}
	if s.hostList.IsLeader() {
		return nil
	}
	letter := wire.Letter{Sender: s.self, ProtocolVersion: protover.Current, Body: wire.Join{}}
	return s.transport.Send(types.LeaderId, letter)
}

// RecvMessage dispatches an inbound letter to the active role. A letter
// stamped with an incompatible protocol version is dropped rather than
// dispatched; everything else is either handled or, for a message kind
// the active role is not permitted to receive, reported as a fatal
// protocol violation.
func (s *State) RecvMessage(l wire.Letter) error {
	if l.ProtocolVersion != "" {
		compatible, err := protover.Compatible(protover.Current, l.ProtocolVersion)
		if err != nil {
			s.log.Warnf("dropping letter from peer %d with unparseable protocol version %q: %v", l.Sender, l.ProtocolVersion, err)
			return nil
		}
		if !compatible {
			s.log.Warnf("dropping letter from peer %d on incompatible protocol version %q", l.Sender, l.ProtocolVersion)
			return nil
		}
	}

	if s.role.IsLeader() {
		return s.recvAsLeader(l)
	}
	return s.recvAsFollower(l)
}

func (s *State) recvAsLeader(l wire.Letter) error {
	switch body := l.Body.(type) {
	case wire.Join:
		id := s.role.Leader.PushRequest(l.Sender, s.currentViewID, types.Add)
		s.role.Leader.AcknowledgeOk(id, s.self)
		return nil
	case wire.Ok:
		s.role.Leader.AcknowledgeOk(body.RequestId, l.Sender)
		return nil
	default:
		return fmt.Errorf("%w: leader received %s from peer %d", errs.ErrProtocolViolation, l.Body.Kind(), l.Sender)
	}
}

func (s *State) recvAsFollower(l wire.Letter) error {
	switch body := l.Body.(type) {
	case wire.Req:
		s.role.Follower.PushInstruction(body.Instruction)
		return nil
	case wire.NewView:
		s.adoptView(body.ViewId, body.Members)
		return nil
	default:
		return fmt.Errorf("%w: follower received %s from peer %d", errs.ErrProtocolViolation, l.Body.Kind(), l.Sender)
	}
}

// ProceedReqs starts the leader's next pending request, if it is free to
// do so, by broadcasting REQ to every member of the view the request was
// issued against. A no-op for followers and for a leader already
// waiting on an in-flight request.
//
// A Delete request's recipients exclude the peer being deleted, along
// with the leader itself: that peer is the one already presumed dead,
// and sending it a REQ would mean writing to a connection nothing is
// listening on anymore.
func (s *State) ProceedReqs() error {
	if !s.role.IsLeader() || !s.role.Leader.CanProceed() {
		return nil
	}
	instr := s.role.Leader.StartReq()
	letter := wire.Letter{Sender: s.self, ProtocolVersion: protover.Current, Body: wire.Req{Instruction: instr}}
	members, ok := s.memberships[instr.ViewId]
	if !ok {
		return fmt.Errorf("%w: no recorded membership for view %d", errs.ErrProtocolViolation, instr.ViewId)
	}
	recipients := members
	if instr.Op == types.Delete {
		recipients = members.Clone()
		recipients.Delete(instr.PeerId)
	}
	return s.transport.BroadcastTCP(recipients, letter)
}

// FlushInstructions drives the per-role outbound half: a follower with a
// queued instruction sends its OK to the leader; a leader whose
// in-flight request has been unanimously confirmed commits the new
// view and broadcasts NEWVIEW.
func (s *State) FlushInstructions() error {
	if s.role.IsLeader() {
		return s.flushLeader()
	}
	return s.flushFollower()
}

func (s *State) flushFollower() error {
	instr, ok := s.role.Follower.PopLowest()
	if !ok {
		return nil
	}
	letter := wire.Letter{
		Sender:          s.self,
		ProtocolVersion: protover.Current,
		Body:            wire.Ok{RequestId: instr.RequestId, ViewId: s.currentViewID},
	}
	return s.transport.Send(s.role.Follower.LeaderId(), letter)
}

func (s *State) flushLeader() error {
	instr, complete := s.role.Leader.CheckComplete(s.memberships)
	if !complete {
		return nil
	}

	current, ok := s.memberships[s.currentViewID]
	if !ok {
		return fmt.Errorf("%w: no recorded membership for current view %d", errs.ErrProtocolViolation, s.currentViewID)
	}
	next := current.Clone()
	switch instr.Op {
	case types.Add:
		next.Add(instr.PeerId)
	case types.Delete:
		if !next.Delete(instr.PeerId) {
			return fmt.Errorf("%w: delete of peer %d not present in view %d", errs.ErrProtocolViolation, instr.PeerId, s.currentViewID)
		}
	}

	s.adoptView(s.currentViewID+1, next)

	letter := wire.Letter{
		Sender:          s.self,
		ProtocolVersion: protover.Current,
		Body:            wire.NewView{ViewId: s.currentViewID, Members: next},
	}
	return s.transport.BroadcastTCP(next, letter)
}

// adoptView records members as the membership for viewID, logs the
// NEWVIEW event, and triggers the Born -> Living transition the first
// time the recorded membership equals the full host list.
func (s *State) adoptView(viewID types.ViewId, members types.PeerSet) {
	s.currentViewID = viewID
	s.memberships[viewID] = members
	s.log.EventNewView(uint32(s.self), uint32(viewID), uint32(types.LeaderId), idsUint32(members.Sorted()))

	if s.life.kind == Born && members.Equal(s.hostList.AllIds()) {
		s.transitionToLiving()
	}
}

// transitionToLiving builds the Heart, seeds last_seen for every current
// peer so validate_peers has a baseline to compare against, and arms the
// broadcast timer after livingSettleDelay so peers that are slightly
// behind in reaching this view still have sockets bound by the time
// heartbeats start arriving.
func (s *State) transitionToLiving() {
	h, err := s.newHeart(s.self, s.hostList, s.log)
	if err != nil {
		s.log.Fatalf("failed starting heartbeat component: %v", err)
		return
	}

	now := time.Now()
	lastSeen := make(map[types.PeerId]time.Time, s.hostList.Len())
	for _, id := range s.hostList.AllIds().Sorted() {
		if id == s.self {
			continue
		}
		lastSeen[id] = now
	}

	s.life = lifecycle{kind: Living, heart: h, lastSeen: lastSeen}

	// Timers rather than sleeping goroutines, so nothing is left parked
	// on a sleep once the process is torn down.
	time.AfterFunc(livingSettleDelay, func() {
		h.Start(heart.Period)
	})

	if s.crashDelay > 0 {
		time.AfterFunc(s.crashDelay, func() {
			h.StopBroadcast()
			s.log.EventCrashing(uint32(s.self), uint32(s.currentViewID), uint32(types.LeaderId))
		})
	}
}

// ValidatePeers drains the heart's incoming heartbeat buffer into
// last_seen and, for any current peer not heard from within two
// heartbeat periods, logs it unreachable and - if this process is the
// leader - queues a Delete request for it. A no-op before the process is
// Living.
func (s *State) ValidatePeers(now time.Time) error {
	if s.life.kind != Living {
		return nil
	}

	members, ok := s.memberships[s.currentViewID]
	if !ok {
		return fmt.Errorf("%w: no recorded membership for current view %d", errs.ErrProtocolViolation, s.currentViewID)
	}

	for _, id := range members.Sorted() {
		if id == s.self {
			continue
		}
		last, seen := s.life.lastSeen[id]
		if !seen {
			continue
		}
		if now.Sub(last) <= 2*heart.Period {
			continue
		}
		s.log.EventUnreachable(uint32(s.self), uint32(s.currentViewID), uint32(types.LeaderId), uint32(id))
		delete(s.life.lastSeen, id)
		if s.role.IsLeader() {
			reqID := s.role.Leader.PushRequest(id, s.currentViewID, types.Delete)
			s.role.Leader.AcknowledgeOk(reqID, s.self)
		}
	}

	for _, l := range s.life.heart.Drain() {
		s.life.lastSeen[l.Sender] = now
	}
	return nil
}

// Close releases the heart's sockets if this process reached Living.
// Safe to call on a process still Born.
func (s *State) Close() {
	if s.life.kind == Living && s.life.heart != nil {
		s.life.heart.Close()
	}
}

func idsUint32(ids []types.PeerId) []uint32 {
	out := make([]uint32, len(ids))
	for i, id := range ids {
		out[i] = uint32(id)
	}
	return out
}
