// Package heart implements the liveness component: a periodic
// heartbeat broadcast over UDP and a background receiver that feeds
// decoded heartbeats to State.validate_peers through a bounded channel.
// One goroutine per UDP socket stands in for OS-level readiness
// multiplexing across that socket set.
package heart

import (
	"net"
	"sync"
	"time"

	"github.com/migmoog/distsys-prj3/internal/logging"
	"github.com/migmoog/distsys-prj3/internal/protover"
	"github.com/migmoog/distsys-prj3/internal/transport"
	"github.com/migmoog/distsys-prj3/internal/types"
	"github.com/migmoog/distsys-prj3/internal/wire"
)

// Period is the fixed heartbeat broadcast interval.
const Period = 2 * time.Second

// incomingBufferSize bounds the channel State drains from. Heartbeats
// are unordered and only the most recent receipt matters, so a full
// buffer drops the newest arrival rather than blocking the receive
// goroutine.
const incomingBufferSize = 64

// writeDeadline is how long a broadcast write may block before being
// treated as "not writeable now" and skipped.
const writeDeadline = 10 * time.Millisecond

// Heart owns the per-peer UDP socket set (handed off from
// transport.NewUDPSockets) and the send/receive goroutines driving it.
type Heart struct {
	self    types.PeerId
	sockets []*transport.UDPPeerSocket
	log     logging.Logger

	incoming chan wire.Letter

	stopBroadcastOnce sync.Once
	stopBroadcast     chan struct{}

	closeOnce sync.Once
	closed    chan struct{}

	wg sync.WaitGroup
}

// New builds a Heart over the given socket set and starts one receive
// goroutine per socket right away (liveness monitoring begins as soon as
// the process is Living). The broadcast timer is not armed here; the
// caller arms it via Start once it is ready to announce itself.
func New(self types.PeerId, sockets []*transport.UDPPeerSocket, log logging.Logger) *Heart {
	h := &Heart{
		self:          self,
		sockets:       sockets,
		log:           log,
		incoming:      make(chan wire.Letter, incomingBufferSize),
		stopBroadcast: make(chan struct{}),
		closed:        make(chan struct{}),
	}
	for _, s := range sockets {
		h.wg.Add(1)
		go h.receiveLoop(s)
	}
	return h
}

// Start arms the periodic broadcast at the given period. Callers should
// invoke it at most once per Heart, matching the one-way Born -> Living
// transition that creates at most one Heart per process.
func (h *Heart) Start(period time.Duration) {
	h.wg.Add(1)
	go h.broadcastLoop(period)
}

func (h *Heart) broadcastLoop(period time.Duration) {
	defer h.wg.Done()
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-h.closed:
			return
		case <-h.stopBroadcast:
			return
		case <-ticker.C:
			h.broadcastOnce()
		}
	}
}

// broadcastOnce writes a HEARTBEAT letter to every socket that accepts
// the write within writeDeadline, skipping (not queueing) any that
// would block - a readiness-gated filter translated to Go's
// SetWriteDeadline since there is no portable writable-poll on
// net.UDPConn.
func (h *Heart) broadcastOnce() {
	letter := wire.Letter{Sender: h.self, ProtocolVersion: protover.Current, Body: wire.Heartbeat{}}
	payload, err := wire.Encode(letter)
	if err != nil {
		h.log.Errorf("failed encoding heartbeat: %v", err)
		return
	}

	for _, s := range h.sockets {
		remote, err := net.ResolveUDPAddr("udp", s.Remote)
		if err != nil {
			h.log.Errorf("failed resolving heartbeat target %s: %v", s.Remote, err)
			continue
		}
		_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		if _, err := s.Conn.WriteToUDP(payload, remote); err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue // not writeable right now, skip rather than queue.
			}
			h.log.Warnf("failed sending heartbeat to %s: %v", s.Remote, err)
		}
	}
}

// receiveLoop continuously reads datagrams off one UDP socket. A UDP
// datagram's boundary is the message boundary, so no length-prefix
// framing applies here (that is TCP-only, see internal/wire/framing.go)
// - each Read is one full wire.Encode payload.
func (h *Heart) receiveLoop(s *transport.UDPPeerSocket) {
	defer h.wg.Done()
	buf := make([]byte, 2048)
	for {
		_ = s.Conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, _, err := s.Conn.ReadFromUDP(buf)
		select {
		case <-h.closed:
			return
		default:
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			h.log.Warnf("heartbeat socket read error: %v", err)
			continue
		}

		letter, err := wire.Decode(buf[:n])
		if err != nil {
			// Decode failures on inbound datagrams are logged and
			// ignored: UDP may corrupt or truncate.
			h.log.Warnf("dropping corrupt heartbeat datagram: %v", err)
			continue
		}
		if letter.Body.Kind() != wire.KindHeartbeat {
			h.log.Warnf("dropping non-heartbeat letter on heartbeat socket from peer %d", letter.Sender)
			continue
		}

		select {
		case h.incoming <- letter:
		default:
			h.log.Debugf("heartbeat buffer full, dropping receipt from peer %d", letter.Sender)
		}
	}
}

// StopBroadcast halts the periodic broadcast without touching the
// receive side - this is the simulated crash behind crash_delay: the
// process keeps listening and keeps being counted Living, it simply
// stops announcing itself.
func (h *Heart) StopBroadcast() {
	h.stopBroadcastOnce.Do(func() {
		close(h.stopBroadcast)
	})
}

// Drain returns every heartbeat letter buffered so far without
// blocking, for State.validate_peers to fold into last_seen.
func (h *Heart) Drain() []wire.Letter {
	var out []wire.Letter
	for {
		select {
		case l := <-h.incoming:
			out = append(out, l)
		default:
			return out
		}
	}
}

// Close stops both the broadcast and receive sides and releases the
// socket set.
func (h *Heart) Close() {
	h.closeOnce.Do(func() {
		close(h.closed)
	})
	h.StopBroadcast()
	for _, s := range h.sockets {
		s.Conn.Close()
	}
	h.wg.Wait()
}
