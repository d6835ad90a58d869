package transport

import (
	"fmt"
	"net"

	plog "github.com/prometheus/common/log"

	"github.com/migmoog/distsys-prj3/internal/errs"
	"github.com/migmoog/distsys-prj3/internal/hostlist"
	"github.com/migmoog/distsys-prj3/internal/types"
)

// HeartbeatBasePort is the first UDP port assigned: ports run upward
// from here, one per peer, assigned in host-list order.
const HeartbeatBasePort = 6790

// UDPPeerSocket pairs one bound local UDP socket with the remote
// hostname:port it heartbeats to. Every process binds the same
// contiguous port range [HeartbeatBasePort, HeartbeatBasePort+Len()-1],
// so a send from any process to any peer's address lands on a socket
// that peer already has bound - the heartbeat receive side is
// sender-agnostic (the HEARTBEAT letter itself carries the sender's
// PeerId) so it does not matter that two hosts may assign the same
// local/remote port pairing to different logical peers.
type UDPPeerSocket struct {
	PeerId types.PeerId
	Conn   *net.UDPConn
	Remote string
}

// NewUDPSockets binds one UDP socket per peer (excluding self), in the
// order hl.PeersAndNames() returns.
func NewUDPSockets(hl *hostlist.HostList) ([]*UDPPeerSocket, error) {
	peers := hl.PeersAndNames()
	out := make([]*UDPPeerSocket, 0, len(peers))
	for i, p := range peers {
		port := HeartbeatBasePort + i
		localAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", hl.Hostname(), port))
		if err != nil {
			return nil, errs.WrapIO("resolve heartbeat addr", err)
		}
		conn, err := net.ListenUDP("udp", localAddr)
		if err != nil {
			// NewUDPSockets is handed no Logger (the heartbeat socket set
			// is built once, by State's heart factory at the Born -> Living
			// transition), so the failure goes through the package-level
			// fallback logger rather than a Logger instance.
			plog.Errorf("failed binding heartbeat socket %s: %v", localAddr, err)
			for _, s := range out {
				s.Conn.Close()
			}
			return nil, errs.WrapIO(fmt.Sprintf("bind heartbeat socket for peer %d", p.Id), err)
		}
		out = append(out, &UDPPeerSocket{
			PeerId: p.Id,
			Conn:   conn,
			Remote: fmt.Sprintf("%s:%d", p.Name, port),
		})
	}
	return out, nil
}
