// Package transport implements the full-mesh TCP control plane and the
// per-peer UDP heartbeat sockets. Transport owns the socket set it
// establishes at startup; the UDP half is handed off to the heart
// package once built, held behind a shared handle with no back-pointer
// to State so no ownership cycle exists.
package transport

import (
	"context"
	"sync"

	"github.com/migmoog/distsys-prj3/internal/types"
	"github.com/migmoog/distsys-prj3/internal/wire"
)

// Port is the well-known TCP control-plane port.
const Port = 6969

// MaxDialAttempts and dialBackoff (tcp.go) bound a dial's retry loop: up
// to this many attempts with a fixed backoff between them.
const MaxDialAttempts = 10

// Transport is the interface State/main depend on, so tests can
// substitute an in-process fake (see internal/state's tests).
type Transport interface {
	// Send serializes and writes a Letter to the outbound connection for
	// id. Fails fatally (IO/BadMessage): transient send errors are not
	// tolerated in this cluster.
	Send(id types.PeerId, l wire.Letter) error

	// BroadcastTCP sends l to every peer in members, excluding self.
	BroadcastTCP(members types.PeerSet, l wire.Letter) error

	// PollIncoming blocks until at least one letter is available across
	// all inbound TCP connections, then returns every letter currently
	// buffered. A decode failure on any connection is fatal and
	// surfaces as the returned error.
	PollIncoming(ctx context.Context) ([]wire.Letter, error)

	// Close tears down every socket this Transport owns.
	Close() error
}

// peerConn guards concurrent writes to one outbound connection. The
// main loop is the only writer in practice, but the mutex costs nothing
// and removes the assumption.
type peerConn struct {
	mu   sync.Mutex
	conn writeLetterCloser
}

type writeLetterCloser interface {
	Write(p []byte) (int, error)
	Close() error
}

func (p *peerConn) send(l wire.Letter) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return wire.WriteLetter(p.conn, l)
}
