package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/migmoog/distsys-prj3/internal/errs"
	"github.com/migmoog/distsys-prj3/internal/hostlist"
	"github.com/migmoog/distsys-prj3/internal/logging"
	"github.com/migmoog/distsys-prj3/internal/types"
	"github.com/migmoog/distsys-prj3/internal/wire"
)

// dialBackoff is the fixed wait between dial/bind attempts (10 x 5s by
// default). A var, not a const, so tests can shrink it.
var dialBackoff = 5 * time.Second

// TCPTransport is the production Transport: one outbound net.Conn per
// peer, a listener accepting peer_count-1 inbound connections, and one
// reader goroutine per inbound connection feeding a shared buffered
// channel - goroutines and channels standing in for OS-level readiness
// multiplexing across that connection set.
type TCPTransport struct {
	self  types.PeerId
	log   logging.Logger
	peers map[types.PeerId]*peerConn

	listener net.Listener

	letters chan wire.Letter
	fatal   chan error

	closeOnce sync.Once
	closed    chan struct{}

	inboundMu sync.Mutex
	inbound   []net.Conn
}

// NewTCP establishes the full-mesh TCP control plane for hl: binds the
// listener, dials every peer (with retry), and waits for every peer to
// dial back in. Blocks until setup completes or a dial exhausts its
// retries.
func NewTCP(hl *hostlist.HostList, log logging.Logger) (*TCPTransport, error) {
	t := &TCPTransport{
		self:    hl.Self(),
		log:     log,
		peers:   make(map[types.PeerId]*peerConn),
		letters: make(chan wire.Letter, 256),
		fatal:   make(chan error, 1),
		closed:  make(chan struct{}),
	}

	listener, err := retryListen(hl.Hostname(), log)
	if err != nil {
		return nil, err
	}
	t.listener = listener

	want := hl.Len()
	accepted := make(chan error, 1)
	go t.acceptLoop(want, accepted)

	peers := hl.PeersAndNames()
	dialErrs := make(chan error, len(peers))
	var wg sync.WaitGroup
	for _, p := range peers {
		wg.Add(1)
		go func(p hostlist.PeerName) {
			defer wg.Done()
			conn, err := retryDial(p.Name, log)
			if err != nil {
				dialErrs <- err
				return
			}
			t.peers[p.Id] = &peerConn{conn: conn}
			dialErrs <- nil
		}(p)
	}
	wg.Wait()
	close(dialErrs)
	for err := range dialErrs {
		if err != nil {
			listener.Close()
			return nil, err
		}
	}

	if err := <-accepted; err != nil {
		listener.Close()
		return nil, err
	}

	return t, nil
}

func retryListen(hostname string, log logging.Logger) (net.Listener, error) {
	addr := fmt.Sprintf("%s:%d", hostname, Port)
	var lastErr error
	for attempt := 0; attempt < MaxDialAttempts; attempt++ {
		l, err := net.Listen("tcp", addr)
		if err == nil {
			return l, nil
		}
		lastErr = err
		log.Warnf("bind attempt %d/%d to %s failed: %v", attempt+1, MaxDialAttempts, addr, err)
		time.Sleep(dialBackoff)
	}
	return nil, errs.WrapIO("bind listener "+addr, lastErr)
}

func retryDial(hostname string, log logging.Logger) (net.Conn, error) {
	addr := fmt.Sprintf("%s:%d", hostname, Port)
	var lastErr error
	for attempt := 0; attempt < MaxDialAttempts; attempt++ {
		c, err := net.Dial("tcp", addr)
		if err == nil {
			return c, nil
		}
		lastErr = err
		log.Warnf("dial attempt %d/%d to %s failed: %v", attempt+1, MaxDialAttempts, addr, err)
		time.Sleep(dialBackoff)
	}
	return nil, errs.WrapIO("dial "+addr, lastErr)
}

func (t *TCPTransport) acceptLoop(want int, done chan<- error) {
	accepted := 0
	for accepted < want {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.closed:
				done <- nil
				return
			default:
			}
			done <- errs.WrapIO("accept", err)
			return
		}
		t.inboundMu.Lock()
		t.inbound = append(t.inbound, conn)
		t.inboundMu.Unlock()
		go t.readLoop(conn)
		accepted++
	}
	done <- nil
}

// readLoop maintains a per-connection receive buffer via
// wire.ReadLetter's io.ReadFull framing, correct for messages of any
// size or reads that coalesce, and pushes every decoded letter onto the
// shared channel PollIncoming drains. A peer closing its connection
// cleanly between frames (a crashed or killed member) ends this reader
// without an error; the survivors notice it through missing heartbeats.
func (t *TCPTransport) readLoop(conn net.Conn) {
	for {
		letter, err := wire.ReadLetter(conn)
		if err != nil {
			select {
			case <-t.closed:
				return
			default:
			}
			if errors.Is(err, io.EOF) {
				t.log.Warnf("peer connection %s closed", conn.RemoteAddr())
				return
			}
			select {
			case t.fatal <- fmt.Errorf("decode failure on TCP connection: %w", err):
			default:
			}
			return
		}
		select {
		case t.letters <- letter:
		case <-t.closed:
			return
		}
	}
}

func (t *TCPTransport) Send(id types.PeerId, l wire.Letter) error {
	p, ok := t.peers[id]
	if !ok {
		return fmt.Errorf("%w: no outbound connection to peer %d", errs.ErrProtocolViolation, id)
	}
	return p.send(l)
}

func (t *TCPTransport) BroadcastTCP(members types.PeerSet, l wire.Letter) error {
	for _, id := range members.Sorted() {
		if id == t.self {
			continue
		}
		if err := t.Send(id, l); err != nil {
			return err
		}
	}
	return nil
}

// PollIncoming blocks for the first available letter (or a fatal
// decode error, or ctx cancellation), then drains whatever else is
// already buffered before returning - "one read per readable socket
// per call" translated to the channel model.
func (t *TCPTransport) PollIncoming(ctx context.Context) ([]wire.Letter, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-t.fatal:
		return nil, err
	case first := <-t.letters:
		batch := []wire.Letter{first}
		for {
			select {
			case l := <-t.letters:
				batch = append(batch, l)
			default:
				return batch, nil
			}
		}
	}
}

func (t *TCPTransport) Close() error {
	var closeErr error
	t.closeOnce.Do(func() {
		close(t.closed)
		if t.listener != nil {
			closeErr = t.listener.Close()
		}
		for _, p := range t.peers {
			p.conn.Close()
		}
		t.inboundMu.Lock()
		for _, c := range t.inbound {
			c.Close()
		}
		t.inboundMu.Unlock()
	})
	return closeErr
}
