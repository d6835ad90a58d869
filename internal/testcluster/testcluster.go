// Package testcluster spins up a full cluster of in-process members over
// loopback TCP/UDP, standing in for a multi-host deployment so
// membership scenarios can be driven and asserted on from a single test
// process.
package testcluster

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/migmoog/distsys-prj3/internal/heart"
	"github.com/migmoog/distsys-prj3/internal/hostlist"
	"github.com/migmoog/distsys-prj3/internal/logging"
	"github.com/migmoog/distsys-prj3/internal/state"
	"github.com/migmoog/distsys-prj3/internal/transport"
	"github.com/migmoog/distsys-prj3/internal/types"
	"github.com/migmoog/distsys-prj3/internal/wire"
)

// validateTick is how often each member's loop checks for unreachable
// peers - shorter than production heart.Period so scenario tests don't
// spend real wall-clock seconds waiting on a cadence nothing here needs
// to match exactly.
const validateTick = heart.Period / 4

// Member is one cluster participant: its own HostList/Transport/State
// and the Recording logger tests inspect for emitted events.
type Member struct {
	Host      string
	HostList  *hostlist.HostList
	Transport *transport.TCPTransport
	State     *state.State
	Log       *logging.Recording

	cancel context.CancelFunc
	done   chan struct{}
}

// Cluster owns every Member and the goroutines driving their loops.
type Cluster struct {
	t       *testing.T
	Members []*Member
	group   sync.WaitGroup
}

// New builds and starts a cluster of len(hosts) members, each bound to a
// distinct 127.0.0.x loopback address, and starts every member's
// run/validate loops. It blocks until the full-mesh TCP control plane is
// up on every member, then returns immediately - callers use WaitForView
// to synchronize on JOIN/NEWVIEW progress.
func New(t *testing.T, hosts []string) *Cluster {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "hosts.txt")
	content := ""
	for _, h := range hosts {
		content += h + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write hosts file: %v", err)
	}

	c := &Cluster{t: t}

	type built struct {
		m   *Member
		err error
	}
	results := make([]built, len(hosts))
	var wg sync.WaitGroup
	for i, h := range hosts {
		wg.Add(1)
		go func(i int, h string) {
			defer wg.Done()
			hl, err := hostlist.Load(path, h)
			if err != nil {
				results[i] = built{err: fmt.Errorf("load hostlist for %s: %w", h, err)}
				return
			}
			log := logging.NewRecording()
			tr, err := transport.NewTCP(hl, log)
			if err != nil {
				results[i] = built{err: fmt.Errorf("build transport for %s: %w", h, err)}
				return
			}
			st := state.New(state.Config{HostList: hl, Transport: tr, Log: log})
			results[i] = built{m: &Member{Host: h, HostList: hl, Transport: tr, State: st, Log: log}}
		}(i, h)
	}
	wg.Wait()

	for _, r := range results {
		if r.err != nil {
			t.Fatalf("%v", r.err)
		}
		c.Members = append(c.Members, r.m)
	}

	for _, m := range c.Members {
		c.start(m)
	}

	for _, m := range c.Members {
		if !m.HostList.IsLeader() {
			go func(m *Member) {
				if err := m.State.AskToJoin(0); err != nil {
					t.Errorf("%s: ask to join: %v", m.Host, err)
				}
			}(m)
		}
	}

	return c
}

func (c *Cluster) start(m *Member) {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})

	c.group.Add(1)
	go func() {
		defer c.group.Done()
		defer close(m.done)
		runMemberLoop(ctx, m)
	}()
}

// runMemberLoop is the single goroutine that owns m.State, selecting
// between inbound TCP letters and the heartbeat-check tick so State's
// methods are never called from two goroutines at once - the same
// single-threaded-cooperative shape cmd/member's runLoop uses.
func runMemberLoop(ctx context.Context, m *Member) {
	incoming := make(chan []wire.Letter)
	pollErr := make(chan error, 1)
	go func() {
		for {
			letters, err := m.Transport.PollIncoming(ctx)
			if err != nil {
				pollErr <- err
				return
			}
			select {
			case incoming <- letters:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(validateTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pollErr:
			return
		case letters := <-incoming:
			for _, l := range letters {
				if err := m.State.RecvMessage(l); err != nil {
					m.Log.Errorf("recv message: %v", err)
					return
				}
			}
		case <-ticker.C:
			if err := m.State.ValidatePeers(time.Now()); err != nil {
				m.Log.Errorf("validate peers: %v", err)
				return
			}
		}

		if err := m.State.ProceedReqs(); err != nil {
			m.Log.Errorf("proceed reqs: %v", err)
			return
		}
		if err := m.State.FlushInstructions(); err != nil {
			m.Log.Errorf("flush instructions: %v", err)
			return
		}
	}
}

// WaitForView blocks until member idx has recorded viewID with exactly
// members, or the deadline passes - in which case it fails the test.
func (c *Cluster) WaitForView(idx int, viewID types.ViewId, members types.PeerSet, timeout time.Duration) {
	c.t.Helper()
	m := c.Members[idx]
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if got, ok := m.State.Members(viewID); ok && got.Equal(members) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	c.t.Fatalf("%s: timed out waiting for view %d = %v", m.Host, viewID, members.Sorted())
}

// Kill simulates a crashed member: its loops are cancelled and its
// sockets closed, so it stops reading, writing and heartbeating, but the
// other members' state is untouched.
func (c *Cluster) Kill(idx int) {
	m := c.Members[idx]
	m.cancel()
	m.Transport.Close()
	m.State.Close()
	<-m.done
}

// Shutdown stops every member's loops and sockets, and should be paired
// with goleak.VerifyNone by callers so no goroutine leaks past teardown.
func (c *Cluster) Shutdown() {
	for _, m := range c.Members {
		m.cancel()
		m.Transport.Close()
		m.State.Close()
	}
	c.group.Wait()
}
