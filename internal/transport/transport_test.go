package transport

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/migmoog/distsys-prj3/internal/hostlist"
	"github.com/migmoog/distsys-prj3/internal/logging"
	"github.com/migmoog/distsys-prj3/internal/types"
	"github.com/migmoog/distsys-prj3/internal/wire"
)

// loopback addresses, distinct enough to bind the same TCP port
// concurrently within a single test process (the whole 127.0.0.0/8
// block routes locally on Linux).
const (
	hostA = "127.0.0.2"
	hostB = "127.0.0.3"
)

func writeTwoHostFile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts.txt")
	if err := os.WriteFile(path, []byte(hostA+"\n"+hostB+"\n"), 0o644); err != nil {
		t.Fatalf("write hosts file: %v", err)
	}
	return path
}

func buildPair(t *testing.T) (*TCPTransport, *TCPTransport, func()) {
	t.Helper()
	path := writeTwoHostFile(t)

	hlA, err := hostlist.Load(path, hostA)
	if err != nil {
		t.Fatalf("load A: %v", err)
	}
	hlB, err := hostlist.Load(path, hostB)
	if err != nil {
		t.Fatalf("load B: %v", err)
	}

	log := logging.NewRecording()

	var wg sync.WaitGroup
	var tA, tB *TCPTransport
	var errA, errB error
	wg.Add(2)
	go func() {
		defer wg.Done()
		tA, errA = NewTCP(hlA, log)
	}()
	go func() {
		defer wg.Done()
		tB, errB = NewTCP(hlB, log)
	}()
	wg.Wait()

	if errA != nil {
		t.Fatalf("build A: %v", errA)
	}
	if errB != nil {
		t.Fatalf("build B: %v", errB)
	}

	return tA, tB, func() {
		tA.Close()
		tB.Close()
	}
}

func TestTCPTransport_SendAndPoll(t *testing.T) {
	tA, tB, cleanup := buildPair(t)
	defer cleanup()

	letter := wire.Letter{Sender: 1, Body: wire.Join{}}
	if err := tA.Send(2, letter); err != nil {
		t.Fatalf("send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := tB.PollIncoming(ctx)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(got) != 1 || got[0].Body.Kind() != wire.KindJoin {
		t.Fatalf("unexpected letters: %#v", got)
	}
}

func TestTCPTransport_BroadcastSkipsSelf(t *testing.T) {
	tA, tB, cleanup := buildPair(t)
	defer cleanup()

	letter := wire.Letter{Sender: 1, Body: wire.Heartbeat{}}
	if err := tA.BroadcastTCP(types.NewPeerSet(1, 2), letter); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := tB.PollIncoming(ctx)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly one letter (self excluded), got %d", len(got))
	}
}

func TestTCPTransport_PollIncomingDrainsBatch(t *testing.T) {
	tA, tB, cleanup := buildPair(t)
	defer cleanup()

	for i := 0; i < 3; i++ {
		if err := tA.Send(2, wire.Letter{Sender: 1, Body: wire.Heartbeat{}}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	total := 0
	for total < 3 {
		got, err := tB.PollIncoming(ctx)
		if err != nil {
			t.Fatalf("poll: %v", err)
		}
		total += len(got)
	}
	if total != 3 {
		t.Fatalf("expected 3 letters total, got %d", total)
	}
}

