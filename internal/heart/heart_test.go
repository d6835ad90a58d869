package heart

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/migmoog/distsys-prj3/internal/hostlist"
	"github.com/migmoog/distsys-prj3/internal/logging"
	"github.com/migmoog/distsys-prj3/internal/transport"
)

const (
	hostA = "127.0.0.4"
	hostB = "127.0.0.5"
)

func buildSockets(t *testing.T, self string) *hostlist.HostList {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts.txt")
	if err := os.WriteFile(path, []byte(hostA+"\n"+hostB+"\n"), 0o644); err != nil {
		t.Fatalf("write hosts file: %v", err)
	}
	hl, err := hostlist.Load(path, self)
	if err != nil {
		t.Fatalf("load hostlist: %v", err)
	}
	return hl
}

func TestHeart_BroadcastReachesPeer(t *testing.T) {
	hlA := buildSockets(t, hostA)
	hlB := buildSockets(t, hostB)

	socketsA, err := transport.NewUDPSockets(hlA)
	if err != nil {
		t.Fatalf("sockets A: %v", err)
	}
	socketsB, err := transport.NewUDPSockets(hlB)
	if err != nil {
		t.Fatalf("sockets B: %v", err)
	}

	logA := logging.NewRecording()
	logB := logging.NewRecording()
	heartA := New(1, socketsA, logA)
	heartB := New(2, socketsB, logB)
	defer heartA.Close()
	defer heartB.Close()

	heartA.Start(20 * time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if letters := heartB.Drain(); len(letters) > 0 {
			if letters[0].Sender != 1 {
				t.Fatalf("expected sender 1, got %d", letters[0].Sender)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("peer B never received a heartbeat from A")
}

func TestHeart_StopBroadcastHaltsSends(t *testing.T) {
	hlA := buildSockets(t, hostA)
	hlB := buildSockets(t, hostB)

	socketsA, err := transport.NewUDPSockets(hlA)
	if err != nil {
		t.Fatalf("sockets A: %v", err)
	}
	socketsB, err := transport.NewUDPSockets(hlB)
	if err != nil {
		t.Fatalf("sockets B: %v", err)
	}

	heartA := New(1, socketsA, logging.NewRecording())
	heartB := New(2, socketsB, logging.NewRecording())
	defer heartA.Close()
	defer heartB.Close()

	heartA.Start(10 * time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	heartA.StopBroadcast()
	// StopBroadcast does not wait for the broadcast goroutine, and B's
	// receive goroutine hands datagrams over asynchronously, so let
	// anything sent before the stop land before clearing it.
	time.Sleep(50 * time.Millisecond)
	heartB.Drain() // clear anything already buffered

	time.Sleep(150 * time.Millisecond)
	if letters := heartB.Drain(); len(letters) > 0 {
		t.Fatalf("expected no heartbeats after StopBroadcast, got %d", len(letters))
	}
}
