package testcluster

import (
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/migmoog/distsys-prj3/internal/types"
)

// TestCluster_CleanJoin checks that every follower joins a freshly
// started leader and all three processes converge on the same final
// view.
func TestCluster_CleanJoin(t *testing.T) {
	defer goleak.VerifyNone(t)

	hosts := []string{"127.0.0.10", "127.0.0.11", "127.0.0.12"}
	c := New(t, hosts)
	defer c.Shutdown()

	final := types.NewPeerSet(1, 2, 3)
	for i := range hosts {
		c.WaitForView(i, 3, final, 5*time.Second)
	}

	for i, m := range c.Members {
		events := m.Log.Snapshot()
		sawFinal := false
		for _, e := range events {
			if e.ViewID == 3 {
				sawFinal = true
			}
		}
		if !sawFinal {
			t.Fatalf("member %d (%s) never logged reaching view 3", i, m.Host)
		}
	}
}

// TestCluster_FollowerCrash checks that once the cluster reaches full
// membership, killing a follower leads the leader to evict it: every
// survivor reaches view 5 = {1,2,3} within the wait below.
func TestCluster_FollowerCrash(t *testing.T) {
	defer goleak.VerifyNone(t)

	hosts := []string{"127.0.0.20", "127.0.0.21", "127.0.0.22", "127.0.0.23"}
	c := New(t, hosts)
	defer c.Shutdown()

	full := types.NewPeerSet(1, 2, 3, 4)
	for i := range hosts {
		c.WaitForView(i, 4, full, 5*time.Second)
	}

	c.Kill(3) // peer 4, 127.0.0.23

	evicted := types.NewPeerSet(1, 2, 3)
	for i := 0; i < 3; i++ {
		c.WaitForView(i, 5, evicted, 10*time.Second)
	}
}
