// Command member runs one process of the membership cluster: it loads
// the host list, establishes the full-mesh TCP control plane, and drives
// the recv/proceed/flush/validate cycle until killed.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/migmoog/distsys-prj3/internal/heart"
	"github.com/migmoog/distsys-prj3/internal/hostlist"
	"github.com/migmoog/distsys-prj3/internal/logging"
	"github.com/migmoog/distsys-prj3/internal/state"
	"github.com/migmoog/distsys-prj3/internal/transport"
	"github.com/migmoog/distsys-prj3/internal/wire"
)

var (
	hostsfilePath = kingpin.Flag("hostsfile", "path to the newline-delimited host list").Short('h').Required().String()
	startDelay    = kingpin.Flag("delay", "seconds to wait before sending JOIN").Short('d').Default("0").Uint()
	crashDelay    = kingpin.Flag("crash-delay", "seconds to run before simulating a crash").Short('c').Default("0").Uint()
	testcase      = kingpin.Flag("testcase", "enable debug-level scenario logging").Short('t').Bool()
)

func main() {
	kingpin.Parse()

	hostname, err := os.Hostname()
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolve hostname: %v\n", err)
		os.Exit(1)
	}

	hl, err := hostlist.Load(*hostsfilePath, hostname)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load hostsfile: %v\n", err)
		os.Exit(1)
	}

	log := logging.NewDefault()
	log.ToggleDebug(*testcase)
	log.SetTestcase(*testcase)
	printBanner(hl)

	tr, err := transport.NewTCP(hl, log)
	if err != nil {
		log.Fatalf("establish control plane: %v", err)
	}
	defer tr.Close()

	st := state.New(state.Config{
		HostList:   hl,
		Transport:  tr,
		Log:        log,
		CrashDelay: time.Duration(*crashDelay) * time.Second,
	})
	defer st.Close()

	if !hl.IsLeader() {
		go func() {
			if err := st.AskToJoin(time.Duration(*startDelay) * time.Second); err != nil {
				log.Errorf("ask to join: %v", err)
			}
		}()
	}

	runLoop(context.Background(), st, tr, log)
}

// runLoop is the single cooperative loop that owns State: it wakes on
// whichever comes first, a batch of inbound letters or the heartbeat
// check tick, handles that one event, then always gives proceed_reqs and
// flush_instructions a chance to react before going back to sleep. State
// itself holds no lock, so every call into it happens from this one
// goroutine - mirroring the source's single poll() loop, with a second
// goroutine standing in for the extra UDP readiness the source's poll
// set also watched.
func runLoop(ctx context.Context, st *state.State, tr transport.Transport, log logging.Logger) {
	incoming := make(chan []wire.Letter)
	pollErr := make(chan error, 1)
	go func() {
		for {
			letters, err := tr.PollIncoming(ctx)
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

	ticker := time.NewTicker(heart.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-pollErr:
			log.Fatalf("poll incoming: %v", err)
			return
		case letters := <-incoming:
			for _, l := range letters {
				if err := st.RecvMessage(l); err != nil {
					log.Fatalf("recv message: %v", err)
					return
				}
			}
		case <-ticker.C:
			if err := st.ValidatePeers(time.Now()); err != nil {
				log.Fatalf("validate peers: %v", err)
				return
			}
		}

		if err := st.ProceedReqs(); err != nil {
			log.Fatalf("proceed reqs: %v", err)
			return
		}
		if err := st.FlushInstructions(); err != nil {
			log.Fatalf("flush instructions: %v", err)
			return
		}
	}
}
