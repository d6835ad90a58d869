// Package hostlist loads the static host-list file and resolves this
// process's PeerId from it: reading the file and resolving the local
// hostname, nothing more.
package hostlist

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/migmoog/distsys-prj3/internal/errs"
	"github.com/migmoog/distsys-prj3/internal/types"
)

// HostList is the ordered sequence of hostnames loaded at startup. The
// first entry is always the leader; position in the file is the
// process's PeerId.
type HostList struct {
	self  string
	names []string
}

// Load reads path, one hostname per line, and resolves hostname (as
// returned by os.Hostname by the caller) among them. Returns
// errs.ErrHostNotInHostsfile if hostname does not appear exactly once.
func Load(path string, hostname string) (*HostList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.WrapIO("open hostsfile", err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.WrapIO("read hostsfile", err)
	}

	count := 0
	for _, n := range names {
		if n == hostname {
			count++
		}
	}
	if count != 1 {
		return nil, fmt.Errorf("%w: %q appears %d times in %s", errs.ErrHostNotInHostsfile, hostname, count, path)
	}

	return &HostList{self: hostname, names: names}, nil
}

// Hostname returns this process's own hostname, as it appears in the
// file.
func (h *HostList) Hostname() string {
	return h.self
}

// Self returns this process's PeerId.
func (h *HostList) Self() types.PeerId {
	for i, n := range h.names {
		if n == h.self {
			return types.PeerId(i + 1)
		}
	}
	panic("hostlist: self not found after successful Load")
}

// IsLeader reports whether this process is at position 1.
func (h *HostList) IsLeader() bool {
	return h.Self() == types.LeaderId
}

// Len returns the number of peers excluding self.
func (h *HostList) Len() int {
	return len(h.names) - 1
}

// Count returns the total number of hosts in the file, including self.
func (h *HostList) Count() int {
	return len(h.names)
}

// Name returns the hostname for id, or "" if out of range.
func (h *HostList) Name(id types.PeerId) string {
	idx := int(id) - 1
	if idx < 0 || idx >= len(h.names) {
		return ""
	}
	return h.names[idx]
}

// PeersAndNames iterates every peer id/hostname pair excluding self, in
// host-list order.
func (h *HostList) PeersAndNames() []PeerName {
	out := make([]PeerName, 0, h.Len())
	for i, n := range h.names {
		id := types.PeerId(i + 1)
		if n != h.self {
			out = append(out, PeerName{Id: id, Name: n})
		}
	}
	return out
}

// PeerName pairs a PeerId with its hostname.
type PeerName struct {
	Id   types.PeerId
	Name string
}

// AllIds returns the full set of peer ids named in the file, used by
// State to detect the Born -> Living transition once current_view's
// members match this set exactly.
func (h *HostList) AllIds() types.PeerSet {
	ids := make([]types.PeerId, len(h.names))
	for i := range h.names {
		ids[i] = types.PeerId(i + 1)
	}
	return types.NewPeerSet(ids...)
}
