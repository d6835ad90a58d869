// Package protover gates heterogeneous-binary rollouts on the wire
// protocol version carried in every wire.Letter's ProtocolVersion
// field. It is purely additive: a single-binary cluster where every
// process advertises the same version never exercises the rejection
// path.
package protover

import (
	"fmt"

	"github.com/hashicorp/go-version"
)

// Current is the protocol version this build speaks, advertised on
// every outbound Letter.
const Current = "1.0.0"

// Compatible reports whether a letter stamped with peerVersion can be
// safely processed by a process running localVersion: same major
// version, and the local process must be at or above the peer's
// minor/patch - so a process upgraded first can still speak to peers
// still running an older compatible build, but an old binary never
// silently misinterprets a newer wire shape.
func Compatible(localVersion, peerVersion string) (bool, error) {
	local, err := version.NewVersion(localVersion)
	if err != nil {
		return false, fmt.Errorf("parse local protocol version %q: %w", localVersion, err)
	}
	peer, err := version.NewVersion(peerVersion)
	if err != nil {
		return false, fmt.Errorf("parse peer protocol version %q: %w", peerVersion, err)
	}

	if local.Segments()[0] != peer.Segments()[0] {
		return false, nil
	}
	return local.GreaterThanOrEqual(peer), nil
}
