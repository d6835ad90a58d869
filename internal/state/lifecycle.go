package state

import (
	"time"

	"github.com/migmoog/distsys-prj3/internal/heart"
	"github.com/migmoog/distsys-prj3/internal/types"
)

// LifecycleKind is Born or Living. The transition is one-way: there is
// no Living -> Born.
type LifecycleKind int

const (
	Born LifecycleKind = iota
	Living
)

func (k LifecycleKind) String() string {
	if k == Living {
		return "Living"
	}
	return "Born"
}

// lifecycle bundles the kind with the resources that only exist once
// Living: the Heart and the per-peer last-seen map.
type lifecycle struct {
	kind     LifecycleKind
	heart    *heart.Heart
	lastSeen map[types.PeerId]time.Time
}

func newLifecycle() lifecycle {
	return lifecycle{kind: Born}
}
