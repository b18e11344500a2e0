package client

import (
	"fmt"

	"github.com/dbehnke/caddxd/internal/protocol/caddx"
)

// Event types and kinds, as passed to the notify command
const (
	TypeZone      = "zone"
	TypePartition = "part"

	KindActive   = "active"
	KindInactive = "inactive"
	KindSiren    = "siren"
	KindSirenOff = "siren_off"
)

// Event is one semantic change derived from a status report. ID is the
// 1-based zone or partition number.
type Event struct {
	Type string
	ID   int
	Kind string
}

func (e Event) String() string {
	return fmt.Sprintf("%s %d %s", e.Type, e.ID, e.Kind)
}

// PartitionSirenLatch has one bit per partition (0-63), set while a siren
// event has been emitted and not yet cleared.
type PartitionSirenLatch uint64

// IsSet reports the latch bit for a 0-based partition
func (l PartitionSirenLatch) IsSet(partition byte) bool {
	return partition < 64 && l&(1<<partition) != 0
}

func (l *PartitionSirenLatch) set(partition byte)   { *l |= 1 << partition }
func (l *PartitionSirenLatch) clear(partition byte) { *l &^= 1 << partition }

// Classifier maps status reports to events. Zone reports are
// level-triggered; partition sirens are edge-triggered through the latch.
type Classifier struct {
	latch PartitionSirenLatch
}

// NewClassifier returns a classifier with every latch bit clear
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Latch returns the current siren latch
func (c *Classifier) Latch() PartitionSirenLatch {
	return c.latch
}

// Classify returns the event for m, if any
func (c *Classifier) Classify(m caddx.Message) (Event, bool) {
	switch msg := m.(type) {
	case *caddx.ZoneStatusReport:
		kind := KindInactive
		if msg.Active() {
			kind = KindActive
		}
		return Event{Type: TypeZone, ID: int(msg.Zone()) + 1, Kind: kind}, true

	case *caddx.PartitionStatusReport:
		p := msg.Partition()
		if p >= 64 {
			return Event{}, false
		}
		latched := c.latch.IsSet(p)
		switch {
		case msg.SirenOn() && !latched:
			c.latch.set(p)
			return Event{Type: TypePartition, ID: int(p) + 1, Kind: KindSiren}, true
		case !msg.SirenOn() && latched:
			c.latch.clear(p)
			return Event{Type: TypePartition, ID: int(p) + 1, Kind: KindSirenOff}, true
		}
	}
	return Event{}, false
}
