package network

import (
	"errors"
	"net"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrSubscriberUnknown means a removal named a subscriber the registry does
// not hold. Accept and removal are the only mutators, so this is a bug.
var ErrSubscriberUnknown = errors.New("registry: subscriber not registered")

// Registry holds the connected subscribers in accept order. Removal is two
// phase: MarkDead during a scan, Compact after it, so iteration over a
// Snapshot never sees the slice shift underneath it.
type Registry struct {
	subs   []*Subscriber
	nextID uint64
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers conn as a new subscriber. The caller starts it.
func (r *Registry) Add(conn net.Conn, timeout time.Duration) *Subscriber {
	r.nextID++
	s := newSubscriber(r.nextID, conn, timeout)
	r.subs = append(r.subs, s)
	return s
}

// Len returns the number of registered subscribers, dead ones included
// until the next Compact.
func (r *Registry) Len() int {
	return len(r.subs)
}

// Snapshot returns the current subscribers in accept order
func (r *Registry) Snapshot() []*Subscriber {
	out := make([]*Subscriber, len(r.subs))
	copy(out, r.subs)
	return out
}

// MarkDead flags s for removal on the next Compact
func (r *Registry) MarkDead(s *Subscriber) error {
	for _, cur := range r.subs {
		if cur == s {
			cur.dead = true
			return nil
		}
	}
	log.Error().Uint64("id", s.id).Str("addr", s.addr).Msg("removal of unregistered subscriber")
	return ErrSubscriberUnknown
}

// Remove unregisters and closes the subscriber with id
func (r *Registry) Remove(id uint64) error {
	for _, cur := range r.subs {
		if cur.id == id {
			cur.dead = true
			r.Compact()
			return nil
		}
	}
	log.Error().Uint64("id", id).Msg("removal of unregistered subscriber")
	return ErrSubscriberUnknown
}

// Compact closes and drops every dead subscriber, keeping order. It returns
// the number removed.
func (r *Registry) Compact() int {
	kept := r.subs[:0]
	removed := 0
	for _, s := range r.subs {
		if s.dead {
			s.Close()
			removed++
			log.Info().Uint64("id", s.id).Str("addr", s.addr).Msg("subscriber removed")
			continue
		}
		kept = append(kept, s)
	}
	for i := len(kept); i < len(r.subs); i++ {
		r.subs[i] = nil
	}
	r.subs = kept
	return removed
}

// CloseAll closes every subscriber and empties the registry
func (r *Registry) CloseAll() {
	for _, s := range r.subs {
		s.Close()
	}
	r.subs = nil
}
