// Package threshold holds the live per-side sensitivity and the text protocol
// remote clients use to change it.
package threshold

import (
	"sync"

	"github.com/teschmitt/kickir/internal/domain"
)

// DefaultValue is the cutoff both sides start with.
const DefaultValue domain.ThreshValue = 50

type entry struct {
	mu sync.Mutex
	v  domain.ThreshValue
}

// Store is the only state shared between the scan worker and the control
// path. Each side has its own lock so a write to one side never stalls a
// read of the other.
type Store struct {
	home entry
	away entry
}

func NewStore(initial domain.ThreshValue) *Store {
	s := &Store{}
	s.home.v = initial
	s.away.v = initial
	return s
}

func (s *Store) entry(side domain.Side) *entry {
	if side == domain.SideAway {
		return &s.away
	}
	return &s.home
}

// Get returns the current cutoff for side.
func (s *Store) Get(side domain.Side) domain.ThreshValue {
	e := s.entry(side)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.v
}

// Set overwrites the cutoff for side. The previous value is discarded.
func (s *Store) Set(side domain.Side, v domain.ThreshValue) {
	e := s.entry(side)
	e.mu.Lock()
	e.v = v
	e.mu.Unlock()
}

// Apply writes a parsed change.
func (s *Store) Apply(c domain.ThresholdChange) {
	s.Set(c.Side, c.NewValue)
}

// Snapshot reads both sides. The two reads are not atomic with respect to
// each other.
func (s *Store) Snapshot() map[domain.Side]domain.ThreshValue {
	return map[domain.Side]domain.ThreshValue{
		domain.SideHome: s.Get(domain.SideHome),
		domain.SideAway: s.Get(domain.SideAway),
	}
}
