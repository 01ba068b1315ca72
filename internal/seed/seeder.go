// Package seed guards the one-time injection of externally fetched
// initial content into a collaboratively merged document. A freshly
// created document has no authoritative content until the provider's
// first sync completes; checking emptiness only after that point is what
// keeps a peer's pre-existing content from being clobbered by stale
// locally cached text.
package seed

import (
	"log"
	"sync"
)

// Provider is the collaboration provider surface the seeder depends on.
// Synced flips true once the shared document has performed its first
// merge with the server; ContentLength probes the document's root
// fragment. Emptiness is defined as that single fragment having length
// zero.
type Provider interface {
	Synced() bool
	ContentLength() int
	SetContent(content string) error
}

// Seeder holds the seed gate for one editor instance. A remounted editor
// gets a fresh Seeder; the emptiness check, not the gate, is what
// protects against double-seeding across instances.
type Seeder struct {
	provider Provider
	initial  string
	log      *log.Logger

	mu     sync.Mutex
	seeded bool
}

func NewSeeder(p Provider, initialContent string, logger *log.Logger) *Seeder {
	return &Seeder{
		provider: p,
		initial:  initialContent,
		log:      logger,
	}
}

// TrySeed injects the initial content iff the provider has completed its
// first sync, the shared document is still empty, the initial content is
// non-empty, and this instance has not seeded before. It is safe to call
// on every sync tick; at most one call ever injects. Unmet preconditions
// are a normal not-yet state, not an error.
func (s *Seeder) TrySeed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seeded || s.initial == "" {
		return false
	}
	if !s.provider.Synced() {
		return false
	}
	if s.provider.ContentLength() != 0 {
		// a peer already has content; never clobber it
		return false
	}

	if err := s.provider.SetContent(s.initial); err != nil {
		// gate stays open so the next tick can retry
		s.log.Print("seed: inject content:", err)
		return false
	}

	s.seeded = true
	return true
}

// Seeded reports whether this instance has performed its injection.
func (s *Seeder) Seeded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seeded
}
