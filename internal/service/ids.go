package service

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator generates unique event ids.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 event ids.
//
// UUIDv7 embeds a timestamp in the most significant bits, so ids sort
// in creation order, which keeps block scans and log output readable.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined ids for testing.
// Once the supplied ids are exhausted it falls back to a counter.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu   sync.Mutex
	ids  []string
	next int
}

// NewFixedGenerator creates a generator that returns ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined id, or a counter-derived one
// when the supply runs out.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.next < len(g.ids) {
		id := g.ids[g.next]
		g.next++
		return id
	}
	g.next++
	return fmt.Sprintf("fixed-%04d", g.next)
}
