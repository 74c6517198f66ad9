package testutil

import "sync"

// DefaultRunID is returned by a FixedRunIDGenerator built without ids.
const DefaultRunID = "test-run-default"

// FixedRunIDGenerator returns predetermined journal run ids.
//
// Ids are returned in order; once they run out the last one repeats. This
// keeps journal rows and golden traces byte-identical between runs.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedRunIDGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedRunIDGenerator creates a generator over ids.
func NewFixedRunIDGenerator(ids ...string) *FixedRunIDGenerator {
	if len(ids) == 0 {
		ids = []string{DefaultRunID}
	}
	return &FixedRunIDGenerator{ids: ids}
}

// Generate returns the next id.
// Implements journal.RunIDGenerator.
func (g *FixedRunIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.ids[g.idx]
	if g.idx < len(g.ids)-1 {
		g.idx++
	}
	return id
}
