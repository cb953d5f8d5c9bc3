package testutil

import (
	"fmt"
	"sync"
)

// FixedRunIDGenerator returns the same run id every time.
//
// This enables deterministic test execution and golden report comparison:
// the same scenario with the same generator produces byte-identical output.
//
// Thread-safety: FixedRunIDGenerator is stateless and safe for concurrent use.
type FixedRunIDGenerator struct {
	id string
}

// NewFixedRunIDGenerator creates a generator. An empty id yields "test-run".
func NewFixedRunIDGenerator(id string) *FixedRunIDGenerator {
	if id == "" {
		id = "test-run"
	}
	return &FixedRunIDGenerator{id: id}
}

// Generate returns the fixed run id.
func (g *FixedRunIDGenerator) Generate() string {
	return g.id
}

// SequentialIDs returns a generator of prefix001, prefix002, ...
// Plug it into store.WithIDGenerator for predictable created-record ids.
//
// Thread-safety: the returned function is safe for concurrent use.
func SequentialIDs(prefix string) func() string {
	var (
		mu  sync.Mutex
		seq int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		seq++
		return fmt.Sprintf("%s%03d", prefix, seq)
	}
}
