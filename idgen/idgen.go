// Package idgen generates unique IDs for recorded simulation entries.
package idgen

import (
	"strconv"
	"sync/atomic"

	"github.com/rs/xid"
)

// IDGenerator can generate IDs.
type IDGenerator interface {
	// Generate an ID
	Generate() string
}

// NewSequential returns a generator that produces "1", "2", and so on. The
// IDs are deterministic, which makes recordings comparable across runs.
func NewSequential() IDGenerator {
	return &sequentialIDGenerator{}
}

// NewParallel returns a generator of globally unique IDs. The IDs are not
// deterministic.
func NewParallel() IDGenerator {
	return parallelIDGenerator{}
}

type sequentialIDGenerator struct {
	nextID uint64
}

func (g *sequentialIDGenerator) Generate() string {
	idNumber := atomic.AddUint64(&g.nextID, 1)
	id := strconv.FormatUint(idNumber, 10)

	return id
}

type parallelIDGenerator struct {
}

func (g parallelIDGenerator) Generate() string {
	return xid.New().String()
}
