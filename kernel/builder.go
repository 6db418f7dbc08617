package kernel

import (
	"fmt"
	"time"

	"github.com/sarchlab/rados/deadlock"
	"github.com/sarchlab/rados/gate"
	"github.com/sarchlab/rados/memory"
	"github.com/sarchlab/rados/process"
	"github.com/sarchlab/rados/resource"
	"github.com/sarchlab/rados/scheduler"
)

// Builder can build kernels.
type Builder struct {
	memorySize int
	pageSize   int
	quantum    time.Duration
	clock      scheduler.Clock
}

// MakeBuilder creates a builder with 100 units of memory in pages of 10
// units and a 5 second quantum.
func MakeBuilder() Builder {
	return Builder{
		memorySize: 100,
		pageSize:   10,
		quantum:    5 * time.Second,
		clock:      scheduler.WallClock{},
	}
}

// WithMemorySize sets the number of memory units.
func (b Builder) WithMemorySize(units int) Builder {
	b.memorySize = units
	return b
}

// WithPageSize sets the number of units per page.
func (b Builder) WithPageSize(units int) Builder {
	b.pageSize = units
	return b
}

// WithQuantum sets how long a process runs per scheduling cycle.
func (b Builder) WithQuantum(quantum time.Duration) Builder {
	b.quantum = quantum
	return b
}

// WithClock sets the clock the scheduler waits on.
func (b Builder) WithClock(clock scheduler.Clock) Builder {
	b.clock = clock
	return b
}

// Build creates a kernel with no processes and all memory free.
func (b Builder) Build() (*Kernel, error) {
	if b.quantum < 0 {
		return nil, fmt.Errorf("negative quantum %s", b.quantum)
	}

	allocator, err := memory.NewAllocator(b.memorySize, b.pageSize)
	if err != nil {
		return nil, err
	}

	processes := process.NewTable()
	resources := resource.NewGraph(processes)

	k := &Kernel{
		gate:      gate.New(),
		processes: processes,
		memory:    allocator,
		resources: resources,
		detector:  deadlock.NewDetector(resources),
		scheduler: scheduler.New(processes, b.clock, b.quantum),
	}

	return k, nil
}
