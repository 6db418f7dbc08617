package kernel

import (
	"context"
	"time"

	"github.com/sarchlab/rados/memory"
	"github.com/sarchlab/rados/process"
	"github.com/sarchlab/rados/resource"
)

// Geometry describes how the memory is divided into pages.
type Geometry struct {
	Size     int `json:"size"`
	PageSize int `json:"page_size"`
	NumPages int `json:"num_pages"`
}

// Binding lists the pages a resource occupies.
type Binding struct {
	Resource resource.ID `json:"rid"`
	Owner    process.PID `json:"owner"`
	Pages    []int       `json:"pages"`
}

// MemoryView is the memory at one instant. Problem is empty unless the
// memory breaks an invariant.
type MemoryView struct {
	Pages     []memory.PageInfo `json:"pages"`
	Units     []process.PID     `json:"units"`
	FreePages int               `json:"free_pages"`
	Bindings  []Binding         `json:"bindings"`
	Problem   string            `json:"problem,omitempty"`
}

// WaitGraphView is the resource graph at one instant.
type WaitGraphView struct {
	Rows  []resource.Row  `json:"rows"`
	Edges []resource.Edge `json:"edges"`
}

// State is every view of the kernel taken under one hold of the gate, so the
// views agree with each other.
type State struct {
	Geometry  Geometry          `json:"geometry"`
	Quantum   time.Duration     `json:"quantum"`
	Processes []process.Process `json:"processes"`
	Memory    MemoryView        `json:"memory"`
	WaitGraph WaitGraphView     `json:"wait_graph"`
}

// Geometry returns the memory layout. It never changes.
func (k *Kernel) Geometry() Geometry {
	return Geometry{
		Size:     k.memory.Size(),
		PageSize: k.memory.PageSize(),
		NumPages: k.memory.NumPages(),
	}
}

// ListProcesses returns all processes in creation order.
func (k *Kernel) ListProcesses() (list []process.Process) {
	k.gate.Do(func() { list = k.processes.List() })
	return list
}

// Process returns a snapshot of one process.
func (k *Kernel) Process(pid process.PID) (p process.Process, found bool) {
	k.gate.Do(func() { p, found = k.processes.Get(pid) })
	return p, found
}

// MemorySnapshot returns the page table.
func (k *Kernel) MemorySnapshot() (pages []memory.PageInfo) {
	k.gate.Do(func() { pages = k.memory.Snapshot() })
	return pages
}

// Memory returns the page table, the unit map, and the resource bindings, and
// checks the memory invariants.
func (k *Kernel) Memory() (v MemoryView) {
	k.gate.Do(func() { v = k.memoryView() })
	return v
}

func (k *Kernel) memoryView() MemoryView {
	v := MemoryView{
		Pages:     k.memory.Snapshot(),
		Units:     k.memory.Units(),
		FreePages: k.memory.FreePages(),
	}

	for _, id := range k.memory.Resources() {
		owner, _ := k.memory.OwnerOf(id)
		v.Bindings = append(v.Bindings, Binding{
			Resource: id,
			Owner:    owner,
			Pages:    k.memory.PagesOf(id),
		})
	}

	if err := k.memory.Validate(); err != nil {
		v.Problem = err.Error()
	}

	return v
}

// WaitGraph returns the held and requested resources of every process and the
// wait-for edges derived from them.
func (k *Kernel) WaitGraph() (v WaitGraphView) {
	k.gate.Do(func() { v = k.waitGraphView() })
	return v
}

func (k *Kernel) waitGraphView() WaitGraphView {
	return WaitGraphView{
		Rows:  k.resources.Rows(),
		Edges: k.resources.Edges(),
	}
}

// State returns every view of the kernel at once.
func (k *Kernel) State() (s State) {
	k.gate.Do(func() {
		s = State{
			Geometry:  k.Geometry(),
			Quantum:   k.scheduler.Quantum(),
			Processes: k.processes.List(),
			Memory:    k.memoryView(),
			WaitGraph: k.waitGraphView(),
		}
	})

	return s
}

// OwnerOf returns the process whose memory is bound to the resource.
func (k *Kernel) OwnerOf(id resource.ID) (owner process.PID, held bool) {
	k.gate.Do(func() { owner, held = k.memory.OwnerOf(id) })
	return owner, held
}

// Halt waits for the running operation to end and then keeps the gate, so the
// state no longer changes and every later operation blocks. It gives up when
// ctx ends first.
func (k *Kernel) Halt(ctx context.Context) error {
	return k.gate.AcquireContext(ctx)
}
