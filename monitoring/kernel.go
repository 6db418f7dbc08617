package monitoring

import (
	"github.com/sarchlab/rados/kernel"
	"github.com/sarchlab/rados/memory"
	"github.com/sarchlab/rados/process"
	"github.com/sarchlab/rados/resource"
	"github.com/sarchlab/rados/scheduler"
	"github.com/sarchlab/rados/sim/hooking"
)

// Kernel is the part of a kernel.Kernel that the monitor serves.
type Kernel interface {
	hooking.Hookable

	CreateProcess(name string) process.PID
	AllocateMemory(pid process.PID, size int, id resource.ID) kernel.AllocResult
	FreeMemory(pid process.PID) []resource.ID
	RequestResource(pid process.PID, id resource.ID, holder process.PID) error
	DetectDeadlock(pid process.PID, id resource.ID) bool
	RunSchedulerCycleAsync() <-chan []scheduler.RunEvent

	Geometry() kernel.Geometry
	ListProcesses() []process.Process
	Process(pid process.PID) (process.Process, bool)
	MemorySnapshot() []memory.PageInfo
	Memory() kernel.MemoryView
	WaitGraph() kernel.WaitGraphView
	OwnerOf(id resource.ID) (process.PID, bool)
	State() kernel.State
}

var _ Kernel = (*kernel.Kernel)(nil)
