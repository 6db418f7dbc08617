// Package kernel composes the simulated operating system: the process table,
// the paged memory allocator, the resource graph, the deadlock detector, and
// the scheduler. Every operation passes through a single gate, so callers on
// different goroutines never interleave.
package kernel

import (
	"fmt"

	"github.com/sarchlab/rados/deadlock"
	"github.com/sarchlab/rados/gate"
	"github.com/sarchlab/rados/memory"
	"github.com/sarchlab/rados/process"
	"github.com/sarchlab/rados/resource"
	"github.com/sarchlab/rados/scheduler"
	"github.com/sarchlab/rados/sim/hooking"
)

// Hook positions of the kernel operations. Process state changes are
// reported at process.HookPosStateChange and scheduler runs at
// scheduler.HookPosRunStart and scheduler.HookPosRunEnd.
var (
	HookPosProcessCreated = &hooking.HookPos{Name: "ProcessCreated"}
	HookPosAllocate       = &hooking.HookPos{Name: "Allocate"}
	HookPosFree           = &hooking.HookPos{Name: "Free"}
	HookPosRequest        = &hooking.HookPos{Name: "Request"}
)

// Kernel owns the state of one simulation.
type Kernel struct {
	hooking.HookableBase

	gate      *gate.Gate
	processes *process.Table
	memory    *memory.Allocator
	resources *resource.Graph
	detector  *deadlock.Detector
	scheduler *scheduler.Scheduler
}

// AcceptHook registers the hook with the kernel and with the process table
// and the scheduler. Hooks run while the gate is held, so they must not call
// back into the kernel.
func (k *Kernel) AcceptHook(hook hooking.Hook) {
	k.HookableBase.AcceptHook(hook)
	k.processes.AcceptHook(hook)
	k.scheduler.AcceptHook(hook)
}

// CreateProcess adds a ready process and returns its PID.
func (k *Kernel) CreateProcess(name string) process.PID {
	k.gate.Acquire()
	defer k.gate.Release()

	pid := k.processes.Create(name)
	k.resources.AddProcess(pid)

	p, _ := k.processes.Get(pid)
	k.InvokeHook(hooking.HookCtx{
		Domain: k,
		Pos:    HookPosProcessCreated,
		Item:   p,
	})

	return pid
}

// AllocateMemory gives pid size units of memory bound to the resource. If
// another process holds the resource, pid is recorded as waiting for it and
// becomes blocked; the result is DeniedDeadlockRisk if that wait closes a
// cycle and Busy otherwise. The caller may retry after the holder frees its
// memory.
func (k *Kernel) AllocateMemory(
	pid process.PID,
	size int,
	id resource.ID,
) AllocResult {
	k.gate.Acquire()
	defer k.gate.Release()

	result := k.allocate(pid, size, id)

	k.InvokeHook(hooking.HookCtx{
		Domain: k,
		Pos:    HookPosAllocate,
		Item: Allocation{
			PID:      pid,
			Resource: id,
			Size:     size,
			Result:   result,
		},
	})

	return result
}

func (k *Kernel) allocate(
	pid process.PID,
	size int,
	id resource.ID,
) AllocResult {
	if !k.processes.Exists(pid) {
		return AllocResult{Outcome: DeniedNoSuchPid}
	}

	if holder, held := k.memory.OwnerOf(id); held && holder != pid {
		k.request(pid, id, holder)

		if cycle, found := k.detector.FindCycle(pid, id); found {
			return AllocResult{
				Outcome: DeniedDeadlockRisk,
				Holder:  holder,
				Cycle:   cycle,
			}
		}

		return AllocResult{Outcome: Busy, Holder: holder}
	}

	granted := k.memory.Allocate(pid, size, id)
	switch granted.Outcome {
	case memory.Granted:
		k.resources.CommitHeld(pid, id)
		return AllocResult{Outcome: Granted, Pages: granted.Pages}
	case memory.OutOfMemory:
		k.resources.Release(pid, id, false)
		return AllocResult{Outcome: OutOfMemory}
	default:
		panic(fmt.Sprintf("resource %d is owned by process %d after the "+
			"ownership check", id, granted.Owner))
	}
}

// FreeMemory reclaims all the memory of pid and releases the resources bound
// to it. Processes waiting for those resources become ready but do not
// receive them. Any request pid has made is withdrawn. It returns the
// resources whose memory was reclaimed.
func (k *Kernel) FreeMemory(pid process.PID) []resource.ID {
	k.gate.Acquire()
	defer k.gate.Release()

	freed := k.memory.Free(pid)

	for _, id := range k.resources.Held(pid) {
		k.resources.Release(pid, id, true)
	}

	for _, id := range k.resources.Requested(pid) {
		k.resources.Release(pid, id, false)
	}

	k.InvokeHook(hooking.HookCtx{
		Domain: k,
		Pos:    HookPosFree,
		Item:   Release{PID: pid, Freed: freed},
	})

	return freed
}

// RequestResource records that pid waits for a resource held by holder and
// blocks pid. Resources pid already holds are recorded as requested by the
// holder, which blocks the holder as well.
func (k *Kernel) RequestResource(
	pid process.PID,
	id resource.ID,
	holder process.PID,
) error {
	k.gate.Acquire()
	defer k.gate.Release()

	if !k.processes.Exists(pid) {
		return fmt.Errorf("request resource %d: process %d: %w",
			id, pid, ErrNoSuchProcess)
	}

	k.request(pid, id, holder)

	return nil
}

func (k *Kernel) request(pid process.PID, id resource.ID, holder process.PID) {
	k.resources.Request(pid, id, holder)

	k.InvokeHook(hooking.HookCtx{
		Domain: k,
		Pos:    HookPosRequest,
		Item:   Request{PID: pid, Resource: id, Holder: holder},
	})
}

// DetectDeadlock tells if pid waiting for the resource would close a cycle
// in the wait-for graph. It does not change any state.
func (k *Kernel) DetectDeadlock(pid process.PID, id resource.ID) bool {
	k.gate.Acquire()
	defer k.gate.Release()

	if !k.processes.Exists(pid) {
		return false
	}

	return k.detector.Detect(pid, id)
}

// RunSchedulerCycle runs every ready process for one quantum. The gate is
// held for the whole cycle, so all other operations wait until it ends.
func (k *Kernel) RunSchedulerCycle() []scheduler.RunEvent {
	k.gate.Acquire()
	defer k.gate.Release()

	return k.scheduler.RunCycle()
}

// RunSchedulerCycleAsync runs a scheduling cycle on a new goroutine. The
// returned channel receives the run log once the cycle ends.
func (k *Kernel) RunSchedulerCycleAsync() <-chan []scheduler.RunEvent {
	done := make(chan []scheduler.RunEvent, 1)

	go func() {
		done <- k.RunSchedulerCycle()
	}()

	return done
}
