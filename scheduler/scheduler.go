// Package scheduler runs simulated processes in round-robin order for a fixed
// quantum each.
package scheduler

import (
	"time"

	"github.com/sarchlab/rados/process"
	"github.com/sarchlab/rados/sim/hooking"
)

// Hook positions of a scheduling cycle. The item is a RunEvent. At
// HookPosRunStart, the End field is not set yet.
var (
	HookPosRunStart = &hooking.HookPos{Name: "SchedulerRunStart"}
	HookPosRunEnd   = &hooking.HookPos{Name: "SchedulerRunEnd"}
)

// Clock tells the time and lets the scheduler wait for a quantum.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// WallClock is the real clock.
type WallClock struct{}

// Now returns the current time.
func (WallClock) Now() time.Time {
	return time.Now()
}

// Sleep pauses the calling goroutine.
func (WallClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

// RunEvent records that a process ran for one quantum.
type RunEvent struct {
	PID   process.PID `json:"pid"`
	Name  string      `json:"name"`
	Start time.Time   `json:"start"`
	End   time.Time   `json:"end"`
}

// Scheduler runs every ready process once per cycle. It is cooperative: a
// process runs for its whole quantum and is never preempted.
type Scheduler struct {
	hooking.HookableBase

	processes *process.Table
	clock     Clock
	quantum   time.Duration
}

// New creates a scheduler over the process table.
func New(
	processes *process.Table,
	clock Clock,
	quantum time.Duration,
) *Scheduler {
	return &Scheduler{
		processes: processes,
		clock:     clock,
		quantum:   quantum,
	}
}

// Quantum returns the time a process runs per cycle.
func (s *Scheduler) Quantum() time.Duration {
	return s.quantum
}

// RunCycle visits the processes in table order. Each active process that is
// ready moves to Running, runs for one quantum, and moves back to Ready. The
// cycle returns one event per process that ran.
func (s *Scheduler) RunCycle() []RunEvent {
	var events []RunEvent

	for _, pid := range s.processes.PIDs() {
		p, _ := s.processes.Get(pid)
		if !p.Active || p.State != process.Ready {
			continue
		}

		events = append(events, s.run(p))
	}

	return events
}

func (s *Scheduler) run(p process.Process) RunEvent {
	s.processes.SetState(p.PID, process.Running)

	event := RunEvent{
		PID:   p.PID,
		Name:  p.Name,
		Start: s.clock.Now(),
	}
	s.InvokeHook(hooking.HookCtx{
		Domain: s,
		Pos:    HookPosRunStart,
		Item:   event,
	})

	s.clock.Sleep(s.quantum)

	event.End = s.clock.Now()
	s.processes.SetState(p.PID, process.Ready)

	s.InvokeHook(hooking.HookCtx{
		Domain: s,
		Pos:    HookPosRunEnd,
		Item:   event,
	})

	return event
}
