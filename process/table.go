package process

import (
	"fmt"

	"github.com/sarchlab/rados/sim/hooking"
)

// HookPosStateChange is triggered after a process changes its state.
var HookPosStateChange = &hooking.HookPos{Name: "ProcessStateChange"}

// Table owns all the simulated processes in creation order. It is not safe
// for concurrent use; the kernel serializes access to it.
type Table struct {
	hooking.HookableBase

	processes []Process
}

// NewTable creates an empty process table.
func NewTable() *Table {
	return &Table{}
}

// Create adds a Ready process and returns its PID.
func (t *Table) Create(name string) PID {
	pid := PID(len(t.processes) + 1)

	t.processes = append(t.processes, Process{
		PID:    pid,
		Name:   name,
		State:  Ready,
		Active: true,
	})

	return pid
}

// Exists tells if the process has been created.
func (t *Table) Exists(pid PID) bool {
	return pid > NoPID && int(pid) <= len(t.processes)
}

// Get returns a snapshot of the process. PIDs are dense, so the process with
// PID n is at index n-1.
func (t *Table) Get(pid PID) (Process, bool) {
	if !t.Exists(pid) {
		return Process{}, false
	}

	return t.processes[pid-1], true
}

// State returns the state of an existing process.
func (t *Table) State(pid PID) State {
	t.mustExist(pid)

	return t.processes[pid-1].State
}

// List returns snapshots of all processes in creation order.
func (t *Table) List() []Process {
	list := make([]Process, len(t.processes))
	copy(list, t.processes)

	return list
}

// PIDs returns all the PIDs in creation order.
func (t *Table) PIDs() []PID {
	pids := make([]PID, len(t.processes))
	for i, p := range t.processes {
		pids[i] = p.PID
	}

	return pids
}

// SetState moves a process to a new state. Illegal transitions are
// programming errors and cause a panic.
func (t *Table) SetState(pid PID, to State) {
	t.mustExist(pid)

	p := &t.processes[pid-1]
	from := p.State

	if !from.CanTransitionTo(to) {
		panic(fmt.Sprintf("process %d cannot transition from %s to %s",
			pid, from, to))
	}

	if from == to {
		return
	}

	p.State = to

	t.InvokeHook(hooking.HookCtx{
		Domain: t,
		Pos:    HookPosStateChange,
		Item: Transition{
			PID:  pid,
			Name: p.Name,
			From: from,
			To:   to,
		},
	})
}

func (t *Table) mustExist(pid PID) {
	if !t.Exists(pid) {
		panic(fmt.Sprintf("process %d does not exist", pid))
	}
}
