// Package resource tracks which process holds and which process requests
// each resource, and derives the wait-for relation between processes.
package resource

import (
	"fmt"

	"github.com/sarchlab/rados/process"
)

// ID identifies a resource.
type ID int

// Row lists the resources a process holds and requests.
type Row struct {
	PID       process.PID `json:"pid"`
	Held      []ID        `json:"held"`
	Requested []ID        `json:"requested"`
}

// Edge is a derived wait-for edge: From requests Resource, which To holds.
type Edge struct {
	From     process.PID `json:"from"`
	To       process.PID `json:"to"`
	Resource ID          `json:"resource"`
}

type row struct {
	held      *idSet
	requested *idSet
}

// Graph keeps the held and requested resources of every process. Processes
// enter and leave the Blocked state through the Graph only. It is not safe
// for concurrent use.
type Graph struct {
	processes *process.Table
	rows      map[process.PID]*row
	heldBy    map[ID]process.PID
}

// NewGraph creates a graph over the given process table.
func NewGraph(processes *process.Table) *Graph {
	return &Graph{
		processes: processes,
		rows:      make(map[process.PID]*row),
		heldBy:    make(map[ID]process.PID),
	}
}

// AddProcess creates the empty held and requested sets of a new process.
func (g *Graph) AddProcess(pid process.PID) {
	g.row(pid)
}

func (g *Graph) row(pid process.PID) *row {
	r, ok := g.rows[pid]
	if !ok {
		r = &row{held: newIDSet(), requested: newIDSet()}
		g.rows[pid] = r
	}

	return r
}

// CommitHeld records that pid now holds the resource. The request for it, if
// any, is satisfied and a blocked process becomes ready.
func (g *Graph) CommitHeld(pid process.PID, id ID) {
	if !g.processes.Exists(pid) {
		return
	}

	g.mustNotBeHeldByOthers(pid, id)

	r := g.row(pid)
	r.held.add(id)
	r.requested.remove(id)
	g.heldBy[id] = pid

	g.unblock(pid)
}

// Release drops the resource from pid. If pid held it, the processes waiting
// for it are notified and pid itself becomes ready if it was blocked. Any
// request pid made for the resource is withdrawn.
func (g *Graph) Release(pid process.PID, id ID, wasHeld bool) {
	if !g.processes.Exists(pid) {
		return
	}

	r := g.row(pid)

	if wasHeld {
		if r.held.remove(id) {
			delete(g.heldBy, id)
		}

		g.NotifyWaiters(id)
	}

	r.requested.remove(id)

	if wasHeld {
		g.unblock(pid)
	}
}

// Request records that pid waits for a resource that holder owns, and blocks
// pid. Every resource pid already holds is also recorded as requested by the
// holder, which blocks the holder too.
func (g *Graph) Request(pid process.PID, id ID, holder process.PID) {
	if !g.processes.Exists(pid) {
		return
	}

	r := g.row(pid)
	if r.requested.add(id) {
		g.processes.SetState(pid, process.Blocked)
	}

	if !g.processes.Exists(holder) {
		return
	}

	holderRow := g.row(holder)
	for _, held := range r.held.list() {
		if holderRow.requested.add(held) {
			g.processes.SetState(holder, process.Blocked)
		}
	}
}

// NotifyWaiters makes every blocked process that requests the resource ready,
// so that it can retry. The resource is not granted to anyone.
func (g *Graph) NotifyWaiters(id ID) {
	for _, pid := range g.processes.PIDs() {
		r, ok := g.rows[pid]
		if !ok || !r.requested.contains(id) {
			continue
		}

		g.unblock(pid)
	}
}

func (g *Graph) unblock(pid process.PID) {
	if g.processes.State(pid) == process.Blocked {
		g.processes.SetState(pid, process.Ready)
	}
}

// Processes returns all the processes in table order.
func (g *Graph) Processes() []process.PID {
	return g.processes.PIDs()
}

// Held returns the resources pid holds, in the order they were acquired.
func (g *Graph) Held(pid process.PID) []ID {
	r, ok := g.rows[pid]
	if !ok {
		return nil
	}

	return r.held.list()
}

// Requested returns the resources pid waits for, in the order requested.
func (g *Graph) Requested(pid process.PID) []ID {
	r, ok := g.rows[pid]
	if !ok {
		return nil
	}

	return r.requested.list()
}

// Holders returns the processes holding the resource. A resource is held by
// at most one process at a time.
func (g *Graph) Holders(id ID) []process.PID {
	pid, ok := g.heldBy[id]
	if !ok {
		return nil
	}

	return []process.PID{pid}
}

// Rows returns the held and requested resources of every process.
func (g *Graph) Rows() []Row {
	pids := g.processes.PIDs()
	rows := make([]Row, 0, len(pids))

	for _, pid := range pids {
		rows = append(rows, Row{
			PID:       pid,
			Held:      g.Held(pid),
			Requested: g.Requested(pid),
		})
	}

	return rows
}

// Edges derives the wait-for edges, ordered by the requesting process, then
// by request order, then by the holding process.
func (g *Graph) Edges() []Edge {
	var edges []Edge

	for _, pid := range g.processes.PIDs() {
		for _, id := range g.Requested(pid) {
			for _, holder := range g.Holders(id) {
				edges = append(edges, Edge{From: pid, To: holder, Resource: id})
			}
		}
	}

	return edges
}

func (g *Graph) mustNotBeHeldByOthers(pid process.PID, id ID) {
	other, ok := g.heldBy[id]
	if ok && other != pid {
		panic(fmt.Sprintf("resource %d is held by process %d, "+
			"cannot be held by process %d", id, other, pid))
	}
}
