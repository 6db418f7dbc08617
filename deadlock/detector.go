// Package deadlock searches the wait-for relation between processes for
// cycles.
package deadlock

import (
	"github.com/sarchlab/rados/process"
	"github.com/sarchlab/rados/resource"
)

// WaitGraph is the view of the resource graph that the detector needs.
type WaitGraph interface {
	// Requested returns the resources a process waits for, in request order.
	Requested(pid process.PID) []resource.ID

	// Holders returns the processes holding a resource, in table order.
	Holders(id resource.ID) []process.PID
}

// Detector finds cycles in the wait-for relation. It never modifies the
// graph.
type Detector struct {
	graph WaitGraph
}

// NewDetector creates a detector over the graph.
func NewDetector(graph WaitGraph) *Detector {
	return &Detector{graph: graph}
}

// Detect tells if pid waiting for the resource would close a cycle in the
// wait-for relation that is reachable from pid.
func (d *Detector) Detect(pid process.PID, id resource.ID) bool {
	_, found := d.FindCycle(pid, id)
	return found
}

// A frame is a process on the current search path, together with the
// position of the next holder to visit.
type frame struct {
	pid      process.PID
	requests []resource.ID
	nextReq  int
	holders  []process.PID
	nextHold int
}

// FindCycle runs a depth-first search from pid, treating id as an extra
// request of pid. Resources are visited in request order and their holders in
// table order. It returns the processes on the first cycle found, starting
// from the process where the cycle closes.
func (d *Detector) FindCycle(
	pid process.PID,
	id resource.ID,
) ([]process.PID, bool) {
	visited := make(map[process.PID]bool)
	onStack := make(map[process.PID]bool)

	stack := []*frame{{pid: pid, requests: d.hypotheticalRequests(pid, id)}}
	visited[pid] = true
	onStack[pid] = true

	for len(stack) > 0 {
		top := stack[len(stack)-1]

		next, ok := d.nextHolder(top)
		if !ok {
			onStack[top.pid] = false
			stack = stack[:len(stack)-1]

			continue
		}

		if !visited[next] {
			visited[next] = true
			onStack[next] = true
			stack = append(stack, &frame{
				pid:      next,
				requests: d.graph.Requested(next),
			})

			continue
		}

		if onStack[next] {
			return cycleOf(stack, next), true
		}
	}

	return nil, false
}

func (d *Detector) hypotheticalRequests(
	pid process.PID,
	id resource.ID,
) []resource.ID {
	requests := d.graph.Requested(pid)

	for _, r := range requests {
		if r == id {
			return requests
		}
	}

	withID := make([]resource.ID, 0, len(requests)+1)
	withID = append(withID, requests...)

	return append(withID, id)
}

// nextHolder advances the frame to the next process holding a resource that
// the frame's process requests.
func (d *Detector) nextHolder(f *frame) (process.PID, bool) {
	for {
		if f.nextHold < len(f.holders) {
			holder := f.holders[f.nextHold]
			f.nextHold++

			return holder, true
		}

		if f.nextReq >= len(f.requests) {
			return process.NoPID, false
		}

		f.holders = d.graph.Holders(f.requests[f.nextReq])
		f.nextReq++
		f.nextHold = 0
	}
}

func cycleOf(stack []*frame, closing process.PID) []process.PID {
	start := 0
	for i, f := range stack {
		if f.pid == closing {
			start = i
			break
		}
	}

	cycle := make([]process.PID, 0, len(stack)-start)
	for _, f := range stack[start:] {
		cycle = append(cycle, f.pid)
	}

	return cycle
}
