// Package tracing turns the hook events of a kernel into text logs and
// database records.
package tracing

import (
	"log"

	"github.com/sarchlab/rados/kernel"
	"github.com/sarchlab/rados/process"
	"github.com/sarchlab/rados/scheduler"
	"github.com/sarchlab/rados/sim/hooking"
)

// LogHook writes one line per kernel event into a logger.
type LogHook struct {
	*log.Logger
}

// NewLogHook returns a LogHook that writes into logger.
func NewLogHook(logger *log.Logger) *LogHook {
	h := new(LogHook)
	h.Logger = logger

	return h
}

// Func renders the event at the hook position.
func (h *LogHook) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case kernel.HookPosProcessCreated:
		p := ctx.Item.(process.Process)
		h.Printf("process created: pid=%d name=%s", p.PID, p.Name)
	case process.HookPosStateChange:
		t := ctx.Item.(process.Transition)
		h.Printf("process %d (%s): %s -> %s", t.PID, t.Name, t.From, t.To)
	case kernel.HookPosAllocate:
		h.logAllocation(ctx.Item.(kernel.Allocation))
	case kernel.HookPosFree:
		r := ctx.Item.(kernel.Release)
		h.Printf("free pid=%d: released %v", r.PID, r.Freed)
	case kernel.HookPosRequest:
		r := ctx.Item.(kernel.Request)
		h.Printf("request pid=%d rid=%d (held by pid=%d)",
			r.PID, r.Resource, r.Holder)
	case scheduler.HookPosRunStart:
		e := ctx.Item.(scheduler.RunEvent)
		h.Printf("run start: pid=%d name=%s", e.PID, e.Name)
	case scheduler.HookPosRunEnd:
		e := ctx.Item.(scheduler.RunEvent)
		h.Printf("run end: pid=%d name=%s after %s",
			e.PID, e.Name, e.End.Sub(e.Start))
	}
}

func (h *LogHook) logAllocation(a kernel.Allocation) {
	r := a.Result

	switch r.Outcome {
	case kernel.Granted:
		h.Printf("allocate pid=%d rid=%d size=%d: granted pages %v",
			a.PID, a.Resource, a.Size, r.Pages)
	case kernel.Busy:
		h.Printf("allocate pid=%d rid=%d size=%d: busy (held by pid=%d)",
			a.PID, a.Resource, a.Size, r.Holder)
	case kernel.DeniedDeadlockRisk:
		h.Printf("allocate pid=%d rid=%d size=%d: %s (held by pid=%d, cycle %v)",
			a.PID, a.Resource, a.Size, r.Outcome, r.Holder, r.Cycle)
	default:
		h.Printf("allocate pid=%d rid=%d size=%d: %s",
			a.PID, a.Resource, a.Size, r.Outcome)
	}
}
