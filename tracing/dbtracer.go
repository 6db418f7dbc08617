package tracing

import (
	"strconv"
	"strings"
	"time"

	"github.com/sarchlab/rados/datarecording"
	"github.com/sarchlab/rados/idgen"
	"github.com/sarchlab/rados/kernel"
	"github.com/sarchlab/rados/process"
	"github.com/sarchlab/rados/scheduler"
	"github.com/sarchlab/rados/sim/hooking"
	"github.com/tebeka/atexit"
)

// Tables written by the DBTracer.
const (
	TableProcesses   = "processes"
	TableTransitions = "process_transitions"
	TableAllocations = "allocations"
	TableFrees       = "frees"
	TableRequests    = "requests"
	TableRuns        = "runs"
)

// TimeTeller tells the time at which an event is recorded.
type TimeTeller interface {
	Now() time.Time
}

// ProcessEntry is a row of the processes table.
type ProcessEntry struct {
	ID   string `json:"id"`
	Time int64  `json:"time"`
	PID  int    `json:"pid"`
	Name string `json:"name"`
}

// TransitionEntry is a row of the process_transitions table.
type TransitionEntry struct {
	ID        string `json:"id"`
	Time      int64  `json:"time"`
	PID       int    `json:"pid"`
	Name      string `json:"name"`
	FromState string `json:"from"`
	ToState   string `json:"to"`
}

// AllocationEntry is a row of the allocations table. Pages and Cycle are
// comma-separated lists.
type AllocationEntry struct {
	ID       string `json:"id"`
	Time     int64  `json:"time"`
	PID      int    `json:"pid"`
	Resource int    `json:"resource"`
	Size     int    `json:"size"`
	Outcome  string `json:"outcome"`
	Holder   int    `json:"holder"`
	Pages    string `json:"pages"`
	Cycle    string `json:"cycle"`
}

// FreeEntry is a row of the frees table.
type FreeEntry struct {
	ID    string `json:"id"`
	Time  int64  `json:"time"`
	PID   int    `json:"pid"`
	Freed string `json:"freed"`
}

// RequestEntry is a row of the requests table.
type RequestEntry struct {
	ID       string `json:"id"`
	Time     int64  `json:"time"`
	PID      int    `json:"pid"`
	Resource int    `json:"resource"`
	Holder   int    `json:"holder"`
}

// RunEntry is a row of the runs table. Times are Unix nanoseconds.
type RunEntry struct {
	ID        string `json:"id"`
	PID       int    `json:"pid"`
	Name      string `json:"name"`
	StartTime int64  `json:"start"`
	EndTime   int64  `json:"end"`
}

// DBTracer stores kernel events into a DataRecorder.
type DBTracer struct {
	timeTeller TimeTeller
	recorder   datarecording.DataRecorder
	idGen      idgen.IDGenerator
}

// NewDBTracer creates the tables of the tracer in the recorder.
func NewDBTracer(
	timeTeller TimeTeller,
	recorder datarecording.DataRecorder,
) *DBTracer {
	t := &DBTracer{
		timeTeller: timeTeller,
		recorder:   recorder,
		idGen:      idgen.NewSequential(),
	}

	recorder.CreateTable(TableProcesses, ProcessEntry{})
	recorder.CreateTable(TableTransitions, TransitionEntry{})
	recorder.CreateTable(TableAllocations, AllocationEntry{})
	recorder.CreateTable(TableFrees, FreeEntry{})
	recorder.CreateTable(TableRequests, RequestEntry{})
	recorder.CreateTable(TableRuns, RunEntry{})

	atexit.Register(func() { t.Terminate() })

	return t
}

// Func records the event at the hook position.
func (t *DBTracer) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case kernel.HookPosProcessCreated:
		t.recordProcess(ctx.Item.(process.Process))
	case process.HookPosStateChange:
		t.recordTransition(ctx.Item.(process.Transition))
	case kernel.HookPosAllocate:
		t.recordAllocation(ctx.Item.(kernel.Allocation))
	case kernel.HookPosFree:
		t.recordFree(ctx.Item.(kernel.Release))
	case kernel.HookPosRequest:
		t.recordRequest(ctx.Item.(kernel.Request))
	case scheduler.HookPosRunEnd:
		t.recordRun(ctx.Item.(scheduler.RunEvent))
	}
}

// Terminate flushes the buffered entries.
func (t *DBTracer) Terminate() {
	t.recorder.Flush()
}

func (t *DBTracer) now() int64 {
	return t.timeTeller.Now().UnixNano()
}

func (t *DBTracer) recordProcess(p process.Process) {
	t.recorder.InsertData(TableProcesses, ProcessEntry{
		ID:   t.idGen.Generate(),
		Time: t.now(),
		PID:  int(p.PID),
		Name: p.Name,
	})
}

func (t *DBTracer) recordTransition(tr process.Transition) {
	t.recorder.InsertData(TableTransitions, TransitionEntry{
		ID:        t.idGen.Generate(),
		Time:      t.now(),
		PID:       int(tr.PID),
		Name:      tr.Name,
		FromState: tr.From.String(),
		ToState:   tr.To.String(),
	})
}

func (t *DBTracer) recordAllocation(a kernel.Allocation) {
	t.recorder.InsertData(TableAllocations, AllocationEntry{
		ID:       t.idGen.Generate(),
		Time:     t.now(),
		PID:      int(a.PID),
		Resource: int(a.Resource),
		Size:     a.Size,
		Outcome:  a.Result.Outcome.String(),
		Holder:   int(a.Result.Holder),
		Pages:    joinInts(a.Result.Pages),
		Cycle:    joinInts(a.Result.Cycle),
	})
}

func (t *DBTracer) recordFree(r kernel.Release) {
	t.recorder.InsertData(TableFrees, FreeEntry{
		ID:    t.idGen.Generate(),
		Time:  t.now(),
		PID:   int(r.PID),
		Freed: joinInts(r.Freed),
	})
}

func (t *DBTracer) recordRequest(r kernel.Request) {
	t.recorder.InsertData(TableRequests, RequestEntry{
		ID:       t.idGen.Generate(),
		Time:     t.now(),
		PID:      int(r.PID),
		Resource: int(r.Resource),
		Holder:   int(r.Holder),
	})
}

func (t *DBTracer) recordRun(e scheduler.RunEvent) {
	t.recorder.InsertData(TableRuns, RunEntry{
		ID:        t.idGen.Generate(),
		PID:       int(e.PID),
		Name:      e.Name,
		StartTime: e.Start.UnixNano(),
		EndTime:   e.End.UnixNano(),
	})
}

func joinInts[T ~int](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(int(v))
	}

	return strings.Join(parts, ",")
}
