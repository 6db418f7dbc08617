package kernel

import (
	"errors"
	"fmt"

	"github.com/sarchlab/rados/process"
	"github.com/sarchlab/rados/resource"
)

// ErrNoSuchProcess is returned when an operation names a process that was
// never created.
var ErrNoSuchProcess = errors.New("no such process")

// Outcome is the result category of a memory allocation.
type Outcome int

// The possible outcomes of AllocateMemory.
const (
	Granted Outcome = iota
	Busy
	OutOfMemory
	DeniedNoSuchPid
	DeniedDeadlockRisk
)

var outcomeNames = [...]string{
	Granted:            "granted",
	Busy:               "busy",
	OutOfMemory:        "out of memory",
	DeniedNoSuchPid:    "denied: no such pid",
	DeniedDeadlockRisk: "denied: deadlock risk",
}

func (o Outcome) String() string {
	if o < Granted || o > DeniedDeadlockRisk {
		return fmt.Sprintf("Outcome(%d)", int(o))
	}

	return outcomeNames[o]
}

// MarshalText renders the outcome as its name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// AllocResult is the result of AllocateMemory. Holder is set for Busy and
// DeniedDeadlockRisk. Pages is set for Granted. Cycle lists the processes on
// the wait-for cycle for DeniedDeadlockRisk.
type AllocResult struct {
	Outcome Outcome       `json:"outcome"`
	Holder  process.PID   `json:"holder,omitempty"`
	Pages   []int         `json:"pages,omitempty"`
	Cycle   []process.PID `json:"cycle,omitempty"`
}

// Allocation is the item of HookPosAllocate.
type Allocation struct {
	PID      process.PID
	Resource resource.ID
	Size     int
	Result   AllocResult
}

// Release is the item of HookPosFree.
type Release struct {
	PID   process.PID
	Freed []resource.ID
}

// Request is the item of HookPosRequest.
type Request struct {
	PID      process.PID
	Resource resource.ID
	Holder   process.PID
}
