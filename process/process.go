// Package process keeps the table of simulated processes.
package process

// PID identifies a process. PIDs start at 1 and are never reused.
type PID int

// NoPID is never assigned to a process.
const NoPID PID = 0

// Process is a snapshot of a process table entry.
type Process struct {
	PID    PID    `json:"pid"`
	Name   string `json:"name"`
	State  State  `json:"state"`
	Active bool   `json:"active"`
}

// Transition describes a state change of a process. It is the item of
// HookPosStateChange.
type Transition struct {
	PID  PID
	Name string
	From State
	To   State
}
