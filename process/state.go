package process

import "fmt"

// State is the lifecycle state of a simulated process.
type State int

// The states a process can be in. A process starts as Ready.
const (
	Ready State = iota
	Running
	Blocked
)

var stateNames = [...]string{
	Ready:   "READY",
	Running: "RUNNING",
	Blocked: "BLOCKED",
}

func (s State) String() string {
	if s < Ready || s > Blocked {
		return fmt.Sprintf("State(%d)", int(s))
	}

	return stateNames[s]
}

// MarshalText renders the state as its upper-case name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// The scheduler moves processes between Ready and Running. The resource graph
// moves them between Ready and Blocked. Staying in the same state is always
// allowed and is not reported as a transition.
var legalTransitions = map[State][]State{
	Ready:   {Running, Blocked},
	Running: {Ready},
	Blocked: {Ready},
}

// CanTransitionTo tells if a process in state s may move to state to.
func (s State) CanTransitionTo(to State) bool {
	if s == to {
		return true
	}

	for _, next := range legalTransitions[s] {
		if next == to {
			return true
		}
	}

	return false
}
