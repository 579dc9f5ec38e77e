package orchestrator

import "fmt"

// State is the run phase of an Orchestrator.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateTransforming
	StateDone
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:         "Idle",
	StateLoading:      "Loading",
	StateTransforming: "Transforming",
	StateDone:         "Done",
	StateFailed:       "Failed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// IsFinal is true for Done and Failed.
func (s State) IsFinal() bool {
	return s == StateDone || s == StateFailed
}

// transitions lists the states reachable from each state.
// Idle may go straight to Transforming and Loading straight to Done when a step is skipped.
var transitions = map[State][]State{
	StateIdle:         {StateLoading, StateTransforming, StateFailed},
	StateLoading:      {StateTransforming, StateDone, StateFailed},
	StateTransforming: {StateDone, StateFailed},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
