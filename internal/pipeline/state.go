package pipeline

import "time"

// State is a run's position in the sync state machine.
type State string

// Run states.
const (
	StateIdle           State = "IDLE"
	StateFetchingSource State = "FETCHING_SOURCE"
	StateFetchingTarget State = "FETCHING_TARGET"
	StateDiffing        State = "DIFFING"
	StateApplying       State = "APPLYING"
	StateComplete       State = "COMPLETE"
	StateAborted        State = "ABORTED"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateAborted
}

// transitions lists the allowed moves. ABORTED is reachable from every
// working state.
var transitions = map[State][]State{
	StateIdle:           {StateFetchingSource},
	StateFetchingSource: {StateFetchingTarget, StateAborted},
	StateFetchingTarget: {StateDiffing, StateAborted},
	StateDiffing:        {StateApplying, StateComplete, StateAborted},
	StateApplying:       {StateComplete, StateAborted},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition is one recorded state change.
type Transition struct {
	From State
	To   State
	At   time.Time
}
