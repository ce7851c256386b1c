package pipeline

// State is a pipeline run state.
type State string

const (
	StateFetching    State = "FETCHING"
	StateNormalizing State = "NORMALIZING"
	StateUpserting   State = "UPSERTING"
	StateValidating  State = "VALIDATING"
	StateDone        State = "DONE"
	StateAborted     State = "ABORTED"
)

// IsTerminal returns true if no further transitions are possible.
func (s State) IsTerminal() bool {
	switch s {
	case StateDone, StateAborted:
		return true
	default:
		return false
	}
}

// transitions lists the allowed next states. Any non-terminal state may abort.
var transitions = map[State][]State{
	"":               {StateFetching},
	StateFetching:    {StateNormalizing, StateDone},
	StateNormalizing: {StateUpserting},
	StateUpserting:   {StateValidating, StateDone},
	StateValidating:  {StateDone},
}

// CanTransition reports whether a run may move from s to next.
func (s State) CanTransition(next State) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StateAborted {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
