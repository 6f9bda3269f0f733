package process

// State represents the lifecycle state of a process
type State string

const (
	StateNew     State = "new"
	StateReady   State = "ready"
	StateRunning State = "running"
	// StateWaiting is the not runnable, not terminated state. Nothing transitions
	// into it yet; the state exists for blocking primitives.
	StateWaiting    State = "waiting"
	StateTerminated State = "terminated"

	// StateBlocked is an alias used by callers that think in blocked/unblocked terms.
	StateBlocked = StateWaiting
)

// IsActive returns true for states that take part in scheduling.
func (s State) IsActive() bool {
	return s == StateReady || s == StateRunning
}

// IsTerminal returns true for the absorbing state.
func (s State) IsTerminal() bool {
	return s == StateTerminated
}

// IsValid returns true for known states.
func (s State) IsValid() bool {
	switch s {
	case StateNew, StateReady, StateRunning, StateWaiting, StateTerminated:
		return true
	}
	return false
}

// CanTransition reports whether a record in state s may move to next.
// Terminated is absorbing, New is entered only at creation and Running only
// from Ready.
func (s State) CanTransition(next State) bool {
	if !next.IsValid() || s.IsTerminal() {
		return false
	}
	switch next {
	case StateNew:
		return s == StateNew
	case StateRunning:
		return s == StateReady || s == StateRunning
	}
	return true
}

func (s State) String() string {
	return string(s)
}
