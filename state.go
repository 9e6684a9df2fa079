package compute

// State is the execution state of a Worker.
//
// Exactly one state is active at a time. Transitions:
//
//	Idle      → Pending    device assigns an operation
//	Pending   → Running    worker picks the operation up
//	Running   → Completed  Execute reports exhaustion
//	Running   → Pausing    device requests a pause
//	Pausing   → Paused     worker reaches a payload boundary
//	Paused    → Running    device resumes
//	*         → Aborted    error, panic or explicit abort
//	Completed → Pending    next operation
//	Aborted   → Idle       Device.Recover
type State uint32

const (
	StateIdle State = iota
	StatePending
	StateRunning
	StatePausing
	StatePaused
	StateAborted
	StateCompleted

	numStates = int(StateCompleted) + 1
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StatePending:
		return "Pending"
	case StateRunning:
		return "Running"
	case StatePausing:
		return "Pausing"
	case StatePaused:
		return "Paused"
	case StateAborted:
		return "Aborted"
	case StateCompleted:
		return "Completed"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether s ends a worker's part in an operation.
func (s State) IsTerminal() bool {
	return s == StateAborted || s == StateCompleted
}

// busy reports whether a worker in state s is taking part in an operation.
func (s State) busy() bool {
	switch s {
	case StatePending, StateRunning, StatePausing, StatePaused:
		return true
	default:
		return false
	}
}

// StateCounts holds how many workers are in each state.
type StateCounts [numStates]int

// Of returns the number of workers in state s.
func (c StateCounts) Of(s State) int {
	if int(s) >= numStates {
		return 0
	}
	return c[s]
}

// CountStates tallies a status snapshot as filled by Device.FillStatuses.
func CountStates(states []State) StateCounts {
	var c StateCounts
	for _, s := range states {
		if int(s) < numStates {
			c[s]++
		}
	}
	return c
}
