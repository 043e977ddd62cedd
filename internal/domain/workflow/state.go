package workflow

// State represents the lifecycle state of an ingestion job
type State string

const (
	StatePending   State = "PENDING"
	StateRunning   State = "RUNNING"
	StateRetrying  State = "RETRYING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
)

// IsTerminal returns true if the state is a terminal state (no further transitions allowed)
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid job state
func (s State) IsValid() bool {
	switch s {
	case StatePending, StateRunning, StateRetrying, StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}
