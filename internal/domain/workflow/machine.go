package workflow

import "context"

// StateMachine tracks the current state of one job and validates its transitions.
// A machine is owned by the worker driving the job and is not safe for concurrent use.
type StateMachine interface {
	// State returns the current state
	State() State

	// Fire attempts to execute the trigger, transitioning to the new state if allowed
	Fire(ctx context.Context, trigger Trigger) error
}
