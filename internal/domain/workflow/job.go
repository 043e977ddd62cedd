package workflow

import "sync"

var (
	jobBuilderOnce sync.Once
	jobBuilder     StateMachineBuilder
)

func newJobBuilder() StateMachineBuilder {
	b := NewBuilder()

	b.Configure(StatePending).
		Permit(TriggerStart, StateRunning).
		Permit(TriggerCancel, StateCancelled)

	b.Configure(StateRunning).
		Permit(TriggerSucceed, StateCompleted).
		Permit(TriggerRetry, StateRetrying).
		Permit(TriggerFail, StateFailed).
		Permit(TriggerCancel, StateCancelled)

	b.Configure(StateRetrying).
		Permit(TriggerResume, StateRunning).
		Permit(TriggerCancel, StateCancelled).
		Permit(TriggerFail, StateFailed)

	return b
}

// NewJobMachine returns the ingestion job lifecycle:
//
//	PENDING -> RUNNING -> COMPLETED
//	                   -> RETRYING -> RUNNING
//	                   -> FAILED
//	                   -> CANCELLED
//
// PENDING and RETRYING may also be cancelled directly. The transition table is built
// on first use, so the function is safe to call from package initializers.
func NewJobMachine(initial State) StateMachine {
	jobBuilderOnce.Do(func() { jobBuilder = newJobBuilder() })
	return jobBuilder.Build(initial)
}
