package workflow

import (
	"context"
	"errors"
	"testing"
)

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		expected bool
	}{
		{StatePending, false},
		{StateRunning, false},
		{StateRetrying, false},
		{StateCompleted, true},
		{StateFailed, true},
		{StateCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.expected {
				t.Errorf("State.IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected bool
	}{
		{"pending", StatePending, true},
		{"cancelled", StateCancelled, true},
		{"lowercase", State("pending"), false},
		{"empty state", State(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.expected {
				t.Errorf("State.IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuilder_ConfigurePanicsOnTerminalState(t *testing.T) {
	builder := NewBuilder()

	defer func() {
		if r := recover(); r == nil {
			t.Error("Configure() should panic on a terminal state")
		}
	}()

	builder.Configure(StateCompleted)
}

func TestBuilder_BuildPanicsOnInvalidInitialState(t *testing.T) {
	builder := NewBuilder()

	defer func() {
		if r := recover(); r == nil {
			t.Error("Build() should panic on invalid initial state")
		}
	}()

	builder.Build(State("INVALID"))
}

func TestBuilder_BuildIsolatesMachines(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StatePending).Permit(TriggerStart, StateRunning)

	machine := builder.Build(StatePending)
	builder.Configure(StatePending).Permit(TriggerCancel, StateCancelled)

	if err := machine.Fire(context.Background(), TriggerCancel); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("configuration added after Build() should not reach the built machine, Fire() error = %v", err)
	}
}

func TestJobMachine_Paths(t *testing.T) {
	tests := []struct {
		name     string
		triggers []Trigger
		want     State
	}{
		{"success", []Trigger{TriggerStart, TriggerSucceed}, StateCompleted},
		{"retry then success", []Trigger{TriggerStart, TriggerRetry, TriggerResume, TriggerSucceed}, StateCompleted},
		{"retries exhausted", []Trigger{TriggerStart, TriggerRetry, TriggerResume, TriggerFail}, StateFailed},
		{"schema failure", []Trigger{TriggerStart, TriggerFail}, StateFailed},
		{"cancel while pending", []Trigger{TriggerCancel}, StateCancelled},
		{"cancel during backoff", []Trigger{TriggerStart, TriggerRetry, TriggerCancel}, StateCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			machine := NewJobMachine(StatePending)
			for _, trigger := range tt.triggers {
				if err := machine.Fire(context.Background(), trigger); err != nil {
					t.Fatalf("Fire(%s) error = %v", trigger, err)
				}
			}
			if machine.State() != tt.want {
				t.Errorf("State() = %v, want %v", machine.State(), tt.want)
			}
		})
	}
}

func TestJobMachine_TerminalStatesAreFinal(t *testing.T) {
	for _, state := range []State{StateCompleted, StateFailed, StateCancelled} {
		t.Run(string(state), func(t *testing.T) {
			machine := NewJobMachine(state)
			for _, trigger := range []Trigger{TriggerStart, TriggerRetry, TriggerResume, TriggerCancel, TriggerFail, TriggerSucceed} {
				err := machine.Fire(context.Background(), trigger)
				if !errors.Is(err, ErrTerminalState) {
					t.Errorf("Fire(%s) error = %v, want ErrTerminalState", trigger, err)
				}
			}
			if machine.State() != state {
				t.Errorf("State() = %v, want %v", machine.State(), state)
			}
		})
	}
}

func TestJobMachine_InvalidTransition(t *testing.T) {
	machine := NewJobMachine(StatePending)

	err := machine.Fire(context.Background(), TriggerSucceed)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Fire() error = %v, want ErrInvalidTransition", err)
	}
	if err := machine.Fire(context.Background(), TriggerResume); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Fire(RESUME) while pending error = %v, want ErrInvalidTransition", err)
	}
}
