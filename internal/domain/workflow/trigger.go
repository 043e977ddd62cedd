package workflow

// Trigger represents an event that can cause a job state transition
type Trigger string

const (
	TriggerStart   Trigger = "START"
	TriggerSucceed Trigger = "SUCCEED"
	TriggerRetry   Trigger = "RETRY"
	TriggerResume  Trigger = "RESUME"
	TriggerFail    Trigger = "FAIL"
	TriggerCancel  Trigger = "CANCEL"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
