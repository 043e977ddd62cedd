package event

// Type identifies the type of audit event
type Type string

const (
	TypeIngestionStarted        Type = "ingestion.started"
	TypeIngestionFingerprinted  Type = "ingestion.fingerprinted"
	TypeIngestionLoaded         Type = "ingestion.loaded"
	TypeIngestionProfiled       Type = "ingestion.profiled"
	TypeIngestionMapped         Type = "ingestion.mapped"
	TypeIngestionSchemaRejected Type = "ingestion.schema_rejected"
	TypeIngestionCompleted      Type = "ingestion.completed"
	TypeJobStatusChanged        Type = "job.status_changed"
	TypeValidationCompleted     Type = "validation.completed"
	TypeRemediationRequested    Type = "remediation.requested"
	TypeAssignmentCreated       Type = "assignment.created"
	TypeAssignmentSkipped       Type = "assignment.skipped"
	TypeAssignmentGap           Type = "assignment.gap"
)

var validTypes = map[Type]bool{
	TypeIngestionStarted:        true,
	TypeIngestionFingerprinted:  true,
	TypeIngestionLoaded:         true,
	TypeIngestionProfiled:       true,
	TypeIngestionMapped:         true,
	TypeIngestionSchemaRejected: true,
	TypeIngestionCompleted:      true,
	TypeJobStatusChanged:        true,
	TypeValidationCompleted:     true,
	TypeRemediationRequested:    true,
	TypeAssignmentCreated:       true,
	TypeAssignmentSkipped:       true,
	TypeAssignmentGap:           true,
}

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	return validTypes[t]
}

// AllTypes returns every defined event type in a stable order
func AllTypes() []Type {
	return []Type{
		TypeIngestionStarted,
		TypeIngestionFingerprinted,
		TypeIngestionLoaded,
		TypeIngestionProfiled,
		TypeIngestionMapped,
		TypeIngestionSchemaRejected,
		TypeIngestionCompleted,
		TypeJobStatusChanged,
		TypeValidationCompleted,
		TypeRemediationRequested,
		TypeAssignmentCreated,
		TypeAssignmentSkipped,
		TypeAssignmentGap,
	}
}
