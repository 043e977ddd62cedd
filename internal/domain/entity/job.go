package entity

import (
	"time"

	"github.com/garyjia/closeflow/internal/domain/workflow"
)

// IngestionJob is one (file, entity, period) unit driven by the batch orchestrator.
// Status only changes through the job state machine.
type IngestionJob struct {
	JobID       string         `json:"job_id"`
	SourceName  string         `json:"source_name"`
	SourcePath  string         `json:"source_path,omitempty"`
	Entity      string         `json:"entity"`
	Period      string         `json:"period"`
	Status      workflow.State `json:"status"`
	RetryCount  int            `json:"retry_count"`
	MaxRetries  int            `json:"max_retries"`
	Force       bool           `json:"force"`
	LastError   string         `json:"last_error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// JobOutcome is the terminal view of a job returned in a batch summary
type JobOutcome struct {
	Job    IngestionJob     `json:"job"`
	Result *IngestionResult `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// BatchSummary aggregates the terminal states of a batch
type BatchSummary struct {
	Outcomes      map[string]*JobOutcome `json:"outcomes"`
	JobOrder      []string               `json:"job_order"`
	Completed     int                    `json:"completed"`
	Failed        int                    `json:"failed"`
	Cancelled     int                    `json:"cancelled"`
	TotalInserted int                    `json:"total_inserted"`
	TotalUpdated  int                    `json:"total_updated"`
	TotalFailed   int                    `json:"total_failed_rows"`
	Elapsed       time.Duration          `json:"elapsed"`
}

// AllCompleted reports whether every job in the batch completed
func (s *BatchSummary) AllCompleted() bool {
	return s.Failed == 0 && s.Cancelled == 0
}
