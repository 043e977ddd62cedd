package entity

import "time"

// SourceFile is an input extract; immutable once fingerprinted
type SourceFile struct {
	Name        string
	Path        string
	Content     []byte
	Fingerprint string
	Entity      string
	Period      string
}

// RowError is a per-row failure collected during ingestion; it never aborts the job
type RowError struct {
	Row         int    `json:"row"`
	AccountCode string `json:"account_code,omitempty"`
	Message     string `json:"message"`
}

// ColumnProfile holds quality statistics for one column
type ColumnProfile struct {
	Name           string  `json:"name"`
	NullCount      int     `json:"null_count"`
	NullPercentage float64 `json:"null_percentage"`
	DistinctCount  int     `json:"distinct_count"`
	InferredType   string  `json:"inferred_type"`
}

// DataProfile summarizes the quality of a loaded table
type DataProfile struct {
	RowCount     int             `json:"row_count"`
	ColumnCount  int             `json:"column_count"`
	Columns      []ColumnProfile `json:"columns"`
	QualityScore float64         `json:"quality_score"`
	Warnings     []string        `json:"warnings"`
}

// IngestionResult is produced once per ingestion and never mutated after return.
// RecordsProcessed always equals RecordsInserted + RecordsUpdated + RecordsFailed.
type IngestionResult struct {
	JobID            string        `json:"job_id,omitempty"`
	SourceName       string        `json:"source_name"`
	Entity           string        `json:"entity"`
	Period           string        `json:"period"`
	Fingerprint      string        `json:"fingerprint"`
	RecordsProcessed int           `json:"records_processed"`
	RecordsInserted  int           `json:"records_inserted"`
	RecordsUpdated   int           `json:"records_updated"`
	RecordsFailed    int           `json:"records_failed"`
	RowErrors        []RowError    `json:"row_errors"`
	Profile          *DataProfile  `json:"profile,omitempty"`
	Success          bool          `json:"success"`
	DryRun           bool          `json:"dry_run"`
	Skipped          bool          `json:"skipped"`
	Elapsed          time.Duration `json:"elapsed"`
	CreatedAt        time.Time     `json:"created_at"`
}

// Reconciles checks the processed-count invariant
func (r *IngestionResult) Reconciles() bool {
	return r.RecordsProcessed == r.RecordsInserted+r.RecordsUpdated+r.RecordsFailed
}
