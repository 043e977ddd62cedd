package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/closeflow/internal/application/port"
	"github.com/garyjia/closeflow/internal/domain/entity"
	"github.com/garyjia/closeflow/internal/domain/workflow"
	"github.com/garyjia/closeflow/internal/infrastructure/persistence/sqlite"
)

// ErrNotFound is returned when a lookup by id finds nothing
var ErrNotFound = errors.New("not found")

// JobRepository implements port.JobRepository
type JobRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *sql.DB, logger *zap.Logger) port.JobRepository {
	return &JobRepository{db: db, logger: logger}
}

// Create inserts a job row
func (r *JobRepository) Create(ctx context.Context, job *entity.IngestionJob) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO ingestion_jobs (
			job_id, source_name, source_path, entity, period, status, retry_count,
			max_retries, force, last_error, created_at, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		job.JobID, job.SourceName, job.SourcePath, job.Entity, job.Period, string(job.Status),
		job.RetryCount, job.MaxRetries, job.Force, job.LastError, job.CreatedAt,
		nullTime(job.StartedAt), nullTime(job.CompletedAt),
	)
	if err != nil {
		r.logger.Error("Failed to create job", zap.String("job_id", job.JobID), zap.Error(err))
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// Update persists the mutable lifecycle fields of a job
func (r *JobRepository) Update(ctx context.Context, job *entity.IngestionJob) error {
	query := `
		UPDATE ingestion_jobs SET
			status = ?, retry_count = ?, last_error = ?, started_at = ?, completed_at = ?
		WHERE job_id = ?
	`
	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		string(job.Status), job.RetryCount, job.LastError,
		nullTime(job.StartedAt), nullTime(job.CompletedAt), job.JobID,
	)
	if err != nil {
		r.logger.Error("Failed to update job", zap.String("job_id", job.JobID), zap.Error(err))
		return fmt.Errorf("failed to update job: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("job %s: %w", job.JobID, ErrNotFound)
	}
	return nil
}

const jobColumns = `job_id, source_name, source_path, entity, period, status, retry_count,
	max_retries, force, last_error, created_at, started_at, completed_at`

// GetByID retrieves a job
func (r *JobRepository) GetByID(ctx context.Context, jobID string) (*entity.IngestionJob, error) {
	row := sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM ingestion_jobs WHERE job_id = ?`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListByStatus returns jobs in a state, oldest first
func (r *JobRepository) ListByStatus(ctx context.Context, status workflow.State, limit int) ([]*entity.IngestionJob, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx,
		`SELECT `+jobColumns+` FROM ingestion_jobs WHERE status = ? ORDER BY created_at ASC LIMIT ?`,
		string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*entity.IngestionJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(s scanner) (*entity.IngestionJob, error) {
	var job entity.IngestionJob
	var status string
	var startedAt, completedAt sql.NullTime
	err := s.Scan(
		&job.JobID, &job.SourceName, &job.SourcePath, &job.Entity, &job.Period, &status, &job.RetryCount,
		&job.MaxRetries, &job.Force, &job.LastError, &job.CreatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Status = workflow.State(status)
	job.StartedAt = timePtr(startedAt)
	job.CompletedAt = timePtr(completedAt)
	return &job, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

var _ port.JobRepository = (*JobRepository)(nil)
