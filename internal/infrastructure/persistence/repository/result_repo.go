package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/closeflow/internal/application/port"
	"github.com/garyjia/closeflow/internal/domain/entity"
	"github.com/garyjia/closeflow/internal/infrastructure/persistence/sqlite"
)

// ResultRepository implements port.ResultRepository
type ResultRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewResultRepository creates a new ingestion result repository
func NewResultRepository(db *sql.DB, logger *zap.Logger) port.ResultRepository {
	return &ResultRepository{db: db, logger: logger}
}

// Create stores an ingestion result
func (r *ResultRepository) Create(ctx context.Context, res *entity.IngestionResult) error {
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	rowErrors, err := json.Marshal(nonNilRowErrors(res.RowErrors))
	if err != nil {
		return fmt.Errorf("failed to encode row errors: %w", err)
	}
	quality := 0.0
	if res.Profile != nil {
		quality = res.Profile.QualityScore
	}

	query := `
		INSERT INTO ingestion_results (
			job_id, source_name, entity, period, fingerprint, records_processed,
			records_inserted, records_updated, records_failed, row_errors,
			quality_score, success, elapsed_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		res.JobID, res.SourceName, res.Entity, res.Period, res.Fingerprint, res.RecordsProcessed,
		res.RecordsInserted, res.RecordsUpdated, res.RecordsFailed, string(rowErrors),
		quality, res.Success, res.Elapsed.Milliseconds(), res.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create ingestion result", zap.String("fingerprint", res.Fingerprint), zap.Error(err))
		return fmt.Errorf("failed to create ingestion result: %w", err)
	}
	return nil
}

const resultColumns = `job_id, source_name, entity, period, fingerprint, records_processed,
	records_inserted, records_updated, records_failed, row_errors, quality_score,
	success, elapsed_ms, created_at`

// FindSuccessful returns the newest successful result for a fingerprint
func (r *ResultRepository) FindSuccessful(ctx context.Context, entityCode, period, fingerprint string) (*entity.IngestionResult, error) {
	query := `SELECT ` + resultColumns + ` FROM ingestion_results
		WHERE entity = ? AND period = ? AND fingerprint = ? AND success = 1
		ORDER BY created_at DESC, id DESC LIMIT 1`

	res, err := scanResult(sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx, query, entityCode, period, fingerprint))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find result: %w", err)
	}
	return res, nil
}

// ListByUnit returns results newest first
func (r *ResultRepository) ListByUnit(ctx context.Context, entityCode, period string, limit int) ([]*entity.IngestionResult, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + resultColumns + ` FROM ingestion_results
		WHERE entity = ? AND period = ? ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx, query, entityCode, period, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	var results []*entity.IngestionResult
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

func scanResult(s scanner) (*entity.IngestionResult, error) {
	var res entity.IngestionResult
	var rowErrors string
	var quality float64
	var elapsedMS int64
	err := s.Scan(
		&res.JobID, &res.SourceName, &res.Entity, &res.Period, &res.Fingerprint, &res.RecordsProcessed,
		&res.RecordsInserted, &res.RecordsUpdated, &res.RecordsFailed, &rowErrors, &quality,
		&res.Success, &elapsedMS, &res.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(rowErrors), &res.RowErrors); err != nil {
		return nil, fmt.Errorf("failed to decode row errors: %w", err)
	}
	res.Profile = &entity.DataProfile{QualityScore: quality}
	res.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	return &res, nil
}

func nonNilRowErrors(errs []entity.RowError) []entity.RowError {
	if errs == nil {
		return []entity.RowError{}
	}
	return errs
}

var _ port.ResultRepository = (*ResultRepository)(nil)
