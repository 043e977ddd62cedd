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
	"github.com/garyjia/closeflow/internal/infrastructure/persistence/sqlite"
)

// RecordRepository implements port.RecordRepository
type RecordRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRecordRepository creates a new record repository
func NewRecordRepository(db *sql.DB, logger *zap.Logger) port.RecordRepository {
	return &RecordRepository{db: db, logger: logger}
}

const recordColumns = `id, entity, account_code, account_name, balance, company_code, period,
	category, criticality, review_status, department, reconciliation_flag,
	classification, variance_pct, source_fingerprint, created_at, updated_at`

// GetByKey looks up a record by its natural key
func (r *RecordRepository) GetByKey(ctx context.Context, key entity.NaturalKey) (*entity.NormalizedRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM normalized_records
		WHERE entity = ? AND account_code = ? AND company_code = ? AND period = ?`

	row := sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx, query,
		key.Entity, key.AccountCode, key.CompanyCode, key.Period)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

// Insert creates a new record
func (r *RecordRepository) Insert(ctx context.Context, rec *entity.NormalizedRecord) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO normalized_records (
			entity, account_code, account_name, balance, company_code, period,
			category, criticality, review_status, department, reconciliation_flag,
			classification, variance_pct, source_fingerprint, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		rec.Entity, rec.AccountCode, rec.AccountName, rec.Balance.String(), rec.CompanyCode, rec.Period,
		rec.Category, string(rec.Criticality), string(rec.ReviewStatus), string(rec.Department),
		rec.ReconciliationFlag, string(rec.Classification), rec.VariancePct, rec.SourceFingerprint,
		now, now,
	)
	if err != nil {
		r.logger.Debug("Failed to insert record", zap.String("account_code", rec.AccountCode), zap.Error(err))
		return fmt.Errorf("failed to insert record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	rec.ID = id
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return nil
}

// Update rewrites the mutable fields of an existing record
func (r *RecordRepository) Update(ctx context.Context, rec *entity.NormalizedRecord) error {
	now := time.Now().UTC()
	query := `
		UPDATE normalized_records SET
			account_name = ?, balance = ?, category = ?, criticality = ?, review_status = ?,
			department = ?, reconciliation_flag = ?, classification = ?, variance_pct = ?,
			source_fingerprint = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		rec.AccountName, rec.Balance.String(), rec.Category, string(rec.Criticality), string(rec.ReviewStatus),
		string(rec.Department), rec.ReconciliationFlag, string(rec.Classification), rec.VariancePct,
		rec.SourceFingerprint, now, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("record %d not found", rec.ID)
	}
	rec.UpdatedAt = now
	return nil
}

// UpdateDepartment writes back a department resolved during assignment
func (r *RecordRepository) UpdateDepartment(ctx context.Context, id int64, department entity.Department) error {
	_, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx,
		`UPDATE normalized_records SET department = ?, updated_at = ? WHERE id = ?`,
		string(department), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update department: %w", err)
	}
	return nil
}

// ListByUnit returns the records of an (entity, period) ordered by account code
func (r *RecordRepository) ListByUnit(ctx context.Context, entityCode, period string) ([]*entity.NormalizedRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM normalized_records
		WHERE entity = ? AND period = ?
		ORDER BY account_code ASC, company_code ASC`

	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx, query, entityCode, period)
	if err != nil {
		r.logger.Error("Failed to list records",
			zap.String("entity", entityCode), zap.String("period", period), zap.Error(err))
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []*entity.NormalizedRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (*entity.NormalizedRecord, error) {
	var rec entity.NormalizedRecord
	var criticality, reviewStatus, department, classification string
	err := s.Scan(
		&rec.ID, &rec.Entity, &rec.AccountCode, &rec.AccountName, &rec.Balance, &rec.CompanyCode, &rec.Period,
		&rec.Category, &criticality, &reviewStatus, &department, &rec.ReconciliationFlag,
		&classification, &rec.VariancePct, &rec.SourceFingerprint, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Criticality = entity.Criticality(criticality)
	rec.ReviewStatus = entity.ReviewStatus(reviewStatus)
	rec.Department = entity.Department(department)
	rec.Classification = entity.Classification(classification)
	return &rec, nil
}

var _ port.RecordRepository = (*RecordRepository)(nil)
