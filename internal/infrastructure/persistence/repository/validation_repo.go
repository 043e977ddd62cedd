package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/closeflow/internal/application/port"
	"github.com/garyjia/closeflow/internal/domain/entity"
	"github.com/garyjia/closeflow/internal/infrastructure/persistence/sqlite"
)

// ValidationRepository implements port.ValidationRepository. It only ever inserts.
type ValidationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewValidationRepository creates a new validation run repository
func NewValidationRepository(db *sql.DB, logger *zap.Logger) port.ValidationRepository {
	return &ValidationRepository{db: db, logger: logger}
}

// Create appends a validation run
func (r *ValidationRepository) Create(ctx context.Context, res *entity.ValidationResult) error {
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	outcomes, err := json.Marshal(res.Outcomes)
	if err != nil {
		return fmt.Errorf("failed to encode outcomes: %w", err)
	}
	remediations := res.Remediations
	if remediations == nil {
		remediations = []entity.RemediationAction{}
	}
	remediationJSON, err := json.Marshal(remediations)
	if err != nil {
		return fmt.Errorf("failed to encode remediations: %w", err)
	}

	query := `
		INSERT INTO validation_runs (
			run_id, entity, period, policy, total_expectations, passed_expectations,
			failed_expectations, success_rate, passed, outcomes, remediations, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		res.RunID, res.Entity, res.Period, string(res.Policy), res.Total, res.PassedCount,
		res.FailedCount, res.SuccessRate, res.Passed, string(outcomes), string(remediationJSON), res.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to store validation run", zap.String("run_id", res.RunID), zap.Error(err))
		return fmt.Errorf("failed to create validation run: %w", err)
	}
	return nil
}

// ListByUnit returns runs newest first
func (r *ValidationRepository) ListByUnit(ctx context.Context, entityCode, period string, limit int) ([]*entity.ValidationResult, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT run_id, entity, period, policy, total_expectations, passed_expectations,
			failed_expectations, success_rate, passed, outcomes, remediations, created_at
		FROM validation_runs
		WHERE entity = ? AND period = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`
	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx, query, entityCode, period, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list validation runs: %w", err)
	}
	defer rows.Close()

	var runs []*entity.ValidationResult
	for rows.Next() {
		var res entity.ValidationResult
		var policy, outcomes, remediations string
		if err := rows.Scan(
			&res.RunID, &res.Entity, &res.Period, &policy, &res.Total, &res.PassedCount,
			&res.FailedCount, &res.SuccessRate, &res.Passed, &outcomes, &remediations, &res.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan validation run: %w", err)
		}
		res.Policy = entity.PassPolicy(policy)
		if err := json.Unmarshal([]byte(outcomes), &res.Outcomes); err != nil {
			return nil, fmt.Errorf("failed to decode outcomes: %w", err)
		}
		if err := json.Unmarshal([]byte(remediations), &res.Remediations); err != nil {
			return nil, fmt.Errorf("failed to decode remediations: %w", err)
		}
		runs = append(runs, &res)
	}
	return runs, rows.Err()
}

var _ port.ValidationRepository = (*ValidationRepository)(nil)
