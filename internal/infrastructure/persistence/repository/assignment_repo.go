package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/closeflow/internal/application/port"
	"github.com/garyjia/closeflow/internal/domain/entity"
	"github.com/garyjia/closeflow/internal/infrastructure/persistence/sqlite"
)

// AssignmentRepository implements port.AssignmentRepository
type AssignmentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAssignmentRepository creates a new assignment repository
func NewAssignmentRepository(db *sql.DB, logger *zap.Logger) port.AssignmentRepository {
	return &AssignmentRepository{db: db, logger: logger}
}

// Create stores an assigned or skipped record
func (r *AssignmentRepository) Create(ctx context.Context, a *entity.AssignmentRecord) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	var reviewer sql.NullString
	if a.ReviewerID != nil {
		reviewer = sql.NullString{String: *a.ReviewerID, Valid: true}
	}
	score, _ := a.PriorityScore.Float64()

	query := `
		INSERT INTO assignments (
			entity, gl_code, company_code, period, preparer_id, reviewer_id, department,
			criticality, priority_score, sla_deadline, status, skip_reason, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		a.Entity, a.GLCode, a.CompanyCode, a.Period, a.PreparerID, reviewer, string(a.Department),
		string(a.Criticality), score, nullTime(a.SLADeadline), string(a.Status), a.SkipReason, a.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create assignment", zap.String("gl_code", a.GLCode), zap.Error(err))
		return fmt.Errorf("failed to create assignment: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	a.ID = id
	return nil
}

// ListByUnit returns the assignments of an (entity, period) ordered by gl code
func (r *AssignmentRepository) ListByUnit(ctx context.Context, entityCode, period string) ([]*entity.AssignmentRecord, error) {
	query := `
		SELECT id, entity, gl_code, company_code, period, preparer_id, reviewer_id, department,
			criticality, priority_score, sla_deadline, status, skip_reason, created_at
		FROM assignments
		WHERE entity = ? AND period = ?
		ORDER BY gl_code ASC, company_code ASC
	`
	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx, query, entityCode, period)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var out []*entity.AssignmentRecord
	for rows.Next() {
		var a entity.AssignmentRecord
		var reviewer sql.NullString
		var deadline sql.NullTime
		var department, criticality, status string
		var score float64
		if err := rows.Scan(
			&a.ID, &a.Entity, &a.GLCode, &a.CompanyCode, &a.Period, &a.PreparerID, &reviewer, &department,
			&criticality, &score, &deadline, &status, &a.SkipReason, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		if reviewer.Valid {
			id := reviewer.String
			a.ReviewerID = &id
		}
		a.Department = entity.Department(department)
		a.Criticality = entity.Criticality(criticality)
		a.Status = entity.AssignmentStatus(status)
		a.PriorityScore = decimal.NewFromFloat(score).Round(2)
		a.SLADeadline = timePtr(deadline)
		out = append(out, &a)
	}
	return out, rows.Err()
}

// OpenLoads counts assigned records per preparer and per reviewer
func (r *AssignmentRepository) OpenLoads(ctx context.Context) (map[string]int, map[string]int, error) {
	preparers, err := r.countBy(ctx, `SELECT preparer_id, COUNT(*) FROM assignments
		WHERE status = ? AND preparer_id != '' GROUP BY preparer_id`)
	if err != nil {
		return nil, nil, err
	}
	reviewers, err := r.countBy(ctx, `SELECT reviewer_id, COUNT(*) FROM assignments
		WHERE status = ? AND reviewer_id IS NOT NULL GROUP BY reviewer_id`)
	if err != nil {
		return nil, nil, err
	}
	return preparers, reviewers, nil
}

func (r *AssignmentRepository) countBy(ctx context.Context, query string) (map[string]int, error) {
	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx, query, string(entity.AssignmentStatusAssigned))
	if err != nil {
		return nil, fmt.Errorf("failed to count open assignments: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("failed to scan load: %w", err)
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

var _ port.AssignmentRepository = (*AssignmentRepository)(nil)
