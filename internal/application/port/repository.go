package port

import (
	"context"

	"github.com/garyjia/closeflow/internal/domain/entity"
	"github.com/garyjia/closeflow/internal/domain/workflow"
)

// RecordRepository defines persistence operations for NormalizedRecord
type RecordRepository interface {
	// GetByKey returns nil, nil when no record has the key
	GetByKey(ctx context.Context, key entity.NaturalKey) (*entity.NormalizedRecord, error)
	Insert(ctx context.Context, record *entity.NormalizedRecord) error
	Update(ctx context.Context, record *entity.NormalizedRecord) error
	UpdateDepartment(ctx context.Context, id int64, department entity.Department) error
	// ListByUnit returns the records of an (entity, period) ordered by account code
	ListByUnit(ctx context.Context, entityCode, period string) ([]*entity.NormalizedRecord, error)
}

// JobRepository defines persistence operations for IngestionJob
type JobRepository interface {
	Create(ctx context.Context, job *entity.IngestionJob) error
	Update(ctx context.Context, job *entity.IngestionJob) error
	GetByID(ctx context.Context, jobID string) (*entity.IngestionJob, error)
	ListByStatus(ctx context.Context, status workflow.State, limit int) ([]*entity.IngestionJob, error)
}

// ResultRepository defines persistence operations for IngestionResult
type ResultRepository interface {
	Create(ctx context.Context, result *entity.IngestionResult) error
	// FindSuccessful returns the latest successful result for a fingerprint, or nil, nil
	FindSuccessful(ctx context.Context, entityCode, period, fingerprint string) (*entity.IngestionResult, error)
	ListByUnit(ctx context.Context, entityCode, period string, limit int) ([]*entity.IngestionResult, error)
}

// ValidationRepository stores validation runs. Runs are append-only.
type ValidationRepository interface {
	Create(ctx context.Context, result *entity.ValidationResult) error
	// ListByUnit returns runs newest first
	ListByUnit(ctx context.Context, entityCode, period string, limit int) ([]*entity.ValidationResult, error)
}

// AssignmentRepository defines persistence operations for AssignmentRecord
type AssignmentRepository interface {
	Create(ctx context.Context, assignment *entity.AssignmentRecord) error
	ListByUnit(ctx context.Context, entityCode, period string) ([]*entity.AssignmentRecord, error)
	// OpenLoads counts assigned records per preparer and per reviewer
	OpenLoads(ctx context.Context) (preparers map[string]int, reviewers map[string]int, err error)
}

// UserRepository defines persistence operations for User
type UserRepository interface {
	Upsert(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	// ListActive returns active users ordered by id
	ListActive(ctx context.Context) ([]*entity.User, error)
}

// AuditFilter narrows an audit log query
type AuditFilter struct {
	Entity    string
	EventType string
	Limit     int
}

// AuditRepository appends to and reads the audit log
type AuditRepository interface {
	Append(ctx context.Context, entry *entity.AuditEntry) error
	List(ctx context.Context, filter AuditFilter) ([]*entity.AuditEntry, error)
}

// TransactionManager runs fn inside a transaction carried by the context.
// Nested calls reuse the outer transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
