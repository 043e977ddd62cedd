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

// UserRepository implements port.UserRepository
type UserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB, logger *zap.Logger) port.UserRepository {
	return &UserRepository{db: db, logger: logger}
}

// Upsert inserts a user or replaces the roster fields of an existing one
func (r *UserRepository) Upsert(ctx context.Context, u *entity.User) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO users (id, name, email, department, level, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			department = excluded.department,
			level = excluded.level,
			active = excluded.active,
			updated_at = excluded.updated_at
	`
	_, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		u.ID, u.Name, u.Email, string(u.Department), string(u.Level), u.Active, now, now)
	if err != nil {
		r.logger.Error("Failed to upsert user", zap.String("user_id", u.ID), zap.Error(err))
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	u.UpdatedAt = now
	return nil
}

// GetByID retrieves a user
func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	row := sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx,
		`SELECT id, name, email, department, level, active, created_at, updated_at FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// ListActive returns active users ordered by id
func (r *UserRepository) ListActive(ctx context.Context) ([]*entity.User, error) {
	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx,
		`SELECT id, name, email, department, level, active, created_at, updated_at
		FROM users WHERE active = 1 ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*entity.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(s scanner) (*entity.User, error) {
	var u entity.User
	var department, level string
	if err := s.Scan(&u.ID, &u.Name, &u.Email, &department, &level, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Department = entity.Department(department)
	u.Level = entity.Level(level)
	return &u, nil
}

var _ port.UserRepository = (*UserRepository)(nil)
