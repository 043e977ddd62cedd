package service

import (
	"context"
	"fmt"

	"github.com/garyjia/closeflow/internal/application/port"
	"github.com/garyjia/closeflow/internal/assignment"
	"github.com/garyjia/closeflow/internal/domain/entity"
)

// RosterService maintains the team members available for assignment
type RosterService interface {
	// LoadFile upserts every user in a YAML roster in one transaction
	LoadFile(ctx context.Context, path string) (int, error)
	Load(ctx context.Context, users []*entity.User) (int, error)
	ListActive(ctx context.Context) ([]*entity.User, error)
}

type rosterServiceImpl struct {
	users  port.UserRepository
	tx     port.TransactionManager
	logger Logger
}

// NewRosterService creates a new RosterService
func NewRosterService(users port.UserRepository, tx port.TransactionManager, logger Logger) RosterService {
	return &rosterServiceImpl{users: users, tx: tx, logger: orNop(logger)}
}

func (s *rosterServiceImpl) LoadFile(ctx context.Context, path string) (int, error) {
	users, err := assignment.LoadRoster(path)
	if err != nil {
		s.logger.Error("Failed to read roster", "path", path, "error", err)
		return 0, err
	}
	return s.Load(ctx, users)
}

func (s *rosterServiceImpl) Load(ctx context.Context, users []*entity.User) (int, error) {
	err := s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		for _, u := range users {
			if err := s.users.Upsert(txCtx, u); err != nil {
				return fmt.Errorf("upsert user %s: %w", u.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to load roster", "users", len(users), "error", err)
		return 0, err
	}
	s.logger.Info("Roster loaded", "users", len(users))
	return len(users), nil
}

func (s *rosterServiceImpl) ListActive(ctx context.Context) ([]*entity.User, error) {
	return s.users.ListActive(ctx)
}
