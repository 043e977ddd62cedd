package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/closeflow/internal/domain/entity"
)

func TestRosterService_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`users:
  - id: alice
    name: Alice
    department: treasury
    level: senior
  - id: bob
    name: Bob
    department: AP
    level: junior
    active: false
`), 0o644))

	users := newFakeUserRepo()
	tx := &fakeTx{}
	svc := NewRosterService(users, tx, nil)

	n, err := svc.LoadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, tx.calls)

	active, err := svc.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "alice", active[0].ID)
	assert.Equal(t, entity.DepartmentTreasury, active[0].Department)
	assert.Equal(t, entity.DepartmentPayables, users.users["bob"].Department)
}

func TestRosterService_RejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	require.NoError(t, os.WriteFile(path, []byte("users:\n  - id: x\n    name: X\n    department: Tax\n    level: intern\n"), 0o644))

	users := newFakeUserRepo()
	_, err := NewRosterService(users, &fakeTx{}, nil).LoadFile(context.Background(), path)
	require.Error(t, err)
	assert.Empty(t, users.users)
}
