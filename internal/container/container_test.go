package container

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/closeflow/internal/application/port"
	"github.com/garyjia/closeflow/internal/application/service"
	"github.com/garyjia/closeflow/internal/config"
	"github.com/garyjia/closeflow/internal/domain/entity"
	"github.com/garyjia/closeflow/internal/domain/event"
)

const extractWithoutDepartments = `account_code,account_name,balance,category,criticality,classification,review_status
10000001,Cash at bank,1500.00,cash,critical,BS,pending
20000001,Trade payables,-1000.00,payables,medium,BS,pending
40000001,Revenue,-500.00,revenue,critical,PL,pending
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)

	dir := t.TempDir()
	cfg.Database.Path = filepath.Join(dir, "closeflow.db")
	cfg.Storage.BaseDir = filepath.Join(dir, "files")
	return cfg
}

func startContainer(t *testing.T) *Container {
	t.Helper()
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() {
		if !c.closed.Load() {
			c.Close()
		}
	})
	return c
}

func TestNewContainer_RequiresConfigAndLogger(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewContainer(testConfig(t), nil)
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.Validation.Policy = "lenient"
	_, err = NewContainer(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestContainer_Lifecycle(t *testing.T) {
	c := startContainer(t)

	assert.True(t, c.Ready())
	assert.Error(t, c.Start(context.Background()), "second Start must fail")

	health := c.Health()
	assert.True(t, health.Overall)
	for _, name := range []string{"database", "dispatcher", "repositories", "services"} {
		assert.True(t, health.Components[name].Healthy, name)
	}

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close())
	assert.Error(t, c.Start(context.Background()))
}

func TestContainer_RemediationAssignsAccounts(t *testing.T) {
	c := startContainer(t)
	ctx := context.Background()
	svc := c.Services()

	loaded, err := svc.Roster.Load(ctx, []*entity.User{
		{ID: "alice", Name: "Alice", Department: entity.DepartmentTreasury, Level: entity.LevelSenior, Active: true},
		{ID: "dan", Name: "Dan", Department: entity.DepartmentPayables, Level: entity.LevelJunior, Active: true},
		{ID: "rita", Name: "Rita", Department: entity.DepartmentRevenue, Level: entity.LevelSenior, Active: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, loaded)

	ingested, err := svc.Ingestion.Ingest(ctx, service.IngestRequest{
		Name:    "tb.csv",
		Content: []byte(extractWithoutDepartments),
		Entity:  "ENT01",
		Period:  "2024-03",
	})
	require.NoError(t, err)
	require.True(t, ingested.Success)

	result, err := svc.Validation.Validate(ctx, service.ValidateRequest{Entity: "ENT01", Period: "2024-03", AutoRemediate: true})
	require.NoError(t, err)
	assert.False(t, result.Passed, "department gaps fail the strict default")
	assert.Len(t, result.Remediations, 1)

	assignments, err := svc.Assignment.ListAssignments(ctx, "ENT01", "2024-03")
	require.NoError(t, err)
	require.Len(t, assignments, 3)

	preparers := map[string]string{}
	for _, a := range assignments {
		assert.Equal(t, entity.AssignmentStatusAssigned, a.Status)
		preparers[a.GLCode] = a.PreparerID
	}
	assert.Equal(t, map[string]string{"10000001": "alice", "20000001": "dan", "40000001": "rita"}, preparers)

	created, err := c.Audit().History(ctx, port.AuditFilter{Entity: "ENT01", EventType: string(event.TypeAssignmentCreated)})
	require.NoError(t, err)
	assert.Len(t, created, 3)

	requested, err := c.Audit().History(ctx, port.AuditFilter{Entity: "ENT01", EventType: string(event.TypeRemediationRequested)})
	require.NoError(t, err)
	assert.Len(t, requested, 1)
}
