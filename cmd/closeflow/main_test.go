package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/closeflow/internal/application/service"
	"github.com/garyjia/closeflow/internal/domain/apperr"
	"github.com/garyjia/closeflow/internal/domain/entity"
)

func TestExitCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"plain", errors.New("boom"), exitFailure},
		{"usage", withCode(exitUsage, errors.New("bad flag")), exitUsage},
		{"wrapped", fmt.Errorf("run: %w", withCode(exitUsage, errors.New("bad"))), exitUsage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCodeOf(tt.err))
		})
	}
}

func TestIngestStatus(t *testing.T) {
	ok := &entity.IngestionResult{Success: true}
	rowErrors := &entity.IngestionResult{RecordsFailed: 1}

	assert.NoError(t, ingestStatus(ok, nil))
	assert.Equal(t, exitFailure, exitCodeOf(ingestStatus(rowErrors, nil)))
	assert.Equal(t, exitFailure, exitCodeOf(ingestStatus(nil, apperr.Schema("ingest", []string{"balance"}))))
	assert.Equal(t, exitUsage, exitCodeOf(ingestStatus(nil, fmt.Errorf("%w: no path", service.ErrInvalidRequest))))
}

func TestBatchFlags_Files(t *testing.T) {
	f := &batchFlags{entity: "ENT01", period: "2024-03", force: true}

	jobs, err := f.jobs([]string{"a.csv", "dir/b.xlsx"})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.True(t, filepath.IsAbs(jobs[0].Path))
	assert.Equal(t, "b.xlsx", jobs[1].Name)
	assert.Equal(t, "ENT01", jobs[1].Entity)
	assert.True(t, jobs[1].Force)
}

func TestBatchFlags_Manifest(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "batch.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte(`
defaults:
  entity: ENT01
  period: "2024-03"
jobs:
  - file: tb.csv
`), 0o644))

	f := &batchFlags{manifest: manifest, force: true}
	jobs, err := f.jobs(nil)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, filepath.Join(dir, "tb.csv"), jobs[0].Path)
	assert.True(t, jobs[0].Force)
}

func TestBatchFlags_Usage(t *testing.T) {
	tests := []struct {
		name  string
		flags batchFlags
		args  []string
	}{
		{"nothing", batchFlags{}, nil},
		{"files without unit", batchFlags{entity: "ENT01"}, []string{"a.csv"}},
		{"both sources", batchFlags{manifest: "m.yaml"}, []string{"a.csv"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.flags.jobs(tt.args)
			assert.Equal(t, exitUsage, exitCodeOf(err))
		})
	}
}

func TestRootCmd_Commands(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"ingest", "ingest-batch", "validate", "assign", "roster", "serve"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}
