package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/closeflow/internal/domain/entity"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "data/closeflow.db", cfg.Database.Path)
	assert.Equal(t, 5*time.Second, cfg.Database.BusyTimeout)
	assert.Equal(t, "strict", cfg.Validation.Policy)
	assert.Equal(t, 95.0, cfg.Validation.CompletenessThreshold)
	assert.Equal(t, 4, cfg.Batch.MaxConcurrent)
	assert.Equal(t, 3, cfg.Batch.MaxRetries)
	assert.Equal(t, time.Second, cfg.Batch.BackoffUnit)
	assert.Equal(t, "uploads", cfg.Storage.UploadRoot)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /var/lib/closeflow/close.db
validation:
  policy: critical_only
  balance_tolerance: 0.5
batch:
  max_concurrent: 8
  backoff_unit: 250ms
assignment:
  rules_file: rules.yaml
`)
	t.Setenv("CLOSEFLOW_BATCH_MAX_RETRIES", "5")
	t.Setenv("CLOSEFLOW_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/closeflow/close.db", cfg.Database.Path)
	assert.Equal(t, "critical_only", cfg.Validation.Policy)
	assert.Equal(t, 8, cfg.Batch.MaxConcurrent)
	assert.Equal(t, 5, cfg.Batch.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Batch.BackoffUnit)
	assert.Equal(t, "rules.yaml", cfg.Assignment.RulesFile)
	assert.Equal(t, "debug", cfg.Logger.Level)

	v := cfg.ValidationOptions()
	assert.Equal(t, entity.PassPolicyCriticalOnly, v.Policy)
	assert.Equal(t, "0.5", v.BalanceTolerance.String())
	assert.Equal(t, 8, cfg.BatchOptions().MaxConcurrent)
	assert.Equal(t, "/var/lib/closeflow/close.db", cfg.DatabaseOptions().Path)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"policy", "validation:\n  policy: lenient\n"},
		{"pattern", "validation:\n  account_code_pattern: \"[\"\n"},
		{"threshold", "validation:\n  completeness_threshold: 120\n"},
		{"concurrency", "batch:\n  max_concurrent: 0\n"},
		{"port", "server:\n  port: 70000\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
