package config

import (
	"github.com/shopspring/decimal"

	"github.com/garyjia/closeflow/internal/application/service"
	"github.com/garyjia/closeflow/internal/domain/entity"
	httpserver "github.com/garyjia/closeflow/internal/interfaces/http"
	"github.com/garyjia/closeflow/internal/validation"
	"github.com/garyjia/closeflow/pkg/database"
	"github.com/garyjia/closeflow/pkg/utils"
)

// The conversions below bridge the file-based config loaded by viper and the
// option structs each component is built from.

// DatabaseOptions returns the store connection settings
func (c *Config) DatabaseOptions() database.Config {
	return database.Config{
		Path:            c.Database.Path,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
		BusyTimeout:     c.Database.BusyTimeout,
	}
}

// LoggerOptions returns the zap logger settings
func (c *Config) LoggerOptions() utils.LoggerConfig {
	return utils.LoggerConfig{
		Level:      c.Logger.Level,
		OutputPath: c.Logger.OutputPath,
		Format:     c.Logger.Format,
	}
}

// ServerOptions returns the HTTP server settings
func (c *Config) ServerOptions() httpserver.ServerConfig {
	return httpserver.ServerConfig{
		Host:           c.Server.Host,
		Port:           c.Server.Port,
		ReadTimeout:    c.Server.ReadTimeout,
		WriteTimeout:   c.Server.WriteTimeout,
		MaxUploadBytes: c.Server.MaxUploadBytes,
	}
}

// ValidationOptions returns the expectation battery settings
func (c *Config) ValidationOptions() validation.Config {
	return validation.Config{
		AccountCodePattern:    c.Validation.AccountCodePattern,
		BalanceTolerance:      decimal.NewFromFloat(c.Validation.BalanceTolerance),
		MaxAbsBalance:         decimal.NewFromFloat(c.Validation.MaxAbsBalance),
		CompletenessThreshold: c.Validation.CompletenessThreshold,
		Policy:                entity.PassPolicy(c.Validation.Policy),
	}
}

// BatchOptions returns the orchestrator defaults; CLI flags may override them
func (c *Config) BatchOptions() service.BatchOptions {
	return service.BatchOptions{
		MaxConcurrent: c.Batch.MaxConcurrent,
		MaxRetries:    c.Batch.MaxRetries,
		SkipCompleted: c.Batch.SkipCompleted,
		BackoffUnit:   c.Batch.BackoffUnit,
	}
}
