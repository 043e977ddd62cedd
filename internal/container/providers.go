// Package container provides dependency injection and lifecycle management
// for the closeflow pipeline.
package container

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/garyjia/closeflow/internal/application/dispatcher"
	"github.com/garyjia/closeflow/internal/application/port"
	"github.com/garyjia/closeflow/internal/application/service"
	"github.com/garyjia/closeflow/internal/assignment"
	"github.com/garyjia/closeflow/internal/config"
	"github.com/garyjia/closeflow/internal/domain/event"
	"github.com/garyjia/closeflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/closeflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/closeflow/internal/infrastructure/storage"
	"github.com/garyjia/closeflow/internal/ingest"
	"github.com/garyjia/closeflow/internal/validation"
	"github.com/garyjia/closeflow/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// StorageBundle holds storage-related components.
type StorageBundle struct {
	FileStorage port.FileStorage
	Uploads     *storage.UploadLayout
}

// ProvideDatabase opens the record store and applies pending migrations.
func ProvideDatabase(cfg *config.Config, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	opts := cfg.DatabaseOptions()
	if dir := filepath.Dir(opts.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := database.New(opts, logger)
	if err != nil {
		return nil, err
	}

	applied, err := database.NewMigrator(db, logger).Run()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("Migrations checked", zap.Int("applied", applied))

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(db *database.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Record:     repository.NewRecordRepository(db.DB, logger),
		Job:        repository.NewJobRepository(db.DB, logger),
		Result:     repository.NewResultRepository(db.DB, logger),
		Validation: repository.NewValidationRepository(db.DB, logger),
		Assignment: repository.NewAssignmentRepository(db.DB, logger),
		User:       repository.NewUserRepository(db.DB, logger),
		Audit:      repository.NewAuditRepository(db.DB, logger),
	}, nil
}

// ProvideStorage creates extract storage and the upload staging layout.
func ProvideStorage(cfg *config.Config, logger *zap.Logger) (*StorageBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	return &StorageBundle{
		FileStorage: storage.NewLocalFileStorage(cfg.Storage.BaseDir, logger),
		Uploads:     storage.NewUploadLayout(cfg.Storage.UploadRoot),
	}, nil
}

// ProvideDispatcher creates the event dispatcher and subscribes the audit recorder.
func ProvideDispatcher(audits port.AuditRepository, logger *zap.Logger) (dispatcher.Dispatcher, *service.AuditRecorder, error) {
	if logger == nil {
		return nil, nil, fmt.Errorf("logger is required")
	}

	d := dispatcher.NewDispatcher(dispatcher.WithLogger(&zapLoggerAdapter{logger: logger.Named("dispatcher")}))
	recorder := service.NewAuditRecorder(audits, &zapLoggerAdapter{logger: logger.Named("audit")})
	recorder.Register(d)
	return d, recorder, nil
}

// ServiceDeps holds dependencies for creating services.
type ServiceDeps struct {
	Config     *config.Config
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Storage    *StorageBundle
	Dispatcher dispatcher.Dispatcher
	Logger     *zap.Logger
}

// ProvideServices builds the pipeline components from configuration and wires the services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Config == nil || deps.Repos == nil || deps.Logger == nil {
		return nil, fmt.Errorf("service dependencies are incomplete")
	}
	cfg := deps.Config

	mapper := ingest.NewSchemaMapper()
	if cfg.Ingestion.MappingFile != "" {
		overrides, err := ingest.LoadMappingOverrides(cfg.Ingestion.MappingFile)
		if err != nil {
			return nil, err
		}
		if err := mapper.WithOverrides(overrides); err != nil {
			return nil, err
		}
	}

	rules := assignment.NewRuleEngine()
	if cfg.Assignment.RulesFile != "" {
		loaded, err := assignment.LoadRuleEngine(cfg.Assignment.RulesFile)
		if err != nil {
			return nil, err
		}
		rules = loaded
	}

	runner, err := validation.NewRunner(cfg.ValidationOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to build validation runner: %w", err)
	}

	svcLogger := &zapLoggerAdapter{logger: deps.Logger}
	ingestion := service.NewIngestionService(
		deps.Storage.FileStorage,
		deps.Repos.Record,
		deps.Repos.Result,
		deps.TxManager,
		mapper,
		ingest.NewProfiler(cfg.Ingestion.NullWarningThreshold),
		deps.Dispatcher,
		svcLogger,
	)

	return &ServiceBundle{
		Ingestion: ingestion,
		Batch:     service.NewBatchOrchestrator(ingestion, deps.Repos.Job, deps.Dispatcher, svcLogger),
		Validation: service.NewValidationService(
			deps.Repos.Record,
			deps.Repos.Validation,
			runner,
			deps.Dispatcher,
			svcLogger,
			cfg.Validation.Concurrency,
		),
		Assignment: service.NewAssignmentService(
			deps.Repos.Record,
			deps.Repos.Assignment,
			deps.Repos.User,
			deps.TxManager,
			rules,
			assignment.NewRiskScorer(),
			assignment.NewWorkloadTracker(),
			assignment.NewWorkloadTracker(),
			deps.Dispatcher,
			svcLogger,
		),
		Roster: service.NewRosterService(deps.Repos.User, deps.TxManager, svcLogger),
	}, nil
}

// RegisterRemediation routes remediation requests to the services that perform them.
// Assignment runs synchronously inside the validation that requested it.
func RegisterRemediation(d dispatcher.Dispatcher, services *ServiceBundle, skipZeroBalance bool, logger *zap.Logger) {
	d.SubscribeNamed(event.TypeRemediationRequested, "remediation-assign", func(ctx context.Context, evt *event.Event) error {
		if evt.GetPayloadString("action") != validation.ActionAssignAccounts {
			return nil
		}
		results, err := services.Assignment.AssignAccounts(ctx, evt.Entity, evt.Period, skipZeroBalance)
		if err != nil {
			return fmt.Errorf("remediate %s: %w", evt.GetPayloadString("expectation_id"), err)
		}
		logger.Info("Remediation assigned accounts",
			zap.String("entity", evt.Entity),
			zap.String("period", evt.Period),
			zap.Int("records", len(results)),
		)
		return nil
	})
}
