package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/closeflow/internal/application/dispatcher"
	"github.com/garyjia/closeflow/internal/application/port"
	"github.com/garyjia/closeflow/internal/domain/apperr"
	"github.com/garyjia/closeflow/internal/domain/entity"
	"github.com/garyjia/closeflow/internal/domain/event"
	"github.com/garyjia/closeflow/internal/ingest"
)

// ErrInvalidRequest is returned for requests missing their unit or source
var ErrInvalidRequest = errors.New("invalid request")

// IngestRequest describes one (file, entity, period) unit
type IngestRequest struct {
	// JobID correlates audit events with a batch job; generated when empty
	JobID string
	Name  string
	// Path is read through FileStorage when Content is nil
	Path    string
	Content []byte
	Entity  string
	Period  string
	DryRun  bool
	// SkipCompleted returns early when the same fingerprint already ingested successfully
	SkipCompleted bool
}

func (r IngestRequest) sourceName() string {
	if r.Name != "" {
		return r.Name
	}
	return filepath.Base(r.Path)
}

// IngestionService loads one extract into the record store
type IngestionService interface {
	Ingest(ctx context.Context, req IngestRequest) (*entity.IngestionResult, error)
}

type ingestionServiceImpl struct {
	storage  port.FileStorage
	records  port.RecordRepository
	results  port.ResultRepository
	tx       port.TransactionManager
	mapper   *ingest.SchemaMapper
	profiler *ingest.Profiler
	events   emitter
	logger   Logger
	now      func() time.Time
}

// NewIngestionService creates a new IngestionService
func NewIngestionService(
	storage port.FileStorage,
	records port.RecordRepository,
	results port.ResultRepository,
	tx port.TransactionManager,
	mapper *ingest.SchemaMapper,
	profiler *ingest.Profiler,
	d dispatcher.Dispatcher,
	logger Logger,
) IngestionService {
	logger = orNop(logger)
	if mapper == nil {
		mapper = ingest.NewSchemaMapper()
	}
	if profiler == nil {
		profiler = ingest.NewProfiler(ingest.DefaultNullWarningThreshold)
	}
	return &ingestionServiceImpl{
		storage:  storage,
		records:  records,
		results:  results,
		tx:       tx,
		mapper:   mapper,
		profiler: profiler,
		events:   emitter{dispatcher: d, logger: logger},
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ingestRun holds the state of one Ingest call
type ingestRun struct {
	req         IngestRequest
	period      string
	correlation string
	result      *entity.IngestionResult
}

func (r *ingestRun) event(eventType event.Type, payload map[string]interface{}) *event.Event {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	payload["source_name"] = r.result.SourceName
	payload["dry_run"] = r.req.DryRun
	if r.req.JobID != "" {
		payload["job_id"] = r.req.JobID
	}
	return event.NewEventWithCorrelation(eventType, r.req.Entity, r.period, payload, r.correlation)
}

func (r *ingestRun) rowError(row int, code string, err error) {
	r.result.RecordsFailed++
	r.result.RowErrors = append(r.result.RowErrors, entity.RowError{Row: row, AccountCode: code, Message: err.Error()})
}

// Ingest runs fingerprint, load, profile, map and upsert for one extract.
// The returned error is an *apperr.Error (schema or retryable I/O) or a context error.
func (s *ingestionServiceImpl) Ingest(ctx context.Context, req IngestRequest) (*entity.IngestionResult, error) {
	started := s.now()
	if req.Entity == "" || req.Period == "" {
		return nil, fmt.Errorf("%w: entity and period are required", ErrInvalidRequest)
	}
	if req.Content == nil && req.Path == "" {
		return nil, fmt.Errorf("%w: a path or content is required", ErrInvalidRequest)
	}

	run := &ingestRun{
		req:         req,
		period:      ingest.NormalizePeriod(req.Period),
		correlation: req.JobID,
		result: &entity.IngestionResult{
			JobID:      req.JobID,
			SourceName: req.sourceName(),
			Entity:     req.Entity,
			DryRun:     req.DryRun,
			RowErrors:  []entity.RowError{},
		},
	}
	if run.correlation == "" {
		run.correlation = uuid.NewString()
	}
	run.result.Period = run.period
	s.events.emit(ctx, run.event(event.TypeIngestionStarted, nil))

	content := req.Content
	if content == nil {
		var err error
		content, err = s.storage.Read(ctx, req.Path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Error("Failed to read extract", "path", req.Path, "error", err)
			return nil, apperr.RetryableIO("ingest.read", err)
		}
	}

	run.result.Fingerprint = ingest.Fingerprint(content)
	s.events.emit(ctx, run.event(event.TypeIngestionFingerprinted, map[string]interface{}{
		"fingerprint": run.result.Fingerprint,
		"size":        len(content),
	}))

	if req.SkipCompleted {
		prior, err := s.results.FindSuccessful(ctx, req.Entity, run.period, run.result.Fingerprint)
		if err != nil {
			return nil, apperr.RetryableIO("ingest.lookup_fingerprint", err)
		}
		if prior != nil {
			run.result.Skipped = true
			run.result.Success = true
			run.result.Elapsed = s.now().Sub(started)
			run.result.CreatedAt = s.now()
			s.logger.Info("Fingerprint already ingested, skipping",
				"entity", req.Entity, "period", run.period, "fingerprint", run.result.Fingerprint)
			s.events.emit(ctx, run.event(event.TypeIngestionCompleted, map[string]interface{}{
				"skipped":     true,
				"fingerprint": run.result.Fingerprint,
			}))
			return run.result, nil
		}
	}

	table, err := ingest.ReadTable(run.result.SourceName, content)
	if err != nil {
		s.events.emit(ctx, run.event(event.TypeIngestionSchemaRejected, map[string]interface{}{"error": err.Error()}))
		return nil, apperr.Wrap(apperr.KindSchema, "ingest.parse", err)
	}
	s.events.emit(ctx, run.event(event.TypeIngestionLoaded, map[string]interface{}{
		"rows":    len(table.Rows),
		"columns": len(table.Columns),
	}))

	run.result.Profile = s.profiler.Profile(table)
	s.events.emit(ctx, run.event(event.TypeIngestionProfiled, map[string]interface{}{
		"quality_score": run.result.Profile.QualityScore,
		"warnings":      len(run.result.Profile.Warnings),
	}))

	mapped := s.mapper.Map(table.Columns)
	ok, missing := ingest.ValidateRequired(mapped)
	s.events.emit(ctx, run.event(event.TypeIngestionMapped, map[string]interface{}{
		"raw_columns":    table.Columns,
		"mapped_columns": mapped,
	}))
	if !ok {
		s.logger.Error("Extract is missing required columns",
			"entity", req.Entity, "source", run.result.SourceName, "missing", missing)
		s.events.emit(ctx, run.event(event.TypeIngestionSchemaRejected, map[string]interface{}{"missing": missing}))
		return nil, apperr.Schema("ingest.map", missing)
	}

	builder := ingest.NewRecordBuilder(mapped, ingest.RecordDefaults{
		Entity:      req.Entity,
		Period:      run.period,
		Fingerprint: run.result.Fingerprint,
	})

	finish := func() {
		r := run.result
		r.RecordsProcessed = r.RecordsInserted + r.RecordsUpdated + r.RecordsFailed
		r.Success = r.RecordsFailed == 0
		r.Elapsed = s.now().Sub(started)
		r.CreatedAt = s.now()
	}

	if req.DryRun {
		if err := s.dryRunRows(ctx, run, builder, table); err != nil {
			return nil, err
		}
		finish()
	} else {
		err := s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
			if err := s.upsertRows(txCtx, run, builder, table); err != nil {
				return err
			}
			finish()
			return s.results.Create(txCtx, run.result)
		})
		if err != nil {
			return nil, classifyWriteError(ctx, err)
		}
	}

	s.logger.Info("Ingestion finished",
		"entity", req.Entity,
		"period", run.period,
		"source", run.result.SourceName,
		"processed", run.result.RecordsProcessed,
		"inserted", run.result.RecordsInserted,
		"updated", run.result.RecordsUpdated,
		"failed", run.result.RecordsFailed,
		"dry_run", req.DryRun,
	)
	s.events.emit(ctx, run.event(event.TypeIngestionCompleted, map[string]interface{}{
		"fingerprint":       run.result.Fingerprint,
		"records_processed": run.result.RecordsProcessed,
		"records_inserted":  run.result.RecordsInserted,
		"records_updated":   run.result.RecordsUpdated,
		"records_failed":    run.result.RecordsFailed,
		"success":           run.result.Success,
	}))
	return run.result, nil
}

// upsertRows writes every row inside the caller's transaction.
// Row errors carry the row's line in the source file.
func (s *ingestionServiceImpl) upsertRows(ctx context.Context, run *ingestRun, builder *ingest.RecordBuilder, table *ingest.Table) error {
	for i, row := range table.Rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		rowNum := table.Line(i)

		rec, err := builder.Build(row)
		if err != nil {
			run.rowError(rowNum, builder.AccountCode(row), err)
			continue
		}

		existing, err := s.records.GetByKey(ctx, rec.Key())
		if err != nil {
			return apperr.RetryableIO("ingest.lookup", err)
		}

		if existing == nil {
			if err := s.records.Insert(ctx, rec); err != nil {
				run.rowError(rowNum, rec.AccountCode, err)
				continue
			}
			run.result.RecordsInserted++
			continue
		}

		if existing.MergeFrom(rec) {
			if err := s.records.Update(ctx, existing); err != nil {
				run.rowError(rowNum, rec.AccountCode, err)
				continue
			}
		}
		run.result.RecordsUpdated++
	}
	return nil
}

// dryRunRows computes the counts a real run would produce without writing
func (s *ingestionServiceImpl) dryRunRows(ctx context.Context, run *ingestRun, builder *ingest.RecordBuilder, table *ingest.Table) error {
	pending := make(map[entity.NaturalKey]bool)
	for i, row := range table.Rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := builder.Build(row)
		if err != nil {
			run.rowError(table.Line(i), builder.AccountCode(row), err)
			continue
		}

		key := rec.Key()
		if pending[key] {
			run.result.RecordsUpdated++
			continue
		}
		existing, err := s.records.GetByKey(ctx, key)
		if err != nil {
			return apperr.RetryableIO("ingest.lookup", err)
		}
		if existing == nil {
			run.result.RecordsInserted++
		} else {
			run.result.RecordsUpdated++
		}
		pending[key] = true
	}
	return nil
}

// classifyWriteError keeps context and schema errors as they are and marks
// everything else from the write phase as retryable
func classifyWriteError(ctx context.Context, err error) error {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return ctx.Err()
	}
	if apperr.KindOf(err) != "" {
		return err
	}
	return apperr.RetryableIO("ingest.write", err)
}
