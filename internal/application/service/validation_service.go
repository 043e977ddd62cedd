package service

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/garyjia/closeflow/internal/application/dispatcher"
	"github.com/garyjia/closeflow/internal/application/port"
	"github.com/garyjia/closeflow/internal/domain/entity"
	"github.com/garyjia/closeflow/internal/domain/event"
	"github.com/garyjia/closeflow/internal/ingest"
	"github.com/garyjia/closeflow/internal/validation"
)

// ValidateRequest selects the unit and how its result is treated
type ValidateRequest struct {
	Entity        string `json:"entity" binding:"required"`
	Period        string `json:"period" binding:"required"`
	AutoRemediate bool   `json:"auto_remediate"`
	// Policy overrides the configured pass policy when set
	Policy entity.PassPolicy `json:"policy"`
}

// ValidationService runs, stores and remediates validation runs
type ValidationService interface {
	Validate(ctx context.Context, req ValidateRequest) (*entity.ValidationResult, error)
	// ValidateMany validates several units concurrently; results keep the request order
	ValidateMany(ctx context.Context, reqs []ValidateRequest) ([]*entity.ValidationResult, error)
	History(ctx context.Context, entityCode, period string, limit int) ([]*entity.ValidationResult, error)
}

type validationServiceImpl struct {
	records     port.RecordRepository
	validations port.ValidationRepository
	runner      *validation.Runner
	events      emitter
	logger      Logger
	concurrency int
}

// NewValidationService creates a new ValidationService. concurrency bounds ValidateMany.
func NewValidationService(
	records port.RecordRepository,
	validations port.ValidationRepository,
	runner *validation.Runner,
	d dispatcher.Dispatcher,
	logger Logger,
	concurrency int,
) ValidationService {
	logger = orNop(logger)
	if concurrency <= 0 {
		concurrency = DefaultMaxConcurrent
	}
	return &validationServiceImpl{
		records:     records,
		validations: validations,
		runner:      runner,
		events:      emitter{dispatcher: d, logger: logger},
		logger:      logger,
		concurrency: concurrency,
	}
}

// Validate loads the unit's records, runs the battery, appends the run and, when asked,
// requests remediation for failures that have an action. It never re-runs itself.
func (s *validationServiceImpl) Validate(ctx context.Context, req ValidateRequest) (*entity.ValidationResult, error) {
	if req.Entity == "" || req.Period == "" {
		return nil, fmt.Errorf("%w: entity and period are required", ErrInvalidRequest)
	}
	req.Period = ingest.NormalizePeriod(req.Period)
	if req.Policy != "" && !req.Policy.IsValid() {
		return nil, fmt.Errorf("%w: unknown policy %q", ErrInvalidRequest, req.Policy)
	}

	records, err := s.records.ListByUnit(ctx, req.Entity, req.Period)
	if err != nil {
		s.logger.Error("Failed to load records", "entity", req.Entity, "period", req.Period, "error", err)
		return nil, fmt.Errorf("load records: %w", err)
	}

	result := s.runner.Run(req.Entity, req.Period, records, req.Policy)
	result.Remediations = []entity.RemediationAction{}

	var remediation []*event.Event
	if req.AutoRemediate {
		for _, f := range result.Failures() {
			action := s.runner.ActionFor(f.ID)
			if action == "" {
				continue
			}
			result.Remediations = append(result.Remediations, entity.RemediationAction{ExpectationID: f.ID, Action: action})
			remediation = append(remediation, event.NewEventWithCorrelation(event.TypeRemediationRequested,
				req.Entity, req.Period, map[string]interface{}{
					"run_id":         result.RunID,
					"expectation_id": f.ID,
					"action":         action,
				}, result.RunID))
		}
	}

	if err := s.validations.Create(ctx, result); err != nil {
		s.logger.Error("Failed to store validation run", "run_id", result.RunID, "error", err)
		return nil, fmt.Errorf("store validation run: %w", err)
	}

	s.logger.Info("Validation finished",
		"entity", req.Entity,
		"period", req.Period,
		"policy", result.Policy,
		"passed", result.Passed,
		"failed_expectations", result.FailedCount,
		"records", len(records),
	)
	failures := make([]string, 0, result.FailedCount)
	for _, f := range result.Failures() {
		failures = append(failures, f.ID)
	}
	s.events.emit(ctx, event.NewEventWithCorrelation(event.TypeValidationCompleted, req.Entity, req.Period,
		map[string]interface{}{
			"run_id":       result.RunID,
			"passed":       result.Passed,
			"policy":       string(result.Policy),
			"success_rate": result.SuccessRate,
			"failures":     failures,
		}, result.RunID))
	s.events.emitAll(ctx, remediation)

	return result, nil
}

func (s *validationServiceImpl) ValidateMany(ctx context.Context, reqs []ValidateRequest) ([]*entity.ValidationResult, error) {
	results := make([]*entity.ValidationResult, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			res, err := s.Validate(gctx, req)
			if err != nil {
				return fmt.Errorf("validate %s/%s: %w", req.Entity, req.Period, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *validationServiceImpl) History(ctx context.Context, entityCode, period string, limit int) ([]*entity.ValidationResult, error) {
	return s.validations.ListByUnit(ctx, entityCode, ingest.NormalizePeriod(period), limit)
}
