package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/closeflow/internal/application/dispatcher"
	"github.com/garyjia/closeflow/internal/application/port"
	"github.com/garyjia/closeflow/internal/assignment"
	"github.com/garyjia/closeflow/internal/domain/apperr"
	"github.com/garyjia/closeflow/internal/domain/entity"
	"github.com/garyjia/closeflow/internal/domain/event"
	"github.com/garyjia/closeflow/internal/ingest"
)

var zeroBalanceThreshold = decimal.RequireFromString("0.01")

// AssignmentService pairs records with preparers and reviewers
type AssignmentService interface {
	// AssignAccounts schedules every record of the unit that has no assignment yet.
	// Records without an eligible preparer come back unassigned and are not stored.
	AssignAccounts(ctx context.Context, entityCode, period string, skipZeroBalance bool) ([]*entity.AssignmentResult, error)
	ListAssignments(ctx context.Context, entityCode, period string) ([]*entity.AssignmentRecord, error)
}

type assignmentServiceImpl struct {
	records     port.RecordRepository
	assignments port.AssignmentRepository
	users       port.UserRepository
	tx          port.TransactionManager
	rules       *assignment.RuleEngine
	scorer      *assignment.RiskScorer
	preparers   *assignment.WorkloadTracker
	reviewers   *assignment.WorkloadTracker
	events      emitter
	logger      Logger
	now         func() time.Time

	seedMu sync.Mutex
	seeded bool
}

// NewAssignmentService creates a new AssignmentService. The trackers are shared across
// concurrent runs and seeded from stored open assignments on first use.
func NewAssignmentService(
	records port.RecordRepository,
	assignments port.AssignmentRepository,
	users port.UserRepository,
	tx port.TransactionManager,
	rules *assignment.RuleEngine,
	scorer *assignment.RiskScorer,
	preparers *assignment.WorkloadTracker,
	reviewers *assignment.WorkloadTracker,
	d dispatcher.Dispatcher,
	logger Logger,
) AssignmentService {
	logger = orNop(logger)
	return &assignmentServiceImpl{
		records:     records,
		assignments: assignments,
		users:       users,
		tx:          tx,
		rules:       rules,
		scorer:      scorer,
		preparers:   preparers,
		reviewers:   reviewers,
		events:      emitter{dispatcher: d, logger: logger},
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *assignmentServiceImpl) seed(ctx context.Context) error {
	s.seedMu.Lock()
	defer s.seedMu.Unlock()
	if s.seeded {
		return nil
	}
	preparers, reviewers, err := s.assignments.OpenLoads(ctx)
	if err != nil {
		return fmt.Errorf("load open assignments: %w", err)
	}
	s.preparers.Seed(preparers)
	s.reviewers.Seed(reviewers)
	s.seeded = true
	return nil
}

// roster indexes active users by department, in id order
type roster map[entity.Department][]*entity.User

func (r roster) preparerCandidates(dept entity.Department, required entity.Level) []string {
	var qualified, all []string
	for _, u := range r[dept] {
		all = append(all, u.ID)
		if u.Level.Meets(required) {
			qualified = append(qualified, u.ID)
		}
	}
	if len(qualified) > 0 {
		return qualified
	}
	return all
}

func (r roster) reviewerCandidates(dept entity.Department) []string {
	var ids []string
	for _, u := range r[dept] {
		if u.Level.CanReview() {
			ids = append(ids, u.ID)
		}
	}
	return ids
}

type reservation struct {
	tracker *assignment.WorkloadTracker
	userID  string
}

func (s *assignmentServiceImpl) AssignAccounts(ctx context.Context, entityCode, period string, skipZeroBalance bool) ([]*entity.AssignmentResult, error) {
	if entityCode == "" || period == "" {
		return nil, fmt.Errorf("%w: entity and period are required", ErrInvalidRequest)
	}
	period = ingest.NormalizePeriod(period)
	if err := s.seed(ctx); err != nil {
		return nil, err
	}

	users, err := s.users.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	team := make(roster)
	for _, u := range users {
		team[u.Department] = append(team[u.Department], u)
	}

	existing, err := s.assignments.ListByUnit(ctx, entityCode, period)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	done := make(map[string]bool, len(existing))
	for _, a := range existing {
		done[a.GLCode+"\x00"+a.CompanyCode] = true
	}

	records, err := s.records.ListByUnit(ctx, entityCode, period)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	var (
		results  []*entity.AssignmentResult
		events   []*event.Event
		reserved []reservation
	)
	err = s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		for _, rec := range records {
			if done[rec.AccountCode+"\x00"+rec.CompanyCode] {
				continue
			}
			if err := txCtx.Err(); err != nil {
				return err
			}

			res, evt, held, err := s.assignOne(txCtx, rec, team, skipZeroBalance)
			reserved = append(reserved, held...)
			if err != nil {
				return err
			}
			results = append(results, res)
			events = append(events, evt)
		}
		return nil
	})
	if err != nil {
		for _, r := range reserved {
			r.tracker.Release(r.userID)
		}
		s.logger.Error("Assignment run rolled back", "entity", entityCode, "period", period, "error", err)
		return nil, err
	}

	s.events.emitAll(ctx, events)
	s.logger.Info("Assignment run finished",
		"entity", entityCode,
		"period", period,
		"records", len(results),
	)
	return results, nil
}

// assignOne schedules a single record. A missing preparer is reported in the result,
// not as an error; errors are store failures that roll the run back.
func (s *assignmentServiceImpl) assignOne(ctx context.Context, rec *entity.NormalizedRecord, team roster, skipZero bool) (*entity.AssignmentResult, *event.Event, []reservation, error) {
	res := &entity.AssignmentResult{AssignmentRecord: entity.AssignmentRecord{
		Entity:      rec.Entity,
		GLCode:      rec.AccountCode,
		CompanyCode: rec.CompanyCode,
		Period:      rec.Period,
		Department:  rec.Department,
		Criticality: rec.Criticality,
	}}
	newEvent := func(t event.Type, payload map[string]interface{}) *event.Event {
		return event.NewEvent(t, rec.Entity, rec.Period, payload).WithGLCode(rec.AccountCode)
	}

	if skipZero && rec.Balance.Abs().LessThan(zeroBalanceThreshold) {
		res.Status = entity.AssignmentStatusSkipped
		res.SkipReason = entity.SkipReasonZeroBalance
		res.PriorityScore = decimal.Zero
		if err := s.assignments.Create(ctx, &res.AssignmentRecord); err != nil {
			return nil, nil, nil, fmt.Errorf("store skipped assignment %s: %w", rec.AccountCode, err)
		}
		return res, newEvent(event.TypeAssignmentSkipped, map[string]interface{}{
			"skip_reason": res.SkipReason,
		}), nil, nil
	}

	rule := s.rules.Resolve(rec.Category)
	if res.Department.IsZero() {
		res.Department = rule.Department
	}
	if !res.Criticality.IsValid() {
		res.Criticality = rule.Criticality
	}
	res.PriorityScore = s.scorer.Score(res.Criticality, rec.Balance, rec.ReconciliationFlag, rec.VariancePct)

	preparer, ok := s.preparers.ReserveLeastLoaded(team.preparerCandidates(res.Department, rule.RequiredLevel), "")
	if !ok {
		gap := apperr.AssignmentGap("assign.preparer", rec.AccountCode, string(res.Department))
		s.logger.Error("No eligible preparer", "gl_code", rec.AccountCode, "department", res.Department, "error", gap)
		res.Status = entity.AssignmentStatusUnassigned
		res.Error = gap.Error()
		return res, newEvent(event.TypeAssignmentGap, map[string]interface{}{
			"department": string(res.Department),
			"error":      gap.Error(),
		}), nil, nil
	}
	held := []reservation{{tracker: s.preparers, userID: preparer}}
	res.PreparerID = preparer

	if reviewer, ok := s.reviewers.ReserveLeastLoaded(team.reviewerCandidates(res.Department), preparer); ok {
		res.ReviewerID = &reviewer
		held = append(held, reservation{tracker: s.reviewers, userID: reviewer})
	}

	deadline := s.now().AddDate(0, 0, rule.SLADays)
	res.SLADeadline = &deadline
	res.Status = entity.AssignmentStatusAssigned

	if err := s.assignments.Create(ctx, &res.AssignmentRecord); err != nil {
		return nil, nil, held, fmt.Errorf("store assignment %s: %w", rec.AccountCode, err)
	}
	if rec.Department.IsZero() {
		if err := s.records.UpdateDepartment(ctx, rec.ID, res.Department); err != nil {
			return nil, nil, held, err
		}
	}

	reviewerID := ""
	if res.ReviewerID != nil {
		reviewerID = *res.ReviewerID
	}
	return res, newEvent(event.TypeAssignmentCreated, map[string]interface{}{
		"preparer_id":    preparer,
		"reviewer_id":    reviewerID,
		"department":     string(res.Department),
		"priority_score": res.PriorityScore.String(),
		"sla_deadline":   deadline.Format(time.RFC3339),
	}), held, nil
}

func (s *assignmentServiceImpl) ListAssignments(ctx context.Context, entityCode, period string) ([]*entity.AssignmentRecord, error) {
	return s.assignments.ListByUnit(ctx, entityCode, ingest.NormalizePeriod(period))
}
