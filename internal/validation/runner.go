package validation

import (
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garyjia/closeflow/internal/domain/entity"
)

const (
	DefaultAccountCodePattern = `^[0-9]{8}$`
	periodPattern             = `^\d{4}-(0[1-9]|1[0-2])$`
)

// Config tunes the expectation thresholds
type Config struct {
	AccountCodePattern    string
	BalanceTolerance      decimal.Decimal
	MaxAbsBalance         decimal.Decimal
	CompletenessThreshold float64
	Policy                entity.PassPolicy
}

// DefaultConfig returns the standard thresholds with the strict policy
func DefaultConfig() Config {
	return Config{
		AccountCodePattern:    DefaultAccountCodePattern,
		BalanceTolerance:      decimal.NewFromInt(1),
		MaxAbsBalance:         decimal.NewFromInt(1_000_000_000),
		CompletenessThreshold: 95,
		Policy:                entity.PassPolicyStrict,
	}
}

// Runner evaluates the ordered expectation battery over one (entity, period) record set.
// It holds no per-run state and is safe for concurrent use.
type Runner struct {
	cfg          Config
	expectations []Expectation
	now          func() time.Time
}

// NewRunner compiles the configured patterns
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.AccountCodePattern == "" {
		cfg.AccountCodePattern = DefaultAccountCodePattern
	}
	if cfg.Policy == "" {
		cfg.Policy = entity.PassPolicyStrict
	}
	if !cfg.Policy.IsValid() {
		return nil, fmt.Errorf("unknown pass policy %q", cfg.Policy)
	}
	if cfg.CompletenessThreshold <= 0 || cfg.CompletenessThreshold > 100 {
		return nil, fmt.Errorf("completeness threshold must be in (0, 100], got %v", cfg.CompletenessThreshold)
	}
	accountCode, err := regexp.Compile(cfg.AccountCodePattern)
	if err != nil {
		return nil, fmt.Errorf("invalid account code pattern: %w", err)
	}

	return &Runner{
		cfg:          cfg,
		expectations: buildExpectations(cfg, accountCode, regexp.MustCompile(periodPattern)),
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

// Expectations returns the battery in evaluation order
func (r *Runner) Expectations() []Expectation {
	return append([]Expectation(nil), r.expectations...)
}

// Policy returns the configured default pass policy
func (r *Runner) Policy() entity.PassPolicy {
	return r.cfg.Policy
}

// Run evaluates every expectation. Failures are data: Run never returns an error.
// An empty policy falls back to the configured one.
func (r *Runner) Run(entityCode, period string, records []*entity.NormalizedRecord, policy entity.PassPolicy) *entity.ValidationResult {
	if policy == "" {
		policy = r.cfg.Policy
	}

	result := &entity.ValidationResult{
		RunID:     uuid.NewString(),
		Entity:    entityCode,
		Period:    period,
		Policy:    policy,
		Total:     len(r.expectations),
		Outcomes:  make([]entity.ExpectationOutcome, 0, len(r.expectations)),
		CreatedAt: r.now(),
	}
	for _, e := range r.expectations {
		outcome := e.Evaluate(records)
		if outcome.Success {
			result.PassedCount++
		} else {
			result.FailedCount++
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	if result.Total > 0 {
		result.SuccessRate = math.Round(float64(result.PassedCount)*10000/float64(result.Total)) / 100
	}
	result.Passed = Passed(result.Outcomes, policy)
	return result
}

// ActionFor returns the remediation action registered for an expectation id
func (r *Runner) ActionFor(expectationID string) string {
	for _, e := range r.expectations {
		if e.ID == expectationID {
			return e.Action
		}
	}
	return ""
}

// Passed applies a pass policy to a set of outcomes
func Passed(outcomes []entity.ExpectationOutcome, policy entity.PassPolicy) bool {
	for _, o := range outcomes {
		if o.Success {
			continue
		}
		if policy == entity.PassPolicyStrict || o.Severity.AtLeast(entity.SeverityCritical) {
			return false
		}
	}
	return true
}
