package validation

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/garyjia/closeflow/internal/domain/entity"
)

// Expectation ids in evaluation order
const (
	RowCountPositive       = "row_count_positive"
	RequiredColumnsNotNull = "required_columns_not_null"
	NaturalKeyUnique       = "natural_key_unique"
	AccountCodeFormat      = "account_code_format"
	PeriodFormat           = "period_format"
	BalancePrecision       = "balance_precision"
	BalanceNil             = "balance_nil"
	BalanceRange           = "balance_range"
	CriticalityInSet       = "criticality_in_set"
	ReviewStatusInSet      = "review_status_in_set"
	ClassificationInSet    = "classification_in_set"
	CategoryCompleteness   = "category_completeness"
	DepartmentCompleteness = "department_completeness"
)

// Remediation actions a failed expectation may request
const (
	ActionAssignAccounts = "assign_accounts"
)

// Expectation is one rule of the validation battery
type Expectation struct {
	ID          string
	Severity    entity.Severity
	Category    string
	Remediation string
	// Action is dispatched on failure when auto-remediation is on; empty means none
	Action string

	check func(records []*entity.NormalizedRecord) (bool, string)
}

// Evaluate runs the expectation against a record set
func (e Expectation) Evaluate(records []*entity.NormalizedRecord) entity.ExpectationOutcome {
	ok, observed := e.check(records)
	return entity.ExpectationOutcome{
		ID:          e.ID,
		Severity:    e.Severity,
		Category:    e.Category,
		Success:     ok,
		Observed:    observed,
		Remediation: e.Remediation,
	}
}

func buildExpectations(cfg Config, accountCode, period *regexp.Regexp) []Expectation {
	return []Expectation{
		{
			ID: RowCountPositive, Severity: entity.SeverityCritical, Category: "completeness",
			Remediation: "No records loaded for this entity and period; re-run ingestion with the correct extract.",
			check:       func(records []*entity.NormalizedRecord) (bool, string) {
				return len(records) > 0, fmt.Sprintf("rows=%d", len(records))
			},
		},
		{
			ID: RequiredColumnsNotNull, Severity: entity.SeverityCritical, Category: "completeness",
			Remediation: "Fill account_code and account_name for every row in the source extract.",
			check:       countInvalid(func(r *entity.NormalizedRecord) bool {
				return r.AccountCode == "" || r.AccountName == ""
			}),
		},
		{
			ID: NaturalKeyUnique, Severity: entity.SeverityCritical, Category: "uniqueness",
			Remediation: "Remove duplicate account_code/company_code/period rows from the extract.",
			check:       naturalKeyUnique,
		},
		{
			ID: AccountCodeFormat, Severity: entity.SeverityHigh, Category: "format",
			Remediation: fmt.Sprintf("Account codes must match %s; fix the chart of accounts mapping.", accountCode),
			check:       countInvalid(func(r *entity.NormalizedRecord) bool {
				return !accountCode.MatchString(r.AccountCode)
			}),
		},
		{
			ID: PeriodFormat, Severity: entity.SeverityHigh, Category: "format",
			Remediation: "Periods must be YYYY-MM; correct the period column or ingestion parameters.",
			check:       countInvalid(func(r *entity.NormalizedRecord) bool {
				return !period.MatchString(r.Period)
			}),
		},
		{
			ID: BalancePrecision, Severity: entity.SeverityMedium, Category: "numeric",
			Remediation: "Round balances to two decimal places in the source system export.",
			check:       countInvalid(func(r *entity.NormalizedRecord) bool {
				return !r.Balance.Equal(r.Balance.Round(2))
			}),
		},
		{
			ID: BalanceNil, Severity: entity.SeverityCritical, Category: "consistency",
			Remediation: "Debits and credits do not net to zero; check for missing accounts or a partial extract.",
			check:       func(records []*entity.NormalizedRecord) (bool, string) {
				sum := decimal.Zero
				for _, r := range records {
					sum = sum.Add(r.Balance)
				}
				return sum.Abs().LessThanOrEqual(cfg.BalanceTolerance), "sum=" + sum.StringFixed(2)
			},
		},
		{
			ID: BalanceRange, Severity: entity.SeverityMedium, Category: "range",
			Remediation: "Review outlier balances above the configured maximum for keying errors.",
			check:       countInvalid(func(r *entity.NormalizedRecord) bool {
				return r.Balance.Abs().GreaterThan(cfg.MaxAbsBalance)
			}),
		},
		{
			ID: CriticalityInSet, Severity: entity.SeverityMedium, Category: "membership",
			Remediation: "Criticality must be one of critical, medium or low.",
			check:       countInvalid(func(r *entity.NormalizedRecord) bool {
				return r.Criticality != "" && !r.Criticality.IsValid()
			}),
		},
		{
			ID: ReviewStatusInSet, Severity: entity.SeverityLow, Category: "membership",
			Remediation: "Review status must be pending, prepared, reviewed, approved or flagged.",
			check:       countInvalid(func(r *entity.NormalizedRecord) bool {
				return r.ReviewStatus != "" && !r.ReviewStatus.IsValid()
			}),
		},
		{
			ID: ClassificationInSet, Severity: entity.SeverityMedium, Category: "membership",
			Remediation: "Classification must be BS or PL.",
			check:       countInvalid(func(r *entity.NormalizedRecord) bool {
				return r.Classification != "" && !r.Classification.IsValid()
			}),
		},
		{
			ID: CategoryCompleteness, Severity: entity.SeverityMedium, Category: "completeness",
			Remediation: "Map the missing account categories so rules can route them.",
			check:       completeness(cfg.CompletenessThreshold, func(r *entity.NormalizedRecord) bool {
				return r.Category != ""
			}),
		},
		{
			ID: DepartmentCompleteness, Severity: entity.SeverityLow, Category: "completeness",
			Remediation: "Run account assignment to derive departments from category rules.",
			Action:      ActionAssignAccounts,
			check:       completeness(cfg.CompletenessThreshold, func(r *entity.NormalizedRecord) bool {
				return !r.Department.IsZero()
			}),
		},
	}
}

func countInvalid(invalid func(*entity.NormalizedRecord) bool) func([]*entity.NormalizedRecord) (bool, string) {
	return func(records []*entity.NormalizedRecord) (bool, string) {
		n := 0
		for _, r := range records {
			if invalid(r) {
				n++
			}
		}
		return n == 0, fmt.Sprintf("invalid=%d", n)
	}
}

func naturalKeyUnique(records []*entity.NormalizedRecord) (bool, string) {
	seen := make(map[entity.NaturalKey]bool, len(records))
	dupes := 0
	for _, r := range records {
		k := r.Key()
		if seen[k] {
			dupes++
			continue
		}
		seen[k] = true
	}
	return dupes == 0, fmt.Sprintf("duplicates=%d", dupes)
}

// completeness passes when at least threshold percent of rows satisfy present.
// An empty set is 0% complete.
func completeness(threshold float64, present func(*entity.NormalizedRecord) bool) func([]*entity.NormalizedRecord) (bool, string) {
	return func(records []*entity.NormalizedRecord) (bool, string) {
		if len(records) == 0 {
			return false, "complete=0.00%"
		}
		n := 0
		for _, r := range records {
			if present(r) {
				n++
			}
		}
		pct := float64(n) * 100 / float64(len(records))
		return pct >= threshold, fmt.Sprintf("complete=%.2f%%", pct)
	}
}
