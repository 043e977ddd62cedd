package entity

import "time"

// PassPolicy decides how expectation failures roll up into ValidationResult.Passed
type PassPolicy string

const (
	// PassPolicyCriticalOnly fails a run only when a critical expectation fails
	PassPolicyCriticalOnly PassPolicy = "critical_only"
	// PassPolicyStrict fails a run on any failed expectation
	PassPolicyStrict PassPolicy = "strict"
)

// IsValid returns true for the known policies
func (p PassPolicy) IsValid() bool {
	return p == PassPolicyCriticalOnly || p == PassPolicyStrict
}

// ExpectationOutcome is the result of a single expectation
type ExpectationOutcome struct {
	ID          string   `json:"id"`
	Severity    Severity `json:"severity"`
	Category    string   `json:"category"`
	Success     bool     `json:"success"`
	Observed    string   `json:"observed"`
	Remediation string   `json:"remediation,omitempty"`
}

// RemediationAction records an action dispatched for a failed expectation
type RemediationAction struct {
	ExpectationID string `json:"expectation_id"`
	Action        string `json:"action"`
}

// ValidationResult is one run over an (entity, period). Runs are append-only.
type ValidationResult struct {
	RunID        string               `json:"run_id"`
	Entity       string               `json:"entity"`
	Period       string               `json:"period"`
	Policy       PassPolicy           `json:"policy"`
	Total        int                  `json:"total_expectations"`
	PassedCount  int                  `json:"passed_expectations"`
	FailedCount  int                  `json:"failed_expectations"`
	SuccessRate  float64              `json:"success_rate"`
	Passed       bool                 `json:"passed"`
	Outcomes     []ExpectationOutcome `json:"outcomes"`
	Remediations []RemediationAction  `json:"remediations"`
	CreatedAt    time.Time            `json:"created_at"`
}

// Failures returns the failed outcomes in evaluation order
func (r *ValidationResult) Failures() []ExpectationOutcome {
	var failures []ExpectationOutcome
	for _, o := range r.Outcomes {
		if !o.Success {
			failures = append(failures, o)
		}
	}
	return failures
}

// Outcome looks up an expectation outcome by id
func (r *ValidationResult) Outcome(id string) (ExpectationOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.ID == id {
			return o, true
		}
	}
	return ExpectationOutcome{}, false
}
