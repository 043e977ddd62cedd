package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssignmentRecord pairs a record with a preparer and an optional reviewer.
// Only the external review workflow advances it past assigned or skipped.
type AssignmentRecord struct {
	ID            int64            `json:"id"`
	Entity        string           `json:"entity"`
	GLCode        string           `json:"gl_code"`
	CompanyCode   string           `json:"company_code"`
	Period        string           `json:"period"`
	PreparerID    string           `json:"preparer_id,omitempty"`
	ReviewerID    *string          `json:"reviewer_id,omitempty"`
	Department    Department       `json:"department"`
	Criticality   Criticality      `json:"criticality"`
	PriorityScore decimal.Decimal  `json:"priority_score"`
	SLADeadline   *time.Time       `json:"sla_deadline,omitempty"`
	Status        AssignmentStatus `json:"status"`
	SkipReason    string           `json:"skip_reason,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// AssignmentResult is returned per record by an assignment run.
// Unassigned results are reported but never persisted.
type AssignmentResult struct {
	AssignmentRecord
	Error string `json:"error,omitempty"`
}

// SkipReasonZeroBalance marks records skipped by the zero-balance rule
const SkipReasonZeroBalance = "zero balance"
