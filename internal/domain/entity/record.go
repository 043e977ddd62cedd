package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// NormalizedRecord is one trial balance line after column mapping.
// (Entity, AccountCode, CompanyCode, Period) is unique per store.
type NormalizedRecord struct {
	ID                 int64           `json:"id"`
	Entity             string          `json:"entity"`
	AccountCode        string          `json:"account_code"`
	AccountName        string          `json:"account_name"`
	Balance            decimal.Decimal `json:"balance"`
	CompanyCode        string          `json:"company_code"`
	Period             string          `json:"period"`
	Category           string          `json:"category,omitempty"`
	Criticality        Criticality     `json:"criticality,omitempty"`
	ReviewStatus       ReviewStatus    `json:"review_status,omitempty"`
	Department         Department      `json:"department,omitempty"`
	ReconciliationFlag bool            `json:"reconciliation_flag"`
	Classification     Classification  `json:"classification,omitempty"`
	VariancePct        float64         `json:"variance_pct"`
	SourceFingerprint  string          `json:"source_fingerprint"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// NaturalKey identifies a record within an entity store
type NaturalKey struct {
	Entity      string
	AccountCode string
	CompanyCode string
	Period      string
}

// Key returns the record's natural key
func (r *NormalizedRecord) Key() NaturalKey {
	return NaturalKey{
		Entity:      r.Entity,
		AccountCode: r.AccountCode,
		CompanyCode: r.CompanyCode,
		Period:      r.Period,
	}
}

// MergeFrom copies the mutable fields of incoming onto r and reports whether anything changed.
// Identity fields and timestamps are left alone.
func (r *NormalizedRecord) MergeFrom(incoming *NormalizedRecord) bool {
	changed := false
	if r.AccountName != incoming.AccountName {
		r.AccountName = incoming.AccountName
		changed = true
	}
	if !r.Balance.Equal(incoming.Balance) {
		r.Balance = incoming.Balance
		changed = true
	}
	if r.Category != incoming.Category {
		r.Category = incoming.Category
		changed = true
	}
	if r.Criticality != incoming.Criticality {
		r.Criticality = incoming.Criticality
		changed = true
	}
	if r.ReviewStatus != incoming.ReviewStatus {
		r.ReviewStatus = incoming.ReviewStatus
		changed = true
	}
	// an extract without a department column never clears one derived by assignment
	if !incoming.Department.IsZero() && r.Department != incoming.Department {
		r.Department = incoming.Department
		changed = true
	}
	if r.ReconciliationFlag != incoming.ReconciliationFlag {
		r.ReconciliationFlag = incoming.ReconciliationFlag
		changed = true
	}
	if r.Classification != incoming.Classification {
		r.Classification = incoming.Classification
		changed = true
	}
	if r.VariancePct != incoming.VariancePct {
		r.VariancePct = incoming.VariancePct
		changed = true
	}
	if r.SourceFingerprint != incoming.SourceFingerprint {
		r.SourceFingerprint = incoming.SourceFingerprint
		changed = true
	}
	return changed
}
