package ingest

import (
	"fmt"
	"strings"

	"github.com/garyjia/closeflow/internal/domain/entity"
)

// RecordDefaults carries the job's unit, applied to rows that omit it
type RecordDefaults struct {
	Entity      string
	Period      string
	Fingerprint string
}

// RecordBuilder converts mapped rows into normalized records
type RecordBuilder struct {
	index    map[string]int
	defaults RecordDefaults
}

// NewRecordBuilder indexes a mapped header. defaults.Period is expected in YYYY-MM form.
func NewRecordBuilder(mapped []string, defaults RecordDefaults) *RecordBuilder {
	index := make(map[string]int, len(mapped))
	for i, name := range mapped {
		if _, seen := index[name]; !seen {
			index[name] = i
		}
	}
	return &RecordBuilder{index: index, defaults: defaults}
}

func (b *RecordBuilder) cell(row []string, field string) string {
	i, ok := b.index[field]
	if !ok || i >= len(row) {
		return ""
	}
	v := strings.TrimSpace(row[i])
	if IsNull(v) {
		return ""
	}
	return v
}

// AccountCode returns the row's account code cell, for error reporting
func (b *RecordBuilder) AccountCode(row []string) string {
	return b.cell(row, FieldAccountCode)
}

// Build converts one row. The error describes why the row cannot be stored and
// becomes a row error; it never aborts the job.
func (b *RecordBuilder) Build(row []string) (*entity.NormalizedRecord, error) {
	code := b.cell(row, FieldAccountCode)
	if code == "" {
		return nil, fmt.Errorf("account_code is empty")
	}

	rawBalance := b.cell(row, FieldBalance)
	if rawBalance == "" {
		return nil, fmt.Errorf("balance is empty")
	}
	balance, err := ParseAmount(rawBalance)
	if err != nil {
		return nil, err
	}

	entityCode := b.defaults.Entity
	if v := b.cell(row, FieldEntity); v != "" && !strings.EqualFold(v, b.defaults.Entity) {
		return nil, fmt.Errorf("row entity %q does not match job entity %q", v, b.defaults.Entity)
	}

	period := b.defaults.Period
	if v := b.cell(row, FieldPeriod); v != "" && NormalizePeriod(v) != period {
		return nil, fmt.Errorf("row period %q does not match job period %q", v, period)
	}

	variance, err := ParsePercent(b.cell(row, FieldVariancePct))
	if err != nil {
		return nil, err
	}

	companyCode := b.cell(row, FieldCompanyCode)
	if companyCode == "" {
		companyCode = entityCode
	}

	return &entity.NormalizedRecord{
		Entity:             entityCode,
		AccountCode:        code,
		AccountName:        b.cell(row, FieldAccountName),
		Balance:            balance,
		CompanyCode:        companyCode,
		Period:             period,
		Category:           strings.ToLower(b.cell(row, FieldCategory)),
		Criticality:        entity.ParseCriticality(b.cell(row, FieldCriticality)),
		ReviewStatus:       entity.ParseReviewStatus(b.cell(row, FieldReviewStatus)),
		Department:         entity.ParseDepartment(b.cell(row, FieldDepartment)),
		ReconciliationFlag: ParseFlag(b.cell(row, FieldReconciliationFlag)),
		Classification:     entity.ParseClassification(b.cell(row, FieldClassification)),
		VariancePct:        variance,
		SourceFingerprint:  b.defaults.Fingerprint,
	}, nil
}
