package ingest

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Canonical field names of a normalized record
const (
	FieldAccountCode        = "account_code"
	FieldAccountName        = "account_name"
	FieldBalance            = "balance"
	FieldEntity             = "entity"
	FieldCompanyCode        = "company_code"
	FieldPeriod             = "period"
	FieldCategory           = "category"
	FieldCriticality        = "criticality"
	FieldReviewStatus       = "review_status"
	FieldDepartment         = "department"
	FieldReconciliationFlag = "reconciliation_flag"
	FieldClassification     = "classification"
	FieldVariancePct        = "variance_pct"
)

// RequiredFields must be present after mapping or the file is rejected
var RequiredFields = []string{FieldAccountCode, FieldAccountName, FieldBalance}

var defaultAliases = map[string][]string{
	FieldAccountCode:        {"gl_code", "gl_account", "gl_acct", "gl", "account", "account_number", "account_no", "acct", "acct_no", "acct_code"},
	FieldAccountName:        {"gl_account_name", "gl_name", "account_description", "account_title", "acct_name", "description"},
	FieldBalance:            {"amount", "closing_balance", "ending_balance", "net_balance", "balance_amount", "gl_balance", "balance_lc", "local_currency_balance"},
	FieldEntity:             {"entity_code", "legal_entity", "le"},
	FieldCompanyCode:        {"company", "co_code", "cocd", "bukrs"},
	FieldPeriod:             {"fiscal_period", "reporting_period", "posting_period"},
	FieldCategory:           {"account_category", "gl_category", "bs_category"},
	FieldCriticality:        {"risk", "risk_level", "criticality_level"},
	FieldReviewStatus:       {"status", "reconciliation_status"},
	FieldDepartment:         {"dept", "owner_department", "responsible_department"},
	FieldReconciliationFlag: {"reconciliation_type", "recon_flag", "is_reconciliation", "reconciliation_account"},
	FieldClassification:     {"bs_pl", "bspl", "bs_pl_flag", "statement_type"},
	FieldVariancePct:        {"variance", "variance_percent", "variance_percentage", "var_pct"},
}

// SchemaMapper renames raw columns onto the canonical field set
type SchemaMapper struct {
	lookup map[string]string
}

// NewSchemaMapper builds a mapper from the built-in alias table
func NewSchemaMapper() *SchemaMapper {
	m := &SchemaMapper{lookup: make(map[string]string)}
	for canonical, aliases := range defaultAliases {
		m.lookup[canonical] = canonical
		for _, alias := range aliases {
			m.lookup[normalizeHeader(alias)] = canonical
		}
	}
	return m
}

// WithOverrides adds aliases (canonical field -> raw names). Overrides win over built-ins.
func (m *SchemaMapper) WithOverrides(overrides map[string][]string) error {
	for canonical, aliases := range overrides {
		if _, ok := defaultAliases[canonical]; !ok {
			return fmt.Errorf("unknown canonical field %q in mapping overrides", canonical)
		}
		for _, alias := range aliases {
			m.lookup[normalizeHeader(alias)] = canonical
		}
	}
	return nil
}

// Map returns the normalized name of each raw column. Unknown columns keep their
// folded header; when two columns resolve to the same field the first one wins.
func (m *SchemaMapper) Map(raw []string) []string {
	out := make([]string, len(raw))
	taken := make(map[string]bool, len(raw))
	for i, col := range raw {
		key := normalizeHeader(col)
		if canonical, ok := m.lookup[key]; ok && !taken[canonical] {
			out[i] = canonical
			taken[canonical] = true
			continue
		}
		out[i] = key
	}
	return out
}

// ValidateRequired reports the required fields missing from a mapped header
func ValidateRequired(normalized []string) (bool, []string) {
	present := make(map[string]bool, len(normalized))
	for _, c := range normalized {
		present[c] = true
	}
	var missing []string
	for _, f := range RequiredFields {
		if !present[f] {
			missing = append(missing, f)
		}
	}
	return len(missing) == 0, missing
}

// normalizeHeader folds case and turns spaces, dashes, dots and slashes into single underscores
func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	var b strings.Builder
	lastUnderscore := false
	for _, r := range h {
		switch r {
		case ' ', '-', '.', '/', '_', '\t':
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
			continue
		}
		b.WriteRune(r)
		lastUnderscore = false
	}
	return strings.TrimSuffix(b.String(), "_")
}

type mappingFile struct {
	Aliases map[string][]string `yaml:"aliases"`
}

// LoadMappingOverrides reads an alias override file:
//
//	aliases:
//	  account_code: [konto, gl_no]
func LoadMappingOverrides(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file: %w", err)
	}
	var f mappingFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse mapping file: %w", err)
	}
	return f.Aliases, nil
}
