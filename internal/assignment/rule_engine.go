package assignment

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/garyjia/closeflow/internal/domain/entity"
	"github.com/garyjia/closeflow/pkg/utils"
)

// Rule describes who owns a category of accounts and how fast it must be reconciled
type Rule struct {
	Category      string             `yaml:"category"`
	Department    entity.Department  `yaml:"department"`
	Criticality   entity.Criticality `yaml:"criticality"`
	SLADays       int                `yaml:"sla_days"`
	RequiredLevel entity.Level       `yaml:"required_level"`
}

// DefaultRule applies to categories missing from the table
var DefaultRule = Rule{
	Department:    entity.DepartmentGeneralLedger,
	Criticality:   entity.CriticalityLow,
	SLADays:       7,
	RequiredLevel: entity.LevelJunior,
}

var defaultRules = []Rule{
	{"cash", entity.DepartmentTreasury, entity.CriticalityCritical, 3, entity.LevelSenior},
	{"bank", entity.DepartmentTreasury, entity.CriticalityCritical, 3, entity.LevelSenior},
	{"receivables", entity.DepartmentReceivables, entity.CriticalityMedium, 5, entity.LevelJunior},
	{"payables", entity.DepartmentPayables, entity.CriticalityMedium, 5, entity.LevelJunior},
	{"inventory", entity.DepartmentInventory, entity.CriticalityMedium, 7, entity.LevelJunior},
	{"fixed_assets", entity.DepartmentFixedAssets, entity.CriticalityLow, 10, entity.LevelJunior},
	{"accruals", entity.DepartmentGeneralLedger, entity.CriticalityMedium, 5, entity.LevelSenior},
	{"intercompany", entity.DepartmentIntercompany, entity.CriticalityCritical, 5, entity.LevelSenior},
	{"tax", entity.DepartmentTax, entity.CriticalityCritical, 5, entity.LevelSenior},
	{"payroll", entity.DepartmentPayroll, entity.CriticalityMedium, 5, entity.LevelJunior},
	{"revenue", entity.DepartmentRevenue, entity.CriticalityCritical, 5, entity.LevelSenior},
	{"equity", entity.DepartmentGeneralLedger, entity.CriticalityLow, 10, entity.LevelManager},
}

var categoryAliases = map[string]string{
	"cash_and_equivalents": "cash",
	"bank_accounts":        "bank",
	"ar":                   "receivables",
	"accounts_receivable":  "receivables",
	"ap":                   "payables",
	"accounts_payable":     "payables",
	"ppe":                  "fixed_assets",
	"accrued_liabilities":  "accruals",
	"ic":                   "intercompany",
}

//go:embed rules.schema.json
var rulesSchemaJSON []byte

var rulesSchema = utils.MustCompileSchema("rules.schema.json", rulesSchemaJSON)

// RuleEngine resolves account categories to rules. It is read-only after construction.
type RuleEngine struct {
	rules    map[string]Rule
	fallback Rule
}

// NewRuleEngine creates an engine over the built-in category table
func NewRuleEngine() *RuleEngine {
	e := &RuleEngine{rules: make(map[string]Rule, len(defaultRules)), fallback: DefaultRule}
	for _, r := range defaultRules {
		e.rules[r.Category] = r
	}
	return e
}

// Resolve returns the rule for category, or the default rule
func (e *RuleEngine) Resolve(category string) Rule {
	key := normalizeCategory(category)
	if r, ok := e.rules[key]; ok {
		return r
	}
	r := e.fallback
	r.Category = key
	return r
}

type rulesFile struct {
	ReplaceDefaults bool   `yaml:"replace_defaults"`
	Default         *Rule  `yaml:"default"`
	Rules           []Rule `yaml:"rules"`
}

// LoadRuleEngine builds an engine from a YAML rules file. Rules extend the built-in
// table unless replace_defaults is set.
func LoadRuleEngine(path string) (*RuleEngine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules builds an engine from YAML rules content
func ParseRules(data []byte) (*RuleEngine, error) {
	if err := rulesSchema.ValidateYAML(data); err != nil {
		return nil, err
	}

	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}

	e := NewRuleEngine()
	if f.ReplaceDefaults {
		e.rules = make(map[string]Rule, len(f.Rules))
	}
	if f.Default != nil {
		e.fallback = normalizeRule(*f.Default)
	}
	for _, r := range f.Rules {
		r = normalizeRule(r)
		r.Category = normalizeCategory(r.Category)
		e.rules[r.Category] = r
	}
	return e, nil
}

func normalizeRule(r Rule) Rule {
	r.Department = entity.ParseDepartment(string(r.Department))
	r.Criticality = entity.ParseCriticality(string(r.Criticality))
	r.RequiredLevel = entity.ParseLevel(string(r.RequiredLevel))
	return r
}

func normalizeCategory(category string) string {
	key := strings.ToLower(strings.TrimSpace(category))
	key = strings.NewReplacer(" ", "_", "-", "_", "&", "and").Replace(key)
	if alias, ok := categoryAliases[key]; ok {
		return alias
	}
	return key
}
