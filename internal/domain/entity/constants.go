package entity

import "strings"

// Criticality is the discrete risk tier of an account
type Criticality string

const (
	CriticalityCritical Criticality = "critical"
	CriticalityMedium   Criticality = "medium"
	CriticalityLow      Criticality = "low"
)

// ParseCriticality normalizes raw input; the result may still be invalid
func ParseCriticality(raw string) Criticality {
	return Criticality(strings.ToLower(strings.TrimSpace(raw)))
}

// IsValid returns true for the known criticality tiers
func (c Criticality) IsValid() bool {
	switch c {
	case CriticalityCritical, CriticalityMedium, CriticalityLow:
		return true
	}
	return false
}

// Rank orders tiers from low (1) to critical (3); unknown values rank 0
func (c Criticality) Rank() int {
	switch c {
	case CriticalityCritical:
		return 3
	case CriticalityMedium:
		return 2
	case CriticalityLow:
		return 1
	}
	return 0
}

func (c Criticality) String() string {
	return string(c)
}

// ReviewStatus tracks where a record sits in the preparer/reviewer workflow
type ReviewStatus string

const (
	ReviewStatusPending  ReviewStatus = "pending"
	ReviewStatusPrepared ReviewStatus = "prepared"
	ReviewStatusReviewed ReviewStatus = "reviewed"
	ReviewStatusApproved ReviewStatus = "approved"
	ReviewStatusFlagged  ReviewStatus = "flagged"
)

// ParseReviewStatus normalizes raw input; the result may still be invalid
func ParseReviewStatus(raw string) ReviewStatus {
	return ReviewStatus(strings.ToLower(strings.TrimSpace(raw)))
}

// IsValid returns true for the known review statuses
func (s ReviewStatus) IsValid() bool {
	switch s {
	case ReviewStatusPending, ReviewStatusPrepared, ReviewStatusReviewed, ReviewStatusApproved, ReviewStatusFlagged:
		return true
	}
	return false
}

// Classification separates balance sheet from profit and loss accounts
type Classification string

const (
	ClassificationBalanceSheet Classification = "BS"
	ClassificationProfitLoss   Classification = "PL"
)

// ParseClassification accepts BS/PL and their spelled-out forms
func ParseClassification(raw string) Classification {
	v := strings.ToUpper(strings.TrimSpace(raw))
	switch v {
	case "BALANCE SHEET", "BALANCE_SHEET":
		return ClassificationBalanceSheet
	case "P&L", "PNL", "PROFIT AND LOSS", "PROFIT_AND_LOSS", "INCOME STATEMENT":
		return ClassificationProfitLoss
	}
	return Classification(v)
}

// IsValid returns true for BS and PL
func (c Classification) IsValid() bool {
	return c == ClassificationBalanceSheet || c == ClassificationProfitLoss
}

// Department owns a group of accounts and the users who reconcile them
type Department string

const (
	DepartmentTreasury      Department = "Treasury"
	DepartmentReceivables   Department = "Accounts Receivable"
	DepartmentPayables      Department = "Accounts Payable"
	DepartmentFixedAssets   Department = "Fixed Assets"
	DepartmentInventory     Department = "Inventory"
	DepartmentPayroll       Department = "Payroll"
	DepartmentTax           Department = "Tax"
	DepartmentRevenue       Department = "Revenue"
	DepartmentIntercompany  Department = "Intercompany"
	DepartmentGeneralLedger Department = "General Ledger"
)

var knownDepartments = map[string]Department{
	"treasury":            DepartmentTreasury,
	"accounts receivable": DepartmentReceivables,
	"ar":                  DepartmentReceivables,
	"accounts payable":    DepartmentPayables,
	"ap":                  DepartmentPayables,
	"fixed assets":        DepartmentFixedAssets,
	"inventory":           DepartmentInventory,
	"payroll":             DepartmentPayroll,
	"tax":                 DepartmentTax,
	"revenue":             DepartmentRevenue,
	"intercompany":        DepartmentIntercompany,
	"general ledger":      DepartmentGeneralLedger,
	"gl":                  DepartmentGeneralLedger,
}

// ParseDepartment maps known spellings onto canonical department names.
// Unknown names are kept verbatim so custom rule files can introduce new departments.
func ParseDepartment(raw string) Department {
	v := strings.TrimSpace(raw)
	if d, ok := knownDepartments[strings.ToLower(v)]; ok {
		return d
	}
	return Department(v)
}

// IsZero reports an unset department
func (d Department) IsZero() bool {
	return d == ""
}

func (d Department) String() string {
	return string(d)
}

// Level is the seniority of a user
type Level string

const (
	LevelJunior  Level = "junior"
	LevelSenior  Level = "senior"
	LevelManager Level = "manager"
)

// ParseLevel normalizes raw input; the result may still be invalid
func ParseLevel(raw string) Level {
	return Level(strings.ToLower(strings.TrimSpace(raw)))
}

// Rank orders levels from junior (1) to manager (3); unknown values rank 0
func (l Level) Rank() int {
	switch l {
	case LevelManager:
		return 3
	case LevelSenior:
		return 2
	case LevelJunior:
		return 1
	}
	return 0
}

// IsValid returns true for the known levels
func (l Level) IsValid() bool {
	return l.Rank() > 0
}

// Meets reports whether l is at or above the required level
func (l Level) Meets(required Level) bool {
	return l.Rank() >= required.Rank()
}

// CanReview reports whether the level may act as checker
func (l Level) CanReview() bool {
	return l == LevelSenior || l == LevelManager
}

// Severity ranks validation expectations
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Rank orders severities from info (1) to critical (5)
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 5
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	case SeverityInfo:
		return 1
	}
	return 0
}

// AtLeast reports whether s is as severe as other
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// AssignmentStatus is the outcome of scheduling a record
type AssignmentStatus string

const (
	AssignmentStatusAssigned   AssignmentStatus = "assigned"
	AssignmentStatusSkipped    AssignmentStatus = "skipped"
	AssignmentStatusUnassigned AssignmentStatus = "unassigned"
)
