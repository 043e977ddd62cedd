// Package assignment holds the pure building blocks of account assignment:
// risk scoring, category rules and the shared workload tracker.
package assignment

import (
	"github.com/shopspring/decimal"

	"github.com/garyjia/closeflow/internal/domain/entity"
)

var (
	maxScore = decimal.NewFromInt(1000)

	reconciliationFactor = decimal.RequireFromString("1.2")
	varianceFactor       = decimal.RequireFromString("1.3")
	varianceThreshold    = 50.0

	criticalityWeights = map[entity.Criticality]decimal.Decimal{
		entity.CriticalityCritical: decimal.NewFromInt(100),
		entity.CriticalityMedium:   decimal.NewFromInt(50),
		entity.CriticalityLow:      decimal.NewFromInt(25),
	}
	defaultWeight = decimal.NewFromInt(25)

	tierZero   = decimal.RequireFromString("0.5")
	tierSmall  = decimal.RequireFromString("1.0")
	tierMedium = decimal.RequireFromString("1.5")
	tierLarge  = decimal.RequireFromString("2.0")
	tierHuge   = decimal.RequireFromString("3.0")

	bound100K = decimal.NewFromInt(100_000)
	bound1M   = decimal.NewFromInt(1_000_000)
	bound10M  = decimal.NewFromInt(10_000_000)
)

// RiskScorer turns criticality, balance and flags into a priority in [0, 1000].
// It is stateless and safe for concurrent use.
type RiskScorer struct{}

// NewRiskScorer creates a risk scorer
func NewRiskScorer() *RiskScorer {
	return &RiskScorer{}
}

// Score computes weight(criticality) x tier(|balance|), then x1.2 for reconciliation
// accounts and x1.3 when |variancePct| > 50, clamped to 1000 and rounded to 2 places
func (s *RiskScorer) Score(criticality entity.Criticality, balance decimal.Decimal, isReconciliation bool, variancePct float64) decimal.Decimal {
	weight, ok := criticalityWeights[criticality]
	if !ok {
		weight = defaultWeight
	}

	score := weight.Mul(BalanceTier(balance))
	if isReconciliation {
		score = score.Mul(reconciliationFactor)
	}
	if variancePct > varianceThreshold || variancePct < -varianceThreshold {
		score = score.Mul(varianceFactor)
	}

	if score.GreaterThan(maxScore) {
		score = maxScore
	}
	if score.IsNegative() {
		score = decimal.Zero
	}
	return score.Round(2)
}

// BalanceTier returns the multiplier for the magnitude of a balance
func BalanceTier(balance decimal.Decimal) decimal.Decimal {
	abs := balance.Abs()
	switch {
	case abs.IsZero():
		return tierZero
	case abs.LessThan(bound100K):
		return tierSmall
	case abs.LessThan(bound1M):
		return tierMedium
	case abs.LessThan(bound10M):
		return tierLarge
	default:
		return tierHuge
	}
}
