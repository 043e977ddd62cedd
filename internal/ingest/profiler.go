package ingest

import (
	"fmt"
	"math"

	"github.com/garyjia/closeflow/internal/domain/entity"
)

// DefaultNullWarningThreshold is the null percentage above which a column is flagged
const DefaultNullWarningThreshold = 30.0

// Profiler computes per-column quality statistics. It has no side effects.
type Profiler struct {
	nullWarningThreshold float64
}

// NewProfiler creates a profiler; a non-positive threshold selects the default
func NewProfiler(nullWarningThreshold float64) *Profiler {
	if nullWarningThreshold <= 0 {
		nullWarningThreshold = DefaultNullWarningThreshold
	}
	return &Profiler{nullWarningThreshold: nullWarningThreshold}
}

// Profile never fails: malformed input yields a zero-quality profile with a warning
func (p *Profiler) Profile(t *Table) *entity.DataProfile {
	if t == nil || len(t.Columns) == 0 {
		return &entity.DataProfile{
			Columns:  []entity.ColumnProfile{},
			Warnings: []string{"table has no columns"},
		}
	}

	profile := &entity.DataProfile{
		RowCount:    len(t.Rows),
		ColumnCount: len(t.Columns),
		Columns:     make([]entity.ColumnProfile, 0, len(t.Columns)),
		Warnings:    []string{},
	}

	var nullSum float64
	for i, name := range t.Columns {
		col := p.profileColumn(t, i, name)
		nullSum += col.NullPercentage
		if col.NullPercentage > p.nullWarningThreshold {
			profile.Warnings = append(profile.Warnings,
				fmt.Sprintf("column %q is %.1f%% null", name, col.NullPercentage))
		}
		profile.Columns = append(profile.Columns, col)
	}

	score := 100 - nullSum/float64(len(t.Columns))
	profile.QualityScore = round2(math.Max(0, math.Min(100, score)))
	return profile
}

func (p *Profiler) profileColumn(t *Table, idx int, name string) entity.ColumnProfile {
	col := entity.ColumnProfile{Name: name, InferredType: "empty"}
	distinct := make(map[string]struct{})
	types := make(map[string]int)

	for _, row := range t.Rows {
		cell := row[idx]
		if IsNull(cell) {
			col.NullCount++
			continue
		}
		distinct[cell] = struct{}{}
		types[inferType(cell)]++
	}

	col.DistinctCount = len(distinct)
	if len(t.Rows) > 0 {
		col.NullPercentage = round2(float64(col.NullCount) / float64(len(t.Rows)) * 100)
	}
	col.InferredType = dominantType(types)
	return col
}

// dominantType collapses integer into decimal when a column mixes both
func dominantType(counts map[string]int) string {
	if len(counts) == 0 {
		return "empty"
	}
	if len(counts) == 2 && counts["integer"] > 0 && counts["decimal"] > 0 {
		return "decimal"
	}
	if len(counts) > 1 {
		return "string"
	}
	for t := range counts {
		return t
	}
	return "empty"
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
