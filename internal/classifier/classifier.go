// Package classifier implements SuccessClassifier: a pure function mapping
// a metrics record to a discrete outcome level. Grounded on the teacher's
// internal/backtester.ViabilityChecker scoring bands, narrowed to the four
// ordered levels spec.md §4.5 defines.
package classifier

import (
	"math"

	"github.com/atlas-desktop/strategy-discovery/internal/metricsextractor"
	"github.com/shopspring/decimal"
)

// Level is the ordered classification outcome.
type Level string

const (
	LevelFailed     Level = "level_0_failed"
	LevelExecuted   Level = "level_1_executed"
	LevelValid      Level = "level_2_valid"
	LevelAcceptable Level = "level_3_acceptable"
)

// Thresholds configures the level_3 bar; all other levels are
// threshold-free by definition (spec.md §4.5). Two sharpe bars are tracked
// separately per spec.md §9's "separation of thresholds": DynamicSharpeThreshold
// is the configured market-aware bar (a fixed value per deployment; nothing
// here adjusts it at run time), while StatisticalThreshold is a fixed,
// Bonferroni-corrected significance bound (~0.5) guarding against a sharpe
// ratio that only looks good because enough candidates were tried. Both are
// reported; promotion to level_3 uses whichever is higher.
type Thresholds struct {
	DynamicSharpeThreshold decimal.Decimal
	StatisticalThreshold   decimal.Decimal
	MaxDrawdownBound       decimal.Decimal
}

// Classify is a pure function: identical (record, thresholds, hasMetrics)
// inputs always produce the same level (property P5).
func Classify(hasMetrics bool, rec metricsextractor.Record, th Thresholds) Level {
	if !hasMetrics {
		return LevelFailed
	}

	sharpeF, _ := rec.SharpeRatio.Float64()
	if !isFinite(sharpeF) || rec.TradeCount <= 0 {
		return LevelExecuted
	}

	dynamic, _ := th.DynamicSharpeThreshold.Float64()
	statistical, _ := th.StatisticalThreshold.Float64()
	threshold := math.Max(dynamic, statistical)
	bound, _ := th.MaxDrawdownBound.Float64()
	drawdownF, _ := rec.MaxDrawdown.Float64()

	if sharpeF >= threshold && drawdownF <= bound {
		return LevelAcceptable
	}
	return LevelValid
}

// levelOrder fixes the four outcome levels' rank so callers (e.g.
// FactorGraphMutator's adaptive operator weighting) can ask "did this
// iteration do at least as well as X" without re-deriving the ordering.
var levelOrder = map[Level]int{
	LevelFailed:     0,
	LevelExecuted:   1,
	LevelValid:      2,
	LevelAcceptable: 3,
}

// AtLeast reports whether l ranks at or above other in the level_0..level_3
// ordering.
func (l Level) AtLeast(other Level) bool {
	return levelOrder[l] >= levelOrder[other]
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
