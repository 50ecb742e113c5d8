// Package metricsextractor converts a raw backtest report into a
// normalized MetricsRecord. Grounded on the teacher's
// internal/backtester.MetricsCalculator, narrowed to the derived-field
// rules spec.md §4.4 commits to (Calmar's epsilon guard, the
// metrics_unavailable failure mode).
package metricsextractor

import (
	"errors"
	"math"

	"github.com/atlas-desktop/strategy-discovery/internal/simulator"
	"github.com/shopspring/decimal"
)

// ErrMetricsUnavailable is returned when a report cannot yield a usable
// Sharpe ratio and drawdown figure.
var ErrMetricsUnavailable = errors.New("metricsextractor: metrics_unavailable")

// Record is the normalized metrics record handed to SuccessClassifier.
type Record struct {
	SharpeRatio  decimal.Decimal
	AnnualReturn decimal.Decimal
	MaxDrawdown  decimal.Decimal
	WinRate      decimal.Decimal
	TradeCount   int
	PositionCount int

	// CalmarRatio is only meaningful when CalmarDefined is true (spec.md
	// §4.4: "absent (not NaN, not infinity)" when |max_drawdown| <= 1e-10).
	CalmarRatio   decimal.Decimal
	CalmarDefined bool
}

const calmarEpsilon = 1e-10

// Extract converts a simulator.Report into a Record. It reconstructs the
// returns series from the equity curve when the report did not populate
// one directly (spec.md §4.4: `returns = equity.pct_change().dropna()`).
func Extract(report *simulator.Report) (Record, error) {
	if report == nil {
		return Record{}, ErrMetricsUnavailable
	}

	returns := report.Returns
	if len(returns) == 0 && len(report.EquityCurve) > 1 {
		returns = reconstructReturns(report.EquityCurve)
	}
	if len(returns) == 0 {
		return Record{}, ErrMetricsUnavailable
	}

	sharpeF, _ := report.SharpeRatio.Float64()
	drawdownF, _ := report.MaxDrawdown.Float64()
	if !isFinite(sharpeF) || !isFinite(drawdownF) {
		return Record{}, ErrMetricsUnavailable
	}

	rec := Record{
		SharpeRatio:   report.SharpeRatio,
		AnnualReturn:  report.AnnualReturn,
		MaxDrawdown:   report.MaxDrawdown,
		WinRate:       report.WinRate,
		TradeCount:    report.TradeCount,
		PositionCount: report.PositionCount,
	}

	if math.Abs(drawdownF) > calmarEpsilon {
		annualF, _ := report.AnnualReturn.Float64()
		calmar := annualF / math.Abs(drawdownF)
		if isFinite(calmar) {
			rec.CalmarRatio = decimal.NewFromFloat(calmar)
			rec.CalmarDefined = true
		}
	}

	if err := rec.assertFinite(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (r Record) assertFinite() error {
	fields := []decimal.Decimal{r.SharpeRatio, r.AnnualReturn, r.MaxDrawdown, r.WinRate}
	if r.CalmarDefined {
		fields = append(fields, r.CalmarRatio)
	}
	for _, f := range fields {
		v, _ := f.Float64()
		if !isFinite(v) {
			return ErrMetricsUnavailable
		}
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func reconstructReturns(curve []simulator.EquityPoint) []float64 {
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev, _ := curve[i-1].Equity.Float64()
		curr, _ := curve[i].Equity.Float64()
		if prev == 0 {
			continue
		}
		out = append(out, (curr-prev)/prev)
	}
	return out
}
