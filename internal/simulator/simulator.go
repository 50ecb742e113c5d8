// Package simulator implements the backtest simulator external interface:
// simulate(position_matrix, fee_fraction, tax_fraction, rebalance_frequency)
// -> report. Adapted from the teacher's internal/backtester engine and
// metrics calculator, generalized from discrete order fills to a
// position-matrix weight model — a strategy's output is a per-date,
// per-symbol target weight rather than a sequence of buy/sell orders.
package simulator

import (
	"fmt"
	"math"
	"time"

	"github.com/atlas-desktop/strategy-discovery/internal/dataaccessor"
	"github.com/shopspring/decimal"
)

// RebalanceFrequency controls how often target weights are applied; between
// rebalance dates the previous weights are held unchanged.
type RebalanceFrequency string

const (
	RebalanceDaily   RebalanceFrequency = "daily"
	RebalanceWeekly  RebalanceFrequency = "weekly"
	RebalanceMonthly RebalanceFrequency = "monthly"
)

// EquityPoint is one date's portfolio value, mirroring the teacher's
// types.EquityCurvePoint but keyed by weight-model equity instead of
// order-fill equity.
type EquityPoint struct {
	Date   time.Time
	Equity decimal.Decimal
}

// Report is the BacktestReport external interface (spec.md §5): opaque to
// callers beyond a returns series, final equity, and summary statistics.
type Report struct {
	Dates        []time.Time
	Returns      []float64
	EquityCurve  []EquityPoint
	FinalEquity  decimal.Decimal
	AnnualReturn decimal.Decimal
	SharpeRatio  decimal.Decimal
	MaxDrawdown  decimal.Decimal
	WinRate      decimal.Decimal
	TradeCount   int
	PositionCount int
}

// Simulator runs the position-matrix weight model.
type Simulator struct {
	initialCapital decimal.Decimal
}

// New builds a Simulator with the given starting capital.
func New(initialCapital decimal.Decimal) *Simulator {
	return &Simulator{initialCapital: initialCapital}
}

// Simulate runs the weight model over positionMatrix. Row i, column j holds
// the target weight (-1..1) for symbol j on positionMatrix.Dates[i].
// Date-range filtering is the caller's responsibility (applied to
// positionMatrix rows before Simulate is invoked), per spec.md §5.
func (s *Simulator) Simulate(positionMatrix *dataaccessor.Matrix, priceMatrix *dataaccessor.Matrix, feeFraction, taxFraction decimal.Decimal, freq RebalanceFrequency) (*Report, error) {
	if positionMatrix == nil || priceMatrix == nil {
		return nil, fmt.Errorf("simulator: position and price matrices are required")
	}
	if len(positionMatrix.Dates) != len(priceMatrix.Dates) {
		return nil, fmt.Errorf("simulator: position and price matrices have mismatched date ranges (%d vs %d)", len(positionMatrix.Dates), len(priceMatrix.Dates))
	}

	feeF, _ := feeFraction.Float64()
	taxF, _ := taxFraction.Float64()

	nDates := len(positionMatrix.Dates)
	nSymbols := len(positionMatrix.Symbols)
	if nDates == 0 || nSymbols == 0 {
		return &Report{FinalEquity: s.initialCapital}, nil
	}

	equity := make([]float64, nDates)
	equity[0] = mustFloat(s.initialCapital)
	currentWeights := make([]float64, nSymbols)
	tradeCount := 0
	positionsSeen := map[int]bool{}

	for i := 1; i < nDates; i++ {
		dailyReturn := 0.0
		for col := 0; col < nSymbols; col++ {
			prevPrice := priceMatrix.Values[i-1][col]
			currPrice := priceMatrix.Values[i][col]
			if prevPrice == 0 {
				continue
			}
			assetReturn := (currPrice - prevPrice) / prevPrice
			dailyReturn += currentWeights[col] * assetReturn
		}

		if shouldRebalance(i, freq) {
			turnover := 0.0
			for col := 0; col < nSymbols; col++ {
				target := positionMatrix.Values[i][col]
				turnover += math.Abs(target - currentWeights[col])
				if target != 0 {
					positionsSeen[col] = true
				}
				if target != currentWeights[col] {
					tradeCount++
				}
				currentWeights[col] = target
			}
			cost := turnover * (feeF + taxF)
			dailyReturn -= cost
		}

		equity[i] = equity[i-1] * (1 + dailyReturn)
	}

	returns := make([]float64, 0, nDates-1)
	for i := 1; i < nDates; i++ {
		if equity[i-1] == 0 {
			continue
		}
		returns = append(returns, (equity[i]-equity[i-1])/equity[i-1])
	}

	curve := make([]EquityPoint, nDates)
	for i := range equity {
		curve[i] = EquityPoint{Date: positionMatrix.Dates[i], Equity: decimal.NewFromFloat(equity[i])}
	}

	report := &Report{
		Dates:         positionMatrix.Dates,
		Returns:       returns,
		EquityCurve:   curve,
		FinalEquity:   decimal.NewFromFloat(equity[nDates-1]),
		TradeCount:    tradeCount,
		PositionCount: len(positionsSeen),
	}
	report.AnnualReturn = decimal.NewFromFloat(annualizedReturn(returns))
	report.SharpeRatio = decimal.NewFromFloat(sharpeRatio(returns))
	report.MaxDrawdown = decimal.NewFromFloat(maxDrawdown(equity))
	report.WinRate = decimal.NewFromFloat(winRate(returns))
	return report, nil
}

func shouldRebalance(dayIndex int, freq RebalanceFrequency) bool {
	switch freq {
	case RebalanceWeekly:
		return dayIndex%5 == 0
	case RebalanceMonthly:
		return dayIndex%21 == 0
	default:
		return true
	}
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	sumSq := 0.0
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}

func annualizedReturn(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	return mean(returns) * 252
}

func sharpeRatio(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	sd := stdDev(returns)
	if sd == 0 {
		return 0
	}
	return (mean(returns) / sd) * math.Sqrt(252)
}

func maxDrawdown(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}
	peak := equity[0]
	maxDD := 0.0
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak == 0 {
			continue
		}
		dd := (peak - v) / peak
		if dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

func winRate(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	wins := 0
	for _, r := range returns {
		if r > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(returns))
}
