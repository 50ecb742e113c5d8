package factorregistry

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/strategy-discovery/internal/dataaccessor"
)

// Default returns the seed catalog named in SPEC_FULL.md §4.7.1: two
// momentum factors, two breakout factors, two filters, and two stop
// factors — enough for FactorGraphMutator's template bootstrap seed graph
// (momentum + breakout + trailing-stop) and for "add factor"/"replace
// factor" mutations to have more than one candidate per category.
func Default() *Registry {
	r := New()
	r.Register(momentumROC())
	r.Register(momentumRSI())
	r.Register(breakoutDonchian())
	r.Register(breakoutATRChannel())
	r.Register(liquidityFilter())
	r.Register(volatilityFilter())
	r.Register(trailingStopATR())
	r.Register(trailingStopPct())
	return r
}

func momentumROC() FactorSpec {
	return FactorSpec{
		Name:     "momentum_roc",
		Category: CategoryMomentum,
		Inputs:   Inputs{DataKeys: []string{"adj_close"}},
		Params: []ParamRange{
			{Name: "lookback", Default: decimal.NewFromInt(20), Min: decimal.NewFromInt(5), Max: decimal.NewFromInt(120)},
		},
		Compute: func(inputs []*dataaccessor.Matrix, params map[string]float64) (*dataaccessor.Matrix, error) {
			price, err := requireInput(inputs, 0)
			if err != nil {
				return nil, err
			}
			lookback := int(params["lookback"])
			out := dataaccessor.NewMatrix(price.Dates, price.Symbols)
			for col := range price.Symbols {
				for row := range price.Dates {
					if row < lookback {
						continue
					}
					prior := price.Values[row-lookback][col]
					if prior == 0 {
						continue
					}
					out.Values[row][col] = (price.Values[row][col] - prior) / prior
				}
			}
			return out, nil
		},
	}
}

func momentumRSI() FactorSpec {
	return FactorSpec{
		Name:     "momentum_rsi",
		Category: CategoryMomentum,
		Inputs:   Inputs{DataKeys: []string{"rsi_14"}},
		Params: []ParamRange{
			{Name: "overbought", Default: decimal.NewFromInt(70), Min: decimal.NewFromInt(50), Max: decimal.NewFromInt(90)},
			{Name: "oversold", Default: decimal.NewFromInt(30), Min: decimal.NewFromInt(10), Max: decimal.NewFromInt(50)},
		},
		Compute: func(inputs []*dataaccessor.Matrix, params map[string]float64) (*dataaccessor.Matrix, error) {
			rsi, err := requireInput(inputs, 0)
			if err != nil {
				return nil, err
			}
			oversold := params["oversold"]
			out := dataaccessor.NewMatrix(rsi.Dates, rsi.Symbols)
			for col := range rsi.Symbols {
				for row := range rsi.Dates {
					if rsi.Values[row][col] <= oversold {
						out.Values[row][col] = 1
					}
				}
			}
			return out, nil
		},
	}
}

func breakoutDonchian() FactorSpec {
	return FactorSpec{
		Name:     "breakout_donchian",
		Category: CategoryBreakout,
		Inputs:   Inputs{DataKeys: []string{"adj_high", "adj_close"}},
		Params: []ParamRange{
			{Name: "window", Default: decimal.NewFromInt(20), Min: decimal.NewFromInt(10), Max: decimal.NewFromInt(60)},
		},
		Compute: func(inputs []*dataaccessor.Matrix, params map[string]float64) (*dataaccessor.Matrix, error) {
			high, err := requireInput(inputs, 0)
			if err != nil {
				return nil, err
			}
			closeP, err := requireInput(inputs, 1)
			if err != nil {
				return nil, err
			}
			window := int(params["window"])
			out := dataaccessor.NewMatrix(high.Dates, high.Symbols)
			for col := range high.Symbols {
				for row := range high.Dates {
					if row < window {
						continue
					}
					maxHigh := math.Inf(-1)
					for k := row - window; k < row; k++ {
						if high.Values[k][col] > maxHigh {
							maxHigh = high.Values[k][col]
						}
					}
					if closeP.Values[row][col] > maxHigh {
						out.Values[row][col] = 1
					}
				}
			}
			return out, nil
		},
	}
}

func breakoutATRChannel() FactorSpec {
	return FactorSpec{
		Name:     "breakout_atr_channel",
		Category: CategoryBreakout,
		Inputs:   Inputs{DataKeys: []string{"adj_close", "atr_14"}},
		Params: []ParamRange{
			{Name: "multiplier", Default: decimal.NewFromFloat(2.0), Min: decimal.NewFromFloat(0.5), Max: decimal.NewFromFloat(4.0)},
		},
		Compute: func(inputs []*dataaccessor.Matrix, params map[string]float64) (*dataaccessor.Matrix, error) {
			closeP, err := requireInput(inputs, 0)
			if err != nil {
				return nil, err
			}
			atr, err := requireInput(inputs, 1)
			if err != nil {
				return nil, err
			}
			mult := params["multiplier"]
			out := dataaccessor.NewMatrix(closeP.Dates, closeP.Symbols)
			for col := range closeP.Symbols {
				sma := 0.0
				for row := range closeP.Dates {
					sma += closeP.Values[row][col]
					avg := sma / float64(row+1)
					band := avg + mult*atr.Values[row][col]
					if closeP.Values[row][col] > band {
						out.Values[row][col] = 1
					}
				}
			}
			return out, nil
		},
	}
}

func liquidityFilter() FactorSpec {
	return FactorSpec{
		Name:     "liquidity_filter",
		Category: CategoryFilter,
		Inputs:   Inputs{DataKeys: []string{"turnover_value"}},
		Params: []ParamRange{
			{Name: "min_turnover", Default: decimal.NewFromInt(5_000_000), Min: decimal.NewFromInt(100_000), Max: decimal.NewFromInt(500_000_000)},
		},
		Compute: func(inputs []*dataaccessor.Matrix, params map[string]float64) (*dataaccessor.Matrix, error) {
			turnover, err := requireInput(inputs, 0)
			if err != nil {
				return nil, err
			}
			min := params["min_turnover"]
			out := dataaccessor.NewMatrix(turnover.Dates, turnover.Symbols)
			for col := range turnover.Symbols {
				for row := range turnover.Dates {
					if turnover.Values[row][col] >= min {
						out.Values[row][col] = 1
					}
				}
			}
			return out, nil
		},
	}
}

func volatilityFilter() FactorSpec {
	return FactorSpec{
		Name:     "volatility_filter",
		Category: CategoryFilter,
		Inputs:   Inputs{DataKeys: []string{"atr_14", "adj_close"}},
		Params: []ParamRange{
			{Name: "max_atr_pct", Default: decimal.NewFromFloat(0.05), Min: decimal.NewFromFloat(0.01), Max: decimal.NewFromFloat(0.2)},
		},
		Compute: func(inputs []*dataaccessor.Matrix, params map[string]float64) (*dataaccessor.Matrix, error) {
			atr, err := requireInput(inputs, 0)
			if err != nil {
				return nil, err
			}
			closeP, err := requireInput(inputs, 1)
			if err != nil {
				return nil, err
			}
			maxPct := params["max_atr_pct"]
			out := dataaccessor.NewMatrix(atr.Dates, atr.Symbols)
			for col := range atr.Symbols {
				for row := range atr.Dates {
					price := closeP.Values[row][col]
					if price == 0 {
						continue
					}
					if atr.Values[row][col]/price <= maxPct {
						out.Values[row][col] = 1
					}
				}
			}
			return out, nil
		},
	}
}

func trailingStopATR() FactorSpec {
	return FactorSpec{
		Name:     "trailing_stop_atr",
		Category: CategoryStop,
		Inputs:   Inputs{DataKeys: []string{"adj_close", "atr_14"}},
		Params: []ParamRange{
			{Name: "multiplier", Default: decimal.NewFromFloat(3.0), Min: decimal.NewFromFloat(1.0), Max: decimal.NewFromFloat(6.0)},
		},
		Compute: func(inputs []*dataaccessor.Matrix, params map[string]float64) (*dataaccessor.Matrix, error) {
			closeP, err := requireInput(inputs, 0)
			if err != nil {
				return nil, err
			}
			atr, err := requireInput(inputs, 1)
			if err != nil {
				return nil, err
			}
			mult := params["multiplier"]
			out := dataaccessor.NewMatrix(closeP.Dates, closeP.Symbols)
			for col := range closeP.Symbols {
				peak := math.Inf(-1)
				for row := range closeP.Dates {
					if closeP.Values[row][col] > peak {
						peak = closeP.Values[row][col]
					}
					stop := peak - mult*atr.Values[row][col]
					if closeP.Values[row][col] <= stop {
						out.Values[row][col] = -1 // exit signal
					} else {
						out.Values[row][col] = 1
					}
				}
			}
			return out, nil
		},
	}
}

func trailingStopPct() FactorSpec {
	return FactorSpec{
		Name:     "trailing_stop_pct",
		Category: CategoryStop,
		Inputs:   Inputs{DataKeys: []string{"adj_close"}},
		Params: []ParamRange{
			{Name: "pct", Default: decimal.NewFromFloat(0.08), Min: decimal.NewFromFloat(0.05), Max: decimal.NewFromFloat(0.20)},
		},
		Compute: func(inputs []*dataaccessor.Matrix, params map[string]float64) (*dataaccessor.Matrix, error) {
			closeP, err := requireInput(inputs, 0)
			if err != nil {
				return nil, err
			}
			pct := params["pct"]
			out := dataaccessor.NewMatrix(closeP.Dates, closeP.Symbols)
			for col := range closeP.Symbols {
				peak := math.Inf(-1)
				for row := range closeP.Dates {
					if closeP.Values[row][col] > peak {
						peak = closeP.Values[row][col]
					}
					if peak > 0 && closeP.Values[row][col] <= peak*(1-pct) {
						out.Values[row][col] = -1
					} else {
						out.Values[row][col] = 1
					}
				}
			}
			return out, nil
		},
	}
}

func requireInput(inputs []*dataaccessor.Matrix, idx int) (*dataaccessor.Matrix, error) {
	if idx >= len(inputs) || inputs[idx] == nil {
		return nil, fmt.Errorf("factorregistry: missing required input %d", idx)
	}
	return inputs[idx], nil
}
