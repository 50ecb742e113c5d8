package templategen

import (
	"fmt"

	"github.com/shopspring/decimal"
)

func asRSIUpper(threshold interface{}) float64 {
	switch t := threshold.(type) {
	case float64:
		return 100 - t
	case int:
		return 100 - float64(t)
	default:
		return 70
	}
}

// MomentumTemplate is the minimum one named template spec.md §4.6 requires
// ("named templates include at minimum a momentum template"). Its
// materializer emits an expr-lang program referencing only
// manifest-preferred adjusted-price and technical-indicator keys.
func MomentumTemplate() TemplateSchema {
	return TemplateSchema{
		Name:     "momentum",
		DataKeys: []string{"adj_close", "rsi_14"},
		Params: []ParamSchema{
			{Name: "lookback", Type: TypeNumber, Min: decimal.NewFromInt(5), Max: decimal.NewFromInt(120), Default: 20.0},
			{Name: "rsi_threshold", Type: TypeNumber, Min: decimal.NewFromInt(10), Max: decimal.NewFromInt(90), Default: 30.0},
			{Name: "direction", Type: TypeString, Allowed: []string{"long", "short"}, Default: "long"},
		},
		FewShot: `{"lookback": 20, "rsi_threshold": 30, "direction": "long"}`,
		Materialize: func(params map[string]interface{}) string {
			threshold := params["rsi_threshold"]
			direction := params["direction"]
			if direction == "short" {
				return fmt.Sprintf(`data["rsi_14"] >= %v`, asRSIUpper(threshold))
			}
			return fmt.Sprintf(`data["rsi_14"] <= %v`, threshold)
		},
	}
}
