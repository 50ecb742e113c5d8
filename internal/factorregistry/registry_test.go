package factorregistry

import (
	"testing"
	"time"

	"github.com/atlas-desktop/strategy-discovery/internal/dataaccessor"
)

func TestDefaultCatalogRegistersAllSeedFactors(t *testing.T) {
	r := Default()
	want := []string{
		"momentum_roc", "momentum_rsi",
		"breakout_donchian", "breakout_atr_channel",
		"liquidity_filter", "volatility_filter",
		"trailing_stop_atr", "trailing_stop_pct",
	}
	for _, name := range want {
		if _, ok := r.Get(name); !ok {
			t.Fatalf("expected %q to be registered", name)
		}
	}
}

func TestNamesDeterministicOrder(t *testing.T) {
	r := Default()
	a := r.Names(CategoryMomentum)
	b := r.Names(CategoryMomentum)
	if len(a) != 2 || a[0] != b[0] || a[1] != b[1] {
		t.Fatalf("expected stable registration order, got %v then %v", a, b)
	}
}

func TestMomentumROCCompute(t *testing.T) {
	spec := Default().MustGet("momentum_roc")
	dates := make([]time.Time, 25)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i)
	}
	m := dataaccessor.NewMatrix(dates, []string{"2330"})
	for i := range dates {
		m.Values[i][0] = 100 + float64(i)
	}
	out, err := spec.Compute([]*dataaccessor.Matrix{m}, map[string]float64{"lookback": 20})
	if err != nil {
		t.Fatal(err)
	}
	if out.Values[20][0] <= 0 {
		t.Fatalf("expected positive momentum after 20-day rise, got %f", out.Values[20][0])
	}
}

func TestTrailingStopPctTriggersOnDrawdown(t *testing.T) {
	spec := Default().MustGet("trailing_stop_pct")
	dates := make([]time.Time, 5)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i)
	}
	m := dataaccessor.NewMatrix(dates, []string{"2330"})
	prices := []float64{100, 110, 120, 90, 90}
	for i, p := range prices {
		m.Values[i][0] = p
	}
	out, err := spec.Compute([]*dataaccessor.Matrix{m}, map[string]float64{"pct": 0.08})
	if err != nil {
		t.Fatal(err)
	}
	if out.Values[3][0] != -1 {
		t.Fatalf("expected stop trigger at row 3 (drop from peak 120 to 90), got %f", out.Values[3][0])
	}
}

func TestComputeMissingInputErrors(t *testing.T) {
	spec := Default().MustGet("momentum_roc")
	if _, err := spec.Compute(nil, map[string]float64{"lookback": 20}); err == nil {
		t.Fatal("expected error on missing input")
	}
}
