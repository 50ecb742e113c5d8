package classifier

import (
	"testing"

	"github.com/atlas-desktop/strategy-discovery/internal/metricsextractor"
	"github.com/shopspring/decimal"
)

func defaultThresholds() Thresholds {
	return Thresholds{
		DynamicSharpeThreshold: decimal.NewFromFloat(1.0),
		StatisticalThreshold:   decimal.NewFromFloat(0.5),
		MaxDrawdownBound:       decimal.NewFromFloat(0.25),
	}
}

func TestClassify_NoMetricsIsLevel0(t *testing.T) {
	if got := Classify(false, metricsextractor.Record{}, defaultThresholds()); got != LevelFailed {
		t.Fatalf("expected level_0_failed, got %s", got)
	}
}

func TestClassify_ZeroTradesIsLevel1(t *testing.T) {
	rec := metricsextractor.Record{SharpeRatio: decimal.NewFromFloat(2.0), TradeCount: 0}
	if got := Classify(true, rec, defaultThresholds()); got != LevelExecuted {
		t.Fatalf("expected level_1_executed, got %s", got)
	}
}

func TestClassify_BelowThresholdIsLevel2(t *testing.T) {
	rec := metricsextractor.Record{SharpeRatio: decimal.NewFromFloat(0.5), TradeCount: 10, MaxDrawdown: decimal.NewFromFloat(0.1)}
	if got := Classify(true, rec, defaultThresholds()); got != LevelValid {
		t.Fatalf("expected level_2_valid, got %s", got)
	}
}

func TestClassify_AboveThresholdIsLevel3(t *testing.T) {
	rec := metricsextractor.Record{SharpeRatio: decimal.NewFromFloat(1.5), TradeCount: 10, MaxDrawdown: decimal.NewFromFloat(0.1)}
	if got := Classify(true, rec, defaultThresholds()); got != LevelAcceptable {
		t.Fatalf("expected level_3_acceptable, got %s", got)
	}
}

func TestClassify_HighDrawdownCapsAtLevel2(t *testing.T) {
	rec := metricsextractor.Record{SharpeRatio: decimal.NewFromFloat(1.5), TradeCount: 10, MaxDrawdown: decimal.NewFromFloat(0.5)}
	if got := Classify(true, rec, defaultThresholds()); got != LevelValid {
		t.Fatalf("expected level_2_valid when drawdown exceeds bound, got %s", got)
	}
}

func TestClassify_StatisticalThresholdDominatesWhenHigher(t *testing.T) {
	th := Thresholds{
		DynamicSharpeThreshold: decimal.NewFromFloat(0.6),
		StatisticalThreshold:   decimal.NewFromFloat(1.2),
		MaxDrawdownBound:       decimal.NewFromFloat(0.25),
	}
	rec := metricsextractor.Record{SharpeRatio: decimal.NewFromFloat(0.8), TradeCount: 10, MaxDrawdown: decimal.NewFromFloat(0.1)}
	if got := Classify(true, rec, th); got != LevelValid {
		t.Fatalf("expected the higher statistical_threshold to block promotion, got %s", got)
	}
}

func TestClassify_PureFunction(t *testing.T) {
	rec := metricsextractor.Record{SharpeRatio: decimal.NewFromFloat(1.2), TradeCount: 5, MaxDrawdown: decimal.NewFromFloat(0.05)}
	th := defaultThresholds()
	a := Classify(true, rec, th)
	b := Classify(true, rec, th)
	if a != b {
		t.Fatalf("expected identical inputs to yield identical classification, got %s then %s", a, b)
	}
}
