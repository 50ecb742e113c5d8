package monitoring

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/atlas-desktop/strategy-discovery/internal/classifier"
)

func TestPrometheusSink_RecordClassificationIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg)

	sink.RecordClassification(classifier.LevelAcceptable)
	sink.RecordClassification(classifier.LevelAcceptable)

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	var found float64
	for _, mf := range metricFamilies {
		if mf.GetName() != "discovery_iterations_by_level_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			found += metricValue(m)
		}
	}
	if found != 2 {
		t.Fatalf("expected counter value 2, got %f", found)
	}
}

func TestPrometheusSink_GaugesSetLatestValue(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg)

	sink.RecordChampionSharpe(1.23)
	sink.RecordChampionSharpe(4.56)

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != "discovery_champion_sharpe_ratio" {
			continue
		}
		if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 4.56 {
			t.Fatalf("expected latest gauge value 4.56, got %f", got)
		}
	}
}

func TestNoopSink_NeverPanics(t *testing.T) {
	var s NoopSink
	s.RecordClassification(classifier.LevelFailed)
	s.RecordStageTiming("generate", 0.1)
	s.RecordChampionSharpe(1.0)
	s.RecordDiversity(0.5)
	s.RecordOrphanedWorkers(0)
	s.RecordIterationError("timeout")
}

func metricValue(m *dto.Metric) float64 {
	if c := m.GetCounter(); c != nil {
		return c.GetValue()
	}
	return 0
}
