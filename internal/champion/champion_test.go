package champion

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/strategy-discovery/internal/artifact"
	"github.com/atlas-desktop/strategy-discovery/internal/metricsextractor"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	dir := t.TempDir()
	tr, err := New(zap.NewNop(), filepath.Join(dir, "champion.json"), DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	return tr
}

func metricsWith(sharpe, drawdown, winRate float64, trades int) metricsextractor.Record {
	return metricsextractor.Record{
		SharpeRatio: decimal.NewFromFloat(sharpe),
		MaxDrawdown: decimal.NewFromFloat(drawdown),
		WinRate:     decimal.NewFromFloat(winRate),
		TradeCount:  trades,
	}
}

func codeArtifact(id, codeText string) *artifact.CodeArtifact {
	return &artifact.CodeArtifact{CodeText: codeText}
}

func TestPropose_FirstCandidateAlwaysAccepted(t *testing.T) {
	tr := newTestTracker(t)
	accepted, err := tr.Propose(0, "llm", codeArtifact("s1", "momentum_roc"), metricsWith(0.5, 0.1, 0.5, 10), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !accepted {
		t.Fatal("expected first candidate to always be accepted")
	}
	if tr.Current() == nil {
		t.Fatal("expected a champion to now exist")
	}
}

func TestPropose_RejectsLowerSharpe(t *testing.T) {
	tr := newTestTracker(t)
	if _, err := tr.Propose(0, "llm", codeArtifact("s1", ""), metricsWith(1.0, 0.1, 0.5, 10), nil); err != nil {
		t.Fatal(err)
	}
	accepted, err := tr.Propose(1, "llm", codeArtifact("s2", ""), metricsWith(0.9, 0.1, 0.5, 10), nil)
	if err != nil {
		t.Fatal(err)
	}
	if accepted {
		t.Fatal("expected a lower-Sharpe candidate to be rejected")
	}
}

func TestPropose_RejectsWhenDrawdownExceedsTolerance(t *testing.T) {
	tr := newTestTracker(t)
	if _, err := tr.Propose(0, "llm", codeArtifact("s1", ""), metricsWith(1.0, 0.05, 0.5, 10), nil); err != nil {
		t.Fatal(err)
	}
	accepted, err := tr.Propose(1, "llm", codeArtifact("s2", ""), metricsWith(2.0, 0.5, 0.5, 10), nil)
	if err != nil {
		t.Fatal(err)
	}
	if accepted {
		t.Fatal("expected large drawdown regression to be rejected despite higher Sharpe")
	}
}

func TestPropose_RejectsWinRateRegression(t *testing.T) {
	tr := newTestTracker(t)
	if _, err := tr.Propose(0, "llm", codeArtifact("s1", ""), metricsWith(1.0, 0.05, 0.6, 10), nil); err != nil {
		t.Fatal(err)
	}
	accepted, err := tr.Propose(1, "llm", codeArtifact("s2", ""), metricsWith(2.0, 0.05, 0.1, 10), nil)
	if err != nil {
		t.Fatal(err)
	}
	if accepted {
		t.Fatal("expected a win-rate regression beyond tolerance to be rejected")
	}
}

func TestPropose_ExtractsSuccessPatterns(t *testing.T) {
	tr := newTestTracker(t)
	if _, err := tr.Propose(0, "llm", codeArtifact("s1", "momentum_roc+trailing_stop_atr"), metricsWith(1.0, 0.05, 0.5, 10), nil); err != nil {
		t.Fatal(err)
	}
	patterns := tr.Current().SuccessPatterns
	found := map[string]bool{}
	for _, p := range patterns {
		found[p] = true
	}
	if !found["momentum_"] || !found["trailing_stop"] {
		t.Fatalf("expected momentum_ and trailing_stop patterns, got %v", patterns)
	}
}

func TestPropose_RetainsGraphForFutureMutation(t *testing.T) {
	tr := newTestTracker(t)
	g := &artifact.GraphArtifact{
		StrategyID: "g1",
		TerminalNodeID: "m",
		Nodes: map[string]*artifact.FactorNode{
			"m": {NodeID: "m", FactorName: "momentum_roc"},
		},
	}
	if _, err := tr.Propose(0, "factor_graph", g, metricsWith(1.0, 0.05, 0.5, 10), nil); err != nil {
		t.Fatal(err)
	}
	cur := tr.Current()
	if cur.Graph == nil || cur.Graph.StrategyID != "g1" {
		t.Fatalf("expected the promoted graph to be retained, got %+v", cur.Graph)
	}
}

func TestForceDemotion_ClearsChampion(t *testing.T) {
	tr := newTestTracker(t)
	if _, err := tr.Propose(0, "llm", codeArtifact("s1", ""), metricsWith(1.0, 0.05, 0.5, 10), nil); err != nil {
		t.Fatal(err)
	}
	if err := tr.ForceDemotion("test"); err != nil {
		t.Fatal(err)
	}
	if tr.Current() != nil {
		t.Fatal("expected champion to be cleared")
	}
}

func TestNew_LoadsPersistedChampion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "champion.json")
	tr1, err := New(zap.NewNop(), path, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tr1.Propose(0, "llm", codeArtifact("s1", ""), metricsWith(1.0, 0.05, 0.5, 10), nil); err != nil {
		t.Fatal(err)
	}

	tr2, err := New(zap.NewNop(), path, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	cur := tr2.Current()
	if cur == nil || cur.Identity.CodeText != "" {
		t.Fatalf("expected reloaded champion identity to match persisted record, got %+v", cur)
	}
}
