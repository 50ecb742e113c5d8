package novelty

import (
	"testing"

	"github.com/atlas-desktop/strategy-discovery/internal/artifact"
)

func graphWith(id string, nodes map[string]*artifact.FactorNode, terminal string) *artifact.GraphArtifact {
	return &artifact.GraphArtifact{StrategyID: id, Nodes: nodes, TerminalNodeID: terminal}
}

func TestDiversity_EmptyPriorsIsMaximal(t *testing.T) {
	a := New(DefaultWeights())
	candidate := graphWith("c", map[string]*artifact.FactorNode{
		"m": {NodeID: "m", FactorName: "momentum_roc"},
	}, "m")
	if d := a.Diversity(candidate, nil); d != 1.0 {
		t.Fatalf("expected diversity 1.0 against empty population, got %f", d)
	}
}

func TestSimilarity_IdenticalGraphsScoreOne(t *testing.T) {
	a := New(DefaultWeights())
	g1 := graphWith("a", map[string]*artifact.FactorNode{
		"m": {NodeID: "m", FactorName: "momentum_roc"},
		"s": {NodeID: "s", FactorName: "trailing_stop_atr", DependsOnNodes: []string{"m"}},
	}, "s")
	g2 := graphWith("b", map[string]*artifact.FactorNode{
		"m": {NodeID: "m", FactorName: "momentum_roc"},
		"s": {NodeID: "s", FactorName: "trailing_stop_atr", DependsOnNodes: []string{"m"}},
	}, "s")
	if sim := a.Similarity(g1, g2); sim < 0.99 {
		t.Fatalf("expected near-identical structural graphs to score close to 1.0, got %f", sim)
	}
}

func TestSimilarity_DisjointFactorSetsScoreLow(t *testing.T) {
	a := New(DefaultWeights())
	g1 := graphWith("a", map[string]*artifact.FactorNode{
		"m": {NodeID: "m", FactorName: "momentum_roc"},
	}, "m")
	g2 := graphWith("b", map[string]*artifact.FactorNode{
		"v": {NodeID: "v", FactorName: "volatility_filter"},
	}, "v")
	if sim := a.Similarity(g1, g2); sim > 0.5 {
		t.Fatalf("expected disjoint factor sets to score low similarity, got %f", sim)
	}
}

func TestSimilarity_CodeArtifactTokenOverlap(t *testing.T) {
	a := New(DefaultWeights())
	c1 := &artifact.CodeArtifact{CodeText: `data["rsi_14"] <= 30`}
	c2 := &artifact.CodeArtifact{CodeText: `data["rsi_14"] <= 25`}
	c3 := &artifact.CodeArtifact{CodeText: `data["adj_close"] > 0`}

	simNear := a.Similarity(c1, c2)
	simFar := a.Similarity(c1, c3)
	if simNear <= simFar {
		t.Fatalf("expected rsi-sharing variants to be more similar than unrelated code, got near=%f far=%f", simNear, simFar)
	}
}
