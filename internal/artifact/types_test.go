package artifact

import "testing"

func TestCodeArtifactValidate(t *testing.T) {
	c := &CodeArtifact{CodeText: ""}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for empty code text")
	}
	c.CodeText = "momentum_roc(close, 20) > 0"
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGraphArtifactValidate_CycleRejected(t *testing.T) {
	g := &GraphArtifact{
		StrategyID:      "s1",
		GenerationDepth: 0,
		Nodes: map[string]*FactorNode{
			"a": {NodeID: "a", DependsOnNodes: []string{"b"}},
			"b": {NodeID: "b", DependsOnNodes: []string{"a"}},
		},
	}
	if err := g.Validate(); err == nil {
		t.Fatal("expected cycle detection error")
	}
}

func TestGraphArtifactValidate_MissingNodeRejected(t *testing.T) {
	g := &GraphArtifact{
		StrategyID:      "s1",
		GenerationDepth: 0,
		Nodes: map[string]*FactorNode{
			"a": {NodeID: "a", DependsOnNodes: []string{"ghost"}},
		},
	}
	if err := g.Validate(); err == nil {
		t.Fatal("expected missing-node error")
	}
}

func TestGraphArtifactValidate_NegativeDepthRejected(t *testing.T) {
	g := &GraphArtifact{StrategyID: "s1", GenerationDepth: -1, Nodes: map[string]*FactorNode{}}
	if err := g.Validate(); err == nil {
		t.Fatal("expected negative depth error")
	}
}

func TestTopologicalOrder_Deterministic(t *testing.T) {
	g := &GraphArtifact{
		Nodes: map[string]*FactorNode{
			"a": {NodeID: "a"},
			"b": {NodeID: "b", DependsOnNodes: []string{"a"}},
			"c": {NodeID: "c", DependsOnNodes: []string{"a", "b"}},
		},
	}
	order1, err := TopologicalOrder(g)
	if err != nil {
		t.Fatal(err)
	}
	order2, err := TopologicalOrder(g)
	if err != nil {
		t.Fatal(err)
	}
	if len(order1) != 3 || order1[len(order1)-1] != "c" {
		t.Fatalf("unexpected order: %v", order1)
	}
	for i := range order1 {
		if order1[i] != order2[i] {
			t.Fatalf("non-deterministic order: %v vs %v", order1, order2)
		}
	}
}
