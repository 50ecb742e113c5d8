package factorgraph

import (
	"math/rand"
	"testing"

	"github.com/atlas-desktop/strategy-discovery/internal/artifact"
	"github.com/atlas-desktop/strategy-discovery/internal/factorregistry"
)

func TestSeedGraph_ContainsRequiredCategories(t *testing.T) {
	g := SeedGraph("seed-1")
	if err := g.Validate(); err != nil {
		t.Fatal(err)
	}
	wantFactors := map[string]bool{"momentum_roc": false, "breakout_donchian": false, "trailing_stop_atr": false}
	for _, n := range g.Nodes {
		if _, ok := wantFactors[n.FactorName]; ok {
			wantFactors[n.FactorName] = true
		}
	}
	for name, found := range wantFactors {
		if !found {
			t.Fatalf("expected seed graph to contain factor %q", name)
		}
	}
}

func TestMutate_DeterministicGivenSameSeed(t *testing.T) {
	reg := factorregistry.Default()
	champion := SeedGraph("champ")

	m1 := New(reg)
	child1, _, err := m1.Mutate(champion, PhaseEarly, 0.5, rand.New(rand.NewSource(42)), "child-1")
	if err != nil {
		t.Fatal(err)
	}

	m2 := New(reg)
	child2, _, err := m2.Mutate(champion, PhaseEarly, 0.5, rand.New(rand.NewSource(42)), "child-1")
	if err != nil {
		t.Fatal(err)
	}

	if len(child1.Nodes) != len(child2.Nodes) {
		t.Fatalf("expected same seed to produce same node count, got %d vs %d", len(child1.Nodes), len(child2.Nodes))
	}
}

func TestMutate_ChildDoesNotShareNodeMapWithParent(t *testing.T) {
	reg := factorregistry.Default()
	champion := SeedGraph("champ")
	m := New(reg)

	child, _, err := m.Mutate(champion, PhaseEarly, 0.5, rand.New(rand.NewSource(1)), "child")
	if err != nil {
		t.Fatal(err)
	}
	child.Nodes["momentum"].Parameters["lookback"] = 999.0
	if champion.Nodes["momentum"].Parameters["lookback"] == 999.0 {
		t.Fatal("expected child mutation to not affect parent's node map")
	}
}

func TestMutate_ChildIsAcyclic(t *testing.T) {
	reg := factorregistry.Default()
	champion := SeedGraph("champ")
	m := New(reg)
	for i := 0; i < 20; i++ {
		child, _, err := m.Mutate(champion, PhaseMid, 0.5, rand.New(rand.NewSource(int64(i))), "child")
		if err != nil {
			continue
		}
		if _, err := artifact.TopologicalOrder(child); err != nil {
			t.Fatalf("mutation produced a cyclic graph on iteration %d: %v", i, err)
		}
	}
}

func TestRecordOutcome_BoundedAdjustment(t *testing.T) {
	reg := factorregistry.Default()
	m := New(reg)
	initial := m.successRates[OpAddFactor]
	m.RecordOutcome(OpAddFactor, true)
	if m.successRates[OpAddFactor] <= initial {
		t.Fatal("expected success to raise the operator's rate")
	}
	for i := 0; i < 100; i++ {
		m.RecordOutcome(OpAddFactor, false)
	}
	if m.successRates[OpAddFactor] < successRateFloor {
		t.Fatalf("expected rate to never drop below floor %f, got %f", successRateFloor, m.successRates[OpAddFactor])
	}
}
