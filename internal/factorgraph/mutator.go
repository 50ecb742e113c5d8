// Package factorgraph implements FactorGraphMutator: the evolutionary
// strategy generator. It reads the current champion's graph, applies one
// mutation operator, and returns a fresh DAG — shared substructure between
// parent and child is never copied (spec.md §4.7's "mutation local"
// invariant), so every returned GraphArtifact owns its own node map.
package factorgraph

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/atlas-desktop/strategy-discovery/internal/artifact"
	"github.com/atlas-desktop/strategy-discovery/internal/factorregistry"
)

// Operator names one of the four mutation kinds.
type Operator string

const (
	OpAddFactor         Operator = "add_factor"
	OpRemoveFactor      Operator = "remove_factor"
	OpReplaceFactor     Operator = "replace_factor"
	OpMutateParameters  Operator = "mutate_parameters"
)

// Phase is the generation-phase scheduling input (spec.md §4.7).
type Phase string

const (
	PhaseEarly Phase = "early"
	PhaseMid   Phase = "mid"
	PhaseLate  Phase = "late"
)

// lowDiversityThreshold and lowDiversityBoost implement spec.md §4.7's
// "diversity < 0.3 raises mutation rate by +0.2."
const (
	lowDiversityThreshold = 0.3
	lowDiversityBoost     = 0.2
	successRateBound      = 0.2
	successRateFloor      = 0.05
)

// Mutator applies mutation operators to factor graphs.
type Mutator struct {
	registry     *factorregistry.Registry
	successRates map[Operator]float64
}

// New builds a Mutator with uniform starting operator weights.
func New(registry *factorregistry.Registry) *Mutator {
	return &Mutator{
		registry: registry,
		successRates: map[Operator]float64{
			OpAddFactor:        0.25,
			OpRemoveFactor:     0.25,
			OpReplaceFactor:    0.25,
			OpMutateParameters: 0.25,
		},
	}
}

// RecordOutcome adjusts an operator's success-rate weight multiplicatively,
// bounded to +/-20% per update and never below a 5% floor.
func (m *Mutator) RecordOutcome(op Operator, succeeded bool) {
	rate := m.successRates[op]
	delta := -successRateBound
	if succeeded {
		delta = successRateBound
	}
	rate = rate * (1 + delta)
	if rate < successRateFloor {
		rate = successRateFloor
	}
	m.successRates[op] = rate
}

// basePhaseWeights returns each operator's scheduling weight for phase,
// before the diversity boost and success-rate adjustment are applied.
func basePhaseWeights(phase Phase) map[Operator]float64 {
	switch phase {
	case PhaseEarly:
		return map[Operator]float64{OpAddFactor: 0.5, OpRemoveFactor: 0.1, OpReplaceFactor: 0.2, OpMutateParameters: 0.2}
	case PhaseLate:
		return map[Operator]float64{OpAddFactor: 0.1, OpRemoveFactor: 0.1, OpReplaceFactor: 0.2, OpMutateParameters: 0.6}
	default:
		return map[Operator]float64{OpAddFactor: 0.25, OpRemoveFactor: 0.25, OpReplaceFactor: 0.25, OpMutateParameters: 0.25}
	}
}

// chooseOperator builds the final weighted distribution and draws one
// operator from it using rng, in deterministic iteration order so a fixed
// seed reproduces a fixed sequence (property P10).
func (m *Mutator) chooseOperator(phase Phase, diversity float64, rng *rand.Rand) Operator {
	weights := basePhaseWeights(phase)
	if diversity < lowDiversityThreshold {
		weights[OpMutateParameters] += lowDiversityBoost
	}

	order := []Operator{OpAddFactor, OpRemoveFactor, OpReplaceFactor, OpMutateParameters}
	total := 0.0
	adjusted := make(map[Operator]float64, len(order))
	for _, op := range order {
		w := weights[op] * m.successRates[op]
		if w < 0 {
			w = 0
		}
		adjusted[op] = w
		total += w
	}
	if total <= 0 {
		return OpMutateParameters
	}

	pick := rng.Float64() * total
	cursor := 0.0
	for _, op := range order {
		cursor += adjusted[op]
		if pick <= cursor {
			return op
		}
	}
	return order[len(order)-1]
}

// Mutate applies one operator to champion, returning a freshly-built child
// graph. The champion's StrategyID is recorded in the child's ParentIDs
// for lineage (never an ownership link).
func (m *Mutator) Mutate(champion *artifact.GraphArtifact, phase Phase, diversity float64, rng *rand.Rand, newStrategyID string) (*artifact.GraphArtifact, Operator, error) {
	op := m.chooseOperator(phase, diversity, rng)
	child := cloneGraph(champion, newStrategyID)

	var err error
	switch op {
	case OpAddFactor:
		err = m.addFactor(child, rng)
	case OpRemoveFactor:
		err = m.removeFactor(child, rng)
	case OpReplaceFactor:
		err = m.replaceFactor(child, rng)
	case OpMutateParameters:
		err = m.mutateParameters(child, rng)
	}
	if err != nil {
		return nil, op, fmt.Errorf("factorgraph: %s: %w", op, err)
	}

	if _, terr := artifact.TopologicalOrder(child); terr != nil {
		return nil, op, fmt.Errorf("factorgraph: %s produced an invalid graph: %w", op, terr)
	}
	return child, op, nil
}

func cloneGraph(src *artifact.GraphArtifact, newStrategyID string) *artifact.GraphArtifact {
	nodes := make(map[string]*artifact.FactorNode, len(src.Nodes))
	for id, n := range src.Nodes {
		params := make(map[string]interface{}, len(n.Parameters))
		for k, v := range n.Parameters {
			params[k] = v
		}
		deps := make([]string, len(n.DependsOnNodes))
		copy(deps, n.DependsOnNodes)
		nodes[id] = &artifact.FactorNode{
			NodeID:         n.NodeID,
			FactorName:     n.FactorName,
			Category:       n.Category,
			Parameters:     params,
			DependsOnNodes: deps,
		}
	}
	return &artifact.GraphArtifact{
		StrategyID:      newStrategyID,
		ParentIDs:       []string{src.StrategyID},
		GenerationDepth: src.GenerationDepth + 1,
		Nodes:           nodes,
		TerminalNodeID:  src.TerminalNodeID,
		CreatedAt:       time.Now(),
	}
}
