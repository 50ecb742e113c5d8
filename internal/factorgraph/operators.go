package factorgraph

import (
	"fmt"
	"math/rand"

	"github.com/atlas-desktop/strategy-discovery/internal/artifact"
	"github.com/atlas-desktop/strategy-discovery/internal/factorregistry"
)

// addFactor picks a category, picks a factor, and adds it as a new
// non-terminal node with no dependencies of its own, appending its ID to
// the terminal node's DependsOnNodes.
func (m *Mutator) addFactor(g *artifact.GraphArtifact, rng *rand.Rand) error {
	categories := m.registry.Categories()
	if len(categories) == 0 {
		return fmt.Errorf("no factor categories registered")
	}
	cat := categories[rng.Intn(len(categories))]
	names := m.registry.Names(cat)
	if len(names) == 0 {
		return fmt.Errorf("category %q has no factors", cat)
	}
	name := names[rng.Intn(len(names))]
	spec := m.registry.MustGet(name)

	newID := fmt.Sprintf("%s-%d", name, rng.Int63())
	g.Nodes[newID] = &artifact.FactorNode{
		NodeID:     newID,
		FactorName: name,
		Category:   string(cat),
		Parameters: defaultParams(spec),
	}

	terminal, ok := g.Nodes[g.TerminalNodeID]
	if !ok {
		return fmt.Errorf("terminal node %q missing", g.TerminalNodeID)
	}
	terminal.DependsOnNodes = append(terminal.DependsOnNodes, newID)
	return nil
}

// removeFactor deletes a non-terminal node and re-wires its consumers to
// the removed node's own inputs, collapsing any duplicate references. The
// mutation is rejected only if the re-wired graph has no valid
// topological order.
func (m *Mutator) removeFactor(g *artifact.GraphArtifact, rng *rand.Rand) error {
	candidates := nonTerminalNodes(g)
	if len(candidates) == 0 {
		return fmt.Errorf("no removable non-terminal node exists")
	}
	victim := candidates[rng.Intn(len(candidates))]
	victimNode := g.Nodes[victim]

	for _, node := range g.Nodes {
		node.DependsOnNodes = rewire(node.DependsOnNodes, victim, victimNode.DependsOnNodes)
	}
	delete(g.Nodes, victim)

	if _, err := artifact.TopologicalOrder(g); err != nil {
		return fmt.Errorf("removing %q left consumers unsatisfiable: %w", victim, err)
	}
	return nil
}

// replaceFactor swaps a node's factor for another factor of the same
// category. Category membership is the only compatibility check: factors
// in one category may declare different data keys, which the graph
// evaluator fetches per factor from the node's own spec.
func (m *Mutator) replaceFactor(g *artifact.GraphArtifact, rng *rand.Rand) error {
	ids := nodeIDs(g)
	if len(ids) == 0 {
		return fmt.Errorf("graph has no nodes")
	}
	id := ids[rng.Intn(len(ids))]
	node := g.Nodes[id]

	spec, ok := m.registry.Get(node.FactorName)
	if !ok {
		return fmt.Errorf("node %q references unknown factor %q", id, node.FactorName)
	}
	siblings := m.registry.Names(spec.Category)
	if len(siblings) < 2 {
		return fmt.Errorf("category %q has no alternative factor to replace with", spec.Category)
	}
	var replacement string
	for {
		replacement = siblings[rng.Intn(len(siblings))]
		if replacement != node.FactorName {
			break
		}
	}
	newSpec := m.registry.MustGet(replacement)
	node.FactorName = replacement
	node.Parameters = defaultParams(newSpec)
	return nil
}

// mutateParameters perturbs one scalar parameter of a randomly chosen node
// within its declared range.
func (m *Mutator) mutateParameters(g *artifact.GraphArtifact, rng *rand.Rand) error {
	ids := nodeIDs(g)
	if len(ids) == 0 {
		return fmt.Errorf("graph has no nodes")
	}
	id := ids[rng.Intn(len(ids))]
	node := g.Nodes[id]

	spec, ok := m.registry.Get(node.FactorName)
	if !ok || len(spec.Params) == 0 {
		return fmt.Errorf("node %q has no mutable parameters", id)
	}
	pr := spec.Params[rng.Intn(len(spec.Params))]

	minF := pr.Min.InexactFloat64()
	maxF := pr.Max.InexactFloat64()

	current, ok := floatParam(node.Parameters, pr.Name)
	if !ok {
		current = pr.Default.InexactFloat64()
	}
	span := maxF - minF
	perturbation := (rng.Float64()*2 - 1) * span * 0.15
	next := current + perturbation
	if next < minF {
		next = minF
	}
	if next > maxF {
		next = maxF
	}
	if node.Parameters == nil {
		node.Parameters = map[string]interface{}{}
	}
	node.Parameters[pr.Name] = next
	return nil
}

func defaultParams(spec factorregistry.FactorSpec) map[string]interface{} {
	params := make(map[string]interface{}, len(spec.Params))
	for _, p := range spec.Params {
		params[p.Name] = p.Default.InexactFloat64()
	}
	return params
}

func nonTerminalNodes(g *artifact.GraphArtifact) []string {
	var out []string
	for id := range g.Nodes {
		if id != g.TerminalNodeID {
			out = append(out, id)
		}
	}
	return out
}

func nodeIDs(g *artifact.GraphArtifact) []string {
	out := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		out = append(out, id)
	}
	return out
}

func rewire(deps []string, removed string, replacement []string) []string {
	out := make([]string, 0, len(deps))
	seen := map[string]bool{}
	for _, d := range deps {
		if d == removed {
			for _, r := range replacement {
				if !seen[r] {
					seen[r] = true
					out = append(out, r)
				}
			}
			continue
		}
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}

func floatParam(params map[string]interface{}, name string) (float64, bool) {
	v, ok := params[name]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
