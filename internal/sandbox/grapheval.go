package sandbox

import (
	"fmt"

	"github.com/atlas-desktop/strategy-discovery/internal/artifact"
	"github.com/atlas-desktop/strategy-discovery/internal/dataaccessor"
	"github.com/atlas-desktop/strategy-discovery/internal/factorregistry"
)

// GraphEvaluator executes a GraphArtifact's factor DAG in topological
// order, resolving each node's inputs from either raw data keys or an
// upstream node's already-computed output matrix, and returns the
// terminal node's output as the position matrix.
type GraphEvaluator struct {
	access   *dataaccessor.Accessor
	registry *factorregistry.Registry
}

// NewGraphEvaluator builds a GraphEvaluator over access and registry.
func NewGraphEvaluator(access *dataaccessor.Accessor, registry *factorregistry.Registry) *GraphEvaluator {
	return &GraphEvaluator{access: access, registry: registry}
}

// PositionMatrix evaluates g's terminal node, returning its output matrix.
func (e *GraphEvaluator) PositionMatrix(g *artifact.GraphArtifact, symbols []string) (*dataaccessor.Matrix, error) {
	order, err := artifact.TopologicalOrder(g)
	if err != nil {
		return nil, fmt.Errorf("sandbox: graph topology: %w", err)
	}

	outputs := make(map[string]*dataaccessor.Matrix, len(order))
	for _, nodeID := range order {
		node := g.Nodes[nodeID]
		spec, ok := e.registry.Get(node.FactorName)
		if !ok {
			return nil, fmt.Errorf("sandbox: runtime_error: unknown factor %q on node %q", node.FactorName, nodeID)
		}

		inputs := make([]*dataaccessor.Matrix, 0, len(spec.Inputs.DataKeys)+len(node.DependsOnNodes))
		for _, key := range spec.Inputs.DataKeys {
			m, err := e.access.Get(key, symbols)
			if err != nil {
				return nil, err
			}
			inputs = append(inputs, m)
		}
		for _, dep := range node.DependsOnNodes {
			depOut, ok := outputs[dep]
			if !ok {
				return nil, fmt.Errorf("sandbox: runtime_error: node %q depends on unevaluated node %q", nodeID, dep)
			}
			inputs = append(inputs, depOut)
		}

		params := make(map[string]float64, len(node.Parameters))
		for k, v := range node.Parameters {
			switch n := v.(type) {
			case float64:
				params[k] = n
			case int:
				params[k] = float64(n)
			}
		}
		for _, pr := range spec.Params {
			if _, ok := params[pr.Name]; !ok {
				params[pr.Name] = pr.Default.InexactFloat64()
			}
		}

		out, err := spec.Compute(inputs, params)
		if err != nil {
			return nil, fmt.Errorf("sandbox: runtime_error: node %q compute: %w", nodeID, err)
		}
		outputs[nodeID] = out
	}

	terminal, ok := outputs[g.TerminalNodeID]
	if !ok {
		return nil, fmt.Errorf("sandbox: runtime_error: terminal node %q produced no output", g.TerminalNodeID)
	}
	return terminal, nil
}
