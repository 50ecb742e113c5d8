// Package artifact defines the canonical in-memory representation of a
// candidate strategy: either executable rule text (CodeForm) or a
// declarative factor graph (GraphForm). Adapted from the teacher's
// pkg/types.StrategyConfig/Rule shape, generalized into a tagged-union
// interface so generators can be swapped without a type switch on a raw
// string discriminant.
package artifact

import (
	"fmt"
	"time"
)

// Kind discriminates the two strategy shapes.
type Kind string

const (
	KindCode  Kind = "llm"
	KindGraph Kind = "factor_graph"
)

// Strategy is the common interface implemented by CodeArtifact and
// GraphArtifact. Identity() returns the fields that uniquely identify the
// artifact for IterationRecord/ChampionRecord purposes.
type Strategy interface {
	Kind() Kind
	Identity() Identity
	Validate() error
}

// Identity captures "exactly one identity field populated per generation
// method" (spec §3).
type Identity struct {
	CodeText        string `json:"codeText,omitempty"`
	StrategyID      string `json:"strategyId,omitempty"`
	GenerationDepth int    `json:"generationDepth,omitempty"`
}

// CodeArtifact is the CodeForm: an expr-lang rule program emitted by
// TemplateParameterGenerator from a named template. The program text is
// never mutated after construction.
type CodeArtifact struct {
	CodeText      string         `json:"codeText"`
	ParameterDict map[string]any `json:"parameterDict"`
	TemplateName  string         `json:"templateName"`
	ModelID       string         `json:"modelId"`
}

func (c *CodeArtifact) Kind() Kind { return KindCode }

func (c *CodeArtifact) Identity() Identity {
	return Identity{CodeText: c.CodeText}
}

func (c *CodeArtifact) Validate() error {
	if c.CodeText == "" {
		return fmt.Errorf("artifact: CodeForm.code_text must be non-empty")
	}
	return nil
}

// FactorNode is one node of a GraphForm's factor DAG.
type FactorNode struct {
	NodeID         string         `json:"nodeId"`
	FactorName     string         `json:"factorName"`
	Category       string         `json:"category"`
	Parameters     map[string]any `json:"parameters"`
	DependsOnNodes []string       `json:"dependsOnNodeIds"`
}

// GraphArtifact is the GraphForm: a directed acyclic graph of factor
// nodes terminating in a position matrix.
type GraphArtifact struct {
	StrategyID      string                 `json:"strategyId"`
	ParentIDs       []string               `json:"parentIds"`
	GenerationDepth int                    `json:"generationDepth"`
	Nodes           map[string]*FactorNode `json:"factorDag"`
	TerminalNodeID  string                 `json:"terminalNodeId"`
	CreatedAt       time.Time              `json:"createdAt"`
}

func (g *GraphArtifact) Kind() Kind { return KindGraph }

func (g *GraphArtifact) Identity() Identity {
	return Identity{StrategyID: g.StrategyID, GenerationDepth: g.GenerationDepth}
}

func (g *GraphArtifact) Validate() error {
	if g.StrategyID == "" {
		return fmt.Errorf("artifact: GraphForm.strategy_id must be non-empty")
	}
	if g.GenerationDepth < 0 {
		return fmt.Errorf("artifact: GraphForm.generation_depth must be >= 0, got %d", g.GenerationDepth)
	}
	if _, err := TopologicalOrder(g); err != nil {
		return err
	}
	return nil
}

// TopologicalOrder returns node IDs in dependency order, or an error if
// the graph is cyclic or references a missing node_id.
func TopologicalOrder(g *GraphArtifact) ([]string, error) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	state := make(map[string]int, len(g.Nodes))
	order := make([]string, 0, len(g.Nodes))

	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		switch state[id] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("artifact: cycle detected in factor DAG at node %q (path %v)", id, append(path, id))
		}
		node, ok := g.Nodes[id]
		if !ok {
			return fmt.Errorf("artifact: node %q referenced but does not exist", id)
		}
		state[id] = gray
		for _, dep := range node.DependsOnNodes {
			if err := visit(dep, append(path, id)); err != nil {
				return err
			}
		}
		state[id] = black
		order = append(order, id)
		return nil
	}

	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	// Deterministic iteration order keeps topological sort reproducible
	// across runs with the same graph (property P10 depends on this).
	sortStrings(ids)
	for _, id := range ids {
		if err := visit(id, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
