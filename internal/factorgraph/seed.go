package factorgraph

import (
	"time"

	"github.com/atlas-desktop/strategy-discovery/internal/artifact"
)

// SeedGraph builds the template bootstrap graph spec.md §4.7 requires when
// no champion exists: momentum + breakout + trailing-stop, wired so the
// trailing-stop node is terminal and consumes both signal nodes.
func SeedGraph(strategyID string) *artifact.GraphArtifact {
	momentum := &artifact.FactorNode{
		NodeID:     "momentum",
		FactorName: "momentum_roc",
		Category:   "momentum",
		Parameters: map[string]interface{}{"lookback": 20.0},
	}
	breakout := &artifact.FactorNode{
		NodeID:     "breakout",
		FactorName: "breakout_donchian",
		Category:   "breakout",
		Parameters: map[string]interface{}{"window": 20.0},
	}
	stop := &artifact.FactorNode{
		NodeID:         "stop",
		FactorName:     "trailing_stop_atr",
		Category:       "stop",
		Parameters:     map[string]interface{}{"multiplier": 3.0},
		DependsOnNodes: []string{"momentum", "breakout"},
	}

	return &artifact.GraphArtifact{
		StrategyID:      strategyID,
		GenerationDepth: 0,
		TerminalNodeID:  "stop",
		CreatedAt:       time.Now(),
		Nodes: map[string]*artifact.FactorNode{
			"momentum": momentum,
			"breakout": breakout,
			"stop":     stop,
		},
	}
}
