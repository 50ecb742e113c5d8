// Package novelty implements NoveltyAnalyzer: a three-layer
// similarity/complexity score between a candidate artifact and the prior
// population, used only as a diversity hint for FactorGraphMutator's
// scheduler and for monitoring — it never rejects candidates (spec.md
// §4.13). Grounded on the teacher's internal/backtester.MetricsCalculator
// numeric-scoring style, generalized to structural similarity since the
// teacher has no prior art for factor-graph comparison.
package novelty

import (
	"strings"

	"github.com/atlas-desktop/strategy-discovery/internal/artifact"
)

// Weights configures the three-layer combination (SPEC_FULL §9 resolves
// the Open Question with this default).
type Weights struct {
	Diversity  float64
	Pattern    float64
	Complexity float64
}

// DefaultWeights is {0.4, 0.4, 0.2}.
func DefaultWeights() Weights {
	return Weights{Diversity: 0.4, Pattern: 0.4, Complexity: 0.2}
}

// Analyzer computes novelty scores against a population of prior
// artifacts. Stateless beyond its weights; safe for concurrent use.
type Analyzer struct {
	weights Weights
}

func New(weights Weights) *Analyzer {
	return &Analyzer{weights: weights}
}

// Diversity scores candidate against priors: 1 minus the average
// similarity to every prior, so a candidate identical to everything
// scores 0 and one sharing nothing scores close to 1. An empty prior set
// scores maximal diversity (1.0) — there is nothing yet to repeat.
func (a *Analyzer) Diversity(candidate artifact.Strategy, priors []artifact.Strategy) float64 {
	if len(priors) == 0 {
		return 1.0
	}
	total := 0.0
	for _, p := range priors {
		total += a.Similarity(candidate, p)
	}
	return clamp01(1.0 - total/float64(len(priors)))
}

// Similarity combines the three layers into a single weighted score in
// [0, 1]. Higher means more similar (less novel).
func (a *Analyzer) Similarity(x, y artifact.Strategy) float64 {
	xNames, xCode := factorSignature(x)
	yNames, yCode := factorSignature(y)

	diversitySim := jaccard(xNames, yNames)
	patternSim := bigramOverlap(xNames, yNames)
	complexitySim := complexitySimilarity(complexityOf(x, xCode), complexityOf(y, yCode))

	return a.weights.Diversity*diversitySim + a.weights.Pattern*patternSim + a.weights.Complexity*complexitySim
}

// factorSignature extracts the ordered list of factor/token names a
// strategy exercises, plus its raw code text (empty for GraphForm).
func factorSignature(s artifact.Strategy) ([]string, string) {
	switch v := s.(type) {
	case *artifact.GraphArtifact:
		order, err := artifact.TopologicalOrder(v)
		if err != nil {
			order = nil
			for id := range v.Nodes {
				order = append(order, id)
			}
		}
		names := make([]string, 0, len(order))
		for _, id := range order {
			if n, ok := v.Nodes[id]; ok {
				names = append(names, n.FactorName)
			}
		}
		return names, ""
	case *artifact.CodeArtifact:
		return extractTokens(v.CodeText), v.CodeText
	default:
		return nil, ""
	}
}

var knownTokens = []string{
	"momentum_roc", "momentum_rsi", "breakout_donchian", "breakout_atr_channel",
	"liquidity_filter", "volatility_filter", "trailing_stop_atr", "trailing_stop_pct",
	"rsi_14", "adj_close",
}

func extractTokens(codeText string) []string {
	var out []string
	for _, tok := range knownTokens {
		if strings.Contains(codeText, tok) {
			out = append(out, tok)
		}
	}
	return out
}

// jaccard is the factor-diversity similarity layer: set overlap over union.
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	setA := toSet(a)
	setB := toSet(b)
	intersection := 0
	for k := range setA {
		if setB[k] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 1.0
	}
	return float64(intersection) / float64(union)
}

// bigramOverlap is the combination-pattern similarity layer: ordered
// adjacent-pair overlap, capturing "A feeds into B" structure that a
// plain set comparison misses.
func bigramOverlap(a, b []string) float64 {
	bigramsA := bigrams(a)
	bigramsB := bigrams(b)
	if len(bigramsA) == 0 && len(bigramsB) == 0 {
		// Neither side has an adjacent pair to compare; fall back to the
		// plain name-set overlap.
		return jaccard(a, b)
	}
	setA := toSet(bigramsA)
	setB := toSet(bigramsB)
	intersection := 0
	for k := range setA {
		if setB[k] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 1.0
	}
	return float64(intersection) / float64(union)
}

func bigrams(names []string) []string {
	if len(names) < 2 {
		return nil
	}
	out := make([]string, 0, len(names)-1)
	for i := 0; i < len(names)-1; i++ {
		out = append(out, names[i]+"->"+names[i+1])
	}
	return out
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, i := range items {
		set[i] = true
	}
	return set
}

// complexityOf approximates spec.md §4.13's AST-based complexity metric:
// for GraphForm, node count stands in for branch/function count; for
// CodeForm, count logical operators and comparisons in the expr-lang text.
func complexityOf(s artifact.Strategy, codeText string) int {
	switch v := s.(type) {
	case *artifact.GraphArtifact:
		return len(v.Nodes)
	case *artifact.CodeArtifact:
		_ = v
		count := 0
		for _, op := range []string{"&&", "||", ">=", "<=", ">", "<", "=="} {
			count += strings.Count(codeText, op)
		}
		return count
	default:
		return 0
	}
}

// complexitySimilarity converts two complexity counts into a [0,1]
// similarity: equal complexity scores 1, arbitrarily divergent scores
// approach 0.
func complexitySimilarity(a, b int) float64 {
	if a == 0 && b == 0 {
		return 1.0
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	maxVal := a
	if b > maxVal {
		maxVal = b
	}
	if maxVal == 0 {
		return 1.0
	}
	return clamp01(1.0 - float64(diff)/float64(maxVal))
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
