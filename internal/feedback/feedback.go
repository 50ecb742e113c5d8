// Package feedback implements FeedbackGenerator: a pure function
// summarizing recent iteration history, the current champion, and
// recently-avoided factor patterns into short text consumed by the next
// generation call. Grounded on the teacher's internal/learning
// pattern-performance summarization style (learning.FeedbackEngine),
// narrowed to spec.md §4.8's fixed, deterministic, side-effect-free
// contract.
package feedback

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/atlas-desktop/strategy-discovery/internal/champion"
	"github.com/atlas-desktop/strategy-discovery/internal/classifier"
	"github.com/atlas-desktop/strategy-discovery/internal/history"
)

// maxLength enforces spec.md §4.8's "≤ ~2000 characters" bound.
const maxLength = 2000

// topK bounds how many recent Sharpe values are summarized.
const topK = 5

// plateauWindow is how many trailing iterations are checked for a
// Sharpe plateau trend indicator.
const plateauWindow = 10

// Generate produces feedback text for the next generation call. It is a
// pure function of its inputs: identical arguments always produce
// identical text (no wall clock, no randomness).
func Generate(recent []history.Record, current *champion.Record) string {
	var b strings.Builder

	writeTopSharpes(&b, recent)
	writeChampionSummary(&b, current)
	writeOverrepresentedFailurePatterns(&b, recent)
	writePlateauIndicator(&b, recent)

	text := b.String()
	if len(text) > maxLength {
		text = text[:maxLength]
	}
	return strings.TrimSpace(text)
}

func writeTopSharpes(b *strings.Builder, recent []history.Record) {
	var sharpes []float64
	for _, r := range recent {
		if r.Metrics == nil {
			continue
		}
		f, _ := r.Metrics.SharpeRatio.Float64()
		sharpes = append(sharpes, f)
	}
	if len(sharpes) == 0 {
		return
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(sharpes)))
	if len(sharpes) > topK {
		sharpes = sharpes[:topK]
	}
	b.WriteString("Recent top Sharpe ratios: ")
	parts := make([]string, len(sharpes))
	for i, s := range sharpes {
		parts[i] = fmt.Sprintf("%.3f", s)
	}
	b.WriteString(strings.Join(parts, ", "))
	b.WriteString(".\n")
}

func writeChampionSummary(b *strings.Builder, current *champion.Record) {
	if current == nil {
		b.WriteString("No champion established yet; prefer conservative, well-understood factor combinations.\n")
		return
	}
	sharpe, _ := current.Metrics.SharpeRatio.Float64()
	drawdown, _ := current.Metrics.MaxDrawdown.Float64()
	b.WriteString(fmt.Sprintf("Current champion: sharpe=%.3f, max_drawdown=%.3f, method=%s.\n", sharpe, drawdown, current.GenerationMethod))
	if len(current.SuccessPatterns) > 0 {
		b.WriteString("Champion's recognized patterns (recommended, not avoided): ")
		b.WriteString(strings.Join(current.SuccessPatterns, ", "))
		b.WriteString(".\n")
	}
}

// writeOverrepresentedFailurePatterns scans failed/low-scoring recent
// iterations for factor-name substrings and flags the ones appearing
// disproportionately often as patterns to avoid.
func writeOverrepresentedFailurePatterns(b *strings.Builder, recent []history.Record) {
	counts := map[string]int{}
	total := 0
	for _, r := range recent {
		if r.ClassificationLevel != classifier.LevelFailed && r.ClassificationLevel != classifier.LevelExecuted {
			continue
		}
		total++
		text := r.Identity.CodeText + " " + r.Identity.StrategyID
		for _, token := range recognizedTokens {
			if strings.Contains(text, token) {
				counts[token]++
			}
		}
	}
	if total == 0 {
		return
	}
	var avoided []string
	for _, token := range recognizedTokens {
		if count, ok := counts[token]; ok && float64(count)/float64(total) > 0.4 {
			avoided = append(avoided, token)
		}
	}
	if len(avoided) == 0 {
		return
	}
	b.WriteString("Over-represented in recent failures (avoid): ")
	b.WriteString(strings.Join(avoided, ", "))
	b.WriteString(".\n")
}

var recognizedTokens = []string{
	"momentum_", "breakout_", "liquidity_filter", "volatility_filter", "trailing_stop",
}

// writePlateauIndicator flags a Sharpe plateau: the trailing window's
// best value hasn't improved over its first half vs second half.
func writePlateauIndicator(b *strings.Builder, recent []history.Record) {
	if len(recent) < plateauWindow {
		return
	}
	window := recent[len(recent)-plateauWindow:]
	half := len(window) / 2
	firstBest := bestSharpe(window[:half])
	secondBest := bestSharpe(window[half:])
	if secondBest <= firstBest {
		b.WriteString(fmt.Sprintf("Sharpe plateau observed over the last %d iterations.\n", plateauWindow))
	}
}

func bestSharpe(records []history.Record) float64 {
	best := math.Inf(-1)
	found := false
	for _, r := range records {
		if r.Metrics == nil {
			continue
		}
		f, _ := r.Metrics.SharpeRatio.Float64()
		if !found || f > best {
			best = f
			found = true
		}
	}
	if !found {
		return 0
	}
	return best
}
