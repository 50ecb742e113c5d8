// Package tests provides end-to-end coverage of the discovery loop:
// real components wired together the way cmd/discover does, only the
// LLM client mocked out (spec.md §8 scenarios 1 and 6).
package tests

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlas-desktop/strategy-discovery/internal/champion"
	"github.com/atlas-desktop/strategy-discovery/internal/dataaccessor"
	"github.com/atlas-desktop/strategy-discovery/internal/executor"
	"github.com/atlas-desktop/strategy-discovery/internal/factorgraph"
	"github.com/atlas-desktop/strategy-discovery/internal/factorregistry"
	"github.com/atlas-desktop/strategy-discovery/internal/history"
	"github.com/atlas-desktop/strategy-discovery/internal/llm"
	"github.com/atlas-desktop/strategy-discovery/internal/loop"
	"github.com/atlas-desktop/strategy-discovery/internal/monitoring"
	"github.com/atlas-desktop/strategy-discovery/internal/sandbox"
	"github.com/atlas-desktop/strategy-discovery/internal/sandbox/goroutine"
	"github.com/atlas-desktop/strategy-discovery/internal/simulator"
	"github.com/atlas-desktop/strategy-discovery/internal/templategen"
	"github.com/atlas-desktop/strategy-discovery/internal/validator"
)

// buildLoop wires every real component the way cmd/discover/main.go does,
// using factor-graph-only mode (an always-malformed LLM client) so the
// run is deterministic under a fixed rng seed.
func buildLoop(t *testing.T, dir string, maxIterations int, seed int64) (*loop.Loop, *history.History, *champion.Tracker) {
	t.Helper()
	logger := zap.NewNop()

	hist, err := history.New(logger, filepath.Join(dir, "history.jsonl"))
	require.NoError(t, err)

	champ, err := champion.New(logger, filepath.Join(dir, "champion.json"), champion.DefaultConfig())
	require.NoError(t, err)

	manifest := dataaccessor.DefaultManifest()
	access := dataaccessor.New(logger, manifest, filepath.Join(dir, "data"))
	factorReg := factorregistry.Default()
	mutator := factorgraph.New(factorReg)
	validate := validator.New(validator.DefaultConfig(), access)

	sandboxExec := sandbox.New(logger, goroutine.New(logger), access, factorReg, validate, sandbox.Config{
		Symbols:        []string{"2330", "2454"},
		PriceKey:       "adj_close",
		InitialCapital: decimal.NewFromInt(1000000),
		FeeFraction:    decimal.NewFromFloat(0.001425),
		TaxFraction:    decimal.NewFromFloat(0.003),
		Rebalance:      simulator.RebalanceDaily,
	})

	templateReg := templategen.NewRegistry()
	templateReg.Register(templategen.MomentumTemplate())
	templateGen := templategen.New(logger, llm.NewAlwaysMalformedClient(), templateReg, manifest, templategen.Config{Model: "gpt-4o-mini", RetryMax: 1})

	iterExec := executor.New(logger, executor.Config{
		InnovationRate:         0.0,
		SandboxTimeout:         5 * time.Second,
		TemplateName:           "momentum",
		DynamicSharpeThreshold: 1.0,
		StatisticalThreshold:   0.5,
		MaxDrawdownBound:       0.2,
	}, templateGen, mutator, validate, sandboxExec, champ, hist, monitoring.NoopSink{}, rand.New(rand.NewSource(seed)))
	iterExec.SetCohortSource(historyCohortForTest{hist})

	l := loop.New(logger, loop.Config{MaxIterations: maxIterations}, iterExec, hist)
	return l, hist, champ
}

type historyCohortForTest struct {
	hist *history.History
}

func (h historyCohortForTest) RecentSharpes(n int) ([]float64, error) {
	records, err := h.hist.Recent(n)
	if err != nil {
		return nil, err
	}
	sharpes := make([]float64, 0, len(records))
	for _, rec := range records {
		if rec.Metrics == nil {
			continue
		}
		sharpe, _ := rec.Metrics.SharpeRatio.Float64()
		sharpes = append(sharpes, sharpe)
	}
	return sharpes, nil
}

func TestColdStart_RunsExactlyMaxIterationsAndAppendsHistory(t *testing.T) {
	dir := t.TempDir()
	l, hist, _ := buildLoop(t, dir, 5, 7)

	summary, err := l.Run(context.Background(), context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, summary.TotalIterations)
	require.False(t, summary.StoppedEarly)

	recent, err := hist.Recent(100)
	require.NoError(t, err)
	require.Len(t, recent, 5)
	require.Equal(t, 0, recent[0].IterationNum)
	require.Equal(t, 4, recent[len(recent)-1].IterationNum)
}

func TestResume_ContinuesFromMaxIterationNumPlusOne(t *testing.T) {
	dir := t.TempDir()

	firstLoop, hist, _ := buildLoop(t, dir, 3, 11)
	summary, err := firstLoop.Run(context.Background(), context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, summary.TotalIterations)

	maxNum, err := hist.MaxIterationNum()
	require.NoError(t, err)
	require.Equal(t, 2, maxNum)

	secondLoop, resumedHist, _ := buildLoop(t, dir, 6, 11)
	summary2, err := secondLoop.Run(context.Background(), context.Background())
	require.NoError(t, err)
	require.Equal(t, 6, summary2.TotalIterations)

	recent, err := resumedHist.Recent(100)
	require.NoError(t, err)
	require.Len(t, recent, 6)
	require.Equal(t, 0, recent[0].IterationNum)
	require.Equal(t, 5, recent[len(recent)-1].IterationNum)
}
