package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/strategy-discovery/internal/artifact"
	"github.com/atlas-desktop/strategy-discovery/internal/dataaccessor"
	"github.com/atlas-desktop/strategy-discovery/internal/factorregistry"
	"github.com/atlas-desktop/strategy-discovery/internal/simulator"
	"github.com/atlas-desktop/strategy-discovery/internal/validator"
)

// syncRuntime runs work inline, synchronously — deterministic for tests
// that don't exercise timeout behavior.
type syncRuntime struct{}

func (syncRuntime) Run(ctx context.Context, timeout time.Duration, work WorkFunc) (*ExecutionResult, RuntimeOutcome, error) {
	res, err := work(ctx)
	if err != nil {
		return nil, OutcomeCrashed, err
	}
	return res, OutcomeCompleted, nil
}

// blockingRuntime never completes before its deadline — used to exercise
// the timeout path.
type blockingRuntime struct{}

func (blockingRuntime) Run(ctx context.Context, timeout time.Duration, work WorkFunc) (*ExecutionResult, RuntimeOutcome, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	<-runCtx.Done()
	return nil, OutcomeTimedOut, runCtx.Err()
}

func newTestExecutor(t *testing.T, rt Runtime) *Executor {
	t.Helper()
	access := dataaccessor.New(zap.NewNop(), dataaccessor.DefaultManifest(), t.TempDir())
	registry := factorregistry.Default()
	validate := validator.New(validator.DefaultConfig(), access)
	cfg := Config{
		Symbols:        []string{"2330", "2454"},
		PriceKey:       "adj_close",
		InitialCapital: decimal.NewFromInt(100000),
		FeeFraction:    decimal.NewFromFloat(0.001425),
		TaxFraction:    decimal.NewFromFloat(0.003),
		Rebalance:      simulator.RebalanceDaily,
	}
	return New(zap.NewNop(), rt, access, registry, validate, cfg)
}

func TestExecute_ValidationFailRejectsBeforeRuntime(t *testing.T) {
	e := newTestExecutor(t, blockingRuntime{})
	a := &artifact.CodeArtifact{CodeText: `os.ReadFile("secrets.json")`}
	result, err := e.Execute(context.Background(), a, 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if result.Kind != ResultValidationFail {
		t.Fatalf("expected validation_fail without ever invoking the runtime, got %s", result.Kind)
	}
}

func TestExecute_CodeArtifactSuccess(t *testing.T) {
	e := newTestExecutor(t, syncRuntime{})
	a := &artifact.CodeArtifact{CodeText: `data["adj_close"] > data["sma_20"]`}
	result, err := e.Execute(context.Background(), a, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if result.Kind != ResultSuccess {
		t.Fatalf("expected success, got %s (%s)", result.Kind, result.ErrorDetail)
	}
}

func TestExecute_GraphArtifactSuccess(t *testing.T) {
	e := newTestExecutor(t, syncRuntime{})
	g := &artifact.GraphArtifact{
		StrategyID:     "s1",
		TerminalNodeID: "mom",
		CreatedAt:      time.Now(),
		Nodes: map[string]*artifact.FactorNode{
			"mom": {NodeID: "mom", FactorName: "momentum_roc", Parameters: map[string]interface{}{"lookback": 20.0}},
		},
	}
	result, err := e.Execute(context.Background(), g, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if result.Kind != ResultSuccess {
		t.Fatalf("expected success, got %s (%s)", result.Kind, result.ErrorDetail)
	}
}

func TestExecute_UnknownFactorIsRuntimeError(t *testing.T) {
	e := newTestExecutor(t, syncRuntime{})
	g := &artifact.GraphArtifact{
		StrategyID:     "s1",
		TerminalNodeID: "x",
		CreatedAt:      time.Now(),
		Nodes: map[string]*artifact.FactorNode{
			"x": {NodeID: "x", FactorName: "does_not_exist"},
		},
	}
	result, err := e.Execute(context.Background(), g, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if result.Kind != ResultRuntimeError {
		t.Fatalf("expected runtime_error, got %s", result.Kind)
	}
}

func TestExecute_TimeoutReportsTimeoutKind(t *testing.T) {
	e := newTestExecutor(t, blockingRuntime{})
	a := &artifact.CodeArtifact{CodeText: `data["adj_close"] > 0`}
	result, err := e.Execute(context.Background(), a, 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if result.Kind != ResultTimeout {
		t.Fatalf("expected timeout, got %s", result.Kind)
	}
	if result.Elapsed < 50*time.Millisecond {
		t.Fatalf("expected elapsed >= timeout, got %s", result.Elapsed)
	}
}
