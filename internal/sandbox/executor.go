package sandbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/strategy-discovery/internal/artifact"
	"github.com/atlas-desktop/strategy-discovery/internal/dataaccessor"
	"github.com/atlas-desktop/strategy-discovery/internal/factorregistry"
	"github.com/atlas-desktop/strategy-discovery/internal/simulator"
	"github.com/atlas-desktop/strategy-discovery/internal/validator"
)

// Executor is SandboxExecutor: it evaluates an artifact into a position
// matrix, runs the backtest simulator over it, and reports an
// ExecutionResult — never an unhandled error. Construction takes a
// pluggable Runtime so callers can choose goroutine or process isolation.
//
// Execute owns spec.md §4.3's pre-execution validation gate itself: a
// worker never starts over an artifact StrategyValidator rejects, even if
// a caller skips its own pre-check. IterationExecutor still runs the
// validator first too, so a rejected artifact gets its level_0 history
// record without a sandbox call; that record carries no violation text.
// The pre-check is redundant defense-in-depth, not the gate's owner.
type Executor struct {
	logger    *zap.Logger
	runtime   Runtime
	validate  *validator.Validator
	codeEval  *CodeEvaluator
	graphEval *GraphEvaluator
	sim       *simulator.Simulator
	symbols   []string
	priceKey  string

	feeFraction decimal.Decimal
	taxFraction decimal.Decimal
	rebalance   simulator.RebalanceFrequency
}

// Config holds the simulator-facing parameters fixed for a deployment.
type Config struct {
	Symbols        []string
	PriceKey       string // data key used as the simulator's price series, e.g. "adj_close"
	InitialCapital decimal.Decimal
	FeeFraction    decimal.Decimal
	TaxFraction    decimal.Decimal
	Rebalance      simulator.RebalanceFrequency
}

// New builds an Executor. validate is the same StrategyValidator instance
// the rest of the system uses; Execute calls it before ever invoking
// runtime.Run.
func New(logger *zap.Logger, runtime Runtime, access *dataaccessor.Accessor, registry *factorregistry.Registry, validate *validator.Validator, cfg Config) *Executor {
	return &Executor{
		logger:      logger.Named("sandbox-executor"),
		runtime:     runtime,
		validate:    validate,
		codeEval:    NewCodeEvaluator(access),
		graphEval:   NewGraphEvaluator(access, registry),
		sim:         simulator.New(cfg.InitialCapital),
		symbols:     cfg.Symbols,
		priceKey:    cfg.PriceKey,
		feeFraction: cfg.FeeFraction,
		taxFraction: cfg.TaxFraction,
		rebalance:   cfg.Rebalance,
	}
}

// Execute runs s under timeout and returns an ExecutionResult. It never
// returns a Go error for strategy-caused failures — those are captured in
// the result's Kind/ErrorDetail. An error the Runtime reports with a
// completed outcome becomes a runtime_error result (infrastructure_error);
// err is returned only for a runtime outcome Execute does not recognize.
func (e *Executor) Execute(ctx context.Context, s artifact.Strategy, timeout time.Duration) (ExecutionResult, error) {
	start := time.Now()

	if e.validate != nil {
		if report := e.validate.Validate(s); !report.IsValid {
			return validationFail(violationSummary(report), time.Since(start)), nil
		}
	}

	work := func(workCtx context.Context) (*ExecutionResult, error) {
		positions, err := e.evaluate(s)
		if err != nil {
			res := runtimeError("evaluation_error", err.Error(), time.Since(start))
			return &res, nil
		}

		priceMatrix, err := e.priceMatrixFor(positions)
		if err != nil {
			res := runtimeError("evaluation_error", err.Error(), time.Since(start))
			return &res, nil
		}

		report, err := e.sim.Simulate(positions, priceMatrix, e.feeFraction, e.taxFraction, e.rebalance)
		if err != nil {
			res := runtimeError("simulation_error", err.Error(), time.Since(start))
			return &res, nil
		}

		res := success(report, time.Since(start))
		return &res, nil
	}

	result, outcome, err := e.runtime.Run(ctx, timeout, work)
	elapsed := time.Since(start)

	switch outcome {
	case OutcomeCompleted:
		if err != nil {
			return runtimeError("infrastructure_error", err.Error(), elapsed), nil
		}
		return *result, nil
	case OutcomeTimedOut:
		if err != nil && err.Error() != context.DeadlineExceeded.Error() {
			return resourceExceeded(err.Error(), elapsed), nil
		}
		return timeout(elapsed), nil
	case OutcomeCrashed:
		return runtimeError("panic", errString(err), elapsed), nil
	default:
		return ExecutionResult{}, fmt.Errorf("sandbox: unrecognized runtime outcome %q", outcome)
	}
}

func violationSummary(report validator.Report) string {
	details := make([]string, 0, len(report.Violations))
	for _, v := range report.Violations {
		details = append(details, v.String())
	}
	return strings.Join(details, "; ")
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (e *Executor) evaluate(s artifact.Strategy) (*dataaccessor.Matrix, error) {
	switch a := s.(type) {
	case *artifact.CodeArtifact:
		return e.codeEval.PositionMatrix(a, e.symbols)
	case *artifact.GraphArtifact:
		return e.graphEval.PositionMatrix(a, e.symbols)
	default:
		return nil, fmt.Errorf("unsupported strategy kind %T", s)
	}
}

func (e *Executor) priceMatrixFor(positions *dataaccessor.Matrix) (*dataaccessor.Matrix, error) {
	return e.codeEval.access.Get(e.priceKey, positions.Symbols)
}
