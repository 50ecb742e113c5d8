// Package executor implements IterationExecutor: the single-iteration
// contract of spec.md §4.11. It is deliberately distinct from
// internal/sandbox.Executor (SandboxExecutor) — this package orchestrates
// one full generate→validate→sandbox→score→classify→propose→append cycle
// and never lets a component error escape to LearningLoop; only
// catastrophic infrastructure failures are re-raised. Grounded on the
// teacher's internal/orchestrator.TradingOrchestrator step-sequencing
// style, narrowed to a single synchronous iteration.
package executor

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/strategy-discovery/internal/artifact"
	"github.com/atlas-desktop/strategy-discovery/internal/champion"
	"github.com/atlas-desktop/strategy-discovery/internal/classifier"
	"github.com/atlas-desktop/strategy-discovery/internal/factorgraph"
	"github.com/atlas-desktop/strategy-discovery/internal/feedback"
	"github.com/atlas-desktop/strategy-discovery/internal/history"
	"github.com/atlas-desktop/strategy-discovery/internal/metricsextractor"
	"github.com/atlas-desktop/strategy-discovery/internal/monitoring"
	"github.com/atlas-desktop/strategy-discovery/internal/novelty"
	"github.com/atlas-desktop/strategy-discovery/internal/sandbox"
	"github.com/atlas-desktop/strategy-discovery/internal/templategen"
	"github.com/atlas-desktop/strategy-discovery/internal/validator"
)

// historyWindow bounds how much recent history is loaded per iteration
// for feedback/novelty purposes.
const historyWindow = 20

// phaseEarlyBound and phaseMidBound pick the generation-phase (spec.md
// §4.7) from the iteration at which the current champion was promoted;
// there is no phase API in the spec
// itself, so these thresholds are this implementation's own scheduling
// decision.
const (
	phaseEarlyBound = 100
	phaseMidBound   = 500
)

// Config tunes one IterationExecutor.
type Config struct {
	InnovationRate         float64
	SandboxTimeout         time.Duration
	TemplateName           string
	DynamicSharpeThreshold float64
	StatisticalThreshold   float64
	MaxDrawdownBound       float64
	NoveltyWeights         novelty.Weights
}

// Executor is IterationExecutor.
type Executor struct {
	logger *zap.Logger
	cfg    Config

	templateGen *templategen.Generator
	mutator     *factorgraph.Mutator
	validate    *validator.Validator
	sandboxExec *sandbox.Executor
	champ       *champion.Tracker
	hist        *history.History
	novelty     *novelty.Analyzer
	sink        monitoring.Sink
	cohort      champion.CohortSource

	rng *rand.Rand
}

// SetCohortSource wires the recent-candidate Sharpe source used for
// staleness-based champion demotion (spec.md §4.9's cohort-relative
// check). Left nil, Propose treats the cohort as empty and never demotes
// on staleness grounds alone.
func (e *Executor) SetCohortSource(cohort champion.CohortSource) {
	e.cohort = cohort
}

// New builds an Executor. rng governs every stochastic decision inside
// run_iteration (generator split, mutation operator selection) so a
// fixed seed reproduces a fixed run (property P10).
func New(
	logger *zap.Logger,
	cfg Config,
	templateGen *templategen.Generator,
	mutator *factorgraph.Mutator,
	validate *validator.Validator,
	sandboxExec *sandbox.Executor,
	champ *champion.Tracker,
	hist *history.History,
	sink monitoring.Sink,
	rng *rand.Rand,
) *Executor {
	weights := cfg.NoveltyWeights
	if weights == (novelty.Weights{}) {
		weights = novelty.DefaultWeights()
	}
	return &Executor{
		logger:      logger.Named("iteration-executor"),
		cfg:         cfg,
		templateGen: templateGen,
		mutator:     mutator,
		validate:    validate,
		sandboxExec: sandboxExec,
		champ:       champ,
		hist:        hist,
		novelty:     novelty.New(weights),
		sink:        sink,
		rng:         rng,
	}
}

// RunIteration executes steps 1-10 of spec.md §4.11. The returned error
// is non-nil only for catastrophic infrastructure failures (history
// append exhausted its retry and escalated); every strategy-level
// failure is captured inside the appended Record instead.
func (e *Executor) RunIteration(ctx context.Context, iterationNum int) (history.Record, error) {
	recent, err := e.hist.Recent(historyWindow)
	if err != nil {
		return history.Record{}, fmt.Errorf("executor: load recent history: %w", err)
	}
	currentChampion := e.champ.Current()

	feedbackText := feedback.Generate(recent, currentChampion)

	method, art, usedOp, genErr := e.generate(ctx, currentChampion, feedbackText, recent)
	if genErr != nil {
		rec := history.Record{
			IterationNum:        iterationNum,
			GenerationMethod:    method,
			ClassificationLevel: classifier.LevelFailed,
			Timestamp:           time.Now(),
			FeedbackUsed:        feedbackText,
		}
		return rec, e.append(rec)
	}

	report := e.validate.Validate(art)
	if !report.IsValid {
		rec := history.Record{
			IterationNum:        iterationNum,
			GenerationMethod:    method,
			Identity:            art.Identity(),
			ClassificationLevel: classifier.LevelFailed,
			Timestamp:           time.Now(),
			FeedbackUsed:        feedbackText,
		}
		return rec, e.append(rec)
	}

	result, execErr := e.sandboxExec.Execute(ctx, art, e.cfg.SandboxTimeout)
	if execErr != nil {
		return history.Record{}, fmt.Errorf("executor: sandbox infrastructure failure: %w", execErr)
	}

	var (
		metrics    metricsextractor.Record
		hasMetrics bool
	)
	if result.Kind == sandbox.ResultSuccess {
		if rec, err := metricsextractor.Extract(result.Report); err == nil {
			metrics = rec
			hasMetrics = true
		}
	}

	thresholds := classifier.Thresholds{
		DynamicSharpeThreshold: decimal.NewFromFloat(e.cfg.DynamicSharpeThreshold),
		StatisticalThreshold:   decimal.NewFromFloat(e.cfg.StatisticalThreshold),
		MaxDrawdownBound:       decimal.NewFromFloat(e.cfg.MaxDrawdownBound),
	}
	level := classifier.Classify(hasMetrics, metrics, thresholds)

	if usedOp != nil {
		e.mutator.RecordOutcome(*usedOp, level.AtLeast(classifier.LevelValid))
	}

	championUpdated := false
	if hasMetrics {
		accepted, err := e.champ.Propose(iterationNum, method, art, metrics, e.cohort)
		if err != nil {
			e.logger.Warn("champion persistence failed", zap.Error(err))
		}
		championUpdated = accepted
	}

	e.emitMonitoring(level, championUpdated)

	rec := history.Record{
		IterationNum:        iterationNum,
		GenerationMethod:    method,
		Identity:            art.Identity(),
		ResultKind:          result.Kind,
		ClassificationLevel: level,
		Timestamp:           time.Now(),
		ChampionUpdated:     championUpdated,
		FeedbackUsed:        feedbackText,
		Thresholds:          &thresholds,
	}
	if hasMetrics {
		rec.Metrics = &metrics
	}
	if len(art.Identity().CodeText) == 0 && len(currentChampionParentRef(art)) > 0 {
		rec.ParentReference = currentChampionParentRef(art)
	}

	return rec, e.append(rec)
}

// generate implements step 3-4: stochastic generator split, champion
// existence check, and single-fallback-on-failure.
func (e *Executor) generate(ctx context.Context, currentChampion *champion.Record, feedbackText string, recent []history.Record) (method string, art artifact.Strategy, usedOp *factorgraph.Operator, err error) {
	useLLM := currentChampion != nil && e.rng.Float64() < e.cfg.InnovationRate

	if useLLM {
		codeArt, genErr := e.templateGen.Generate(ctx, e.cfg.TemplateName, feedbackText)
		if genErr == nil {
			return "llm", codeArt, nil, nil
		}
		e.logger.Info("llm generation failed, falling through to factor graph", zap.Error(genErr))
	}

	graphArt, op, genErr := e.generateGraph(currentChampion, recent)
	if genErr == nil {
		return "factor_graph", graphArt, op, nil
	}

	if !useLLM {
		// factor-graph was the primary path and it failed; try the LLM
		// as the single fallback.
		codeArt, llmErr := e.templateGen.Generate(ctx, e.cfg.TemplateName, feedbackText)
		if llmErr == nil {
			return "llm", codeArt, nil, nil
		}
		return "factor_graph", nil, nil, fmt.Errorf("both generators failed: graph=%v llm=%v", genErr, llmErr)
	}
	return "factor_graph", nil, nil, fmt.Errorf("factor-graph fallback failed: %w", genErr)
}

// generateGraph mutates the champion's graph, reporting that parent
// graph's population diversity (spec.md §4.7/§4.13) to monitoring before
// the mutation is drawn, since diversity also steers the operator weighting.
func (e *Executor) generateGraph(currentChampion *champion.Record, recent []history.Record) (*artifact.GraphArtifact, *factorgraph.Operator, error) {
	if currentChampion == nil || currentChampion.Graph == nil {
		return factorgraph.SeedGraph(newStrategyID()), nil, nil
	}

	diversity := e.populationDiversity(currentChampion.Graph, recent)
	if e.sink != nil {
		e.sink.RecordDiversity(diversity)
	}

	child, op, err := e.mutator.Mutate(currentChampion.Graph, e.phaseFor(), diversity, e.rng, newStrategyID())
	if err != nil {
		return nil, nil, err
	}
	return child, &op, nil
}

// populationDiversity scores candidate against the recent history window.
// Only CodeForm entries carry enough of their identity (the full source
// text) to reconstruct a comparable artifact.Strategy; GraphForm entries
// persist only their strategy ID and generation depth, so they're skipped.
func (e *Executor) populationDiversity(candidate artifact.Strategy, recent []history.Record) float64 {
	priors := make([]artifact.Strategy, 0, len(recent))
	for _, rec := range recent {
		if rec.Identity.CodeText == "" {
			continue
		}
		priors = append(priors, &artifact.CodeArtifact{CodeText: rec.Identity.CodeText})
	}
	return e.novelty.Diversity(candidate, priors)
}

// phaseFor derives early/mid/late from the iteration number at which the
// current champion was promoted; a coarse but deterministic proxy for
// generation progress.
func (e *Executor) phaseFor() factorgraph.Phase {
	cur := e.champ.Current()
	if cur == nil {
		return factorgraph.PhaseEarly
	}
	switch {
	case cur.IterationNum < phaseEarlyBound:
		return factorgraph.PhaseEarly
	case cur.IterationNum < phaseMidBound:
		return factorgraph.PhaseMid
	default:
		return factorgraph.PhaseLate
	}
}

func (e *Executor) append(rec history.Record) error {
	if err := e.hist.Append(rec); err != nil {
		return fmt.Errorf("executor: cannot write history after retry: %w", err)
	}
	return nil
}

func (e *Executor) emitMonitoring(level classifier.Level, championUpdated bool) {
	if e.sink == nil {
		return
	}
	e.sink.RecordClassification(level)
	if cur := e.champ.Current(); cur != nil {
		sharpe, _ := cur.Metrics.SharpeRatio.Float64()
		e.sink.RecordChampionSharpe(sharpe)
	} else {
		e.sink.RecordChampionSharpe(0)
	}
}

func currentChampionParentRef(s artifact.Strategy) string {
	if g, ok := s.(*artifact.GraphArtifact); ok && len(g.ParentIDs) > 0 {
		return g.ParentIDs[0]
	}
	return ""
}

// newStrategyID assigns a globally-unique ID correlating a generated
// strategy across its graph nodes, history record, and any downstream
// lineage reference.
func newStrategyID() string {
	return uuid.New().String()
}
