// Package loop implements LearningLoop: the thin outer orchestrator that
// owns the iteration counter, resume-from-history logic, and two-stage
// cooperative shutdown. Grounded on the teacher's
// internal/orchestrator.TradingOrchestrator Start/Stop shape (stopCh,
// running flag, logger.Info bookends), narrowed from a multi-component
// event-driven system down to a single sequential step call per
// iteration (spec.md §4.12).
package loop

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/strategy-discovery/internal/classifier"
	"github.com/atlas-desktop/strategy-discovery/internal/history"
)

// IterationRunner is the single dependency LearningLoop drives; satisfied
// by *executor.Executor. Narrowed to an interface so the loop is testable
// without a full executor wiring.
type IterationRunner interface {
	RunIteration(ctx context.Context, iterationNum int) (history.Record, error)
}

// HistorySource supplies the resume point; satisfied by *history.History.
type HistorySource interface {
	MaxIterationNum() (int, error)
}

// Config tunes one run of the loop.
type Config struct {
	MaxIterations        int
	ShutdownGraceSeconds int // default 5 (spec.md §9)
}

// Summary is the loop's final report: counts by classification level,
// the best Sharpe ratio observed, and total wall time.
type Summary struct {
	TotalIterations  int
	CountsByLevel    map[classifier.Level]int
	BestSharpeSeen   float64
	HasBestSharpe    bool
	WallTime         time.Duration
	StoppedEarly     bool // true if a shutdown signal cut the run short
}

// Loop is LearningLoop.
type Loop struct {
	logger  *zap.Logger
	cfg     Config
	runner  IterationRunner
	history HistorySource

	currentIteration atomic.Int64
}

// CurrentIteration returns the iteration number about to run or just
// completed; safe to call concurrently with Run, for a status endpoint.
func (l *Loop) CurrentIteration() int {
	return int(l.currentIteration.Load())
}

// New builds a Loop.
func New(logger *zap.Logger, cfg Config, runner IterationRunner, history HistorySource) *Loop {
	grace := cfg.ShutdownGraceSeconds
	if grace <= 0 {
		grace = 5
	}
	cfg.ShutdownGraceSeconds = grace
	return &Loop{logger: logger.Named("learning-loop"), cfg: cfg, runner: runner, history: history}
}

// Run executes iterations sequentially starting from max(iteration_num)+1
// in the existing history (cold start resumes at 0), until MaxIterations
// is reached or graceful is cancelled. graceful is checked only at
// iteration boundaries — the in-flight iteration always finishes and its
// record is written before Run returns (spec.md §4.12's "first cancel
// signal" stage). force is passed into every RunIteration call; a second
// cancel signal cancels force, letting the components that do honor
// ctx (the LLM call, the sandbox worker wait) abort the in-flight
// iteration immediately. The two contexts are independent: force may
// already be derived from graceful with a grace deadline via
// GraceContext, or driven by its own signal source.
func (l *Loop) Run(graceful, force context.Context) (Summary, error) {
	start := time.Now()
	counter, err := l.resumeCounter()
	if err != nil {
		return Summary{}, fmt.Errorf("loop: determine resume point: %w", err)
	}

	summary := Summary{CountsByLevel: make(map[classifier.Level]int)}

	l.logger.Info("learning loop starting", zap.Int("startIteration", counter), zap.Int("maxIterations", l.cfg.MaxIterations))

	for counter < l.cfg.MaxIterations {
		select {
		case <-graceful.Done():
			l.logger.Info("graceful shutdown requested, stopping before next iteration", zap.Int("atIteration", counter))
			summary.StoppedEarly = true
			summary.TotalIterations = counter
			summary.WallTime = time.Since(start)
			return summary, nil
		default:
		}

		l.currentIteration.Store(int64(counter))
		rec, err := l.runner.RunIteration(force, counter)
		if err != nil {
			summary.TotalIterations = counter
			summary.WallTime = time.Since(start)
			return summary, fmt.Errorf("loop: fatal infrastructure error at iteration %d: %w", counter, err)
		}

		summary.CountsByLevel[rec.ClassificationLevel]++
		if rec.Metrics != nil {
			if sharpe, _ := rec.Metrics.SharpeRatio.Float64(); !summary.HasBestSharpe || sharpe > summary.BestSharpeSeen {
				summary.BestSharpeSeen = sharpe
				summary.HasBestSharpe = true
			}
		}

		counter++
	}

	summary.TotalIterations = counter
	summary.WallTime = time.Since(start)
	l.logger.Info("learning loop completed", zap.Int("totalIterations", summary.TotalIterations), zap.Duration("wallTime", summary.WallTime))
	return summary, nil
}

func (l *Loop) resumeCounter() (int, error) {
	maxNum, err := l.history.MaxIterationNum()
	if err != nil {
		return 0, err
	}
	return maxNum + 1, nil
}

// GraceContext derives a force context that cancels gracePeriod after
// parent is done: a bound on how long a single in-flight iteration may
// run past the first cancel signal before it is force-aborted, even
// without an explicit second signal (spec.md §4.12's undocumented grace
// deadline, SPEC_FULL §9 default 5s). cmd/discover layers a second,
// signal-driven cancellation over the same force context for the
// explicit double-Ctrl-C case.
func GraceContext(parent context.Context, gracePeriod time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-parent.Done()
		timer := time.NewTimer(gracePeriod)
		defer timer.Stop()
		select {
		case <-timer.C:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
