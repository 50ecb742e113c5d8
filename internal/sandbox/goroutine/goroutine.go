// Package goroutine is the default SandboxExecutor isolation backend: work
// runs in-process inside its own goroutine under a timeout context.
// Adapted from the teacher's internal/workers.worker.executeTask
// (context-timeout plus panic-recovery pattern), generalized to report a
// RuntimeOutcome instead of only pass/fail.
package goroutine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/strategy-discovery/internal/sandbox"
)

// Runtime runs WorkFuncs as plain goroutines. It never kills a runaway
// goroutine — Go provides no such primitive — but Run always returns by
// the configured timeout, and OrphanCount reports how many abandoned
// goroutines are still draining in the background.
type Runtime struct {
	logger  *zap.Logger
	orphans int64
}

// New builds a goroutine-backed Runtime.
func New(logger *zap.Logger) *Runtime {
	return &Runtime{logger: logger.Named("sandbox-goroutine")}
}

// OrphanCount returns the number of timed-out work goroutines still
// running in the background, not yet reclaimed.
func (r *Runtime) OrphanCount() int64 {
	return atomic.LoadInt64(&r.orphans)
}

type outcome struct {
	result *sandbox.ExecutionResult
	err    error
}

// Run executes work with a timeout context. On timeout it returns
// immediately with OutcomeTimedOut; the abandoned goroutine is drained by
// a background watcher so it cannot leak memory past its own completion.
func (r *Runtime) Run(ctx context.Context, timeout time.Duration, work sandbox.WorkFunc) (*sandbox.ExecutionResult, sandbox.RuntimeOutcome, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome, 1)
	atomic.AddInt64(&r.orphans, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("sandbox: panic recovered: %v", rec)}
			}
		}()
		res, err := work(runCtx)
		done <- outcome{result: res, err: err}
	}()

	select {
	case o := <-done:
		atomic.AddInt64(&r.orphans, -1)
		if o.err != nil {
			return nil, sandbox.OutcomeCrashed, o.err
		}
		return o.result, sandbox.OutcomeCompleted, nil
	case <-runCtx.Done():
		go r.reclaim(done)
		return nil, sandbox.OutcomeTimedOut, runCtx.Err()
	}
}

// reclaim waits for an abandoned goroutine to actually finish so the
// orphan counter (and any memory it holds) does not accumulate forever.
func (r *Runtime) reclaim(done <-chan outcome) {
	<-done
	remaining := atomic.AddInt64(&r.orphans, -1)
	r.logger.Debug("reclaimed orphaned sandbox goroutine", zap.Int64("remaining_orphans", remaining))
}
