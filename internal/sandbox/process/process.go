// Package process is an optional SandboxExecutor isolation backend that
// adds a resource ceiling on top of the goroutine backend's timeout.
// True OS-process (or container) isolation needs the artifact, not a Go
// closure, to cross the boundary — SPEC_FULL.md documents that stronger
// backend as an external interface a deployment can swap in; this
// package ships the resource-capped middle ground: same in-process
// execution as goroutine.Runtime, plus a polled heap-growth guard so a
// pathological artifact cannot exhaust the host's memory before its
// timeout elapses.
package process

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/strategy-discovery/internal/sandbox"
)

// Runtime wraps goroutine-style execution with a memory ceiling.
type Runtime struct {
	logger      *zap.Logger
	maxHeapMB   uint64
	pollEvery   time.Duration
	orphans     int64
}

// New builds a resource-capped Runtime. maxHeapMB of 0 disables the cap.
func New(logger *zap.Logger, maxHeapMB uint64) *Runtime {
	return &Runtime{
		logger:    logger.Named("sandbox-process"),
		maxHeapMB: maxHeapMB,
		pollEvery: 50 * time.Millisecond,
	}
}

type outcome struct {
	result *sandbox.ExecutionResult
	err    error
}

// Run executes work under both a timeout and, if configured, a heap
// ceiling. Exceeding the ceiling cancels the work's context and reports
// resource exhaustion distinctly from a plain timeout.
func (r *Runtime) Run(ctx context.Context, timeout time.Duration, work sandbox.WorkFunc) (*sandbox.ExecutionResult, sandbox.RuntimeOutcome, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome, 1)
	exceeded := make(chan struct{}, 1)
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

	stopPoll := make(chan struct{})
	if r.maxHeapMB > 0 {
		go r.pollHeap(runCtx, stopPoll, exceeded)
	}
	defer close(stopPoll)

	select {
	case o := <-done:
		atomic.AddInt64(&r.orphans, -1)
		if o.err != nil {
			return nil, sandbox.OutcomeCrashed, o.err
		}
		return o.result, sandbox.OutcomeCompleted, nil
	case <-exceeded:
		cancel()
		go r.reclaim(done)
		return nil, sandbox.OutcomeTimedOut, fmt.Errorf("sandbox: resource_exceeded: heap exceeded %d MB", r.maxHeapMB)
	case <-runCtx.Done():
		go r.reclaim(done)
		return nil, sandbox.OutcomeTimedOut, runCtx.Err()
	}
}

func (r *Runtime) pollHeap(ctx context.Context, stop <-chan struct{}, exceeded chan<- struct{}) {
	ticker := time.NewTicker(r.pollEvery)
	defer ticker.Stop()
	var stats runtime.MemStats
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			runtime.ReadMemStats(&stats)
			if stats.HeapAlloc/(1024*1024) > r.maxHeapMB {
				select {
				case exceeded <- struct{}{}:
				default:
				}
				return
			}
		}
	}
}

func (r *Runtime) reclaim(done <-chan outcome) {
	<-done
	remaining := atomic.AddInt64(&r.orphans, -1)
	r.logger.Debug("reclaimed orphaned sandbox goroutine", zap.Int64("remaining_orphans", remaining))
}

// OrphanCount returns the number of work goroutines still running in the
// background after a timeout or resource-exceeded return.
func (r *Runtime) OrphanCount() int64 {
	return atomic.LoadInt64(&r.orphans)
}
