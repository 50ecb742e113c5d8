package sandbox

import (
	"context"
	"time"
)

// WorkFunc is the unit of isolated work a Runtime executes: evaluate an
// artifact into a position matrix and simulate it.
type WorkFunc func(ctx context.Context) (*ExecutionResult, error)

// RuntimeOutcome reports how a Runtime's isolated execution ended.
type RuntimeOutcome string

const (
	OutcomeCompleted RuntimeOutcome = "completed"
	OutcomeTimedOut  RuntimeOutcome = "timed_out"
	OutcomeCrashed   RuntimeOutcome = "crashed"
)

// Runtime abstracts the isolation backend SandboxExecutor runs strategy
// work inside. Go cannot forcibly kill a goroutine, so every Runtime must
// still return promptly on timeout even if the underlying work keeps
// running in the background; Run's RuntimeOutcome distinguishes "the
// caller gave up waiting" from "the work genuinely finished."
type Runtime interface {
	Run(ctx context.Context, timeout time.Duration, work WorkFunc) (*ExecutionResult, RuntimeOutcome, error)
}
