package sandbox

import (
	"time"

	"github.com/atlas-desktop/strategy-discovery/internal/simulator"
)

// ResultKind is the ExecutionResult sum-type tag (spec.md §4.3).
type ResultKind string

const (
	ResultSuccess         ResultKind = "success"
	ResultTimeout         ResultKind = "timeout"
	ResultValidationFail  ResultKind = "validation_fail"
	ResultRuntimeError    ResultKind = "runtime_error"
	ResultResourceExceeded ResultKind = "resource_exceeded"
)

// ExecutionResult is SandboxExecutor's return value. Exactly one of Report
// or ErrorKind/ErrorDetail is meaningful, selected by Kind.
type ExecutionResult struct {
	Kind        ResultKind
	Report      *simulator.Report
	ErrorKind   string
	ErrorDetail string
	Elapsed     time.Duration
}

func success(report *simulator.Report, elapsed time.Duration) ExecutionResult {
	return ExecutionResult{Kind: ResultSuccess, Report: report, Elapsed: elapsed}
}

func timeout(elapsed time.Duration) ExecutionResult {
	return ExecutionResult{Kind: ResultTimeout, ErrorKind: "timeout", ErrorDetail: "execution exceeded configured timeout", Elapsed: elapsed}
}

func runtimeError(kind, detail string, elapsed time.Duration) ExecutionResult {
	return ExecutionResult{Kind: ResultRuntimeError, ErrorKind: kind, ErrorDetail: detail, Elapsed: elapsed}
}

func validationFail(detail string, elapsed time.Duration) ExecutionResult {
	return ExecutionResult{Kind: ResultValidationFail, ErrorKind: "validation_fail", ErrorDetail: detail, Elapsed: elapsed}
}

func resourceExceeded(detail string, elapsed time.Duration) ExecutionResult {
	return ExecutionResult{Kind: ResultResourceExceeded, ErrorKind: "resource_exceeded", ErrorDetail: detail, Elapsed: elapsed}
}
