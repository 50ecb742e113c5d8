package sandbox

import (
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/atlas-desktop/strategy-discovery/internal/artifact"
	"github.com/atlas-desktop/strategy-discovery/internal/dataaccessor"
)

// CodeEvaluator compiles and runs CodeForm artifacts. code_text is an
// expr-lang expression evaluated once per (date, symbol) pair against an
// env map built from the symbolic data keys the program references; the
// result is the target position weight for that symbol on that date.
// Grounded on smilemakc-mbflow's ConditionEvaluator (expr.Compile +
// expr.Run, compiled-program cache keyed by source text).
type CodeEvaluator struct {
	access *dataaccessor.Accessor

	mu    sync.Mutex
	cache map[string]*vm.Program
}

// NewCodeEvaluator builds an evaluator reading through access.
func NewCodeEvaluator(access *dataaccessor.Accessor) *CodeEvaluator {
	return &CodeEvaluator{access: access, cache: make(map[string]*vm.Program)}
}

// PositionMatrix evaluates a.CodeText over every date of the referenced
// data and the supplied symbols, returning a weight matrix with the same shape dataaccessor
// returns for any referenced key.
func (e *CodeEvaluator) PositionMatrix(a *artifact.CodeArtifact, symbols []string) (*dataaccessor.Matrix, error) {
	program, err := e.compile(a.CodeText)
	if err != nil {
		return nil, fmt.Errorf("sandbox: compile code_text: %w", err)
	}

	keys := extractDataKeys(a.CodeText)
	if len(keys) == 0 {
		return nil, fmt.Errorf("sandbox: code_text references no data keys")
	}

	matrices := make(map[string]*dataaccessor.Matrix, len(keys))
	var reference *dataaccessor.Matrix
	for _, k := range keys {
		m, err := e.access.Get(k, symbols)
		if err != nil {
			return nil, err
		}
		matrices[k] = m
		reference = m
	}

	out := dataaccessor.NewMatrix(reference.Dates, reference.Symbols)
	env := make(map[string]interface{}, len(keys)+len(a.ParameterDict))
	for name, val := range a.ParameterDict {
		env[name] = val
	}

	for row := range reference.Dates {
		for col := range reference.Symbols {
			dataEnv := make(map[string]interface{}, len(keys))
			for k, m := range matrices {
				dataEnv[k] = m.Values[row][col]
			}
			env["data"] = dataEnv

			result, err := expr.Run(program, env)
			if err != nil {
				return nil, fmt.Errorf("sandbox: runtime_error: %w", err)
			}
			weight, err := toWeight(result)
			if err != nil {
				return nil, err
			}
			out.Values[row][col] = weight
		}
	}
	return out, nil
}

func (e *CodeEvaluator) compile(codeText string) (*vm.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.cache[codeText]; ok {
		return p, nil
	}
	p, err := expr.Compile(codeText, expr.Env(map[string]interface{}{}))
	if err != nil {
		return nil, err
	}
	e.cache[codeText] = p
	return p, nil
}

func toWeight(result interface{}) (float64, error) {
	switch v := result.(type) {
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("sandbox: runtime_error: code_text produced non-numeric result %v (%T)", result, result)
	}
}

// extractDataKeys pulls every `data["..."]` reference out of an expr-lang
// program body.
func extractDataKeys(code string) []string {
	seen := map[string]bool{}
	var out []string
	const marker = `data["`
	for {
		idx := strings.Index(code, marker)
		if idx == -1 {
			break
		}
		rest := code[idx+len(marker):]
		end := strings.Index(rest, `"]`)
		if end == -1 {
			break
		}
		key := rest[:end]
		if !seen[key] {
			seen[key] = true
			out = append(out, key)
		}
		code = rest[end+2:]
	}
	return out
}
