// Package validator implements StrategyValidator: static checks over a
// strategy artifact before it is ever handed to SandboxExecutor. Hard
// rules reject; soft rules only warn. Grounded on the teacher's
// internal/backtester.ViabilityChecker (threshold-driven, Issue/Report
// shape) generalized from post-backtest metric checks to pre-backtest
// static artifact checks.
package validator

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/strategy-discovery/internal/artifact"
	"github.com/atlas-desktop/strategy-discovery/internal/dataaccessor"
)

// Violation is a hard-rule failure; its presence alone forces IsValid=false.
type Violation struct {
	Rule    string
	Detail  string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Rule, v.Detail)
}

// Warning is a soft-rule finding; it never blocks a strategy from reaching
// the sandbox.
type Warning struct {
	Rule   string
	Detail string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Rule, w.Detail)
}

// Report is StrategyValidator's return value: spec's (is_valid, warnings,
// violations) triple.
type Report struct {
	IsValid    bool
	Warnings   []Warning
	Violations []Violation
}

// forbiddenIdentifiers names the env-level identifiers a CodeForm program
// must never reference: filesystem, network, subprocess, reflection, or
// dynamic evaluation. expr.Env(map[string]interface{}{}) gives every
// expr-lang program an "open" environment — any identifier type-checks as
// a map lookup, so a compile-failure check alone never catches these.
// Instead expr.Patch walks the parsed AST during Compile itself (see
// checkForbiddenOperations), so the identifier is caught whether or not
// the expression goes on to compile cleanly.
var forbiddenIdentifiers = map[string]bool{
	"os": true, "net": true, "exec": true, "syscall": true,
	"reflect": true, "eval": true, "unsafe": true,
}

// identifierVisitor implements ast.Visitor, recording every forbidden
// identifier the walk encounters.
type identifierVisitor struct {
	found []string
}

func (iv *identifierVisitor) Visit(node *ast.Node) {
	ident, ok := (*node).(*ast.IdentifierNode)
	if !ok {
		return
	}
	if forbiddenIdentifiers[ident.Value] {
		iv.found = append(iv.found, ident.Value)
	}
}

// checkForbiddenOperations compiles code under expr.Patch, which drives
// the AST walk regardless of whether the expression ultimately
// type-checks against the open environment; Compile's return value is
// deliberately ignored.
func checkForbiddenOperations(code string) []string {
	visitor := &identifierVisitor{}
	_, _ = expr.Compile(code, expr.Env(map[string]interface{}{}), expr.Patch(visitor))
	return visitor.found
}

// Config holds the soft-rule thresholds. All are tunable; see
// internal/config for the defaults wired at startup.
type Config struct {
	StopLossMin       decimal.Decimal // default 0.05
	StopLossMax       decimal.Decimal // default 0.20
	PortfolioCountMin int             // default 5
	PortfolioCountMax int             // default 30
}

// DefaultConfig returns spec.md §4.2's stated soft-rule ranges.
func DefaultConfig() Config {
	return Config{
		StopLossMin:       decimal.NewFromFloat(0.05),
		StopLossMax:       decimal.NewFromFloat(0.20),
		PortfolioCountMin: 5,
		PortfolioCountMax: 30,
	}
}

// Validator runs hard and soft rules over a strategy artifact.
type Validator struct {
	cfg     Config
	access  *dataaccessor.Accessor
}

// New builds a Validator. access supplies the forbidden/unknown data-key
// check; it is never mutated.
func New(cfg Config, access *dataaccessor.Accessor) *Validator {
	return &Validator{cfg: cfg, access: access}
}

// Validate runs every rule and returns the combined report. A hard
// violation is sufficient for IsValid=false regardless of how many soft
// warnings also fired (spec.md §4.2 tie-break).
func (v *Validator) Validate(s artifact.Strategy) Report {
	var report Report

	switch a := s.(type) {
	case *artifact.CodeArtifact:
		v.validateCode(a, &report)
	case *artifact.GraphArtifact:
		v.validateGraph(a, &report)
	default:
		report.Violations = append(report.Violations, Violation{
			Rule:   "unknown_artifact_kind",
			Detail: fmt.Sprintf("unrecognized strategy kind %T", s),
		})
	}

	report.IsValid = len(report.Violations) == 0
	return report
}

func (v *Validator) validateCode(a *artifact.CodeArtifact, report *Report) {
	if err := a.Validate(); err != nil {
		report.Violations = append(report.Violations, Violation{Rule: "structural", Detail: err.Error()})
		return
	}
	for _, ident := range checkForbiddenOperations(a.CodeText) {
		report.Violations = append(report.Violations, Violation{
			Rule:   "forbidden_primitive",
			Detail: fmt.Sprintf("code_text references forbidden identifier %q", ident),
		})
	}
	v.checkForbiddenDataKeys(extractDataKeys(a.CodeText), report)
	v.checkSoftRules(a.ParameterDict, report)
}

func (v *Validator) validateGraph(g *artifact.GraphArtifact, report *Report) {
	if err := g.Validate(); err != nil {
		report.Violations = append(report.Violations, Violation{Rule: "structural", Detail: err.Error()})
		return
	}

	keys := map[string]struct{}{}
	for _, node := range g.Nodes {
		for _, k := range dataKeysFromParams(node.Parameters) {
			keys[k] = struct{}{}
		}
		params := map[string]interface{}{}
		for k, val := range node.Parameters {
			params[k] = val
		}
		v.checkSoftRules(params, report)
	}
	flat := make([]string, 0, len(keys))
	for k := range keys {
		flat = append(flat, k)
	}
	v.checkForbiddenDataKeys(flat, report)
}

// checkForbiddenDataKeys enforces the hard rule on raw unadjusted price
// series and any other manifest-forbidden key.
func (v *Validator) checkForbiddenDataKeys(keys []string, report *Report) {
	if v.access == nil {
		return
	}
	for _, k := range keys {
		outcome := v.access.ValidateField(k)
		if outcome.OK {
			continue
		}
		report.Violations = append(report.Violations, Violation{
			Rule:   "forbidden_data_key",
			Detail: fmt.Sprintf("field %q is forbidden or unknown (did you mean %q?)", k, outcome.Suggestion),
		})
	}
}

// checkSoftRules runs the risk-management and logical-consistency
// heuristics named in spec.md §4.2. None of these produce a Violation.
func (v *Validator) checkSoftRules(params map[string]interface{}, report *Report) {
	if sl, ok := floatParam(params, "stop_loss", "stop_loss_pct"); ok {
		slDec := decimal.NewFromFloat(sl)
		if slDec.LessThan(v.cfg.StopLossMin) || slDec.GreaterThan(v.cfg.StopLossMax) {
			report.Warnings = append(report.Warnings, Warning{
				Rule:   "stop_loss_range",
				Detail: fmt.Sprintf("stop loss %.3f outside recommended [%s, %s]", sl, v.cfg.StopLossMin, v.cfg.StopLossMax),
			})
		}
	}
	if pc, ok := intParam(params, "portfolio_count", "position_count"); ok {
		if pc < v.cfg.PortfolioCountMin || pc > v.cfg.PortfolioCountMax {
			report.Warnings = append(report.Warnings, Warning{
				Rule:   "portfolio_count_range",
				Detail: fmt.Sprintf("portfolio count %d outside recommended [%d, %d]", pc, v.cfg.PortfolioCountMin, v.cfg.PortfolioCountMax),
			})
		}
	}
	if rf, ok := params["rebalance_frequency"].(string); ok && rf == "daily" {
		report.Warnings = append(report.Warnings, Warning{
			Rule:   "daily_rebalance_cost",
			Detail: "daily rebalancing on a high-cost market erodes returns through transaction costs",
		})
	}
	if fast, fastOK := floatParam(params, "fast_window"); fastOK {
		if slow, slowOK := floatParam(params, "slow_window"); slowOK && fast >= slow {
			report.Warnings = append(report.Warnings, Warning{
				Rule:   "fast_slow_mismatch",
				Detail: fmt.Sprintf("fast window %.0f is not smaller than slow window %.0f", fast, slow),
			})
		}
	}
	if hold, ok := floatParam(params, "holding_period_days"); ok && hold < 2 {
		report.Warnings = append(report.Warnings, Warning{
			Rule:   "t_plus_2_settlement",
			Detail: "holding period under Taiwan's T+2 settlement cycle may prevent timely exit",
		})
	}
}

func floatParam(params map[string]interface{}, names ...string) (float64, bool) {
	for _, name := range names {
		v, ok := params[name]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n, true
		case int:
			return float64(n), true
		}
	}
	return 0, false
}

func intParam(params map[string]interface{}, names ...string) (int, bool) {
	f, ok := floatParam(params, names...)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func dataKeysFromParams(params map[string]interface{}) []string {
	v, ok := params["data_keys"]
	if !ok {
		return nil
	}
	switch keys := v.(type) {
	case []string:
		return keys
	case []interface{}:
		out := make([]string, 0, len(keys))
		for _, k := range keys {
			if s, ok := k.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// extractDataKeys pulls quoted `data["..."]`-style accessor references out
// of an expr-lang program body — the same surface CodeForm.code_text uses
// for symbolic data lookups.
func extractDataKeys(code string) []string {
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
		out = append(out, rest[:end])
		code = rest[end+2:]
	}
	return out
}
