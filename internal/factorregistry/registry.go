// Package factorregistry catalogs named factor functions grouped by
// category, used by FactorGraphMutator to build and mutate graphs.
// Adapted from the teacher's internal/strategy.StrategyRegistry
// (name -> factory registration, StrategyParameter{Min,Max,Default}),
// generalized from "whole strategy" factories to "single factor node"
// compute functions operating over dataaccessor.Matrix.
package factorregistry

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/strategy-discovery/internal/dataaccessor"
)

// Category groups factors the way spec.md's FactorRegistry table implies:
// signal-producing, filtering, or stop-loss factors.
type Category string

const (
	CategoryMomentum Category = "momentum"
	CategoryBreakout Category = "breakout"
	CategoryFilter   Category = "filter"
	CategoryStop     Category = "stop"
)

// ParamRange describes the legal range of one scalar factor parameter —
// consumed by FactorGraphMutator's "mutate parameters" operation (spec.md
// §4.7) and node defaults, and by the sandbox's graph evaluator for
// parameters a node leaves unset.
type ParamRange struct {
	Name    string
	Default decimal.Decimal
	Min     decimal.Decimal
	Max     decimal.Decimal
}

// Inputs declares what a factor consumes: either raw data keys or the
// output of another factor node (filled in by the node's DependsOnNodes).
type Inputs struct {
	DataKeys   []string // symbolic keys pulled directly from DataAccessor
	NodeInputs int       // number of upstream factor-node outputs expected
}

// ComputeFunc evaluates a factor node given its resolved inputs (data
// matrices and upstream node outputs, in declaration order) and its
// current parameters, producing one output matrix.
type ComputeFunc func(inputs []*dataaccessor.Matrix, params map[string]float64) (*dataaccessor.Matrix, error)

// FactorSpec is one catalog entry.
type FactorSpec struct {
	Name     string
	Category Category
	Inputs   Inputs
	Params   []ParamRange
	Compute  ComputeFunc
}

// ParamRange looks up a named parameter's declared range; ok is false if
// the factor has no such parameter.
func (f FactorSpec) ParamRange(name string) (ParamRange, bool) {
	for _, p := range f.Params {
		if p.Name == name {
			return p, true
		}
	}
	return ParamRange{}, false
}

// Registry is the immutable-after-init catalog (spec.md §5: "The
// FactorRegistry is immutable after init").
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]FactorSpec
	byCat    map[Category][]string
}

// New builds an empty registry; callers typically use Default() instead.
func New() *Registry {
	return &Registry{
		byName: make(map[string]FactorSpec),
		byCat:  make(map[Category][]string),
	}
}

// Register adds a factor spec. Intended to be called only during startup;
// after the registry is handed to the rest of the system it is treated as
// read-only.
func (r *Registry) Register(spec FactorSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[spec.Name] = spec
	r.byCat[spec.Category] = append(r.byCat[spec.Category], spec.Name)
}

// Get returns a factor spec by name.
func (r *Registry) Get(name string) (FactorSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.byName[name]
	return spec, ok
}

// Names returns every registered factor name in a category, in
// registration order (deterministic — property P10 depends on this when
// a category is indexed by position for mutation selection).
func (r *Registry) Names(cat Category) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.byCat[cat]))
	copy(out, r.byCat[cat])
	return out
}

// Categories returns every category with at least one registered factor.
func (r *Registry) Categories() []Category {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Category, 0, len(r.byCat))
	for c := range r.byCat {
		out = append(out, c)
	}
	return out
}

// MustGet is Get but panics on a missing name — used by the graph
// mutation operators for names just read back from the registry itself.
func (r *Registry) MustGet(name string) FactorSpec {
	spec, ok := r.Get(name)
	if !ok {
		panic(fmt.Sprintf("factorregistry: factor %q not registered", name))
	}
	return spec
}
