// Package templategen implements TemplateParameterGenerator: the LLM path
// for strategy generation. It builds a prompt, requests a JSON parameter
// object for a named template, validates it against a declarative schema,
// and materializes a CodeForm artifact — never asking the model to emit
// executable code (spec.md §4.6's "JSON-first discipline").
package templategen

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ParamType is a schema-declared parameter's JSON type.
type ParamType string

const (
	TypeNumber ParamType = "number"
	TypeString ParamType = "string"
	TypeBool   ParamType = "bool"
)

// ParamSchema describes one template parameter.
type ParamSchema struct {
	Name    string
	Type    ParamType
	Min     decimal.Decimal
	Max     decimal.Decimal
	Allowed []string // non-empty only for TypeString enumerations
	Default interface{}
}

// TemplateSchema is a named, registered template.
type TemplateSchema struct {
	Name       string
	DataKeys   []string // symbolic keys the template declares; a materialized code_text may use a subset
	Params     []ParamSchema
	FewShot    string // a worked JSON example shown to the model
	Materialize func(params map[string]interface{}) string
}

// Registry is the fixed-at-startup set of named templates.
type Registry struct {
	byName map[string]TemplateSchema
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]TemplateSchema)}
}

// Register adds a template schema.
func (r *Registry) Register(t TemplateSchema) {
	r.byName[t.Name] = t
}

// Get looks up a template by name.
func (r *Registry) Get(name string) (TemplateSchema, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Names lists every registered template name.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	return out
}

// Validate checks a parsed parameter object against the schema, returning
// a descriptive error naming the first violation found (fed back into the
// next retry prompt per spec.md §4.6 step 4).
func (t TemplateSchema) Validate(params map[string]interface{}) error {
	for _, p := range t.Params {
		v, ok := params[p.Name]
		if !ok {
			return fmt.Errorf("missing required parameter %q", p.Name)
		}
		switch p.Type {
		case TypeNumber:
			n, ok := asFloat(v)
			if !ok {
				return fmt.Errorf("parameter %q must be a number, got %T", p.Name, v)
			}
			nDec := decimal.NewFromFloat(n)
			if nDec.LessThan(p.Min) || nDec.GreaterThan(p.Max) {
				return fmt.Errorf("parameter %q = %v outside allowed range [%s, %s]", p.Name, n, p.Min, p.Max)
			}
		case TypeString:
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("parameter %q must be a string, got %T", p.Name, v)
			}
			if len(p.Allowed) > 0 && !contains(p.Allowed, s) {
				return fmt.Errorf("parameter %q = %q not in allowed set %v", p.Name, s, p.Allowed)
			}
		case TypeBool:
			if _, ok := v.(bool); !ok {
				return fmt.Errorf("parameter %q must be a bool, got %T", p.Name, v)
			}
		}
	}
	return nil
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
