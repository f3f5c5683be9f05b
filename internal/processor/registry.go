package processor

import (
	"fmt"
	"strings"

	"github.com/nerrad567/attribute-processor/internal/formula"
)

// reservedNames cannot be used as attribute names because the formula
// grammar treats them as keywords.
var reservedNames = map[string]bool{
	"and": true, "or": true, "not": true, "True": true, "False": true, "None": true,
}

func isName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// Registry holds the ordered attribute and state formulas of one
// configuration. It is filled once by Configure and read-only afterwards.
type Registry struct {
	attributes []*AttributeFormula
	byName     map[string]*AttributeFormula
	states     []*StateFormula
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*AttributeFormula)}
}

// splitDeclaration splits "name=expression" at the first '='.
func splitDeclaration(decl string) (string, string, error) {
	name, source, found := strings.Cut(decl, "=")
	if !found {
		return "", "", fmt.Errorf("%w: %q: missing '='", ErrMalformedFormula, decl)
	}
	name = strings.TrimSpace(name)
	source = strings.TrimSpace(source)
	if source == "" {
		return "", "", fmt.Errorf("%w: %q: empty expression", ErrMalformedFormula, decl)
	}
	return name, source, nil
}

// RegisterAttribute parses "name=expression" and appends it.
//
// Returns ErrMalformedFormula (wrapping the *formula.SyntaxError where
// there is one) on a missing '=', an invalid or duplicate name, or a
// parse error.
func (r *Registry) RegisterAttribute(decl string) (*AttributeFormula, error) {
	name, source, err := splitDeclaration(decl)
	if err != nil {
		return nil, err
	}
	if !isName(name) || reservedNames[name] {
		return nil, fmt.Errorf("%w: invalid attribute name %q", ErrMalformedFormula, name)
	}
	if _, exists := r.byName[name]; exists {
		return nil, fmt.Errorf("%w: duplicate attribute %q", ErrMalformedFormula, name)
	}

	expr, err := formula.Compile(name, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedFormula, name, err)
	}

	attr := &AttributeFormula{Name: name, Source: source, Expr: expr, Type: declaredTypeOf(expr)}
	r.attributes = append(r.attributes, attr)
	r.byName[name] = attr
	return attr, nil
}

// RegisterState parses "STATE=expression" and appends it. The same state
// may appear more than once; each declaration keeps its position.
func (r *Registry) RegisterState(decl string) (*StateFormula, error) {
	name, source, err := splitDeclaration(decl)
	if err != nil {
		return nil, err
	}
	state, err := NormalizeState(name)
	if err != nil {
		return nil, err
	}

	expr, err := formula.Compile(state, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedFormula, state, err)
	}

	sf := &StateFormula{State: state, Source: source, Expr: expr, Priority: len(r.states)}
	r.states = append(r.states, sf)
	return sf, nil
}

// Attribute returns the formula registered under name.
func (r *Registry) Attribute(name string) (*AttributeFormula, bool) {
	a, ok := r.byName[name]
	return a, ok
}

// Attributes returns the attribute formulas in declaration order.
func (r *Registry) Attributes() []*AttributeFormula {
	return r.attributes
}

// States returns the state formulas in declaration order.
func (r *Registry) States() []*StateFormula {
	return r.states
}
