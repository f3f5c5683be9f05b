package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/attribute-processor/internal/formula"
	"github.com/nerrad567/attribute-processor/internal/symbols"
)

// scope is the environment of one read or read cycle. Each attribute is
// evaluated at most once per scope; later references reuse the result.
type scope struct {
	snap    *snapshot
	results map[string]scopeResult
	active  map[string]bool
	order   []string
}

type scopeResult struct {
	value formula.Value
	err   error
}

func newScope(snap *snapshot) *scope {
	return &scope{
		snap:    snap,
		results: make(map[string]scopeResult),
		active:  make(map[string]bool),
	}
}

type scopeKey struct{}

func withScope(ctx context.Context, s *scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

func scopeFrom(ctx context.Context) *scope {
	s, _ := ctx.Value(scopeKey{}).(*scope)
	return s
}

// Lookup implements formula.Env: library symbols first, then the other
// dynamic attributes.
func (s *scope) Lookup(ctx context.Context, name string) (formula.Value, error) {
	v, err := s.snap.table.Lookup(ctx, name)
	if err == nil {
		return v, nil
	}
	if attr, ok := s.snap.registry.Attribute(name); ok {
		return s.resolve(ctx, attr)
	}
	return formula.Value{}, err
}

// resolve evaluates attr once within the scope.
func (s *scope) resolve(ctx context.Context, attr *AttributeFormula) (formula.Value, error) {
	if r, ok := s.results[attr.Name]; ok {
		return r.value, r.err
	}
	if s.active[attr.Name] {
		return formula.Value{}, fmt.Errorf("%w: %s", ErrCircularReference, attr.Name)
	}

	s.active[attr.Name] = true
	v, err := attr.Expr.Eval(withScope(ctx, s), s)
	delete(s.active, attr.Name)
	if err == nil {
		err = checkPublishable(attr, v)
	}

	s.results[attr.Name] = scopeResult{value: v, err: err}
	s.order = append(s.order, attr.Name)
	return v, err
}

func checkPublishable(attr *AttributeFormula, v formula.Value) error {
	switch v.Kind() {
	case formula.KindNumber, formula.KindBool, formula.KindString, formula.KindVector, formula.KindNull:
	default:
		return &formula.EvalError{
			Formula: attr.Name,
			Source:  attr.Source,
			Err:     fmt.Errorf("%w: %s", ErrNotPublishable, v.Kind()),
		}
	}
	if attr.Type == TypeScalar && v.Kind() == formula.KindVector {
		return &formula.EvalError{Formula: attr.Name, Source: attr.Source, Err: fmt.Errorf("%w: declared scalar, got vector", formula.ErrType)}
	}
	return nil
}

// selfAccessor routes self-attribute reads of dynamic attributes back into
// the current scope and everything else to the host device.
type selfAccessor struct {
	host symbols.Accessor
}

func (a selfAccessor) DeviceName() string {
	if a.host == nil {
		return ""
	}
	return a.host.DeviceName()
}

func (a selfAccessor) CommandNames() []string {
	if a.host == nil {
		return nil
	}
	return a.host.CommandNames()
}

func (a selfAccessor) InvokeCommand(ctx context.Context, name string, args []formula.Value) (formula.Value, error) {
	if a.host == nil {
		return formula.Value{}, fmt.Errorf("%w: running %s", symbols.ErrNoAccessor, name)
	}
	return a.host.InvokeCommand(ctx, name, args)
}

func (a selfAccessor) ReadSelfAttribute(ctx context.Context, name string) (formula.Value, error) {
	if s := scopeFrom(ctx); s != nil {
		if attr, ok := s.snap.registry.Attribute(name); ok {
			return s.resolve(ctx, attr)
		}
	}
	if a.host == nil {
		return formula.Value{}, fmt.Errorf("%w: reading %s", symbols.ErrNoAccessor, name)
	}
	return a.host.ReadSelfAttribute(ctx, name)
}

// isCircular reports whether err stems from a reference cycle.
func isCircular(err error) bool { return errors.Is(err, ErrCircularReference) }
