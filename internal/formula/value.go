package formula

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/nerrad567/attribute-processor/internal/quality"
)

// Kind identifies the type held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindNumber
	KindBool
	KindString
	KindVector
	KindList
	KindModule
	KindFunction
)

var kindNames = [...]string{
	KindNull:     "None",
	KindNumber:   "number",
	KindBool:     "bool",
	KindString:   "string",
	KindVector:   "vector",
	KindList:     "list",
	KindModule:   "module",
	KindFunction: "function",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is the result of evaluating a formula or any sub-expression.
// The zero Value is None.
//
// Values may carry an explicit quality. Functions such as the peak fit
// return quality-annotated values; operators propagate the worst quality
// of their operands.
type Value struct {
	kind    Kind
	num     float64
	str     string
	vec     []float64
	list    []Value
	mod     *Module
	fn      *Function
	quality quality.Quality
}

// Null returns None.
func Null() Value { return Value{} }

// Number returns a numeric scalar.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool returns a boolean.
func Bool(b bool) Value {
	if b {
		return Value{kind: KindBool, num: 1}
	}
	return Value{kind: KindBool}
}

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Vector returns a numeric vector. The slice is not copied.
func Vector(v []float64) Value {
	if v == nil {
		v = []float64{}
	}
	return Value{kind: KindVector, vec: v}
}

// List returns a heterogeneous list.
func List(items []Value) Value { return Value{kind: KindList, list: items} }

// ModuleValue wraps a namespace.
func ModuleValue(m *Module) Value { return Value{kind: KindModule, mod: m} }

// Func wraps a Go function as a callable value.
func Func(name string, fn func(Call) (Value, error)) Value {
	return Value{kind: KindFunction, fn: &Function{Name: name, Fn: fn}}
}

// Kind returns the type of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is None.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Quality returns the explicit quality of v, or quality.Unset.
func (v Value) Quality() quality.Quality { return v.quality }

// WithQuality returns a copy of v annotated with q.
func (v Value) WithQuality(q quality.Quality) Value {
	v.quality = q
	return v
}

// Float returns the scalar value of a number or bool.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindNumber, KindBool:
		return v.num, true
	}
	return 0, false
}

// Floats returns the elements of a vector, of a list of numbers, or a
// one-element slice for a scalar.
func (v Value) Floats() ([]float64, bool) {
	switch v.kind {
	case KindVector:
		return v.vec, true
	case KindNumber, KindBool:
		return []float64{v.num}, true
	case KindList:
		out := make([]float64, len(v.list))
		for i, item := range v.list {
			f, ok := item.Float()
			if !ok {
				return nil, false
			}
			out[i] = f
		}
		return out, true
	}
	return nil, false
}

// Str returns the text of a string value.
func (v Value) Str() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// Items returns the elements of a list value.
func (v Value) Items() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.list, true
}

// Module returns the namespace of a module value.
func (v Value) Module() (*Module, bool) { return v.mod, v.kind == KindModule }

// Function returns the callable of a function value.
func (v Value) Function() (*Function, bool) { return v.fn, v.kind == KindFunction }

// Len returns the number of elements of a vector, list or string.
func (v Value) Len() (int, bool) {
	switch v.kind {
	case KindVector:
		return len(v.vec), true
	case KindList:
		return len(v.list), true
	case KindString:
		return len(v.str), true
	}
	return 0, false
}

// Truthy follows the usual formula rules: non-zero numbers, true, and
// non-empty strings and lists are true; None and the empty vector are false.
//
// A one-element vector is its element. A longer vector has no single truth
// value, so using it as a condition fails with ErrType; reduce it first
// with any() or all().
func (v Value) Truthy() (bool, error) {
	switch v.kind {
	case KindNumber, KindBool:
		return v.num != 0, nil
	case KindString:
		return v.str != "", nil
	case KindVector:
		switch len(v.vec) {
		case 0:
			return false, nil
		case 1:
			return v.vec[0] != 0, nil
		}
		return false, fmt.Errorf("%w: truth value of a vector of %d elements is ambiguous", ErrType, len(v.vec))
	case KindList:
		return len(v.list) > 0, nil
	case KindModule, KindFunction:
		return true, nil
	}
	return false, nil
}

// Native converts v to a plain Go value for publication: nil, float64,
// bool, string, []float64 or []any.
func (v Value) Native() any {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindBool:
		return v.num != 0
	case KindString:
		return v.str
	case KindVector:
		return slices.Clone(v.vec)
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Native()
		}
		return out
	case KindModule:
		return "<module " + v.mod.Name + ">"
	case KindFunction:
		return "<function " + v.fn.Name + ">"
	}
	return nil
}

// FromNative converts a plain Go value into a Value. Unsupported types
// produce an ErrType error.
func FromNative(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint8:
		return Number(float64(t)), nil
	case uint32:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case []float64:
		return Vector(slices.Clone(t)), nil
	case []int:
		out := make([]float64, len(t))
		for i, n := range t {
			out[i] = float64(n)
		}
		return Vector(out), nil
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			v, err := FromNative(item)
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return listOrVector(items), nil
	}
	return Value{}, fmt.Errorf("%w: cannot convert %T", ErrType, x)
}

// listOrVector collapses a list of numbers into a vector.
func listOrVector(items []Value) Value {
	vec := make([]float64, len(items))
	q := quality.Unset
	for i, item := range items {
		if item.kind != KindNumber && item.kind != KindBool {
			return List(items)
		}
		vec[i] = item.num
		if item.quality != quality.Unset {
			q = quality.Worst(q, item.quality)
		}
	}
	return Vector(vec).WithQuality(q)
}

// String formats v the way the operator console prints it.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "None"
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindBool:
		if v.num != 0 {
			return "True"
		}
		return "False"
	case KindString:
		return strconv.Quote(v.str)
	case KindVector:
		parts := make([]string, len(v.vec))
		for i, f := range v.vec {
			parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return v.Native().(string)
}

// Module is a named namespace of values reachable with the dot operator.
type Module struct {
	Name    string
	members map[string]Value
}

// NewModule returns a module holding a copy of members.
func NewModule(name string, members map[string]Value) *Module {
	m := &Module{Name: name, members: make(map[string]Value, len(members))}
	for k, v := range members {
		m.members[k] = v
	}
	return m
}

// Member looks up one name.
func (m *Module) Member(name string) (Value, bool) {
	v, ok := m.members[name]
	return v, ok
}

// Names returns the member names in sorted order.
func (m *Module) Names() []string {
	names := make([]string, 0, len(m.members))
	for k := range m.members {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Function is a callable exposed to formulas.
type Function struct {
	Name string
	Fn   func(Call) (Value, error)
}

// Call carries the arguments of one function invocation.
type Call struct {
	Ctx    context.Context
	Name   string
	Args   []Value
	Kwargs map[string]Value
}

// Arg returns positional argument i, or the keyword argument name when
// fewer positional arguments were given.
func (c Call) Arg(i int, name string) (Value, bool) {
	if i >= 0 && i < len(c.Args) {
		return c.Args[i], true
	}
	if name != "" {
		if v, ok := c.Kwargs[name]; ok {
			return v, true
		}
	}
	return Value{}, false
}

// Number returns a required numeric argument.
func (c Call) Number(i int, name string) (float64, error) {
	v, ok := c.Arg(i, name)
	if !ok {
		return 0, fmt.Errorf("%w: %s: missing argument %s", ErrType, c.Name, argLabel(i, name))
	}
	f, ok := v.Float()
	if !ok {
		return 0, fmt.Errorf("%w: %s: argument %s must be a number, got %s", ErrType, c.Name, argLabel(i, name), v.kind)
	}
	return f, nil
}

// OptionalNumber returns a numeric argument, or def when absent or None.
func (c Call) OptionalNumber(i int, name string, def float64) (float64, error) {
	v, ok := c.Arg(i, name)
	if !ok || v.IsNull() {
		return def, nil
	}
	return c.Number(i, name)
}

// Floats returns a required vector argument; scalars become one element.
func (c Call) Floats(i int, name string) ([]float64, error) {
	v, ok := c.Arg(i, name)
	if !ok {
		return nil, fmt.Errorf("%w: %s: missing argument %s", ErrType, c.Name, argLabel(i, name))
	}
	f, ok := v.Floats()
	if !ok {
		return nil, fmt.Errorf("%w: %s: argument %s must be numeric, got %s", ErrType, c.Name, argLabel(i, name), v.kind)
	}
	return f, nil
}

// Str returns a required string argument.
func (c Call) Str(i int, name string) (string, error) {
	v, ok := c.Arg(i, name)
	if !ok {
		return "", fmt.Errorf("%w: %s: missing argument %s", ErrType, c.Name, argLabel(i, name))
	}
	s, ok := v.Str()
	if !ok {
		return "", fmt.Errorf("%w: %s: argument %s must be a string, got %s", ErrType, c.Name, argLabel(i, name), v.kind)
	}
	return s, nil
}

// Context returns the call context, never nil.
func (c Call) Context() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

func argLabel(i int, name string) string {
	if name != "" {
		return strconv.Quote(name)
	}
	return "#" + strconv.Itoa(i+1)
}
