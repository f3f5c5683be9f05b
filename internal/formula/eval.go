package formula

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/nerrad567/attribute-processor/internal/quality"
)

// Evaluate compiles and evaluates source in one step. Syntax errors are
// returned as *SyntaxError, runtime failures as *EvalError.
func Evaluate(ctx context.Context, name, source string, env Env) (Value, error) {
	expr, err := Compile(name, source)
	if err != nil {
		return Value{}, err
	}
	return expr.Eval(ctx, env)
}

// Eval evaluates the formula against env. Any failure, including a panic
// inside a called function, is returned as an *EvalError.
func (e *Expr) Eval(ctx context.Context, env Env) (v Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &EvalError{Formula: e.name, Source: e.source, Err: fmt.Errorf("%w: panic: %v", ErrCall, r)}
		}
	}()

	v, err = eval(ctx, e.root, env)
	if err != nil {
		var ee *EvalError
		if errors.As(err, &ee) && ee.Formula == e.name && ee.Source == e.source {
			return Value{}, err
		}
		return Value{}, &EvalError{Formula: e.name, Source: e.source, Err: err}
	}
	return v, nil
}

func isUndefined(err error) bool { return errors.Is(err, ErrUndefined) }

func eval(ctx context.Context, n node, env Env) (Value, error) {
	switch n := n.(type) {
	case *numberLit:
		return Number(n.value), nil
	case *stringLit:
		return String(n.value), nil
	case *boolLit:
		return Bool(n.value), nil
	case *noneLit:
		return Null(), nil
	case *ident:
		return env.Lookup(ctx, n.name)
	case *listLit:
		items := make([]Value, len(n.items))
		for i, item := range n.items {
			v, err := eval(ctx, item, env)
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return listOrVector(items), nil
	case *unaryExpr:
		operand, err := eval(ctx, n.operand, env)
		if err != nil {
			return Value{}, err
		}
		return unary(n.op, operand)
	case *binaryExpr:
		left, err := eval(ctx, n.left, env)
		if err != nil {
			return Value{}, err
		}
		right, err := eval(ctx, n.right, env)
		if err != nil {
			return Value{}, err
		}
		return binary(n.op, left, right)
	case *logicalExpr:
		left, err := eval(ctx, n.left, env)
		if err != nil {
			return Value{}, err
		}
		truth, err := left.Truthy()
		if err != nil {
			return Value{}, err
		}
		if truth == (n.op == tokOr) {
			return left, nil
		}
		return eval(ctx, n.right, env)
	case *compareExpr:
		return evalCompare(ctx, n, env)
	case *indexExpr:
		target, err := eval(ctx, n.target, env)
		if err != nil {
			return Value{}, err
		}
		index, err := eval(ctx, n.index, env)
		if err != nil {
			return Value{}, err
		}
		return subscript(target, index)
	case *memberExpr:
		target, err := eval(ctx, n.target, env)
		if err != nil {
			return Value{}, err
		}
		mod, ok := target.Module()
		if !ok {
			return Value{}, fmt.Errorf("%w: %s has no member %q", ErrType, target.kind, n.name)
		}
		member, ok := mod.Member(n.name)
		if !ok {
			return Value{}, fmt.Errorf("%w: %s.%s", ErrUndefined, mod.Name, n.name)
		}
		return member, nil
	case *callExpr:
		return evalCall(ctx, n, env)
	}
	return Value{}, fmt.Errorf("%w: unsupported expression %T", ErrType, n)
}

func evalCall(ctx context.Context, n *callExpr, env Env) (Value, error) {
	callee, err := eval(ctx, n.callee, env)
	if err != nil {
		return Value{}, err
	}
	fn, ok := callee.Function()
	if !ok {
		return Value{}, fmt.Errorf("%w: %s is not callable", ErrType, callee.kind)
	}

	call := Call{Ctx: ctx, Name: fn.Name, Args: make([]Value, len(n.args))}
	for i, arg := range n.args {
		if call.Args[i], err = eval(ctx, arg, env); err != nil {
			return Value{}, err
		}
	}
	if len(n.kwargs) > 0 {
		call.Kwargs = make(map[string]Value, len(n.kwargs))
		for _, kw := range n.kwargs {
			v, err := eval(ctx, kw.value, env)
			if err != nil {
				return Value{}, err
			}
			call.Kwargs[kw.name] = v
		}
	}
	if err := ctx.Err(); err != nil {
		return Value{}, fmt.Errorf("%w: %s: %w", ErrCall, fn.Name, err)
	}
	return invoke(fn, call)
}

func invoke(fn *Function, call Call) (v Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: panic: %v", ErrCall, fn.Name, r)
		}
	}()

	v, err = fn.Fn(call)
	if err == nil {
		return v, nil
	}
	var ee *EvalError
	if errors.As(err, &ee) {
		return Value{}, err
	}
	if errors.Is(err, ErrType) || errors.Is(err, ErrUndefined) || errors.Is(err, ErrDivisionByZero) ||
		errors.Is(err, ErrIndex) || errors.Is(err, ErrCall) {
		return Value{}, err
	}
	return Value{}, fmt.Errorf("%w: %s: %w", ErrCall, fn.Name, err)
}

func evalCompare(ctx context.Context, n *compareExpr, env Env) (Value, error) {
	left, err := eval(ctx, n.operands[0], env)
	if err != nil {
		return Value{}, err
	}
	var result Value
	for i, op := range n.ops {
		right, err := eval(ctx, n.operands[i+1], env)
		if err != nil {
			return Value{}, err
		}
		r, err := compare(op, left, right)
		if err != nil {
			return Value{}, err
		}
		if i == 0 {
			result = r
		} else if result, err = combineAnd(result, r); err != nil {
			return Value{}, err
		}
		if result.kind == KindBool && result.num == 0 {
			return result, nil
		}
		left = right
	}
	return result, nil
}

// combineAnd joins the links of a comparison chain.
func combineAnd(a, b Value) (Value, error) {
	if a.kind == KindBool && b.kind == KindBool {
		return b.WithQuality(mergeQuality(a, b)), nil
	}
	return broadcast(a, b, func(x, y float64) (float64, error) {
		if x != 0 && y != 0 {
			return 1, nil
		}
		return 0, nil
	})
}

func mergeQuality(a, b Value) quality.Quality {
	if a.quality == quality.Unset && b.quality == quality.Unset {
		return quality.Unset
	}
	return quality.Worst(a.quality, b.quality)
}

func unary(op tokenKind, v Value) (Value, error) {
	if op == tokNot {
		truth, err := v.Truthy()
		if err != nil {
			return Value{}, err
		}
		return Bool(!truth).WithQuality(v.quality), nil
	}
	sign := 1.0
	if op == tokMinus {
		sign = -1
	}
	switch v.kind {
	case KindNumber, KindBool:
		return Number(sign * v.num).WithQuality(v.quality), nil
	case KindVector:
		out := make([]float64, len(v.vec))
		for i, f := range v.vec {
			out[i] = sign * f
		}
		return Vector(out).WithQuality(v.quality), nil
	}
	return Value{}, fmt.Errorf("%w: bad operand type for unary %s: %s", ErrType, op, v.kind)
}

func binary(op tokenKind, a, b Value) (Value, error) {
	if op == tokPlus {
		if as, ok := a.Str(); ok {
			bs, ok := b.Str()
			if !ok {
				return Value{}, fmt.Errorf("%w: cannot add string and %s", ErrType, b.kind)
			}
			return String(as + bs).WithQuality(mergeQuality(a, b)), nil
		}
		if a.kind == KindList && b.kind == KindList {
			return List(append(append([]Value{}, a.list...), b.list...)), nil
		}
	}
	fn, ok := arithmetic[op]
	if !ok {
		return Value{}, fmt.Errorf("%w: unsupported operator %s", ErrType, op)
	}
	return broadcast(a, b, fn)
}

var arithmetic = map[tokenKind]func(x, y float64) (float64, error){
	tokPlus:  func(x, y float64) (float64, error) { return x + y, nil },
	tokMinus: func(x, y float64) (float64, error) { return x - y, nil },
	tokStar:  func(x, y float64) (float64, error) { return x * y, nil },
	tokSlash: func(x, y float64) (float64, error) {
		if y == 0 {
			return 0, ErrDivisionByZero
		}
		return x / y, nil
	},
	tokFloorDiv: func(x, y float64) (float64, error) {
		if y == 0 {
			return 0, ErrDivisionByZero
		}
		return math.Floor(x / y), nil
	},
	tokPercent: func(x, y float64) (float64, error) {
		if y == 0 {
			return 0, ErrDivisionByZero
		}
		// Result takes the sign of the divisor.
		m := math.Mod(x, y)
		if m != 0 && (m < 0) != (y < 0) {
			m += y
		}
		return m, nil
	},
	tokPower: func(x, y float64) (float64, error) { return math.Pow(x, y), nil },
}

// broadcast applies fn element-wise. Scalars pair with every element of a
// vector; two vectors must have the same length.
func broadcast(a, b Value, fn func(x, y float64) (float64, error)) (Value, error) {
	q := mergeQuality(a, b)
	ax, aScalar := a.Float()
	bx, bScalar := b.Float()
	if aScalar && bScalar {
		r, err := fn(ax, bx)
		if err != nil {
			return Value{}, err
		}
		return Number(r).WithQuality(q), nil
	}

	av, aok := numericElems(a)
	bv, bok := numericElems(b)
	if !aok || !bok {
		return Value{}, fmt.Errorf("%w: unsupported operand types %s and %s", ErrType, a.kind, b.kind)
	}
	n := max(len(av), len(bv))
	switch {
	case aScalar:
		av = repeat(ax, n)
	case bScalar:
		bv = repeat(bx, n)
	case len(av) != len(bv):
		return Value{}, fmt.Errorf("%w: vector length mismatch %d and %d", ErrType, len(av), len(bv))
	}

	out := make([]float64, n)
	for i := range out {
		r, err := fn(av[i], bv[i])
		if err != nil {
			return Value{}, fmt.Errorf("%w at element %d", err, i)
		}
		out[i] = r
	}
	return Vector(out).WithQuality(q), nil
}

func numericElems(v Value) ([]float64, bool) {
	if v.kind == KindString || v.kind == KindNull {
		return nil, false
	}
	return v.Floats()
}

func repeat(x float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = x
	}
	return out
}

func compare(op tokenKind, a, b Value) (Value, error) {
	q := mergeQuality(a, b)
	if as, ok := a.Str(); ok {
		if bs, ok := b.Str(); ok {
			return Bool(compareOrdered(op, as, bs)).WithQuality(q), nil
		}
	}

	ax, aScalar := a.Float()
	bx, bScalar := b.Float()
	if aScalar && bScalar {
		return Bool(compareOrdered(op, ax, bx)).WithQuality(q), nil
	}
	if a.kind == KindVector || b.kind == KindVector {
		return broadcast(a, b, func(x, y float64) (float64, error) {
			if compareOrdered(op, x, y) {
				return 1, nil
			}
			return 0, nil
		})
	}

	switch op {
	case tokEq:
		return Bool(sameValue(a, b)).WithQuality(q), nil
	case tokNe:
		return Bool(!sameValue(a, b)).WithQuality(q), nil
	}
	return Value{}, fmt.Errorf("%w: cannot order %s and %s", ErrType, a.kind, b.kind)
}

func compareOrdered[T float64 | string](op tokenKind, x, y T) bool {
	switch op {
	case tokEq:
		return x == y
	case tokNe:
		return x != y
	case tokLt:
		return x < y
	case tokLe:
		return x <= y
	case tokGt:
		return x > y
	case tokGe:
		return x >= y
	}
	return false
}

func sameValue(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindList:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !sameValue(a.list[i], b.list[i]) {
				return false
			}
		}
		return true
	case KindModule:
		return a.mod == b.mod
	case KindFunction:
		return a.fn == b.fn
	}
	return false
}

func subscript(target, index Value) (Value, error) {
	f, ok := index.Float()
	if !ok || f != math.Trunc(f) {
		return Value{}, fmt.Errorf("%w: index must be an integer, got %s", ErrType, index)
	}
	n, ok := target.Len()
	if !ok {
		return Value{}, fmt.Errorf("%w: %s is not subscriptable", ErrType, target.kind)
	}
	i := int(f)
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return Value{}, fmt.Errorf("%w: index %d, length %d", ErrIndex, int(f), n)
	}

	switch target.kind {
	case KindVector:
		return Number(target.vec[i]).WithQuality(target.quality), nil
	case KindList:
		item := target.list[i]
		if item.quality == quality.Unset {
			item.quality = target.quality
		}
		return item, nil
	default:
		return String(target.str[i : i+1]).WithQuality(target.quality), nil
	}
}
