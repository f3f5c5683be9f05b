package symbols

import (
	"fmt"
	"math"

	"github.com/nerrad567/attribute-processor/internal/formula"
	"github.com/nerrad567/attribute-processor/internal/quality"
)

// Shape is the declared shape a type wrapper imposes on an attribute.
type Shape uint8

const (
	ShapeAuto Shape = iota
	ShapeScalar
	ShapeVector
)

func (s Shape) String() string {
	switch s {
	case ShapeScalar:
		return "scalar"
	case ShapeVector:
		return "vector"
	default:
		return "auto"
	}
}

type wrapper struct {
	shape   Shape
	convert func(float64) float64
	boolean bool
}

var typeWrappers = map[string]wrapper{
	"DevDouble":          {shape: ShapeScalar},
	"DevFloat":           {shape: ShapeScalar},
	"DevLong":            {shape: ShapeScalar, convert: math.Trunc},
	"DevShort":           {shape: ShapeScalar, convert: math.Trunc},
	"DevBoolean":         {shape: ShapeScalar, boolean: true},
	"DevString":          {shape: ShapeScalar},
	"DevVarDoubleArray":  {shape: ShapeVector},
	"DevVarFloatArray":   {shape: ShapeVector},
	"DevVarLongArray":    {shape: ShapeVector, convert: math.Trunc},
	"DevVarShortArray":   {shape: ShapeVector, convert: math.Trunc},
	"DevVarBooleanArray": {shape: ShapeVector, boolean: true},
}

// WrapperShape returns the shape declared by a type wrapper name, or
// ShapeAuto when name is not a wrapper.
func WrapperShape(name string) Shape {
	return typeWrappers[name].shape
}

func wrapperMembers() members {
	m := make(members, len(typeWrappers))
	for name, w := range typeWrappers {
		m[name] = formula.Func(name, wrapFunc(name, w))
	}
	return m
}

func wrapFunc(name string, w wrapper) func(formula.Call) (formula.Value, error) {
	conv := func(x float64) float64 {
		if w.boolean {
			if x != 0 {
				return 1
			}
			return 0
		}
		if w.convert != nil {
			return w.convert(x)
		}
		return x
	}

	return func(c formula.Call) (formula.Value, error) {
		v, ok := c.Arg(0, "value")
		if !ok {
			return formula.Value{}, fmt.Errorf("%w: %s: missing value", formula.ErrType, name)
		}
		q := v.Quality()

		if name == "DevString" {
			return formula.String(plainString(v)).WithQuality(q), nil
		}

		elems, ok := v.Floats()
		if !ok {
			return formula.Value{}, fmt.Errorf("%w: %s: %s is not numeric", formula.ErrType, name, v.Kind())
		}
		if w.shape == ShapeScalar {
			if len(elems) != 1 {
				return formula.Value{}, fmt.Errorf("%w: %s: expected a scalar, got %d elements", formula.ErrType, name, len(elems))
			}
			if w.boolean {
				return formula.Bool(elems[0] != 0).WithQuality(q), nil
			}
			return formula.Number(conv(elems[0])).WithQuality(q), nil
		}

		out := make([]float64, len(elems))
		for i, x := range elems {
			out[i] = conv(x)
		}
		return formula.Vector(out).WithQuality(q), nil
	}
}

// qualityMembers binds the quality constants and the DynamicAttribute
// constructor.
func qualityMembers() members {
	constants := members{
		"ATTR_VALID":   formula.String("ATTR_VALID"),
		"ATTR_WARNING": formula.String("ATTR_WARNING"),
		"ATTR_ALARM":   formula.String("ATTR_ALARM"),
		"ATTR_INVALID": formula.String("ATTR_INVALID"),
	}
	m := members{
		"AttrQuality": formula.ModuleValue(formula.NewModule("AttrQuality", constants)),
		"VALID":       formula.String("VALID"),
		"WARNING":     formula.String("WARNING"),
		"INVALID":     formula.String("INVALID"),
		"DynamicAttribute": formula.Func("DynamicAttribute", func(c formula.Call) (formula.Value, error) {
			v, ok := c.Arg(0, "value")
			if !ok {
				return formula.Value{}, fmt.Errorf("%w: DynamicAttribute: missing value", formula.ErrType)
			}
			qv, ok := c.Arg(1, "quality")
			if !ok || qv.IsNull() {
				return v.WithQuality(quality.Valid), nil
			}
			s, ok := qv.Str()
			if !ok {
				return formula.Value{}, fmt.Errorf("%w: DynamicAttribute: quality must be a name", formula.ErrType)
			}
			q, err := quality.Parse(s)
			if err != nil {
				return formula.Value{}, fmt.Errorf("%w: DynamicAttribute: %v", formula.ErrType, err)
			}
			return v.WithQuality(q), nil
		}),
	}
	for k, v := range constants {
		m[k] = v
	}
	return m
}
