package symbols

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/nerrad567/attribute-processor/internal/formula"
)

// functionalMembers is the functional helper module. Its conversion
// helpers (see isConversionHelper) are also bound at top level.
func functionalMembers() members {
	return members{
		"str2float": formula.Func("str2float", func(c formula.Call) (formula.Value, error) {
			return toFloat(c)
		}),
		"str2int": formula.Func("str2int", func(c formula.Call) (formula.Value, error) {
			s, err := c.Str(0, "s")
			if err != nil {
				return formula.Value{}, err
			}
			n, err := strconv.ParseInt(strings.TrimSpace(s), 0, 64)
			if err != nil {
				return formula.Value{}, fmt.Errorf("%w: str2int: cannot convert %q", formula.ErrType, s)
			}
			return formula.Number(float64(n)), nil
		}),
		"str2bool": formula.Func("str2bool", func(c formula.Call) (formula.Value, error) {
			s, err := c.Str(0, "s")
			if err != nil {
				return formula.Value{}, err
			}
			switch strings.ToLower(strings.TrimSpace(s)) {
			case "", "0", "false", "no", "none", "off", "n":
				return formula.Bool(false), nil
			}
			return formula.Bool(true), nil
		}),
		"str2list": formula.Func("str2list", func(c formula.Call) (formula.Value, error) {
			s, err := c.Str(0, "s")
			if err != nil {
				return formula.Value{}, err
			}
			sep := ","
			if v, ok := c.Arg(1, "separator"); ok {
				if sep, ok = v.Str(); !ok {
					return formula.Value{}, fmt.Errorf("%w: str2list: separator must be a string", formula.ErrType)
				}
			}
			var items []formula.Value
			for _, part := range strings.Split(s, sep) {
				if part = strings.TrimSpace(part); part != "" {
					items = append(items, formula.String(part))
				}
			}
			return formula.List(items), nil
		}),
		"int2str": formula.Func("int2str", func(c formula.Call) (formula.Value, error) {
			n, err := c.Number(0, "n")
			if err != nil {
				return formula.Value{}, err
			}
			return formula.String(strconv.FormatInt(int64(n), 10)), nil
		}),
		"float2str": formula.Func("float2str", func(c formula.Call) (formula.Value, error) {
			f, err := c.Number(0, "f")
			if err != nil {
				return formula.Value{}, err
			}
			return formula.String(strconv.FormatFloat(f, 'g', -1, 64)), nil
		}),
		"toList": formula.Func("toList", func(c formula.Call) (formula.Value, error) {
			v, _ := c.Arg(0, "x")
			switch v.Kind() {
			case formula.KindVector, formula.KindList:
				return v, nil
			case formula.KindNull:
				return formula.List(nil), nil
			}
			return formula.List([]formula.Value{v}), nil
		}),
		"toString": formula.Func("toString", func(c formula.Call) (formula.Value, error) {
			v, _ := c.Arg(0, "x")
			return formula.String(plainString(v)), nil
		}),
		"isNumber": kindTest("isNumber", formula.KindNumber),
		"isString": kindTest("isString", formula.KindString),
		"isSequence": formula.Func("isSequence", func(c formula.Call) (formula.Value, error) {
			v, _ := c.Arg(0, "x")
			return formula.Bool(v.Kind() == formula.KindVector || v.Kind() == formula.KindList), nil
		}),
		"notNone": formula.Func("notNone", func(c formula.Call) (formula.Value, error) {
			v, _ := c.Arg(0, "x")
			if v.IsNull() {
				def, _ := c.Arg(1, "default")
				return def, nil
			}
			return v, nil
		}),
		"first": formula.Func("first", func(c formula.Call) (formula.Value, error) {
			return edge(c, false)
		}),
		"last": formula.Func("last", func(c formula.Call) (formula.Value, error) {
			return edge(c, true)
		}),
		"avg": reduce("avg", func(v []float64) float64 { return stat.Mean(v, nil) }),
		"rms": reduce("rms", func(v []float64) float64 { return floats.Norm(v, 2) / math.Sqrt(float64(len(v))) }),
		"matchCl": classMatch("matchCl", true),
		"searchCl": classMatch("searchCl", false),
	}
}

// isConversionHelper selects the functional helpers that are also bound at
// top level: names containing "2" or starting with "to".
func isConversionHelper(name string) bool {
	return strings.Contains(name, "2") || strings.HasPrefix(name, "to")
}

func kindTest(name string, kind formula.Kind) formula.Value {
	return formula.Func(name, func(c formula.Call) (formula.Value, error) {
		v, _ := c.Arg(0, "x")
		return formula.Bool(v.Kind() == kind), nil
	})
}

func edge(c formula.Call, fromEnd bool) (formula.Value, error) {
	seq, ok := c.Arg(0, "seq")
	n, hasLen := seq.Len()
	if !ok || !hasLen {
		return formula.Value{}, fmt.Errorf("%w: %s: need a sequence", formula.ErrType, c.Name)
	}
	if n == 0 {
		def, _ := c.Arg(1, "default")
		return def, nil
	}
	if fromEnd {
		return pick(seq, n-1), nil
	}
	return pick(seq, 0), nil
}

// classMatch is a case-insensitive regular expression test. Anchored
// variants must match from the start of the string.
func classMatch(name string, anchored bool) formula.Value {
	return formula.Func(name, func(c formula.Call) (formula.Value, error) {
		pattern, err := c.Str(0, "pattern")
		if err != nil {
			return formula.Value{}, err
		}
		s, err := c.Str(1, "string")
		if err != nil {
			return formula.Value{}, err
		}
		if anchored {
			pattern = "^(?:" + pattern + ")"
		}
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return formula.Value{}, fmt.Errorf("%w: %s: %v", formula.ErrType, name, err)
		}
		return formula.Bool(re.MatchString(s)), nil
	})
}
