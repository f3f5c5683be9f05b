package symbols

import (
	"fmt"
	"math"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/attribute-processor/internal/formula"
)

type members = map[string]formula.Value

// elementwise lifts f to numbers and vectors, keeping the argument's quality.
func elementwise(name string, f func(float64) float64) formula.Value {
	return formula.Func(name, func(c formula.Call) (formula.Value, error) {
		arg, ok := c.Arg(0, "x")
		if !ok {
			return formula.Value{}, fmt.Errorf("%w: %s: missing argument", formula.ErrType, name)
		}
		if x, ok := arg.Float(); ok {
			return formula.Number(f(x)).WithQuality(arg.Quality()), nil
		}
		v, err := c.Floats(0, "x")
		if err != nil {
			return formula.Value{}, err
		}
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = f(x)
		}
		return formula.Vector(out).WithQuality(arg.Quality()), nil
	})
}

// binaryMath lifts a two-argument scalar function.
func binaryMath(name string, f func(x, y float64) float64) formula.Value {
	return formula.Func(name, func(c formula.Call) (formula.Value, error) {
		x, err := c.Number(0, "x")
		if err != nil {
			return formula.Value{}, err
		}
		y, err := c.Number(1, "y")
		if err != nil {
			return formula.Value{}, err
		}
		return formula.Number(f(x, y)), nil
	})
}

func boolFunc(name string, f func(float64) bool) formula.Value {
	return formula.Func(name, func(c formula.Call) (formula.Value, error) {
		x, err := c.Number(0, "x")
		if err != nil {
			return formula.Value{}, err
		}
		return formula.Bool(f(x)), nil
	})
}

// mathMembers mirrors the public names of a conventional math library.
func mathMembers() members {
	return members{
		"pi":      formula.Number(math.Pi),
		"e":       formula.Number(math.E),
		"tau":     formula.Number(2 * math.Pi),
		"inf":     formula.Number(math.Inf(1)),
		"nan":     formula.Number(math.NaN()),
		"sqrt":    elementwise("sqrt", math.Sqrt),
		"exp":     elementwise("exp", math.Exp),
		"log":     elementwise("log", math.Log),
		"log10":   elementwise("log10", math.Log10),
		"log2":    elementwise("log2", math.Log2),
		"sin":     elementwise("sin", math.Sin),
		"cos":     elementwise("cos", math.Cos),
		"tan":     elementwise("tan", math.Tan),
		"asin":    elementwise("asin", math.Asin),
		"acos":    elementwise("acos", math.Acos),
		"atan":    elementwise("atan", math.Atan),
		"sinh":    elementwise("sinh", math.Sinh),
		"cosh":    elementwise("cosh", math.Cosh),
		"tanh":    elementwise("tanh", math.Tanh),
		"floor":   elementwise("floor", math.Floor),
		"ceil":    elementwise("ceil", math.Ceil),
		"trunc":   elementwise("trunc", math.Trunc),
		"fabs":    elementwise("fabs", math.Abs),
		"degrees": elementwise("degrees", func(x float64) float64 { return x * 180 / math.Pi }),
		"radians": elementwise("radians", func(x float64) float64 { return x * math.Pi / 180 }),
		"atan2":   binaryMath("atan2", math.Atan2),
		"pow":     binaryMath("pow", math.Pow),
		"hypot":   binaryMath("hypot", math.Hypot),
		"fmod":    binaryMath("fmod", math.Mod),
		"isnan":   boolFunc("isnan", math.IsNaN),
		"isinf":   boolFunc("isinf", func(x float64) bool { return math.IsInf(x, 0) }),
	}
}

func randomMembers() members {
	return members{
		"random": formula.Func("random", func(formula.Call) (formula.Value, error) {
			return formula.Number(rand.Float64()), nil
		}),
		"uniform": formula.Func("uniform", func(c formula.Call) (formula.Value, error) {
			lo, err := c.Number(0, "a")
			if err != nil {
				return formula.Value{}, err
			}
			hi, err := c.Number(1, "b")
			if err != nil {
				return formula.Value{}, err
			}
			return formula.Number(lo + (hi-lo)*rand.Float64()), nil
		}),
		"gauss": formula.Func("gauss", func(c formula.Call) (formula.Value, error) {
			mu, err := c.OptionalNumber(0, "mu", 0)
			if err != nil {
				return formula.Value{}, err
			}
			sigma, err := c.OptionalNumber(1, "sigma", 1)
			if err != nil {
				return formula.Value{}, err
			}
			return formula.Number(mu + sigma*rand.NormFloat64()), nil
		}),
		"randint": formula.Func("randint", func(c formula.Call) (formula.Value, error) {
			lo, err := c.Number(0, "a")
			if err != nil {
				return formula.Value{}, err
			}
			hi, err := c.Number(1, "b")
			if err != nil {
				return formula.Value{}, err
			}
			if hi < lo {
				return formula.Value{}, fmt.Errorf("%w: randint: empty range", formula.ErrType)
			}
			return formula.Number(float64(int64(lo) + rand.Int64N(int64(hi)-int64(lo)+1))), nil
		}),
		"choice": formula.Func("choice", func(c formula.Call) (formula.Value, error) {
			seq, ok := c.Arg(0, "seq")
			n, hasLen := seq.Len()
			if !ok || !hasLen || n == 0 {
				return formula.Value{}, fmt.Errorf("%w: choice: need a non-empty sequence", formula.ErrType)
			}
			return pick(seq, rand.IntN(n)), nil
		}),
	}
}

// pick returns element i of a vector, list or string.
func pick(seq formula.Value, i int) formula.Value {
	if v, ok := seq.Items(); ok {
		return v[i]
	}
	if s, ok := seq.Str(); ok {
		return formula.String(s[i : i+1])
	}
	v, _ := seq.Floats()
	return formula.Number(v[i])
}

func timeMembers() members {
	return members{
		"time": formula.Func("time", func(formula.Call) (formula.Value, error) {
			return formula.Number(float64(time.Now().UnixNano()) / 1e9), nil
		}),
		"ctime": formula.Func("ctime", func(c formula.Call) (formula.Value, error) {
			t := time.Now()
			if v, ok := c.Arg(0, "seconds"); ok && !v.IsNull() {
				secs, err := c.Number(0, "seconds")
				if err != nil {
					return formula.Value{}, err
				}
				t = time.Unix(0, int64(secs*1e9))
			}
			return formula.String(t.Format(time.ANSIC)), nil
		}),
	}
}

// regexMembers provides match (anchored at the start), search and findall.
func regexMembers() members {
	compile := func(c formula.Call) (*regexp.Regexp, string, error) {
		pattern, err := c.Str(0, "pattern")
		if err != nil {
			return nil, "", err
		}
		s, err := c.Str(1, "string")
		if err != nil {
			return nil, "", err
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %s: %v", formula.ErrType, c.Name, err)
		}
		return re, s, nil
	}
	return members{
		"match": formula.Func("match", func(c formula.Call) (formula.Value, error) {
			re, s, err := compile(c)
			if err != nil {
				return formula.Value{}, err
			}
			loc := re.FindStringIndex(s)
			return formula.Bool(loc != nil && loc[0] == 0), nil
		}),
		"search": formula.Func("search", func(c formula.Call) (formula.Value, error) {
			re, s, err := compile(c)
			if err != nil {
				return formula.Value{}, err
			}
			return formula.Bool(re.MatchString(s)), nil
		}),
		"findall": formula.Func("findall", func(c formula.Call) (formula.Value, error) {
			re, s, err := compile(c)
			if err != nil {
				return formula.Value{}, err
			}
			found := re.FindAllString(s, -1)
			items := make([]formula.Value, len(found))
			for i, f := range found {
				items[i] = formula.String(f)
			}
			return formula.List(items), nil
		}),
	}
}

// conversionMembers are the usual scalar conversions.
func conversionMembers() members {
	return members{
		"float": formula.Func("float", func(c formula.Call) (formula.Value, error) {
			return toFloat(c)
		}),
		"int": formula.Func("int", func(c formula.Call) (formula.Value, error) {
			v, err := toFloat(c)
			if err != nil {
				return formula.Value{}, err
			}
			f, _ := v.Float()
			return formula.Number(math.Trunc(f)), nil
		}),
		"bool": formula.Func("bool", func(c formula.Call) (formula.Value, error) {
			v, _ := c.Arg(0, "x")
			truth, err := v.Truthy()
			if err != nil {
				return formula.Value{}, err
			}
			return formula.Bool(truth), nil
		}),
		"str": formula.Func("str", func(c formula.Call) (formula.Value, error) {
			v, _ := c.Arg(0, "x")
			return formula.String(plainString(v)), nil
		}),
	}
}

func toFloat(c formula.Call) (formula.Value, error) {
	v, ok := c.Arg(0, "x")
	if !ok {
		return formula.Number(0), nil
	}
	if s, ok := v.Str(); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return formula.Value{}, fmt.Errorf("%w: %s: cannot convert %q", formula.ErrType, c.Name, s)
		}
		return formula.Number(f), nil
	}
	f, err := c.Number(0, "x")
	if err != nil {
		return formula.Value{}, err
	}
	return formula.Number(f).WithQuality(v.Quality()), nil
}

// plainString formats v without quoting strings.
func plainString(v formula.Value) string {
	if s, ok := v.Str(); ok {
		return s
	}
	return v.String()
}
