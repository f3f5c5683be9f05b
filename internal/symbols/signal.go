package symbols

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/nerrad567/attribute-processor/internal/formula"
	"github.com/nerrad567/attribute-processor/internal/numeric"
	"github.com/nerrad567/attribute-processor/internal/quality"
)

// signalMembers are the numeric helpers bound at top level and in np.
func signalMembers() members {
	return members{
		"FFT":         formula.Func("FFT", fft),
		"GaussPeak":   formula.Func("GaussPeak", gaussPeak),
		"PEAKFIT":     formula.Func("PEAKFIT", peakFit),
		"arange":      formula.Func("arange", arange),
		"linspace":    formula.Func("linspace", linspace),
		"array":       formula.Func("array", array),
		"asarray":     formula.Func("asarray", array),
		"zeros":       formula.Func("zeros", filled(0)),
		"ones":        formula.Func("ones", filled(1)),
		"concatenate": formula.Func("concatenate", concatenate),
		"argmax":      reduce("argmax", func(v []float64) float64 { return float64(floats.MaxIdx(v)) }),
		"argmin":      reduce("argmin", func(v []float64) float64 { return float64(floats.MinIdx(v)) }),
		"mean":        reduce("mean", func(v []float64) float64 { return stat.Mean(v, nil) }),
		"average":     reduce("average", func(v []float64) float64 { return stat.Mean(v, nil) }),
		"std":         reduce("std", func(v []float64) float64 { return stat.PopStdDev(v, nil) }),
		"var":         reduce("var", func(v []float64) float64 { return stat.PopVariance(v, nil) }),
		"median":      reduce("median", numeric.Median),
		"sum":         reduce("sum", floats.Sum),
		"any":         truth("any", false),
		"all":         truth("all", true),
		"prod":        reduce("prod", floats.Prod),
		"max":         extreme("max", floats.Max, math.Max),
		"min":         extreme("min", floats.Min, math.Min),
		"abs":         elementwise("abs", math.Abs),
		"round":       formula.Func("round", round),
		"len":         formula.Func("len", length),
		"diff":        formula.Func("diff", diff),
		"cumsum":      formula.Func("cumsum", cumsum),
		"clip":        formula.Func("clip", clip),
		"arctan2":     formula.Func("arctan2", arctan2),
		"power":       formula.Func("power", power),
	}
}

// npMembers is the np namespace: the signal helpers plus the math library.
func npMembers() members {
	m := mathMembers()
	for k, v := range signalMembers() {
		m[k] = v
	}
	delete(m, "FFT")
	delete(m, "GaussPeak")
	delete(m, "PEAKFIT")
	return m
}

func fft(c formula.Call) (formula.Value, error) {
	samples, err := c.Floats(0, "a")
	if err != nil {
		return formula.Value{}, err
	}
	wantPower, err := optionalBool(c, 1, "power", true)
	if err != nil {
		return formula.Value{}, err
	}
	wantPhase, err := optionalBool(c, 2, "phase", true)
	if err != nil {
		return formula.Value{}, err
	}
	n, err := c.OptionalNumber(3, "n", 0)
	if err != nil {
		return formula.Value{}, err
	}
	out, err := numeric.SpectralTransform(samples, wantPower, wantPhase, int(n))
	if err != nil {
		return formula.Value{}, err
	}
	return formula.Vector(out), nil
}

func gaussPeak(c formula.Call) (formula.Value, error) {
	arg, ok := c.Arg(0, "x")
	if !ok {
		return formula.Value{}, fmt.Errorf("%w: GaussPeak: missing x", formula.ErrType)
	}
	x, err := c.Floats(0, "x")
	if err != nil {
		return formula.Value{}, err
	}
	mean, err := c.Number(1, "mean")
	if err != nil {
		return formula.Value{}, err
	}
	ymax, err := c.Number(2, "ymax")
	if err != nil {
		return formula.Value{}, err
	}
	fwhm, err := c.Number(3, "fwhm")
	if err != nil {
		return formula.Value{}, err
	}
	offset, err := c.OptionalNumber(4, "yoffset", 0)
	if err != nil {
		return formula.Value{}, err
	}

	y := numeric.GaussianPeak(x, mean, ymax, fwhm, offset)
	if _, scalar := arg.Float(); scalar {
		return formula.Number(y[0]), nil
	}
	return formula.Vector(y), nil
}

// peakFit returns [chi2, mean, ymax, fwhm(, yoffset)] annotated with the
// fit quality.
func peakFit(c formula.Call) (formula.Value, error) {
	return peakFitWith(numeric.DefaultChi2Warning)(c)
}

// peakFitWith returns a PEAKFIT whose Chi2Warning defaults to threshold.
func peakFitWith(threshold float64) func(formula.Call) (formula.Value, error) {
	return func(c formula.Call) (formula.Value, error) {
		return fitCall(c, threshold)
	}
}

func fitCall(c formula.Call, threshold float64) (formula.Value, error) {
	samples, err := c.Floats(0, "yexp")
	if err != nil {
		return formula.Value{}, err
	}

	var opts numeric.FitOptions
	if v, ok := c.Arg(1, "x"); ok && !v.IsNull() {
		if opts.X, err = c.Floats(1, "x"); err != nil {
			return formula.Value{}, err
		}
	}
	if opts.ROIMin, err = optionalInt(c, 2, "roimin"); err != nil {
		return formula.Value{}, err
	}
	if opts.ROIMax, err = optionalInt(c, 3, "roimax"); err != nil {
		return formula.Value{}, err
	}
	warn, err := c.OptionalNumber(-1, "Chi2Warning", threshold)
	if err != nil {
		return formula.Value{}, err
	}
	opts.Chi2Warning = &warn
	guesses := []struct {
		name string
		dst  **float64
	}{
		{"mean", &opts.Guess.Mean},
		{"ymax", &opts.Guess.Amplitude},
		{"fwhm", &opts.Guess.FWHM},
		{"yoffset", &opts.Guess.Offset},
	}
	for _, g := range guesses {
		if *g.dst, err = optionalFloat(c, g.name); err != nil {
			return formula.Value{}, err
		}
	}

	res := numeric.FitPeak(samples, opts)
	return formula.Vector(res.Values()).WithQuality(res.Quality), nil
}

func optionalBool(c formula.Call, i int, name string, def bool) (bool, error) {
	v, ok := c.Arg(i, name)
	if !ok || v.IsNull() {
		return def, nil
	}
	return v.Truthy()
}

func optionalInt(c formula.Call, i int, name string) (*int, error) {
	v, ok := c.Arg(i, name)
	if !ok || v.IsNull() {
		return nil, nil
	}
	f, err := c.Number(i, name)
	if err != nil {
		return nil, err
	}
	n := int(f)
	return &n, nil
}

func optionalFloat(c formula.Call, name string) (*float64, error) {
	v, ok := c.Kwargs[name]
	if !ok || v.IsNull() {
		return nil, nil
	}
	f, ok := v.Float()
	if !ok {
		return nil, fmt.Errorf("%w: %s: %s must be a number", formula.ErrType, c.Name, name)
	}
	return &f, nil
}

func arange(c formula.Call) (formula.Value, error) {
	var start, stop, step float64 = 0, 0, 1
	var err error
	switch len(c.Args) {
	case 0:
		return formula.Value{}, fmt.Errorf("%w: arange: missing stop", formula.ErrType)
	case 1:
		stop, err = c.Number(0, "")
	default:
		if start, err = c.Number(0, ""); err == nil {
			stop, err = c.Number(1, "")
		}
		if err == nil {
			step, err = c.OptionalNumber(2, "step", 1)
		}
	}
	if err != nil {
		return formula.Value{}, err
	}
	out, err := numeric.Arange(start, stop, step)
	if err != nil {
		return formula.Value{}, err
	}
	return formula.Vector(out), nil
}

func linspace(c formula.Call) (formula.Value, error) {
	start, err := c.Number(0, "start")
	if err != nil {
		return formula.Value{}, err
	}
	stop, err := c.Number(1, "stop")
	if err != nil {
		return formula.Value{}, err
	}
	num, err := c.OptionalNumber(2, "num", 50)
	if err != nil {
		return formula.Value{}, err
	}
	if num < 0 || num > 1<<22 {
		return formula.Value{}, fmt.Errorf("%w: linspace: bad count %g", numeric.ErrInvalidArgument, num)
	}
	n := int(num)
	if n == 0 {
		return formula.Vector(nil), nil
	}
	out := make([]float64, n)
	if n == 1 {
		out[0] = start
		return formula.Vector(out), nil
	}
	return formula.Vector(floats.Span(out, start, stop)), nil
}

func array(c formula.Call) (formula.Value, error) {
	arg, _ := c.Arg(0, "x")
	v, err := c.Floats(0, "x")
	if err != nil {
		return formula.Value{}, err
	}
	return formula.Vector(slices.Clone(v)).WithQuality(arg.Quality()), nil
}

func filled(x float64) func(formula.Call) (formula.Value, error) {
	return func(c formula.Call) (formula.Value, error) {
		n, err := c.Number(0, "n")
		if err != nil {
			return formula.Value{}, err
		}
		if n < 0 || n > 1<<22 {
			return formula.Value{}, fmt.Errorf("%w: %s: bad length %g", numeric.ErrInvalidArgument, c.Name, n)
		}
		out := make([]float64, int(n))
		for i := range out {
			out[i] = x
		}
		return formula.Vector(out), nil
	}
}

// concatenate joins vectors given either as separate arguments or as one
// list of vectors.
func concatenate(c formula.Call) (formula.Value, error) {
	parts := c.Args
	if len(parts) == 1 {
		if items, ok := parts[0].Items(); ok {
			parts = items
		}
	}
	var out []float64
	q := quality.Unset
	for i, p := range parts {
		v, ok := p.Floats()
		if !ok {
			return formula.Value{}, fmt.Errorf("%w: concatenate: part %d is %s", formula.ErrType, i+1, p.Kind())
		}
		out = append(out, v...)
		if p.Quality() != quality.Unset {
			q = quality.Worst(q, p.Quality())
		}
	}
	return formula.Vector(out).WithQuality(q), nil
}

// reduce builds a vector-to-scalar function. Empty input is an error.
func reduce(name string, f func([]float64) float64) formula.Value {
	return formula.Func(name, func(c formula.Call) (formula.Value, error) {
		arg, _ := c.Arg(0, "a")
		v, err := c.Floats(0, "a")
		if err != nil {
			return formula.Value{}, err
		}
		if len(v) == 0 {
			return formula.Value{}, fmt.Errorf("%w: %s of empty sequence", numeric.ErrInvalidArgument, name)
		}
		return formula.Number(f(v)).WithQuality(arg.Quality()), nil
	})
}

// truth reduces a sequence to one boolean: any element non-zero when all is
// false, every element non-zero when all is true. Empty sequences give all.
func truth(name string, all bool) formula.Value {
	return formula.Func(name, func(c formula.Call) (formula.Value, error) {
		arg, _ := c.Arg(0, "a")
		v, err := c.Floats(0, "a")
		if err != nil {
			return formula.Value{}, err
		}
		for _, x := range v {
			if (x != 0) != all {
				return formula.Bool(!all).WithQuality(arg.Quality()), nil
			}
		}
		return formula.Bool(all).WithQuality(arg.Quality()), nil
	})
}

// extreme accepts either one sequence or several scalars.
func extreme(name string, vec func([]float64) float64, pair func(x, y float64) float64) formula.Value {
	r := reduce(name, vec)
	rf, _ := r.Function()
	return formula.Func(name, func(c formula.Call) (formula.Value, error) {
		if len(c.Args) < 2 {
			return rf.Fn(c)
		}
		acc, err := c.Number(0, "")
		if err != nil {
			return formula.Value{}, err
		}
		for i := 1; i < len(c.Args); i++ {
			x, err := c.Number(i, "")
			if err != nil {
				return formula.Value{}, err
			}
			acc = pair(acc, x)
		}
		return formula.Number(acc), nil
	})
}

func round(c formula.Call) (formula.Value, error) {
	digits, err := c.OptionalNumber(1, "ndigits", 0)
	if err != nil {
		return formula.Value{}, err
	}
	scale := math.Pow(10, math.Trunc(digits))
	r := elementwise("round", func(x float64) float64 { return math.RoundToEven(x*scale) / scale })
	fn, _ := r.Function()
	return fn.Fn(formula.Call{Ctx: c.Ctx, Name: c.Name, Args: c.Args[:min(len(c.Args), 1)], Kwargs: c.Kwargs})
}

func length(c formula.Call) (formula.Value, error) {
	v, ok := c.Arg(0, "x")
	n, hasLen := v.Len()
	if !ok || !hasLen {
		return formula.Value{}, fmt.Errorf("%w: len: %s has no length", formula.ErrType, v.Kind())
	}
	return formula.Number(float64(n)), nil
}

func diff(c formula.Call) (formula.Value, error) {
	v, err := c.Floats(0, "a")
	if err != nil {
		return formula.Value{}, err
	}
	if len(v) < 2 {
		return formula.Vector(nil), nil
	}
	out := make([]float64, len(v)-1)
	for i := range out {
		out[i] = v[i+1] - v[i]
	}
	return formula.Vector(out), nil
}

func cumsum(c formula.Call) (formula.Value, error) {
	v, err := c.Floats(0, "a")
	if err != nil {
		return formula.Value{}, err
	}
	return formula.Vector(floats.CumSum(make([]float64, len(v)), v)), nil
}

func clip(c formula.Call) (formula.Value, error) {
	lo, err := c.Number(1, "a_min")
	if err != nil {
		return formula.Value{}, err
	}
	hi, err := c.Number(2, "a_max")
	if err != nil {
		return formula.Value{}, err
	}
	r := elementwise("clip", func(x float64) float64 { return math.Min(math.Max(x, lo), hi) })
	fn, _ := r.Function()
	return fn.Fn(formula.Call{Ctx: c.Ctx, Name: c.Name, Args: c.Args[:min(len(c.Args), 1)], Kwargs: c.Kwargs})
}

// arctan2 is the element-wise atan2 of two equal-length sequences.
func arctan2(c formula.Call) (formula.Value, error) {
	return pairwise(c, math.Atan2)
}

func power(c formula.Call) (formula.Value, error) {
	return pairwise(c, math.Pow)
}

func pairwise(c formula.Call, f func(x, y float64) float64) (formula.Value, error) {
	a, _ := c.Arg(0, "")
	b, _ := c.Arg(1, "")
	if x, ok := a.Float(); ok {
		if y, ok := b.Float(); ok {
			return formula.Number(f(x, y)), nil
		}
	}
	av, err := c.Floats(0, "")
	if err != nil {
		return formula.Value{}, err
	}
	bv, err := c.Floats(1, "")
	if err != nil {
		return formula.Value{}, err
	}
	switch {
	case len(av) == 1:
		av = slices.Repeat(av, len(bv))
	case len(bv) == 1:
		bv = slices.Repeat(bv, len(av))
	case len(av) != len(bv):
		return formula.Value{}, fmt.Errorf("%w: %s: length mismatch %d and %d", formula.ErrType, c.Name, len(av), len(bv))
	}
	out := make([]float64, len(av))
	for i := range out {
		out[i] = f(av[i], bv[i])
	}
	return formula.Vector(out), nil
}
