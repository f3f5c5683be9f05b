package symbols

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/nerrad567/attribute-processor/internal/formula"
	"github.com/nerrad567/attribute-processor/internal/numeric"
)

// stockProviders are the extra modules shipped with the device.
func stockProviders() []Provider {
	return []Provider{
		{Name: "stats", Members: statsMembers},
		{Name: "filters", Members: filterMembers},
		{Name: "units", Members: unitMembers},
	}
}

func statsMembers() members {
	return members{
		"mean":     reduce("mean", func(v []float64) float64 { return stat.Mean(v, nil) }),
		"median":   reduce("median", numeric.Median),
		"stdev":    reduce("stdev", func(v []float64) float64 { return stat.StdDev(v, nil) }),
		"pstdev":   reduce("pstdev", func(v []float64) float64 { return stat.PopStdDev(v, nil) }),
		"variance": reduce("variance", func(v []float64) float64 { return stat.Variance(v, nil) }),
		"span":     reduce("span", func(v []float64) float64 { return floats.Max(v) - floats.Min(v) }),
		"quantile": formula.Func("quantile", func(c formula.Call) (formula.Value, error) {
			v, err := c.Floats(0, "data")
			if err != nil {
				return formula.Value{}, err
			}
			p, err := c.Number(1, "p")
			if err != nil {
				return formula.Value{}, err
			}
			if len(v) == 0 || p < 0 || p > 1 {
				return formula.Value{}, fmt.Errorf("%w: quantile: need data and 0 <= p <= 1", numeric.ErrInvalidArgument)
			}
			sorted := slices.Clone(v)
			slices.Sort(sorted)
			return formula.Number(stat.Quantile(p, stat.LinInterp, sorted, nil)), nil
		}),
		"correlation": formula.Func("correlation", func(c formula.Call) (formula.Value, error) {
			x, err := c.Floats(0, "x")
			if err != nil {
				return formula.Value{}, err
			}
			y, err := c.Floats(1, "y")
			if err != nil {
				return formula.Value{}, err
			}
			if len(x) != len(y) || len(x) < 2 {
				return formula.Value{}, fmt.Errorf("%w: correlation: need two equal sequences", numeric.ErrInvalidArgument)
			}
			return formula.Number(stat.Correlation(x, y, nil)), nil
		}),
	}
}

func filterMembers() members {
	return members{
		"moving_average": formula.Func("moving_average", func(c formula.Call) (formula.Value, error) {
			v, err := c.Floats(0, "a")
			if err != nil {
				return formula.Value{}, err
			}
			width, err := c.OptionalNumber(1, "width", 3)
			if err != nil {
				return formula.Value{}, err
			}
			out, err := numeric.MovingAverage(v, int(width))
			if err != nil {
				return formula.Value{}, err
			}
			return formula.Vector(out), nil
		}),
		"detrend": formula.Func("detrend", func(c formula.Call) (formula.Value, error) {
			v, err := c.Floats(0, "a")
			if err != nil {
				return formula.Value{}, err
			}
			return formula.Vector(numeric.Detrend(v)), nil
		}),
		"normalize": formula.Func("normalize", func(c formula.Call) (formula.Value, error) {
			v, err := c.Floats(0, "a")
			if err != nil {
				return formula.Value{}, err
			}
			if len(v) == 0 {
				return formula.Vector(nil), nil
			}
			peak := math.Max(math.Abs(floats.Max(v)), math.Abs(floats.Min(v)))
			if peak == 0 {
				return formula.Value{}, fmt.Errorf("%w: normalize: all-zero input", formula.ErrDivisionByZero)
			}
			out := slices.Clone(v)
			floats.Scale(1/peak, out)
			return formula.Vector(out), nil
		}),
	}
}

// unitMembers are conversion helpers; their names follow the x2y pattern.
func unitMembers() members {
	return members{
		"c2k":     elementwise("c2k", func(x float64) float64 { return x + 273.15 }),
		"k2c":     elementwise("k2c", func(x float64) float64 { return x - 273.15 }),
		"c2f":     elementwise("c2f", func(x float64) float64 { return x*9/5 + 32 }),
		"f2c":     elementwise("f2c", func(x float64) float64 { return (x - 32) * 5 / 9 }),
		"mbar2pa": elementwise("mbar2pa", func(x float64) float64 { return x * 100 }),
		"pa2mbar": elementwise("pa2mbar", func(x float64) float64 { return x / 100 }),
		"db2lin":  elementwise("db2lin", func(x float64) float64 { return math.Pow(10, x/10) }),
		"lin2db":  elementwise("lin2db", func(x float64) float64 { return 10 * math.Log10(x) }),
	}
}
