package numeric

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// maxArangeLen bounds Arange so a typo in a formula cannot exhaust memory.
const maxArangeLen = 1 << 22

// Arange returns the values start, start+step, ... below stop.
func Arange(start, stop, step float64) ([]float64, error) {
	if step == 0 || math.IsNaN(step) {
		return nil, fmt.Errorf("%w: arange step must be non-zero", ErrInvalidArgument)
	}
	n := math.Ceil((stop - start) / step)
	if n <= 0 || math.IsNaN(n) {
		return []float64{}, nil
	}
	if n > maxArangeLen {
		return nil, fmt.Errorf("%w: arange of %g elements exceeds %d", ErrInvalidArgument, n, maxArangeLen)
	}
	out := make([]float64, int(n))
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out, nil
}

// Median returns the median of v, or NaN for an empty slice.
func Median(v []float64) float64 {
	if len(v) == 0 {
		return math.NaN()
	}
	sorted := slices.Clone(v)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// MovingAverage smooths v with a centred window of the given width.
// Windows are truncated at the edges.
func MovingAverage(v []float64, width int) ([]float64, error) {
	if width < 1 {
		return nil, fmt.Errorf("%w: window width must be positive", ErrInvalidArgument)
	}
	half := width / 2
	out := make([]float64, len(v))
	for i := range v {
		lo := max(i-half, 0)
		hi := min(i+half+1, len(v))
		out[i] = stat.Mean(v[lo:hi], nil)
	}
	return out, nil
}

// Detrend removes the least-squares straight line from v.
func Detrend(v []float64) []float64 {
	if len(v) < 2 {
		return make([]float64, len(v))
	}
	x := make([]float64, len(v))
	for i := range x {
		x[i] = float64(i)
	}
	alpha, beta := stat.LinearRegression(x, v, nil, false)
	out := make([]float64, len(v))
	for i := range v {
		out[i] = v[i] - (alpha + beta*x[i])
	}
	return out
}
