package numeric

import "math"

// GaussianPeak evaluates a Gaussian described by its mean, height and full
// width at half maximum, plus an ordinate offset:
//
//	offset + amplitude * 2^(-4*((x-mean)/fwhm)^2)
func GaussianPeak(x []float64, mean, amplitude, fwhm, offset float64) []float64 {
	out := make([]float64, len(x))
	for i, xi := range x {
		out[i] = gaussAt(xi, mean, amplitude, fwhm, offset)
	}
	return out
}

func gaussAt(x, mean, amplitude, fwhm, offset float64) float64 {
	u := (x - mean) / fwhm
	return offset + amplitude*math.Exp2(-4*u*u)
}
