package numeric

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/nerrad567/attribute-processor/internal/quality"
)

// FailedChi2 is the chi-square reported when a fit fails.
const FailedChi2 = 99999

// DefaultChi2Warning is the reduced chi-square at or above which a fit is
// graded Warning.
const DefaultChi2Warning = 2

// defaultGuessFWHM is the starting width when none is supplied.
const defaultGuessFWHM = 4

// Levenberg-Marquardt tuning, in line with MINPACK's lmdif defaults.
const (
	lmTolerance     = 1.49012e-8
	lmInitialLambda = 1e-3
	lmMaxLambda     = 1e12
	lmMinLambda     = 1e-12
	lmDampingFloor  = 1e-12
	lmEvalsPerParam = 200
)

// PeakGuess holds optional starting values for FitPeak. Nil fields are
// derived from the data. Offset is only fitted when a starting value is given.
type PeakGuess struct {
	Mean      *float64
	Amplitude *float64
	FWHM      *float64
	Offset    *float64
}

// FitOptions configures FitPeak.
type FitOptions struct {
	// X holds the abscissa for every sample. When nil, sample indices are used.
	X []float64

	// ROIMin and ROIMax bound the region of interest as [ROIMin, ROIMax).
	// Nil means the full sample range.
	ROIMin *int
	ROIMax *int

	Guess PeakGuess

	// Chi2Warning is the Warning threshold; nil means DefaultChi2Warning.
	Chi2Warning *float64
}

// FitResult is the outcome of FitPeak. Params holds mean, amplitude and fwhm,
// followed by the offset when it was fitted.
type FitResult struct {
	Quality quality.Quality
	Chi2    float64
	Params  []float64
}

// Values returns chi2 followed by the fitted parameters, the layout published
// by peak-fit attributes.
func (r FitResult) Values() []float64 {
	return append([]float64{r.Chi2}, r.Params...)
}

// FitPeak fits a Gaussian peak to the samples inside the region of interest.
//
// It never returns an error: any failure (too few points, non-finite data,
// a diverging minimisation, nothing to grade) yields Invalid quality with
// Chi2 set to FailedChi2.
func FitPeak(samples []float64, opts FitOptions) FitResult {
	roiMin, roiMax := 0, len(samples)
	if opts.ROIMin != nil {
		roiMin = *opts.ROIMin
	}
	if opts.ROIMax != nil {
		roiMax = *opts.ROIMax
	}
	roiMin = max(roiMin, 0)
	roiMax = min(roiMax, len(samples))
	if roiMax <= roiMin {
		return failedFit(nil)
	}

	y := samples[roiMin:roiMax]
	var x []float64
	if opts.X != nil {
		if len(opts.X) != len(samples) {
			return failedFit(nil)
		}
		x = opts.X[roiMin:roiMax]
	} else {
		x = make([]float64, len(y))
		for i := range x {
			x[i] = float64(roiMin + i)
		}
	}
	if !allFinite(x) || !allFinite(y) {
		return failedFit(nil)
	}

	params := initialGuess(x, y, opts.Guess)
	if len(y) <= len(params) {
		return failedFit(params)
	}

	fitted, ok := levenbergMarquardt(x, y, params)
	if !ok {
		return failedFit(params)
	}
	fitted[2] = math.Abs(fitted[2])

	chi2, ok := windowedChi2(x, y, fitted)
	if !ok {
		return failedFit(fitted)
	}

	threshold := float64(DefaultChi2Warning)
	if opts.Chi2Warning != nil {
		threshold = *opts.Chi2Warning
	}

	q := quality.Valid
	if chi2 >= threshold {
		q = quality.Warning
	}
	return FitResult{Quality: q, Chi2: chi2, Params: fitted}
}

func failedFit(params []float64) FitResult {
	return FitResult{
		Quality: quality.Invalid,
		Chi2:    FailedChi2,
		Params:  slices.Clone(params),
	}
}

// initialGuess fills unset starting values from the data: the maximum sample,
// the abscissa at that maximum, and a width of four samples.
func initialGuess(x, y []float64, g PeakGuess) []float64 {
	peak := floats.MaxIdx(y)

	mean := x[peak]
	if g.Mean != nil {
		mean = *g.Mean
	}
	amplitude := y[peak]
	if g.Amplitude != nil {
		amplitude = *g.Amplitude
	}
	fwhm := float64(defaultGuessFWHM)
	if g.FWHM != nil {
		fwhm = *g.FWHM
	}

	params := []float64{mean, amplitude, fwhm}
	if g.Offset != nil {
		params = append(params, *g.Offset)
	}
	return params
}

// model evaluates the peak for a parameter vector of length 3 or 4.
func model(x float64, p []float64) float64 {
	offset := 0.0
	if len(p) > 3 {
		offset = p[3]
	}
	return gaussAt(x, p[0], p[1], p[2], offset)
}

func sumSquares(x, y, p []float64) float64 {
	var s float64
	for i := range x {
		r := model(x[i], p) - y[i]
		s += r * r
	}
	return s
}

// jacobian fills the residual vector and its analytic derivatives with
// respect to mean, amplitude, fwhm and (optionally) offset.
func jacobian(x, y, p []float64, jac *mat.Dense, res *mat.VecDense) {
	mean, amplitude, fwhm := p[0], p[1], p[2]
	for i := range x {
		u := (x[i] - mean) / fwhm
		g := math.Exp2(-4 * u * u)
		k := 8 * math.Ln2 * amplitude * g * u / fwhm

		res.SetVec(i, model(x[i], p)-y[i])
		jac.Set(i, 0, k)
		jac.Set(i, 1, g)
		jac.Set(i, 2, k*u)
		if len(p) > 3 {
			jac.Set(i, 3, 1)
		}
	}
}

// levenbergMarquardt minimises the squared residuals of the peak model.
// It reports false when the data cannot be fitted at all.
func levenbergMarquardt(x, y, start []float64) ([]float64, bool) {
	m, n := len(x), len(start)
	p := slices.Clone(start)
	cost := sumSquares(x, y, p)
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return nil, false
	}

	jac := mat.NewDense(m, n, nil)
	res := mat.NewVecDense(m, nil)
	var jtj mat.Dense
	var jtr, step mat.VecDense
	lambda := lmInitialLambda
	trial := make([]float64, n)

	maxIter := lmEvalsPerParam * (n + 1)
	for iter := 0; iter < maxIter; iter++ {
		if cost == 0 {
			return p, true
		}
		jacobian(x, y, p, jac, res)
		jtj.Mul(jac.T(), jac)
		jtr.MulVec(jac.T(), res)
		jtr.ScaleVec(-1, &jtr)

		improved := false
		var newCost, used float64
		for lambda <= lmMaxLambda {
			used = lambda
			damped := mat.DenseCopyOf(&jtj)
			for j := 0; j < n; j++ {
				d := max(jtj.At(j, j), lmDampingFloor)
				damped.Set(j, j, jtj.At(j, j)+lambda*d)
			}
			if err := step.SolveVec(damped, &jtr); err != nil {
				lambda *= 10
				continue
			}
			for j := range trial {
				trial[j] = p[j] + step.AtVec(j)
			}
			newCost = sumSquares(x, y, trial)
			if !math.IsNaN(newCost) && !math.IsInf(newCost, 0) && newCost < cost {
				improved = true
				lambda = max(lambda/10, lmMinLambda)
				break
			}
			lambda *= 10
		}
		if !improved {
			// No step reduces the cost: p is a local minimum.
			return p, allFinite(p)
		}

		pNorm := floats.Norm(p, 2)
		copy(p, trial)
		// Heavily damped steps are short by construction and say nothing
		// about convergence.
		converged := used < 1 && (cost-newCost <= lmTolerance*cost ||
			floats.Norm(step.RawVector().Data, 2) <= lmTolerance*(pNorm+lmTolerance))
		cost = newCost
		if converged {
			return p, allFinite(p)
		}
	}
	return p, allFinite(p)
}

// windowedChi2 computes the reduced chi-square of the samples within one
// fwhm of the fitted mean. Samples that are not positive cannot weight the
// residual and are left out.
func windowedChi2(x, y, p []float64) (float64, bool) {
	mean, fwhm := p[0], p[2]
	var sum float64
	count := 0
	for i := range x {
		if x[i] < mean-fwhm || x[i] >= mean+fwhm || y[i] <= 0 {
			continue
		}
		r := model(x[i], p) - y[i]
		sum += r * r / y[i]
		count++
	}

	dof := count - len(p)
	if dof <= 0 {
		return 0, false
	}
	chi2 := sum / float64(dof)
	if math.IsNaN(chi2) || math.IsInf(chi2, 0) {
		return 0, false
	}
	return chi2, true
}

func allFinite(v []float64) bool {
	for _, f := range v {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
