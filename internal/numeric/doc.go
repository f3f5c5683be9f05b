// Package numeric provides the signal-processing helpers available to
// dynamic attribute formulas.
//
// All functions are pure: they never keep state between calls and are
// safe for concurrent use.
//
// # Spectral transform
//
// SpectralTransform returns the first half of the discrete Fourier
// transform of a real-valued signal as magnitudes, phases, or both
// concatenated:
//
//	spectrum, err := numeric.SpectralTransform(samples, true, true, 0)
//	// spectrum[:n/2] = magnitudes, spectrum[n/2:] = phases
//
// # Peak fitting
//
// FitPeak fits a Gaussian to the samples inside a region of interest and
// grades the fit with a windowed reduced chi-square. A failed fit is
// reported as data (Invalid quality and FailedChi2), never as an error,
// so live monitoring always gets a reading:
//
//	res := numeric.FitPeak(samples, numeric.FitOptions{})
//	if res.Quality == quality.Invalid {
//	    // fit failed, res.Chi2 == numeric.FailedChi2
//	}
package numeric
