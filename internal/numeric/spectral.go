package numeric

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// SpectralTransform computes the discrete Fourier transform of samples and
// keeps the first length/2 bins. The spectrum of a real signal is symmetric,
// so the upper half (and the Nyquist term) carries no extra information.
//
// The samples are zero-padded or truncated to length; length <= 0 means
// len(samples). wantPower selects the magnitudes, wantPhase the phase angles
// (atan2 of the imaginary and real parts). With both set, the magnitudes are
// followed by the phases.
func SpectralTransform(samples []float64, wantPower, wantPhase bool, length int) ([]float64, error) {
	if !wantPower && !wantPhase {
		return nil, fmt.Errorf("%w: power and phase both disabled", ErrInvalidArgument)
	}
	if length <= 0 {
		length = len(samples)
	}
	if length == 0 {
		return nil, fmt.Errorf("%w: empty signal", ErrInvalidArgument)
	}

	seq := make([]float64, length)
	copy(seq, samples)

	coeffs := fourier.NewFFT(length).Coefficients(nil, seq)
	half := coeffs[:length/2]

	var power, phase []float64
	if wantPower {
		power = make([]float64, len(half))
		for i, c := range half {
			power[i] = cmplx.Abs(c)
		}
	}
	if wantPhase {
		phase = make([]float64, len(half))
		for i, c := range half {
			phase[i] = math.Atan2(imag(c), real(c))
		}
	}

	switch {
	case wantPower && wantPhase:
		return append(power, phase...), nil
	case wantPower:
		return power, nil
	default:
		return phase, nil
	}
}
