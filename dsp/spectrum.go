package dsp

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// floor is the lowest power reported by the spectrum, in dB.
const floor = -200

// Spectrum computes windowed power spectra of complex signal.
type Spectrum struct {
	fft    *fourier.CmplxFFT
	window []float64
	gain   float64
	seq    []complex128
}

// NewSpectrum returns a spectrum of provided size with Blackman-Harris
// window.
func NewSpectrum(size int) *Spectrum {
	w := make([]float64, size)
	for i := range w {
		w[i] = 1
	}
	window.BlackmanHarris(w)
	var sum float64
	for _, v := range w {
		sum += v
	}
	return &Spectrum{
		fft:    fourier.NewCmplxFFT(size),
		window: w,
		gain:   sum,
		seq:    make([]complex128, size),
	}
}

// Size returns the number of bins.
func (s *Spectrum) Size() int {
	return len(s.window)
}

// Compute writes the power of src in dB into dst and returns it. Zero
// frequency is placed in the middle of the result. A full scale tone has
// 0 dB power. src must have Size elements.
func (s *Spectrum) Compute(dst []float32, src []complex64) []float32 {
	for i, v := range src[:len(s.seq)] {
		s.seq[i] = complex128(v) * complex(s.window[i], 0)
	}
	coeff := s.fft.Coefficients(s.seq, s.seq)
	if cap(dst) < len(coeff) {
		dst = make([]float32, len(coeff))
	}
	dst = dst[:len(coeff)]
	for i, c := range coeff {
		m := (real(c)*real(c) + imag(c)*imag(c)) / (s.gain * s.gain)
		db := float64(floor)
		if m > 0 {
			db = max(10*math.Log10(m), floor)
		}
		dst[s.fft.ShiftIdx(i)] = float32(db)
	}
	return dst
}
