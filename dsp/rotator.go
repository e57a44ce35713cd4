package dsp

import "math"

// renormalize is the number of samples between magnitude corrections.
const renormalize = 1024

// Rotator is a unit magnitude complex oscillator advanced by a
// multiplication per sample.
type Rotator struct {
	phase complex128
	step  complex128
	n     int
}

// NewRotator returns a rotator with zero initial phase.
func NewRotator(freq, sampleRate float64) *Rotator {
	r := &Rotator{phase: 1}
	r.SetFrequency(freq, sampleRate)
	return r
}

// SetFrequency changes the rotation step. Phase is kept, so the output
// stays continuous.
func (r *Rotator) SetFrequency(freq, sampleRate float64) {
	if r.phase == 0 {
		r.phase = 1
	}
	if sampleRate <= 0 {
		r.step = 1
		return
	}
	w := 2 * math.Pi * freq / sampleRate
	r.step = complex(math.Cos(w), math.Sin(w))
}

// Phase returns the current phase.
func (r *Rotator) Phase() complex128 {
	return r.phase
}

// Next returns the current phase and advances the rotator.
func (r *Rotator) Next() complex128 {
	p := r.phase
	r.advance()
	return p
}

func (r *Rotator) advance() {
	r.phase *= r.step
	r.n++
	if r.n == renormalize {
		r.n = 0
		mag := real(r.phase)*real(r.phase) + imag(r.phase)*imag(r.phase)
		r.phase *= complex((3-mag)/2, 0)
	}
}

// Mix appends src multiplied by the rotator to dst.
func (r *Rotator) Mix(dst, src []complex64) []complex64 {
	for _, v := range src {
		p := r.phase
		dst = append(dst, complex64(complex128(v)*p))
		r.advance()
	}
	return dst
}

// Fill writes amplitude scaled rotator output into dst.
func (r *Rotator) Fill(dst []complex64, amplitude float64) {
	a := complex(amplitude, 0)
	for i := range dst {
		dst[i] = complex64(r.phase * a)
		r.advance()
	}
}
