package dsp

import "fmt"

// Polyphase is a rational resampler. It interpolates by L, filters with
// the prototype filter and decimates by M, computing only the outputs that
// are kept.
type Polyphase struct {
	interp int
	decim  int
	// phases[p][i] holds prototype tap p+(k-1-i)*interp, so a phase is
	// applied as a dot product with the history.
	phases [][]float32
	k      int
	buf    []complex64
	// t is the position of the next output on the interpolated grid,
	// relative to the first unprocessed input.
	t int
}

// NewPolyphase returns a resampler for provided factors and prototype
// filter designed at the interpolated rate.
func NewPolyphase(interp, decim int, taps []float64) *Polyphase {
	if interp < 1 || decim < 1 {
		panic(fmt.Sprintf("dsp: invalid polyphase factors %d/%d", interp, decim))
	}
	k := (len(taps) + interp - 1) / interp
	if k == 0 {
		k = 1
	}
	phases := make([][]float32, interp)
	for p := range phases {
		phase := make([]float32, k)
		for i := range phase {
			j := p + (k-1-i)*interp
			if j < len(taps) {
				phase[i] = float32(taps[j])
			}
		}
		phases[p] = phase
	}
	return &Polyphase{
		interp: interp,
		decim:  decim,
		phases: phases,
		k:      k,
		buf:    make([]complex64, k-1),
	}
}

// Interpolation returns L.
func (r *Polyphase) Interpolation() int {
	return r.interp
}

// Decimation returns M.
func (r *Polyphase) Decimation() int {
	return r.decim
}

// TapsPerPhase returns the length of every phase filter.
func (r *Polyphase) TapsPerPhase() int {
	return r.k
}

// OutputLen returns the maximum number of outputs produced for n inputs.
func (r *Polyphase) OutputLen(n int) int {
	return (n*r.interp)/r.decim + 1
}

// Process appends resampled src to dst.
func (r *Polyphase) Process(dst, src []complex64) []complex64 {
	if len(src) == 0 {
		return dst
	}
	hist := r.k - 1
	r.buf = append(r.buf[:hist], src...)
	limit := len(src) * r.interp
	t := r.t
	for ; t < limit; t += r.decim {
		n := t / r.interp
		phase := r.phases[t%r.interp]
		x := r.buf[n : n+r.k]
		var re, im float32
		for i, h := range phase {
			re += h * real(x[i])
			im += h * imag(x[i])
		}
		dst = append(dst, complex(re, im))
	}
	r.t = t - limit
	copy(r.buf, r.buf[len(r.buf)-hist:])
	r.buf = r.buf[:hist]
	return dst
}

// Reset clears the filter history.
func (r *Polyphase) Reset() {
	r.buf = r.buf[:r.k-1]
	clear(r.buf)
	r.t = 0
}
