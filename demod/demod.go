// Package demod provides demodulators of baseband complex signal.
package demod

import (
	"math"
	"math/cmplx"
	"sync/atomic"

	"pipelined.dev/sdr"
	"pipelined.dev/sdr/stream"
)

// FM is a quadrature demodulator. Output of 1 corresponds to the
// deviation.
type FM struct {
	*sdr.Stage[complex64, float32]
	gain atomic.Uint64
	last complex64
}

// NewFM returns FM demodulator for provided sample rate and deviation in
// Hz.
func NewFM(in stream.Reader[complex64], sampleRate, deviation float64) *FM {
	d := &FM{}
	d.SetDeviation(sampleRate, deviation)
	d.Stage = sdr.NewStage("fm", in, d.process)
	return d
}

func (d *FM) process(in []complex64, out []float32) []float32 {
	gain := math.Float64frombits(d.gain.Load())
	for _, v := range in {
		diff := complex128(v * complex(real(d.last), -imag(d.last)))
		out = append(out, float32(cmplx.Phase(diff)*gain))
		d.last = v
	}
	return out
}

// SetDeviation updates the demodulator gain.
func (d *FM) SetDeviation(sampleRate, deviation float64) {
	gain := 1.0
	if deviation > 0 {
		gain = sampleRate / (2 * math.Pi * deviation)
	}
	d.gain.Store(math.Float64bits(gain))
}

// AM is an envelope demodulator with DC removal.
type AM struct {
	*sdr.Stage[complex64, float32]
	dc float32
}

// amRate is the adaptation rate of the carrier level estimate.
const amRate = 1e-3

// NewAM returns AM demodulator.
func NewAM(in stream.Reader[complex64]) *AM {
	d := &AM{}
	d.Stage = sdr.NewStage("am", in, d.process)
	return d
}

func (d *AM) process(in []complex64, out []float32) []float32 {
	for _, v := range in {
		m := float32(cmplx.Abs(complex128(v)))
		d.dc += amRate * (m - d.dc)
		out = append(out, m-d.dc)
	}
	return out
}
