// Package iq provides correction of raw IQ samples.
package iq

import (
	"math"
	"sync/atomic"

	"pipelined.dev/sdr"
	"pipelined.dev/sdr/stream"
)

// DefaultRate is the default adaptation rate of the DC estimate.
const DefaultRate = 1e-4

// Corrector removes DC offset of IQ signal with a single pole tracking
// filter. Disabled corrector passes samples through.
type Corrector struct {
	*sdr.Stage[complex64, complex64]
	enabled atomic.Bool
	rate    atomic.Uint64
	dc      complex64
}

// New returns a disabled corrector.
func New(in stream.Reader[complex64]) *Corrector {
	c := &Corrector{}
	c.rate.Store(math.Float64bits(DefaultRate))
	c.Stage = sdr.NewStage("iq", in, c.process)
	return c
}

func (c *Corrector) process(in, out []complex64) []complex64 {
	if !c.enabled.Load() {
		return append(out, in...)
	}
	rate := float32(math.Float64frombits(c.rate.Load()))
	a := complex(rate, 0)
	for _, v := range in {
		c.dc += a * (v - c.dc)
		out = append(out, v-c.dc)
	}
	return out
}

// SetEnabled turns the correction on and off.
func (c *Corrector) SetEnabled(enabled bool) {
	c.enabled.Store(enabled)
}

// Enabled returns true if correction is on.
func (c *Corrector) Enabled() bool {
	return c.enabled.Load()
}

// SetRate sets the adaptation rate of the DC estimate, in (0, 1].
func (c *Corrector) SetRate(rate float64) {
	if rate <= 0 || rate > 1 {
		return
	}
	c.rate.Store(math.Float64bits(rate))
}
