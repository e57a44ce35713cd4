// Package xlate provides frequency translation of complex signal.
package xlate

import (
	"sync/atomic"

	"pipelined.dev/sdr"
	"pipelined.dev/sdr/dsp"
	"pipelined.dev/sdr/stream"
)

type params struct {
	frequency  float64
	sampleRate float64
}

// Translator shifts the signal down by frequency, so a component at
// frequency ends up at zero. Oscillator and mixer are fused into a single
// stage. Frequency changes don't pause the block.
type Translator struct {
	*sdr.Stage[complex64, complex64]
	params  atomic.Pointer[params]
	applied *params
	rot     *dsp.Rotator
}

// New returns a translator that reads provided input.
func New(in stream.Reader[complex64], frequency, sampleRate float64) *Translator {
	p := &params{frequency: frequency, sampleRate: sampleRate}
	t := &Translator{
		rot:     dsp.NewRotator(-frequency, sampleRate),
		applied: p,
	}
	t.params.Store(p)
	t.Stage = sdr.NewStage("translator", in, t.process)
	return t
}

func (t *Translator) process(in, out []complex64) []complex64 {
	if p := t.params.Load(); p != t.applied {
		t.rot.SetFrequency(-p.frequency, p.sampleRate)
		t.applied = p
	}
	return t.rot.Mix(out, in)
}

func (t *Translator) update(fn func(*params)) {
	t.Locked(func() {
		p := *t.params.Load()
		fn(&p)
		t.params.Store(&p)
	})
}

// SetFrequency changes the translation frequency. Phase of the mixer
// stays continuous.
func (t *Translator) SetFrequency(frequency float64) {
	t.update(func(p *params) { p.frequency = frequency })
}

// SetSampleRate changes the sample rate of the input.
func (t *Translator) SetSampleRate(sampleRate float64) {
	t.update(func(p *params) { p.sampleRate = sampleRate })
}

// Frequency returns the translation frequency.
func (t *Translator) Frequency() float64 {
	return t.params.Load().frequency
}

// SampleRate returns the sample rate of the input.
func (t *Translator) SampleRate() float64 {
	return t.params.Load().sampleRate
}
