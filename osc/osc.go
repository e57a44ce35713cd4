// Package osc provides a complex tone source.
package osc

import (
	"sync/atomic"

	"pipelined.dev/sdr"
	"pipelined.dev/sdr/dsp"
	"pipelined.dev/sdr/stream"
)

type params struct {
	frequency  float64
	sampleRate float64
	amplitude  float64
}

// Oscillator is a source block that generates a complex tone. The output
// is paced only by the consumer.
type Oscillator struct {
	sdr.Worker
	out     *stream.Stream[complex64]
	params  atomic.Pointer[params]
	applied *params
	rot     *dsp.Rotator
	buf     []complex64
	pending []complex64
}

// New returns an oscillator of unit amplitude.
func New(frequency, sampleRate float64) *Oscillator {
	o := &Oscillator{
		out: stream.New[complex64](sdr.DefaultCapacity),
		rot: dsp.NewRotator(frequency, sampleRate),
		buf: make([]complex64, sdr.DefaultBatch),
	}
	p := &params{frequency: frequency, sampleRate: sampleRate, amplitude: 1}
	o.params.Store(p)
	o.applied = p
	o.Init("oscillator", o.run)
	o.RegisterOutput(o.out)
	return o
}

func (o *Oscillator) run() (int, error) {
	if len(o.pending) == 0 {
		p := o.params.Load()
		if p != o.applied {
			o.rot.SetFrequency(p.frequency, p.sampleRate)
			o.applied = p
		}
		o.rot.Fill(o.buf, p.amplitude)
		o.pending = o.buf
	}
	n, err := o.out.Write(o.pending)
	if err != nil {
		return 0, err
	}
	o.pending = nil
	return n, nil
}

func (o *Oscillator) update(fn func(*params)) {
	o.Locked(func() {
		p := *o.params.Load()
		fn(&p)
		o.params.Store(&p)
	})
}

// SetFrequency changes the tone frequency. Phase stays continuous.
func (o *Oscillator) SetFrequency(frequency float64) {
	o.update(func(p *params) { p.frequency = frequency })
}

// SetSampleRate changes the sample rate.
func (o *Oscillator) SetSampleRate(sampleRate float64) {
	o.update(func(p *params) { p.sampleRate = sampleRate })
}

// SetAmplitude changes the amplitude of the tone.
func (o *Oscillator) SetAmplitude(amplitude float64) {
	o.update(func(p *params) { p.amplitude = amplitude })
}

// Frequency returns the tone frequency.
func (o *Oscillator) Frequency() float64 {
	return o.params.Load().frequency
}

// Out returns the output of the oscillator.
func (o *Oscillator) Out() stream.Reader[complex64] {
	return o.out
}
