// Package fft provides a display tap that computes power spectra of the
// signal.
package fft

import (
	"errors"
	"fmt"
	"sync"

	"pipelined.dev/sdr"
	"pipelined.dev/sdr/dsp"
	"pipelined.dev/sdr/stream"
)

// ErrInvalidSize is returned for non-positive spectrum size.
var ErrInvalidSize = errors.New("invalid fft size")

// Handler receives a power spectrum in dB with zero frequency in the
// middle. Slice is reused after handler returns.
type Handler func(power []float32)

// Tap consumes the signal and passes spectra to a handler at a fixed frame
// rate. Samples between frames are skipped.
type Tap struct {
	sdr.Worker
	in stream.Reader[complex64]

	mu         sync.Mutex
	size       int
	rate       float64
	sampleRate float64
	handler    Handler
	dirty      bool

	spectrum *dsp.Spectrum
	frame    []complex64
	power    []float32
	skip     int
	stride   int
}

// New returns a tap that produces rate spectra of size bins per second.
func New(in stream.Reader[complex64], size int, rate, sampleRate float64, handler Handler) (*Tap, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	t := &Tap{
		in:         in,
		size:       size,
		rate:       rate,
		sampleRate: sampleRate,
		handler:    handler,
		dirty:      true,
	}
	t.Init("fft", t.run)
	t.RegisterInput(in)
	return t, nil
}

func (t *Tap) snapshot() Handler {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dirty {
		if t.spectrum == nil || t.spectrum.Size() != t.size {
			t.spectrum = dsp.NewSpectrum(t.size)
			t.frame = make([]complex64, 0, t.size)
		}
		t.stride = t.size
		if t.rate > 0 {
			t.stride = max(t.size, int(t.sampleRate/t.rate))
		}
		t.skip = min(t.skip, t.stride-t.size)
		t.dirty = false
	}
	return t.handler
}

func (t *Tap) run() (int, error) {
	handler := t.snapshot()
	want := t.size - len(t.frame)
	if t.skip > 0 {
		want = t.skip
	}
	data, err := t.in.Acquire(want)
	if err != nil {
		return 0, err
	}
	n := len(data)
	if t.skip > 0 {
		t.skip -= n
		t.in.Flush(n)
		return n, nil
	}
	t.frame = append(t.frame, data...)
	t.in.Flush(n)
	if len(t.frame) == t.size {
		t.power = t.spectrum.Compute(t.power, t.frame)
		t.frame = t.frame[:0]
		t.skip = t.stride - t.size
		if handler != nil {
			handler(t.power)
		}
	}
	return n, nil
}

// SetSize changes the number of bins.
func (t *Tap) SetSize(size int) error {
	if size <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	t.set(func() { t.size = size })
	return nil
}

// SetRate changes the number of spectra per second. Zero rate means every
// sample is used.
func (t *Tap) SetRate(rate float64) {
	t.set(func() { t.rate = rate })
}

// SetSampleRate changes the sample rate of the input.
func (t *Tap) SetSampleRate(sampleRate float64) {
	t.set(func() { t.sampleRate = sampleRate })
}

// SetHandler replaces the handler.
func (t *Tap) SetHandler(handler Handler) {
	t.mu.Lock()
	t.handler = handler
	t.mu.Unlock()
}

// SetInput replaces the input of the tap.
func (t *Tap) SetInput(in stream.Reader[complex64]) {
	t.Reconfigure(func() error {
		t.UnregisterInput(t.in)
		t.in = in
		t.RegisterInput(in)
		t.frame = t.frame[:0]
		return nil
	})
}

// Size returns the number of bins.
func (t *Tap) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size
}

func (t *Tap) set(fn func()) {
	t.mu.Lock()
	fn()
	t.dirty = true
	t.mu.Unlock()
}
