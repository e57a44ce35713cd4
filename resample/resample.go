// Package resample provides rational sample rate conversion of complex
// signal.
package resample

import (
	"fmt"
	"sync"

	"pipelined.dev/sdr"
	"pipelined.dev/sdr/dsp"
	"pipelined.dev/sdr/stream"
)

// MaxInterpolation limits the interpolation factor.
const MaxInterpolation = 256

// Params define the conversion. Anti-alias filter is designed at the
// interpolated rate InRate*L with Cutoff and Transition in Hz.
type Params struct {
	InRate     float64
	OutRate    float64
	Cutoff     float64
	Transition float64
}

// Plan is a designed conversion.
type Plan struct {
	Params
	Interpolation int
	Decimation    int
	Taps          int
	kernel        *dsp.Polyphase
}

// Design computes the resampling plan for provided params.
func Design(p Params) (*Plan, error) {
	interp, decim, err := dsp.Ratio(p.InRate, p.OutRate, MaxInterpolation)
	if err != nil {
		return nil, err
	}
	taps, err := dsp.LowPass{
		Cutoff:     p.Cutoff,
		Transition: p.Transition,
		SampleRate: p.InRate * float64(interp),
		Gain:       float64(interp),
	}.Taps()
	if err != nil {
		return nil, fmt.Errorf("resampling %v to %v: %w", p.InRate, p.OutRate, err)
	}
	return &Plan{
		Params:        p,
		Interpolation: interp,
		Decimation:    decim,
		Taps:          len(taps),
		kernel:        dsp.NewPolyphase(interp, decim, taps),
	}, nil
}

// Resampler converts the sample rate of its input.
type Resampler struct {
	*sdr.Stage[complex64, complex64]
	// mu guards plan against concurrent access from getters. Worker reads
	// it without lock, because plan is only replaced while paused.
	mu   sync.Mutex
	plan *Plan
}

// New returns a resampler. It fails if the plan can't be designed.
func New(in stream.Reader[complex64], p Params) (*Resampler, error) {
	plan, err := Design(p)
	if err != nil {
		return nil, err
	}
	r := &Resampler{plan: plan}
	r.Stage = sdr.NewStage("resampler", in, r.process)
	return r, nil
}

func (r *Resampler) process(in, out []complex64) []complex64 {
	return r.plan.kernel.Process(out, in)
}

// SetParams designs a new plan and swaps it while the block is paused. If
// design fails, the current plan is kept and the block isn't paused.
func (r *Resampler) SetParams(p Params) error {
	plan, err := Design(p)
	if err != nil {
		return err
	}
	return r.Reconfigure(func() error {
		r.mu.Lock()
		r.plan = plan
		r.mu.Unlock()
		return nil
	})
}

// Plan returns the current plan.
func (r *Resampler) Plan() Plan {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.plan
}

// Interpolation returns the current interpolation factor.
func (r *Resampler) Interpolation() int {
	return r.Plan().Interpolation
}

// Decimation returns the current decimation factor.
func (r *Resampler) Decimation() int {
	return r.Plan().Decimation
}

// TapCount returns the length of the current anti-alias filter.
func (r *Resampler) TapCount() int {
	return r.Plan().Taps
}
