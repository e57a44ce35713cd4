// Package vfo provides the tuning chain that extracts a channel from wide
// band signal: frequency translation followed by rational resampling.
package vfo

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"pipelined.dev/sdr"
	"pipelined.dev/sdr/log"
	"pipelined.dev/sdr/metric"
	"pipelined.dev/sdr/resample"
	"pipelined.dev/sdr/stream"
	"pipelined.dev/sdr/xlate"
)

var (
	// ErrInvalidBandwidth is returned for negative bandwidth.
	ErrInvalidBandwidth = errors.New("invalid bandwidth")
	// ErrInvalidRate is returned for non-positive sample rate.
	ErrInvalidRate = errors.New("invalid sample rate")
)

// Reference defines which point of the channel the offset points to.
type Reference int

const (
	// Center reference means offset is the centre of the channel.
	Center Reference = iota
	// Lower reference means offset is the lower edge of the channel.
	Lower
	// Upper reference means offset is the upper edge of the channel.
	Upper
)

func (r Reference) String() string {
	switch r {
	case Center:
		return "center"
	case Lower:
		return "lower"
	case Upper:
		return "upper"
	}
	return fmt.Sprintf("Reference(%d)", int(r))
}

// ParseReference returns reference by name.
func ParseReference(s string) (Reference, error) {
	switch s {
	case "", "center":
		return Center, nil
	case "lower":
		return Lower, nil
	case "upper":
		return Upper, nil
	}
	return 0, fmt.Errorf("unknown reference %q", s)
}

// Params of the VFO. Offset and bandwidth are in Hz, rates in samples per
// second. Zero bandwidth means the widest channel allowed by the rates.
type Params struct {
	Offset    float64
	Bandwidth float64
	InRate    float64
	OutRate   float64
	Reference Reference
}

// Center returns the frequency translated to zero. Edge references are
// shifted by half of the effective bandwidth.
func (p Params) Center() float64 {
	switch p.Reference {
	case Lower:
		return p.Offset + p.EffectiveBandwidth()/2
	case Upper:
		return p.Offset - p.EffectiveBandwidth()/2
	}
	return p.Offset
}

// EffectiveBandwidth returns the bandwidth clamped to both rates.
func (p Params) EffectiveBandwidth() float64 {
	if p.Bandwidth == 0 {
		return min(p.InRate, p.OutRate)
	}
	return min(p.Bandwidth, p.InRate, p.OutRate)
}

// resampling returns resampler params. Anti-alias filter cutoff and
// transition are both half of the effective bandwidth.
func (p Params) resampling() resample.Params {
	half := p.EffectiveBandwidth() / 2
	return resample.Params{
		InRate:     p.InRate,
		OutRate:    p.OutRate,
		Cutoff:     half,
		Transition: half,
	}
}

// Plan designs the resampler of the VFO without creating it.
func (p Params) Plan() (*resample.Plan, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	return resample.Design(p.resampling())
}

func (p Params) validate() error {
	if p.InRate <= 0 || p.OutRate <= 0 {
		return fmt.Errorf("%w: %v to %v", ErrInvalidRate, p.InRate, p.OutRate)
	}
	if p.Bandwidth < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidBandwidth, p.Bandwidth)
	}
	return nil
}

// Option configures the VFO.
type Option func(*VFO)

// WithLogger sets the logger of the VFO and its blocks.
func WithLogger(l logrus.FieldLogger) Option {
	return func(v *VFO) {
		v.log = l
	}
}

// WithMetric enables metrics of the VFO blocks.
func WithMetric(m *metric.Metric) Option {
	return func(v *VFO) {
		v.metric = m
	}
}

// VFO translates the channel to baseband and resamples it to the output
// rate. Retuning changes only the translator, so it never interrupts the
// stream. Bandwidth and rate changes pause only the resampler.
type VFO struct {
	name     string
	log      logrus.FieldLogger
	metric   *metric.Metric
	inMeter  *metric.Meter
	outMeter *metric.Meter

	mu         sync.Mutex
	params     Params
	translator *xlate.Translator
	resampler  *resample.Resampler
}

// New returns a VFO that reads provided input. Zero bandwidth follows the
// rates when they change.
func New(name string, in stream.Reader[complex64], p Params, options ...Option) (*VFO, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	v := &VFO{
		name: name,
		log:  log.GetLogger(),
	}
	for _, option := range options {
		option(v)
	}
	v.log = v.log.WithField("vfo", name)

	translator := xlate.New(in, p.Center(), p.InRate)
	resampler, err := resample.New(translator.Out(), p.resampling())
	if err != nil {
		return nil, fmt.Errorf("vfo %s: %w", name, err)
	}
	translator.SetLogger(v.log)
	resampler.SetLogger(v.log)
	v.inMeter = v.metric.Meter(name+".translator", p.InRate)
	v.outMeter = v.metric.Meter(name+".resampler", p.OutRate)
	translator.SetMeter(v.inMeter)
	resampler.SetMeter(v.outMeter)
	v.params = p
	v.translator = translator
	v.resampler = resampler
	return v, nil
}

// Name returns the name of the VFO.
func (v *VFO) Name() string {
	return v.name
}

// Start starts the VFO blocks, consumer side first.
func (v *VFO) Start() {
	v.resampler.Start()
	v.translator.Start()
}

// Stop stops the VFO blocks.
func (v *VFO) Stop() {
	v.translator.Stop()
	v.resampler.Stop()
}

// TempStop pauses the VFO blocks.
func (v *VFO) TempStop() {
	v.translator.TempStop()
	v.resampler.TempStop()
}

// TempStart resumes the VFO blocks.
func (v *VFO) TempStart() {
	v.resampler.TempStart()
	v.translator.TempStart()
}

// Out returns the output of the VFO.
func (v *VFO) Out() stream.Reader[complex64] {
	return v.resampler.Out()
}

// SetInput replaces the input of the VFO.
func (v *VFO) SetInput(in stream.Reader[complex64]) {
	v.translator.SetInput(in)
}

// Params returns current parameters.
func (v *VFO) Params() Params {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.params
}

// Bandwidth returns the effective bandwidth.
func (v *VFO) Bandwidth() float64 {
	return v.Params().EffectiveBandwidth()
}

// SetOffset retunes the VFO.
func (v *VFO) SetOffset(offset float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.params.Offset = offset
	v.translator.SetFrequency(v.params.Center())
}

// SetReference changes the reference point of the offset.
func (v *VFO) SetReference(ref Reference) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.params.Reference = ref
	v.translator.SetFrequency(v.params.Center())
}

// SetBandwidth changes the channel bandwidth. Anti-alias filter is
// redesigned. Zero selects the widest channel allowed by the rates.
func (v *VFO) SetBandwidth(bandwidth float64) error {
	return v.update(func(p *Params) { p.Bandwidth = bandwidth })
}

// SetOutSampleRate changes the output sample rate.
func (v *VFO) SetOutSampleRate(sampleRate float64) error {
	return v.update(func(p *Params) { p.OutRate = sampleRate })
}

// SetInSampleRate changes the input sample rate.
func (v *VFO) SetInSampleRate(sampleRate float64) error {
	return v.update(func(p *Params) { p.InRate = sampleRate })
}

// update applies new params. Invalid params leave the VFO unchanged.
func (v *VFO) update(fn func(*Params)) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	p := v.params
	fn(&p)
	if err := p.validate(); err != nil {
		return err
	}
	if p.resampling() != v.params.resampling() {
		if err := v.resampler.SetParams(p.resampling()); err != nil {
			return fmt.Errorf("vfo %s: %w", v.name, err)
		}
		v.log.WithFields(logrus.Fields{
			"interpolation": v.resampler.Interpolation(),
			"decimation":    v.resampler.Decimation(),
			"taps":          v.resampler.TapCount(),
		}).Debug("resampler updated")
	}
	if p.InRate != v.params.InRate {
		v.translator.SetSampleRate(p.InRate)
		v.inMeter.SetSampleRate(p.InRate)
	}
	v.outMeter.SetSampleRate(p.OutRate)
	if p.Center() != v.params.Center() {
		v.translator.SetFrequency(p.Center())
	}
	v.params = p
	return nil
}

// Resampler returns the resampler of the VFO.
func (v *VFO) Resampler() *resample.Resampler {
	return v.resampler
}

// Translator returns the translator of the VFO.
func (v *VFO) Translator() *xlate.Translator {
	return v.translator
}

// Buffered returns the number of samples buffered inside the VFO.
func (v *VFO) Buffered() int {
	return v.translator.Buffered() + v.resampler.Buffered()
}

var _ sdr.Block = (*VFO)(nil)
