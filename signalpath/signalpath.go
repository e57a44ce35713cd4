// Package signalpath assembles the receive chain: IQ correction, optional
// decimation and a splitter that feeds the FFT display tap and any number
// of VFOs.
//
// Every VFO output must have a consumer. Streams apply backpressure, so a
// VFO that isn't read eventually blocks the splitter and the whole path.
package signalpath

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"pipelined.dev/sdr"
	"pipelined.dev/sdr/fft"
	"pipelined.dev/sdr/iq"
	"pipelined.dev/sdr/log"
	"pipelined.dev/sdr/metric"
	"pipelined.dev/sdr/resample"
	"pipelined.dev/sdr/split"
	"pipelined.dev/sdr/stream"
	"pipelined.dev/sdr/vfo"
)

var (
	// ErrVFOExists is returned when VFO with the same name is added.
	ErrVFOExists = errors.New("vfo already exists")
	// ErrVFONotFound is returned when VFO with provided name doesn't exist.
	ErrVFONotFound = errors.New("vfo not found")
	// ErrInvalidDecimation is returned for decimation below 1.
	ErrInvalidDecimation = errors.New("invalid decimation")
)

// Option configures the signal path.
type Option func(*SignalPath)

// WithLogger sets the logger of the path and its blocks.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *SignalPath) {
		p.log = l
	}
}

// WithMetric enables block metrics.
func WithMetric(m *metric.Metric) Option {
	return func(p *SignalPath) {
		p.metric = m
	}
}

// WithFFT enables the display tap that calls handler with rate spectra of
// size bins per second.
func WithFFT(size int, rate float64, handler fft.Handler) Option {
	return func(p *SignalPath) {
		p.fftSize = size
		p.fftRate = rate
		p.fftHandler = handler
	}
}

// WithCapacity sets the capacity of splitter outputs.
func WithCapacity(capacity int) Option {
	return func(p *SignalPath) {
		p.capacity = capacity
	}
}

type channel struct {
	vfo *vfo.VFO
	in  stream.Reader[complex64]
}

// SignalPath owns the blocks of the receive chain.
type SignalPath struct {
	log        logrus.FieldLogger
	metric     *metric.Metric
	capacity   int
	fftSize    int
	fftRate    float64
	fftHandler fft.Handler

	mu         sync.Mutex
	graph      *sdr.Graph
	sampleRate float64
	decimation int
	corrector  *iq.Corrector
	decimator  *resample.Resampler
	splitter   *split.Splitter[complex64]
	fft        *fft.Tap
	vfos       map[string]channel

	iqMeter        *metric.Meter
	decimatorMeter *metric.Meter
	splitterMeter  *metric.Meter
}

func validRate(sampleRate float64) error {
	if sampleRate <= 0 || math.IsInf(sampleRate, 0) || math.IsNaN(sampleRate) {
		return fmt.Errorf("%w: %v", vfo.ErrInvalidRate, sampleRate)
	}
	return nil
}

// New returns a signal path that reads provided input.
func New(in stream.Reader[complex64], sampleRate float64, options ...Option) (*SignalPath, error) {
	if err := validRate(sampleRate); err != nil {
		return nil, err
	}
	p := &SignalPath{
		log:        log.GetLogger(),
		capacity:   sdr.DefaultCapacity,
		sampleRate: sampleRate,
		decimation: 1,
		vfos:       make(map[string]channel),
	}
	for _, option := range options {
		option(p)
	}

	p.corrector = iq.New(in)
	p.corrector.SetLogger(p.log)
	p.iqMeter = p.metric.Meter("iq", sampleRate)
	p.corrector.SetMeter(p.iqMeter)
	p.splitter = split.NewSize(p.corrector.Out(), p.capacity)
	p.splitter.SetLogger(p.log)
	p.splitterMeter = p.metric.Meter("splitter", sampleRate)
	p.splitter.SetMeter(p.splitterMeter)
	p.graph = sdr.NewGraph(p.corrector, p.splitter)

	if p.fftHandler != nil {
		tap, err := fft.New(p.splitter.AddOutput(), p.fftSize, p.fftRate, sampleRate, p.fftHandler)
		if err != nil {
			return nil, err
		}
		tap.SetLogger(p.log)
		p.fft = tap
		p.graph.Add(tap)
	}
	return p, nil
}

// Start starts all blocks.
func (p *SignalPath) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.graph.Start()
	p.log.WithField("sample_rate", p.sampleRate).Info("signal path started")
}

// Stop stops all blocks.
func (p *SignalPath) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.graph.Stop()
	p.log.Info("signal path stopped")
}

// rate returns the sample rate after decimation.
func (p *SignalPath) rate() float64 {
	return p.sampleRate / float64(p.decimation)
}

// AddVFO creates a VFO fed by the splitter. VFO is started if the path is
// running.
func (p *SignalPath) AddVFO(name string, ref vfo.Reference, offset, bandwidth, sampleRate float64) (*vfo.VFO, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.vfos[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrVFOExists, name)
	}
	in := p.splitter.AddOutput()
	v, err := vfo.New(name, in, vfo.Params{
		Offset:    offset,
		Bandwidth: bandwidth,
		InRate:    p.rate(),
		OutRate:   sampleRate,
		Reference: ref,
	}, vfo.WithLogger(p.log), vfo.WithMetric(p.metric))
	if err != nil {
		p.splitter.RemoveOutput(in)
		return nil, err
	}
	p.vfos[name] = channel{vfo: v, in: in}
	p.graph.Add(v)
	p.log.WithFields(logrus.Fields{
		"vfo":         name,
		"offset":      offset,
		"bandwidth":   bandwidth,
		"sample_rate": sampleRate,
	}).Info("vfo added")
	return v, nil
}

// RemoveVFO stops the VFO and detaches it from the splitter.
func (p *SignalPath) RemoveVFO(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.vfos[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrVFONotFound, name)
	}
	p.graph.Remove(ch.vfo)
	p.splitter.RemoveOutput(ch.in)
	delete(p.vfos, name)
	p.log.WithField("vfo", name).Info("vfo removed")
	return nil
}

func (p *SignalPath) withVFO(name string, fn func(*vfo.VFO) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.vfos[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrVFONotFound, name)
	}
	return fn(ch.vfo)
}

// SetVFOOffset retunes the VFO.
func (p *SignalPath) SetVFOOffset(name string, offset float64) error {
	return p.withVFO(name, func(v *vfo.VFO) error {
		v.SetOffset(offset)
		return nil
	})
}

// SetVFOBandwidth changes the bandwidth of the VFO.
func (p *SignalPath) SetVFOBandwidth(name string, bandwidth float64) error {
	return p.withVFO(name, func(v *vfo.VFO) error {
		return v.SetBandwidth(bandwidth)
	})
}

// SetVFOSampleRate changes the output sample rate of the VFO.
func (p *SignalPath) SetVFOSampleRate(name string, sampleRate float64) error {
	return p.withVFO(name, func(v *vfo.VFO) error {
		return v.SetOutSampleRate(sampleRate)
	})
}

// SetVFOReference changes the reference point of the VFO offset.
func (p *SignalPath) SetVFOReference(name string, ref vfo.Reference) error {
	return p.withVFO(name, func(v *vfo.VFO) error {
		v.SetReference(ref)
		return nil
	})
}

// SetInput replaces the input. Only the head block is paused, data
// buffered downstream is kept.
func (p *SignalPath) SetInput(in stream.Reader[complex64]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.corrector.SetInput(in)
}

// SetSampleRate changes the input sample rate. If the decimator can't be
// updated, the path keeps the previous rate. Otherwise all VFOs are
// updated, a failure of one doesn't prevent others from being updated.
func (p *SignalPath) SetSampleRate(sampleRate float64) error {
	if err := validRate(sampleRate); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.decimator != nil {
		if err := p.decimator.SetParams(decimation(sampleRate, p.decimation)); err != nil {
			p.log.WithError(err).Error("decimator update failed")
			return err
		}
	}
	p.sampleRate = sampleRate
	return p.updateRate().Ret()
}

// SetDecimation inserts, updates or removes the decimator. Splitter is
// paused only to replace its input.
func (p *SignalPath) SetDecimation(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidDecimation, n)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if n == p.decimation {
		return nil
	}
	switch {
	case n == 1:
		p.graph.Remove(p.decimator)
		p.splitter.SetInput(p.corrector.Out())
		p.decimator = nil
		p.decimatorMeter = nil
	case p.decimator == nil:
		d, err := resample.New(p.corrector.Out(), decimation(p.sampleRate, n))
		if err != nil {
			return err
		}
		d.SetLogger(p.log)
		p.decimatorMeter = p.metric.Meter("decimator", p.sampleRate/float64(n))
		d.SetMeter(p.decimatorMeter)
		p.splitter.SetInput(d.Out())
		p.graph.Add(d)
		p.decimator = d
	default:
		if err := p.decimator.SetParams(decimation(p.sampleRate, n)); err != nil {
			return err
		}
	}
	p.decimation = n
	p.log.WithField("decimation", n).Info("decimation changed")
	return p.updateRate().Ret()
}

// updateRate propagates the input rate and the rate after decimation.
func (p *SignalPath) updateRate() sdr.Errors {
	rate := p.rate()
	p.iqMeter.SetSampleRate(p.sampleRate)
	p.decimatorMeter.SetSampleRate(rate)
	p.splitterMeter.SetSampleRate(rate)
	var errs sdr.Errors
	if p.fft != nil {
		p.fft.SetSampleRate(rate)
	}
	for name, ch := range p.vfos {
		if err := ch.vfo.SetInSampleRate(rate); err != nil {
			p.log.WithError(err).WithField("vfo", name).Error("vfo update failed")
			errs = append(errs, err)
		}
	}
	return errs
}

// decimation returns params of decimator by n.
func decimation(sampleRate float64, n int) resample.Params {
	out := sampleRate / float64(n)
	return resample.Params{
		InRate:     sampleRate,
		OutRate:    out,
		Cutoff:     0.4 * out,
		Transition: 0.1 * out,
	}
}

// SetIQCorrection turns the DC offset correction on and off.
func (p *SignalPath) SetIQCorrection(enabled bool) {
	p.corrector.SetEnabled(enabled)
}

// IQCorrection returns true if DC offset correction is on.
func (p *SignalPath) IQCorrection() bool {
	return p.corrector.Enabled()
}

// VFO returns VFO by name.
func (p *SignalPath) VFO(name string) (*vfo.VFO, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.vfos[name]
	return ch.vfo, ok
}

// VFONames returns sorted names of VFOs.
func (p *SignalPath) VFONames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.vfos))
	for name := range p.vfos {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// States returns params of every VFO.
func (p *SignalPath) States() map[string]vfo.Params {
	p.mu.Lock()
	defer p.mu.Unlock()
	states := make(map[string]vfo.Params, len(p.vfos))
	for name, ch := range p.vfos {
		states[name] = ch.vfo.Params()
	}
	return states
}

// SampleRate returns the sample rate after decimation.
func (p *SignalPath) SampleRate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate()
}

// InputSampleRate returns the sample rate of the input.
func (p *SignalPath) InputSampleRate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sampleRate
}

// Decimation returns the current decimation.
func (p *SignalPath) Decimation() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.decimation
}

// Buffered returns the number of samples buffered inside the path,
// excluding VFO outputs that are read by consumers.
func (p *SignalPath) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.corrector.Buffered()
	if p.decimator != nil {
		n += p.decimator.Buffered()
	}
	for _, out := range p.splitter.Outputs() {
		n += out.Readable()
	}
	for _, ch := range p.vfos {
		n += ch.vfo.Translator().Buffered()
	}
	return n
}
