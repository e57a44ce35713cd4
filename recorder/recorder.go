// Package recorder implements a module that records a VFO of the signal
// path to a wav file. Depending on mode, the file holds raw IQ or audio
// demodulated from the channel.
//
// Options:
//
//	mode       iq (default), fm or am
//	path       output file, <name>.wav by default
//	bit_depth  16 (default) or 32
//	deviation  FM deviation in Hz, half of the channel bandwidth by default
package recorder

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"pipelined.dev/sdr"
	"pipelined.dev/sdr/config"
	"pipelined.dev/sdr/demod"
	"pipelined.dev/sdr/metric"
	"pipelined.dev/sdr/module"
	"pipelined.dev/sdr/signalpath"
	"pipelined.dev/sdr/stream"
	"pipelined.dev/sdr/vfo"
	"pipelined.dev/sdr/wav"
)

// Type is the registered module type.
const Type = "recorder"

// Recording modes.
const (
	ModeIQ = "iq"
	ModeFM = "fm"
	ModeAM = "am"
)

// DefaultBitDepth of recorded files.
const DefaultBitDepth = 16

// ErrInvalidMode is returned for unknown recording mode.
var ErrInvalidMode = errors.New("invalid recording mode")

func init() {
	module.Register(module.Module{
		Type: Type,
		Create: func(name string, cfg config.Module, env module.Env) (module.Instance, error) {
			return New(name, cfg, env)
		},
	})
}

type worker interface {
	sdr.Block
	SetLogger(logrus.FieldLogger)
	SetMeter(*metric.Meter)
}

type demodulator interface {
	worker
	Out() stream.Reader[float32]
	Buffered() int
}

type sink interface {
	worker
	Close() error
}

// Recorder writes a channel of signal path to file.
type Recorder struct {
	name     string
	mode     string
	filename string
	path     *signalpath.SignalPath
	log      logrus.FieldLogger
	vfo      *vfo.VFO
	demod    demodulator
	sink     sink
	graph    *sdr.Graph

	mu     sync.Mutex
	closed bool
}

// New adds a VFO to the signal path and creates a file that receives its
// output.
func New(name string, cfg config.Module, env module.Env) (*Recorder, error) {
	if env.Path == nil {
		return nil, errors.New("recorder: signal path is required")
	}
	l := env.Log
	if l == nil {
		l = logrus.StandardLogger()
	}
	r := &Recorder{
		name:     name,
		mode:     cfg.Option("mode", ModeIQ),
		filename: cfg.Option("path", name+".wav"),
		path:     env.Path,
		log:      l,
	}
	switch r.mode {
	case ModeIQ, ModeFM, ModeAM:
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidMode, r.mode)
	}
	bitDepth, err := strconv.Atoi(cfg.Option("bit_depth", strconv.Itoa(DefaultBitDepth)))
	if err != nil {
		return nil, fmt.Errorf("recorder: bit depth: %w", err)
	}
	ref, err := vfo.ParseReference(cfg.VFO.Reference)
	if err != nil {
		return nil, fmt.Errorf("recorder: %w", err)
	}

	r.vfo, err = env.Path.AddVFO(name, ref, cfg.VFO.Offset, cfg.VFO.Bandwidth, cfg.VFO.SampleRate)
	if err != nil {
		return nil, err
	}
	if err := r.build(cfg, bitDepth, env); err != nil {
		env.Path.RemoveVFO(name)
		return nil, err
	}
	r.log.WithFields(logrus.Fields{
		"mode": r.mode,
		"path": r.filename,
	}).Info("recorder created")
	return r, nil
}

func (r *Recorder) build(cfg config.Module, bitDepth int, env module.Env) error {
	sampleRate := cfg.VFO.SampleRate
	f, err := os.Create(r.filename)
	if err != nil {
		return fmt.Errorf("recorder: %w", err)
	}
	sr := int(math.Round(sampleRate))
	switch r.mode {
	case ModeIQ:
		r.sink, err = wav.NewIQSink(f, r.vfo.Out(), sr, bitDepth)
	case ModeFM:
		deviation, perr := strconv.ParseFloat(cfg.Option("deviation", "0"), 64)
		if perr != nil {
			f.Close()
			os.Remove(r.filename)
			return fmt.Errorf("recorder: deviation: %w", perr)
		}
		if deviation <= 0 {
			deviation = r.vfo.Bandwidth() / 2
		}
		d := demod.NewFM(r.vfo.Out(), sampleRate, deviation)
		r.demod = d
		r.sink, err = wav.NewAudioSink(f, d.Out(), sr, bitDepth)
	case ModeAM:
		d := demod.NewAM(r.vfo.Out())
		r.demod = d
		r.sink, err = wav.NewAudioSink(f, d.Out(), sr, bitDepth)
	}
	if err != nil {
		f.Close()
		os.Remove(r.filename)
		return err
	}
	r.sink.SetLogger(r.log)
	r.sink.SetMeter(env.Metric.Meter(r.name+".recorder", sampleRate))
	r.graph = sdr.NewGraph(r.sink)
	if r.demod != nil {
		r.demod.SetLogger(r.log)
		r.demod.SetMeter(env.Metric.Meter(r.name+".demod", sampleRate))
		r.graph = sdr.NewGraph(r.demod, r.sink)
	}
	return nil
}

// Start starts demodulator and file writer.
func (r *Recorder) Start() {
	r.graph.Start()
}

// Stop stops demodulator and file writer. VFO keeps running while the
// signal path runs, so recorder should be started again or closed.
func (r *Recorder) Stop() {
	r.graph.Stop()
}

// Close removes the VFO and finalizes the file. Repeated calls have no
// effect.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	var errs sdr.Errors
	if err := r.path.RemoveVFO(r.name); err != nil {
		errs = append(errs, err)
	}
	r.graph.Stop()
	if err := r.sink.Close(); err != nil {
		errs = append(errs, fmt.Errorf("recorder: close %s: %w", r.filename, err))
	}
	r.log.WithField("path", r.filename).Info("recording closed")
	return errs.Ret()
}

// Buffered returns number of samples between splitter and file.
func (r *Recorder) Buffered() int {
	n := r.vfo.Buffered()
	if r.demod != nil {
		n += r.demod.Buffered()
	}
	return n
}

// Mode returns recording mode.
func (r *Recorder) Mode() string {
	return r.mode
}

// Filename returns the path of recorded file.
func (r *Recorder) Filename() string {
	return r.filename
}

// VFO returns the recorded channel.
func (r *Recorder) VFO() *vfo.VFO {
	return r.vfo
}
