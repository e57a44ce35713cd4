package sdr

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"pipelined.dev/sdr/log"
	"pipelined.dev/sdr/metric"
	"pipelined.dev/sdr/stream"
)

type (
	// Block is a pipeline stage that runs on its own goroutine.
	Block interface {
		Start()
		Stop()
		TempStop()
		TempStart()
	}

	// RunFunc executes a single step of the block. It returns the number
	// of processed elements. Zero is a valid result that means there was
	// nothing to do. io.EOF is returned when any of streams reported
	// shutdown. Any other error stops the worker and is recorded.
	RunFunc func() (int, error)

	// WorkerStats contains worker counters.
	WorkerStats struct {
		Starts  uint64
		Runs    uint64
		Samples uint64
	}
)

// Worker implements the block lifecycle. It's embedded by concrete blocks
// which provide the run function and register their streams.
//
// Inputs are borrowed: the worker only stops and clears the reader side of
// them. Outputs are owned: the worker stops and clears the writer side.
type Worker struct {
	id   string
	name string
	run  RunFunc

	// ctrl is held by reconfiguration, never across stream calls made by
	// the worker goroutine.
	ctrl sync.Mutex
	// lifecycle guards fields below.
	lifecycle   sync.Mutex
	inputs      []stream.ReadSide
	outputs     []stream.WriteSide
	initialized bool
	running     bool
	tempStopped bool
	done        chan struct{}

	errMu sync.Mutex
	err   error

	starts  atomic.Uint64
	runs    atomic.Uint64
	samples atomic.Uint64

	log   logrus.FieldLogger
	meter *metric.Meter
}

var defaultLogger = log.GetLogger()

// Init sets name and run function of the block. Calling it twice is a
// wiring bug and causes a panic.
func (w *Worker) Init(name string, run RunFunc) {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()
	if w.initialized {
		panic(fmt.Sprintf("block %s: already initialized", w.name))
	}
	w.id = xid.New().String()
	w.name = name
	w.run = run
	if w.log == nil {
		w.log = log.Block(defaultLogger, name, w.id)
	}
	w.initialized = true
}

// RegisterInput adds the stream to the list of inputs that are stopped
// when the block stops.
func (w *Worker) RegisterInput(in stream.ReadSide) {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()
	for i := range w.inputs {
		if w.inputs[i] == in {
			panic(fmt.Sprintf("block %s: input registered twice", w.name))
		}
	}
	w.inputs = append(w.inputs, in)
}

// UnregisterInput removes the stream from the inputs.
func (w *Worker) UnregisterInput(in stream.ReadSide) {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()
	for i := range w.inputs {
		if w.inputs[i] == in {
			w.inputs = append(w.inputs[:i], w.inputs[i+1:]...)
			return
		}
	}
}

// RegisterOutput adds the stream to the list of outputs that are stopped
// when the block stops.
func (w *Worker) RegisterOutput(out stream.WriteSide) {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()
	for i := range w.outputs {
		if w.outputs[i] == out {
			panic(fmt.Sprintf("block %s: output registered twice", w.name))
		}
	}
	w.outputs = append(w.outputs, out)
}

// UnregisterOutput removes the stream from the outputs.
func (w *Worker) UnregisterOutput(out stream.WriteSide) {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()
	for i := range w.outputs {
		if w.outputs[i] == out {
			w.outputs = append(w.outputs[:i], w.outputs[i+1:]...)
			return
		}
	}
}

// Start spawns the worker goroutine. Starting a running block has no
// effect.
func (w *Worker) Start() {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()
	if !w.initialized {
		panic("block: start before init")
	}
	w.tempStopped = false
	w.start()
}

// Stop interrupts all streams of the block, waits for the worker to exit
// and clears stop flags, so the block can be started again. Stopping a
// block that isn't running has no effect.
func (w *Worker) Stop() {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()
	w.tempStopped = false
	w.stop()
}

// TempStop pauses the worker, so the block can be rewired.
func (w *Worker) TempStop() {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()
	if !w.running || w.tempStopped {
		return
	}
	w.stop()
	w.tempStopped = true
}

// TempStart resumes the worker paused by TempStop.
func (w *Worker) TempStart() {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()
	if !w.tempStopped {
		return
	}
	w.tempStopped = false
	w.start()
}

func (w *Worker) start() {
	if w.running {
		return
	}
	w.done = make(chan struct{})
	w.setErr(nil)
	w.running = true
	w.starts.Add(1)
	w.meter.Start()
	go w.loop(w.run, w.done, w.log, w.meter)
	w.log.Debug("started")
}

func (w *Worker) stop() {
	if !w.running {
		return
	}
	for _, in := range w.inputs {
		in.StopReader()
	}
	for _, out := range w.outputs {
		out.StopWriter()
	}
	<-w.done
	for _, in := range w.inputs {
		in.ClearReadStop()
	}
	for _, out := range w.outputs {
		out.ClearWriteStop()
	}
	w.running = false
	w.log.Debug("stopped")
}

func (w *Worker) loop(run RunFunc, done chan struct{}, l logrus.FieldLogger, meter *metric.Meter) {
	defer close(done)
	for {
		n, err := run()
		if err != nil {
			if err != io.EOF {
				w.setErr(err)
				l.WithError(err).Error("run failed")
			}
			return
		}
		w.runs.Add(1)
		w.samples.Add(uint64(n))
		meter.Run(n)
	}
}

func (w *Worker) setErr(err error) {
	w.errMu.Lock()
	w.err = err
	w.errMu.Unlock()
}

// Done returns a channel that's closed when the current worker goroutine
// exits. It returns nil if the block was never started.
func (w *Worker) Done() <-chan struct{} {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()
	return w.done
}

// Err returns the error that stopped the last worker run.
func (w *Worker) Err() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}

// Running returns true if the block was started and not stopped. A paused
// block is not running.
func (w *Worker) Running() bool {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()
	return w.running
}

// ID returns unique id of the block.
func (w *Worker) ID() string {
	return w.id
}

// Name returns name of the block.
func (w *Worker) Name() string {
	return w.name
}

// Stats returns worker counters.
func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		Starts:  w.starts.Load(),
		Runs:    w.runs.Load(),
		Samples: w.samples.Load(),
	}
}

// SetLogger replaces the logger of the block.
func (w *Worker) SetLogger(l logrus.FieldLogger) {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()
	w.log = log.Block(l, w.name, w.id)
}

// Logger returns the logger of the block.
func (w *Worker) Logger() logrus.FieldLogger {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()
	return w.log
}

// SetMeter sets meter that captures block counters. Must be called while
// the block is not running.
func (w *Worker) SetMeter(m *metric.Meter) {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()
	if w.running {
		panic(fmt.Sprintf("block %s: meter change while running", w.name))
	}
	w.meter = m
}
