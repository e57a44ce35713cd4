package sdr

import (
	"io"
	"sync/atomic"

	"pipelined.dev/sdr/stream"
)

const (
	// DefaultCapacity is a default physical capacity of block outputs.
	DefaultCapacity = 1 << 15
	// DefaultBatch is a default number of elements consumed per run.
	DefaultBatch = 1 << 12
)

// ProcessFunc transforms input samples and appends the result to out.
// It's always called from the worker goroutine.
type ProcessFunc[I, O any] func(in []I, out []O) []O

// Stage is a block with a single input and a single output. It reads
// input without copying and keeps processed, but not yet written output
// across pauses. Because of that, pausing and resuming a stage doesn't
// change its output.
type Stage[I, O any] struct {
	Worker
	in      stream.Reader[I]
	out     *stream.Stream[O]
	process ProcessFunc[I, O]
	batch   int
	buf     []O
	pending []O
	// held is the length of pending, readable by other goroutines.
	held atomic.Int64
}

// NewStage creates a stage with output of DefaultCapacity.
func NewStage[I, O any](name string, in stream.Reader[I], fn ProcessFunc[I, O]) *Stage[I, O] {
	return NewStageSize(name, in, DefaultCapacity, fn)
}

// NewStageSize creates a stage with output of provided capacity.
func NewStageSize[I, O any](name string, in stream.Reader[I], capacity int, fn ProcessFunc[I, O]) *Stage[I, O] {
	s := &Stage[I, O]{
		in:      in,
		out:     stream.New[O](capacity),
		process: fn,
		batch:   min(DefaultBatch, capacity-1),
	}
	s.Init(name, s.run)
	if in != nil {
		s.RegisterInput(in)
	}
	s.RegisterOutput(s.out)
	return s
}

func (s *Stage[I, O]) run() (int, error) {
	if s.in == nil {
		return 0, io.EOF
	}
	if err := s.drain(); err != nil {
		return 0, err
	}
	in, err := s.in.Acquire(s.batch)
	if err != nil {
		return 0, err
	}
	s.buf = s.process(in, s.buf[:0])
	s.pending = s.buf
	s.held.Store(int64(len(s.pending)))
	s.in.Flush(len(in))
	n := len(s.pending)
	if err := s.drain(); err != nil {
		return 0, err
	}
	return n, nil
}

// drain writes pending output in chunks that fit into the output.
func (s *Stage[I, O]) drain() error {
	for len(s.pending) > 0 {
		n := min(len(s.pending), s.out.MaxWrite())
		if _, err := s.out.Write(s.pending[:n]); err != nil {
			return err
		}
		s.pending = s.pending[n:]
		s.held.Add(-int64(n))
	}
	return nil
}

// Out returns the output of the stage.
func (s *Stage[I, O]) Out() stream.Reader[O] {
	return s.out
}

// Output returns the owned output stream of the stage.
func (s *Stage[I, O]) Output() *stream.Stream[O] {
	return s.out
}

// Input returns the current input of the stage.
func (s *Stage[I, O]) Input() stream.Reader[I] {
	return s.in
}

// SetInput replaces the input of the stage. The stage is paused while
// the input is replaced.
func (s *Stage[I, O]) SetInput(in stream.Reader[I]) {
	s.Reconfigure(func() error {
		s.setInput(in)
		return nil
	})
}

func (s *Stage[I, O]) setInput(in stream.Reader[I]) {
	if s.in != nil {
		s.UnregisterInput(s.in)
	}
	s.in = in
	if in != nil {
		s.RegisterInput(in)
	}
}

// SetBatch sets the maximum number of input elements consumed per run.
func (s *Stage[I, O]) SetBatch(n int) {
	if n < 1 {
		return
	}
	s.Reconfigure(func() error {
		s.batch = n
		return nil
	})
}

// Buffered returns number of processed elements that are not read from
// the output yet.
func (s *Stage[I, O]) Buffered() int {
	return s.out.Readable() + int(s.held.Load())
}
