// Package split provides a block that copies its input to multiple
// outputs.
package split

import (
	"io"

	"pipelined.dev/sdr"
	"pipelined.dev/sdr/stream"
)

// Splitter reads the input and writes the same batch to every output. A
// slow output holds back all others.
type Splitter[T any] struct {
	sdr.Worker
	in       stream.Reader[T]
	outputs  []*stream.Stream[T]
	capacity int
	batch    int

	// pending is the length of acquired input that wasn't delivered to
	// every output. Outputs before next already have it.
	pending int
	next    int
}

// New returns a splitter with outputs of DefaultCapacity.
func New[T any](in stream.Reader[T]) *Splitter[T] {
	return NewSize(in, sdr.DefaultCapacity)
}

// NewSize returns a splitter with outputs of provided capacity.
func NewSize[T any](in stream.Reader[T], capacity int) *Splitter[T] {
	s := &Splitter[T]{
		in:       in,
		capacity: capacity,
		batch:    min(sdr.DefaultBatch, capacity-1),
	}
	s.Init("splitter", s.run)
	if in != nil {
		s.RegisterInput(in)
	}
	return s
}

func (s *Splitter[T]) run() (int, error) {
	if s.in == nil {
		return 0, io.EOF
	}
	n := s.batch
	if s.pending > 0 {
		n = s.pending
	}
	data, err := s.in.Acquire(n)
	if err != nil {
		return 0, err
	}
	s.pending = len(data)
	for s.next < len(s.outputs) {
		if _, err := s.outputs[s.next].Write(data); err != nil {
			return 0, err
		}
		s.next++
	}
	s.in.Flush(len(data))
	s.pending, s.next = 0, 0
	return len(data), nil
}

// AddOutput creates a new output. Output receives data from the next
// batch.
func (s *Splitter[T]) AddOutput() stream.Reader[T] {
	out := stream.New[T](s.capacity)
	s.Reconfigure(func() error {
		if s.pending > 0 {
			// current batch is still being delivered, skip it for the new
			// output
			s.outputs = append(s.outputs[:s.next], append([]*stream.Stream[T]{out}, s.outputs[s.next:]...)...)
			s.next++
		} else {
			s.outputs = append(s.outputs, out)
		}
		s.RegisterOutput(out)
		return nil
	})
	return out
}

// RemoveOutput removes the output. It returns false if the output doesn't
// belong to the splitter. Consumer of the output must be stopped first.
func (s *Splitter[T]) RemoveOutput(r stream.Reader[T]) bool {
	var found bool
	s.Reconfigure(func() error {
		for i, out := range s.outputs {
			if stream.Reader[T](out) != r {
				continue
			}
			if i < s.next {
				s.next--
			}
			s.outputs = append(s.outputs[:i], s.outputs[i+1:]...)
			s.UnregisterOutput(out)
			found = true
			return nil
		}
		return nil
	})
	return found
}

// SetInput replaces the input. A batch that was partially delivered from
// the previous input is left unflushed in it.
func (s *Splitter[T]) SetInput(in stream.Reader[T]) {
	s.Reconfigure(func() error {
		if s.in != nil {
			s.UnregisterInput(s.in)
		}
		s.in = in
		if in != nil {
			s.RegisterInput(in)
		}
		s.pending, s.next = 0, 0
		return nil
	})
}

// Input returns the current input.
func (s *Splitter[T]) Input() stream.Reader[T] {
	var in stream.Reader[T]
	s.Locked(func() { in = s.in })
	return in
}

// Outputs returns the current outputs.
func (s *Splitter[T]) Outputs() []stream.Reader[T] {
	var outputs []stream.Reader[T]
	s.Locked(func() {
		for _, out := range s.outputs {
			outputs = append(outputs, out)
		}
	})
	return outputs
}
