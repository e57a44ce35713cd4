// Package mock provides mock blocks to test pipelines.
package mock

import (
	"io"
	"sync"
	"time"

	"pipelined.dev/sdr"
	"pipelined.dev/sdr/stream"
)

// Source writes Limit generated elements into its output and finishes.
// Zero limit means infinite source.
type Source[T any] struct {
	sdr.Worker
	out     *stream.Stream[T]
	limit   int
	value   func(i int) T
	batch   int
	sent    int // accessed by worker only
	pending []T
}

// NewSource returns a source that produces value(i) for i in [0, limit).
func NewSource[T any](limit, batch int, value func(i int) T) *Source[T] {
	s := &Source[T]{
		out:   stream.New[T](sdr.DefaultCapacity),
		limit: limit,
		value: value,
		batch: batch,
	}
	s.Init("mock.source", s.run)
	s.RegisterOutput(s.out)
	return s
}

func (s *Source[T]) run() (int, error) {
	if len(s.pending) == 0 {
		n := s.batch
		if s.limit > 0 {
			n = min(n, s.limit-s.sent)
		}
		if n == 0 {
			return 0, io.EOF
		}
		s.pending = make([]T, n)
		for i := range s.pending {
			s.pending[i] = s.value(s.sent + i)
		}
	}
	n, err := s.out.Write(s.pending)
	if err != nil {
		return 0, err
	}
	s.sent += n
	s.pending = nil
	return n, nil
}

// Out returns the output of the source.
func (s *Source[T]) Out() stream.Reader[T] {
	return s.out
}

// Output returns the owned output stream.
func (s *Source[T]) Output() *stream.Stream[T] {
	return s.out
}

// Sent returns number of elements written into output.
func (s *Source[T]) Sent() int {
	return int(s.out.Stats().Written)
}

// Sink consumes its input and records received elements.
type Sink[T any] struct {
	sdr.Worker
	in stream.Reader[T]

	// Discard drops received data, only count is kept.
	Discard bool

	mu    sync.Mutex
	data  []T
	count int
	buf   []T
}

// NewSink returns a sink that reads provided stream.
func NewSink[T any](in stream.Reader[T]) *Sink[T] {
	s := &Sink[T]{
		in:  in,
		buf: make([]T, sdr.DefaultBatch),
	}
	s.Init("mock.sink", s.run)
	s.RegisterInput(in)
	return s
}

func (s *Sink[T]) run() (int, error) {
	n, err := s.in.Read(s.buf)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	if !s.Discard {
		s.data = append(s.data, s.buf[:n]...)
	}
	s.count += n
	s.mu.Unlock()
	return n, nil
}

// Received returns a copy of received data.
func (s *Sink[T]) Received() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]T(nil), s.data...)
}

// Count returns number of received elements.
func (s *Sink[T]) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// WaitCount blocks until at least n elements are received or timeout
// expires. It returns true if elements were received.
func (s *Sink[T]) WaitCount(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.Count() >= n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return s.Count() >= n
}
