/*
Package stream provides the bounded sample stream that connects blocks.

A Stream is a single-producer single-consumer circular buffer. The writer
blocks while there is not enough free space, the reader blocks while there
is no data. This is the only flow control in the pipeline: a slow consumer
makes its producer wait, which propagates upstream.

One slot of the usable window is always kept empty, so at most
MaxLatency()-1 elements can be unread at any time.

Both sides can be interrupted with StopReader and StopWriter. Interrupted
calls return io.EOF. Stop flags are cleared with ClearReadStop and
ClearWriteStop, so the same stream can be reused after a block was paused.
*/
package stream

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrLatency is returned when the unread data doesn't fit into the
// requested window.
var ErrLatency = errors.New("unread data exceeds requested latency")

type (
	// ReadSide controls the reading end of a stream.
	ReadSide interface {
		StopReader()
		ClearReadStop()
	}

	// WriteSide controls the writing end of a stream.
	WriteSide interface {
		StopWriter()
		ClearWriteStop()
	}

	// Reader is a non-owning handle that downstream blocks use to consume
	// a stream. It doesn't allow writing.
	Reader[T any] interface {
		ReadSide
		Read([]T) (int, error)
		Acquire(max int) ([]T, error)
		Flush(n int)
		Readable() int
	}

	// Writer is the producing end of a stream.
	Writer[T any] interface {
		WriteSide
		Write([]T) (int, error)
		MaxWrite() int
	}

	// Stats holds total number of elements passed through the stream.
	Stats struct {
		Written uint64
		Read    uint64
	}
)

// Stream is a bounded single-producer single-consumer ring buffer.
type Stream[T any] struct {
	mu       sync.Mutex
	canRead  *sync.Cond
	canWrite *sync.Cond

	buf  []T
	size int // usable window, len(buf) is physical capacity
	r, w int

	readerStopped bool
	writerStopped bool
	acquired      int

	written  uint64
	consumed uint64
}

// New returns a stream with provided physical capacity. Capacity must be
// at least 2.
func New[T any](capacity int) *Stream[T] {
	if capacity < 2 {
		panic(fmt.Sprintf("stream: capacity %d is less than 2", capacity))
	}
	s := &Stream[T]{
		buf:  make([]T, capacity),
		size: capacity,
	}
	s.canRead = sync.NewCond(&s.mu)
	s.canWrite = sync.NewCond(&s.mu)
	return s
}

// Write blocks until len(p) elements can be written or writer is stopped.
// Writing more than MaxWrite elements is a wiring bug and causes a panic.
func (s *Stream[T]) Write(p []T) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(p) > s.size-1 {
		panic(fmt.Sprintf("stream: write of %d elements exceeds limit of %d", len(p), s.size-1))
	}
	for !s.writerStopped && s.writeable() < len(p) {
		s.canWrite.Wait()
	}
	if s.writerStopped {
		return 0, io.EOF
	}

	n := copy(s.buf[s.w:s.size], p)
	copy(s.buf, p[n:])
	s.w = (s.w + len(p)) % s.size
	s.written += uint64(len(p))
	s.canRead.Broadcast()
	return len(p), nil
}

// Read blocks until at least one element is available or reader is
// stopped. It copies up to len(p) elements.
func (s *Stream[T]) Read(p []T) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.waitData(); err != nil {
		return 0, err
	}

	n := min(len(p), s.readable())
	c := copy(p[:n], s.buf[s.r:s.size])
	copy(p[c:n], s.buf)
	s.advance(n)
	return n, nil
}

// Acquire blocks until at least one element is available or reader is
// stopped. It returns the contiguous segment of unread data which starts
// at the read cursor, at most max elements long. Returned slice remains
// valid until Flush is called. Repeated Acquire without Flush returns the
// same data again.
func (s *Stream[T]) Acquire(max int) ([]T, error) {
	if max <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.waitData(); err != nil {
		s.acquired = 0
		return nil, err
	}
	n := min(max, s.readable(), s.size-s.r)
	s.acquired = n
	return s.buf[s.r : s.r+n], nil
}

// Flush releases n elements returned by the last Acquire call.
func (s *Stream[T]) Flush(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 0 || n > s.acquired {
		panic(fmt.Sprintf("stream: flush of %d elements, but only %d acquired", n, s.acquired))
	}
	s.acquired = 0
	s.advance(n)
}

// waitData must be called with mutex held.
func (s *Stream[T]) waitData() error {
	for !s.readerStopped && s.readable() == 0 {
		s.canRead.Wait()
	}
	if s.readerStopped {
		return io.EOF
	}
	return nil
}

func (s *Stream[T]) advance(n int) {
	if n == 0 {
		return
	}
	s.r = (s.r + n) % s.size
	s.consumed += uint64(n)
	s.canWrite.Broadcast()
}

// StopReader interrupts current and following reads.
func (s *Stream[T]) StopReader() {
	s.mu.Lock()
	s.readerStopped = true
	s.mu.Unlock()
	s.canRead.Broadcast()
	s.canWrite.Broadcast()
}

// StopWriter interrupts current and following writes.
func (s *Stream[T]) StopWriter() {
	s.mu.Lock()
	s.writerStopped = true
	s.mu.Unlock()
	s.canRead.Broadcast()
	s.canWrite.Broadcast()
}

// ClearReadStop allows reads after StopReader.
func (s *Stream[T]) ClearReadStop() {
	s.mu.Lock()
	s.readerStopped = false
	s.mu.Unlock()
}

// ClearWriteStop allows writes after StopWriter.
func (s *Stream[T]) ClearWriteStop() {
	s.mu.Lock()
	s.writerStopped = false
	s.mu.Unlock()
}

// SetMaxLatency changes the usable window of the stream. It's only
// allowed while neither side is active. Unread data is kept.
func (s *Stream[T]) SetMaxLatency(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 2 || n > len(s.buf) {
		return fmt.Errorf("%w: %d is outside of [2, %d]", ErrLatency, n, len(s.buf))
	}
	if s.acquired > 0 {
		panic("stream: latency change while data is acquired")
	}
	unread := s.readable()
	if unread > n-1 {
		return fmt.Errorf("%w: %d unread, window %d", ErrLatency, unread, n)
	}
	// move unread data to the beginning of the buffer
	data := make([]T, unread)
	c := copy(data, s.buf[s.r:s.size])
	copy(data[c:], s.buf)
	copy(s.buf, data)
	s.r, s.w, s.size = 0, unread, n
	s.canWrite.Broadcast()
	return nil
}

// Readable returns number of unread elements.
func (s *Stream[T]) Readable() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readable()
}

// Writeable returns number of elements that can be written without
// blocking.
func (s *Stream[T]) Writeable() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeable()
}

// MaxWrite returns the largest write allowed for the stream.
func (s *Stream[T]) MaxWrite() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size - 1
}

// MaxLatency returns the usable window of the stream.
func (s *Stream[T]) MaxLatency() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Capacity returns physical capacity of the stream.
func (s *Stream[T]) Capacity() int {
	return len(s.buf)
}

// Stats returns stream counters.
func (s *Stream[T]) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Written: s.written,
		Read:    s.consumed,
	}
}

func (s *Stream[T]) readable() int {
	return (s.w - s.r + s.size) % s.size
}

func (s *Stream[T]) writeable() int {
	return s.size - 1 - s.readable()
}
