package stream_test

import (
	"io"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/sdr/stream"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestBackpressureNoLoss(t *testing.T) {
	tests := []struct {
		capacity int
		total    int
		maxWrite int
		maxRead  int
	}{
		{capacity: 2, total: 1000, maxWrite: 1, maxRead: 1},
		{capacity: 3, total: 5000, maxWrite: 2, maxRead: 7},
		{capacity: 16, total: 100000, maxWrite: 15, maxRead: 4},
		{capacity: 1024, total: 100000, maxWrite: 1000, maxRead: 3000},
	}
	for _, test := range tests {
		s := stream.New[int](test.capacity)
		rnd := rand.New(rand.NewSource(int64(test.capacity)))
		writes := make([]int, 0)
		for left := test.total; left > 0; {
			n := min(left, 1+rnd.Intn(test.maxWrite))
			writes = append(writes, n)
			left -= n
		}

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := 0
			for _, n := range writes {
				p := make([]int, n)
				for i := range p {
					p[i] = v
					v++
				}
				written, err := s.Write(p)
				assert.NoError(t, err)
				assert.Equal(t, n, written)
			}
		}()

		received := 0
		buf := make([]int, test.maxRead)
		for received < test.total {
			var (
				n   int
				err error
			)
			// alternate between copy and zero-copy reads
			if received%2 == 0 {
				n, err = s.Read(buf[:1+rnd.Intn(test.maxRead)])
				require.NoError(t, err)
				for i := 0; i < n; i++ {
					require.Equal(t, received+i, buf[i])
				}
			} else {
				data, err := s.Acquire(1 + rnd.Intn(test.maxRead))
				require.NoError(t, err)
				for i := range data {
					require.Equal(t, received+i, data[i])
				}
				n = len(data)
				s.Flush(n)
			}
			received += n
		}
		wg.Wait()
		assert.Equal(t, test.total, received)
		assert.Equal(t, stream.Stats{Written: uint64(test.total), Read: uint64(test.total)}, s.Stats())
		assert.Equal(t, 0, s.Readable())
	}
}

// Stops are per side: StopWriter wakes a blocked Write, StopReader wakes a
// blocked Read. A stopped writer doesn't end its reader, so a paused
// producer never terminates the consumer.
func TestStopWakesBlocked(t *testing.T) {
	for _, capacity := range []int{2, 3, 64} {
		s := stream.New[float32](capacity)

		readErr := make(chan error)
		go func() {
			_, err := s.Read(make([]float32, 1))
			readErr <- err
		}()
		s.StopReader()
		select {
		case err := <-readErr:
			assert.Equal(t, io.EOF, err)
		case <-time.After(time.Second):
			t.Fatalf("reader wasn't woken up for capacity %d", capacity)
		}
		// idempotent
		s.StopReader()
		_, err := s.Acquire(1)
		assert.Equal(t, io.EOF, err)

		// fill the stream, next write blocks
		_, err = s.Write(make([]float32, capacity-1))
		require.NoError(t, err)
		writeErr := make(chan error)
		go func() {
			_, err := s.Write(make([]float32, 1))
			writeErr <- err
		}()
		s.StopWriter()
		s.StopWriter()
		select {
		case err := <-writeErr:
			assert.Equal(t, io.EOF, err)
		case <-time.After(time.Second):
			t.Fatalf("writer wasn't woken up for capacity %d", capacity)
		}
	}
}

func TestStopIsPerSide(t *testing.T) {
	s := stream.New[int](4)
	s.StopWriter()
	_, err := s.Write([]int{1})
	assert.Equal(t, io.EOF, err)

	// reader side is not affected by writer stop
	s.ClearWriteStop()
	_, err = s.Write([]int{1, 2})
	require.NoError(t, err)
	s.StopWriter()
	buf := make([]int, 4)
	n, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, buf[:n])
}

func TestClearStop(t *testing.T) {
	s := stream.New[int](4)
	s.StopReader()
	s.StopWriter()
	s.ClearReadStop()
	s.ClearWriteStop()

	n, err := s.Write([]int{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	buf := make([]int, 3)
	n, err = s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, buf[:n])
}

func TestCapacityInvariant(t *testing.T) {
	s := stream.New[int](8)
	assert.Equal(t, 7, s.MaxWrite())
	assert.Equal(t, 7, s.Writeable())
	check := func() {
		assert.Equal(t, s.MaxLatency()-1, s.Readable()+s.Writeable())
	}
	check()
	for i := 0; i < 20; i++ {
		_, err := s.Write(make([]int, 1+i%7))
		require.NoError(t, err)
		check()
		_, err = s.Read(make([]int, 1+i%7))
		require.NoError(t, err)
		check()
	}
	_, err := s.Write(make([]int, 7))
	require.NoError(t, err)
	assert.Equal(t, 0, s.Writeable())
	check()
}

func TestContractViolations(t *testing.T) {
	s := stream.New[int](4)
	n, err := s.Write(nil)
	assert.NoError(t, err)
	assert.Zero(t, n)
	n, err = s.Read(nil)
	assert.NoError(t, err)
	assert.Zero(t, n)

	assert.Panics(t, func() { s.Write(make([]int, 4)) })
	assert.Panics(t, func() { s.Flush(1) })
	_, err = s.Write([]int{1, 2})
	require.NoError(t, err)
	_, err = s.Acquire(2)
	require.NoError(t, err)
	// negative flush would replay read data
	assert.Panics(t, func() { s.Flush(-1) })
	assert.Panics(t, func() { stream.New[int](1) })
}

func TestAcquireWraparound(t *testing.T) {
	s := stream.New[int](5)
	_, err := s.Write([]int{1, 2, 3})
	require.NoError(t, err)
	_, err = s.Read(make([]int, 3))
	require.NoError(t, err)

	// cursor is at 3, data wraps around the end of the buffer
	_, err = s.Write([]int{4, 5, 6, 7})
	require.NoError(t, err)

	data, err := s.Acquire(10)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 5}, data)
	// acquire without flush returns the same view
	data, err = s.Acquire(10)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 5}, data)
	s.Flush(len(data))

	data, err = s.Acquire(10)
	require.NoError(t, err)
	assert.Equal(t, []int{6, 7}, data)
	s.Flush(1)
	assert.Equal(t, 1, s.Readable())
}

func TestSetMaxLatency(t *testing.T) {
	s := stream.New[int](8)
	_, err := s.Write([]int{1, 2, 3, 4, 5})
	require.NoError(t, err)
	_, err = s.Read(make([]int, 4))
	require.NoError(t, err)
	_, err = s.Write([]int{6, 7, 8, 9})
	require.NoError(t, err)

	err = s.SetMaxLatency(4)
	assert.ErrorIs(t, err, stream.ErrLatency)
	err = s.SetMaxLatency(9)
	assert.ErrorIs(t, err, stream.ErrLatency)

	require.NoError(t, s.SetMaxLatency(6))
	assert.Equal(t, 6, s.MaxLatency())
	assert.Equal(t, 8, s.Capacity())
	assert.Equal(t, 5, s.MaxWrite())
	assert.Equal(t, 0, s.Writeable())

	buf := make([]int, 8)
	n, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 6, 7, 8, 9}, buf[:n])

	// window can't change while data is acquired
	_, err = s.Write([]int{10})
	require.NoError(t, err)
	data, err := s.Acquire(1)
	require.NoError(t, err)
	assert.Equal(t, []int{10}, data)
	assert.Panics(t, func() { s.SetMaxLatency(4) })
	s.Flush(len(data))
	assert.Equal(t, 0, s.Readable())
	require.NoError(t, s.SetMaxLatency(8))
	assert.Equal(t, 7, s.MaxWrite())
}
