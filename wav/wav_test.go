package wav_test

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/sdr/mock"
	"pipelined.dev/sdr/wav"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	total      = 10000
	sampleRate = 48000
)

func iq(i int) complex64 {
	p := 2 * math.Pi * float64(i) / 100
	return complex(float32(0.5*math.Cos(p)), float32(0.5*math.Sin(p)))
}

func TestIQRoundTrip(t *testing.T) {
	for _, bitDepth := range []int{16, 32} {
		path := filepath.Join(t.TempDir(), "iq.wav")
		f, err := os.Create(path)
		require.NoError(t, err)

		src := mock.NewSource(total, 1000, iq)
		sink, err := wav.NewIQSink(f, src.Out(), sampleRate, bitDepth)
		require.NoError(t, err)
		sink.Start()
		src.Start()
		require.Eventually(t, func() bool {
			return sink.Stats().Samples == total
		}, 5*time.Second, time.Millisecond)
		src.Stop()
		sink.Stop()
		require.NoError(t, sink.Close())

		source, err := wav.Open(path)
		require.NoError(t, err)
		assert.Equal(t, sampleRate, source.SampleRate())
		received := mock.NewSink(source.Out())
		received.Start()
		source.Start()
		select {
		case <-source.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("source didn't finish")
		}
		require.True(t, received.WaitCount(total, 5*time.Second))
		source.Stop()
		received.Stop()
		require.NoError(t, source.Close())
		require.NoError(t, source.Err())

		for i, v := range received.Received() {
			require.InDelta(t, real(iq(i)), real(v), 1e-4)
			require.InDelta(t, imag(iq(i)), imag(v), 1e-4)
		}
	}
}

func TestAudioSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audio.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	src := mock.NewSource(total, 1000, func(i int) float32 {
		// values out of range are clipped
		return float32(2 * math.Sin(2*math.Pi*float64(i)/100))
	})
	sink, err := wav.NewAudioSink(f, src.Out(), sampleRate, 16)
	require.NoError(t, err)
	sink.Start()
	src.Start()
	require.Eventually(t, func() bool {
		return sink.Stats().Samples == total
	}, 5*time.Second, time.Millisecond)
	src.Stop()
	sink.Stop()
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	decoder := gowav.NewDecoder(bytes.NewReader(data))
	require.True(t, decoder.IsValidFile())
	assert.EqualValues(t, 1, decoder.NumChans)
	assert.EqualValues(t, sampleRate, decoder.SampleRate)
	buf, err := decoder.FullPCMBuffer()
	require.NoError(t, err)
	require.Len(t, buf.Data, total)
	peak := 0
	for _, v := range buf.Data {
		peak = max(peak, v)
	}
	assert.Equal(t, math.MaxInt16, peak)
}

func TestInvalid(t *testing.T) {
	_, err := wav.NewSource(bytes.NewReader([]byte("not a wav file")))
	assert.ErrorIs(t, err, wav.ErrInvalidFile)

	// mono file is not IQ
	path := filepath.Join(t.TempDir(), "mono.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	e := gowav.NewEncoder(f, sampleRate, 16, 1, 1)
	require.NoError(t, e.Write(&audio.IntBuffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:   make([]int, 100),
	}))
	require.NoError(t, e.Close())
	require.NoError(t, f.Close())
	_, err = wav.Open(path)
	assert.ErrorIs(t, err, wav.ErrChannels)

	_, err = wav.Open(filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)

	src := mock.NewSource(1, 1, iq)
	_, err = wav.NewIQSink(nil, src.Out(), sampleRate, 24)
	assert.ErrorIs(t, err, wav.ErrUnsupportedBitDepth)
}
