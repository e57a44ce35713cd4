package demod_test

import (
	"math"
	"math/cmplx"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/sdr/demod"
	"pipelined.dev/sdr/mock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const sampleRate = 48000

func TestFM(t *testing.T) {
	const (
		total     = 10000
		deviation = 5000
	)
	// constant frequency offset equal to the deviation
	src := mock.NewSource(total, 1000, func(i int) complex64 {
		return complex64(cmplx.Exp(complex(0, 2*math.Pi*deviation*float64(i)/sampleRate)))
	})
	d := demod.NewFM(src.Out(), sampleRate, deviation)
	sink := mock.NewSink(d.Out())
	sink.Start()
	d.Start()
	src.Start()
	require.True(t, sink.WaitCount(total, 5*time.Second))
	src.Stop()
	d.Stop()
	sink.Stop()

	received := sink.Received()
	require.Len(t, received, total)
	for _, v := range received[1:] {
		require.InDelta(t, 1, v, 1e-3)
	}
}

func TestAM(t *testing.T) {
	const total = 50000
	// carrier of amplitude 1 modulated with 1 kHz tone at depth 0.5
	src := mock.NewSource(total, 1000, func(i int) complex64 {
		m := 1 + 0.5*math.Sin(2*math.Pi*1000*float64(i)/sampleRate)
		return complex64(complex(m, 0))
	})
	d := demod.NewAM(src.Out())
	sink := mock.NewSink(d.Out())
	sink.Start()
	d.Start()
	src.Start()
	require.True(t, sink.WaitCount(total, 5*time.Second))
	src.Stop()
	d.Stop()
	sink.Stop()

	received := sink.Received()
	var peak float32
	for _, v := range received[total-4800:] {
		peak = max(peak, v)
	}
	require.InDelta(t, 0.5, peak, 0.05)
}
