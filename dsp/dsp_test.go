package dsp_test

import (
	"math"
	"math/cmplx"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/sdr/dsp"
)

func TestRotator(t *testing.T) {
	const (
		freq       = 1000.0
		sampleRate = 48000.0
		n          = 1000000
	)
	r := dsp.NewRotator(freq, sampleRate)
	assert.Equal(t, complex128(1), r.Next())
	for i := 1; i < n; i++ {
		r.Next()
	}
	expected := cmplx.Exp(complex(0, 2*math.Pi*freq*n/sampleRate))
	assert.InDelta(t, 1, cmplx.Abs(r.Phase()), 1e-9)
	assert.Less(t, cmplx.Abs(r.Phase()-expected), 1e-6)

	// phase is kept on frequency change
	before := r.Phase()
	r.SetFrequency(-2000, sampleRate)
	assert.Equal(t, before, r.Phase())

	out := r.Mix(nil, []complex64{1, 1})
	require.Len(t, out, 2)
	step := complex128(out[1]) / complex128(out[0])
	assert.InDelta(t, -2*math.Pi*2000/sampleRate, cmplx.Phase(step), 1e-6)

	buf := make([]complex64, 4)
	r.Fill(buf, 0.5)
	for _, v := range buf {
		assert.InDelta(t, 0.5, cmplx.Abs(complex128(v)), 1e-6)
	}
}

func response(taps []float64, freq, sampleRate float64) float64 {
	var sum complex128
	for i, h := range taps {
		sum += complex(h, 0) * cmplx.Exp(complex(0, -2*math.Pi*freq*float64(i)/sampleRate))
	}
	return cmplx.Abs(sum)
}

func TestLowPass(t *testing.T) {
	lp := dsp.LowPass{Cutoff: 10000, Transition: 2000, SampleRate: 100000, Gain: 2}
	taps, err := lp.Taps()
	require.NoError(t, err)
	assert.Equal(t, 191, len(taps))
	assert.Equal(t, lp.NumTaps(), len(taps))

	var sum float64
	for i, h := range taps {
		sum += h
		assert.InDelta(t, h, taps[len(taps)-1-i], 1e-12)
	}
	assert.InDelta(t, 2, sum, 1e-9)
	assert.InDelta(t, 2, response(taps, 5000, lp.SampleRate), 0.01)
	assert.InDelta(t, 1, response(taps, lp.Cutoff, lp.SampleRate), 0.05)
	stop := response(taps, lp.Cutoff+2*lp.Transition, lp.SampleRate)
	assert.Less(t, 20*math.Log10(stop/2), -60.0)

	// unity gain by default
	lp.Gain = 0
	taps, err = lp.Taps()
	require.NoError(t, err)
	sum = 0
	for _, h := range taps {
		sum += h
	}
	assert.InDelta(t, 1, sum, 1e-9)
}

func TestLowPassErrors(t *testing.T) {
	tests := []struct {
		lp  dsp.LowPass
		err error
	}{
		{lp: dsp.LowPass{Cutoff: 0, Transition: 1, SampleRate: 10}, err: dsp.ErrInvalidFilter},
		{lp: dsp.LowPass{Cutoff: 1, Transition: -1, SampleRate: 10}, err: dsp.ErrInvalidFilter},
		{lp: dsp.LowPass{Cutoff: 6, Transition: 1, SampleRate: 10}, err: dsp.ErrInvalidFilter},
		{lp: dsp.LowPass{Cutoff: 50, Transition: 10, SampleRate: 2.4e6}, err: dsp.ErrTooManyTaps},
	}
	for _, test := range tests {
		_, err := test.lp.Taps()
		assert.ErrorIs(t, err, test.err)
	}
}

func TestRatio(t *testing.T) {
	tests := []struct {
		in, out float64
		interp  int
		decim   int
	}{
		{in: 200000, out: 48000, interp: 6, decim: 25},
		{in: 200000, out: 12500, interp: 1, decim: 16},
		{in: 48000, out: 44100, interp: 147, decim: 160},
		{in: 48000, out: 48000, interp: 1, decim: 1},
		{in: 8000, out: 48000, interp: 6, decim: 1},
	}
	for _, test := range tests {
		interp, decim, err := dsp.Ratio(test.in, test.out, 256)
		require.NoError(t, err)
		assert.Equal(t, test.interp, interp)
		assert.Equal(t, test.decim, decim)
	}

	// not reducible within the limit
	interp, decim, err := dsp.Ratio(1e6/3, 48000, 256)
	require.NoError(t, err)
	assert.LessOrEqual(t, interp, 256)
	assert.InEpsilon(t, 48000/(1e6/3), float64(interp)/float64(decim), 1e-3)

	interp, decim, err = dsp.Ratio(2400000, 48001, 64)
	require.NoError(t, err)
	assert.LessOrEqual(t, interp, 64)
	assert.InEpsilon(t, 48001.0/2400000, float64(interp)/float64(decim), 1e-3)

	_, _, err = dsp.Ratio(0, 48000, 256)
	assert.ErrorIs(t, err, dsp.ErrInvalidRate)
	_, _, err = dsp.Ratio(48000, -1, 256)
	assert.ErrorIs(t, err, dsp.ErrInvalidRate)
}

func newPolyphase(t *testing.T) *dsp.Polyphase {
	taps, err := dsp.LowPass{Cutoff: 24000, Transition: 24000, SampleRate: 1200000, Gain: 6}.Taps()
	require.NoError(t, err)
	return dsp.NewPolyphase(6, 25, taps)
}

func TestPolyphase(t *testing.T) {
	const total = 10000
	input := make([]complex64, total)
	for i := range input {
		input[i] = 1
	}

	r := newPolyphase(t)
	assert.Equal(t, 6, r.Interpolation())
	assert.Equal(t, 25, r.Decimation())
	whole := r.Process(nil, input)
	assert.Len(t, whole, total*6/25)
	for _, v := range whole[r.TapsPerPhase():] {
		require.InDelta(t, 1, real(v), 1e-3)
		require.InDelta(t, 0, imag(v), 1e-6)
	}

	// chunk boundaries don't change the output
	r.Reset()
	rnd := rand.New(rand.NewSource(1))
	var chunked []complex64
	for in := input; len(in) > 0; {
		n := min(len(in), 1+rnd.Intn(700))
		chunked = r.Process(chunked, in[:n])
		in = in[n:]
	}
	assert.Equal(t, whole, chunked)
	assert.LessOrEqual(t, len(r.Process(nil, input[:100])), r.OutputLen(100))
}

func TestSpectrum(t *testing.T) {
	const (
		size = 1024
		bin  = 64
	)
	s := dsp.NewSpectrum(size)
	assert.Equal(t, size, s.Size())
	src := make([]complex64, size)
	for i := range src {
		src[i] = complex64(cmplx.Exp(complex(0, 2*math.Pi*bin*float64(i)/size)))
	}
	power := s.Compute(nil, src)
	require.Len(t, power, size)
	assert.InDelta(t, 0, power[size/2+bin], 0.01)
	assert.Less(t, power[size/2-bin], float32(-80))
	assert.Less(t, power[size/2], float32(-80))

	// silence is reported at the floor
	power = s.Compute(power, make([]complex64, size))
	assert.Equal(t, float32(-200), power[0])
}
