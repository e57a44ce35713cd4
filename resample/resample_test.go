package resample_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/sdr/dsp"
	"pipelined.dev/sdr/mock"
	"pipelined.dev/sdr/resample"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func one(int) complex64 { return 1 }

func TestResampler(t *testing.T) {
	const total = 10000
	src := mock.NewSource(total, 777, one)
	r, err := resample.New(src.Out(), resample.Params{
		InRate:     200000,
		OutRate:    48000,
		Cutoff:     6250,
		Transition: 6250,
	})
	require.NoError(t, err)
	assert.Equal(t, 6, r.Interpolation())
	assert.Equal(t, 25, r.Decimation())
	assert.Equal(t, 729, r.TapCount())

	sink := mock.NewSink(r.Out())
	sink.Start()
	r.Start()
	src.Start()
	require.True(t, sink.WaitCount(total*6/25, 5*time.Second))
	src.Stop()
	r.Stop()
	sink.Stop()

	received := sink.Received()
	assert.Len(t, received, 2400)
	for _, v := range received[200:] {
		require.InDelta(t, 1, real(v), 1e-3)
	}
}

func TestSetParams(t *testing.T) {
	src := mock.NewSource(0, 100, one)
	r, err := resample.New(src.Out(), resample.Params{
		InRate:     200000,
		OutRate:    48000,
		Cutoff:     6250,
		Transition: 6250,
	})
	require.NoError(t, err)
	sink := mock.NewSink(r.Out())
	sink.Discard = true
	sink.Start()
	r.Start()
	src.Start()
	defer func() {
		src.Stop()
		r.Stop()
		sink.Stop()
	}()
	require.True(t, sink.WaitCount(1000, 5*time.Second))

	// plan that can't be computed keeps the current one without pausing
	err = r.SetParams(resample.Params{
		InRate:     2400000,
		OutRate:    48000,
		Cutoff:     50,
		Transition: 10,
	})
	assert.ErrorIs(t, err, dsp.ErrTooManyTaps)
	assert.EqualValues(t, 1, r.Stats().Starts)
	assert.Equal(t, 6, r.Interpolation())

	err = r.SetParams(resample.Params{
		InRate:     200000,
		OutRate:    12500,
		Cutoff:     6250,
		Transition: 6250,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, r.Stats().Starts)
	plan := r.Plan()
	assert.Equal(t, 1, plan.Interpolation)
	assert.Equal(t, 16, plan.Decimation)
	assert.Equal(t, 12500.0, plan.OutRate)

	_, err = resample.New(src.Out(), resample.Params{InRate: 0, OutRate: 1, Cutoff: 1, Transition: 1})
	assert.ErrorIs(t, err, dsp.ErrInvalidRate)
}
