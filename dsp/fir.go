package dsp

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/window"
)

// MaxTaps limits the length of designed filters.
const MaxTaps = 1 << 17

// tapsFactor estimates the Nuttall windowed sinc length for a transition.
const tapsFactor = 3.8

var (
	// ErrTooManyTaps is returned when the filter is too long to compute.
	ErrTooManyTaps = errors.New("filter requires too many taps")
	// ErrInvalidFilter is returned for non-positive filter parameters.
	ErrInvalidFilter = errors.New("invalid filter parameters")
)

// LowPass describes a window-designed low-pass filter. Cutoff is the -6 dB
// point, Transition is the width of the transition band.
type LowPass struct {
	Cutoff     float64
	Transition float64
	SampleRate float64
	Gain       float64
}

// NumTaps returns the odd number of taps required by the filter.
func (lp LowPass) NumTaps() int {
	if lp.Transition <= 0 || lp.SampleRate <= 0 {
		return 0
	}
	n := int(tapsFactor * lp.SampleRate / lp.Transition)
	if n%2 == 0 {
		n++
	}
	return n
}

func (lp LowPass) validate() error {
	if lp.Cutoff <= 0 || lp.Transition <= 0 || lp.SampleRate <= 0 {
		return fmt.Errorf("%w: cutoff %v transition %v sample rate %v", ErrInvalidFilter, lp.Cutoff, lp.Transition, lp.SampleRate)
	}
	if lp.Cutoff > lp.SampleRate/2 {
		return fmt.Errorf("%w: cutoff %v above nyquist of %v", ErrInvalidFilter, lp.Cutoff, lp.SampleRate)
	}
	return nil
}

// Taps designs the filter as Nuttall windowed sinc. Taps are scaled so
// their sum equals Gain, zero gain means unity.
func (lp LowPass) Taps() ([]float64, error) {
	if err := lp.validate(); err != nil {
		return nil, err
	}
	n := lp.NumTaps()
	if n > MaxTaps {
		return nil, fmt.Errorf("%w: %d taps, limit %d", ErrTooManyTaps, n, MaxTaps)
	}
	gain := lp.Gain
	if gain == 0 {
		gain = 1
	}

	fc := lp.Cutoff / lp.SampleRate
	mid := float64(n-1) / 2
	taps := make([]float64, n)
	for i := range taps {
		x := float64(i) - mid
		if x == 0 {
			taps[i] = 2 * fc
			continue
		}
		taps[i] = math.Sin(2*math.Pi*fc*x) / (math.Pi * x)
	}
	if n > 1 {
		window.Nuttall(taps)
	}

	var sum float64
	for _, v := range taps {
		sum += v
	}
	for i := range taps {
		taps[i] *= gain / sum
	}
	return taps, nil
}
