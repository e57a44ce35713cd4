package dsp

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidRate is returned for non-positive sample rates.
var ErrInvalidRate = errors.New("invalid sample rate")

// Ratio returns interpolation and decimation factors that convert in rate
// to out rate. Integral rates are reduced exactly. Otherwise, or when the
// exact interpolation exceeds maxInterp, the closest continued fraction
// approximation with interpolation not above maxInterp is returned.
func Ratio(in, out float64, maxInterp int) (interp, decim int, err error) {
	if in <= 0 || out <= 0 || math.IsInf(in, 0) || math.IsInf(out, 0) {
		return 0, 0, fmt.Errorf("%w: %v to %v", ErrInvalidRate, in, out)
	}
	if maxInterp < 1 {
		maxInterp = 1
	}
	if in == math.Trunc(in) && out == math.Trunc(out) && in < math.MaxInt32 && out < math.MaxInt32 {
		i, o := int(in), int(out)
		g := gcd(i, o)
		if o/g <= maxInterp {
			return o / g, i / g, nil
		}
	}
	interp, decim = approximate(out/in, maxInterp)
	return interp, decim, nil
}

// approximate returns the last convergent of x with numerator not above
// limit.
func approximate(x float64, limit int) (int, int) {
	ratio := x
	h0, h1 := 0, 1
	k0, k1 := 1, 0
	for i := 0; i < 64; i++ {
		a := math.Floor(x)
		if a > float64(math.MaxInt32) {
			break
		}
		h2 := int(a)*h1 + h0
		k2 := int(a)*k1 + k0
		if h2 > limit || k2 > math.MaxInt32 {
			break
		}
		h0, h1, k0, k1 = h1, h2, k1, k2
		frac := x - a
		if frac < 1e-12 {
			break
		}
		x = 1 / frac
	}
	if k1 == 0 {
		// ratio exceeds the limit
		return limit, 1
	}
	if h1 == 0 {
		// ratio is too small to be represented
		return 1, int(math.Min(math.Round(1/ratio), math.MaxInt32))
	}
	return h1, k1
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
