package indicator

import (
	"math"

	talib "github.com/markcheno/go-talib"
)

// rollingMean returns the trailing arithmetic mean over window, None for the first window-1 bars.
func rollingMean(values []float64, window int) []Value {
	out := make([]Value, len(values))
	if window <= 0 || len(values) < window {
		return out
	}
	sma := talib.Sma(values, window)
	for i := window - 1; i < len(values); i++ {
		out[i] = Some(sma[i])
	}
	return out
}

// rollingSampleStd returns the trailing sample standard deviation (n-1 denominator).
// A window of one has no sample deviation.
func rollingSampleStd(values []float64, window int) []Value {
	out := make([]Value, len(values))
	if window < 2 || len(values) < window {
		return out
	}
	for i := window - 1; i < len(values); i++ {
		win := values[i-window+1 : i+1]
		mean := 0.0
		for _, v := range win {
			mean += v
		}
		mean /= float64(window)
		sq := 0.0
		for _, v := range win {
			d := v - mean
			sq += d * d
		}
		out[i] = Some(math.Sqrt(sq / float64(window-1)))
	}
	return out
}

// ema smooths values with alpha = 2/(span+1). The first defined input seeds the average;
// undefined inputs after the seed carry the previous average forward.
func ema(values []Value, span int) []Value {
	out := make([]Value, len(values))
	alpha := 2.0 / float64(span+1)
	var prev float64
	seeded := false
	for i, x := range values {
		v, ok := x.Get()
		switch {
		case ok && !seeded:
			prev = v
			seeded = true
		case ok:
			prev = alpha*v + (1-alpha)*prev
		}
		if seeded {
			out[i] = Some(prev)
		}
	}
	return out
}

func defined(values []float64) []Value {
	out := make([]Value, len(values))
	for i, v := range values {
		out[i] = Some(v)
	}
	return out
}
