package indicator

import (
	"math"

	"breakoutwatch/internal/market"
)

type directional struct {
	upMove   []Value
	downMove []Value
	plusDM   []Value
	minusDM  []Value
	tr       []Value
	plusDI   []Value
	minusDI  []Value
	dx       []Value
	adx      []Value
}

// directionalMovement computes DM, TR, DI, DX and ADX with exponential smoothing over period.
func directionalMovement(series market.Series, period int) directional {
	n := len(series)
	d := directional{
		upMove:   make([]Value, n),
		downMove: make([]Value, n),
		plusDM:   make([]Value, n),
		minusDM:  make([]Value, n),
		tr:       make([]Value, n),
		plusDI:   make([]Value, n),
		minusDI:  make([]Value, n),
		dx:       make([]Value, n),
	}

	for i, bar := range series {
		if i == 0 {
			// no previous bar: moves are undefined, directional movement is zero
			d.plusDM[i] = Some(0)
			d.minusDM[i] = Some(0)
			d.tr[i] = Some(bar.High - bar.Low)
			continue
		}
		prev := series[i-1]
		up := bar.High - prev.High
		down := prev.Low - bar.Low
		d.upMove[i] = Some(up)
		d.downMove[i] = Some(down)

		plus, minus := 0.0, 0.0
		if up > down && up > 0 {
			plus = up
		}
		if down > up && down > 0 {
			minus = down
		}
		d.plusDM[i] = Some(plus)
		d.minusDM[i] = Some(minus)

		tr := math.Max(bar.High-bar.Low, math.Max(math.Abs(bar.High-prev.Close), math.Abs(bar.Low-prev.Close)))
		d.tr[i] = Some(tr)
	}

	smoothedPlus := ema(d.plusDM, period)
	smoothedMinus := ema(d.minusDM, period)
	smoothedTR := ema(d.tr, period)

	for i := 0; i < n; i++ {
		d.plusDI[i] = ratio(smoothedPlus[i], smoothedTR[i])
		d.minusDI[i] = ratio(smoothedMinus[i], smoothedTR[i])
		// no directional movement at all leaves DX undefined rather than zero
		d.dx[i] = ratio(absValue(sub(d.plusDI[i], d.minusDI[i])), add(d.plusDI[i], d.minusDI[i]))
	}
	d.adx = ema(d.dx, period)
	return d
}

func absValue(x Value) Value {
	v, ok := x.Get()
	if !ok {
		return None
	}
	return Some(math.Abs(v))
}
