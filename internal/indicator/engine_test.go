package indicator

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"
	"time"

	"breakoutwatch/internal/market"
)

const eps = 1e-9

func makeSeries(closes ...float64) market.Series {
	base := time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC)
	series := make(market.Series, len(closes))
	for i, c := range closes {
		series[i] = market.Bar{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      c,
			High:      c * 1.01,
			Low:       c * 0.99,
			Close:     c,
			Volume:    1000 + int64(i),
		}
	}
	return series
}

func wavySeries(n int) market.Series {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + 5*math.Sin(float64(i)/3) + float64(i%7)*0.4
	}
	series := makeSeries(closes...)
	for i := range series {
		series[i].High += float64(i%3) * 0.7
		series[i].Low -= float64(i%4) * 0.5
	}
	return series
}

func smallConfig() Config {
	return Config{
		MAFast:          3,
		MASlow:          5,
		BollingerPeriod: 4,
		BollingerStdDev: 2,
		MACDFast:        3,
		MACDSlow:        6,
		MACDSignal:      3,
		ADXPeriod:       5,
	}
}

func TestCompute_MovingAverageWindow(t *testing.T) {
	series := wavySeries(30)
	for _, window := range []int{1, 2, 5, 13, 30} {
		cfg := smallConfig()
		cfg.MAFast = window
		out, err := Compute(series, cfg)
		if err != nil {
			t.Fatalf("window %d: unexpected error: %v", window, err)
		}
		for i, bar := range out {
			v, ok := bar.MAFast.Get()
			if i < window-1 {
				if ok {
					t.Fatalf("window %d index %d: expected undefined, got %v", window, i, v)
				}
				continue
			}
			if !ok {
				t.Fatalf("window %d index %d: expected a value", window, i)
			}
			sum := 0.0
			for j := i - window + 1; j <= i; j++ {
				sum += series[j].Close
			}
			if math.Abs(v-sum/float64(window)) > eps {
				t.Errorf("window %d index %d: expected %.6f, got %.6f", window, i, sum/float64(window), v)
			}
		}
	}
}

func TestCompute_WindowLongerThanSeries(t *testing.T) {
	cfg := smallConfig()
	cfg.MASlow = 50
	out, err := Compute(wavySeries(10), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, bar := range out {
		if bar.MASlow.Valid() {
			t.Fatalf("index %d: MA_Slow should be undefined", i)
		}
	}
}

func TestCompute_BollingerSampleStd(t *testing.T) {
	cfg := smallConfig()
	cfg.BollingerPeriod = 4
	cfg.BollingerStdDev = 1
	out, err := Compute(makeSeries(1, 2, 3, 4), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	last := out[3]
	mid, _ := last.BBMid.Get()
	upper, _ := last.BBUpper.Get()
	wantStd := math.Sqrt(5.0 / 3.0)
	if math.Abs(mid-2.5) > eps {
		t.Fatalf("expected mid 2.5, got %v", mid)
	}
	if math.Abs(upper-(2.5+wantStd)) > eps {
		t.Fatalf("expected upper %.6f, got %.6f", 2.5+wantStd, upper)
	}
	if out[2].BBUpper.Valid() {
		t.Fatal("bands must be undefined before the window fills")
	}
}

func TestCompute_BollingerOrdering(t *testing.T) {
	out, err := Compute(wavySeries(60), DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, bar := range out {
		upper, okU := bar.BBUpper.Get()
		mid, okM := bar.BBMid.Get()
		lower, okL := bar.BBLower.Get()
		if okU != okL || (okU && !okM) {
			t.Fatalf("index %d: inconsistent band definedness", i)
		}
		if !okU {
			continue
		}
		if !(upper >= mid && mid >= lower) {
			t.Fatalf("index %d: expected upper >= mid >= lower, got %v %v %v", i, upper, mid, lower)
		}
	}
}

func TestCompute_BollingerWindowOneUndefined(t *testing.T) {
	cfg := smallConfig()
	cfg.BollingerPeriod = 1
	out, err := Compute(wavySeries(5), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, bar := range out {
		if !bar.BBMid.Valid() {
			t.Fatalf("index %d: mid should be defined for window 1", i)
		}
		if bar.BBUpper.Valid() || bar.BBLower.Valid() {
			t.Fatalf("index %d: bands need a sample deviation", i)
		}
	}
}

func TestEMA_SeedsFromFirstObservation(t *testing.T) {
	got := ema(defined([]float64{1, 2, 3}), 3)
	want := []float64{1, 1.5, 2.25}
	for i, w := range want {
		v, ok := got[i].Get()
		if !ok || math.Abs(v-w) > eps {
			t.Fatalf("index %d: expected %v, got %v", i, w, got[i])
		}
	}
}

func TestEMA_CarriesAcrossUndefined(t *testing.T) {
	got := ema([]Value{None, Some(4), None, Some(8)}, 3)
	if got[0].Valid() {
		t.Fatal("leading undefined input must stay undefined")
	}
	checks := map[int]float64{1: 4, 2: 4, 3: 6}
	for idx, w := range checks {
		v, ok := got[idx].Get()
		if !ok || math.Abs(v-w) > eps {
			t.Fatalf("index %d: expected %v, got %v", idx, w, got[idx])
		}
	}
}

func TestCompute_MACDHistogram(t *testing.T) {
	out, err := Compute(wavySeries(80), DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, bar := range out {
		macd, ok1 := bar.MACD.Get()
		signal, ok2 := bar.MACDSignal.Get()
		hist, ok3 := bar.MACDHist.Get()
		if !ok1 || !ok2 || !ok3 {
			t.Fatalf("index %d: MACD values seed from the first bar and must be defined", i)
		}
		if hist != macd-signal {
			t.Fatalf("index %d: hist %v != macd %v - signal %v", i, hist, macd, signal)
		}
	}
	if v, _ := out[0].MACD.Get(); v != 0 {
		t.Fatalf("first MACD must be zero because both EMAs seed from the same close, got %v", v)
	}
}

func TestCompute_ADXBounded(t *testing.T) {
	out, err := Compute(wavySeries(120), DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seen := false
	for i, bar := range out {
		for name, di := range map[string]Value{"+DI": bar.PlusDI, "-DI": bar.MinusDI} {
			if v, ok := di.Get(); ok && (v < 0 || v > 100) {
				t.Fatalf("index %d: %s %v out of [0,100]", i, name, v)
			}
		}
		adx, ok := bar.ADX.Get()
		if !ok {
			continue
		}
		seen = true
		if adx < 0 || adx > 100 {
			t.Fatalf("index %d: ADX %v out of [0,100]", i, adx)
		}
	}
	if !seen {
		t.Fatal("expected ADX to be defined somewhere on a trending series")
	}
}

func TestCompute_FirstBarDiffsUndefined(t *testing.T) {
	out, err := Compute(wavySeries(10), DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := out[0]
	if first.UpMove.Valid() || first.DownMove.Valid() {
		t.Fatal("first bar has no previous bar; moves must be undefined")
	}
	for name, dm := range map[string]Value{"+DM": first.PlusDM, "-DM": first.MinusDM} {
		if v, ok := dm.Get(); !ok || v != 0 {
			t.Fatalf("first %s should be a defined zero, got %v", name, dm)
		}
	}
	if tr, ok := first.TR.Get(); !ok || math.Abs(tr-(first.High-first.Low)) > eps {
		t.Fatalf("first TR should be the bar range, got %v", first.TR)
	}
	if !out[1].UpMove.Valid() {
		t.Fatal("second bar diffs must be defined")
	}
}

// Reference values follow exponential smoothing with alpha = 2/(period+1) seeded on bar 0
// for DM and TR alike. Period 2 gives alpha = 2/3.
func TestCompute_DirectionalIndexReferenceValues(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC)
	series := market.Series{
		{Timestamp: base, Open: 100, High: 101, Low: 99, Close: 100},
		{Timestamp: base.Add(time.Minute), Open: 101, High: 104, Low: 100, Close: 103},
		{Timestamp: base.Add(2 * time.Minute), Open: 102, High: 103, Low: 96, Close: 97},
		{Timestamp: base.Add(3 * time.Minute), Open: 98, High: 106, Low: 97, Close: 105},
	}
	cfg := smallConfig()
	cfg.ADXPeriod = 2
	out, err := Compute(series, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	const tol = 1e-6
	expect := func(name string, got Value, want float64) {
		t.Helper()
		v, ok := got.Get()
		if !ok || math.Abs(v-want) > tol {
			t.Fatalf("%s: expected %v, got %v", name, want, got)
		}
	}

	// smoothed +DM: 0, 2, 2/3, 20/9; -DM: 0, 0, 8/3, 8/9; TR: 2, 10/3, 52/9, 214/27
	wantPlusDI := []float64{0, 60, 1500.0 / 130, 3000.0 / 107}
	wantMinusDI := []float64{0, 0, 6000.0 / 130, 1200.0 / 107}
	for i := range series {
		expect(fmt.Sprintf("+DI[%d]", i), out[i].PlusDI, wantPlusDI[i])
		expect(fmt.Sprintf("-DI[%d]", i), out[i].MinusDI, wantMinusDI[i])
	}

	if out[0].DX.Valid() || out[0].ADX.Valid() {
		t.Fatal("bar 0 has no directional movement; DX and ADX must be undefined")
	}
	expect("DX[1]", out[1].DX, 100)
	expect("DX[2]", out[2].DX, 60)
	expect("DX[3]", out[3].DX, 300.0/7)
	expect("ADX[1]", out[1].ADX, 100)
	expect("ADX[2]", out[2].ADX, 220.0/3)
	expect("ADX[3]", out[3].ADX, 3340.0/63)
}

func TestCompute_GapUpKeepsDIWithinRange(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC)
	series := market.Series{
		{Timestamp: base, Open: 100, High: 100, Low: 100, Close: 100},
		{Timestamp: base.Add(time.Minute), Open: 109.5, High: 110, Low: 109, Close: 110},
	}
	out, err := Compute(series, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0].PlusDI.Valid() {
		t.Fatal("zero range on bar 0 leaves DI undefined")
	}
	if di, ok := out[1].PlusDI.Get(); !ok || math.Abs(di-100) > 1e-9 {
		t.Fatalf("+DI after a pure gap up should be 100, got %v", out[1].PlusDI)
	}
	if di, ok := out[1].MinusDI.Get(); !ok || di != 0 {
		t.Fatalf("-DI after a pure gap up should be 0, got %v", out[1].MinusDI)
	}
}

func TestCompute_DirectionalMovementRules(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC)
	series := market.Series{
		{Timestamp: base, Open: 100, High: 101, Low: 99, Close: 100},
		{Timestamp: base.Add(time.Minute), Open: 101, High: 104, Low: 100, Close: 103},
		{Timestamp: base.Add(2 * time.Minute), Open: 102, High: 103, Low: 96, Close: 97},
	}
	out, err := Compute(series, smallConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expect := func(name string, got Value, want float64) {
		t.Helper()
		v, ok := got.Get()
		if !ok || math.Abs(v-want) > eps {
			t.Fatalf("%s: expected %v, got %v", name, want, got)
		}
	}
	// bar 1: up = 3, down = -1
	expect("up[1]", out[1].UpMove, 3)
	expect("down[1]", out[1].DownMove, -1)
	expect("+DM[1]", out[1].PlusDM, 3)
	expect("-DM[1]", out[1].MinusDM, 0)
	expect("TR[1]", out[1].TR, 4)
	// bar 2: up = -1, down = 4, TR = max(7, |103-103|, |96-103|) = 7
	expect("+DM[2]", out[2].PlusDM, 0)
	expect("-DM[2]", out[2].MinusDM, 4)
	expect("TR[2]", out[2].TR, 7)
}

func TestCompute_NoDirectionalMovementLeavesDXUndefined(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC)
	series := make(market.Series, 10)
	for i := range series {
		series[i] = market.Bar{Timestamp: base.Add(time.Duration(i) * time.Minute), Open: 100, High: 101, Low: 99, Close: 100, Volume: 10}
	}
	out, err := Compute(series, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, bar := range out[1:] {
		if di, ok := bar.PlusDI.Get(); !ok || di != 0 {
			t.Fatalf("index %d: +DI should be a defined zero, got %v", i+1, bar.PlusDI)
		}
		if bar.DX.Valid() {
			t.Fatalf("index %d: DX must be undefined when +DI + -DI = 0", i+1)
		}
		if bar.ADX.Valid() {
			t.Fatalf("index %d: ADX has no defined DX to smooth", i+1)
		}
	}
}

func TestCompute_FlatRangeLeavesDIUndefined(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC)
	series := make(market.Series, 6)
	for i := range series {
		series[i] = market.Bar{Timestamp: base.Add(time.Duration(i) * time.Minute), Open: 50, High: 50, Low: 50, Close: 50}
	}
	out, err := Compute(series, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, bar := range out {
		if bar.PlusDI.Valid() || bar.MinusDI.Valid() || bar.DX.Valid() {
			t.Fatalf("index %d: zero true range must leave DI and DX undefined", i)
		}
	}
}

func TestCompute_Deterministic(t *testing.T) {
	series := wavySeries(100)
	first, err := Compute(series, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Compute(series, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("two runs over the same series must be identical")
	}
}

func TestCompute_DoesNotMutateInput(t *testing.T) {
	series := wavySeries(20)
	snapshot := append(market.Series(nil), series...)
	if _, err := Compute(series, DefaultConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(series, snapshot) {
		t.Fatal("input series was modified")
	}
}

func TestCompute_InvalidInput(t *testing.T) {
	if _, err := Compute(nil, DefaultConfig()); !errors.Is(err, market.ErrInvalidInput) {
		t.Fatalf("empty series: expected ErrInvalidInput, got %v", err)
	}

	series := makeSeries(1, 2, 3)
	series[1], series[2] = series[2], series[1]
	if _, err := Compute(series, DefaultConfig()); !errors.Is(err, market.ErrInvalidInput) {
		t.Fatalf("unsorted series: expected ErrInvalidInput, got %v", err)
	}

	cfg := DefaultConfig()
	cfg.MACDSlow = 0
	if _, err := Compute(makeSeries(1, 2, 3), cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("zero window: expected ErrInvalidConfig, got %v", err)
	}

	cfg = DefaultConfig()
	cfg.BollingerStdDev = -1
	if _, err := Compute(makeSeries(1, 2, 3), cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("negative multiplier: expected ErrInvalidConfig, got %v", err)
	}
}
