// Package indicator computes moving averages, Bollinger bands, MACD and ADX over a bar series.
//
// Compute recomputes every value from the full series on each call and keeps no state
// between calls. Readings that lack history are None, never zero.
package indicator

import (
	"breakoutwatch/internal/market"
)

// EnrichedBar is a bar with its derived indicator readings.
type EnrichedBar struct {
	market.Bar

	MAFast Value
	MASlow Value

	BBMid   Value
	BBUpper Value
	BBLower Value

	MACD       Value
	MACDSignal Value
	MACDHist   Value

	UpMove   Value
	DownMove Value
	PlusDM   Value
	MinusDM  Value
	TR       Value
	PlusDI   Value
	MinusDI  Value
	DX       Value
	ADX      Value
}

// Compute enriches every bar of series. The input is not modified.
func Compute(series market.Series, cfg Config) ([]EnrichedBar, error) {
	if err := series.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := len(series)
	closes := make([]float64, n)
	for i, bar := range series {
		closes[i] = bar.Close
	}

	maFast := rollingMean(closes, cfg.MAFast)
	maSlow := rollingMean(closes, cfg.MASlow)

	bbMid := rollingMean(closes, cfg.BollingerPeriod)
	bbStd := rollingSampleStd(closes, cfg.BollingerPeriod)

	closeValues := defined(closes)
	emaFast := ema(closeValues, cfg.MACDFast)
	emaSlow := ema(closeValues, cfg.MACDSlow)
	macd := make([]Value, n)
	for i := range macd {
		macd[i] = sub(emaFast[i], emaSlow[i])
	}
	signal := ema(macd, cfg.MACDSignal)

	dm := directionalMovement(series, cfg.ADXPeriod)

	out := make([]EnrichedBar, n)
	for i, bar := range series {
		width := scale(bbStd[i], cfg.BollingerStdDev)
		out[i] = EnrichedBar{
			Bar:        bar,
			MAFast:     maFast[i],
			MASlow:     maSlow[i],
			BBMid:      bbMid[i],
			BBUpper:    add(bbMid[i], width),
			BBLower:    sub(bbMid[i], width),
			MACD:       macd[i],
			MACDSignal: signal[i],
			MACDHist:   sub(macd[i], signal[i]),
			UpMove:     dm.upMove[i],
			DownMove:   dm.downMove[i],
			PlusDM:     dm.plusDM[i],
			MinusDM:    dm.minusDM[i],
			TR:         dm.tr[i],
			PlusDI:     dm.plusDI[i],
			MinusDI:    dm.minusDI[i],
			DX:         dm.dx[i],
			ADX:        dm.adx[i],
		}
	}
	return out, nil
}
