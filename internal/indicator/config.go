package indicator

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig marks an indicator configuration with non-positive windows or negative multipliers.
var ErrInvalidConfig = errors.New("invalid indicator config")

// Config holds the window lengths used by Compute.
type Config struct {
	MAFast          int
	MASlow          int
	BollingerPeriod int
	BollingerStdDev float64
	MACDFast        int
	MACDSlow        int
	MACDSignal      int
	ADXPeriod       int
}

// DefaultConfig mirrors the dashboard defaults: MA 9/21, BB 20/2, MACD 12/26/9, ADX 14.
func DefaultConfig() Config {
	return Config{
		MAFast:          9,
		MASlow:          21,
		BollingerPeriod: 20,
		BollingerStdDev: 2,
		MACDFast:        12,
		MACDSlow:        26,
		MACDSignal:      9,
		ADXPeriod:       14,
	}
}

// Validate checks every window is positive and the band multiplier is non-negative.
func (c Config) Validate() error {
	windows := []struct {
		name  string
		value int
	}{
		{"ma_fast", c.MAFast},
		{"ma_slow", c.MASlow},
		{"bollinger.period", c.BollingerPeriod},
		{"macd.fast_period", c.MACDFast},
		{"macd.slow_period", c.MACDSlow},
		{"macd.signal_period", c.MACDSignal},
		{"adx.period", c.ADXPeriod},
	}
	for _, w := range windows {
		if w.value <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidConfig, w.name, w.value)
		}
	}
	if c.BollingerStdDev < 0 {
		return fmt.Errorf("%w: bollinger.std_dev cannot be negative", ErrInvalidConfig)
	}
	return nil
}
