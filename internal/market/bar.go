package market

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidInput marks a bar series that violates ordering or OHLC constraints.
var ErrInvalidInput = errors.New("invalid input")

// Bar is one OHLCV observation.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Series is an ordered sequence of bars for one symbol, ascending by timestamp.
type Series []Bar

// Last returns the newest bar of the series.
func (s Series) Last() (Bar, bool) {
	if len(s) == 0 {
		return Bar{}, false
	}
	return s[len(s)-1], true
}

// Validate checks the bar's price and volume constraints.
func (b Bar) Validate() error {
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return fmt.Errorf("%w: non-positive price at %s", ErrInvalidInput, b.Timestamp.Format(time.RFC3339))
	}
	if b.Low > b.Open || b.Low > b.Close {
		return fmt.Errorf("%w: low %.4f above open/close at %s", ErrInvalidInput, b.Low, b.Timestamp.Format(time.RFC3339))
	}
	if b.High < b.Open || b.High < b.Close {
		return fmt.Errorf("%w: high %.4f below open/close at %s", ErrInvalidInput, b.High, b.Timestamp.Format(time.RFC3339))
	}
	if b.Volume < 0 {
		return fmt.Errorf("%w: negative volume at %s", ErrInvalidInput, b.Timestamp.Format(time.RFC3339))
	}
	return nil
}

// Validate checks that the series is non-empty, strictly ascending and well formed.
func (s Series) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("%w: empty series", ErrInvalidInput)
	}
	for i, bar := range s {
		if err := bar.Validate(); err != nil {
			return err
		}
		if i > 0 && !bar.Timestamp.After(s[i-1].Timestamp) {
			return fmt.Errorf("%w: timestamps not ascending at index %d", ErrInvalidInput, i)
		}
	}
	return nil
}
