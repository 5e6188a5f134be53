// Package breakout classifies the latest enriched bar against support and resistance.
package breakout

import (
	"fmt"
	"strings"

	"breakoutwatch/internal/indicator"
)

// MinBars is the history required before a bar is classified.
const MinBars = 5

// Kind is the outcome of a classification.
type Kind string

const (
	InsufficientData Kind = "insufficient_data"
	None             Kind = "none"
	Breakout         Kind = "breakout"
	Breakdown        Kind = "breakdown"
)

// Fired reports whether the kind is an alertable event.
func (k Kind) Fired() bool {
	return k == Breakout || k == Breakdown
}

func (k Kind) String() string {
	return string(k)
}

// Thresholds are the per-symbol levels the classifier compares against.
type Thresholds struct {
	Support         float64
	Resistance      float64
	VolumeThreshold float64
	ADXThreshold    float64
}

// Result is a classification with its reference price, breached level and rationale.
// Price and Level are only defined for Breakout and Breakdown.
type Result struct {
	Kind      Kind
	Price     indicator.Value
	Level     indicator.Value
	Rationale string
	Notes     []string
}

// Classify evaluates the last bar of series. Fewer than MinBars bars yield InsufficientData.
func Classify(series []indicator.EnrichedBar, th Thresholds) Result {
	if len(series) < MinBars {
		return Result{Kind: InsufficientData, Rationale: "Insufficient data"}
	}
	return ClassifyBar(series[len(series)-1], th)
}

// ClassifyBar evaluates one bar without a history check. Breakout wins over Breakdown
// when support sits above resistance.
func ClassifyBar(bar indicator.EnrichedBar, th Thresholds) Result {
	var (
		kind     Kind
		level    float64
		headline string
	)
	switch {
	case bar.Close > th.Resistance:
		kind, level = Breakout, th.Resistance
		headline = fmt.Sprintf("Breakout: Close (%.2f) > Resistance (%.2f)", bar.Close, th.Resistance)
	case bar.Close < th.Support:
		kind, level = Breakdown, th.Support
		headline = fmt.Sprintf("Breakdown: Close (%.2f) < Support (%.2f)", bar.Close, th.Support)
	default:
		return Result{Kind: None, Rationale: "No breakout/breakdown"}
	}

	notes := []string{
		volumeNote(bar, th),
		bandNote(bar, kind),
		trendNote(bar, th),
	}

	return Result{
		Kind:      kind,
		Price:     indicator.Some(bar.Close),
		Level:     indicator.Some(level),
		Rationale: headline + " | " + strings.Join(notes, " | "),
		Notes:     notes,
	}
}

func volumeNote(bar indicator.EnrichedBar, th Thresholds) string {
	if float64(bar.Volume) < th.VolumeThreshold {
		return "Low Volume"
	}
	return "Volume OK"
}

func bandNote(bar indicator.EnrichedBar, kind Kind) string {
	band := bar.BBUpper
	if kind == Breakdown {
		band = bar.BBLower
	}
	v, ok := band.Get()
	if !ok {
		return "BB unavailable"
	}
	if (kind == Breakout && bar.Close > v) || (kind == Breakdown && bar.Close < v) {
		return "BB confirms"
	}
	return "BB no confirm"
}

func trendNote(bar indicator.EnrichedBar, th Thresholds) string {
	adx, ok := bar.ADX.Get()
	if !ok {
		return "ADX unavailable"
	}
	if adx < th.ADXThreshold {
		return fmt.Sprintf("ADX=%.1f < threshold", adx)
	}
	return fmt.Sprintf("ADX=%.1f confirms", adx)
}
