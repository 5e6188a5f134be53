package service

import (
	"context"
	"fmt"
	"time"

	"breakoutwatch/internal/breakout"
	"breakoutwatch/internal/config"
	"breakoutwatch/internal/debounce"
	"breakoutwatch/internal/indicator"
	"breakoutwatch/internal/market"
)

// ReplayEvent is one debounce transition observed while replaying a series.
type ReplayEvent struct {
	At       time.Time
	Close    float64
	Result   breakout.Result
	Decision debounce.Decision
}

// ReplayOptions configure Replay.
type ReplayOptions struct {
	// Persist writes fired alerts to the alert store.
	Persist bool
	// Cooldown overrides the configured cooldown when positive.
	Cooldown time.Duration
}

// Replay walks series bar by bar, classifying every prefix and feeding a fresh
// debounce machine with the bar timestamps as the clock. It returns every
// transition (fire or re-arm) in order.
func (s *Service) Replay(ctx context.Context, sym config.SymbolConfig, series market.Series, opts ReplayOptions) ([]ReplayEvent, error) {
	enriched, err := indicator.Compute(series, sym.IndicatorConfig())
	if err != nil {
		return nil, fmt.Errorf("compute indicators: %w", err)
	}

	cooldown := s.cooldown
	if opts.Cooldown > 0 {
		cooldown = opts.Cooldown
	}
	machine := debounce.New(cooldown)
	th := sym.Thresholds()
	logger := s.logger.With().Str("symbol", sym.Code).Str("mode", "replay").Logger()

	// indicators are trailing, so prefix i of the full computation equals a
	// computation over series[:i+1]
	events := make([]ReplayEvent, 0)
	for i := range enriched {
		select {
		case <-ctx.Done():
			return events, ctx.Err()
		default:
		}

		result := breakout.Classify(enriched[:i+1], th)
		at := enriched[i].Timestamp
		decision := machine.Observe(result.Kind, at)
		if !decision.Changed() {
			continue
		}

		events = append(events, ReplayEvent{At: at, Close: enriched[i].Close, Result: result, Decision: decision})
		if decision.Fire && opts.Persist && s.alertStore != nil {
			note := newNotification(sym.Code, result, at, s.channels)
			if _, err := s.alertStore.InsertAlert(ctx, newAlertRecord(note)); err != nil {
				logger.Error().Err(err).Time("at", at).Msg("failed to persist replayed alert")
			}
		}
	}

	logger.Info().Int("bars", len(enriched)).Int("events", len(events)).Msg("replay complete")
	return events, nil
}
