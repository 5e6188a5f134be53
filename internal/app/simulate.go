package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"breakoutwatch/internal/breakout"
	"breakoutwatch/internal/config"
	"breakoutwatch/internal/fetcher"
	"breakoutwatch/internal/market"
	"breakoutwatch/internal/service"
)

// SimulateAlert appends a synthetic bar closing at price to the stock's series and
// runs one alerting cycle over it.
func (a *App) SimulateAlert(ctx context.Context, code string, price float64) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is disabled")
	}
	if price <= 0 {
		return errors.New("--close must be greater than zero")
	}

	sym, err := a.symbol(code)
	if err != nil {
		return err
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no alert channel configured")
	}

	now := time.Now().UTC()
	history, err := a.newSource().FetchBars(ctx, sym.Code)
	if err != nil {
		if !errors.Is(err, fetcher.ErrNoData) {
			return fmt.Errorf("load %s: %w", sym.Code, err)
		}
		history = nil
	}
	series := syntheticSeries(sym, history, price, now)

	cfg := *a.Config
	cfg.Symbols = []config.SymbolConfig{sym}
	cfg.Scheduler.AdvisoryLockKey = 0
	svc := service.New(&cfg, nil, &staticSource{series: series}, nil, nil, notifier, nil, a.Logger)

	ev := svc.Evaluate(ctx, now)[0]
	if ev.Err != nil {
		return ev.Err
	}
	if !ev.Result.Kind.Fired() {
		return fmt.Errorf("close %.2f is within support %.2f and resistance %.2f; nothing to alert", price, sym.Support, sym.Resistance)
	}

	return svc.ProcessCycle(ctx, now)
}

// syntheticSeries returns history plus a flat bar at price. Without history the
// series is padded with flat bars halfway between support and resistance.
func syntheticSeries(sym config.SymbolConfig, history market.Series, price float64, now time.Time) market.Series {
	series := make(market.Series, 0, len(history)+breakout.MinBars)
	series = append(series, history...)

	if len(series) < breakout.MinBars-1 {
		mid := (sym.Support + sym.Resistance) / 2
		if mid <= 0 {
			mid = price
		}
		pad := breakout.MinBars - 1 - len(series)
		start := now.Add(-time.Duration(breakout.MinBars) * time.Minute)
		if len(series) > 0 {
			start = series[0].Timestamp.Add(-time.Duration(pad+1) * time.Minute)
		}
		padding := make(market.Series, 0, pad)
		for i := 0; i < pad; i++ {
			padding = append(padding, market.Bar{
				Timestamp: start.Add(time.Duration(i) * time.Minute),
				Open:      mid, High: mid, Low: mid, Close: mid,
			})
		}
		series = append(padding, series...)
	}

	at := now
	if last, ok := series.Last(); ok && !at.After(last.Timestamp) {
		at = last.Timestamp.Add(time.Second)
	}
	var volume int64
	if last, ok := series.Last(); ok {
		volume = last.Volume
	}
	return append(series, market.Bar{Timestamp: at, Open: price, High: price, Low: price, Close: price, Volume: volume})
}

type staticSource struct {
	series market.Series
}

func (s *staticSource) FetchBars(context.Context, string) (market.Series, error) {
	return s.series, nil
}

var _ fetcher.BarSource = (*staticSource)(nil)
