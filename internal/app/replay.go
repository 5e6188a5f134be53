package app

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"breakoutwatch/internal/service"
	"breakoutwatch/internal/storage"
)

// Replay walks a stock's current snapshot bar by bar and prints every alert
// transition, optionally persisting the fired alerts.
func (a *App) Replay(ctx context.Context, opts ReplayOptions) error {
	sym, err := a.symbol(opts.Symbol)
	if err != nil {
		return err
	}

	var alertStore storage.AlertStore
	if opts.DryRun {
		a.Logger.Warn().Msg("replay dry-run: alerts will not be written")
	} else {
		store, closeStore, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("database.dsn not configured; use --dry-run")
		}
		defer closeStore()
		alertStore = store
	}

	source := a.newSource()
	series, err := source.FetchBars(ctx, sym.Code)
	if err != nil {
		return fmt.Errorf("load %s: %w", sym.Code, err)
	}

	svc := service.New(a.Config, nil, source, alertStore, nil, nil, nil, a.Logger)
	events, err := svc.Replay(ctx, sym, series, service.ReplayOptions{Persist: !opts.DryRun, Cooldown: opts.Cooldown})
	if err != nil {
		return err
	}

	if len(events) == 0 {
		fmt.Fprintf(a.Out, "%s: no alerts over %d bars\n", sym.Code, len(series))
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Bar (UTC)\tClose\tEvent\tRationale")
	fired := 0
	for _, ev := range events {
		event := "rearmed"
		rationale := ""
		if ev.Decision.Fire {
			event = ev.Result.Kind.String()
			rationale = sanitizeInline(ev.Result.Rationale)
			fired++
		}
		fmt.Fprintf(writer, "%s\t%.2f\t%s\t%s\n", ev.At.UTC().Format(timeLayout), ev.Close, event, rationale)
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "%s: %d alerts over %d bars\n", sym.Code, fired, len(series))
	return nil
}
