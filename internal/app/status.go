package app

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"breakoutwatch/internal/service"
)

const timeLayout = "2006-01-02 15:04:05"

// Status evaluates every configured stock once and prints one row per stock.
// Alert state is left untouched and nothing is sent.
func (a *App) Status(ctx context.Context) error {
	if len(a.Config.Symbols) == 0 {
		fmt.Fprintln(a.Out, "no stocks configured")
		return nil
	}

	svc := service.New(a.Config, nil, a.newSource(), nil, nil, nil, nil, a.Logger)
	evals := svc.Evaluate(ctx, time.Now().UTC())

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Stock\tLatest\tUpdated (UTC)\tSignal\tDetail")
	for _, ev := range evals {
		fmt.Fprintln(writer, statusRow(ev))
	}
	return writer.Flush()
}

func statusRow(ev service.Evaluation) string {
	switch {
	case ev.Waiting:
		return fmt.Sprintf("%s\t-\t-\t-\twaiting for data", ev.Symbol)
	case ev.Err != nil:
		return fmt.Sprintf("%s\t-\t-\terror\t%s", ev.Symbol, sanitizeInline(ev.Err.Error()))
	default:
		return fmt.Sprintf("%s\t%.2f\t%s\t%s\t%s",
			ev.Symbol,
			ev.Latest.Close,
			ev.Latest.Timestamp.UTC().Format(timeLayout),
			ev.Result.Kind,
			sanitizeInline(ev.Result.Rationale),
		)
	}
}
