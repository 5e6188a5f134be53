package fetcher

import (
	"context"
	"errors"

	"breakoutwatch/internal/market"
)

// ErrNoData indicates no snapshot exists yet for the symbol.
var ErrNoData = errors.New("no bar data available")

// BarSource retrieves the full available bar series for a symbol.
type BarSource interface {
	FetchBars(ctx context.Context, symbol string) (market.Series, error)
}
