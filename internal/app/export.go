package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"breakoutwatch/internal/config"
	"breakoutwatch/internal/indicator"
)

// Export renders a stock's enriched series as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	sym, err := a.symbol(opts.Symbol)
	if err != nil {
		return err
	}
	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	series, err := a.newSource().FetchBars(ctx, sym.Code)
	if err != nil {
		return fmt.Errorf("load %s: %w", sym.Code, err)
	}

	enriched, err := indicator.Compute(series, sym.IndicatorConfig())
	if err != nil {
		return fmt.Errorf("compute indicators: %w", err)
	}

	downsampled := downsampleBars(enriched, opts.MaxPoints)
	a.Logger.Info().Str("symbol", sym.Code).Int("total", len(enriched)).Int("exported", len(downsampled)).Msg("exporting bars")

	if opts.CSVPath != "" {
		if err := writeBarsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeBarsPNG(opts.PNGPath, sym, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleBars(bars []indicator.EnrichedBar, max int) []indicator.EnrichedBar {
	if max <= 0 || len(bars) <= max {
		return bars
	}
	if max == 1 {
		return bars[len(bars)-1:]
	}

	result := make([]indicator.EnrichedBar, 0, max)
	step := float64(len(bars)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(bars) {
			idx = len(bars) - 1
		}
		result = append(result, bars[idx])
	}
	return result
}

var exportHeader = []string{
	"timestamp", "open", "high", "low", "close", "volume",
	"ma_fast", "ma_slow", "bb_mid", "bb_upper", "bb_lower",
	"macd", "macd_signal", "macd_hist",
	"plus_di", "minus_di", "dx", "adx",
}

func writeBarsCSV(path string, bars []indicator.EnrichedBar) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(exportHeader); err != nil {
		return err
	}

	for _, bar := range bars {
		record := []string{
			bar.Timestamp.UTC().Format(time.RFC3339),
			formatFloat(bar.Open),
			formatFloat(bar.High),
			formatFloat(bar.Low),
			formatFloat(bar.Close),
			strconv.FormatInt(bar.Volume, 10),
			bar.MAFast.Format(4),
			bar.MASlow.Format(4),
			bar.BBMid.Format(4),
			bar.BBUpper.Format(4),
			bar.BBLower.Format(4),
			bar.MACD.Format(4),
			bar.MACDSignal.Format(4),
			bar.MACDHist.Format(4),
			bar.PlusDI.Format(2),
			bar.MinusDI.Format(2),
			bar.DX.Format(2),
			bar.ADX.Format(2),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// definedSeries keeps only the bars where pick is defined.
func definedSeries(name string, bars []indicator.EnrichedBar, pick func(indicator.EnrichedBar) indicator.Value) (chart.TimeSeries, bool) {
	ts := chart.TimeSeries{Name: name}
	for _, bar := range bars {
		if v, ok := pick(bar).Get(); ok {
			ts.XValues = append(ts.XValues, bar.Timestamp)
			ts.YValues = append(ts.YValues, v)
		}
	}
	return ts, len(ts.XValues) > 1
}

func levelSeries(name string, bars []indicator.EnrichedBar, level float64) chart.TimeSeries {
	first, last := bars[0].Timestamp, bars[len(bars)-1].Timestamp
	return chart.TimeSeries{
		Name:    name,
		XValues: []time.Time{first, last},
		YValues: []float64{level, level},
		Style: chart.Style{
			StrokeDashArray: []float64{5, 5},
		},
	}
}

func buildChart(sym config.SymbolConfig, bars []indicator.EnrichedBar) chart.Chart {
	x := make([]time.Time, len(bars))
	closes := make([]float64, len(bars))
	for i, bar := range bars {
		x[i] = bar.Timestamp
		closes[i] = bar.Close
	}

	series := []chart.Series{
		chart.TimeSeries{Name: "Close", XValues: x, YValues: closes},
	}
	if upper, ok := definedSeries("BB Upper", bars, func(b indicator.EnrichedBar) indicator.Value { return b.BBUpper }); ok {
		series = append(series, upper)
	}
	if lower, ok := definedSeries("BB Lower", bars, func(b indicator.EnrichedBar) indicator.Value { return b.BBLower }); ok {
		series = append(series, lower)
	}
	if len(bars) > 1 {
		series = append(series,
			levelSeries("Support", bars, sym.Support),
			levelSeries("Resistance", bars, sym.Resistance),
		)
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Title:  sym.Code,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price",
			ValueFormatter: priceFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}
	return graph
}

func writeBarsPNG(path string, sym config.SymbolConfig, bars []indicator.EnrichedBar) error {
	if len(bars) < 2 {
		return errors.New("at least two bars are required to render a chart")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	graph := buildChart(sym, bars)

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
