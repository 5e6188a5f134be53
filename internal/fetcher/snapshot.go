package fetcher

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"breakoutwatch/internal/market"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05.999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// CSVOptions parameterise the snapshot reader.
type CSVOptions struct {
	Dir      string
	Pattern  string
	MaxBars  int
	Location *time.Location
}

// CSVSource reads per-symbol bar snapshots written by the acquisition job.
type CSVSource struct {
	opts   CSVOptions
	logger zerolog.Logger
}

// NewCSV constructs a snapshot reader.
func NewCSV(opts CSVOptions, logger zerolog.Logger) *CSVSource {
	if opts.Pattern == "" {
		opts.Pattern = "latest_data_%s.csv"
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &CSVSource{opts: opts, logger: logger.With().Str("component", "csv_source").Logger()}
}

// Path returns the snapshot file of symbol.
func (c *CSVSource) Path(symbol string) string {
	return filepath.Join(c.opts.Dir, fmt.Sprintf(c.opts.Pattern, symbol))
}

// FetchBars loads the symbol's snapshot sorted by timestamp, trimmed to MaxBars.
func (c *CSVSource) FetchBars(ctx context.Context, symbol string) (market.Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := c.Path(symbol)
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", symbol, ErrNoData)
		}
		return nil, fmt.Errorf("open snapshot %s: %w", path, err)
	}
	defer file.Close()

	series, err := ReadBars(file, c.opts.Location)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoData)
	}

	if c.opts.MaxBars > 0 && len(series) > c.opts.MaxBars {
		series = series[len(series)-c.opts.MaxBars:]
	}

	c.logger.Debug().Str("symbol", symbol).Int("bars", len(series)).Msg("snapshot loaded")
	return series, nil
}

// ReadBars parses a Timestamp,Open,High,Low,Close,Volume CSV and sorts it ascending.
// Column order is taken from the header; header names are case-insensitive.
func ReadBars(r io.Reader, loc *time.Location) (market.Series, error) {
	if loc == nil {
		loc = time.UTC
	}
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"timestamp", "open", "high", "low", "close", "volume"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	var series market.Series
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		bar, err := parseRecord(record, cols, loc)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		series = append(series, bar)
	}

	sort.SliceStable(series, func(i, j int) bool {
		return series[i].Timestamp.Before(series[j].Timestamp)
	})
	return series, nil
}

func parseRecord(record []string, cols map[string]int, loc *time.Location) (market.Bar, error) {
	field := func(name string) string {
		return strings.TrimSpace(record[cols[name]])
	}

	ts, err := ParseTimestamp(field("timestamp"), loc)
	if err != nil {
		return market.Bar{}, err
	}

	var prices [4]float64
	for i, name := range []string{"open", "high", "low", "close"} {
		v, err := strconv.ParseFloat(field(name), 64)
		if err != nil {
			return market.Bar{}, fmt.Errorf("parse %s: %w", name, err)
		}
		prices[i] = v
	}

	// pandas writes integer volumes as floats once a NaN has been seen
	volume, err := strconv.ParseFloat(field("volume"), 64)
	if err != nil {
		return market.Bar{}, fmt.Errorf("parse volume: %w", err)
	}

	return market.Bar{
		Timestamp: ts,
		Open:      prices[0],
		High:      prices[1],
		Low:       prices[2],
		Close:     prices[3],
		Volume:    int64(volume),
	}, nil
}

// ParseTimestamp accepts RFC3339, common pandas layouts and unix seconds.
func ParseTimestamp(v string, loc *time.Location) (time.Time, error) {
	if v == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, v, loc); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", v)
}

var _ BarSource = (*CSVSource)(nil)
