package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"breakoutwatch/internal/market"
)

// HTTPOptions parameterise the bar service client.
type HTTPOptions struct {
	BaseURL   string
	Timeout   time.Duration
	MaxBars   int
	UserAgent string
}

// HTTPSource fetches bars from the acquisition service's JSON API.
type HTTPSource struct {
	opts    HTTPOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewHTTP constructs an HTTP bar source.
func NewHTTP(opts HTTPOptions, logger zerolog.Logger) *HTTPSource {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &HTTPSource{
		opts:    opts,
		logger:  logger.With().Str("component", "http_source").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

// FetchBars calls GET {base}/bars/{symbol}. The body is either a bar array or {"bars": [...]}.
func (h *HTTPSource) FetchBars(ctx context.Context, symbol string) (market.Series, error) {
	if h.baseURL == "" {
		return nil, errors.New("bar service base url not configured")
	}

	endpoint := fmt.Sprintf("%s/bars/%s", h.baseURL, url.PathEscape(symbol))
	if h.opts.MaxBars > 0 {
		endpoint += "?limit=" + strconv.Itoa(h.opts.MaxBars)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(h.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "breakoutwatch/1.0")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoData)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}

	series, err := parseBars(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", symbol, err)
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoData)
	}
	if h.opts.MaxBars > 0 && len(series) > h.opts.MaxBars {
		series = series[len(series)-h.opts.MaxBars:]
	}

	h.logger.Debug().Str("symbol", symbol).Int("bars", len(series)).Msg("bars fetched")
	return series, nil
}

func parseBars(payload []byte) (market.Series, error) {
	if !gjson.ValidBytes(payload) {
		return nil, errors.New("invalid json payload")
	}
	root := gjson.ParseBytes(payload)
	if bars := root.Get("bars"); bars.Exists() {
		root = bars
	}
	if !root.IsArray() {
		return nil, errors.New("expected a json array of bars")
	}

	var (
		series market.Series
		err    error
	)
	root.ForEach(func(_, item gjson.Result) bool {
		var bar market.Bar
		bar, err = parseBar(item)
		if err != nil {
			return false
		}
		series = append(series, bar)
		return true
	})
	if err != nil {
		return nil, err
	}
	return series, nil
}

func parseBar(item gjson.Result) (market.Bar, error) {
	tsField := item.Get("timestamp")
	var ts time.Time
	switch tsField.Type {
	case gjson.Number:
		ts = time.Unix(tsField.Int(), 0).UTC()
	case gjson.String:
		parsed, err := ParseTimestamp(tsField.String(), time.UTC)
		if err != nil {
			return market.Bar{}, err
		}
		ts = parsed
	default:
		return market.Bar{}, errors.New("bar without timestamp")
	}

	for _, key := range []string{"open", "high", "low", "close"} {
		if !item.Get(key).Exists() {
			return market.Bar{}, fmt.Errorf("bar at %s missing %s", ts.Format(time.RFC3339), key)
		}
	}

	return market.Bar{
		Timestamp: ts,
		Open:      item.Get("open").Float(),
		High:      item.Get("high").Float(),
		Low:       item.Get("low").Float(),
		Close:     item.Get("close").Float(),
		Volume:    item.Get("volume").Int(),
	}, nil
}

func parseHTTPError(status int, payload []byte) error {
	if gjson.ValidBytes(payload) {
		for _, key := range []string{"error", "message", "description"} {
			if msg := gjson.GetBytes(payload, key).String(); msg != "" {
				return fmt.Errorf("bar service error (%d): %s", status, msg)
			}
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("bar service error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("bar service error (%d)", status)
}

var _ BarSource = (*HTTPSource)(nil)
