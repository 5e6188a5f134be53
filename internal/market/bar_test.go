package market

import (
	"errors"
	"testing"
	"time"
)

func TestSeriesValidate(t *testing.T) {
	base := time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC)
	good := Bar{Timestamp: base, Open: 100, High: 102, Low: 99, Close: 101, Volume: 10}

	cases := []struct {
		name    string
		series  Series
		wantErr bool
	}{
		{name: "empty", series: nil, wantErr: true},
		{name: "single", series: Series{good}},
		{name: "ascending", series: Series{good, shift(good, time.Minute)}},
		{name: "duplicate timestamp", series: Series{good, good}, wantErr: true},
		{name: "descending", series: Series{shift(good, time.Minute), good}, wantErr: true},
		{name: "low above close", series: Series{{Timestamp: base, Open: 100, High: 102, Low: 100.5, Close: 100.2}}, wantErr: true},
		{name: "high below open", series: Series{{Timestamp: base, Open: 103, High: 102, Low: 99, Close: 101}}, wantErr: true},
		{name: "zero price", series: Series{{Timestamp: base, Open: 0, High: 102, Low: 0, Close: 101}}, wantErr: true},
		{name: "negative volume", series: Series{{Timestamp: base, Open: 100, High: 102, Low: 99, Close: 101, Volume: -1}}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.series.Validate()
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !errors.Is(err, ErrInvalidInput) {
					t.Fatalf("expected ErrInvalidInput, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestSeriesLast(t *testing.T) {
	if _, ok := Series(nil).Last(); ok {
		t.Fatal("empty series has no last bar")
	}
	s := Series{{Close: 1}, {Close: 2}}
	last, ok := s.Last()
	if !ok || last.Close != 2 {
		t.Fatalf("unexpected last bar %+v", last)
	}
}

func shift(b Bar, d time.Duration) Bar {
	b.Timestamp = b.Timestamp.Add(d)
	return b
}
