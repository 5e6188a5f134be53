package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"breakoutwatch/internal/alerting"
	"breakoutwatch/internal/breakout"
	"breakoutwatch/internal/config"
	"breakoutwatch/internal/fetcher"
	"breakoutwatch/internal/market"
	"breakoutwatch/internal/storage"
)

var base = time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

func barsFromCloses(closes ...float64) market.Series {
	series := make(market.Series, len(closes))
	for i, c := range closes {
		series[i] = market.Bar{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    500,
		}
	}
	return series
}

func symbol(code string) config.SymbolConfig {
	return config.SymbolConfig{
		Code:            code,
		Support:         95,
		Resistance:      101,
		VolumeThreshold: 1000,
		Bollinger:       config.BollingerConfig{Period: 3, StdDev: 2},
		MACD:            config.MACDConfig{FastPeriod: 2, SlowPeriod: 3, SignalPeriod: 2},
		ADX:             config.ADXConfig{Period: 3, Threshold: 25},
		MovingAverages:  config.MAConfig{Fast: 2, Slow: 3},
	}
}

func testConfig(codes ...string) *config.Config {
	cfg := &config.Config{}
	cfg.Scheduler.Workers = 2
	cfg.Alerting.Enabled = true
	cfg.Alerting.Cooldown = 10 * time.Second
	cfg.Alerting.Channels = []string{"log"}
	for _, code := range codes {
		cfg.Symbols = append(cfg.Symbols, symbol(code))
	}
	return cfg
}

type fakeSource struct {
	series map[string]market.Series
	errs   map[string]error
}

func (f *fakeSource) FetchBars(_ context.Context, symbol string) (market.Series, error) {
	if err, ok := f.errs[symbol]; ok {
		return nil, err
	}
	s, ok := f.series[symbol]
	if !ok {
		return nil, fetcher.ErrNoData
	}
	return s, nil
}

type fakeAlertStore struct {
	mu      sync.Mutex
	records []storage.AlertRecord
}

func (f *fakeAlertStore) InsertAlert(_ context.Context, rec storage.AlertRecord) (storage.AlertRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec.ID = int64(len(f.records) + 1)
	f.records = append(f.records, rec)
	return rec, nil
}

func (f *fakeAlertStore) ListRecentAlerts(context.Context, string, int) ([]storage.AlertRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]storage.AlertRecord(nil), f.records...), nil
}

func (f *fakeAlertStore) DeleteAlertsBefore(context.Context, time.Time) error { return nil }

func (f *fakeAlertStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type lockedAlertStore struct {
	fakeAlertStore
	acquired bool
}

func (l *lockedAlertStore) TryAdvisoryLock(context.Context, int64) (func(), bool, error) {
	if !l.acquired {
		return nil, false, nil
	}
	return func() {}, true, nil
}

type fakeStateStore struct {
	mu     sync.Mutex
	loaded []storage.AlertStateRecord
	saved  []storage.AlertStateRecord
}

func (f *fakeStateStore) SaveAlertState(_ context.Context, rec storage.AlertStateRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, rec)
	return nil
}

func (f *fakeStateStore) LoadAlertStates(context.Context) ([]storage.AlertStateRecord, error) {
	return f.loaded, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	notes []alerting.Notification
}

func (f *fakeNotifier) Notify(_ context.Context, note alerting.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, note)
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.notes)
}

func TestProcessCycleFiresOnceAndRearms(t *testing.T) {
	cfg := testConfig("AAA")
	source := &fakeSource{series: map[string]market.Series{"AAA": barsFromCloses(100, 99, 101, 102, 105)}}
	alerts := &fakeAlertStore{}
	states := &fakeStateStore{}
	notifier := &fakeNotifier{}
	svc := New(cfg, nil, source, alerts, states, notifier, nil, zerolog.Nop())

	now := time.Date(2024, 1, 2, 16, 0, 0, 0, time.UTC)
	steps := []struct {
		offset    time.Duration
		wantNotes int
		wantSaves int
		wantArmed bool
	}{
		{0, 1, 1, false},
		{5 * time.Second, 1, 1, false},
		{10 * time.Second, 1, 1, false},
		{11 * time.Second, 1, 2, true},
		{12 * time.Second, 2, 3, false},
	}

	for _, step := range steps {
		if err := svc.ProcessCycle(context.Background(), now.Add(step.offset)); err != nil {
			t.Fatalf("ProcessCycle(+%s): %v", step.offset, err)
		}
		if got := notifier.count(); got != step.wantNotes {
			t.Fatalf("+%s: expected %d notifications, got %d", step.offset, step.wantNotes, got)
		}
		if got := len(states.saved); got != step.wantSaves {
			t.Fatalf("+%s: expected %d state saves, got %d", step.offset, step.wantSaves, got)
		}
		if got := svc.State("AAA").Armed; got != step.wantArmed {
			t.Fatalf("+%s: expected armed=%v", step.offset, step.wantArmed)
		}
	}

	if alerts.count() != 2 {
		t.Fatalf("expected 2 alert records, got %d", alerts.count())
	}
	note := notifier.notes[0]
	if note.Kind != breakout.Breakout || note.Price.StringFixed(2) != "105.00" || note.Level.StringFixed(2) != "101.00" {
		t.Fatalf("unexpected notification %+v", note)
	}
	if !note.FiredAt.Equal(now) {
		t.Fatalf("expected fired_at %s, got %s", now, note.FiredAt)
	}
	if rec := alerts.records[0]; rec.Symbol != "AAA" || rec.Kind != "breakout" || rec.Rationale == "" {
		t.Fatalf("unexpected alert record %+v", rec)
	}
}

func TestEvaluateIsolatesSymbols(t *testing.T) {
	cfg := testConfig("AAA", "BBB", "CCC", "DDD")
	source := &fakeSource{
		series: map[string]market.Series{
			"AAA": barsFromCloses(100, 99, 101, 102, 105),
			"DDD": barsFromCloses(100, 99, 101, 102, 98),
		},
		errs: map[string]error{"CCC": errors.New("upstream down")},
	}
	notifier := &fakeNotifier{}
	svc := New(cfg, nil, source, nil, nil, notifier, nil, zerolog.Nop())

	evals := svc.Evaluate(context.Background(), base)
	if len(evals) != 4 {
		t.Fatalf("expected 4 evaluations, got %d", len(evals))
	}

	if evals[0].Symbol != "AAA" || evals[0].Result.Kind != breakout.Breakout {
		t.Fatalf("AAA: unexpected evaluation %+v", evals[0])
	}
	if evals[0].Decision.Fire {
		t.Fatal("Evaluate must not fire alerts")
	}
	if !evals[0].State.Armed {
		t.Fatal("Evaluate must leave state armed")
	}
	if !evals[1].Waiting || evals[1].Err != nil {
		t.Fatalf("BBB: expected waiting, got %+v", evals[1])
	}
	if evals[2].Err == nil {
		t.Fatal("CCC: expected error")
	}
	if evals[3].Result.Kind != breakout.None || evals[3].Latest.Close != 98 || evals[3].Bars != 5 {
		t.Fatalf("DDD: unexpected evaluation %+v", evals[3])
	}
	if notifier.count() != 0 {
		t.Fatal("Evaluate must not notify")
	}
}

func TestProcessCycleInvalidSeriesIsSymbolError(t *testing.T) {
	cfg := testConfig("AAA", "BBB")
	bad := barsFromCloses(100, 99, 101, 102, 105)
	bad[2].Timestamp = bad[1].Timestamp
	source := &fakeSource{series: map[string]market.Series{
		"AAA": bad,
		"BBB": barsFromCloses(100, 99, 101, 102, 90),
	}}
	notifier := &fakeNotifier{}
	svc := New(cfg, nil, source, nil, nil, notifier, nil, zerolog.Nop())

	if err := svc.ProcessCycle(context.Background(), base); err != nil {
		t.Fatalf("a failing symbol must not fail the cycle: %v", err)
	}
	if notifier.count() != 1 || notifier.notes[0].Symbol != "BBB" || notifier.notes[0].Kind != breakout.Breakdown {
		t.Fatalf("expected one breakdown for BBB, got %+v", notifier.notes)
	}
}

func TestProcessCycleAlertingDisabled(t *testing.T) {
	cfg := testConfig("AAA")
	cfg.Alerting.Enabled = false
	source := &fakeSource{series: map[string]market.Series{"AAA": barsFromCloses(100, 99, 101, 102, 105)}}
	alerts := &fakeAlertStore{}
	notifier := &fakeNotifier{}
	svc := New(cfg, nil, source, alerts, nil, notifier, nil, zerolog.Nop())

	if err := svc.ProcessCycle(context.Background(), base); err != nil {
		t.Fatalf("ProcessCycle: %v", err)
	}
	if notifier.count() != 0 || alerts.count() != 0 {
		t.Fatal("disabled alerting must not notify or persist")
	}
	if svc.State("AAA").Armed {
		t.Fatal("the machine still moves to suppressed")
	}
}

func TestRestoreStatesSuppressesRecentFire(t *testing.T) {
	cfg := testConfig("AAA")
	now := time.Date(2024, 1, 2, 16, 0, 0, 0, time.UTC)
	fired := now.Add(-3 * time.Second)
	states := &fakeStateStore{loaded: []storage.AlertStateRecord{
		{Symbol: "AAA", Armed: false, LastFiredAt: &fired},
		{Symbol: "ZZZ", Armed: false, LastFiredAt: &fired},
	}}
	source := &fakeSource{series: map[string]market.Series{"AAA": barsFromCloses(100, 99, 101, 102, 105)}}
	notifier := &fakeNotifier{}
	svc := New(cfg, nil, source, nil, states, notifier, nil, zerolog.Nop())

	if err := svc.RestoreStates(context.Background()); err != nil {
		t.Fatalf("RestoreStates: %v", err)
	}
	if err := svc.ProcessCycle(context.Background(), now); err != nil {
		t.Fatalf("ProcessCycle: %v", err)
	}
	if notifier.count() != 0 {
		t.Fatal("restored suppression must hold within cooldown")
	}
	for _, sym := range svc.registry.Symbols() {
		if sym == "ZZZ" {
			t.Fatal("unconfigured symbols must not be restored")
		}
	}
}

func TestProcessCycleSkipsWhenLockHeld(t *testing.T) {
	cfg := testConfig("AAA")
	cfg.Scheduler.AdvisoryLockKey = 42
	source := &fakeSource{series: map[string]market.Series{"AAA": barsFromCloses(100, 99, 101, 102, 105)}}
	store := &lockedAlertStore{acquired: false}
	notifier := &fakeNotifier{}
	svc := New(cfg, nil, source, store, nil, notifier, nil, zerolog.Nop())

	if err := svc.ProcessCycle(context.Background(), base); err != nil {
		t.Fatalf("ProcessCycle: %v", err)
	}
	if notifier.count() != 0 {
		t.Fatal("cycle must be skipped when another instance holds the lock")
	}

	store.acquired = true
	if err := svc.ProcessCycle(context.Background(), base); err != nil {
		t.Fatalf("ProcessCycle: %v", err)
	}
	if notifier.count() != 1 {
		t.Fatalf("expected one notification once the lock is free, got %d", notifier.count())
	}
}

func TestReplayUsesBarTimestamps(t *testing.T) {
	cfg := testConfig("AAA")
	series := barsFromCloses(100, 99, 101, 102, 105, 106, 100, 98, 94)
	alerts := &fakeAlertStore{}
	svc := New(cfg, nil, &fakeSource{}, alerts, nil, nil, nil, zerolog.Nop())

	events, err := svc.Replay(context.Background(), cfg.Symbols[0], series, ReplayOptions{Persist: true})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}

	if len(events) != 3 {
		t.Fatalf("expected 3 transitions, got %d: %+v", len(events), events)
	}
	if !events[0].Decision.Fire || events[0].Result.Kind != breakout.Breakout || !events[0].At.Equal(series[4].Timestamp) {
		t.Fatalf("unexpected first event %+v", events[0])
	}
	if !events[1].Decision.Rearmed || events[1].Decision.Fire || !events[1].At.Equal(series[5].Timestamp) {
		t.Fatalf("unexpected second event %+v", events[1])
	}
	if !events[2].Decision.Fire || events[2].Result.Kind != breakout.Breakdown || events[2].Close != 94 {
		t.Fatalf("unexpected third event %+v", events[2])
	}
	if alerts.count() != 2 {
		t.Fatalf("expected 2 persisted alerts, got %d", alerts.count())
	}
	if !svc.State("AAA").Armed {
		t.Fatal("replay must not touch the live machine")
	}
}

func TestReplayDryRunAndLongCooldown(t *testing.T) {
	cfg := testConfig("AAA")
	series := barsFromCloses(100, 99, 101, 102, 105, 106, 100, 98, 94)
	alerts := &fakeAlertStore{}
	svc := New(cfg, nil, &fakeSource{}, alerts, nil, nil, nil, zerolog.Nop())

	events, err := svc.Replay(context.Background(), cfg.Symbols[0], series, ReplayOptions{Cooldown: time.Hour})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(events) != 1 || !events[0].Decision.Fire {
		t.Fatalf("expected a single fire under a long cooldown, got %+v", events)
	}
	if alerts.count() != 0 {
		t.Fatal("dry run must not persist")
	}
}
