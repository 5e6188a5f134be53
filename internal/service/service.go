package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"breakoutwatch/internal/alerting"
	"breakoutwatch/internal/breakout"
	"breakoutwatch/internal/config"
	"breakoutwatch/internal/debounce"
	"breakoutwatch/internal/fetcher"
	"breakoutwatch/internal/indicator"
	"breakoutwatch/internal/market"
	"breakoutwatch/internal/metrics"
	"breakoutwatch/internal/scheduler"
	"breakoutwatch/internal/storage"
)

// Evaluation is the outcome of one symbol in one cycle.
type Evaluation struct {
	Symbol string
	// Waiting is set when the source has no data for the symbol yet.
	Waiting  bool
	Bars     int
	Latest   market.Bar
	Result   breakout.Result
	Decision debounce.Decision
	State    debounce.State
	Err      error
}

// Service drives the per-symbol pipeline: fetch, compute, classify, debounce, alert.
type Service struct {
	scheduler  *scheduler.Scheduler
	source     fetcher.BarSource
	alertStore storage.AlertStore
	stateStore storage.StateStore
	notifier   alerting.Notifier
	recorder   *metrics.Recorder
	registry   *debounce.Registry
	cooldown   time.Duration
	logger     zerolog.Logger

	symbols  []config.SymbolConfig
	channels []string
	alertsOn bool
	workers  int
	locker   storage.AdvisoryLocker
	lockKey  int64
}

// New constructs the monitoring service. Any collaborator except source may be nil.
func New(cfg *config.Config, sched *scheduler.Scheduler, source fetcher.BarSource, alertStore storage.AlertStore, stateStore storage.StateStore, notifier alerting.Notifier, recorder *metrics.Recorder, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := alertStore.(storage.AdvisoryLocker); ok {
		locker = l
	}

	workers := cfg.Scheduler.Workers
	if workers <= 0 {
		workers = 1
	}

	return &Service{
		scheduler:  sched,
		source:     source,
		alertStore: alertStore,
		stateStore: stateStore,
		notifier:   notifier,
		recorder:   recorder,
		registry:   debounce.NewRegistry(cfg.Alerting.Cooldown),
		cooldown:   cfg.Alerting.Cooldown,
		logger:     logger.With().Str("component", "service").Logger(),
		symbols:    cfg.Symbols,
		channels:   cfg.Alerting.Channels,
		alertsOn:   cfg.Alerting.Enabled,
		workers:    workers,
		locker:     locker,
		lockKey:    cfg.Scheduler.AdvisoryLockKey,
	}
}

// Run restores persisted alert states and begins the refresh loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	if err := s.RestoreStates(ctx); err != nil {
		s.logger.Error().Err(err).Msg("failed to restore alert states; starting armed")
	}
	return s.scheduler.Run(ctx, s.ProcessCycle)
}

// RestoreStates loads persisted debounce states for configured symbols.
func (s *Service) RestoreStates(ctx context.Context) error {
	if s.stateStore == nil {
		return nil
	}
	records, err := s.stateStore.LoadAlertStates(ctx)
	if err != nil {
		return fmt.Errorf("load alert states: %w", err)
	}

	configured := make(map[string]struct{}, len(s.symbols))
	for _, sym := range s.symbols {
		configured[sym.Code] = struct{}{}
	}

	restored := 0
	for _, rec := range records {
		if _, ok := configured[rec.Symbol]; !ok {
			continue
		}
		s.registry.Restore(rec.Symbol, debounce.State{Armed: rec.Armed, LastFiredAt: rec.LastFiredAt})
		restored++
	}
	s.logger.Info().Int("restored", restored).Msg("alert states restored")
	return nil
}

// State returns the current debounce state of a symbol.
func (s *Service) State(symbol string) debounce.State {
	return s.registry.Machine(symbol).State()
}

// ProcessCycle runs one refresh cycle at time now, emitting alerts for newly fired symbols.
func (s *Service) ProcessCycle(ctx context.Context, now time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("cycle", now).Msg("skip cycle because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	started := time.Now()
	evals := s.run(ctx, now, true)
	s.recorder.RecordCycle(time.Since(started))

	failed := 0
	fired := 0
	for _, ev := range evals {
		if ev.Err != nil {
			failed++
		}
		if ev.Decision.Fire {
			fired++
		}
	}
	s.logger.Debug().Time("cycle", now).
		Int("symbols", len(evals)).
		Int("failed", failed).
		Int("fired", fired).
		Msg("cycle complete")
	return nil
}

// Evaluate classifies every configured symbol at time now without touching
// alert state.
func (s *Service) Evaluate(ctx context.Context, now time.Time) []Evaluation {
	return s.run(ctx, now, false)
}

func (s *Service) run(ctx context.Context, now time.Time, observe bool) []Evaluation {
	results := make([]Evaluation, len(s.symbols))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, sym := range s.symbols {
		i, sym := i, sym
		g.Go(func() error {
			results[i] = s.evaluateSymbol(ctx, sym, now, observe)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (s *Service) evaluateSymbol(ctx context.Context, sym config.SymbolConfig, now time.Time, observe bool) Evaluation {
	ev := Evaluation{Symbol: sym.Code}
	logger := s.logger.With().Str("symbol", sym.Code).Logger()

	ev.State = s.registry.Machine(sym.Code).State()

	series, err := s.source.FetchBars(ctx, sym.Code)
	if err != nil {
		if errors.Is(err, fetcher.ErrNoData) {
			ev.Waiting = true
			logger.Debug().Msg("waiting for data")
			return ev
		}
		ev.Err = fmt.Errorf("fetch bars: %w", err)
		s.recorder.RecordSymbolError(sym.Code)
		logger.Error().Err(ev.Err).Msg("symbol evaluation failed")
		return ev
	}

	enriched, err := indicator.Compute(series, sym.IndicatorConfig())
	if err != nil {
		ev.Err = fmt.Errorf("compute indicators: %w", err)
		s.recorder.RecordSymbolError(sym.Code)
		logger.Error().Err(ev.Err).Msg("symbol evaluation failed")
		return ev
	}

	ev.Bars = len(series)
	ev.Latest, _ = series.Last()
	ev.Result = breakout.Classify(enriched, sym.Thresholds())
	s.recorder.RecordClassification(sym.Code, ev.Result.Kind.String())
	s.recorder.RecordLastClose(sym.Code, ev.Latest.Close)

	if !observe {
		return ev
	}

	machine := s.registry.Machine(sym.Code)
	ev.Decision = machine.Observe(ev.Result.Kind, now)
	ev.State = machine.State()

	logger.Debug().
		Str("kind", ev.Result.Kind.String()).
		Float64("close", ev.Latest.Close).
		Bool("fire", ev.Decision.Fire).
		Bool("armed", ev.State.Armed).
		Msg("symbol evaluated")

	if ev.Decision.Fire {
		s.emit(ctx, sym.Code, ev.Result, now, logger)
	}
	if ev.Decision.Changed() {
		s.saveState(ctx, sym.Code, ev.State, logger)
	}
	return ev
}

func (s *Service) emit(ctx context.Context, symbol string, result breakout.Result, now time.Time, logger zerolog.Logger) {
	s.recorder.RecordAlert(symbol, result.Kind.String())

	if !s.alertsOn {
		logger.Info().Str("kind", result.Kind.String()).Msg("alert fired while alerting disabled")
		return
	}

	note := newNotification(symbol, result, now, s.channels)
	if s.alertStore != nil {
		if _, err := s.alertStore.InsertAlert(ctx, newAlertRecord(note)); err != nil {
			logger.Error().Err(err).Msg("failed to persist alert record")
		}
	}
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, note); err != nil {
			logger.Error().Err(err).Msg("failed to dispatch alert")
		}
	}
}

func (s *Service) saveState(ctx context.Context, symbol string, state debounce.State, logger zerolog.Logger) {
	if s.stateStore == nil {
		return
	}
	rec := storage.AlertStateRecord{Symbol: symbol, Armed: state.Armed, LastFiredAt: state.LastFiredAt}
	if err := s.stateStore.SaveAlertState(ctx, rec); err != nil {
		logger.Error().Err(err).Msg("failed to persist alert state")
	}
}

func newNotification(symbol string, result breakout.Result, firedAt time.Time, channels []string) alerting.Notification {
	return alerting.Notification{
		Symbol:    symbol,
		Kind:      result.Kind,
		Price:     toDecimal(result.Price),
		Level:     toDecimal(result.Level),
		Rationale: result.Rationale,
		FiredAt:   firedAt.UTC(),
		Channels:  channels,
	}
}

func newAlertRecord(note alerting.Notification) storage.AlertRecord {
	return storage.AlertRecord{
		Symbol:    note.Symbol,
		Kind:      note.Kind.String(),
		Price:     note.Price,
		Level:     note.Level,
		Rationale: note.Rationale,
		FiredAt:   note.FiredAt,
		Channels:  note.Channels,
	}
}

func toDecimal(v indicator.Value) decimal.Decimal {
	f, ok := v.Get()
	if !ok {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
