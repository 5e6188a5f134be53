package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"breakoutwatch/internal/alerting"
	"breakoutwatch/internal/config"
	"breakoutwatch/internal/fetcher"
	"breakoutwatch/internal/metrics"
	"breakoutwatch/internal/scheduler"
	"breakoutwatch/internal/service"
	"breakoutwatch/internal/storage"
	"breakoutwatch/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) newSource() fetcher.BarSource {
	data := a.Config.Data
	if data.Source == "http" {
		return fetcher.NewHTTP(fetcher.HTTPOptions{
			BaseURL:   data.BaseURL,
			Timeout:   data.RequestTimeout,
			MaxBars:   data.MaxBars,
			UserAgent: "breakoutwatch/" + version.Version,
		}, a.Logger)
	}
	return fetcher.NewCSV(fetcher.CSVOptions{
		Dir:     data.SnapshotDir,
		Pattern: data.FilePattern,
		MaxBars: data.MaxBars,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	var notifiers alerting.Multi
	for _, ch := range a.Config.Alerting.Channels {
		if ch == "log" {
			notifiers = append(notifiers, alerting.NewLogNotifier(a.Logger))
		}
	}
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger))
	}

	switch len(notifiers) {
	case 0:
		return nil
	case 1:
		return notifiers[0]
	default:
		return notifiers
	}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) symbol(code string) (config.SymbolConfig, error) {
	if code == "" {
		return config.SymbolConfig{}, errors.New("--symbol is required")
	}
	sym, ok := a.Config.Symbol(code)
	if !ok {
		return config.SymbolConfig{}, fmt.Errorf("symbol %s is not configured", code)
	}
	return sym, nil
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if len(a.Config.Symbols) == 0 {
		a.Logger.Warn().Msg("no stocks configured; nothing to monitor")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched, err := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		Immediate:    true,
	}, a.Logger)
	if err != nil {
		return err
	}

	var recorder *metrics.Recorder
	if a.Config.Metrics.Enabled {
		recorder = metrics.New()
		stopMetrics := a.serveMetrics(recorder)
		defer stopMetrics()
	}

	var alertStore storage.AlertStore
	var stateStore storage.StateStore
	if store != nil {
		alertStore = store
		stateStore = store
	}

	svc := service.New(a.Config, sched, a.newSource(), alertStore, stateStore, a.newNotifier(), recorder, a.Logger)

	a.Logger.Info().
		Int("stocks", len(a.Config.Symbols)).
		Dur("interval", a.Config.Scheduler.Interval).
		Dur("cooldown", a.Config.Alerting.Cooldown).
		Msg("starting monitoring service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

func (a *App) serveMetrics(recorder *metrics.Recorder) func() {
	mux := http.NewServeMux()
	mux.Handle(a.Config.Metrics.Path, recorder.Handler())
	srv := &http.Server{
		Addr:              a.Config.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.Logger.Info().Str("listen", srv.Addr).Str("path", a.Config.Metrics.Path).Msg("metrics endpoint listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error().Err(err).Msg("metrics endpoint failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// Migrate applies the SQL migrations found in database.migrations_path.
func (a *App) Migrate(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn not configured; cannot migrate")
	}
	defer closeStore()

	applied, err := store.Migrate(ctx, a.Config.Database.MigrationsPath)
	if err != nil {
		return err
	}
	a.Logger.Info().Strs("applied", applied).Msg("migrations applied")
	return nil
}

// ExportOptions hold parameters for exporting a symbol's enriched series.
type ExportOptions struct {
	Symbol    string
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Symbol string
	Limit  int
}

// ReplayOptions configure the replay command.
type ReplayOptions struct {
	Symbol   string
	DryRun   bool
	Cooldown time.Duration
}
