package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"breakoutwatch/internal/breakout"
	"breakoutwatch/internal/indicator"
	"breakoutwatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Data      DataConfig      `mapstructure:"data"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Export    ExportConfig    `mapstructure:"export"`
	Symbols   []SymbolConfig  `mapstructure:"stocks"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs the refresh cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	Workers         int           `mapstructure:"workers"`
}

// DataConfig selects where bar snapshots come from.
type DataConfig struct {
	Source         string        `mapstructure:"source"`
	SnapshotDir    string        `mapstructure:"snapshot_dir"`
	FilePattern    string        `mapstructure:"file_pattern"`
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxBars        int           `mapstructure:"max_bars"`
}

// AlertingConfig defines alert cooldown and routing.
type AlertingConfig struct {
	Enabled   bool           `mapstructure:"enabled"`
	Cooldown  time.Duration  `mapstructure:"cooldown"`
	Channels  []string       `mapstructure:"channels"`
	Retention time.Duration  `mapstructure:"retention"`
	Telegram  TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// MetricsConfig exposes the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// SymbolConfig is the per-stock monitoring record.
type SymbolConfig struct {
	Code            string          `mapstructure:"stock_code"`
	Support         float64         `mapstructure:"support"`
	Resistance      float64         `mapstructure:"resistance"`
	VolumeThreshold float64         `mapstructure:"volume_threshold"`
	Bollinger       BollingerConfig `mapstructure:"bollinger"`
	MACD            MACDConfig      `mapstructure:"macd"`
	ADX             ADXConfig       `mapstructure:"adx"`
	MovingAverages  MAConfig        `mapstructure:"moving_averages"`
}

// BollingerConfig holds band window and width.
type BollingerConfig struct {
	Period int     `mapstructure:"period"`
	StdDev float64 `mapstructure:"std_dev"`
}

// MACDConfig holds MACD spans.
type MACDConfig struct {
	FastPeriod   int `mapstructure:"fast_period"`
	SlowPeriod   int `mapstructure:"slow_period"`
	SignalPeriod int `mapstructure:"signal_period"`
}

// ADXConfig holds the ADX smoothing span and confirmation threshold.
type ADXConfig struct {
	Period    int     `mapstructure:"period"`
	Threshold float64 `mapstructure:"threshold"`
}

// MAConfig holds fast/slow moving average windows.
type MAConfig struct {
	Fast int `mapstructure:"ma_fast"`
	Slow int `mapstructure:"ma_slow"`
}

// IndicatorConfig maps the record onto the engine configuration.
func (s SymbolConfig) IndicatorConfig() indicator.Config {
	return indicator.Config{
		MAFast:          s.MovingAverages.Fast,
		MASlow:          s.MovingAverages.Slow,
		BollingerPeriod: s.Bollinger.Period,
		BollingerStdDev: s.Bollinger.StdDev,
		MACDFast:        s.MACD.FastPeriod,
		MACDSlow:        s.MACD.SlowPeriod,
		MACDSignal:      s.MACD.SignalPeriod,
		ADXPeriod:       s.ADX.Period,
	}
}

// Thresholds maps the record onto the classifier levels.
func (s SymbolConfig) Thresholds() breakout.Thresholds {
	return breakout.Thresholds{
		Support:         s.Support,
		Resistance:      s.Resistance,
		VolumeThreshold: s.VolumeThreshold,
		ADXThreshold:    s.ADX.Threshold,
	}
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BREAKOUTWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applySymbolDefaults(collectStockKeys(v.Get("stocks")))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "breakoutwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "5s")
	v.SetDefault("scheduler.align_to_bucket", false)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x62726b6f))
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.workers", 4)

	v.SetDefault("data.source", "csv")
	v.SetDefault("data.snapshot_dir", ".")
	v.SetDefault("data.file_pattern", "latest_data_%s.csv")
	v.SetDefault("data.request_timeout", "10s")
	v.SetDefault("data.max_bars", 500)

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.cooldown", "10s")
	v.SetDefault("alerting.channels", []string{"log"})
	v.SetDefault("alerting.retention", "720h")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", ":9108")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("export.max_data_points", 5000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// DefaultADXThreshold is the ADX level that confirms a trend when a stock sets none.
const DefaultADXThreshold = 25

// stockKeys holds the dotted keys a stock entry sets explicitly, lower-cased.
type stockKeys map[string]struct{}

func (k stockKeys) has(key string) bool {
	_, ok := k[key]
	return ok
}

// collectStockKeys walks the raw stocks list so that explicit zeros can be told
// apart from absent keys.
func collectStockKeys(raw interface{}) []stockKeys {
	items, _ := raw.([]interface{})
	out := make([]stockKeys, len(items))
	for i, item := range items {
		out[i] = stockKeys{}
		flattenKeys(item, "", out[i])
	}
	return out
}

func flattenKeys(node interface{}, prefix string, into stockKeys) {
	visit := func(k string, child interface{}) {
		key := strings.ToLower(k)
		if prefix != "" {
			key = prefix + "." + key
		}
		into[key] = struct{}{}
		flattenKeys(child, key, into)
	}
	switch m := node.(type) {
	case map[string]interface{}:
		for k, child := range m {
			visit(k, child)
		}
	case map[interface{}]interface{}:
		for k, child := range m {
			visit(fmt.Sprint(k), child)
		}
	}
}

// applySymbolDefaults fills indicator settings a stock leaves out with the dashboard
// defaults. Keys present in the file are kept as written, zero included.
func (c *Config) applySymbolDefaults(keys []stockKeys) {
	def := indicator.DefaultConfig()
	for i := range c.Symbols {
		s := &c.Symbols[i]
		s.Code = strings.TrimSpace(s.Code)

		set := stockKeys{}
		if i < len(keys) {
			set = keys[i]
		}
		intDefaults := []struct {
			key   string
			field *int
			def   int
		}{
			{"bollinger.period", &s.Bollinger.Period, def.BollingerPeriod},
			{"macd.fast_period", &s.MACD.FastPeriod, def.MACDFast},
			{"macd.slow_period", &s.MACD.SlowPeriod, def.MACDSlow},
			{"macd.signal_period", &s.MACD.SignalPeriod, def.MACDSignal},
			{"adx.period", &s.ADX.Period, def.ADXPeriod},
			{"moving_averages.ma_fast", &s.MovingAverages.Fast, def.MAFast},
			{"moving_averages.ma_slow", &s.MovingAverages.Slow, def.MASlow},
		}
		for _, d := range intDefaults {
			if !set.has(d.key) {
				*d.field = d.def
			}
		}
		if !set.has("bollinger.std_dev") {
			s.Bollinger.StdDev = def.BollingerStdDev
		}
		if !set.has("adx.threshold") {
			s.ADX.Threshold = DefaultADXThreshold
		}
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Alerting.Cooldown < 0 {
		return fmt.Errorf("alerting.cooldown cannot be negative")
	}
	if c.Alerting.Retention < 0 {
		return fmt.Errorf("alerting.retention cannot be negative")
	}
	switch c.Data.Source {
	case "csv":
		if !strings.Contains(c.Data.FilePattern, "%s") {
			return fmt.Errorf("data.file_pattern must contain %%s for the stock code")
		}
	case "http":
		if c.Data.BaseURL == "" {
			return fmt.Errorf("data.base_url is required when data.source is http")
		}
	default:
		return fmt.Errorf("data.source must be csv or http, got %q", c.Data.Source)
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}

	seen := make(map[string]struct{}, len(c.Symbols))
	for i, s := range c.Symbols {
		if s.Code == "" {
			return fmt.Errorf("stocks[%d].stock_code is required", i)
		}
		folded := strings.ToUpper(s.Code)
		if _, dup := seen[folded]; dup {
			return fmt.Errorf("stocks[%d]: duplicate stock_code %s", i, s.Code)
		}
		seen[folded] = struct{}{}
		if s.VolumeThreshold < 0 {
			return fmt.Errorf("stocks[%d].volume_threshold cannot be negative", i)
		}
		if err := s.IndicatorConfig().Validate(); err != nil {
			return fmt.Errorf("stocks[%d] (%s): %w", i, s.Code, err)
		}
	}
	return nil
}

// Symbol looks up a configured stock by code, ignoring case. The returned record
// keeps the code as configured, which is also the snapshot file name.
func (c *Config) Symbol(code string) (SymbolConfig, bool) {
	code = strings.TrimSpace(code)
	for _, s := range c.Symbols {
		if strings.EqualFold(s.Code, code) {
			return s, true
		}
	}
	return SymbolConfig{}, false
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
