// Package config defines the top-level configuration for the trident engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TRIDENT_* environment variables.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Venue    VenueConfig    `toml:"venue"`
	Feed     FeedConfig     `toml:"feed"`
	Engine   EngineConfig   `toml:"engine"`
	Regime   RegimeConfig   `toml:"regime"`
	Risk     RiskConfig     `toml:"risk"`
	Backtest BacktestConfig `toml:"backtest"`
	Archive  ArchiveConfig  `toml:"archive"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// VenueConfig holds broker API endpoints and credentials.
type VenueConfig struct {
	BaseURL     string   `toml:"base_url"`
	ApiKey      string   `toml:"api_key"`
	ApiSecret   string   `toml:"api_secret"`
	Account     string   `toml:"account"`
	CallTimeout Duration `toml:"call_timeout"`
}

// FeedConfig holds market data feed parameters.
type FeedConfig struct {
	WsURL       string   `toml:"ws_url"`
	Instruments []string `toml:"instruments"`
	BarInterval Duration `toml:"bar_interval"`
}

// EngineConfig holds lifecycle engine tuning parameters.
type EngineConfig struct {
	TickBuffer   int      `toml:"tick_buffer"`
	StoreTimeout Duration `toml:"store_timeout"`
}

// RegimeConfig holds regime classifier tuning parameters. The classifier
// evaluates a fixed set of boolean trend signals over Window bars and
// declares a trend when at least MinVotes agree.
type RegimeConfig struct {
	Window         int     `toml:"window"`
	FastMA         int     `toml:"fast_ma"`
	SlowMA         int     `toml:"slow_ma"`
	ATRPeriod      int     `toml:"atr_period"`
	MASeparation   float64 `toml:"ma_separation"`   // min |fast-slow|/slow to call the MAs separated
	ATRExpansion   float64 `toml:"atr_expansion"`   // min ATR / window-mean ATR to call volatility expanding
	PersistenceMin float64 `toml:"persistence_min"` // min fraction of same-direction closes
	MinVotes       int     `toml:"min_votes"`
}

// RegimeParams is one risk parameter bundle: take-profit ladder distances
// from entry, trailing activation/retracement, and the position timeout.
type RegimeParams struct {
	TP1Distance      float64  `toml:"tp1_distance"`
	TP2Distance      float64  `toml:"tp2_distance"`
	TP3Distance      float64  `toml:"tp3_distance"`
	StopDistance     float64  `toml:"stop_distance"`
	TrailActivation  float64  `toml:"trail_activation"`
	TrailRetracement float64  `toml:"trail_retracement"`
	Timeout          Duration `toml:"timeout"`
}

// ClassParams holds the trend and range bundles for one instrument class.
type ClassParams struct {
	Trend RegimeParams `toml:"trend"`
	Range RegimeParams `toml:"range"`
}

// CostConfig holds the trade cost model: spread and commission per unit size
// per leg round trip, plus carry cost per elapsed day.
type CostConfig struct {
	Spread      float64 `toml:"spread"`
	Commission  float64 `toml:"commission"`
	CarryPerDay float64 `toml:"carry_per_day"`
}

// RiskConfig maps instruments to classes and classes to parameter bundles.
type RiskConfig struct {
	InstrumentClass map[string]string      `toml:"instrument_class"`
	Classes         map[string]ClassParams `toml:"classes"`
	LegFractions    []float64              `toml:"leg_fractions"`
	Costs           CostConfig             `toml:"costs"`
}

// BacktestConfig holds bar replay parameters for backtest mode. The harness
// opens one position group per replay once WarmupBars of history have been
// fed through, then lets the engine manage it to completion.
type BacktestConfig struct {
	BarsFile    string  `toml:"bars_file"`
	Instrument  string  `toml:"instrument"`
	Direction   string  `toml:"direction"`
	Size        float64 `toml:"size"`
	WarmupBars  int     `toml:"warmup_bars"`
	SlippageBps float64 `toml:"slippage_bps"`
}

// ArchiveConfig holds cold-storage archival parameters. When enabled, closed
// trades older than RetainDays are periodically copied to an S3-compatible
// bucket as JSONL.
type ArchiveConfig struct {
	Enabled        bool     `toml:"enabled"`
	Endpoint       string   `toml:"endpoint"`
	Region         string   `toml:"region"`
	Bucket         string   `toml:"bucket"`
	AccessKey      string   `toml:"access_key"`
	SecretKey      string   `toml:"secret_key"`
	UseSSL         bool     `toml:"use_ssl"`
	ForcePathStyle bool     `toml:"force_path_style"`
	RetainDays     int      `toml:"retain_days"`
	Interval       Duration `toml:"interval"`
}

// MetricsConfig holds the Prometheus endpoint parameters.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "trident",
			User:          "trident",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		Venue: VenueConfig{
			CallTimeout: Duration{5 * time.Second},
		},
		Feed: FeedConfig{
			BarInterval: Duration{time.Hour},
		},
		Engine: EngineConfig{
			TickBuffer:   32,
			StoreTimeout: Duration{3 * time.Second},
		},
		Regime: RegimeConfig{
			Window:         50,
			FastMA:         10,
			SlowMA:         30,
			ATRPeriod:      14,
			MASeparation:   0.003,
			ATRExpansion:   1.1,
			PersistenceMin: 0.62,
			MinVotes:       3,
		},
		Risk: RiskConfig{
			InstrumentClass: map[string]string{},
			Classes: map[string]ClassParams{
				"default": {
					Trend: RegimeParams{
						TP1Distance:      60,
						TP2Distance:      90,
						TP3Distance:      120,
						StopDistance:     20,
						TrailActivation:  60,
						TrailRetracement: 0.5,
						Timeout:          Duration{96 * time.Hour},
					},
					Range: RegimeParams{
						TP1Distance:      30,
						TP2Distance:      45,
						TP3Distance:      60,
						StopDistance:     20,
						TrailActivation:  30,
						TrailRetracement: 0.4,
						Timeout:          Duration{48 * time.Hour},
					},
				},
			},
			LegFractions: []float64{0.4, 0.3, 0.3},
			Costs: CostConfig{
				Spread:      0.5,
				Commission:  0.07,
				CarryPerDay: 0.02,
			},
		},
		Backtest: BacktestConfig{
			Direction:   "long",
			Size:        1,
			SlippageBps: 1.0,
		},
		Archive: ArchiveConfig{
			Region:     "us-east-1",
			RetainDays: 90,
			Interval:   Duration{Duration: 24 * time.Hour},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		Notify: NotifyConfig{
			Events: []string{"group_opened", "leg_closed", "group_closed", "venue_rejected"},
		},
		Mode:     "live",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"live":     true,
	"backtest": true,
	"monitor":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: live, backtest, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Mode != "backtest" {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Venue — required for live trading only.
	if c.Mode == "live" {
		if c.Venue.BaseURL == "" {
			errs = append(errs, "venue: base_url is required for live mode")
		}
		if c.Venue.ApiKey == "" || c.Venue.ApiSecret == "" {
			errs = append(errs, "venue: api_key and api_secret are required for live mode")
		}
	}
	if c.Venue.CallTimeout.Duration <= 0 {
		errs = append(errs, "venue: call_timeout must be positive")
	}

	// Feed
	if c.Mode == "live" {
		if c.Feed.WsURL == "" {
			errs = append(errs, "feed: ws_url is required for live mode")
		}
		if len(c.Feed.Instruments) == 0 {
			errs = append(errs, "feed: at least one instrument is required for live mode")
		}
	}

	// Backtest
	if c.Mode == "backtest" {
		if c.Backtest.BarsFile == "" {
			errs = append(errs, "backtest: bars_file is required for backtest mode")
		}
		if c.Backtest.Instrument == "" {
			errs = append(errs, "backtest: instrument is required for backtest mode")
		}
		if c.Backtest.Direction != "long" && c.Backtest.Direction != "short" {
			errs = append(errs, "backtest: direction must be long or short")
		}
		if c.Backtest.Size <= 0 {
			errs = append(errs, "backtest: size must be positive")
		}
	}

	// Archive
	if c.Archive.Enabled {
		if c.Archive.Bucket == "" {
			errs = append(errs, "archive: bucket is required when archival is enabled")
		}
		if c.Archive.Region == "" {
			errs = append(errs, "archive: region is required when archival is enabled")
		}
		if c.Archive.RetainDays <= 0 {
			errs = append(errs, "archive: retain_days must be positive")
		}
	}

	// Regime
	if c.Regime.Window < c.Regime.SlowMA {
		errs = append(errs, "regime: window must be >= slow_ma")
	}
	if c.Regime.FastMA >= c.Regime.SlowMA {
		errs = append(errs, "regime: fast_ma must be < slow_ma")
	}
	if c.Regime.MinVotes < 1 || c.Regime.MinVotes > 4 {
		errs = append(errs, "regime: min_votes must be 1-4")
	}

	// Risk
	if len(c.Risk.LegFractions) == 0 || len(c.Risk.LegFractions) > 3 {
		errs = append(errs, "risk: leg_fractions must have 1-3 entries")
	} else {
		sum := 0.0
		for _, f := range c.Risk.LegFractions {
			if f <= 0 {
				errs = append(errs, "risk: leg_fractions entries must be positive")
				break
			}
			sum += f
		}
		if sum < 0.999 || sum > 1.001 {
			errs = append(errs, fmt.Sprintf("risk: leg_fractions must sum to 1.0, got %.4f", sum))
		}
	}
	if _, ok := c.Risk.Classes["default"]; !ok {
		errs = append(errs, `risk: classes must include a "default" entry`)
	}
	for name, cp := range c.Risk.Classes {
		for regime, p := range map[string]RegimeParams{"trend": cp.Trend, "range": cp.Range} {
			if !(p.TP1Distance > 0 && p.TP2Distance > p.TP1Distance && p.TP3Distance > p.TP2Distance) {
				errs = append(errs, fmt.Sprintf("risk: class %s %s take-profit ladder must be strictly increasing", name, regime))
			}
			if p.StopDistance <= 0 {
				errs = append(errs, fmt.Sprintf("risk: class %s %s stop_distance must be > 0", name, regime))
			}
			if p.TrailRetracement <= 0 || p.TrailRetracement >= 1 {
				errs = append(errs, fmt.Sprintf("risk: class %s %s trail_retracement must be in (0, 1)", name, regime))
			}
			if p.Timeout.Duration <= 0 {
				errs = append(errs, fmt.Sprintf("risk: class %s %s timeout must be positive", name, regime))
			}
		}
	}

	// Metrics
	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			errs = append(errs, fmt.Sprintf("metrics: port must be 1-65535, got %d", c.Metrics.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
