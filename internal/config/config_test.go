package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// validLiveConfig returns Defaults() with the fields live mode requires.
func validLiveConfig() Config {
	cfg := Defaults()
	cfg.Feed.WsURL = "wss://feed.example.com/stream"
	cfg.Feed.Instruments = []string{"XAUUSD"}
	cfg.Venue.BaseURL = "https://api.example.com"
	cfg.Venue.ApiKey = "key"
	cfg.Venue.ApiSecret = "secret"
	return cfg
}

func TestDefaultsValidateForLiveMode(t *testing.T) {
	cfg := validLiveConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := validLiveConfig()
	cfg.Mode = "replay"
	require.ErrorContains(t, cfg.Validate(), "unknown mode")
}

func TestValidateRequiresFeedForLiveMode(t *testing.T) {
	cfg := validLiveConfig()
	cfg.Feed.WsURL = ""
	require.ErrorContains(t, cfg.Validate(), "ws_url is required")
}

func TestValidateBacktestFields(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "backtest"
	err := cfg.Validate()
	require.ErrorContains(t, err, "bars_file is required")
	require.ErrorContains(t, err, "instrument is required")

	cfg.Backtest.BarsFile = "bars.csv"
	cfg.Backtest.Instrument = "XAUUSD"
	cfg.Backtest.Direction = "sideways"
	cfg.Backtest.Size = 0
	err = cfg.Validate()
	require.ErrorContains(t, err, "direction must be long or short")
	require.ErrorContains(t, err, "size must be positive")

	cfg.Backtest.Direction = "short"
	cfg.Backtest.Size = 0.5
	require.NoError(t, cfg.Validate())
}

func TestValidateLegFractionsMustSumToOne(t *testing.T) {
	cfg := validLiveConfig()
	cfg.Risk.LegFractions = []float64{0.5, 0.3}
	require.ErrorContains(t, cfg.Validate(), "sum to 1.0")
}

func TestValidateRequiresDefaultRiskClass(t *testing.T) {
	cfg := validLiveConfig()
	delete(cfg.Risk.Classes, "default")
	require.ErrorContains(t, cfg.Validate(), `"default"`)
}

func TestValidateTakeProfitLadderOrdering(t *testing.T) {
	cfg := validLiveConfig()
	cp := cfg.Risk.Classes["default"]
	cp.Trend.TP2Distance = cp.Trend.TP1Distance // not strictly increasing
	cfg.Risk.Classes["default"] = cp
	require.ErrorContains(t, cfg.Validate(), "strictly increasing")
}

func TestValidateArchiveRequiresBucket(t *testing.T) {
	cfg := validLiveConfig()
	cfg.Archive.Enabled = true
	require.ErrorContains(t, cfg.Validate(), "archive: bucket is required")

	cfg.Archive.Bucket = "trident-archive"
	require.NoError(t, cfg.Validate())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "backtest"
log_level = "debug"

[backtest]
bars_file = "bars.csv"
instrument = "XAUUSD"

[engine]
store_timeout = "7s"

[risk.classes.default.trend]
tp1_distance = 10.0
tp2_distance = 20.0
tp3_distance = 30.0
stop_distance = 5.0
trail_activation = 10.0
trail_retracement = 0.5
timeout = "12h"

[risk.classes.default.range]
tp1_distance = 5.0
tp2_distance = 8.0
tp3_distance = 11.0
stop_distance = 5.0
trail_activation = 5.0
trail_retracement = 0.4
timeout = "6h"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "backtest", cfg.Mode)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 7*time.Second, cfg.Engine.StoreTimeout.Duration)

	// A class defined in the file replaces the built-in bundle wholesale.
	def := cfg.Risk.Classes["default"]
	require.Equal(t, 10.0, def.Trend.TP1Distance)
	require.Equal(t, 12*time.Hour, def.Trend.Timeout.Duration)
	require.Equal(t, 5.0, def.Range.TP1Distance)
	require.Equal(t, 6*time.Hour, def.Range.Timeout.Duration)

	// Defaults survive for sections the file does not mention.
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestEnvOverridesBeatFileValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`mode = "monitor"`), 0o600))

	t.Setenv("TRIDENT_MODE", "backtest")
	t.Setenv("TRIDENT_DATABASE_PASSWORD", "s3cret")
	t.Setenv("TRIDENT_VENUE_CALL_TIMEOUT", "9s")
	t.Setenv("TRIDENT_FEED_INSTRUMENTS", "XAUUSD, EURUSD")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "backtest", cfg.Mode)
	require.Equal(t, "s3cret", cfg.Database.Password)
	require.Equal(t, 9*time.Second, cfg.Venue.CallTimeout.Duration)
	require.Equal(t, []string{"XAUUSD", "EURUSD"}, cfg.Feed.Instruments)
}

func TestDurationUnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90m")))
	require.Equal(t, 90*time.Minute, d.Duration)

	require.Error(t, d.UnmarshalText([]byte("soon")))
}
