package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TRIDENT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TRIDENT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "TRIDENT_DATABASE_DSN")
	setStr(&cfg.Database.Host, "TRIDENT_DATABASE_HOST")
	setInt(&cfg.Database.Port, "TRIDENT_DATABASE_PORT")
	setStr(&cfg.Database.Database, "TRIDENT_DATABASE_NAME")
	setStr(&cfg.Database.User, "TRIDENT_DATABASE_USER")
	setStr(&cfg.Database.Password, "TRIDENT_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "TRIDENT_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "TRIDENT_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "TRIDENT_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "TRIDENT_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TRIDENT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRIDENT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRIDENT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRIDENT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRIDENT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRIDENT_REDIS_TLS_ENABLED")

	// ── Venue ──
	setStr(&cfg.Venue.BaseURL, "TRIDENT_VENUE_BASE_URL")
	setStr(&cfg.Venue.ApiKey, "TRIDENT_VENUE_API_KEY")
	setStr(&cfg.Venue.ApiSecret, "TRIDENT_VENUE_API_SECRET")
	setStr(&cfg.Venue.Account, "TRIDENT_VENUE_ACCOUNT")
	setDuration(&cfg.Venue.CallTimeout, "TRIDENT_VENUE_CALL_TIMEOUT")

	// ── Feed ──
	setStr(&cfg.Feed.WsURL, "TRIDENT_FEED_WS_URL")
	setStringSlice(&cfg.Feed.Instruments, "TRIDENT_FEED_INSTRUMENTS")
	setDuration(&cfg.Feed.BarInterval, "TRIDENT_FEED_BAR_INTERVAL")

	// ── Engine ──
	setInt(&cfg.Engine.TickBuffer, "TRIDENT_ENGINE_TICK_BUFFER")
	setDuration(&cfg.Engine.StoreTimeout, "TRIDENT_ENGINE_STORE_TIMEOUT")

	// ── Backtest ──
	setStr(&cfg.Backtest.BarsFile, "TRIDENT_BACKTEST_BARS_FILE")
	setStr(&cfg.Backtest.Instrument, "TRIDENT_BACKTEST_INSTRUMENT")
	setFloat64(&cfg.Backtest.SlippageBps, "TRIDENT_BACKTEST_SLIPPAGE_BPS")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "TRIDENT_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Endpoint, "TRIDENT_ARCHIVE_ENDPOINT")
	setStr(&cfg.Archive.Bucket, "TRIDENT_ARCHIVE_BUCKET")
	setStr(&cfg.Archive.AccessKey, "TRIDENT_ARCHIVE_ACCESS_KEY")
	setStr(&cfg.Archive.SecretKey, "TRIDENT_ARCHIVE_SECRET_KEY")

	// ── Metrics ──
	setBool(&cfg.Metrics.Enabled, "TRIDENT_METRICS_ENABLED")
	setInt(&cfg.Metrics.Port, "TRIDENT_METRICS_PORT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TRIDENT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRIDENT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRIDENT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRIDENT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "TRIDENT_MODE")
	setStr(&cfg.LogLevel, "TRIDENT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
