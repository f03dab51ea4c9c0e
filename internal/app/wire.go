package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/quantfold/trident/internal/blob/s3"
	"github.com/quantfold/trident/internal/cache/redis"
	"github.com/quantfold/trident/internal/config"
	"github.com/quantfold/trident/internal/domain"
	"github.com/quantfold/trident/internal/notify"
	"github.com/quantfold/trident/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function. Fields for subsystems a mode does not need stay
// nil; the modes check before use.
type Dependencies struct {
	// Stores
	Groups domain.GroupStore
	Trades domain.TradeStore
	Audit  domain.AuditStore

	// Redis
	Bus   domain.EventBus
	Ticks domain.TickCache

	// Cold storage
	Archiver *s3blob.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// needsPostgres returns true for modes that require a database connection.
func needsPostgres(mode string) bool {
	switch mode {
	case "live", "backtest":
		return true
	default:
		return false
	}
}

// needsRedis returns true for modes that require the tick bus and cache.
// Backtest replays from a file and keeps everything in-process.
func needsRedis(mode string) bool {
	switch mode {
	case "live", "monitor":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (only for modes that need persistence) ---
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, cfg.Database)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Database.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Groups = postgres.NewGroupStore(pool)
		deps.Trades = postgres.NewTradeStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
	}

	// --- Redis (only for modes that need the bus and tick cache) ---
	if needsRedis(cfg.Mode) {
		redisClient, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Bus = redis.NewEventBus(redisClient)
		deps.Ticks = redis.NewTickCache(redisClient)
	}

	// --- Cold-storage archival (live mode only, when configured) ---
	if cfg.Mode == "live" && cfg.Archive.Enabled {
		if deps.Trades == nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: archive requires the trade store")
		}
		s3Client, err := s3blob.New(ctx, cfg.Archive)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			deps.Trades,
			deps.Audit,
			cfg.Archive.RetainDays,
			logger,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
