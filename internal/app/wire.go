package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/syntheticfi/boxloan/internal/blob/s3"
	"github.com/syntheticfi/boxloan/internal/broker/fidelity"
	"github.com/syntheticfi/boxloan/internal/broker/schwab"
	"github.com/syntheticfi/boxloan/internal/cache/memory"
	"github.com/syntheticfi/boxloan/internal/cache/redis"
	"github.com/syntheticfi/boxloan/internal/config"
	"github.com/syntheticfi/boxloan/internal/datemath"
	"github.com/syntheticfi/boxloan/internal/domain"
	"github.com/syntheticfi/boxloan/internal/engine"
	"github.com/syntheticfi/boxloan/internal/feed"
	"github.com/syntheticfi/boxloan/internal/notify"
	"github.com/syntheticfi/boxloan/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	Tickets   domain.TicketStore
	Snapshots domain.SnapshotStore

	// Caches
	ContractCache domain.ContractCache
	RateLimiter   domain.RateLimiter
	LockManager   domain.LockManager

	// Blob storage
	Archiver domain.PayloadArchiver

	// Pricing
	Calendar *datemath.Calendar
	Engine   *engine.Engine
	Feed     *feed.Service

	// Broker adapters
	Adapters []domain.BrokerAdapter

	// Notifications
	Notifier *notify.Notifier
}

// needsPostgres returns true for modes that require a database connection.
func needsPostgres(mode string) bool {
	switch mode {
	case "serve", "ingest":
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
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		// Run migrations if enabled.
		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Tickets = postgres.NewTicketStore(pool)
		deps.Snapshots = postgres.NewSnapshotStore(pool)
	}

	// --- Contract cache: Redis when configured, in-process otherwise ---
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.ContractCache = redis.NewContractCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
	} else {
		deps.ContractCache = memory.NewContractCache()
	}

	// --- S3 blob storage (archiving is optional) ---
	if cfg.S3.Bucket != "" {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client))
	}

	// --- Pricing ---
	cal, err := datemath.NewCalendar()
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: calendar: %w", err)
	}
	deps.Calendar = cal
	deps.Engine = engine.New(engine.Params{
		ReferenceStrike:     cfg.Engine.ReferenceStrike,
		MaxContractNotional: cfg.Engine.MaxContractNotional,
		FallbackRoundLot:    cfg.Engine.FallbackRoundLot,
		MinPeriodDays:       cfg.Engine.MinPeriodDays,
		MaxPeriodDays:       cfg.Engine.MaxPeriodDays,
		Tick:                cfg.Engine.Tick,
	}, cal, logger)

	// --- Contract feed ---
	fetcher := feed.NewClient(cfg.Feed.BaseURL, cfg.Feed.AuthToken)
	deps.Feed = feed.NewService(fetcher, deps.ContractCache, cfg.Feed.MaxAge.Duration, logger)

	// --- Broker adapters ---
	deps.Adapters = []domain.BrokerAdapter{
		fidelity.NewAdapter(logger),
		schwab.NewAdapter(logger),
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
