package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/lavirtualzone/transfers/internal/blob/s3"
	"github.com/lavirtualzone/transfers/internal/cache/redis"
	"github.com/lavirtualzone/transfers/internal/config"
	"github.com/lavirtualzone/transfers/internal/domain"
	"github.com/lavirtualzone/transfers/internal/notify"
	"github.com/lavirtualzone/transfers/internal/server/handler"
	"github.com/lavirtualzone/transfers/internal/server/middleware"
	"github.com/lavirtualzone/transfers/internal/store/jsonstore"
	"github.com/lavirtualzone/transfers/internal/store/memory"
	"github.com/lavirtualzone/transfers/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Stores
	Offers        domain.OfferStore
	Notifications domain.NotificationStore
	Players       domain.PlayerDirectory
	Audit         domain.AuditStore // nil without PostgreSQL

	// Coordination
	Bus     domain.SignalBus
	Locks   domain.LockManager // nil without Redis
	Limiter domain.RateLimiter

	// Blob storage
	BlobReader domain.BlobReader
	BlobWriter domain.BlobWriter
	Archiver   domain.Archiver // nil without S3

	// Notifications
	Notifier *notify.Notifier

	HealthChecks map[string]handler.HealthCheck
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{HealthChecks: map[string]handler.HealthCheck{}}
	backend := strings.ToLower(cfg.Store.Backend)

	// --- PostgreSQL (postgres backend only) ---
	var pgClient *postgres.Client
	if backend == "postgres" {
		var err error
		pgClient, err = postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
			MinConns: cfg.Supabase.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)
		deps.HealthChecks["postgres"] = pgClient.Ping

		if cfg.Supabase.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		deps.Audit = postgres.NewAuditStore(pgClient.Pool())
	}

	// --- Redis (optional) ---
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		var err error
		redisClient, err = redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.HealthChecks["redis"] = redisClient.Ping

		deps.Bus = redis.NewSignalBus(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)
		deps.Limiter = redis.NewRateLimiter(redisClient)
	} else {
		deps.Bus = memory.NewBus()
		deps.Limiter = middleware.NewLocalLimiter(10 * time.Minute)
	}

	// --- S3 (optional, required by the s3 backend and the archiver) ---
	if cfg.S3.Enabled() {
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
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.HealthChecks["s3"] = s3Client.Health
		store := s3blob.NewStore(s3Client)
		deps.BlobReader = store
		deps.BlobWriter = store
	}

	// --- Offer and notification stores ---
	switch backend {
	case "memory":
		deps.Offers = memory.NewOfferStore()
		deps.Notifications = memory.NewNotificationStore()
	case "file":
		deps.Offers = jsonstore.NewOfferStore(jsonstore.NewFileDocument(cfg.Store.OffersPath))
		deps.Notifications = jsonstore.NewNotificationStore(jsonstore.NewFileDocument(cfg.Store.NotificationsPath))
	case "s3":
		if deps.BlobWriter == nil {
			return fail(errors.New("wire: s3 backend requires s3.bucket"))
		}
		deps.Offers = jsonstore.NewOfferStore(jsonstore.NewBlobDocument(deps.BlobReader, deps.BlobWriter, cfg.Store.OffersKey))
		deps.Notifications = jsonstore.NewNotificationStore(jsonstore.NewBlobDocument(deps.BlobReader, deps.BlobWriter, cfg.Store.NotificationsKey))
	case "postgres":
		deps.Offers = postgres.NewOfferStore(pgClient.Pool())
		deps.Notifications = postgres.NewNotificationStore(pgClient.Pool())
	default:
		return fail(fmt.Errorf("wire: unknown store backend %q", cfg.Store.Backend))
	}

	// --- Player directory ---
	players, err := wirePlayers(ctx, cfg, pgClient, logger)
	if err != nil {
		return fail(err)
	}
	deps.Players = players
	if redisClient != nil {
		deps.Players = redis.NewCachedDirectory(
			redis.NewPlayerCache(redisClient, cfg.Redis.PlayerCacheTTL.Duration), players, logger)
	}

	// --- Archiver (needs object storage) ---
	if cfg.Archive.Enabled {
		if deps.BlobWriter == nil {
			return fail(errors.New("wire: archive requires s3.bucket"))
		}
		opts := []s3blob.ArchiverOption{
			s3blob.WithPrune(cfg.Archive.Prune),
			s3blob.WithWatermarkReader(deps.BlobReader),
		}
		if deps.Audit != nil {
			opts = append(opts, s3blob.WithAudit(deps.Audit))
		}
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.Offers, logger, opts...)
	}

	// --- External notification senders ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if cfg.Notify.AMQPURL != "" {
		amqpSender, err := notify.NewAMQPSender(cfg.Notify.AMQPURL, cfg.Notify.AMQPExchange)
		if err != nil {
			return fail(fmt.Errorf("wire: amqp: %w", err))
		}
		senders = append(senders, amqpSender)
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	closers = append(closers, func() { _ = deps.Notifier.Close() })

	return deps, cleanup, nil
}

// wirePlayers builds the player directory. With PostgreSQL the players table
// is authoritative and the JSON seed file, when present, is upserted into it
// on start. Otherwise the seed file is loaded into memory.
func wirePlayers(ctx context.Context, cfg *config.Config, pg *postgres.Client, logger *slog.Logger) (domain.PlayerDirectory, error) {
	var seed []domain.Player
	if cfg.Store.PlayersPath != "" {
		var err error
		seed, err = jsonstore.LoadPlayers(ctx, jsonstore.NewFileDocument(cfg.Store.PlayersPath))
		if err != nil {
			return nil, fmt.Errorf("wire: players: %w", err)
		}
	}

	if pg != nil {
		store := postgres.NewPlayerStore(pg.Pool())
		if len(seed) > 0 {
			if err := store.UpsertBatch(ctx, seed); err != nil {
				return nil, fmt.Errorf("wire: seed players: %w", err)
			}
		}
		logger.InfoContext(ctx, "player directory ready", slog.String("source", "postgres"), slog.Int("seeded", len(seed)))
		return store, nil
	}

	if len(seed) == 0 {
		logger.WarnContext(ctx, "player directory is empty; offers cannot be created",
			slog.String("players_path", cfg.Store.PlayersPath))
	}
	logger.InfoContext(ctx, "player directory ready", slog.String("source", "file"), slog.Int("players", len(seed)))
	return memory.NewPlayerDirectory(seed...), nil
}
