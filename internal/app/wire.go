package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/housefun/internal/blob/s3"
	"github.com/alanyoungcy/housefun/internal/cache/redis"
	"github.com/alanyoungcy/housefun/internal/config"
	"github.com/alanyoungcy/housefun/internal/domain"
	"github.com/alanyoungcy/housefun/internal/notify"
	"github.com/alanyoungcy/housefun/internal/server/handler"
	"github.com/alanyoungcy/housefun/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	SeedStore   domain.SeedStore
	GameStore   domain.GameStore
	WagerStore  domain.WagerStore
	PayoutStore domain.PayoutStore
	AuditStore  domain.AuditStore

	// Caches
	PoolCache   domain.PoolCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   *redis.SignalBus

	// Blob storage; nil when S3 is not configured.
	Archiver *s3blob.Archiver

	// Notifications
	Notifier *notify.Notifier

	// Health checks keyed by dependency name.
	Checks map[string]handler.Check
}

// needsS3 returns true when object storage is configured.
func needsS3(cfg *config.Config) bool {
	return cfg.S3.Bucket != "" && cfg.S3.AccessKey != ""
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

	deps := &Dependencies{Checks: make(map[string]handler.Check)}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
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
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Supabase.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.SeedStore = postgres.NewSeedStore(pool)
	deps.GameStore = postgres.NewGameStore(pool)
	deps.WagerStore = postgres.NewWagerStore(pool)
	deps.PayoutStore = postgres.NewPayoutStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)
	deps.Checks["postgres"] = pool.Ping

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		MasterName: cfg.Redis.MasterName,
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

	deps.PoolCache = redis.NewPoolCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.Checks["redis"] = redisClient.Ping

	// --- S3 hand archive ---
	if needsS3(cfg) {
		bucket, err := s3blob.New(ctx, s3blob.ClientConfig{
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

		deps.Archiver = s3blob.NewArchiver(bucket, deps.AuditStore, cfg.S3.Prefix)
		deps.Checks["s3"] = bucket.Health
	} else {
		logger.InfoContext(ctx, "wire: s3 not configured, hand archive disabled")
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

// settlementOptions converts the settlement config section.
func settlementOptions(cfg *config.Config) (limits domain.BetLimits, fees map[domain.GameKind]uint32) {
	limits = domain.BetLimits{Min: cfg.Settlement.MinBet, Max: cfg.Settlement.MaxBet}
	fees = make(map[domain.GameKind]uint32, len(cfg.Settlement.FeeBps))
	for k, v := range cfg.Settlement.FeeBps {
		fees[domain.GameKind(k)] = uint32(v)
	}
	return limits, fees
}

// purgeInterval falls back to ten minutes when unset.
func purgeInterval(cfg *config.Config) time.Duration {
	if d := cfg.Fairness.PurgeInterval.Duration; d > 0 {
		return d
	}
	return 10 * time.Minute
}
