package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/alanyoungcy/coinstats/internal/blob/s3"
	memcache "github.com/alanyoungcy/coinstats/internal/cache/memory"
	"github.com/alanyoungcy/coinstats/internal/cache/redis"
	"github.com/alanyoungcy/coinstats/internal/config"
	"github.com/alanyoungcy/coinstats/internal/domain"
	"github.com/alanyoungcy/coinstats/internal/metrics"
	"github.com/alanyoungcy/coinstats/internal/notify"
	"github.com/alanyoungcy/coinstats/internal/platform/coingecko"
	"github.com/alanyoungcy/coinstats/internal/server/handler"
	memstore "github.com/alanyoungcy/coinstats/internal/store/memory"
	"github.com/alanyoungcy/coinstats/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	Store      domain.SnapshotStore
	ArchiveLog domain.ArchiveLog

	Cache       domain.LatestCache
	Bus         domain.SignalBus
	Locks       domain.LockManager // nil without Redis
	RateLimiter domain.RateLimiter // nil without Redis

	Provider domain.QuoteProvider
	Archiver domain.Archiver // nil unless S3 is enabled

	Notifier *notify.Notifier
	Metrics  *metrics.Metrics

	// Checks feed the health endpoint, keyed by component name.
	Checks map[string]handler.Checker
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

	deps := &Dependencies{
		Metrics: metrics.New(),
		Checks:  make(map[string]handler.Checker),
	}
	local := cfg.Mode == config.ModeLocal

	// --- Snapshot storage ---
	if local {
		deps.Store = memstore.NewSnapshotStore()
		deps.ArchiveLog = memstore.NewArchiveLog()
	} else {
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
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pgClient.Pool()
		deps.Store = postgres.NewSnapshotStore(pool)
		deps.ArchiveLog = postgres.NewArchiveLogStore(pool)
		deps.Checks["postgres"] = pgClient.Ping
	}

	// --- Cache, bus, locks ---
	if !local && cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
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

		deps.Cache = redis.NewSnapshotCache(redisClient, cfg.Redis.CacheTTL.Duration)
		deps.Bus = redis.NewSignalBus(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Checks["redis"] = redisClient.Ping
	} else {
		// Single-process fallback: the poller and the hub share one bus.
		deps.Cache = inProcessCache(cfg)
		deps.Bus = memcache.NewSignalBus()
	}

	// --- Market-data provider ---
	ids, err := providerIDs(cfg.Provider.ProviderIDs)
	if err != nil {
		return fail(fmt.Errorf("wire: provider: %w", err))
	}
	deps.Provider = coingecko.NewClient(cfg.Provider.BaseURL, cfg.Provider.APIKey,
		coingecko.WithTimeout(cfg.Provider.Timeout.Duration),
		coingecko.WithRetries(cfg.Provider.MaxRetries, time.Second),
		coingecko.WithPro(cfg.Provider.Pro),
		coingecko.WithVsCurrency(cfg.Provider.VsCurrency),
		coingecko.WithProviderIDs(ids),
		coingecko.WithLogger(logger),
	)

	// --- S3 archive ---
	if cfg.S3.Enabled {
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
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.Store, deps.ArchiveLog, cfg.S3.Prefix)
		deps.Checks["s3"] = s3Client.Health
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

// inProcessCache returns a memory LatestCache only when the poller writes to
// it from this process. Otherwise reads go straight to the store, since
// nothing would ever replace a refilled entry.
func inProcessCache(cfg *config.Config) domain.LatestCache {
	mode := strings.ToLower(cfg.Mode)
	if mode == config.ModeServer || !cfg.Poller.Enabled {
		return nil
	}
	return memcache.NewLatestCache()
}

// providerIDs converts the configured overrides into asset keys, rejecting
// assets outside the tracked set.
func providerIDs(raw map[string]string) (map[domain.Asset]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[domain.Asset]string, len(raw))
	for k, v := range raw {
		a, err := domain.ParseAsset(k)
		if err != nil {
			return nil, err
		}
		out[a] = v
	}
	return out, nil
}
