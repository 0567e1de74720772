package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/ethclient"

	s3blob "github.com/mevshield/mevwatch/internal/blob/s3"
	"github.com/mevshield/mevwatch/internal/cache/memory"
	"github.com/mevshield/mevwatch/internal/cache/redis"
	"github.com/mevshield/mevwatch/internal/config"
	"github.com/mevshield/mevwatch/internal/detector"
	"github.com/mevshield/mevwatch/internal/domain"
	"github.com/mevshield/mevwatch/internal/engine"
	"github.com/mevshield/mevwatch/internal/enhance"
	"github.com/mevshield/mevwatch/internal/feed"
	"github.com/mevshield/mevwatch/internal/ledger"
	"github.com/mevshield/mevwatch/internal/notify"
	"github.com/mevshield/mevwatch/internal/platform/dexmetrics"
	"github.com/mevshield/mevwatch/internal/store/postgres"
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Store       domain.OpportunityStore // nil unless Postgres is enabled
	Cache       domain.SnapshotCache
	SignalBus   domain.SignalBus   // nil unless Redis is enabled
	RateLimiter domain.RateLimiter // nil unless Redis is enabled
	Archiver    *s3blob.Archiver   // nil unless archival is enabled
	Blobs       domain.BlobReader  // nil unless archival is enabled
	// HealthChecks maps dependency names to ping functions for /api/health.
	HealthChecks map[string]func(context.Context) error
	Notifier     *notify.Notifier
	Sink         domain.AlertSink
	Ledger       *ledger.Ledger
	Stats        *engine.Stats
	Engine       *engine.Engine
}

// Wire constructs all concrete dependency implementations from the given
// configuration. The returned cleanup releases resources in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		HealthChecks: make(map[string]func(context.Context) error),
	}

	// --- PostgreSQL (optional write-through history) ---
	if cfg.Postgres.Enabled {
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

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.Store = postgres.NewOpportunityStore(pgClient.Pool())
		deps.HealthChecks["postgres"] = pgClient.Pool().Ping
	}

	// --- Redis (snapshot cache, signal bus, rate limiter) ---
	if cfg.Redis.Enabled {
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

		deps.Cache = redis.NewSnapshotCache(redisClient, cfg.Redis.SnapshotTTL.Duration)
		deps.SignalBus = redis.NewSignalBus(redisClient, int64(cfg.Redis.StreamMaxLen))
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.HealthChecks["redis"] = redisClient.Ping
	} else {
		deps.Cache = memory.NewSnapshotCache()
	}

	// --- S3 archival (requires the Postgres history) ---
	if cfg.Archive.Enabled {
		if deps.Store == nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: archive requires postgres to be enabled")
		}
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

		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.Store, logger)
		deps.Blobs = s3blob.NewReader(s3Client)
		deps.HealthChecks["s3"] = s3Client.Health
	}

	// --- Alert channels ---
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

	var peer *notify.PeerSender
	if cfg.Notify.PeerWebhookURL != "" {
		peer = notify.NewPeerSender(cfg.Notify.PeerWebhookURL, cfg.Server.APIKey)
	}
	deps.Sink = notify.NewAlertSink(deps.Notifier, peer, deps.SignalBus, logger)

	// --- Snapshot source ---
	var eth *ethclient.Client
	if cfg.Provider.RPCURL != "" {
		var err error
		eth, err = ethclient.DialContext(ctx, cfg.Provider.RPCURL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: ethereum rpc: %w", err)
		}
		closers = append(closers, eth.Close)
	}
	metrics := dexmetrics.NewClient(cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Provider.Timeout.Duration)
	source := feed.NewSnapshotSource(metrics, eth, logger)

	// --- Detection and enhancement pipeline ---
	params := detector.Params{
		ReferenceRatio:      cfg.Detector.ReferenceRatio,
		MinDeviation:        cfg.Detector.MinDeviation,
		ArbValueCap:         cfg.Detector.ArbValueCap,
		SandwichValueCap:    cfg.Detector.SandwichValueCap,
		LiquidationValueCap: cfg.Detector.LiquidationValueCap,
		ImpactThreshold:     cfg.Detector.ImpactThreshold,
		LiquidityThreshold:  cfg.Detector.LiquidityThreshold,
		LiquidityNorm:       cfg.Detector.LiquidityNorm,
		VolatilityThreshold: cfg.Detector.VolatilityThreshold,
	}
	detectors := detector.NewSet(params, logger)

	var enhancer domain.ScoreEnhancer
	if cfg.Correlation.RemoteURL != "" {
		enhancer = enhance.NewRemote(cfg.Correlation.RemoteURL, "", cfg.Correlation.RemoteTimeout.Duration)
	} else {
		enhancer = enhance.NewCorrelation(cfg.Correlation.TriggerCount, logger)
	}

	ldg, err := ledger.New(cfg.Engine.LedgerCapacity, deps.Store, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: ledger: %w", err)
	}
	deps.Ledger = ldg
	deps.Stats = engine.NewStats()

	deps.Engine = engine.New(
		engine.Config{
			Pools:             cfg.Engine.Pools,
			Interval:          cfg.Engine.Interval.Duration,
			AlertThreshold:    cfg.Engine.AlertThreshold,
			CorrelationWindow: cfg.Correlation.Window.Duration,
			FetchTimeout:      cfg.Engine.FetchTimeout.Duration,
			DispatchTimeout:   cfg.Engine.DispatchTimeout.Duration,
			ValueCaps: map[domain.Kind]float64{
				domain.KindArbitrage:   cfg.Detector.ArbValueCap,
				domain.KindSandwich:    cfg.Detector.SandwichValueCap,
				domain.KindLiquidation: cfg.Detector.LiquidationValueCap,
			},
		},
		source,
		deps.Cache,
		detectors,
		enhancer,
		ldg,
		deps.Sink,
		deps.Stats,
		logger,
	)
	if deps.SignalBus != nil {
		deps.Engine.SetEventBus(deps.SignalBus)
	}

	return deps, cleanup, nil
}
