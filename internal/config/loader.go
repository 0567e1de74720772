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
// built-in defaults, applies MEVWATCH_* environment variable overrides, and
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

// applyEnvOverrides reads well-known MEVWATCH_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets and per-deployment tuning
// without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setStringSlice(&cfg.Engine.Pools, "MEVWATCH_ENGINE_POOLS")
	setDuration(&cfg.Engine.Interval, "MEVWATCH_ENGINE_INTERVAL")
	setFloat64(&cfg.Engine.AlertThreshold, "MEVWATCH_ENGINE_ALERT_THRESHOLD")
	setInt(&cfg.Engine.LedgerCapacity, "MEVWATCH_ENGINE_LEDGER_CAPACITY")
	setDuration(&cfg.Engine.FetchTimeout, "MEVWATCH_ENGINE_FETCH_TIMEOUT")
	setDuration(&cfg.Engine.DispatchTimeout, "MEVWATCH_ENGINE_DISPATCH_TIMEOUT")

	// ── Detector ──
	setFloat64(&cfg.Detector.ReferenceRatio, "MEVWATCH_DETECTOR_REFERENCE_RATIO")
	setFloat64(&cfg.Detector.MinDeviation, "MEVWATCH_DETECTOR_MIN_DEVIATION")
	setFloat64(&cfg.Detector.ArbValueCap, "MEVWATCH_DETECTOR_ARB_VALUE_CAP")
	setFloat64(&cfg.Detector.SandwichValueCap, "MEVWATCH_DETECTOR_SANDWICH_VALUE_CAP")
	setFloat64(&cfg.Detector.LiquidationValueCap, "MEVWATCH_DETECTOR_LIQUIDATION_VALUE_CAP")
	setFloat64(&cfg.Detector.ImpactThreshold, "MEVWATCH_DETECTOR_IMPACT_THRESHOLD")
	setFloat64(&cfg.Detector.LiquidityThreshold, "MEVWATCH_DETECTOR_LIQUIDITY_THRESHOLD")
	setFloat64(&cfg.Detector.LiquidityNorm, "MEVWATCH_DETECTOR_LIQUIDITY_NORM")
	setFloat64(&cfg.Detector.VolatilityThreshold, "MEVWATCH_DETECTOR_VOLATILITY_THRESHOLD")

	// ── Correlation ──
	setDuration(&cfg.Correlation.Window, "MEVWATCH_CORRELATION_WINDOW")
	setInt(&cfg.Correlation.TriggerCount, "MEVWATCH_CORRELATION_TRIGGER_COUNT")
	setStr(&cfg.Correlation.RemoteURL, "MEVWATCH_CORRELATION_REMOTE_URL")
	setDuration(&cfg.Correlation.RemoteTimeout, "MEVWATCH_CORRELATION_REMOTE_TIMEOUT")

	// ── Provider ──
	setStr(&cfg.Provider.BaseURL, "MEVWATCH_PROVIDER_BASE_URL")
	setStr(&cfg.Provider.APIKey, "MEVWATCH_PROVIDER_API_KEY")
	setStr(&cfg.Provider.RPCURL, "MEVWATCH_PROVIDER_RPC_URL")
	setDuration(&cfg.Provider.Timeout, "MEVWATCH_PROVIDER_TIMEOUT")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "MEVWATCH_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "MEVWATCH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MEVWATCH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MEVWATCH_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MEVWATCH_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MEVWATCH_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MEVWATCH_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.SnapshotTTL, "MEVWATCH_REDIS_SNAPSHOT_TTL")
	setInt(&cfg.Redis.StreamMaxLen, "MEVWATCH_REDIS_STREAM_MAX_LEN")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "MEVWATCH_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "MEVWATCH_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "MEVWATCH_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MEVWATCH_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MEVWATCH_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MEVWATCH_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MEVWATCH_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MEVWATCH_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MEVWATCH_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MEVWATCH_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MEVWATCH_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "MEVWATCH_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MEVWATCH_S3_REGION")
	setStr(&cfg.S3.Bucket, "MEVWATCH_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MEVWATCH_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MEVWATCH_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MEVWATCH_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MEVWATCH_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "MEVWATCH_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "MEVWATCH_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "MEVWATCH_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "MEVWATCH_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "MEVWATCH_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "MEVWATCH_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "MEVWATCH_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "MEVWATCH_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "MEVWATCH_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "MEVWATCH_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MEVWATCH_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MEVWATCH_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.PeerWebhookURL, "MEVWATCH_NOTIFY_PEER_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "MEVWATCH_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "MEVWATCH_MODE")
	setStr(&cfg.LogLevel, "MEVWATCH_LOG_LEVEL")
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

func setDuration(dst *duration, key string) {
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
