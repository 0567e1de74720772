// Package config defines the top-level configuration for the mevwatch
// analyzer and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mevshield/mevwatch/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by MEVWATCH_* environment
// variables.
type Config struct {
	Engine      EngineConfig      `toml:"engine"`
	Detector    DetectorConfig    `toml:"detector"`
	Correlation CorrelationConfig `toml:"correlation"`
	Provider    ProviderConfig    `toml:"provider"`
	Redis       RedisConfig       `toml:"redis"`
	Postgres    PostgresConfig    `toml:"postgres"`
	S3          S3Config          `toml:"s3"`
	Archive     ArchiveConfig     `toml:"archive"`
	Server      ServerConfig      `toml:"server"`
	Notify      NotifyConfig      `toml:"notify"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// EngineConfig holds analysis-cycle parameters.
type EngineConfig struct {
	// Pools is the set of pool identifiers analyzed every cycle.
	Pools []string `toml:"pools"`
	// Interval is the fixed analysis-cycle interval.
	Interval duration `toml:"interval"`
	// AlertThreshold is the minimum risk score that triggers alert dispatch.
	AlertThreshold float64 `toml:"alert_threshold"`
	// LedgerCapacity bounds the in-memory opportunity ledger (FIFO eviction).
	LedgerCapacity int `toml:"ledger_capacity"`
	// FetchTimeout bounds the snapshot fetch per cycle.
	FetchTimeout duration `toml:"fetch_timeout"`
	// DispatchTimeout bounds each alert delivery.
	DispatchTimeout duration `toml:"dispatch_timeout"`
}

// DetectorConfig holds the tunable policy surface of the detector set:
// per-kind value caps and firing thresholds.
type DetectorConfig struct {
	// ReferenceRatio is the expected token0/token1 price ratio the
	// arbitrage detector compares pool ratios against.
	ReferenceRatio float64 `toml:"reference_ratio"`
	// MinDeviation is the strictly-exclusive arbitrage firing threshold.
	MinDeviation float64 `toml:"min_deviation"`
	// ArbValueCap caps arbitrage estimated value (currency units).
	ArbValueCap float64 `toml:"arb_value_cap"`
	// SandwichValueCap caps sandwich estimated value.
	SandwichValueCap float64 `toml:"sandwich_value_cap"`
	// LiquidationValueCap caps liquidation estimated value.
	LiquidationValueCap float64 `toml:"liquidation_value_cap"`
	// ImpactThreshold is the strictly-exclusive sandwich price-impact gate.
	ImpactThreshold float64 `toml:"impact_threshold"`
	// LiquidityThreshold is the sandwich low-liquidity gate (USD).
	LiquidityThreshold float64 `toml:"liquidity_threshold"`
	// LiquidityNorm normalizes liquidity in the sandwich risk formula.
	LiquidityNorm float64 `toml:"liquidity_norm"`
	// VolatilityThreshold is the liquidation firing threshold.
	VolatilityThreshold float64 `toml:"volatility_threshold"`
}

// CorrelationConfig holds score-enhancement parameters.
type CorrelationConfig struct {
	// Window is the trailing lookback over same-pool ledger entries.
	Window duration `toml:"window"`
	// TriggerCount is the same-pool entry count that must be exceeded
	// before the clustering risk bump applies.
	TriggerCount int `toml:"trigger_count"`
	// RemoteURL, when set, routes enhancement through an external
	// reasoning service instead of the in-process rules.
	RemoteURL string `toml:"remote_url"`
	// RemoteTimeout bounds remote enhancement calls.
	RemoteTimeout duration `toml:"remote_timeout"`
}

// ProviderConfig holds market-data provider endpoints.
type ProviderConfig struct {
	// BaseURL is the pool-metrics HTTP API endpoint.
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	// RPCURL is the Ethereum JSON-RPC endpoint used for block numbers.
	RPCURL  string   `toml:"rpc_url"`
	Timeout duration `toml:"timeout"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	// SnapshotTTL bounds how long a cached snapshot may serve as fallback.
	// Zero means no expiry.
	SnapshotTTL duration `toml:"snapshot_ttl"`
	StreamMaxLen int     `toml:"stream_max_len"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
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

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds cold-storage archival parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RateLimit is the per-client request budget per RateWindow. Zero
	// disables rate limiting.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	PeerWebhookURL    string   `toml:"peer_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			Pools:           []string{},
			Interval:        duration{1 * time.Second},
			AlertThreshold:  0.7,
			LedgerCapacity:  100,
			FetchTimeout:    duration{800 * time.Millisecond},
			DispatchTimeout: duration{5 * time.Second},
		},
		Detector: DetectorConfig{
			ReferenceRatio:      2000.0,
			MinDeviation:        0.01,
			ArbValueCap:         10.0,
			SandwichValueCap:    5.0,
			LiquidationValueCap: 3.0,
			ImpactThreshold:     0.3,
			LiquidityThreshold:  1_000_000,
			LiquidityNorm:       10_000_000,
			VolatilityThreshold: 0.6,
		},
		Correlation: CorrelationConfig{
			Window:        duration{5 * time.Minute},
			TriggerCount:  2,
			RemoteTimeout: duration{2 * time.Second},
		},
		Provider: ProviderConfig{
			BaseURL: "http://localhost:8080",
			Timeout: duration{800 * time.Millisecond},
		},
		Redis: RedisConfig{
			Enabled:      true,
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     20,
			MaxRetries:   3,
			TLSEnabled:   false,
			StreamMaxLen: 10000,
		},
		Postgres: PostgresConfig{
			Enabled:       true,
			Host:          "localhost",
			Port:          5432,
			Database:      "mevwatch",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "mevwatch-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8001,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   0,
			RateWindow:  duration{1 * time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"alert", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"analyze": true,
	"server":  true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found. Any failure is fatal at
// startup: the engine must not run with a broken policy surface.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: analyze, server, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine
	if c.Engine.Interval.Duration <= 0 {
		errs = append(errs, "engine: interval must be positive")
	}
	if c.Engine.AlertThreshold < 0 || c.Engine.AlertThreshold > 1 {
		errs = append(errs, fmt.Sprintf("engine: alert_threshold must be in [0,1], got %f", c.Engine.AlertThreshold))
	}
	if c.Engine.LedgerCapacity < 1 {
		errs = append(errs, "engine: ledger_capacity must be >= 1")
	}
	if c.Engine.FetchTimeout.Duration <= 0 {
		errs = append(errs, "engine: fetch_timeout must be positive")
	}
	if c.Engine.DispatchTimeout.Duration <= 0 {
		errs = append(errs, "engine: dispatch_timeout must be positive")
	}

	// Detector
	if c.Detector.ReferenceRatio <= 0 {
		errs = append(errs, "detector: reference_ratio must be > 0")
	}
	if c.Detector.MinDeviation <= 0 {
		errs = append(errs, "detector: min_deviation must be > 0")
	}
	if c.Detector.ArbValueCap <= 0 || c.Detector.SandwichValueCap <= 0 || c.Detector.LiquidationValueCap <= 0 {
		errs = append(errs, "detector: per-kind value caps must be > 0")
	}
	if c.Detector.ImpactThreshold <= 0 || c.Detector.ImpactThreshold >= 1 {
		errs = append(errs, fmt.Sprintf("detector: impact_threshold must be in (0,1), got %f", c.Detector.ImpactThreshold))
	}
	if c.Detector.LiquidityThreshold <= 0 {
		errs = append(errs, "detector: liquidity_threshold must be > 0")
	}
	if c.Detector.LiquidityNorm < c.Detector.LiquidityThreshold {
		errs = append(errs, "detector: liquidity_norm must be >= liquidity_threshold")
	}
	if c.Detector.VolatilityThreshold <= 0 || c.Detector.VolatilityThreshold >= 1 {
		errs = append(errs, fmt.Sprintf("detector: volatility_threshold must be in (0,1), got %f", c.Detector.VolatilityThreshold))
	}

	// Correlation
	if c.Correlation.Window.Duration <= 0 {
		errs = append(errs, "correlation: window must be positive")
	}
	if c.Correlation.TriggerCount < 0 {
		errs = append(errs, "correlation: trigger_count must be >= 0")
	}
	if c.Correlation.RemoteURL != "" && c.Correlation.RemoteTimeout.Duration <= 0 {
		errs = append(errs, "correlation: remote_timeout must be positive when remote_url is set")
	}

	// Provider — required for modes that run the engine.
	if c.Mode == "analyze" || c.Mode == "full" {
		if c.Provider.BaseURL == "" {
			errs = append(errs, "provider: base_url must not be empty for mode "+c.Mode)
		}
		if c.Provider.Timeout.Duration <= 0 {
			errs = append(errs, "provider: timeout must be positive")
		}
		if len(c.Engine.Pools) == 0 {
			errs = append(errs, "engine: pools must not be empty for mode "+c.Mode)
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be in [0, pool_max_conns]")
		}
	}

	// Archive
	if c.Archive.Enabled {
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be positive")
		}
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archiving is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archiving is enabled")
		}
		if !c.Postgres.Enabled {
			errs = append(errs, "archive: requires postgres to be enabled")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be positive when rate_limit is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", domain.ErrConfiguration, strings.Join(errs, "\n  - "))
	}
	return nil
}
