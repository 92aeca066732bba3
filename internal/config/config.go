// Package config defines the top-level configuration for the marketfuse
// aggregation service and provides validation helpers.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by FUSER_* environment variables.
type Config struct {
	Polymarket PolymarketConfig `toml:"polymarket"`
	Kalshi     KalshiConfig     `toml:"kalshi"`
	Manifold   ManifoldConfig   `toml:"manifold"`
	Matcher    MatcherConfig    `toml:"matcher"`
	Arbitrage  ArbitrageConfig  `toml:"arbitrage"`
	Cache      CacheConfig      `toml:"cache"`
	Health     HealthConfig     `toml:"health"`
	Redis      RedisConfig      `toml:"redis"`
	Postgres   PostgresConfig   `toml:"postgres"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Secrets    SecretsConfig    `toml:"secrets"`
	LogLevel   string           `toml:"log_level"`
}

// PolymarketConfig holds the Polymarket Gamma adapter parameters.
type PolymarketConfig struct {
	Enabled      bool     `toml:"enabled"`
	GammaHost    string   `toml:"gamma_host"`
	PageLimit    int      `toml:"page_limit"`
	PollInterval duration `toml:"poll_interval"`
	FetchTimeout duration `toml:"fetch_timeout"`
}

// KalshiConfig holds the Kalshi adapter parameters and API credentials.
type KalshiConfig struct {
	Enabled           bool     `toml:"enabled"`
	BaseURL           string   `toml:"base_url"`
	ApiKey            string   `toml:"api_key"`
	RsaPrivateKeyPath string   `toml:"rsa_private_key_path"`
	PageLimit         int      `toml:"page_limit"`
	PollInterval      duration `toml:"poll_interval"`
	FetchTimeout      duration `toml:"fetch_timeout"`
}

// ManifoldConfig holds the Manifold adapter parameters.
type ManifoldConfig struct {
	Enabled      bool     `toml:"enabled"`
	BaseURL      string   `toml:"base_url"`
	PageLimit    int      `toml:"page_limit"`
	PollInterval duration `toml:"poll_interval"`
	FetchTimeout duration `toml:"fetch_timeout"`
}

// MatcherConfig holds the cross-platform matching thresholds.
type MatcherConfig struct {
	SimilarThreshold   float64 `toml:"similar_threshold"`   // candidate match floor
	IdenticalThreshold float64 `toml:"identical_threshold"` // strong match floor
	AmbiguousLow       float64 `toml:"ambiguous_low"`
	AmbiguousHigh      float64 `toml:"ambiguous_high"`
	EndTimeToleranceH  int     `toml:"end_time_tolerance_hours"`
	Revalidate         bool    `toml:"revalidate_clusters"`
	RelaxedThreshold   float64 `toml:"relaxed_threshold"` // revalidation floor
	ClusterSizeCap     int     `toml:"cluster_size_cap"`
}

// ArbitrageConfig holds the detection threshold.
type ArbitrageConfig struct {
	MinProfitPct float64 `toml:"min_profit_pct"`
}

// CacheConfig holds adaptive-TTL cache parameters.
type CacheConfig struct {
	CategoryTTL      duration `toml:"category_ttl"`
	TrendingTTL      duration `toml:"trending_ttl"`
	MarketTTL        duration `toml:"market_ttl"`
	HotReadThreshold int      `toml:"hot_read_threshold"`
	TTLMultiplier    float64  `toml:"ttl_multiplier"`
}

// HealthConfig holds the platform health state-machine thresholds.
type HealthConfig struct {
	StalenessThreshold duration `toml:"staleness_threshold"`
	OfflineFailures    int      `toml:"offline_failures"`
	OfflineOutage      duration `toml:"offline_outage"`
}

// RedisConfig holds Redis connection parameters for the snapshot store.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds connection parameters for the optional price-history
// archive.
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
	RetentionDays int    `toml:"retention_days"`
}

// S3Config holds parameters for the optional snapshot exporter.
type S3Config struct {
	Enabled        bool     `toml:"enabled"`
	Endpoint       string   `toml:"endpoint"`
	Region         string   `toml:"region"`
	Bucket         string   `toml:"bucket"`
	AccessKey      string   `toml:"access_key"`
	SecretKey      string   `toml:"secret_key"`
	UseSSL         bool     `toml:"use_ssl"`
	ForcePathStyle bool     `toml:"force_path_style"`
	ExportInterval duration `toml:"export_interval"`
	Prefix         string   `toml:"prefix"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// SecretsConfig points at an optional encrypted credentials file holding
// platform API keys.
type SecretsConfig struct {
	EncryptedCredsPath string `toml:"encrypted_creds_path"`
	CredsPassword      string `toml:"creds_password"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
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
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			Enabled:      true,
			GammaHost:    "https://gamma-api.polymarket.com",
			PageLimit:    200,
			PollInterval: duration{30 * time.Second},
			FetchTimeout: duration{8 * time.Second},
		},
		Kalshi: KalshiConfig{
			Enabled:      true,
			BaseURL:      "https://api.elections.kalshi.com/trade-api/v2",
			PageLimit:    200,
			PollInterval: duration{60 * time.Second},
			FetchTimeout: duration{8 * time.Second},
		},
		Manifold: ManifoldConfig{
			Enabled:      true,
			BaseURL:      "https://api.manifold.markets/v0",
			PageLimit:    200,
			PollInterval: duration{45 * time.Second},
			FetchTimeout: duration{8 * time.Second},
		},
		Matcher: MatcherConfig{
			SimilarThreshold:   0.85,
			IdenticalThreshold: 0.95,
			AmbiguousLow:       0.83,
			AmbiguousHigh:      0.87,
			EndTimeToleranceH:  72,
			Revalidate:         true,
			RelaxedThreshold:   0.70,
			ClusterSizeCap:     3,
		},
		Arbitrage: ArbitrageConfig{
			MinProfitPct: 2.0,
		},
		Cache: CacheConfig{
			CategoryTTL:      duration{60 * time.Second},
			TrendingTTL:      duration{15 * time.Second},
			MarketTTL:        duration{30 * time.Second},
			HotReadThreshold: 5,
			TTLMultiplier:    2.0,
		},
		Health: HealthConfig{
			StalenessThreshold: duration{60 * time.Second},
			OfflineFailures:    5,
			OfflineOutage:      duration{5 * time.Minute},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "marketfuse",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  8,
			PoolMinConns:  1,
			RetentionDays: 30,
		},
		S3: S3Config{
			Region:         "us-east-1",
			ExportInterval: duration{time.Hour},
			Prefix:         "snapshots",
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
		LogLevel: "info",
	}
}

// Validate checks the configuration for fatal problems. Zero enabled
// platforms is the one condition that must fail fast at startup rather than
// surfacing at request time.
func (c *Config) Validate() error {
	if c.EnabledPlatforms() == 0 {
		return fmt.Errorf("config: at least one platform must be enabled")
	}
	if c.Matcher.SimilarThreshold <= 0 || c.Matcher.SimilarThreshold > 1 {
		return fmt.Errorf("config: matcher.similar_threshold must be in (0,1], got %v", c.Matcher.SimilarThreshold)
	}
	if c.Matcher.IdenticalThreshold < c.Matcher.SimilarThreshold {
		return fmt.Errorf("config: matcher.identical_threshold must be >= similar_threshold")
	}
	if c.Matcher.AmbiguousLow > c.Matcher.AmbiguousHigh {
		return fmt.Errorf("config: matcher ambiguous band is inverted")
	}
	if c.Arbitrage.MinProfitPct < 0 {
		return fmt.Errorf("config: arbitrage.min_profit_pct must be non-negative")
	}
	if c.Cache.TTLMultiplier < 1 {
		return fmt.Errorf("config: cache.ttl_multiplier must be >= 1")
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	if c.Kalshi.Enabled && c.Kalshi.ApiKey != "" && c.Kalshi.RsaPrivateKeyPath == "" {
		return fmt.Errorf("config: kalshi.api_key set without rsa_private_key_path")
	}
	if c.Postgres.Enabled && c.Postgres.DSN == "" && c.Postgres.Host == "" {
		return fmt.Errorf("config: postgres enabled but no dsn or host configured")
	}
	if c.S3.Enabled && c.S3.Bucket == "" {
		return fmt.Errorf("config: s3 enabled but no bucket configured")
	}
	return nil
}

// EnabledPlatforms returns the number of enabled provider adapters.
func (c *Config) EnabledPlatforms() int {
	n := 0
	if c.Polymarket.Enabled {
		n++
	}
	if c.Kalshi.Enabled {
		n++
	}
	if c.Manifold.Enabled {
		n++
	}
	return n
}
