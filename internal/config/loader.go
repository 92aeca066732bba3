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
// built-in defaults, applies FUSER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known FUSER_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Polymarket ──
	setBool(&cfg.Polymarket.Enabled, "FUSER_POLYMARKET_ENABLED")
	setStr(&cfg.Polymarket.GammaHost, "FUSER_POLYMARKET_GAMMA_HOST")
	setInt(&cfg.Polymarket.PageLimit, "FUSER_POLYMARKET_PAGE_LIMIT")
	setDuration(&cfg.Polymarket.PollInterval, "FUSER_POLYMARKET_POLL_INTERVAL")
	setDuration(&cfg.Polymarket.FetchTimeout, "FUSER_POLYMARKET_FETCH_TIMEOUT")

	// ── Kalshi ──
	setBool(&cfg.Kalshi.Enabled, "FUSER_KALSHI_ENABLED")
	setStr(&cfg.Kalshi.BaseURL, "FUSER_KALSHI_BASE_URL")
	setStr(&cfg.Kalshi.ApiKey, "FUSER_KALSHI_API_KEY")
	setStr(&cfg.Kalshi.RsaPrivateKeyPath, "FUSER_KALSHI_RSA_PRIVATE_KEY_PATH")
	setInt(&cfg.Kalshi.PageLimit, "FUSER_KALSHI_PAGE_LIMIT")
	setDuration(&cfg.Kalshi.PollInterval, "FUSER_KALSHI_POLL_INTERVAL")
	setDuration(&cfg.Kalshi.FetchTimeout, "FUSER_KALSHI_FETCH_TIMEOUT")

	// ── Manifold ──
	setBool(&cfg.Manifold.Enabled, "FUSER_MANIFOLD_ENABLED")
	setStr(&cfg.Manifold.BaseURL, "FUSER_MANIFOLD_BASE_URL")
	setInt(&cfg.Manifold.PageLimit, "FUSER_MANIFOLD_PAGE_LIMIT")
	setDuration(&cfg.Manifold.PollInterval, "FUSER_MANIFOLD_POLL_INTERVAL")
	setDuration(&cfg.Manifold.FetchTimeout, "FUSER_MANIFOLD_FETCH_TIMEOUT")

	// ── Matcher ──
	setFloat64(&cfg.Matcher.SimilarThreshold, "FUSER_MATCHER_SIMILAR_THRESHOLD")
	setFloat64(&cfg.Matcher.IdenticalThreshold, "FUSER_MATCHER_IDENTICAL_THRESHOLD")
	setBool(&cfg.Matcher.Revalidate, "FUSER_MATCHER_REVALIDATE_CLUSTERS")
	setFloat64(&cfg.Matcher.RelaxedThreshold, "FUSER_MATCHER_RELAXED_THRESHOLD")
	setInt(&cfg.Matcher.ClusterSizeCap, "FUSER_MATCHER_CLUSTER_SIZE_CAP")

	// ── Arbitrage ──
	setFloat64(&cfg.Arbitrage.MinProfitPct, "FUSER_ARBITRAGE_MIN_PROFIT_PCT")

	// ── Cache ──
	setDuration(&cfg.Cache.CategoryTTL, "FUSER_CACHE_CATEGORY_TTL")
	setDuration(&cfg.Cache.TrendingTTL, "FUSER_CACHE_TRENDING_TTL")
	setDuration(&cfg.Cache.MarketTTL, "FUSER_CACHE_MARKET_TTL")
	setInt(&cfg.Cache.HotReadThreshold, "FUSER_CACHE_HOT_READ_THRESHOLD")
	setFloat64(&cfg.Cache.TTLMultiplier, "FUSER_CACHE_TTL_MULTIPLIER")

	// ── Health ──
	setDuration(&cfg.Health.StalenessThreshold, "FUSER_HEALTH_STALENESS_THRESHOLD")
	setInt(&cfg.Health.OfflineFailures, "FUSER_HEALTH_OFFLINE_FAILURES")
	setDuration(&cfg.Health.OfflineOutage, "FUSER_HEALTH_OFFLINE_OUTAGE")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "FUSER_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "FUSER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "FUSER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "FUSER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "FUSER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "FUSER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "FUSER_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "FUSER_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "FUSER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "FUSER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "FUSER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "FUSER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "FUSER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "FUSER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "FUSER_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "FUSER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "FUSER_POSTGRES_POOL_MIN_CONNS")
	setInt(&cfg.Postgres.RetentionDays, "FUSER_POSTGRES_RETENTION_DAYS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "FUSER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "FUSER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "FUSER_S3_REGION")
	setStr(&cfg.S3.Bucket, "FUSER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "FUSER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "FUSER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "FUSER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "FUSER_S3_FORCE_PATH_STYLE")
	setDuration(&cfg.S3.ExportInterval, "FUSER_S3_EXPORT_INTERVAL")
	setStr(&cfg.S3.Prefix, "FUSER_S3_PREFIX")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "FUSER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "FUSER_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "FUSER_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "FUSER_SERVER_API_KEY")

	// ── Secrets ──
	setStr(&cfg.Secrets.EncryptedCredsPath, "FUSER_SECRETS_ENCRYPTED_CREDS_PATH")
	setStr(&cfg.Secrets.CredsPassword, "FUSER_SECRETS_CREDS_PASSWORD")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "FUSER_LOG_LEVEL")
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
