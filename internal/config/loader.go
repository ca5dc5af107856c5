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
// built-in defaults, applies BOXLOAN_* environment variable overrides, and
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

// applyEnvOverrides reads well-known BOXLOAN_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "BOXLOAN_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "BOXLOAN_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "BOXLOAN_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "BOXLOAN_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "BOXLOAN_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "BOXLOAN_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "BOXLOAN_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "BOXLOAN_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "BOXLOAN_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "BOXLOAN_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "BOXLOAN_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BOXLOAN_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BOXLOAN_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BOXLOAN_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BOXLOAN_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BOXLOAN_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "BOXLOAN_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BOXLOAN_S3_REGION")
	setStr(&cfg.S3.Bucket, "BOXLOAN_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BOXLOAN_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BOXLOAN_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "BOXLOAN_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "BOXLOAN_S3_FORCE_PATH_STYLE")

	// ── Feed ──
	setStr(&cfg.Feed.BaseURL, "BOXLOAN_FEED_BASE_URL")
	setStr(&cfg.Feed.AuthToken, "BOXLOAN_FEED_AUTH_TOKEN")
	setDuration(&cfg.Feed.MaxAge, "BOXLOAN_FEED_MAX_AGE")
	setDuration(&cfg.Feed.RefreshInterval, "BOXLOAN_FEED_REFRESH_INTERVAL")

	// ── Engine ──
	setFloat64(&cfg.Engine.ReferenceStrike, "BOXLOAN_ENGINE_REFERENCE_STRIKE")
	setFloat64(&cfg.Engine.MaxContractNotional, "BOXLOAN_ENGINE_MAX_CONTRACT_NOTIONAL")
	setFloat64(&cfg.Engine.FallbackRoundLot, "BOXLOAN_ENGINE_FALLBACK_ROUND_LOT")
	setInt(&cfg.Engine.MinPeriodDays, "BOXLOAN_ENGINE_MIN_PERIOD_DAYS")
	setInt(&cfg.Engine.MaxPeriodDays, "BOXLOAN_ENGINE_MAX_PERIOD_DAYS")
	setFloat64(&cfg.Engine.Tick, "BOXLOAN_ENGINE_TICK")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "BOXLOAN_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "BOXLOAN_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "BOXLOAN_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "BOXLOAN_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "BOXLOAN_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "BOXLOAN_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "BOXLOAN_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "BOXLOAN_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "BOXLOAN_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "BOXLOAN_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "BOXLOAN_MODE")
	setStr(&cfg.LogLevel, "BOXLOAN_LOG_LEVEL")
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
