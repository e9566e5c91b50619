package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies LVZ_* environment variable overrides, and
// returns the final Config. A missing file is not an error: defaults and
// environment still apply. The returned Config has NOT been validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known LVZ_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Transfers ──
	setInt(&cfg.Transfers.OfferExpiryHours, "LVZ_TRANSFERS_OFFER_EXPIRY_HOURS")
	setFloat64(&cfg.Transfers.MinOfferPercentage, "LVZ_TRANSFERS_MIN_OFFER_PERCENTAGE")
	setFloat64(&cfg.Transfers.MaxOfferPercentage, "LVZ_TRANSFERS_MAX_OFFER_PERCENTAGE")
	setDuration(&cfg.Expiry.Interval, "LVZ_EXPIRY_INTERVAL")
	setDuration(&cfg.Expiry.LockTTL, "LVZ_EXPIRY_LOCK_TTL")

	// ── Market ──
	setBool(&cfg.Market.OpenOnStart, "LVZ_MARKET_OPEN_ON_START")
	setInt(&cfg.Market.CloseHours, "LVZ_MARKET_CLOSE_HOURS")
	setInt(&cfg.Notifications.MaxEntries, "LVZ_NOTIFICATIONS_MAX_ENTRIES")

	// ── Store ──
	setStr(&cfg.Store.Backend, "LVZ_STORE_BACKEND")
	setStr(&cfg.Store.OffersPath, "LVZ_STORE_OFFERS_PATH")
	setStr(&cfg.Store.NotificationsPath, "LVZ_STORE_NOTIFICATIONS_PATH")
	setStr(&cfg.Store.PlayersPath, "LVZ_STORE_PLAYERS_PATH")

	// ── Supabase ──
	setStr(&cfg.Supabase.DSN, "LVZ_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "LVZ_SUPABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.Host, "LVZ_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "LVZ_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "LVZ_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "LVZ_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "LVZ_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "LVZ_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "LVZ_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "LVZ_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "LVZ_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "LVZ_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "LVZ_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "LVZ_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "LVZ_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "LVZ_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "LVZ_REDIS_KEY_PREFIX")
	setDuration(&cfg.Redis.PlayerCacheTTL, "LVZ_REDIS_PLAYER_CACHE_TTL")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "LVZ_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "LVZ_S3_REGION")
	setStr(&cfg.S3.Bucket, "LVZ_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "LVZ_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "LVZ_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "LVZ_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "LVZ_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "LVZ_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Cron, "LVZ_ARCHIVE_CRON")
	setInt(&cfg.Archive.RetentionDays, "LVZ_ARCHIVE_RETENTION_DAYS")
	setBool(&cfg.Archive.Prune, "LVZ_ARCHIVE_PRUNE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "LVZ_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "LVZ_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "LVZ_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "LVZ_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimitPerMinute, "LVZ_SERVER_RATE_LIMIT_PER_MINUTE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "LVZ_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "LVZ_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "LVZ_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.AMQPURL, "LVZ_NOTIFY_AMQP_URL")
	setStr(&cfg.Notify.AMQPExchange, "LVZ_NOTIFY_AMQP_EXCHANGE")
	setStringSlice(&cfg.Notify.Events, "LVZ_NOTIFY_EVENTS")

	// ── Telemetry ──
	setStr(&cfg.Telemetry.OTLPEndpoint, "LVZ_TELEMETRY_OTLP_ENDPOINT")
	setBool(&cfg.Telemetry.Insecure, "LVZ_TELEMETRY_INSECURE")
	setStr(&cfg.Telemetry.ServiceName, "LVZ_TELEMETRY_SERVICE_NAME")

	// ── Top-level ──
	setStr(&cfg.Mode, "LVZ_MODE")
	setStr(&cfg.LogLevel, "LVZ_LOG_LEVEL")
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
