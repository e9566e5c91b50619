// Package config defines the top-level configuration for the transfer market
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by LVZ_* environment variables.
type Config struct {
	Transfers     TransfersConfig     `toml:"transfers"`
	Expiry        ExpiryConfig        `toml:"expiry"`
	Market        MarketConfig        `toml:"market"`
	Notifications NotificationsConfig `toml:"notifications"`
	Store         StoreConfig         `toml:"store"`
	Supabase      SupabaseConfig      `toml:"supabase"`
	Redis         RedisConfig         `toml:"redis"`
	S3            S3Config            `toml:"s3"`
	Archive       ArchiveConfig       `toml:"archive"`
	Server        ServerConfig        `toml:"server"`
	Notify        NotifyConfig        `toml:"notify"`
	Telemetry     TelemetryConfig     `toml:"telemetry"`
	Mode          string              `toml:"mode"`
	LogLevel      string              `toml:"log_level"`
}

// TransfersConfig holds the offer lifecycle thresholds.
type TransfersConfig struct {
	OfferExpiryHours   int     `toml:"offer_expiry_hours"`
	MinOfferPercentage float64 `toml:"min_offer_percentage"`
	MaxOfferPercentage float64 `toml:"max_offer_percentage"`
}

// OfferExpiry returns the offer lifetime as a duration.
func (t TransfersConfig) OfferExpiry() time.Duration {
	return time.Duration(t.OfferExpiryHours) * time.Hour
}

// ExpiryConfig controls the periodic expiry scan.
type ExpiryConfig struct {
	Interval duration `toml:"interval"`
	LockTTL  duration `toml:"lock_ttl"`
}

// MarketConfig controls the transfer window.
type MarketConfig struct {
	OpenOnStart bool `toml:"open_on_start"`
	// CloseHours is how long the window stays open once opened; 0 disables
	// automatic closing.
	CloseHours int `toml:"close_hours"`
}

// NotificationsConfig bounds the stored notification list.
type NotificationsConfig struct {
	MaxEntries int `toml:"max_entries"`
}

// StoreConfig selects the persistence backend for offers and notifications.
type StoreConfig struct {
	// Backend is one of "memory", "file", "s3", "postgres".
	Backend           string `toml:"backend"`
	OffersPath        string `toml:"offers_path"`
	NotificationsPath string `toml:"notifications_path"`
	PlayersPath       string `toml:"players_path"`
	OffersKey         string `toml:"offers_key"`
	NotificationsKey  string `toml:"notifications_key"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
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

// RedisConfig holds Redis connection parameters. An empty Addr disables
// Redis and the in-process fallbacks are used instead.
type RedisConfig struct {
	Addr           string   `toml:"addr"`
	Password       string   `toml:"password"`
	DB             int      `toml:"db"`
	PoolSize       int      `toml:"pool_size"`
	MaxRetries     int      `toml:"max_retries"`
	TLSEnabled     bool     `toml:"tls_enabled"`
	PlayerCacheTTL duration `toml:"player_cache_ttl"`
	// KeyPrefix namespaces keys, channels and streams so several deployments
	// can share one Redis.
	KeyPrefix string `toml:"key_prefix"`
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Addr) != ""
}

// S3Config holds S3-compatible object storage parameters. An empty Bucket
// disables object storage.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// Enabled reports whether a bucket is configured.
func (s S3Config) Enabled() bool {
	return strings.TrimSpace(s.Bucket) != ""
}

// ArchiveConfig controls the cold-storage export of settled offers.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	Cron          string `toml:"cron"`
	RetentionDays int    `toml:"retention_days"`
	Prune         bool   `toml:"prune"`
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

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled            bool     `toml:"enabled"`
	Port               int      `toml:"port"`
	CORSOrigins        []string `toml:"cors_origins"`
	APIKey             string   `toml:"api_key"`
	RateLimitPerMinute int      `toml:"rate_limit_per_minute"`
}

// NotifyConfig holds external notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	AMQPURL           string   `toml:"amqp_url"`
	AMQPExchange      string   `toml:"amqp_exchange"`
	Events            []string `toml:"events"`
}

// TelemetryConfig controls OpenTelemetry trace export. An empty
// OTLPEndpoint leaves the global no-op tracer in place.
type TelemetryConfig struct {
	OTLPEndpoint string `toml:"otlp_endpoint"`
	Insecure     bool   `toml:"insecure"`
	ServiceName  string `toml:"service_name"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Transfers: TransfersConfig{
			OfferExpiryHours:   48,
			MinOfferPercentage: 0.5,
			MaxOfferPercentage: 2.0,
		},
		Expiry: ExpiryConfig{
			Interval: duration{5 * time.Minute},
			LockTTL:  duration{30 * time.Second},
		},
		Market: MarketConfig{
			OpenOnStart: true,
			CloseHours:  0,
		},
		Notifications: NotificationsConfig{
			MaxEntries: 50,
		},
		Store: StoreConfig{
			Backend:           "file",
			OffersPath:        "data/offers.json",
			NotificationsPath: "data/notifications.json",
			PlayersPath:       "data/players.json",
			OffersKey:         "state/offers.json",
			NotificationsKey:  "state/notifications.json",
		},
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:           "",
			PoolSize:       20,
			MaxRetries:     3,
			PlayerCacheTTL: duration{5 * time.Minute},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Cron:          "0 4 * * *",
			RetentionDays: 30,
		},
		Server: ServerConfig{
			Enabled:            true,
			Port:               8080,
			CORSOrigins:        []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitPerMinute: 120,
		},
		Notify: NotifyConfig{
			AMQPExchange: "lvz.notifications",
			Events:       []string{"offer_received", "offer_accepted", "offer_rejected", "offer_expired"},
		},
		Telemetry: TelemetryConfig{
			ServiceName: "lvz-transfers",
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server": true,
	"worker": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validBackends = map[string]bool{
	"memory":   true,
	"file":     true,
	"s3":       true,
	"postgres": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, worker, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Transfers
	if c.Transfers.OfferExpiryHours <= 0 {
		errs = append(errs, "transfers: offer_expiry_hours must be > 0")
	}
	if c.Transfers.MinOfferPercentage < 0 {
		errs = append(errs, "transfers: min_offer_percentage must be >= 0")
	}
	if c.Transfers.MaxOfferPercentage <= 0 {
		errs = append(errs, "transfers: max_offer_percentage must be > 0")
	}
	if c.Transfers.MinOfferPercentage > c.Transfers.MaxOfferPercentage {
		errs = append(errs, "transfers: min_offer_percentage must not exceed max_offer_percentage")
	}

	if c.Expiry.Interval.Duration <= 0 {
		errs = append(errs, "expiry: interval must be > 0")
	}
	if c.Market.CloseHours < 0 {
		errs = append(errs, "market: close_hours must be >= 0")
	}
	if c.Notifications.MaxEntries < 1 {
		errs = append(errs, "notifications: max_entries must be >= 1")
	}

	// Store
	backend := strings.ToLower(c.Store.Backend)
	if !validBackends[backend] {
		errs = append(errs, fmt.Sprintf("store: unknown backend %q (valid: memory, file, s3, postgres)", c.Store.Backend))
	}
	if backend == "file" && (c.Store.OffersPath == "" || c.Store.NotificationsPath == "") {
		errs = append(errs, "store: offers_path and notifications_path are required for the file backend")
	}
	if backend == "s3" && !c.S3.Enabled() {
		errs = append(errs, "store: s3 backend requires s3.bucket")
	}

	// Supabase
	if backend == "postgres" {
		if strings.TrimSpace(c.Supabase.DSN) == "" {
			if c.Supabase.Host == "" {
				errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
			}
			if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
				errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
			}
			if c.Supabase.Database == "" {
				errs = append(errs, "supabase: database must not be empty")
			}
		}
		if c.Supabase.PoolMaxConns < 1 {
			errs = append(errs, "supabase: pool_max_conns must be >= 1")
		}
		if c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
			errs = append(errs, "supabase: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled() && c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled() && c.S3.Endpoint == "" && c.S3.Region == "" {
		errs = append(errs, "s3: endpoint or region must be set")
	}

	// Archive
	if c.Archive.Enabled {
		if !c.S3.Enabled() {
			errs = append(errs, "archive: requires s3.bucket")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if len(strings.Fields(c.Archive.Cron)) != 5 {
			errs = append(errs, fmt.Sprintf("archive: cron must have 5 fields, got %q", c.Archive.Cron))
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimitPerMinute < 0 {
			errs = append(errs, "server: rate_limit_per_minute must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
