// Package config defines the top-level configuration for coinstats and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/coinstats/internal/pipeline"
)

// Config is the root configuration structure. Fields are populated from an
// optional TOML file and then overridden by COINSTATS_* environment variables.
type Config struct {
	Provider ProviderConfig `toml:"provider"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Poller   PollerConfig   `toml:"poller"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ProviderConfig holds the market-data API settings.
type ProviderConfig struct {
	BaseURL    string   `toml:"base_url"`
	APIKey     string   `toml:"api_key"`
	Pro        bool     `toml:"pro"`
	VsCurrency string   `toml:"vs_currency"`
	Timeout    duration `toml:"timeout"`
	MaxRetries int      `toml:"max_retries"`
	// ProviderIDs overrides the provider-side id of an asset, e.g.
	// matic = "polygon-ecosystem-token".
	ProviderIDs map[string]string `toml:"provider_ids"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	KeyPrefix  string   `toml:"key_prefix"`
	CacheTTL   duration `toml:"cache_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
}

// PollerConfig controls the snapshot poller.
type PollerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Schedule    string   `toml:"schedule"`
	RunOnStart  bool     `toml:"run_on_start"`
	TickTimeout duration `toml:"tick_timeout"`
	LockTTL     duration `toml:"lock_ttl"`
}

// ArchiveConfig controls the nightly export to object storage.
type ArchiveConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"`
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
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Provider: ProviderConfig{
			BaseURL:    "https://api.coingecko.com/api/v3",
			VsCurrency: "usd",
			Timeout:    duration{10 * time.Second},
			MaxRetries: 2,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "coinstats",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "coinstats:",
			CacheTTL:   duration{3 * time.Hour},
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "coinstats-archive",
			ForcePathStyle: true,
		},
		Poller: PollerConfig{
			Enabled:     true,
			Schedule:    "@every 2h",
			RunOnStart:  true,
			TickTimeout: duration{60 * time.Second},
			LockTTL:     duration{5 * time.Minute},
		},
		Archive: ArchiveConfig{
			Enabled:  false,
			Schedule: "0 3 * * *",
		},
		Server: ServerConfig{
			Enabled:    true,
			Port:       3000,
			RateLimit:  120,
			RateWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"poll_failed", "archive_failed"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// Modes accepted by Config.Mode.
const (
	ModeServer = "server"
	ModePoller = "poller"
	ModeFull   = "full"
	ModeLocal  = "local"
)

var validModes = map[string]bool{
	ModeServer: true,
	ModePoller: true,
	ModeFull:   true,
	ModeLocal:  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, poller, full, local)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Provider is only contacted by the poller.
	polls := mode != ModeServer && c.Poller.Enabled
	if polls {
		if c.Provider.BaseURL == "" {
			errs = append(errs, "provider: base_url must not be empty")
		}
		if c.Provider.MaxRetries < 0 {
			errs = append(errs, "provider: max_retries must be >= 0")
		}
		if c.Provider.Timeout.Duration <= 0 {
			errs = append(errs, "provider: timeout must be > 0")
		}
		if err := pipeline.ValidateSchedule(c.Poller.Schedule); err != nil {
			errs = append(errs, "poller: "+err.Error())
		}
		if c.Poller.TickTimeout.Duration <= 0 {
			errs = append(errs, "poller: tick_timeout must be > 0")
		}
	}

	// Local mode runs on in-memory storage; everything else needs Postgres.
	if mode != ModeLocal {
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
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}

		if c.Redis.Enabled {
			if c.Redis.Addr == "" {
				errs = append(errs, "redis: addr must not be empty")
			}
			if c.Redis.PoolSize < 1 {
				errs = append(errs, "redis: pool_size must be >= 1")
			}
			if c.Redis.CacheTTL.Duration < 0 {
				errs = append(errs, "redis: cache_ttl must be >= 0")
			}
		}

		if c.Archive.Enabled {
			if !c.S3.Enabled {
				errs = append(errs, "archive: requires s3.enabled")
			}
			if err := pipeline.ValidateSchedule(c.Archive.Schedule); err != nil {
				errs = append(errs, "archive: "+err.Error())
			}
		}
		if c.S3.Enabled && c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	if c.Server.Enabled && mode != ModePoller {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
