package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads an optional TOML configuration file at path, merges it on top of
// the built-in defaults, applies environment overrides, and returns the final
// Config. An empty path or a missing file leaves the defaults in place. The
// returned Config has NOT been validated; callers invoke Config.Validate().
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides applies the bare variable names the service has always
// accepted first, then the COINSTATS_* names, so the prefixed form wins when
// both are set.
func applyEnvOverrides(cfg *Config) {
	setInt(&cfg.Server.Port, "PORT")
	setStr(&cfg.Provider.APIKey, "CRYPTO_API_KEY")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL")

	// ── Provider ──
	setStr(&cfg.Provider.BaseURL, "COINSTATS_PROVIDER_BASE_URL")
	setStr(&cfg.Provider.APIKey, "COINSTATS_PROVIDER_API_KEY")
	setBool(&cfg.Provider.Pro, "COINSTATS_PROVIDER_PRO")
	setStr(&cfg.Provider.VsCurrency, "COINSTATS_PROVIDER_VS_CURRENCY")
	setDuration(&cfg.Provider.Timeout, "COINSTATS_PROVIDER_TIMEOUT")
	setInt(&cfg.Provider.MaxRetries, "COINSTATS_PROVIDER_MAX_RETRIES")
	setStringMap(&cfg.Provider.ProviderIDs, "COINSTATS_PROVIDER_IDS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "COINSTATS_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "COINSTATS_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "COINSTATS_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "COINSTATS_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "COINSTATS_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "COINSTATS_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "COINSTATS_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "COINSTATS_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "COINSTATS_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "COINSTATS_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "COINSTATS_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "COINSTATS_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "COINSTATS_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "COINSTATS_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "COINSTATS_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "COINSTATS_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "COINSTATS_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "COINSTATS_REDIS_KEY_PREFIX")
	setDuration(&cfg.Redis.CacheTTL, "COINSTATS_REDIS_CACHE_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "COINSTATS_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "COINSTATS_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "COINSTATS_S3_REGION")
	setStr(&cfg.S3.Bucket, "COINSTATS_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "COINSTATS_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "COINSTATS_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "COINSTATS_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "COINSTATS_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "COINSTATS_S3_PREFIX")

	// ── Poller / Archive ──
	setBool(&cfg.Poller.Enabled, "COINSTATS_POLLER_ENABLED")
	setStr(&cfg.Poller.Schedule, "COINSTATS_POLLER_SCHEDULE")
	setBool(&cfg.Poller.RunOnStart, "COINSTATS_POLLER_RUN_ON_START")
	setDuration(&cfg.Poller.TickTimeout, "COINSTATS_POLLER_TICK_TIMEOUT")
	setDuration(&cfg.Poller.LockTTL, "COINSTATS_POLLER_LOCK_TTL")
	setBool(&cfg.Archive.Enabled, "COINSTATS_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Schedule, "COINSTATS_ARCHIVE_SCHEDULE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "COINSTATS_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "COINSTATS_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "COINSTATS_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "COINSTATS_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "COINSTATS_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "COINSTATS_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "COINSTATS_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "COINSTATS_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "COINSTATS_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "COINSTATS_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "COINSTATS_MODE")
	setStr(&cfg.LogLevel, "COINSTATS_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the variable is
// present, non-empty and parses.

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
		cleaned := splitList(v)
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

// setStringMap parses "k1=v1,k2=v2". Malformed pairs are skipped.
func setStringMap(dst *map[string]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	out := make(map[string]string)
	for _, pair := range splitList(v) {
		k, val, ok := strings.Cut(pair, "=")
		k, val = strings.TrimSpace(k), strings.TrimSpace(val)
		if ok && k != "" && val != "" {
			out[k] = val
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return cleaned
}
