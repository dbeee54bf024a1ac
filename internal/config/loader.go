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
// built-in defaults, applies AUCTIONARB_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
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

// applyEnvOverrides reads well-known AUCTIONARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). Unprefixed names used by earlier deployments are honoured first so
// the prefixed form wins when both are present.
func applyEnvOverrides(cfg *Config) {
	// ── Compatibility aliases ──
	setStr(&cfg.Postgres.DSN, "DATABASE_URL")
	setStr(&cfg.Ebay.ClientID, "EBAY_CLIENT_ID")
	setStr(&cfg.Ebay.ClientSecret, "EBAY_CLIENT_SECRET")
	setStr(&cfg.Keepa.APIKey, "KEEPA_API_KEY")
	setStr(&cfg.Email.ResendAPIKey, "RESEND_API_KEY")
	setStr(&cfg.Email.FromAddress, "ALERT_FROM_EMAIL")

	// ── MacBid ──
	setStr(&cfg.MacBid.BaseURL, "AUCTIONARB_MACBID_BASE_URL")
	setStr(&cfg.MacBid.APIURL, "AUCTIONARB_MACBID_API_URL")
	setInt(&cfg.MacBid.MaxPages, "AUCTIONARB_MACBID_MAX_PAGES")
	setStr(&cfg.MacBid.UserAgent, "AUCTIONARB_MACBID_USER_AGENT")
	setDuration(&cfg.MacBid.Timeout, "AUCTIONARB_MACBID_TIMEOUT")

	// ── eBay ──
	setStr(&cfg.Ebay.ClientID, "AUCTIONARB_EBAY_CLIENT_ID")
	setStr(&cfg.Ebay.ClientSecret, "AUCTIONARB_EBAY_CLIENT_SECRET")
	setStr(&cfg.Ebay.APIBase, "AUCTIONARB_EBAY_API_BASE")
	setInt(&cfg.Ebay.ResultLimit, "AUCTIONARB_EBAY_RESULT_LIMIT")
	setFloat64(&cfg.Ebay.RequestsPerSecond, "AUCTIONARB_EBAY_REQUESTS_PER_SECOND")
	setDuration(&cfg.Ebay.CacheTTL, "AUCTIONARB_EBAY_CACHE_TTL")
	setDuration(&cfg.Ebay.Timeout, "AUCTIONARB_EBAY_TIMEOUT")

	// ── Keepa ──
	setStr(&cfg.Keepa.APIKey, "AUCTIONARB_KEEPA_API_KEY")
	setStr(&cfg.Keepa.BaseURL, "AUCTIONARB_KEEPA_BASE_URL")
	setInt(&cfg.Keepa.Domain, "AUCTIONARB_KEEPA_DOMAIN")
	setFloat64(&cfg.Keepa.RequestsPerSecond, "AUCTIONARB_KEEPA_REQUESTS_PER_SECOND")
	setDuration(&cfg.Keepa.CacheTTL, "AUCTIONARB_KEEPA_CACHE_TTL")
	setDuration(&cfg.Keepa.Timeout, "AUCTIONARB_KEEPA_TIMEOUT")

	// ── Email ──
	setStr(&cfg.Email.ResendAPIKey, "AUCTIONARB_EMAIL_RESEND_API_KEY")
	setStr(&cfg.Email.APIURL, "AUCTIONARB_EMAIL_API_URL")
	setStr(&cfg.Email.FromAddress, "AUCTIONARB_EMAIL_FROM_ADDRESS")
	setDuration(&cfg.Email.Timeout, "AUCTIONARB_EMAIL_TIMEOUT")

	// ── Fees ──
	setFloat64(&cfg.Fees.BuyerPremiumRate, "AUCTIONARB_FEES_BUYER_PREMIUM_RATE")
	setFloat64(&cfg.Fees.LotFee, "AUCTIONARB_FEES_LOT_FEE")
	setFloat64(&cfg.Fees.TaxRate, "DEFAULT_TAX_RATE")
	setFloat64(&cfg.Fees.TaxRate, "AUCTIONARB_FEES_TAX_RATE")
	setFloat64(&cfg.Fees.EbayFVFRate, "AUCTIONARB_FEES_EBAY_FVF_RATE")
	setFloat64(&cfg.Fees.EbayPerOrderFee, "AUCTIONARB_FEES_EBAY_PER_ORDER_FEE")
	setFloat64(&cfg.Fees.AmazonDefaultRate, "AUCTIONARB_FEES_AMAZON_DEFAULT_RATE")
	setBool(&cfg.Fees.UseFBA, "AUCTIONARB_FEES_USE_FBA")
	setBool(&cfg.Fees.IsLarge, "AUCTIONARB_FEES_IS_LARGE")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "AUCTIONARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "AUCTIONARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "AUCTIONARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "AUCTIONARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "AUCTIONARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "AUCTIONARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "AUCTIONARB_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "AUCTIONARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "AUCTIONARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "AUCTIONARB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "AUCTIONARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "AUCTIONARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "AUCTIONARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "AUCTIONARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "AUCTIONARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "AUCTIONARB_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "AUCTIONARB_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "AUCTIONARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "AUCTIONARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "AUCTIONARB_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "AUCTIONARB_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "AUCTIONARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "AUCTIONARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "AUCTIONARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "AUCTIONARB_S3_FORCE_PATH_STYLE")

	// ── Schedule ──
	setDuration(&cfg.Schedule.ScrapeInterval, "AUCTIONARB_SCHEDULE_SCRAPE_INTERVAL")
	setDuration(&cfg.Schedule.RefreshInterval, "AUCTIONARB_SCHEDULE_REFRESH_INTERVAL")
	setDuration(&cfg.Schedule.AlertInterval, "AUCTIONARB_SCHEDULE_ALERT_INTERVAL")
	setBool(&cfg.Schedule.RunOnStart, "AUCTIONARB_SCHEDULE_RUN_ON_START")

	// ── Lookup / Retry ──
	setDuration(&cfg.Lookup.StaleAfter, "AUCTIONARB_LOOKUP_STALE_AFTER")
	setInt(&cfg.Lookup.MaxStalePerRun, "AUCTIONARB_LOOKUP_MAX_STALE_PER_RUN")
	setInt(&cfg.Lookup.Concurrency, "AUCTIONARB_LOOKUP_CONCURRENCY")
	setInt(&cfg.Retry.MaxAttempts, "AUCTIONARB_RETRY_MAX_ATTEMPTS")
	setDuration(&cfg.Retry.BaseDelay, "AUCTIONARB_RETRY_BASE_DELAY")
	setDuration(&cfg.Retry.MaxDelay, "AUCTIONARB_RETRY_MAX_DELAY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "AUCTIONARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "AUCTIONARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "AUCTIONARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "AUCTIONARB_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "AUCTIONARB_MODE")
	setStr(&cfg.LogLevel, "AUCTIONARB_LOG_LEVEL")
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
