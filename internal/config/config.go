// Package config defines the top-level configuration for the auction
// arbitrage scanner and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by AUCTIONARB_* environment variables.
type Config struct {
	MacBid   MacBidConfig   `toml:"macbid"`
	Ebay     EbayConfig     `toml:"ebay"`
	Keepa    KeepaConfig    `toml:"keepa"`
	Email    EmailConfig    `toml:"email"`
	Fees     FeesConfig     `toml:"fees"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Schedule ScheduleConfig `toml:"schedule"`
	Lookup   LookupConfig   `toml:"lookup"`
	Retry    RetryConfig    `toml:"retry"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// MacBidConfig holds the auction source endpoints.
type MacBidConfig struct {
	BaseURL   string   `toml:"base_url"`
	APIURL    string   `toml:"api_url"`
	MaxPages  int      `toml:"max_pages"`
	UserAgent string   `toml:"user_agent"`
	Timeout   duration `toml:"timeout"`
}

// EbayConfig holds eBay Browse API credentials.
type EbayConfig struct {
	ClientID          string   `toml:"client_id"`
	ClientSecret      string   `toml:"client_secret"`
	APIBase           string   `toml:"api_base"`
	ResultLimit       int      `toml:"result_limit"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	CacheTTL          duration `toml:"cache_ttl"`
	Timeout           duration `toml:"timeout"`
}

// KeepaConfig holds Keepa (Amazon price history) API credentials.
type KeepaConfig struct {
	APIKey            string   `toml:"api_key"`
	BaseURL           string   `toml:"base_url"`
	Domain            int      `toml:"domain"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	CacheTTL          duration `toml:"cache_ttl"`
	Timeout           duration `toml:"timeout"`
}

// EmailConfig holds the transactional email provider settings used for
// subscriber alerts.
type EmailConfig struct {
	ResendAPIKey string   `toml:"resend_api_key"`
	APIURL       string   `toml:"api_url"`
	FromAddress  string   `toml:"from_address"`
	Timeout      duration `toml:"timeout"`
}

// FeesConfig holds the fee schedule and tax rate applied to every
// opportunity.
type FeesConfig struct {
	BuyerPremiumRate    float64            `toml:"buyer_premium_rate"`
	LotFee              float64            `toml:"lot_fee"`
	TaxRate             float64            `toml:"tax_rate"`
	EbayFVFRate         float64            `toml:"ebay_fvf_rate"`
	EbayPerOrderFee     float64            `toml:"ebay_per_order_fee"`
	AmazonReferralRates map[string]float64 `toml:"amazon_referral_rates"`
	AmazonDefaultRate   float64            `toml:"amazon_default_rate"`
	UseFBA              bool               `toml:"use_fba"`
	IsLarge             bool               `toml:"is_large"`
	FBASmall            float64            `toml:"fba_small"`
	FBALarge            float64            `toml:"fba_large"`
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
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters. Raw scrape
// payloads are archived only when Enabled is set.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ScheduleConfig holds the intervals of the three periodic jobs.
type ScheduleConfig struct {
	ScrapeInterval  duration `toml:"scrape_interval"`
	RefreshInterval duration `toml:"refresh_interval"`
	AlertInterval   duration `toml:"alert_interval"`
	RunOnStart      bool     `toml:"run_on_start"`
}

// LookupConfig controls when products are (re-)priced.
type LookupConfig struct {
	StaleAfter     duration `toml:"stale_after"`
	MaxStalePerRun int      `toml:"max_stale_per_run"`
	Concurrency    int      `toml:"concurrency"`
}

// RetryConfig bounds retries of every external call.
type RetryConfig struct {
	MaxAttempts int      `toml:"max_attempts"`
	BaseDelay   duration `toml:"base_delay"`
	MaxDelay    duration `toml:"max_delay"`
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

// NotifyConfig holds operator notification channels. Subscriber alerts go
// through Email instead.
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
		MacBid: MacBidConfig{
			BaseURL:   "https://mac.bid",
			APIURL:    "https://api.macdiscount.com",
			MaxPages:  5,
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
			Timeout:   duration{30 * time.Second},
		},
		Ebay: EbayConfig{
			APIBase:           "https://api.ebay.com",
			ResultLimit:       20,
			RequestsPerSecond: 5,
			CacheTTL:          duration{2 * time.Hour},
			Timeout:           duration{15 * time.Second},
		},
		Keepa: KeepaConfig{
			BaseURL:           "https://api.keepa.com",
			Domain:            1,
			RequestsPerSecond: 1,
			CacheTTL:          duration{4 * time.Hour},
			Timeout:           duration{20 * time.Second},
		},
		Email: EmailConfig{
			APIURL:      "https://api.resend.com",
			FromAddress: "alerts@macbid-arbitrage.com",
			Timeout:     duration{10 * time.Second},
		},
		Fees: FeesConfig{
			BuyerPremiumRate: 0.15,
			LotFee:           3.00,
			TaxRate:          0.06,
			EbayFVFRate:      0.136,
			EbayPerOrderFee:  0.40,
			AmazonReferralRates: map[string]float64{
				"Electronics":    0.08,
				"Computers":      0.08,
				"Video Games":    0.15,
				"Home & Kitchen": 0.15,
				"Toys & Games":   0.15,
				"Clothing":       0.17,
				"Beauty":         0.08,
				"Health":         0.08,
				"Sports":         0.15,
				"Tools":          0.12,
			},
			AmazonDefaultRate: 0.15,
			UseFBA:            true,
			FBASmall:          3.22,
			FBALarge:          5.50,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "arbitrage",
			User:          "arbitrage",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "auctionarb-raw",
			Prefix:         "raw",
			ForcePathStyle: true,
		},
		Schedule: ScheduleConfig{
			ScrapeInterval:  duration{10 * time.Minute},
			RefreshInterval: duration{15 * time.Minute},
			AlertInterval:   duration{20 * time.Minute},
			RunOnStart:      true,
		},
		Lookup: LookupConfig{
			StaleAfter:     duration{12 * time.Hour},
			MaxStalePerRun: 50,
			Concurrency:    4,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   duration{time.Second},
			MaxDelay:    duration{30 * time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"ingest_failed", "lookup_abandoned", "refresh_failed", "alert_abandoned"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"ingest":  true,
	"refresh": true,
	"alert":   true,
	"once":    true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func (c *Config) runs(job string) bool {
	m := strings.ToLower(c.Mode)
	return m == job || m == "full" || m == "once"
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: ingest, refresh, alert, once, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Ingest needs the source and at least one lookup provider.
	if c.runs("ingest") {
		if c.MacBid.BaseURL == "" {
			errs = append(errs, "macbid: base_url must not be empty")
		}
		if c.MacBid.MaxPages < 0 {
			errs = append(errs, "macbid: max_pages must be >= 0")
		}
		ebay := c.Ebay.ClientID != "" || c.Ebay.ClientSecret != ""
		if ebay && (c.Ebay.ClientID == "" || c.Ebay.ClientSecret == "") {
			errs = append(errs, "ebay: client_id and client_secret must be set together")
		}
		if !ebay && c.Keepa.APIKey == "" {
			errs = append(errs, "lookup: at least one of ebay credentials or keepa.api_key is required for mode "+c.Mode)
		}
	}

	if c.runs("alert") {
		if c.Email.ResendAPIKey == "" {
			errs = append(errs, "email: resend_api_key is required for mode "+c.Mode)
		}
		if c.Email.FromAddress == "" {
			errs = append(errs, "email: from_address must not be empty")
		}
	}

	// Fees
	if c.Fees.BuyerPremiumRate < 0 || c.Fees.BuyerPremiumRate >= 1 {
		errs = append(errs, "fees: buyer_premium_rate must be in [0, 1)")
	}
	if c.Fees.TaxRate < 0 || c.Fees.TaxRate >= 1 {
		errs = append(errs, "fees: tax_rate must be in [0, 1)")
	}
	if c.Fees.LotFee < 0 {
		errs = append(errs, "fees: lot_fee must be >= 0")
	}
	for cat, r := range c.Fees.AmazonReferralRates {
		if r < 0 || r >= 1 {
			errs = append(errs, fmt.Sprintf("fees: amazon referral rate for %q must be in [0, 1)", cat))
		}
	}

	// Postgres
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

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Schedule
	for name, d := range map[string]duration{
		"scrape_interval":  c.Schedule.ScrapeInterval,
		"refresh_interval": c.Schedule.RefreshInterval,
		"alert_interval":   c.Schedule.AlertInterval,
	} {
		if d.Duration < time.Minute {
			errs = append(errs, fmt.Sprintf("schedule: %s must be at least 1m, got %s", name, d.Duration))
		}
	}

	// Lookup and retry
	if c.Lookup.Concurrency < 1 {
		errs = append(errs, "lookup: concurrency must be >= 1")
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry: max_attempts must be >= 1")
	}
	if c.Retry.BaseDelay.Duration <= 0 {
		errs = append(errs, "retry: base_delay must be > 0")
	}
	for name, d := range map[string]duration{
		"macbid.timeout": c.MacBid.Timeout,
		"ebay.timeout":   c.Ebay.Timeout,
		"keepa.timeout":  c.Keepa.Timeout,
		"email.timeout":  c.Email.Timeout,
	} {
		if d.Duration <= 0 {
			errs = append(errs, name+" must be > 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
