// Package config loads the catalog configuration from the environment.
// A .env file in the working directory is read first when present; real
// environment variables always win over it.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultFeedURL          = "https://docs.google.com/spreadsheets/d/e/2PACX-1vSWEfEH0eOxllBLT0rFbvTXC8aUE_Xgi0NtBmW_sp9gqSyGmCAsXttFQ2EHQULlQckiZKv42mFBTvVs/pub?output=csv"
	DefaultImageBaseURL     = "https://drive.google.com/uc?export=view&id="
	DefaultFallbackImageURL = "https://via.placeholder.com/300x400?text=No+Image"
)

type Config struct {
	AppName string
	Port    string
	Debug   bool

	Feed      FeedConfig
	Images    ImageConfig
	Catalog   CatalogConfig
	Metrics   MetricsConfig
	RateLimit RateLimitConfig
}

type FeedConfig struct {
	// URL of the published CSV. Ignored when DSN is set.
	URL string
	// DSN switches the feed to a read-only Postgres table.
	DSN   string
	Table string

	Timeout         time.Duration
	MaxRetries      int
	RetryBaseDelay  time.Duration
	RefreshInterval time.Duration
}

type ImageConfig struct {
	BaseURL     string
	FallbackURL string
}

type CatalogConfig struct {
	PageSize      int
	CacheDuration time.Duration
}

type MetricsConfig struct {
	Enabled bool
	Token   string
}

type RateLimitConfig struct {
	PerMinute int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppName: getEnv("APP_NAME", "Pierrot"),
		Port:    getEnv("PORT", "8082"),
		Debug:   os.Getenv("DEBUG") == "true",
		Feed: FeedConfig{
			URL:             getEnv("FEED_URL", getEnv("GOOGLE_SHEETS_URL", DefaultFeedURL)),
			DSN:             os.Getenv("FEED_DSN"),
			Table:           getEnv("FEED_TABLE", "products"),
			Timeout:         getEnvAsDuration("FEED_TIMEOUT", 30*time.Second),
			MaxRetries:      getEnvAsInt("FEED_MAX_RETRIES", 3),
			RetryBaseDelay:  getEnvAsDuration("FEED_RETRY_BASE_DELAY", time.Second),
			RefreshInterval: getEnvAsDuration("FEED_REFRESH_INTERVAL", 0),
		},
		Images: ImageConfig{
			BaseURL:     getEnv("IMAGE_BASE_URL", getEnv("GOOGLE_DRIVE_BASE_URL", DefaultImageBaseURL)),
			FallbackURL: getEnv("FALLBACK_IMAGE_URL", DefaultFallbackImageURL),
		},
		Catalog: CatalogConfig{
			PageSize:      getEnvAsInt("PAGE_SIZE", getEnvAsInt("PRODUCTS_PER_PAGE", 12)),
			CacheDuration: time.Duration(getEnvAsInt("CACHE_DURATION_MS", 5*60*1000)) * time.Millisecond,
		},
		Metrics: MetricsConfig{
			Enabled: getEnvAsBool("METRICS_ENABLED", true),
			Token:   os.Getenv("METRICS_TOKEN"),
		},
		RateLimit: RateLimitConfig{
			PerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 120),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Feed.DSN == "" {
		if u, err := url.Parse(c.Feed.URL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("FEED_URL must be an absolute URL, got %q", c.Feed.URL))
		}
	}
	if c.Feed.MaxRetries < 0 {
		errs = append(errs, errors.New("FEED_MAX_RETRIES must be >= 0"))
	}
	if c.Feed.RetryBaseDelay <= 0 {
		errs = append(errs, errors.New("FEED_RETRY_BASE_DELAY must be > 0"))
	}
	if c.Feed.Timeout < 0 || c.Feed.RefreshInterval < 0 {
		errs = append(errs, errors.New("FEED_TIMEOUT and FEED_REFRESH_INTERVAL must be >= 0"))
	}
	if c.Catalog.PageSize <= 0 {
		errs = append(errs, errors.New("PAGE_SIZE must be > 0"))
	}
	if c.Catalog.CacheDuration < 0 {
		errs = append(errs, errors.New("CACHE_DURATION_MS must be >= 0"))
	}
	if c.RateLimit.PerMinute < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_MINUTE must be >= 0"))
	}

	return errors.Join(errs...)
}

// DebugFor applies the runtime ?debug= override. Only "true" turns it on;
// any other value present turns it off.
func (c *Config) DebugFor(q url.Values) bool {
	if q.Has("debug") {
		return q.Get("debug") == "true"
	}
	return c.Debug
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
