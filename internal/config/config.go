package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Catalog source kinds.
const (
	CatalogSourceFile     = "file"
	CatalogSourcePostgres = "postgres"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv   string
	Port     string
	RedisURL string

	CatalogSource       string
	CatalogFile         string
	DatabaseURL         string
	CatalogMigrate      bool
	CatalogCacheTTL     time.Duration
	CatalogRefresh      time.Duration
	CatalogDefaultLimit int
	CatalogMaxLimit     int

	CartStorageKey string
	CartKeyPrefix  string
	CartLockTTL    time.Duration
	CartTTL        time.Duration
	CartFileDir    string

	MinimumOrderTons       float64
	PricingTierBreakpoints string
	PricingTierDiscounts   string
	DeliveryBrackets       string
	DeliveryPerTonBeyond   string
	CurrencyPrimary        string
	CurrencySecondary      string

	CalcDebounce  time.Duration
	CalcNoticeTTL time.Duration

	CORSAllowedOrigins       []string
	IdempotencyTTL           time.Duration
	RateLimitOrdersPerMinute int
	RateLimitQuotesPerMinute int
	BodyLimitBytes           int64

	OrderQueue        string
	OrderMaxRetry     int
	OrderWebhookURL   string
	WebhookSecret     string
	WebhookTimeout    time.Duration
	WebhookReplayTTL  time.Duration
	WebhookInsecure   bool
	RetryBase         time.Duration
	RetryMaxAttempts  int
	RetryJitter       float64
	BreakerMinReq     int
	BreakerFailRatio  float64
	BreakerOpenFor    time.Duration
	WorkerConcurrency int

	LogFormat        string
	LogLevel         string
	MetricsEnabled   bool
	MetricsNamespace string
	MetricsBuckets   string
	TracingEnabled   bool
	TracingExporter  string
	OTLPEndpoint     string
	TracingSampling  float64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:   valueOrDefault(k.String("APP_ENV"), "development"),
		Port:     valueOrDefault(k.String("PORT"), "8080"),
		RedisURL: strings.TrimSpace(k.String("REDIS_URL")),

		CatalogSource:       strings.ToLower(valueOrDefault(k.String("CATALOG_SOURCE"), CatalogSourceFile)),
		CatalogFile:         valueOrDefault(k.String("CATALOG_FILE"), "data/catalog.json"),
		DatabaseURL:         strings.TrimSpace(k.String("DATABASE_URL")),
		CatalogMigrate:      parseBool(k.String("CATALOG_MIGRATE"), true),
		CatalogCacheTTL:     parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		CatalogRefresh:      parseDuration(k.String("CATALOG_REFRESH"), "1m"),
		CatalogDefaultLimit: parseInt(k.String("CATALOG_DEFAULT_LIMIT"), 20),
		CatalogMaxLimit:     parseInt(k.String("CATALOG_MAX_LIMIT"), 100),

		CartStorageKey: valueOrDefault(k.String("CART_STORAGE_KEY"), "atlantmetal_cart"),
		CartKeyPrefix:  valueOrDefault(k.String("CART_KEY_PREFIX"), "cart"),
		CartLockTTL:    parseDuration(k.String("CART_LOCK_TTL"), "5s"),
		CartTTL:        parseDuration(k.String("CART_TTL"), "720h"),
		CartFileDir:    valueOrDefault(k.String("CART_FILE_DIR"), ".metal"),

		MinimumOrderTons:       parseFloat(k.String("MINIMUM_ORDER_TONS"), 1),
		PricingTierBreakpoints: strings.TrimSpace(k.String("PRICING_TIER_BREAKPOINTS")),
		PricingTierDiscounts:   strings.TrimSpace(k.String("PRICING_TIER_DISCOUNTS")),
		DeliveryBrackets:       strings.TrimSpace(k.String("DELIVERY_BRACKETS")),
		DeliveryPerTonBeyond:   valueOrDefault(k.String("DELIVERY_PER_TON_BEYOND"), "2500"),
		CurrencyPrimary:        valueOrDefault(k.String("CURRENCY_PRIMARY"), "KZT"),
		CurrencySecondary:      valueOrDefault(k.String("CURRENCY_SECONDARY"), "RUB"),

		CalcDebounce:  parseDuration(k.String("CALC_DEBOUNCE"), "300ms"),
		CalcNoticeTTL: parseDuration(k.String("CALC_NOTICE_TTL"), "3s"),

		CORSAllowedOrigins:       splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		IdempotencyTTL:           parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		RateLimitOrdersPerMinute: parseInt(k.String("RATE_LIMIT_ORDERS_PER_MINUTE"), 10),
		RateLimitQuotesPerMinute: parseInt(k.String("RATE_LIMIT_QUOTES_PER_MINUTE"), 120),
		BodyLimitBytes:           int64(parseInt(k.String("BODY_LIMIT_BYTES"), 64<<10)),

		OrderQueue:        valueOrDefault(k.String("ORDER_QUEUE"), "orders"),
		OrderMaxRetry:     parseInt(k.String("ORDER_MAX_RETRY"), 8),
		OrderWebhookURL:   strings.TrimSpace(k.String("ORDER_WEBHOOK_URL")),
		WebhookSecret:     k.String("ORDER_WEBHOOK_SECRET"),
		WebhookTimeout:    parseDuration(k.String("WEBHOOK_TIMEOUT"), "5s"),
		WebhookReplayTTL:  parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "24h"),
		WebhookInsecure:   parseBool(k.String("WEBHOOK_ALLOW_INSECURE_TLS"), false),
		RetryBase:         parseDuration(k.String("RETRY_BASE"), "200ms"),
		RetryMaxAttempts:  parseInt(k.String("RETRY_MAX_ATTEMPTS"), 3),
		RetryJitter:       parseFloat(k.String("RETRY_JITTER"), 0.2),
		BreakerMinReq:     parseInt(k.String("BREAKER_MIN_REQUESTS"), 5),
		BreakerFailRatio:  parseFloat(k.String("BREAKER_FAILURE_RATIO"), 0.5),
		BreakerOpenFor:    parseDuration(k.String("BREAKER_OPEN_FOR"), "30s"),
		WorkerConcurrency: parseInt(k.String("WORKER_CONCURRENCY"), 4),

		LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsEnabled:   parseBool(k.String("OBS_ENABLE_PROMETHEUS"), true),
		MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "metal"),
		MetricsBuckets:   strings.TrimSpace(k.String("OBS_METRICS_BUCKETS_MS")),
		TracingEnabled:   parseBool(k.String("OBS_ENABLE_TRACING"), false),
		TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
		OTLPEndpoint:     strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
		TracingSampling:  parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.CatalogSource {
	case CatalogSourceFile:
		if strings.TrimSpace(c.CatalogFile) == "" {
			return errors.New("CATALOG_FILE is required when CATALOG_SOURCE=file")
		}
	case CatalogSourcePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when CATALOG_SOURCE=postgres")
		}
	default:
		return fmt.Errorf("CATALOG_SOURCE must be %q or %q", CatalogSourceFile, CatalogSourcePostgres)
	}
	if c.MinimumOrderTons < 0 {
		return errors.New("MINIMUM_ORDER_TONS must not be negative")
	}
	if c.CatalogDefaultLimit < 1 || c.CatalogMaxLimit < c.CatalogDefaultLimit {
		return errors.New("CATALOG_DEFAULT_LIMIT must be positive and not above CATALOG_MAX_LIMIT")
	}
	return nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// RedisEnabled reports whether a Redis URL is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisURL != ""
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) int {
	if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		return parsed
	}
	return fallback
}

func parseFloat(value string, fallback float64) float64 {
	if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
		return parsed
	}
	return fallback
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
