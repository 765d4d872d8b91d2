package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/noah-isme/sales-report/internal/sales"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	CORSAllowedOrigins []string

	ReportCacheTTL        time.Duration
	ReportRevenueStrategy string
	ReportBonusStrategy   string
	ReportMaxBodyBytes    int64

	CacheBreakerMinRequests  int
	CacheBreakerFailureRatio float64
	CacheBreakerOpenFor      time.Duration

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	RateLimitRate string

	LogFormat          string
	LogLevel           string
	MetricsNamespace   string
	MetricsEnabled     bool
	MetricsBucketsMS   string
	TracingEnabled     bool
	OTLPEndpoint       string
	TracingSampleRatio float64

	SecureHeadersEnabled bool
	HSTSEnabled          bool
	ShutdownTimeout      time.Duration
	ReadyRedisTimeout    time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		ReportCacheTTL:        parseDuration(k.String("REPORT_CACHE_TTL"), "5m"),
		ReportRevenueStrategy: valueOrDefault(k.String("REPORT_REVENUE_STRATEGY"), sales.RevenueSimple),
		ReportBonusStrategy:   valueOrDefault(k.String("REPORT_BONUS_STRATEGY"), sales.BonusProfitRank),
		ReportMaxBodyBytes:    parseInt64(k.String("REPORT_MAX_BODY_BYTES"), 5<<20),

		CacheBreakerMinRequests:  int(parseInt64(k.String("REPORT_CACHE_BREAKER_MIN_REQUESTS"), 5)),
		CacheBreakerFailureRatio: parseFloat(k.String("REPORT_CACHE_BREAKER_FAILURE_RATIO"), 0.5),
		CacheBreakerOpenFor:      parseDuration(k.String("REPORT_CACHE_BREAKER_OPEN_FOR"), "30s"),

		JWTSecret:   strings.TrimSpace(k.String("JWT_SECRET")),
		JWTIssuer:   strings.TrimSpace(k.String("JWT_ISSUER")),
		JWTAudience: strings.TrimSpace(k.String("JWT_AUDIENCE")),

		LogFormat:          valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:           valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsNamespace:   valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "salesreport"),
		MetricsEnabled:     parseBool(k.String("OBS_ENABLE_PROMETHEUS"), true),
		MetricsBucketsMS:   k.String("OBS_METRICS_BUCKETS_MS"),
		TracingEnabled:     parseBool(k.String("OBS_ENABLE_TRACING"), false),
		OTLPEndpoint:       strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
		TracingSampleRatio: parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),

		SecureHeadersEnabled: parseBool(k.String("SECURE_HEADERS_ENABLED"), true),
		HSTSEnabled:          parseBool(k.String("SECURE_HSTS_ENABLED"), false),
		ShutdownTimeout:      parseDuration(k.String("SHUTDOWN_TIMEOUT"), "10s"),
		ReadyRedisTimeout:    parseDuration(k.String("HEALTH_READY_REDIS_TIMEOUT"), "300ms"),
	}

	// an explicitly empty RATE_LIMIT_RATE disables limiting
	if k.Exists("RATE_LIMIT_RATE") {
		cfg.RateLimitRate = strings.TrimSpace(k.String("RATE_LIMIT_RATE"))
	} else {
		cfg.RateLimitRate = "60-M"
	}

	if _, err := sales.OptionsFor(cfg.ReportRevenueStrategy, cfg.ReportBonusStrategy); err != nil {
		return nil, fmt.Errorf("report strategies: %w", err)
	}
	if cfg.ReportMaxBodyBytes <= 0 {
		return nil, fmt.Errorf("REPORT_MAX_BODY_BYTES must be positive")
	}

	return cfg, nil
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

// AuthEnabled reports whether report routes require a bearer token.
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}

// ReportOptions resolves the configured calculators.
func (c *Config) ReportOptions() (sales.Options, error) {
	return sales.OptionsFor(c.ReportRevenueStrategy, c.ReportBonusStrategy)
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
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
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

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseInt64(value string, fallback int64) int64 {
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]*string, len(env))
	for key := range env {
		if prev, ok := os.LookupEnv(key); ok {
			original[key] = &prev
		} else {
			original[key] = nil
		}
		if err := os.Setenv(key, env[key]); err != nil {
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

func restoreEnv(values map[string]*string) error {
	var errs []string
	for key, value := range values {
		var err error
		if value == nil {
			err = os.Unsetenv(key)
		} else {
			err = os.Setenv(key, *value)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
