package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/sales-report/internal/auth"
	"github.com/noah-isme/sales-report/internal/config"
	"github.com/noah-isme/sales-report/internal/health"
	"github.com/noah-isme/sales-report/internal/obs"
	"github.com/noah-isme/sales-report/internal/ratelimit"
	"github.com/noah-isme/sales-report/internal/report"
	"github.com/noah-isme/sales-report/internal/resilience"
	"github.com/noah-isme/sales-report/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	if cfg.TracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "salesreport-api",
			Endpoint:      cfg.OTLPEndpoint,
			Exporter:      "otlp",
			SamplingRatio: cfg.TracingSampleRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			cfg.TracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	redisClient := connectRedis(cfg, logger)
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
	}

	opts, err := cfg.ReportOptions()
	if err != nil {
		logger.Fatal().Err(err).Msg("resolve report strategies")
	}

	var (
		httpMetrics    *obs.HTTPMetrics
		reportMetrics  *obs.ReportMetrics
		breakerMetrics *resilience.Metrics
	)
	if cfg.MetricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(cfg.MetricsNamespace, obs.ParseBucketsCSV(cfg.MetricsBucketsMS), nil)
		reportMetrics = obs.NewReportMetrics(cfg.MetricsNamespace, nil)
		breakerMetrics = resilience.NewMetrics(cfg.MetricsNamespace, nil)
	}
	cacheBreaker := resilience.NewBreaker(resilience.BreakerConfig{
		Target:       "report_cache",
		MinRequests:  cfg.CacheBreakerMinRequests,
		FailureRatio: cfg.CacheBreakerFailureRatio,
		OpenFor:      cfg.CacheBreakerOpenFor,
		Metrics:      breakerMetrics,
		Logger:       logger,
	})

	reportSvc := report.NewService(report.ServiceConfig{
		Options:     opts,
		RevenueName: cfg.ReportRevenueStrategy,
		BonusName:   cfg.ReportBonusStrategy,
		Cache:       report.NewCache(redisClient, cfg.ReportCacheTTL).WithBreaker(cacheBreaker),
		Metrics:     reportMetrics,
		Logger:      logger.With().Str("component", "report").Logger(),
	})
	reportHandler := report.NewHandler(reportSvc)

	authMiddleware := auth.Middleware{}
	if cfg.AuthEnabled() {
		verifier, err := auth.NewVerifier(auth.VerifierConfig{
			Secret:   cfg.JWTSecret,
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise token verifier")
		}
		authMiddleware.Verifier = verifier
	}

	rateLimit := ratelimit.Handler{
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limit store") },
	}
	lim, err := ratelimit.New(cfg.RateLimitRate, redisClient)
	switch {
	case errors.Is(err, ratelimit.ErrDisabled):
		logger.Info().Msg("rate limiting disabled")
	case err != nil:
		logger.Fatal().Err(err).Str("rate", cfg.RateLimitRate).Msg("initialise rate limiter")
	default:
		rateLimit.Limiter = lim
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:         300,
	}))
	r.Use(security.Headers{Enable: cfg.SecureHeadersEnabled, EnableHSTS: cfg.HSTSEnabled}.Middleware)

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{RedisTimeout: cfg.ReadyRedisTimeout}
	if redisClient != nil {
		healthHandler.Checker = readinessChecker{redis: redisClient}
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1/reports", func(rr chi.Router) {
		rr.Use(security.BodyLimit{Max: cfg.ReportMaxBodyBytes}.Middleware)
		rr.Use(authMiddleware.RequireAuth)
		rr.Use(rateLimit.Middleware)
		reportHandler.Routes(rr)
	})

	var handler http.Handler = r
	if cfg.TracingEnabled {
		handler = otelhttp.NewHandler(r, "salesreport-api")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("revenue_strategy", cfg.ReportRevenueStrategy).
			Str("bonus_strategy", cfg.ReportBonusStrategy).
			Bool("cache", redisClient != nil).
			Bool("auth", cfg.AuthEnabled()).
			Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
		return
	case <-ctx.Done():
	}

	health.SetReady(false)
	logger.Info().Dur("timeout", cfg.ShutdownTimeout).Msg("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}

// connectRedis returns nil when REDIS_URL is unset; the report cache and shared
// rate limit counters are then disabled.
func connectRedis(cfg *config.Config, logger zerolog.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		return nil
	}
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(redisOpts)
	if cfg.TracingEnabled {
		if err := redisotel.InstrumentTracing(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
	}
	if cfg.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	redis *redis.Client
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}
