package report

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/sales-report/internal/common"
	"github.com/noah-isme/sales-report/internal/obs"
	"github.com/noah-isme/sales-report/internal/resilience"
	"github.com/noah-isme/sales-report/internal/sales"
)

// Result is a generated sales report plus its run metadata.
type Result struct {
	ID          string               `json:"report_id"`
	GeneratedAt time.Time            `json:"generated_at"`
	Cached      bool                 `json:"cached"`
	Sellers     []sales.SellerReport `json:"sellers"`
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Options     sales.Options
	RevenueName string
	BonusName   string
	Cache       *Cache
	Metrics     *obs.ReportMetrics
	Logger      zerolog.Logger
	Now         func() time.Time
}

// Service generates sales reports with optional caching and instrumentation.
type Service struct {
	opts        sales.Options
	revenueName string
	bonusName   string
	cache       *Cache
	metrics     *obs.ReportMetrics
	logger      zerolog.Logger
	now         func() time.Time
}

// NewService constructs a Service. Calculators are checked when a report is generated.
func NewService(cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		opts:        cfg.Options,
		revenueName: cfg.RevenueName,
		bonusName:   cfg.BonusName,
		cache:       cfg.Cache,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		now:         now,
	}
}

// Strategies describes the configured and available calculators.
type Strategies struct {
	Revenue   string              `json:"revenue"`
	Bonus     string              `json:"bonus"`
	Available map[string][]string `json:"available"`
}

// Strategies returns the calculator names in use.
func (s *Service) Strategies() Strategies {
	return Strategies{
		Revenue: s.revenueName,
		Bonus:   s.bonusName,
		Available: map[string][]string{
			"revenue": sales.RevenueStrategyNames(),
			"bonus":   sales.BonusStrategyNames(),
		},
	}
}

// Generate builds the report for data, serving it from cache when an identical
// dataset was analysed with the same strategies within the cache TTL.
func (s *Service) Generate(ctx context.Context, data *sales.Dataset) (Result, error) {
	ctx, span := obs.Tracer().Start(ctx, "report.generate")
	defer span.End()
	started := time.Now()

	fingerprint := s.fingerprint(data)
	if fingerprint != "" {
		cached, ok, err := s.cache.Get(ctx, fingerprint)
		if err != nil {
			s.cacheError(err, "report cache lookup failed")
		} else if ok {
			cached.Cached = true
			span.SetAttributes(attribute.Bool("report.cached", true), attribute.String("report.id", cached.ID))
			s.metrics.Observe(obs.ReportResultCached, len(cached.Sellers), time.Since(started))
			s.logger.Debug().Str("report_id", cached.ID).Msg("report served from cache")
			return cached, nil
		}
	}

	reports, err := sales.Analyze(data, s.opts)
	if err != nil {
		appErr := toAppError(err)
		result := obs.ReportResultInvalid
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			result = obs.ReportResultError
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, appErr.Code)
		s.metrics.Observe(result, 0, time.Since(started))
		s.logger.Warn().Err(err).Str("code", appErr.Code).Msg("report rejected")
		return Result{}, appErr
	}

	res := Result{
		ID:          uuid.NewString(),
		GeneratedAt: s.now().UTC(),
		Sellers:     reports,
	}
	if fingerprint != "" {
		if err := s.cache.Set(ctx, fingerprint, res); err != nil {
			s.cacheError(err, "report cache store failed")
		}
	}

	span.SetAttributes(
		attribute.String("report.id", res.ID),
		attribute.Int("report.sellers", len(reports)),
		attribute.Int("report.purchase_records", len(data.PurchaseRecords)),
	)
	s.metrics.Observe(obs.ReportResultOK, len(reports), time.Since(started))
	s.logger.Debug().
		Str("report_id", res.ID).
		Int("sellers", len(reports)).
		Int("purchase_records", len(data.PurchaseRecords)).
		Dur("elapsed", time.Since(started)).
		Msg("report generated")
	return res, nil
}

// Revenue evaluates the configured revenue calculator for a single line.
func (s *Service) Revenue(item sales.LineItem, product sales.Product) (float64, error) {
	if s.opts.CalculateRevenue == nil {
		return 0, toAppError(sales.ErrMissingCalculators)
	}
	return s.opts.CalculateRevenue(item, product), nil
}

func (s *Service) cacheError(err error, msg string) {
	if errors.Is(err, resilience.ErrOpenCircuit) {
		s.logger.Debug().Err(err).Msg(msg)
		return
	}
	s.logger.Warn().Err(err).Msg(msg)
}

func (s *Service) fingerprint(data *sales.Dataset) string {
	if !s.cache.Enabled() || data == nil {
		return ""
	}
	fp, err := common.HashJSON(struct {
		Revenue string
		Bonus   string
		Data    *sales.Dataset
	}{s.revenueName, s.bonusName, data})
	if err != nil {
		s.logger.Warn().Err(err).Msg("fingerprint dataset")
		return ""
	}
	return fp
}

func toAppError(err error) *common.AppError {
	switch {
	case errors.Is(err, sales.ErrInvalidSellerData):
		return common.NewAppError("INVALID_SELLER_DATA", "sellers must be a non-empty list", http.StatusUnprocessableEntity, err)
	case errors.Is(err, sales.ErrInvalidData):
		return common.NewAppError("INVALID_DATA", "products and purchase_records must be lists", http.StatusUnprocessableEntity, err)
	case errors.Is(err, sales.ErrUnknownProduct):
		return common.NewAppError("UNKNOWN_PRODUCT", err.Error(), http.StatusUnprocessableEntity, err)
	case errors.Is(err, sales.ErrNonFiniteResult):
		return common.NewAppError("NON_FINITE_RESULT", err.Error(), http.StatusUnprocessableEntity, err)
	case errors.Is(err, sales.ErrMissingCalculators):
		return common.NewAppError("MISSING_CALCULATORS", "revenue and bonus calculators are not configured", http.StatusInternalServerError, err)
	default:
		return common.NewAppError("INTERNAL", "report generation failed", http.StatusInternalServerError, err)
	}
}
