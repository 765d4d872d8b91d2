package obs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Report outcome labels.
const (
	ReportResultOK      = "ok"
	ReportResultCached  = "cached"
	ReportResultInvalid = "invalid"
	ReportResultError   = "error"
)

// ReportMetrics tracks sales report generation.
type ReportMetrics struct {
	Generated *prometheus.CounterVec
	Duration  prometheus.Histogram
	Sellers   prometheus.Histogram
}

// NewReportMetrics registers and returns report collectors.
func NewReportMetrics(namespace string, reg prometheus.Registerer) *ReportMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &ReportMetrics{
		Generated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_generated_total",
			Help:      "Count of sales report requests by outcome.",
		}, []string{"result"}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_duration_ms",
			Help:      "Time spent building a sales report in milliseconds.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 1000},
		}),
		Sellers: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_sellers",
			Help:      "Number of sellers per generated report.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}
	m.Generated = register(reg, m.Generated)
	m.Duration = register(reg, m.Duration)
	m.Sellers = register(reg, m.Sellers)
	return m
}

// Observe records one report outcome. Nil receivers are ignored.
func (m *ReportMetrics) Observe(result string, sellers int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Generated.WithLabelValues(result).Inc()
	if result == ReportResultOK {
		m.Duration.Observe(DurationMillis(elapsed))
		m.Sellers.Observe(float64(sellers))
	}
}
