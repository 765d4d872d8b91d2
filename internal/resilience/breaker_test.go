package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sales-report/internal/resilience"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestBreakerTransitions(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	metrics := resilience.NewMetrics("test", prometheus.NewRegistry())
	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Target:       "report_cache",
		MinRequests:  2,
		FailureRatio: 0.5,
		OpenFor:      time.Second,
		Metrics:      metrics,
		Logger:       zerolog.Nop(),
		Now:          clock.Now,
	})
	ctx := context.Background()

	gen, ok := breaker.Allow(ctx)
	require.True(t, ok)
	breaker.Report(ctx, gen, false)
	require.Equal(t, resilience.Closed, breaker.State())
	gen, ok = breaker.Allow(ctx)
	require.True(t, ok)
	breaker.Report(ctx, gen, false)

	require.Equal(t, resilience.Open, breaker.State())
	_, ok = breaker.Allow(ctx)
	require.False(t, ok)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.State.WithLabelValues("report_cache")))

	clock.Advance(time.Second)
	gen, ok = breaker.Allow(ctx)
	require.True(t, ok, "trial call after cool-off")
	_, ok = breaker.Allow(ctx)
	require.False(t, ok, "single trial call while half-open")
	require.Equal(t, 2.0, testutil.ToFloat64(metrics.State.WithLabelValues("report_cache")))

	breaker.Report(ctx, gen, true)
	require.Equal(t, resilience.Closed, breaker.State())
	_, ok = breaker.Allow(ctx)
	require.True(t, ok)

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Transitions.WithLabelValues("report_cache", "closed", "open")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Transitions.WithLabelValues("report_cache", "open", "half_open")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Transitions.WithLabelValues("report_cache", "half_open", "closed")))
}

func TestBreakerFailedTrialReopens(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	breaker := resilience.NewBreaker(resilience.BreakerConfig{MinRequests: 1, OpenFor: time.Minute, Now: clock.Now})
	ctx := context.Background()

	gen, _ := breaker.Allow(ctx)
	breaker.Report(ctx, gen, false)
	require.Equal(t, resilience.Open, breaker.State())

	clock.Advance(time.Minute)
	gen, ok := breaker.Allow(ctx)
	require.True(t, ok)
	breaker.Report(ctx, gen, false)
	require.Equal(t, resilience.Open, breaker.State())
	_, ok = breaker.Allow(ctx)
	require.False(t, ok)
}

func TestBreakerIgnoresReportsFromEarlierState(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	breaker := resilience.NewBreaker(resilience.BreakerConfig{MinRequests: 1, OpenFor: time.Minute, Now: clock.Now})
	ctx := context.Background()

	slow, ok := breaker.Allow(ctx)
	require.True(t, ok)

	failing, ok := breaker.Allow(ctx)
	require.True(t, ok)
	breaker.Report(ctx, failing, false)
	require.Equal(t, resilience.Open, breaker.State())

	clock.Advance(time.Minute)
	trial, ok := breaker.Allow(ctx)
	require.True(t, ok)
	require.Equal(t, resilience.HalfOpen, breaker.State())

	breaker.Report(ctx, slow, true)
	require.Equal(t, resilience.HalfOpen, breaker.State(), "late success from the closed period must not close the breaker")
	_, ok = breaker.Allow(ctx)
	require.False(t, ok, "trial call still outstanding")

	breaker.Report(ctx, trial, true)
	require.Equal(t, resilience.Closed, breaker.State())
}

func TestBreakerDo(t *testing.T) {
	breaker := resilience.NewBreaker(resilience.BreakerConfig{MinRequests: 2, FailureRatio: 0.5})
	ctx := context.Background()
	boom := errors.New("boom")
	miss := errors.New("miss")
	ignoreMiss := func(err error) bool { return errors.Is(err, miss) }

	for i := 0; i < 4; i++ {
		err := breaker.Do(ctx, func(context.Context) error { return miss }, ignoreMiss)
		require.ErrorIs(t, err, miss)
	}
	require.Equal(t, resilience.Closed, breaker.State())

	require.ErrorIs(t, breaker.Do(ctx, func(context.Context) error { return boom }, ignoreMiss), boom)
	require.ErrorIs(t, breaker.Do(ctx, func(context.Context) error { return boom }, ignoreMiss), boom)
	require.Equal(t, resilience.Open, breaker.State())

	called := false
	err := breaker.Do(ctx, func(context.Context) error { called = true; return nil }, nil)
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.False(t, called)
}

func TestNewMetricsReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := resilience.NewMetrics("test", reg)
	second := resilience.NewMetrics("test", reg)
	require.Same(t, first.State, second.State)
	require.Same(t, first.Transitions, second.Transitions)
}
