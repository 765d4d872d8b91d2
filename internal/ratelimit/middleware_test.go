package ratelimit

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sales-report/internal/common"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestNewDisabledOnEmptyRate(t *testing.T) {
	_, err := New(" ", nil)
	require.True(t, errors.Is(err, ErrDisabled))
}

func TestNewRejectsMalformedRate(t *testing.T) {
	_, err := New("sixty-per-minute", nil)
	require.Error(t, err)
}

func TestMiddlewareEnforcesLimitInMemory(t *testing.T) {
	lim, err := New("1-M", nil)
	require.NoError(t, err)

	counted := Handler{Limiter: lim, Key: func(*http.Request) string { return "static" }}.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports/sales", nil)
	rr1 := httptest.NewRecorder()
	counted.ServeHTTP(rr1, req.Clone(req.Context()))
	require.Equal(t, http.StatusOK, rr1.Code)
	require.Equal(t, "1", rr1.Header().Get("X-RateLimit-Limit"))

	rr2 := httptest.NewRecorder()
	counted.ServeHTTP(rr2, req.Clone(req.Context()))
	require.Equal(t, http.StatusTooManyRequests, rr2.Code)
	require.Equal(t, "0", rr2.Header().Get("X-RateLimit-Remaining"))
	require.NotEmpty(t, rr2.Header().Get("Retry-After"))
}

func TestMiddlewareEnforcesLimitInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	lim, err := New("2-M", client)
	require.NoError(t, err)
	counted := Handler{Limiter: lim}.Middleware(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/reports/sales", nil)
		req.RemoteAddr = "198.51.100.4:1000"
		rr := httptest.NewRecorder()
		counted.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestMiddlewareProceedsOnStoreError(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer func() { _ = client.Close() }()

	lim, err := New("1-M", client)
	require.NoError(t, err)
	mr.Close()

	called := false
	counted := Handler{Limiter: lim, OnError: func(error) { called = true }}.Middleware(okHandler())
	rr := httptest.NewRecorder()
	counted.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, called)
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:4000"
	require.Equal(t, "ip:203.0.113.9", ClientKey(req))

	req = req.WithContext(common.WithSubject(req.Context(), "analyst-1"))
	require.Equal(t, "sub:analyst-1", ClientKey(req))
}
