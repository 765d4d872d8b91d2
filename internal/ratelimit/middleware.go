package ratelimit

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/sales-report/internal/common"
)

// ErrDisabled is returned by New when the configured rate is empty.
var ErrDisabled = errors.New("ratelimit: disabled")

// New builds a limiter for a formatted rate such as "60-M". A nil client keeps
// counters in process memory; otherwise they are shared through Redis.
func New(rate string, client *redis.Client) (*limiter.Limiter, error) {
	rate = strings.TrimSpace(rate)
	if rate == "" {
		return nil, ErrDisabled
	}
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, err
	}
	var store limiter.Store
	if client == nil {
		store = memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: "salesreport:rl", CleanUpInterval: time.Minute})
	} else {
		store, err = limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: "salesreport:rl"})
		if err != nil {
			return nil, err
		}
	}
	return limiter.New(store, parsed), nil
}

// KeyFunc derives the bucket a request is counted against.
type KeyFunc func(*http.Request) string

// ClientKey counts authenticated callers by token subject and everyone else by IP.
func ClientKey(r *http.Request) string {
	if subject, ok := common.Subject(r.Context()); ok {
		return "sub:" + subject
	}
	return "ip:" + common.ClientIP(r)
}

// Handler enforces rate limits before delegating to the next handler.
type Handler struct {
	Limiter *limiter.Limiter
	Key     KeyFunc
	OnError func(error)
}

// Middleware implements the http.Handler middleware interface.
// Store failures let the request through.
func (h Handler) Middleware(next http.Handler) http.Handler {
	if h.Limiter == nil {
		return next
	}
	keyFn := h.Key
	if keyFn == nil {
		keyFn = ClientKey
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lctx, err := h.Limiter.Get(r.Context(), keyFn(r))
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		headers.Set("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			retryAfter := time.Until(time.Unix(lctx.Reset, 0)).Seconds()
			if retryAfter < 0 {
				retryAfter = 0
			}
			headers.Set("Retry-After", strconv.Itoa(int(retryAfter)))
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
