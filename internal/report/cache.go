package report

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/sales-report/internal/resilience"
)

const cacheKeyPrefix = "report:sales:"

// Cache stores generated reports in Redis keyed by dataset fingerprint.
type Cache struct {
	client  *redis.Client
	ttl     time.Duration
	breaker *resilience.Breaker
}

// NewCache constructs a cache helper. A nil client or non-positive TTL yields a disabled cache.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// WithBreaker guards Redis calls with b. While it is open, Get and Set return
// resilience.ErrOpenCircuit without touching Redis.
func (c *Cache) WithBreaker(b *resilience.Breaker) *Cache {
	if c != nil {
		c.breaker = b
	}
	return c
}

// Enabled reports whether lookups and stores reach Redis.
func (c *Cache) Enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// Get loads the result stored under fingerprint. It reports whether the key existed.
func (c *Cache) Get(ctx context.Context, fingerprint string) (Result, bool, error) {
	if !c.Enabled() || fingerprint == "" {
		return Result{}, false, nil
	}
	var data []byte
	err := c.guard(ctx, func(ctx context.Context) error {
		var err error
		data, err = c.client.Get(ctx, cacheKeyPrefix+fingerprint).Bytes()
		return err
	})
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Result{}, false, nil
		}
		return Result{}, false, err
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return Result{}, false, err
	}
	return res, true, nil
}

// Set stores res under fingerprint with the configured TTL.
func (c *Cache) Set(ctx context.Context, fingerprint string, res Result) error {
	if !c.Enabled() || fingerprint == "" {
		return nil
	}
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return c.guard(ctx, func(ctx context.Context) error {
		return c.client.Set(ctx, cacheKeyPrefix+fingerprint, data, c.ttl).Err()
	})
}

func (c *Cache) guard(ctx context.Context, fn func(context.Context) error) error {
	if c.breaker == nil {
		return fn(ctx)
	}
	return c.breaker.Do(ctx, fn, func(err error) bool { return errors.Is(err, redis.Nil) })
}
