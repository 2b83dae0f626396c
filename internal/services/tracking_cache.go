package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/zar/internal/models"
)

const (
	trackingCacheKey = "order_tracking:%s"
	// TrackingCacheTTL is the lifetime of a cached order header. Writes
	// through the ledger invalidate explicitly.
	TrackingCacheTTL = 5 * time.Minute
)

// TrackingCache stores order headers by tracking code. Get returns nil, nil
// on a miss.
type TrackingCache interface {
	Get(ctx context.Context, code string) (*models.Order, error)
	Set(ctx context.Context, order *models.Order) error
	Invalidate(ctx context.Context, code string) error
}

// NewRedisClient opens a client for addr. The connection is lazy; callers
// may Ping to fail fast.
func NewRedisClient(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

// RedisTrackingCache keeps JSON encoded order headers in Redis.
type RedisTrackingCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisTrackingCache builds a cache on client. A non-positive ttl falls
// back to TrackingCacheTTL.
func NewRedisTrackingCache(client redis.Cmdable, ttl time.Duration) *RedisTrackingCache {
	if ttl <= 0 {
		ttl = TrackingCacheTTL
	}
	return &RedisTrackingCache{client: client, ttl: ttl}
}

func (c *RedisTrackingCache) Get(ctx context.Context, code string) (*models.Order, error) {
	raw, err := c.client.Get(ctx, trackingKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var order models.Order
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, fmt.Errorf("decode cached order: %w", err)
	}
	return &order, nil
}

func (c *RedisTrackingCache) Set(ctx context.Context, order *models.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, trackingKey(order.TrackingCode), data, c.ttl).Err()
}

func (c *RedisTrackingCache) Invalidate(ctx context.Context, code string) error {
	return c.client.Del(ctx, trackingKey(code)).Err()
}

func trackingKey(code string) string {
	return fmt.Sprintf(trackingCacheKey, code)
}
