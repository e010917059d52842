package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"StockSentinel/internal/logger"
	"StockSentinel/internal/model"
)

// BytesCache is the key/value store behind CachedHistory.
type BytesCache interface {
	GetBytes(ctx context.Context, key string) ([]byte, bool, error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisCache implements BytesCache on a Redis server.
type RedisCache struct {
	cli *redis.Client
}

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisCache connects to Redis lazily; the first command dials.
func NewRedisCache(cfg RedisConfig) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 3 * time.Second,
	})
	return &RedisCache{cli: rdb}
}

func (r *RedisCache) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.cli.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (r *RedisCache) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.cli.Set(ctx, key, value, ttl).Err()
}

// Ping checks connectivity.
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.cli.Ping(ctx).Err()
}

// Close releases the connection pool.
func (r *RedisCache) Close() error {
	return r.cli.Close()
}

// CachedHistory serves repeated history requests for the same day from a cache.
// Cache failures are logged and bypassed.
type CachedHistory struct {
	next   HistorySource
	cache  BytesCache
	ttl    time.Duration
	prefix string
	log    *logger.Logger
}

// NewCachedHistory wraps next with cache.
func NewCachedHistory(next HistorySource, cache BytesCache, ttl time.Duration, prefix string, log *logger.Logger) *CachedHistory {
	if log == nil {
		log = logger.Nop()
	}
	return &CachedHistory{next: next, cache: cache, ttl: ttl, prefix: prefix, log: log}
}

func (c *CachedHistory) Name() string { return c.next.Name() + "+cache" }

func (c *CachedHistory) key(id string, through time.Time, days int) string {
	return fmt.Sprintf("%s:history:%s:%s:%s:%d", c.prefix, c.next.Name(), id, model.DateKey(through), days)
}

func (c *CachedHistory) PriceHistory(ctx context.Context, id string, through time.Time, days int) ([]model.PriceBar, error) {
	key := c.key(id, through, days)
	if b, ok, err := c.cache.GetBytes(ctx, key); err != nil {
		c.log.Warn("history cache read failed", logger.String("key", key), logger.Error(err))
	} else if ok {
		var bars []model.PriceBar
		if err := json.Unmarshal(b, &bars); err == nil {
			return bars, nil
		}
		c.log.Warn("history cache entry corrupt", logger.String("key", key))
	}

	bars, err := c.next.PriceHistory(ctx, id, through, days)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(bars); err == nil {
		if err := c.cache.SetBytes(ctx, key, b, c.ttl); err != nil {
			c.log.Warn("history cache write failed", logger.String("key", key), logger.Error(err))
		}
	}
	return bars, nil
}
