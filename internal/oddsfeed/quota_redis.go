package oddsfeed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQuotaStore shares the daily counter between processes
type RedisQuotaStore struct {
	client *redis.Client
	prefix string
}

// NewRedisQuotaStore connects using a redis:// URL
func NewRedisQuotaStore(ctx context.Context, url, prefix string) (*RedisQuotaStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisQuotaStoreWithClient(client, prefix), nil
}

// NewRedisQuotaStoreWithClient wraps an existing client
func NewRedisQuotaStoreWithClient(client *redis.Client, prefix string) *RedisQuotaStore {
	if prefix == "" {
		prefix = "stall10n:quota"
	}
	return &RedisQuotaStore{client: client, prefix: prefix}
}

func (s *RedisQuotaStore) key(day string) string {
	return s.prefix + ":" + day
}

// Reserve implements QuotaStore. INCR is atomic; a caller that lands past
// the limit gives its increment back.
func (s *RedisQuotaStore) Reserve(ctx context.Context, day string, limit int, expireAt time.Time) (int, bool, error) {
	key := s.key(day)

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireAt(ctx, key, expireAt)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, false, err
	}

	used := int(incr.Val())
	if used <= limit {
		return used, true, nil
	}

	if err := s.client.Decr(ctx, key).Err(); err != nil {
		return limit, false, err
	}
	return limit, false, nil
}

// Used implements QuotaStore
func (s *RedisQuotaStore) Used(ctx context.Context, day string) (int, error) {
	used, err := s.client.Get(ctx, s.key(day)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return used, err
}

// Ping checks the redis connection
func (s *RedisQuotaStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the redis connection
func (s *RedisQuotaStore) Close() error {
	return s.client.Close()
}
