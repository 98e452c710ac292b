package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// l2Tier is the durable, shared cache: a Redis client storing serialized
// values under namespace-scoped cache.Key names with TTL-bounded expiry.
type l2Tier struct {
	redis *redis.Client
}

// L2Config mirrors the subset of domain.RedisConfig the durable tier needs.
type L2Config struct {
	RedisURL    string
	PoolSize    int
	PoolTimeout time.Duration
	MaxRetries  int
}

func newL2Tier(cfg L2Config) (*l2Tier, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.PoolTimeout > 0 {
		opts.PoolTimeout = cfg.PoolTimeout
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &l2Tier{redis: client}, nil
}

func (l *l2Tier) get(ctx context.Context, k Key) ([]byte, bool, error) {
	val, err := l.redis.Get(ctx, k.String()).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("l2 get: %w", err)
	}
	return val, true, nil
}

func (l *l2Tier) set(ctx context.Context, k Key, value []byte, ttl time.Duration) error {
	return l.redis.Set(ctx, k.String(), value, ttl).Err()
}

func (l *l2Tier) purgeKey(ctx context.Context, k Key) error {
	return l.redis.Del(ctx, k.String()).Err()
}

// purgeNamespace deletes every key under a namespace using SCAN + batched
// DEL rather than KEYS, since this tier is shared and a blocking KEYS scan
// would stall other tenants.
func (l *l2Tier) purgeNamespace(ctx context.Context, ns Namespace) error {
	pattern := "kgc:cache:" + string(ns) + ":*"
	iter := l.redis.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 500 {
			if err := l.redis.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("l2 scan namespace %s: %w", ns, err)
	}
	if len(keys) > 0 {
		return l.redis.Del(ctx, keys...).Err()
	}
	return nil
}

func (l *l2Tier) purgeAll(ctx context.Context) error {
	return l.redis.FlushAll(ctx).Err()
}

func (l *l2Tier) ping(ctx context.Context) error {
	return l.redis.Ping(ctx).Err()
}

func (l *l2Tier) close() error {
	return l.redis.Close()
}
