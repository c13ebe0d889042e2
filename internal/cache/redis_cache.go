package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"geyim/backend/internal/domain"
)

type RedisDebtCache struct {
	client *redis.Client
}

func NewRedisDebtCache(addr string, password string, db int) *RedisDebtCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisDebtCache{client: client}
}

func (c *RedisDebtCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisDebtCache) Close() error {
	return c.client.Close()
}

func (c *RedisDebtCache) Get(ctx context.Context, key string) ([]domain.DebtSummary, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var summaries []domain.DebtSummary
	if err := json.Unmarshal(val, &summaries); err != nil {
		return nil, false, err
	}
	return summaries, true, nil
}

func (c *RedisDebtCache) Set(ctx context.Context, key string, value []domain.DebtSummary, ttl time.Duration) error {
	if value == nil {
		value = []domain.DebtSummary{}
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisDebtCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
