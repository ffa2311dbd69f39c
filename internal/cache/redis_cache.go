package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"cigarmanager/backend/internal/domain"
)

type RedisAnalysisCache struct {
	client *redis.Client
}

func NewRedisAnalysisCache(addr string, password string, db int) *RedisAnalysisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisAnalysisCache{client: client}
}

func (c *RedisAnalysisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisAnalysisCache) Close() error {
	return c.client.Close()
}

func (c *RedisAnalysisCache) Get(ctx context.Context, key string) (*domain.RotationReport, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var report domain.RotationReport
	if err := json.Unmarshal([]byte(val), &report); err != nil {
		return nil, false, err
	}
	return &report, true, nil
}

func (c *RedisAnalysisCache) Set(ctx context.Context, key string, value *domain.RotationReport, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}
