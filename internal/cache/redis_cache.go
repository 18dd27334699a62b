package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"glowpos/backend/internal/domain"
)

type RedisReceiptCache struct {
	client *redis.Client
}

func NewRedisReceiptCache(addr string, password string, db int) *RedisReceiptCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisReceiptCache{client: client}
}

func (c *RedisReceiptCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisReceiptCache) Close() error {
	return c.client.Close()
}

func (c *RedisReceiptCache) Get(ctx context.Context, code string) (*domain.Transaction, bool, error) {
	val, err := c.client.Get(ctx, receiptKey(code)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var tx domain.Transaction
	if err := json.Unmarshal([]byte(val), &tx); err != nil {
		return nil, false, err
	}
	return &tx, true, nil
}

func (c *RedisReceiptCache) Set(ctx context.Context, code string, tx *domain.Transaction, ttl time.Duration) error {
	if tx == nil {
		return nil
	}
	payload, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, receiptKey(code), payload, ttl).Err()
}

func receiptKey(code string) string {
	return "receipt:" + code
}
