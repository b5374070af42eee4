package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"pdv/backend/internal/domain"
)

const cartKeyPrefix = "pdv:cart:"

type RedisCartCache struct {
	client *redis.Client
}

func NewRedisCartCache(addr string, password string, db int) *RedisCartCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisCartCache{client: client}
}

func (c *RedisCartCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCartCache) Close() error {
	return c.client.Close()
}

func (c *RedisCartCache) Get(ctx context.Context, operator string) (*domain.Cart, bool, error) {
	val, err := c.client.Get(ctx, cartKeyPrefix+operator).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var cart domain.Cart
	if err := json.Unmarshal([]byte(val), &cart); err != nil {
		return nil, false, err
	}
	return &cart, true, nil
}

func (c *RedisCartCache) Set(ctx context.Context, operator string, cart *domain.Cart, ttl time.Duration) error {
	if cart == nil {
		return nil
	}
	payload, err := json.Marshal(cart)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cartKeyPrefix+operator, payload, ttl).Err()
}

func (c *RedisCartCache) Delete(ctx context.Context, operator string) error {
	return c.client.Del(ctx, cartKeyPrefix+operator).Err()
}
