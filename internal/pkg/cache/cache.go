package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache 基于 Redis 的 JSON 缓存，所有键共用前缀和 TTL
type Cache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// New 创建缓存，ttl <= 0 时不设置过期时间
func New(rdb *redis.Client, prefix string, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (c *Cache) key(k string) string {
	return c.prefix + k
}

// Get 读取并反序列化到 dest，未命中时返回 false
func (c *Cache) Get(ctx context.Context, k string, dest interface{}) (bool, error) {
	data, err := c.rdb.Get(ctx, c.key(k)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get cache %s: %w", k, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		// 脏数据直接丢弃
		c.rdb.Del(ctx, c.key(k))
		return false, nil
	}
	return true, nil
}

// Set 序列化后写入
func (c *Cache) Set(ctx context.Context, k string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	ttl := c.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := c.rdb.Set(ctx, c.key(k), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache %s: %w", k, err)
	}
	return nil
}

// Delete 删除缓存项
func (c *Cache) Delete(ctx context.Context, k string) error {
	return c.rdb.Del(ctx, c.key(k)).Err()
}
