// Package cache хранит готовые отчёты в Redis на короткое время.
//
// Нулевой *ReportCache ничего не делает: Get всегда промахивается, Set игнорируется.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "partnerledger:report:"

// DefaultTTL используется, если срок жизни не задан.
const DefaultTTL = 30 * time.Second

// Connect создаёт клиент Redis по URL (redis://...) или адресу host:port.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opt, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: addr})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// ReportCache сериализует отчёты в JSON и кладёт их в Redis с TTL.
type ReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New создаёт кеш поверх клиента. Неположительный ttl заменяется DefaultTTL.
func New(client *redis.Client, ttl time.Duration) *ReportCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ReportCache{client: client, ttl: ttl}
}

// Key собирает ключ из частей запроса.
func Key(parts ...string) string {
	return keyPrefix + strings.Join(parts, ":")
}

// Get читает значение в dst. Возвращает false при промахе.
func (c *ReportCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get: %w", err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode cached value: %w", err)
	}
	return true, nil
}

// Set сохраняет значение на время ttl.
func (c *ReportCache) Set(ctx context.Context, key string, v any) error {
	if c == nil || c.client == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close закрывает клиент Redis.
func (c *ReportCache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
