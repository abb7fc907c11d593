// Package cache keeps finalized persona analyses in Redis so an unchanged
// script is not sent to the model twice.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"cohorte/api/internal/annotation"
)

// RedisCache stores one JSON-encoded PersonaAnalysis per input digest.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to redisURL and checks the connection.
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisCacheWithClient(client, ttl), nil
}

func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisCache{client: client, prefix: "analysis:", ttl: ttl}
}

func (c *RedisCache) key(digest string) string {
	return c.prefix + digest
}

// GetAnalysis reports ok=false on a miss.
func (c *RedisCache) GetAnalysis(ctx context.Context, digest string) (annotation.PersonaAnalysis, bool, error) {
	raw, err := c.client.Get(ctx, c.key(digest)).Bytes()
	if errors.Is(err, redis.Nil) {
		return annotation.PersonaAnalysis{}, false, nil
	}
	if err != nil {
		return annotation.PersonaAnalysis{}, false, fmt.Errorf("get analysis: %w", err)
	}
	var out annotation.PersonaAnalysis
	if err := json.Unmarshal(raw, &out); err != nil {
		// a corrupt entry is a miss; the next store overwrites it
		return annotation.PersonaAnalysis{}, false, nil
	}
	if out.Annotations == nil {
		out.Annotations = []annotation.Annotation{}
	}
	return out, true, nil
}

func (c *RedisCache) SetAnalysis(ctx context.Context, digest string, analysis annotation.PersonaAnalysis) error {
	data, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}
	if err := c.client.Set(ctx, c.key(digest), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	return nil
}

// Forget drops a cached entry.
func (c *RedisCache) Forget(ctx context.Context, digest string) error {
	if err := c.client.Del(ctx, c.key(digest)).Err(); err != nil {
		return fmt.Errorf("forget analysis: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
