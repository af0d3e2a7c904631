package dedup

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/newsroom-engine/pkg/logger"
)

// HashCache remembers which topic already holds a normalized-URL hash so the
// exact stage can skip the database for hot URLs.
type HashCache interface {
	// Lookup returns the topic ids for the hashes it knows; misses are absent
	Lookup(ctx context.Context, hashes []string) (map[string]uint, error)
	Remember(ctx context.Context, hash string, topicID uint) error
	Forget(ctx context.Context, hashes ...string) error
}

// RedisCache keeps hash -> topic id entries in redis with a TTL
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewRedisCache creates a cache over an existing client
func NewRedisCache(client *redis.Client, ttl time.Duration, log *logger.Logger) *RedisCache {
	return &RedisCache{
		client: client,
		ttl:    ttl,
		log:    log.WithComponent("dedup-cache"),
	}
}

func (c *RedisCache) key(hash string) string {
	return fmt.Sprintf("dedup:url:%s", hash)
}

func (c *RedisCache) Lookup(ctx context.Context, hashes []string) (map[string]uint, error) {
	found := make(map[string]uint)
	if len(hashes) == 0 {
		return found, nil
	}

	keys := make([]string, len(hashes))
	for i, h := range hashes {
		keys[i] = c.key(h)
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			c.log.Warn().Str("redis_key", keys[i]).Str("value", s).Msg("Ignoring malformed cache entry")
			continue
		}
		found[hashes[i]] = uint(id)
	}

	return found, nil
}

func (c *RedisCache) Remember(ctx context.Context, hash string, topicID uint) error {
	// SetNX keeps the first topic that claimed the hash
	if err := c.client.SetNX(ctx, c.key(hash), strconv.FormatUint(uint64(topicID), 10), c.ttl).Err(); err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	return nil
}

func (c *RedisCache) Forget(ctx context.Context, hashes ...string) error {
	if len(hashes) == 0 {
		return nil
	}
	keys := make([]string, len(hashes))
	for i, h := range hashes {
		keys[i] = c.key(h)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// NopCache is used when redis is disabled
type NopCache struct{}

func (NopCache) Lookup(context.Context, []string) (map[string]uint, error) {
	return map[string]uint{}, nil
}
func (NopCache) Remember(context.Context, string, uint) error { return nil }
func (NopCache) Forget(context.Context, ...string) error      { return nil }

var (
	_ HashCache = (*RedisCache)(nil)
	_ HashCache = NopCache{}
)
