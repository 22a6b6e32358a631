package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"example.com/fundwave/services/events/config"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// staleMarkerTTL bounds how long an invalidation marker survives
const staleMarkerTTL = 24 * time.Hour

// RedisCache provides caching using Redis
type RedisCache struct {
	client  *redis.Client
	enabled bool
}

// NewRedisCache creates a new Redis cache
func NewRedisCache(cfg config.RedisConfig) (*RedisCache, error) {
	if !cfg.Enabled {
		return &RedisCache{enabled: false}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	return &RedisCache{
		client:  client,
		enabled: true,
	}, nil
}

// Enabled reports whether the cache is connected
func (c *RedisCache) Enabled() bool {
	return c != nil && c.enabled
}

// Get retrieves a value from cache
func (c *RedisCache) Get(ctx context.Context, key string, value interface{}) error {
	if !c.enabled {
		return errors.New("cache is disabled")
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return errors.Wrap(err, "key not found in cache")
		}
		return errors.Wrap(err, "failed to get value from Redis")
	}

	err = json.Unmarshal(data, value)
	if err != nil {
		return errors.Wrap(err, "failed to unmarshal cached value")
	}

	return nil
}

// Set stores a value in cache with optional expiration
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if !c.enabled {
		return errors.New("cache is disabled")
	}

	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "failed to marshal value for caching")
	}

	err = c.client.Set(ctx, key, data, expiration).Err()
	if err != nil {
		return errors.Wrap(err, "failed to set value in Redis")
	}

	return nil
}

// Invalidate deletes the given keys and records a stale marker for each,
// so out-of-process readers can tell a key was evicted rather than never
// populated. A disabled cache only logs the decision.
func (c *RedisCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	if !c.Enabled() {
		log.Debug().Strs("keys", keys).Msg("Cache disabled, skipping invalidation")
		return nil
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return errors.Wrap(err, "failed to delete cache keys")
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, key := range keys {
		if err := c.client.Set(ctx, "stale:"+key, now, staleMarkerTTL).Err(); err != nil {
			return errors.Wrap(err, "failed to set stale marker")
		}
	}

	return nil
}

// CampaignCacheKey generates a cache key for campaign data
func CampaignCacheKey(id string) string {
	return fmt.Sprintf("campaign:%s", id)
}

// CampaignAnalyticsCacheKey generates a cache key for campaign analytics
func CampaignAnalyticsCacheKey(id string) string {
	return fmt.Sprintf("campaign:%s:analytics", id)
}

// UserCacheKey generates a cache key for user data
func UserCacheKey(id string) string {
	return fmt.Sprintf("user:%s", id)
}

// OrganizationCacheKey generates a cache key for organization data
func OrganizationCacheKey(id string) string {
	return fmt.Sprintf("organization:%s", id)
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	if !c.enabled || c.client == nil {
		return nil
	}

	return c.client.Close()
}
