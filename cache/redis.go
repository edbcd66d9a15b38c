package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"example.com/backstage/services/clinops/config"
	"example.com/backstage/services/clinops/lifecycle"
)

// ErrMiss is returned when a key is absent or the cache is disabled
var ErrMiss = errors.New("cache miss")

// RedisCache provides caching using Redis
type RedisCache struct {
	client  redis.Cmdable
	closer  func() error
	enabled bool
	ttl     time.Duration
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

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	return &RedisCache{
		client:  client,
		closer:  client.Close,
		enabled: true,
		ttl:     cfg.TTL,
	}, nil
}

// NewWithClient wraps an existing client
func NewWithClient(client redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, enabled: true, ttl: ttl}
}

// Enabled reports whether the cache talks to Redis
func (c *RedisCache) Enabled() bool {
	return c != nil && c.enabled
}

// Get retrieves a value from cache
func (c *RedisCache) Get(ctx context.Context, key string, value interface{}) error {
	if !c.Enabled() {
		return ErrMiss
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return ErrMiss
		}
		return errors.Wrap(err, "failed to get value from Redis")
	}

	if err := json.Unmarshal(data, value); err != nil {
		return errors.Wrap(err, "failed to unmarshal cached value")
	}
	return nil
}

// Set stores a value in cache with the configured expiration
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}) error {
	if !c.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "failed to marshal value for caching")
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return errors.Wrap(err, "failed to set value in Redis")
	}
	return nil
}

// LegacyIdentity returns the cached aggregate id for a legacy row
func (c *RedisCache) LegacyIdentity(ctx context.Context, entity lifecycle.EntityType, legacyID int64) (uuid.UUID, error) {
	var id uuid.UUID
	if err := c.Get(ctx, GetLegacyIdentityKey(entity, legacyID), &id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// SetLegacyIdentity remembers the aggregate id of a legacy row
func (c *RedisCache) SetLegacyIdentity(ctx context.Context, entity lifecycle.EntityType, legacyID int64, id uuid.UUID) error {
	return c.Set(ctx, GetLegacyIdentityKey(entity, legacyID), id)
}

// AggregateExists reports a cached "stream has events" marker
func (c *RedisCache) AggregateExists(ctx context.Context, id uuid.UUID) bool {
	var exists bool
	if err := c.Get(ctx, GetAggregateExistsKey(id), &exists); err != nil {
		return false
	}
	return exists
}

// MarkAggregateExists caches that a stream has events. Streams never lose
// events, so the marker never goes stale.
func (c *RedisCache) MarkAggregateExists(ctx context.Context, id uuid.UUID) error {
	return c.Set(ctx, GetAggregateExistsKey(id), true)
}

// GetLegacyIdentityKey generates a cache key for a legacy id mapping
func GetLegacyIdentityKey(entity lifecycle.EntityType, legacyID int64) string {
	return fmt.Sprintf("legacy:%s:%d", entity, legacyID)
}

// GetAggregateExistsKey generates a cache key for an existence marker
func GetAggregateExistsKey(id uuid.UUID) string {
	return fmt.Sprintf("aggregate:%s:exists", id.String())
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	if !c.Enabled() || c.closer == nil {
		return nil
	}
	return c.closer()
}
