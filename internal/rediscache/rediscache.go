// Package rediscache shares the per-feature sorted value lists of a pool
// through Redis so that several trainers reading the same pool do not each
// go back to the database.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/go-redis/redis/v8"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"

	"github.com/ayusman/facecascade/internal/featurestore"
)

// Config holds the Redis connection settings. The cache is disabled when
// Host is empty.
type Config struct {
	Host                  string `envconfig:"FACECASCADE_REDIS_HOST"`
	Port                  string `envconfig:"FACECASCADE_REDIS_PORT" default:"6379"`
	Password              string `envconfig:"FACECASCADE_REDIS_PASSWORD"`
	DB                    int    `envconfig:"FACECASCADE_REDIS_DB" default:"0"`
	LockExpirationSeconds int    `envconfig:"FACECASCADE_REDIS_LOCK_EXPIRATION" default:"30"`
	TTLSeconds            int    `envconfig:"FACECASCADE_REDIS_TTL" default:"86400"`
}

// ReadConfig reads Config from the environment.
func ReadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Enabled reports whether a Redis host is configured.
func (c *Config) Enabled() bool {
	return c.Host != ""
}

// NewClient creates a Redis client from cfg.
func NewClient(cfg *Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:       fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:   cfg.Password,
		MaxRetries: 6,
		DB:         cfg.DB,
	})
}

// Cache is a featurestore.Source that serves SortedValues from Redis and
// fills missing keys from the wrapped source under a Redis lock. Every other
// call goes straight to the wrapped source.
type Cache struct {
	featurestore.Source

	client         redis.UniversalClient
	locker         *redislock.Client
	namespace      string
	lockExpiration time.Duration
	ttl            time.Duration
	log            zerolog.Logger
}

// New wraps src. namespace separates pools sharing one Redis database; the
// pool fingerprint is a good choice.
func New(client redis.UniversalClient, src featurestore.Source, namespace string, cfg *Config, log zerolog.Logger) *Cache {
	return &Cache{
		Source:         src,
		client:         client,
		locker:         redislock.New(client),
		namespace:      namespace,
		lockExpiration: time.Duration(cfg.LockExpirationSeconds) * time.Second,
		ttl:            time.Duration(cfg.TTLSeconds) * time.Second,
		log:            log,
	}
}

// Key returns the Redis key of a feature's sorted list.
func (c *Cache) Key(featureIndex int64) string {
	return fmt.Sprintf("facecascade:%s:feature:%d", c.namespace, featureIndex)
}

// SortedValues implements featurestore.Source.
//
// Redis failures are logged and the wrapped source is used instead.
func (c *Cache) SortedValues(ctx context.Context, featureIndex int64) ([]featurestore.ExampleValue, error) {
	key := c.Key(featureIndex)

	list, err := c.get(ctx, key)
	if err == nil {
		return list, nil
	}
	if !errors.Is(err, redis.Nil) {
		c.log.Warn().Err(err).Str("key", key).Msg("Redis read failed, using the pool directly")
		return c.Source.SortedValues(ctx, featureIndex)
	}

	retry := redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 50)
	lock, err := c.locker.Obtain(ctx, "lock:"+key, c.lockExpiration, &redislock.Options{RetryStrategy: retry})
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Could not obtain fill lock")
		return c.Source.SortedValues(ctx, featureIndex)
	}
	defer func() {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			c.log.Warn().Err(err).Str("key", key).Msg("Could not release fill lock")
		}
	}()

	// Another holder may have filled the key while we waited.
	if list, err := c.get(ctx, key); err == nil {
		return list, nil
	}

	list, err = c.Source.SortedValues(ctx, featureIndex)
	if err != nil {
		return nil, err
	}
	if err := c.client.Set(ctx, key, featurestore.EncodeSorted(list), c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Redis write failed")
	}
	return list, nil
}

func (c *Cache) get(ctx context.Context, key string) ([]featurestore.ExampleValue, error) {
	buf, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}
	return featurestore.DecodeSorted(buf)
}
