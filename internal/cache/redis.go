package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/internal/config"
)

// RedisCache stores entries as JSON strings under a key prefix.
type RedisCache struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache connects with the configured addresses and pings once.
// More than one address selects a cluster client.
func NewRedisCache(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*RedisCache, error) {
	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:        cfg.Addrs,
		Password:     cfg.Password.Value(),
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisCacheFromClient(client, cfg.KeyPrefix, cfg.TTL.Duration(), logger), nil
}

// NewRedisCacheFromClient wraps an existing client. A zero ttl keeps entries
// until purged.
func NewRedisCacheFromClient(client goredis.UniversalClient, prefix string, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (c *RedisCache) key(sourceFilePath string) string {
	return c.prefix + Key(sourceFilePath)
}

// Lookup fetches and decodes the entry. A corrupt value is logged and
// reported as a miss; connection failures are returned.
func (c *RedisCache) Lookup(ctx context.Context, sourceFilePath string) (entry Entry, hit bool, err error) {
	defer func() { recordLookup("redis", hit, err) }()

	if sourceFilePath == "" {
		return nil, false, ErrInvalidPath
	}
	data, err := c.client.Get(ctx, c.key(sourceFilePath)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Warn("vector cache corrupt, ignoring",
			zap.String("source", sourceFilePath), zap.Error(err))
		return nil, false, nil
	}
	return entry, true, nil
}

func (c *RedisCache) Store(ctx context.Context, batches Entry, sourceFilePath string) error {
	if sourceFilePath == "" {
		return ErrInvalidPath
	}
	data, err := json.Marshal(batches)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	if err := c.client.Set(ctx, c.key(sourceFilePath), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, sourceFilePath string) error {
	if err := c.client.Del(ctx, c.key(sourceFilePath)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Purge deletes every key under the prefix using SCAN.
func (c *RedisCache) Purge(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 500).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == 500 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
	}
	return nil
}

// Close releases the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
