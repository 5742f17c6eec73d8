package cache

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/internal/config"
)

// New builds the configured cache, adding the in-memory layer when
// memory_ttl is set.
func New(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) (Cache, error) {
	var (
		c   Cache
		err error
	)
	switch cfg.Backend {
	case "file", "":
		c, err = NewFileCache(cfg.Dir, logger)
	case "redis":
		c, err = NewRedisCache(ctx, cfg.Redis, logger)
	default:
		return nil, fmt.Errorf("unsupported cache backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if ttl := cfg.MemoryTTL.Duration(); ttl > 0 {
		c = NewMemoryCache(c, ttl)
	}
	return c, nil
}
