package cache

import (
	"context"
	"io"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache keeps recently used entries in process in front of another
// Cache. Writes go to both layers.
type MemoryCache struct {
	inner Cache
	hot   *gocache.Cache
}

// NewMemoryCache decorates inner with an in-process layer whose entries
// expire after ttl.
func NewMemoryCache(inner Cache, ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		inner: inner,
		hot:   gocache.New(ttl, ttl*2),
	}
}

func (c *MemoryCache) Lookup(ctx context.Context, sourceFilePath string) (Entry, bool, error) {
	key := Key(sourceFilePath)
	if v, found := c.hot.Get(key); found {
		if entry, ok := v.(Entry); ok {
			recordLookup("memory", true, nil)
			return entry, true, nil
		}
	}

	entry, hit, err := c.inner.Lookup(ctx, sourceFilePath)
	if err != nil || !hit {
		return entry, hit, err
	}
	c.hot.Set(key, entry, gocache.DefaultExpiration)
	return entry, true, nil
}

func (c *MemoryCache) Store(ctx context.Context, batches Entry, sourceFilePath string) error {
	if err := c.inner.Store(ctx, batches, sourceFilePath); err != nil {
		return err
	}
	c.hot.Set(Key(sourceFilePath), batches, gocache.DefaultExpiration)
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, sourceFilePath string) error {
	c.hot.Delete(Key(sourceFilePath))
	return c.inner.Delete(ctx, sourceFilePath)
}

func (c *MemoryCache) Purge(ctx context.Context) error {
	c.hot.Flush()
	return c.inner.Purge(ctx)
}

// Close closes the inner cache when it holds a connection.
func (c *MemoryCache) Close() error {
	if closer, ok := c.inner.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
