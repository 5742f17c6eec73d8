package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// FileCache keeps one JSON file per source document under a directory.
type FileCache struct {
	dir    string
	logger *zap.Logger
}

// NewFileCache creates dir if needed.
func NewFileCache(dir string, logger *zap.Logger) (*FileCache, error) {
	if dir == "" {
		return nil, errors.New("cache directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &FileCache{dir: dir, logger: logger}, nil
}

func (c *FileCache) path(sourceFilePath string) string {
	return filepath.Join(c.dir, Key(sourceFilePath)+".json")
}

// Lookup reads the entry file. An unreadable or corrupt file is logged and
// treated as a miss.
func (c *FileCache) Lookup(ctx context.Context, sourceFilePath string) (entry Entry, hit bool, err error) {
	defer func() { recordLookup("file", hit, err) }()

	if sourceFilePath == "" {
		return nil, false, ErrInvalidPath
	}
	data, err := os.ReadFile(c.path(sourceFilePath))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		c.logger.Warn("vector cache unreadable, ignoring",
			zap.String("source", sourceFilePath), zap.Error(err))
		return nil, false, nil
	}

	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Warn("vector cache corrupt, ignoring",
			zap.String("source", sourceFilePath), zap.Error(err))
		return nil, false, nil
	}
	return entry, true, nil
}

// Store writes through a temp file and rename so readers never see a partial
// entry.
func (c *FileCache) Store(ctx context.Context, batches Entry, sourceFilePath string) error {
	if sourceFilePath == "" {
		return ErrInvalidPath
	}
	data, err := json.Marshal(batches)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, ".entry-*")
	if err != nil {
		return fmt.Errorf("creating cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path(sourceFilePath)); err != nil {
		return fmt.Errorf("committing cache file: %w", err)
	}

	c.logger.Debug("vector cache stored",
		zap.String("source", sourceFilePath), zap.Int("chunks", batches.Chunks()))
	return nil
}

func (c *FileCache) Delete(ctx context.Context, sourceFilePath string) error {
	err := os.Remove(c.path(sourceFilePath))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing cache file: %w", err)
	}
	return nil
}

// Purge removes the whole cache directory and recreates it empty.
func (c *FileCache) Purge(ctx context.Context) error {
	if err := os.RemoveAll(c.dir); err != nil {
		return fmt.Errorf("removing cache directory: %w", err)
	}
	return os.MkdirAll(c.dir, 0o700)
}
