package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a temp dir and returns the ragstore config dir inside it.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".config", "ragstore")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	return dir
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, `
server:
  port: 9191
storage:
  root: /var/lib/ragstore
vectorstore:
  provider: qdrant
  qdrant:
    host: qdrant.internal
    port: 6334
embeddings:
  provider: openai
  base_url: http://tei:8080/v1
  max_chunk_length: 512
splitter:
  chunk_size: 800
  chunk_overlap: 40
cache:
  backend: redis
  memory_ttl: 5m
  redis:
    addrs: ["redis:6379"]
`, 0o600)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "/var/lib/ragstore", cfg.Storage.Root)
	assert.Equal(t, "qdrant", cfg.VectorStore.Provider)
	assert.Equal(t, "qdrant.internal", cfg.VectorStore.Qdrant.Host)
	assert.Equal(t, "openai", cfg.Embeddings.Provider)
	assert.Equal(t, 512, cfg.Embeddings.MaxChunkLength)
	assert.Equal(t, 800, cfg.Splitter.ChunkSize)
	assert.Equal(t, 40, cfg.Splitter.ChunkOverlap)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Cache.MemoryTTL.Duration())
	assert.Equal(t, []string{"redis:6379"}, cfg.Cache.Redis.Addrs)

	// Paths derive from the storage root.
	assert.Equal(t, "/var/lib/ragstore/chromem", cfg.VectorStore.Chromem.Path)
	assert.Equal(t, "/var/lib/ragstore/vector-cache", cfg.Cache.Dir)
	assert.Equal(t, "/var/lib/ragstore/ragstore.db", cfg.Metadata.Path)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	dir := setupTestHome(t)

	cfg, err := Load(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8765, cfg.Server.Port)
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, "fastembed", cfg.Embeddings.Provider)
	assert.Equal(t, "BAAI/bge-small-en-v1.5", cfg.Embeddings.Model)
	assert.Equal(t, 1000, cfg.Splitter.ChunkSize)
	assert.Equal(t, 20, cfg.Splitter.ChunkOverlap)
	assert.Equal(t, "file", cfg.Cache.Backend)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "server:\n  port: 9191\n", 0o600)

	t.Setenv("RAGSTORE_SERVER_PORT", "9292")
	t.Setenv("RAGSTORE_EMBEDDINGS_BASE_URL", "http://localhost:8080/v1")
	t.Setenv("RAGSTORE_EMBEDDINGS_PROVIDER", "openai")
	t.Setenv("RAGSTORE_VECTORSTORE_QDRANT_HOST", "qdrant.example")
	t.Setenv("RAGSTORE_CACHE_REDIS_KEY_PREFIX", "test:")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9292, cfg.Server.Port)
	assert.Equal(t, "http://localhost:8080/v1", cfg.Embeddings.BaseURL)
	assert.Equal(t, "qdrant.example", cfg.VectorStore.Qdrant.Host)
	assert.Equal(t, "test:", cfg.Cache.Redis.KeyPrefix)
}

func TestLoad_RejectsPathOutsideConfigDir(t *testing.T) {
	setupTestHome(t)
	other := t.TempDir()

	_, err := Load(filepath.Join(other, "config.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config path validation failed")
}

func TestLoad_RejectsInsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on windows")
	}
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "server:\n  port: 9191\n", 0o644)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoad_InvalidProvider(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "vectorstore:\n  provider: lancedb\n", 0o600)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported vectorstore provider")
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"RAGSTORE_SERVER_PORT", "server.port"},
		{"RAGSTORE_SERVER_SHUTDOWN_TIMEOUT", "server.shutdown_timeout"},
		{"RAGSTORE_VECTORSTORE_PROVIDER", "vectorstore.provider"},
		{"RAGSTORE_VECTORSTORE_CHROMEM_PATH", "vectorstore.chromem.path"},
		{"RAGSTORE_VECTORSTORE_QDRANT_USE_TLS", "vectorstore.qdrant.use_tls"},
		{"RAGSTORE_CACHE_REDIS_ADDRS", "cache.redis.addrs"},
		{"RAGSTORE_CACHE_MEMORY_TTL", "cache.memory_ttl"},
		{"RAGSTORE_DEBUG", "debug"},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			assert.Equal(t, tt.want, envKey(tt.env))
		})
	}
}
