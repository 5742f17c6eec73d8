// Package config provides configuration loading for ragstore.
//
// Configuration is read from an optional YAML file, then overridden by
// RAGSTORE_* environment variables, then completed with defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the complete ragstore configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Storage     StorageConfig     `koanf:"storage"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	Splitter    SplitterConfig    `koanf:"splitter"`
	Cache       CacheConfig       `koanf:"cache"`
	Metadata    MetadataConfig    `koanf:"metadata"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// StorageConfig locates on-disk state.
type StorageConfig struct {
	// Root holds chromem data, the vector cache and the sqlite database
	// unless their paths are set explicitly.
	Root string `koanf:"root"`
}

// VectorStoreConfig selects and configures the vector backend.
type VectorStoreConfig struct {
	// Provider is "chromem" (default) or "qdrant".
	Provider string        `koanf:"provider"`
	Chromem  ChromemConfig `koanf:"chromem"`
	Qdrant   QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig configures the embedded chromem-go backend.
type ChromemConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// QdrantConfig configures the external Qdrant backend.
type QdrantConfig struct {
	Host           string `koanf:"host"`
	Port           int    `koanf:"port"`
	APIKey         Secret `koanf:"api_key"`
	UseTLS         bool   `koanf:"use_tls"`
	MaxMessageSize int    `koanf:"max_message_size"`
}

// EmbeddingsConfig selects the embedding engine.
type EmbeddingsConfig struct {
	// Provider is "fastembed" (default, local ONNX) or "openai" (any
	// OpenAI-compatible /embeddings endpoint, including TEI).
	Provider       string `koanf:"provider"`
	Model          string `koanf:"model"`
	BaseURL        string `koanf:"base_url"`
	APIKey         Secret `koanf:"api_key"`
	MaxChunkLength int    `koanf:"max_chunk_length"`
	BatchSize      int    `koanf:"batch_size"`
	CacheDir       string `koanf:"cache_dir"`
}

// SplitterConfig holds chunking fallbacks. The system_settings table
// (text_splitter_chunk_size, text_splitter_chunk_overlap) takes precedence.
type SplitterConfig struct {
	ChunkSize    int `koanf:"chunk_size"`
	ChunkOverlap int `koanf:"chunk_overlap"`
}

// CacheConfig configures the embedding cache.
type CacheConfig struct {
	// Backend is "file" (default) or "redis".
	Backend string `koanf:"backend"`

	// Dir is the file cache directory. Default: <storage.root>/vector-cache.
	Dir string `koanf:"dir"`

	// MemoryTTL enables an in-process hot layer when positive.
	MemoryTTL Duration    `koanf:"memory_ttl"`
	Redis     RedisConfig `koanf:"redis"`
}

// RedisConfig configures the redis cache backend.
type RedisConfig struct {
	Addrs     []string `koanf:"addrs"`
	Password  Secret   `koanf:"password"`
	DB        int      `koanf:"db"`
	KeyPrefix string   `koanf:"key_prefix"`
	TTL       Duration `koanf:"ttl"`
}

// MetadataConfig locates the relational metadata database.
type MetadataConfig struct {
	// Path is the sqlite file. Default: <storage.root>/ragstore.db.
	Path        string   `koanf:"path"`
	BusyTimeout Duration `koanf:"busy_timeout"`
}

// LoggingConfig is the subset of logging options exposed to users.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig is the subset of OpenTelemetry options exposed to users.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"`
	ServiceName string  `koanf:"service_name"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8765
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Storage.Root == "" {
		cfg.Storage.Root = defaultStorageRoot()
	}
	cfg.Storage.Root = expandHome(cfg.Storage.Root)

	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	if cfg.VectorStore.Chromem.Path == "" {
		cfg.VectorStore.Chromem.Path = filepath.Join(cfg.Storage.Root, "chromem")
	}
	cfg.VectorStore.Chromem.Path = expandHome(cfg.VectorStore.Chromem.Path)
	if cfg.VectorStore.Qdrant.Host == "" {
		cfg.VectorStore.Qdrant.Host = "localhost"
	}
	if cfg.VectorStore.Qdrant.Port == 0 {
		cfg.VectorStore.Qdrant.Port = 6334
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "fastembed"
	}
	if cfg.Embeddings.Model == "" {
		switch cfg.Embeddings.Provider {
		case "openai":
			cfg.Embeddings.Model = "text-embedding-3-small"
		default:
			cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
		}
	}
	if cfg.Embeddings.BatchSize == 0 {
		cfg.Embeddings.BatchSize = 256
	}
	if cfg.Embeddings.CacheDir == "" {
		cfg.Embeddings.CacheDir = filepath.Join(cfg.Storage.Root, "models")
	}
	cfg.Embeddings.CacheDir = expandHome(cfg.Embeddings.CacheDir)

	if cfg.Splitter.ChunkSize == 0 {
		cfg.Splitter.ChunkSize = 1000
	}
	if cfg.Splitter.ChunkOverlap == 0 {
		cfg.Splitter.ChunkOverlap = 20
	}

	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "file"
	}
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = filepath.Join(cfg.Storage.Root, "vector-cache")
	}
	cfg.Cache.Dir = expandHome(cfg.Cache.Dir)
	if len(cfg.Cache.Redis.Addrs) == 0 {
		cfg.Cache.Redis.Addrs = []string{"localhost:6379"}
	}
	if cfg.Cache.Redis.KeyPrefix == "" {
		cfg.Cache.Redis.KeyPrefix = "ragstore:vector-cache:"
	}

	if cfg.Metadata.Path == "" {
		cfg.Metadata.Path = filepath.Join(cfg.Storage.Root, "ragstore.db")
	}
	cfg.Metadata.Path = expandHome(cfg.Metadata.Path)
	if cfg.Metadata.BusyTimeout == 0 {
		cfg.Metadata.BusyTimeout = Duration(5 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "ragstore"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Storage.Root == "" {
		return errors.New("storage root is required")
	}

	switch c.VectorStore.Provider {
	case "chromem":
	case "qdrant":
		if c.VectorStore.Qdrant.Port < 1 || c.VectorStore.Qdrant.Port > 65535 {
			return fmt.Errorf("invalid qdrant port: %d", c.VectorStore.Qdrant.Port)
		}
	default:
		return fmt.Errorf("unsupported vectorstore provider: %q (supported: chromem, qdrant)", c.VectorStore.Provider)
	}

	switch c.Embeddings.Provider {
	case "fastembed":
	case "openai":
		if c.Embeddings.BaseURL == "" && !c.Embeddings.APIKey.IsSet() {
			return errors.New("embeddings.api_key is required for the openai provider without a base_url")
		}
	default:
		return fmt.Errorf("unsupported embeddings provider: %q (supported: fastembed, openai)", c.Embeddings.Provider)
	}
	if c.Embeddings.MaxChunkLength < 0 {
		return fmt.Errorf("embeddings.max_chunk_length must be >= 0, got %d", c.Embeddings.MaxChunkLength)
	}

	if c.Splitter.ChunkSize <= 0 {
		return fmt.Errorf("splitter.chunk_size must be positive, got %d", c.Splitter.ChunkSize)
	}
	if c.Splitter.ChunkOverlap < 0 || c.Splitter.ChunkOverlap >= c.Splitter.ChunkSize {
		return fmt.Errorf("splitter.chunk_overlap must be in [0, chunk_size), got %d", c.Splitter.ChunkOverlap)
	}

	switch c.Cache.Backend {
	case "file", "redis":
	default:
		return fmt.Errorf("unsupported cache backend: %q (supported: file, redis)", c.Cache.Backend)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %f", c.Telemetry.SampleRate)
	}
	return nil
}

func defaultStorageRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "ragstore")
	}
	return filepath.Join(home, ".local", "share", "ragstore")
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
