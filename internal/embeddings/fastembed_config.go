package embeddings

import "path/filepath"

// DefaultFastEmbedMaxChunkLength is the chunk cap in characters for local
// models when none is configured.
const DefaultFastEmbedMaxChunkLength = 1000

// FastEmbedConfig configures the local ONNX provider.
type FastEmbedConfig struct {
	// Model is a Hugging Face model id, BAAI/bge-small-en-v1.5 by default.
	Model string
	// CacheDir holds model files and the ONNX runtime library.
	CacheDir string
	// BatchSize is the number of passages per ONNX run.
	BatchSize int
	// MaxTokens is the model's input sequence length.
	MaxTokens      int
	MaxChunkLength int
}

func (c *FastEmbedConfig) applyDefaults() {
	if c.Model == "" {
		c.Model = "BAAI/bge-small-en-v1.5"
	}
	if c.CacheDir == "" {
		c.CacheDir = filepath.Join(".", "local_cache")
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 256
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 512
	}
	if c.MaxChunkLength <= 0 {
		c.MaxChunkLength = DefaultFastEmbedMaxChunkLength
	}
}

var modelDimensions = map[string]int{
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"BAAI/bge-small-zh-v1.5":                 512,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
}

// ModelDimension returns the vector size of a known local model.
func ModelDimension(model string) (int, bool) {
	dim, ok := modelDimensions[model]
	return dim, ok
}

func runtimeDir(cacheDir string) string {
	return filepath.Join(cacheDir, "lib")
}
