// Package embeddings maps text to fixed-dimension vectors.
//
// Two providers are available: FastEmbed runs an ONNX model in-process
// (cgo builds only) and the TEI provider calls a text-embeddings-inference
// server over HTTP. Both return vectors aligned with input order.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

var (
	// ErrEmbedding indicates the model is unavailable or the input is unusable.
	ErrEmbedding = errors.New("embedding failed")

	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = fmt.Errorf("%w: empty or nil input", ErrEmbedding)

	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid embeddings configuration")
)

// DefaultModel is the 384-dimension sentence-transformers model.
const DefaultModel = "sentence-transformers/all-MiniLM-L6-v2"

// Embedder generates embeddings for documents and queries.
type Embedder interface {
	// EmbedDocuments returns one vector per text, in input order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery returns the vector for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Provider is an Embedder with a known dimension and releasable resources.
type Provider interface {
	Embedder
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is the provider type: "fastembed" or "tei".
	Provider string `koanf:"provider"`
	// Model is the embedding model name.
	Model string `koanf:"model"`
	// BaseURL is the TEI URL (only used for TEI provider).
	BaseURL string `koanf:"base_url"`
	// CacheDir is the model cache directory (only used for FastEmbed).
	CacheDir string `koanf:"cache_dir"`
	// Dimension overrides the dimension derived from the model name (TEI only).
	Dimension int `koanf:"dimension"`
}

// ApplyDefaults sets default values for unset fields.
func (c *ProviderConfig) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = "fastembed"
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Provider == "tei" && c.BaseURL == "" {
		c.BaseURL = "http://localhost:8080"
	}
}

// detectDimensionFromModel returns the embedding dimension for a model name.
// Falls back to 384 if model is unknown.
func detectDimensionFromModel(model string) int {
	if dim, ok := knownDimensions[model]; ok {
		return dim
	}
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "large"):
		return 1024
	case strings.Contains(lower, "base"):
		return 768
	default:
		return 384
	}
}

// knownDimensions lists dimensions for models that do not follow the
// small/base/large naming convention.
var knownDimensions = map[string]int{
	"sentence-transformers/all-MiniLM-L6-v2":  384,
	"sentence-transformers/all-MiniLM-L12-v2": 384,
	"sentence-transformers/all-mpnet-base-v2": 768,
	"BAAI/bge-small-en-v1.5":                  384,
	"BAAI/bge-base-en-v1.5":                   768,
	"BAAI/bge-small-zh-v1.5":                  512,
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg ProviderConfig, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	switch cfg.Provider {
	case "fastembed":
		p, err := NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("fastembed provider initialized",
			zap.String("model", cfg.Model),
			zap.Int("dimension", p.Dimension()),
		)
		return p, nil
	case "tei":
		svc, err := NewService(Config{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		}, logger)
		if err != nil {
			return nil, err
		}
		dim := cfg.Dimension
		if dim == 0 {
			dim = detectDimensionFromModel(cfg.Model)
		}
		logger.Info("tei provider initialized",
			zap.String("base_url", cfg.BaseURL),
			zap.String("model", cfg.Model),
			zap.Int("dimension", dim),
		)
		return &teiProvider{Service: svc, dimension: dim}, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// teiProvider wraps Service to implement Provider interface.
type teiProvider struct {
	*Service
	dimension int
}

// Dimension returns the embedding dimension based on the configured model.
func (t *teiProvider) Dimension() int {
	return t.dimension
}

// Close is a no-op for TEI since it uses HTTP.
func (t *teiProvider) Close() error {
	return nil
}
