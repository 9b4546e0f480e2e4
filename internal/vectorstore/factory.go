package vectorstore

import (
	"fmt"

	"go.uber.org/zap"
)

// Supported store backends.
const (
	ProviderChromem = "chromem"
	ProviderQdrant  = "qdrant"
)

// DefaultCollection is the collection used when none is configured.
const DefaultCollection = "rag_collection"

// Config selects and configures a store backend.
type Config struct {
	// Provider is "chromem" (embedded, default) or "qdrant".
	Provider string `koanf:"provider"`

	// Collection is the collection all chunks are stored in.
	Collection string `koanf:"collection"`

	Chromem ChromemConfig `koanf:"chromem"`
	Qdrant  QdrantConfig  `koanf:"qdrant"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderChromem
	}
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}
	c.Chromem.ApplyDefaults()
	c.Qdrant.ApplyDefaults()
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderChromem, ProviderQdrant:
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, c.Provider)
	}
	return ValidateCollectionName(c.Collection)
}

// NewStore builds the configured store. A positive dimension overrides the
// configured vector size so the store always matches the embedder.
func NewStore(cfg Config, dimension int, logger *zap.Logger) (Store, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Provider {
	case ProviderQdrant:
		if dimension > 0 {
			cfg.Qdrant.VectorSize = uint64(dimension)
		}
		return NewQdrantStore(cfg.Qdrant, logger)
	default:
		if dimension > 0 {
			cfg.Chromem.VectorSize = dimension
		}
		return NewChromemStore(cfg.Chromem, logger)
	}
}
