// Package config provides configuration loading for ragvisor.
//
// Configuration is read from a YAML file and overridden by environment
// variables. Sections mirror the packages they configure; the command layer
// maps each section onto the owning package's Config type.
package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrConfig indicates an invalid configuration value.
var ErrConfig = errors.New("invalid configuration")

// Config holds the complete ragvisor configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	Generator   GeneratorConfig   `koanf:"generator"`
	Chunking    ChunkingConfig    `koanf:"chunking"`
	Ingest      IngestConfig      `koanf:"ingest"`
	Cache       CacheConfig       `koanf:"cache"`
	Query       QueryConfig       `koanf:"query"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	MaxUploadMB     int      `koanf:"max_upload_mb"` // Maximum multipart upload size
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	Provider   string        `koanf:"provider"` // "chromem" or "qdrant"
	Collection string        `koanf:"collection"`
	Chromem    ChromemConfig `koanf:"chromem"`
	Qdrant     QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig configures the embedded store.
type ChromemConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// QdrantConfig configures the Qdrant gRPC client.
type QdrantConfig struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	UseTLS bool   `koanf:"use_tls"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Provider  string `koanf:"provider"` // "fastembed" or "tei"
	Model     string `koanf:"model"`
	BaseURL   string `koanf:"base_url"`
	CacheDir  string `koanf:"cache_dir"`
	Dimension int    `koanf:"dimension"`
}

// GeneratorConfig configures the chat completion client.
type GeneratorConfig struct {
	BaseURL       string   `koanf:"base_url"`
	Model         string   `koanf:"model"`
	APIKey        Secret   `koanf:"api_key"`
	Temperature   float64  `koanf:"temperature"`
	MaxTokens     int      `koanf:"max_tokens"`
	Timeout       Duration `koanf:"timeout"`
	RatePerMinute int      `koanf:"rate_per_minute"` // Negative disables limiting
	MaxRetries    int      `koanf:"max_retries"`
}

// ChunkProfile is a chunk size and overlap pair, in characters.
type ChunkProfile struct {
	Size    int `koanf:"size"`
	Overlap int `koanf:"overlap"`
}

// ChunkingConfig holds the two chunking profiles.
type ChunkingConfig struct {
	Document ChunkProfile `koanf:"document"` // PDFs
	Web      ChunkProfile `koanf:"web"`      // Web pages and text files
}

// IngestConfig configures loaders and batching.
type IngestConfig struct {
	BatchSize     int      `koanf:"batch_size"`
	WebTimeout    Duration `koanf:"web_timeout"`
	WebMaxChars   int      `koanf:"web_max_chars"`
	UserAgent     string   `koanf:"user_agent"`
	WatchDebounce Duration `koanf:"watch_debounce"`
}

// CacheConfig configures the query answer cache.
type CacheConfig struct {
	Capacity int `koanf:"capacity"`
}

// QueryConfig configures question answering.
type QueryConfig struct {
	TopK    int      `koanf:"top_k"`
	Timeout Duration `koanf:"timeout"`
}

// LoggingConfig holds the logging settings exposed to users.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // "json" or "console"
	OTEL   bool   `koanf:"otel"`   // Bridge logs to the OpenTelemetry log pipeline
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"` // "grpc" or "http/protobuf"
	ServiceName string  `koanf:"service_name"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	cfg := newConfig()
	applyDefaults(cfg)
	return cfg
}

// defaultTemperature is preset before decoding rather than filled in by
// applyDefaults, since 0 is a valid temperature.
const defaultTemperature = 0.3

// newConfig returns a Config holding the defaults whose zero value is
// meaningful. Keys present in a source overwrite them during decoding.
func newConfig() *Config {
	cfg := &Config{}
	cfg.Generator.Temperature = defaultTemperature
	return cfg
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	// Server
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 50
	}

	// VectorStore (chromem is default - embedded, no external deps)
	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "rag_collection"
	}
	if cfg.VectorStore.Chromem.Path == "" {
		cfg.VectorStore.Chromem.Path = "~/.local/share/ragvisor/vectorstore"
	}
	if cfg.VectorStore.Qdrant.Host == "" {
		cfg.VectorStore.Qdrant.Host = "localhost"
	}
	if cfg.VectorStore.Qdrant.Port == 0 {
		cfg.VectorStore.Qdrant.Port = 6334
	}

	// Embeddings
	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "fastembed"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "sentence-transformers/all-MiniLM-L6-v2"
	}
	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}

	// Generator
	if cfg.Generator.BaseURL == "" {
		cfg.Generator.BaseURL = "https://api.groq.com/openai/v1"
	}
	if cfg.Generator.Model == "" {
		cfg.Generator.Model = "llama3-70b-8192"
	}
	if cfg.Generator.MaxTokens == 0 {
		cfg.Generator.MaxTokens = 400
	}
	if cfg.Generator.Timeout == 0 {
		cfg.Generator.Timeout = Duration(60 * time.Second)
	}
	if cfg.Generator.RatePerMinute == 0 {
		cfg.Generator.RatePerMinute = 30
	}
	if cfg.Generator.MaxRetries == 0 {
		cfg.Generator.MaxRetries = 2
	}

	// Chunking
	if cfg.Chunking.Document == (ChunkProfile{}) {
		cfg.Chunking.Document = ChunkProfile{Size: 1000, Overlap: 200}
	}
	if cfg.Chunking.Web == (ChunkProfile{}) {
		cfg.Chunking.Web = ChunkProfile{Size: 500, Overlap: 100}
	}

	// Ingest
	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = 100
	}
	if cfg.Ingest.WebTimeout == 0 {
		cfg.Ingest.WebTimeout = Duration(10 * time.Second)
	}
	if cfg.Ingest.WebMaxChars == 0 {
		cfg.Ingest.WebMaxChars = 10000
	}
	if cfg.Ingest.WatchDebounce == 0 {
		cfg.Ingest.WatchDebounce = Duration(2 * time.Second)
	}

	// Cache
	if cfg.Cache.Capacity == 0 {
		cfg.Cache.Capacity = 100
	}

	// Query
	if cfg.Query.TopK == 0 {
		cfg.Query.TopK = 3
	}
	if cfg.Query.Timeout == 0 {
		cfg.Query.Timeout = Duration(30 * time.Second)
	}

	// Logging
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	// Telemetry (disabled by default for users without a collector)
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "ragvisor"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
}

// Validate validates the configuration.
//
// The generator API key is not checked here; commands that never generate
// answers (ingest, clear) run without one.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d (must be 1-65535)", ErrConfig, c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return fmt.Errorf("%w: shutdown timeout must be positive", ErrConfig)
	}
	if c.Server.MaxUploadMB < 1 {
		return fmt.Errorf("%w: max_upload_mb must be at least 1", ErrConfig)
	}

	switch c.VectorStore.Provider {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("%w: unknown vectorstore provider %q (want chromem or qdrant)", ErrConfig, c.VectorStore.Provider)
	}

	switch c.Embeddings.Provider {
	case "fastembed", "tei":
	default:
		return fmt.Errorf("%w: unknown embeddings provider %q (want fastembed or tei)", ErrConfig, c.Embeddings.Provider)
	}

	if c.Generator.Temperature < 0 || c.Generator.Temperature > 2 {
		return fmt.Errorf("%w: generator temperature %g (must be 0-2)", ErrConfig, c.Generator.Temperature)
	}
	if c.Generator.MaxTokens < 1 {
		return fmt.Errorf("%w: generator max_tokens must be positive", ErrConfig)
	}

	for name, p := range map[string]ChunkProfile{"document": c.Chunking.Document, "web": c.Chunking.Web} {
		if p.Size <= 0 || p.Overlap < 0 || p.Overlap >= p.Size {
			return fmt.Errorf("%w: chunking.%s size=%d overlap=%d (need 0 <= overlap < size)", ErrConfig, name, p.Size, p.Overlap)
		}
	}

	if c.Ingest.BatchSize < 1 {
		return fmt.Errorf("%w: ingest batch_size must be positive", ErrConfig)
	}
	if c.Cache.Capacity < 1 {
		return fmt.Errorf("%w: cache capacity must be positive", ErrConfig)
	}
	if c.Query.TopK < 1 {
		return fmt.Errorf("%w: query top_k must be positive", ErrConfig)
	}
	if c.Query.Timeout.Duration() <= 0 {
		return fmt.Errorf("%w: query timeout must be positive", ErrConfig)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: logging format %q (want json or console)", ErrConfig, c.Logging.Format)
	}

	if c.Telemetry.Enabled {
		switch c.Telemetry.Protocol {
		case "grpc", "http/protobuf":
		default:
			return fmt.Errorf("%w: telemetry protocol %q (want grpc or http/protobuf)", ErrConfig, c.Telemetry.Protocol)
		}
		if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
			return fmt.Errorf("%w: telemetry sample_rate %g (must be 0-1)", ErrConfig, c.Telemetry.SampleRate)
		}
	}

	return nil
}

// RequireGenerator reports ErrConfig when no generator API key is configured.
// Commands that answer questions call it before building anything else.
func (c *Config) RequireGenerator() error {
	if !c.Generator.APIKey.IsSet() {
		return fmt.Errorf("%w: generator api key missing (set GROQ_API_KEY or generator.api_key)", ErrConfig)
	}
	return nil
}
