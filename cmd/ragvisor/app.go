package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/ragvisor/internal/chunking"
	"github.com/fyrsmithlabs/ragvisor/internal/config"
	"github.com/fyrsmithlabs/ragvisor/internal/embeddings"
	"github.com/fyrsmithlabs/ragvisor/internal/generator"
	"github.com/fyrsmithlabs/ragvisor/internal/http"
	"github.com/fyrsmithlabs/ragvisor/internal/loader"
	"github.com/fyrsmithlabs/ragvisor/internal/logging"
	"github.com/fyrsmithlabs/ragvisor/internal/querycache"
	"github.com/fyrsmithlabs/ragvisor/internal/rag"
	"github.com/fyrsmithlabs/ragvisor/internal/telemetry"
	"github.com/fyrsmithlabs/ragvisor/internal/vectorstore"
	"go.uber.org/zap"
)

// app holds the initialized runtime shared by every command.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	telemetry *telemetry.Telemetry
	pipeline  *rag.Pipeline
}

// appOptions controls which dependencies newApp builds.
type appOptions struct {
	// needGenerator requires an API key. Commands that never answer
	// questions get a generator that refuses to run.
	needGenerator bool
}

// errNoGenerator is returned by the placeholder generator used by commands
// that only ingest or clear.
var errNoGenerator = errors.New("generator not configured for this command")

type disabledGenerator struct{}

func (disabledGenerator) Generate(context.Context, string, string) (string, error) {
	return "", errNoGenerator
}

// newApp initializes telemetry, logging and the pipeline from cfg.
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	if opts.needGenerator {
		if err := cfg.RequireGenerator(); err != nil {
			return nil, err
		}
	}

	tel, err := telemetry.New(ctx, telemetryConfig(cfg))
	if err != nil {
		return nil, err
	}

	logCfg, err := loggingConfig(cfg)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logCfg, tel.LoggerProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, telemetry: tel}
	if err := a.initPipeline(ctx, opts); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) initPipeline(ctx context.Context, opts appOptions) error {
	embCfg := embedderConfig(a.cfg)
	if embCfg.Provider == "fastembed" {
		path, err := embeddings.NewONNXInstaller("").Ensure(ctx)
		if err != nil {
			return fmt.Errorf("onnx runtime unavailable (run 'ragvisor init'): %w", err)
		}
		a.logger.Debug("using onnx runtime", zap.String("path", path))
	}

	embedder, err := embeddings.NewProvider(embCfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize embeddings: %w", err)
	}

	store, err := vectorstore.NewStore(storeConfig(a.cfg), embedder.Dimension(), a.logger)
	if err != nil {
		_ = embedder.Close()
		return fmt.Errorf("failed to initialize vector store: %w", err)
	}

	var gen generator.Generator = disabledGenerator{}
	if opts.needGenerator {
		gen, err = generator.New(generatorConfig(a.cfg), a.logger)
		if err != nil {
			_ = store.Close()
			_ = embedder.Close()
			return fmt.Errorf("failed to initialize generator: %w", err)
		}
	}

	cache, err := querycache.New(a.cfg.Cache.Capacity)
	if err != nil {
		_ = store.Close()
		_ = embedder.Close()
		return err
	}
	cache.SetMetrics(querycache.NewMetrics())

	a.pipeline, err = rag.New(pipelineConfig(a.cfg), rag.Deps{
		Embedder:  embedder,
		Store:     store,
		Generator: gen,
		Cache:     cache,
		Web:       loader.NewWeb(webConfig(a.cfg), a.logger),
		Logger:    a.logger,
	})
	if err != nil {
		_ = store.Close()
		_ = embedder.Close()
		return err
	}
	return nil
}

// close releases the pipeline and flushes telemetry and logs.
func (a *app) close() {
	if a.pipeline != nil {
		if err := a.pipeline.Close(); err != nil {
			a.logger.Warn("closing pipeline", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown", zap.Error(err))
	}
	_ = logging.Sync(a.logger)
}

func telemetryConfig(cfg *config.Config) *telemetry.Config {
	t := telemetry.NewDefaultConfig()
	t.Enabled = cfg.Telemetry.Enabled
	t.Endpoint = cfg.Telemetry.Endpoint
	t.Protocol = cfg.Telemetry.Protocol
	t.ServiceName = cfg.Telemetry.ServiceName
	t.ServiceVersion = version
	t.Insecure = cfg.Telemetry.Insecure
	t.SampleRate = cfg.Telemetry.SampleRate
	return t
}

func loggingConfig(cfg *config.Config) (*logging.Config, error) {
	level, err := logging.LevelFromString(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: log level %q", config.ErrConfig, cfg.Logging.Level)
	}
	l := logging.NewDefaultConfig()
	l.Level = level
	l.Format = cfg.Logging.Format
	l.Output.OTEL = cfg.Logging.OTEL && cfg.Telemetry.Enabled
	l.Fields["version"] = version
	return l, nil
}

func embedderConfig(cfg *config.Config) embeddings.ProviderConfig {
	return embeddings.ProviderConfig{
		Provider:  cfg.Embeddings.Provider,
		Model:     cfg.Embeddings.Model,
		BaseURL:   cfg.Embeddings.BaseURL,
		CacheDir:  cfg.Embeddings.CacheDir,
		Dimension: cfg.Embeddings.Dimension,
	}
}

func storeConfig(cfg *config.Config) vectorstore.Config {
	return vectorstore.Config{
		Provider:   cfg.VectorStore.Provider,
		Collection: cfg.VectorStore.Collection,
		Chromem: vectorstore.ChromemConfig{
			Path:     cfg.VectorStore.Chromem.Path,
			Compress: cfg.VectorStore.Chromem.Compress,
		},
		Qdrant: vectorstore.QdrantConfig{
			Host:   cfg.VectorStore.Qdrant.Host,
			Port:   cfg.VectorStore.Qdrant.Port,
			UseTLS: cfg.VectorStore.Qdrant.UseTLS,
		},
	}
}

func generatorConfig(cfg *config.Config) generator.Config {
	g := cfg.Generator
	return generator.Config{
		BaseURL:       g.BaseURL,
		Model:         g.Model,
		APIKey:        g.APIKey.Value(),
		Temperature:   &g.Temperature,
		MaxTokens:     g.MaxTokens,
		Timeout:       g.Timeout.Duration(),
		RatePerMinute: g.RatePerMinute,
		MaxRetries:    g.MaxRetries,
	}
}

func pipelineConfig(cfg *config.Config) rag.Config {
	return rag.Config{
		Collection:   cfg.VectorStore.Collection,
		TopK:         cfg.Query.TopK,
		QueryTimeout: cfg.Query.Timeout.Duration(),
		BatchSize:    cfg.Ingest.BatchSize,
		DocumentChunks: chunking.Config{
			Size:    cfg.Chunking.Document.Size,
			Overlap: cfg.Chunking.Document.Overlap,
		},
		WebChunks: chunking.Config{
			Size:    cfg.Chunking.Web.Size,
			Overlap: cfg.Chunking.Web.Overlap,
		},
	}
}

func webConfig(cfg *config.Config) loader.WebConfig {
	return loader.WebConfig{
		Timeout:   cfg.Ingest.WebTimeout.Duration(),
		MaxChars:  cfg.Ingest.WebMaxChars,
		UserAgent: cfg.Ingest.UserAgent,
	}
}

func httpConfig(cfg *config.Config, folderRoot string) *http.Config {
	return &http.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		MaxUploadMB: cfg.Server.MaxUploadMB,
		FolderRoot:  folderRoot,
	}
}
