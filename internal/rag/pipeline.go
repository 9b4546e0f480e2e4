// Package rag ties loaders, chunking, embeddings, the vector store, the query
// cache and the answer generator into the ingestion and question-answering
// pipeline.
//
// A Pipeline owns its collaborators; they are injected through Deps and
// released by Close.
//
//	p, err := rag.New(rag.Config{Collection: "rag_collection"}, rag.Deps{
//	    Embedder:  provider,
//	    Store:     store,
//	    Generator: gen,
//	    Logger:    logger,
//	})
//	report, err := p.Ingest(ctx, rag.IngestRequest{Kind: rag.KindFolder, Folder: "./docs"})
//	result, err := p.Ask(ctx, "What is RAG?")
package rag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fyrsmithlabs/ragvisor/internal/chunking"
	"github.com/fyrsmithlabs/ragvisor/internal/embeddings"
	"github.com/fyrsmithlabs/ragvisor/internal/generator"
	"github.com/fyrsmithlabs/ragvisor/internal/loader"
	"github.com/fyrsmithlabs/ragvisor/internal/querycache"
	"github.com/fyrsmithlabs/ragvisor/internal/vectorstore"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// Defaults for pipeline configuration.
const (
	DefaultTopK         = 3
	DefaultQueryTimeout = 30 * time.Second
	DefaultBatchSize    = 100
)

var (
	// ErrTimeout indicates the query deadline was exceeded or the caller cancelled.
	ErrTimeout = errors.New("query timed out")

	// ErrInvalidRequest indicates a malformed ingest request.
	ErrInvalidRequest = errors.New("invalid ingest request")

	// ErrMissingDependency indicates a required collaborator was not supplied.
	ErrMissingDependency = errors.New("missing pipeline dependency")
)

var tracer = otel.Tracer("ragvisor.rag")

// Config holds pipeline tuning.
type Config struct {
	// Collection all chunks are stored in.
	Collection string

	// TopK is the number of chunks retrieved per question. Default: 3
	TopK int

	// QueryTimeout bounds a single Ask. Default: 30s
	QueryTimeout time.Duration

	// BatchSize is the number of chunks embedded per call. Default: 100
	BatchSize int

	// DocumentChunks splits PDFs. Default: (1000, 200)
	DocumentChunks chunking.Config

	// WebChunks splits web pages and text files. Default: (500, 100)
	WebChunks chunking.Config
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = vectorstore.DefaultCollection
	}
	if c.TopK == 0 {
		c.TopK = DefaultTopK
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = DefaultQueryTimeout
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.DocumentChunks == (chunking.Config{}) {
		c.DocumentChunks = chunking.DocumentConfig()
	}
	if c.WebChunks == (chunking.Config{}) {
		c.WebChunks = chunking.WebConfig()
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := vectorstore.ValidateCollectionName(c.Collection); err != nil {
		return err
	}
	if c.TopK < 1 {
		return fmt.Errorf("top_k must be at least 1, got %d", c.TopK)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1, got %d", c.BatchSize)
	}
	if err := c.DocumentChunks.Validate(); err != nil {
		return fmt.Errorf("document chunks: %w", err)
	}
	if err := c.WebChunks.Validate(); err != nil {
		return fmt.Errorf("web chunks: %w", err)
	}
	return nil
}

// Deps are the collaborators a Pipeline drives.
type Deps struct {
	Embedder  embeddings.Embedder
	Store     vectorstore.Store
	Generator generator.Generator

	// Cache defaults to a querycache of DefaultCapacity entries.
	Cache *querycache.Cache

	// Loaders default to their zero-configuration constructors.
	PDF  *loader.PDF
	Text *loader.Text
	Web  *loader.Web

	Logger *zap.Logger
}

// Pipeline runs ingestion and question answering over one collection.
type Pipeline struct {
	cfg       Config
	embedder  embeddings.Embedder
	store     vectorstore.Store
	generator generator.Generator
	cache     *querycache.Cache
	pdf       *loader.PDF
	text      *loader.Text
	web       *loader.Web
	docSplit  *chunking.Splitter
	webSplit  *chunking.Splitter
	logger    *zap.Logger
}

// New validates cfg and builds a Pipeline from deps.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}

	switch {
	case deps.Embedder == nil:
		return nil, fmt.Errorf("%w: embedder", ErrMissingDependency)
	case deps.Store == nil:
		return nil, fmt.Errorf("%w: vector store", ErrMissingDependency)
	case deps.Generator == nil:
		return nil, fmt.Errorf("%w: generator", ErrMissingDependency)
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cache := deps.Cache
	if cache == nil {
		var err error
		cache, err = querycache.New(querycache.DefaultCapacity)
		if err != nil {
			return nil, err
		}
	}

	p := &Pipeline{
		cfg:       cfg,
		embedder:  deps.Embedder,
		store:     deps.Store,
		generator: deps.Generator,
		cache:     cache,
		pdf:       deps.PDF,
		text:      deps.Text,
		web:       deps.Web,
		docSplit:  chunking.NewSplitterFromConfig(cfg.DocumentChunks),
		webSplit:  chunking.NewSplitterFromConfig(cfg.WebChunks),
		logger:    logger,
	}
	if p.pdf == nil {
		p.pdf = loader.NewPDF()
	}
	if p.text == nil {
		p.text = loader.NewText()
	}
	if p.web == nil {
		p.web = loader.NewWeb(loader.WebConfig{}, logger)
	}
	return p, nil
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Count returns the number of chunks stored in the collection.
func (p *Pipeline) Count(ctx context.Context) (int, error) {
	return p.store.Count(ctx, p.cfg.Collection)
}

// ClearCache drops every cached answer.
func (p *Pipeline) ClearCache() {
	p.cache.Clear()
	p.logger.Info("query cache cleared")
}

// ClearCollection deletes every stored chunk and the cached answers derived from them.
func (p *Pipeline) ClearCollection(ctx context.Context) error {
	if err := p.store.Clear(ctx, p.cfg.Collection); err != nil {
		return fmt.Errorf("clearing collection %s: %w", p.cfg.Collection, err)
	}
	p.ClearCache()
	return nil
}

// Close releases the store and, when it holds resources, the embedder.
func (p *Pipeline) Close() error {
	var errs []error
	if err := p.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}
	if c, ok := p.embedder.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing embedder: %w", err))
		}
	}
	return errors.Join(errs...)
}
