package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const backendChromem = "chromem"

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("ragvisor.vectorstore.chromem")

// errEmbeddingNotSupported is returned if chromem ever asks the store to embed text.
var errEmbeddingNotSupported = errors.New("chromem store expects precomputed embeddings")

// ChromemConfig holds configuration for chromem-go embedded vector database.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	// Default: "~/.local/share/ragvisor/vectorstore"
	Path string `koanf:"path"`

	// Compress enables gzip compression for stored data.
	Compress bool `koanf:"compress"`

	// VectorSize is the expected embedding dimension.
	// Must match the embedder's output dimension.
	// Default: 384
	VectorSize int `koanf:"vector_size"`
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.local/share/ragvisor/vectorstore"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore implements Store using chromem-go persisted to a local directory.
//
// Documents are stored with their precomputed, normalized embeddings.
// chromem ranks by cosine similarity; hits report 1 - similarity as distance.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger
}

var _ Store = (*ChromemStore)(nil)

// NewChromemStore opens (or creates) the persistent database at config.Path.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	expandedPath, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(expandedPath, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", expandedPath, err)
	}

	db, err := chromem.NewPersistentDB(expandedPath, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}
	config.Path = expandedPath

	logger.Info("chromem store initialized",
		zap.String("path", expandedPath),
		zap.Bool("compress", config.Compress),
		zap.Int("vector_size", config.VectorSize),
	)

	return &ChromemStore{
		db:     db,
		config: config,
		logger: logger,
	}, nil
}

// expandPath expands a leading ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

func rejectEmbedding(context.Context, string) ([]float32, error) {
	return nil, errEmbeddingNotSupported
}

// GetOrCreate ensures the collection exists.
func (s *ChromemStore) GetOrCreate(ctx context.Context, collection string) (err error) {
	start := time.Now()
	defer func() { observe(backendChromem, "get_or_create", start, err) }()

	_, err = s.collection(collection)
	return err
}

func (s *ChromemStore) collection(name string) (*chromem.Collection, error) {
	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}
	c, err := s.db.GetOrCreateCollection(name, nil, rejectEmbedding)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", name, err)
	}
	return c, nil
}

// Upsert inserts or replaces records by id.
func (s *ChromemStore) Upsert(ctx context.Context, collection string, ids []string, vectors [][]float32, documents []string, metadatas []map[string]string) (err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Upsert")
	defer span.End()
	start := time.Now()
	defer func() { observe(backendChromem, "upsert", start, err) }()

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("record_count", len(ids)),
	)

	if err := ValidateUpsert(s.config.VectorSize, ids, vectors, documents, metadatas); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	c, err := s.collection(collection)
	if err != nil {
		span.RecordError(err)
		return err
	}

	docs := make([]chromem.Document, len(ids))
	for i := range ids {
		docs[i] = chromem.Document{
			ID:        ids[i],
			Content:   documents[i],
			Metadata:  copyMetadata(metadatas[i]),
			Embedding: vectors[i],
		}
	}

	// Embeddings are precomputed, so a single worker is enough.
	if err := c.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding documents to %s: %w", collection, err)
	}

	RecordsUpserted.WithLabelValues(backendChromem).Add(float64(len(docs)))
	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("upserted records",
		zap.String("collection", collection),
		zap.Int("count", len(docs)),
	)
	return nil
}

// Query returns the k nearest records to vector.
func (s *ChromemStore) Query(ctx context.Context, collection string, vector []float32, k int) (hits []Hit, err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Query")
	defer span.End()
	start := time.Now()
	defer func() { observe(backendChromem, "query", start, err) }()

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("k", k),
	)

	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if err := validateQuery(s.config.VectorSize, vector, k); err != nil {
		return nil, err
	}

	c := s.db.GetCollection(collection, rejectEmbedding)
	if c == nil {
		span.SetStatus(codes.Ok, "collection missing")
		return []Hit{}, nil
	}

	// chromem requires nResults <= document count.
	docCount := c.Count()
	if docCount == 0 {
		span.SetStatus(codes.Ok, "empty collection")
		return []Hit{}, nil
	}
	if k > docCount {
		k = docCount
	}

	results, err := c.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", collection, err)
	}

	hits = make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{
			ID:       r.ID,
			Document: r.Content,
			Metadata: copyMetadata(r.Metadata),
			Distance: 1 - r.Similarity,
		}
	}
	sortHits(hits)

	span.SetAttributes(attribute.Int("results_count", len(hits)))
	span.SetStatus(codes.Ok, "success")
	return hits, nil
}

// Count returns the number of records in the collection.
func (s *ChromemStore) Count(ctx context.Context, collection string) (n int, err error) {
	start := time.Now()
	defer func() { observe(backendChromem, "count", start, err) }()

	if err := ValidateCollectionName(collection); err != nil {
		return 0, err
	}
	c := s.db.GetCollection(collection, rejectEmbedding)
	if c == nil {
		return 0, nil
	}
	return c.Count(), nil
}

// Clear deletes the collection and its persisted files.
func (s *ChromemStore) Clear(ctx context.Context, collection string) (err error) {
	_, span := chromemTracer.Start(ctx, "ChromemStore.Clear")
	defer span.End()
	start := time.Now()
	defer func() { observe(backendChromem, "clear", start, err) }()

	span.SetAttributes(attribute.String("collection", collection))

	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	if err := s.db.DeleteCollection(collection); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection %s: %w", collection, err)
	}

	s.logger.Info("collection cleared", zap.String("collection", collection))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Close is a no-op; chromem persists on every write.
func (s *ChromemStore) Close() error {
	return nil
}

func copyMetadata(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// sortHits orders hits by ascending distance, breaking ties by id.
func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
}
