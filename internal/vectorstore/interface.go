// Package vectorstore persists embedding records and answers nearest-neighbor queries.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Sentinel errors for vector store operations.
var (
	// ErrValidation indicates malformed upsert or query arguments.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrConnectionFailed indicates the backing service is unreachable.
	ErrConnectionFailed = errors.New("failed to connect to vector store")
)

// Hit is one nearest-neighbor result.
type Hit struct {
	ID       string
	Document string
	Metadata map[string]string

	// Distance is the cosine distance (1 - cosine similarity). Lower is closer.
	Distance float32
}

// Store is the interface for vector storage operations.
//
// Vectors are computed by the caller; stores never embed text themselves.
// Record ids are the join key between hits and the original chunks, so
// upserting an existing id replaces its vector, document and metadata.
type Store interface {
	// GetOrCreate ensures the collection exists.
	GetOrCreate(ctx context.Context, collection string) error

	// Upsert inserts or replaces records by id. All slices must have the
	// same length and every vector must match the store's dimension,
	// otherwise ErrValidation is returned.
	Upsert(ctx context.Context, collection string, ids []string, vectors [][]float32, documents []string, metadatas []map[string]string) error

	// Query returns at most k hits sorted by ascending distance. An empty or
	// missing collection yields an empty slice, not an error.
	Query(ctx context.Context, collection string, vector []float32, k int) ([]Hit, error)

	// Count returns the number of records in the collection.
	Count(ctx context.Context, collection string) (int, error)

	// Clear removes the collection and all its records.
	Clear(ctx context.Context, collection string) error

	// Close releases the store's resources.
	Close() error
}

// collectionNamePattern validates collection names.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName checks name against ^[a-z0-9_]{1,64}$.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// ValidateUpsert checks the upsert preconditions shared by every Store.
func ValidateUpsert(dimension int, ids []string, vectors [][]float32, documents []string, metadatas []map[string]string) error {
	n := len(ids)
	if len(vectors) != n || len(documents) != n || len(metadatas) != n {
		return fmt.Errorf("%w: length mismatch: ids=%d vectors=%d documents=%d metadatas=%d",
			ErrValidation, n, len(vectors), len(documents), len(metadatas))
	}

	seen := make(map[string]struct{}, n)
	for i, id := range ids {
		if id == "" {
			return fmt.Errorf("%w: empty id at index %d", ErrValidation, i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate id %q in batch", ErrValidation, id)
		}
		seen[id] = struct{}{}
		if err := validateVector(dimension, vectors[i]); err != nil {
			return fmt.Errorf("record %q: %w", id, err)
		}
	}
	return nil
}

func validateVector(dimension int, v []float32) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty vector", ErrValidation)
	}
	if dimension > 0 && len(v) != dimension {
		return fmt.Errorf("%w: vector dimension %d does not match store dimension %d", ErrValidation, len(v), dimension)
	}
	return nil
}

func validateQuery(dimension int, vector []float32, k int) error {
	if k <= 0 {
		return fmt.Errorf("%w: k must be positive, got %d", ErrValidation, k)
	}
	return validateVector(dimension, vector)
}
