package vectorstore_test

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/ragvisor/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testCollection = "test_collection"

func newTestChromemStore(t *testing.T, dir string) *vectorstore.ChromemStore {
	t.Helper()

	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Path:       dir,
		VectorSize: 3,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func meta(source, chunkID string) map[string]string {
	return map[string]string{"source": source, "chunk_id": chunkID}
}

func seed(t *testing.T, store vectorstore.Store) {
	t.Helper()
	err := store.Upsert(context.Background(), testCollection,
		[]string{"doc.pdf_0", "doc.pdf_1", "doc.pdf_2"},
		[][]float32{{1, 0, 0}, {0, 1, 0}, {0.9, 0.1, 0}},
		[]string{"alpha", "beta", "almost alpha"},
		[]map[string]string{meta("doc.pdf", "doc.pdf_0"), meta("doc.pdf", "doc.pdf_1"), meta("doc.pdf", "doc.pdf_2")},
	)
	require.NoError(t, err)
}

func TestChromemStore_QueryOrdersByDistance(t *testing.T) {
	store := newTestChromemStore(t, t.TempDir())
	seed(t, store)

	hits, err := store.Query(context.Background(), testCollection, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "doc.pdf_0", hits[0].ID)
	assert.Equal(t, "alpha", hits[0].Document)
	assert.Equal(t, "doc.pdf", hits[0].Metadata["source"])
	assert.InDelta(t, 0, hits[0].Distance, 1e-5)

	assert.Equal(t, "doc.pdf_2", hits[1].ID)
	assert.LessOrEqual(t, hits[0].Distance, hits[1].Distance)
}

func TestChromemStore_QueryKLargerThanCount(t *testing.T) {
	store := newTestChromemStore(t, t.TempDir())
	seed(t, store)

	hits, err := store.Query(context.Background(), testCollection, []float32{0, 1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
	assert.Equal(t, "doc.pdf_1", hits[0].ID)
}

func TestChromemStore_QueryEmptyOrMissingCollection(t *testing.T) {
	store := newTestChromemStore(t, t.TempDir())
	ctx := context.Background()

	hits, err := store.Query(ctx, "missing", []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, store.GetOrCreate(ctx, testCollection))
	hits, err = store.Query(ctx, testCollection, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestChromemStore_UpsertIsIdempotent(t *testing.T) {
	store := newTestChromemStore(t, t.TempDir())
	ctx := context.Background()

	seed(t, store)
	seed(t, store)

	n, err := store.Count(ctx, testCollection)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Replacing a record updates its document.
	err = store.Upsert(ctx, testCollection,
		[]string{"doc.pdf_1"},
		[][]float32{{0, 1, 0}},
		[]string{"beta v2"},
		[]map[string]string{meta("doc.pdf", "doc.pdf_1")},
	)
	require.NoError(t, err)

	hits, err := store.Query(ctx, testCollection, []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "beta v2", hits[0].Document)

	n, err = store.Count(ctx, testCollection)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestChromemStore_UpsertValidation(t *testing.T) {
	store := newTestChromemStore(t, t.TempDir())
	ctx := context.Background()

	tests := []struct {
		name      string
		ids       []string
		vectors   [][]float32
		documents []string
		metadatas []map[string]string
	}{
		{
			name:      "length mismatch",
			ids:       []string{"a", "b"},
			vectors:   [][]float32{{1, 0, 0}},
			documents: []string{"a", "b"},
			metadatas: []map[string]string{nil, nil},
		},
		{
			name:      "wrong dimension",
			ids:       []string{"a"},
			vectors:   [][]float32{{1, 0}},
			documents: []string{"a"},
			metadatas: []map[string]string{nil},
		},
		{
			name:      "duplicate id",
			ids:       []string{"a", "a"},
			vectors:   [][]float32{{1, 0, 0}, {0, 1, 0}},
			documents: []string{"a", "b"},
			metadatas: []map[string]string{nil, nil},
		},
		{
			name:      "empty id",
			ids:       []string{""},
			vectors:   [][]float32{{1, 0, 0}},
			documents: []string{"a"},
			metadatas: []map[string]string{nil},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.Upsert(ctx, testCollection, tt.ids, tt.vectors, tt.documents, tt.metadatas)
			assert.ErrorIs(t, err, vectorstore.ErrValidation)
		})
	}

	n, err := store.Count(ctx, testCollection)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestChromemStore_QueryValidation(t *testing.T) {
	store := newTestChromemStore(t, t.TempDir())
	ctx := context.Background()

	_, err := store.Query(ctx, testCollection, []float32{1, 0, 0}, 0)
	assert.ErrorIs(t, err, vectorstore.ErrValidation)

	_, err = store.Query(ctx, testCollection, []float32{1, 0}, 3)
	assert.ErrorIs(t, err, vectorstore.ErrValidation)

	_, err = store.Query(ctx, "Bad-Name", []float32{1, 0, 0}, 3)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidCollectionName)
}

func TestChromemStore_Clear(t *testing.T) {
	store := newTestChromemStore(t, t.TempDir())
	ctx := context.Background()
	seed(t, store)

	require.NoError(t, store.Clear(ctx, testCollection))

	n, err := store.Count(ctx, testCollection)
	require.NoError(t, err)
	assert.Zero(t, n)

	hits, err := store.Query(ctx, testCollection, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, hits)

	// Clearing a missing collection is fine.
	require.NoError(t, store.Clear(ctx, testCollection))
}

func TestChromemStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := newTestChromemStore(t, dir)
	seed(t, first)
	require.NoError(t, first.Close())

	second := newTestChromemStore(t, dir)
	n, err := second.Count(ctx, testCollection)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	hits, err := second.Query(ctx, testCollection, []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc.pdf_1", hits[0].ID)
	assert.Equal(t, "doc.pdf_1", hits[0].Metadata["chunk_id"])
}

func TestChromemConfig_Defaults(t *testing.T) {
	var cfg vectorstore.ChromemConfig
	cfg.ApplyDefaults()
	assert.Equal(t, 384, cfg.VectorSize)
	assert.NotEmpty(t, cfg.Path)
	assert.NoError(t, cfg.Validate())

	cfg.VectorSize = -1
	assert.ErrorIs(t, cfg.Validate(), vectorstore.ErrInvalidConfig)
}
