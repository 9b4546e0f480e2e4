package vectorstore_test

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/ragvisor/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	var cfg vectorstore.Config
	cfg.ApplyDefaults()

	assert.Equal(t, vectorstore.ProviderChromem, cfg.Provider)
	assert.Equal(t, vectorstore.DefaultCollection, cfg.Collection)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	cfg := vectorstore.Config{Provider: "pinecone", Collection: "ok"}
	assert.ErrorIs(t, cfg.Validate(), vectorstore.ErrInvalidConfig)

	cfg = vectorstore.Config{Provider: vectorstore.ProviderChromem, Collection: "Not Valid"}
	assert.ErrorIs(t, cfg.Validate(), vectorstore.ErrInvalidCollectionName)
}

func TestNewStore_ChromemUsesEmbedderDimension(t *testing.T) {
	store, err := vectorstore.NewStore(vectorstore.Config{
		Chromem: vectorstore.ChromemConfig{Path: t.TempDir(), VectorSize: 384},
	}, 2, nil)
	require.NoError(t, err)
	defer store.Close()

	err = store.Upsert(context.Background(), "c", []string{"a"}, [][]float32{{1, 0}}, []string{"a"}, []map[string]string{nil})
	require.NoError(t, err)

	err = store.Upsert(context.Background(), "c", []string{"b"}, [][]float32{{1, 0, 0}}, []string{"b"}, []map[string]string{nil})
	assert.ErrorIs(t, err, vectorstore.ErrValidation)
}
