package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// teiServer echoes one vector per input whose first element is the input length.
func teiServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embed", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var req struct {
			Inputs   json.RawMessage `json:"inputs"`
			Truncate bool            `json:"truncate"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Truncate)

		var inputs []string
		if err := json.Unmarshal(req.Inputs, &inputs); err != nil {
			var single string
			require.NoError(t, json.Unmarshal(req.Inputs, &single))
			inputs = []string{single}
		}

		out := make([][]float32, len(inputs))
		for i, in := range inputs {
			out[i] = []float32{float32(len(in)), 1, 0}
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
}

func TestService_EmbedDocuments(t *testing.T) {
	srv := teiServer(t)
	defer srv.Close()

	svc, err := NewService(Config{BaseURL: srv.URL, Model: "test"}, zap.NewNop())
	require.NoError(t, err)

	vectors, err := svc.EmbedDocuments(context.Background(), []string{"a", "bbb", "cc"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, float32(1), vectors[0][0])
	assert.Equal(t, float32(3), vectors[1][0])
	assert.Equal(t, float32(2), vectors[2][0])
}

func TestService_EmbedQuery(t *testing.T) {
	srv := teiServer(t)
	defer srv.Close()

	svc, err := NewService(Config{BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	vector, err := svc.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 1, 0}, vector)
}

func TestService_Errors(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		svc, err := NewService(Config{BaseURL: "http://unused"}, nil)
		require.NoError(t, err)

		_, err = svc.EmbedDocuments(context.Background(), nil)
		assert.ErrorIs(t, err, ErrEmptyInput)
		assert.ErrorIs(t, err, ErrEmbedding)

		_, err = svc.EmbedQuery(context.Background(), "")
		assert.ErrorIs(t, err, ErrEmbedding)
	})

	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model loading", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		svc, err := NewService(Config{BaseURL: srv.URL}, nil)
		require.NoError(t, err)

		_, err = svc.EmbedDocuments(context.Background(), []string{"x"})
		assert.ErrorIs(t, err, ErrEmbedding)
		assert.Contains(t, err.Error(), "503")
	})

	t.Run("misaligned response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[[0.1, 0.2]]`))
		}))
		defer srv.Close()

		svc, err := NewService(Config{BaseURL: srv.URL}, nil)
		require.NoError(t, err)

		_, err = svc.EmbedDocuments(context.Background(), []string{"x", "y"})
		assert.ErrorIs(t, err, ErrEmbedding)
	})

	t.Run("missing base url", func(t *testing.T) {
		_, err := NewService(Config{}, nil)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestNewProvider(t *testing.T) {
	t.Run("tei provider uses model dimension", func(t *testing.T) {
		p, err := NewProvider(ProviderConfig{Provider: "tei", BaseURL: "http://localhost:8080"}, nil)
		require.NoError(t, err)
		assert.Equal(t, 384, p.Dimension())
		assert.NoError(t, p.Close())
	})

	t.Run("tei provider dimension override", func(t *testing.T) {
		p, err := NewProvider(ProviderConfig{Provider: "tei", Model: "custom", Dimension: 128}, nil)
		require.NoError(t, err)
		assert.Equal(t, 128, p.Dimension())
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := NewProvider(ProviderConfig{Provider: "word2vec"}, nil)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestDetectDimensionFromModel(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{DefaultModel, 384},
		{"BAAI/bge-base-en-v1.5", 768},
		{"intfloat/e5-large-v2", 1024},
		{"nomic-ai/nomic-embed-text-base", 768},
		{"something-unknown", 384},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, detectDimensionFromModel(tt.model))
		})
	}
}
