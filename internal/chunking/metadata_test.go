package chunking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetadata(t *testing.T) {
	t.Run("round trips through Map", func(t *testing.T) {
		m := Metadata{Source: "doc.pdf", ChunkID: "doc.pdf_3"}
		got, err := ParseMetadata(m.Map())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	})

	tests := []struct {
		name string
		raw  map[string]string
	}{
		{"nil map", nil},
		{"missing chunk id", map[string]string{"source": "a"}},
		{"missing source", map[string]string{"chunk_id": "a_0"}},
		{"empty source", map[string]string{"source": "", "chunk_id": "a_0"}},
		{"unknown key", map[string]string{"source": "a", "chunk_id": "a_0", "page": "2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMetadata(tt.raw)
			assert.ErrorIs(t, err, ErrInvalidMetadata)
		})
	}
}

func TestChunkID(t *testing.T) {
	assert.Equal(t, "doc.pdf_0", ChunkID("doc.pdf", 0))
	assert.Equal(t, "https://example.com_12", ChunkID("https://example.com", 12))
}
