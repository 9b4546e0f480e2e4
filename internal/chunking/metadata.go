package chunking

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidMetadata indicates chunk metadata with missing or unknown keys.
var ErrInvalidMetadata = errors.New("invalid chunk metadata")

// Metadata keys as stored in the vector store payload.
const (
	KeySource  = "source"
	KeyChunkID = "chunk_id"
)

// Metadata identifies where a chunk came from.
type Metadata struct {
	Source  string `json:"source"`
	ChunkID string `json:"chunk_id"`
}

// Chunk is a span of source text plus its identity.
type Chunk struct {
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

// ChunkID builds the stable id for the index-th chunk of source.
func ChunkID(source string, index int) string {
	return source + "_" + strconv.Itoa(index)
}

// Validate checks that both fields are set.
func (m Metadata) Validate() error {
	if m.Source == "" {
		return fmt.Errorf("%w: missing %s", ErrInvalidMetadata, KeySource)
	}
	if m.ChunkID == "" {
		return fmt.Errorf("%w: missing %s", ErrInvalidMetadata, KeyChunkID)
	}
	return nil
}

// Map returns the payload representation used by vector stores.
func (m Metadata) Map() map[string]string {
	return map[string]string{
		KeySource:  m.Source,
		KeyChunkID: m.ChunkID,
	}
}

// ParseMetadata converts a stored payload back into Metadata.
// Unknown keys and missing keys are rejected.
func ParseMetadata(raw map[string]string) (Metadata, error) {
	var m Metadata
	for k, v := range raw {
		switch k {
		case KeySource:
			m.Source = v
		case KeyChunkID:
			m.ChunkID = v
		default:
			return Metadata{}, fmt.Errorf("%w: unknown key %q", ErrInvalidMetadata, k)
		}
	}
	if err := m.Validate(); err != nil {
		return Metadata{}, err
	}
	return m, nil
}
