package loader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unicode/utf8"
)

// Text loads plain UTF-8 text files.
type Text struct{}

// NewText creates a plain-text loader.
func NewText() *Text {
	return &Text{}
}

// LoadFile reads the file at path. The source is the file's base name.
func (l *Text) LoadFile(ctx context.Context, path string) (Unit, error) {
	f, err := os.Open(path)
	if err != nil {
		return Unit{}, fmt.Errorf("%w: opening %s: %v", ErrLoad, path, err)
	}
	defer f.Close()
	return l.Load(ctx, filepath.Base(path), f)
}

// LoadBytes loads in-memory text, such as an uploaded file.
func (l *Text) LoadBytes(ctx context.Context, source string, data []byte) (Unit, error) {
	if err := ctx.Err(); err != nil {
		return Unit{}, err
	}
	if !utf8.Valid(data) {
		return Unit{}, fmt.Errorf("%w: %s is not valid UTF-8 text", ErrLoad, source)
	}
	return Unit{Source: source, Text: string(data)}, nil
}

// Load reads all of r.
func (l *Text) Load(ctx context.Context, source string, r io.Reader) (Unit, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Unit{}, fmt.Errorf("%w: reading %s: %v", ErrLoad, source, err)
	}
	return l.LoadBytes(ctx, source, data)
}
