package loader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PageExtractor returns the plain text of every page of a PDF, in page order.
// Pages without extractable text are returned as empty strings.
type PageExtractor interface {
	Pages(r io.ReaderAt, size int64) ([]string, error)
}

// PDF loads PDF documents page by page.
type PDF struct {
	extractor PageExtractor
}

// PDFOption configures a PDF loader.
type PDFOption func(*PDF)

// WithPageExtractor replaces the default ledongthuc/pdf extractor.
func WithPageExtractor(e PageExtractor) PDFOption {
	return func(l *PDF) {
		l.extractor = e
	}
}

// NewPDF creates a PDF loader.
func NewPDF(opts ...PDFOption) *PDF {
	l := &PDF{extractor: plainTextExtractor{}}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadFile loads the PDF at path. The source is the file's base name.
func (l *PDF) LoadFile(ctx context.Context, path string) (Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Unit{}, fmt.Errorf("%w: reading %s: %v", ErrLoad, path, err)
	}
	return l.LoadBytes(ctx, filepath.Base(path), data)
}

// LoadBytes loads an in-memory PDF, such as an uploaded file.
func (l *PDF) LoadBytes(ctx context.Context, source string, data []byte) (Unit, error) {
	return l.Load(ctx, source, bytes.NewReader(data), int64(len(data)))
}

// Load extracts the text of every page, skips pages that yield no text and
// joins the rest with "\n".
func (l *PDF) Load(ctx context.Context, source string, r io.ReaderAt, size int64) (Unit, error) {
	if err := ctx.Err(); err != nil {
		return Unit{}, err
	}

	pages, err := l.extractor.Pages(r, size)
	if err != nil {
		return Unit{}, fmt.Errorf("%w: parsing %s: %v", ErrLoad, source, err)
	}

	kept := make([]string, 0, len(pages))
	for _, page := range pages {
		if strings.TrimSpace(page) == "" {
			continue
		}
		kept = append(kept, page)
	}
	if len(kept) == 0 {
		return Unit{}, fmt.Errorf("%w: %s contains no extractable text", ErrLoad, source)
	}

	return Unit{Source: source, Text: strings.Join(kept, "\n")}, nil
}

// plainTextExtractor extracts page text with ledongthuc/pdf.
type plainTextExtractor struct{}

func (plainTextExtractor) Pages(r io.ReaderAt, size int64) (pages []string, err error) {
	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if p := recover(); p != nil {
			pages = nil
			err = fmt.Errorf("malformed pdf: %v", p)
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, err
	}

	n := reader.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}
