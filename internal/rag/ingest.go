package rag

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fyrsmithlabs/ragvisor/internal/chunking"
	"github.com/fyrsmithlabs/ragvisor/internal/loader"
	"github.com/fyrsmithlabs/ragvisor/internal/sanitize"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Kind selects where an ingest request reads its sources from.
type Kind string

const (
	KindUpload Kind = "upload"
	KindFolder Kind = "folder"
	KindURL    Kind = "url"
)

// File is an uploaded document.
type File struct {
	Name string
	Data []byte
}

// ProgressFunc is called after every embedded batch.
type ProgressFunc func(done, total int)

// IngestRequest describes one ingestion.
type IngestRequest struct {
	Kind Kind

	// Files are used by KindUpload.
	Files []File

	// Folder is used by KindFolder. Only its top-level *.pdf and *.txt files are read.
	Folder string

	// URL is used by KindURL.
	URL string

	// Overwrite clears the collection before storing.
	Overwrite bool

	// Progress is optional.
	Progress ProgressFunc
}

// SourceError records a source that could not be ingested.
type SourceError struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

// SourceReport summarizes one successfully loaded source.
type SourceReport struct {
	Source    string `json:"source"`
	Chunks    int    `json:"chunks"`
	Truncated bool   `json:"truncated,omitempty"`
}

// IngestReport is the outcome of an ingestion.
type IngestReport struct {
	ChunksEmbedded int            `json:"chunks_embedded"`
	Errors         []SourceError  `json:"errors"`
	Sources        []SourceReport `json:"sources"`
}

func (r *IngestReport) addError(source string, err error) {
	r.Errors = append(r.Errors, SourceError{Source: source, Message: err.Error()})
}

// Ingest loads, cleans, splits, embeds and stores every source of req.
//
// Per-source failures are collected in the report and never abort the other
// sources. The returned error is non-nil only for an invalid request, a
// cancelled context or a failed overwrite.
func (p *Pipeline) Ingest(ctx context.Context, req IngestRequest) (*IngestReport, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.Ingest")
	defer span.End()
	span.SetAttributes(
		attribute.String("kind", string(req.Kind)),
		attribute.Bool("overwrite", req.Overwrite),
	)

	if err := validateRequest(req); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if req.Overwrite {
		if err := p.ClearCollection(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("overwrite: %w", err)
		}
	}

	report := &IngestReport{Errors: []SourceError{}, Sources: []SourceReport{}}
	start := time.Now()

	chunks := p.collect(ctx, req, report)
	if err := ctx.Err(); err != nil {
		return report, err
	}

	if len(chunks) > 0 {
		if err := p.store.GetOrCreate(ctx, p.cfg.Collection); err != nil {
			for _, src := range sourcesOf(chunks) {
				report.addError(src, err)
			}
		} else if err := p.storeChunks(ctx, chunks, req.Progress, report); err != nil {
			return report, err
		}
	}

	if n := len(report.Errors); n > 0 {
		SourceFailures.WithLabelValues(string(req.Kind)).Add(float64(n))
	}
	if report.ChunksEmbedded > 0 {
		// Cached answers may no longer reflect the collection.
		p.cache.Clear()
	}

	span.SetAttributes(
		attribute.Int("chunks_embedded", report.ChunksEmbedded),
		attribute.Int("errors", len(report.Errors)),
	)
	p.logger.Info("ingestion finished",
		zap.String("kind", string(req.Kind)),
		zap.Int("chunks_embedded", report.ChunksEmbedded),
		zap.Int("sources", len(report.Sources)),
		zap.Int("errors", len(report.Errors)),
		zap.Duration("duration", time.Since(start)),
	)
	return report, nil
}

func validateRequest(req IngestRequest) error {
	switch req.Kind {
	case KindUpload:
		if len(req.Files) == 0 {
			return fmt.Errorf("%w: no files uploaded", ErrInvalidRequest)
		}
	case KindFolder:
		if req.Folder == "" {
			return fmt.Errorf("%w: folder required", ErrInvalidRequest)
		}
	case KindURL:
		if req.URL == "" {
			return fmt.Errorf("%w: url required", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, req.Kind)
	}
	return nil
}

// collect loads and splits every source, recording failures in report.
func (p *Pipeline) collect(ctx context.Context, req IngestRequest, report *IngestReport) []chunking.Chunk {
	var all []chunking.Chunk
	seen := make(map[string]struct{})
	add := func(unit loader.Unit, kind loader.Kind, err error) {
		if err != nil {
			report.addError(unit.Source, err)
			return
		}
		// Chunk ids derive from the source, so a repeated source would collide.
		if _, dup := seen[unit.Source]; dup {
			report.addError(unit.Source, fmt.Errorf("%w: duplicate source in request", loader.ErrLoad))
			return
		}
		seen[unit.Source] = struct{}{}
		chunks, err := p.split(unit, kind)
		if err != nil {
			report.addError(unit.Source, err)
			return
		}
		report.Sources = append(report.Sources, SourceReport{
			Source:    unit.Source,
			Chunks:    len(chunks),
			Truncated: unit.Truncated,
		})
		all = append(all, chunks...)
	}

	switch req.Kind {
	case KindUpload:
		for _, f := range req.Files {
			if ctx.Err() != nil {
				return all
			}
			unit, kind, err := p.loadUpload(ctx, f)
			add(unit, kind, err)
		}

	case KindFolder:
		paths, err := loader.ScanFolder(req.Folder)
		if err != nil {
			report.addError(req.Folder, err)
			return nil
		}
		if len(paths) == 0 {
			report.addError(req.Folder, fmt.Errorf("%w: no .pdf or .txt files found", loader.ErrLoad))
		}
		for _, path := range paths {
			if ctx.Err() != nil {
				return all
			}
			unit, kind, err := p.loadFile(ctx, path)
			add(unit, kind, err)
		}

	case KindURL:
		unit, err := p.web.Load(ctx, req.URL)
		unit.Source = req.URL
		add(unit, "", err)
	}
	return all
}

func (p *Pipeline) loadUpload(ctx context.Context, f File) (loader.Unit, loader.Kind, error) {
	source := sanitize.Filename(f.Name)
	kind, ok := loader.KindOf(source)
	if !ok {
		return loader.Unit{Source: source}, "", fmt.Errorf("%w: unsupported file type %q", loader.ErrLoad, source)
	}

	var (
		unit loader.Unit
		err  error
	)
	if kind == loader.KindPDF {
		unit, err = p.pdf.LoadBytes(ctx, source, f.Data)
	} else {
		unit, err = p.text.LoadBytes(ctx, source, f.Data)
	}
	unit.Source = source
	return unit, kind, err
}

func (p *Pipeline) loadFile(ctx context.Context, path string) (loader.Unit, loader.Kind, error) {
	kind, _ := loader.KindOf(path)

	var (
		unit loader.Unit
		err  error
	)
	if kind == loader.KindPDF {
		unit, err = p.pdf.LoadFile(ctx, path)
	} else {
		unit, err = p.text.LoadFile(ctx, path)
	}
	// Same naming as uploads so re-ingesting a file by either route
	// overwrites the same chunk ids.
	unit.Source = sanitize.Filename(filepath.Base(path))
	return unit, kind, err
}

// split cleans unit and splits it with the configuration for its kind.
// PDFs use the document configuration; text files and web pages use the web one.
func (p *Pipeline) split(unit loader.Unit, kind loader.Kind) ([]chunking.Chunk, error) {
	text := chunking.Clean(unit.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: no text left after cleaning %s", loader.ErrLoad, unit.Source)
	}

	splitter := p.webSplit
	if kind == loader.KindPDF {
		splitter = p.docSplit
	}
	chunks, err := splitter.Chunks(unit.Source, text)
	if err != nil {
		return nil, err
	}
	for _, c := range chunks {
		if err := c.Metadata.Validate(); err != nil {
			return nil, err
		}
	}
	return chunks, nil
}

// storeChunks embeds chunks in batches of BatchSize, in input order, and
// upserts each batch. An embedding or store failure stops the remaining
// batches and is reported against every source not yet fully stored.
func (p *Pipeline) storeChunks(ctx context.Context, chunks []chunking.Chunk, progress ProgressFunc, report *IngestReport) error {
	total := len(chunks)
	batchSize := p.cfg.BatchSize

	for done := 0; done < total; done += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch := chunks[done:min(done+batchSize, total)]
		if err := p.storeBatch(ctx, batch); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			for _, src := range sourcesOf(chunks[done:]) {
				report.addError(src, err)
			}
			p.logger.Error("ingestion aborted",
				zap.Int("stored", report.ChunksEmbedded),
				zap.Int("total", total),
				zap.Error(err),
			)
			return nil
		}

		report.ChunksEmbedded += len(batch)
		ChunksEmbedded.Add(float64(len(batch)))
		if progress != nil {
			progress(report.ChunksEmbedded, total)
		}
		p.logger.Debug("batch stored",
			zap.Int("done", report.ChunksEmbedded),
			zap.Int("total", total),
		)
	}
	return nil
}

func (p *Pipeline) storeBatch(ctx context.Context, batch []chunking.Chunk) error {
	texts := make([]string, len(batch))
	ids := make([]string, len(batch))
	metas := make([]map[string]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
		ids[i] = c.Metadata.ChunkID
		metas[i] = c.Metadata.Map()
	}

	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding batch: %w", err)
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("embedding batch: got %d vectors for %d chunks", len(vectors), len(batch))
	}

	if err := p.store.Upsert(ctx, p.cfg.Collection, ids, vectors, texts, metas); err != nil {
		return fmt.Errorf("storing batch: %w", err)
	}
	return nil
}

// sourcesOf returns the distinct sources of chunks in first-seen order.
func sourcesOf(chunks []chunking.Chunk) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, c := range chunks {
		if _, ok := seen[c.Metadata.Source]; ok {
			continue
		}
		seen[c.Metadata.Source] = struct{}{}
		out = append(out, c.Metadata.Source)
	}
	return out
}
