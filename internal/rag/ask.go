package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/ragvisor/internal/chunking"
	"github.com/fyrsmithlabs/ragvisor/internal/generator"
	"github.com/fyrsmithlabs/ragvisor/internal/querycache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Retrieved is one chunk that grounded an answer.
type Retrieved struct {
	Text    string `json:"text"`
	Source  string `json:"source"`
	ChunkID string `json:"chunk_id"`
}

// AskResult is the outcome of a question.
type AskResult struct {
	Answer    string      `json:"answer"`
	Retrieved []Retrieved `json:"retrieved"`
	FromCache bool        `json:"from_cache"`

	// State is the terminal state, DONE or FAILED.
	State State `json:"state"`

	// Path lists every state the query passed through, in order.
	Path []State `json:"-"`

	// Failure describes why the query failed. Empty unless State is FAILED.
	Failure string `json:"failure,omitempty"`
}

func (r *AskResult) enter(s State) {
	r.State = s
	r.Path = append(r.Path, s)
}

// Ask answers query from the stored chunks.
//
// The query is expected to be sanitized by the caller. Embedding, search and
// generation failures degrade to ApologyAnswer with a nil error. Only a
// deadline or cancellation returns an error, ErrTimeout, along with the
// apology result.
func (p *Pipeline) Ask(ctx context.Context, query string) (*AskResult, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.Ask")
	defer span.End()

	start := time.Now()
	defer func() { QueryDuration.Observe(time.Since(start).Seconds()) }()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.QueryTimeout)
	defer cancel()

	res := &AskResult{}
	res.enter(StateReceived)

	res.enter(StateCacheCheck)
	key := querycache.Key(query)
	gen := p.cache.Generation()
	if entry, ok := p.cache.Get(key); ok {
		res.enter(StateCacheHit)
		res.Answer = entry.Answer
		res.Retrieved = retrievedFromEntry(entry)
		res.FromCache = true
		res.enter(StateDone)
		QueriesTotal.WithLabelValues("cache_hit").Inc()
		span.SetAttributes(attribute.Bool("from_cache", true))
		return res, nil
	}

	res.enter(StateEmbedding)
	vector, err := p.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return p.fail(ctx, res, fmt.Errorf("embedding query: %w", err))
	}

	res.enter(StateSearching)
	hits, err := p.store.Query(ctx, p.cfg.Collection, vector, p.cfg.TopK)
	if err != nil {
		return p.fail(ctx, res, fmt.Errorf("searching %s: %w", p.cfg.Collection, err))
	}

	if len(hits) == 0 {
		res.enter(StateNoResults)
		res.Answer = NoResultsAnswer
		res.Retrieved = []Retrieved{}
		res.enter(StateDone)
		QueriesTotal.WithLabelValues("no_results").Inc()
		return res, nil
	}

	res.enter(StateContextBuilt)
	docs := make([]string, len(hits))
	metas := make([]chunking.Metadata, len(hits))
	res.Retrieved = make([]Retrieved, len(hits))
	for i, hit := range hits {
		meta, err := chunking.ParseMetadata(hit.Metadata)
		if err != nil {
			return p.fail(ctx, res, fmt.Errorf("record %s: %w", hit.ID, err))
		}
		docs[i] = hit.Document
		metas[i] = meta
		res.Retrieved[i] = Retrieved{Text: hit.Document, Source: meta.Source, ChunkID: meta.ChunkID}
	}
	span.SetAttributes(attribute.Int("retrieved", len(hits)))

	res.enter(StateGenerating)
	answer, err := p.generator.Generate(ctx, query, generator.BuildContext(docs))
	if err != nil {
		return p.fail(ctx, res, err)
	}
	res.Answer = answer

	res.enter(StateCacheStore)
	stored := p.cache.PutIfGeneration(key, querycache.Entry{
		Answer:    answer,
		Documents: docs,
		Metadatas: metas,
	}, gen)
	if !stored {
		// The collection changed while generating.
		p.logger.Debug("skipping cache store after invalidation")
	}

	res.enter(StateDone)
	QueriesTotal.WithLabelValues("answered").Inc()
	span.SetStatus(codes.Ok, "answered")
	return res, nil
}

// fail moves res to FAILED with the apology answer. Deadline and
// cancellation also return ErrTimeout.
func (p *Pipeline) fail(ctx context.Context, res *AskResult, err error) (*AskResult, error) {
	from := res.State
	res.enter(StateFailed)
	res.Answer = ApologyAnswer
	res.Failure = err.Error()
	if res.Retrieved == nil {
		res.Retrieved = []Retrieved{}
	}

	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		QueriesTotal.WithLabelValues("timeout").Inc()
		p.logger.Warn("query timed out",
			zap.String("state", string(from)),
			zap.Error(err),
		)
		return res, fmt.Errorf("%w during %s: %v", ErrTimeout, from, err)
	}

	QueriesTotal.WithLabelValues("failed").Inc()
	p.logger.Error("query failed",
		zap.String("state", string(from)),
		zap.Error(err),
	)
	return res, nil
}

func retrievedFromEntry(e querycache.Entry) []Retrieved {
	out := make([]Retrieved, len(e.Documents))
	for i, doc := range e.Documents {
		out[i].Text = doc
		if i < len(e.Metadatas) {
			out[i].Source = e.Metadatas[i].Source
			out[i].ChunkID = e.Metadatas[i].ChunkID
		}
	}
	return out
}
