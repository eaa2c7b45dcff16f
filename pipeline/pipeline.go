// Copyright 2026 Quarrydocs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/quarrydocs/quarry/ai"
	"github.com/quarrydocs/quarry/core"
	"github.com/quarrydocs/quarry/source"
)

// Summary reports the outcome of one ingestion run. Partial
// per-document failures are recorded here rather than failing the run.
type Summary struct {
	RunID          string
	DocsProcessed  int
	DocsSkipped    int
	ChunksEmbedded int
	ChunksFailed   int
	ProtocolErrors int
	SinkErrors     int
	PagesWritten   int
	PartialPages   int
	Elapsed        time.Duration
}

// Pipeline drives documents from a source through chunking, batched
// embedding, and the sink fan-out, one document at a time. The full
// corpus of raw text, chunks, or vectors is never held simultaneously.
type Pipeline struct {
	batcher  *Batcher
	pages    *PageAggregator
	chunker  *Chunker // nil means per-document defaults by content kind
	progress *ProgressTracker
	logger   *slog.Logger

	sinkErrors func() int
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithChunking overrides the per-content-kind chunker defaults with a
// fixed chunk size and overlap for every document.
func WithChunking(maxChars, overlap int) Option {
	return func(p *Pipeline) error {
		c := NewChunker(maxChars, overlap)
		p.chunker = &c
		return nil
	}
}

// WithProgress enables progress reporting to w every interval chunks.
func WithProgress(w io.Writer, interval int) Option {
	return func(p *Pipeline) error {
		p.progress = NewProgressTracker(w, interval)
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithSinkErrorCount registers a callback reporting the cumulative
// number of per-chunk sink write failures, sampled once at the end of
// the run for the summary.
func WithSinkErrorCount(fn func() int) Option {
	return func(p *Pipeline) error {
		p.sinkErrors = fn
		return nil
	}
}

// New creates an ingestion pipeline. Embedded batches flow through
// handler (the sink fan-out) before their chunk texts are handed to the
// page aggregator backed by writer.
func New(embedder ai.Embedder, handler BatchHandler, writer PageWriter, batcherOpts []BatcherOption, opts ...Option) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder required")
	}
	if handler == nil {
		return nil, fmt.Errorf("batch handler required")
	}
	if writer == nil {
		return nil, fmt.Errorf("page writer required")
	}

	p := &Pipeline{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "pipeline")

	pages, err := NewPageAggregator(writer, p.logger)
	if err != nil {
		return nil, err
	}
	p.pages = pages

	// Chunk texts reach the page aggregator only after the sinks saw
	// the batch, so a page flush never precedes its chunks' durable
	// writes.
	deliver := func(ctx context.Context, batch []core.EmbeddedChunk) error {
		if err := handler(ctx, batch); err != nil {
			return err
		}
		for _, chunk := range batch {
			if err := pages.Accept(chunk); err != nil {
				return err
			}
		}
		if p.progress != nil {
			p.progress.AddChunks(len(batch))
		}
		return nil
	}

	batcher, err := NewBatcher(embedder, deliver, batcherOpts...)
	if err != nil {
		return nil, err
	}
	p.batcher = batcher

	return p, nil
}

// Run pulls documents from src until exhaustion or cancellation, then
// finalizes: the partial final batch is flushed and any incomplete
// page accumulators are force-flushed as best-effort Markdown.
func (p *Pipeline) Run(ctx context.Context, src source.Source) (*Summary, error) {
	if src == nil {
		return nil, fmt.Errorf("source required")
	}

	summary := &Summary{RunID: uuid.NewString()}
	start := time.Now()
	logger := p.logger.With("run", summary.RunID)
	logger.Info("ingestion run starting")

	if p.progress != nil {
		p.progress.Start()
	}

	var runErr error
	for {
		doc, err := src.Next(ctx)
		if errors.Is(err, source.ErrExhausted) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				logger.Warn("run cancelled, finalizing sinks", "err", ctx.Err())
				runErr = ctx.Err()
				break
			}
			// Document-level source errors are contained: skip and go on.
			logger.Warn("skipping document", "err", err)
			summary.DocsSkipped++
			continue
		}

		if err := p.ingestDocument(ctx, doc, summary); err != nil {
			if ctx.Err() != nil {
				logger.Warn("run cancelled, finalizing sinks", "err", ctx.Err())
				runErr = ctx.Err()
				break
			}
			return summary, err
		}
	}

	p.finalize(ctx, summary, logger)

	// Sources that filter files before fetching (binary, oversized)
	// report those drops here so they land in the skipped count.
	if sr, ok := src.(source.SkipReporter); ok {
		summary.DocsSkipped += sr.SkippedDocs()
	}

	summary.Elapsed = time.Since(start)

	logger.Info("ingestion run finished",
		"docs", summary.DocsProcessed,
		"skipped", summary.DocsSkipped,
		"embedded", summary.ChunksEmbedded,
		"failed", summary.ChunksFailed,
		"pages", summary.PagesWritten)

	return summary, runErr
}

func (p *Pipeline) ingestDocument(ctx context.Context, doc *core.SourceDocument, summary *Summary) error {
	if err := core.ValidateDocument(doc); err != nil {
		p.logger.Warn("skipping invalid document", "err", err)
		summary.DocsSkipped++
		return nil
	}

	chunker := ChunkerFor(doc)
	if p.chunker != nil {
		chunker = *p.chunker
	}

	chunks := chunker.Split(doc)
	if len(chunks) == 0 {
		// Empty and whitespace-only documents are dropped from every
		// sink, not recorded as zero-chunk documents.
		p.logger.Debug("skipping empty document", "doc", doc.ID)
		summary.DocsSkipped++
		return nil
	}

	p.pages.Register(doc.ID, doc.Title, doc.Origin, len(chunks))

	for _, chunk := range chunks {
		if err := p.batcher.Add(ctx, chunk, doc.Origin); err != nil {
			return err
		}
	}

	summary.DocsProcessed++
	if p.progress != nil {
		p.progress.AddDocument()
	}
	return nil
}

// finalize flushes the partial final batch and force-flushes incomplete
// pages. It runs even after cancellation so every sink ends in a
// structurally valid state.
func (p *Pipeline) finalize(ctx context.Context, summary *Summary, logger *slog.Logger) {
	// Use a fresh context for finalization if the run's was cancelled:
	// the remaining work is local and must complete.
	flushCtx := ctx
	if ctx.Err() != nil {
		flushCtx = context.Background()
	}

	if err := p.batcher.Flush(flushCtx); err != nil {
		logger.Error("error flushing final batch", "err", err)
	}

	if err := p.pages.FlushIncomplete(); err != nil {
		logger.Error("error flushing incomplete pages", "err", err)
	}

	summary.ChunksEmbedded, summary.ChunksFailed, summary.ProtocolErrors = p.batcher.Stats()
	summary.PagesWritten, summary.PartialPages = p.pages.Stats()
	if p.sinkErrors != nil {
		summary.SinkErrors = p.sinkErrors()
	}

	if p.progress != nil {
		p.progress.Finish()
	}
}
