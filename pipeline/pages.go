package pipeline

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/quarrydocs/quarry/core"
)

// Page is a fully (or, after a forced flush, partially) reconstructed
// source document ready for Markdown export. Texts holds chunk texts
// keyed by their position in Indexes, both sorted by sequence index.
type Page struct {
	DocID   string
	Title   string
	Origin  core.OriginKind
	Indexes []int
	Texts   []string
	Partial bool
}

// PageWriter flushes a completed page to durable storage. The markdown
// store is the production implementation.
type PageWriter interface {
	WritePage(page Page) error
}

// pageAccumulator tracks one document's chunks as they arrive,
// possibly out of batch order. It is destroyed once every expected
// chunk has been received and the page flushed.
type pageAccumulator struct {
	title    string
	origin   core.OriginKind
	expected int
	texts    map[int]string
}

// PageAggregator reconstructs per-document Markdown pages from the
// batch-interleaved stream of embedded chunks. At most as many
// accumulators are live as there are documents with chunks still
// inside the batching window.
type PageAggregator struct {
	writer PageWriter
	logger *slog.Logger
	pages  map[string]*pageAccumulator
	order  []string // registration order, for deterministic forced flushes

	written int
	partial int
}

// NewPageAggregator creates a page aggregator that flushes completed
// pages through writer.
func NewPageAggregator(writer PageWriter, logger *slog.Logger) (*PageAggregator, error) {
	if writer == nil {
		return nil, fmt.Errorf("page writer required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PageAggregator{
		writer: writer,
		logger: logger.With("component", "pages"),
		pages:  make(map[string]*pageAccumulator),
	}, nil
}

// Register announces a document and its expected chunk count. Chunking
// of one document completes eagerly before embedding, so the expected
// count is known at creation time.
func (a *PageAggregator) Register(docID, title string, origin core.OriginKind, expected int) {
	if _, exists := a.pages[docID]; exists {
		return
	}
	a.pages[docID] = &pageAccumulator{
		title:    title,
		origin:   origin,
		expected: expected,
		texts:    make(map[int]string, expected),
	}
	a.order = append(a.order, docID)
}

// Accept records an embedded chunk's text at its sequence index,
// regardless of arrival order. When the last expected chunk arrives the
// page is flushed and its accumulator evicted.
func (a *PageAggregator) Accept(chunk core.EmbeddedChunk) error {
	acc, ok := a.pages[chunk.DocID]
	if !ok {
		return fmt.Errorf("chunk for unregistered document %q", chunk.DocID)
	}

	acc.texts[chunk.Index] = chunk.Text
	if len(acc.texts) < acc.expected {
		return nil
	}
	return a.flush(chunk.DocID, acc, false)
}

// FlushIncomplete force-flushes every accumulator still live, in
// registration order, as best-effort partial pages. A document whose
// embedding permanently failed must still produce a Markdown file
// rather than be silently lost.
func (a *PageAggregator) FlushIncomplete() error {
	var firstErr error
	for _, docID := range a.order {
		acc, ok := a.pages[docID]
		if !ok {
			continue
		}
		a.logger.Warn("flushing incomplete page",
			"doc", docID, "received", len(acc.texts), "expected", acc.expected)
		if err := a.flush(docID, acc, true); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stats returns the number of pages written and, of those, how many
// were partial.
func (a *PageAggregator) Stats() (written, partial int) {
	return a.written, a.partial
}

// Live returns the number of accumulators currently resident. Exposed
// for the memory-bound property: this stays bounded by the batching
// window, never by corpus size.
func (a *PageAggregator) Live() int {
	return len(a.pages)
}

func (a *PageAggregator) flush(docID string, acc *pageAccumulator, forced bool) error {
	indexes := make([]int, 0, len(acc.texts))
	for idx := range acc.texts {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	texts := make([]string, len(indexes))
	for i, idx := range indexes {
		texts[i] = acc.texts[idx]
	}

	delete(a.pages, docID)

	err := a.writer.WritePage(Page{
		DocID:   docID,
		Title:   acc.title,
		Origin:  acc.origin,
		Indexes: indexes,
		Texts:   texts,
		Partial: forced && len(indexes) < acc.expected,
	})
	if err != nil {
		return fmt.Errorf("writing page for %q: %w", docID, err)
	}

	a.written++
	if forced && len(indexes) < acc.expected {
		a.partial++
	}
	return nil
}
