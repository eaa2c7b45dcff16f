package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/quarrydocs/quarry/ai/mock"
	"github.com/quarrydocs/quarry/core"
	"github.com/quarrydocs/quarry/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceSource yields a fixed set of documents, optionally interleaved
// with document-level errors.
type sliceSource struct {
	docs []*core.SourceDocument
	errs map[int]error // error returned instead of the doc at index
	pos  int
}

func (s *sliceSource) Next(ctx context.Context) (*core.SourceDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.docs) {
		return nil, source.ErrExhausted
	}
	i := s.pos
	s.pos++
	if err, ok := s.errs[i]; ok {
		return nil, err
	}
	return s.docs[i], nil
}

// collectingHandler records everything delivered to the sinks.
type collectingHandler struct {
	chunks []core.EmbeddedChunk
	err    error
}

func (h *collectingHandler) handle(ctx context.Context, batch []core.EmbeddedChunk) error {
	if h.err != nil {
		return h.err
	}
	h.chunks = append(h.chunks, batch...)
	return nil
}

func docsDoc(id, title, text string) *core.SourceDocument {
	return &core.SourceDocument{ID: id, Title: title, Text: text, Origin: core.OriginDocs}
}

func newTestPipeline(t *testing.T, handler BatchHandler, writer PageWriter, batchSize int) *Pipeline {
	t.Helper()
	p, err := New(mock.NewMockEmbedder(), handler, writer,
		[]BatcherOption{WithBatchSize(batchSize), WithRetries(2, time.Millisecond)},
		WithChunking(50, 5),
	)
	require.NoError(t, err)
	return p
}

func TestPipeline_EndToEnd(t *testing.T) {
	handler := &collectingHandler{}
	writer := &recordingWriter{}

	text1 := strings.Repeat("alpha beta gamma delta. ", 10) // several chunks at max 50
	text2 := strings.Repeat("one two three four five. ", 10)

	src := &sliceSource{docs: []*core.SourceDocument{
		docsDoc("doc-1", "First", text1),
		docsDoc("doc-2", "Second", text2),
	}}

	p := newTestPipeline(t, handler.handle, writer, 4)
	summary, err := p.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.DocsProcessed)
	assert.Zero(t, summary.DocsSkipped)
	assert.Equal(t, len(handler.chunks), summary.ChunksEmbedded)
	assert.NotEmpty(t, summary.RunID)

	// Every document's chunk indexes are exactly {0..n-1}.
	byDoc := map[string][]int{}
	for _, c := range handler.chunks {
		byDoc[c.DocID] = append(byDoc[c.DocID], c.Index)
	}
	require.Len(t, byDoc, 2)
	for docID, indexes := range byDoc {
		seen := make(map[int]bool, len(indexes))
		max := -1
		for _, idx := range indexes {
			assert.False(t, seen[idx], "duplicate index %d for %s", idx, docID)
			seen[idx] = true
			if idx > max {
				max = idx
			}
		}
		assert.Len(t, indexes, max+1, "gap in indexes for %s", docID)
	}

	// Both pages flushed complete.
	require.Len(t, writer.pages, 2)
	for _, page := range writer.pages {
		assert.False(t, page.Partial)
	}
	assert.Equal(t, 2, summary.PagesWritten)
	assert.Zero(t, summary.PartialPages)
}

func TestPipeline_SkipsEmptyDocuments(t *testing.T) {
	handler := &collectingHandler{}
	writer := &recordingWriter{}

	src := &sliceSource{docs: []*core.SourceDocument{
		docsDoc("doc-1", "Real", "actual content that will be chunked"),
		docsDoc("doc-2", "Empty", "   \n\t "),
		docsDoc("doc-3", "Blank", ""),
	}}

	p := newTestPipeline(t, handler.handle, writer, 4)
	summary, err := p.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.DocsProcessed)
	assert.Equal(t, 2, summary.DocsSkipped)
	require.Len(t, writer.pages, 1)
	assert.Equal(t, "doc-1", writer.pages[0].DocID)
}

func TestPipeline_SourceErrorSkipsDocument(t *testing.T) {
	handler := &collectingHandler{}
	writer := &recordingWriter{}

	src := &sliceSource{
		docs: []*core.SourceDocument{
			docsDoc("doc-1", "One", "first document body"),
			nil, // replaced by error
			docsDoc("doc-3", "Three", "third document body"),
		},
		errs: map[int]error{1: errors.New("binary content")},
	}

	p := newTestPipeline(t, handler.handle, writer, 4)
	summary, err := p.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.DocsProcessed)
	assert.Equal(t, 1, summary.DocsSkipped)
}

// filteringSource mimics a source that dropped ineligible files
// (binary, oversized) before yielding any documents.
type filteringSource struct {
	inner    *sliceSource
	filtered int
}

func (s *filteringSource) Next(ctx context.Context) (*core.SourceDocument, error) {
	return s.inner.Next(ctx)
}

func (s *filteringSource) SkippedDocs() int {
	return s.filtered
}

func TestPipeline_SourceFilteredFilesCountAsSkipped(t *testing.T) {
	handler := &collectingHandler{}
	writer := &recordingWriter{}

	src := &filteringSource{
		inner: &sliceSource{docs: []*core.SourceDocument{
			docsDoc("doc-1", "One", "first document body"),
			docsDoc("doc-2", "Two", "second document body"),
		}},
		filtered: 3,
	}

	p := newTestPipeline(t, handler.handle, writer, 4)
	summary, err := p.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.DocsProcessed)
	assert.Equal(t, 3, summary.DocsSkipped)
}

func TestPipeline_FailedBatchYieldsPartialPage(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	call := 0
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		call++
		if call > 1 {
			return nil, errors.New("model server down")
		}
		vectors := make([][]float32, len(texts))
		for i := range vectors {
			vectors[i] = []float32{1, 2}
		}
		return vectors, nil
	}

	handler := &collectingHandler{}
	writer := &recordingWriter{}

	// One document long enough for 2+ batches of 4 at max 50 chars.
	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 12)
	src := &sliceSource{docs: []*core.SourceDocument{docsDoc("doc-1", "Long", text)}}

	p, err := New(embedder, handler.handle, writer,
		[]BatcherOption{WithBatchSize(4), WithRetries(2, time.Millisecond)},
		WithChunking(50, 5),
	)
	require.NoError(t, err)

	summary, err := p.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.ChunksEmbedded)
	assert.Positive(t, summary.ChunksFailed)

	// The failed chunks never arrive, but finalization still writes a
	// best-effort partial page.
	require.Len(t, writer.pages, 1)
	assert.True(t, writer.pages[0].Partial)
	assert.Equal(t, 1, summary.PartialPages)
}

func TestPipeline_FinalPartialBatchFlushed(t *testing.T) {
	handler := &collectingHandler{}
	writer := &recordingWriter{}

	// 3 chunks with batch size 16: nothing dispatches until Flush.
	src := &sliceSource{docs: []*core.SourceDocument{
		docsDoc("doc-1", "Small", strings.Repeat("tiny words here. ", 8)),
	}}

	p := newTestPipeline(t, handler.handle, writer, 16)
	summary, err := p.Run(context.Background(), src)
	require.NoError(t, err)

	assert.NotEmpty(t, handler.chunks)
	assert.Equal(t, len(handler.chunks), summary.ChunksEmbedded)
	require.Len(t, writer.pages, 1)
	assert.False(t, writer.pages[0].Partial)
}

func TestPipeline_CancellationFinalizesSinks(t *testing.T) {
	handler := &collectingHandler{}
	writer := &recordingWriter{}

	docs := make([]*core.SourceDocument, 50)
	for i := range docs {
		docs[i] = docsDoc(fmt.Sprintf("doc-%d", i), fmt.Sprintf("Doc %d", i),
			strings.Repeat("words and more words. ", 6))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancelling := &cancellingSource{inner: &sliceSource{docs: docs}, cancel: cancel, after: 10}

	p := newTestPipeline(t, handler.handle, writer, 8)
	summary, err := p.Run(ctx, cancelling)

	assert.ErrorIs(t, err, context.Canceled)
	// Whatever was registered before cancellation is flushed, complete
	// or partial, rather than discarded.
	assert.Equal(t, summary.PagesWritten, len(writer.pages))
	assert.Positive(t, summary.PagesWritten)
}

// cancellingSource cancels the run context after a fixed number of
// documents have been pulled.
type cancellingSource struct {
	inner  *sliceSource
	cancel context.CancelFunc
	after  int
	pulled int
}

func (s *cancellingSource) Next(ctx context.Context) (*core.SourceDocument, error) {
	s.pulled++
	if s.pulled > s.after {
		s.cancel()
	}
	return s.inner.Next(ctx)
}

func TestPipeline_MemoryBound(t *testing.T) {
	// A corpus far larger than one batch: live page accumulators must
	// stay bounded by the batching window, not grow with corpus size.
	handler := &collectingHandler{}
	writer := &recordingWriter{}

	embedder := mock.NewMockEmbedder()
	p, err := New(embedder, handler.handle, writer,
		[]BatcherOption{WithBatchSize(4), WithRetries(2, time.Millisecond)},
		WithChunking(50, 5),
	)
	require.NoError(t, err)

	maxLive := 0
	docs := make([]*core.SourceDocument, 500)
	for i := range docs {
		docs[i] = docsDoc(fmt.Sprintf("doc-%d", i), fmt.Sprintf("Doc %d", i), "one short chunk only")
	}
	src := &observingSource{inner: &sliceSource{docs: docs}, observe: func() {
		if live := p.pages.Live(); live > maxLive {
			maxLive = live
		}
	}}

	summary, err := p.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 500, summary.DocsProcessed)
	// Single-chunk docs with batch size 4: at most a batch's worth of
	// accumulators outstanding at any pull.
	assert.LessOrEqual(t, maxLive, 4)
}

type observingSource struct {
	inner   *sliceSource
	observe func()
}

func (s *observingSource) Next(ctx context.Context) (*core.SourceDocument, error) {
	s.observe()
	return s.inner.Next(ctx)
}

func TestNew_Validation(t *testing.T) {
	handler := func(ctx context.Context, batch []core.EmbeddedChunk) error { return nil }
	writer := &recordingWriter{}

	_, err := New(nil, handler, writer, nil)
	assert.Error(t, err)

	_, err = New(mock.NewMockEmbedder(), nil, writer, nil)
	assert.Error(t, err)

	_, err = New(mock.NewMockEmbedder(), handler, nil, nil)
	assert.Error(t, err)
}
