package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quarrydocs/quarry/ai"
	"github.com/quarrydocs/quarry/core"
)

const (
	// DefaultBatchSize is the default number of chunks per embedding call.
	DefaultBatchSize = 16
	// DefaultMaxRetries is the default retry bound for a failed batch.
	DefaultMaxRetries = 3
	// DefaultRetryDelay is the default base delay for exponential backoff.
	DefaultRetryDelay = time.Second
)

// BatchHandler receives each embedded batch, in embedding-completion
// order, exactly once. The fan-out writer is the production handler.
type BatchHandler func(ctx context.Context, batch []core.EmbeddedChunk) error

// pendingChunk pairs a chunk with the origin of its document while it
// waits inside the batching window.
type pendingChunk struct {
	chunk  core.Chunk
	origin core.OriginKind
}

// Batcher accumulates chunks across documents into fixed-size batches
// and obtains vectors for each batch with one embedder call. Only one
// batch's worth of chunk text is resident at any time.
type Batcher struct {
	embedder   ai.Embedder
	deliver    BatchHandler
	capacity   int
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger

	pending []pendingChunk

	// dimension is established by the first successful batch; later
	// batches that drift are protocol errors.
	dimension int

	embedded int
	failed   int
	batches  int
	protocol int
}

// BatcherOption configures a Batcher.
type BatcherOption func(*Batcher)

// WithBatchSize sets the batch capacity. Values < 1 fall back to the default.
func WithBatchSize(n int) BatcherOption {
	return func(b *Batcher) {
		if n >= 1 {
			b.capacity = n
		}
	}
}

// WithRetries sets the retry bound and base backoff delay for
// embedding calls.
func WithRetries(maxRetries int, baseDelay time.Duration) BatcherOption {
	return func(b *Batcher) {
		if maxRetries > 0 {
			b.maxRetries = maxRetries
		}
		if baseDelay > 0 {
			b.retryDelay = baseDelay
		}
	}
}

// WithBatcherLogger sets a custom logger.
func WithBatcherLogger(logger *slog.Logger) BatcherOption {
	return func(b *Batcher) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBatcher creates an embedding batcher. deliver is invoked once per
// completed batch, synchronously, so handlers observe batches in
// embedding order.
func NewBatcher(embedder ai.Embedder, deliver BatchHandler, opts ...BatcherOption) (*Batcher, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder required")
	}
	if deliver == nil {
		return nil, fmt.Errorf("batch handler required")
	}

	b := &Batcher{
		embedder:   embedder,
		deliver:    deliver,
		capacity:   DefaultBatchSize,
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		logger:     slog.Default().With("component", "batcher"),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.pending = make([]pendingChunk, 0, b.capacity)
	return b, nil
}

// Add queues a chunk for embedding, dispatching the current batch if it
// has reached capacity. A batch that permanently fails does not stop
// the pipeline; its chunks are counted as failed and skipped from every
// sink.
func (b *Batcher) Add(ctx context.Context, chunk core.Chunk, origin core.OriginKind) error {
	b.pending = append(b.pending, pendingChunk{chunk: chunk, origin: origin})
	if !b.full() {
		return nil
	}
	return b.dispatch(ctx)
}

// Flush dispatches the final partial batch. Call once after the source
// sequence is exhausted.
func (b *Batcher) Flush(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}
	return b.dispatch(ctx)
}

// full is the explicit flush condition: the batch is dispatched as soon
// as it reaches capacity, never before, never split.
func (b *Batcher) full() bool {
	return len(b.pending) >= b.capacity
}

// Stats returns the number of chunks embedded, chunks in failed
// batches, and batches abandoned for protocol violations.
func (b *Batcher) Stats() (embedded, failed, protocolErrors int) {
	return b.embedded, b.failed, b.protocol
}

// dispatch embeds the pending batch and hands the result to the
// handler. The pending buffer is reset whether or not the batch
// succeeded: chunk text is never retained past its batch.
func (b *Batcher) dispatch(ctx context.Context) error {
	batch := b.pending
	b.pending = make([]pendingChunk, 0, b.capacity)
	b.batches++

	texts := make([]string, len(batch))
	for i, pc := range batch {
		texts[i] = pc.chunk.Text
	}

	var vectors [][]float32
	err := RetryWithBackoff(ctx, func() error {
		var embedErr error
		vectors, embedErr = b.embedder.EmbedTexts(ctx, texts)
		if embedErr != nil {
			return embedErr
		}
		return b.checkProtocol(batch, vectors)
	}, b.maxRetries, b.retryDelay)

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.failed += len(batch)
		if core.IsProtocolError(err) {
			b.protocol++
			b.logger.Error("batch abandoned: protocol violation",
				"batch", b.batches, "chunks", chunkKeys(batch), "err", err)
		} else {
			b.logger.Error("batch abandoned: embedding failed",
				"batch", b.batches, "size", len(batch), "err", err)
		}
		// Contained failure: the run continues with the next batch.
		return nil
	}

	if b.dimension == 0 && len(vectors) > 0 {
		b.dimension = len(vectors[0])
		b.logger.Debug("embedding dimension established", "dimension", b.dimension)
	}

	embedded := make([]core.EmbeddedChunk, len(batch))
	for i, pc := range batch {
		embedded[i] = core.EmbeddedChunk{
			Chunk:  pc.chunk,
			Vector: vectors[i],
			Origin: pc.origin,
		}
	}

	if err := b.deliver(ctx, embedded); err != nil {
		return fmt.Errorf("delivering batch %d: %w", b.batches, err)
	}

	b.embedded += len(batch)
	return nil
}

// checkProtocol validates the embedding response contract: one vector
// per requested chunk, all with the run's established dimensionality.
func (b *Batcher) checkProtocol(batch []pendingChunk, vectors [][]float32) error {
	if len(vectors) != len(batch) {
		return &core.ProtocolError{Want: len(batch), Got: len(vectors), What: "vector count"}
	}
	want := b.dimension
	if want == 0 && len(vectors) > 0 {
		want = len(vectors[0])
	}
	for _, v := range vectors {
		if len(v) != want {
			return &core.ProtocolError{Want: want, Got: len(v), What: "dimension"}
		}
	}
	return nil
}

func chunkKeys(batch []pendingChunk) []string {
	keys := make([]string, len(batch))
	for i, pc := range batch {
		keys[i] = pc.chunk.Key()
	}
	return keys
}
