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


package sink

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"github.com/quarrydocs/quarry/core"
)

// sinkCount is the number of durable sinks driven per batch.
const sinkCount = 3

// BatchResult reports per-sink write failures for one batch. A non-zero
// count means some chunks of the batch are missing from that sink; the
// other sinks are unaffected.
type BatchResult struct {
	RawErrors    int
	JSONLErrors  int
	VectorErrors int
}

// Total returns the number of failed sink writes across all sinks.
func (r BatchResult) Total() int {
	return r.RawErrors + r.JSONLErrors + r.VectorErrors
}

// Fanout writes each embedded batch to the raw, JSONL, and vector
// stores. The three sinks run in parallel on a worker pool and are
// joined before the call returns, so batches remain strictly ordered
// per sink while the sinks themselves overlap.
//
// Sink write errors are contained: they are logged, counted, and never
// stop the run.
type Fanout struct {
	raw     *RawStore
	jsonl   *JSONLStore
	vectors VectorStore
	pool    *ants.Pool
	logger  *slog.Logger

	errorCount atomic.Int64
}

// FanoutOption configures a Fanout.
type FanoutOption func(*Fanout)

// WithFanoutLogger sets a custom logger.
// Default is slog.Default().
func WithFanoutLogger(logger *slog.Logger) FanoutOption {
	return func(f *Fanout) {
		if logger == nil {
			logger = slog.Default()
		}
		f.logger = logger
	}
}

// NewFanout creates a fan-out writer over the three stores.
func NewFanout(raw *RawStore, jsonl *JSONLStore, vectors VectorStore, opts ...FanoutOption) (*Fanout, error) {
	pool, err := ants.NewPool(sinkCount)
	if err != nil {
		return nil, err
	}

	f := &Fanout{
		raw:     raw,
		jsonl:   jsonl,
		vectors: vectors,
		pool:    pool,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With("component", "fanout")
	return f, nil
}

// WriteBatch dispatches the batch to every sink and waits for all three
// to finish.
func (f *Fanout) WriteBatch(ctx context.Context, batch []core.EmbeddedChunk) BatchResult {
	var result BatchResult
	var wg sync.WaitGroup

	run := func(task func()) {
		wg.Add(1)
		if err := f.pool.Submit(func() {
			defer wg.Done()
			task()
		}); err != nil {
			// Pool released: fall back to running inline.
			task()
			wg.Done()
		}
	}

	run(func() {
		for _, chunk := range batch {
			if err := f.raw.WriteChunk(chunk); err != nil {
				f.logger.Warn("raw write failed", "chunk", chunk.Key(), "err", err)
				result.RawErrors++
			}
		}
	})

	run(func() {
		for _, chunk := range batch {
			if err := f.jsonl.WriteChunk(chunk); err != nil {
				f.logger.Warn("jsonl write failed", "chunk", chunk.Key(), "err", err)
				result.JSONLErrors++
			}
		}
		if err := f.jsonl.Sync(); err != nil {
			f.logger.Warn("jsonl sync failed", "err", err)
		}
	})

	run(func() {
		for _, chunk := range batch {
			if err := f.vectors.UpsertChunk(ctx, chunk); err != nil {
				f.logger.Warn("vector upsert failed", "chunk", chunk.Key(), "err", err)
				result.VectorErrors++
			}
		}
	})

	wg.Wait()
	f.errorCount.Add(int64(result.Total()))
	return result
}

// HandleBatch adapts WriteBatch to the embedding batcher's handler
// signature. Sink failures are contained, so it always returns nil.
func (f *Fanout) HandleBatch(ctx context.Context, batch []core.EmbeddedChunk) error {
	f.WriteBatch(ctx, batch)
	return nil
}

// ErrorCount reports the cumulative number of failed sink writes across
// all batches so far.
func (f *Fanout) ErrorCount() int {
	return int(f.errorCount.Load())
}

// Close releases the worker pool and closes every sink. The first error
// is returned after all sinks have been attempted.
func (f *Fanout) Close() error {
	f.pool.Release()

	var firstErr error
	for _, c := range []interface{ Close() error }{f.raw, f.jsonl, f.vectors} {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
