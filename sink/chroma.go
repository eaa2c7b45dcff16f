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
	"fmt"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/quarrydocs/quarry/core"
)

// ChromaStore persists embedded chunks in a local chromem collection.
// Documents are keyed by chunk key, so ingesting the same corpus twice
// overwrites in place instead of duplicating.
type ChromaStore struct {
	db         *chromem.DB
	collection *chromem.Collection
}

var _ VectorStore = (*ChromaStore)(nil)

// NewChromaStore opens (or creates) a persistent store under dir with
// one collection named name.
func NewChromaStore(dir, name string) (*ChromaStore, error) {
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	// Vectors always arrive precomputed from the batcher, so the
	// collection's own embedding function must never run.
	reject := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("collection %q requires precomputed embeddings", name)
	}

	collection, err := db.GetOrCreateCollection(name, nil, reject)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", name, err)
	}

	return &ChromaStore{db: db, collection: collection}, nil
}

// UpsertChunk stores the chunk's text and vector under its key.
func (s *ChromaStore) UpsertChunk(ctx context.Context, chunk core.EmbeddedChunk) error {
	if s.collection == nil {
		return ErrNoCollection
	}

	doc := chromem.Document{
		ID: chunk.Key(),
		Metadata: map[string]string{
			"doc_id":         chunk.DocID,
			"sequence_index": strconv.Itoa(chunk.Index),
			"origin_kind":    string(chunk.Origin),
		},
		Embedding: chunk.Vector,
		Content:   chunk.Text,
	}
	if err := s.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("upsert chunk %s: %w", chunk.Key(), err)
	}
	return nil
}

// Count reports the number of stored chunks.
func (s *ChromaStore) Count() int {
	if s.collection == nil {
		return 0
	}
	return s.collection.Count()
}

// Close releases the store. The persistent backend writes through on
// every upsert, so there is nothing to flush.
func (s *ChromaStore) Close() error {
	s.collection = nil
	return nil
}

// NoopVectorStore discards every chunk. It substitutes for the chroma
// store when vector persistence is disabled.
type NoopVectorStore struct{}

var _ VectorStore = NoopVectorStore{}

func (NoopVectorStore) UpsertChunk(ctx context.Context, chunk core.EmbeddedChunk) error { return nil }
func (NoopVectorStore) Count() int                                                      { return 0 }
func (NoopVectorStore) Close() error                                                    { return nil }
