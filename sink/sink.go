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


// Package sink holds the durable output stores an ingestion run writes
// to: the per-document raw text dump, the JSONL entries file, the
// persistent vector store, and the per-page markdown renderer, plus the
// fan-out writer that drives the first three in parallel per batch.
package sink

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/quarrydocs/quarry/core"
)

var (
	// ErrStoreClosed indicates a write was attempted after Close.
	ErrStoreClosed = errors.New("store is closed")

	// ErrNoCollection indicates the vector store has no open collection.
	ErrNoCollection = errors.New("no open collection")
)

// VectorStore persists embedded chunks keyed by chunk key. Re-upserting
// an existing key overwrites, so re-running ingestion over the same
// corpus leaves the collection size stable.
type VectorStore interface {
	// UpsertChunk inserts or overwrites the chunk under its Key().
	UpsertChunk(ctx context.Context, chunk core.EmbeddedChunk) error

	// Count reports the number of stored chunks.
	Count() int

	// Close releases the underlying store.
	Close() error
}

// Layout is the fixed on-disk output structure of a run.
type Layout struct {
	Root        string
	RawDir      string // output/raw
	Processed   string // output/processed
	JSONLPath   string // output/processed/entries.jsonl
	ChromaDir   string // output/chroma
	MarkdownDir string // output/md
}

// EnsureLayout creates the output directory tree under root and returns
// the resolved layout. It is called once before any sink opens, so a
// configuration error surfaces before anything is written.
func EnsureLayout(root string) (Layout, error) {
	l := Layout{
		Root:        root,
		RawDir:      filepath.Join(root, "raw"),
		Processed:   filepath.Join(root, "processed"),
		JSONLPath:   filepath.Join(root, "processed", "entries.jsonl"),
		ChromaDir:   filepath.Join(root, "chroma"),
		MarkdownDir: filepath.Join(root, "md"),
	}
	for _, dir := range []string{l.RawDir, l.Processed, l.ChromaDir, l.MarkdownDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Layout{}, err
		}
	}
	return l, nil
}
