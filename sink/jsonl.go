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
	"fmt"
	"os"

	"github.com/bytedance/sonic"
	"github.com/quarrydocs/quarry/core"
)

// entryRecord is the wire form of one JSONL line.
type entryRecord struct {
	DocID         string    `json:"doc_id"`
	SequenceIndex int       `json:"sequence_index"`
	Text          string    `json:"text"`
	Vector        []float32 `json:"vector"`
	OriginKind    string    `json:"origin_kind"`
}

// JSONLStore writes one JSON record per embedded chunk to a single
// entries file. Each line is assembled in memory, newline included, and
// written with a single Write call, so an interrupted run leaves at
// worst a missing line and never a torn one.
type JSONLStore struct {
	f      *os.File
	closed bool
}

// NewJSONLStore opens (truncating) the entries file at path.
func NewJSONLStore(path string) (*JSONLStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open jsonl store: %w", err)
	}
	return &JSONLStore{f: f}, nil
}

// WriteChunk encodes and appends one record.
func (s *JSONLStore) WriteChunk(chunk core.EmbeddedChunk) error {
	if s.closed {
		return ErrStoreClosed
	}

	record := entryRecord{
		DocID:         chunk.DocID,
		SequenceIndex: chunk.Index,
		Text:          chunk.Text,
		Vector:        chunk.Vector,
		OriginKind:    string(chunk.Origin),
	}
	line, err := sonic.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode jsonl record %s: %w", chunk.Key(), err)
	}
	line = append(line, '\n')

	if _, err := s.f.Write(line); err != nil {
		return fmt.Errorf("write jsonl record %s: %w", chunk.Key(), err)
	}
	return nil
}

// Sync flushes written records to stable storage. Called once per batch
// by the fan-out writer.
func (s *JSONLStore) Sync() error {
	if s.closed {
		return ErrStoreClosed
	}
	return s.f.Sync()
}

// Close closes the entries file.
func (s *JSONLStore) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.f.Close()
}
