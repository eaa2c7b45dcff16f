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
	"path/filepath"

	"github.com/quarrydocs/quarry/core"
)

// RawStore appends chunk text to one plain-text file per document under
// the raw output directory. Files are opened lazily on the first chunk
// of each document, so a run over many documents holds open only the
// files it has actually touched.
type RawStore struct {
	dir    string
	files  map[string]*os.File // doc ID -> open append handle
	closed bool
}

// NewRawStore creates a raw store writing into dir. The directory must
// already exist (EnsureLayout creates it).
func NewRawStore(dir string) *RawStore {
	return &RawStore{
		dir:   dir,
		files: make(map[string]*os.File),
	}
}

// WriteChunk appends the chunk's text to its document's file, separated
// by a blank line from the previous chunk.
func (s *RawStore) WriteChunk(chunk core.EmbeddedChunk) error {
	if s.closed {
		return ErrStoreClosed
	}

	f, ok := s.files[chunk.DocID]
	if !ok {
		path := filepath.Join(s.dir, SafeFileName(chunk.DocID)+".txt")
		var err error
		f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return fmt.Errorf("open raw file for %s: %w", chunk.DocID, err)
		}
		s.files[chunk.DocID] = f
	}

	if _, err := f.WriteString(chunk.Text + "\n\n"); err != nil {
		return fmt.Errorf("write raw chunk %s: %w", chunk.Key(), err)
	}
	return nil
}

// Close closes every open document file. The first error encountered is
// returned after all files have been attempted.
func (s *RawStore) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	for _, f := range s.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.files = nil
	return firstErr
}
