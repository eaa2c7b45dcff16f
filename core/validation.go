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


package core

import (
	"fmt"
	"strings"
)

// ValidateDocument validates a SourceDocument according to domain rules.
//
// Validation rules:
//   - ID must not be empty
//   - Origin must be a known kind
//
// NOT validated:
//   - Text (whitespace-only documents are legal; the pipeline skips
//     them rather than rejecting them)
//   - Title (falls back to the ID stem when empty)
func ValidateDocument(doc *SourceDocument) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}

	if doc.ID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyDocumentID)
	}

	if err := ValidateOrigin(doc.Origin); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	return nil
}

// ValidateOrigin validates that an OriginKind has a known value.
func ValidateOrigin(kind OriginKind) error {
	if kind != OriginDocs && kind != OriginGit {
		return fmt.Errorf("%w: %q", ErrInvalidOrigin, kind)
	}
	return nil
}

// ValidateChunk validates a Chunk according to domain rules.
//
// Validation rules:
//   - DocID must not be empty
//   - Index must not be negative
//   - Text must not be blank
//   - Start/End must describe a non-empty forward span
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if chunk.DocID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyDocumentID)
	}

	if chunk.Index < 0 {
		return fmt.Errorf("%w: negative index %d", ErrInvalidChunk, chunk.Index)
	}

	if strings.TrimSpace(chunk.Text) == "" {
		return fmt.Errorf("%w: blank text", ErrInvalidChunk)
	}

	if chunk.End <= chunk.Start {
		return fmt.Errorf("%w: span [%d,%d)", ErrInvalidChunk, chunk.Start, chunk.End)
	}

	return nil
}
