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
	"errors"
	"fmt"
)

// Domain errors
var (
	// ErrInvalidDocument indicates a SourceDocument failed validation.
	ErrInvalidDocument = errors.New("invalid source document")

	// ErrEmptyDocumentID indicates the ID field is empty.
	ErrEmptyDocumentID = errors.New("document id cannot be empty")

	// ErrInvalidOrigin indicates an unknown OriginKind value.
	ErrInvalidOrigin = errors.New("invalid origin kind")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrEmbedTransient marks an embedding failure that may succeed on
	// retry (network error, timeout). Embedder implementations wrap
	// retryable failures with this sentinel; the batcher retries these
	// with backoff and abandons the batch on any other error.
	ErrEmbedTransient = errors.New("transient embedding failure")
)

// ProtocolError reports an embedding response that violates the
// request/response contract: a different vector count than requested,
// or a vector dimensionality that drifted from the run's established
// dimension. The batch is abandoned; the run continues.
type ProtocolError struct {
	Want int
	Got  int
	What string // "vector count" or "dimension"
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("embedding protocol violation: %s mismatch, expected %d, got %d", e.What, e.Want, e.Got)
}

// IsProtocolError reports whether err is (or wraps) a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
