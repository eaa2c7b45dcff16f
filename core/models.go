package core

import (
	"encoding/hex"
	"fmt"

	"github.com/go-crypt/x/blake2b"
)

// OriginKind identifies the kind of source a document came from.
type OriginKind string

const (
	// OriginDocs marks documents produced by the docs-site crawler.
	OriginDocs OriginKind = "docs"
	// OriginGit marks documents produced by the GitHub fetcher.
	OriginGit OriginKind = "git"
)

// ContentKind classifies a document's content for chunk sizing.
type ContentKind string

const (
	// ContentDoc is prose documentation (markdown, html, plain text).
	ContentDoc ContentKind = "doc"
	// ContentCode is source code.
	ContentCode ContentKind = "code"
)

// SourceDocument is one fetched unit of content. It is produced once by
// a source collaborator, is immutable, and is consumed exactly once by
// the chunker.
type SourceDocument struct {
	ID      string      // stable identifier (URL or repo path), unique within a run
	Title   string      // human-readable label, used as markdown filename stem
	Text    string      // full extracted text, UTF-8
	Origin  OriginKind  // docs or git
	Content ContentKind // doc or code, drives chunk sizing
}

// Chunk is a bounded slice of a SourceDocument's text.
type Chunk struct {
	DocID string // back-reference to the owning document
	Index int    // 0-based position within the document's chunk ordering
	Text  string
	Start int // character offset of the chunk within the document text
	End   int
}

// Key returns the composite identifier used to key a chunk in the
// vector store. Re-upserting the same key overwrites rather than
// duplicates.
func (c *Chunk) Key() string {
	return fmt.Sprintf("%s#%d", c.DocID, c.Index)
}

// EmbeddedChunk is a Chunk plus its embedding vector. It is created by
// the batcher once its enclosing batch returns and handed straight to
// the sink fan-out writer.
type EmbeddedChunk struct {
	Chunk
	Vector []float32
	Origin OriginKind
}

// FingerprintText returns a short stable hex fingerprint of text
// content using BLAKE2b. Identical content always produces the same
// fingerprint, which keeps cache keys deterministic across runs.
func FingerprintText(text string) string {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)
}
