package pipeline

import (
	"strings"

	"github.com/quarrydocs/quarry/core"
)

const (
	// DefaultDocChunkChars is the target chunk size for prose documents.
	DefaultDocChunkChars = 1200
	// DefaultDocChunkOverlap is the overlap window for prose documents.
	DefaultDocChunkOverlap = 150
	// DefaultCodeChunkChars is the target chunk size for source code.
	DefaultCodeChunkChars = 800
	// DefaultCodeChunkOverlap is the overlap window for source code.
	DefaultCodeChunkOverlap = 100
)

// Chunker splits document text into bounded, overlapping chunks.
// It is pure and fully deterministic: identical input and configuration
// always produce identical chunks, which is what makes re-runs
// idempotent downstream.
type Chunker struct {
	// MaxChars is the target maximum chunk length in runes.
	MaxChars int
	// Overlap is the number of trailing runes each chunk repeats from
	// its predecessor.
	Overlap int
}

// NewChunker creates a chunker, clamping nonsensical configuration:
// MaxChars must be positive and Overlap must leave room for forward
// progress.
func NewChunker(maxChars, overlap int) Chunker {
	if maxChars <= 0 {
		maxChars = DefaultDocChunkChars
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxChars {
		overlap = maxChars / 2
	}
	return Chunker{MaxChars: maxChars, Overlap: overlap}
}

// ChunkerFor returns a chunker sized for the document's content kind.
func ChunkerFor(doc *core.SourceDocument) Chunker {
	if doc.Content == core.ContentCode {
		return NewChunker(DefaultCodeChunkChars, DefaultCodeChunkOverlap)
	}
	return NewChunker(DefaultDocChunkChars, DefaultDocChunkOverlap)
}

// Split chunks a document's text. Whitespace-only documents yield nil;
// the pipeline drops them from every sink rather than recording
// zero-chunk documents. Chunk indexes are contiguous from 0 and spans
// reference rune offsets into the trimmed document text.
func (c Chunker) Split(doc *core.SourceDocument) []core.Chunk {
	text := strings.TrimSpace(doc.Text)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	n := len(runes)

	var chunks []core.Chunk
	start := 0
	for start < n {
		end := start + c.MaxChars
		if end >= n {
			end = n
		} else {
			end = snapToBoundary(runes, start, end)
		}

		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			chunks = append(chunks, core.Chunk{
				DocID: doc.ID,
				Index: len(chunks),
				Text:  piece,
				Start: start,
				End:   end,
			})
		}

		if end == n {
			break
		}

		// Step forward but keep the overlap window. Guard against a
		// snapped boundary short enough to stall the walk.
		next := end - c.Overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// snapToBoundary pulls a hard cut at end back to the nearest paragraph
// or sentence boundary inside the trailing part of the window. If no
// boundary exists there, the hard cut stands.
func snapToBoundary(runes []rune, start, end int) int {
	// Only look back over the last quarter of the window; snapping
	// further would shrink chunks well below the target size.
	floor := end - (end-start)/4
	if floor <= start {
		return end
	}

	window := string(runes[floor:end])

	if i := strings.LastIndex(window, "\n\n"); i >= 0 {
		return floor + len([]rune(window[:i])) + 2
	}

	best := -1
	for _, sep := range []string{". ", "! ", "? ", "\n"} {
		if i := strings.LastIndex(window, sep); i >= 0 {
			cut := floor + len([]rune(window[:i])) + len([]rune(sep))
			if cut > best {
				best = cut
			}
		}
	}
	if best > start {
		return best
	}
	return end
}
