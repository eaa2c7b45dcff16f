package source

import (
	"context"
	"errors"

	"github.com/quarrydocs/quarry/core"
)

// ErrExhausted signals the end of a source's document stream.
var ErrExhausted = errors.New("source exhausted")

// Source is a lazy, restartable-per-run sequence of documents. The
// pipeline pulls documents one at a time and never assumes a total
// count upfront; Next returns ErrExhausted when the stream ends.
//
// Policy concerns (max pages, include/exclude filters, robots.txt) are
// applied inside the source, before documents reach the pipeline.
type Source interface {
	Next(ctx context.Context) (*core.SourceDocument, error)
}

// SkipReporter is implemented by sources that drop ineligible entries
// (binary, unclassifiable, oversized) before they reach the pipeline.
// The count feeds the run summary's skipped total, so filtered files
// are accounted for rather than silently vanishing.
type SkipReporter interface {
	SkippedDocs() int
}
