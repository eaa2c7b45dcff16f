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
	"strings"

	"github.com/quarrydocs/quarry/pipeline"
)

// DefaultChunkDelimiter separates chunk sections in rendered pages.
const DefaultChunkDelimiter = "\n\n"

// MarkdownStore renders one markdown file per completed page. Filenames
// derive from sanitized titles; when two pages sanitize to the same
// stem, later ones get -2, -3 suffixes in first-seen order, so a rerun
// over the same corpus produces the same filenames.
type MarkdownStore struct {
	dir       string
	delimiter string
	seen      map[string]int // sanitized stem -> pages written with it
}

var _ pipeline.PageWriter = (*MarkdownStore)(nil)

// MarkdownOption configures a MarkdownStore.
type MarkdownOption func(*MarkdownStore)

// WithChunkDelimiter overrides the separator written between chunk
// sections.
func WithChunkDelimiter(delimiter string) MarkdownOption {
	return func(s *MarkdownStore) {
		s.delimiter = delimiter
	}
}

// NewMarkdownStore creates a markdown store writing into dir.
func NewMarkdownStore(dir string, opts ...MarkdownOption) *MarkdownStore {
	s := &MarkdownStore{
		dir:       dir,
		delimiter: DefaultChunkDelimiter,
		seen:      make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WritePage renders the page to disk.
func (s *MarkdownStore) WritePage(page pipeline.Page) error {
	stem := SanitizeTitle(page.Title)
	n := s.seen[stem] + 1
	s.seen[stem] = n

	name := stem
	if n > 1 {
		name = fmt.Sprintf("%s-%d", stem, n)
	}

	path := filepath.Join(s.dir, name+".md")
	if err := os.WriteFile(path, []byte(s.render(page)), 0o644); err != nil {
		return fmt.Errorf("write page %s: %w", page.DocID, err)
	}
	return nil
}

func (s *MarkdownStore) render(page pipeline.Page) string {
	var b strings.Builder

	b.WriteString("---\n")
	fmt.Fprintf(&b, "source: %s\n", page.DocID)
	fmt.Fprintf(&b, "title: %s\n", page.Title)
	fmt.Fprintf(&b, "origin: %s\n", page.Origin)
	if page.Partial {
		b.WriteString("partial: true\n")
	}
	b.WriteString("---\n\n")

	fmt.Fprintf(&b, "# Source: %s\n", page.DocID)

	for i, text := range page.Texts {
		b.WriteString(s.delimiter)
		// Section numbers come from the chunk indexes, so a partial
		// page shows which chunks are missing.
		fmt.Fprintf(&b, "## Chunk %d\n\n%s", page.Indexes[i]+1, text)
	}
	b.WriteString("\n")

	return b.String()
}
