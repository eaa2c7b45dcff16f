package sink

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/quarrydocs/quarry/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawStore_AppendsPerDocument(t *testing.T) {
	dir := t.TempDir()
	s := NewRawStore(dir)

	write := func(docID, text string, index int) {
		chunk := core.EmbeddedChunk{
			Chunk:  core.Chunk{DocID: docID, Index: index, Text: text, End: len(text)},
			Origin: core.OriginDocs,
		}
		require.NoError(t, s.WriteChunk(chunk))
	}

	write("https://example.com/a", "alpha", 0)
	write("https://example.com/b", "bravo", 0)
	write("https://example.com/a", "charlie", 1)
	require.NoError(t, s.Close())

	a, err := os.ReadFile(filepath.Join(dir, "https_example.com_a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "alpha\n\ncharlie\n\n", string(a))

	b, err := os.ReadFile(filepath.Join(dir, "https_example.com_b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "bravo\n\n", string(b))
}

func TestRawStore_WriteAfterClose(t *testing.T) {
	s := NewRawStore(t.TempDir())
	require.NoError(t, s.Close())

	chunk := core.EmbeddedChunk{Chunk: core.Chunk{DocID: "doc", Text: "x", End: 1}}
	assert.ErrorIs(t, s.WriteChunk(chunk), ErrStoreClosed)
	assert.NoError(t, s.Close(), "double close is a noop")
}
