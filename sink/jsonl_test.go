package sink

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/quarrydocs/quarry/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChunk(docID string, index int, origin core.OriginKind) core.EmbeddedChunk {
	return core.EmbeddedChunk{
		Chunk:  core.Chunk{DocID: docID, Index: index, Text: "some chunk text", Start: 0, End: 15},
		Vector: []float32{0.1, 0.2, 0.3},
		Origin: origin,
	}
}

func TestJSONLStore_WritesOneRecordPerLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entries.jsonl")
	s, err := NewJSONLStore(path)
	require.NoError(t, err)

	require.NoError(t, s.WriteChunk(testChunk("doc-1", 0, core.OriginDocs)))
	require.NoError(t, s.WriteChunk(testChunk("doc-1", 1, core.OriginDocs)))
	require.NoError(t, s.WriteChunk(testChunk("doc-2", 0, core.OriginGit)))
	require.NoError(t, s.Sync())
	require.NoError(t, s.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var records []entryRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec entryRecord
		require.NoError(t, sonic.Unmarshal(scanner.Bytes(), &rec))
		records = append(records, rec)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, records, 3)
	assert.Equal(t, "doc-1", records[0].DocID)
	assert.Equal(t, 0, records[0].SequenceIndex)
	assert.Equal(t, "docs", records[0].OriginKind)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, records[0].Vector)
	assert.Equal(t, 1, records[1].SequenceIndex)
	assert.Equal(t, "git", records[2].OriginKind)
}

func TestJSONLStore_TruncatesOnReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entries.jsonl")

	s, err := NewJSONLStore(path)
	require.NoError(t, err)
	require.NoError(t, s.WriteChunk(testChunk("old", 0, core.OriginDocs)))
	require.NoError(t, s.Close())

	// A new run starts from an empty file rather than appending to the
	// previous run's entries.
	s, err = NewJSONLStore(path)
	require.NoError(t, err)
	require.NoError(t, s.WriteChunk(testChunk("new", 0, core.OriginDocs)))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "new")
	assert.NotContains(t, string(data), "old")
}

func TestJSONLStore_WriteAfterClose(t *testing.T) {
	s, err := NewJSONLStore(filepath.Join(t.TempDir(), "entries.jsonl"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.WriteChunk(testChunk("doc", 0, core.OriginDocs)), ErrStoreClosed)
	assert.ErrorIs(t, s.Sync(), ErrStoreClosed)
}
