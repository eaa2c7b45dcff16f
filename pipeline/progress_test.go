package pipeline

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker_ReportsAtInterval(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressTracker(&buf, 10)
	p.Start()

	p.AddChunks(5)
	assert.Empty(t, buf.String(), "below interval, no report yet")

	p.AddChunks(5)
	assert.Contains(t, buf.String(), "Processed 10 chunks")
}

func TestProgressTracker_Finish(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressTracker(&buf, 100)
	p.Start()

	p.AddDocument()
	p.AddChunks(7)
	p.Finish()

	assert.Contains(t, buf.String(), "Processed 7 chunks from 1 documents")
}

func TestProgressTracker_IgnoresUpdatesBeforeStart(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressTracker(&buf, 1)

	p.AddChunks(50)
	p.Finish()

	assert.Empty(t, buf.String())
	assert.Zero(t, p.Elapsed())
}
