package processor_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xhad/pai/internal/models"
	"github.com/xhad/pai/pkg/processor"
)

func newProcessor(size, overlap int) *processor.Processor {
	return processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    size,
		ChunkOverlap: overlap,
	}, zap.NewNop())
}

func TestProcessor_Process(t *testing.T) {
	p := newProcessor(50, 10)

	documents := []models.Document{
		{URL: "https://example.com", Content: "This is a   test document.\n\n It contains several sentences to demonstrate text processing."},
	}

	processedDocs, err := p.Process(documents)

	assert.NoError(t, err)
	require.Len(t, processedDocs, 1)
	assert.Contains(t, processedDocs[0].Content, "This is a test document. It contains")
	assert.Greater(t, len(processedDocs[0].Chunks), 1)
	assert.Contains(t, processedDocs[0].Chunks[0], "test document")
}

func TestChunk_ShortAndBlank(t *testing.T) {
	p := newProcessor(1000, 200)

	assert.Equal(t, []string{"short text"}, p.Chunk("short text"))
	assert.Nil(t, p.Chunk(""))
	assert.Nil(t, p.Chunk("   \n\t "))
}

func TestChunk_FixedWindowsWithOverlap(t *testing.T) {
	p := newProcessor(1000, 200)
	text := strings.Repeat("x", 2500)

	chunks := p.Chunk(text)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 1000)
	assert.Len(t, chunks[1], 1000)
	assert.Len(t, chunks[2], 900)
}

func TestChunk_BreaksAtSentenceEnd(t *testing.T) {
	p := newProcessor(1000, 200)
	text := strings.Repeat("a", 950) + "." + strings.Repeat("b", 1000)

	chunks := p.Chunk(text)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 951)
	assert.True(t, strings.HasSuffix(chunks[0], "."))
	// the second window starts overlap characters before the sentence break
	assert.Equal(t, strings.Repeat("a", 199)+"."+strings.Repeat("b", 800), chunks[1])
	assert.Equal(t, strings.Repeat("b", 400), chunks[2])
}

func TestChunk_IgnoresEarlyDots(t *testing.T) {
	p := newProcessor(1000, 200)
	// the only dot is outside the final 100 characters of the first window
	text := strings.Repeat("a", 500) + "." + strings.Repeat("b", 1500)

	chunks := p.Chunk(text)

	require.NotEmpty(t, chunks)
	assert.Len(t, chunks[0], 1000)
}

func TestChunk_OverlapLargerThanWindowTerminates(t *testing.T) {
	p := newProcessor(100, 150)

	chunks := p.Chunk(strings.Repeat("y", 300))

	assert.Len(t, chunks, 3)
}

func TestChunk_CountsRunes(t *testing.T) {
	p := newProcessor(1000, 0)

	chunks := p.Chunk(strings.Repeat("é", 1500))

	require.Len(t, chunks, 2)
	assert.Equal(t, 1000, utf8.RuneCountInString(chunks[0]))
	assert.Equal(t, 500, utf8.RuneCountInString(chunks[1]))
}

func TestChunk_RecursiveStrategy(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    100,
		ChunkOverlap: 20,
		Strategy:     processor.StrategyRecursive,
	}, zap.NewNop())

	text := strings.Repeat("lorem ipsum dolor sit amet ", 30)
	chunks := p.Chunk(text)

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.NotEmpty(t, strings.TrimSpace(c))
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 100)
	}
}
