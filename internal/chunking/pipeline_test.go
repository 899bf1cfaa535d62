package chunking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBlocks_ClassifiesHeadingsTablesAndCode(t *testing.T) {
	text := "# Title\n\nSome paragraph text.\n\n| a | b |\n|---|---|\n| 1 | 2 |\n\n```go\nfunc f() {}\n```\n"

	blocks := ParseBlocks(text)

	var kinds []BlockKind
	for _, b := range blocks {
		if b.Kind == BlockEmpty {
			continue
		}
		kinds = append(kinds, b.Kind)
	}
	assert.Equal(t, []BlockKind{BlockHeading, BlockParagraph, BlockTable, BlockCode}, kinds)
}

func TestDetectHeading_BoldHeuristic(t *testing.T) {
	level, ok := detectHeading("**INTRODUCTION**")
	require.True(t, ok)
	assert.Equal(t, 1, level)

	level, ok = detectHeading("**I. Background**")
	require.True(t, ok)
	assert.Equal(t, 2, level)

	_, ok = detectHeading("**a | b**")
	assert.False(t, ok, "pipe-containing bold text must never be treated as a heading")

	_, ok = detectHeading("**12**")
	assert.False(t, ok, "purely numeric bold text must never be treated as a heading")
}

func TestSectionStack_ClearsDeeperSlotsOnPush(t *testing.T) {
	s := NewSectionStack()
	s.Push(1, "Chapter 1")
	s.Push(2, "Section A")
	assert.Equal(t, "Chapter 1 > Section A", s.Path())

	s.Push(1, "Chapter 2")
	assert.Equal(t, "Chapter 2", s.Path(), "pushing a shallower heading must clear deeper slots")
}

func TestSplitOversized_PrefersSentenceBoundary(t *testing.T) {
	text := "First sentence ends here. " + repeat("word ", 100) + "Second sentence ends here."
	segments := SplitOversized(text, 60, 0)

	require.True(t, len(segments) > 1)
	assert.True(t, len(segments[0].Text) <= 60+1)
}

func TestSplitOversized_UnderLimitReturnsSingleSegment(t *testing.T) {
	segments := SplitOversized("short text", 2000, 100)
	require.Len(t, segments, 1)
	assert.Equal(t, "short text", segments[0].Text)
}

func TestMergeTinyChunks_MergesShortFollowerIntoPredecessor(t *testing.T) {
	drafts := []ChunkDraft{
		{Text: repeat("x", 500), Start: 0, End: 500},
		{Text: "tiny", Start: 500, End: 504},
	}
	merged := MergeTinyChunks(drafts, 200)
	require.Len(t, merged, 1)
	assert.Contains(t, merged[0].Text, "tiny")
}

func TestMergeTinyChunks_NeverMergesAtomicChunks(t *testing.T) {
	drafts := []ChunkDraft{
		{Text: repeat("x", 500), Start: 0, End: 500},
		{Text: "| a |", Start: 500, End: 505, Atomic: true},
	}
	merged := MergeTinyChunks(drafts, 200)
	require.Len(t, merged, 2)
	assert.True(t, merged[1].Atomic)
}

func TestChunk_AtomicTableNeverSplitAndCarriesNoOverlap(t *testing.T) {
	text := "# Report\n\nIntro paragraph.\n\n| Name | Value |\n|---|---|\n| a | 1 |\n\nClosing paragraph.\n"

	chunks, provs, err := Chunk(Input{
		DocumentID: "doc-1",
		RootDocID:  "doc-1",
		Text:       text,
	}, Options{})

	require.NoError(t, err)
	require.Equal(t, len(chunks), len(provs))

	var foundTable bool
	for _, c := range chunks {
		if c.IsAtomic {
			foundTable = true
			assert.Equal(t, 0, c.OverlapPrevious)
			assert.Equal(t, 0, c.OverlapNext)
			assert.NotNil(t, c.TableMetadata)
		}
	}
	assert.True(t, foundTable)
}

func TestChunk_DenseZeroBasedIndices(t *testing.T) {
	text := "Paragraph one.\n\nParagraph two.\n\nParagraph three.\n"
	chunks, _, err := Chunk(Input{DocumentID: "doc-1", RootDocID: "doc-1", Text: text}, Options{})
	require.NoError(t, err)
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
	}
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
