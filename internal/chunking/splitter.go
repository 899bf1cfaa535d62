package chunking

import (
	"strings"
	"unicode"
)

const (
	// DefaultMaxChunkChars bounds a non-atomic chunk's length before a
	// split is forced.
	DefaultMaxChunkChars = 2000
	// DefaultMinChunkChars is the floor below which a trailing chunk is
	// merged into its predecessor rather than kept standalone.
	DefaultMinChunkChars = 200
	// DefaultOverlapChars is carried from the tail of one split chunk
	// into the head of the next, to preserve cross-boundary context.
	DefaultOverlapChars = 100
	// sentenceBoundaryWindow is how far backward from the hard limit we
	// search for a sentence-ending punctuation mark before giving up
	// and cutting at the limit itself.
	sentenceBoundaryWindow = 500
)

// SplitSegment is one piece of text produced by splitting an oversized
// block, with offsets relative to the start of the original block text.
type SplitSegment struct {
	Text       string
	Start, End int
}

// SplitOversized breaks text longer than maxChars into segments,
// preferring to cut at a sentence boundary found by scanning backward
// from the limit within sentenceBoundaryWindow characters; if none is
// found it falls back to a hard cut at maxChars. Each segment after the
// first is prefixed with up to overlapChars of trailing context from
// the previous segment.
func SplitOversized(text string, maxChars, overlapChars int) []SplitSegment {
	if len(text) <= maxChars {
		return []SplitSegment{{Text: text, Start: 0, End: len(text)}}
	}

	var segments []SplitSegment
	pos := 0
	for pos < len(text) {
		remaining := len(text) - pos
		if remaining <= maxChars {
			segStart := pos
			if len(segments) > 0 && overlapChars > 0 {
				segStart = maxInt(pos-overlapChars, 0)
			}
			segments = append(segments, SplitSegment{Text: text[segStart:], Start: segStart, End: len(text)})
			break
		}

		limit := pos + maxChars
		cut := findSentenceBoundary(text, pos, limit)
		if cut <= pos {
			cut = limit
		}

		segStart := pos
		if len(segments) > 0 && overlapChars > 0 {
			segStart = maxInt(pos-overlapChars, 0)
		}
		segments = append(segments, SplitSegment{Text: text[segStart:cut], Start: segStart, End: cut})
		pos = cut
	}
	return segments
}

// findSentenceBoundary scans backward from limit toward
// limit-sentenceBoundaryWindow (bounded by lowerBound) for the last
// occurrence of a sentence-ending punctuation mark followed by
// whitespace, returning the index just past it. Returns -1 if none found.
func findSentenceBoundary(text string, lowerBound, limit int) int {
	if limit > len(text) {
		limit = len(text)
	}
	searchFloor := maxInt(lowerBound, limit-sentenceBoundaryWindow)
	for i := limit - 1; i > searchFloor; i-- {
		r := rune(text[i])
		if (r == '.' || r == '!' || r == '?') && i+1 < len(text) && unicode.IsSpace(rune(text[i+1])) {
			return i + 1
		}
	}
	return -1
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// MergeTinyChunks merges any chunk shorter than minChars into its
// immediate predecessor, except atomic chunks, which are never merged
// regardless of length. The first chunk is never dropped; if it alone
// is tiny it is merged forward into the second instead.
func MergeTinyChunks(chunks []ChunkDraft, minChars int) []ChunkDraft {
	if len(chunks) <= 1 {
		return chunks
	}

	var out []ChunkDraft
	for _, c := range chunks {
		if len(out) == 0 {
			out = append(out, c)
			continue
		}
		prev := &out[len(out)-1]
		if !c.Atomic && !prev.Atomic && len(c.Text) < minChars {
			prev.Text = prev.Text + "\n\n" + c.Text
			prev.End = c.End
			continue
		}
		out = append(out, c)
	}

	// If the very first chunk ended up tiny (and there's a successor to
	// absorb into), fold it forward rather than emitting a near-empty
	// leading chunk.
	if len(out) > 1 && !out[0].Atomic && !out[1].Atomic && len(out[0].Text) < minChars {
		out[1].Text = out[0].Text + "\n\n" + out[1].Text
		out[1].Start = out[0].Start
		out = out[1:]
	}
	return out
}

// ChunkDraft is an in-progress chunk before persistence: accumulated
// text plus the metadata needed to finalize it.
type ChunkDraft struct {
	Text        string
	Start, End  int
	SectionPath string
	Atomic      bool
	AtomicKind  AtomicKind
	Table       interface{} // *models.TableMetadata when Atomic && AtomicKind == AtomicTable

	overlapPrev int
	overlapNext int
}

// normalizeWhitespace collapses runs of blank lines left behind after
// HTML stripping or merging.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blank := false
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
