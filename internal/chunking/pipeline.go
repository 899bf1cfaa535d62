package chunking

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"docprovrag/internal/hashutil"
	"docprovrag/models"
)

// Options configures one chunking run. Zero values fall back to the
// package defaults.
type Options struct {
	MaxChunkChars int
	MinChunkChars int
	OverlapChars  int
	Strategy      string
}

func (o Options) withDefaults() Options {
	if o.MaxChunkChars <= 0 {
		o.MaxChunkChars = DefaultMaxChunkChars
	}
	if o.MinChunkChars <= 0 {
		o.MinChunkChars = DefaultMinChunkChars
	}
	if o.OverlapChars <= 0 {
		o.OverlapChars = DefaultOverlapChars
	}
	if o.Strategy == "" {
		o.Strategy = "markdown_adaptive"
	}
	return o
}

// Input bundles the OCR output that chunking operates on.
type Input struct {
	DocumentID     string
	OCRResultID    string
	OCRProvID      string
	OCRContentHash string // the OCR_RESULT provenance row's content_hash, carried through for CHUNK provenance's input_hash
	RootDocID      string
	Text           string
	PageBoundary   []int // character offset at which each page begins, 0-indexed
	QualityScore   *float64
}

// Chunk runs the full pipeline: block parsing, section tracking,
// atomic-region detection, size-aware splitting, tiny-chunk merging,
// and overlap computation, returning ready-to-persist chunk rows
// paired 1:1 with their CHUNK provenance records.
func Chunk(in Input, opts Options) ([]*models.Chunk, []*models.Provenance, error) {
	opts = opts.withDefaults()

	blocks := ParseBlocks(in.Text)
	atomicRegions := DetectAtomicRegionsFromBlocks(blocks)
	stack := NewSectionStack()

	var drafts []ChunkDraft
	var pending strings.Builder
	pendingStart := -1
	flush := func(end int) {
		if pending.Len() == 0 {
			return
		}
		text := normalizeWhitespace(pending.String())
		if text != "" {
			drafts = append(drafts, ChunkDraft{
				Text: text, Start: pendingStart, End: end,
				SectionPath: stack.Path(),
			})
		}
		pending.Reset()
		pendingStart = -1
	}

	for _, b := range blocks {
		switch b.Kind {
		case BlockEmpty, BlockPageMarker:
			continue
		case BlockHeading:
			flush(b.Start)
			stack.Push(b.HeadingLevel, strings.TrimSpace(stripHeadingMarker(b.Text)))
			continue
		case BlockTable, BlockCode:
			flush(b.Start)
			region := FindOverlapping(b.Start, b.End, atomicRegions)
			draft := ChunkDraft{
				Text: StripHTML(strings.TrimSpace(b.Text)), Start: b.Start, End: b.End,
				SectionPath: stack.Path(), Atomic: true,
			}
			if region != nil {
				draft.AtomicKind = region.Kind
				if region.Table != nil {
					draft.Table = region.Table
				}
			}
			drafts = append(drafts, draft)
			continue
		default:
			if pendingStart < 0 {
				pendingStart = b.Start
			}
			if pending.Len() > 0 {
				pending.WriteString("\n\n")
			}
			pending.WriteString(StripHTML(b.Text))
		}
	}
	flush(len(in.Text))

	drafts = expandOversized(drafts, opts)
	drafts = MergeTinyChunks(drafts, opts.MinChunkChars)
	drafts = computeOverlapMetadata(drafts, opts.OverlapChars)

	chunks := make([]*models.Chunk, 0, len(drafts))
	provs := make([]*models.Provenance, 0, len(drafts))
	now := time.Now().UTC()

	for i, d := range drafts {
		text := d.Text
		hash := hashutil.HashString(text)
		pageNum, pageRange := pageInfoFor(d.Start, d.End, in.PageBoundary)

		contentTypes := contentTypesFor(d)

		provID := uuid.NewString()
		chainDepth := 2
		parentIDs := []string{in.RootDocID, in.OCRProvID}
		if in.OCRProvID == "" {
			chainDepth = 1
			parentIDs = []string{in.RootDocID}
		}

		location := &models.Location{
			ChunkIndex:     intPtr(i),
			CharacterStart: intPtr(d.Start),
			CharacterEnd:   intPtr(d.End),
			PageNumber:     pageNum,
			PageRange:      pageRange,
		}

		prov := &models.Provenance{
			ID:             provID,
			Type:           models.ProvChunk,
			CreatedAt:      now,
			SourceType:     models.SourceChunking,
			SourceID:       strPtr(in.OCRProvID),
			RootDocumentID: in.RootDocID,
			ParentID:       strPtr(lastOf(parentIDs)),
			ParentIDs:      parentIDs,
			ChainDepth:     chainDepth,
			ChainPath:      append(append([]string{}, ancestorChainPath(in.OCRProvID)...), string(models.ProvChunk)),
			ContentHash:    hash,
			InputHash:      in.OCRContentHash,
			Processor:      "chunking.pipeline",
			Location:       location,
			ProcessingParams: map[string]any{
				"strategy":        opts.Strategy,
				"max_chunk_chars": opts.MaxChunkChars,
				"overlap_chars":   opts.OverlapChars,
				"index":           i,
				"total":           len(drafts),
				"character_start": d.Start,
				"character_end":   d.End,
				"heading_context": d.SectionPath,
				"section_path":    d.SectionPath,
				"atomic":          d.Atomic,
				"content_types":   contentTypes,
			},
		}
		provs = append(provs, prov)

		var tableMeta *models.TableMetadata
		if tm, ok := d.Table.(*models.TableMetadata); ok {
			tableMeta = tm
		}

		chunks = append(chunks, &models.Chunk{
			ID:               uuid.NewString(),
			DocumentID:       in.DocumentID,
			OCRResultID:      in.OCRResultID,
			Text:             text,
			TextHash:         hash,
			ChunkIndex:       i,
			CharacterStart:   d.Start,
			CharacterEnd:     d.End,
			PageNumber:       pageNum,
			PageRange:        pageRange,
			OverlapPrevious:  d.overlapPrev,
			OverlapNext:      d.overlapNext,
			ProvenanceID:     provID,
			EmbeddingStatus:  models.EmbeddingPending,
			HeadingContext:   d.SectionPath,
			SectionPath:      d.SectionPath,
			ContentTypes:     contentTypes,
			IsAtomic:         d.Atomic,
			ChunkingStrategy: opts.Strategy,
			OCRQualityScore:  in.QualityScore,
			TableMetadata:    tableMeta,
		})
	}

	return chunks, provs, nil
}

// expandOversized runs the size-aware splitter over every non-atomic
// draft that exceeds MaxChunkChars, replacing it with its split parts.
func expandOversized(drafts []ChunkDraft, opts Options) []ChunkDraft {
	var out []ChunkDraft
	for _, d := range drafts {
		if d.Atomic || len(d.Text) <= opts.MaxChunkChars {
			out = append(out, d)
			continue
		}
		for _, seg := range SplitOversized(d.Text, opts.MaxChunkChars, opts.OverlapChars) {
			out = append(out, ChunkDraft{
				Text: seg.Text, Start: d.Start + seg.Start, End: d.Start + seg.End,
				SectionPath: d.SectionPath,
			})
		}
	}
	return out
}

// computeOverlapMetadata records, for each non-atomic chunk, how many
// characters of shared text it carries from its predecessor and
// contributes to its successor, using the split offsets rather than
// re-diffing text.
func computeOverlapMetadata(drafts []ChunkDraft, overlapChars int) []ChunkDraft {
	for i := range drafts {
		if drafts[i].Atomic {
			continue
		}
		if i > 0 && !drafts[i-1].Atomic {
			overlap := drafts[i-1].End - drafts[i].Start
			if overlap > 0 {
				drafts[i].overlapPrev = minInt(overlap, overlapChars)
			}
		}
		if i < len(drafts)-1 && !drafts[i+1].Atomic {
			overlap := drafts[i].End - drafts[i+1].Start
			if overlap > 0 {
				drafts[i].overlapNext = minInt(overlap, overlapChars)
			}
		}
	}
	return drafts
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func pageInfoFor(start, end int, boundaries []int) (*int, *string) {
	if len(boundaries) == 0 {
		return nil, nil
	}
	startPage := pageIndex(start, boundaries)
	endPage := pageIndex(end, boundaries)
	if startPage == endPage {
		p := startPage + 1
		return &p, nil
	}
	r := rangeString(startPage+1, endPage+1)
	return nil, &r
}

func pageIndex(offset int, boundaries []int) int {
	page := 0
	for i, b := range boundaries {
		if offset >= b {
			page = i
		}
	}
	return page
}

func rangeString(a, b int) string {
	return itoa(a) + "-" + itoa(b)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func contentTypesFor(d ChunkDraft) []string {
	if d.Atomic {
		return []string{string(d.AtomicKind)}
	}
	return []string{"text"}
}

func stripHeadingMarker(text string) string {
	trimmed := strings.TrimSpace(text)
	if m := atxHeadingRe.FindStringSubmatch(trimmed); m != nil {
		return m[2]
	}
	if m := boldOnlyRe.FindStringSubmatch(trimmed); m != nil {
		return m[1]
	}
	return trimmed
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func intPtr(n int) *int {
	return &n
}

func lastOf(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[len(s)-1]
}

func ancestorChainPath(ocrProvID string) []string {
	if ocrProvID == "" {
		return []string{string(models.ProvDocument)}
	}
	return []string{string(models.ProvDocument), string(models.ProvOCRResult)}
}
